package notify

import (
	"context"
	"time"

	internalErrors "github.com/memlab/memwatch/internal/errors"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

const defaultSmtpTimeout = 30 * time.Second

type SmtpConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

func (sc *SmtpConfig) Valid() (bool, error) {
	if sc.Host == "" {
		return false, errors.New("empty smtp host")
	} else if sc.Port <= 0 || sc.Port > 65535 {
		return false, errors.Errorf("invalid smtp port '%d'", sc.Port)
	} else if sc.From == "" {
		return false, errors.New("empty sender address")
	}

	return true, nil
}

type mailSender interface {
	DialAndSend(messages ...*mail.Message) error
}

type SmtpNotifier struct {
	logger *zap.Logger
	from   string
	sender mailSender
}

func NewSmtpNotifier(rootLogger *zap.Logger, config *SmtpConfig) (*SmtpNotifier, error) {
	if valid, err := config.Valid(); !valid {
		return nil, errors.WithMessage(err, "validate smtp config")
	}

	dialer := mail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	dialer.Timeout = config.Timeout
	if dialer.Timeout <= 0 {
		dialer.Timeout = defaultSmtpTimeout
	}

	return newSmtpNotifier(rootLogger, config.From, dialer), nil
}

func newSmtpNotifier(rootLogger *zap.Logger, from string, sender mailSender) *SmtpNotifier {
	return &SmtpNotifier{
		logger: rootLogger.Named("smtp-notifier"),
		from:   from,
		sender: sender,
	}
}

func (s *SmtpNotifier) Name() string {
	return "smtp"
}

func (s *SmtpNotifier) Send(ctx context.Context, subject, htmlBody string, recipients []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := mail.NewMessage()
	message.SetHeader("From", s.from)
	message.SetHeader("To", recipients...)
	message.SetHeader("Subject", subject)
	message.SetBody("text/html", htmlBody)

	s.logger.Debug("Send mail", zap.String("Subject", subject), zap.Strings("Recipients", recipients))

	if err := s.sender.DialAndSend(message); err != nil {
		return internalErrors.WrappedErrSendMessage(err)
	}
	return nil
}
