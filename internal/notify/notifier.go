package notify

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Notifier delivers one rendered message to every recipient.
type Notifier interface {
	Name() string
	Send(ctx context.Context, subject, htmlBody string, recipients []string) error
}

// Multi sends through every notifier and fails if any of them fails.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Name() string {
	names := make([]string, 0, len(m.notifiers))
	for _, notifier := range m.notifiers {
		names = append(names, notifier.Name())
	}
	return strings.Join(names, "+")
}

func (m *Multi) Send(ctx context.Context, subject, htmlBody string, recipients []string) error {
	if len(m.notifiers) == 0 {
		return errors.New("no notifiers configured")
	}

	var errs *multierror.Error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, subject, htmlBody, recipients); err != nil {
			errs = multierror.Append(errs, errors.WithMessagef(err, "notifier '%s'", notifier.Name()))
		}
	}
	if errs == nil {
		return nil
	}

	errs.ErrorFormat = formatSendErrors
	return errs
}

func formatSendErrors(errs []error) string {
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// LogNotifier only logs what would have been sent.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(rootLogger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: rootLogger.Named("log-notifier")}
}

func (l *LogNotifier) Name() string {
	return "log"
}

func (l *LogNotifier) Send(ctx context.Context, subject, htmlBody string, recipients []string) error {
	l.logger.Info("Dry-run notification", zap.String("Subject", subject), zap.Strings("Recipients", recipients),
		zap.Int("BodyLen", len(htmlBody)))
	return nil
}
