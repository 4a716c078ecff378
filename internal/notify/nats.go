package notify

import (
	"context"
	"time"

	internalErrors "github.com/memlab/memwatch/internal/errors"
	"github.com/memlab/memwatch/internal/reports"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultNatsSubject = "memwatch.alerts"
	natsDrainTimeout   = 5 * time.Second
)

type NatsConfig struct {
	Url     string
	Subject string
}

func (nc *NatsConfig) Valid() (bool, error) {
	if nc.Url == "" {
		return false, errors.New("empty nats url")
	} else if nc.Subject == "" {
		return false, errors.New("empty nats subject")
	}

	return true, nil
}

type publisher interface {
	Publish(subject string, data []byte) error
}

type drainer interface {
	Drain() error
	Close()
}

// NatsNotifier publishes the notification as JSON on a subject.
type NatsNotifier struct {
	logger     *zap.Logger
	subject    string
	publisher  publisher
	conn       drainer
	closed     chan struct{}
	hostReport reports.Report
	now        func() time.Time
}

func NewNatsNotifier(rootLogger *zap.Logger, config *NatsConfig, hostReport reports.Report) (*NatsNotifier, error) {
	if valid, err := config.Valid(); !valid {
		return nil, errors.WithMessage(err, "validate nats config")
	}

	closed := make(chan struct{})
	conn, err := nats.Connect(config.Url, nats.Name("memwatch"), nats.DrainTimeout(natsDrainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }))
	if err != nil {
		return nil, errors.WithMessagef(err, "connect to '%s'", config.Url)
	}

	notifier := newNatsNotifier(rootLogger, config.Subject, conn, hostReport)
	notifier.conn = conn
	notifier.closed = closed
	return notifier, nil
}

func newNatsNotifier(rootLogger *zap.Logger, subject string, publisher publisher,
	hostReport reports.Report) *NatsNotifier {
	return &NatsNotifier{
		logger:     rootLogger.Named("nats-notifier"),
		subject:    subject,
		publisher:  publisher,
		hostReport: hostReport,
		now:        time.Now,
	}
}

func (n *NatsNotifier) Name() string {
	return "nats"
}

func (n *NatsNotifier) Send(ctx context.Context, subject, htmlBody string, recipients []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := buildPayload(subject, htmlBody, recipients, n.hostReport, n.now())
	if err != nil {
		return err
	}

	if err := n.publisher.Publish(n.subject, payload); err != nil {
		return internalErrors.WrappedErrSendMessage(err)
	}

	n.logger.Debug("Published notification", zap.String("NatsSubject", n.subject), zap.String("Subject", subject))
	return nil
}

// Close drains pending publishes and waits for the drain to close the connection.
func (n *NatsNotifier) Close() {
	if n.conn == nil {
		return
	}

	if err := n.conn.Drain(); err != nil {
		n.logger.Error("Failed to drain nats connection", zap.Error(err))
		n.conn.Close()
		return
	}

	select {
	case <-n.closed:
	case <-time.After(natsDrainTimeout + time.Second):
		n.logger.Warn("Timed out waiting for nats drain")
		n.conn.Close()
	}
}
