package notify

import (
	"context"
	"time"

	"github.com/memlab/memwatch/internal/client"
	internalErrors "github.com/memlab/memwatch/internal/errors"
	"github.com/memlab/memwatch/internal/reports"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type poster interface {
	Post(ctx context.Context, endpoint string, message []byte) (*client.Response, error)
}

// WebhookNotifier posts the notification as JSON to a single url.
type WebhookNotifier struct {
	logger     *zap.Logger
	poster     poster
	hostReport reports.Report
	now        func() time.Time
}

func NewWebhookNotifier(rootLogger *zap.Logger, restfulClient *client.RestfulClient,
	hostReport reports.Report) *WebhookNotifier {
	return newWebhookNotifier(rootLogger, restfulClient, hostReport)
}

func newWebhookNotifier(rootLogger *zap.Logger, poster poster, hostReport reports.Report) *WebhookNotifier {
	return &WebhookNotifier{
		logger:     rootLogger.Named("webhook-notifier"),
		poster:     poster,
		hostReport: hostReport,
		now:        time.Now,
	}
}

func (w *WebhookNotifier) Name() string {
	return "webhook"
}

func (w *WebhookNotifier) Send(ctx context.Context, subject, htmlBody string, recipients []string) error {
	payload, err := buildPayload(subject, htmlBody, recipients, w.hostReport, w.now())
	if err != nil {
		return err
	}

	response, err := w.poster.Post(ctx, "", payload)
	if err != nil {
		return internalErrors.WrappedErrSendMessage(err)
	}
	if !response.Successful() {
		return internalErrors.WrappedErrSendMessage(
			errors.Errorf("unexpected status code '%d'", response.StatusCode))
	}

	w.logger.Debug("Posted webhook", zap.String("Subject", subject), zap.Int("StatusCode", response.StatusCode))
	return nil
}
