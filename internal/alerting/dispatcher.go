package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/memlab/memwatch/internal/detection"
	"github.com/memlab/memwatch/internal/logging"
	"github.com/memlab/memwatch/internal/metrics"
	"github.com/memlab/memwatch/internal/notify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v3"
)

const recipientSeparator = "; "

// DeliveryResult is Ok only when the notifier accepted the message. A skipped
// delivery is not Ok and carries no Error.
type DeliveryResult struct {
	Ok    bool
	Error null.String
}

func (dr DeliveryResult) Skipped() bool {
	return !dr.Ok && !dr.Error.Valid
}

type Dispatcher struct {
	logger   *zap.Logger
	feed     *logging.Feed
	notifier notify.Notifier
	metrics  *metrics.Metrics
	host     HostIdentity
}

func NewDispatcher(rootLogger *zap.Logger, feed *logging.Feed, notifier notify.Notifier, metrics *metrics.Metrics,
	host HostIdentity) *Dispatcher {
	return &Dispatcher{
		logger:   rootLogger.Named("dispatcher"),
		feed:     feed,
		notifier: notifier,
		metrics:  metrics,
		host:     host,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event *detection.AlertEvent, recipients []string) DeliveryResult {
	logger := d.logger.With(zap.String("Kind", event.Kind.Name()), zap.String("Process", event.Process))

	if len(recipients) == 0 {
		logger.Info("No recipients, skipping notification")
		if event.Kind == detection.AlertKindCrash {
			d.feed.Record("No recipients provided; skipping crash alert.")
		} else {
			d.feed.Record("No recipients provided; skipping email alert.")
		}
		d.metrics.ObserveNotification(metrics.NotificationSkipped)
		return DeliveryResult{}
	}

	message, err := Render(event, d.host)
	if err != nil {
		return d.failed(logger, err)
	}

	if err := d.notifier.Send(ctx, message.Subject, message.HtmlBody, recipients); err != nil {
		return d.failed(logger, err)
	}

	joinedRecipients := strings.Join(recipients, recipientSeparator)
	d.feed.Record(auditLine(event, joinedRecipients))
	d.metrics.ObserveNotification(metrics.NotificationSent)
	logger.Info("Notification sent", zap.String("Notifier", d.notifier.Name()), zap.Strings("Recipients", recipients))

	return DeliveryResult{Ok: true}
}

func (d *Dispatcher) failed(logger *zap.Logger, err error) DeliveryResult {
	logger.Error("Failed to send notification", zap.Error(err))
	d.feed.Recordf("Error sending %s alert: %s", channelName(d.notifier.Name()), err)
	d.metrics.ObserveNotification(metrics.NotificationFailed)
	return DeliveryResult{Error: null.StringFrom(err.Error())}
}

// Handle adapts Dispatch to the controller. Skipped deliveries are not errors.
func (d *Dispatcher) Handle(ctx context.Context, event *detection.AlertEvent, recipients []string) error {
	result := d.Dispatch(ctx, event, recipients)
	if result.Error.Valid {
		return errors.New(result.Error.String)
	}
	return nil
}

// channelName names the delivery channel in audit lines; smtp delivery is email.
func channelName(notifier string) string {
	return strings.ReplaceAll(notifier, "smtp", "email")
}

func auditLine(event *detection.AlertEvent, joinedRecipients string) string {
	if event.Kind == detection.AlertKindCrash {
		return fmt.Sprintf("Crash Alert for %s - Recipients: %s", event.Process, joinedRecipients)
	}
	return fmt.Sprintf("Alert Sent for %s - VM: %.2f MB (%.2f%%), WS: %.2f MB - Recipients: %s",
		event.Process, event.VirtualMb, event.UsagePercent, event.ResidentMb, joinedRecipients)
}
