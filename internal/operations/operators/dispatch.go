package operators

import (
	"context"
	"fmt"

	"github.com/memlab/memwatch/internal/detection"
)

// DispatchOperator hands one alert event to a handler.
type DispatchOperator struct {
	handler    detection.EventHandler
	event      *detection.AlertEvent
	recipients []string
}

func NewDispatchOperator(handler detection.EventHandler, event *detection.AlertEvent,
	recipients []string) *DispatchOperator {
	copied := make([]string, len(recipients))
	copy(copied, recipients)

	return &DispatchOperator{handler: handler, event: event, recipients: copied}
}

func (d *DispatchOperator) Name() string {
	return fmt.Sprintf("dispatch-%s", d.event.Kind.Name())
}

func (d *DispatchOperator) Operate(ctx context.Context) error {
	return d.handler.Handle(ctx, d.event, d.recipients)
}

// StopOnFailure is false since a failed notification never stops monitoring.
func (d *DispatchOperator) StopOnFailure() bool {
	return false
}
