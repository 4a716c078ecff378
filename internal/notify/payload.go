package notify

import (
	"encoding/json"
	"time"

	internalErrors "github.com/memlab/memwatch/internal/errors"
	"github.com/memlab/memwatch/internal/reports"
	"github.com/memlab/memwatch/internal/reports/general"
)

// buildPayload merges the rendered notification with the host report, when one is
// available, into a single JSON document.
func buildPayload(subject, htmlBody string, recipients []string, hostReport reports.Report,
	now time.Time) ([]byte, error) {
	notification := general.NewNotificationReport(subject, htmlBody, recipients, now)

	merged, err := reports.MergeReports(notification, hostReport)
	if err != nil {
		return nil, internalErrors.WrappedErrEncodePayload(err)
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, internalErrors.WrappedErrEncodePayload(err)
	}
	return payload, nil
}
