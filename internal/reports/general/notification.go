package general

import (
	"encoding/json"
	"time"

	"github.com/memlab/memwatch/internal/client/models"
	"gopkg.in/guregu/null.v3"
)

type NotificationReport struct {
	*models.Notification
}

func NewNotificationReport(subject, htmlBody string, recipients []string, sentAt time.Time) *NotificationReport {
	return &NotificationReport{Notification: &models.Notification{
		Subject:    subject,
		HtmlBody:   htmlBody,
		Recipients: recipients,
		SentAt:     null.TimeFrom(sentAt.UTC()),
	}}
}

func (n *NotificationReport) ReportName() string {
	return "notification-report"
}

func (n *NotificationReport) DumpReport() ([]byte, error) {
	return json.Marshal(n.Notification)
}
