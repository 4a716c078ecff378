package models

import "gopkg.in/guregu/null.v3"

// Notification is the JSON form of a rendered alert for non-email channels.
type Notification struct {
	Subject    string    `json:"subject"`
	HtmlBody   string    `json:"html_body"`
	Recipients []string  `json:"recipients"`
	SentAt     null.Time `json:"sent_at"`
}
