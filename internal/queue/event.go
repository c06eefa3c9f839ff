// Package queue contains the outbound mail queue: the message type published
// by the notifier and the background consumer that delivers it over SMTP.
package queue

import "time"

const EmailQueueName = "email.outbound"

// Mail purposes. The consumer picks subject and body template by purpose.
const (
	PurposeVerifyEmail   = "email-verify"
	PurposePasswordReset = "password-reset"
)

// EmailMessage is the payload queued for every verification or reset mail.
// It carries the action link already built; the consumer never sees raw
// application secrets beyond the one-time token embedded in the link.
type EmailMessage struct {
	Purpose     string    `json:"purpose"`
	To          string    `json:"to"`
	DisplayName string    `json:"display_name"`
	ActionLink  string    `json:"action_link"`
	QueuedAt    time.Time `json:"queued_at"`
}
