package models

import "time"

type WebhookOutcome string

const (
	WebhookProcessed    WebhookOutcome = "processed"
	WebhookDuplicate    WebhookOutcome = "duplicate"
	WebhookIgnored      WebhookOutcome = "ignored"
	WebhookUnclassified WebhookOutcome = "unclassified"
	WebhookFailed       WebhookOutcome = "failed"
)

// WebhookEvent is the delivery log used for out-of-band reconciliation.
type WebhookEvent struct {
	EventID         string         `json:"event_id"`
	EventType       string         `json:"event_type"`
	StripeSessionID string         `json:"stripe_session_id,omitempty"`
	Outcome         WebhookOutcome `json:"outcome"`
	Detail          string         `json:"detail,omitempty"`
	Attempts        int            `json:"attempts"`
	ReceivedAt      time.Time      `json:"received_at"`
}
