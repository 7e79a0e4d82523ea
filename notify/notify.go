package notify

import (
	"context"
	"fmt"
	"time"
)

// Message is one outbound email. Ref links it back to the entity it is about.
type Message struct {
	Kind    string    `json:"kind"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Ref     string    `json:"ref,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// Event is a domain event on the shop events topic.
type Event struct {
	EventType   string    `json:"event_type"`
	SessionID   string    `json:"stripe_session_id,omitempty"`
	BookingID   string    `json:"booking_id,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	OrderID     int64     `json:"order_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	VoucherCode string    `json:"voucher_code,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

const (
	EventBookingPaid      = "booking_paid"
	EventBookingCancelled = "booking_cancelled"
	EventVoucherIssued    = "voucher_issued"
	EventOrderCompleted   = "order_completed"
	EventOrdersMerged     = "guest_orders_merged"
)

// Publisher is the transport, normally *kafka.Publisher.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// Mailer queues emails on the notifications topic.
type Mailer struct {
	publisher Publisher
	topic     string
}

func NewMailer(publisher Publisher, topic string) *Mailer {
	return &Mailer{publisher: publisher, topic: topic}
}

func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("notification %s has no recipient", msg.Kind)
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	if err := m.publisher.Publish(ctx, m.topic, msg.To, msg); err != nil {
		return fmt.Errorf("failed to queue %s notification: %w", msg.Kind, err)
	}
	return nil
}

// Emitter publishes domain events keyed by the checkout session.
type Emitter struct {
	publisher Publisher
	topic     string
}

func NewEmitter(publisher Publisher, topic string) *Emitter {
	return &Emitter{publisher: publisher, topic: topic}
}

func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := e.publisher.Publish(ctx, e.topic, ev.SessionID, ev); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.EventType, err)
	}
	return nil
}
