package database

import (
	"context"
	"database/sql"
	"fmt"

	"retail-svc/models"

	"github.com/lib/pq"
)

type WebhookEventStore struct {
	db *sql.DB
}

func NewWebhookEventStore(db *sql.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// Record upserts the delivery log row. Redeliveries of the same event bump
// the attempt counter and overwrite the outcome.
func (s *WebhookEventStore) Record(ctx context.Context, e *models.WebhookEvent) error {
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`INSERT INTO webhook_events (event_id, event_type, stripe_session_id, outcome, detail)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 ON CONFLICT (event_id) DO UPDATE
		 SET outcome = EXCLUDED.outcome,
		     detail = EXCLUDED.detail,
		     stripe_session_id = COALESCE(EXCLUDED.stripe_session_id, webhook_events.stripe_session_id),
		     attempts = webhook_events.attempts + 1
		 RETURNING attempts, received_at`,
		e.EventID, e.EventType, e.StripeSessionID, e.Outcome, e.Detail,
	).Scan(&e.Attempts, &e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// ListByOutcome returns the most recent deliveries with any of the outcomes.
func (s *WebhookEventStore) ListByOutcome(ctx context.Context, outcomes []models.WebhookOutcome, limit int) ([]models.WebhookEvent, error) {
	values := make([]string, len(outcomes))
	for i, o := range outcomes {
		values[i] = string(o)
	}

	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT event_id, event_type, COALESCE(stripe_session_id, ''), outcome, detail, attempts, received_at
		 FROM webhook_events WHERE outcome = ANY($1)
		 ORDER BY received_at DESC LIMIT $2`,
		pq.Array(values), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	var events []models.WebhookEvent
	for rows.Next() {
		var e models.WebhookEvent
		if err := rows.Scan(&e.EventID, &e.EventType, &e.StripeSessionID, &e.Outcome, &e.Detail,
			&e.Attempts, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SessionProcessed reports whether any entity already exists for the checkout
// session.
func (s *WebhookEventStore) SessionProcessed(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE stripe_session_id = $1)
		     OR EXISTS (SELECT 1 FROM guest_orders WHERE stripe_session_id = $1)
		     OR EXISTS (SELECT 1 FROM event_bookings WHERE stripe_session_id = $1)
		     OR EXISTS (SELECT 1 FROM vouchers WHERE stripe_session_id = $1)`,
		sessionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return exists, nil
}
