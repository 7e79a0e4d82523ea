package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"retail-svc/models"
)

type BookingStore struct {
	db *sql.DB
}

func NewBookingStore(db *sql.DB) *BookingStore {
	return &BookingStore{db: db}
}

const bookingColumns = `id, event_id, user_id, paid, cancelled, cancellation_requested, refunded,
	COALESCE(stripe_session_id, ''), COALESCE(stripe_payment_intent_id, ''), COALESCE(refund_id, ''),
	contact_name, contact_email, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*models.EventBooking, error) {
	var b models.EventBooking
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.Paid, &b.Cancelled, &b.CancellationRequested, &b.Refunded,
		&b.StripeSessionID, &b.StripePaymentIntentID, &b.RefundID, &b.ContactName, &b.ContactEmail,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BookingStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	err := conn(ctx, s.db).QueryRowContext(ctx,
		"SELECT id, title, starts_at, capacity, price_cents, currency FROM events WHERE id = $1",
		id,
	).Scan(&e.ID, &e.Title, &e.StartsAt, &e.Capacity, &e.PriceCents, &e.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}

// CountActive counts bookings that still occupy a seat.
func (s *BookingStore) CountActive(ctx context.Context, eventID string) (int, error) {
	var n int
	err := conn(ctx, s.db).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM event_bookings WHERE event_id = $1 AND NOT cancelled",
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return n, nil
}

// CreateBooking inserts the booking under its pre-allocated id. It reports
// false when the id or the checkout session is already booked.
func (s *BookingStore) CreateBooking(ctx context.Context, b *models.EventBooking) (bool, error) {
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`INSERT INTO event_bookings (id, event_id, user_id, paid, stripe_session_id, stripe_payment_intent_id, contact_name, contact_email)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		 ON CONFLICT DO NOTHING
		 RETURNING created_at, updated_at`,
		b.ID, b.EventID, b.UserID, b.Paid, b.StripeSessionID, b.StripePaymentIntentID, b.ContactName, b.ContactEmail,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert booking: %w", err)
	}
	return true, nil
}

func (s *BookingStore) GetBooking(ctx context.Context, id string) (*models.EventBooking, error) {
	b, err := scanBooking(conn(ctx, s.db).QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM event_bookings WHERE id = $1", id))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, err
}

// LockBooking loads the booking with a row lock held until the surrounding
// transaction ends.
func (s *BookingStore) LockBooking(ctx context.Context, id string) (*models.EventBooking, error) {
	b, err := scanBooking(conn(ctx, s.db).QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM event_bookings WHERE id = $1 FOR UPDATE", id))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return b, err
}

// SaveState writes the lifecycle flags and payment references of b.
func (s *BookingStore) SaveState(ctx context.Context, b *models.EventBooking) error {
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE event_bookings
		 SET paid = $2, cancelled = $3, cancellation_requested = $4, refunded = $5,
		     stripe_payment_intent_id = NULLIF($6, ''), refund_id = NULLIF($7, ''), updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1`,
		b.ID, b.Paid, b.Cancelled, b.CancellationRequested, b.Refunded, b.StripePaymentIntentID, b.RefundID,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}
