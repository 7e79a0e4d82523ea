package models

import "time"

type Event struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"starts_at"`
	Capacity   int       `json:"capacity"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
}

type BookingState string

const (
	BookingStateUnpaid                BookingState = "unpaid"
	BookingStatePaid                  BookingState = "paid"
	BookingStateCancellationRequested BookingState = "cancellation_requested"
	BookingStateCancelledNoRefund     BookingState = "cancelled_no_refund"
	BookingStateRefunded              BookingState = "refunded"
)

type EventBooking struct {
	ID                    string    `json:"id"`
	EventID               string    `json:"event_id"`
	UserID                string    `json:"user_id"`
	Paid                  bool      `json:"paid"`
	Cancelled             bool      `json:"cancelled"`
	CancellationRequested bool      `json:"cancellation_requested"`
	Refunded              bool      `json:"refunded"`
	StripeSessionID       string    `json:"stripe_session_id,omitempty"`
	StripePaymentIntentID string    `json:"stripe_payment_intent_id,omitempty"`
	RefundID              string    `json:"refund_id,omitempty"`
	ContactName           string    `json:"contact_name"`
	ContactEmail          string    `json:"contact_email"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (b *EventBooking) State() BookingState {
	switch {
	case b.Cancelled && b.Refunded:
		return BookingStateRefunded
	case b.Cancelled:
		return BookingStateCancelledNoRefund
	case b.CancellationRequested:
		return BookingStateCancellationRequested
	case b.Paid:
		return BookingStatePaid
	default:
		return BookingStateUnpaid
	}
}

func (b *EventBooking) Terminal() bool {
	return b.Cancelled
}

// Hold reserves one seat for the duration of a checkout.
type Hold struct {
	ID        string    `json:"hold_id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Availability struct {
	EventID        string `json:"event_id"`
	Capacity       int    `json:"capacity"`
	ActiveBookings int    `json:"active_bookings"`
	Held           int    `json:"held"`
	Remaining      int    `json:"remaining"`
}
