package models

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

type Order struct {
	ID                    int64       `json:"id"`
	UserID                string      `json:"user_id"`
	TotalCents            int64       `json:"total_cents"`
	Currency              string      `json:"currency"`
	Status                OrderStatus `json:"status"`
	StripeSessionID       string      `json:"stripe_session_id"`
	StripePaymentIntentID string      `json:"stripe_payment_intent_id,omitempty"`
	Receipt               Receipt     `json:"receipt"`
	Items                 []OrderItem `json:"items,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
}

// GuestOrder is a purchase made without an account, keyed by contact email and
// the anonymous client token.
type GuestOrder struct {
	ID                    int64       `json:"id"`
	GuestToken            string      `json:"-"`
	Email                 string      `json:"email"`
	TotalCents            int64       `json:"total_cents"`
	Currency              string      `json:"currency"`
	Status                OrderStatus `json:"status"`
	StripeSessionID       string      `json:"stripe_session_id"`
	StripePaymentIntentID string      `json:"stripe_payment_intent_id,omitempty"`
	Items                 []OrderItem `json:"items,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
}

// OrderItem snapshots the unit price at purchase time. ProductID is nil when the
// product could not be resolved.
type OrderItem struct {
	ID             int64  `json:"id"`
	OrderID        int64  `json:"order_id"`
	ProductID      *int64 `json:"product_id,omitempty"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// Receipt is the payment-receipt metadata backfilled from the gateway.
type Receipt struct {
	URL       string     `json:"url,omitempty"`
	CardBrand string     `json:"card_brand,omitempty"`
	CardLast4 string     `json:"card_last4,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

func (r Receipt) IsZero() bool {
	return r.URL == "" && r.CardBrand == "" && r.CardLast4 == "" && r.PaidAt == nil
}

func OrderTotal(items []OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += int64(it.Quantity) * it.UnitPriceCents
	}
	return total
}
