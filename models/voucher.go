package models

import "time"

type VoucherStatus string

const (
	VoucherStatusActive   VoucherStatus = "active"
	VoucherStatusRedeemed VoucherStatus = "redeemed"
	VoucherStatusVoid     VoucherStatus = "void"
)

type DeliveryMode string

const (
	DeliveryEmailNow DeliveryMode = "email_now"
	DeliverySchedule DeliveryMode = "schedule"
	DeliveryPrint    DeliveryMode = "print"
)

func (m DeliveryMode) Valid() bool {
	switch m {
	case DeliveryEmailNow, DeliverySchedule, DeliveryPrint:
		return true
	}
	return false
}

type Voucher struct {
	ID                    int64         `json:"id"`
	Code                  string        `json:"code"`
	InitialCents          int64         `json:"initial_cents"`
	RemainingCents        int64         `json:"remaining_cents"`
	Currency              string        `json:"currency"`
	Status                VoucherStatus `json:"status"`
	BuyerName             string        `json:"buyer_name"`
	BuyerEmail            string        `json:"buyer_email"`
	RecipientName         string        `json:"recipient_name,omitempty"`
	RecipientEmail        string        `json:"recipient_email,omitempty"`
	Message               string        `json:"message,omitempty"`
	DeliveryMode          DeliveryMode  `json:"delivery_mode"`
	ScheduledFor          *time.Time    `json:"scheduled_for,omitempty"`
	DeliveredAt           *time.Time    `json:"delivered_at,omitempty"`
	ExpiresAt             time.Time     `json:"expires_at"`
	StripeSessionID       string        `json:"stripe_session_id"`
	StripePaymentIntentID string        `json:"stripe_payment_intent_id,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
}

// IsGift reports whether the voucher goes to someone other than the buyer.
func (v *Voucher) IsGift() bool {
	return v.RecipientEmail != "" && !equalFoldTrim(v.RecipientEmail, v.BuyerEmail)
}

// DeliveryEmail is where the redeemable voucher is sent for email delivery.
func (v *Voucher) DeliveryEmail() string {
	if v.RecipientEmail != "" {
		return v.RecipientEmail
	}
	return v.BuyerEmail
}
