package models

import "time"

// PaymentNotification is the gateway's description of a successful checkout.
// It is never persisted verbatim.
type PaymentNotification struct {
	EventID         string
	EventType       string
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	BuyerEmail      string
	BuyerName       string
	Metadata        map[string]string
}

type PurchaseKind string

const (
	KindVoucher PurchaseKind = "voucher"
	KindEvent   PurchaseKind = "event"
	KindStore   PurchaseKind = "store"
)

// Purchase is the classified form of a notification's metadata:
// VoucherPurchase, EventPurchase or StoreOrderPurchase.
type Purchase interface {
	Kind() PurchaseKind
	Session() string
}

type VoucherPurchase struct {
	SessionID       string
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	BuyerName       string
	BuyerEmail      string
	RecipientName   string
	RecipientEmail  string
	Message         string
	Delivery        DeliveryMode
	ScheduledFor    *time.Time
}

type EventPurchase struct {
	SessionID       string
	PaymentIntentID string
	EventID         string
	UserID          string
	BookingID       string
	HoldID          string
	ContactName     string
	ContactEmail    string
}

type StoreOrderPurchase struct {
	SessionID       string
	PaymentIntentID string
	UserID          string
	GuestToken      string
	Email           string
	Currency        string
	AmountTotal     int64
	Items           []OrderItem
}

func (VoucherPurchase) Kind() PurchaseKind    { return KindVoucher }
func (EventPurchase) Kind() PurchaseKind      { return KindEvent }
func (StoreOrderPurchase) Kind() PurchaseKind { return KindStore }

func (p VoucherPurchase) Session() string    { return p.SessionID }
func (p EventPurchase) Session() string      { return p.SessionID }
func (p StoreOrderPurchase) Session() string { return p.SessionID }

// Guest reports whether the order has no signed-in owner.
func (p StoreOrderPurchase) Guest() bool { return p.UserID == "" }
