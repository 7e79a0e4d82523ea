// Package classifier turns a payment notification's metadata into exactly one
// purchase type. It performs no I/O.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"retail-svc/models"
)

// Metadata keys written at checkout time.
const (
	KeyKind           = "kind"
	KeyDelivery       = "delivery"
	KeyUserID         = "user_id"
	KeyEventID        = "event_id"
	KeyBookingID      = "booking_id"
	KeyHoldID         = "hold_id"
	KeyContactName    = "contact_name"
	KeyContactEmail   = "contact_email"
	KeyGuestToken     = "guest_token"
	KeyEmail          = "email"
	KeyBuyerName      = "buyer_name"
	KeyBuyerEmail     = "buyer_email"
	KeyRecipientName  = "recipient_name"
	KeyRecipientEmail = "recipient_email"
	KeyMessage        = "message"
	KeyScheduledFor   = "scheduled_for"
	KeyItems          = "items"
)

var ErrUnattributable = errors.New("store order has neither a user nor a guest token and email")

// Error reports a notification that names a kind but lacks the fields it needs.
type Error struct {
	Kind    models.PurchaseKind
	Missing []string
	Reason  string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("classify %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("classify %s: missing %s", e.Kind, strings.Join(e.Missing, ", "))
}

// Item is the wire form of a line item in the "items" metadata field.
type Item struct {
	ProductID  *int64 `json:"product_id,omitempty"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitAmount int64  `json:"unit_amount"`
}

// Classify decides which domain a notification belongs to. An explicit kind is
// authoritative; ancillary fields never override it.
func Classify(n models.PaymentNotification) (models.Purchase, error) {
	md := n.Metadata
	kind := models.PurchaseKind(strings.ToLower(strings.TrimSpace(md[KeyKind])))
	if kind == "" && md[KeyDelivery] != "" {
		kind = models.KindVoucher
	}

	switch kind {
	case models.KindVoucher:
		return classifyVoucher(n)
	case models.KindEvent:
		return classifyEvent(n)
	default:
		return classifyStore(n)
	}
}

func classifyVoucher(n models.PaymentNotification) (models.Purchase, error) {
	md := n.Metadata
	p := models.VoucherPurchase{
		SessionID:       n.SessionID,
		PaymentIntentID: n.PaymentIntentID,
		AmountCents:     n.AmountTotal,
		Currency:        n.Currency,
		BuyerName:       first(md[KeyBuyerName], n.BuyerName),
		BuyerEmail:      first(md[KeyBuyerEmail], n.BuyerEmail),
		RecipientName:   md[KeyRecipientName],
		RecipientEmail:  md[KeyRecipientEmail],
		Message:         md[KeyMessage],
		Delivery:        models.DeliveryMode(md[KeyDelivery]),
	}

	var missing []string
	if p.SessionID == "" {
		missing = append(missing, "session_id")
	}
	if md[KeyDelivery] == "" {
		missing = append(missing, KeyDelivery)
	}
	if p.BuyerEmail == "" {
		missing = append(missing, KeyBuyerEmail)
	}
	if len(missing) > 0 {
		return nil, &Error{Kind: models.KindVoucher, Missing: missing}
	}
	if !p.Delivery.Valid() {
		return nil, &Error{Kind: models.KindVoucher, Reason: fmt.Sprintf("unknown delivery mode %q", p.Delivery)}
	}
	if p.AmountCents <= 0 {
		return nil, &Error{Kind: models.KindVoucher, Reason: "amount must be positive"}
	}

	if p.Delivery == models.DeliverySchedule {
		raw := md[KeyScheduledFor]
		if raw == "" {
			return nil, &Error{Kind: models.KindVoucher, Missing: []string{KeyScheduledFor}}
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, &Error{Kind: models.KindVoucher, Reason: fmt.Sprintf("invalid %s: %v", KeyScheduledFor, err)}
		}
		at = at.UTC()
		p.ScheduledFor = &at
	}
	return p, nil
}

func classifyEvent(n models.PaymentNotification) (models.Purchase, error) {
	md := n.Metadata
	p := models.EventPurchase{
		SessionID:       n.SessionID,
		PaymentIntentID: n.PaymentIntentID,
		EventID:         md[KeyEventID],
		UserID:          md[KeyUserID],
		BookingID:       md[KeyBookingID],
		HoldID:          md[KeyHoldID],
		ContactName:     first(md[KeyContactName], n.BuyerName),
		ContactEmail:    first(md[KeyContactEmail], n.BuyerEmail),
	}

	var missing []string
	if p.SessionID == "" {
		missing = append(missing, "session_id")
	}
	if p.EventID == "" {
		missing = append(missing, KeyEventID)
	}
	if p.UserID == "" {
		missing = append(missing, KeyUserID)
	}
	if p.BookingID == "" {
		missing = append(missing, KeyBookingID)
	}
	if len(missing) > 0 {
		return nil, &Error{Kind: models.KindEvent, Missing: missing}
	}
	return p, nil
}

func classifyStore(n models.PaymentNotification) (models.Purchase, error) {
	md := n.Metadata
	p := models.StoreOrderPurchase{
		SessionID:       n.SessionID,
		PaymentIntentID: n.PaymentIntentID,
		UserID:          md[KeyUserID],
		Currency:        n.Currency,
		AmountTotal:     n.AmountTotal,
	}
	if p.SessionID == "" {
		return nil, &Error{Kind: models.KindStore, Missing: []string{"session_id"}}
	}

	if p.UserID == "" {
		p.GuestToken = md[KeyGuestToken]
		p.Email = first(md[KeyEmail], n.BuyerEmail)
		if p.GuestToken == "" || p.Email == "" {
			return nil, ErrUnattributable
		}
	} else {
		p.Email = first(md[KeyEmail], n.BuyerEmail)
	}

	items, err := parseItems(md[KeyItems])
	if err != nil {
		return nil, &Error{Kind: models.KindStore, Reason: err.Error()}
	}
	p.Items = items
	return p, nil
}

func parseItems(raw string) ([]models.OrderItem, error) {
	if raw == "" {
		return nil, errors.New("no line items")
	}
	var wire []Item
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("invalid items: %w", err)
	}
	if len(wire) == 0 {
		return nil, errors.New("no line items")
	}

	items := make([]models.OrderItem, 0, len(wire))
	for i, w := range wire {
		if w.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be positive", i)
		}
		if w.UnitAmount < 0 {
			return nil, fmt.Errorf("item %d: negative unit amount", i)
		}
		if w.ProductID == nil && w.Name == "" {
			return nil, fmt.Errorf("item %d: needs a product id or name", i)
		}
		items = append(items, models.OrderItem{
			ProductID:      w.ProductID,
			ProductName:    w.Name,
			Quantity:       w.Quantity,
			UnitPriceCents: w.UnitAmount,
		})
	}
	return items, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
