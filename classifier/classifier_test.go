package classifier

import (
	"errors"
	"testing"

	"retail-svc/models"
)

func notification(md map[string]string) models.PaymentNotification {
	return models.PaymentNotification{
		EventID:         "evt_1",
		EventType:       "checkout.session.completed",
		SessionID:       "cs_test_1",
		PaymentIntentID: "pi_1",
		AmountTotal:     2500,
		Currency:        "gbp",
		BuyerEmail:      "buyer@example.com",
		BuyerName:       "Buyer",
		Metadata:        md,
	}
}

func TestClassify_Voucher(t *testing.T) {
	p, err := Classify(notification(map[string]string{
		KeyKind:           "voucher",
		KeyDelivery:       "email_now",
		KeyRecipientEmail: "friend@example.com",
		KeyUserID:         "user-1",
	}))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}

	v, ok := p.(models.VoucherPurchase)
	if !ok {
		t.Fatalf("Expected VoucherPurchase, got %T", p)
	}
	if v.AmountCents != 2500 || v.BuyerEmail != "buyer@example.com" || v.RecipientEmail != "friend@example.com" {
		t.Errorf("Unexpected voucher purchase: %+v", v)
	}
}

func TestClassify_VoucherDetectedByDeliveryField(t *testing.T) {
	p, err := Classify(notification(map[string]string{KeyDelivery: "print"}))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if p.Kind() != models.KindVoucher {
		t.Errorf("Expected voucher kind, got %s", p.Kind())
	}
}

func TestClassify_KindIsAuthoritative(t *testing.T) {
	// A delivery field on an event notification does not make it a voucher.
	p, err := Classify(notification(map[string]string{
		KeyKind:      "event",
		KeyDelivery:  "email_now",
		KeyEventID:   "evt-42",
		KeyUserID:    "user-1",
		KeyBookingID: "b-1",
	}))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if p.Kind() != models.KindEvent {
		t.Errorf("Expected event kind, got %s", p.Kind())
	}

	// A user id on a voucher notification does not make it a store order.
	p, err = Classify(notification(map[string]string{KeyKind: "voucher", KeyDelivery: "print", KeyUserID: "user-1"}))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if p.Kind() != models.KindVoucher {
		t.Errorf("Expected voucher kind, got %s", p.Kind())
	}
}

func TestClassify_VoucherScheduleNeedsDate(t *testing.T) {
	_, err := Classify(notification(map[string]string{KeyKind: "voucher", KeyDelivery: "schedule"}))
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected classification error, got %v", err)
	}

	p, err := Classify(notification(map[string]string{
		KeyKind:         "voucher",
		KeyDelivery:     "schedule",
		KeyScheduledFor: "2026-12-24T09:00:00Z",
	}))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	v := p.(models.VoucherPurchase)
	if v.ScheduledFor == nil || v.ScheduledFor.Day() != 24 {
		t.Errorf("Expected scheduled date to be parsed, got %v", v.ScheduledFor)
	}
}

func TestClassify_VoucherUnknownDelivery(t *testing.T) {
	_, err := Classify(notification(map[string]string{KeyKind: "voucher", KeyDelivery: "pigeon"}))
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected classification error, got %v", err)
	}
}

func TestClassify_EventMissingFields(t *testing.T) {
	_, err := Classify(notification(map[string]string{KeyKind: "event", KeyEventID: "evt-42"}))

	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected classification error, got %v", err)
	}
	if cerr.Kind != models.KindEvent {
		t.Errorf("Expected event kind, got %s", cerr.Kind)
	}
	if len(cerr.Missing) != 2 {
		t.Errorf("Expected user_id and booking_id missing, got %v", cerr.Missing)
	}
}

func TestClassify_EventContactFallsBackToBuyer(t *testing.T) {
	p, err := Classify(notification(map[string]string{
		KeyKind:      "event",
		KeyEventID:   "evt-42",
		KeyUserID:    "user-1",
		KeyBookingID: "b-1",
		KeyHoldID:    "h-1",
	}))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	e := p.(models.EventPurchase)
	if e.ContactEmail != "buyer@example.com" || e.ContactName != "Buyer" || e.HoldID != "h-1" {
		t.Errorf("Unexpected event purchase: %+v", e)
	}
}

func TestClassify_StoreOrderSignedIn(t *testing.T) {
	p, err := Classify(notification(map[string]string{
		KeyUserID: "user-1",
		KeyItems:  `[{"product_id":7,"name":"Mug","quantity":2,"unit_amount":1250}]`,
	}))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	o := p.(models.StoreOrderPurchase)
	if o.Guest() {
		t.Error("Expected signed-in order")
	}
	if len(o.Items) != 1 || o.Items[0].ProductID == nil || *o.Items[0].ProductID != 7 {
		t.Errorf("Unexpected items: %+v", o.Items)
	}
}

func TestClassify_StoreOrderGuest(t *testing.T) {
	p, err := Classify(notification(map[string]string{
		KeyGuestToken: "anon-123",
		KeyItems:      `[{"name":"Poster","quantity":1,"unit_amount":900}]`,
	}))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	o := p.(models.StoreOrderPurchase)
	if !o.Guest() || o.Email != "buyer@example.com" {
		t.Errorf("Expected guest order with buyer email, got %+v", o)
	}
}

func TestClassify_StoreOrderUnattributable(t *testing.T) {
	n := notification(map[string]string{KeyItems: `[{"name":"Poster","quantity":1,"unit_amount":900}]`})
	n.BuyerEmail = ""

	if _, err := Classify(n); !errors.Is(err, ErrUnattributable) {
		t.Errorf("Expected ErrUnattributable, got %v", err)
	}
}

func TestClassify_StoreOrderBadItems(t *testing.T) {
	_, err := Classify(notification(map[string]string{
		KeyUserID: "user-1",
		KeyItems:  `[{"name":"Poster","quantity":0,"unit_amount":900}]`,
	}))
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Errorf("Expected classification error, got %v", err)
	}
}
