package webhook

import (
	"context"
	"errors"
	"testing"

	"retail-svc/models"
	"retail-svc/orders"
	"retail-svc/payments"

	"go.uber.org/zap/zaptest"
)

type fakeVerifier struct {
	delivery *payments.Delivery
	err      error
}

func (f *fakeVerifier) VerifyAndParse(payload []byte, signature string) (*payments.Delivery, error) {
	return f.delivery, f.err
}

type fakeLog struct {
	records  []models.WebhookEvent
	sessions map[string]bool
	err      error
}

func (f *fakeLog) Record(ctx context.Context, e *models.WebhookEvent) error {
	f.records = append(f.records, *e)
	return nil
}

func (f *fakeLog) SessionProcessed(ctx context.Context, sessionID string) (bool, error) {
	return f.sessions[sessionID], f.err
}

type fakeVouchers struct {
	calls   int
	created bool
}

func (f *fakeVouchers) Issue(ctx context.Context, p models.VoucherPurchase) (*models.Voucher, bool, error) {
	f.calls++
	if !f.created {
		return nil, false, nil
	}
	return &models.Voucher{Code: "ABCD-EFGH-JKMN", StripeSessionID: p.SessionID}, true, nil
}

type fakeBookings struct {
	got models.EventPurchase
	err error
}

func (f *fakeBookings) ConfirmPaid(ctx context.Context, p models.EventPurchase) (bool, error) {
	f.got = p
	return f.err == nil, f.err
}

type fakeOrders struct {
	got models.StoreOrderPurchase
}

func (f *fakeOrders) Record(ctx context.Context, p models.StoreOrderPurchase) (orders.Result, error) {
	f.got = p
	return orders.Result{Created: true, OrderID: 7, Guest: p.Guest()}, nil
}

type fixture struct {
	d        *Dispatcher
	verifier *fakeVerifier
	log      *fakeLog
	vouchers *fakeVouchers
	bookings *fakeBookings
	orders   *fakeOrders
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		verifier: &fakeVerifier{},
		log:      &fakeLog{sessions: map[string]bool{}},
		vouchers: &fakeVouchers{created: true},
		bookings: &fakeBookings{},
		orders:   &fakeOrders{},
	}
	f.d = NewDispatcher(f.verifier, f.log, f.vouchers, f.bookings, f.orders, zaptest.NewLogger(t))
	return f
}

func notification(md map[string]string) *models.PaymentNotification {
	return &models.PaymentNotification{
		EventID:         "evt_1",
		EventType:       payments.EventCheckoutCompleted,
		SessionID:       "cs_1",
		PaymentIntentID: "pi_1",
		AmountTotal:     2500,
		Currency:        "gbp",
		BuyerEmail:      "buyer@example.com",
		Metadata:        md,
	}
}

func TestHandle_InvalidSignature(t *testing.T) {
	f := newFixture(t)
	f.verifier.err = payments.ErrInvalidSignature

	if _, err := f.d.Handle(context.Background(), []byte("{}"), "bad"); !errors.Is(err, payments.ErrInvalidSignature) {
		t.Fatalf("Expected ErrInvalidSignature, got %v", err)
	}
	if len(f.log.records) != 0 {
		t.Error("Expected rejected delivery not to be recorded")
	}
}

func TestHandle_IgnoredType(t *testing.T) {
	f := newFixture(t)
	f.verifier.delivery = &payments.Delivery{EventID: "evt_9", EventType: "charge.refunded"}

	res, err := f.d.Handle(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.Outcome != models.WebhookIgnored {
		t.Errorf("Expected ignored, got %s", res.Outcome)
	}
	if len(f.log.records) != 1 || f.log.records[0].EventID != "evt_9" {
		t.Errorf("Expected ignored delivery to be recorded, got %+v", f.log.records)
	}
}

func TestProcess_Routing(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		check    func(t *testing.T, f *fixture)
	}{
		{
			name:     "voucher",
			metadata: map[string]string{"kind": "voucher", "delivery": "email_now", "user_id": "user-1"},
			check: func(t *testing.T, f *fixture) {
				if f.vouchers.calls != 1 {
					t.Errorf("Expected voucher issue, got %d calls", f.vouchers.calls)
				}
			},
		},
		{
			name:     "event",
			metadata: map[string]string{"kind": "event", "event_id": "evt-1", "user_id": "user-1", "booking_id": "bk-1"},
			check: func(t *testing.T, f *fixture) {
				if f.bookings.got.BookingID != "bk-1" || f.bookings.got.ContactEmail != "buyer@example.com" {
					t.Errorf("Unexpected event purchase %+v", f.bookings.got)
				}
			},
		},
		{
			name:     "guest store order",
			metadata: map[string]string{"guest_token": "g-1", "items": `[{"product_id":3,"name":"Mug","quantity":1,"unit_amount":2500}]`},
			check: func(t *testing.T, f *fixture) {
				if !f.orders.got.Guest() || f.orders.got.Email != "buyer@example.com" {
					t.Errorf("Unexpected store purchase %+v", f.orders.got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.d.Process(context.Background(), notification(tt.metadata))
			if res.Outcome != models.WebhookProcessed {
				t.Fatalf("Expected processed, got %s (%s)", res.Outcome, res.Detail)
			}
			tt.check(t, f)
			if len(f.log.records) != 1 || f.log.records[0].Outcome != models.WebhookProcessed {
				t.Errorf("Expected processed outcome recorded, got %+v", f.log.records)
			}
		})
	}
}

func TestProcess_DuplicateSession(t *testing.T) {
	f := newFixture(t)
	f.log.sessions["cs_1"] = true

	res := f.d.Process(context.Background(), notification(map[string]string{"kind": "voucher", "delivery": "print"}))
	if res.Outcome != models.WebhookDuplicate {
		t.Fatalf("Expected duplicate, got %s", res.Outcome)
	}
	if f.vouchers.calls != 0 {
		t.Error("Expected no domain work for a processed session")
	}
}

func TestProcess_LostInsertRaceIsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.vouchers.created = false

	res := f.d.Process(context.Background(), notification(map[string]string{"kind": "voucher", "delivery": "print"}))
	if res.Outcome != models.WebhookDuplicate {
		t.Fatalf("Expected duplicate, got %s", res.Outcome)
	}
}

func TestProcess_Unclassified(t *testing.T) {
	f := newFixture(t)

	res := f.d.Process(context.Background(), notification(map[string]string{"kind": "event", "event_id": "evt-1"}))
	if res.Outcome != models.WebhookUnclassified {
		t.Fatalf("Expected unclassified, got %s", res.Outcome)
	}
	if res.Detail == "" {
		t.Error("Expected detail naming the missing fields")
	}
	if f.bookings.got.EventID != "" {
		t.Error("Expected no booking for an unclassified notification")
	}
}

func TestProcess_DomainFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.bookings.err = errors.New("event not found")

	res := f.d.Process(context.Background(), notification(map[string]string{
		"kind": "event", "event_id": "evt-1", "user_id": "user-1", "booking_id": "bk-1",
	}))
	if res.Outcome != models.WebhookFailed {
		t.Fatalf("Expected failed, got %s", res.Outcome)
	}
	if len(f.log.records) != 1 || f.log.records[0].Outcome != models.WebhookFailed || f.log.records[0].StripeSessionID != "cs_1" {
		t.Errorf("Expected failure to be recorded with session id, got %+v", f.log.records)
	}
}
