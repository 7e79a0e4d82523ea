package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"retail-svc/models"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"
)

type recordedPublish struct {
	topic string
	key   string
	value any
}

type fakePublisher struct {
	published []recordedPublish
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, topic, key string, value any) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, recordedPublish{topic, key, value})
	return nil
}

func TestMailer_Send(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMailer(pub, "notification_events")

	if err := m.Send(context.Background(), Message{Kind: "x", To: "a@example.com"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pub.published) != 1 || pub.published[0].topic != "notification_events" || pub.published[0].key != "a@example.com" {
		t.Fatalf("Unexpected publish: %+v", pub.published)
	}
	if msg := pub.published[0].value.(Message); msg.SentAt.IsZero() {
		t.Error("Expected SentAt to be stamped")
	}

	if err := m.Send(context.Background(), Message{Kind: "x"}); err == nil {
		t.Error("Expected error for missing recipient")
	}

	pub.err = errors.New("broker down")
	if err := m.Send(context.Background(), Message{Kind: "x", To: "a@example.com"}); err == nil {
		t.Error("Expected publish error to surface")
	}
}

func testVoucher() *models.Voucher {
	return &models.Voucher{
		Code:           "ABCD-EFGH-JKMN",
		InitialCents:   2500,
		Currency:       "gbp",
		BuyerName:      "Alex",
		BuyerEmail:     "alex@example.com",
		RecipientName:  "Sam",
		RecipientEmail: "sam@example.com",
		DeliveryMode:   models.DeliveryEmailNow,
		ExpiresAt:      time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestVoucherReceipt_GiftOmitsCode(t *testing.T) {
	v := testVoucher()

	receipt := VoucherReceipt(v)
	if receipt.To != "alex@example.com" {
		t.Errorf("Expected receipt to buyer, got %s", receipt.To)
	}
	if strings.Contains(receipt.Body, v.Code) {
		t.Error("Gift receipt must not contain the voucher code")
	}

	delivery := VoucherDelivery(v)
	if delivery.To != "sam@example.com" || !strings.Contains(delivery.Body, v.Code) {
		t.Errorf("Expected code delivered to recipient, got %+v", delivery)
	}
}

func TestVoucherReceipt_SelfPurchaseIncludesCode(t *testing.T) {
	v := testVoucher()
	v.RecipientEmail = ""
	v.RecipientName = ""

	if receipt := VoucherReceipt(v); !strings.Contains(receipt.Body, v.Code) {
		t.Error("Receipt for a self purchase should contain the code")
	}
	if delivery := VoucherDelivery(v); delivery.To != "alex@example.com" {
		t.Errorf("Expected delivery to buyer, got %s", delivery.To)
	}
}

func TestVoucherReceipt_GiftPrintOmitsCode(t *testing.T) {
	v := testVoucher()
	v.DeliveryMode = models.DeliveryPrint

	receipt := VoucherReceipt(v)
	if strings.Contains(receipt.Body, v.Code) {
		t.Errorf("Gift print receipt must not contain the voucher code, got %q", receipt.Body)
	}
	if !strings.Contains(receipt.Body, "sent separately") {
		t.Errorf("Expected receipt to point at the printable voucher, got %q", receipt.Body)
	}
}

func TestVoucherPrint_GoesToBuyer(t *testing.T) {
	v := testVoucher()
	v.DeliveryMode = models.DeliveryPrint

	msg := VoucherPrint(v)
	if msg.To != "alex@example.com" || !strings.Contains(msg.Body, v.Code) {
		t.Errorf("Expected printable voucher for buyer, got %+v", msg)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(2505, "gbp"); got != "£25.05" {
		t.Errorf("Expected £25.05, got %s", got)
	}
	if got := FormatAmount(100, "chf"); got != "CHF 1.00" {
		t.Errorf("Expected CHF 1.00, got %s", got)
	}
}

func TestDeliverer_Handle(t *testing.T) {
	d := NewDeliverer(zaptest.NewLogger(t))

	err := d.Handle(context.Background(), &sarama.ConsumerMessage{
		Value: []byte(`{"kind":"voucher_receipt","to":"alex@example.com","subject":"s","body":"b"}`),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := d.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte(`not json`)}); err == nil {
		t.Error("Expected error for malformed message")
	}
}
