package models

import "testing"

func TestEventBooking_State(t *testing.T) {
	tests := []struct {
		name    string
		booking EventBooking
		want    BookingState
	}{
		{"unpaid", EventBooking{}, BookingStateUnpaid},
		{"paid", EventBooking{Paid: true}, BookingStatePaid},
		{"requested", EventBooking{Paid: true, CancellationRequested: true}, BookingStateCancellationRequested},
		{"refunded", EventBooking{Paid: true, Cancelled: true, Refunded: true}, BookingStateRefunded},
		{"cancelled without refund", EventBooking{Cancelled: true}, BookingStateCancelledNoRefund},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.booking.State(); got != tt.want {
				t.Errorf("Expected state %s, got %s", tt.want, got)
			}
		})
	}
}

func TestVoucher_IsGift(t *testing.T) {
	v := Voucher{BuyerEmail: "buyer@example.com", RecipientEmail: " Buyer@Example.com"}
	if v.IsGift() {
		t.Error("Voucher addressed to the buyer should not be a gift")
	}

	v.RecipientEmail = "friend@example.com"
	if !v.IsGift() {
		t.Error("Voucher addressed to someone else should be a gift")
	}
	if v.DeliveryEmail() != "friend@example.com" {
		t.Errorf("Expected delivery to recipient, got %s", v.DeliveryEmail())
	}
}

func TestOrderTotal(t *testing.T) {
	items := []OrderItem{
		{Quantity: 2, UnitPriceCents: 1250},
		{Quantity: 1, UnitPriceCents: 500},
	}
	if got := OrderTotal(items); got != 3000 {
		t.Errorf("Expected total 3000, got %d", got)
	}
}
