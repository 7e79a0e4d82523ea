package notify

import (
	"fmt"
	"strings"

	"retail-svc/models"
)

const (
	KindBookingConfirmation = "booking_confirmation"
	KindBookingCancelled    = "booking_cancelled"
	KindVoucherDelivery     = "voucher_delivery"
	KindVoucherPrint        = "voucher_print"
	KindVoucherReceipt      = "voucher_receipt"
)

// FormatAmount renders minor units like "£25.00".
func FormatAmount(cents int64, currency string) string {
	symbol := strings.ToUpper(currency) + " "
	switch strings.ToLower(currency) {
	case "gbp":
		symbol = "£"
	case "usd":
		symbol = "$"
	case "eur":
		symbol = "€"
	}
	return fmt.Sprintf("%s%d.%02d", symbol, cents/100, cents%100)
}

func BookingConfirmation(b *models.EventBooking, e *models.Event) Message {
	return Message{
		Kind:    KindBookingConfirmation,
		To:      b.ContactEmail,
		Subject: fmt.Sprintf("You're booked: %s", e.Title),
		Body: fmt.Sprintf("Hi %s,\n\nYour place at %s on %s is confirmed.\nBooking reference: %s\n",
			b.ContactName, e.Title, e.StartsAt.Format("Mon 2 Jan 2006 15:04"), b.ID),
		Ref: b.ID,
	}
}

func BookingCancelled(b *models.EventBooking, e *models.Event) Message {
	body := fmt.Sprintf("Hi %s,\n\nYour booking for %s has been cancelled.\n", b.ContactName, e.Title)
	if b.Refunded {
		body += fmt.Sprintf("A refund of %s is on its way to your original payment method.\n",
			FormatAmount(e.PriceCents, e.Currency))
	}
	return Message{
		Kind:    KindBookingCancelled,
		To:      b.ContactEmail,
		Subject: fmt.Sprintf("Booking cancelled: %s", e.Title),
		Body:    body,
		Ref:     b.ID,
	}
}

// VoucherDelivery carries the redeemable code to whoever should hold it.
func VoucherDelivery(v *models.Voucher) Message {
	name := v.RecipientName
	if name == "" {
		name = v.BuyerName
	}
	body := fmt.Sprintf("Hi %s,\n\n", name)
	if v.IsGift() {
		body += fmt.Sprintf("%s has sent you a gift voucher.\n", v.BuyerName)
	}
	if v.Message != "" {
		body += fmt.Sprintf("\n\"%s\"\n", v.Message)
	}
	body += fmt.Sprintf("\nValue: %s\nCode: %s\nValid until: %s\n",
		FormatAmount(v.InitialCents, v.Currency), v.Code, v.ExpiresAt.Format("2 Jan 2006"))

	return Message{
		Kind:    KindVoucherDelivery,
		To:      v.DeliveryEmail(),
		Subject: "Your gift voucher",
		Body:    body,
		Ref:     v.Code,
	}
}

// VoucherPrint sends the buyer a printable artifact of the voucher.
func VoucherPrint(v *models.Voucher) Message {
	msg := VoucherDelivery(v)
	msg.Kind = KindVoucherPrint
	msg.To = v.BuyerEmail
	msg.Subject = "Your printable gift voucher"
	return msg
}

// VoucherReceipt confirms the purchase to the buyer. A gift receipt leaves
// out the code so the buyer cannot spend the recipient's voucher by accident.
func VoucherReceipt(v *models.Voucher) Message {
	body := fmt.Sprintf("Hi %s,\n\nThanks for buying a %s voucher.\n",
		v.BuyerName, FormatAmount(v.InitialCents, v.Currency))

	switch {
	case v.IsGift() && v.DeliveryMode == models.DeliverySchedule && v.ScheduledFor != nil:
		body += fmt.Sprintf("We'll send it to %s on %s.\n", v.RecipientEmail, v.ScheduledFor.Format("2 Jan 2006"))
	case v.IsGift() && v.DeliveryMode == models.DeliveryPrint:
		who := v.RecipientName
		if who == "" {
			who = v.RecipientEmail
		}
		body += fmt.Sprintf("Your printable voucher for %s was sent separately.\n", who)
	case v.IsGift():
		body += fmt.Sprintf("We've sent it to %s.\n", v.RecipientEmail)
	default:
		body += fmt.Sprintf("Code: %s\n", v.Code)
	}

	return Message{
		Kind:    KindVoucherReceipt,
		To:      v.BuyerEmail,
		Subject: "Your voucher receipt",
		Body:    body,
		Ref:     v.StripeSessionID,
	}
}
