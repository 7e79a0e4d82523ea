package payments

import (
	"encoding/json"
	"fmt"

	"retail-svc/models"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"

	SignatureHeader = "Stripe-Signature"
)

// Verifier authenticates Stripe webhook deliveries against the endpoint secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Delivery is one authenticated webhook. Notification is nil for events the
// shop does not act on.
type Delivery struct {
	EventID      string
	EventType    string
	Notification *models.PaymentNotification
}

// VerifyAndParse authenticates the payload and extracts the successful
// checkout it describes, if any.
func (v *Verifier) VerifyAndParse(payload []byte, signature string) (*Delivery, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	d := &Delivery{EventID: event.ID, EventType: string(event.Type)}
	switch d.EventType {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded:
	default:
		return d, nil
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, event.ID)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	// Delayed payment methods complete the session before the money arrives;
	// the async_payment_succeeded event follows.
	if d.EventType == EventCheckoutCompleted && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return d, nil
	}

	n := notificationFromSession(&sess)
	n.EventID = d.EventID
	n.EventType = d.EventType
	d.Notification = n
	return d, nil
}

func notificationFromSession(sess *stripe.CheckoutSession) *models.PaymentNotification {
	n := &models.PaymentNotification{
		SessionID:   sess.ID,
		AmountTotal: sess.AmountTotal,
		Currency:    string(sess.Currency),
		BuyerEmail:  sess.CustomerEmail,
		Metadata:    sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		n.PaymentIntentID = sess.PaymentIntent.ID
	}
	if d := sess.CustomerDetails; d != nil {
		if d.Email != "" {
			n.BuyerEmail = d.Email
		}
		n.BuyerName = d.Name
	}
	if n.Metadata == nil {
		n.Metadata = map[string]string{}
	}
	return n
}
