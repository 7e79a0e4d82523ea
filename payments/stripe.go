package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"retail-svc/circuitbreaker"
	"retail-svc/models"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

// CheckoutRequest describes a single-line hosted checkout.
type CheckoutRequest struct {
	ProductName   string
	Description   string
	AmountCents   int64
	Currency      string
	Quantity      int64
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
	ExpiresAt     time.Time
}

type CheckoutSession struct {
	ID  string
	URL string
}

// StripeGateway is the only place the shop talks to Stripe's API.
type StripeGateway struct {
	client  *client.API
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewStripeGateway(apiKey string, logger *zap.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)

	return &StripeGateway{
		client: sc,
		breaker: circuitbreaker.NewCircuitBreaker("stripe", 5, 30*time.Second,
			circuitbreaker.WithFailurePredicate(IsRetryable),
			circuitbreaker.WithLogger(logger),
		),
		logger: logger,
	}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
				Quantity: stripe.Int64(quantity),
			},
		},
		Metadata: req.Metadata,
	}
	if req.Description != "" {
		params.LineItems[0].PriceData.ProductData.Description = stripe.String(req.Description)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.Context = ctx

	var sess *stripe.CheckoutSession
	err := g.breaker.Execute(ctx, func() error {
		var err error
		sess, err = g.client.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return nil, g.mapStripeError(err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// Refund refunds a payment intent in full. The idempotency key makes a retry
// after a lost response return the original refund instead of a second one.
func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID, idempotencyKey string) (string, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.IdempotencyKey = stripe.String(idempotencyKey)
	params.Context = ctx

	var r *stripe.Refund
	err := g.breaker.Execute(ctx, func() error {
		var err error
		r, err = g.client.Refunds.New(params)
		return err
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			g.logger.Warn("Payment already refunded at gateway", zap.String("payment_intent_id", paymentIntentID))
			return "", nil
		}
		return "", g.mapStripeError(err)
	}

	switch r.Status {
	case stripe.RefundStatusSucceeded, stripe.RefundStatusPending:
		return r.ID, nil
	default:
		return "", fmt.Errorf("%w: refund %s is %s", ErrRefundFailed, r.ID, r.Status)
	}
}

// PaymentIntentForSession resolves the payment reference of a checkout session.
func (g *StripeGateway) PaymentIntentForSession(ctx context.Context, sessionID string) (string, error) {
	sess, err := g.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.PaymentIntentID == "" {
		return "", fmt.Errorf("%w: session %s has no payment intent", ErrNotFound, sessionID)
	}
	return sess.PaymentIntentID, nil
}

// GetSession fetches a paid checkout session and normalizes it like a webhook
// delivery, so operators can replay a missed notification.
func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (*models.PaymentNotification, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	var sess *stripe.CheckoutSession
	err := g.breaker.Execute(ctx, func() error {
		var err error
		sess, err = g.client.CheckoutSessions.Get(sessionID, params)
		return err
	})
	if err != nil {
		return nil, g.mapStripeError(err)
	}
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return nil, fmt.Errorf("%w: session %s", ErrNotPaid, sess.ID)
	}
	n := notificationFromSession(sess)
	n.EventID = "replay:" + sess.ID
	n.EventType = EventCheckoutCompleted
	return n, nil
}

// Receipt looks up the receipt metadata of the payment intent's latest charge.
func (g *StripeGateway) Receipt(ctx context.Context, paymentIntentID string) (models.Receipt, error) {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge")
	params.Context = ctx

	var pi *stripe.PaymentIntent
	err := g.breaker.Execute(ctx, func() error {
		var err error
		pi, err = g.client.PaymentIntents.Get(paymentIntentID, params)
		return err
	})
	if err != nil {
		return models.Receipt{}, g.mapStripeError(err)
	}

	var receipt models.Receipt
	if ch := pi.LatestCharge; ch != nil {
		receipt.URL = ch.ReceiptURL
		if ch.PaymentMethodDetails != nil && ch.PaymentMethodDetails.Card != nil {
			receipt.CardBrand = string(ch.PaymentMethodDetails.Card.Brand)
			receipt.CardLast4 = ch.PaymentMethodDetails.Card.Last4
		}
		if ch.Created > 0 {
			paidAt := time.Unix(ch.Created, 0).UTC()
			receipt.PaidAt = &paidAt
		}
	}
	return receipt, nil
}

func (g *StripeGateway) mapStripeError(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", ErrNotFound, stripeErr.Msg)
		}
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", ErrProviderDown, stripeErr.Msg)
		}
	}
	return fmt.Errorf("stripe request failed: %w", err)
}
