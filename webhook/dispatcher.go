package webhook

import (
	"context"
	"errors"
	"fmt"

	"retail-svc/classifier"
	"retail-svc/middleware"
	"retail-svc/models"
	"retail-svc/orders"
	"retail-svc/payments"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Verifier interface {
	VerifyAndParse(payload []byte, signature string) (*payments.Delivery, error)
}

// EventLog is satisfied by *database.WebhookEventStore.
type EventLog interface {
	Record(ctx context.Context, e *models.WebhookEvent) error
	SessionProcessed(ctx context.Context, sessionID string) (bool, error)
}

type VoucherIssuer interface {
	Issue(ctx context.Context, p models.VoucherPurchase) (*models.Voucher, bool, error)
}

type BookingConfirmer interface {
	ConfirmPaid(ctx context.Context, p models.EventPurchase) (bool, error)
}

type OrderRecorder interface {
	Record(ctx context.Context, p models.StoreOrderPurchase) (orders.Result, error)
}

type Result struct {
	Outcome models.WebhookOutcome
	Detail  string
}

// Dispatcher turns verified payment notifications into domain records. Every
// delivery ends in a logged outcome; only authentication and parse failures
// are returned as errors.
type Dispatcher struct {
	verifier Verifier
	log      EventLog
	vouchers VoucherIssuer
	bookings BookingConfirmer
	orders   OrderRecorder
	logger   *zap.Logger
}

func NewDispatcher(verifier Verifier, log EventLog, vouchers VoucherIssuer, bookings BookingConfirmer,
	orders OrderRecorder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		verifier: verifier,
		log:      log,
		vouchers: vouchers,
		bookings: bookings,
		orders:   orders,
		logger:   logger,
	}
}

// Handle verifies a raw webhook delivery and processes it.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte, signature string) (Result, error) {
	delivery, err := d.verifier.VerifyAndParse(payload, signature)
	if err != nil {
		d.logger.Warn("Rejected webhook", zap.Error(err))
		return Result{}, err
	}

	if delivery.Notification == nil {
		res := Result{Outcome: models.WebhookIgnored}
		d.record(ctx, &models.WebhookEvent{
			EventID:   delivery.EventID,
			EventType: delivery.EventType,
			Outcome:   res.Outcome,
		})
		return res, nil
	}
	return d.Process(ctx, delivery.Notification), nil
}

// Process runs a successful-payment notification through the existence check,
// classification and the matching domain writer. It is safe to call again
// for the same session.
func (d *Dispatcher) Process(ctx context.Context, n *models.PaymentNotification) Result {
	ctx, span := otel.Tracer("retail-service").Start(ctx, "webhook.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.event_id", n.EventID),
		attribute.String("stripe.session_id", n.SessionID),
	)

	res := d.process(ctx, n)
	fields := []zap.Field{
		zap.String("stripe_event_id", n.EventID),
		zap.String("stripe_session_id", n.SessionID),
		zap.String("payment_intent_id", n.PaymentIntentID),
		zap.String("outcome", string(res.Outcome)),
	}
	switch res.Outcome {
	case models.WebhookFailed:
		d.logger.Error("Webhook processing failed", append(fields, zap.String("detail", res.Detail))...)
	case models.WebhookUnclassified:
		d.logger.Warn("Webhook could not be classified", append(fields, zap.String("detail", res.Detail))...)
	default:
		d.logger.Info("Webhook processed", fields...)
	}

	d.record(ctx, &models.WebhookEvent{
		EventID:         n.EventID,
		EventType:       n.EventType,
		StripeSessionID: n.SessionID,
		Outcome:         res.Outcome,
		Detail:          res.Detail,
	})
	return res
}

func (d *Dispatcher) process(ctx context.Context, n *models.PaymentNotification) Result {
	if n.SessionID != "" {
		seen, err := d.log.SessionProcessed(ctx, n.SessionID)
		if err != nil {
			return Result{Outcome: models.WebhookFailed, Detail: err.Error()}
		}
		if seen {
			return Result{Outcome: models.WebhookDuplicate}
		}
	}

	purchase, err := classifier.Classify(*n)
	if err != nil {
		return Result{Outcome: models.WebhookUnclassified, Detail: err.Error()}
	}

	created, detail, err := d.dispatch(ctx, purchase)
	if err != nil {
		return Result{Outcome: models.WebhookFailed, Detail: err.Error()}
	}
	if !created {
		return Result{Outcome: models.WebhookDuplicate}
	}
	return Result{Outcome: models.WebhookProcessed, Detail: detail}
}

func (d *Dispatcher) dispatch(ctx context.Context, purchase models.Purchase) (bool, string, error) {
	switch p := purchase.(type) {
	case models.VoucherPurchase:
		v, created, err := d.vouchers.Issue(ctx, p)
		if err != nil || !created {
			return false, "", err
		}
		return true, "voucher " + v.Code, nil
	case models.EventPurchase:
		created, err := d.bookings.ConfirmPaid(ctx, p)
		if err != nil || !created {
			return false, "", err
		}
		return true, "booking " + p.BookingID, nil
	case models.StoreOrderPurchase:
		res, err := d.orders.Record(ctx, p)
		if err != nil || !res.Created {
			return false, "", err
		}
		if res.Guest {
			return true, fmt.Sprintf("guest order %d", res.OrderID), nil
		}
		return true, fmt.Sprintf("order %d", res.OrderID), nil
	}
	return false, "", errors.New("unknown purchase kind")
}

func (d *Dispatcher) record(ctx context.Context, e *models.WebhookEvent) {
	middleware.RecordWebhookOutcome(string(e.Outcome))
	if e.EventID == "" {
		return
	}
	if err := d.log.Record(context.WithoutCancel(ctx), e); err != nil {
		d.logger.Error("Failed to record webhook outcome",
			zap.String("stripe_event_id", e.EventID),
			zap.String("stripe_session_id", e.StripeSessionID),
			zap.String("outcome", string(e.Outcome)),
			zap.Error(err),
		)
	}
}
