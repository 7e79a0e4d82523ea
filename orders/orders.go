package orders

import (
	"context"
	"fmt"

	"retail-svc/models"
	"retail-svc/notify"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Store interface {
	CreateOrder(ctx context.Context, o *models.Order) (bool, error)
	CreateGuestOrder(ctx context.Context, o *models.GuestOrder) (bool, error)
	UpdateReceipt(ctx context.Context, orderID int64, r models.Receipt) error
	ProductIDByName(ctx context.Context, name string) (*int64, error)
	LockGuestOrdersByEmail(ctx context.Context, email string) ([]models.GuestOrder, error)
	DeleteGuestOrder(ctx context.Context, id int64) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LoyaltyEarner is satisfied by *loyalty.Service.
type LoyaltyEarner interface {
	EarnForOrder(ctx context.Context, userID string, orderID, totalCents int64) (int64, error)
}

type ReceiptSource interface {
	Receipt(ctx context.Context, paymentIntentID string) (models.Receipt, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, ev notify.Event) error
}

// Result describes what Record did.
type Result struct {
	Created bool
	OrderID int64
	Guest   bool
}

type Writer struct {
	store    Store
	tx       TxRunner
	loyalty  LoyaltyEarner
	receipts ReceiptSource
	events   EventEmitter
	logger   *zap.Logger
}

func NewWriter(store Store, tx TxRunner, loyalty LoyaltyEarner, receipts ReceiptSource, events EventEmitter, logger *zap.Logger) *Writer {
	return &Writer{
		store:    store,
		tx:       tx,
		loyalty:  loyalty,
		receipts: receipts,
		events:   events,
		logger:   logger,
	}
}

// Record persists a paid store order exactly once per checkout session.
// Signed-in orders go to the account, others to the guest tables.
func (w *Writer) Record(ctx context.Context, p models.StoreOrderPurchase) (Result, error) {
	ctx, span := otel.Tracer("retail-service").Start(ctx, "orders.Record")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.session_id", p.SessionID),
		attribute.Bool("order.guest", p.Guest()),
	)

	items, err := w.resolveProducts(ctx, p.Items)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	total := p.AmountTotal
	if total <= 0 {
		total = models.OrderTotal(items)
	}

	if p.Guest() {
		return w.recordGuest(ctx, p, items, total)
	}

	order := &models.Order{
		UserID:                p.UserID,
		TotalCents:            total,
		Currency:              p.Currency,
		Status:                models.OrderStatusCompleted,
		StripeSessionID:       p.SessionID,
		StripePaymentIntentID: p.PaymentIntentID,
		Items:                 items,
	}

	var created bool
	err = w.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = w.store.CreateOrder(ctx, order)
		if err != nil || !created {
			return err
		}
		points, err := w.loyalty.EarnForOrder(ctx, order.UserID, order.ID, order.TotalCents)
		if err != nil {
			return fmt.Errorf("failed to award loyalty points: %w", err)
		}
		if points > 0 {
			w.logger.Info("Loyalty points earned",
				zap.String("user_id", order.UserID),
				zap.Int64("order_id", order.ID),
				zap.Int64("points", points),
			)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("failed to record order: %w", err)
	}
	if !created {
		return Result{Created: false}, nil
	}

	w.logger.Info("Order recorded",
		zap.Int64("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("stripe_session_id", p.SessionID),
		zap.Int64("total_cents", total),
	)

	w.backfillReceipt(ctx, order)
	w.emit(ctx, notify.Event{
		EventType:   notify.EventOrderCompleted,
		SessionID:   p.SessionID,
		OrderID:     order.ID,
		UserID:      order.UserID,
		AmountCents: total,
	})
	return Result{Created: true, OrderID: order.ID}, nil
}

func (w *Writer) recordGuest(ctx context.Context, p models.StoreOrderPurchase, items []models.OrderItem, total int64) (Result, error) {
	order := &models.GuestOrder{
		GuestToken:            p.GuestToken,
		Email:                 p.Email,
		TotalCents:            total,
		Currency:              p.Currency,
		Status:                models.OrderStatusCompleted,
		StripeSessionID:       p.SessionID,
		StripePaymentIntentID: p.PaymentIntentID,
		Items:                 items,
	}

	var created bool
	err := w.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = w.store.CreateGuestOrder(ctx, order)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to record guest order: %w", err)
	}
	if !created {
		return Result{Created: false, Guest: true}, nil
	}

	w.logger.Info("Guest order recorded",
		zap.Int64("order_id", order.ID),
		zap.String("stripe_session_id", p.SessionID),
		zap.Int64("total_cents", total),
	)
	w.emit(ctx, notify.Event{
		EventType:   notify.EventOrderCompleted,
		SessionID:   p.SessionID,
		OrderID:     order.ID,
		AmountCents: total,
	})
	return Result{Created: true, OrderID: order.ID, Guest: true}, nil
}

// resolveProducts links items that arrived without a product id by name.
// An unmatched name is kept as a free-text line.
func (w *Writer) resolveProducts(ctx context.Context, items []models.OrderItem) ([]models.OrderItem, error) {
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].ProductID != nil || out[i].ProductName == "" {
			continue
		}
		id, err := w.store.ProductIDByName(ctx, out[i].ProductName)
		if err != nil {
			return nil, err
		}
		if id == nil {
			w.logger.Warn("Order item has no matching product", zap.String("product_name", out[i].ProductName))
		}
		out[i].ProductID = id
	}
	return out, nil
}

// backfillReceipt copies receipt metadata from the gateway. The order is
// already committed, so failures are only logged.
func (w *Writer) backfillReceipt(ctx context.Context, order *models.Order) {
	if order.StripePaymentIntentID == "" {
		return
	}
	receipt, err := w.receipts.Receipt(ctx, order.StripePaymentIntentID)
	if err != nil {
		w.logger.Warn("Failed to fetch receipt",
			zap.Int64("order_id", order.ID),
			zap.String("payment_intent_id", order.StripePaymentIntentID),
			zap.Error(err),
		)
		return
	}
	if receipt.IsZero() {
		return
	}
	if err := w.store.UpdateReceipt(ctx, order.ID, receipt); err != nil {
		w.logger.Warn("Failed to save receipt", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	order.Receipt = receipt
}

func (w *Writer) emit(ctx context.Context, ev notify.Event) {
	if err := w.events.Emit(ctx, ev); err != nil {
		w.logger.Warn("Failed to publish event", zap.String("event_type", ev.EventType), zap.Error(err))
	}
}
