package orders

import (
	"context"
	"fmt"
	"strings"

	"retail-svc/models"
	"retail-svc/notify"

	"go.uber.org/zap"
)

// Merger moves guest orders into an account once its owner signs in.
type Merger struct {
	store  Store
	tx     TxRunner
	events EventEmitter
	logger *zap.Logger
}

func NewMerger(store Store, tx TxRunner, events EventEmitter, logger *zap.Logger) *Merger {
	return &Merger{store: store, tx: tx, events: events, logger: logger}
}

// Merge converts every guest order placed with email into an order owned by
// userID, in one transaction. Running it again finds nothing left to move.
func (m *Merger) Merge(ctx context.Context, userID, email string) (int, error) {
	email = strings.TrimSpace(email)
	if userID == "" || email == "" {
		return 0, nil
	}

	merged := 0
	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		guests, err := m.store.LockGuestOrdersByEmail(ctx, email)
		if err != nil {
			return err
		}
		for _, g := range guests {
			items := make([]models.OrderItem, len(g.Items))
			for i, it := range g.Items {
				items[i] = models.OrderItem{
					ProductID:      it.ProductID,
					ProductName:    it.ProductName,
					Quantity:       it.Quantity,
					UnitPriceCents: it.UnitPriceCents,
				}
			}
			order := &models.Order{
				UserID:                userID,
				TotalCents:            g.TotalCents,
				Currency:              g.Currency,
				Status:                g.Status,
				StripeSessionID:       g.StripeSessionID,
				StripePaymentIntentID: g.StripePaymentIntentID,
				Items:                 items,
			}
			// A session can only be owned once; a conflict means an earlier
			// merge already copied it and only the guest row is left over.
			created, err := m.store.CreateOrder(ctx, order)
			if err != nil {
				return err
			}
			if err := m.store.DeleteGuestOrder(ctx, g.ID); err != nil {
				return err
			}
			if created {
				merged++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to merge guest orders: %w", err)
	}

	if merged > 0 {
		m.logger.Info("Guest orders merged", zap.String("user_id", userID), zap.Int("count", merged))
		if err := m.events.Emit(ctx, notify.Event{EventType: notify.EventOrdersMerged, UserID: userID}); err != nil {
			m.logger.Warn("Failed to publish event", zap.String("event_type", notify.EventOrdersMerged), zap.Error(err))
		}
	}
	return merged, nil
}
