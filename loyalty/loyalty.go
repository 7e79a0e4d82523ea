package loyalty

import (
	"context"
	"errors"
	"fmt"

	"retail-svc/models"

	"go.uber.org/zap"
)

const (
	SourceOptIn = "opt_in"

	// PointsPerUnit is earned per whole currency unit spent.
	PointsPerUnit = 1
)

var ErrNotMember = errors.New("user is not a loyalty member")

type Store interface {
	EnsureMember(ctx context.Context, userID string) error
	IsMember(ctx context.Context, userID string) (bool, error)
	AddEntry(ctx context.Context, e *models.LoyaltyEntry) (bool, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	store     Store
	tx        TxRunner
	joinBonus int64
	logger    *zap.Logger
}

func NewService(store Store, tx TxRunner, joinBonus int64, logger *zap.Logger) *Service {
	return &Service{store: store, tx: tx, joinBonus: joinBonus, logger: logger}
}

// OptIn enrolls the user and awards the join bonus once. Repeating it is
// harmless and returns the current balance.
func (s *Service) OptIn(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.EnsureMember(ctx, userID); err != nil {
			return err
		}
		awarded, err := s.store.AddEntry(ctx, &models.LoyaltyEntry{
			UserID: userID,
			Points: s.joinBonus,
			Type:   models.LoyaltyJoinBonus,
			Source: SourceOptIn,
		})
		if err != nil {
			return err
		}
		if awarded {
			s.logger.Info("Loyalty member joined", zap.String("user_id", userID), zap.Int64("points", s.joinBonus))
		}
		balance, err = s.store.Balance(ctx, userID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to opt in: %w", err)
	}
	return balance, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	member, err := s.store.IsMember(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !member {
		return 0, ErrNotMember
	}
	return s.store.Balance(ctx, userID)
}

// EarnForOrder credits a member for a completed order. Non-members earn
// nothing. Call it inside the order's transaction.
func (s *Service) EarnForOrder(ctx context.Context, userID string, orderID, totalCents int64) (int64, error) {
	member, err := s.store.IsMember(ctx, userID)
	if err != nil {
		return 0, err
	}
	points := totalCents / 100 * PointsPerUnit
	if !member || points <= 0 {
		return 0, nil
	}

	awarded, err := s.store.AddEntry(ctx, &models.LoyaltyEntry{
		UserID: userID,
		Points: points,
		Type:   models.LoyaltyPurchaseEarn,
		Source: fmt.Sprintf("order:%d", orderID),
	})
	if err != nil {
		return 0, err
	}
	if !awarded {
		return 0, nil
	}
	return points, nil
}
