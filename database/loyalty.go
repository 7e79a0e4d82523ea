package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"retail-svc/models"
)

type LoyaltyStore struct {
	db *sql.DB
}

func NewLoyaltyStore(db *sql.DB) *LoyaltyStore {
	return &LoyaltyStore{db: db}
}

// EnsureMember creates the membership row if missing.
func (s *LoyaltyStore) EnsureMember(ctx context.Context, userID string) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		"INSERT INTO loyalty_members (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING",
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert loyalty member: %w", err)
	}
	return nil
}

func (s *LoyaltyStore) IsMember(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := conn(ctx, s.db).QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM loyalty_members WHERE user_id = $1)",
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check loyalty member: %w", err)
	}
	return exists, nil
}

// AddEntry appends e to the ledger. An entry with the same user, type and
// source is written at most once; the repeat reports false.
func (s *LoyaltyStore) AddEntry(ctx context.Context, e *models.LoyaltyEntry) (bool, error) {
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`INSERT INTO loyalty_ledger (user_id, points, entry_type, source, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, entry_type, source) DO NOTHING
		 RETURNING id, created_at`,
		e.UserID, e.Points, e.Type, e.Source, metadata,
	).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert loyalty entry: %w", err)
	}
	return true, nil
}

func (s *LoyaltyStore) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := conn(ctx, s.db).QueryRowContext(ctx,
		"SELECT COALESCE(SUM(points), 0) FROM loyalty_ledger WHERE user_id = $1",
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to sum loyalty ledger: %w", err)
	}
	return balance, nil
}
