package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"retail-svc/models"
)

type IdempotencyStore struct {
	db *sql.DB
}

func NewIdempotencyStore(db *sql.DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Claim takes ownership of (key, scope). It reports false when the key
// already exists, whatever its state; an existing claim is never taken over.
func (s *IdempotencyStore) Claim(ctx context.Context, key, scope, principal string) (bool, error) {
	var claimed string
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`INSERT INTO idempotency_keys (key, scope, principal, status, created_at)
		 VALUES ($1, $2, $3, 'in_progress', CURRENT_TIMESTAMP)
		 ON CONFLICT (key, scope) DO NOTHING
		 RETURNING key`,
		key, scope, principal,
	).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return true, nil
}

func (s *IdempotencyStore) Get(ctx context.Context, key, scope string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	var statusCode sql.NullInt64
	var contentType sql.NullString
	var completedAt sql.NullTime
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT key, scope, principal, status, status_code, content_type, body, created_at, completed_at
		 FROM idempotency_keys WHERE key = $1 AND scope = $2`,
		key, scope,
	).Scan(&rec.Key, &rec.Scope, &rec.Principal, &rec.Status, &statusCode, &contentType, &rec.Body,
		&rec.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	rec.StatusCode = int(statusCode.Int64)
	rec.ContentType = contentType.String
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// Complete stores the response for replay.
func (s *IdempotencyStore) Complete(ctx context.Context, key, scope string, statusCode int, contentType string, body []byte) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE idempotency_keys
		 SET status = 'completed', status_code = $3, content_type = $4, body = $5, completed_at = CURRENT_TIMESTAMP
		 WHERE key = $1 AND scope = $2`,
		key, scope, statusCode, contentType, body,
	)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release drops an in-progress claim so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, key, scope string) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		"DELETE FROM idempotency_keys WHERE key = $1 AND scope = $2 AND status = 'in_progress'",
		key, scope,
	)
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// PurgeBefore deletes records created before cutoff.
func (s *IdempotencyStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := conn(ctx, s.db).ExecContext(ctx,
		"DELETE FROM idempotency_keys WHERE created_at < $1",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency keys: %w", err)
	}
	return res.RowsAffected()
}
