package idempotency

import (
	"context"
	"errors"
	"time"

	"retail-svc/models"

	"go.uber.org/zap"
)

var (
	// ErrInProgress is returned while another request holds the key.
	ErrInProgress = errors.New("request with this idempotency key is in progress")
	// ErrKeyMismatch is returned when a key is reused by a different caller.
	ErrKeyMismatch = errors.New("idempotency key belongs to a different caller")
	ErrMissingKey  = errors.New("idempotency key is required")
)

type Store interface {
	Claim(ctx context.Context, key, scope, principal string) (bool, error)
	Get(ctx context.Context, key, scope string) (*models.IdempotencyRecord, error)
	Complete(ctx context.Context, key, scope string, statusCode int, contentType string, body []byte) error
	Release(ctx context.Context, key, scope string) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Response is the stored result of a mutation, replayed byte for byte.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type Service struct {
	store     Store
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, retention time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Do runs fn at most once per (key, scope) within the retention window.
// The first caller's response is stored and returned to every later caller
// with replayed set. A failed fn, or a 5xx response, releases the key so the
// client can retry. A key left in progress is never re-run; it answers
// ErrInProgress until the retention purge removes it.
func (s *Service) Do(ctx context.Context, key, scope, principal string, fn func(ctx context.Context) (Response, error)) (Response, bool, error) {
	if key == "" {
		return Response{}, false, ErrMissingKey
	}

	claimed, err := s.store.Claim(ctx, key, scope, principal)
	if err != nil {
		return Response{}, false, err
	}

	if !claimed {
		rec, err := s.store.Get(ctx, key, scope)
		if errors.Is(err, models.ErrNotFound) {
			// Released between our claim and the read; the client may retry.
			return Response{}, false, ErrInProgress
		}
		if err != nil {
			return Response{}, false, err
		}
		if rec.Principal != principal {
			return Response{}, false, ErrKeyMismatch
		}
		if rec.Status != models.IdempotencyCompleted {
			return Response{}, false, ErrInProgress
		}
		return Response{StatusCode: rec.StatusCode, ContentType: rec.ContentType, Body: rec.Body}, true, nil
	}

	resp, err := fn(ctx)
	if err != nil || resp.StatusCode >= 500 {
		// The caller's context may already be done; release regardless.
		if relErr := s.store.Release(context.WithoutCancel(ctx), key, scope); relErr != nil {
			s.logger.Error("Failed to release idempotency key",
				zap.String("idempotency_key", key),
				zap.String("scope", scope),
				zap.Error(relErr),
			)
		}
		return resp, false, err
	}

	if err := s.store.Complete(context.WithoutCancel(ctx), key, scope, resp.StatusCode, resp.ContentType, resp.Body); err != nil {
		// The mutation happened, so the caller still gets its response. A
		// retry with this key sees it in progress and must not run again.
		s.logger.Error("Failed to store idempotent response",
			zap.String("idempotency_key", key),
			zap.String("scope", scope),
			zap.Error(err),
		)
	}
	return resp, false, nil
}

// Purge deletes records older than the retention window.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Purged idempotency records", zap.Int64("count", n))
	}
	return n, nil
}
