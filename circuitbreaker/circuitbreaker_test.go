package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errGateway = errors.New("gateway down")

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return errGateway }); !errors.Is(err, errGateway) {
			t.Fatalf("Expected gateway error, got %v", err)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open state, got %s", cb.GetState())
	}

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Function should not run while the circuit is open")
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 1, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errGateway })
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open state, got %s", cb.GetState())
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Execute(ctx, func() error { return nil }); err != nil {
		t.Fatalf("Expected success after reset timeout, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	errDeclined := errors.New("card declined")
	cb := NewCircuitBreaker("test", 1, time.Minute,
		WithFailurePredicate(func(err error) bool { return !errors.Is(err, errDeclined) }))

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errDeclined })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Business errors should not open the circuit, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cb.Execute(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
