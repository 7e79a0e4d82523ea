package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestPeriodic_RunsUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	job := func(ctx context.Context) (int, error) {
		if calls.Add(1) == 2 {
			return 0, errors.New("transient")
		}
		return 1, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	p := NewPeriodic("test", 5*time.Millisecond, job, zaptest.NewLogger(t))
	go func() { done <- p.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected at least 3 runs, got %d", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Worker did not stop after cancel")
	}
}
