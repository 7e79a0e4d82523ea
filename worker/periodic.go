package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of background work. It reports how many items it handled.
type Job func(ctx context.Context) (int, error)

// Periodic runs a job on a fixed interval until its context is cancelled.
type Periodic struct {
	name     string
	interval time.Duration
	job      Job
	logger   *zap.Logger
}

func NewPeriodic(name string, interval time.Duration, job Job, logger *zap.Logger) *Periodic {
	return &Periodic{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger.With(zap.String("worker", name)),
	}
}

// Run blocks until ctx is done. A failing run is logged and retried on the
// next tick.
func (p *Periodic) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("Worker started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Worker stopped")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Periodic) tick(ctx context.Context) {
	start := time.Now()
	n, err := p.job(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("Worker run failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("Worker run finished",
			zap.Int("items", n),
			zap.Duration("took", time.Since(start)),
		)
	}
}
