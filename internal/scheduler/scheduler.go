package scheduler

import (
	"context"
	"log/slog"
	"time"

	"musicfeed/internal/domain"
)

// Sweeper refreshes every artist with stale content.
type Sweeper interface {
	Sweep(ctx context.Context) (*domain.SweepStats, error)
}

type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		timeout:  interval,
		logger:   logger,
	}
}

// Start sweeps once immediately, then every interval until ctx is done.
// A sweep may run at most one interval so ticks never pile up.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats, err := s.sweeper.Sweep(sweepCtx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	s.logger.Info("sweep finished",
		"artists", stats.Artists,
		"refreshed", stats.Refreshed,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)
}
