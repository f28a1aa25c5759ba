// Package reconcile keeps persisted door states in line with the sensors.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/locker"
)

// Target is the lifecycle surface the reconciler drives.
type Target interface {
	DoorTarget
	Reconcile(ctx context.Context) ([]locker.Drift, error)
}

// Service sweeps every sensor on an interval and watches freshly released
// doors in between.
type Service struct {
	cfg        config.ReconcileConfig
	target     Target
	logger     *slog.Logger
	workerPool *WorkerPool
}

// NewService creates the reconciler and its door-watch pool.
func NewService(cfg config.ReconcileConfig, target Target, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		target:     target,
		logger:     logger.With("component", "reconcile"),
		workerPool: NewWorkerPool(cfg.Workers, target, cfg.WatchTimeout, cfg.WatchPoll, logger),
	}
}

// Watcher returns the pool that lifecycle operations dispatch released doors to.
func (s *Service) Watcher() *WorkerPool {
	return s.workerPool
}

// Run starts the watch pool, reconciles once immediately and then on every
// interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("starting reconciler", "interval", s.cfg.Interval, "workers", s.workerPool.size)
	s.workerPool.Start(ctx)

	s.ReconcileOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciler shutting down")
			return
		case <-timer.C:
			s.ReconcileOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// ReconcileOnce runs a single sweep. Failures are logged; the next tick retries.
func (s *Service) ReconcileOnce(ctx context.Context) []locker.Drift {
	drifts, err := s.target.Reconcile(ctx)
	if err != nil {
		s.logger.Warn("reconcile sweep failed", "error", err)
		return nil
	}
	if len(drifts) > 0 {
		s.logger.Info("reconciled door states", "changed", len(drifts))
	}
	return drifts
}
