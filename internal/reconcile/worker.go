package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// DoorTarget is polled for one locker until its door reads closed.
type DoorTarget interface {
	WatchDoor(ctx context.Context, id int64) (bool, error)
}

// WorkerPool watches released doors and records the moment they close.
type WorkerPool struct {
	size    int
	jobs    chan int64
	target  DoorTarget
	timeout time.Duration
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, target DoorTarget, timeout, poll time.Duration, logger *slog.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size*16),
		target:  target,
		timeout: timeout,
		poll:    poll,
		logger:  logger.With("component", "door-watcher"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug("worker started", "worker", id)
	for {
		select {
		case lockerID := <-wp.jobs:
			wp.watch(ctx, lockerID)
		case <-ctx.Done():
			wp.logger.Debug("worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues a locker for watching. It never blocks the caller: when the
// queue is full the job is dropped and the periodic reconciliation picks the
// door up instead.
func (wp *WorkerPool) Dispatch(lockerID int64) {
	select {
	case wp.jobs <- lockerID:
	default:
		wp.logger.Warn("watch queue full, dropping job", "locker", lockerID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

func (wp *WorkerPool) watch(ctx context.Context, lockerID int64) {
	ctx, cancel := context.WithTimeout(ctx, wp.timeout)
	defer cancel()

	ticker := time.NewTicker(wp.poll)
	defer ticker.Stop()

	for {
		closed, err := wp.target.WatchDoor(ctx, lockerID)
		switch {
		case err != nil:
			wp.logger.Warn("door poll failed", "locker", lockerID, "error", err)
		case closed:
			wp.logger.Info("door closed", "locker", lockerID)
			return
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				wp.logger.Warn("door still open after watch timeout", "locker", lockerID, "timeout", wp.timeout)
			}
			return
		case <-ticker.C:
		}
	}
}
