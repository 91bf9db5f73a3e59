package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"literary-archive/internal/redis"
	"literary-archive/pkg/logger"

	"go.uber.org/zap"
)

// SweepLock lets one replica sweep at a time. TryLock returns
// redis.ErrLockHeld when another replica holds it.
type SweepLock interface {
	TryLock(ctx context.Context) (func(context.Context) error, error)
}

// CleanupWorker runs the cleanup job on a fixed interval.
type CleanupWorker struct {
	job      *CleanupService
	lock     SweepLock
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewCleanupWorker builds a worker. lock may be nil for single-replica runs.
func NewCleanupWorker(job *CleanupService, lock SweepLock, interval time.Duration, l *logger.Logger) *CleanupWorker {
	if l == nil {
		l = logger.NewNop()
	}
	return &CleanupWorker{
		job:      job,
		lock:     lock,
		interval: interval,
		timeout:  5 * time.Minute,
		log:      l,
		stopChan: make(chan struct{}),
	}
}

// Start begins the worker loop
func (w *CleanupWorker) Start() {
	if w.running || w.interval <= 0 {
		return
	}
	w.running = true
	w.wg.Add(1)
	go w.run()
}

// Stop waits for an in-flight sweep to finish.
func (w *CleanupWorker) Stop() {
	if !w.running {
		return
	}
	w.running = false
	close(w.stopChan)
	w.wg.Wait()
}

func (w *CleanupWorker) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *CleanupWorker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if w.lock != nil {
		release, err := w.lock.TryLock(ctx)
		if err != nil {
			if !errors.Is(err, redis.ErrLockHeld) {
				w.log.Error(ctx, "cleanup lock unavailable", zap.Error(err))
			}
			return
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				w.log.Warn(ctx, "cleanup lock release failed", zap.Error(err))
			}
		}()
	}

	if _, err := w.job.Run(ctx); err != nil {
		w.log.Error(ctx, "scheduled cleanup failed", zap.Error(err))
	}
}
