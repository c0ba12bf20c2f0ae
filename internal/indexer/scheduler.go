package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/guestlytics/insight-go/internal/logging"
)

// DefaultSyncInterval is how often the scheduler triggers a sync run.
const DefaultSyncInterval = 24 * time.Hour

// Scheduler triggers sync runs on a fixed interval. A tick that lands while
// a run is still in progress is skipped by the worker's busy guard.
type Scheduler struct {
	worker   *Worker
	interval time.Duration
	runFirst bool

	stop chan struct{}
	done chan struct{}
}

// NewScheduler constructs a scheduler. When runFirst is true the first sync
// starts immediately instead of waiting a full interval.
func NewScheduler(worker *Worker, interval time.Duration, runFirst bool) *Scheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Scheduler{
		worker:   worker,
		interval: interval,
		runFirst: runFirst,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the scheduling loop in its own goroutine. ctx carries the
// logger and cancels in-flight runs on shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the loop and waits for it to exit. An in-flight run finishes
// under its own context.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	log := logging.FromContext(ctx)

	if s.runFirst {
		s.runOnce(ctx, log)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, log)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, log *slog.Logger) {
	if err := s.worker.RunSync(ctx); err != nil && !errors.Is(err, ErrSyncRunning) {
		log.Error("scheduled sync failed", slog.Any("error", err))
	}
}
