package background

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"
)

// Scheduler implements cachekey.BackgroundScheduler: Schedule runs fn on a
// goroutine bounded by the same concurrency discipline as Pool, rather than
// spawning unbounded goroutines under load (§5 "background tasks ... swallow
// errors after logging").
type Scheduler struct {
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewScheduler builds a Scheduler allowing up to maxConcurrent in-flight
// background fire-and-forget calls at once.
func NewScheduler(maxConcurrent int, logger *slog.Logger) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{sem: semaphore.NewWeighted(int64(maxConcurrent)), logger: logger}
}

// Schedule runs fn in a new goroutine once a concurrency slot is free. If
// the caller's context is already done, fn still runs with a detached
// background context — the whole point of scheduling is to outlive the
// request that triggered it (§5, §9).
func (s *Scheduler) Schedule(fn func(ctx context.Context)) {
	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		s.logger.Warn("background scheduler acquire failed, running inline", "error", err)
		fn(context.Background())
		return
	}
	go func() {
		defer s.sem.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("background task panic", "recovered", rec)
			}
		}()
		fn(context.Background())
	}()
}
