// Package background implements the in-process background job queue (§5,
// §9 "background tasks"): the default, single-process alternative to the
// RabbitMQ-backed internal/infrastructure/queue transport. Both satisfy
// repository.MessageQueue so the pipeline and cmd/proxy can wire either one
// without caring which. Grounded on the teacher's cmd/worker/main.go
// graceful-shutdown shape (in-flight jobs finish before Consume returns) and
// on internal/streaming's errgroup.SetLimit bounded-concurrency pattern.
package background

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgestream/videocache/internal/domain/repository"
)

const (
	// DefaultConcurrency bounds how many jobs run at once.
	DefaultConcurrency = 8
	// DefaultBufferSize bounds how many jobs may be queued before Publish blocks.
	DefaultBufferSize = 256
)

// Pool is a bounded in-process worker pool implementing repository.MessageQueue.
type Pool struct {
	jobs        chan repository.BackgroundJob
	concurrency int
	logger      *slog.Logger
}

// NewPool creates a Pool with the given buffer size and concurrency bound.
func NewPool(bufferSize, concurrency int, logger *slog.Logger) *Pool {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:        make(chan repository.BackgroundJob, bufferSize),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Publish enqueues a job, blocking if the buffer is full until ctx is done.
func (p *Pool) Publish(ctx context.Context, job repository.BackgroundJob) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume runs handler for each queued job, up to the pool's concurrency
// bound, until ctx is cancelled. A handler error is logged, not returned —
// one failing job must not stop the dispatch loop or take down its siblings.
// In-flight jobs are allowed to finish before Consume returns.
func (p *Pool) Consume(ctx context.Context, handler func(job repository.BackgroundJob) error) error {
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(p.concurrency)
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-p.jobs:
			if !ok {
				return nil
			}
			g.Go(func() error {
				if err := handler(job); err != nil {
					p.logger.Error("background job failed",
						"job_id", job.ID,
						"kind", job.Kind,
						"cache_key", job.CacheKey,
						"retry_count", job.RetryCount,
						"error", err,
					)
				}
				return nil
			})
		}
	}
}

// Close stops accepting new jobs; a Publish after Close panics. A running
// Consume call still receives the already-queued jobs and returns once the
// buffer is empty and its in-flight jobs have finished. Cancelling Consume's
// context instead makes it return without draining the remaining jobs.
func (p *Pool) Close() error {
	close(p.jobs)
	return nil
}

// Compile-time verification that Pool implements repository.MessageQueue.
var _ repository.MessageQueue = (*Pool)(nil)
