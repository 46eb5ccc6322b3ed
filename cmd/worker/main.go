// cmd/worker drains the out-of-process background job queue (§5, §9): the
// version-write retries the inline path gave up on, and (for forward
// compatibility) any store-back jobs a future deployment publishes. It
// replaces the teacher's cmd/worker, which ran ffmpeg transcodes off a
// RabbitMQ queue — there is no local transcoding here, so this binary's
// job set is entirely different even though its shape (connect, consume,
// graceful shutdown) is the same.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/edgestream/videocache/internal/cachekey"
	"github.com/edgestream/videocache/internal/config"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/infrastructure/queue"
	"github.com/edgestream/videocache/internal/infrastructure/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	versionRedis := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.VersionDB,
	})
	defer versionRedis.Close()
	if err := versionRedis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis (version db): %w", err)
	}
	logger.Info("connected to Redis", slog.Int("version_db", cfg.Redis.VersionDB))

	// No scheduler: a job pulled off the queue already runs off the
	// request path, so a version bump here runs its retry loop inline
	// rather than handing off again.
	versioner := cachekey.NewVersioner(redis.New(versionRedis), logger, nil)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming background jobs")
		err := queueClient.Consume(ctx, func(job repository.BackgroundJob) error {
			wg.Add(1)
			defer wg.Done()
			return handleJob(ctx, job, versioner, logger)
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight jobs completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some jobs may not have completed")
	}

	logger.Info("worker stopped")
	return nil
}

// handleJob dispatches a background job by kind. JobStoreBack is accepted
// and acked but not yet produced by cmd/proxy — the pipeline currently
// stores into the KV cache inline before responding (§4.I step 11) rather
// than deferring it, so this case only exists for a future deployment that
// chooses to defer storage through the queue instead.
func handleJob(ctx context.Context, job repository.BackgroundJob, versioner *cachekey.Versioner, logger *slog.Logger) error {
	switch job.Kind {
	case repository.JobVersionWrite:
		logger.Info("retrying version write",
			slog.String("cache_key", job.CacheKey),
			slog.Int("retry_count", job.RetryCount),
		)
		versioner.Bump(ctx, job.CacheKey)
		return nil
	case repository.JobStoreBack:
		logger.Info("store-back job received, no-op in this deployment", slog.String("cache_key", job.CacheKey))
		return nil
	default:
		logger.Warn("unknown background job kind", slog.String("kind", string(job.Kind)))
		return nil
	}
}
