package cachekey

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/edgestream/videocache/internal/domain/repository"
)

// Versioning protocol constants (§4.C item 4).
const (
	backoffBase   = 200 * time.Millisecond
	backoffFactor = 2
	backoffCap    = 2 * time.Second
	maxAttempts   = 3
)

// Versioner reads and bumps the per-key version counter stored in the
// VERSION_KV namespace. The key is stable across versions; the version is a
// property of the stored entry's metadata, not of the cache key itself.
type Versioner struct {
	store     repository.KVStore
	logger    *slog.Logger
	scheduler BackgroundScheduler
}

// BackgroundScheduler abstracts schedule_background (§5, §9): Schedule
// returns immediately; the work may run after the caller has already
// responded. A nil scheduler causes fire-and-forget writes to run inline.
type BackgroundScheduler interface {
	Schedule(fn func(ctx context.Context))
}

// NewVersioner builds a Versioner over the VERSION_KV-backed store.
func NewVersioner(store repository.KVStore, logger *slog.Logger, scheduler BackgroundScheduler) *Versioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Versioner{store: store, logger: logger, scheduler: scheduler}
}

// Current reads the current version for key, defaulting to 1 if absent. Does
// not modify anything (cache-hit path, §4.C item 3).
func (v *Versioner) Current(ctx context.Context, key string) (int, error) {
	val, ok, err := v.store.GetInt(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return int(val), nil
}

// Bump atomically increments the version for key on a cache miss and
// persists it (§4.C item 2). The write is fire-and-forget via the
// background-task hook when available; otherwise it is awaited inline. On
// exhausting retries, the error is logged and swallowed — a lost version
// bump causes a duplicate upstream transform (§9 OQ2), never incorrect data.
func (v *Versioner) Bump(ctx context.Context, key string) {
	write := func(ctx context.Context) {
		if err := v.bumpWithRetry(ctx, key); err != nil {
			v.logger.Warn("version bump exhausted retries", "cache_key", key, "error", err)
		}
	}

	if v.scheduler != nil {
		v.scheduler.Schedule(write)
		return
	}
	write(ctx)
}

func (v *Versioner) bumpWithRetry(ctx context.Context, key string) error {
	backoff := backoffBase
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= backoffFactor
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}

		n, err := v.store.Incr(ctx, key)
		if err == nil && n == 1 {
			// An absent counter reads as version 1 (see Current), so the
			// first bump has to land on 2 to change the observed version.
			_, err = v.store.Incr(ctx, key)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
	}
	return lastErr
}

// isTransient detects KV rate-limit/conflict errors by substring match, per
// §4.C item 4 — the KV client does not expose typed rate-limit errors, so
// this is the one place string-substring classification is used by design
// (documented in SPEC_FULL.md §6), rather than errors.Is elsewhere.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "409", "rate limit", "conflict"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
