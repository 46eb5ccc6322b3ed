// Package kvcache implements the KV Cache Engine (§4.D): single-entry and
// chunked storage over the key/value primitive in
// internal/domain/repository, built around the teacher's Redis cache-aside
// pattern and extended with chunking, strict byte-exact integrity, and
// range-aware reads.
package kvcache

import (
	"log/slog"
	"time"

	"github.com/edgestream/videocache/internal/cachekey"
	"github.com/edgestream/videocache/internal/chunklock"
	"github.com/edgestream/videocache/internal/domain/repository"
)

// Defaults for the size thresholds (§3, §4.D).
const (
	DefaultSingleEntryMax    int64 = 20 * 1024 * 1024  // 20 MiB
	DefaultSafetyCeiling     int64 = 128 * 1024 * 1024 // 128 MiB
	DefaultStandardChunkSize int64 = 5 * 1024 * 1024    // 5 MiB
)

// Config tunes the engine's size thresholds; zero values fall back to the
// package defaults.
type Config struct {
	SingleEntryMax    int64
	SafetyCeiling     int64
	StandardChunkSize int64
}

func (c Config) normalize() Config {
	if c.SingleEntryMax <= 0 {
		c.SingleEntryMax = DefaultSingleEntryMax
	}
	if c.SafetyCeiling <= 0 {
		c.SafetyCeiling = DefaultSafetyCeiling
	}
	if c.StandardChunkSize <= 0 {
		c.StandardChunkSize = DefaultStandardChunkSize
	}
	return c
}

// Engine implements store/get/list over a repository.KVStore (§4.D).
type Engine struct {
	store     repository.KVStore
	versioner *cachekey.Versioner
	locks     *chunklock.Manager
	logger    *slog.Logger
	cfg       Config
}

// New builds an Engine. locks may be shared with the streaming writer/reader
// paths that also need per-chunk exclusion (§4.F).
func New(store repository.KVStore, versioner *cachekey.Versioner, locks *chunklock.Manager, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, versioner: versioner, locks: locks, logger: logger, cfg: cfg.normalize()}
}

// defaultTTL returns the caller-provided ttl, or zero (indefinite) when
// storeIndefinitely is requested (§4.D, §6 cache settings).
func defaultTTL(ttl time.Duration, storeIndefinitely bool) time.Duration {
	if storeIndefinitely {
		return 0
	}
	return ttl
}
