package repository

import (
	"context"

	"github.com/edgestream/videocache/internal/domain/model"
)

// CacheSettings mirrors the spec's `cache` configuration block (§6).
type CacheSettings struct {
	KVCacheEnabled       bool
	EnableCacheTags      bool
	DefaultMaxAge        int // seconds
	KVReadCacheTTL       int // seconds
	StoreIndefinitely    bool
	BypassQueryParameters []string
}

// RuntimeConfig is everything loaded at startup and consumed by the
// resolver/normalizer/cache engine (§6 Configuration).
type RuntimeConfig struct {
	Origins      []model.Origin
	Derivatives  map[string]model.Derivative
	ValidOptions map[string][]string
	Defaults     model.TransformOptions
	Cache        CacheSettings
}

// ConfigStore loads the runtime configuration at process start. The admin
// HTTP upload handler that would let operators mutate this table is out of
// scope (§1); this interface only reads, and has no reload method: the
// configuration is loaded once per process.
type ConfigStore interface {
	Load(ctx context.Context) (RuntimeConfig, error)
}
