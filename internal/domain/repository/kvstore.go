package repository

import (
	"context"
	"time"

	"github.com/edgestream/videocache/internal/domain/model"
)

// KVEntry is a raw value plus metadata as read back from the KV store.
type KVEntry struct {
	Value    []byte
	Metadata model.TransformationMetadata
}

// KVStore is the low-level key/value/metadata primitive backing both KV
// namespaces described in §6 (CACHE_KV, VERSION_KV share the same
// implementation; cmd/proxy builds one store per namespace, each over its
// own Redis client, and both use the cache key unchanged).
// internal/kvcache builds the chunking/integrity/range semantics on top of
// this; this interface only deals in raw bytes and opaque metadata.
type KVStore interface {
	// Get returns the raw bytes and metadata stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (KVEntry, error)

	// Put stores value under key with the given metadata. If ttl is zero,
	// the entry is stored without expiration (the caller is still
	// responsible for setting Metadata.ExpiresAt so downstream Cache-Control
	// headers can count down, per §4.D TTL policy).
	Put(ctx context.Context, key string, value []byte, metadata model.TransformationMetadata, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys containing the given substring, used by the
	// list operation (§4.D).
	Keys(ctx context.Context, contains string) ([]string, error)

	// Incr atomically increments the integer stored at key (creating it at
	// 1 if absent) and returns the new value. Backs the VERSION_KV counter
	// (§4.C).
	Incr(ctx context.Context, key string) (int64, error)

	// GetInt reads the integer stored at key, returning 0, false if absent.
	GetInt(ctx context.Context, key string) (int64, bool, error)
}
