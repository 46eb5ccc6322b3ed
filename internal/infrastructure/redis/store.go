// Package redis adapts go-redis/v9 to the repository.KVStore primitive
// (§6 CACHE_KV / VERSION_KV), grounded on the teacher's
// internal/infrastructure/cache Redis client wrapper — same client-wrapper
// shape, generalized from a single JSON-video cache to raw bytes + opaque
// metadata plus atomic integer counters.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/infrastructure/metrics"
)

const (
	valueField    = "v"
	metadataField = "m"
)

// Store implements repository.KVStore over a *goredis.Client. A single
// Redis key backs both value and metadata via a hash with two fields, so a
// Put/Get pair is one round trip each and TTL applies to the whole entry.
type Store struct {
	client *goredis.Client
}

// New wraps an already-connected *goredis.Client.
func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, key string) (repository.KVEntry, error) {
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return repository.KVEntry{}, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	if len(res) == 0 {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
		return repository.KVEntry{}, repository.ErrNotFound
	}

	var meta model.TransformationMetadata
	if m, ok := res[metadataField]; ok && m != "" {
		if err := json.Unmarshal([]byte(m), &meta); err != nil {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
			return repository.KVEntry{}, fmt.Errorf("redis unmarshal metadata %s: %w", key, err)
		}
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
	return repository.KVEntry{Value: []byte(res[valueField]), Metadata: meta}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, metadata model.TransformationMetadata, ttl time.Duration) error {
	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis marshal metadata %s: %w", key, err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		valueField:    value,
		metadataField: metaBytes,
	})
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Keys scans the keyspace for keys containing the given substring. SCAN is
// used instead of KEYS to avoid blocking the Redis event loop on a large
// keyspace.
func (s *Store) Keys(ctx context.Context, contains string) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, "*"+contains+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", contains, err)
	}
	return out, nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get int %s: %w", key, err)
	}
	return v, true, nil
}
