// Package coalesce implements request coalescing (§4.G): concurrent
// requests for the same not-yet-cached transform share a single upstream
// fetch-and-store instead of stampeding the transform service.
package coalesce

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/edgestream/videocache/internal/cachekey"
	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/infrastructure/metrics"
)

// Result is what a producer returns once it has fetched and stored a
// transform. It carries only metadata, never the response body: joiners
// read the body themselves from the cache entry named by CacheKey, since a
// streamed video body cannot be shared across goroutines (§4.G, §4.E).
type Result struct {
	CacheKey  string
	Metadata  model.TransformationMetadata
	FromCache bool
}

// clone returns a value copy safe to hand to a second, independent joiner.
// CacheTags/CustomData are read-only downstream so a shallow copy suffices.
func (r Result) clone() Result {
	out := r
	return out
}

// Group coalesces concurrent producer calls keyed by TransformKey.
type Group struct {
	sf singleflight.Group
}

// New builds an empty coalescing Group.
func New() *Group {
	return &Group{}
}

// TransformKey computes the coalescing key (§4.G): origin name, resolved
// upstream path, and the canonical option subset that the cache key itself
// is derived from, so two requests coalesce exactly when they would also
// share a cache entry.
func TransformKey(originName, resolvedPath string, opts model.TransformOptions) string {
	return fmt.Sprintf("%s:%s", originName, cachekey.Generate(resolvedPath, opts))
}

// RunOrJoin runs producer for the first caller with a given key; concurrent
// callers with the same key block until it completes and receive a cloned
// copy of its Result rather than re-running producer (§4.G).
func (g *Group) RunOrJoin(key string, producer func() (Result, error)) (Result, error) {
	v, err, shared := g.sf.Do(key, func() (any, error) {
		return producer()
	})
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)
	if shared {
		res = res.clone()
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}
	return res, nil
}
