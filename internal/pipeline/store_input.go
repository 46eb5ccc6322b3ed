package pipeline

import (
	"time"

	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/kvcache"
	"github.com/edgestream/videocache/internal/transform"
)

// kvStoreInputFrom builds the kvcache.StoreInput for a just-fetched
// transform response (§4.D Store, §4.I step 11). The transform client never
// sends a Range header upstream, so IsPartial is always false here — a
// partial response would only arise from a misbehaving transform service.
func kvStoreInputFrom(resp *transform.Response, opts model.TransformOptions, ttlSeconds int, cache repository.CacheSettings) kvcache.StoreInput {
	return kvcache.StoreInput{
		Body:              resp.Body,
		ContentType:       contentTypeFor(opts.Mode, resp.ContentType),
		IsPartial:         false,
		CacheTags:         cacheTagsFor(opts, cache),
		Mode:              opts.Mode,
		Params:            opts,
		TTL:               time.Duration(ttlSeconds) * time.Second,
		StoreIndefinitely: cache.StoreIndefinitely,
	}
}

func cacheTagsFor(opts model.TransformOptions, cache repository.CacheSettings) []string {
	if !cache.EnableCacheTags {
		return nil
	}
	tags := []string{"mode:" + string(opts.Mode)}
	if opts.Derivative != "" {
		tags = append(tags, "derivative:"+opts.Derivative)
	}
	return tags
}
