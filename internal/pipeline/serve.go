package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/kvcache"
)

// serveResult writes a KV hit (§4.I step 6) or a freshly stored transform
// (§4.I step 11) to w, streaming the body via the engine rather than
// buffering it.
func (p *Pipeline) serveResult(
	ctx context.Context,
	w http.ResponseWriter,
	key string,
	origin model.Origin,
	resolution model.SourceResolution,
	opts model.TransformOptions,
	result kvcache.GetResult,
	fromCache bool,
) {
	meta := result.Metadata
	age, ttl := ageAndTTL(meta.CreatedAt, meta.ExpiresAt)

	cacheSource := "origin"
	if fromCache {
		cacheSource = "kv"
	}
	d := diagnostics{
		origin:      origin,
		resolution:  resolution,
		opts:        opts,
		cacheKey:    key,
		cacheSource: cacheSource,
		cacheStatus: "hit",
		ageSeconds:  age,
		ttlSeconds:  ttl,
		chunked:     result.Chunked,
		totalSize:   meta.ActualTotalVideoSize,
	}
	if result.Served != nil {
		d.rangeResult = &rangeRenderResult{start: result.Served.Start, end: result.Served.End, total: meta.ActualTotalVideoSize}
	} else if result.RangeRecovered {
		d.rangeResult = &rangeRenderResult{recovered: true}
	}

	contentType := contentTypeFor(meta.Mode, meta.ContentType)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControlFor(ttl, meta.StoreIndefinitely))
	if len(meta.CacheTags) > 0 {
		w.Header().Set("Cache-Tag", cacheTagHeader(meta.CacheTags))
	}

	contentLength := meta.ActualTotalVideoSize
	if d.rangeResult != nil && !d.rangeResult.recovered {
		contentLength = result.Served.Len()
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", contentLength))

	p.writeCommonHeaders(w, d)

	status := http.StatusOK
	if d.rangeResult != nil && !d.rangeResult.recovered {
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	if err := p.engine.StreamTo(ctx, key, result, w); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, repository.ErrClientDisconnect) {
			p.logger.Info("client disconnected mid-stream", "cache_key", key)
			return
		}
		p.logger.Warn("stream to client failed", "cache_key", key, "error", err)
	}
}
