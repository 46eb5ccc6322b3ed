package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/edgestream/videocache/internal/coalesce"
	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/rangeh"
	"github.com/edgestream/videocache/internal/resolver"
	"github.com/edgestream/videocache/internal/transform"
)

// errStoreDeclined marks a successful transform whose response kvcache
// refused to persist (a partial upstream response, or a payload over the
// safety ceiling — §4.D Store). The coalesced producer returns this rather
// than the stored result so every waiter falls out of coalescing and
// streams the transform directly instead of trying to replay already-
// consumed bytes to joiners (§4.G).
var errStoreDeclined = errors.New("kv store declined payload")

// maxFallbackAttempts bounds the source/origin fallback chain (§4.I step
// 10) so a misconfigured set of origins cannot retry forever.
const maxFallbackAttempts = 4

// serveTransformed runs steps 9-11 of §4.I: a coalesced transform call with
// source/origin fallback, then store-then-serve.
func (p *Pipeline) serveTransformed(
	ctx context.Context,
	w http.ResponseWriter,
	match model.OriginMatch,
	origin model.Origin,
	resolution model.SourceResolution,
	opts model.TransformOptions,
	key string,
	rng *rangeh.Range,
	debugJSON bool,
) {
	coalesceKey := coalesce.TransformKey(origin.Name, resolution.ResolvedPath, opts)

	res, err := p.coalescer.RunOrJoin(coalesceKey, func() (coalesce.Result, error) {
		return p.produceAndStore(ctx, match, origin, resolution, opts, key)
	})

	if err != nil {
		if errors.Is(err, errStoreDeclined) {
			if debugJSON {
				p.writeDebugBody(w, origin, resolution, key, false)
				return
			}
			p.streamUncached(ctx, w, origin, resolution, opts)
			return
		}
		p.logger.Error("transform failed", "origin", origin.Name, "cache_key", key, "error", err)
		switch {
		case errors.Is(err, repository.ErrNoValidSource):
			p.writeError(w, http.StatusInternalServerError, ErrCodeNoValidSource)
		case errors.Is(err, repository.ErrUpstreamTransform):
			p.writeError(w, http.StatusBadGateway, ErrCodeUpstreamTransform)
		default:
			p.writeError(w, http.StatusInternalServerError, ErrCodeInternal)
		}
		return
	}

	if debugJSON {
		p.writeDebugBody(w, origin, resolution, res.CacheKey, true)
		return
	}

	// Store-then-serve: every waiter (owner or joiner) re-reads from KV
	// rather than trying to share the streamed body across goroutines
	// (§4.G, §4.I step 11).
	result, getErr := p.engine.Get(ctx, res.CacheKey, rng)
	if getErr != nil || !result.Hit {
		p.logger.Warn("post-store read miss, falling back to direct stream", "cache_key", res.CacheKey, "error", getErr)
		p.streamUncached(ctx, w, origin, resolution, opts)
		return
	}
	recordRangeOutcome(rng, result.RangeRecovered)
	p.serveResult(ctx, w, res.CacheKey, origin, resolution, opts, result, false)
}

// produceAndStore is the coalesced producer: it fetches the transform
// (retrying across sources/origins on failure, §4.I step 10) and stores the
// result (§4.I step 11).
func (p *Pipeline) produceAndStore(
	ctx context.Context,
	match model.OriginMatch,
	origin model.Origin,
	resolution model.SourceResolution,
	opts model.TransformOptions,
	key string,
) (coalesce.Result, error) {
	resp, usedOrigin, _, err := p.fetchWithFallback(ctx, match, origin, resolution, opts)
	if err != nil {
		return coalesce.Result{}, err
	}
	defer resp.Body.Close()

	ttl := ttlForOrigin(usedOrigin, p.cache)
	stored, storeErr := p.engine.Store(ctx, key, kvStoreInputFrom(resp, opts, ttl, p.cache))
	if storeErr != nil {
		return coalesce.Result{}, fmt.Errorf("store transform result: %w", storeErr)
	}
	if !stored {
		return coalesce.Result{}, errStoreDeclined
	}

	return coalesce.Result{CacheKey: key, FromCache: false}, nil
}

// fetchWithFallback tries resolution first, then other sources on the same
// origin, then sources on other matching origins, excluding sources already
// tried, per §4.I step 10.
func (p *Pipeline) fetchWithFallback(
	ctx context.Context,
	match model.OriginMatch,
	origin model.Origin,
	resolution model.SourceResolution,
	opts model.TransformOptions,
) (*transform.Response, model.Origin, model.SourceResolution, error) {
	var exclude []model.SourceExclusion
	attemptOrigin, attemptResolution := origin, resolution

	for attempt := 0; attempt < maxFallbackAttempts; attempt++ {
		resp, err := p.tclient.Transform(ctx, transform.Request{
			SourceURL: sourceURLFor(attemptResolution),
			Options:   opts,
			Auth:      authFor(attemptOrigin, attemptResolution),
		})
		if err == nil {
			return resp, attemptOrigin, attemptResolution, nil
		}
		p.logger.Warn("transform attempt failed, trying fallback",
			"origin", attemptOrigin.Name, "source_type", attemptResolution.OriginType, "attempt", attempt, "error", err)

		exclude = append(exclude, model.SourceExclusion{
			OriginName: attemptOrigin.Name,
			SourceType: attemptResolution.OriginType,
		})

		if next, nextOrigin, ok := p.nextFallbackSource(match, exclude); ok {
			attemptOrigin, attemptResolution = nextOrigin, next
			continue
		}
		return nil, model.Origin{}, model.SourceResolution{}, fmt.Errorf("%w: all sources exhausted: %w", repository.ErrNoValidSource, err)
	}
	return nil, model.Origin{}, model.SourceResolution{}, repository.ErrNoValidSource
}

// nextFallbackSource tries every origin matching the original path, in
// order, for a source not yet excluded.
func (p *Pipeline) nextFallbackSource(match model.OriginMatch, exclude []model.SourceExclusion) (model.SourceResolution, model.Origin, bool) {
	for _, m := range p.resolver.FindAllMatchingOrigins(match.OriginalPath) {
		o := p.resolver.Origins()[m.OriginIndex]
		if res, ok := resolver.ResolveSourceForOrigin(o, m, resolver.ResolveOptions{Exclude: exclude}); ok {
			return res, o, true
		}
	}
	return model.SourceResolution{}, model.Origin{}, false
}

// streamUncached serves a transform result directly to w without going
// through KV, used when storage declined the payload (§4.D) or a rare
// post-store read race leaves nothing to read back.
func (p *Pipeline) streamUncached(ctx context.Context, w http.ResponseWriter, origin model.Origin, resolution model.SourceResolution, opts model.TransformOptions) {
	resp, err := p.tclient.Transform(ctx, transform.Request{
		SourceURL: sourceURLFor(resolution),
		Options:   opts,
		Auth:      authFor(origin, resolution),
	})
	if err != nil {
		p.logger.Error("uncached transform retry failed", "origin", origin.Name, "error", err)
		p.writeError(w, http.StatusBadGateway, ErrCodeUpstreamTransform)
		return
	}
	defer resp.Body.Close()

	h := w.Header()
	h.Set("X-Handler", p.cfg.HandlerName)
	h.Set("X-Origin", origin.Name)
	h.Set("X-Source-Type", string(resolution.OriginType))
	h.Set("Cache-Control", "no-store")
	h.Set("Content-Type", contentTypeFor(opts.Mode, resp.ContentType))
	if resp.ContentLength > 0 {
		h.Set("Content-Length", fmt.Sprintf("%d", resp.ContentLength))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Info("uncached stream ended early", "origin", origin.Name, "error", err)
	}
}

// sourceURLFor is the URL sent to the transform service. Remote/Fallback
// sources already carry one; R2 sources have none (the transform service's
// object-storage binding resolves keys internally), so the resolved key
// itself is sent in its place.
func sourceURLFor(res model.SourceResolution) string {
	if res.SourceURL != "" {
		return res.SourceURL
	}
	return res.ResolvedPath
}

func authFor(origin model.Origin, res model.SourceResolution) *model.AuthRef {
	if res.Auth != nil {
		return res.Auth
	}
	return origin.Auth
}

func ttlForOrigin(origin model.Origin, cache repository.CacheSettings) int {
	if origin.Defaults.TTLOk > 0 {
		return origin.Defaults.TTLOk
	}
	return cache.DefaultMaxAge
}
