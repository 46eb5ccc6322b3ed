// Package pipeline implements the request pipeline (§4.I): the end-to-end
// orchestration of origin/source resolution, option normalization, KV
// lookup, coalesced upstream transform with source/origin fallback, and
// response assembly. Grounded on the teacher's internal/usecase/
// cached_video_service.go for the overall "check cache, on miss fetch
// upstream, store, serve" shape, generalized from a single video-by-ID
// lookup to the full origin/source/options resolution this spec adds.
package pipeline

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edgestream/videocache/internal/cachekey"
	"github.com/edgestream/videocache/internal/coalesce"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/infrastructure/metrics"
	"github.com/edgestream/videocache/internal/kvcache"
	"github.com/edgestream/videocache/internal/options"
	"github.com/edgestream/videocache/internal/rangeh"
	"github.com/edgestream/videocache/internal/resolver"
	"github.com/edgestream/videocache/internal/transform"
)

// transformCGIPrefix is the well-known path prefix the upstream transform
// service serves under. A request already under this prefix has already
// passed through a transform, either because a downstream cache replayed
// the URL or a client linked to it directly (§4.I step 1): it is proxied
// straight through rather than re-resolved and re-transformed.
const transformCGIPrefix = "/cdn-cgi/media/"

// DefaultTransformCeiling is the source-size ceiling past which the
// pipeline bypasses the transform service entirely and streams the source
// unmodified (§4.I step 8, §5 timeouts).
const DefaultTransformCeiling int64 = 256 * 1024 * 1024

// Config tunes the pipeline beyond what RuntimeConfig already carries.
type Config struct {
	TransformCeiling int64 // defaults to DefaultTransformCeiling
	HandlerName      string
	// CDNPrefix is the scheme+host a cdn-cgi/media passthrough request is
	// relayed to (§4.I step 1); same value as transform.ClientConfig.CDNPrefix.
	CDNPrefix string
}

func (c Config) normalize() Config {
	if c.TransformCeiling <= 0 {
		c.TransformCeiling = DefaultTransformCeiling
	}
	if c.HandlerName == "" {
		c.HandlerName = "Origins"
	}
	return c
}

// Pipeline wires together every component named in §4: resolver (A),
// normalizer (B), cache key/versioner (C), KV engine (D), transform client,
// and request coalescer (G).
type Pipeline struct {
	resolver   *resolver.Resolver
	normalizer *options.Normalizer
	versioner  *cachekey.Versioner
	engine     *kvcache.Engine
	storage    repository.ObjectStorage
	tclient    *transform.Client
	coalescer  *coalesce.Group
	httpClient *http.Client

	cache  repository.CacheSettings
	cfg    Config
	logger *slog.Logger
}

// New builds a Pipeline. httpClient is used both for plain-GET Remote/
// Fallback source fetches and for the cdn-cgi/media passthrough path;
// storage backs R2 sources.
func New(
	res *resolver.Resolver,
	norm *options.Normalizer,
	ver *cachekey.Versioner,
	engine *kvcache.Engine,
	storage repository.ObjectStorage,
	tclient *transform.Client,
	coalescer *coalesce.Group,
	httpClient *http.Client,
	cache repository.CacheSettings,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		resolver:   res,
		normalizer: norm,
		versioner:  ver,
		engine:     engine,
		storage:    storage,
		tclient:    tclient,
		coalescer:  coalescer,
		httpClient: httpClient,
		cache:      cache,
		cfg:        cfg.normalize(),
		logger:     logger,
	}
}

// Serve handles one inbound video request (§4.I handleVideoRequest). It
// writes the full response (headers + body) to w; callers (internal/api/
// handler) need only route the request here.
func (p *Pipeline) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := r.URL.Path

	// Step 1: already-transformed paths proxy straight through.
	if strings.HasPrefix(path, transformCGIPrefix) {
		p.proxyPassthrough(w, r, path)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("pipeline panic", "path", path, "recovered", rec)
			p.writeError(w, http.StatusInternalServerError, ErrCodeInternal)
		}
	}()

	// Step 3: origin resolution.
	match, ok := p.resolver.MatchOriginWithCaptures(path)
	if !ok {
		p.writeError(w, http.StatusNotFound, ErrCodeNoMatchingOrigin)
		return
	}
	origin := p.resolver.Origins()[match.OriginIndex]

	// Step 4: source resolution.
	resolution, ok := resolver.ResolveSourceForOrigin(origin, match, resolver.ResolveOptions{})
	if !ok {
		p.writeError(w, http.StatusInternalServerError, ErrCodeNoValidSource)
		return
	}

	// Step 5: option normalization + version attach.
	opts := p.normalizer.Normalize(r, origin.Defaults)
	key := cachekey.Generate(resolution.ResolvedPath, opts)
	version, err := p.versioner.Current(ctx, key)
	if err != nil {
		p.logger.Warn("version read failed", "cache_key", key, "error", err)
		version = 1
	}
	opts.Version = version

	rng := parseRequestRange(r)
	debug := r.URL.Query().Has("debug")
	debugJSON := debug && r.URL.Query().Get("debug_format") == "json"

	// Step 6: KV lookup (skipped for ?debug requests).
	if !debug {
		result, err := p.engine.Get(ctx, key, rng)
		if err != nil {
			p.logger.Error("kv get failed", "cache_key", key, "error", err)
			p.writeError(w, http.StatusInternalServerError, ErrCodeInternal)
			return
		}
		if result.Hit {
			recordRangeOutcome(rng, result.RangeRecovered)
			p.serveResult(ctx, w, key, origin, resolution, opts, result, true)
			return
		}
	}

	// Step 7: version may have incremented during the miss path.
	if version2, err := p.versioner.Current(ctx, key); err == nil {
		opts.Version = version2
	}

	// Step 8: oversized-source direct-stream bypass.
	if size, exceeds := p.sourceExceedsCeiling(ctx, resolution); exceeds {
		p.logger.Info("source exceeds transform ceiling, bypassing", "origin", origin.Name, "size", size)
		p.streamBypass(ctx, w, origin, resolution)
		return
	}

	// Steps 9-11: coalesced transform, fallback chain, store-then-serve.
	p.serveTransformed(ctx, w, match, origin, resolution, opts, key, rng, debugJSON)
}

func recordRangeOutcome(rng *rangeh.Range, recovered bool) {
	if rng == nil {
		return
	}
	if recovered {
		metrics.RangeRequestsTotal.WithLabelValues(metrics.RangeOutcomeRecovered).Inc()
	} else {
		metrics.RangeRequestsTotal.WithLabelValues(metrics.RangeOutcomeSatisfiable).Inc()
	}
}
