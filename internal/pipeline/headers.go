package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edgestream/videocache/internal/domain/model"
)

// Error codes for the X-Error response header (§6, §7).
const (
	ErrCodeNoMatchingOrigin  = "NoMatchingOrigin"
	ErrCodeNoValidSource     = "NoValidSource"
	ErrCodeInternal          = "InternalError"
	ErrCodeUpstreamTransform = "OriginsTransformationError"
)

// writeError sends the plain-text error body mandated by §7: no secrets, no
// stack traces, just the classified code and a short message.
func (p *Pipeline) writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("X-Error", code)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, code)
}

// debugBody is the JSON shape written for `?debug&debug_format=json`
// requests in place of the actual media body (§6, spec.md:199 operational
// query parameters).
type debugBody struct {
	Origin     string `json:"origin"`
	SourceType string `json:"source_type"`
	CacheKey   string `json:"cache_key"`
	Stored     bool   `json:"stored"`
}

// writeCommonDebugHeaders sets the identification and no-store headers
// written ahead of a debug JSON body.
func (p *Pipeline) writeCommonDebugHeaders(w http.ResponseWriter, origin model.Origin, resolution model.SourceResolution, cacheKey string) {
	h := w.Header()
	h.Set("X-Handler", p.cfg.HandlerName)
	h.Set("X-Origin", origin.Name)
	h.Set("X-Source-Type", string(resolution.OriginType))
	if cacheKey != "" {
		h.Set("X-KV-Cache-Key", cacheKey)
	}
	h.Set("Cache-Control", "no-store")
}

// writeDebugBody replaces the usual media response with a diagnostic JSON
// document describing how the request resolved, without streaming the
// transformed bytes: debug mode already skipped the KV short-circuit
// (§4.I step 6), so this is the only body a debug_format=json request gets.
func (p *Pipeline) writeDebugBody(w http.ResponseWriter, origin model.Origin, resolution model.SourceResolution, cacheKey string, stored bool) {
	p.writeCommonDebugHeaders(w, origin, resolution, cacheKey)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(debugBody{
		Origin:     origin.Name,
		SourceType: string(resolution.OriginType),
		CacheKey:   cacheKey,
		Stored:     stored,
	}); err != nil {
		p.logger.Warn("failed to encode debug body", "cache_key", cacheKey, "error", err)
	}
}

// diagnostics carries the per-request facts the header assembler needs to
// fill in every §6 diagnostic header. Not every field applies to every
// response path (e.g. cache age/TTL are meaningless on a bypass).
type diagnostics struct {
	origin     model.Origin
	resolution model.SourceResolution
	opts       model.TransformOptions
	cacheKey   string

	cacheSource string // "kv", "origin", "bypass"
	cacheStatus string // "hit", "miss"

	ageSeconds int64
	ttlSeconds int64

	chunked     bool
	totalSize   int64
	fallback    bool
	rangeResult *rangeRenderResult
}

type rangeRenderResult struct {
	recovered bool
	start     int64
	end       int64
	total     int64
}

// writeCommonHeaders sets the diagnostic and content headers shared by
// every non-error response path (§6 response headers).
func (p *Pipeline) writeCommonHeaders(w http.ResponseWriter, d diagnostics) {
	h := w.Header()
	h.Set("X-Handler", p.cfg.HandlerName)
	h.Set("X-Origin", d.origin.Name)
	h.Set("X-Source-Type", string(d.resolution.OriginType))
	if d.cacheSource != "" {
		h.Set("X-Cache-Source", d.cacheSource)
	}
	if d.cacheStatus != "" {
		h.Set("X-Cache-Status", d.cacheStatus)
	}
	if d.cacheKey != "" {
		h.Set("X-KV-Cache-Key", d.cacheKey)
	}
	if d.opts.Version > 0 {
		h.Set("X-Cache-Version", fmt.Sprintf("%d", d.opts.Version))
	}
	if d.cacheStatus == "hit" {
		h.Set("X-KV-Cache-Age", fmt.Sprintf("%d", d.ageSeconds))
		h.Set("X-KV-Cache-TTL", fmt.Sprintf("%d", d.ttlSeconds))
	}
	h.Set("X-Video-Storage", string(d.resolution.OriginType))
	h.Set("X-Video-Chunked", boolHeader(d.chunked))
	if d.totalSize > 0 {
		h.Set("X-Video-Total-Size", fmt.Sprintf("%d", d.totalSize))
	}
	if d.opts.Derivative != "" {
		h.Set("X-Video-Derivative", d.opts.Derivative)
	}
	if d.fallback {
		h.Set("X-Fallback-Applied", "true")
	}
	if d.rangeResult != nil {
		if d.rangeResult.recovered {
			h.Set("X-Range-Recovery", "true")
		} else {
			h.Set("Accept-Ranges", "bytes")
			h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", d.rangeResult.start, d.rangeResult.end, d.rangeResult.total))
		}
	} else {
		h.Set("Accept-Ranges", "bytes")
	}

	if filename := filenameFor(d); filename != "" {
		h.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))
	}
}

// contentTypeFor applies the audio/m4a fixup: a transform producing audio
// output from a source whose upstream Content-Type still reads as a video
// container is corrected to an audio MIME type, since player and CDN
// caching behavior both key off Content-Type rather than Mode.
func contentTypeFor(mode model.Mode, upstream string) string {
	if mode != model.ModeAudio {
		return upstream
	}
	switch {
	case strings.Contains(upstream, "mp4"):
		return "audio/mp4"
	case strings.Contains(upstream, "m4a"):
		return "audio/mp4"
	case upstream == "" || strings.HasPrefix(upstream, "video/"):
		return "audio/mp4"
	default:
		return upstream
	}
}

func filenameFor(d diagnostics) string {
	if d.opts.Filename != "" {
		return d.opts.Filename
	}
	return ""
}

func boolHeader(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func ageAndTTL(createdAtMs int64, expiresAtMs *int64) (age, ttl int64) {
	now := time.Now().UnixMilli()
	if createdAtMs > 0 {
		age = (now - createdAtMs) / 1000
		if age < 0 {
			age = 0
		}
	}
	if expiresAtMs != nil {
		ttl = (*expiresAtMs - now) / 1000
		if ttl < 0 {
			ttl = 0
		}
	}
	return age, ttl
}

func cacheControlFor(ttlSeconds int64, storeIndefinitely bool) string {
	if storeIndefinitely || ttlSeconds <= 0 {
		return "public, max-age=31536000, immutable"
	}
	return fmt.Sprintf("public, max-age=%d", ttlSeconds)
}

func cacheTagHeader(tags []string) string {
	return strings.Join(tags, ",")
}
