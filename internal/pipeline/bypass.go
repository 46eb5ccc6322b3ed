package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/edgestream/videocache/internal/domain/model"
)

// proxyPassthrough handles a request already under the transform CGI
// prefix (§4.I step 1): some other layer already rewrote the URL to the
// transform form, so this request is relayed to the transform service
// as-is rather than re-resolved.
func (p *Pipeline) proxyPassthrough(w http.ResponseWriter, r *http.Request, path string) {
	target := p.passthroughTarget(path, r.URL.RawQuery)
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, nil)
	if err != nil {
		p.writeError(w, http.StatusInternalServerError, ErrCodeInternal)
		return
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("passthrough proxy request failed", "path", path, "error", err)
		p.writeError(w, http.StatusInternalServerError, ErrCodeUpstreamTransform)
		return
	}
	defer resp.Body.Close()

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Info("passthrough proxy stream ended early", "path", path, "error", err)
	}
}

func (p *Pipeline) passthroughTarget(path, rawQuery string) string {
	target := p.cfg.CDNPrefix + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// sourceExceedsCeiling pre-checks a source's size (§4.I step 8) without
// fetching it: Stat for object-store sources, a HEAD request for Remote/
// Fallback ones. An error pre-checking fails open — it is logged and
// treated as "does not exceed", letting the normal transform path attempt
// the fetch and surface whatever error happens there, rather than bouncing
// every request whose upstream doesn't support HEAD cleanly.
func (p *Pipeline) sourceExceedsCeiling(ctx context.Context, resolution model.SourceResolution) (int64, bool) {
	var size int64
	var err error

	switch resolution.OriginType {
	case model.SourceTypeR2:
		info, statErr := p.storage.Stat(ctx, resolution.ResolvedPath)
		err = statErr
		size = info.Size
	case model.SourceTypeRemote, model.SourceTypeFallback:
		size, err = p.tclient.HeadSize(ctx, resolution.SourceURL, resolution.Auth)
	default:
		return 0, false
	}

	if err != nil {
		p.logger.Warn("size pre-check failed, proceeding to transform", "source_type", resolution.OriginType, "error", err)
		return 0, false
	}
	return size, size > p.cfg.TransformCeiling
}

// streamBypass serves a source directly, unmodified, when it is too large
// to pass through the transform service (§4.I step 8): no transform, no KV
// storage, the diagnostic headers instead mark the bypass so operators and
// clients can tell why the response was never cached.
func (p *Pipeline) streamBypass(ctx context.Context, w http.ResponseWriter, origin model.Origin, resolution model.SourceResolution) {
	var body io.ReadCloser
	var contentType string
	var contentLength int64

	switch resolution.OriginType {
	case model.SourceTypeR2:
		rc, err := p.storage.Download(ctx, resolution.ResolvedPath)
		if err != nil {
			p.logger.Error("bypass download failed", "origin", origin.Name, "error", err)
			p.writeError(w, http.StatusInternalServerError, ErrCodeInternal)
			return
		}
		body = rc
		if info, statErr := p.storage.Stat(ctx, resolution.ResolvedPath); statErr == nil {
			contentType = info.ContentType
			contentLength = info.Size
		}
	case model.SourceTypeRemote, model.SourceTypeFallback:
		resp, err := p.tclient.Fetch(ctx, resolution.SourceURL, resolution.Auth)
		if err != nil {
			p.logger.Error("bypass fetch failed", "origin", origin.Name, "error", err)
			p.writeError(w, http.StatusInternalServerError, ErrCodeUpstreamTransform)
			return
		}
		body = resp.Body
		contentType = resp.ContentType
		contentLength = resp.ContentLength
	default:
		p.writeError(w, http.StatusInternalServerError, ErrCodeNoValidSource)
		return
	}
	defer body.Close()

	h := w.Header()
	h.Set("X-Video-Exceeds-256MiB", "true")
	h.Set("X-Video-Size-Bypass", "true")
	h.Set("X-Direct-Stream", "true")
	h.Set("X-Bypass-Cache-API", "true")
	h.Set("X-Handler", p.cfg.HandlerName)
	h.Set("X-Origin", origin.Name)
	h.Set("X-Source-Type", string(resolution.OriginType))
	h.Set("Cache-Control", "no-store")
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if contentLength > 0 {
		h.Set("Content-Length", fmt.Sprintf("%d", contentLength))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Info("bypass stream ended early", "origin", origin.Name, "error", err)
		}
	}
}
