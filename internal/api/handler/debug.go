package handler

import (
	"net/http"

	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/kvcache"
)

// DebugConfigHandler serves GET /debug/config: a read-only dump of the
// runtime configuration loaded at startup (§6; SPEC_FULL.md §6). It never
// mutates anything — the admin upload surface that would is out of scope.
type DebugConfigHandler struct {
	cfg repository.RuntimeConfig
}

func NewDebugConfigHandler(cfg repository.RuntimeConfig) *DebugConfigHandler {
	return &DebugConfigHandler{cfg: cfg}
}

func (h *DebugConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("debug") {
		Error(w, http.StatusForbidden, "DebugDisabled", "append ?debug to view this route")
		return
	}
	JSON(w, http.StatusOK, h.cfg)
}

// DebugCacheEntry is the wire shape of one entry in the /debug/cache
// response body.
type DebugCacheEntry struct {
	Key          string `json:"key"`
	ContentType  string `json:"content_type"`
	IsChunked    bool   `json:"is_chunked"`
	TotalSize    int64  `json:"total_size"`
	CacheVersion int    `json:"cache_version"`
}

// DebugCacheHandler serves GET /debug/cache?path=..., listing every cache
// entry whose key contains path (§4.D list; SPEC_FULL.md §8).
type DebugCacheHandler struct {
	engine *kvcache.Engine
}

func NewDebugCacheHandler(engine *kvcache.Engine) *DebugCacheHandler {
	return &DebugCacheHandler{engine: engine}
}

func (h *DebugCacheHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		Error(w, http.StatusBadRequest, "MissingPath", "?path= is required")
		return
	}

	entries, err := h.engine.ListBySourcePath(r.Context(), path)
	if err != nil {
		Error(w, http.StatusInternalServerError, "InternalError", "failed to list cache entries")
		return
	}

	out := make([]DebugCacheEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DebugCacheEntry{
			Key:          e.Key,
			ContentType:  e.Metadata.ContentType,
			IsChunked:    e.Metadata.IsChunked,
			TotalSize:    e.Metadata.ActualTotalVideoSize,
			CacheVersion: e.Metadata.CacheVersion,
		})
	}
	JSON(w, http.StatusOK, out)
}
