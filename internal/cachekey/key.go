// Package cachekey implements cache-key construction (§4.C) and the
// per-key version counter used for cache-bust semantics.
package cachekey

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edgestream/videocache/internal/domain/model"
)

// FallbackKey is returned when key computation panics/errors; logged by the
// caller (§4.C).
const FallbackKey = "video:error:fallback-key"

var sanitizePattern = regexp.MustCompile(`[^\w:/=.*-]`)

// Generate computes the stable KV key for (path, options). Equal
// TransformOptions (after normalization) produce byte-equal keys.
func Generate(path string, opts model.TransformOptions) (key string) {
	defer func() {
		if r := recover(); r != nil {
			key = FallbackKey
		}
	}()

	normalizedPath := normalizePath(path)
	mode := string(opts.Mode)
	if mode == "" {
		mode = string(model.ModeVideo)
	}

	params := buildParams(opts)

	raw := mode + ":" + normalizedPath
	if params != "" {
		raw += ":" + params
	}
	return sanitizePattern.ReplaceAllString(raw, "-")
}

func normalizePath(path string) string {
	return strings.TrimPrefix(path, "/")
}

// buildParams renders either "derivative={name}" (preferred when set) or an
// ordered, mode-dependent list of short param codes.
func buildParams(opts model.TransformOptions) string {
	if opts.Derivative != "" {
		return "derivative=" + opts.Derivative
	}

	var parts []string
	if opts.Width != nil {
		parts = append(parts, "w="+strconv.Itoa(*opts.Width))
	}
	if opts.Height != nil {
		parts = append(parts, "h="+strconv.Itoa(*opts.Height))
	}
	if opts.Time != "" {
		parts = append(parts, "t="+opts.Time)
	}
	if opts.Format != "" {
		parts = append(parts, "f="+opts.Format)
	}
	if opts.Quality != "" {
		parts = append(parts, "q="+string(opts.Quality))
	}
	if opts.Compression != "" {
		parts = append(parts, "c="+string(opts.Compression))
	}

	switch opts.Mode {
	case model.ModeSpritesheet:
		if opts.Columns > 0 {
			parts = append(parts, "cols="+strconv.Itoa(opts.Columns))
		}
		if opts.Rows > 0 {
			parts = append(parts, "rows="+strconv.Itoa(opts.Rows))
		}
		if opts.Interval != "" {
			parts = append(parts, "interval="+opts.Interval)
		}
	}

	return strings.Join(parts, ":")
}

// ChunkKey derives the key for chunk i of a chunked entry.
func ChunkKey(baseKey string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", baseKey, i)
}

// chunkInfix is the separator ChunkKey inserts between a base key and its
// chunk index.
const chunkInfix = "_chunk_"

// IsChunkKey reports whether key was produced by ChunkKey rather than
// naming a logical cache entry directly.
func IsChunkKey(key string) bool {
	return strings.Contains(key, chunkInfix)
}
