package kvcache

import (
	"context"
	"encoding/json"

	"github.com/edgestream/videocache/internal/cachekey"
	"github.com/edgestream/videocache/internal/domain/model"
)

// ListEntry is one logical cache entry surfaced by ListBySourcePath: a key
// together with the metadata a caller would see from Get (§4.D list; §8
// supplemented cache-tag/path listing, backing the read-only GET
// /debug/cache diagnostic route).
type ListEntry struct {
	Key      string
	Metadata model.TransformationMetadata
}

// ListBySourcePath returns every logical CACHE_KV entry whose key contains
// the given source path fragment, each augmented with its stored metadata
// and current version. Chunk keys (the "{key}_chunk_{n}" blobs written
// alongside a chunked entry's manifest) are not logical entries on their
// own and are filtered out.
func (e *Engine) ListBySourcePath(ctx context.Context, path string) ([]ListEntry, error) {
	keys, err := e.store.Keys(ctx, path)
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(keys))
	for _, key := range keys {
		if cachekey.IsChunkKey(key) {
			continue
		}

		entry, err := e.store.Get(ctx, key)
		if err != nil {
			// Entry disappeared (expired/evicted) between the Keys scan and
			// this Get: skip rather than fail the whole listing.
			continue
		}

		meta := entry.Metadata
		if meta.IsChunked {
			var manifest model.ChunkManifest
			if err := json.Unmarshal(entry.Value, &manifest); err == nil {
				meta.ContentType = manifest.OriginalContentType
			}
		}
		if e.versioner != nil {
			if v, err := e.versioner.Current(ctx, key); err == nil {
				meta.CacheVersion = v
			}
		}

		entries = append(entries, ListEntry{Key: key, Metadata: meta})
	}
	return entries, nil
}
