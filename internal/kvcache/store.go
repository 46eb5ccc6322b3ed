package kvcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/edgestream/videocache/internal/cachekey"
	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/streaming"
)

// Size guard thresholds for keys and metadata payloads (§6 "Metadata size
// guards"): a warning logs at the lower bound, an error refuses the write
// at the upper bound, since an oversized key or metadata blob usually means
// a pathological path/option combination rather than a legitimate entry.
const (
	keyWarnBytes       = 400
	keyErrorBytes      = 512
	metadataWarnBytes  = 800
	metadataErrorBytes = 1024
)

// checkSizeGuards enforces the key/metadata size guards before a Put. meta
// is marshaled only to measure its encoded size — the actual marshaling for
// storage happens independently inside the KVStore implementation.
func (e *Engine) checkSizeGuards(key string, meta model.TransformationMetadata) error {
	if len(key) > keyErrorBytes {
		return fmt.Errorf("kvcache: key %d bytes exceeds %d byte limit", len(key), keyErrorBytes)
	}
	if len(key) > keyWarnBytes {
		e.logger.Warn("cache key exceeds size guard warning threshold", "key_len", len(key), "key", key)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("kvcache: marshal metadata for size guard: %w", err)
	}
	if len(metaBytes) > metadataErrorBytes {
		return fmt.Errorf("kvcache: metadata payload %d bytes exceeds %d byte limit for key %s", len(metaBytes), metadataErrorBytes, key)
	}
	if len(metaBytes) > metadataWarnBytes {
		e.logger.Warn("metadata payload exceeds size guard warning threshold", "metadata_len", len(metaBytes), "key", key)
	}
	return nil
}

// StoreInput carries everything store needs about the response being
// cached (§4.D).
type StoreInput struct {
	Body              io.Reader
	ContentType       string
	IsPartial         bool // true if the upstream response was 206 / carried Content-Range
	CacheTags         []string
	Mode              model.Mode
	Params            model.TransformOptions
	TTL               time.Duration
	StoreIndefinitely bool
}

// Store persists an artifact under key, choosing the single-entry or
// chunked path by size (§4.D). It refuses (returns false, nil — not an
// error) partial responses and payloads over the safety ceiling; orphan
// chunks from a failed chunked write are left for a future GC pass (§9 OQ3):
//
// TODO(orphan-gc): a background sweep that lists keys under "{key}_chunk_"
// for cache keys absent from CACHE_KV (i.e. no manifest was ever written,
// meaning a prior Store aborted mid-way) and deletes them. Not implemented
// per the pinned decision to leave this as explicit future work rather than
// inferring a policy the source never specified.
func (e *Engine) Store(ctx context.Context, key string, in StoreInput) (bool, error) {
	if in.IsPartial {
		return false, nil
	}

	ttl := defaultTTL(in.TTL, in.StoreIndefinitely)
	ceiling := e.cfg.SafetyCeiling

	peekLimit := e.cfg.SingleEntryMax + 1
	peek := make([]byte, peekLimit)
	n, readErr := io.ReadFull(in.Body, peek)
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("kvcache: read payload: %w", readErr)
	}

	now := time.Now().UnixMilli()
	var expiresAt *int64
	if ttl > 0 {
		e := now + ttl.Milliseconds()
		expiresAt = &e
	}

	baseMeta := model.TransformationMetadata{
		ContentType:       in.ContentType,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
		CacheTags:         in.CacheTags,
		StoreIndefinitely: in.StoreIndefinitely,
		Mode:              in.Mode,
		Params:            in.Params,
	}

	if (readErr == io.EOF || readErr == io.ErrUnexpectedEOF) && int64(n) <= e.cfg.SingleEntryMax {
		// Entire payload fit within the peek buffer: single-entry path.
		value := peek[:n]
		meta := baseMeta
		meta.IsChunked = false
		meta.ActualTotalVideoSize = int64(n)
		meta.CacheVersion = e.nextVersion(ctx, key)

		if err := e.checkSizeGuards(key, meta); err != nil {
			return false, err
		}
		if err := e.store.Put(ctx, key, value, meta, ttl); err != nil {
			return false, fmt.Errorf("kvcache: store single entry: %w", err)
		}
		return true, nil
	}

	// More data remains: chunked path. Rebuild the full stream and cap it
	// at the safety ceiling + 1 so we can detect overflow without
	// buffering the whole asset.
	rest := io.MultiReader(bytes.NewReader(peek[:n]), in.Body)
	limited := io.LimitReader(rest, ceiling+1)

	proc := streaming.NewProcessor(e.cfg.StandardChunkSize, e.locks, func(i int) string {
		return cachekey.ChunkKey(key, i)
	})

	// Chunk blobs and the manifest entry are not the media itself — the
	// chunk blobs are opaque byte ranges and the top-level entry holds the
	// marshaled manifest JSON. The real media type travels only in
	// manifest.OriginalContentType and is restored onto GetResult.Metadata
	// by getChunked.
	chunkMeta := baseMeta
	chunkMeta.IsChunked = true
	chunkMeta.ContentType = "application/octet-stream"

	sizes, total, err := proc.Process(ctx, limited, func(ctx context.Context, index int, chunk []byte) error {
		chunkKey := cachekey.ChunkKey(key, index)
		if err := e.checkSizeGuards(chunkKey, chunkMeta); err != nil {
			return err
		}
		cp := make([]byte, len(chunk))
		copy(cp, chunk)
		return e.store.Put(ctx, chunkKey, cp, chunkMeta, ttl)
	})
	if err != nil {
		return false, fmt.Errorf("kvcache: chunked store: %w", err)
	}
	if total > ceiling {
		return false, nil
	}

	manifest := model.ChunkManifest{
		TotalSize:           total,
		ChunkCount:          len(sizes),
		ActualChunkSizes:    sizes,
		StandardChunkSize:   e.cfg.StandardChunkSize,
		OriginalContentType: in.ContentType,
	}
	if err := manifest.Validate(); err != nil {
		return false, fmt.Errorf("kvcache: invalid manifest after store: %w", err)
	}

	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return false, fmt.Errorf("kvcache: marshal manifest: %w", err)
	}

	meta := baseMeta
	meta.IsChunked = true
	meta.ActualTotalVideoSize = total
	meta.CacheVersion = e.nextVersion(ctx, key)
	meta.ContentType = "application/json"

	if err := e.checkSizeGuards(key, meta); err != nil {
		return false, err
	}
	if err := e.store.Put(ctx, key, manifestBytes, meta, ttl); err != nil {
		return false, fmt.Errorf("kvcache: store manifest: %w", err)
	}
	return true, nil
}

// nextVersion reads the current version for the cache-version metadata
// field attached to a freshly stored entry (§4.C, §8 S1).
func (e *Engine) nextVersion(ctx context.Context, key string) int {
	if e.versioner == nil {
		return 1
	}
	v, err := e.versioner.Current(ctx, key)
	if err != nil {
		e.logger.Warn("version read failed during store", "cache_key", key, "error", err)
		return 1
	}
	return v
}
