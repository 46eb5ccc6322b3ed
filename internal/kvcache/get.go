package kvcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/edgestream/videocache/internal/cachekey"
	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/rangeh"
	"github.com/edgestream/videocache/internal/streaming"
)

// GetResult is the outcome of a cache read (§4.D get).
type GetResult struct {
	Hit      bool
	Metadata model.TransformationMetadata

	// Chunked is false for a single-entry hit, whose full (possibly
	// range-sliced) body is in Body.
	Chunked  bool
	Body     []byte
	Manifest model.ChunkManifest

	// RangeRecovered is set whenever a Range was requested but could not be
	// satisfied; the caller then serves the full body (§9 OQ1 decision).
	RangeRecovered bool
	Served         *rangeh.Range
}

// Get reads the entry at key (§4.D). A cache miss — absent key, or an entry
// that fails strict integrity — returns Hit:false and bumps the version
// (§4.C) so the next store uses a fresh version number; it is never an
// error.
func (e *Engine) Get(ctx context.Context, key string, rng *rangeh.Range) (GetResult, error) {
	entry, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.bumpOnMiss(ctx, key)
			return GetResult{Hit: false}, nil
		}
		return GetResult{}, fmt.Errorf("kvcache: get base entry: %w", err)
	}

	if entry.Metadata.IsChunked {
		return e.getChunked(ctx, key, entry.Metadata, rng)
	}
	return e.getSingle(ctx, key, entry, rng)
}

func (e *Engine) getSingle(ctx context.Context, key string, entry repository.KVEntry, rng *rangeh.Range) (GetResult, error) {
	if err := checkSingleEntryIntegrity(entry.Value, entry.Metadata.ActualTotalVideoSize); err != nil {
		e.bumpOnMiss(ctx, key)
		return GetResult{Hit: false}, nil
	}

	if rng == nil {
		return GetResult{Hit: true, Metadata: entry.Metadata, Body: entry.Value}, nil
	}

	total := entry.Metadata.ActualTotalVideoSize
	if rng.Start < 0 || rng.End >= total || rng.Start > rng.End {
		return GetResult{Hit: true, Metadata: entry.Metadata, Body: entry.Value, RangeRecovered: true}, nil
	}

	sliced := entry.Value[rng.Start : rng.End+1]
	served := *rng
	return GetResult{Hit: true, Metadata: entry.Metadata, Body: sliced, Served: &served}, nil
}

func (e *Engine) getChunked(ctx context.Context, key string, meta model.TransformationMetadata, rng *rangeh.Range) (GetResult, error) {
	entry, err := e.store.Get(ctx, key)
	if err != nil {
		return GetResult{}, fmt.Errorf("kvcache: re-read manifest: %w", err)
	}

	var manifest model.ChunkManifest
	if err := json.Unmarshal(entry.Value, &manifest); err != nil {
		e.bumpOnMiss(ctx, key)
		return GetResult{Hit: false}, nil
	}
	if err := manifest.Validate(); err != nil {
		e.bumpOnMiss(ctx, key)
		return GetResult{Hit: false}, nil
	}

	recovered := false
	if rng != nil && (rng.Start < 0 || rng.End >= manifest.TotalSize || rng.Start > rng.End) {
		rng = nil
		recovered = true
	}

	// The stored entry's own ContentType describes the manifest JSON, not
	// the media it indexes — restore the real type from the manifest.
	meta.ContentType = manifest.OriginalContentType

	res := GetResult{Hit: true, Metadata: meta, Chunked: true, Manifest: manifest, RangeRecovered: recovered}
	if rng == nil {
		// No range, or an unsatisfiable one (RangeRecovered): the caller
		// streams the full body, setting X-Range-Recovery in the latter case.
		return res, nil
	}
	served := *rng
	res.Served = &served
	return res, nil
}

// StreamTo writes result's body to dst: the raw bytes for a single-entry
// hit, or the chunked sequence (full or range) via internal/streaming for a
// chunked hit. Call after inspecting GetResult.Chunked.
func (e *Engine) StreamTo(ctx context.Context, key string, result GetResult, dst io.Writer) error {
	if !result.Chunked {
		_, err := dst.Write(result.Body)
		return err
	}

	read := func(ctx context.Context, index int) ([]byte, error) {
		chunkKey := cachekey.ChunkKey(key, index)
		entry, err := e.store.Get(ctx, chunkKey)
		if err != nil {
			return nil, fmt.Errorf("kvcache: fetch chunk %d: %w", index, err)
		}
		if err := checkChunkIntegrity(entry.Value, result.Manifest.ActualChunkSizes[index]); err != nil {
			return nil, err
		}
		return entry.Value, nil
	}

	if result.Served == nil {
		return streaming.StreamFull(ctx, result.Manifest.ChunkCount, read, dst, e.logger)
	}

	standardSize := result.Manifest.StandardChunkSize
	firstChunk := int(result.Served.Start / standardSize)
	lastChunk := int(result.Served.End / standardSize)
	return streaming.StreamRange(ctx, firstChunk, lastChunk, standardSize, result.Served.Start, result.Served.End, read, dst, e.logger)
}

func (e *Engine) bumpOnMiss(ctx context.Context, key string) {
	if e.versioner == nil {
		return
	}
	e.versioner.Bump(ctx, key)
}
