package model

import "errors"

// ErrInvalidManifest is returned by ChunkManifest.Validate when the manifest
// violates the chunk-sum or chunk-size invariants.
var ErrInvalidManifest = errors.New("invalid chunk manifest")

// TransformationMetadata is the record attached to every stored KV entry,
// whether a single-entry artifact, a chunk manifest, or an individual chunk
// blob.
type TransformationMetadata struct {
	ContentType   string
	ContentLength int64
	CreatedAt     int64 // ms epoch
	ExpiresAt     *int64

	CacheTags    []string
	CacheVersion int

	IsChunked bool
	// ActualTotalVideoSize is authoritative: for a single entry it equals the
	// stored blob length; for a chunked entry it equals
	// sum(manifest.ActualChunkSizes) == manifest.TotalSize.
	ActualTotalVideoSize int64

	StoreIndefinitely bool

	Mode   Mode
	Params TransformOptions

	CustomData map[string]any
}

// ChunkManifest is the JSON value stored at the base cache key for a
// chunked entry.
type ChunkManifest struct {
	TotalSize           int64   `json:"totalSize"`
	ChunkCount          int     `json:"chunkCount"`
	ActualChunkSizes    []int64 `json:"actualChunkSizes"`
	StandardChunkSize   int64   `json:"standardChunkSize"`
	OriginalContentType string  `json:"originalContentType"`
}

// Validate checks the manifest invariants from §3: chunk count matches the
// size list, sizes sum to the total, every chunk is non-empty, and only the
// last chunk may be shorter than StandardChunkSize.
func (m ChunkManifest) Validate() error {
	if m.ChunkCount != len(m.ActualChunkSizes) {
		return ErrInvalidManifest
	}
	var sum int64
	for i, sz := range m.ActualChunkSizes {
		if sz <= 0 {
			return ErrInvalidManifest
		}
		if sz > m.StandardChunkSize {
			return ErrInvalidManifest
		}
		if i < len(m.ActualChunkSizes)-1 && sz != m.StandardChunkSize {
			return ErrInvalidManifest
		}
		sum += sz
	}
	if sum != m.TotalSize {
		return ErrInvalidManifest
	}
	return nil
}
