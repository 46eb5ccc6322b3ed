package repository

import (
	"context"
	"io"
	"time"
)

// ObjectStorage defines the interface for the object-store Source variant
// (R2 in §3/§4.A): fetching origin bytes by resolved key, and a cheap
// size pre-check used by the pipeline's oversized-asset bypass (§4.I step 8).
// Implementations are provided by the infrastructure layer (MinIO/S3).
type ObjectStorage interface {
	// Download retrieves an object from the store by its resolved key.
	// Caller is responsible for closing the returned ReadCloser.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadRange retrieves a byte range [offset, offset+length) of an
	// object. The oversized-asset direct-stream bypass does not use it; it
	// streams the whole object via Download.
	DownloadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// Stat returns size/content-type metadata without transferring the body;
	// backs the HEAD-style size pre-check (§4.I step 8).
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Exists checks if an object exists in the storage.
	Exists(ctx context.Context, key string) (bool, error)
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}
