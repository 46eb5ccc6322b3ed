package repository

import "errors"

// Sentinel errors classifying the error kinds named in §7. Callers compare
// with errors.Is; nothing here is a string-substring check except where the
// spec itself mandates it (KV rate-limit detection, see internal/cachekey).
var (
	// ErrNotFound covers a cache miss or an unresolved origin/source.
	ErrNotFound = errors.New("not found")

	// ErrIntegrityViolation covers a single-entry or chunk size mismatch, or
	// an invalid manifest structure. Callers must never serve the bytes.
	ErrIntegrityViolation = errors.New("cache integrity violation")

	// ErrOversizedAsset is returned when a source exceeds the transform
	// ceiling and the pipeline must bypass the cache entirely.
	ErrOversizedAsset = errors.New("asset exceeds transform size ceiling")

	// ErrUpstreamTransform covers a non-2xx response from the upstream media
	// transformation service.
	ErrUpstreamTransform = errors.New("upstream transform error")

	// ErrConfig covers a malformed origin regex or a missing required
	// binding; the affected origin/feature is skipped, not fatal.
	ErrConfig = errors.New("configuration error")

	// ErrNoMatchingOrigin is returned when no configured origin matches a
	// request path.
	ErrNoMatchingOrigin = errors.New("no matching origin")

	// ErrNoValidSource is returned when an origin matched but no source
	// could be resolved for it.
	ErrNoValidSource = errors.New("no valid source")

	// ErrObjectNotFound is returned when an object cannot be found in the
	// backing object store.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not
	// exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrUnsatisfiableRange is returned by the range parser when the
	// requested range cannot be satisfied against the known total size.
	ErrUnsatisfiableRange = errors.New("unsatisfiable range")

	// ErrClientDisconnect classifies a pipe write failure as the client
	// having gone away, distinct from a transient or integrity error.
	ErrClientDisconnect = errors.New("client disconnected")
)
