package kvcache

import "github.com/edgestream/videocache/internal/domain/repository"

// checkSingleEntryIntegrity enforces property 3/10 (§8): a single-entry
// body's length must exactly equal the recorded total size. This build
// enforces strict byte-exact equality — no 2 KiB / 0.1% tolerance window —
// per the pinned decision in SPEC_FULL.md §9 (OQ4); a source implementation
// allowed such a tolerance, but it is dropped here so integrity checks stay
// unambiguous and trivially testable.
func checkSingleEntryIntegrity(body []byte, expectedSize int64) error {
	if int64(len(body)) != expectedSize {
		return repository.ErrIntegrityViolation
	}
	return nil
}

// checkChunkIntegrity enforces the same strict rule per individual chunk
// against the manifest's recorded size for that index.
func checkChunkIntegrity(chunk []byte, expectedSize int64) error {
	if int64(len(chunk)) != expectedSize {
		return repository.ErrIntegrityViolation
	}
	return nil
}
