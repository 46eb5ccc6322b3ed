// Package rangeh implements HTTP Range header handling (§4.H).
//
// Unsatisfiable ranges never produce a 416: per the pinned decision in
// SPEC_FULL.md §9 (OQ1), a request whose Range cannot be satisfied against
// the resolved size is served as a full 200 response carrying
// X-Range-Recovery: true, so a client that guessed a stale length still
// gets the asset instead of an error.
package rangeh

import (
	"fmt"
	"strconv"
	"strings"
)

// RangeRecoveryHeader marks a response that fell back to a full body
// because the requested range could not be satisfied.
const RangeRecoveryHeader = "X-Range-Recovery"

// Range is an inclusive byte range resolved against a known total size.
type Range struct {
	Start, End int64 // inclusive
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 { return r.End - r.Start + 1 }

// ContentRange renders the Content-Range header value for a 206 response.
func (r Range) ContentRange(totalSize int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, totalSize)
}

// Result is the outcome of parsing and clamping a Range header.
type Result struct {
	// Satisfiable is false when the header was absent, malformed, or fell
	// outside [0, totalSize) — the caller must then serve the full body
	// with RangeRecoveryHeader set rather than a 416 (§9 OQ1).
	Satisfiable bool
	Range       Range
}

// Parse parses a single-range "bytes=start-end" Range header against
// totalSize and clamps it to the valid span. Multi-range requests (containing
// a comma) are treated as unsatisfiable and fall back to the full body,
// matching the single-range focus of §4.H.
func Parse(header string, totalSize int64) Result {
	if header == "" || totalSize <= 0 {
		return Result{Satisfiable: false}
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Result{Satisfiable: false}
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return Result{Satisfiable: false}
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return Result{Satisfiable: false}
	}

	startStr, endStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	var start, end int64
	switch {
	case startStr == "" && endStr == "":
		return Result{Satisfiable: false}
	case startStr == "":
		// Suffix range: "bytes=-500" means the last 500 bytes.
		suffixLen, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffixLen <= 0 {
			return Result{Satisfiable: false}
		}
		if suffixLen > totalSize {
			suffixLen = totalSize
		}
		start = totalSize - suffixLen
		end = totalSize - 1
	case endStr == "":
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 {
			return Result{Satisfiable: false}
		}
		start = s
		end = totalSize - 1
	default:
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s {
			return Result{Satisfiable: false}
		}
		start, end = s, e
	}

	if start < 0 || start >= totalSize {
		return Result{Satisfiable: false}
	}
	if end >= totalSize {
		end = totalSize - 1
	}

	return Result{Satisfiable: true, Range: Range{Start: start, End: end}}
}
