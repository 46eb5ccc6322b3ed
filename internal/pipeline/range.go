package pipeline

import (
	"math"
	"net/http"

	"github.com/edgestream/videocache/internal/rangeh"
)

// parseRequestRange resolves the incoming Range header before the real
// total size is known (§4.D get needs a *rangeh.Range up front, but the
// total only becomes available once the KV entry is read). It parses
// against a placeholder total and lets kvcache.Engine.Get re-validate the
// result against the real size, flagging RangeRecovered when the guess
// does not hold up.
//
// This degrades one case: a suffix range ("bytes=-500") resolves Start
// against math.MaxInt64 rather than the real size, so it always fails
// Engine.Get's bounds check and falls back to a full-body response with
// X-Range-Recovery set. That is a correct outcome under the "never 416"
// rule (§9 OQ1), just not the most efficient one for that one range form.
func parseRequestRange(r *http.Request) *rangeh.Range {
	header := r.Header.Get("Range")
	if header == "" {
		return nil
	}
	result := rangeh.Parse(header, math.MaxInt64)
	if !result.Satisfiable {
		return nil
	}
	rng := result.Range
	return &rng
}
