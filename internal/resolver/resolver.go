// Package resolver implements the origin resolver (§4.A): matching request
// paths against configured origins with regex captures, and resolving a
// matched origin down to one concrete source.
package resolver

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/edgestream/videocache/internal/domain/model"
)

// Resolver matches paths against an ordered list of origins. It is built
// once from RuntimeConfig.Origins and is safe for concurrent use (it holds
// no mutable state after construction).
type Resolver struct {
	origins []model.Origin
	logger  *slog.Logger
}

// New builds a Resolver over origins, in declaration order. Origins whose
// Matcher is nil (a compile failure upstream) are kept in the slice but can
// never match; callers that compile origins from config should skip adding
// those that failed to compile and log via ErrConfig instead.
func New(origins []model.Origin, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{origins: origins, logger: logger}
}

// Origins returns the arena of origins this resolver was built with, so
// callers can index OriginMatch.OriginIndex back into it.
func (r *Resolver) Origins() []model.Origin {
	return r.origins
}

// MatchOriginWithCaptures iterates origins in configured order; the first
// regex match wins. Capture groups are filled by numeric index (1..n) and,
// where CaptureGroups names a position, also by name.
func (r *Resolver) MatchOriginWithCaptures(path string) (model.OriginMatch, bool) {
	for idx, origin := range r.origins {
		if origin.Matcher == nil {
			continue
		}
		m := origin.Matcher.FindStringSubmatch(path)
		if m == nil {
			continue
		}

		captures := make(map[string]string, len(m))
		for i := 1; i < len(m); i++ {
			captures[strconv.Itoa(i)] = m[i]
			if i-1 < len(origin.CaptureGroups) && origin.CaptureGroups[i-1] != "" {
				captures[origin.CaptureGroups[i-1]] = m[i]
			}
		}

		return model.OriginMatch{
			OriginIndex:  idx,
			Captures:     captures,
			OriginalPath: path,
		}, true
	}
	return model.OriginMatch{}, false
}

// FindAllMatchingOrigins returns every origin matching path, in declaration
// order, used by the pipeline's fallback chain for multi-origin retry.
func (r *Resolver) FindAllMatchingOrigins(path string) []model.OriginMatch {
	var matches []model.OriginMatch
	for idx, origin := range r.origins {
		if origin.Matcher == nil {
			continue
		}
		m := origin.Matcher.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		captures := make(map[string]string, len(m))
		for i := 1; i < len(m); i++ {
			captures[strconv.Itoa(i)] = m[i]
			if i-1 < len(origin.CaptureGroups) && origin.CaptureGroups[i-1] != "" {
				captures[origin.CaptureGroups[i-1]] = m[i]
			}
		}
		matches = append(matches, model.OriginMatch{
			OriginIndex:  idx,
			Captures:     captures,
			OriginalPath: path,
		})
	}
	return matches
}

// ResolveOptions controls source selection within ResolvePathToSource.
type ResolveOptions struct {
	// PreferType, if non-empty, prefers the highest-priority source of that
	// type over plain priority order.
	PreferType model.SourceType
	// Exclude suppresses sources matching any listed exclusion, used to
	// retry after a failing source.
	Exclude []model.SourceExclusion
}

// ResolvePathToSource matches path to an origin, then picks one source from
// it: sources are sorted by priority ascending; PreferType (if set) is tried
// first among sources not excluded. Capture placeholders are substituted
// into the source's path template, and for Remote/Fallback sources the
// result is joined with BaseURL with exactly one "/" between them.
func (r *Resolver) ResolvePathToSource(path string, opts ResolveOptions) (model.OriginMatch, model.SourceResolution, bool) {
	match, ok := r.MatchOriginWithCaptures(path)
	if !ok {
		return model.OriginMatch{}, model.SourceResolution{}, false
	}

	origin := r.origins[match.OriginIndex]
	resolution, ok := ResolveSourceForOrigin(origin, match, opts)
	return match, resolution, ok
}

// ResolveSourceForOrigin picks one source from origin for an already-matched
// path, applying the same priority/PreferType/Exclude rules as
// ResolvePathToSource. Exported so multi-origin fallback (§4.I step 10) can
// resolve a source against a specific origin match returned by
// FindAllMatchingOrigins, rather than being limited to whichever origin
// MatchOriginWithCaptures would pick first.
func ResolveSourceForOrigin(origin model.Origin, match model.OriginMatch, opts ResolveOptions) (model.SourceResolution, bool) {
	if len(origin.Sources) == 0 {
		return model.SourceResolution{}, false
	}

	candidates := make([]model.Source, 0, len(origin.Sources))
	for _, s := range origin.Sources {
		if isExcluded(origin.Name, s, opts.Exclude) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return model.SourceResolution{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})

	chosen := candidates[0]
	if opts.PreferType != "" {
		for _, c := range candidates {
			if c.Type == opts.PreferType {
				chosen = c
				break
			}
		}
	}

	resolvedPath := substituteCaptures(chosen.PathTemplate, match.Captures)
	if resolvedPath == "" {
		resolvedPath = match.OriginalPath
	}

	resolution := model.SourceResolution{
		OriginType:   chosen.Type,
		ResolvedPath: resolvedPath,
		Auth:         chosen.Auth,
	}
	if chosen.Type == model.SourceTypeRemote || chosen.Type == model.SourceTypeFallback {
		resolution.SourceURL = joinURL(chosen.BaseURL, resolvedPath)
	}

	return resolution, true
}

func isExcluded(originName string, s model.Source, exclusions []model.SourceExclusion) bool {
	for _, e := range exclusions {
		if e.OriginName != originName || e.SourceType != s.Type {
			continue
		}
		if e.SourcePriority == nil || *e.SourcePriority == s.Priority {
			return true
		}
	}
	return false
}

func substituteCaptures(template string, captures map[string]string) string {
	if template == "" {
		return ""
	}
	out := template
	for name, val := range captures {
		out = strings.ReplaceAll(out, "$"+name, val)
		out = strings.ReplaceAll(out, "${"+name+"}", val)
	}
	return out
}

func joinURL(base, resolvedPath string) string {
	if base == "" {
		return resolvedPath
	}
	baseTrimmed := strings.TrimSuffix(base, "/")
	pathTrimmed := strings.TrimPrefix(resolvedPath, "/")
	return baseTrimmed + "/" + pathTrimmed
}
