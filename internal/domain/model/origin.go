package model

import "regexp"

// SourceType identifies the kind of fetch target a Source represents.
type SourceType string

const (
	SourceTypeR2       SourceType = "r2"
	SourceTypeRemote   SourceType = "remote"
	SourceTypeFallback SourceType = "fallback"
)

// AuthRef names an auth binding resolved by configuration the caller is
// expected to already hold credentials for; this repo only threads the
// reference through, it does not resolve secrets itself.
type AuthRef struct {
	Name string
}

// Source is a concrete fetch target belonging to an Origin. Exactly one of
// the type-specific fields is meaningful, selected by Type.
type Source struct {
	Type     SourceType
	Priority int // lower = tried first

	// BaseURL is used by Remote and Fallback; it is joined with the resolved
	// path to build SourceURL, inserting exactly one "/" between them.
	BaseURL string
	Auth    *AuthRef

	// PathTemplate, if set, has capture placeholders like "$1" or "${name}"
	// substituted before being joined with BaseURL (Remote/Fallback) or used
	// directly as the object key (R2).
	PathTemplate string
}

// OriginDefaults are applied to TransformOptions only for fields not already
// set by params/derivative (§4.B).
type OriginDefaults struct {
	Quality          Quality
	VideoCompression Compression
	TTLOk            int // seconds
}

// Origin is a configuration entry mapping a path pattern to an ordered list
// of sources. Matcher must compile; Sources must be non-empty for the origin
// to be usable by resolvePathToSource (an origin with zero sources still
// matches paths, but source resolution fails for it).
type Origin struct {
	Name          string
	Matcher       *regexp.Regexp
	CaptureGroups []string // ordered names, parallel to regex capture groups
	Sources       []Source
	Defaults      OriginDefaults
	Auth          *AuthRef
}

// OriginMatch is the result of matching a path against the configured
// origins. OriginIndex (rather than a pointer back into Origin) avoids the
// cyclic-reference problem the source system has between Origin and Source;
// callers index into the arena (Config.Origins) to get the full Origin.
type OriginMatch struct {
	OriginIndex  int
	Captures     map[string]string // both "1","2",... and any named groups
	OriginalPath string
}

// SourceResolution is the result of resolving a matched origin to one
// concrete source.
type SourceResolution struct {
	OriginType   SourceType
	ResolvedPath string
	SourceURL    string // empty for R2 (object key lives in ResolvedPath)
	Auth         *AuthRef
}

// SourceExclusion suppresses a source for a single fetch attempt, used to
// retry after a failing source without re-trying it.
type SourceExclusion struct {
	OriginName     string
	SourceType     SourceType
	SourcePriority *int // nil = exclude all sources of SourceType for this origin
}
