// Package model holds the domain types shared across the cache pipeline:
// transform options, origins and sources, cache keys, and the metadata
// attached to stored artifacts.
package model

// Mode is the kind of media transformation requested.
type Mode string

const (
	ModeVideo       Mode = "video"
	ModeFrame       Mode = "frame"
	ModeSpritesheet Mode = "spritesheet"
	ModeAudio       Mode = "audio"
)

// Quality is a closed-set quality hint for the upstream transform.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityAuto   Quality = "auto"
)

// Compression is a closed-set compression hint for the upstream transform.
type Compression string

const (
	CompressionLow    Compression = "low"
	CompressionMedium Compression = "medium"
	CompressionHigh   Compression = "high"
	CompressionAuto   Compression = "auto"
)

// Fit controls how the output frame is fitted to the requested dimensions.
type Fit string

const (
	FitContain   Fit = "contain"
	FitCover     Fit = "cover"
	FitScaleDown Fit = "scale-down"
)

// Preload is the HTML5 video preload hint carried through to the player.
type Preload string

const (
	PreloadNone     Preload = "none"
	PreloadMetadata Preload = "metadata"
	PreloadAuto     Preload = "auto"
)

// Source records how a TransformOptions value was populated, for diagnostics
// and for responsive-width heuristics not to clobber an explicit choice.
type OptionSource string

const (
	SourceParams             OptionSource = "params"
	SourceDerivative         OptionSource = "derivative"
	SourceIMQuery            OptionSource = "imquery"
	SourceIMQueryDerivative  OptionSource = "imquery-derivative"
	SourceResponsiveWidth    OptionSource = "responsive-width"
	SourceResponsiveHint     OptionSource = "responsive-hint"
)

// TransformOptions is the canonical, normalized input to cache-key
// computation and to the upstream transform call. At most one of Derivative
// vs the explicit width/height/quality/etc. fields originates a given field;
// when both exist, derivative values seed defaults and explicit values
// override (enforced by the option normalizer, not by this type).
type TransformOptions struct {
	Mode Mode

	Width  *int
	Height *int

	Format      string
	Quality     Quality
	Compression Compression
	Fit         Fit

	// Mode-specific fields.
	Time     string // duration string, e.g. "5s"
	Duration string
	Columns  int
	Rows     int
	Interval string

	Audio     bool
	Loop      bool
	Autoplay  bool
	Muted     bool
	Preload   Preload

	Derivative string
	Filename   string

	// Version is the cache-bust counter attached at lookup time (§4.C). It is
	// not part of the cache key; it only travels with the upstream request.
	Version int

	CustomData map[string]any

	// Source records provenance, for diagnostics only.
	Source OptionSource
}

// Clone returns a deep-enough copy so callers may mutate Width/Height/
// CustomData without aliasing the original.
func (o TransformOptions) Clone() TransformOptions {
	clone := o
	if o.Width != nil {
		w := *o.Width
		clone.Width = &w
	}
	if o.Height != nil {
		h := *o.Height
		clone.Height = &h
	}
	if o.CustomData != nil {
		clone.CustomData = make(map[string]any, len(o.CustomData))
		for k, v := range o.CustomData {
			clone.CustomData[k] = v
		}
	}
	return clone
}

// Derivative is a named bundle of transform parameters. Fields left at their
// zero value are considered "unset" by the normalizer's overlay logic, except
// where the zero value is itself meaningful (callers should prefer pointers
// for width/height, which this type does).
type Derivative struct {
	Name        string
	Width       *int
	Height      *int
	Format      string
	Quality     Quality
	Compression Compression
	Fit         Fit
	Mode        Mode
}
