// Package options implements the option normalizer (§4.B): deriving a
// canonical TransformOptions from URL params, request headers, derivative
// presets, and origin-level defaults.
package options

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/edgestream/videocache/internal/domain/model"
)

// breakpoints is the closed-set responsive-width table (§4.B, SPEC_FULL.md
// §8 supplemented feature). No code reads it: applyResponsiveHeuristics
// hard-codes the mobile, tablet and desktop widths, and never picks "max".
var breakpoints = []struct {
	name  string
	width int
}{
	{"mobile", 480},
	{"tablet", 768},
	{"desktop", 1280},
	{"max", 1920},
}

// vendorTranslation maps an alternate vendor's query-parameter names to
// canonical ones (§4.B "alternate-vendor translation table").
var vendorTranslation = map[string]string{
	"imwidth":  "width",
	"imheight": "height",
}

// Normalizer builds TransformOptions from inbound requests against a fixed
// set of derivatives and validators loaded from configuration.
type Normalizer struct {
	derivatives  map[string]model.Derivative
	validOptions map[string][]string
	defaults     model.TransformOptions
}

// New builds a Normalizer over the given derivative presets, closed-set
// validators, and origin-independent defaults.
func New(derivatives map[string]model.Derivative, validOptions map[string][]string, defaults model.TransformOptions) *Normalizer {
	return &Normalizer{derivatives: derivatives, validOptions: validOptions, defaults: defaults}
}

// Normalize derives options for path from the request's query parameters and
// headers, then overlays origin-level defaults for fields still unset.
func (n *Normalizer) Normalize(r *http.Request, originDefaults model.OriginDefaults) model.TransformOptions {
	opts := n.defaults.Clone()
	opts.Mode = model.ModeVideo

	q := r.URL.Query()
	translated := translateVendorParams(q)

	explicitDims := false

	if name := firstNonEmpty(q.Get("derivative")); name != "" {
		if d, ok := n.derivatives[name]; ok {
			applyDerivative(&opts, d)
			opts.Derivative = name
			opts.Source = model.SourceDerivative
		}
	}

	if n.applyExplicitParams(&opts, q) {
		explicitDims = true
		opts.Source = model.SourceParams
	}

	if vendorTriggered(q) {
		if opts.Derivative == "" {
			if derivName, ok := n.autoSelectDerivative(translated); ok {
				if d, ok := n.derivatives[derivName]; ok {
					applyDerivative(&opts, d)
					opts.Derivative = derivName
					opts.Source = model.SourceIMQueryDerivative
					explicitDims = true
				}
			} else {
				n.applyExplicitParams(&opts, translated)
				opts.Source = model.SourceIMQuery
				explicitDims = true
			}
		}
	}

	if !explicitDims && opts.Derivative == "" {
		n.applyResponsiveHeuristics(&opts, r)
	}

	if originDefaults.Quality != "" && opts.Quality == "" {
		opts.Quality = originDefaults.Quality
	}
	if originDefaults.VideoCompression != "" && opts.Compression == "" {
		opts.Compression = originDefaults.VideoCompression
	}

	return opts
}

// applyExplicitParams overlays any known, valid params from q onto opts.
// Returns true if width or height was set (used to gate responsive
// heuristics per §4.B: "must not override explicit dimensions").
func (n *Normalizer) applyExplicitParams(opts *model.TransformOptions, q url.Values) bool {
	setDims := false

	if v := q.Get("width"); v != "" {
		if w, err := strconv.Atoi(v); err == nil && w > 0 {
			opts.Width = &w
			setDims = true
		}
	}
	if v := q.Get("height"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			opts.Height = &h
			setDims = true
		}
	}
	if v := q.Get("mode"); v != "" && n.isValid("mode", v) {
		opts.Mode = model.Mode(v)
	}
	if v := q.Get("fit"); v != "" && n.isValid("fit", v) {
		opts.Fit = model.Fit(v)
	}
	if v := q.Get("format"); v != "" {
		opts.Format = v
	}
	if v := q.Get("quality"); v != "" && n.isValid("quality", v) {
		opts.Quality = model.Quality(v)
	}
	if v := q.Get("compression"); v != "" && n.isValid("compression", v) {
		opts.Compression = model.Compression(v)
	}
	if v := q.Get("time"); v != "" {
		opts.Time = v
	}
	if v := q.Get("duration"); v != "" {
		opts.Duration = v
	}
	if v := q.Get("columns"); v != "" {
		if c, err := strconv.Atoi(v); err == nil {
			opts.Columns = c
		}
	}
	if v := q.Get("rows"); v != "" {
		if rws, err := strconv.Atoi(v); err == nil {
			opts.Rows = rws
		}
	}
	if v := q.Get("interval"); v != "" {
		opts.Interval = v
	}
	if v := q.Get("audio"); v != "" {
		opts.Audio = parseBool(v)
	}
	if v := q.Get("loop"); v != "" {
		opts.Loop = parseBool(v)
	}
	if v := q.Get("autoplay"); v != "" {
		opts.Autoplay = parseBool(v)
	}
	if v := q.Get("muted"); v != "" {
		opts.Muted = parseBool(v)
	}
	if v := q.Get("preload"); v != "" && n.isValid("preload", v) {
		opts.Preload = model.Preload(v)
	}
	if v := q.Get("fps"); v != "" {
		setCustom(opts, "fps", v)
	}
	if v := q.Get("speed"); v != "" {
		setCustom(opts, "speed", v)
	}
	if v := q.Get("rotate"); v != "" {
		setCustom(opts, "rotate", v)
	}
	if v := q.Get("crop"); v != "" {
		setCustom(opts, "crop", v)
	}
	if v := q.Get("filename"); v != "" {
		opts.Filename = v
	}

	return setDims
}

func (n *Normalizer) isValid(field, value string) bool {
	allowed, ok := n.validOptions[field]
	if !ok {
		return true // unknown validator set: accept (unknown params are ignored elsewhere, not here)
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

func applyDerivative(opts *model.TransformOptions, d model.Derivative) {
	if d.Width != nil {
		w := *d.Width
		opts.Width = &w
	}
	if d.Height != nil {
		h := *d.Height
		opts.Height = &h
	}
	if d.Format != "" {
		opts.Format = d.Format
	}
	if d.Quality != "" {
		opts.Quality = d.Quality
	}
	if d.Compression != "" {
		opts.Compression = d.Compression
	}
	if d.Fit != "" {
		opts.Fit = d.Fit
	}
	if d.Mode != "" {
		opts.Mode = d.Mode
	}
}

// autoSelectDerivative picks the closest derivative by requested width (or
// height if width is absent): a breakpoint match if only width is known,
// percentage-distance match otherwise. Deterministic for equal inputs: ties
// are broken by the lexicographically smaller derivative name.
func (n *Normalizer) autoSelectDerivative(translated url.Values) (string, bool) {
	widthStr := translated.Get("width")
	heightStr := translated.Get("height")
	if widthStr == "" && heightStr == "" {
		return "", false
	}

	width, _ := strconv.Atoi(widthStr)
	height, _ := strconv.Atoi(heightStr)

	type candidate struct {
		name     string
		distance float64
	}
	var candidates []candidate

	for name, d := range n.derivatives {
		if d.Width == nil {
			continue
		}
		var distance float64
		if height == 0 || d.Height == nil {
			// Breakpoint match: closest derivative width not exceeding the
			// requested width; fall back to smallest excess otherwise.
			if *d.Width <= width {
				distance = float64(width - *d.Width)
			} else {
				distance = float64(*d.Width-width) + 1_000_000 // deprioritize overshoot
			}
		} else {
			dw := percentageDistance(float64(width), float64(*d.Width))
			dh := percentageDistance(float64(height), float64(*d.Height))
			distance = dw + dh
		}
		candidates = append(candidates, candidate{name: name, distance: distance})
	}

	if len(candidates) == 0 {
		return "", false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.distance < best.distance || (c.distance == best.distance && c.name < best.name) {
			best = c
		}
	}
	return best.name, true
}

func percentageDistance(requested, candidate float64) float64 {
	if candidate == 0 {
		return requested
	}
	return abs((requested - candidate) / candidate)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// applyResponsiveHeuristics derives dimensions from client-hint headers when
// no explicit dimensions and no matching derivative were found. It must not
// override explicit dimensions or derivative dimensions (caller guarantees
// this by only calling it when neither is set).
func (n *Normalizer) applyResponsiveHeuristics(opts *model.TransformOptions, r *http.Request) {
	if w := r.Header.Get("Viewport-Width"); w != "" {
		if width, err := strconv.Atoi(w); err == nil && width > 0 {
			opts.Width = &width
			opts.Source = model.SourceResponsiveHint
			return
		}
	}
	if w := r.Header.Get("Sec-CH-Viewport-Width"); w != "" {
		if width, err := strconv.Atoi(w); err == nil && width > 0 {
			opts.Width = &width
			opts.Source = model.SourceResponsiveHint
			return
		}
	}

	// Device-class estimation from User-Agent as a last resort.
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	width := 1280
	switch {
	case strings.Contains(ua, "mobile"):
		width = 480
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		width = 768
	}
	opts.Width = &width
	opts.Source = model.SourceResponsiveWidth
}

func vendorTriggered(q url.Values) bool {
	for key := range vendorTranslation {
		if q.Get(key) != "" {
			return true
		}
	}
	return q.Get("imref") != ""
}

func translateVendorParams(q url.Values) url.Values {
	out := url.Values{}
	for k, vs := range q {
		canonical, known := vendorTranslation[k]
		if !known {
			canonical = k
		}
		for _, v := range vs {
			out.Add(canonical, v)
		}
	}
	return out
}

func setCustom(opts *model.TransformOptions, key, value string) {
	if opts.CustomData == nil {
		opts.CustomData = map[string]any{}
	}
	opts.CustomData[key] = value
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
