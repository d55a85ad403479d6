// Package style provides the artistic filter pipelines and the dispatcher
// that maps a style identifier to one of them.
//
// Every pipeline is a deterministic, classical image-processing chain
// (bilateral smoothing, adaptive thresholding, k-means color quantization,
// blur composition). Pipelines are stateless and safe for concurrent use.
package style

import "strings"

// Style identifies one of the fixed artistic pipelines.
type Style string

const (
	// Ghibli produces a soft, saturated painted look.
	Ghibli Style = "ghibli"
	// Cartoon combines a k-means reduced palette with dark outlines.
	Cartoon Style = "cartoon"
	// Sketch produces a pencil-sketch luminance image.
	Sketch Style = "sketch"
	// OilPainting simulates brush strokes by regional color averaging.
	OilPainting Style = "oil_painting"
	// Watercolor smooths heavily and reduces the palette to 16 colors.
	Watercolor Style = "watercolor"
	// Anime is a flatter cartoon variant with 6 colors.
	Anime Style = "anime"
)

// Default is the style used when an identifier cannot be resolved.
const Default = Cartoon

var titles = map[Style]string{
	Ghibli:      "Studio Ghibli Style",
	Cartoon:     "Cartoon Style",
	Sketch:      "Pencil Sketch",
	OilPainting: "Oil Painting",
	Watercolor:  "Watercolor",
	Anime:       "Anime Style",
}

// All returns every supported style in a stable order.
func All() []Style {
	return []Style{Ghibli, Cartoon, Sketch, OilPainting, Watercolor, Anime}
}

// IsValid returns true if s is one of the supported styles.
func (s Style) IsValid() bool {
	_, ok := titles[s]
	return ok
}

// Title returns the human-readable name of the style.
func (s Style) Title() string {
	return titles[s]
}

// Parse resolves a raw identifier. Matching is case-insensitive and
// ignores surrounding whitespace.
func Parse(name string) (Style, bool) {
	s := Style(strings.ToLower(strings.TrimSpace(name)))
	if !s.IsValid() {
		return "", false
	}
	return s, true
}
