// Package template holds the paper template configuration for rendering.
//
// [Params] is a flat set of rendering parameters: paper size, margins, font
// and spacing, jitter sigmas, and colors. All lengths are in pixels at rate 1;
// [Params.Scaled] multiplies them by the rate before they reach the engine.
//
// Parameters can be changed incrementally, either through typed [Overrides]
// (used by the HTTP API) or by flat key via [Params.Set] (used by the CLI):
//
//	p := template.Defaults()
//	_ = p.Set("line_spacing", "80")
//	p = p.Apply(template.Overrides{Rate: ptr(2)})
package template

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"

	"github.com/matzehuels/handwrite/pkg/errors"
)

const (
	// MinRate and MaxRate bound the scaling ratio.
	MinRate = 1
	MaxRate = 64

	// MaxPagePixels bounds the scaled page area (64 megapixels).
	MaxPagePixels = 64 << 20
)

// Params is the flat rendering parameter set.
type Params struct {
	Rate   int    `json:"rate" toml:"rate"`
	PaperX int    `json:"paper_x" toml:"paper_x"`
	PaperY int    `json:"paper_y" toml:"paper_y"`
	Font   string `json:"font" toml:"font"` // font path; empty selects the catalog default

	FontSize     int `json:"font_size" toml:"font_size"`
	LineSpacing  int `json:"line_spacing" toml:"line_spacing"`
	TopMargin    int `json:"top_margin" toml:"top_margin"`
	BottomMargin int `json:"bottom_margin" toml:"bottom_margin"`
	LeftMargin   int `json:"left_margin" toml:"left_margin"`
	RightMargin  int `json:"right_margin" toml:"right_margin"`
	WordSpacing  int `json:"word_spacing" toml:"word_spacing"`

	LineSpacingSigma  float64 `json:"line_spacing_sigma" toml:"line_spacing_sigma"`
	FontSizeSigma     float64 `json:"font_size_sigma" toml:"font_size_sigma"`
	WordSpacingSigma  float64 `json:"word_spacing_sigma" toml:"word_spacing_sigma"`
	PerturbXSigma     float64 `json:"perturb_x_sigma" toml:"perturb_x_sigma"`
	PerturbYSigma     float64 `json:"perturb_y_sigma" toml:"perturb_y_sigma"`
	PerturbThetaSigma float64 `json:"perturb_theta_sigma" toml:"perturb_theta_sigma"`

	// StartChars never end a wrapped line; EndChars never start one.
	StartChars string `json:"start_chars" toml:"start_chars"`
	EndChars   string `json:"end_chars" toml:"end_chars"`

	Background Color `json:"background" toml:"background"`
	Fill       Color `json:"fill" toml:"fill"`

	// Seed fixes the jitter. Zero draws a fresh seed per render.
	Seed uint64 `json:"seed" toml:"seed"`
}

// Defaults returns the stock paper template.
func Defaults() Params {
	return Params{
		Rate:              4,
		PaperX:            667,
		PaperY:            945,
		FontSize:          30,
		LineSpacing:       70,
		TopMargin:         10,
		BottomMargin:      10,
		LeftMargin:        10,
		RightMargin:       10,
		WordSpacing:       1,
		LineSpacingSigma:  1,
		FontSizeSigma:     1,
		WordSpacingSigma:  1,
		PerturbXSigma:     1,
		PerturbYSigma:     1,
		PerturbThetaSigma: 0.05,
		StartChars:        "“（[<",
		EndChars:          "，。",
		Background:        Color{0, 0, 0, 0},
		Fill:              Color{0, 0, 0, 255},
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.Rate < MinRate || p.Rate > MaxRate {
		return invalid("rate must be between %d and %d, got %d", MinRate, MaxRate, p.Rate)
	}
	if p.PaperX <= 0 || p.PaperY <= 0 {
		return invalid("paper size must be positive, got %dx%d", p.PaperX, p.PaperY)
	}
	// Each side is bounded first so the area product cannot overflow.
	if p.PaperX > MaxPagePixels/p.Rate || p.PaperY > MaxPagePixels/p.Rate {
		return invalid("scaled page side is too large (%dx%d at rate %d)", p.PaperX, p.PaperY, p.Rate)
	}
	if px := int64(p.PaperX*p.Rate) * int64(p.PaperY*p.Rate); px > MaxPagePixels {
		return invalid("scaled page is too large (%d pixels, max %d)", px, MaxPagePixels)
	}
	if p.FontSize <= 0 {
		return invalid("font_size must be positive, got %d", p.FontSize)
	}
	if p.LineSpacing <= 0 {
		return invalid("line_spacing must be positive, got %d", p.LineSpacing)
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"top_margin", p.TopMargin},
		{"bottom_margin", p.BottomMargin},
		{"left_margin", p.LeftMargin},
		{"right_margin", p.RightMargin},
		{"word_spacing", p.WordSpacing},
	} {
		if f.v < 0 {
			return invalid("%s cannot be negative, got %d", f.name, f.v)
		}
	}
	if p.LeftMargin >= p.PaperX || p.RightMargin >= p.PaperX-p.LeftMargin {
		return invalid("horizontal margins (%d+%d) leave no room on a %dpx wide page", p.LeftMargin, p.RightMargin, p.PaperX)
	}
	if p.TopMargin >= p.PaperY || p.BottomMargin >= p.PaperY-p.TopMargin {
		return invalid("vertical margins (%d+%d) leave no room on a %dpx high page", p.TopMargin, p.BottomMargin, p.PaperY)
	}
	// A glyph larger than the writing area can never be placed.
	if limit := min(p.PaperX-p.LeftMargin-p.RightMargin, p.PaperY-p.TopMargin-p.BottomMargin); p.FontSize > limit {
		return invalid("font_size %d does not fit the %dpx writing area", p.FontSize, limit)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"line_spacing_sigma", p.LineSpacingSigma},
		{"font_size_sigma", p.FontSizeSigma},
		{"word_spacing_sigma", p.WordSpacingSigma},
		{"perturb_x_sigma", p.PerturbXSigma},
		{"perturb_y_sigma", p.PerturbYSigma},
		{"perturb_theta_sigma", p.PerturbThetaSigma},
	} {
		if f.v < 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return invalid("%s must be a non-negative number, got %v", f.name, f.v)
		}
	}
	if err := p.Background.validate("background"); err != nil {
		return err
	}
	return p.Fill.validate("fill")
}

// Scaled returns the parameters with every pixel length multiplied by the
// rate, and Rate reset to 1. Stroke offsets and rotation are left unscaled.
func (p Params) Scaled() Params {
	r := p.Rate
	if r < 1 {
		r = 1
	}
	s := p
	s.Rate = 1
	s.PaperX *= r
	s.PaperY *= r
	s.FontSize *= r
	s.LineSpacing *= r
	s.TopMargin *= r
	s.BottomMargin *= r
	s.LeftMargin *= r
	s.RightMargin *= r
	s.WordSpacing *= r
	s.LineSpacingSigma *= float64(r)
	s.FontSizeSigma *= float64(r)
	s.WordSpacingSigma *= float64(r)
	return s
}

// Hash returns a SHA-256 hex digest of the canonical JSON form.
func (p Params) Hash() string {
	data, _ := json.Marshal(p)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WithoutSeed returns p with the seed cleared. Templates built from params
// do not depend on the seed, so this is the key for template reuse.
func (p Params) WithoutSeed() Params {
	p.Seed = 0
	return p
}

// Overrides carries optional replacements for Params fields.
// A nil field keeps the current value.
type Overrides struct {
	Rate   *int
	PaperX *int
	PaperY *int
	Font   *string

	FontSize     *int
	LineSpacing  *int
	TopMargin    *int
	BottomMargin *int
	LeftMargin   *int
	RightMargin  *int
	WordSpacing  *int

	LineSpacingSigma  *float64
	FontSizeSigma     *float64
	WordSpacingSigma  *float64
	PerturbXSigma     *float64
	PerturbYSigma     *float64
	PerturbThetaSigma *float64

	StartChars *string
	EndChars   *string

	Background *Color
	Fill       *Color

	Seed *uint64
}

// Apply returns a copy of p with the non-nil overrides applied.
func (p Params) Apply(o Overrides) Params {
	set(&p.Rate, o.Rate)
	set(&p.PaperX, o.PaperX)
	set(&p.PaperY, o.PaperY)
	set(&p.Font, o.Font)
	set(&p.FontSize, o.FontSize)
	set(&p.LineSpacing, o.LineSpacing)
	set(&p.TopMargin, o.TopMargin)
	set(&p.BottomMargin, o.BottomMargin)
	set(&p.LeftMargin, o.LeftMargin)
	set(&p.RightMargin, o.RightMargin)
	set(&p.WordSpacing, o.WordSpacing)
	set(&p.LineSpacingSigma, o.LineSpacingSigma)
	set(&p.FontSizeSigma, o.FontSizeSigma)
	set(&p.WordSpacingSigma, o.WordSpacingSigma)
	set(&p.PerturbXSigma, o.PerturbXSigma)
	set(&p.PerturbYSigma, o.PerturbYSigma)
	set(&p.PerturbThetaSigma, o.PerturbThetaSigma)
	set(&p.StartChars, o.StartChars)
	set(&p.EndChars, o.EndChars)
	set(&p.Background, o.Background)
	set(&p.Fill, o.Fill)
	set(&p.Seed, o.Seed)
	return p
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidParams, format, args...)
}
