// Package handwrite renders text onto page images so that it looks written by
// hand.
//
// The engine is deliberately small: it breaks text into lines, distributes the
// lines over pages and draws every glyph with its own size, offset and
// rotation, each drawn from a normal distribution around the template value.
// Glyph outlines are rasterized by golang.org/x/image and rotated with
// github.com/disintegration/imaging. There is no shaping, kerning or bidi.
//
// Rendering is deterministic for a given seed:
//
//	pages, err := handwrite.Handwrite(ctx, "Hello", tmpl, 42)
package handwrite

import (
	"image"
	"image/color"

	"golang.org/x/image/font/opentype"

	"github.com/matzehuels/handwrite/pkg/errors"
)

// Margins are page margins in pixels.
type Margins struct {
	Top, Bottom, Left, Right int
}

// Template describes the paper and pen used by Handwrite. All lengths are in
// pixels of the background image. A Template is read-only during rendering
// and may be shared between goroutines.
type Template struct {
	Background image.Image
	Font       *opentype.Font

	FontSize    float64
	LineSpacing float64
	WordSpacing float64
	Margins     Margins
	Fill        color.Color

	LineSpacingSigma  float64
	FontSizeSigma     float64
	WordSpacingSigma  float64
	PerturbXSigma     float64
	PerturbYSigma     float64
	PerturbThetaSigma float64 // radians

	// StartChars are moved to the next line rather than ending a wrapped line.
	StartChars string
	// EndChars may hang past the right margin rather than starting a line.
	EndChars string
}

// Validate reports whether the template can be rendered.
func (t *Template) Validate() error {
	if t.Background == nil || t.Background.Bounds().Empty() {
		return errors.New(errors.ErrCodeInvalidParams, "template has no background")
	}
	if t.Font == nil {
		return errors.New(errors.ErrCodeInvalidParams, "template has no font")
	}
	if t.FontSize <= 0 || t.LineSpacing <= 0 {
		return errors.New(errors.ErrCodeInvalidParams, "font size and line spacing must be positive")
	}
	b := t.Background.Bounds()
	if t.writeWidth() <= 0 {
		return errors.New(errors.ErrCodePageTooSmall,
			"page is %dpx wide, margins take %dpx", b.Dx(), t.Margins.Left+t.Margins.Right)
	}
	if h := b.Dy() - t.Margins.Top - t.Margins.Bottom; float64(h) < t.LineSpacing {
		return errors.New(errors.ErrCodePageTooSmall,
			"a %.0fpx line does not fit in the %dpx writing height", t.LineSpacing, h)
	}
	return nil
}

func (t *Template) writeWidth() float64 {
	return float64(t.Background.Bounds().Dx() - t.Margins.Left - t.Margins.Right)
}

func (t *Template) fill() color.Color {
	if t.Fill == nil {
		return color.Black
	}
	return t.Fill
}

// Paper is a single-color background of a fixed size. Pages cut from Paper
// are filled directly instead of being copied pixel by pixel.
type Paper struct {
	Width, Height int
	Color         color.Color
}

// ColorModel implements image.Image.
func (p *Paper) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (p *Paper) Bounds() image.Rectangle { return image.Rect(0, 0, p.Width, p.Height) }

// At implements image.Image.
func (p *Paper) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Bounds())) {
		return color.RGBA{}
	}
	return p.Color
}
