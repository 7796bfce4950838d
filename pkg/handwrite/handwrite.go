package handwrite

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/matzehuels/handwrite/pkg/errors"
)

// Handwrite renders text onto as many pages as it needs and returns them in
// order. Empty text yields no pages. The same seed, template and text always
// produce identical pixels.
func Handwrite(ctx context.Context, text string, t *Template, seed uint64) ([]*image.RGBA, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	w := newWriter(t, seed)
	defer w.close()

	nominal, err := w.face(t.FontSize)
	if err != nil {
		return nil, err
	}
	advance := func(r rune) float64 {
		adv, _ := nominal.GlyphAdvance(r)
		return fixedToFloat(adv) + t.WordSpacing
	}

	lines := breakLines([]rune(text), advance, t.writeWidth(), t.StartChars, t.EndChars)
	if len(lines) == 0 {
		return nil, nil
	}

	m := nominal.Metrics()
	baselineShift := fixedToFloat(m.Ascent-m.Descent) / 2

	b := t.Background.Bounds()
	top := float64(t.Margins.Top)
	bottom := float64(b.Dy() - t.Margins.Bottom)

	var pages []*image.RGBA
	page := w.newPage()
	y := top
	onPage := 0
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spacing := max(1, t.LineSpacing+w.norm(t.LineSpacingSigma))
		if onPage > 0 && y+spacing > bottom {
			pages = append(pages, page)
			page = w.newPage()
			y = top
			onPage = 0
		}
		if err := w.drawLine(page, line, y+spacing/2+baselineShift); err != nil {
			return nil, err
		}
		y += spacing
		onPage++
	}
	return append(pages, page), nil
}

// writer holds the per-call state of a rendering: the random source and the
// faces created so far. Faces are not safe for concurrent use, so each call
// gets its own.
type writer struct {
	t     *Template
	rng   *rand.Rand
	fill  *image.Uniform
	faces map[int]font.Face
}

func newWriter(t *Template, seed uint64) *writer {
	return &writer{
		t:     t,
		rng:   rand.New(rand.NewPCG(seed, seed^0xdeadbeef)),
		fill:  image.NewUniform(t.fill()),
		faces: map[int]font.Face{},
	}
}

func (w *writer) close() {
	for _, f := range w.faces {
		_ = f.Close()
	}
}

func (w *writer) norm(sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	return w.rng.NormFloat64() * sigma
}

// face returns a face for size rounded to whole pixels, at least 1px and at
// most the larger page side.
func (w *writer) face(size float64) (font.Face, error) {
	b := w.t.Background.Bounds()
	px := max(1, int(math.Round(min(size, float64(max(b.Dx(), b.Dy()))))))
	if f, ok := w.faces[px]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(w.t.Font, &opentype.FaceOptions{
		Size:    float64(px),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRenderFailed, err, "create %dpx face", px)
	}
	w.faces[px] = f
	return f, nil
}

func (w *writer) newPage() *image.RGBA {
	b := w.t.Background.Bounds()
	page := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if p, ok := w.t.Background.(*Paper); ok {
		if p.Color != nil {
			draw.Draw(page, page.Bounds(), image.NewUniform(p.Color), image.Point{}, draw.Src)
		}
		return page
	}
	draw.Draw(page, page.Bounds(), w.t.Background, b.Min, draw.Src)
	return page
}

func (w *writer) drawLine(page *image.RGBA, line []rune, baseline float64) error {
	t := w.t
	x := float64(t.Margins.Left)
	for _, r := range line {
		face, err := w.face(t.FontSize + w.norm(t.FontSizeSigma))
		if err != nil {
			return err
		}
		adv, _ := face.GlyphAdvance(r)
		if !unicode.IsSpace(r) {
			dx := w.norm(t.PerturbXSigma)
			dy := w.norm(t.PerturbYSigma)
			theta := w.norm(t.PerturbThetaSigma)
			w.drawGlyph(page, face, r, x+dx, baseline+dy, theta)
		}
		x += fixedToFloat(adv) + max(0, t.WordSpacing+w.norm(t.WordSpacingSigma))
	}
	return nil
}

// drawGlyph draws r with its origin at (x, baseline), rotated by theta
// radians around the center of its bounding box.
func (w *writer) drawGlyph(page *image.RGBA, face font.Face, r rune, x, baseline, theta float64) {
	dr, mask, maskp, _, ok := face.Glyph(fixed.Point26_6{}, r)
	if !ok || dr.Empty() {
		return
	}

	glyph := image.NewNRGBA(image.Rect(0, 0, dr.Dx(), dr.Dy()))
	draw.DrawMask(glyph, glyph.Bounds(), w.fill, image.Point{}, mask, maskp, draw.Over)

	var src image.Image = glyph
	if deg := theta * 180 / math.Pi; math.Abs(deg) >= 0.01 {
		// imaging rotates counter-clockwise and keeps the center fixed.
		src = imaging.Rotate(glyph, deg, color.Transparent)
	}

	cx := x + float64(dr.Min.X) + float64(dr.Dx())/2
	cy := baseline + float64(dr.Min.Y) + float64(dr.Dy())/2
	sb := src.Bounds()
	at := image.Pt(
		int(math.Round(cx-float64(sb.Dx())/2)),
		int(math.Round(cy-float64(sb.Dy())/2)),
	)
	draw.Draw(page, image.Rectangle{Min: at, Max: at.Add(sb.Size())}, src, sb.Min, draw.Over)
}

// breakLines splits text into lines no wider than maxWidth as measured by
// advance. Newlines always break. A rune that would overflow starts a new
// line unless it is one of endChars, which hang on the current line. When a
// line is wrapped after one of startChars, that rune moves to the new line.
// Every line holds at least one rune, and trailing empty lines are dropped.
func breakLines(text []rune, advance func(rune) float64, maxWidth float64, startChars, endChars string) [][]rune {
	var lines [][]rune
	var cur []rune
	var width float64

	for _, r := range text {
		switch r {
		case '\r':
			continue
		case '\n':
			lines = append(lines, cur)
			cur, width = nil, 0
			continue
		}

		adv := advance(r)
		if len(cur) > 0 && width+adv > maxWidth && !strings.ContainsRune(endChars, r) {
			var carry []rune
			if last := cur[len(cur)-1]; len(cur) > 1 && strings.ContainsRune(startChars, last) {
				carry = []rune{last}
				cur = cur[:len(cur)-1]
			}
			lines = append(lines, cur)
			cur, width = carry, 0
			for _, c := range carry {
				width += advance(c)
			}
		}
		cur = append(cur, r)
		width += adv
	}
	lines = append(lines, cur)

	for len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
