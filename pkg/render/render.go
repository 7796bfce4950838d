// Package render turns text and template parameters into handwritten pages.
//
// An [Invoker] translates flat [template.Params] into a [handwrite.Template],
// resolving the font through a [fonts.Catalog], and runs the engine once per
// request. Engine templates depend only on the parameters, so they are kept
// in a small cache and reused across requests with the same parameters.
//
//	inv := render.NewInvoker(catalog, render.WithLogger(logger))
//	res, err := inv.Render(ctx, "Hello", params)
//	for _, page := range res.Pages { ... }
package render

import (
	"context"
	"image"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/fonts"
	"github.com/matzehuels/handwrite/pkg/handwrite"
	"github.com/matzehuels/handwrite/pkg/observability"
	"github.com/matzehuels/handwrite/pkg/template"
)

// DefaultTemplateCacheSize is the number of engine templates kept by default.
const DefaultTemplateCacheSize = 16

// Result is the output of a single render.
type Result struct {
	Pages    []*image.RGBA
	Seed     uint64        // seed actually used, never zero
	Font     string        // font name
	DPI      float64       // print resolution of the pages
	Duration time.Duration // time spent in the engine
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithLogger sets the logger. The default discards debug output.
func WithLogger(l *log.Logger) Option {
	return func(inv *Invoker) {
		if l != nil {
			inv.logger = l
		}
	}
}

// WithTemplateCacheSize bounds the number of cached engine templates.
// Zero disables reuse.
func WithTemplateCacheSize(n int) Option {
	return func(inv *Invoker) { inv.cacheSize = max(0, n) }
}

// Invoker builds engine templates and runs the handwriting engine.
// It is safe for concurrent use.
type Invoker struct {
	catalog   *fonts.Catalog
	logger    *log.Logger
	cacheSize int

	mu        sync.Mutex
	templates map[string]*entry
	order     []string // insertion order, oldest first
}

type entry struct {
	tmpl *handwrite.Template
	font string
}

// NewInvoker creates an Invoker resolving fonts through catalog.
func NewInvoker(catalog *fonts.Catalog, opts ...Option) *Invoker {
	inv := &Invoker{
		catalog:   catalog,
		logger:    log.Default(),
		cacheSize: DefaultTemplateCacheSize,
		templates: map[string]*entry{},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Template returns the engine template for p, building it on first use.
func (inv *Invoker) Template(p template.Params) (*handwrite.Template, error) {
	e, err := inv.template(p)
	if err != nil {
		return nil, err
	}
	return e.tmpl, nil
}

func (inv *Invoker) template(p template.Params) (*entry, error) {
	if p.Font == "" {
		def, err := inv.catalog.Default()
		if err != nil {
			return nil, err
		}
		p.Font = def.Path
	}
	key := p.WithoutSeed().Hash()

	inv.mu.Lock()
	e, ok := inv.templates[key]
	inv.mu.Unlock()
	if ok {
		return e, nil
	}

	e, err := inv.build(p)
	if err != nil {
		return nil, err
	}
	if inv.cacheSize == 0 {
		return e, nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	if existing, ok := inv.templates[key]; ok {
		return existing, nil
	}
	for len(inv.order) >= inv.cacheSize {
		delete(inv.templates, inv.order[0])
		inv.order = inv.order[1:]
	}
	inv.templates[key] = e
	inv.order = append(inv.order, key)
	return e, nil
}

func (inv *Invoker) build(p template.Params) (*entry, error) {
	face, err := inv.catalog.LoadPath(p.Font)
	if err != nil {
		return nil, err
	}

	s := p.Scaled()
	tmpl := &handwrite.Template{
		Background: &handwrite.Paper{
			Width:  s.PaperX,
			Height: s.PaperY,
			Color:  s.Background.NRGBA(),
		},
		Font:        face,
		FontSize:    float64(s.FontSize),
		LineSpacing: float64(s.LineSpacing),
		WordSpacing: float64(s.WordSpacing),
		Margins: handwrite.Margins{
			Top:    s.TopMargin,
			Bottom: s.BottomMargin,
			Left:   s.LeftMargin,
			Right:  s.RightMargin,
		},
		Fill:              s.Fill.NRGBA(),
		LineSpacingSigma:  s.LineSpacingSigma,
		FontSizeSigma:     s.FontSizeSigma,
		WordSpacingSigma:  s.WordSpacingSigma,
		PerturbXSigma:     s.PerturbXSigma,
		PerturbYSigma:     s.PerturbYSigma,
		PerturbThetaSigma: s.PerturbThetaSigma,
		StartChars:        s.StartChars,
		EndChars:          s.EndChars,
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &entry{tmpl: tmpl, font: fontName(p.Font)}, nil
}

// Render validates p, picks a seed and runs the engine once.
func (inv *Invoker) Render(ctx context.Context, text string, p template.Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e, err := inv.template(p)
	if err != nil {
		return nil, err
	}

	seed := p.Seed
	for seed == 0 {
		seed = rand.Uint64()
	}

	hooks := observability.Render()
	hooks.OnRenderStart(ctx, e.font, len(text))
	start := time.Now()
	pages, err := handwrite.Handwrite(ctx, text, e.tmpl, seed)
	elapsed := time.Since(start)
	hooks.OnRenderComplete(ctx, e.font, len(pages), elapsed, err)

	if err != nil {
		if ctx.Err() != nil || errors.GetCode(err) != "" {
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrCodeRenderFailed, err, "render failed")
	}

	inv.logger.Debug("rendered", "font", e.font, "pages", len(pages), "seed", seed, "duration", elapsed.Round(time.Millisecond))
	return &Result{
		Pages:    pages,
		Seed:     seed,
		Font:     e.font,
		DPI:      DPI(p.Rate),
		Duration: elapsed,
	}, nil
}

// DPI returns the print resolution for pages rendered at rate. At rate 1
// the default 667x945 paper prints at roughly A4 size.
func DPI(rate int) float64 {
	return 80 * float64(max(1, rate))
}

func fontName(path string) string {
	if name, ok := strings.CutPrefix(path, fonts.BuiltinPrefix); ok {
		return name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
