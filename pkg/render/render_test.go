package render

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/fonts"
	"github.com/matzehuels/handwrite/pkg/observability"
	"github.com/matzehuels/handwrite/pkg/template"
)

// smallParams keeps pages small so tests stay fast.
func smallParams() template.Params {
	p := template.Defaults()
	p.Rate = 1
	p.PaperX, p.PaperY = 200, 150
	p.FontSize = 16
	p.LineSpacing = 24
	return p
}

func newTestInvoker(t *testing.T, opts ...Option) *Invoker {
	t.Helper()
	return NewInvoker(fonts.NewCatalog(t.TempDir()), opts...)
}

func TestRenderBasic(t *testing.T) {
	inv := newTestInvoker(t)
	p := smallParams()
	p.Seed = 42

	res, err := inv.Render(context.Background(), "Hello, world", p)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(res.Pages))
	}
	if res.Seed != 42 {
		t.Errorf("Seed = %d, want 42", res.Seed)
	}
	if res.Font != fonts.DefaultBuiltin {
		t.Errorf("Font = %q, want %q", res.Font, fonts.DefaultBuiltin)
	}
	if res.DPI != 80 {
		t.Errorf("DPI = %v, want 80", res.DPI)
	}
	if b := res.Pages[0].Bounds(); b.Dx() != 200 || b.Dy() != 150 {
		t.Errorf("page size = %v", b)
	}
}

func TestRenderScalesByRate(t *testing.T) {
	inv := newTestInvoker(t)
	p := smallParams()
	p.Rate = 2

	res, err := inv.Render(context.Background(), "x", p)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if b := res.Pages[0].Bounds(); b.Dx() != 400 || b.Dy() != 300 {
		t.Errorf("page size = %v, want 400x300", b)
	}
	if res.DPI != 160 {
		t.Errorf("DPI = %v, want 160", res.DPI)
	}
}

func TestRenderRandomSeed(t *testing.T) {
	inv := newTestInvoker(t)
	res, err := inv.Render(context.Background(), "abc", smallParams())
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if res.Seed == 0 {
		t.Error("a zero seed should be replaced by a random one")
	}

	// Replaying the reported seed reproduces the pages.
	p := smallParams()
	p.Seed = res.Seed
	again, err := inv.Render(context.Background(), "abc", p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Pages[0].Pix, again.Pages[0].Pix) {
		t.Error("rendering with the reported seed should reproduce the page")
	}
}

func TestRenderEmptyText(t *testing.T) {
	inv := newTestInvoker(t)
	res, err := inv.Render(context.Background(), "", smallParams())
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if len(res.Pages) != 0 {
		t.Errorf("got %d pages, want 0", len(res.Pages))
	}
}

func TestRenderErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Broken.ttf"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	inv := NewInvoker(fonts.NewCatalog(dir))

	tests := []struct {
		name     string
		modify   func(*template.Params)
		wantCode errors.Code
	}{
		{"invalid params", func(p *template.Params) { p.Rate = 0 }, errors.ErrCodeInvalidParams},
		{"missing font", func(p *template.Params) { p.Font = filepath.Join(dir, "Gone.ttf") }, errors.ErrCodeFontNotFound},
		{"broken font", func(p *template.Params) { p.Font = filepath.Join(dir, "Broken.ttf") }, errors.ErrCodeInvalidFont},
		{"line taller than page", func(p *template.Params) { p.LineSpacing = 140 }, errors.ErrCodePageTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := smallParams()
			tt.modify(&p)
			_, err := inv.Render(context.Background(), "text", p)
			if got := errors.GetCode(err); got != tt.wantCode {
				t.Errorf("Render() code = %q, want %q (err=%v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestTemplateReuse(t *testing.T) {
	inv := newTestInvoker(t, WithTemplateCacheSize(2))

	a := smallParams()
	a.Seed = 1
	b := smallParams()
	b.Seed = 2

	ta, err := inv.Template(a)
	if err != nil {
		t.Fatal(err)
	}
	tb, err := inv.Template(b)
	if err != nil {
		t.Fatal(err)
	}
	if ta != tb {
		t.Error("templates differing only by seed should be shared")
	}

	c := smallParams()
	c.LineSpacing = 30
	tc, err := inv.Template(c)
	if err != nil {
		t.Fatal(err)
	}
	if tc == ta {
		t.Error("different params should build a different template")
	}

	d := smallParams()
	d.FontSize = 12
	if _, err := inv.Template(d); err != nil {
		t.Fatal(err)
	}
	// The cache holds two entries; a was the oldest and is gone.
	again, err := inv.Template(a)
	if err != nil {
		t.Fatal(err)
	}
	if again == ta {
		t.Error("oldest template should have been evicted")
	}
	if len(inv.templates) != 2 || len(inv.order) != 2 {
		t.Errorf("cache holds %d/%d entries, want 2", len(inv.templates), len(inv.order))
	}
}

func TestTemplateCacheDisabled(t *testing.T) {
	inv := newTestInvoker(t, WithTemplateCacheSize(0))
	first, err := inv.Template(smallParams())
	if err != nil {
		t.Fatal(err)
	}
	second, err := inv.Template(smallParams())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("templates should not be reused when the cache is disabled")
	}
}

func TestTemplateUsesCatalogFont(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Caveat.ttf"), goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	inv := NewInvoker(fonts.NewCatalog(dir))

	res, err := inv.Render(context.Background(), "x", smallParams())
	if err != nil {
		t.Fatal(err)
	}
	if res.Font != "Caveat" {
		t.Errorf("Font = %q, want Caveat", res.Font)
	}
}

type countingHooks struct {
	observability.NoopRenderHooks
	mu           sync.Mutex
	starts, ends int
	lastPages    int
	lastErr      error
}

func (h *countingHooks) OnRenderStart(context.Context, string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
}

func (h *countingHooks) OnRenderComplete(_ context.Context, _ string, pages int, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends++
	h.lastPages, h.lastErr = pages, err
}

func TestRenderEmitsHooks(t *testing.T) {
	hooks := &countingHooks{}
	observability.SetRenderHooks(hooks)
	t.Cleanup(observability.Reset)

	inv := newTestInvoker(t)
	if _, err := inv.Render(context.Background(), "hi", smallParams()); err != nil {
		t.Fatal(err)
	}
	if hooks.starts != 1 || hooks.ends != 1 || hooks.lastPages != 1 || hooks.lastErr != nil {
		t.Errorf("hooks = %+v", hooks)
	}
}

func TestRenderConcurrent(t *testing.T) {
	inv := newTestInvoker(t)
	p := smallParams()
	p.Seed = 9

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := inv.Render(context.Background(), "concurrent text", p)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = res.Pages[0].Pix
		}()
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if !bytes.Equal(results[0], results[i]) {
			t.Fatalf("render %d differs from render 0", i)
		}
	}
}

func TestRenderCanceled(t *testing.T) {
	inv := newTestInvoker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := inv.Render(ctx, "text", smallParams()); err != context.Canceled {
		t.Errorf("Render() error = %v, want context.Canceled", err)
	}
}
