package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/handwrite/pkg/cache"
	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/fonts"
	"github.com/matzehuels/handwrite/pkg/history"
	"github.com/matzehuels/handwrite/pkg/observability"
	"github.com/matzehuels/handwrite/pkg/observability/metrics"
	"github.com/matzehuels/handwrite/pkg/render"
	"github.com/matzehuels/handwrite/pkg/template"
)

// small keeps test pages tiny.
func small() template.Params {
	p := template.Defaults()
	p.Rate = 1
	p.PaperX, p.PaperY = 200, 150
	p.FontSize = 16
	p.LineSpacing = 24
	return p
}

type testEnv struct {
	srv       *Server
	ts        *httptest.Server
	templates *template.Config
	spool     *Spool
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	catalog := fonts.NewCatalog(t.TempDir())
	templates := template.NewConfig(small())
	spool, err := NewSpool(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("NewSpool() error: %v", err)
	}
	logger := log.New(&bytes.Buffer{})

	opts := Options{
		Catalog:       catalog,
		Templates:     templates,
		Invoker:       render.NewInvoker(catalog, render.WithLogger(logger)),
		Spool:         spool,
		Logger:        logger,
		MaxBodyBytes:  4096,
		MaxTextLength: 200,
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, templates: templates, spool: spool}
}

func (e *testEnv) post(t *testing.T, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(e.ts.URL+"/api/v1/generate", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestFonts(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.get(t, "/api/v1/fonts")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	got := decode[fontsResponse](t, body)
	if len(got.Fonts) == 0 || got.Fonts[0] != fonts.DefaultBuiltin {
		t.Errorf("fonts = %v", got.Fonts)
	}
}

func TestGenerate(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.post(t, `{"text": "Hello, world", "params": {"seed": 7}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	got := decode[generateResponse](t, body)
	if got.ID == "" {
		t.Error("missing id")
	}
	if got.PageCount != 1 || len(got.Images) != 1 {
		t.Fatalf("page_count = %d, images = %d, want 1", got.PageCount, len(got.Images))
	}
	if got.Seed != 7 {
		t.Errorf("seed = %d, want 7", got.Seed)
	}
	if got.Cached {
		t.Error("first request should not be cached")
	}
	if got.PDF != "" {
		t.Error("pdf returned without being requested")
	}

	raw, err := base64.StdEncoding.DecodeString(got.Images["0"])
	if err != nil {
		t.Fatalf("image is not base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("image is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 150 {
		t.Errorf("image size = %v, want 200x150", b)
	}

	left, err := os.ReadDir(env.spool.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("spool holds %d files after the request", len(left))
	}
}

func TestGenerateRandomSeed(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.post(t, `{"text": "abc"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if got := decode[generateResponse](t, body); got.Seed == 0 {
		t.Error("response should report the seed that was drawn")
	}
}

func TestGeneratePDF(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.post(t, `{"text": "one\ntwo", "pdf": true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	got := decode[generateResponse](t, body)
	doc, err := base64.StdEncoding.DecodeString(got.PDF)
	if err != nil {
		t.Fatalf("pdf is not base64: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF")) {
		t.Errorf("pdf starts with %q", doc[:min(8, len(doc))])
	}
}

func TestGenerateEmptyFontKeepsDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.post(t, `{"text": "a", "params": {"font": "", "seed": 2}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if got := decode[generateResponse](t, body); got.PageCount != 1 {
		t.Errorf("page_count = %d, want 1", got.PageCount)
	}
}

func TestGenerateDeadline(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.RequestTimeout = time.Nanosecond })
	resp, body := env.post(t, `{"text": "too slow"}`)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504 (body %s)", resp.StatusCode, body)
	}
	if got := decode[errorResponse](t, body); got.Code != errors.ErrCodeUnavailable || got.Detail == "" {
		t.Errorf("error body = %+v", got)
	}
}

func TestGenerateDoesNotMutateTemplate(t *testing.T) {
	env := newTestEnv(t, nil)
	before := env.templates.Snapshot()
	resp, body := env.post(t, `{"text": "x", "params": {"font_size": 20, "margins": {"left": 30}}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if after := env.templates.Snapshot(); after != before {
		t.Errorf("template changed: %+v", after)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   errors.Code
		wantDetail string
	}{
		{"invalid json", `{"text":`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidInput, ""},
		{"missing text", `{}`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidInput, "text is required"},
		{"empty text", `{"text": ""}`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidInput, ""},
		{"text too long", `{"text": "` + strings.Repeat("a", 201) + `"}`, http.StatusRequestEntityTooLarge, errors.ErrCodeTooLarge, ""},
		{"body too large", `{"text": "` + strings.Repeat("a", 5000) + `"}`, http.StatusRequestEntityTooLarge, errors.ErrCodeTooLarge, ""},
		{"unknown font", `{"text": "a", "params": {"font": "nope"}}`, http.StatusNotFound, errors.ErrCodeFontNotFound, "Font 'nope' not found"},
		{"bad font name", `{"text": "a", "params": {"font": "../etc"}}`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidInput, ""},
		{"zero rate", `{"text": "a", "params": {"rate": 0}}`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidParams, ""},
		{"negative margin", `{"text": "a", "params": {"margins": {"top": -1}}}`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidParams, ""},
		{"partial color", `{"text": "a", "params": {"font_color": {"r": 1, "g": 2, "b": 3}}}`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidParams, ""},
		{"paper area overflows", `{"text": "a", "params": {"rate": 1, "paper_x": 4294967296, "paper_y": 4294967296}}`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidParams, ""},
		{"font larger than page", `{"text": "W", "params": {"rate": 1, "paper_x": 600, "paper_y": 600, "line_spacing": 100, "font_size": 400000, "seed": 1}}`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidParams, ""},
		{"color out of range", `{"text": "a", "params": {"background_color": {"r": 256, "g": 0, "b": 0, "a": 0}}}`, http.StatusUnprocessableEntity, errors.ErrCodeInvalidParams, ""},
	}

	env := newTestEnv(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post(t, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}
			got := decode[errorResponse](t, body)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Detail == "" {
				t.Error("detail is empty")
			}
			if tt.wantDetail != "" && got.Detail != tt.wantDetail {
				t.Errorf("detail = %q, want %q", got.Detail, tt.wantDetail)
			}
		})
	}
}

func TestGenerateCachesFixedSeed(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, func(o *Options) { o.Cache = fc })

	body := `{"text": "cache me", "params": {"seed": 99}}`
	_, first := env.post(t, body)
	_, second := env.post(t, body)

	a := decode[generateResponse](t, first)
	b := decode[generateResponse](t, second)
	if a.Cached || !b.Cached {
		t.Errorf("cached = %v then %v, want false then true", a.Cached, b.Cached)
	}
	if a.ID == b.ID {
		t.Error("cached responses still get a fresh id")
	}
	if a.Images["0"] != b.Images["0"] {
		t.Error("cached image differs from the rendered one")
	}

	// Asking for a PDF is a different entry.
	_, third := env.post(t, `{"text": "cache me", "params": {"seed": 99}, "pdf": true}`)
	if c := decode[generateResponse](t, third); c.Cached || c.PDF == "" {
		t.Errorf("pdf request: cached = %v, pdf empty = %v", c.Cached, c.PDF == "")
	}
}

func TestGenerateRandomSeedNotCached(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, func(o *Options) { o.Cache = fc })

	for i := 0; i < 2; i++ {
		_, body := env.post(t, `{"text": "fresh"}`)
		if decode[generateResponse](t, body).Cached {
			t.Fatalf("request %d served from cache", i)
		}
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.History = history.NewMemoryStore(10) })

	_, body := env.post(t, `{"text": "remember me", "params": {"seed": 3}}`)
	gen := decode[generateResponse](t, body)

	resp, body := env.get(t, "/api/v1/history/"+gen.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	e := decode[history.Entry](t, body)
	if e.Seed != 3 || e.PageCount != 1 || e.TextLength != len("remember me") {
		t.Errorf("entry = %+v", e)
	}
	if e.TextHash != cache.Hash([]byte("remember me")) {
		t.Errorf("text_hash = %q", e.TextHash)
	}

	resp, body = env.get(t, "/api/v1/history?limit=5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	list := decode[struct {
		Entries []history.Entry `json:"entries"`
	}](t, body)
	if len(list.Entries) != 1 || list.Entries[0].ID != gen.ID {
		t.Errorf("entries = %+v", list.Entries)
	}

	resp, _ = env.get(t, "/api/v1/history/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", resp.StatusCode)
	}
	resp, _ = env.get(t, "/api/v1/history?limit=abc")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bad limit status = %d, want 422", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector()
	reg.MustRegister(c)
	observability.SetHTTPHooks(c)
	t.Cleanup(observability.Reset)

	env := newTestEnv(t, func(o *Options) { o.Gatherer = reg })

	resp, _ := env.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	resp, body := env.get(t, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `route="/healthz"`) {
		t.Errorf("metrics do not mention the healthz route:\n%s", body)
	}
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	if resp, _ := env.get(t, "/metrics"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, errors.ErrCodeInvalidParams) {
		t.Errorf("New() error = %v, want INVALID_PARAMS", err)
	}
}
