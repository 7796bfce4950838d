package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/matzehuels/handwrite/pkg/cache"
	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/history"
	"github.com/matzehuels/handwrite/pkg/observability"
	"github.com/matzehuels/handwrite/pkg/render/sink"
	"github.com/matzehuels/handwrite/pkg/template"
)

const renderKeyType = "render"

// rendered is what the cache stores for a generation.
type rendered struct {
	Images    map[string]string `json:"images"`
	PageCount int               `json:"page_count"`
	Seed      uint64            `json:"seed"`
	Font      string            `json:"font"`
	PDF       string            `json:"pdf,omitempty"`
	Duration  time.Duration     `json:"duration_ns"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFonts(w http.ResponseWriter, r *http.Request) {
	names, err := s.catalog.Names()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, fontsResponse{Fonts: names})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := s.decodeGenerate(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.params(req.Params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text := *req.Text
	out, cached, err := s.generate(ctx, text, p, req.PDF)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := uuid.NewString()
	entry := history.Entry{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		TextLength: utf8.RuneCountInString(text),
		TextHash:   cache.Hash([]byte(text)),
		Font:       out.Font,
		PageCount:  out.PageCount,
		Seed:       out.Seed,
		Duration:   out.Duration,
		Cached:     cached,
		PDF:        req.PDF,
	}
	if err := s.history.Record(ctx, entry); err != nil {
		s.logger.Warn("history record failed", "id", id, "err", err)
	}

	writeJSON(w, http.StatusOK, generateResponse{
		ID:        id,
		Images:    out.Images,
		PageCount: out.PageCount,
		Seed:      out.Seed,
		Cached:    cached,
		PDF:       out.PDF,
	})
}

func (s *Server) decodeGenerate(w http.ResponseWriter, r *http.Request) (*generateRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.New(errors.ErrCodeTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid JSON body")
	}
	if req.Text == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "text is required")
	}
	if err := errors.ValidateText(*req.Text, s.opts.MaxTextLength); err != nil {
		return nil, err
	}
	return &req, nil
}

// params merges the request parameters onto the configured template. The
// shared template is never modified.
func (s *Server) params(rp *requestParams) (template.Params, error) {
	o, err := rp.overrides()
	if err != nil {
		return template.Params{}, err
	}
	// An empty name keeps the template font.
	if rp != nil && rp.Font != nil && *rp.Font != "" {
		f, err := s.catalog.Resolve(*rp.Font)
		if err != nil {
			return template.Params{}, err
		}
		o.Font = &f.Path
	}
	return s.templates.Merge(o)
}

// generate renders text, or returns the cached rendering when the seed is
// fixed and the same request was served before.
func (s *Server) generate(ctx context.Context, text string, p template.Params, withPDF bool) (*rendered, bool, error) {
	hooks := observability.Cache()

	var key string
	if p.Seed != 0 {
		format := sink.FormatPNG
		if withPDF {
			format += "+" + sink.FormatPDF
		}
		key = s.keyer.RenderKey(cache.Hash([]byte(text)), p.Hash(), format)
		if out, ok := s.cached(ctx, key); ok {
			hooks.OnCacheHit(ctx, renderKeyType)
			return out, true, nil
		}
		hooks.OnCacheMiss(ctx, renderKeyType)
	}

	res, err := s.invoker.Render(ctx, text, p)
	if err != nil {
		return nil, false, err
	}
	images, err := s.spool.Encode(ctx, res.Pages)
	if err != nil {
		return nil, false, err
	}
	out := &rendered{
		Images:    images,
		PageCount: len(res.Pages),
		Seed:      res.Seed,
		Font:      res.Font,
		Duration:  res.Duration,
	}
	if withPDF && len(res.Pages) > 0 {
		doc, err := sink.EncodePDF(ctx, res.Pages, res.DPI)
		if err != nil {
			return nil, false, err
		}
		out.PDF = base64.StdEncoding.EncodeToString(doc)
	}

	if key != "" {
		data, err := json.Marshal(out)
		if err == nil {
			err = s.cache.Set(ctx, key, data, s.cacheTTL)
		}
		if err != nil {
			s.logger.Warn("cache write failed", "key", key, "err", err)
		} else {
			hooks.OnCacheSet(ctx, renderKeyType, len(data))
		}
	}
	return out, false, nil
}

func (s *Server) cached(ctx context.Context, key string) (*rendered, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var out rendered
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("dropping corrupt cache entry", "key", key, "err", err)
		_ = s.cache.Delete(ctx, key)
		return nil, false
	}
	return &out, true
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	e, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
