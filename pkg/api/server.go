// Package api serves the handwriting renderer over HTTP.
//
// The server is a thin adapter: it validates JSON requests, resolves font
// names through the catalog, merges request parameters onto the configured
// template and hands the text to the render invoker. Pages are spooled
// through PNG files and returned base64 encoded.
//
//	srv, err := api.New(api.Options{Catalog: catalog, Invoker: inv, ...})
//	err = srv.ListenAndServe(ctx, ":8000")
package api

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/handwrite/pkg/cache"
	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/fonts"
	"github.com/matzehuels/handwrite/pkg/history"
	"github.com/matzehuels/handwrite/pkg/render"
	"github.com/matzehuels/handwrite/pkg/template"
)

// Defaults applied by New to zero-valued Options.
const (
	DefaultMaxBodyBytes   = 1 << 20
	DefaultMaxTextLength  = 20000
	DefaultRequestTimeout = 90 * time.Second
	DefaultEncodeWorkers  = 4
	DefaultHistorySize    = 200

	shutdownTimeout = 10 * time.Second
)

// Options configures a Server. Catalog, Templates and Invoker are required.
type Options struct {
	Catalog   *fonts.Catalog
	Templates *template.Config
	Invoker   *render.Invoker

	Cache    cache.Cache // nil disables caching
	Keyer    cache.Keyer
	CacheTTL time.Duration

	History history.Store // nil keeps an in-memory history
	Spool   *Spool        // nil spools to the system temporary directory

	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	Logger *log.Logger

	MaxBodyBytes   int64
	MaxTextLength  int
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	EncodeWorkers  int
}

// Server is the HTTP front end of the renderer.
type Server struct {
	catalog   *fonts.Catalog
	templates *template.Config
	invoker   *render.Invoker
	cache     cache.Cache
	keyer     cache.Keyer
	cacheTTL  time.Duration
	history   history.Store
	spool     *Spool
	logger    *log.Logger
	opts      Options
	router    chi.Router
}

// New builds a server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Catalog == nil || opts.Templates == nil || opts.Invoker == nil {
		return nil, errors.New(errors.ErrCodeInvalidParams, "catalog, templates and invoker are required")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.EncodeWorkers <= 0 {
		opts.EncodeWorkers = DefaultEncodeWorkers
	}

	s := &Server{
		catalog:   opts.Catalog,
		templates: opts.Templates,
		invoker:   opts.Invoker,
		cache:     opts.Cache,
		keyer:     opts.Keyer,
		cacheTTL:  opts.CacheTTL,
		history:   opts.History,
		spool:     opts.Spool,
		logger:    opts.Logger,
		opts:      opts,
	}
	if s.cache == nil {
		s.cache = cache.NewNullCache()
	}
	if s.keyer == nil {
		s.keyer = cache.NewDefaultKeyer()
	}
	if s.history == nil {
		s.history = history.NewMemoryStore(DefaultHistorySize)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.spool == nil {
		sp, err := NewSpool("", opts.EncodeWorkers)
		if err != nil {
			return nil, err
		}
		s.spool = sp
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.timeout)
		r.Get("/fonts", s.handleFonts)
		r.Post("/generate", s.handleGenerate)
		r.Get("/history", s.handleHistoryList)
		r.Get("/history/{id}", s.handleHistoryGet)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnavailable, err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errc <- hs.Serve(ln)
	}()

	select {
	case err := <-errc:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
