package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/matzehuels/handwrite/pkg/api"
	"github.com/matzehuels/handwrite/pkg/cache"
	"github.com/matzehuels/handwrite/pkg/config"
	"github.com/matzehuels/handwrite/pkg/history"
	"github.com/matzehuels/handwrite/pkg/observability"
	"github.com/matzehuels/handwrite/pkg/observability/metrics"
	"github.com/matzehuels/handwrite/pkg/template"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return c.runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides server.addr)")
	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg config.Config) error {
	logger := loggerFromContext(ctx)
	catalog, invoker := c.newInvoker(cfg)

	rc, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer rc.Close()

	store, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(context.WithoutCancel(ctx))

	spool, err := api.NewSpool(cfg.Spool.Dir, cfg.Server.EncodeWorkers)
	if err != nil {
		return err
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = registerMetrics()
		defer observability.Reset()
	}

	var keyer cache.Keyer = cache.NewDefaultKeyer()
	if cfg.Cache.Prefix != "" {
		keyer = cache.NewScopedKeyer(keyer, cfg.Cache.Prefix)
	}

	srv, err := api.New(api.Options{
		Catalog:        catalog,
		Templates:      template.NewConfig(cfg.Template),
		Invoker:        invoker,
		Cache:          rc,
		Keyer:          keyer,
		CacheTTL:       cfg.Cache.TTL.Duration,
		History:        store,
		Spool:          spool,
		Gatherer:       gatherer,
		Logger:         logger,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MaxTextLength:  cfg.Server.MaxTextLength,
		RequestTimeout: cfg.Server.RequestTimeout.Duration,
		ReadTimeout:    cfg.Server.ReadTimeout.Duration,
		WriteTimeout:   cfg.Server.WriteTimeout.Duration,
		EncodeWorkers:  cfg.Server.EncodeWorkers,
	})
	if err != nil {
		return err
	}

	logServeConfig(logger, cfg, spool.Dir())
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

func logServeConfig(logger *log.Logger, cfg config.Config, spoolDir string) {
	logger.Info("starting handwrite",
		"fonts", cfg.Fonts.Dir,
		"cache", cfg.Cache.Backend,
		"history", cfg.History.Backend,
		"metrics", cfg.Metrics.Enabled,
	)
	logger.Debug("spool", "dir", spoolDir)
}

// openCache opens the configured render cache backend.
func openCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheFile:
		dir, err := fileCacheDir(cfg)
		if err != nil {
			return nil, fmt.Errorf("get cache dir: %w", err)
		}
		return cache.NewFileCache(dir)
	case config.CacheRedis:
		return cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
	default:
		return cache.NewNullCache(), nil
	}
}

// openHistory opens the configured history backend.
func openHistory(ctx context.Context, cfg config.Config) (history.Store, error) {
	if cfg.History.Backend == config.HistoryMongo {
		return history.NewMongoStore(ctx, history.MongoOptions{
			URI:        cfg.History.MongoURI,
			Database:   cfg.History.Database,
			Collection: cfg.History.Collection,
		})
	}
	return history.NewMemoryStore(cfg.History.Size), nil
}

// registerMetrics installs the Prometheus collector as the observability
// hooks and returns the registry serving /metrics.
func registerMetrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observability.SetRenderHooks(c)
	observability.SetCacheHooks(c)
	observability.SetHTTPHooks(c)
	return reg
}
