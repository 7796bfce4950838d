// Package cli implements the handwrite command-line interface.
//
// # Commands
//
//   - serve: run the HTTP service
//   - render: render a text file to PNG pages or a PDF
//   - fonts: list the font catalog or pick a font interactively
//   - config: write or inspect the configuration file
//   - cache: manage the file render cache
//
// All commands read the same TOML configuration (--config or
// $HANDWRITE_CONFIG) and log through charmbracelet/log. The logger travels
// to subcommands through the command context.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/handwrite/pkg/buildinfo"
	"github.com/matzehuels/handwrite/pkg/config"
	"github.com/matzehuels/handwrite/pkg/fonts"
	"github.com/matzehuels/handwrite/pkg/render"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "handwrite"

	// configEnv names a config file when --config is not given.
	configEnv = "HANDWRITE_CONFIG"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger     *log.Logger
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Handwrite renders text as handwritten pages",
		Long:         `Handwrite turns plain text into page images that look written by hand. It runs as an HTTP service or renders files locally.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default $"+configEnv+")")

	// Register all subcommands
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.fontsCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Shared Setup
// =============================================================================

// loadConfig reads the config named by --config or $HANDWRITE_CONFIG, or
// returns the defaults when neither is set.
func (c *CLI) loadConfig() (config.Config, error) {
	path := c.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if path != "" {
		c.Logger.Debug("loaded config", "path", path)
	}
	return cfg, nil
}

// newInvoker builds the font catalog and render invoker for cfg.
func (c *CLI) newInvoker(cfg config.Config) (*fonts.Catalog, *render.Invoker) {
	catalog := fonts.NewCatalog(cfg.Fonts.Dir)
	return catalog, render.NewInvoker(catalog, render.WithLogger(c.Logger))
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/handwrite/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// fileCacheDir returns the configured file cache directory, falling back to
// the XDG cache directory.
func fileCacheDir(cfg config.Config) (string, error) {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "renders"), nil
}
