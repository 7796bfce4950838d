package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/render/sink"
	"github.com/matzehuels/handwrite/pkg/template"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output  string   // output base path; pages get a -N suffix
	formats []string // "png", "pdf"
	font    string   // catalog font name
	seed    uint64   // 0 draws a random seed
	sets    []string // key=value template overrides
	workers int      // parallel PNG encoders
}

// renderCommand creates the render command for local, offline rendering.
func (c *CLI) renderCommand() *cobra.Command {
	var formatsStr string
	opts := renderOpts{workers: 4}

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render a text file to handwritten pages",
		Long: `Render a text file to handwritten pages without starting the server.

The file "-" (or no file) reads from stdin. Template parameters come from the
config file and can be overridden with --set, for example:

  handwrite render letter.txt --font caveat --set line_spacing=80 -f png,pdf`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			if err := validateFormats(opts.formats); err != nil {
				return err
			}
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			return c.runRender(cmd.Context(), input, &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output base path (default: input name, or \"page\" for stdin)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): png (default), pdf (comma-separated)")
	cmd.Flags().StringVar(&opts.font, "font", "", "font name from the catalog (see 'handwrite fonts list')")
	_ = cmd.RegisterFlagCompletionFunc("font", c.completeFonts)
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "random seed for reproducible output (0 picks one)")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "template override as key=value (repeatable)")
	cmd.Flags().IntVar(&opts.workers, "workers", opts.workers, "parallel PNG encoders")

	return cmd
}

// parseFormats parses the --format flag into a slice of output formats.
// If empty, defaults to ["png"].
func parseFormats(s string) []string {
	if s == "" {
		return []string{sink.FormatPNG}
	}
	return strings.Split(s, ",")
}

// validateFormats checks that all requested formats are supported.
func validateFormats(formats []string) error {
	for _, f := range formats {
		if f != sink.FormatPNG && f != sink.FormatPDF {
			return fmt.Errorf("invalid format: %s (must be 'png' or 'pdf')", f)
		}
	}
	return nil
}

// applySets applies key=value overrides to p in order.
func applySets(p *template.Params, sets []string) error {
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return errors.New(errors.ErrCodeInvalidParams, "--set %q: expected key=value", s)
		}
		if err := p.Set(strings.TrimSpace(key), value); err != nil {
			return err
		}
	}
	return nil
}

// outputBase derives the output base path from the input path.
func outputBase(input, output string) string {
	if output != "" {
		return strings.TrimSuffix(output, filepath.Ext(output))
	}
	if input == "-" {
		return "page"
	}
	return strings.TrimSuffix(input, filepath.Ext(input))
}

func readInput(input string) (string, error) {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *CLI) runRender(ctx context.Context, input string, opts *renderOpts) error {
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	text, err := readInput(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if err := errors.ValidateText(text, 0); err != nil {
		return err
	}

	catalog, invoker := c.newInvoker(cfg)
	p := cfg.Template
	if err := applySets(&p, opts.sets); err != nil {
		return err
	}
	if opts.font != "" {
		f, err := catalog.Resolve(opts.font)
		if err != nil {
			return err
		}
		p.Font = f.Path
	}
	if opts.seed != 0 {
		p.Seed = opts.seed
	}

	timer := startRender(logger)
	spinner := newSpinnerWithContext(ctx, "Rendering...")
	spinner.Start()
	res, err := invoker.Render(ctx, text, p)
	spinner.Stop()
	if err != nil {
		return err
	}
	if len(res.Pages) == 0 {
		printWarning("Nothing to render")
		return nil
	}
	timer.done(len(res.Pages), res.Seed, res.Font)

	base := outputBase(input, opts.output)
	var written []string
	for _, format := range opts.formats {
		paths, err := writeRender(ctx, base, format, res.Pages, res.DPI, opts.workers)
		if err != nil {
			return err
		}
		written = append(written, paths...)
	}

	printRenderStats(res.Font, res.Seed, res.Duration)
	for _, path := range written {
		printFile(path)
	}
	return nil
}
