package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

const logTimeFormat = "15:04:05.00"

// newLogger creates the logger shared by all commands.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      logTimeFormat,
		Level:           level,
	})
}

// renderTimer measures one local render and reports it as a single info line.
type renderTimer struct {
	logger *log.Logger
	start  time.Time
}

func startRender(l *log.Logger) *renderTimer {
	return &renderTimer{logger: l, start: time.Now()}
}

// done logs the page count with the seed and font that produced it, so a
// render can be repeated with --seed.
func (t *renderTimer) done(pages int, seed uint64, font string) time.Duration {
	elapsed := time.Since(t.start).Round(time.Millisecond)
	t.logger.Info("rendered", "pages", pages, "seed", seed, "font", font, "took", elapsed)
	return elapsed
}

type loggerKey struct{}

// withLogger attaches l to ctx for the command being run.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// loggerFromContext returns the command logger, or log.Default() outside a
// command.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
