package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/openrig/manipd/internal/infrastructure/config"
)

// Logger is the structured logger used throughout manipd. It embeds
// *slog.Logger, so the usual Debug/Info/Warn/Error methods are available
// directly.
//
// Thread Safety: safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the daemon's logging configuration.
// Every entry carries service and version attributes so logs from several
// daemons can share one aggregation pipeline.
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg).WithAttrs([]slog.Attr{
		slog.String("service", "manipd"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// newHandler selects the output destination and encoding.
// JSON to stdout is the default; text is for watching a daemon by hand.
func newHandler(cfg config.LoggingConfig) slog.Handler {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps a config level string to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with the daemon component it
// serves, e.g. Component("monitor") for the background position monitor.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default returns a JSON/info/stdout logger for use before configuration
// has been loaded. Startup failures prior to config parsing log through it.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
