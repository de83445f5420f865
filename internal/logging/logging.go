// Package logging provides structured logging for the light controller.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("device configured", "id", 1, "kind", "continuous")
//	logger.Error("timer failed", "timer_id", id, "error", err)
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sweeney/light-controller/internal/config"
)

// Logger wraps slog.Logger. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing JSON or text to stdout or stderr at the
// configured level, tagged with the service name and version.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return newWithWriter(output, cfg, version)
}

func newWithWriter(output io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "light-controller"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a level name to slog.Level, defaulting to info.
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

// With returns a Logger with additional default attributes.
//
//	gpioLogger := logger.With("component", "gpio")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a text logger at info level on stderr, for use before
// configuration has been loaded.
func Default() *Logger {
	return newWithWriter(os.Stderr, config.LoggingConfig{Level: "info", Format: "text"}, "dev")
}
