// Package logging provides structured logging for batcha.
//
// This package wraps the standard library's log/slog package so that every
// component logs the same way. Three output formats are supported: logfmt
// style text, JSON, and a colourized "pretty" format for interactive use.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, logging.FormatText)
//	logging.Init(slog.LevelDebug, logging.FormatPretty)
//
//	// Get a component logger
//	log := logging.Component("datastore")
//	log.Info("table written", "path", "/results/rmsd", "rows", 100)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"golang.org/x/term"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Format selects the log output encoding.
type Format string

const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// ParseFormat parses a format name. The empty string selects text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatPretty:
		return f, nil
	}
	return "", fmt.Errorf("unknown log format %q", s)
}

// ParseLevel parses "debug", "info", "warn"/"warning" or "error".
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Init initializes the global logger writing to stderr. Stdout is left to
// command output.
func Init(level slog.Level, format Format) {
	InitWithHandler(NewHandler(os.Stderr, level, format))
}

// NewHandler builds a handler for w. The pretty format only emits colour
// when w is a terminal.
func NewHandler(w io.Writer, level slog.Level, format Format) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts)
	case FormatPretty:
		color := false
		if f, ok := w.(*os.File); ok {
			color = term.IsTerminal(int(f.Fd()))
			w = colorable.NewColorable(f)
		}
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  opts.AddSource,
			TimeFormat: time.TimeOnly,
			NoColor:    !color,
		})
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func ensure() {
	if Logger == nil {
		Init(slog.LevelInfo, FormatText)
	}
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	ensure()
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
func Component(name string) *slog.Logger {
	ensure()
	return Logger.With("component", name)
}

// WithContext returns a logger that includes the file and node recorded in
// ctx, if any.
func WithContext(ctx context.Context) *slog.Logger {
	ensure()

	logger := Logger
	if file, ok := ctx.Value(contextKeyFile).(string); ok {
		logger = logger.With("file", file)
	}
	if node, ok := ctx.Value(contextKeyNode).(string); ok {
		logger = logger.With("node", node)
	}
	return logger
}

type contextKey int

const (
	contextKeyFile contextKey = iota
	contextKeyNode
)

// ContextWithFile records the container file path in ctx for logging.
func ContextWithFile(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, contextKeyFile, path)
}

// ContextWithNode records a node path in ctx for logging.
func ContextWithNode(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, contextKeyNode, path)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	ensure()
	Logger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	ensure()
	Logger.Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	ensure()
	Logger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	ensure()
	Logger.Error(msg, args...)
}
