// Package logger builds the process-wide slog logger.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

type Options struct {
	AddSource bool
	Level     string
	// Format is "json" (default) or "text".
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New builds a logger and installs it as the slog default.
// An unknown level or format falls back to info or JSON and is reported in err;
// the returned logger is usable in that case.
func New(opt *Options) (*slog.Logger, error) {
	if opt == nil {
		return nil, errors.New("logger options are required")
	}

	out := opt.Output
	if out == nil {
		out = os.Stdout
	}

	level, levelErr := ParseLevel(opt.Level)

	handlerOpts := &slog.HandlerOptions{
		AddSource: opt.AddSource,
		Level:     level,
	}

	var (
		handler   slog.Handler
		formatErr error
	)

	switch strings.ToLower(opt.Format) {
	case FormatText:
		handler = slog.NewTextHandler(out, handlerOpts)
	case FormatJSON, "":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		formatErr = fmt.Errorf("unknown log format: %q", opt.Format)
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log, errors.Join(levelErr, formatErr)
}

// ParseLevel converts a string level to slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", level)
	}
}
