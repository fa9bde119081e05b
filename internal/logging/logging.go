// SPDX-License-Identifier: MPL-2.0

// Package logging builds the process-wide slog logger on top of the
// charmbracelet/log handler.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"

	"github.com/pakload/pakload/internal/config"
)

type (
	// Option customizes New.
	Option func(*log.Options)
)

// WithPrefix sets the prefix printed before every message.
func WithPrefix(prefix string) Option {
	return func(o *log.Options) { o.Prefix = prefix }
}

// WithTimestamps toggles the timestamp column.
func WithTimestamps(enabled bool) Option {
	return func(o *log.Options) { o.ReportTimestamp = enabled }
}

// New returns a slog.Logger writing to w with the level and formatter
// named by cfg. Unknown values fall back to info and text; callers are
// expected to have validated cfg already.
func New(w io.Writer, cfg config.LogConfig, opts ...Option) *slog.Logger {
	options := log.Options{
		Level:           Level(cfg.Level),
		Formatter:       Formatter(cfg.Format),
		ReportTimestamp: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return slog.New(log.NewWithOptions(w, options))
}

// Setup builds a stderr logger from cfg and installs it as the slog
// default. verbose forces debug level.
func Setup(cfg config.LogConfig, verbose bool) *slog.Logger {
	if verbose {
		cfg.Level = config.LogLevelDebug
	}
	logger := New(os.Stderr, cfg, WithPrefix(config.AppName))
	slog.SetDefault(logger)
	return logger
}

// Level maps a configured level onto the handler's level.
func Level(l config.LogLevel) log.Level {
	switch l {
	case config.LogLevelDebug:
		return log.DebugLevel
	case config.LogLevelWarn:
		return log.WarnLevel
	case config.LogLevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Formatter maps a configured format onto the handler's formatter.
func Formatter(f config.LogFormat) log.Formatter {
	switch f {
	case config.LogFormatJSON:
		return log.JSONFormatter
	case config.LogFormatLogfmt:
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
