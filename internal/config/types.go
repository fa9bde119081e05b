// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pakload/pakload/pkg/types"
)

const (
	// LogLevelDebug enables debug output.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default log level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn only reports warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError only reports errors.
	LogLevelError LogLevel = "error"

	// LogFormatText renders human-readable lines.
	LogFormatText LogFormat = "text"
	// LogFormatJSON renders one JSON object per line.
	LogFormatJSON LogFormat = "json"
	// LogFormatLogfmt renders key=value pairs.
	LogFormatLogfmt LogFormat = "logfmt"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat is returned when a LogFormat value is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format")
	// ErrInvalidBlobExtension is returned when a blob extension does not start with a dot.
	ErrInvalidBlobExtension = errors.New("invalid blob extension")
	// ErrInvalidInterval is returned when a duration setting is not positive.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrInvalidMetricsConfig is the sentinel error wrapped by InvalidMetricsConfigError.
	ErrInvalidMetricsConfig = errors.New("invalid metrics config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidLoadOptions is the sentinel error wrapped by InvalidLoadOptionsError.
	ErrInvalidLoadOptions = errors.New("invalid load options")
)

type (
	// LogLevel is the minimum level the process logger emits.
	LogLevel string

	// LogFormat selects the process logger formatter.
	LogFormat string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidLogFormatError is returned when a LogFormat value is not recognized.
	InvalidLogFormatError struct {
		Value LogFormat
	}

	// InvalidBlobExtensionError is returned for an extension without a leading dot.
	InvalidBlobExtensionError struct {
		Value string
	}

	// InvalidIntervalError is returned when a duration setting is zero or negative.
	InvalidIntervalError struct {
		Field string
		Value time.Duration
	}

	// InvalidMetricsConfigError is returned when metrics are enabled without
	// a listen address.
	InvalidMetricsConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError collects field-level validation errors from all
	// sub-components. It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// InvalidLoadOptionsError collects errors from LoadOptions fields.
	InvalidLoadOptionsError struct {
		FieldErrors []error
	}

	// LogConfig configures the process logger.
	LogConfig struct {
		Level  LogLevel  `json:"level" mapstructure:"level"`
		Format LogFormat `json:"format" mapstructure:"format"`
	}

	// MetricsConfig configures the prometheus endpoint.
	MetricsConfig struct {
		Enabled bool                `json:"enabled" mapstructure:"enabled"`
		Listen  types.ListenAddress `json:"listen" mapstructure:"listen"`
	}

	// WatchConfig configures the manifest and blob watcher.
	WatchConfig struct {
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
	}

	// Config holds the application configuration.
	Config struct {
		// Manifest is the catalog manifest path.
		Manifest types.FilesystemPath `json:"manifest" mapstructure:"manifest"`
		// PackagesDir is the base directory local package blobs are resolved against.
		PackagesDir types.FilesystemPath `json:"packages_dir" mapstructure:"packages_dir"`
		// BlobExtension is appended to a package id to form its blob file name.
		BlobExtension string `json:"blob_extension" mapstructure:"blob_extension"`
		// TickInterval is the runner's tick period.
		TickInterval time.Duration `json:"tick_interval" mapstructure:"tick_interval"`
		// TopologicalEnqueue orders loader requests dependencies-first.
		TopologicalEnqueue bool          `json:"topological_enqueue" mapstructure:"topological_enqueue"`
		Log                LogConfig     `json:"log" mapstructure:"log"`
		Metrics            MetricsConfig `json:"metrics" mapstructure:"metrics"`
		Watch              WatchConfig   `json:"watch" mapstructure:"watch"`

		// Source is the file the configuration was read from, empty when
		// only defaults and environment variables applied.
		Source string `json:"-" mapstructure:"-"`
	}

	// LoadOptions defines explicit configuration loading inputs.
	LoadOptions struct {
		// ConfigFilePath forces loading from a specific config file when set.
		ConfigFilePath types.FilesystemPath
		// ConfigDirPath overrides the config directory lookup when set.
		ConfigDirPath types.FilesystemPath
		// WorkDir is searched for a config file when the config directory has none.
		WorkDir types.FilesystemPath
	}
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Manifest:           "catalog.cue",
		PackagesDir:        "packages",
		BlobExtension:      ".pak",
		TickInterval:       16 * time.Millisecond,
		TopologicalEnqueue: true,
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Watch: WatchConfig{
			Debounce: 250 * time.Millisecond,
		},
	}
}

// Validate checks every field and returns an *InvalidConfigError listing
// all problems, or nil.
func (c Config) Validate() error {
	var errs []error
	if err := c.Manifest.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.PackagesDir.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !strings.HasPrefix(c.BlobExtension, ".") || len(c.BlobExtension) < 2 {
		errs = append(errs, &InvalidBlobExtensionError{Value: c.BlobExtension})
	}
	if c.TickInterval <= 0 {
		errs = append(errs, &InvalidIntervalError{Field: "tick_interval", Value: c.TickInterval})
	}
	if c.Watch.Debounce <= 0 {
		errs = append(errs, &InvalidIntervalError{Field: "watch.debounce", Value: c.Watch.Debounce})
	}
	if err := c.Log.Level.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Log.Format.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Validate reports an enabled endpoint without a listen address and a
// malformed listen address.
func (m MetricsConfig) Validate() error {
	if strings.TrimSpace(m.Listen.String()) == "" {
		if m.Enabled {
			return &InvalidMetricsConfigError{FieldErrors: []error{
				errors.New("metrics.listen must be set when metrics.enabled is true"),
			}}
		}
		return nil
	}
	if err := m.Listen.Validate(); err != nil {
		return &InvalidMetricsConfigError{FieldErrors: []error{err}}
	}
	return nil
}

// Validate rejects explicit paths that are whitespace-only.
func (o LoadOptions) Validate() error {
	var errs []error
	for _, p := range []types.FilesystemPath{o.ConfigFilePath, o.ConfigDirPath, o.WorkDir} {
		if p == "" {
			continue
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &InvalidLoadOptionsError{FieldErrors: errs}
	}
	return nil
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// Validate returns nil when the level is one of the known values.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// String returns the string representation of the LogFormat.
func (f LogFormat) String() string { return string(f) }

// Validate returns nil when the format is one of the known values.
func (f LogFormat) Validate() error {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatLogfmt:
		return nil
	default:
		return &InvalidLogFormatError{Value: f}
	}
}

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

func (e *InvalidLogFormatError) Error() string {
	return fmt.Sprintf("invalid log format %q (valid: text, json, logfmt)", e.Value)
}

// Unwrap returns ErrInvalidLogFormat for errors.Is() compatibility.
func (e *InvalidLogFormatError) Unwrap() error { return ErrInvalidLogFormat }

func (e *InvalidBlobExtensionError) Error() string {
	return fmt.Sprintf("invalid blob extension %q: must start with a dot", e.Value)
}

// Unwrap returns ErrInvalidBlobExtension for errors.Is() compatibility.
func (e *InvalidBlobExtensionError) Unwrap() error { return ErrInvalidBlobExtension }

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("invalid %s %s: must be positive", e.Field, e.Value)
}

// Unwrap returns ErrInvalidInterval for errors.Is() compatibility.
func (e *InvalidIntervalError) Unwrap() error { return ErrInvalidInterval }

func (e *InvalidMetricsConfigError) Error() string {
	return fmt.Sprintf("invalid metrics config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidMetricsConfig for errors.Is() compatibility.
func (e *InvalidMetricsConfigError) Unwrap() error { return ErrInvalidMetricsConfig }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %d field error(s): %s", len(e.FieldErrors), strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

func (e *InvalidLoadOptionsError) Error() string {
	return fmt.Sprintf("invalid load options: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidLoadOptions for errors.Is() compatibility.
func (e *InvalidLoadOptionsError) Unwrap() error { return ErrInvalidLoadOptions }
