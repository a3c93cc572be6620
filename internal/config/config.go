// Package config defines process configuration and how it is loaded.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/shipaudit/internal/domain/servicelevel"
)

// Lookup backends.
const (
	LookupBrowser = "browser"
	LookupFixture = "fixture"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`
	// LogFile, when set, receives a copy of the log.
	LogFile string `koanf:"log_file"`

	// InputPath is the CSV batch to process.
	InputPath string `koanf:"input_path"`
	// OutputPath is the append-only CSV result file.
	OutputPath string `koanf:"output_path"`

	TrackingColumn     string `koanf:"tracking_column"`
	ServiceLevelColumn string `koanf:"service_level_column"`

	// Lookup selects the tracking backend: browser or fixture.
	Lookup string `koanf:"lookup"`
	// FixturePath is the YAML file read by the fixture backend.
	FixturePath string `koanf:"fixture_path"`

	TrackingURL string `koanf:"tracking_url"`
	Headless    bool   `koanf:"headless"`
	BrowserBin  string `koanf:"browser_bin"`
	// DebuggerURL attaches to a running Chrome instead of launching one.
	DebuggerURL string `koanf:"debugger_url"`

	// Sessions is the number of parallel lookup sessions.
	Sessions        int `koanf:"sessions"`
	LookupTimeoutMS int `koanf:"lookup_timeout_ms"`
	// LookupGraceMS is how long an overdue lookup may take to return before
	// its session is retired.
	LookupGraceMS int `koanf:"lookup_grace_ms"`
	// PauseMS is the wait after each lookup, per session.
	PauseMS   int `koanf:"pause_ms"`
	QueueSize int `koanf:"queue_size"`

	// MetricsPath, when set, receives a Prometheus textfile after each run.
	MetricsPath string `koanf:"metrics_path"`

	// ServiceLevels is the delivery contract table.
	ServiceLevels []servicelevel.Definition `koanf:"service_levels"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		TrackingColumn:     "Airbill Number/BOL Number",
		ServiceLevelColumn: "Service Level",
		Lookup:             LookupBrowser,
		TrackingURL:        "https://www.ups.com/track",
		Headless:           true,
		Sessions:           1,
		LookupTimeoutMS:    60_000,
		LookupGraceMS:      5_000,
		PauseMS:            2_000,
		QueueSize:          16,
		ServiceLevels:      servicelevel.DefaultDefinitions(),
	}
}

// LookupTimeout returns the per-lookup deadline.
func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMS) * time.Millisecond
}

// LookupGrace returns how long an overdue lookup may still take.
func (c *Config) LookupGrace() time.Duration {
	return time.Duration(c.LookupGraceMS) * time.Millisecond
}

// Pause returns the wait after each lookup.
func (c *Config) Pause() time.Duration {
	return time.Duration(c.PauseMS) * time.Millisecond
}

// Catalog builds the service-level catalog from ServiceLevels.
func (c *Config) Catalog() (*servicelevel.Catalog, error) {
	cat, err := servicelevel.New(c.ServiceLevels...)
	if err != nil {
		return nil, fmt.Errorf("%w: service_levels: %w", ErrInvalidConfig, err)
	}
	return cat, nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate(_ context.Context) error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.TrackingColumn == "" || c.ServiceLevelColumn == "" {
		return fmt.Errorf("%w: tracking_column and service_level_column must not be empty", ErrInvalidConfig)
	}
	switch c.Lookup {
	case LookupBrowser:
	case LookupFixture:
		if c.FixturePath == "" {
			return fmt.Errorf("%w: lookup %q needs fixture_path", ErrInvalidConfig, c.Lookup)
		}
	default:
		return fmt.Errorf("%w: lookup %q, want %s or %s", ErrInvalidConfig, c.Lookup, LookupBrowser, LookupFixture)
	}
	if c.Sessions < 1 {
		return fmt.Errorf("%w: sessions must be at least 1", ErrInvalidConfig)
	}
	if c.LookupTimeoutMS <= 0 {
		return fmt.Errorf("%w: lookup_timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.LookupGraceMS < 0 {
		return fmt.Errorf("%w: lookup_grace_ms must not be negative", ErrInvalidConfig)
	}
	if c.PauseMS < 0 {
		return fmt.Errorf("%w: pause_ms must not be negative", ErrInvalidConfig)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue_size must be at least 1", ErrInvalidConfig)
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}
