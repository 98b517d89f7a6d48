// Package cliconfig holds the ampship CLI configuration: defaults, TOML file
// loading, AMPSHIP_* environment overrides, and validation. Precedence is
// flags over environment over file over defaults.
package cliconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/ampship/ampship/internal/export"
	"github.com/ampship/ampship/internal/upload"
)

// Destination hard ceilings per Batch Upload API request. Configured limits
// must stay within these; max_batch_bytes must sit strictly below the byte
// ceiling to absorb any envelope slack.
const (
	HardMaxBatchEvents = 2000
	HardMaxBatchBytes  = 20 << 20
)

// Config holds CLI configuration for ampship.
type Config struct {
	// APIKey is the destination project's API key; it rides inside every
	// upload payload.
	APIKey string

	// SourceAPIKey and SourceSecretKey authenticate against the source
	// project's Export API.
	SourceAPIKey    string
	SourceSecretKey string

	Region string

	Start string
	End   string

	ExportDir   string
	ConvertDir  string
	RequestsDir string

	MaxBatchEvents int
	MaxBatchBytes  int

	UploadDelay   time.Duration
	HTTPTimeout   time.Duration
	ExportTimeout time.Duration
	MaxAttempts   int

	Scripts       bool
	SetInsertID   bool
	ForceOversize bool
	Watch         bool

	MetricsAddr string
	LogLevel    string

	// ExportURL and UploadURL override the region-derived endpoints.
	// Hidden flags, used for tests and self-hosted proxies.
	ExportURL string
	UploadURL string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Region:         "us",
		ExportDir:      "./exports",
		ConvertDir:     "./converted",
		RequestsDir:    "./requests",
		MaxBatchEvents: HardMaxBatchEvents,
		MaxBatchBytes:  19 << 20, // headroom below the 20 MiB ceiling
		UploadDelay:    time.Second,
		HTTPTimeout:    30 * time.Second,
		ExportTimeout:  15 * time.Minute,
		MaxAttempts:    5,
		LogLevel:       "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	switch c.Region {
	case "us", "eu":
	default:
		return fmt.Errorf("region must be us or eu, got %q", c.Region)
	}

	if c.MaxBatchEvents <= 0 || c.MaxBatchEvents > HardMaxBatchEvents {
		return fmt.Errorf("max batch events must be in 1..%d, got %d", HardMaxBatchEvents, c.MaxBatchEvents)
	}
	if c.MaxBatchBytes <= 0 {
		return fmt.Errorf("max batch bytes must be positive, got %d", c.MaxBatchBytes)
	}
	if c.MaxBatchBytes >= HardMaxBatchBytes {
		return fmt.Errorf("max batch bytes must be below the %d byte API ceiling, got %d", HardMaxBatchBytes, c.MaxBatchBytes)
	}

	if c.UploadDelay < 0 {
		return fmt.Errorf("upload delay must not be negative")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}

	if c.ExportURL == "" {
		c.ExportURL = export.USBaseURL
		if c.Region == "eu" {
			c.ExportURL = export.EUBaseURL
		}
	}
	if c.UploadURL == "" {
		c.UploadURL = upload.USBaseURL
		if c.Region == "eu" {
			c.UploadURL = upload.EUBaseURL
		}
	}
	c.ExportURL = strings.TrimRight(c.ExportURL, "/")
	c.UploadURL = strings.TrimRight(c.UploadURL, "/")

	return nil
}

// configSetter helps apply configuration values while respecting flag
// precedence. It only applies values if the corresponding flag hasn't been
// explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration sets a duration if positive and flag not changed.
func (s *configSetter) setDuration(flag string, value time.Duration, dst *time.Duration) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDurationFromString parses and sets a duration from string if valid and
// flag not changed. Used for TOML values which come as strings.
func (s *configSetter) setDurationFromString(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}
