package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML
// friendly.
type FileConfig struct {
	APIKey          string `toml:"api_key"`
	SourceAPIKey    string `toml:"source_api_key"`
	SourceSecretKey string `toml:"source_secret_key"`
	Region          string `toml:"region"`

	ExportDir   string `toml:"export_dir"`
	ConvertDir  string `toml:"convert_dir"`
	RequestsDir string `toml:"requests_dir"`

	MaxBatchEvents int `toml:"max_batch_events"`
	MaxBatchBytes  int `toml:"max_batch_bytes"`

	UploadDelay   string `toml:"upload_delay"`
	HTTPTimeout   string `toml:"http_timeout"`
	ExportTimeout string `toml:"export_timeout"`
	MaxAttempts   int    `toml:"max_attempts"`

	Scripts       *bool `toml:"scripts"`
	SetInsertID   *bool `toml:"set_insert_id"`
	ForceOversize *bool `toml:"force_oversize"`

	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`

	ExportURL string `toml:"export_url"`
	UploadURL string `toml:"upload_url"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path,
// ~/.ampship/config.toml, if the user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".ampship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("api-key", fc.APIKey, &cfg.APIKey)
	s.setString("source-api-key", fc.SourceAPIKey, &cfg.SourceAPIKey)
	s.setString("source-secret-key", fc.SourceSecretKey, &cfg.SourceSecretKey)
	s.setString("region", fc.Region, &cfg.Region)
	s.setString("export-dir", fc.ExportDir, &cfg.ExportDir)
	s.setString("convert-dir", fc.ConvertDir, &cfg.ConvertDir)
	s.setString("requests-dir", fc.RequestsDir, &cfg.RequestsDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("export-url", fc.ExportURL, &cfg.ExportURL)
	s.setString("upload-url", fc.UploadURL, &cfg.UploadURL)

	s.setInt("max-batch-events", fc.MaxBatchEvents, &cfg.MaxBatchEvents)
	s.setInt("max-batch-bytes", fc.MaxBatchBytes, &cfg.MaxBatchBytes)
	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)

	if err := s.setDurationFromString("delay", fc.UploadDelay, &cfg.UploadDelay); err != nil {
		return err
	}
	if err := s.setDurationFromString("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDurationFromString("export-timeout", fc.ExportTimeout, &cfg.ExportTimeout); err != nil {
		return err
	}

	s.setBool("scripts", fc.Scripts, &cfg.Scripts)
	s.setBool("set-insert-id", fc.SetInsertID, &cfg.SetInsertID)
	s.setBool("force-oversize", fc.ForceOversize, &cfg.ForceOversize)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
