package cliconfig

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// envConfig mirrors Config for AMPSHIP_* environment variables. Pointer
// fields distinguish "unset" from a zero value.
type envConfig struct {
	APIKey          string `env:"AMPSHIP_API_KEY"`
	SourceAPIKey    string `env:"AMPSHIP_SOURCE_API_KEY"`
	SourceSecretKey string `env:"AMPSHIP_SOURCE_SECRET_KEY"`
	Region          string `env:"AMPSHIP_REGION"`

	ExportDir   string `env:"AMPSHIP_EXPORT_DIR"`
	ConvertDir  string `env:"AMPSHIP_CONVERT_DIR"`
	RequestsDir string `env:"AMPSHIP_REQUESTS_DIR"`

	MaxBatchEvents int `env:"AMPSHIP_MAX_BATCH_EVENTS"`
	MaxBatchBytes  int `env:"AMPSHIP_MAX_BATCH_BYTES"`

	UploadDelay   time.Duration `env:"AMPSHIP_UPLOAD_DELAY"`
	HTTPTimeout   time.Duration `env:"AMPSHIP_HTTP_TIMEOUT"`
	ExportTimeout time.Duration `env:"AMPSHIP_EXPORT_TIMEOUT"`
	MaxAttempts   int           `env:"AMPSHIP_MAX_ATTEMPTS"`

	Scripts       *bool `env:"AMPSHIP_SCRIPTS"`
	SetInsertID   *bool `env:"AMPSHIP_SET_INSERT_ID"`
	ForceOversize *bool `env:"AMPSHIP_FORCE_OVERSIZE"`

	MetricsAddr string `env:"AMPSHIP_METRICS_ADDR"`
	LogLevel    string `env:"AMPSHIP_LOG_LEVEL"`

	ExportURL string `env:"AMPSHIP_EXPORT_URL"`
	UploadURL string `env:"AMPSHIP_UPLOAD_URL"`
}

// ApplyEnvConfig applies configuration from AMPSHIP_* environment variables,
// loading a .env file first if one is present. It respects flags that have
// been explicitly set (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	_ = godotenv.Load()

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return err
	}

	s := newConfigSetter(changed)

	s.setString("api-key", ec.APIKey, &cfg.APIKey)
	s.setString("source-api-key", ec.SourceAPIKey, &cfg.SourceAPIKey)
	s.setString("source-secret-key", ec.SourceSecretKey, &cfg.SourceSecretKey)
	s.setString("region", ec.Region, &cfg.Region)
	s.setString("export-dir", ec.ExportDir, &cfg.ExportDir)
	s.setString("convert-dir", ec.ConvertDir, &cfg.ConvertDir)
	s.setString("requests-dir", ec.RequestsDir, &cfg.RequestsDir)
	s.setString("metrics-addr", ec.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", ec.LogLevel, &cfg.LogLevel)
	s.setString("export-url", ec.ExportURL, &cfg.ExportURL)
	s.setString("upload-url", ec.UploadURL, &cfg.UploadURL)

	s.setInt("max-batch-events", ec.MaxBatchEvents, &cfg.MaxBatchEvents)
	s.setInt("max-batch-bytes", ec.MaxBatchBytes, &cfg.MaxBatchBytes)
	s.setInt("max-attempts", ec.MaxAttempts, &cfg.MaxAttempts)

	s.setDuration("delay", ec.UploadDelay, &cfg.UploadDelay)
	s.setDuration("timeout", ec.HTTPTimeout, &cfg.HTTPTimeout)
	s.setDuration("export-timeout", ec.ExportTimeout, &cfg.ExportTimeout)

	s.setBool("scripts", ec.Scripts, &cfg.Scripts)
	s.setBool("set-insert-id", ec.SetInsertID, &cfg.SetInsertID)
	s.setBool("force-oversize", ec.ForceOversize, &cfg.ForceOversize)

	return nil
}
