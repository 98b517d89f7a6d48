// Package ampship migrates event data between Amplitude projects: it
// downloads an Export API archive, normalizes the exported records into the
// Batch Upload schema, partitions them into count- and byte-bounded request
// payloads, and uploads the payloads with pacing, retries, and resume.
//
// Example usage:
//
//	cfg := ampship.DefaultConfig()
//	cfg.APIKey = "destination-api-key"
//	cfg.SourceAPIKey = "source-api-key"
//	cfg.SourceSecretKey = "source-secret-key"
//	cfg.Start, cfg.End = "20240101T00", "20240101T23"
//	p, err := ampship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := p.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package ampship

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ampship/ampship/internal/batch"
	"github.com/ampship/ampship/internal/cliconfig"
	"github.com/ampship/ampship/internal/export"
	"github.com/ampship/ampship/internal/metrics"
	"github.com/ampship/ampship/internal/normalize"
	"github.com/ampship/ampship/internal/pipeline"
	"github.com/ampship/ampship/internal/upload"
)

// Config holds the configuration for a migration pipeline.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Logger returns the package-level zerolog logger used by the pipeline.
func Logger() zerolog.Logger {
	return cliconfig.Logger()
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger replaces the default logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// Pipeline runs migration stages against a validated configuration. Stages
// can run individually (Export, Convert, Bundle, Upload) or end to end (Run).
type Pipeline struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	serveOnce sync.Once
}

// New validates cfg and creates a Pipeline. When cfg.MetricsAddr is set, the
// pipeline registers Prometheus collectors and serves them for the duration
// of the first stage started.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, logger: cliconfig.Logger()}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.MetricsAddr != "" {
		p.metrics = metrics.New()
	}
	return p, nil
}

func (p *Pipeline) startMetrics(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	p.serveOnce.Do(func() {
		go metrics.Serve(ctx, p.cfg.MetricsAddr, p.logger)
	})
}

// Export downloads the archive for [cfg.Start, cfg.End] and extracts it into
// cfg.ExportDir as line-delimited JSON files.
func (p *Pipeline) Export(ctx context.Context) error {
	p.startMetrics(ctx)

	if p.cfg.SourceAPIKey == "" || p.cfg.SourceSecretKey == "" {
		return fmt.Errorf("source-api-key and source-secret-key are required for export")
	}
	if p.cfg.Start == "" || p.cfg.End == "" {
		return fmt.Errorf("start and end are required for export")
	}

	client := export.NewClient(
		&http.Client{Timeout: p.cfg.ExportTimeout},
		p.cfg.ExportURL, p.cfg.SourceAPIKey, p.cfg.SourceSecretKey, p.logger,
	)

	archive, err := client.Download(ctx, p.cfg.Start, p.cfg.End)
	if err != nil {
		return err
	}
	defer os.Remove(archive)

	n, err := export.Extract(archive, p.cfg.ExportDir, p.logger)
	if err != nil {
		return err
	}

	p.logger.Info().Int("files", n).Str("dir", p.cfg.ExportDir).Msg("export complete")
	return nil
}

// Convert normalizes every exported file under cfg.ExportDir into
// cfg.ConvertDir. With cfg.Watch it keeps converting files as they appear
// until ctx is cancelled.
func (p *Pipeline) Convert(ctx context.Context) error {
	p.startMetrics(ctx)

	conv := p.converter()
	if p.cfg.Watch {
		watcher := pipeline.NewWatcher(conv, p.logger, 500*time.Millisecond)
		return watcher.Run(ctx, p.cfg.ExportDir, p.cfg.ConvertDir)
	}

	_, err := conv.Run(p.cfg.ExportDir, p.cfg.ConvertDir)
	return err
}

// Bundle partitions the converted events into request payload files plus a
// manifest under cfg.RequestsDir.
func (p *Pipeline) Bundle(ctx context.Context) error {
	p.startMetrics(ctx)

	if p.cfg.APIKey == "" {
		return fmt.Errorf("api-key is required for bundle")
	}

	bundler, err := p.bundler()
	if err != nil {
		return err
	}

	_, err = bundler.Run(p.cfg.ConvertDir, p.cfg.RequestsDir)
	return err
}

// Upload ships the bundled payloads in manifest order, skipping batches a
// previous run already delivered.
func (p *Pipeline) Upload(ctx context.Context) error {
	p.startMetrics(ctx)

	uploader, err := p.uploader()
	if err != nil {
		return err
	}

	_, err = uploader.Run(ctx, p.cfg.RequestsDir)
	return err
}

// Run is a convenience wrapper: it builds a Pipeline from cfg and runs the
// full migration end to end.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	p, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}

// Run executes export, convert, bundle, and upload in sequence.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Export(ctx); err != nil {
		return err
	}
	if err := p.Convert(ctx); err != nil {
		return err
	}
	if err := p.Bundle(ctx); err != nil {
		return err
	}
	return p.Upload(ctx)
}

func (p *Pipeline) converter() *pipeline.Converter {
	opts := []pipeline.ConverterOption{pipeline.WithConvertMetrics(p.metrics)}
	if p.cfg.SetInsertID {
		opts = append(opts, pipeline.WithInsertIDs())
	}
	return pipeline.NewConverter(normalize.New(normalize.DefaultFieldMap()), p.logger, opts...)
}

func (p *Pipeline) bundler() (*pipeline.Bundler, error) {
	sizer, err := batch.NewSizer(map[string]any{"api_key": p.cfg.APIKey})
	if err != nil {
		return nil, err
	}

	limits := batch.Limits{MaxEvents: p.cfg.MaxBatchEvents, MaxBytes: p.cfg.MaxBatchBytes}

	opts := []pipeline.BundlerOption{pipeline.WithBundleMetrics(p.metrics)}
	if p.cfg.Scripts {
		opts = append(opts, pipeline.WithScripts(pipeline.ScriptConfig{
			Endpoint: p.cfg.UploadURL + "/batch",
			Delay:    p.cfg.UploadDelay,
		}))
	}

	return pipeline.NewBundler(sizer, limits, p.logger, opts...)
}

func (p *Pipeline) uploader() (*upload.Uploader, error) {
	return upload.NewUploader(
		&http.Client{Timeout: p.cfg.HTTPTimeout},
		upload.Config{
			BaseURL:       p.cfg.UploadURL,
			Pace:          p.cfg.UploadDelay,
			MaxAttempts:   p.cfg.MaxAttempts,
			ForceOversize: p.cfg.ForceOversize,
		},
		upload.NewStateRepository(p.cfg.RequestsDir),
		p.logger,
		upload.WithUploadMetrics(p.metrics),
	)
}
