package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ampship/ampship/internal/batch"
	"github.com/ampship/ampship/internal/domain"
	"github.com/ampship/ampship/internal/metrics"
)

// payloadNameFormat names batch payload files, 1-based.
const payloadNameFormat = "batch_%04d.json"

// BundlerOption configures a Bundler.
type BundlerOption func(*Bundler)

// WithBundleMetrics attaches Prometheus counters to the bundler.
func WithBundleMetrics(m *metrics.Metrics) BundlerOption {
	return func(b *Bundler) { b.metrics = m }
}

// WithScripts makes the bundler also emit per-batch curl scripts and a
// run_all.sh driver. The scripts inline the payload, API key included, so
// this is off unless explicitly requested.
func WithScripts(cfg ScriptConfig) BundlerOption {
	return func(b *Bundler) { b.scripts = &cfg }
}

// Bundler reads a directory of converted NDJSON, partitions the events into
// request batches, and writes each batch's exact payload plus a manifest.
type Bundler struct {
	sizer   *batch.Sizer
	batcher *batch.Batcher
	limits  batch.Limits
	logger  zerolog.Logger
	metrics *metrics.Metrics
	scripts *ScriptConfig
}

// NewBundler creates a Bundler. The sizer's envelope must match what the
// uploader will send; payload files are written from it verbatim.
func NewBundler(sizer *batch.Sizer, limits batch.Limits, logger zerolog.Logger, opts ...BundlerOption) (*Bundler, error) {
	batcher, err := batch.NewBatcher(sizer, limits)
	if err != nil {
		return nil, err
	}

	b := &Bundler{sizer: sizer, batcher: batcher, limits: limits, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Run bundles every event under inputDir into payload files in outputDir and
// returns the manifest it wrote there.
func (b *Bundler) Run(inputDir, outputDir string) (Manifest, error) {
	manifest := Manifest{
		CreatedAt: time.Now().UTC(),
		MaxEvents: b.limits.MaxEvents,
		MaxBytes:  b.limits.MaxBytes,
	}

	events, err := b.readEvents(inputDir)
	if err != nil {
		return manifest, err
	}
	manifest.TotalEvents = len(events)

	if len(events) == 0 {
		b.logger.Warn().Str("dir", inputDir).Msg("no events to bundle")
		return manifest, nil
	}

	batches, err := b.batcher.Split(events)
	if err != nil {
		return manifest, err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return manifest, fmt.Errorf("create output dir: %w", err)
	}

	oversize := 0
	for i, bt := range batches {
		seq := i + 1
		name := fmt.Sprintf(payloadNameFormat, seq)

		payload, err := b.sizer.Payload(bt.Events)
		if err != nil {
			return manifest, err
		}

		if err := os.WriteFile(filepath.Join(outputDir, name), payload, 0o600); err != nil {
			return manifest, fmt.Errorf("write %s: %w", name, err)
		}

		manifest.Batches = append(manifest.Batches, ManifestEntry{
			Seq:      seq,
			ID:       uuid.New().String(),
			Payload:  name,
			Events:   bt.Count(),
			Bytes:    bt.Bytes,
			Oversize: bt.Oversize,
		})

		if bt.Oversize {
			oversize++
			b.logger.Warn().
				Int("seq", seq).
				Int("bytes", bt.Bytes).
				Int("max_bytes", b.limits.MaxBytes).
				Msg("single event exceeds byte ceiling; batch flagged oversize")
		}

		if b.scripts != nil {
			if err := writeBatchScript(outputDir, seq, b.scripts.Endpoint, payload, bt.Count()); err != nil {
				return manifest, err
			}
		}

		b.logger.Debug().Int("seq", seq).Int("events", bt.Count()).Int("bytes", bt.Bytes).Msg("batch written")
	}

	if b.scripts != nil {
		if err := writeRunAllScript(outputDir, len(batches), b.scripts.Delay); err != nil {
			return manifest, err
		}
	}

	if err := WriteManifest(outputDir, manifest); err != nil {
		return manifest, err
	}

	b.metrics.AddBatches(len(batches), oversize)
	b.logger.Info().
		Int("events", len(events)).
		Int("batches", len(batches)).
		Int("oversize", oversize).
		Str("dir", outputDir).
		Msg("bundle complete")

	return manifest, nil
}

// readEvents materializes every converted event under dir, in sorted file
// order and original line order. Malformed lines are counted and skipped.
func (b *Bundler) readEvents(dir string) ([]domain.Event, error) {
	files, err := listJSONFiles(dir)
	if err != nil {
		return nil, err
	}

	var events []domain.Event
	malformed := 0

	for _, path := range files {
		if err := readNDJSON(path, func(ev domain.Event) {
			events = append(events, ev)
		}, func() {
			malformed++
		}); err != nil {
			return nil, err
		}
	}

	if malformed > 0 {
		b.logger.Warn().Int("lines", malformed).Msg("skipped malformed lines while bundling")
	}
	return events, nil
}
