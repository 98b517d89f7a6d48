// Package pipeline drives the file-level stages of a migration: converting
// exported NDJSON into upload-ready NDJSON, and bundling upload-ready events
// into request payloads with a manifest.
package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ampship/ampship/internal/domain"
	"github.com/ampship/ampship/internal/metrics"
	"github.com/ampship/ampship/internal/normalize"
)

// maxLineBytes bounds a single NDJSON line. Export lines are rarely over a
// few hundred KB; 16 MiB leaves plenty of slack for property-heavy events.
const maxLineBytes = 16 << 20

// ConvertStats counts the outcomes of a conversion run.
type ConvertStats struct {
	Files       int
	Accepted    int
	Malformed   int
	NoEventType int
	NoIdentity  int
	MissingTime int
}

// Rejected returns the number of records dropped by the validation gate.
func (s ConvertStats) Rejected() int { return s.NoEventType + s.NoIdentity }

// Skipped returns all non-accepted lines: malformed plus rejected.
func (s ConvertStats) Skipped() int { return s.Malformed + s.Rejected() }

func (s *ConvertStats) merge(o ConvertStats) {
	s.Files += o.Files
	s.Accepted += o.Accepted
	s.Malformed += o.Malformed
	s.NoEventType += o.NoEventType
	s.NoIdentity += o.NoIdentity
	s.MissingTime += o.MissingTime
}

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithConvertMetrics attaches Prometheus counters to the converter.
func WithConvertMetrics(m *metrics.Metrics) ConverterOption {
	return func(c *Converter) { c.metrics = m }
}

// WithInsertIDs makes the converter assign a fresh UUID insert_id to every
// accepted event that lacks one, so the destination can deduplicate
// re-uploaded batches.
func WithInsertIDs() ConverterOption {
	return func(c *Converter) { c.setInsertID = true }
}

// Converter normalizes every exported NDJSON file in a directory into a
// matching converted_* NDJSON file.
type Converter struct {
	norm        *normalize.Normalizer
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	setInsertID bool
}

// NewConverter creates a Converter over the given normalizer.
func NewConverter(norm *normalize.Normalizer, logger zerolog.Logger, opts ...ConverterOption) *Converter {
	c := &Converter{norm: norm, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run converts every *.json file under inputDir into
// outputDir/converted_<name>, in sorted file order. Input order is preserved
// line for line; malformed lines and gate rejections are counted, never
// fatal.
func (c *Converter) Run(inputDir, outputDir string) (ConvertStats, error) {
	var stats ConvertStats

	files, err := listJSONFiles(inputDir)
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		c.logger.Warn().Str("dir", inputDir).Msg("no JSON files to convert")
		return stats, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return stats, fmt.Errorf("create output dir: %w", err)
	}

	for _, in := range files {
		out := filepath.Join(outputDir, "converted_"+filepath.Base(in))

		fileStats, err := c.ConvertFile(in, out)
		if err != nil {
			return stats, err
		}
		stats.merge(fileStats)

		c.logger.Info().
			Str("file", filepath.Base(in)).
			Int("accepted", fileStats.Accepted).
			Int("skipped", fileStats.Skipped()).
			Msg("converted")
	}

	c.logger.Info().
		Int("files", stats.Files).
		Int("accepted", stats.Accepted).
		Int("malformed", stats.Malformed).
		Int("rejected", stats.Rejected()).
		Msg("conversion complete")

	return stats, nil
}

// ConvertFile normalizes one NDJSON file. Used directly by watch mode for
// files that change after the initial pass.
func (c *Converter) ConvertFile(inPath, outPath string) (ConvertStats, error) {
	stats := ConvertStats{Files: 1}

	in, err := os.Open(inPath)
	if err != nil {
		return stats, fmt.Errorf("open %s: %w", inPath, err)
	}
	defer in.Close()

	// Watch mode converts into a directory no prior Run may have created.
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return stats, fmt.Errorf("create output dir: %w", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return stats, fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		raw, err := decodeRecord(line)
		if err != nil {
			stats.Malformed++
			c.metrics.IncMalformed()
			c.logger.Warn().
				Str("file", filepath.Base(inPath)).
				Int("line", lineNum).
				Err(err).
				Msg("skipping invalid JSON line")
			continue
		}

		ev, err := c.norm.Normalize(raw)
		if err != nil {
			c.countRejection(err, &stats)
			continue
		}

		if c.setInsertID {
			if _, ok := ev["insert_id"]; !ok {
				ev["insert_id"] = uuid.NewString()
			}
		}
		if _, ok := ev.Time(); !ok {
			stats.MissingTime++
		}

		encoded, err := json.Marshal(ev)
		if err != nil {
			return stats, fmt.Errorf("encode event: %w", err)
		}
		if _, err := w.Write(encoded); err != nil {
			return stats, fmt.Errorf("write %s: %w", outPath, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return stats, fmt.Errorf("write %s: %w", outPath, err)
		}

		stats.Accepted++
		c.metrics.AddConverted(1)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read %s: %w", inPath, err)
	}

	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("write %s: %w", outPath, err)
	}
	return stats, out.Close()
}

func (c *Converter) countRejection(err error, stats *ConvertStats) {
	switch {
	case errors.Is(err, domain.ErrMissingEventType):
		stats.NoEventType++
		c.metrics.IncRejected(metrics.ReasonNoEventType)
	case errors.Is(err, domain.ErrMissingIdentity):
		stats.NoIdentity++
		c.metrics.IncRejected(metrics.ReasonNoIdentity)
	}
	c.logger.Debug().Err(err).Msg("record rejected")
}

// decodeRecord parses one NDJSON line. Numbers decode as json.Number so
// re-encoding never shifts their representation. A line must hold exactly one
// JSON value; trailing data makes the whole line malformed.
func decodeRecord(line []byte) (domain.RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var raw domain.RawEvent
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return raw, nil
}

// readNDJSON streams one event per non-empty line of path, calling onEvent
// for parseable lines and onBad for the rest.
func readNDJSON(path string, onEvent func(domain.Event), onBad func()) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		raw, err := decodeRecord(line)
		if err != nil {
			onBad()
			continue
		}
		onEvent(domain.Event(raw))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// listJSONFiles returns the *.json files directly under dir, sorted. A
// missing directory is a fatal configuration error.
func listJSONFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("input directory %s: %w", dir, err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return files, nil
}
