// Package upload ships bundled payload files to the Batch Upload API in
// manifest order, paced against the destination's rate limits, retrying
// transient failures, and resuming past already-acknowledged batches.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ampship/ampship/internal/domain"
	"github.com/ampship/ampship/internal/metrics"
	"github.com/ampship/ampship/internal/pipeline"
)

// Upload API base URLs per data residency region.
const (
	USBaseURL = "https://api2.amplitude.com"
	EUBaseURL = "https://api.eu.amplitude.com"
)

const batchEndpoint = "/batch"

// HTTPClient abstracts HTTP request execution for testing and custom
// transports. The standard *http.Client satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config tunes an Uploader.
type Config struct {
	// BaseURL is USBaseURL or EUBaseURL (or a test server).
	BaseURL string

	// Pace is the minimum interval between POSTs.
	Pace time.Duration

	// MaxAttempts bounds tries per batch, first attempt included.
	MaxAttempts int

	// BackoffBase and BackoffMax shape the retry delay.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// ForceOversize sends batches flagged oversize instead of skipping
	// them and failing the run.
	ForceOversize bool
}

// Stats counts the outcomes of an upload run.
type Stats struct {
	Sent            int
	SkippedAcked    int
	SkippedOversize int
	Retries         int
	BytesSent       int64
}

// Uploader POSTs bundled payloads in manifest order.
type Uploader struct {
	client  HTTPClient
	cfg     Config
	state   *StateRepository
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithUploadMetrics attaches Prometheus counters to the uploader.
func WithUploadMetrics(m *metrics.Metrics) UploaderOption {
	return func(u *Uploader) { u.metrics = m }
}

// NewUploader creates an Uploader over the given HTTP client.
func NewUploader(client HTTPClient, cfg Config, state *StateRepository, logger zerolog.Logger, opts ...UploaderOption) (*Uploader, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}

	u := &Uploader{client: client, cfg: cfg, state: state, logger: logger}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Run uploads every unacknowledged batch named by the manifest in
// requestsDir, in seq order. Oversize batches are skipped unless
// ForceOversize is set; if any were skipped, Run finishes the sendable
// batches first and then fails with domain.ErrOversizeBatches.
func (u *Uploader) Run(ctx context.Context, requestsDir string) (Stats, error) {
	var stats Stats

	manifest, err := pipeline.LoadManifest(requestsDir)
	if err != nil {
		return stats, err
	}

	st, err := u.state.Load()
	if err != nil {
		return stats, err
	}

	var limiter *rate.Limiter
	if u.cfg.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(u.cfg.Pace), 1)
	}

	var oversizeSkipped []string

	for _, entry := range manifest.Batches {
		if st.Has(entry.Seq) {
			stats.SkippedAcked++
			u.logger.Debug().Int("seq", entry.Seq).Msg("already uploaded, skipping")
			continue
		}

		if entry.Oversize && !u.cfg.ForceOversize {
			stats.SkippedOversize++
			oversizeSkipped = append(oversizeSkipped, entry.Payload)
			u.logger.Error().
				Int("seq", entry.Seq).
				Int("bytes", entry.Bytes).
				Msg("batch exceeds byte ceiling; refusing to upload without force-oversize")
			continue
		}

		payload, err := os.ReadFile(filepath.Join(requestsDir, entry.Payload))
		if err != nil {
			return stats, fmt.Errorf("read payload %s: %w", entry.Payload, err)
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return stats, err
			}
		}

		retries, err := u.sendWithRetry(ctx, entry, payload)
		stats.Retries += retries
		if err != nil {
			return stats, fmt.Errorf("upload batch %d: %w", entry.Seq, err)
		}

		st.Mark(entry.Seq)
		if err := u.state.Save(st); err != nil {
			return stats, err
		}

		stats.Sent++
		stats.BytesSent += int64(len(payload))
		u.metrics.AddUploaded(len(payload))
		u.logger.Info().
			Int("seq", entry.Seq).
			Int("events", entry.Events).
			Int("bytes", len(payload)).
			Msg("batch uploaded")
	}

	if len(oversizeSkipped) > 0 {
		return stats, fmt.Errorf("%w: %s", domain.ErrOversizeBatches, strings.Join(oversizeSkipped, ", "))
	}

	u.logger.Info().
		Int("sent", stats.Sent).
		Int("skipped_acked", stats.SkippedAcked).
		Int64("bytes", stats.BytesSent).
		Msg("upload complete")
	return stats, nil
}

// sendWithRetry POSTs one payload, retrying 429s, 5xxs, and transport errors
// with jittered exponential backoff. 413 and other 4xxs are terminal.
func (u *Uploader) sendWithRetry(ctx context.Context, entry pipeline.ManifestEntry, payload []byte) (int, error) {
	bo := newBackoff(u.cfg.BackoffBase, u.cfg.BackoffMax)
	retries := 0

	for attempt := 1; ; attempt++ {
		err := u.send(ctx, payload)
		if err == nil {
			return retries, nil
		}

		if terminal(err) || attempt >= u.cfg.MaxAttempts {
			return retries, err
		}

		retries++
		u.metrics.IncRetry()
		u.logger.Warn().
			Int("seq", entry.Seq).
			Int("attempt", attempt).
			Err(err).
			Msg("upload attempt failed, retrying")

		if err := bo.Sleep(ctx); err != nil {
			return retries, err
		}
	}
}

func (u *Uploader) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.BaseURL+batchEndpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	return nil
}

// statusError carries a non-2xx Upload API response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

// terminal reports whether an error should not be retried: any 4xx except
// 429. Transport errors and 5xxs are transient.
func terminal(err error) bool {
	se, ok := err.(*statusError)
	if !ok {
		return false
	}
	return se.code/100 == 4 && se.code != http.StatusTooManyRequests
}
