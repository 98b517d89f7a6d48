// Package metrics exposes Prometheus counters for long-running migrations.
// All recording methods are nil-safe so components can carry an optional
// *Metrics without guarding every call site.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Rejection reason labels for EventsRejected.
const (
	ReasonNoEventType = "no_event_type"
	ReasonNoIdentity  = "no_identity"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	EventsConverted prometheus.Counter
	EventsRejected  *prometheus.CounterVec
	LinesMalformed  prometheus.Counter
	BatchesBuilt    prometheus.Counter
	BatchesOversize prometheus.Counter
	BatchesUploaded prometheus.Counter
	BytesUploaded   prometheus.Counter
	UploadRetries   prometheus.Counter
}

// New initializes and registers the collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		EventsConverted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ampship",
			Subsystem: "convert",
			Name:      "events_total",
			Help:      "Total number of events accepted by the normalizer.",
		}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ampship",
			Subsystem: "convert",
			Name:      "rejected_total",
			Help:      "Total number of records rejected by the normalizer, by reason.",
		}, []string{"reason"}),
		LinesMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ampship",
			Subsystem: "convert",
			Name:      "malformed_lines_total",
			Help:      "Total number of input lines that were not valid JSON.",
		}),
		BatchesBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ampship",
			Subsystem: "bundle",
			Name:      "batches_total",
			Help:      "Total number of batches produced by the bundler.",
		}),
		BatchesOversize: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ampship",
			Subsystem: "bundle",
			Name:      "oversize_batches_total",
			Help:      "Total number of single-event batches exceeding the byte ceiling.",
		}),
		BatchesUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ampship",
			Subsystem: "upload",
			Name:      "batches_total",
			Help:      "Total number of batches acknowledged by the Upload API.",
		}),
		BytesUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ampship",
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Total payload bytes acknowledged by the Upload API.",
		}),
		UploadRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ampship",
			Subsystem: "upload",
			Name:      "retries_total",
			Help:      "Total number of retried upload attempts.",
		}),
	}
}

// AddConverted records n accepted events.
func (m *Metrics) AddConverted(n int) {
	if m == nil {
		return
	}
	m.EventsConverted.Add(float64(n))
}

// IncRejected records one rejected record with the given reason label.
func (m *Metrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// IncMalformed records one unparseable input line.
func (m *Metrics) IncMalformed() {
	if m == nil {
		return
	}
	m.LinesMalformed.Inc()
}

// AddBatches records built batches, of which oversize exceed the ceiling.
func (m *Metrics) AddBatches(built, oversize int) {
	if m == nil {
		return
	}
	m.BatchesBuilt.Add(float64(built))
	m.BatchesOversize.Add(float64(oversize))
}

// AddUploaded records one acknowledged batch of the given payload size.
func (m *Metrics) AddUploaded(bytes int) {
	if m == nil {
		return
	}
	m.BatchesUploaded.Inc()
	m.BytesUploaded.Add(float64(bytes))
}

// IncRetry records one retried upload attempt.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.UploadRetries.Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}
