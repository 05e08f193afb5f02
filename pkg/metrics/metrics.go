// Package metrics defines the Prometheus collectors used by the ingestion and
// reindex jobs and exposes an HTTP handler for scraping long runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched       *prometheus.CounterVec
	RecordsFetched     *prometheus.CounterVec
	Upserts            *prometheus.CounterVec
	ContentFetches     *prometheus.CounterVec
	FieldDiagnostics   *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec
	ReindexDocuments   *prometheus.CounterVec
	ReindexDuration    *prometheus.HistogramVec
}

// New creates all collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_pages_fetched_total",
				Help: "Search result pages requested by family and outcome (ok, empty, error).",
			},
			[]string{"family", "outcome"},
		),
		RecordsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_fetched_total",
				Help: "Raw records yielded by the paginated fetcher.",
			},
			[]string{"family", "item_type"},
		),
		Upserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_upserts_total",
				Help: "Record upserts by family and result (inserted, updated, failed).",
			},
			[]string{"family", "result"},
		),
		ContentFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_content_fetches_total",
				Help: "Document body lookups by result (cache_hit, decoded, empty, error).",
			},
			[]string{"family", "result"},
		),
		FieldDiagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_field_diagnostics_total",
				Help: "Fields that failed to coerce during normalization.",
			},
			[]string{"family", "field"},
		),
		RemoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_remote_call_duration_seconds",
				Help:    "Remote API call latency in seconds, excluding the pre-request delay.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		ReindexDocuments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reindex_documents_total",
				Help: "Documents sent to the search index by index and status (indexed, failed).",
			},
			[]string{"index", "status"},
		),
		ReindexDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reindex_duration_seconds",
				Help:    "Wall time of a full table rebuild.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
			[]string{"index"},
		),
	}

	m.registry.MustRegister(
		m.PagesFetched,
		m.RecordsFetched,
		m.Upserts,
		m.ContentFetches,
		m.FieldDiagnostics,
		m.RemoteCallDuration,
		m.ReindexDocuments,
		m.ReindexDuration,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Page(family, outcome string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(family, outcome).Inc()
}

func (m *Metrics) Record(family, itemType string) {
	if m == nil {
		return
	}
	m.RecordsFetched.WithLabelValues(family, itemType).Inc()
}

func (m *Metrics) Upsert(family, result string) {
	if m == nil {
		return
	}
	m.Upserts.WithLabelValues(family, result).Inc()
}

func (m *Metrics) Content(family, result string) {
	if m == nil {
		return
	}
	m.ContentFetches.WithLabelValues(family, result).Inc()
}

func (m *Metrics) Diagnostic(family, field string) {
	if m == nil {
		return
	}
	m.FieldDiagnostics.WithLabelValues(family, field).Inc()
}

func (m *Metrics) RemoteCall(endpoint string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RemoteCallDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) Reindexed(index string, indexed, failed int) {
	if m == nil {
		return
	}
	m.ReindexDocuments.WithLabelValues(index, "indexed").Add(float64(indexed))
	m.ReindexDocuments.WithLabelValues(index, "failed").Add(float64(failed))
}

func (m *Metrics) ReindexTook(index string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReindexDuration.WithLabelValues(index).Observe(elapsed.Seconds())
}
