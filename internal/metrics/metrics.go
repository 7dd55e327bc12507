// Package metrics holds the prometheus collectors shared by the pipelines.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rag"

// Metrics groups every collector the application exports.
type Metrics struct {
	registry *prometheus.Registry

	embedRequests *prometheus.CounterVec
	embedRetries  prometheus.Counter
	embedLatency  prometheus.Histogram

	ingestFiles   *prometheus.CounterVec
	ingestEntries prometheus.Counter
	ingestRuns    *prometheus.CounterVec

	queries      *prometheus.CounterVec
	queryLatency prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		embedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding calls by outcome.",
		}, []string{"outcome"}),
		embedRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "retries_total",
			Help:      "Embedding attempts that were retried after a service error.",
		}),
		embedLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Wall time of one embedding call including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		ingestFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Files seen by ingestion, by result.",
		}, []string{"result"}),
		ingestEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "entries_total",
			Help:      "Index entries committed.",
		}),
		ingestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Queries by outcome.",
		}, []string{"outcome"}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End to end query latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.embedRequests, m.embedRetries, m.embedLatency,
		m.ingestFiles, m.ingestEntries, m.ingestRuns,
		m.queries, m.queryLatency,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) EmbedDone(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.embedRequests.WithLabelValues(outcome).Inc()
	m.embedLatency.Observe(d.Seconds())
}

func (m *Metrics) EmbedRetry() {
	if m == nil {
		return
	}
	m.embedRetries.Inc()
}

func (m *Metrics) IngestFile(result string) {
	if m == nil {
		return
	}
	m.ingestFiles.WithLabelValues(result).Inc()
}

func (m *Metrics) IngestCommitted(n int) {
	if m == nil {
		return
	}
	m.ingestEntries.Add(float64(n))
}

func (m *Metrics) IngestRun(outcome string) {
	if m == nil {
		return
	}
	m.ingestRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueryDone(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryLatency.Observe(d.Seconds())
}
