package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dashboard's collectors on a private registry. A nil
// *Metrics is valid and records nothing, which keeps tests free of globals.
type Metrics struct {
	reg *prometheus.Registry

	fetchTotal    *prometheus.CounterVec
	rowsDropped   *prometheus.CounterVec
	enrichTotal   *prometheus.CounterVec
	enrichSeconds prometheus.Histogram
	renderSeconds *prometheus.HistogramVec
	archiveRuns   *prometheus.CounterVec
	archiveTotal  prometheus.Gauge
	archiveAdded  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evboard",
		Name:      "source_fetch_total",
		Help:      "Source fetches by source and outcome",
	}, []string{"source", "outcome"})
	m.rowsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evboard",
		Name:      "archive_rows_dropped_total",
		Help:      "Archive rows dropped while parsing, by reason",
	}, []string{"reason"})
	m.enrichTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evboard",
		Name:      "enrich_calls_total",
		Help:      "Participant count lookups by outcome (ok, not_found, unavailable)",
	}, []string{"kind", "outcome"})
	m.enrichSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evboard",
		Name:      "enrich_batch_duration_seconds",
		Help:      "Wall time of one enrichment batch",
		Buckets:   prometheus.DefBuckets,
	})
	m.renderSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evboard",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP handler latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	m.archiveRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evboard",
		Name:      "archive_update_runs_total",
		Help:      "Archive update runs by outcome",
	}, []string{"outcome"})
	m.archiveTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "evboard",
		Name:      "archive_events",
		Help:      "Number of events in the archive after the last successful update",
	})
	m.archiveAdded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "evboard",
		Name:      "archive_last_added",
		Help:      "Added count reported by the last successful update (may be negative)",
	})

	m.reg.MustRegister(
		m.fetchTotal, m.rowsDropped, m.enrichTotal, m.enrichSeconds,
		m.renderSeconds, m.archiveRuns, m.archiveTotal, m.archiveAdded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Fetch(source, outcome string) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RowsDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Enrich(kind, outcome string) {
	if m == nil {
		return
	}
	m.enrichTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) EnrichBatch(seconds float64) {
	if m == nil {
		return
	}
	m.enrichSeconds.Observe(seconds)
}

func (m *Metrics) Request(route string, seconds float64) {
	if m == nil {
		return
	}
	m.renderSeconds.WithLabelValues(route).Observe(seconds)
}

func (m *Metrics) ArchiveRun(outcome string, total, added int) {
	if m == nil {
		return
	}
	m.archiveRuns.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.archiveTotal.Set(float64(total))
		m.archiveAdded.Set(float64(added))
	}
}
