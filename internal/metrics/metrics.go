// Package metrics provides Prometheus metrics for extraction runs
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one process. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched     *prometheus.CounterVec
	FetchRetries     *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	CacheHits        *prometheus.CounterVec
	StateWalks       *prometheus.CounterVec
	RecordsCollected prometheus.Gauge
	Collisions       prometheus.Counter
	RunDuration      prometheus.Gauge
}

// New creates and registers all collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PagesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rnpdno_page_requests_total",
				Help: "Registry page requests sent, by state",
			},
			[]string{"state"},
		),
		FetchRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rnpdno_fetch_retries_total",
				Help: "Page fetches retried after a transport error, by state",
			},
			[]string{"state"},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rnpdno_fetch_duration_seconds",
				Help:    "Duration of single registry page requests",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rnpdno_cache_hits_total",
				Help: "Page requests served from the page cache, by cache layer",
			},
			[]string{"layer"},
		),
		StateWalks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rnpdno_state_walks_total",
				Help: "Completed state walks, by result",
			},
			[]string{"result"},
		),
		RecordsCollected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rnpdno_records",
				Help: "Unique records in the aggregated dataset",
			},
		),
		Collisions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rnpdno_collisions_total",
				Help: "Duplicate ids with differing attributes",
			},
		),
		RunDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rnpdno_run_duration_seconds",
				Help: "Wall time of the last extraction run",
			},
		),
	}
}

// Registry exposes the underlying registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObservePage(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(state).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRetry(state string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveCacheHit(layer string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(layer).Inc()
}

func (m *Metrics) ObserveStateWalk(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.StateWalks.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDataset(records, collisions int) {
	if m == nil {
		return
	}
	m.RecordsCollected.Set(float64(records))
	m.Collisions.Add(float64(collisions))
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Set(d.Seconds())
}

// WriteTextfile writes the current values in the node_exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
