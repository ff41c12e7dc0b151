package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	UnitsTotal      *prometheus.CounterVec   // labels: stage, outcome={ok,skipped,failed}
	UnitDuration    *prometheus.HistogramVec // labels: stage
	RetriesTotal    *prometheus.CounterVec   // labels: operation={publish,notify}
	PipelineRunning prometheus.Gauge
	LastRun         prometheus.Gauge

	NonCanonicalStreamTags prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		UnitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Units processed by stage and outcome.",
		}, []string{"stage", "outcome"}),
		UnitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Wall time spent on one unit.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried external calls by operation.",
		}, []string{"operation"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pass is in progress, 0 otherwise.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last pass finished.",
		}),
		NonCanonicalStreamTags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "noncanonical_stream_tags_total",
			Help:      "Polygons whose source looks like a mistyped stream tag.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.UnitsTotal,
		m.UnitDuration,
		m.RetriesTotal,
		m.PipelineRunning,
		m.LastRun,
		m.NonCanonicalStreamTags,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
