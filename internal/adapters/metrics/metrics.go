// Package metrics exposes run counters through Prometheus.
package metrics

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
)

const namespace = "sidefx"

// Metrics implements ports.Metrics on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	evaluations *prometheus.CounterVec
	divergences *prometheus.CounterVec
	reports     *prometheus.CounterVec
	cycles      *prometheus.HistogramVec
	stored      *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Property evaluations, by result kind.",
		}, []string{"kind"}),
		divergences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "divergences_total",
			Help:      "Values that differed from their reference, by search algorithm.",
		}, []string{"algorithm"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Filed reports, by type.",
		}, []string{"type"}),
		cycles: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_cycle_seconds",
			Help:      "Duration of one search cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"algorithm"}),
		stored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_reports",
			Help:      "Reports in the served report file, by type.",
		}, []string{"type"}),
	}
	m.registry.MustRegister(
		m.evaluations, m.divergences, m.reports, m.cycles, m.stored,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveEvaluation counts one property evaluation.
func (m *Metrics) ObserveEvaluation(kind domain.ValueKind) {
	m.evaluations.WithLabelValues(string(kind)).Inc()
}

// ObserveDivergence counts one value that differed from its reference.
func (m *Metrics) ObserveDivergence(alg domain.Algorithm) {
	m.divergences.WithLabelValues(string(alg)).Inc()
}

// ObserveReport counts one filed report.
func (m *Metrics) ObserveReport(t domain.ReportType) {
	m.reports.WithLabelValues(string(t)).Inc()
}

// ObserveCycle records the duration of one search cycle.
func (m *Metrics) ObserveCycle(alg domain.Algorithm, d time.Duration) {
	m.cycles.WithLabelValues(string(alg)).Observe(d.Seconds())
}

// SetStoredReports replaces the per-type gauge of a served report file.
func (m *Metrics) SetStoredReports(counts map[domain.ReportType]int) {
	m.stored.Reset()
	for t, n := range counts {
		m.stored.WithLabelValues(string(t)).Set(float64(n))
	}
}

// Gatherer returns the registry backing these metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry to path in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create metrics directory"), "path", path)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write metrics"), "path", path)
	}
	return nil
}
