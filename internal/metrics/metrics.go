// Package metrics exposes Prometheus collectors for the sync loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mainstream_sync"

// Pass labels for rows written.
const (
	PassBatch  = "batch"
	PassLatest = "latest"
)

// Call labels for upstream errors.
const (
	CallBatch  = "batch"
	CallLatest = "latest"
)

// Metrics holds the sync collectors.
type Metrics struct {
	Cycles         *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	RowsWritten    *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	Devices        prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Sync cycles by outcome.",
			},
			[]string{"outcome"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of sync cycles.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
		RowsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Telemetry rows inserted, by pass.",
			},
			[]string{"pass"},
		),
		UpstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Failed upstream calls, by call.",
			},
			[]string{"call"},
		),
		Devices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "devices",
				Help:      "Complete devices in the last cycle.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.CycleDuration, m.RowsWritten, m.UpstreamErrors, m.Devices)
	}
	return m
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(outcome domain.Outcome, d time.Duration) {
	m.Cycles.WithLabelValues(string(outcome)).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// AddRows counts inserted rows for a pass.
func (m *Metrics) AddRows(pass string, n int64) {
	if n > 0 {
		m.RowsWritten.WithLabelValues(pass).Add(float64(n))
	}
}

// UpstreamError counts a failed upstream call.
func (m *Metrics) UpstreamError(call string) {
	m.UpstreamErrors.WithLabelValues(call).Inc()
}

// SetDevices records the device count.
func (m *Metrics) SetDevices(n int) {
	m.Devices.Set(float64(n))
}

// Handler serves the metrics of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
