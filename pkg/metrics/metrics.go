// Package metrics exposes Prometheus collectors for browser session activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webapp"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the session collectors. A nil *Metrics is valid and records
// nothing, so callers never need to check for it.
type Metrics struct {
	initializations *prometheus.CounterVec
	navigations     *prometheus.CounterVec
	closes          *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	readyWait       prometheus.Histogram
}

// MustNewMetrics constructs a Metrics instance registered with reg. A nil reg
// uses the default registerer. Registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		initializations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "initializations_total",
				Help:      "Session initializations by engine and result.",
			},
			[]string{"engine", "result"},
		),
		navigations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "navigations_total",
				Help:      "Page navigations by result.",
			},
			[]string{"result"},
		),
		closes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "closes_total",
				Help:      "Session closes by result.",
			},
			[]string{"result"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Sessions initialized and not yet closed.",
			},
		),
		readyWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "ready_wait_seconds",
				Help:      "Time spent waiting for a session context to become ready.",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
			},
		),
	}

	reg.MustRegister(m.initializations, m.navigations, m.closes, m.sessionsActive, m.readyWait)
	return m
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// ObserveInitialize records an Initialize outcome.
func (m *Metrics) ObserveInitialize(engine string, err error) {
	if m == nil {
		return
	}
	m.initializations.WithLabelValues(engine, result(err)).Inc()
	if err == nil {
		m.sessionsActive.Inc()
	}
}

// ObserveNavigation records a GotoPage outcome.
func (m *Metrics) ObserveNavigation(err error) {
	if m == nil {
		return
	}
	m.navigations.WithLabelValues(result(err)).Inc()
}

// ObserveClose records a Close outcome. The session counts as inactive either
// way since its handles are released.
func (m *Metrics) ObserveClose(err error) {
	if m == nil {
		return
	}
	m.closes.WithLabelValues(result(err)).Inc()
	m.sessionsActive.Dec()
}

// ObserveReadyWait records how long a caller waited for readiness.
func (m *Metrics) ObserveReadyWait(d time.Duration) {
	if m == nil {
		return
	}
	m.readyWait.Observe(d.Seconds())
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
