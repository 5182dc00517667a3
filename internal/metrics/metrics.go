// Package metrics exposes session counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/fdbtracer/internal/supervisor"
)

const namespace = "fdbtracer"

// StatusSource is the narrow supervisor contract the collectors read from.
type StatusSource interface {
	Status() supervisor.Status
}

// Metrics owns a private registry whose collectors are evaluated lazily
// from the supervisor on every scrape.
type Metrics struct {
	registry *prometheus.Registry
}

// New registers the session collectors plus the Go runtime collector.
func New(src StatusSource) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	counter := func(name, help string, value func(supervisor.Status) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(src.Status()) })
	}
	gauge := func(name, help string, value func(supervisor.Status) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(src.Status()) })
	}

	reg.MustRegister(
		counter("lines_processed_total", "Trace lines consumed by the ingest loop.",
			func(s supervisor.Status) float64 { return float64(s.Stats.LinesProcessed) }),
		counter("events_persisted_total", "Events committed to the dump database.",
			func(s supervisor.Status) float64 { return float64(s.Stats.EventsPersisted) }),
		counter("persist_failures_total", "Events rolled back after a sink failure.",
			func(s supervisor.Status) float64 { return float64(s.Stats.PersistFailures) }),
		gauge("lines_queued", "Lines waiting in the line lane; -1 when the source cannot tell.",
			func(s supervisor.Status) float64 { return float64(s.Stats.LinesLeft) }),
		gauge("breaker_consecutive_errors", "Consecutive error diagnostics seen by the breaker.",
			func(s supervisor.Status) float64 { return float64(s.Errors) }),
		gauge("breaker_max_errors", "Error budget before the breaker trips.",
			func(s supervisor.Status) float64 { return float64(s.MaxErrors) }),
		gauge("breaker_tripped", "1 once the circuit breaker has tripped.",
			func(s supervisor.Status) float64 { return boolValue(s.Tripped) }),
		gauge("session_stopped", "1 once stop has been raised for the session.",
			func(s supervisor.Status) float64 { return boolValue(s.Stopped) }),
		gauge("session_uptime_seconds", "Seconds since the session was opened.",
			func(s supervisor.Status) float64 { return s.Uptime.Seconds() }),
	)
	return &Metrics{registry: reg}
}

// ConnectionCounter is the TCP listener contract for connection metrics.
type ConnectionCounter interface {
	ActiveConnections() int64
	AcceptedConnections() uint64
}

// RegisterConnections exposes the TCP listener's connection counts.
func (m *Metrics) RegisterConnections(c ConnectionCounter) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "active_connections",
			Help:      "Trace senders currently connected to the TCP listener.",
		}, func() float64 { return float64(c.ActiveConnections()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "accepted_connections_total",
			Help:      "Connections accepted by the TCP listener.",
		}, func() float64 { return float64(c.AcceptedConnections()) }),
	)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
