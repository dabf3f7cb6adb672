// Package metrics provides Prometheus metrics for meshtalk.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the mesh.
type Metrics struct {
	// Traffic metrics
	MessagesReceived  *prometheus.CounterVec
	MessagesSent      *prometheus.CounterVec
	MessagesForwarded *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	BytesReceived     *prometheus.CounterVec
	BytesSent         *prometheus.CounterVec

	// Dedup / rate limiting
	DuplicatesSuppressed prometheus.Counter
	ResponsesLimited     prometheus.Counter

	// Table gauges
	NodesKnown  prometheus.Gauge
	RoutesKnown prometheus.Gauge

	// Discovery
	ScanProbes      prometheus.Counter
	ConnectAttempts prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshtalk_messages_received_total",
			Help: "Total messages received, by type and plane",
		},
		[]string{"type", "plane"},
	)

	m.MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshtalk_messages_sent_total",
			Help: "Total messages sent, by type and plane",
		},
		[]string{"type", "plane"},
	)

	m.MessagesForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshtalk_messages_forwarded_total",
			Help: "Total messages forwarded toward another node, by type",
		},
		[]string{"type"},
	)

	m.MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshtalk_messages_dropped_total",
			Help: "Total messages dropped, by reason",
		},
		[]string{"reason"},
	)

	m.BytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshtalk_bytes_received_total",
			Help: "Total payload bytes received, by plane",
		},
		[]string{"plane"},
	)

	m.BytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshtalk_bytes_sent_total",
			Help: "Total payload bytes sent, by plane",
		},
		[]string{"plane"},
	)

	m.DuplicatesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshtalk_duplicates_suppressed_total",
			Help: "Messages dropped because their ID was already processed",
		},
	)

	m.ResponsesLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshtalk_discovery_responses_limited_total",
			Help: "Discovery responses suppressed by the per-sender rate limit",
		},
	)

	m.NodesKnown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshtalk_nodes_known",
			Help: "Number of nodes currently in the node table",
		},
	)

	m.RoutesKnown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshtalk_routes_known",
			Help: "Number of routes currently in the route table",
		},
	)

	m.ScanProbes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshtalk_scan_probes_total",
			Help: "Hosts probed during active subnet scans",
		},
	)

	m.ConnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshtalk_connect_attempts_total",
			Help: "Explicit direct-connect attempts",
		},
	)

	m.registry.MustRegister(
		m.MessagesReceived,
		m.MessagesSent,
		m.MessagesForwarded,
		m.MessagesDropped,
		m.BytesReceived,
		m.BytesSent,
		m.DuplicatesSuppressed,
		m.ResponsesLimited,
		m.NodesKnown,
		m.RoutesKnown,
		m.ScanProbes,
		m.ConnectAttempts,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
