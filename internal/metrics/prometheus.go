// Package metrics exposes Prometheus counters for firewall decisions and
// proxy traffic.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all proxy metrics.
type Registry struct {
	reg *prometheus.Registry

	// Firewall metrics
	Decisions  *prometheus.CounterVec
	RuleHits   *prometheus.CounterVec
	LogRecords prometheus.Counter

	// Proxy metrics
	ConnectionsTotal  *prometheus.CounterVec
	ActiveConnections prometheus.Gauge
	ForwardedBytes    *prometheus.CounterVec
	DroppedChunks     *prometheus.CounterVec
	DialFailures      prometheus.Counter
	UDPClients        prometheus.Gauge
	ServiceRunning    prometheus.Gauge
}

// Get returns the process-wide metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New()
		registry.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return registry
}

// New creates an isolated registry. Tests use this to avoid sharing counters.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}
	factory := promauto.With(r.reg)

	r.Decisions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_decisions_total",
		Help: "Packets and chunks classified by the engine",
	}, []string{"protocol", "action", "source"})

	r.RuleHits = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_rule_matches_total",
		Help: "Number of times each named rule decided a packet",
	}, []string{"rule", "action"})

	r.LogRecords = factory.NewCounter(prometheus.CounterOpts{
		Name: "tollgate_log_records_total",
		Help: "Log records appended to the decision ring buffer",
	})

	r.ConnectionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_tcp_connections_total",
		Help: "Accepted TCP connections by outcome",
	}, []string{"outcome"})

	r.ActiveConnections = factory.NewGauge(prometheus.GaugeOpts{
		Name: "tollgate_tcp_connections_active",
		Help: "TCP connections currently being relayed",
	})

	r.ForwardedBytes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_forwarded_bytes_total",
		Help: "Bytes forwarded after an ALLOW decision",
	}, []string{"direction"})

	r.DroppedChunks = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_dropped_chunks_total",
		Help: "Chunks or datagrams dropped by a non-ALLOW decision",
	}, []string{"direction"})

	r.DialFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "tollgate_upstream_dial_failures_total",
		Help: "Failed TCP connections to the upstream backend",
	})

	r.UDPClients = factory.NewGauge(prometheus.GaugeOpts{
		Name: "tollgate_udp_clients",
		Help: "Client addresses currently receiving upstream UDP replies",
	})

	r.ServiceRunning = factory.NewGauge(prometheus.GaugeOpts{
		Name: "tollgate_service_running",
		Help: "1 while the proxy service has an open listener",
	})

	return r
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RecordDecision counts one engine decision. rule is empty unless a named
// rule produced the decision.
func (r *Registry) RecordDecision(protocol, action, source, rule string) {
	r.Decisions.WithLabelValues(protocol, action, source).Inc()
	if rule != "" {
		r.RuleHits.WithLabelValues(rule, action).Inc()
	}
}

// RecordForward counts bytes written to the peer in the given direction.
func (r *Registry) RecordForward(direction string, n int) {
	r.ForwardedBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordDrop counts a dropped chunk or datagram.
func (r *Registry) RecordDrop(direction string) {
	r.DroppedChunks.WithLabelValues(direction).Inc()
}

// SetRunning reflects the service lifecycle in a gauge.
func (r *Registry) SetRunning(running bool) {
	if running {
		r.ServiceRunning.Set(1)
		return
	}
	r.ServiceRunning.Set(0)
}
