package metric

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "minikv"

// Bridge task results used as the "result" label.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultPanic = "panic"
)

// knownCommands bounds the label values of CommandsTotal.
var knownCommands = map[string]struct{}{
	"GET":         {},
	"SET":         {},
	"PUBLISH":     {},
	"SUBSCRIBE":   {},
	"UNSUBSCRIBE": {},
}

// Registry holds all application metrics on a private Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionsActive   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	ConnectionsRejected prometheus.Counter

	// Command metrics
	CommandsTotal  *prometheus.CounterVec
	ProtocolErrors prometheus.Counter
	RateLimited    prometheus.Counter

	// Work bridge metrics
	BridgeSubmitted prometheus.Counter
	BridgeCompleted *prometheus.CounterVec
	BridgeInflight  prometheus.Gauge
}

// NewRegistry creates a registry with every minikv instrument plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open client connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections.",
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections refused because the connection limit was reached.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed, by command name.",
		}, []string{"command"}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Malformed frames and commands received.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Commands rejected by the per-connection rate limit.",
		}),
		BridgeSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "tasks_submitted_total",
			Help:      "Work items accepted onto the bridge queue.",
		}),
		BridgeCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "tasks_completed_total",
			Help:      "Bridge sub-tasks finished, by result.",
		}, []string{"result"}),
		BridgeInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "tasks_inflight",
			Help:      "Bridge sub-tasks currently running.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ConnectionsActive,
		r.ConnectionsTotal,
		r.ConnectionsRejected,
		r.CommandsTotal,
		r.ProtocolErrors,
		r.RateLimited,
		r.BridgeSubmitted,
		r.BridgeCompleted,
		r.BridgeInflight,
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns an HTTP handler for the /metrics endpoint of the global
// registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler exposing r in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// MustRegister adds extra collectors to r.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

// ConnOpened records an accepted connection.
func (r *Registry) ConnOpened() {
	if r == nil {
		return
	}
	r.ConnectionsTotal.Inc()
	r.ConnectionsActive.Inc()
}

// ConnClosed records the end of a connection.
func (r *Registry) ConnClosed() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Dec()
}

// ConnRejected records a connection refused at the connection limit.
func (r *Registry) ConnRejected() {
	if r == nil {
		return
	}
	r.ConnectionsRejected.Inc()
}

// RecordCommand counts one executed command. Unrecognised names share the
// "unknown" label.
func (r *Registry) RecordCommand(name string) {
	if r == nil {
		return
	}
	name = strings.ToUpper(name)
	if _, ok := knownCommands[name]; !ok {
		name = "unknown"
	}
	r.CommandsTotal.WithLabelValues(name).Inc()
}

// RecordProtocolError counts a malformed frame or command.
func (r *Registry) RecordProtocolError() {
	if r == nil {
		return
	}
	r.ProtocolErrors.Inc()
}

// RecordRateLimited counts a command rejected by the rate limiter.
func (r *Registry) RecordRateLimited() {
	if r == nil {
		return
	}
	r.RateLimited.Inc()
}

// TaskSubmitted records a work item accepted by the bridge.
func (r *Registry) TaskSubmitted() {
	if r == nil {
		return
	}
	r.BridgeSubmitted.Inc()
}

// TaskStarted records a bridge sub-task starting.
func (r *Registry) TaskStarted() {
	if r == nil {
		return
	}
	r.BridgeInflight.Inc()
}

// TaskFinished records a bridge sub-task ending with result.
func (r *Registry) TaskFinished(result string) {
	if r == nil {
		return
	}
	r.BridgeInflight.Dec()
	r.BridgeCompleted.WithLabelValues(result).Inc()
}
