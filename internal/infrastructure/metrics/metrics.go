// Package metrics holds the Prometheus collectors shared by the gateway, the
// task store, the sync service and the local API.
//
// All recording methods are safe on a nil *Metrics, so components can be built
// without instrumentation (one-shot CLI commands, tests).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tasksync"

// Metrics bundles the application registry and its collectors
type Metrics struct {
	registry *prometheus.Registry

	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	syncFallbacks   *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	tasks           *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates a registry with process and Go runtime collectors plus the
// application collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		gatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Total webhook requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		gatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Webhook request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		syncFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_fallbacks_total",
				Help:      "Sync responses that required a full fetch, by response shape",
			},
			[]string{"reason"},
		),
		syncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Fetch and sync runs by kind and result",
			},
			[]string{"kind", "result"},
		),
		tasks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks",
				Help:      "Tasks in the local store by status",
			},
			[]string{"status"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		m.gatewayRequests,
		m.gatewayDuration,
		m.syncFallbacks,
		m.syncRuns,
		m.tasks,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGateway records one webhook call
func (m *Metrics) ObserveGateway(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(operation, outcome).Inc()
	m.gatewayDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IncFallback counts a sync that fell back to a full fetch
func (m *Metrics) IncFallback(reason string) {
	if m == nil {
		return
	}
	m.syncFallbacks.WithLabelValues(reason).Inc()
}

// IncRun counts a finished fetch or sync
func (m *Metrics) IncRun(kind, result string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(kind, result).Inc()
}

// SetTasks publishes the store size per status
func (m *Metrics) SetTasks(pending, completed, total int) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues("pending").Set(float64(pending))
	m.tasks.WithLabelValues("completed").Set(float64(completed))
	m.tasks.WithLabelValues("other").Set(float64(total - pending - completed))
}

// ObserveHTTP records one served API request
func (m *Metrics) ObserveHTTP(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
