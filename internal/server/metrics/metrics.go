// Package metrics holds the Prometheus collectors for the portal.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploads         *prometheus.CounterVec
	reviewActions   *prometheus.CounterVec
	heartbeats      prometheus.Counter
}

// New registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Files received by upload intake, by result and rejection kind",
		}, []string{"result", "kind"}),
		reviewActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_actions_total",
			Help: "Admin move and decline actions by outcome",
		}, []string{"action", "outcome"}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presence_heartbeats_total",
			Help: "Presence heartbeats received",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.uploads,
		m.reviewActions,
		m.heartbeats,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, path, status string, seconds float64) {
	m.requestTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(seconds)
}

// UploadAccepted counts one stored file.
func (m *Metrics) UploadAccepted() {
	m.uploads.WithLabelValues("accepted", "none").Inc()
}

// UploadRejected counts one rejected file.
func (m *Metrics) UploadRejected(kind string) {
	m.uploads.WithLabelValues("rejected", kind).Inc()
}

// ReviewAction counts one admin action.
func (m *Metrics) ReviewAction(action, outcome string) {
	m.reviewActions.WithLabelValues(action, outcome).Inc()
}

// Heartbeat counts one presence heartbeat.
func (m *Metrics) Heartbeat() {
	m.heartbeats.Inc()
}
