// Package monitoring exposes Prometheus metrics for the registry.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors. Each Metrics value carries its
// own registry so tests can create collectors freely.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Registry operation metrics
	Publishes    *prometheus.CounterVec
	Downloads    *prometheus.CounterVec
	Deprecations prometheus.Counter

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	start := time.Now()

	return &Metrics{
		Registry:  registry,
		startTime: start,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "registry_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		Publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_publishes_total",
				Help: "Package publish attempts by outcome",
			},
			[]string{"outcome"},
		),
		Downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_downloads_total",
				Help: "Package download attempts by outcome",
			},
			[]string{"outcome"},
		),
		Deprecations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_deprecations_total",
				Help: "Versions transitioned to deprecated",
			},
		),
		Uptime: factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "registry_uptime_seconds",
				Help: "Server uptime in seconds",
			},
			func() float64 { return time.Since(start).Seconds() },
		),
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPublish records a publish attempt outcome ("ok", "conflict",
// "rejected", "error").
func (m *Metrics) RecordPublish(outcome string) {
	m.Publishes.WithLabelValues(outcome).Inc()
}

// RecordDownload records a download attempt outcome ("ok", "gone",
// "not_found", "error").
func (m *Metrics) RecordDownload(outcome string) {
	m.Downloads.WithLabelValues(outcome).Inc()
}
