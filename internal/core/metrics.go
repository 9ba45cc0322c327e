package core

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dmcaguard/internal/types"
)

// PrometheusMetrics implements both the HTTP MetricsCollector and the guard's
// MetricsRecorder against a dedicated Prometheus registry. One instance is
// created per process and shared between the middleware chain and the guard.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisionCount   *prometheus.CounterVec
	violationCount  *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collector. namespace prefixes every metric
// name (METRIC_NAMESPACE, default "dmcaguard").
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		requestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and path.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		decisionCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Authorization boundary decisions by reason code.",
		}, []string{"reason"}),
		violationCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Abuse violations recorded by kind.",
		}, []string{"kind"}),
	}
}

// RecordRequest implements MetricsCollector.
func (m *PrometheusMetrics) RecordRequest(method, path, status string, duration time.Duration) {
	m.requestCount.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDecision implements guard.MetricsRecorder.
func (m *PrometheusMetrics) RecordDecision(reason types.ReasonCode) {
	m.decisionCount.WithLabelValues(string(reason)).Inc()
}

// RecordViolation implements guard.MetricsRecorder.
func (m *PrometheusMetrics) RecordViolation(kind types.ViolationKind) {
	m.violationCount.WithLabelValues(string(kind)).Inc()
}

// Handler returns the exposition endpoint for GET /metrics.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
