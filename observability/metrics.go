package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tenure"

// counterVec and histogramVec wrap the prometheus constructors so every
// collector in the package shares the tenure namespace.
func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func histogramVec(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
}

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics

	streamMetricsOnce sync.Once
	streamRegistry    *streamMetrics
)

// ModuleMetrics returns the registry recording JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests:  counterVec("module", "requests_total", "Total JSON-RPC module requests segmented by module and method.", "module", "method", "outcome"),
			errors:    counterVec("module", "errors_total", "Total JSON-RPC module errors segmented by module, method, and status code.", "module", "method", "status"),
			latency:   histogramVec("module", "request_duration_seconds", "Latency distribution for JSON-RPC module handlers.", "module", "method"),
			throttles: counterVec("module", "throttles_total", "Count of module requests rejected due to throttling policies.", "module", "reason"),
		}
		prometheus.MustRegister(moduleRegistry.requests, moduleRegistry.errors, moduleRegistry.latency, moduleRegistry.throttles)
	})
	return moduleRegistry
}

// Observe records one module request with the HTTP status that was
// ultimately written to the response.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module = labelOr(module, "unknown")
	method = labelOr(method, "unknown")
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable
// strings such as "rate_limit" so dashboards stay consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(labelOr(module, "unknown"), labelOr(reason, "unspecified")).Inc()
}

// GatewayMetrics captures request metrics for the REST gateway.
type GatewayMetrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	proxyErrors *prometheus.CounterVec
}

// Gateway returns the singleton metrics registry for the REST gateway.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests:    counterVec("gateway", "requests_total", "Count of gateway requests segmented by route and outcome.", "route", "outcome"),
			latency:     histogramVec("gateway", "request_duration_seconds", "Latency distribution for gateway routes.", "route"),
			proxyErrors: counterVec("gateway", "proxy_errors_total", "Count of upstream RPC failures observed by the gateway.", "route", "reason"),
		}
		prometheus.MustRegister(gatewayRegistry.requests, gatewayRegistry.latency, gatewayRegistry.proxyErrors)
	})
	return gatewayRegistry
}

// ObserveRequest records a completed gateway request.
func (m *GatewayMetrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = labelOr(route, "unknown")
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordProxyError increments the upstream failure counter for the route.
func (m *GatewayMetrics) RecordProxyError(route, reason string) {
	if m == nil {
		return
	}
	m.proxyErrors.WithLabelValues(labelOr(route, "unknown"), labelOr(reason, "unspecified")).Inc()
}

type streamMetrics struct {
	subscribers prometheus.Gauge
	dropped     prometheus.Counter
}

// EventStream returns the metrics registry for the node event fan-out.
func EventStream() *streamMetrics {
	streamMetricsOnce.Do(func() {
		streamRegistry = &streamMetrics{
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Number of live event stream subscribers.",
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Count of stream updates dropped because a subscriber buffer was full.",
			}),
		}
		prometheus.MustRegister(streamRegistry.subscribers, streamRegistry.dropped)
	})
	return streamRegistry
}

// SetSubscribers records the current live subscriber count.
func (m *streamMetrics) SetSubscribers(count int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(count))
}

// RecordDropped increments the dropped update counter.
func (m *streamMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// labelOr trims value for use as a metric label, substituting fallback
// when nothing remains.
func labelOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
