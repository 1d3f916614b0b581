package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type GatewayMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttled prometheus.Counter
}

var (
	gatewayOnce     sync.Once
	gatewayRegistry *GatewayMetrics
)

// Gateway returns the lazily-initialised gateway metrics registry.
func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "margind",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "HTTP requests served segmented by route, method and status.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "margind",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency per route.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "margind",
				Subsystem: "gateway",
				Name:      "throttled_requests_total",
				Help:      "Requests rejected by the rate limiter.",
			}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.latency,
			gatewayRegistry.throttled,
		)
	})
	return gatewayRegistry
}

// ObserveRequest records one served request with its final status and latency.
func (m *GatewayMetrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveThrottled counts a request rejected before reaching a handler.
func (m *GatewayMetrics) ObserveThrottled() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}
