package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks the staked HTTP surface by route and operation.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttled *prometheus.CounterVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *HTTPMetrics
)

// HTTP returns the process wide staked HTTP metrics.
func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "staked",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Stake service requests by route, operation and status class.",
			}, []string{"route", "op", "class"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "staked",
				Subsystem: "http",
				Name:      "rejected_total",
				Help:      "Stake operations answered with an error status.",
			}, []string{"op", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "staked",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Time spent serving stake requests, engine lock included.",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			}, []string{"route"}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "staked",
				Subsystem: "http",
				Name:      "throttled_total",
				Help:      "Stake operations turned away by the sender rate limit or the staker quota.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.rejected,
			httpRegistry.latency,
			httpRegistry.throttled,
		)
	})
	return httpRegistry
}

// Observe records one served request. op is the bounded operation or query
// label and status the code written to the client.
func (m *HTTPMetrics) Observe(route, op string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.requests.WithLabelValues(route, op, statusClass(status)).Inc()
	if status >= 400 {
		m.rejected.WithLabelValues(op, strconv.Itoa(status)).Inc()
	}
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle counts a request refused for reason, "rate_limit" or
// "quota_exceeded".
func (m *HTTPMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttled.WithLabelValues(reason).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
