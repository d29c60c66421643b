package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics instruments inbound HTTP requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "undangly_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "undangly_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	prometheus.MustRegister(m.requests, m.duration)
	return m
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// PaymentMetrics counts payment session lifecycle events.
type PaymentMetrics struct {
	sessionsStarted *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
}

func NewPaymentMetrics() *PaymentMetrics {
	m := &PaymentMetrics{
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "undangly_payment_sessions_started_total",
			Help: "Payment sessions created, by package code.",
		}, []string{"package"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "undangly_payment_session_transitions_total",
			Help: "Session status transitions, by target status.",
		}, []string{"status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "undangly_gateway_notifications_total",
			Help: "Gateway webhook notifications, by outcome.",
		}, []string{"outcome"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "undangly_gateway_calls_total",
			Help: "Outbound gateway calls, by operation and result.",
		}, []string{"operation", "result"}),
	}
	prometheus.MustRegister(m.sessionsStarted, m.transitions, m.notifications, m.gatewayCalls)
	return m
}

func (m *PaymentMetrics) RecordSessionStarted(packageCode string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(strings.TrimSpace(packageCode)).Inc()
}

func (m *PaymentMetrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(strings.TrimSpace(status)).Inc()
}

func (m *PaymentMetrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(strings.TrimSpace(outcome)).Inc()
}

func (m *PaymentMetrics) RecordGatewayCall(operation, result string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(strings.TrimSpace(operation), strings.TrimSpace(result)).Inc()
}
