// Package metrics exposes the console's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	LoginOutcomes    *prometheus.CounterVec
	ForcedLogouts    prometheus.Counter
	BackendCalls     *prometheus.CounterVec
	BackendDuration  *prometheus.HistogramVec
	DetectionToggles *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LoginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvision",
			Name:      "login_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		ForcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zvision",
			Name:      "forced_logouts_total",
			Help:      "Sessions ended because the backend rejected the credential.",
		}),
		BackendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvision",
			Name:      "backend_requests_total",
			Help:      "Backend calls by route and status class.",
		}, []string{"method", "route", "class"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zvision",
			Name:      "backend_request_duration_seconds",
			Help:      "Backend call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		DetectionToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvision",
			Name:      "detection_toggles_total",
			Help:      "Detection toggle requests by desired state and outcome.",
		}, []string{"desired", "outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zvision",
			Name:      "http_request_duration_seconds",
			Help:      "Console request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.LoginOutcomes,
		m.ForcedLogouts,
		m.BackendCalls,
		m.BackendDuration,
		m.DetectionToggles,
		m.HTTPDuration,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBackend is installed as the backend client's observer.
func (m *Metrics) ObserveBackend(method, route string, status int, err error, elapsed time.Duration) {
	m.BackendCalls.WithLabelValues(method, route, statusClass(status, err)).Inc()
	m.BackendDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusClass(status int, err error) string {
	if status == 0 {
		if err != nil {
			return "error"
		}
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Middleware records request latency labelled by the matched route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}
