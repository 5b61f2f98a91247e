package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

// Metrics owns a private Prometheus registry so handlers can be built more than once per process.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	authRejections  *prometheus.CounterVec
	documentsSaved  *prometheus.CounterVec
	rateLimited     prometheus.Counter
	realtimeStreams prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperless_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paperless_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperless_auth_rejections_total",
			Help: "Rejected requests by status.",
		}, []string{"status"}),
		documentsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperless_documents_saved_total",
			Help: "Saved documents by kind.",
		}, []string{"kind"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperless_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}),
		realtimeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paperless_realtime_streams",
			Help: "Open realtime event streams.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.authRejections, m.documentsSaved, m.rateLimited, m.realtimeStreams,
	)
	return m
}

// RegisterSessionGauge exposes the number of open editor sessions.
func (m *Metrics) RegisterSessionGauge(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "paperless_editor_sessions",
		Help: "Open server-side editor sessions.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// middleware labels requests with the route template, not the raw path, to bound cardinality.
func (m *Metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			m.authRejections.WithLabelValues(strconv.Itoa(status)).Inc()
		}
	}
}
