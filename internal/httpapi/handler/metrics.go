package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	octodevsPublishedTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "octodevs_published_profiles",
		Help: "Number of profiles currently published on the leaderboard.",
	})

	octodevsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octodevs_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	octodevsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "octodevs_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	octodevsProfileSyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octodevs_profile_syncs_total",
		Help: "Total per-profile GitHub refresh attempts by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		octodevsRequestsTotal.WithLabelValues(method, path, status).Inc()
		octodevsRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordProfileSync records a single profile refresh attempt. Wired into the
// profile service as its sync observer.
func RecordProfileSync(success bool) {
	if success {
		octodevsProfileSyncsTotal.WithLabelValues("success").Inc()
	} else {
		octodevsProfileSyncsTotal.WithLabelValues("failure").Inc()
	}
}

// SetPublishedGauge sets the published-profile count gauge.
func SetPublishedGauge(count float64) {
	octodevsPublishedTotal.Set(count)
}
