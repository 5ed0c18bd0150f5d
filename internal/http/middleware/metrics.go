package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors live under the "forms_http" prefix. The route label is the
// registered Gin template (/api/v1/forms/:id/responses) so label
// cardinality stays bounded; requests matching no route share "unmatched".
var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forms",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forms",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "forms",
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "HTTP requests being served.",
	})

	// Submissions and template uploads carry base64 files, hence the
	// 256B..16MiB range.
	httpReqSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forms",
		Subsystem: "http",
		Name:      "request_size_bytes",
		Help:      "Announced HTTP request body sizes.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 9),
	}, []string{"method", "route"})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forms",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response sizes.",
		Buckets:   prometheus.ExponentialBuckets(200, 4, 9),
	}, []string{"method", "route"})

	// httpRejections counts requests stopped by middleware before any
	// handler ran, by error code (unauthorized, rate_limited...).
	httpRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forms",
		Subsystem: "http",
		Name:      "rejections_total",
		Help:      "Requests rejected by middleware, by error code.",
	}, []string{"code"})

	// idemReplays counts submissions answered from a stored response.
	idemReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "forms",
		Subsystem: "http",
		Name:      "idempotent_replays_total",
		Help:      "Submissions replayed through an Idempotency-Key.",
	})
)

const unmatchedRoute = "unmatched"

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpReqSize, httpRespSize, httpRejections, idemReplays)
}

// Metrics records request count, latency, in-flight gauge and body sizes.
// Expose them with promhttp on /metrics.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Request.ContentLength; n > 0 {
			httpReqSize.WithLabelValues(method, route).Observe(float64(n))
		}
		if n := c.Writer.Size(); n >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}

// abort stops the chain with the API error envelope and counts the
// rejection.
func abort(c *gin.Context, status int, code, msg string) {
	httpRejections.WithLabelValues(code).Inc()
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}
