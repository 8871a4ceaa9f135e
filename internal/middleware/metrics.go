// Package middleware provides Gin HTTP middleware for the media gateway.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → SecurityHeaders → [RateLimit → Auth] → Handler
//
// Security headers run on all responses including errors. Rate limiting and
// auth apply to the admin API group only; the public media route is protected
// by signature verification inside the pipeline, not by session auth.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/media-gateway/media-gateway/internal/telemetry"
)

// MetricsMiddleware returns a Gin handler that records two Prometheus metrics for every
// request that passes through the router:
//
//   - http_requests_total{method, path, status}    — CounterVec
//   - http_request_duration_seconds{method, path}  — HistogramVec
//
// The path label is set from c.FullPath(), which returns the matched Gin route template
// (e.g. /media/:mediaId/:formatId/:linkHash) rather than the raw URL. Requests that do
// not match any registered route (404/405) use the literal string "<no-route>" so
// unhandled paths do not inflate label cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
