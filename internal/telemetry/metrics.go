// Package telemetry provides application-level observability for the media gateway.
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<MGW_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text
// exposition format and is intended to be scraped by a Prometheus server. It
// is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Link issuance and verification outcome counters
//   - Artifact render counters and duration histogram, cache hit counters
//   - Policy denial and auto-block counters
//   - Expired-link sweep counter
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as
// /media/:mediaId/:formatId/:linkHash) rather than the raw request URL to
// prevent unbounded label cardinality from user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Link lifecycle metrics.
//
// LinksIssuedTotal counts links created through the admin API.
//
// VerificationsTotal is labelled {outcome, action} where outcome is the
// terminal pipeline state ("ok", "expired", "invalid_signature", ...). The
// outcome set is small and fixed so cardinality stays bounded.
//
// Example PromQL queries:
//   - Tamper attempts:  rate(link_verifications_total{outcome="invalid_signature"}[5m])
//   - Denial ratio:     sum(rate(link_verifications_total{outcome="forbidden"}[5m])) / sum(rate(link_verifications_total[5m]))
var (
	LinksIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "links_issued_total",
			Help: "Total number of signed links issued.",
		},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_verifications_total",
			Help: "Total number of media request verifications, by terminal outcome and requested action.",
		},
		[]string{"outcome", "action"},
	)
)

// Artifact metrics — recorded by the artifact cache.
//
// ArtifactCacheResultsTotal is labelled {result} with values "hit",
// "shared_hit", and "render". A render observation also lands in
// ArtifactRenderDuration.
var (
	ArtifactCacheResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_cache_results_total",
			Help: "Artifact lookups by result: local hit, shared-tier hit, or fresh render.",
		},
		[]string{"result"},
	)

	ArtifactRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "artifact_render_duration_seconds",
			Help:    "Duration of a single source fetch, transform, and encode cycle.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ArtifactRenderErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artifact_render_errors_total",
			Help: "Total number of failed artifact renders.",
		},
	)
)

// Policy metrics.
//
// PolicyDenialsTotal is labelled {violation} ("blacklisted_ip",
// "not_whitelisted_domain", ...). An alert on
// increase(auto_blocks_total[1h]) > 0 is a useful abuse signal.
var (
	PolicyDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_denials_total",
			Help: "Total number of requests denied by the policy engine, by violation kind.",
		},
		[]string{"violation"},
	)

	AutoBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auto_blocks_total",
			Help: "Total number of deny rules created by the violation escalator.",
		},
	)
)

// LinksSweptTotal is incremented by the expired-link sweep job with the number
// of rows it deactivated in each pass.
var LinksSweptTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "links_swept_total",
		Help: "Total number of expired links deactivated by the background sweep.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
