// Package api wires together all HTTP routes for the media gateway.
//
// Route grouping philosophy:
//   - The media route (/media/...) is intentionally unauthenticated at the
//     session level: possession of a valid signed URL is the credential, and
//     the verification pipeline enforces it together with the allow/deny
//     policy engine.
//   - Admin routes (/api/v1/) always require a bearer token (session JWT or
//     configured API key) and are rate limited.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/media-gateway/media-gateway/internal/api/admin"
	"github.com/media-gateway/media-gateway/internal/api/media"
	"github.com/media-gateway/media-gateway/internal/artifact"
	"github.com/media-gateway/media-gateway/internal/audit"
	"github.com/media-gateway/media-gateway/internal/config"
	"github.com/media-gateway/media-gateway/internal/db/repositories"
	"github.com/media-gateway/media-gateway/internal/escalate"
	"github.com/media-gateway/media-gateway/internal/jobs"
	"github.com/media-gateway/media-gateway/internal/keyring"
	"github.com/media-gateway/media-gateway/internal/middleware"
	"github.com/media-gateway/media-gateway/internal/pipeline"
	"github.com/media-gateway/media-gateway/internal/policy"
	"github.com/media-gateway/media-gateway/internal/safego"
	"github.com/media-gateway/media-gateway/internal/signing"
	"github.com/media-gateway/media-gateway/internal/storage"

	// Import storage backends to register them
	_ "github.com/media-gateway/media-gateway/internal/storage/local"
	_ "github.com/media-gateway/media-gateway/internal/storage/s3"
)

// Version is stamped by the build; surfaced on GET /version.
var Version = "dev"

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	sweeper     *jobs.LinkSweeper
	sweepCancel context.CancelFunc
	auditSink   audit.Shipper
	redisClient *redis.Client
}

// Shutdown stops all background goroutines and flushes the audit pipeline.
// It should be called after the HTTP server has been shut down so that
// in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.sweeper != nil {
		bg.sweeper.Stop()
	}
	if bg.sweepCancel != nil {
		bg.sweepCancel()
	}
	if bg.auditSink != nil {
		if err := bg.auditSink.Close(); err != nil {
			slog.Warn("audit sink close failed", "error", err)
		}
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and all gateway components.
// watcher supplies hot-reloadable settings; cfg is the startup snapshot for
// everything that cannot change at runtime (listeners, stores, credentials).
func NewRouter(cfg *config.Config, watcher *config.Watcher, database *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Source media backend
	mediaStore, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize media store: %w", err)
	}
	slog.Info("media store initialized", "backend", cfg.MediaStore.Backend)

	// Repositories. Formats and usage events ride sqlx for struct scanning;
	// the rest use database/sql directly.
	sqlxDB := sqlx.NewDb(database, "postgres")
	keyRepo := repositories.NewKeyRepository(database)
	linkRepo := repositories.NewLinkRepository(database)
	mediaRepo := repositories.NewMediaRepository(database)
	policyRepo := repositories.NewPolicyRepository(database)
	formatRepo := repositories.NewFormatRepository(sqlxDB)
	usageRepo := repositories.NewUsageRepository(sqlxDB)

	// Signing keys: load the active pair or mint one on first boot.
	ring := keyring.New(keyRepo)
	if err := ring.Ensure(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	slog.Info("signing key ready", "key_id", ring.KeyID())

	// Optional Redis: shared policy decision cache and cluster-wide rate limit.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bg.redisClient = redisClient
	}

	// Policy engine with its decision cache tiers (process-local first).
	tiers := []policy.CacheTier{policy.NewMemoryTier()}
	if redisClient != nil {
		tiers = append(tiers, policy.NewRedisTier(redisClient, ""))
	}
	engine := policy.NewEngine(policyRepo, func() time.Duration {
		return watcher.Snapshot().Policy.CacheTTL
	}, tiers...)

	// Artifact cache, optionally backed by the shared MinIO tier.
	var shared artifact.BlobTier
	if cfg.Artifacts.Shared.Enabled {
		tier, err := artifact.NewMinioTier(context.Background(), &cfg.Artifacts.Shared.Minio)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize shared artifact tier: %w", err)
		}
		shared = tier
	}
	artifacts, err := artifact.NewCache(mediaStore, cfg.Artifacts.CacheDir, shared)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize artifact cache: %w", err)
	}

	// Audit sink
	var auditSink audit.Shipper
	if cfg.Audit.Enabled {
		ms, err := audit.NewMultiShipper(auditShipperConfigs(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
		}
		auditSink = ms
		bg.auditSink = ms
	}

	// Violation escalation
	escalator := escalate.New(usageRepo, policyRepo, auditSink, func() escalate.Settings {
		ab := watcher.Snapshot().Policy.AutoBlocking
		return escalate.Settings{
			Enabled:     ab.Enabled,
			Threshold:   ab.Threshold,
			WindowHours: ab.WindowHours,
		}
	})

	// Verification pipeline and issuance gateway
	pipe := pipeline.New(ring, linkRepo, mediaRepo, formatRepo, usageRepo, engine, artifacts, escalator, auditSink, pipeline.NopGeoResolver{})
	gateway := signing.NewGateway(mediaRepo, formatRepo, linkRepo, ring, cfg.Server.GetPublicURL(), func() int {
		return watcher.Snapshot().Links.DefaultExpiryYears
	})

	// Expired-link sweep
	if cfg.Jobs.LinkSweep.Enabled {
		sweeper := jobs.NewLinkSweeper(linkRepo, cfg.Jobs.LinkSweep.IntervalMinutes)
		sweepCtx, cancel := context.WithCancel(context.Background())
		bg.sweeper = sweeper
		bg.sweepCancel = cancel
		safego.Go(func() { sweeper.Start(sweepCtx) })
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.NoRoute(media.NotFoundHandler)

	// System routes
	router.GET("/health", healthCheckHandler(database))
	router.GET("/ready", readinessHandler(database, ring, policyRepo))
	router.GET("/version", versionHandler())

	// Public media route
	mediaHandler := media.NewHandler(pipe)
	mediaGroup := router.Group("/media")
	mediaGroup.Use(middleware.SecurityHeadersMiddleware(middleware.MediaSecurityHeadersConfig()))
	mediaGroup.GET("/:mediaId/:formatId/:linkHash", mediaHandler.Serve)

	// Admin API
	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient, cfg.Security.RateLimiting.RequestsPerHour)
	} else {
		limiter = middleware.NewLocalLimiter(cfg.Security.RateLimiting.RequestsPerHour)
	}

	apiGroup := router.Group("/api/v1")
	apiGroup.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	apiGroup.Use(CORSMiddleware(cfg))
	if cfg.Security.RateLimiting.Enabled {
		apiGroup.Use(middleware.RateLimitMiddleware(limiter, cfg.Security.RateLimiting.RequestsPerHour))
	}

	tokenHandler := admin.NewTokenHandler(cfg, auditSink)
	apiGroup.POST("/auth/token", tokenHandler.Exchange)

	authed := apiGroup.Group("")
	authed.Use(middleware.AuthMiddleware(cfg))

	linksHandler := admin.NewLinksHandler(gateway, linkRepo, usageRepo, auditSink)
	authed.POST("/links", linksHandler.Issue)
	authed.GET("/links/:id", linksHandler.Get)
	authed.DELETE("/links/:id", linksHandler.Revoke)
	authed.GET("/links/:id/usage", linksHandler.Usage)

	policyHandler := admin.NewPolicyHandler(policyRepo, auditSink)
	authed.GET("/policy/rules", policyHandler.List)
	authed.POST("/policy/rules", policyHandler.Create)
	authed.DELETE("/policy/rules/:id", policyHandler.Remove)

	return router, bg, nil
}

// auditShipperConfigs maps the viper-decoded audit section onto the audit
// package's own config types.
func auditShipperConfigs(cfg *config.Config) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(cfg.Audit.Shippers))
	for _, sc := range cfg.Audit.Shippers {
		c := audit.ShipperConfig{
			Enabled: sc.Enabled,
			Type:    sc.Type,
		}
		if sc.Webhook != nil {
			c.Webhook = &audit.WebhookConfig{
				URL:           sc.Webhook.URL,
				Headers:       sc.Webhook.Headers,
				Timeout:       time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     sc.Webhook.BatchSize,
				FlushInterval: time.Duration(sc.Webhook.FlushInterval) * time.Second,
			}
		}
		if sc.File != nil {
			c.File = &audit.FileConfig{
				Path:       sc.File.Path,
				MaxSizeMB:  sc.File.MaxSizeMB,
				MaxBackups: sc.File.MaxBackups,
			}
		}
		out = append(out, c)
	}
	return out
}

func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler reports whether the gateway can actually verify and serve.
// Unlike the liveness probe it exposes the two checks that gate correct
// operation: the signing key material is loaded (crypto_available) and the
// policy store answers queries (policy_store_reachable).
func readinessHandler(db *sql.DB, ring *keyring.KeyRing, policyRepo *repositories.PolicyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		ready := true

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			ready = false
		} else {
			checks["database"] = "healthy"
		}

		cryptoAvailable := ring.Available()
		checks["crypto_available"] = cryptoAvailable
		if !cryptoAvailable {
			ready = false
		}

		policyReachable := policyRepo.Ping(c.Request.Context()) == nil
		checks["policy_store_reachable"] = policyReachable
		if !policyReachable {
			ready = false
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  ready,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging through the global
// slog logger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware applies the configured CORS policy to the admin API.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
