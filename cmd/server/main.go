// Package main is the entry point for the media gateway server binary.
// It dispatches subcommands — serve, migrate, apikey, and version — via a
// simple switch on os.Args so the binary's full CLI surface is readable in
// one place without requiring a cobra dependency. The serve command runs
// auto-migration on startup so freshly deployed containers never need a
// separate migration step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/media-gateway/media-gateway/internal/api"
	"github.com/media-gateway/media-gateway/internal/auth"
	"github.com/media-gateway/media-gateway/internal/config"
	"github.com/media-gateway/media-gateway/internal/db"
	"github.com/media-gateway/media-gateway/internal/telemetry"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		cfg, configPath, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		return runMigrations(cfg, os.Args[2])
	case "apikey":
		return generateAPIKey()
	case "version":
		fmt.Printf("Media Gateway v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, apikey, version", command)
	}
}

func loadConfig() (*config.Config, string, error) {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, configPath, nil
}

func serve(cfg *config.Config, configPath string) error {
	// Initialise structured logger as early as possible so all subsequent log
	// output uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Validate JWT secret configuration (fails in production if not set)
	if err := auth.InitJWTSecret(cfg.Auth.JWTSecret); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	// Begin exporting DB pool statistics to Prometheus.
	telemetry.StartDBStatsCollector(database)

	// Run migrations automatically on startup
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if schema, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", schema, "dirty", dirty)
	}

	// Hot-reloadable settings (policy cache TTL, auto-blocking, link expiry).
	watcher := config.NewWatcher(cfg, configPath)
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := watcher.Start(watchCtx); err != nil {
		slog.Warn("config watcher unavailable, runtime reloads disabled", "error", err)
	}

	// Prometheus metrics on a dedicated port so the scrape path is not
	// reachable through the public ingress.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	api.Version = version
	router, bgServices, err := api.NewRouter(cfg, watcher, database)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"public_url", cfg.Server.GetPublicURL(),
			"media_backend", cfg.MediaStore.Backend,
			"tls", cfg.Security.TLS.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop background jobs after in-flight requests drain.
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, direction); err != nil {
		return err
	}

	schema, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return err
	}
	fmt.Printf("Migrations applied. Schema version: %d (dirty: %v)\n", schema, dirty)
	return nil
}

// generateAPIKey mints a new admin API key and prints both the raw key (shown
// once, hand it to the client) and the bcrypt hash to place under
// auth.api_keys in the config file.
func generateAPIKey() error {
	key, hash, err := auth.GenerateAPIKey("mgw")
	if err != nil {
		return err
	}

	fmt.Println("API key (give to the client, shown only once):")
	fmt.Printf("  %s\n\n", key)
	fmt.Println("Config entry (auth.api_keys):")
	fmt.Printf("  - name: <client-name>\n    hash: %q\n", hash)
	return nil
}
