// Package config loads and validates the gateway configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the MGW_ prefix (e.g., MGW_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
//
// The JWT_SECRET variable has no MGW_ prefix because it may be injected by
// infrastructure tooling (e.g., Kubernetes secrets, Vault agent) that does not
// know the application-specific prefix and treats it as a generic secret name.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MediaStore MediaStoreConfig `mapstructure:"media_store"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	Links      LinksConfig      `mapstructure:"links"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetPublicURL returns the public-facing URL embedded in issued links. When
// server.public_url is set it is returned as-is; otherwise it falls back to
// server.base_url. The distinction matters in reverse-proxied deployments
// where the internal listen address differs from the URL clients see.
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds the optional Redis connection used for the shared policy
// decision cache and the API rate limiter. When disabled both fall back to
// in-process equivalents.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MediaStoreConfig holds the source media backend configuration
type MediaStoreConfig struct {
	Backend string           `mapstructure:"backend"`
	Local   LocalStoreConfig `mapstructure:"local"`
	S3      S3StoreConfig    `mapstructure:"s3"`
}

// LocalStoreConfig holds local filesystem media store configuration
type LocalStoreConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// S3StoreConfig holds S3-compatible media store configuration
type S3StoreConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, DigitalOcean Spaces, etc.)
	Endpoint string `mapstructure:"endpoint"`
	// Region is the AWS region
	Region string `mapstructure:"region"`
	// Bucket is the S3 bucket name
	Bucket string `mapstructure:"bucket"`

	// Authentication method: "default", "static"
	// - "default": Use AWS default credential chain (env vars, shared config, IAM role, etc.)
	// - "static": Use explicit access key and secret key
	AuthMethod string `mapstructure:"auth_method"`

	// Static credentials (when auth_method is "static" or empty for backwards compatibility)
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// ArtifactsConfig holds the derived-artifact cache configuration
type ArtifactsConfig struct {
	// CacheDir is the local directory holding rendered artifacts
	CacheDir string `mapstructure:"cache_dir"`
	// Shared configures the optional cross-instance artifact tier
	Shared SharedArtifactsConfig `mapstructure:"shared"`
}

// SharedArtifactsConfig holds the optional shared artifact tier
type SharedArtifactsConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Minio   MinioConfig `mapstructure:"minio"`
}

// MinioConfig holds the MinIO connection for the shared artifact tier
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LinksConfig holds link issuance configuration
type LinksConfig struct {
	// DefaultExpiryYears is the lifetime of a link issued without an
	// explicit expiry
	DefaultExpiryYears int `mapstructure:"default_expiry_years"`
}

// PolicyConfig holds policy engine configuration
type PolicyConfig struct {
	// CacheTTL bounds how stale a cached policy decision may be
	CacheTTL     time.Duration      `mapstructure:"cache_ttl"`
	AutoBlocking AutoBlockingConfig `mapstructure:"auto_blocking"`
}

// AutoBlockingConfig holds violation escalation configuration
type AutoBlockingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Threshold is the denied-request count at which an IP is blocked
	Threshold int `mapstructure:"threshold"`
	// WindowHours is the trailing window the count is taken over
	WindowHours int `mapstructure:"window_hours"`
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	// JWTSecret signs admin session tokens. Falls back to the JWT_SECRET
	// environment variable; a generated dev secret is used when neither is
	// set and the environment is not production.
	JWTSecret string `mapstructure:"jwt_secret"`
	// TokenLifetime is how long an issued admin token stays valid
	TokenLifetime time.Duration `mapstructure:"token_lifetime"`
	// APIKeys are bcrypt hashes of accepted admin API keys
	APIKeys []APIKeyEntry `mapstructure:"api_keys"`
}

// APIKeyEntry names one accepted admin API key
type APIKeyEntry struct {
	Name string `mapstructure:"name"`
	// Hash is the bcrypt hash of the key material
	Hash string `mapstructure:"hash"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds API rate limiting configuration
type RateLimitingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// RequestsPerHour is the per-client budget for the admin API
	RequestsPerHour int `mapstructure:"requests_per_hour"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit record shipping configuration
type AuditConfig struct {
	// Enabled determines if audit emission is active
	Enabled bool `mapstructure:"enabled"`
	// Shippers configures external record shipping
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	// Enabled determines if this shipper is active
	Enabled bool `mapstructure:"enabled"`
	// Type is the shipper type (webhook, file)
	Type string `mapstructure:"type"`
	// Webhook configuration
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	// File configuration
	File *AuditFileConfig `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	LinkSweep LinkSweepConfig `mapstructure:"link_sweep"`
}

// LinkSweepConfig holds the expired-link sweep job configuration
type LinkSweepConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Redis
		"redis.enabled",
		"redis.addr",
		"redis.password",
		"redis.db",

		// Media store
		"media_store.backend",
		"media_store.local.base_path",
		"media_store.s3.endpoint",
		"media_store.s3.region",
		"media_store.s3.bucket",
		"media_store.s3.auth_method",
		"media_store.s3.access_key_id",
		"media_store.s3.secret_access_key",

		// Artifacts
		"artifacts.cache_dir",
		"artifacts.shared.enabled",
		"artifacts.shared.minio.endpoint",
		"artifacts.shared.minio.access_key",
		"artifacts.shared.minio.secret_key",
		"artifacts.shared.minio.bucket",
		"artifacts.shared.minio.use_ssl",

		// Links
		"links.default_expiry_years",

		// Policy
		"policy.cache_ttl",
		"policy.auto_blocking.enabled",
		"policy.auto_blocking.threshold",
		"policy.auto_blocking.window_hours",

		// Auth
		"auth.jwt_secret",
		"auth.token_lifetime",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_hour",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.enabled",

		// Jobs
		"jobs.link_sweep.enabled",
		"jobs.link_sweep.interval_minutes",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/media-gateway")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("MGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.MediaStore.S3.AccessKeyID = expandEnv(cfg.MediaStore.S3.AccessKeyID)
	cfg.MediaStore.S3.SecretAccessKey = expandEnv(cfg.MediaStore.S3.SecretAccessKey)
	cfg.Artifacts.Shared.Minio.AccessKey = expandEnv(cfg.Artifacts.Shared.Minio.AccessKey)
	cfg.Artifacts.Shared.Minio.SecretKey = expandEnv(cfg.Artifacts.Shared.Minio.SecretKey)
	cfg.Auth.JWTSecret = expandEnv(cfg.Auth.JWTSecret)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "media_gateway")
	v.SetDefault("database.user", "gateway")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Media store defaults
	v.SetDefault("media_store.backend", "local")
	v.SetDefault("media_store.local.base_path", "./media")

	// Artifacts defaults
	v.SetDefault("artifacts.cache_dir", "./artifacts")
	v.SetDefault("artifacts.shared.enabled", false)

	// Links defaults
	v.SetDefault("links.default_expiry_years", 2)

	// Policy defaults
	v.SetDefault("policy.cache_ttl", "30s")
	v.SetDefault("policy.auto_blocking.enabled", true)
	v.SetDefault("policy.auto_blocking.threshold", 10)
	v.SetDefault("policy.auto_blocking.window_hours", 24)

	// Auth defaults
	v.SetDefault("auth.token_lifetime", "12h")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_hour", 3600)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "media-gateway")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.enabled", false)

	// Jobs defaults
	v.SetDefault("jobs.link_sweep.enabled", true)
	v.SetDefault("jobs.link_sweep.interval_minutes", 60)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate media store backend
	validBackends := map[string]bool{"s3": true, "local": true}
	if !validBackends[c.MediaStore.Backend] {
		return fmt.Errorf("invalid media store backend: %s (must be s3 or local)", c.MediaStore.Backend)
	}

	if c.MediaStore.Backend == "s3" {
		if c.MediaStore.S3.Bucket == "" {
			return fmt.Errorf("media_store.s3.bucket is required when using S3 backend")
		}
		if c.MediaStore.S3.Region == "" {
			return fmt.Errorf("media_store.s3.region is required when using S3 backend")
		}
	}

	if c.MediaStore.Backend == "local" {
		if c.MediaStore.Local.BasePath == "" {
			return fmt.Errorf("media_store.local.base_path is required when using local backend")
		}
	}

	// Validate artifacts
	if c.Artifacts.CacheDir == "" {
		return fmt.Errorf("artifacts.cache_dir is required")
	}
	if c.Artifacts.Shared.Enabled {
		if c.Artifacts.Shared.Minio.Endpoint == "" {
			return fmt.Errorf("artifacts.shared.minio.endpoint is required when the shared tier is enabled")
		}
		if c.Artifacts.Shared.Minio.Bucket == "" {
			return fmt.Errorf("artifacts.shared.minio.bucket is required when the shared tier is enabled")
		}
	}

	// Validate links
	if c.Links.DefaultExpiryYears < 1 {
		return fmt.Errorf("links.default_expiry_years must be at least 1")
	}

	// Validate policy
	if c.Policy.CacheTTL <= 0 {
		return fmt.Errorf("policy.cache_ttl must be positive")
	}
	if c.Policy.AutoBlocking.Enabled {
		if c.Policy.AutoBlocking.Threshold < 1 {
			return fmt.Errorf("policy.auto_blocking.threshold must be at least 1")
		}
		if c.Policy.AutoBlocking.WindowHours < 1 {
			return fmt.Errorf("policy.auto_blocking.window_hours must be at least 1")
		}
	}

	// Validate Redis when enabled
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
