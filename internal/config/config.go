// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	FrontendURL     string        `env:"FRONTEND_URL"`
	AppEnv          string        `env:"APP_ENV"`
	DBPath          string        `env:"DB_PATH" envDefault:"./data/supportdesk.db"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	GRPCHealthPort  string        `env:"GRPC_HEALTH_PORT"`

	Auth       AuthConfig
	Realtime   RealtimeConfig
	Redis      RedisConfig
	Geo        GeoConfig
	Blob       BlobConfig
	RateLimit  RateLimitConfig
	Transcript TranscriptConfig
	Seed       SeedConfig
}

// AuthConfig controls agent bearer-token verification.
// Either JWTSecret (HS256) or JWKSURL (RS256) must be set.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	JWKSURL   string `env:"AUTH_JWKS_URL"`
	Issuer    string `env:"AUTH_ISSUER"`
}

// RealtimeConfig controls the pub/sub hub and its transports.
type RealtimeConfig struct {
	SigningSecret     string        `env:"REALTIME_SIGNING_SECRET"`
	TokenTTL          time.Duration `env:"REALTIME_TOKEN_TTL" envDefault:"10m"`
	ReplaySize        int           `env:"REALTIME_REPLAY_SIZE" envDefault:"100"`
	SubscriberBuffer  int           `env:"REALTIME_SUBSCRIBER_BUFFER" envDefault:"64"`
	KeepaliveInterval time.Duration `env:"REALTIME_KEEPALIVE" envDefault:"10s"`
	RetryDelay        time.Duration `env:"REALTIME_RETRY_DELAY" envDefault:"5s"`
	IdleChannelTTL    time.Duration `env:"REALTIME_IDLE_CHANNEL_TTL" envDefault:"30m"`
	PublishTimeout    time.Duration `env:"REALTIME_PUBLISH_TIMEOUT" envDefault:"5s"`
}

// RedisConfig enables the cross-instance relay when URL is set.
type RedisConfig struct {
	URL           string `env:"REDIS_URL"`
	ChannelPrefix string `env:"REDIS_CHANNEL_PREFIX" envDefault:"supportdesk:"`
}

// GeoConfig controls IP geolocation lookups.
type GeoConfig struct {
	Endpoint  string        `env:"GEO_ENDPOINT" envDefault:"http://ip-api.com/json"`
	Timeout   time.Duration `env:"GEO_TIMEOUT" envDefault:"3s"`
	CacheSize int           `env:"GEO_CACHE_SIZE" envDefault:"4096"`
}

// BlobConfig selects and configures attachment storage.
type BlobConfig struct {
	Backend             string `env:"BLOB_BACKEND" envDefault:"local"` // "s3" or "local"
	S3Bucket            string `env:"S3_BUCKET"`
	S3Region            string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint          string `env:"S3_ENDPOINT"`
	S3AccessKeyID       string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey         string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle      bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
	S3PublicBaseURL     string `env:"S3_PUBLIC_BASE_URL"`
	LocalStoragePath    string `env:"LOCAL_STORAGE_PATH" envDefault:"./data/uploads"`
	LocalStorageBaseURL string `env:"LOCAL_STORAGE_BASE_URL" envDefault:"/uploads"`
	MaxUploadBytes      int64  `env:"UPLOAD_MAX_BYTES" envDefault:"5242880"`
}

// RateLimitConfig throttles the public widget routes per client IP.
type RateLimitConfig struct {
	WidgetRequests int           `env:"WIDGET_RATE_LIMIT" envDefault:"120"`
	WidgetWindow   time.Duration `env:"WIDGET_RATE_WINDOW" envDefault:"1m"`
}

// TranscriptConfig controls NDJSON conversation transcripts.
type TranscriptConfig struct {
	Enabled   bool   `env:"TRANSCRIPT_LOG_ENABLED" envDefault:"false"`
	Dir       string `env:"TRANSCRIPT_LOG_DIR" envDefault:"./data/logs/transcripts"`
	QueueSize int    `env:"TRANSCRIPT_LOG_QUEUE_SIZE" envDefault:"1000"`
}

// SeedConfig registers one website at startup when WebsiteName and OwnerID are set.
type SeedConfig struct {
	WebsiteID   string `env:"SEED_WEBSITE_ID"`
	WebsiteName string `env:"SEED_WEBSITE_NAME"`
	Domain      string `env:"SEED_WEBSITE_DOMAIN"`
	OwnerID     string `env:"SEED_OWNER_ID"`
	OwnerName   string `env:"SEED_OWNER_NAME"`
}

// Enabled reports whether a website should be registered at startup.
func (c SeedConfig) Enabled() bool {
	return c.WebsiteName != "" && c.OwnerID != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.Blob.S3Bucket = strings.TrimSpace(cfg.Blob.S3Bucket)
	cfg.Blob.S3AccessKeyID = strings.TrimSpace(cfg.Blob.S3AccessKeyID)
	cfg.Blob.S3SecretKey = strings.TrimSpace(cfg.Blob.S3SecretKey)
	if cfg.Blob.MaxUploadBytes <= 0 {
		cfg.Blob.MaxUploadBytes = 5 << 20
	}
	if cfg.Transcript.QueueSize <= 0 {
		cfg.Transcript.QueueSize = 1000
	}
	if cfg.Realtime.SigningSecret == "" {
		cfg.Realtime.SigningSecret = cfg.Auth.JWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("one of AUTH_JWT_SECRET or AUTH_JWKS_URL must be set")
	}
	if c.Realtime.SigningSecret == "" {
		return fmt.Errorf("REALTIME_SIGNING_SECRET must be set when AUTH_JWT_SECRET is empty")
	}
	if c.Realtime.ReplaySize <= 0 {
		return fmt.Errorf("REALTIME_REPLAY_SIZE must be > 0")
	}
	switch c.Blob.Backend {
	case "local":
		if c.Blob.LocalStoragePath == "" {
			return fmt.Errorf("LOCAL_STORAGE_PATH cannot be empty")
		}
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND is s3")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be one of s3, local (got %q)", c.Blob.Backend)
	}
	if c.RateLimit.WidgetRequests <= 0 || c.RateLimit.WidgetWindow <= 0 {
		return fmt.Errorf("WIDGET_RATE_LIMIT and WIDGET_RATE_WINDOW must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.AppEnv != "" {
		return c.AppEnv == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
