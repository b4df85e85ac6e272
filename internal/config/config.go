package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the sungate server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Webhook  WebhookConfig
	Sweep    SweepConfig
	Audit    AuditConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type WebhookConfig struct {
	// DeliveryTimeout bounds each delivery attempt.
	DeliveryTimeout time.Duration
	// SubscriberCacheTTL bounds how stale the cached per-event subscriber
	// list may get; registry writes also invalidate it explicitly.
	SubscriberCacheTTL time.Duration
}

type SweepConfig struct {
	// Cron is the schedule for the maintenance sweep; must run at least daily.
	Cron string
	// RetentionDays is how long usage and delivery logs are kept.
	RetentionDays int
}

type AuditConfig struct {
	// BufferSize is the capacity of the non-blocking audit queue.
	BufferSize int
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SUNGATE_PORT", 8080),
			Env:  envString("SUNGATE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Webhook: WebhookConfig{
			DeliveryTimeout:    envDuration("WEBHOOK_DELIVERY_TIMEOUT", 10*time.Second),
			SubscriberCacheTTL: envDuration("WEBHOOK_SUBSCRIBER_CACHE_TTL", 30*time.Second),
		},
		Sweep: SweepConfig{
			Cron:          envString("SWEEP_CRON", "30 3 * * *"),
			RetentionDays: envInt("SWEEP_RETENTION_DAYS", 90),
		},
		Audit: AuditConfig{
			BufferSize: envInt("AUDIT_BUFFER_SIZE", 1024),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.Env != "development" && c.Server.Env != "production" {
		return fmt.Errorf("SUNGATE_ENV must be development or production, got %q", c.Server.Env)
	}

	if c.Webhook.DeliveryTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_DELIVERY_TIMEOUT must be positive, got %s", c.Webhook.DeliveryTimeout)
	}

	if c.Sweep.RetentionDays <= 0 {
		return fmt.Errorf("SWEEP_RETENTION_DAYS must be positive, got %d", c.Sweep.RetentionDays)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
