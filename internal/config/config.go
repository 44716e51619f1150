// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Lock backends understood by LOCK_BACKEND.
const (
	LockBackendValkey = "valkey"
	LockBackendLocal  = "local"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible lock service and cache)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Named lock timings. Block is the maximum wait for a held lock,
	// lease the automatic expiry of a lock whose holder never releases it.
	LockBackend       string
	CategoryLockBlock time.Duration
	CategoryLockLease time.Duration
	AccountLockBlock  time.Duration
	AccountLockLease  time.Duration

	// Background work
	RefreshInterval time.Duration
	JobWorkers      int
	JobMaxAttempts  int

	// Uploads
	UploadDir       string
	UploadRateLimit int // uploads per minute per client, 0 disables

	// API access. bcrypt hash of the bearer token accepted on /api.
	AdminTokenHash string
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if a value cannot be
// parsed or critical values are missing in production mode.
func Load() (*Config, error) {
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "photostore"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "photostore"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		LockBackend: envOrDefault("LOCK_BACKEND", LockBackendValkey),

		UploadDir:      envOrDefault("UPLOAD_DIR", "tmp/files"),
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
	}

	var err error
	durations := []struct {
		dst      *time.Duration
		key      string
		fallback time.Duration
	}{
		{&cfg.CategoryLockBlock, "CATEGORY_LOCK_BLOCK", 30 * time.Second},
		{&cfg.CategoryLockLease, "CATEGORY_LOCK_LEASE", 3 * time.Minute},
		{&cfg.AccountLockBlock, "ACCOUNT_LOCK_BLOCK", 30 * time.Second},
		{&cfg.AccountLockLease, "ACCOUNT_LOCK_LEASE", 10 * time.Minute},
		{&cfg.RefreshInterval, "REFRESH_INTERVAL", time.Hour},
	}
	for _, d := range durations {
		if *d.dst, err = durationOrDefault(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		dst      *int
		key      string
		fallback int
	}{
		{&cfg.JobWorkers, "JOB_WORKERS", 4},
		{&cfg.JobMaxAttempts, "JOB_MAX_ATTEMPTS", 5},
		{&cfg.UploadRateLimit, "UPLOAD_RATE_LIMIT", 30},
	}
	for _, i := range ints {
		if *i.dst, err = intOrDefault(i.key, i.fallback); err != nil {
			return nil, err
		}
	}

	if cfg.LockBackend != LockBackendValkey && cfg.LockBackend != LockBackendLocal {
		return nil, fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", LockBackendValkey, LockBackendLocal, cfg.LockBackend)
	}
	if cfg.JobWorkers < 1 {
		return nil, fmt.Errorf("JOB_WORKERS must be at least 1")
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.AdminTokenHash == "" {
			return nil, fmt.Errorf("ADMIN_TOKEN_HASH must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func intOrDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
