// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string
	Workers     int
	Development bool

	// Filesystem
	RootDir    string // parent of all namespace roots
	ShowHidden bool

	// Logging
	LogLevel  string
	LogFormat string

	// Stores
	DatabaseURL   string
	CounterDBPath string

	// Uploads
	MaxUploadSize int64

	// Shutdown
	ShutdownGrace time.Duration

	// Offload pool
	ScanWorkers int

	// Admin bootstrap
	AdminPassword string
	AdminEmail    string

	// Auth
	JWTSecret string

	// Notification (e-reader push)
	SMTPAddr   string
	SMTPSender string
	SMTPUser   string
	SMTPPass   string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    envOr("LISTEN_ADDR", ":9000"),
		MetricsAddr:   envOr("METRICS_ADDR", ":9090"),
		Workers:       envInt("WORKERS", 1),
		Development:   envBool("DEVELOPMENT", false),
		RootDir:       envOr("FILELIST_ROOT", ""),
		ShowHidden:    envBool("SHOW_HIDDEN", false),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFormat:     envOr("LOG_FORMAT", "json"),
		DatabaseURL:   envOr("DATABASE_URL", ""),
		CounterDBPath: envOr("COUNTER_DB_PATH", "/data/counters"),
		MaxUploadSize: envInt64("MAX_UPLOAD_SIZE", 512*1024*1024),
		ShutdownGrace: envDuration("SHUTDOWN_GRACE", 5*time.Second),
		ScanWorkers:   envInt("SCAN_WORKERS", 5),
		AdminPassword: envOr("ADMIN_PASSWORD", ""),
		AdminEmail:    envOr("ADMIN_EMAIL", ""),
		JWTSecret:     envOr("JWT_SECRET", ""),
		SMTPAddr:      envOr("SMTP_ADDR", ""),
		SMTPSender:    envOr("SMTP_SENDER", ""),
		SMTPUser:      envOr("SMTP_USER", ""),
		SMTPPass:      envOr("SMTP_PASS", ""),
	}

	if cfg.RootDir == "" {
		return nil, fmt.Errorf("FILELIST_ROOT is required")
	}
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve FILELIST_ROOT: %w", err)
	}
	cfg.RootDir = root

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	// Development mode always runs a single worker, matching the
	// original single-process debug behavior.
	if cfg.Development {
		cfg.Workers = 1
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
