package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr                string
	DBPath              string
	BlobDir             string
	BaseURL             string
	SigningKey          string
	CatalogPath         string
	LogLevel            string
	FinalizeWorkerCount int
	FinalizeQueueSize   int
	Preview             time.Duration
	SampleMinGap        time.Duration
	LayoutMaxAttempts   int
	UploadMaxRetries    int
	UploadBaseDelay     time.Duration
	UploadConcurrency   int
	SignedURLTTL        time.Duration
}

// Load reads configuration from a .env file (if present) and environment variables,
// applying sensible defaults when values are missing or invalid.
func Load() Config {
	// Ignore error so the app still starts when .env is absent in production.
	_ = godotenv.Load()

	return Config{
		Addr:                envOr("ADDR", ":8080"),
		DBPath:              envOr("DB_PATH", "file:gazetest.db"),
		BlobDir:             envOr("BLOB_DIR", "data/blobs"),
		BaseURL:             envOr("BASE_URL", ""),
		SigningKey:          envOr("SIGNING_KEY", ""),
		CatalogPath:         envOr("CATALOG_PATH", "data/catalog.yaml"),
		LogLevel:            envOr("LOG_LEVEL", "INFO"),
		FinalizeWorkerCount: envIntOr("FINALIZE_WORKER_COUNT", 2),
		FinalizeQueueSize:   envIntOr("FINALIZE_QUEUE_SIZE", 64),
		Preview:             envDurationOr("PREVIEW_SECONDS", time.Second, 5*time.Second),
		SampleMinGap:        envDurationOr("SAMPLE_MIN_GAP_MS", time.Millisecond, 100*time.Millisecond),
		LayoutMaxAttempts:   envIntOr("LAYOUT_MAX_ATTEMPTS", 1000),
		UploadMaxRetries:    envIntOr("UPLOAD_MAX_RETRIES", 3),
		UploadBaseDelay:     envDurationOr("UPLOAD_BASE_DELAY_MS", time.Millisecond, 200*time.Millisecond),
		UploadConcurrency:   envIntOr("UPLOAD_CONCURRENCY", 4),
		SignedURLTTL:        envDurationOr("SIGNED_URL_TTL_SECONDS", time.Second, time.Hour),
	}
}

var validLogLevels = map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}

// Validate reports every invalid field, naming the env key that sets it.
// LogLevel is normalized to upper case.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Addr == "" {
		add("ADDR cannot be empty")
	}
	if c.DBPath == "" {
		add("DB_PATH cannot be empty")
	}
	if c.BlobDir == "" {
		add("BLOB_DIR cannot be empty")
	}
	c.LogLevel = strings.ToUpper(c.LogLevel)
	if !validLogLevels[c.LogLevel] {
		add("LOG_LEVEL must be one of DEBUG, INFO, WARN, ERROR (got %q)", c.LogLevel)
	}
	if c.FinalizeWorkerCount < 1 {
		add("FINALIZE_WORKER_COUNT must be at least 1 (got %d)", c.FinalizeWorkerCount)
	}
	if c.FinalizeQueueSize < 1 {
		add("FINALIZE_QUEUE_SIZE must be at least 1 (got %d)", c.FinalizeQueueSize)
	}
	if c.Preview < 0 {
		add("PREVIEW_SECONDS cannot be negative")
	}
	if c.SampleMinGap < 0 {
		add("SAMPLE_MIN_GAP_MS cannot be negative")
	}
	if c.LayoutMaxAttempts < 1 {
		add("LAYOUT_MAX_ATTEMPTS must be at least 1 (got %d)", c.LayoutMaxAttempts)
	}
	if c.UploadMaxRetries < 0 {
		add("UPLOAD_MAX_RETRIES cannot be negative (got %d)", c.UploadMaxRetries)
	}
	if c.UploadBaseDelay <= 0 {
		add("UPLOAD_BASE_DELAY_MS must be positive")
	}
	if c.UploadConcurrency < 1 {
		add("UPLOAD_CONCURRENCY must be at least 1 (got %d)", c.UploadConcurrency)
	}
	if c.SignedURLTTL <= 0 {
		add("SIGNED_URL_TTL_SECONDS must be positive")
	}
	return errors.Join(errs...)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Printf("invalid value for %s=%q, using default %d", key, v, def)
	}
	return def
}

// envDurationOr reads an integer count of unit.
func envDurationOr(key string, unit, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * unit
		}
		log.Printf("invalid value for %s=%q, using default %s", key, v, def)
	}
	return def
}
