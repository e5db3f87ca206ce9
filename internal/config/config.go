// Package config loads service settings from an optional .env file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jesserobertson/cogj/internal/logging"
)

// Config is the cogj-server configuration.
type Config struct {
	// COGJURL is the container served when a request names none.
	COGJURL            string
	MaxFeaturesPerPage uint64
	Workers            int
	HeaderPrefix       uint64
	// Environment "development" limits unbounded queries to one chunk.
	Environment  string
	ListenAddr   string
	ServiceTitle string

	RedisAddr string
	RedisPass string
	RedisDB   int
	HeaderTTL time.Duration

	// CacheBytes sizes the in-process range cache; 0 disables it.
	CacheBytes int64
	// FetchRate limits outbound range requests per second; 0 is unlimited.
	FetchRate float64

	Log logging.Config
}

// Development reports whether the service runs in development mode.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Preview is the number of chunks an unbounded query returns.
func (c *Config) Preview() int {
	if c.Development() {
		return 1
	}
	return 0
}

// Load reads .env files (missing files are ignored), then the environment.
// Variables already set in the environment win over .env values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	c := &Config{
		COGJURL:      os.Getenv("COGJ_URL"),
		Environment:  envOr("ENVIRONMENT", "production"),
		ListenAddr:   envOr("LISTEN_ADDR", ":8080"),
		ServiceTitle: envOr("SERVICE_TITLE", "COGJ Web Feature Service"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisPass:    os.Getenv("REDIS_PASS"),
		Log: logging.Config{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
			Output: envOr("LOG_OUTPUT", "stderr"),
		},
	}

	var err error
	if c.MaxFeaturesPerPage, err = parseUint("MAX_FEATURES_PER_PAGE", 100); err != nil {
		return nil, err
	}
	if c.MaxFeaturesPerPage == 0 {
		return nil, fmt.Errorf("config: MAX_FEATURES_PER_PAGE must be positive")
	}
	workers, err := parseUint("WORKERS", 4)
	if err != nil {
		return nil, err
	}
	c.Workers = int(workers)
	if c.HeaderPrefix, err = parseUint("HEADER_PREFIX", 10000); err != nil {
		return nil, err
	}
	db, err := parseUint("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	c.RedisDB = int(db)
	cacheBytes, err := parseUint("CACHE_BYTES", 64<<20)
	if err != nil {
		return nil, err
	}
	c.CacheBytes = int64(cacheBytes)

	if v := os.Getenv("HEADER_TTL"); v != "" {
		if c.HeaderTTL, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("config: HEADER_TTL: %w", err)
		}
	} else {
		c.HeaderTTL = time.Hour
	}
	if v := os.Getenv("FETCH_RATE"); v != "" {
		if c.FetchRate, err = strconv.ParseFloat(v, 64); err != nil || c.FetchRate < 0 {
			return nil, fmt.Errorf("config: FETCH_RATE %q is not a non-negative number", v)
		}
	}
	return c, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseUint(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
