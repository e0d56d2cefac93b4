// Package config loads the core's configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Debug switches logging to debug level.
	Debug bool

	// DatabaseURL is a postgres:// DSN, or a SQLite path for local runs.
	DatabaseURL string

	// Worker intervals.
	MatchInterval     time.Duration
	LiquidityInterval time.Duration
	StateInterval     time.Duration
	ResolverInterval  time.Duration

	// LiquidityMinAge is how long a user order must sit unmatched before
	// the liquidity engine will take the other side.
	LiquidityMinAge time.Duration

	// MatchConcurrency bounds the per-event fan-out of one matching pass.
	MatchConcurrency int
}

func Load() (*Config, error) {
	cfg := &Config{
		Debug:             getEnvBool("DEBUG", false),
		DatabaseURL:       getEnv("DATABASE_URL", "data/oddzy.db"),
		MatchInterval:     getEnvDuration("MATCH_INTERVAL", 5*time.Second),
		LiquidityInterval: getEnvDuration("LIQUIDITY_INTERVAL", 20*time.Second),
		StateInterval:     getEnvDuration("STATE_INTERVAL", 5*time.Second),
		ResolverInterval:  getEnvDuration("RESOLVER_INTERVAL", 5*time.Second),
		LiquidityMinAge:   getEnvDuration("LIQUIDITY_MIN_AGE", 20*time.Second),
		MatchConcurrency:  getEnvInt("MATCH_CONCURRENCY", 4),
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
