// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits with an error.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all runtime configuration for the pipeline service.
type Config struct {
	Port                  string
	DatabaseURL           string
	RedisURL              string
	StuckThresholdDays    int // days in one stage before a candidate counts as stuck
	AnalyticsRefreshHours int // how often the snapshot cron fires
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	threshold := 14
	if s := os.Getenv("STUCK_THRESHOLD_DAYS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("STUCK_THRESHOLD_DAYS must be a positive integer, got %q", s)
		}
		threshold = v
	}

	refresh := 6
	if s := os.Getenv("ANALYTICS_REFRESH_HOURS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("ANALYTICS_REFRESH_HOURS must be a positive integer, got %q", s)
		}
		refresh = v
	}

	port := os.Getenv("PIPELINE_PORT")
	if port == "" {
		port = "8083"
	}

	return &Config{
		Port:                  port,
		DatabaseURL:           dbURL,
		RedisURL:              redisURL,
		StuckThresholdDays:    threshold,
		AnalyticsRefreshHours: refresh,
	}, nil
}
