// Package config loads SDK configuration overrides from environment
// variables.
//
// Required variables (when configuring from the environment):
//   - KESTREL_API_KEY: publishable API key for the Kestrel service.
//
// Optional variables:
//   - KESTREL_API_BASE_URL: base URL of the Kestrel API
//     (default "https://api.kestrel.dev").
//   - KESTREL_REFRESH_INTERVAL: background definition refresh cadence
//     (default "30s", must be > 0 if set).
//   - KESTREL_STALE_WARN_AGE: snapshot age that triggers a staleness warning
//     (default "5m", must be > 0 if set).
//   - KESTREL_FLUSH_INTERVAL: telemetry flush interval (default "10s",
//     must be > 0 if set).
//   - KESTREL_BATCH_SIZE: max telemetry events per batch (default "100",
//     must be > 0 if set).
//   - KESTREL_MAX_RETRIES: retry attempts per failed batch (default "3",
//     must be > 0 if set).
//   - KESTREL_RETRY_INTERVAL: delay between delivery retries (default "1m",
//     must be > 0 if set).
//   - KESTREL_EVENTS_PER_MINUTE: per-fingerprint telemetry budget
//     (default "1", must be > 0 if set).
//   - KESTREL_LOG_LEVEL: minimum log level (default "info").
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL         = "https://api.kestrel.dev"
	defaultRefreshInterval = 30 * time.Second
	defaultStaleWarnAge    = 5 * time.Minute
	defaultFlushInterval   = 10 * time.Second
	defaultBatchSize       = 100
	defaultMaxRetries      = 3
	defaultRetryInterval   = time.Minute
	defaultEventsPerMinute = 1
)

// Config holds the environment-derived SDK configuration.
type Config struct {
	APIKey          string
	BaseURL         string
	RefreshInterval time.Duration
	StaleWarnAge    time.Duration
	FlushInterval   time.Duration
	BatchSize       int
	MaxRetries      int
	RetryInterval   time.Duration
	EventsPerMinute int
	LogLevel        string
}

// Load reads configuration from environment variables, applying defaults
// where appropriate. It returns an error if required variables are missing
// or if optional values fail validation.
func Load() (Config, error) {
	apiKey := strings.TrimSpace(os.Getenv("KESTREL_API_KEY"))
	if apiKey == "" {
		return Config{}, errors.New("KESTREL_API_KEY is required")
	}

	refreshInterval, err := durationEnv("KESTREL_REFRESH_INTERVAL", defaultRefreshInterval)
	if err != nil {
		return Config{}, err
	}
	staleWarnAge, err := durationEnv("KESTREL_STALE_WARN_AGE", defaultStaleWarnAge)
	if err != nil {
		return Config{}, err
	}
	flushInterval, err := durationEnv("KESTREL_FLUSH_INTERVAL", defaultFlushInterval)
	if err != nil {
		return Config{}, err
	}
	retryInterval, err := durationEnv("KESTREL_RETRY_INTERVAL", defaultRetryInterval)
	if err != nil {
		return Config{}, err
	}
	batchSize, err := intEnv("KESTREL_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return Config{}, err
	}
	maxRetries, err := intEnv("KESTREL_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		return Config{}, err
	}
	eventsPerMinute, err := intEnv("KESTREL_EVENTS_PER_MINUTE", defaultEventsPerMinute)
	if err != nil {
		return Config{}, err
	}

	return Config{
		APIKey:          apiKey,
		BaseURL:         envOrDefault("KESTREL_API_BASE_URL", defaultBaseURL),
		RefreshInterval: refreshInterval,
		StaleWarnAge:    staleWarnAge,
		FlushInterval:   flushInterval,
		BatchSize:       batchSize,
		MaxRetries:      maxRetries,
		RetryInterval:   retryInterval,
		EventsPerMinute: eventsPerMinute,
		LogLevel:        envOrDefault("KESTREL_LOG_LEVEL", "info"),
	}, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return parsed, nil
}

func intEnv(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return parsed, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
