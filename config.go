package kestrel

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrelhq/kestrel-go/internal/config"
	"github.com/kestrelhq/kestrel-go/internal/logging"
)

// ErrMissingAPIKey is returned by [New] when no API key is configured.
var ErrMissingAPIKey = errors.New("kestrel: api key is required")

// Config configures a [Client]. Only APIKey is required; every other field
// has a bounded default applied by [New].
type Config struct {
	// APIKey is the publishable key authenticating this client.
	APIKey string

	// BaseURL is the Kestrel API endpoint. Defaults to the hosted service.
	BaseURL string

	// HTTPClient overrides the HTTP client used for all API calls. The
	// default client uses an OpenTelemetry-instrumented transport.
	HTTPClient *http.Client

	// Logger receives SDK diagnostics. The SDK is silent when nil.
	Logger *slog.Logger

	// Registerer receives the SDK's Prometheus collectors. A private
	// registry is used when nil.
	Registerer prometheus.Registerer

	// RefreshInterval is the background definition refresh cadence.
	RefreshInterval time.Duration

	// StaleWarnAge is the definition snapshot age past which the SDK logs a
	// staleness warning while continuing to serve the snapshot.
	StaleWarnAge time.Duration

	// FlushInterval is how long a telemetry event may sit in the buffer
	// before being flushed.
	FlushInterval time.Duration

	// BatchSize is the event count that triggers an immediate flush.
	BatchSize int

	// MaxRetries bounds delivery attempts for a failed event batch.
	MaxRetries int

	// RetryInterval is the delay between delivery retries.
	RetryInterval time.Duration

	// EventsPerMinute caps telemetry events per distinct flag/context pair.
	// Repeated evaluations of the same pair within a minute are served
	// normally but reported only up to this budget.
	EventsPerMinute int
}

// withDefaults returns a copy of c with zero values replaced field by field.
// The configuration schema is closed; there is deliberately no generic
// merge over unknown keys.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.kestrel.dev"
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.StaleWarnAge <= 0 {
		c.StaleWarnAge = 5 * time.Minute
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Minute
	}
	if c.EventsPerMinute <= 0 {
		c.EventsPerMinute = 1
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
	return c
}

// ConfigFromEnv builds a Config from KESTREL_* environment variables. See
// the internal/config package documentation for the variable list. The
// logger writes JSON to stderr at KESTREL_LOG_LEVEL.
func ConfigFromEnv() (Config, error) {
	env, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	return Config{
		APIKey:          env.APIKey,
		BaseURL:         env.BaseURL,
		Logger:          logging.New(env.LogLevel),
		RefreshInterval: env.RefreshInterval,
		StaleWarnAge:    env.StaleWarnAge,
		FlushInterval:   env.FlushInterval,
		BatchSize:       env.BatchSize,
		MaxRetries:      env.MaxRetries,
		RetryInterval:   env.RetryInterval,
		EventsPerMinute: env.EventsPerMinute,
	}, nil
}
