// Package kestrel is the Go SDK for the Kestrel feature-flag and feedback
// service. The client keeps a locally cached snapshot of flag targeting
// rules, evaluates them in-process against caller-supplied context, and
// reports evaluation telemetry back to the service in batches.
//
// Evaluation is fail-safe: an unknown flag key, a fetch failure, or an
// invalid definition yields a disabled feature, never an error or a panic.
package kestrel

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kestrelhq/kestrel-go/internal/api"
	"github.com/kestrelhq/kestrel-go/internal/buffer"
	"github.com/kestrelhq/kestrel-go/internal/cache"
	"github.com/kestrelhq/kestrel-go/internal/core"
	"github.com/kestrelhq/kestrel-go/internal/metrics"
	"github.com/kestrelhq/kestrel-go/internal/ratelimit"
	"github.com/kestrelhq/kestrel-go/internal/tracing"
)

// Feature is the evaluated state of one flag for one context.
type Feature struct {
	// Key is the flag key that was requested.
	Key string

	// Enabled is the targeting decision. False for unknown keys and on
	// evaluation failure.
	Enabled bool

	// TargetingVersion is the rule-set version the decision came from.
	TargetingVersion int

	// Reason explains the remote-config selection outcome.
	Reason Reason

	// ConfigKey and ConfigPayload carry the selected remote-config variant,
	// when the flag has one.
	ConfigKey     string
	ConfigPayload json.RawMessage

	// MissingFields lists context fields referenced by targeting rules but
	// absent from the supplied context.
	MissingFields []string
}

// Client is the Kestrel SDK client. A Client is safe for concurrent use and
// should be created once and shared; Close releases its background
// goroutines.
type Client struct {
	cfg     Config
	api     *api.Client
	cache   *cache.Cache
	buffer  *buffer.Buffer
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics

	cancel      context.CancelFunc
	stopTracing func(context.Context) error
	closeOnce   sync.Once
}

// New creates a Client and starts its background definition refresh loop.
// No definitions are fetched until the first evaluation or an explicit
// Refresh, so New itself performs no network I/O.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cfg = cfg.withDefaults()

	m := metrics.New(cfg.Registerer)
	apiClient := api.NewClient(api.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		HTTPClient: cfg.HTTPClient,
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:     cfg,
		api:     apiClient,
		metrics: m,
		cancel:  cancel,
	}
	c.cache = cache.New(cache.Config{
		RefreshInterval:    cfg.RefreshInterval,
		StaleWarnAge:       cfg.StaleWarnAge,
		MinRefreshInterval: time.Second,
	}, apiClient.FetchDefinitions, cfg.Logger, m)
	c.buffer = buffer.New(buffer.Config{
		MaxSize:       cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryInterval,
	}, apiClient.DeliverEvents, cfg.Logger, m)
	metrics.RegisterQueueMetrics(m.Registry, c.buffer)
	c.limiter = ratelimit.New(ctx, cfg.EventsPerMinute)

	stopTracing, err := tracing.Init(ctx)
	if err != nil {
		cfg.Logger.Warn("tracing setup failed, continuing without it", "error", err)
		stopTracing = func(context.Context) error { return nil }
	}
	c.stopTracing = stopTracing

	c.cache.Start(ctx)
	return c, nil
}

// NewFromEnv creates a Client configured from KESTREL_* environment
// variables.
func NewFromEnv() (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// GetFeature evaluates one flag against evalCtx and reports the evaluation
// as telemetry. Unknown keys and evaluation failures return a disabled
// Feature with ReasonError; no error is ever surfaced to the caller.
func (c *Client) GetFeature(ctx context.Context, key string, evalCtx Context) Feature {
	set, err := c.definitions(ctx)
	if err != nil {
		c.cfg.Logger.Warn("no flag definitions available", "flag", key, "error", err)
		return fallbackFeature(key)
	}
	flag, ok := set.Flag(key)
	if !ok {
		c.cfg.Logger.Debug("unknown flag key", "flag", key)
		return fallbackFeature(key)
	}
	return c.evaluateKnown(flag, evalCtx)
}

// GetFeatures evaluates every known flag against evalCtx. Each evaluation
// is reported as telemetry under the same per-flag budget as GetFeature.
func (c *Client) GetFeatures(ctx context.Context, evalCtx Context) map[string]Feature {
	set, err := c.definitions(ctx)
	if err != nil {
		c.cfg.Logger.Warn("no flag definitions available", "error", err)
		return map[string]Feature{}
	}
	features := make(map[string]Feature, set.Len())
	for _, key := range set.Keys() {
		flag, _ := set.Flag(key)
		features[key] = c.evaluateKnown(flag, evalCtx)
	}
	return features
}

// IsEnabled evaluates one flag and additionally reports a check event, the
// signal the Kestrel dashboard uses for "is this flag still referenced".
func (c *Client) IsEnabled(ctx context.Context, key string, evalCtx Context) bool {
	set, err := c.definitions(ctx)
	if err != nil {
		c.cfg.Logger.Warn("no flag definitions available", "flag", key, "error", err)
		return false
	}
	flag, ok := set.Flag(key)
	if !ok {
		c.cfg.Logger.Debug("unknown flag key", "flag", key)
		return false
	}
	feature := c.evaluateKnown(flag, evalCtx)
	if c.limiter.Allow(fingerprint(buffer.EventCheck, key, evalCtx)) {
		c.buffer.Add(checkEvent(flag, feature.Enabled))
	} else {
		c.metrics.RecordSuppressed()
	}
	return feature.Enabled
}

// Track records a business event attributed to evalCtx.
func (c *Client) Track(eventName string, evalCtx Context, attrs map[string]any) {
	if eventName == "" {
		return
	}
	c.buffer.Add(trackEvent(eventName, attrs, evalCtx))
}

// User reports attributes for a user so the Kestrel dashboard can show who
// is behind each evaluation. Identical updates within the telemetry budget
// window are suppressed.
func (c *Client) User(userID string, attrs map[string]any) {
	if userID == "" {
		return
	}
	if !c.limiter.Allow(fingerprint(buffer.EventUser, userID, Context{User: attrs})) {
		c.metrics.RecordSuppressed()
		return
	}
	c.buffer.Add(userEvent(userID, attrs))
}

// Company reports attributes for a company. Identical updates within the
// telemetry budget window are suppressed.
func (c *Client) Company(companyID string, attrs map[string]any) {
	if companyID == "" {
		return
	}
	if !c.limiter.Allow(fingerprint(buffer.EventCompany, companyID, Context{Company: attrs})) {
		c.metrics.RecordSuppressed()
		return
	}
	c.buffer.Add(companyEvent(companyID, attrs))
}

// Refresh forces a definition fetch, bypassing the refresh interval but not
// the on-demand throttle. Concurrent callers share one fetch.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.cache.Refresh(ctx)
	return err
}

// Flush delivers all buffered telemetry immediately.
func (c *Client) Flush(ctx context.Context) error {
	return c.buffer.Flush(ctx)
}

// Close stops the background refresh loop and telemetry timers, then
// delivers remaining buffered events once under the caller's deadline.
// Close is idempotent.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.cache.Stop()
		c.limiter.Stop()
		c.cancel()
		err = c.buffer.Close(ctx)
		if terr := c.stopTracing(ctx); terr != nil {
			c.cfg.Logger.Warn("tracing shutdown failed", "error", terr)
		}
	})
	return err
}

// definitions returns the cached snapshot, fetching synchronously only when
// no fetch has ever succeeded.
func (c *Client) definitions(ctx context.Context) (core.DefinitionSet, error) {
	if set, ok := c.cache.Get(); ok {
		return set, nil
	}
	return c.cache.Refresh(ctx)
}

// evaluateKnown runs targeting and variant selection for a flag the
// snapshot contains, recording metrics and enqueueing one evaluate event
// per (flag, context) budget window.
func (c *Client) evaluateKnown(flag FlagDefinition, evalCtx Context) Feature {
	res, err := core.Evaluate(flag, evalCtx)
	if err != nil {
		c.cfg.Logger.Warn("flag evaluation failed", "flag", flag.Key, "error", err)
		return fallbackFeature(flag.Key)
	}
	c.metrics.RecordEvaluation(flag.Key, res.Value)

	variant, err := core.SelectVariant(flag.Variants, evalCtx)
	if err != nil {
		c.cfg.Logger.Warn("variant selection failed", "flag", flag.Key, "error", err)
		variant = VariantResult{Reason: ReasonError}
	}
	c.metrics.RecordVariantSelection(string(variant.Reason))

	if c.limiter.Allow(fingerprint(buffer.EventEvaluate, flag.Key, evalCtx)) {
		c.buffer.Add(evaluateEvent(flag, res, variant))
	} else {
		c.metrics.RecordSuppressed()
	}

	missing := res.MissingFields
	for _, field := range variant.MissingFields {
		if !containsField(missing, field) {
			missing = append(missing, field)
		}
	}

	return Feature{
		Key:              flag.Key,
		Enabled:          res.Value,
		TargetingVersion: flag.TargetingVersion,
		Reason:           variant.Reason,
		ConfigKey:        variant.Key,
		ConfigPayload:    variant.Payload,
		MissingFields:    missing,
	}
}

func fallbackFeature(key string) Feature {
	return Feature{Key: key, Reason: ReasonError}
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
