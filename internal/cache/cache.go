// Package cache implements the refresh-ahead definition cache. The current
// rule-set snapshot is replaced wholesale on each successful fetch; readers
// never observe a partial update, and a failed refresh leaves the previous
// snapshot intact.
package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/kestrelhq/kestrel-go/internal/core"
	"github.com/kestrelhq/kestrel-go/internal/metrics"
)

// FetchFunc retrieves a fresh definition set from the definitions source.
type FetchFunc func(ctx context.Context) (core.DefinitionSet, error)

// Config tunes refresh cadence and staleness reporting.
type Config struct {
	// RefreshInterval is the cadence of the background refresh loop.
	RefreshInterval time.Duration
	// StaleWarnAge is the snapshot age past which Get logs a warning. The
	// snapshot is still returned; staleness is advisory, not blocking.
	StaleWarnAge time.Duration
	// MinRefreshInterval throttles on-demand Refresh calls. Zero disables
	// the throttle.
	MinRefreshInterval time.Duration
}

// DefaultConfig returns the cache defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:    30 * time.Second,
		StaleWarnAge:       5 * time.Minute,
		MinRefreshInterval: time.Second,
	}
}

// Cache is a refresh-ahead cache for the flag definition snapshot.
type Cache struct {
	cfg     Config
	fetch   FetchFunc
	logger  *slog.Logger
	metrics *metrics.Metrics

	group    singleflight.Group
	throttle *rate.Limiter

	mu          sync.Mutex
	snapshot    *core.DefinitionSet
	fetchedAt   time.Time
	staleWarned bool
	cancel      context.CancelFunc

	now func() time.Time
}

// New creates a cache backed by fetch. logger and m may be nil. The cache
// performs no I/O until Refresh or Start is called.
func New(cfg Config, fetch FetchFunc, logger *slog.Logger, m *metrics.Metrics) *Cache {
	def := DefaultConfig()
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.StaleWarnAge <= 0 {
		cfg.StaleWarnAge = def.StaleWarnAge
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	c := &Cache{
		cfg:     cfg,
		fetch:   fetch,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	if cfg.MinRefreshInterval > 0 {
		c.throttle = rate.NewLimiter(rate.Every(cfg.MinRefreshInterval), 1)
	}
	return c
}

// Get returns the last successfully fetched snapshot, even when stale. The
// boolean is false only if no fetch has ever succeeded. Crossing the
// stale-warning threshold logs once per refresh cycle.
func (c *Cache) Get() (core.DefinitionSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot == nil {
		return core.DefinitionSet{}, false
	}

	age := c.now().Sub(c.fetchedAt)
	c.metrics.SetDefinitionAge(age)
	if age > c.cfg.StaleWarnAge && !c.staleWarned {
		c.staleWarned = true
		c.logger.Warn("flag definitions are stale, serving last known snapshot",
			"age", age, "stale_after", c.cfg.StaleWarnAge)
	}
	return *c.snapshot, true
}

// FetchedAt returns the time of the last successful fetch, zero if none.
func (c *Cache) FetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt
}

// Refresh fetches a fresh definition set and atomically replaces the
// snapshot. Concurrent callers share a single in-flight fetch, and callers
// arriving faster than MinRefreshInterval are served the current snapshot
// without a network call. On failure the previous snapshot is retained and
// the error returned.
func (c *Cache) Refresh(ctx context.Context) (core.DefinitionSet, error) {
	if c.throttle != nil && !c.throttle.Allow() {
		if set, ok := c.Get(); ok {
			return set, nil
		}
	}

	v, err, _ := c.group.Do("definitions", func() (any, error) {
		set, err := c.fetch(ctx)
		c.metrics.RecordDefinitionLoad(err == nil)
		if err != nil {
			return nil, fmt.Errorf("fetch definitions: %w", err)
		}

		c.mu.Lock()
		c.snapshot = &set
		c.fetchedAt = c.now()
		c.staleWarned = false
		c.mu.Unlock()
		return set, nil
	})
	if err != nil {
		c.logger.Error("definition refresh failed", "error", err)
		return core.DefinitionSet{}, err
	}
	return v.(core.DefinitionSet), nil
}

// Start launches the background refresh loop. It returns immediately; the
// loop runs until Stop is called or ctx is cancelled. Refresh failures are
// logged and retried on the next tick.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(ctx, c.cfg.RefreshInterval)
				_, _ = c.Refresh(refreshCtx)
				cancel()
			}
		}
	}()
}

// Stop cancels the background refresh loop.
func (c *Cache) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
