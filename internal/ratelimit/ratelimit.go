// Package ratelimit provides a per-key sliding-window limiter used to
// suppress duplicate telemetry events. Repeated IsEnabled checks for the same
// (flag, context) fingerprint would otherwise emit an event per call.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxPerWindow is the default number of events allowed per key in
	// a single window.
	DefaultMaxPerWindow = 1

	// DefaultMaxTrackedKeys bounds the number of fingerprints tracked so the
	// limiter cannot grow without limit.
	DefaultMaxTrackedKeys = 10000

	window          = time.Minute
	cleanupInterval = time.Minute
	staleThreshold  = 5 * time.Minute
)

type keyEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// Limiter tracks event timestamps per key over a trailing window.
type Limiter struct {
	mu             sync.Mutex
	entries        map[string]*keyEntry
	maxPerWindow   int
	maxTrackedKeys int
	now            func() time.Time
	cancel         context.CancelFunc
}

// New creates a sliding-window limiter allowing maxPerWindow events per key
// per minute. Pass 0 to use DefaultMaxPerWindow. A background goroutine
// evicts stale keys until Stop is called or ctx is cancelled.
func New(ctx context.Context, maxPerWindow int) *Limiter {
	if maxPerWindow <= 0 {
		maxPerWindow = DefaultMaxPerWindow
	}
	ctx, cancel := context.WithCancel(ctx)
	l := &Limiter{
		entries:        make(map[string]*keyEntry),
		maxPerWindow:   maxPerWindow,
		maxTrackedKeys: DefaultMaxTrackedKeys,
		now:            time.Now,
		cancel:         cancel,
	}
	go l.cleanup(ctx)
	return l
}

// Allow reports whether another event for key fits inside the window. When it
// does, the event is recorded; when it does not, nothing is recorded and the
// caller should drop the event.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= l.maxTrackedKeys {
			l.evictOldestLocked()
		}
		e = &keyEntry{}
		l.entries[key] = e
	}
	e.lastSeen = now

	// Expired timestamps are evicted lazily, only when the key is checked.
	cutoff := now.Add(-window)
	live := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	e.timestamps = live

	if len(e.timestamps) >= l.maxPerWindow {
		return false
	}
	e.timestamps = append(e.timestamps, now)
	return true
}

// Stop cancels the background cleanup goroutine.
func (l *Limiter) Stop() {
	l.cancel()
}

func (l *Limiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.removeStale()
		}
	}
}

func (l *Limiter) removeStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > staleThreshold {
			delete(l.entries, key)
		}
	}
}

func (l *Limiter) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for key, e := range l.entries {
		if first || e.lastSeen.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastSeen
			first = false
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}
