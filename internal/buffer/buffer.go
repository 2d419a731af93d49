// Package buffer implements the telemetry dispatch buffer: events are
// accumulated in memory, flushed in batches on a size or time threshold, and
// retried a bounded number of times on delivery failure. Adding an event
// never blocks the caller and delivery failures never surface to it.
package buffer

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelhq/kestrel-go/internal/metrics"
)

// Event types understood by the Kestrel event sink.
const (
	EventEvaluate = "evaluate"
	EventCheck    = "check"
	EventTrack    = "track"
	EventUser     = "user"
	EventCompany  = "company"
)

// Event is a single telemetry event. The ID is assigned at Add time so the
// sink can deduplicate retried deliveries.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// DeliverFunc hands a batch to the event sink. A returned error marks the
// whole batch as failed.
type DeliverFunc func(ctx context.Context, events []Event) error

// Config tunes the buffer thresholds.
type Config struct {
	// MaxSize triggers an immediate flush once this many events are pending.
	MaxSize int
	// FlushInterval triggers a flush this long after the first unflushed
	// event was added.
	FlushInterval time.Duration
	// MaxRetries bounds how often a failed batch is retried before its
	// events are dropped.
	MaxRetries int
	// RetryInterval is the delay between retry attempts.
	RetryInterval time.Duration
	// FlushTimeout bounds the delivery call for automatic (timer/size
	// triggered) flushes.
	FlushTimeout time.Duration
}

// DefaultConfig returns the buffer defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:       100,
		FlushInterval: 10 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Minute,
		FlushTimeout:  10 * time.Second,
	}
}

type retryEntry struct {
	triesLeft int
	event     Event
}

// Buffer accumulates telemetry events and flushes them in FIFO batches.
type Buffer struct {
	cfg     Config
	deliver DeliverFunc
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	pending    []Event
	retries    []retryEntry
	flushTimer *time.Timer
	retryTimer *time.Timer
	closed     bool
}

// New creates a buffer that hands batches to deliver. logger may be nil;
// metrics may be nil.
func New(cfg Config, deliver DeliverFunc, logger *slog.Logger, m *metrics.Metrics) *Buffer {
	def := DefaultConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Buffer{
		cfg:     cfg,
		deliver: deliver,
		logger:  logger,
		metrics: m,
		pending: make([]Event, 0, cfg.MaxSize),
	}
}

// Add appends an event to the buffer and returns immediately. A flush is
// started in the background when the buffer reaches MaxSize; otherwise a
// timer is armed so the event is flushed within FlushInterval.
func (b *Buffer) Add(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, event)
	full := len(b.pending) >= b.cfg.MaxSize
	if !full && b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.cfg.FlushInterval, b.autoFlush)
	}
	b.mu.Unlock()

	b.metrics.RecordEnqueued()

	if full {
		go b.autoFlush()
	}
}

// Flush drains all pending events in one batch. On delivery failure the
// batch moves to the retry pool and the retry timer is armed; the error is
// also returned so explicit callers can observe it.
func (b *Buffer) Flush(ctx context.Context) error {
	batch := b.cutBatch()
	if len(batch) == 0 {
		return nil
	}

	err := b.deliver(ctx, batch)
	b.metrics.RecordFlush(err == nil)
	if err == nil {
		return nil
	}

	b.logger.Warn("event flush failed, scheduling retry",
		"events", len(batch), "error", err)
	b.enqueueRetries(batch)
	return err
}

// PendingCount reports the number of events awaiting their first flush.
func (b *Buffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// RetryCount reports the number of events in the retry pool.
func (b *Buffer) RetryCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.retries)
}

// Close stops all timers and performs one final flush with the caller's
// deadline. Events still in the retry pool after the final attempt are
// dropped.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	if b.retryTimer != nil {
		b.retryTimer.Stop()
		b.retryTimer = nil
	}
	// Fold retries into one last batch, oldest first.
	final := make([]Event, 0, len(b.retries)+len(b.pending))
	for _, r := range b.retries {
		final = append(final, r.event)
	}
	final = append(final, b.pending...)
	b.retries = nil
	b.pending = nil
	b.mu.Unlock()

	if len(final) == 0 {
		return nil
	}
	err := b.deliver(ctx, final)
	b.metrics.RecordFlush(err == nil)
	if err != nil {
		b.metrics.RecordDropped(len(final))
		b.logger.Warn("final flush failed, dropping events",
			"events", len(final), "error", err)
	}
	return err
}

// cutBatch atomically takes ownership of the pending sequence and disarms
// the flush timer.
func (b *Buffer) cutBatch() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make([]Event, 0, b.cfg.MaxSize)
	return batch
}

func (b *Buffer) enqueueRetries(batch []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.metrics.RecordDropped(len(batch))
		return
	}
	for _, event := range batch {
		b.retries = append(b.retries, retryEntry{triesLeft: b.cfg.MaxRetries, event: event})
	}
	if b.retryTimer == nil {
		b.retryTimer = time.AfterFunc(b.cfg.RetryInterval, b.retryFlush)
	}
}

func (b *Buffer) autoFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
	defer cancel()
	_ = b.Flush(ctx)
}

// retryFlush attempts delivery of the whole retry pool. Entries that fail
// MaxRetries times are dropped; the timer is re-armed while entries remain.
func (b *Buffer) retryFlush() {
	b.mu.Lock()
	if b.closed || len(b.retries) == 0 {
		b.retryTimer = nil
		b.mu.Unlock()
		return
	}
	pool := b.retries
	b.retries = nil
	b.mu.Unlock()

	batch := make([]Event, len(pool))
	for i, r := range pool {
		batch[i] = r.event
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
	defer cancel()
	err := b.deliver(ctx, batch)
	b.metrics.RecordFlush(err == nil)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		// Entries enqueued while the retry delivery was in flight still need
		// a timer; the one that fired is spent.
		b.retryTimer = nil
		if len(b.retries) > 0 && !b.closed {
			b.retryTimer = time.AfterFunc(b.cfg.RetryInterval, b.retryFlush)
		}
		return
	}

	dropped := 0
	for _, r := range pool {
		r.triesLeft--
		if r.triesLeft <= 0 {
			dropped++
			continue
		}
		b.retries = append(b.retries, r)
	}
	if dropped > 0 {
		b.metrics.RecordDropped(dropped)
		b.logger.Warn("dropping events after exhausting retries", "events", dropped)
	}
	if len(b.retries) > 0 && !b.closed {
		b.retryTimer = time.AfterFunc(b.cfg.RetryInterval, b.retryFlush)
	} else {
		b.retryTimer = nil
	}
}
