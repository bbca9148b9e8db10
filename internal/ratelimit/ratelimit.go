// Package ratelimit enforces per-(subject, action) fixed-window request
// caps, with a local absorbing buffer in front of the Store increment.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mallquest/mallquest/internal/config"
)

// storeIncrementer is the Store dependency, narrowed to what the limiter needs.
type storeIncrementer interface {
	RateLimitIncr(ctx context.Context, tenantID, subject, action string, windowStart time.Time, delta int64) (int64, error)
}

type bucketKey struct {
	subject string
	action  string
}

type localBucket struct {
	windowStart time.Time
	pending     int64 // increments absorbed locally, not yet flushed
	flushed     int64 // last known Store count as of the last flush
	lastFlush   time.Time
}

// Limiter is the fixed-window rate limiter. One Limiter instance is shared
// process-wide; its local buffer amortizes Store increments across bursts.
type Limiter struct {
	store  storeIncrementer
	cfg    config.RateLimitConfig
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[bucketKey]*localBucket

	storeHealthy bool
	unhealthySince time.Time
}

// New constructs a Limiter bound to the given Store.
func New(store storeIncrementer, cfg config.RateLimitConfig, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:        store,
		cfg:          cfg,
		logger:       logger,
		buckets:      make(map[bucketKey]*localBucket),
		storeHealthy: true,
	}
}

// windowFor returns the window config for an action, with a safe default.
func (l *Limiter) windowFor(action string) config.ActionLimit {
	if a, ok := l.cfg.Actions[action]; ok {
		return a
	}
	return config.ActionLimit{Window: time.Minute, Max: 60, FailOpen: true}
}

// Allow reports whether (tenantID, subject, action) is within its window cap.
// On Store unavailability it falls back to the local counter alone; past a
// grace period it applies the action's declared fail-open/fail-closed policy.
func (l *Limiter) Allow(ctx context.Context, tenantID, subject, action string) (bool, error) {
	limit := l.windowFor(action)
	windowStart := floorWindow(time.Now(), limit.Window)
	key := bucketKey{subject: subject, action: action}

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok || b.windowStart.Before(windowStart) {
		b = &localBucket{windowStart: windowStart}
		l.buckets[key] = b
	}
	b.pending++
	localTotal := b.flushed + b.pending
	shouldFlush := b.pending >= int64(l.cfg.FlushMaxCount) || time.Since(b.lastFlush) >= l.cfg.FlushInterval
	l.mu.Unlock()

	if localTotal > limit.Max {
		return false, nil
	}

	if shouldFlush {
		if err := l.flush(ctx, tenantID, key, windowStart); err != nil {
			l.noteStoreFailure()
			if l.failClosed(limit) {
				return false, nil
			}
			return localTotal <= limit.Max, nil
		}
		l.noteStoreSuccess()
	}

	return true, nil
}

func (l *Limiter) flush(ctx context.Context, tenantID string, key bucketKey, windowStart time.Time) error {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok || b.pending == 0 {
		l.mu.Unlock()
		return nil
	}
	delta := b.pending
	l.mu.Unlock()

	count, err := l.store.RateLimitIncr(ctx, tenantID, key.subject, key.action, windowStart, delta)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok = l.buckets[key]
	if !ok || b.windowStart.After(windowStart) {
		return nil
	}
	b.flushed = count
	b.pending -= delta
	if b.pending < 0 {
		b.pending = 0
	}
	b.lastFlush = time.Now()
	return nil
}

func (l *Limiter) noteStoreFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.storeHealthy {
		l.storeHealthy = false
		l.unhealthySince = time.Now()
	}
}

func (l *Limiter) noteStoreSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.storeHealthy = true
}

const gracePeriod = 10 * time.Second

// failClosed reports whether, given current Store health and the action's
// declared policy, a request should be rejected rather than allowed.
func (l *Limiter) failClosed(limit config.ActionLimit) bool {
	l.mu.Lock()
	unhealthySince := l.unhealthySince
	healthy := l.storeHealthy
	l.mu.Unlock()

	if healthy {
		return false
	}
	if time.Since(unhealthySince) < gracePeriod {
		return false
	}
	return !limit.FailOpen
}

func floorWindow(t time.Time, window time.Duration) time.Time {
	if window <= 0 {
		window = time.Minute
	}
	return t.Truncate(window)
}
