// Package ratelimit bounds how often each tenant key may call tenant-scoped
// operations, using strict fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/playstack/pkg/logger"
	"github.com/okian/playstack/pkg/metrics"
)

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Option applies a configuration option to the Limiter.
type Option func(*Limiter)

// WithStore injects the bucket store.
func WithStore(s Store) Option {
	return func(l *Limiter) {
		if s != nil {
			l.store = s
		}
	}
}

// WithClock injects the clock.
func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Limiter) {
		if lg != nil {
			l.log = lg
		}
	}
}

// WithFailOpen admits requests when the store errors instead of returning
// ErrStoreUnavailable.
func WithFailOpen(open bool) Option {
	return func(l *Limiter) {
		l.failOpen = open
	}
}

// Limiter is a fixed-window token bucket keyed by arbitrary strings.
type Limiter struct {
	points   int
	window   time.Duration
	store    Store
	clock    clockwork.Clock
	log      logger.Logger
	failOpen bool
}

// New creates a Limiter granting points calls per window. Non-positive
// values are raised to 1 call and 1 second.
func New(points int, window time.Duration, opts ...Option) *Limiter {
	if points < 1 {
		points = 1
	}
	if window <= 0 {
		window = time.Second
	}
	l := &Limiter{
		points: points,
		window: window,
		store:  NewMemoryStore(),
		clock:  clockwork.NewRealClock(),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewTenantLimiter is New with the default store and clock.
func NewTenantLimiter(points int, window time.Duration) *Limiter {
	return New(points, window)
}

// Points returns the calls granted per window.
func (l *Limiter) Points() int { return l.points }

// Window returns the window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Check consumes one token for key if any is left. A new window starts when
// the key has no bucket or the current window has passed; a denied call
// never moves ResetAt. The error is non-nil only for store failures.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	if strings.TrimSpace(key) == "" {
		return Result{}, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	now := l.clock.Now()

	var allowed bool
	b, err := l.store.Update(ctx, key, func(cur Bucket, exists bool) Bucket {
		if !exists || now.After(cur.ResetAt) {
			allowed = true
			return Bucket{Tokens: l.points - 1, ResetAt: now.Add(l.window)}
		}
		if cur.Tokens <= 0 {
			allowed = false
			return cur
		}
		allowed = true
		cur.Tokens--
		return cur
	})
	if err != nil {
		metrics.RecordLimiterStoreError()
		if l.failOpen {
			l.log.Warn(ctx, "rate limit store failed, admitting", logger.String("key", key), logger.Error(err))
			return Result{Allowed: true, ResetAt: now.Add(l.window)}, nil
		}
		return Result{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	metrics.RecordLimiterDecision(allowed)
	if ms, ok := l.store.(*MemoryStore); ok {
		metrics.UpdateLimiterBuckets(ms.Len())
	}
	remaining := b.Tokens
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: allowed, Remaining: remaining, ResetAt: b.ResetAt}, nil
}

// Guard is Check that turns a denial into a *LimitError carrying status 429
// and the window's reset time in epoch milliseconds.
func (l *Limiter) Guard(ctx context.Context, key string) (Result, error) {
	res, err := l.Check(ctx, key)
	if err != nil {
		return res, err
	}
	if !res.Allowed {
		l.log.Debug(ctx, "rate limited", logger.String("key", key), logger.Time("reset_at", res.ResetAt))
		return res, newLimitError(key, res.ResetAt.UnixMilli())
	}
	return res, nil
}

// Prune drops expired buckets when the store supports it.
func (l *Limiter) Prune() {
	if ms, ok := l.store.(*MemoryStore); ok {
		metrics.UpdateLimiterBuckets(ms.Prune(l.clock.Now()))
	}
}
