// Package ratelimit admits or rejects judging requests per user in fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute
	keyPrefix     = "judge:rate:user:"
)

// CounterStore increments a counter and starts its expiry on the first hit,
// atomically with respect to concurrent callers.
type CounterStore interface {
	IncrementWithExpiry(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Decision is the outcome of one admission attempt.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

// Config holds limiter settings.
type Config struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Limiter implements a fixed-window counter keyed by user.
type Limiter struct {
	store  CounterStore
	limit  int
	window time.Duration
}

// NewLimiter creates a limiter; zero config values take the defaults (60 per minute).
func NewLimiter(store CounterStore, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Limiter{store: store, limit: cfg.Limit, window: cfg.Window}, nil
}

// Admit counts one attempt for userID. Rejected attempts stay counted.
// A store failure is returned as an error; callers must not treat it as an admission.
func (l *Limiter) Admit(ctx context.Context, userID int64) (Decision, error) {
	count, ttl, err := l.store.IncrementWithExpiry(ctx, Key(userID), l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate counter: %w", err)
	}

	d := Decision{
		Allowed: count <= int64(l.limit),
		Count:   count,
		Limit:   l.limit,
		Window:  l.window,
	}
	if !d.Allowed {
		d.RetryAfter = ttl
		if d.RetryAfter <= 0 || d.RetryAfter > l.window {
			d.RetryAfter = l.window
		}
	}
	return d, nil
}

// Key returns the counter key for a user.
func Key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}
