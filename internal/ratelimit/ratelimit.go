// Package ratelimit throttles requests per key with a sliding window log.
//
// The limiter holds no global state: a Store is constructed once at startup
// and handed to whoever needs it.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int       // requests left in the current window
	Reset     time.Time // when the oldest counted request leaves the window
}

// RetryAfter is how long a rejected caller should wait.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.Reset.After(now) {
		return 0
	}
	return r.Reset.Sub(now)
}

// Store records requests and decides whether another one fits in the window.
// Rejected requests are not counted.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Limiter applies one limit and window to any number of keys.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// New returns a limiter admitting limit requests per key per window.
func New(store Store, limit int, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: nil store")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("ratelimit: limit and window must be positive")
	}
	return &Limiter{store: store, limit: limit, window: window}, nil
}

// Allow counts a request for key if it fits.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	return l.store.Allow(ctx, key, l.limit, l.window)
}

// Limit is the number of requests admitted per window.
func (l *Limiter) Limit() int { return l.limit }

// Window is the sliding window length.
func (l *Limiter) Window() time.Duration { return l.window }
