// Package ratelimit implements the per-user token-bucket limiter that gates
// inbound requests (spec §5). Limiter state lives in-process; cross-instance
// correctness is not guaranteed, which is acceptable because the limits are
// advisory, not a security boundary.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config controls the token-bucket shape applied to every user.
type Config struct {
	// PerMinute is the sustained request rate. Defaults to 100 (production).
	PerMinute int

	// Burst is the bucket size. Defaults to PerMinute when zero, so a user
	// can spend a full minute's allowance instantly after being idle.
	Burst int
}

// DefaultProductionConfig matches spec §5's "100/min in production" default.
func DefaultProductionConfig() Config {
	return Config{PerMinute: 100}
}

// DefaultDevelopmentConfig matches spec §5's "1000/min in development" default.
func DefaultDevelopmentConfig() Config {
	return Config{PerMinute: 1000}
}

// Limiter gates requests per user with an independent token bucket each.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

// New builds a Limiter from cfg, filling in defaults for zero values.
func New(cfg Config) *Limiter {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 100
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = perMinute
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		perSec:  rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
	}
}

// Allow reports whether userID may proceed right now, consuming a token if so.
func (l *Limiter) Allow(userID string) bool {
	return l.bucketFor(userID).Allow()
}

// RetryAfterSeconds estimates the wait, in whole seconds, before userID's
// next request would be allowed. Used to populate the RATE_LIMITED error's
// retryAfter hint (spec §7).
func (l *Limiter) RetryAfterSeconds(userID string) int {
	r := l.bucketFor(userID).Reserve()
	defer r.Cancel()
	delay := r.Delay()
	if delay <= 0 {
		return 0
	}
	secs := int(delay.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (l *Limiter) bucketFor(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[userID]
	if !ok {
		b = rate.NewLimiter(l.perSec, l.burst)
		l.buckets[userID] = b
	}
	return b
}

// Reset drops userID's bucket, giving it a fresh allowance. Used by tests
// and by admin tooling; not part of the request path.
func (l *Limiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, userID)
}
