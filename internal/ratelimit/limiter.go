// Package ratelimit throttles API clients: a token bucket per client plus
// the abuse heuristics applied in restrained mode.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures per-client rate limiting.
type Config struct {
	// RequestsPerMinute is the sustained rate per client.
	RequestsPerMinute int
	// Burst is the number of requests allowed at once.
	Burst int
	// Enabled controls whether rate limiting is active.
	Enabled bool
}

// DefaultConfig returns 60 requests per minute with a burst of 10.
func DefaultConfig() Config {
	return Config{RequestsPerMinute: 60, Burst: 10, Enabled: true}
}

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	enabled bool
	maxKeys int
	now     func() time.Time
}

// NewLimiter creates a limiter. Zero values fall back to DefaultConfig.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		burst:   config.Burst,
		enabled: config.Enabled,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Allow reports whether a request for key may proceed and consumes a token
// if so.
func (l *Limiter) Allow(key string) bool {
	if l == nil || !l.enabled {
		return true
	}
	return l.bucket(key).AllowN(l.now(), 1)
}

// WaitTime returns how long key must wait for its next token.
func (l *Limiter) WaitTime(key string) time.Duration {
	if l == nil || !l.enabled {
		return 0
	}
	now := l.now()
	r := l.bucket(key).ReserveN(now, 1)
	defer r.CancelAt(now)
	return r.DelayFrom(now)
}

// Reset forgets a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}
	b := rate.NewLimiter(l.limit, l.burst)
	l.buckets[key] = b
	return b
}

// prune drops buckets that have refilled almost completely, which means the
// client has been idle.
func (l *Limiter) prune() {
	now := l.now()
	threshold := float64(l.burst) * 0.9
	for key, b := range l.buckets {
		if b.TokensAt(now) >= threshold {
			delete(l.buckets, key)
		}
	}
}
