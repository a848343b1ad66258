// Package ratelimit bounds control API requests with per-client token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// bucket refills at rate tokens per second up to capacity.
type bucket struct {
	capacity   float64
	rate       float64
	tokens     float64
	lastRefill time.Time
	lastUsed   time.Time
	mu         sync.Mutex
}

func newBucket(capacity int, rate float64, now time.Time) *bucket {
	return &bucket{
		capacity:   float64(capacity),
		rate:       rate,
		tokens:     float64(capacity),
		lastRefill: now,
		lastUsed:   now,
	}
}

// take refills the bucket, consumes one token when available and reports the
// remaining tokens and the time the bucket is full again.
func (b *bucket) take(now time.Time) (ok bool, remaining int, full time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = min(b.capacity, b.tokens+now.Sub(b.lastRefill).Seconds()*b.rate)
	b.lastRefill = now
	b.lastUsed = now
	if b.tokens >= 1 {
		b.tokens--
		ok = true
	}
	full = now
	if missing := b.capacity - b.tokens; missing > 0 {
		full = now.Add(time.Duration(missing / b.rate * float64(time.Second)))
	}
	return ok, int(b.tokens), full
}

func (b *bucket) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUsed.Before(cutoff)
}

// Info describes the limit applied to one request.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// idleTTL is how long an unused bucket is kept.
const idleTTL = time.Hour

// Limiter keeps one bucket per client, route and method.
type Limiter struct {
	config    *Config
	now       func() time.Time
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewLimiter creates a limiter. A nil config disables limiting.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Limiter{
		config:  cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes a token for clientID on the given route.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Allow[clientID] {
		return true, Info{Allowed: true}
	}

	ep := MatchEndpoint(path, method, l.config.Endpoints)
	if ep == nil {
		ep = &EndpointConfig{Limit: l.config.DefaultLimit, Window: l.config.DefaultWindow}
	}
	if ep.Limit <= 0 || ep.Window <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	b := l.bucket(clientID+" "+method+" "+ep.key(path), ep, now)
	ok, remaining, full := b.take(now)
	info := Info{
		Allowed:   ok,
		Limit:     ep.Limit,
		Remaining: remaining,
		ResetTime: full,
	}
	if !ok {
		// One token arrives after 1/rate seconds.
		info.RetryAfter = time.Duration(float64(time.Second) / b.rate)
	}
	return ok, info
}

func (l *Limiter) bucket(key string, ep *EndpointConfig, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > idleTTL {
		cutoff := now.Add(-idleTTL)
		for k, b := range l.buckets {
			if b.idleSince(cutoff) {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(ep.capacity(), float64(ep.Limit)/ep.Window.Seconds(), now)
		l.buckets[key] = b
	}
	return b
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
