package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/compass-harvester/internal/config"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg *Config) (*Limiter, *clock) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = c.Now
	return l, c
}

func TestBucket_TakeAndRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBucket(3, 1, now)

	for i := 0; i < 3; i++ {
		ok, _, _ := b.take(now)
		require.True(t, ok, "request %d", i+1)
	}
	ok, remaining, full := b.take(now)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, now.Add(3*time.Second), full)

	ok, _, _ = b.take(now.Add(1100 * time.Millisecond))
	assert.True(t, ok)
}

func TestLimiter_DefaultLimit(t *testing.T) {
	l, c := newTestLimiter(&Config{Enabled: true, DefaultLimit: 5, DefaultWindow: time.Minute})

	for i := 0; i < 5; i++ {
		ok, info := l.Allow("10.0.0.1", "/status", "GET")
		require.True(t, ok, "request %d", i+1)
		assert.Equal(t, 5, info.Limit)
		assert.Equal(t, 4-i, info.Remaining)
	}

	ok, info := l.Allow("10.0.0.1", "/status", "GET")
	assert.False(t, ok)
	assert.InDelta(t, float64(12*time.Second), float64(info.RetryAfter), float64(time.Millisecond))

	// Other clients have their own bucket.
	ok, _ = l.Allow("10.0.0.2", "/status", "GET")
	assert.True(t, ok)

	c.Advance(13 * time.Second)
	ok, _ = l.Allow("10.0.0.1", "/status", "GET")
	assert.True(t, ok)
}

func TestLimiter_EndpointLimits(t *testing.T) {
	l, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		Endpoints:     DefaultEndpointConfigs(),
	})

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow("c", "/harvest/start", "POST")
		require.True(t, ok)
	}
	ok, info := l.Allow("c", "/harvest/start", "POST")
	assert.False(t, ok)
	assert.Equal(t, 10, info.Limit)

	// Resume has its own bucket.
	ok, _ = l.Allow("c", "/harvest/resume", "POST")
	assert.True(t, ok)
}

func TestLimiter_PrefixRoutesShareBucket(t *testing.T) {
	l, _ := newTestLimiter(&Config{
		Enabled:   true,
		Endpoints: []EndpointConfig{{Path: "/selection/", Method: "POST", Limit: 2, Window: time.Minute}},
	})

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow("c", fmt.Sprintf("/selection/id-%d", i), "POST")
		require.True(t, ok)
	}
	ok, _ := l.Allow("c", "/selection/id-9", "POST")
	assert.False(t, ok)
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_UnlimitedAndAllowed(t *testing.T) {
	l, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Allow:         map[string]bool{"127.0.0.1": true},
	})

	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("10.0.0.1", "/health", "GET")
		assert.True(t, ok)
		ok, _ = l.Allow("10.0.0.1", "/events", "GET")
		assert.True(t, ok)
		ok, _ = l.Allow("127.0.0.1", "/status", "GET")
		assert.True(t, ok)
	}
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(nil)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("c", "/harvest/start", "POST")
		require.True(t, ok)
	}
}

func TestLimiter_SweepsIdleBuckets(t *testing.T) {
	l, c := newTestLimiter(&Config{Enabled: true, DefaultLimit: 5, DefaultWindow: time.Minute})

	l.Allow("a", "/status", "GET")
	l.Allow("b", "/status", "GET")
	require.Equal(t, 2, l.Len())

	c.Advance(2 * time.Hour)
	l.Allow("c", "/status", "GET")
	assert.Equal(t, 1, l.Len())
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()
	tests := []struct {
		name   string
		path   string
		method string
		limit  int
		isNil  bool
	}{
		{name: "exact", path: "/harvest/start", method: "POST", limit: 10},
		{name: "prefix", path: "/selection/abc", method: "POST", limit: 120},
		{name: "method mismatch", path: "/harvest/start", method: "GET", isNil: true},
		{name: "health", path: "/health", method: "GET", limit: 0},
		{name: "unknown", path: "/items", method: "GET", isNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.isNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.limit, got.Limit)
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimitConfig{
		Enabled: true,
		Limit:   30,
		Window:  time.Minute,
		Allow:   []string{" 127.0.0.1 ", ""},
	})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 30, cfg.DefaultLimit)
	assert.Equal(t, map[string]bool{"127.0.0.1": true}, cfg.Allow)
	assert.NotEmpty(t, cfg.Endpoints)
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 50, DefaultWindow: time.Hour})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "/status", "GET"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
