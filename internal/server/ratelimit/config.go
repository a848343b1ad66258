package ratelimit

import (
	"strings"
	"time"

	"github.com/jonathan/compass-harvester/internal/config"
)

// EndpointConfig limits one route.
type EndpointConfig struct {
	Path   string // exact path, or a prefix when it ends with "/"
	Method string
	Limit  int // requests per Window; zero means unlimited
	Window time.Duration
	Burst  int // defaults to Limit
}

func (e *EndpointConfig) capacity() int {
	if e.Burst > 0 {
		return e.Burst
	}
	return e.Limit
}

// key groups every path under a prefix route into one bucket.
func (e *EndpointConfig) key(path string) string {
	if e.Path != "" {
		return e.Path
	}
	return path
}

// Config holds the limiter settings.
type Config struct {
	Enabled       bool
	DefaultLimit  int
	DefaultWindow time.Duration
	Allow         map[string]bool
	Endpoints     []EndpointConfig
}

// FromConfig builds the limiter settings from the server configuration.
func FromConfig(cfg config.RateLimitConfig) *Config {
	allow := make(map[string]bool, len(cfg.Allow))
	for _, ip := range cfg.Allow {
		if ip = strings.TrimSpace(ip); ip != "" {
			allow[ip] = true
		}
	}
	return &Config{
		Enabled:       cfg.Enabled,
		DefaultLimit:  cfg.Limit,
		DefaultWindow: cfg.Window,
		Allow:         allow,
		Endpoints:     DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the per-route limits of the control API.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Starting a run scans the whole library.
		{Path: "/harvest/start", Method: "POST", Limit: 10, Window: time.Minute, Burst: 2},
		{Path: "/harvest/resume", Method: "POST", Limit: 10, Window: time.Minute, Burst: 2},

		{Path: "/harvest/stop", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/harvest/skip", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/selection/", Method: "POST", Limit: 120, Window: time.Minute, Burst: 10},
	}
}

// MatchEndpoint returns the config for a request, or nil to use the default.
// /health and the event stream are never limited.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if method == "GET" && (path == "/health" || path == "/events") {
		return &EndpointConfig{}
	}
	for i := range configs {
		c := &configs[i]
		if c.Method == method && c.Path == path {
			return c
		}
	}
	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}
	return nil
}
