package httpx

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// DefaultLimit keeps a single client from hammering one API host.
// Override with: CONTXT_RATELIMIT_REQUESTS, CONTXT_RATELIMIT_WINDOW_SEC, CONTXT_RATELIMIT_BURST
var DefaultLimit = RateLimitConfig{
	RequestsPerWindow: 600,
	Window:            time.Minute,
	Burst:             50,
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: {prefix}_{field}
// For example: CONTXT_RATELIMIT_REQUESTS, CONTXT_RATELIMIT_WINDOW_SEC, CONTXT_RATELIMIT_BURST
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv(prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv(prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv(prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// Validate reports whether the configuration can build a limiter.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit requests must be positive, got %d", c.RequestsPerWindow)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.Window)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("rate limit burst must be positive, got %d", c.Burst)
	}
	return nil
}

// KeyExtractor is a function that extracts a unique key from an outbound
// request for rate limiting purposes.
type KeyExtractor func(*http.Request) string

// HostKeyExtractor groups requests by target host, so each audience API gets
// its own bucket.
func HostKeyExtractor(r *http.Request) string {
	return strings.ToLower(r.URL.Host)
}

// rateLimiter manages rate limiters for different keys
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// getLimiter retrieves or creates a rate limiter for the given key
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	actual, _ := rl.limiters.LoadOrStore(key, limiter)
	return actual.(*rate.Limiter)
}

// RateLimitedTransport delays outbound requests so that each key stays
// within its configured rate. Waiting honours the request context.
type RateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rateLimiter
	key     KeyExtractor
}

// NewRateLimitedTransport wraps base. A nil keyExtractor limits by host.
func NewRateLimitedTransport(base http.RoundTripper, config RateLimitConfig, keyExtractor KeyExtractor) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if keyExtractor == nil {
		keyExtractor = HostKeyExtractor
	}

	// Calculate rate per second from requests per window
	ratePerSecond := float64(config.RequestsPerWindow) / config.Window.Seconds()

	return &RateLimitedTransport{
		base: base,
		limiter: &rateLimiter{
			rate:  rate.Limit(ratePerSecond),
			burst: config.Burst,
		},
		key: keyExtractor,
	}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.getLimiter(t.key(req)).Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.base.RoundTrip(req)
}
