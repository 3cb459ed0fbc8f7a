package http

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig defines per-host request rates.
type RateLimiterConfig struct {
	// DefaultRPS applies to hosts without an entry in HostRates. 0 means unlimited.
	DefaultRPS float64
	// HostRates overrides DefaultRPS for specific hosts.
	HostRates map[string]float64
	// InitialBackoff is the pause after the first throttled response.
	InitialBackoff time.Duration
	// MaxBackoff caps the pause after repeated throttling.
	MaxBackoff time.Duration
}

// DefaultRateLimiterConfig returns conservative rates for YouTube hosts.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultRPS: 2,
		HostRates: map[string]float64{
			"www.youtube.com": 2,
			"api.line.me":     5,
		},
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
}

type hostBackoff struct {
	current   time.Duration
	until     time.Time
	throttled int
}

// RateLimiter is a token bucket per host plus a throttling backoff that grows
// with consecutive 429/503 responses.
type RateLimiter struct {
	mu       sync.Mutex
	cfg      RateLimiterConfig
	limiters map[string]*rate.Limiter
	backoff  map[string]*hostBackoff
	now      func() time.Time
}

// NewRateLimiter creates a limiter. Zero backoff bounds take the defaults.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		backoff:  make(map[string]*hostBackoff),
		now:      time.Now,
	}
}

// Wait blocks until a request to host is allowed: first any throttling
// backoff must pass, then a token must be available.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil {
		return nil
	}
	if d := rl.BackoffRemaining(host); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if lim := rl.limiter(host); lim != nil {
		return lim.Wait(ctx)
	}
	return nil
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rps := rl.RPS(host)
	if rps <= 0 {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
		rl.limiters[host] = lim
	}
	return lim
}

// RPS returns the configured rate for host.
func (rl *RateLimiter) RPS(host string) float64 {
	if rps, ok := rl.cfg.HostRates[host]; ok {
		return rps
	}
	return rl.cfg.DefaultRPS
}

// RecordRateLimitError registers a throttled response from host and returns
// how long callers should pause. A longer server Retry-After wins.
func (rl *RateLimiter) RecordRateLimitError(host string, retryAfter time.Duration) time.Duration {
	if rl == nil {
		return retryAfter
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.backoff[host]
	if !ok {
		b = &hostBackoff{current: rl.cfg.InitialBackoff}
		rl.backoff[host] = b
	} else {
		b.current *= 2
		if b.current > rl.cfg.MaxBackoff {
			b.current = rl.cfg.MaxBackoff
		}
	}
	b.throttled++

	wait := b.current
	if retryAfter > wait {
		wait = retryAfter
	}
	b.until = rl.now().Add(wait)

	if lim, ok := rl.limiters[host]; ok {
		// Halve the rate until the host recovers, never below a quarter.
		base := rl.RPS(host)
		reduced := float64(lim.Limit()) / 2
		if reduced < base/4 {
			reduced = base / 4
		}
		lim.SetLimit(rate.Limit(reduced))
	}
	return wait
}

// RecordSuccess clears backoff state for host and restores its rate.
func (rl *RateLimiter) RecordSuccess(host string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.backoff[host]; !ok {
		return
	}
	delete(rl.backoff, host)
	if lim, ok := rl.limiters[host]; ok {
		lim.SetLimit(rate.Limit(rl.RPS(host)))
	}
}

// BackoffRemaining reports how much of host's backoff is left.
func (rl *RateLimiter) BackoffRemaining(host string) time.Duration {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.backoff[host]
	if !ok {
		return 0
	}
	if d := b.until.Sub(rl.now()); d > 0 {
		return d
	}
	return 0
}

// hostOf extracts the host name, without port, from a URL.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
