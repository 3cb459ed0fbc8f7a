package http

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen fails requests fast.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of probe requests through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration
	// HalfOpenMaxRequests is the number of probes allowed while half-open.
	HalfOpenMaxRequests int
	// IsTransientError decides which failures count. Nil counts every failure.
	IsTransientError func(error) bool
}

// DefaultCircuitBreakerConfig returns the defaults used by New.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
		IsTransientError:    IsTransientHTTPError,
	}
}

type circuit struct {
	state    CircuitState
	failures int
	changed  time.Time
	probes   int
}

// CircuitBreaker tracks consecutive failures per endpoint key, as built by
// endpointOf.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	circuits map[string]*circuit
	now      func() time.Time
}

// NewCircuitBreaker creates a breaker. Non-positive settings take the defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	return &CircuitBreaker{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

func (cb *CircuitBreaker) get(host string) *circuit {
	c, ok := cb.circuits[host]
	if !ok {
		c = &circuit{state: CircuitClosed, changed: cb.now()}
		cb.circuits[host] = c
	}
	return c
}

// endpointOf keys a circuit by host and first path segment, so a failing
// caption endpoint does not take the channel feeds on the same host down
// with it.
func endpointOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	seg, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if seg == "" {
		return u.Hostname()
	}
	return u.Hostname() + "/" + seg
}

// Allow returns ErrCircuitOpen when requests to host must fail fast.
func (cb *CircuitBreaker) Allow(host string) error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(host)
	switch c.state {
	case CircuitOpen:
		if cb.now().Sub(c.changed) < cb.cfg.RecoveryTimeout {
			return ErrCircuitOpen
		}
		c.state = CircuitHalfOpen
		c.changed = cb.now()
		c.probes = 1
		return nil
	case CircuitHalfOpen:
		if c.probes >= cb.cfg.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		c.probes++
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the circuit for host.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(host)
	if c.state != CircuitClosed {
		c.state = CircuitClosed
		c.changed = cb.now()
	}
	c.failures = 0
	c.probes = 0
}

// RecordFailure counts a failed request to host, opening the circuit at the
// threshold. A failed probe reopens it immediately.
func (cb *CircuitBreaker) RecordFailure(host string, err error) {
	if cb == nil {
		return
	}
	if cb.cfg.IsTransientError != nil && !cb.cfg.IsTransientError(err) {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(host)
	c.failures++
	switch c.state {
	case CircuitClosed:
		if c.failures >= cb.cfg.FailureThreshold {
			c.state = CircuitOpen
			c.changed = cb.now()
		}
	case CircuitHalfOpen:
		c.state = CircuitOpen
		c.changed = cb.now()
	}
}

// State returns the current state for host.
func (cb *CircuitBreaker) State(host string) CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[host]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && cb.now().Sub(c.changed) >= cb.cfg.RecoveryTimeout {
		return CircuitHalfOpen
	}
	return c.state
}
