// Package http provides the shared HTTP client: retries with backoff,
// per-host rate limiting and a per-endpoint circuit breaker.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ytdigest/internal/retry"
)

// maxBodySize caps how much of a response is read into memory.
const maxBodySize = 32 << 20

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests.
	Timeout time.Duration
	// Retry controls attempts for transient failures.
	Retry retry.Config
	// UserAgent is sent unless a request sets its own.
	UserAgent string

	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig

	// Transport replaces the default transport when set.
	Transport http.RoundTripper
}

// DefaultConfig returns sensible defaults for HTTP client configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		Retry:          retry.DefaultConfig(),
		UserAgent:      "ytdigest/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// Client wraps an HTTP client with retry logic and rate limit handling.
type Client struct {
	base    *http.Client
	config  *Config
	limiter *RateLimiter
	breaker *CircuitBreaker
}

// New creates a new HTTP client with the given configuration.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}
	return &Client{
		base:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		config:  cfg,
		limiter: NewRateLimiter(cfg.RateLimiter),
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get performs a GET request with retry logic.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// Post sends body with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*Response, error) {
	h := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		h[k] = v
	}
	h["Content-Type"] = contentType
	return c.Do(ctx, http.MethodPost, url, body, h)
}

type circuitKey struct{}

// WithCircuit makes requests sent with ctx count against the named circuit
// instead of their URL's endpoint. Callers that fan out many requests for
// one unit of work use it to keep that work's failures to itself.
func WithCircuit(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, circuitKey{}, name)
}

// Do performs an HTTP request. Throttling, 5xx and network failures are
// retried; other non-2xx responses come back as *HTTPError at once.
// body is resent unchanged on every attempt, so callers needing
// idempotent delivery must add their own request key header.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	host := hostOf(url)
	endpoint := endpointOf(url)
	if name, ok := ctx.Value(circuitKey{}).(string); ok && name != "" {
		endpoint = name
	}

	if err := c.breaker.Allow(endpoint); err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	var out *Response
	err := retry.Do(ctx, c.config.Retry, isRetryableHTTPError, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx, host); err != nil {
			return err
		}
		resp, err := c.attempt(ctx, method, url, body, headers)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		c.breaker.RecordFailure(endpoint, err)
		return nil, err
	}

	c.limiter.RecordSuccess(host)
	c.breaker.RecordSuccess(endpoint)
	return out, nil
}

func (c *Client) attempt(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		wait := c.limiter.RecordRateLimitError(hostOf(url), parseRetryAfter(resp.Header))
		return nil, &RateLimitError{StatusCode: resp.StatusCode, RetryAfter: wait}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: data}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// isRetryableHTTPError retries throttling, 5xx and transport failures.
func isRetryableHTTPError(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return true
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}
