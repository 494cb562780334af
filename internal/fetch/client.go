// Package fetch is the resilient HTTP client shared by provider adapters:
// per-attempt timeouts, retry with backoff, rate-limit handling and a
// per-key circuit breaker.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"musicfeed/internal/metrics"
)

const maxBodyBytes = 8 << 20

// Config holds client-wide defaults. A negative MaxRetries disables retries.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	MaxBackoff     time.Duration
	UserAgent      string
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 8 * time.Second
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 2
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "MusicFeed/1.0"
	}
	return c
}

// Options tune a single Execute call. Zero values take the client defaults;
// a negative MaxRetries disables retries.
type Options struct {
	Method         string
	Header         http.Header
	Body           []byte
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	BreakerKey     string
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Client struct {
	httpClient *http.Client
	cfg        Config
	breakers   *Breakers
	logger     *slog.Logger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
	now    func() time.Time
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit paces outbound requests for one breaker key.
func WithRateLimit(key string, perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiters[key] = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func New(cfg Config, breakers *Breakers, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		cfg:        cfg.withDefaults(),
		breakers:   breakers,
		logger:     logger.With("component", "fetch"),
		limiters:   make(map[string]*rate.Limiter),
		sleep:      sleepContext,
		jitter:     func() time.Duration { return time.Duration(rand.Int64N(int64(time.Second))) },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breakers exposes the registry for monitoring.
func (c *Client) Breakers() *Breakers {
	return c.breakers
}

// Execute performs the request with retries. Every terminal failure wraps
// ErrRequestFailed; a rejection by an open breaker also wraps ErrCircuitOpen.
// Non-retryable statuses (e.g. 404) are returned as a Response, not an error.
func (c *Client) Execute(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	opts = c.withDefaults(opts)
	target := redact(rawURL)

	var cb *gobreaker.CircuitBreaker[*Response]
	if opts.BreakerKey != "" && c.breakers != nil {
		cb = c.breakers.Get(opts.BreakerKey)
	}

	attempts := opts.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.wait(ctx, opts.BreakerKey); err != nil {
			lastErr = err
			break
		}

		resp, err := c.attempt(ctx, cb, rawURL, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil || attempt == attempts-1 {
			break
		}

		delay, reason := c.backoff(err, attempt, opts.RetryBaseDelay)
		metrics.FetchRetries.WithLabelValues(opts.BreakerKey, reason).Inc()
		c.logger.Warn("request failed, retrying",
			"url", target,
			"attempt", attempt+1,
			"reason", reason,
			"backoff", delay,
			"error", err,
		)

		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, target, lastErr)
}

func (c *Client) withDefaults(opts Options) Options {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.Timeout == 0 {
		opts.Timeout = c.cfg.Timeout
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = c.cfg.MaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = c.cfg.RetryBaseDelay
	}
	return opts
}

func (c *Client) wait(ctx context.Context, key string) error {
	c.limitersMu.Lock()
	limiter := c.limiters[key]
	c.limitersMu.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (c *Client) attempt(ctx context.Context, cb *gobreaker.CircuitBreaker[*Response], rawURL string, opts Options) (*Response, error) {
	run := func() (*Response, error) {
		resp, err := c.do(ctx, rawURL, opts)
		if err != nil && ctx.Err() != nil {
			// The caller gave up; the provider is not at fault.
			return resp, fmt.Errorf("%w: %w", errAbandoned, err)
		}
		return resp, err
	}
	if cb == nil {
		return run()
	}

	resp, err := cb.Execute(run)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(cb.Name(), "rejected").Inc()
		c.logger.Warn("request rejected by circuit breaker", "key", cb.Name())
		return nil, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, cb.Name(), err)
	case errors.Is(err, errAbandoned):
		metrics.CircuitBreakerRequests.WithLabelValues(cb.Name(), "abandoned").Inc()
		return nil, err
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(cb.Name(), "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(cb.Name(), "success").Inc()
	return resp, nil
}

func (c *Client) do(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, opts.Method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return out, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		}
	}
	return out, nil
}

// backoff returns the delay before the next attempt. Rate limits honor
// Retry-After or back off exponentially, both capped at MaxBackoff;
// everything else backs off exponentially with jitter.
func (c *Client) backoff(err error, attempt int, base time.Duration) (time.Duration, string) {
	exp := base * time.Duration(1<<attempt)

	var se *StatusError
	if errors.As(err, &se) {
		if se.RateLimited() {
			if se.RetryAfter > 0 {
				return min(se.RetryAfter, c.cfg.MaxBackoff), "rate_limited"
			}
			return min(exp, c.cfg.MaxBackoff), "rate_limited"
		}
		return exp + c.jitter(), "server_error"
	}
	return exp + c.jitter(), "transport"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// redact drops the query string, which may carry API keys.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
