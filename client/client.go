package client

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonwraymond/failsafe/clock"
)

// Strategy selects how the client reacts to a 429 response.
type Strategy string

const (
	// StrategyQueue waits out the Retry-After advice and retries.
	StrategyQueue Strategy = "queue"

	// StrategyReject surfaces a RateLimitedError immediately.
	StrategyReject Strategy = "reject"
)

// Config configures the adaptive client.
type Config struct {
	// BaseURL prefixes relative paths passed to Get and Post.
	BaseURL string

	// HTTPClient is the underlying transport.
	// Default: &http.Client{Timeout: 30s}
	HTTPClient *http.Client

	// Strategy selects the 429 reaction.
	// Default: StrategyQueue
	Strategy Strategy

	// MaxRetries is how many times a queued request is retried.
	// Default: 3
	MaxRetries int

	// BackoffMultiplier scales each successive Retry-After wait.
	// Default: 1.0
	BackoffMultiplier float64

	// RespectBackpressure enables proactive slowdown before sending when
	// the last seen backpressure crosses BackpressureThreshold.
	RespectBackpressure bool

	// BackpressureThreshold is the score at or above which the client
	// slows down proactively.
	// Default: 0.8
	BackpressureThreshold float64

	// MaxWait caps the proactive slowdown.
	// Default: 5 seconds
	MaxWait time.Duration

	// TokenSource supplies a bearer token for outgoing requests. Optional.
	TokenSource func(ctx context.Context) (string, error)

	// Clock overrides the time source. Default: system clock.
	Clock clock.Clock

	// Logger logs waits and retries. Default: no logging.
	Logger zerolog.Logger
}

// Client wraps HTTP calls with server-cooperative rate limiting: it reads
// the backpressure headers the server emits and regulates its own call
// rate, queuing or rejecting while the server says to back off.
type Client struct {
	config Config
	clk    clock.Clock
	logger zerolog.Logger

	mu            sync.Mutex
	rateLimited   bool
	retryDeadline time.Time
	backpressure  float64
	remaining     int
}

// New creates an adaptive client.
func New(config Config) *Client {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Strategy == "" {
		config.Strategy = StrategyQueue
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 1.0
	}
	if config.BackpressureThreshold <= 0 {
		config.BackpressureThreshold = 0.8
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 5 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.System()
	}

	return &Client{
		config:    config,
		clk:       config.Clock,
		logger:    config.Logger,
		remaining: -1,
	}
}

// Do sends the request, honoring local rate-limit state before sending and
// the server's Retry-After advice after a 429. Retried requests need a
// rewindable body (http.NewRequest sets GetBody for common readers).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	wait := 0.0

	for attempt := 0; ; attempt++ {
		if err := c.preflight(ctx); err != nil {
			return nil, err
		}

		attemptReq, err := c.prepare(ctx, req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := c.config.HTTPClient.Do(attemptReq)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			c.updateFromResponse(resp)
			return resp, nil
		}

		wait = c.recordRateLimit(resp, attempt)
		drain(resp)

		if c.config.Strategy == StrategyReject {
			return nil, &RateLimitedError{RetryAfter: wait, Backpressure: c.Backpressure()}
		}

		if attempt >= c.config.MaxRetries {
			return nil, &MaxRetriesExceededError{Attempts: attempt, LastRetryAfter: wait}
		}

		c.logger.Debug().
			Str("url", req.URL.String()).
			Int("attempt", attempt+1).
			Float64("wait_secs", wait).
			Msg("rate limited, queuing retry")

		if err := c.clk.Sleep(ctx, secs(wait)); err != nil {
			return nil, err
		}
	}
}

// Get issues a GET against BaseURL+path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post issues a POST against BaseURL+path.
func (c *Client) Post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// IsRateLimited reports whether the client is inside a server-advised
// backoff window.
func (c *Client) IsRateLimited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimited && c.clk.Now().Before(c.retryDeadline)
}

// RetryAfterSeconds returns the time left in the backoff window.
func (c *Client) RetryAfterSeconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.rateLimited {
		return 0
	}
	left := c.retryDeadline.Sub(c.clk.Now()).Seconds()
	if left < 0 {
		return 0
	}
	return left
}

// Backpressure returns the last seen server stress score.
func (c *Client) Backpressure() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backpressure
}

// RemainingTokens returns the last seen RateLimit-Remaining value, or -1
// when the server has not reported one.
func (c *Client) RemainingTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// preflight applies the local rate-limit state and proactive backpressure
// slowdown before a request is sent.
func (c *Client) preflight(ctx context.Context) error {
	c.mu.Lock()
	limited := c.rateLimited
	deadline := c.retryDeadline
	bp := c.backpressure
	c.mu.Unlock()

	now := c.clk.Now()
	if limited && now.Before(deadline) {
		if c.config.Strategy == StrategyReject {
			return &RateLimitedError{RetryAfter: deadline.Sub(now).Seconds(), Backpressure: bp}
		}
		c.logger.Debug().
			Float64("wait_secs", deadline.Sub(now).Seconds()).
			Msg("waiting out rate-limit window")
		if err := c.clk.Sleep(ctx, deadline.Sub(now)); err != nil {
			return err
		}
	}

	if c.config.RespectBackpressure && bp >= c.config.BackpressureThreshold {
		slow := time.Duration(bp * float64(c.config.MaxWait))
		if slow > c.config.MaxWait {
			slow = c.config.MaxWait
		}
		c.logger.Debug().
			Float64("backpressure", bp).
			Dur("slowdown", slow).
			Msg("proactive backpressure slowdown")
		if err := c.clk.Sleep(ctx, slow); err != nil {
			return err
		}
	}
	return nil
}

// prepare clones the request for a retry attempt and attaches auth.
func (c *Client) prepare(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	out := req
	if attempt > 0 {
		out = req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("client: rewinding request body: %w", err)
			}
			out.Body = body
		} else if req.Body != nil {
			return nil, fmt.Errorf("client: cannot retry request without GetBody")
		}
	}

	if c.config.TokenSource != nil {
		token, err := c.config.TokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("client: token source: %w", err)
		}
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out, nil
}

// recordRateLimit parses a 429 response, updates local state and returns
// the effective wait in seconds (scaled by the backoff multiplier).
func (c *Client) recordRateLimit(resp *http.Response, attempt int) float64 {
	wait := parseRetryAfter(resp)
	wait *= math.Pow(c.config.BackoffMultiplier, float64(attempt))

	c.mu.Lock()
	c.rateLimited = true
	c.retryDeadline = c.clk.Now().Add(secs(wait))
	c.readHeadersLocked(resp)
	c.mu.Unlock()

	return wait
}

// updateFromResponse records the cooperation headers from a non-429
// response and clears the rate-limited flag on success.
func (c *Client) updateFromResponse(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readHeadersLocked(resp)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.rateLimited = false
	}
}

func (c *Client) readHeadersLocked(resp *http.Response) {
	if v := resp.Header.Get("X-Backpressure"); v != "" {
		if bp, err := strconv.ParseFloat(v, 64); err == nil {
			c.backpressure = bp
		}
	}
	if v := resp.Header.Get("RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.remaining = n
		}
	}
}

// parseRetryAfter reads the server's retry advice, preferring the
// millisecond-precision header, defaulting to one second.
func parseRetryAfter(resp *http.Response) float64 {
	if v := resp.Header.Get("X-RateLimit-Retry-After-Ms"); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms >= 0 {
			return ms / 1000
		}
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if s, err := strconv.ParseFloat(v, 64); err == nil && s >= 0 {
			return s
		}
	}
	return 1
}

func (c *Client) url(path string) string {
	if c.config.BaseURL == "" {
		return path
	}
	return strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
