package ratelimit

import (
	"container/list"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/jonwraymond/failsafe/clock"
	"github.com/jonwraymond/failsafe/events"
	"github.com/jonwraymond/failsafe/registry"
)

// Kind is the registry kind of token buckets.
const Kind = "ratelimit"

// ErrRateLimitExceeded is returned by Execute when the bucket rejects a call.
var ErrRateLimitExceeded = errors.New("ratelimit: rate limit exceeded")

// Metric names emitted on the event bus.
const (
	MetricAcquired       = "acquired"
	MetricThrottled      = "throttled"
	MetricClientsEvicted = "clients_evicted"
)

// DefaultMaxClients bounds the per-client sub-bucket map. Without a cap an
// attacker rotating client ids grows the map without limit.
const DefaultMaxClients = 10000

// Config configures a token bucket.
type Config struct {
	// Name identifies the bucket in the registry and on the event bus.
	Name string

	// MaxExecutions is the number of executions allowed per PerTimeSecs.
	// Default: 100
	MaxExecutions int

	// PerTimeSecs is the time span of MaxExecutions in seconds.
	// Default: 60
	PerTimeSecs float64

	// BucketSize is the burst capacity in tokens.
	// Default: MaxExecutions
	BucketSize int

	// Strategy selects the Retry-After calculation.
	// Default: StrategyBackpressure
	Strategy Strategy

	// PerClientTracking maintains an independent sub-bucket per client id.
	// Both the global bucket and the client's sub-bucket must admit.
	PerClientTracking bool

	// MaxClients caps the sub-bucket map; least recently seen clients are
	// evicted beyond it.
	// Default: DefaultMaxClients
	MaxClients int

	// WindowSize is the latency window capacity.
	// Default: DefaultWindowSize
	WindowSize int

	// Backpressure tunes the stress score and retry penalties.
	Backpressure BackpressureConfig

	// Clock overrides the time source. Default: system clock.
	Clock clock.Clock

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

// Decision is the outcome of an acquisition attempt.
type Decision struct {
	// Allowed reports whether a token was debited.
	Allowed bool

	// RetryAfter is the advised wait in seconds before retrying. Zero when
	// allowed.
	RetryAfter float64

	// Backpressure is the stress score at decision time.
	Backpressure float64

	// Remaining is the whole tokens left after a successful debit. Under
	// per-client tracking it is the minimum of the global and client
	// buckets, so a low-volume client is never promised capacity the
	// global bucket no longer has.
	Remaining int

	// Headers carries the rate-limit response headers for this decision.
	Headers map[string]string
}

type clientBucket struct {
	id         string
	tokens     float64
	lastRefill time.Time
	elem       *list.Element
}

// TokenBucket is an adaptive token-bucket rate limiter with lazy refill,
// optional per-client sub-buckets and pluggable Retry-After strategies.
type TokenBucket struct {
	registry.Toggle

	clk clock.Clock
	bus *events.Bus

	window *Window
	bp     *Backpressure

	mu         sync.Mutex
	config     Config
	refillRate float64
	tokens     float64
	lastRefill time.Time
	clients    map[string]*clientBucket
	clientLRU  *list.List // front = most recently seen
}

// New creates a token bucket.
func New(config Config) *TokenBucket {
	if config.Name == "" {
		config.Name = "ratelimiter"
	}
	if config.MaxExecutions <= 0 {
		config.MaxExecutions = 100
	}
	if config.PerTimeSecs <= 0 {
		config.PerTimeSecs = 60
	}
	if config.BucketSize <= 0 {
		config.BucketSize = config.MaxExecutions
	}
	if config.Strategy == "" {
		config.Strategy = StrategyBackpressure
	}
	if config.MaxClients <= 0 {
		config.MaxClients = DefaultMaxClients
	}
	if config.Clock == nil {
		config.Clock = clock.System()
	}
	config.Backpressure.applyDefaults()

	window := NewWindow(config.WindowSize)

	tb := &TokenBucket{
		clk:        config.Clock,
		bus:        config.Bus,
		window:     window,
		bp:         NewBackpressure(config.Backpressure, window),
		config:     config,
		refillRate: float64(config.MaxExecutions) / config.PerTimeSecs,
		tokens:     float64(config.BucketSize),
		lastRefill: config.Clock.Now(),
		clients:    make(map[string]*clientBucket),
		clientLRU:  list.New(),
	}
	return tb
}

// TryAcquire attempts to debit one token, optionally against a per-client
// sub-bucket as well. Rejection is a normal return, not an error.
func (tb *TokenBucket) TryAcquire(clientID string) Decision {
	if !tb.Enabled() {
		return Decision{Allowed: true, Headers: map[string]string{}}
	}

	score := tb.bp.Score()

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clk.Now()
	tb.refillLocked(now)

	var cb *clientBucket
	if tb.config.PerClientTracking && clientID != "" {
		cb = tb.clientLocked(clientID, now)
	}

	if tb.tokens >= 1 && (cb == nil || cb.tokens >= 1) {
		tb.tokens--
		remaining := int(tb.tokens)
		if cb != nil {
			cb.tokens--
			remaining = min(remaining, int(cb.tokens))
		}

		tb.bus.Emit(Kind, tb.config.Name, MetricAcquired)
		return Decision{
			Allowed:      true,
			Backpressure: score,
			Remaining:    remaining,
			Headers: map[string]string{
				"RateLimit-Limit":     strconv.Itoa(tb.config.MaxExecutions),
				"RateLimit-Remaining": strconv.Itoa(remaining),
				"X-Backpressure":      formatScore(score),
			},
		}
	}

	// The limiting bucket is whichever has fewer tokens.
	limiting := tb.tokens
	if cb != nil && cb.tokens < limiting {
		limiting = cb.tokens
	}

	wait := retryAfter(tb.config.Strategy, tb.bp.Config(), retryAfterInput{
		tokens:     limiting,
		bucketSize: float64(tb.config.BucketSize),
		refillRate: tb.refillRate,
		score:      score,
	})

	tb.bus.Emit(Kind, tb.config.Name, MetricThrottled)
	return Decision{
		Allowed:      false,
		RetryAfter:   wait,
		Backpressure: score,
		Headers: map[string]string{
			"Retry-After":                strconv.Itoa(int(math.Ceil(wait))),
			"X-RateLimit-Retry-After-Ms": strconv.Itoa(int(math.Round(wait * 1000))),
			"X-Backpressure":             formatScore(score),
		},
	}
}

// RecordLatency feeds a completed-operation latency into the backpressure
// calculator. Callers must invoke it after every admitted operation.
func (tb *TokenBucket) RecordLatency(seconds float64) {
	tb.bp.Observe(seconds)
}

// Backpressure returns the current stress score.
func (tb *TokenBucket) Backpressure() float64 {
	return tb.bp.Score()
}

// Tokens returns the current global token count after a refill.
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(tb.clk.Now())
	return tb.tokens
}

// Clients returns the number of tracked per-client sub-buckets.
func (tb *TokenBucket) Clients() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.clients)
}

// refillLocked lazily adds tokens for the time elapsed since the last
// refill. Idempotent: calling it repeatedly at the same instant is a no-op.
func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.lastRefill = now
	tb.tokens = min(float64(tb.config.BucketSize), tb.tokens+elapsed*tb.refillRate)
}

// clientLocked returns the sub-bucket for id, creating and LRU-evicting as
// needed, and refills it to now.
func (tb *TokenBucket) clientLocked(id string, now time.Time) *clientBucket {
	cb, ok := tb.clients[id]
	if ok {
		tb.clientLRU.MoveToFront(cb.elem)
	} else {
		if len(tb.clients) >= tb.config.MaxClients {
			oldest := tb.clientLRU.Back()
			if oldest != nil {
				evicted := oldest.Value.(*clientBucket)
				tb.clientLRU.Remove(oldest)
				delete(tb.clients, evicted.id)
				tb.bus.Emit(Kind, tb.config.Name, MetricClientsEvicted)
			}
		}
		cb = &clientBucket{
			id:         id,
			tokens:     float64(tb.config.BucketSize),
			lastRefill: now,
		}
		cb.elem = tb.clientLRU.PushFront(cb)
		tb.clients[id] = cb
	}

	elapsed := now.Sub(cb.lastRefill).Seconds()
	if elapsed > 0 {
		cb.lastRefill = now
		cb.tokens = min(float64(tb.config.BucketSize), cb.tokens+elapsed*tb.refillRate)
	}
	return cb
}

// Kind returns "ratelimit".
func (tb *TokenBucket) Kind() string { return Kind }

// Name returns the bucket name.
func (tb *TokenBucket) Name() string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.config.Name
}

// Config returns a snapshot of the bucket configuration and token state.
func (tb *TokenBucket) Config() map[string]any {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(tb.clk.Now())

	return map[string]any{
		"enabled":             tb.Enabled(),
		"max_executions":      tb.config.MaxExecutions,
		"per_time_secs":       tb.config.PerTimeSecs,
		"bucket_size":         tb.config.BucketSize,
		"strategy":            string(tb.config.Strategy),
		"per_client_tracking": tb.config.PerClientTracking,
		"current_tokens":      tb.tokens,
		"clients":             len(tb.clients),
	}
}

// UpdateConfig applies whitelisted fields: max_executions, per_time_secs and
// bucket_size. Changing any of them rebuilds the token state at full
// capacity and drops all sub-buckets, as if the bucket were recreated.
func (tb *TokenBucket) UpdateConfig(fields map[string]any) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	next := tb.config
	explicitSize := false

	for k, v := range fields {
		switch k {
		case "max_executions":
			n, ok := registry.AsInt(v)
			if !ok || n <= 0 {
				return fmt.Errorf("ratelimit: invalid max_executions %v", v)
			}
			next.MaxExecutions = n
		case "per_time_secs":
			f, ok := registry.AsFloat(v)
			if !ok || f <= 0 {
				return fmt.Errorf("ratelimit: invalid per_time_secs %v", v)
			}
			next.PerTimeSecs = f
		case "bucket_size":
			n, ok := registry.AsInt(v)
			if !ok || n < 1 {
				return fmt.Errorf("ratelimit: invalid bucket_size %v", v)
			}
			next.BucketSize = n
			explicitSize = true
		default:
			return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
		}
	}

	if !explicitSize && next.BucketSize == tb.config.MaxExecutions {
		// Bucket size was defaulted from the old rate; follow the new one.
		next.BucketSize = next.MaxExecutions
	}

	tb.config = next
	tb.refillRate = float64(next.MaxExecutions) / next.PerTimeSecs
	tb.tokens = float64(next.BucketSize)
	tb.lastRefill = tb.clk.Now()
	tb.clients = make(map[string]*clientBucket)
	tb.clientLRU.Init()
	return nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}

// Ensure TokenBucket implements registry.Pattern
var _ registry.Pattern = (*TokenBucket)(nil)
