package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonwraymond/failsafe/clock"
	"github.com/jonwraymond/failsafe/events"
	"github.com/jonwraymond/failsafe/registry"
)

// KindRetry is the registry kind of retry handlers.
const KindRetry = "retry"

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// Name identifies the handler in the registry and on the event bus.
	Name string

	// Attempts is the maximum number of attempts (including the first).
	// Default: 3
	Attempts int

	// Delay is the wait before the first retry.
	// Default: 100ms
	Delay time.Duration

	// Backoff multiplies the delay after each attempt.
	// Default: 2.0
	Backoff float64

	// MaxDelay caps the delay between attempts.
	// Default: 30s
	MaxDelay time.Duration

	// RetryIf determines if an error should trigger a retry. Non-retryable
	// errors are surfaced immediately.
	// Default: all non-nil errors trigger retry.
	RetryIf func(err error) bool

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Clock overrides the time source. Default: system clock.
	Clock clock.Clock

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

// Retry runs operations with exponential backoff and full jitter.
type Retry struct {
	registry.Toggle

	clk clock.Clock
	bus *events.Bus

	mu     sync.Mutex
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.Name == "" {
		config.Name = "retry"
	}
	if config.Attempts <= 0 {
		config.Attempts = 3
	}
	if config.Delay <= 0 {
		config.Delay = 100 * time.Millisecond
	}
	if config.Backoff < 1 {
		config.Backoff = 2.0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}
	if config.Clock == nil {
		config.Clock = clock.System()
	}

	return &Retry{
		clk:    config.Clock,
		bus:    config.Bus,
		config: config,
	}
}

// Execute runs the operation up to Attempts times. Between attempts k and
// k+1 it waits min(MaxDelay, Delay*Backoff^(k-1)) scaled by a uniform jitter in
// [0.5, 1.5]. Non-retryable errors surface immediately; exhausting the
// budget returns an AttemptsExceededError wrapping the final cause.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	if !r.Enabled() {
		return op(ctx)
	}

	r.mu.Lock()
	cfg := r.config
	r.mu.Unlock()

	var lastErr error

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		r.bus.Emit(KindRetry, cfg.Name, "attempt")
		err := op(ctx)

		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.RetryIf(err) {
			return err
		}
		if attempt >= cfg.Attempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if err := r.clk.Sleep(ctx, delay); err != nil {
			return err
		}
	}

	r.bus.Emit(KindRetry, cfg.Name, "attempts_exceeded")
	return &AttemptsExceededError{Attempts: cfg.Attempts, Err: lastErr}
}

// backoffDelay returns the jittered wait after the given attempt (1-based).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	base := float64(cfg.Delay) * math.Pow(cfg.Backoff, float64(attempt-1))
	base = min(base, float64(cfg.MaxDelay))

	// Full jitter: uniform in [0.5, 1.5] of the base delay.
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	jitter := 0.5 + rand.Float64()
	return time.Duration(base * jitter)
}

// Kind returns "retry".
func (r *Retry) Kind() string { return KindRetry }

// Name returns the handler name.
func (r *Retry) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.Name
}

// Config returns a snapshot of the retry configuration.
func (r *Retry) Config() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]any{
		"enabled":   r.Enabled(),
		"attempts":  r.config.Attempts,
		"delay":     r.config.Delay.Seconds(),
		"backoff":   r.config.Backoff,
		"max_delay": r.config.MaxDelay.Seconds(),
	}
}

// UpdateConfig applies whitelisted fields: attempts, delay (seconds),
// backoff and max_delay (seconds).
func (r *Retry) UpdateConfig(fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range fields {
		switch k {
		case "attempts":
			n, ok := registry.AsInt(v)
			if !ok || n < 1 {
				return fmt.Errorf("resilience: invalid attempts %v", v)
			}
			r.config.Attempts = n
		case "delay":
			f, ok := registry.AsFloat(v)
			if !ok || f <= 0 {
				return fmt.Errorf("resilience: invalid delay %v", v)
			}
			r.config.Delay = time.Duration(f * float64(time.Second))
		case "backoff":
			f, ok := registry.AsFloat(v)
			if !ok || f < 1 {
				return fmt.Errorf("resilience: invalid backoff %v", v)
			}
			r.config.Backoff = f
		case "max_delay":
			f, ok := registry.AsFloat(v)
			if !ok || f <= 0 {
				return fmt.Errorf("resilience: invalid max_delay %v", v)
			}
			r.config.MaxDelay = time.Duration(f * float64(time.Second))
		default:
			return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
		}
	}
	return nil
}

// Ensure Retry implements registry.Pattern
var _ registry.Pattern = (*Retry)(nil)
