package resilience

import (
	"context"
	"time"

	"github.com/jonwraymond/failsafe/ratelimit"
)

// Executor composes multiple resilience patterns around one operation.
type Executor struct {
	fallback       *Fallback
	rateLimiter    *ratelimit.TokenBucket
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
	retry          *Retry
	hedge          *Hedge
	timeout        *Timeout
	failFast       *FailFast
	featureToggle  *FeatureToggle
	clientID       func(ctx context.Context) string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithFallback adds a fallback to the executor.
func WithFallback(f *Fallback) ExecutorOption {
	return func(e *Executor) {
		e.fallback = f
	}
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(tb *ratelimit.TokenBucket) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = tb
	}
}

// WithClientID supplies the per-client identity used by the rate limiter.
func WithClientID(fn func(ctx context.Context) string) ExecutorOption {
	return func(e *Executor) {
		e.clientID = fn
	}
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithHedge adds hedged racing to the executor.
func WithHedge(h *Hedge) ExecutorOption {
	return func(e *Executor) {
		e.hedge = h
	}
}

// WithTimeout adds timeout to the executor.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// WithTimeoutConfig adds timeout with custom config to the executor.
func WithTimeoutConfig(t *Timeout) ExecutorOption {
	return func(e *Executor) {
		e.timeout = t
	}
}

// WithFailFast adds a failfast guard to the executor.
func WithFailFast(f *FailFast) ExecutorOption {
	return func(e *Executor) {
		e.failFast = f
	}
}

// WithFeatureToggle adds a feature toggle to the executor.
func WithFeatureToggle(ft *FeatureToggle) ExecutorOption {
	return func(e *Executor) {
		e.featureToggle = ft
	}
}

// Execute runs the operation through all configured resilience patterns.
//
// The execution order, outermost first:
// 1. Fallback - catches failures from every inner layer
// 2. Feature Toggle - denies or routes when the feature is off
// 3. Rate Limiter - limits request rate
// 4. FailFast - rejects once its failure budget is spent
// 5. Bulkhead - limits concurrency
// 6. Circuit Breaker - prevents cascading failures
// 7. Retry - retries on failure
// 8. Hedge - races staggered copies
// 9. Timeout - limits execution time
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	// Build the execution chain from inside out
	execute := op

	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.timeout.Execute(ctx, inner)
		}
	}

	if e.hedge != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.hedge.Execute(ctx, inner)
		}
	}

	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.retry.Execute(ctx, inner)
		}
	}

	if e.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.circuitBreaker.Execute(ctx, inner)
		}
	}

	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.bulkhead.Execute(ctx, inner)
		}
	}

	if e.failFast != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.failFast.Execute(ctx, inner)
		}
	}

	if e.rateLimiter != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			id := ""
			if e.clientID != nil {
				id = e.clientID(ctx)
			}
			return e.rateLimiter.Execute(ctx, id, inner)
		}
	}

	if e.featureToggle != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.featureToggle.Execute(ctx, inner)
		}
	}

	if e.fallback != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.fallback.Execute(ctx, inner)
		}
	}

	return execute(ctx)
}
