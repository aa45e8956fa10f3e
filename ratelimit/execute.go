package ratelimit

import (
	"context"
	"fmt"
)

// LimitError is the rejection returned by Execute. It satisfies
// errors.Is(err, ErrRateLimitExceeded) and carries the advice a caller
// needs to build a 429 response.
type LimitError struct {
	// RetryAfter is the advised wait in seconds.
	RetryAfter float64

	// Backpressure is the stress score at rejection time.
	Backpressure float64

	// ClientID is the identity the rejected call carried, empty when none.
	ClientID string

	// Headers are the rate-limit response headers for this rejection.
	Headers map[string]string
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("ratelimit: rate limit exceeded, retry after %.2fs", e.RetryAfter)
}

// Is reports whether target is ErrRateLimitExceeded.
func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// Execute runs op if the bucket admits the call and records the operation
// latency on completion. The clientID may be empty when per-client tracking
// is off.
func (tb *TokenBucket) Execute(ctx context.Context, clientID string, op func(context.Context) error) error {
	if !tb.Enabled() {
		return op(ctx)
	}

	d := tb.TryAcquire(clientID)
	if !d.Allowed {
		return &LimitError{
			RetryAfter:   d.RetryAfter,
			Backpressure: d.Backpressure,
			ClientID:     clientID,
			Headers:      d.Headers,
		}
	}

	start := tb.clk.Now()
	err := op(ctx)
	tb.RecordLatency(tb.clk.Since(start).Seconds())
	return err
}
