package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for adaptive client operations.
var (
	// ErrRateLimited is returned when the server rate limit applies and the
	// reject strategy is configured.
	ErrRateLimited = errors.New("client: rate limited")

	// ErrMaxRetriesExceeded is returned when the queue strategy runs out of
	// retries.
	ErrMaxRetriesExceeded = errors.New("client: max retries exceeded")
)

// RateLimitedError carries the server's retry advice.
// errors.Is(err, ErrRateLimited) matches it.
type RateLimitedError struct {
	// RetryAfter is the advised wait in seconds.
	RetryAfter float64

	// Backpressure is the server's stress score, 0 when not reported.
	Backpressure float64
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("client: rate limited, retry after %.2fs (backpressure %.2f)", e.RetryAfter, e.Backpressure)
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// MaxRetriesExceededError reports retry exhaustion against a rate-limited
// server. errors.Is(err, ErrMaxRetriesExceeded) matches it.
type MaxRetriesExceededError struct {
	// Attempts is the number of retries made.
	Attempts int

	// LastRetryAfter is the final Retry-After advice in seconds.
	LastRetryAfter float64
}

// Error implements the error interface.
func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("client: max retries (%d) exceeded, last Retry-After %.2fs", e.Attempts, e.LastRetryAfter)
}

// Is reports whether target is ErrMaxRetriesExceeded.
func (e *MaxRetriesExceededError) Is(target error) bool {
	return target == ErrMaxRetriesExceeded
}
