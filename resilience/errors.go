package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrAttemptsExceeded is returned when the retry budget is exhausted.
	ErrAttemptsExceeded = errors.New("resilience: attempts exceeded")

	// ErrBulkheadFull is returned when the bulkhead queue is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrHedgeTimeout is returned when no hedged attempt succeeds within
	// the total budget.
	ErrHedgeTimeout = errors.New("resilience: hedge timed out")

	// ErrFailFastOpen is returned when a tripped failfast rejects a call.
	ErrFailFastOpen = errors.New("resilience: failfast is tripped")

	// ErrFeatureDisabled is returned when a feature toggle is off.
	ErrFeatureDisabled = errors.New("resilience: feature is disabled")
)

// AttemptsExceededError reports retry exhaustion and carries the last
// underlying error. errors.Is(err, ErrAttemptsExceeded) matches it.
type AttemptsExceededError struct {
	// Attempts is the number of attempts made.
	Attempts int

	// Err is the error from the final attempt.
	Err error
}

// Error implements the error interface.
func (e *AttemptsExceededError) Error() string {
	return fmt.Sprintf("resilience: %d attempts exceeded: %v", e.Attempts, e.Err)
}

// Unwrap returns the final attempt's error.
func (e *AttemptsExceededError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrAttemptsExceeded.
func (e *AttemptsExceededError) Is(target error) bool {
	return target == ErrAttemptsExceeded
}
