package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/failsafe/clock"
	"github.com/jonwraymond/failsafe/events"
	"github.com/jonwraymond/failsafe/registry"
)

// KindCircuitBreaker is the registry kind of circuit breakers.
const KindCircuitBreaker = "circuitbreaker"

// State represents the circuit breaker state.
type State int

const (
	// StateWorking means the circuit is operating normally (closed).
	StateWorking State = iota
	// StateFailing means the circuit is blocking all requests (open).
	StateFailing
	// StateRecovering means a limited number of probes are allowed to
	// detect recovery (half-open).
	StateRecovering
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateWorking:
		return "working"
	case StateFailing:
		return "failing"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in the registry and on the event bus.
	Name string

	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	RecoveryTimeout time.Duration

	// HalfOpenRequests is the number of probes allowed while recovering;
	// all of them must succeed to close the circuit.
	// Default: 1
	HalfOpenRequests int

	// OnStateChange is called after every state transition.
	OnStateChange func(from, to State)

	// IsFailure determines if an error counts as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool

	// Clock overrides the time source. Default: system clock.
	Clock clock.Clock

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

// CircuitBreaker is a consecutive-failures circuit breaker.
type CircuitBreaker struct {
	registry.Toggle

	clk clock.Clock
	bus *events.Bus

	mu                  sync.Mutex
	config              CircuitBreakerConfig
	state               State
	consecutiveFailures int
	openedAt            time.Time
	permitsIssued       int
	halfOpenSuccesses   int
}

// NewCircuitBreaker creates a new circuit breaker in the working state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "circuitbreaker"
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Clock == nil {
		config.Clock = clock.System()
	}

	return &CircuitBreaker{
		clk:    config.Clock,
		bus:    config.Bus,
		config: config,
		state:  StateWorking,
	}
}

// Gate checks whether a call may proceed. On nil, the caller must run the
// operation and then call RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Gate() error {
	if !cb.Enabled() {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateWorking:
		return nil

	case StateFailing:
		if cb.clk.Now().Sub(cb.openedAt) < cb.config.RecoveryTimeout {
			cb.bus.Emit(KindCircuitBreaker, cb.config.Name, "rejected")
			return ErrCircuitOpen
		}
		cb.transitionLocked(StateRecovering)
		cb.permitsIssued = 1
		cb.halfOpenSuccesses = 0
		return nil

	default: // StateRecovering
		if cb.permitsIssued < cb.config.HalfOpenRequests {
			cb.permitsIssued++
			return nil
		}
		// All probes are out; reject until their outcomes arrive.
		cb.bus.Emit(KindCircuitBreaker, cb.config.Name, "rejected")
		return ErrCircuitOpen
	}
}

// RecordSuccess reports that a gated operation completed successfully.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateWorking:
		cb.consecutiveFailures = 0

	case StateRecovering:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.config.HalfOpenRequests {
			cb.resetLocked()
			cb.transitionLocked(StateWorking)
		}
	}
}

// RecordFailure reports that a gated operation failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateWorking:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.resetLocked()
			cb.openedAt = cb.clk.Now()
			cb.transitionLocked(StateFailing)
		}

	case StateRecovering:
		// Failed probe: back to open with a fresh cooldown.
		cb.resetLocked()
		cb.openedAt = cb.clk.Now()
		cb.transitionLocked(StateFailing)
	}
}

// Execute runs the operation through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if !cb.Enabled() {
		return op(ctx)
	}

	if err := cb.Gate(); err != nil {
		return err
	}

	err := op(ctx)
	if cb.config.IsFailure(err) {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to the working state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.resetLocked()
	if cb.state != StateWorking {
		cb.transitionLocked(StateWorking)
	}
}

func (cb *CircuitBreaker) resetLocked() {
	cb.consecutiveFailures = 0
	cb.permitsIssued = 0
	cb.halfOpenSuccesses = 0
}

// transitionLocked moves to the new state, emitting events and invoking the
// state-change callback. Both run under cb.mu: listeners and callbacks must
// not block and must not call back into the breaker.
func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	cb.bus.Publish(events.Event{
		Kind:   KindCircuitBreaker,
		Name:   cb.config.Name,
		Metric: "state_change",
		Value:  1,
		Attributes: map[string]string{
			"from": from.String(),
			"to":   to.String(),
		},
	})

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// Kind returns "circuitbreaker".
func (cb *CircuitBreaker) Kind() string { return KindCircuitBreaker }

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.config.Name
}

// Config returns a snapshot of the breaker configuration and state.
func (cb *CircuitBreaker) Config() map[string]any {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]any{
		"enabled":              cb.Enabled(),
		"failure_threshold":    cb.config.FailureThreshold,
		"recovery_timeout":     cb.config.RecoveryTimeout.Seconds(),
		"half_open_requests":   cb.config.HalfOpenRequests,
		"state":                cb.state.String(),
		"consecutive_failures": cb.consecutiveFailures,
	}
}

// UpdateConfig applies whitelisted fields: failure_threshold,
// recovery_timeout (seconds) and half_open_requests.
func (cb *CircuitBreaker) UpdateConfig(fields map[string]any) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for k, v := range fields {
		switch k {
		case "failure_threshold":
			n, ok := registry.AsInt(v)
			if !ok || n < 1 {
				return fmt.Errorf("resilience: invalid failure_threshold %v", v)
			}
			cb.config.FailureThreshold = n
		case "recovery_timeout":
			f, ok := registry.AsFloat(v)
			if !ok || f <= 0 {
				return fmt.Errorf("resilience: invalid recovery_timeout %v", v)
			}
			cb.config.RecoveryTimeout = time.Duration(f * float64(time.Second))
		case "half_open_requests":
			n, ok := registry.AsInt(v)
			if !ok || n < 1 {
				return fmt.Errorf("resilience: invalid half_open_requests %v", v)
			}
			cb.config.HalfOpenRequests = n
		default:
			return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
		}
	}
	return nil
}

// Ensure CircuitBreaker implements registry.Pattern
var _ registry.Pattern = (*CircuitBreaker)(nil)
