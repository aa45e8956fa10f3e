package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/failsafe/events"
	"github.com/jonwraymond/failsafe/registry"
)

// KindTimeout is the registry kind of timeout wrappers.
const KindTimeout = "timeout"

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Name identifies the wrapper in the registry and on the event bus.
	Name string

	// Timeout is the maximum duration for the operation.
	// Default: 30 seconds
	Timeout time.Duration

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

// Timeout wraps operations with a deadline.
type Timeout struct {
	registry.Toggle

	bus *events.Bus

	mu     sync.Mutex
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Name == "" {
		config.Name = "timeout"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Timeout{
		bus:    config.Bus,
		config: config,
	}
}

// Execute runs the operation with a deadline. The operation receives a
// context cancelled at the deadline; an operation that ignores it may
// outlive the timeout, but the caller observes ErrTimeout at the deadline.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	if !t.Enabled() {
		return op(ctx)
	}

	t.mu.Lock()
	d := t.config.Timeout
	name := t.config.Name
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			t.bus.Emit(KindTimeout, name, "timed_out")
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// Kind returns "timeout".
func (t *Timeout) Kind() string { return KindTimeout }

// Name returns the wrapper name.
func (t *Timeout) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.Name
}

// Config returns a snapshot of the timeout configuration.
func (t *Timeout) Config() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]any{
		"enabled": t.Enabled(),
		"seconds": t.config.Timeout.Seconds(),
	}
}

// UpdateConfig applies the whitelisted seconds field.
func (t *Timeout) UpdateConfig(fields map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, v := range fields {
		switch k {
		case "seconds":
			f, ok := registry.AsFloat(v)
			if !ok || f <= 0 {
				return fmt.Errorf("resilience: invalid seconds %v", v)
			}
			t.config.Timeout = time.Duration(f * float64(time.Second))
		default:
			return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
		}
	}
	return nil
}

// Ensure Timeout implements registry.Pattern
var _ registry.Pattern = (*Timeout)(nil)
