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

// KindFailFast is the registry kind of failfast guards.
const KindFailFast = "failfast"

// FailFastConfig configures the failfast guard.
type FailFastConfig struct {
	// Name identifies the guard in the registry and on the event bus.
	Name string

	// FailureThreshold is the number of failures before the guard trips.
	// Default: 5
	FailureThreshold int

	// AutoReset clears a tripped guard after this period. Zero means the
	// guard stays tripped until Reset is called.
	AutoReset time.Duration

	// IsFailure determines if an error counts as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool

	// Clock overrides the time source. Default: system clock.
	Clock clock.Clock

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

// FailFast rejects all calls once a failure budget is spent, until reset.
type FailFast struct {
	registry.Toggle

	clk clock.Clock
	bus *events.Bus

	mu        sync.Mutex
	config    FailFastConfig
	failures  int
	tripped   bool
	trippedAt time.Time
}

// NewFailFast creates a new failfast guard in the untripped state.
func NewFailFast(config FailFastConfig) *FailFast {
	if config.Name == "" {
		config.Name = "failfast"
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Clock == nil {
		config.Clock = clock.System()
	}

	return &FailFast{
		clk:    config.Clock,
		bus:    config.Bus,
		config: config,
	}
}

// Execute runs the operation unless the guard is tripped.
func (f *FailFast) Execute(ctx context.Context, op func(context.Context) error) error {
	if !f.Enabled() {
		return op(ctx)
	}

	f.mu.Lock()
	if f.tripped {
		if f.config.AutoReset > 0 && f.clk.Now().Sub(f.trippedAt) >= f.config.AutoReset {
			f.resetLocked()
		} else {
			f.mu.Unlock()
			f.bus.Emit(KindFailFast, f.config.Name, "rejected")
			return ErrFailFastOpen
		}
	}
	f.mu.Unlock()

	err := op(ctx)

	if f.config.IsFailure(err) {
		f.mu.Lock()
		f.failures++
		if !f.tripped && f.failures >= f.config.FailureThreshold {
			f.tripped = true
			f.trippedAt = f.clk.Now()
			f.bus.Emit(KindFailFast, f.config.Name, "tripped")
		}
		f.mu.Unlock()
	}
	return err
}

// Tripped reports whether the guard is rejecting calls.
func (f *FailFast) Tripped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tripped
}

// Reset clears the trip state and the failure counter.
func (f *FailFast) Reset() {
	f.mu.Lock()
	f.resetLocked()
	f.mu.Unlock()
}

func (f *FailFast) resetLocked() {
	f.failures = 0
	f.tripped = false
	f.trippedAt = time.Time{}
}

// Kind returns "failfast".
func (f *FailFast) Kind() string { return KindFailFast }

// Name returns the guard name.
func (f *FailFast) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config.Name
}

// Config returns a snapshot of the failfast configuration and state.
func (f *FailFast) Config() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	return map[string]any{
		"enabled":           f.Enabled(),
		"failure_threshold": f.config.FailureThreshold,
		"auto_reset":        f.config.AutoReset.Seconds(),
		"failures":          f.failures,
		"tripped":           f.tripped,
	}
}

// UpdateConfig applies the whitelisted failure_threshold field.
func (f *FailFast) UpdateConfig(fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for k, v := range fields {
		switch k {
		case "failure_threshold":
			n, ok := registry.AsInt(v)
			if !ok || n < 1 {
				return fmt.Errorf("resilience: invalid failure_threshold %v", v)
			}
			f.config.FailureThreshold = n
		default:
			return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
		}
	}
	return nil
}

// Ensure FailFast implements registry.Pattern
var _ registry.Pattern = (*FailFast)(nil)
