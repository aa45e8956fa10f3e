package resilience

import (
	"context"
	"fmt"

	"github.com/jonwraymond/failsafe/events"
	"github.com/jonwraymond/failsafe/registry"
)

// KindFallback is the registry kind of fallbacks.
const KindFallback = "fallback"

// FallbackConfig configures the fallback guard.
type FallbackConfig struct {
	// Name identifies the guard in the registry and on the event bus.
	Name string

	// Handler is the alternate path invoked with the primary's error.
	Handler func(ctx context.Context, err error) error

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

// Fallback invokes an alternate path when the wrapped operation fails.
type Fallback struct {
	registry.Toggle

	bus    *events.Bus
	config FallbackConfig
}

// NewFallback creates a new fallback guard.
func NewFallback(config FallbackConfig) *Fallback {
	if config.Name == "" {
		config.Name = "fallback"
	}

	return &Fallback{
		bus:    config.Bus,
		config: config,
	}
}

// Execute runs the operation, routing any failure to the fallback handler.
func (f *Fallback) Execute(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil || !f.Enabled() || f.config.Handler == nil {
		return err
	}

	f.bus.Emit(KindFallback, f.config.Name, "fallback")
	return f.config.Handler(ctx, err)
}

// Kind returns "fallback".
func (f *Fallback) Kind() string { return KindFallback }

// Name returns the guard name.
func (f *Fallback) Name() string { return f.config.Name }

// Config returns a snapshot of the fallback configuration.
func (f *Fallback) Config() map[string]any {
	return map[string]any{
		"enabled": f.Enabled(),
	}
}

// UpdateConfig rejects all fields; the fallback handler is code, not
// configuration.
func (f *Fallback) UpdateConfig(fields map[string]any) error {
	for k := range fields {
		return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
	}
	return nil
}

// Ensure Fallback implements registry.Pattern
var _ registry.Pattern = (*Fallback)(nil)
