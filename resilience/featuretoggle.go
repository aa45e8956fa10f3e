package resilience

import (
	"context"
	"fmt"

	"github.com/jonwraymond/failsafe/events"
	"github.com/jonwraymond/failsafe/registry"
)

// KindFeatureToggle is the registry kind of feature toggles.
const KindFeatureToggle = "featuretoggle"

// FeatureToggleConfig configures the feature toggle.
type FeatureToggleConfig struct {
	// Name identifies the toggle in the registry and on the event bus.
	Name string

	// Enabled is the initial state. Default: true.
	Enabled *bool

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

// FeatureToggle gates an operation behind a runtime flag. Unlike the other
// guards, disabling a toggle does not pass calls through: it denies them
// with ErrFeatureDisabled so callers can route to an alternative.
type FeatureToggle struct {
	registry.Toggle

	bus    *events.Bus
	config FeatureToggleConfig
}

// NewFeatureToggle creates a new feature toggle.
func NewFeatureToggle(config FeatureToggleConfig) *FeatureToggle {
	if config.Name == "" {
		config.Name = "featuretoggle"
	}

	ft := &FeatureToggle{
		bus:    config.Bus,
		config: config,
	}
	if config.Enabled != nil && !*config.Enabled {
		ft.Disable()
	}
	return ft
}

// Execute runs the operation when the feature is on, and returns
// ErrFeatureDisabled when it is off.
func (ft *FeatureToggle) Execute(ctx context.Context, op func(context.Context) error) error {
	if !ft.Enabled() {
		ft.bus.Emit(KindFeatureToggle, ft.config.Name, "denied")
		return ErrFeatureDisabled
	}
	return op(ctx)
}

// ExecuteWith runs the operation when the feature is on and the alternate
// path when it is off.
func (ft *FeatureToggle) ExecuteWith(ctx context.Context, op, alternate func(context.Context) error) error {
	if !ft.Enabled() {
		ft.bus.Emit(KindFeatureToggle, ft.config.Name, "routed")
		return alternate(ctx)
	}
	return op(ctx)
}

// Kind returns "featuretoggle".
func (ft *FeatureToggle) Kind() string { return KindFeatureToggle }

// Name returns the toggle name.
func (ft *FeatureToggle) Name() string { return ft.config.Name }

// Config returns a snapshot of the toggle state.
func (ft *FeatureToggle) Config() map[string]any {
	return map[string]any{
		"enabled": ft.Enabled(),
	}
}

// UpdateConfig rejects all fields; toggling happens via the control
// endpoints.
func (ft *FeatureToggle) UpdateConfig(fields map[string]any) error {
	for k := range fields {
		return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
	}
	return nil
}

// Ensure FeatureToggle implements registry.Pattern
var _ registry.Pattern = (*FeatureToggle)(nil)
