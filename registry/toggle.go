package registry

import "sync/atomic"

// Toggle is the enable/disable gate bit shared by all patterns. The zero
// value is enabled. Embed it to satisfy the Enabled/Enable/Disable part of
// the Pattern interface.
type Toggle struct {
	disabled atomic.Bool
}

// Enabled reports whether the gate is active.
func (t *Toggle) Enabled() bool {
	return !t.disabled.Load()
}

// Enable turns the gate on.
func (t *Toggle) Enable() {
	t.disabled.Store(false)
}

// Disable turns the gate off. Disabled guards pass calls through without
// protection and without error.
func (t *Toggle) Disable() {
	t.disabled.Store(true)
}
