package registry

import (
	"sync"

	"github.com/jonwraymond/failsafe/events"
)

// Metrics accumulates per-pattern counters from the event bus for
// control-plane introspection.
type Metrics struct {
	mu       sync.RWMutex
	counters map[key]map[string]float64
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[key]map[string]float64)}
}

// OnEvent accumulates a published event. Implements events.Listener.
func (m *Metrics) OnEvent(e events.Event) {
	m.Increment(e.Kind, e.Name, e.Metric, e.Value)
}

// Increment adds v to the named counter.
func (m *Metrics) Increment(kind, name, metric string, v float64) {
	k := key{kind: kind, name: name}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[k]
	if !ok {
		c = make(map[string]float64)
		m.counters[k] = c
	}
	c[metric] += v
}

// Snapshot returns a copy of the counters for one pattern.
func (m *Metrics) Snapshot(kind, name string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.counters[key{kind: kind, name: name}]
	if !ok {
		return map[string]float64{}
	}

	out := make(map[string]float64, len(c))
	for metric, v := range c {
		out[metric] = v
	}
	return out
}

// All returns a copy of every pattern's counters keyed "kind/name".
func (m *Metrics) All() map[string]map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]float64, len(m.counters))
	for k, c := range m.counters {
		cp := make(map[string]float64, len(c))
		for metric, v := range c {
			cp[metric] = v
		}
		out[k.kind+"/"+k.name] = cp
	}
	return out
}

// Reset clears the counters for one pattern.
func (m *Metrics) Reset(kind, name string) {
	m.mu.Lock()
	delete(m.counters, key{kind: kind, name: name})
	m.mu.Unlock()
}

// Ensure Metrics implements events.Listener
var _ events.Listener = (*Metrics)(nil)
