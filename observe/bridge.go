package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/failsafe/events"
)

// Bridge converts core bus events into OpenTelemetry counter increments.
// Subscribe it to the bus at startup:
//
//	bridge, _ := observe.NewBridge(observer.Meter("failsafe"))
//	bus.Subscribe(bridge)
type Bridge struct {
	counter metric.Int64Counter
}

// NewBridge creates a bridge publishing to the given meter.
func NewBridge(meter metric.Meter) (*Bridge, error) {
	counter, err := meter.Int64Counter(
		"failsafe.pattern.events",
		metric.WithDescription("Resilience pattern events by kind, name and metric"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: creating event counter: %w", err)
	}

	return &Bridge{counter: counter}, nil
}

// OnEvent records a bus event. Implements events.Listener.
func (b *Bridge) OnEvent(e events.Event) {
	attrs := make([]attribute.KeyValue, 0, 3+len(e.Attributes))
	attrs = append(attrs,
		attribute.String("pattern.kind", e.Kind),
		attribute.String("pattern.name", e.Name),
		attribute.String("pattern.metric", e.Metric),
	)
	for k, v := range e.Attributes {
		attrs = append(attrs, attribute.String("pattern."+k, v))
	}

	b.counter.Add(context.Background(), int64(e.Value), metric.WithAttributes(attrs...))
}

// Ensure Bridge implements events.Listener
var _ events.Listener = (*Bridge)(nil)
