package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jonwraymond/failsafe/events"
)

func TestNew_DisabledSubsystemsAreNoop(t *testing.T) {
	o, err := New(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer o.Shutdown(context.Background())

	if o.Meter("m") == nil {
		t.Error("Meter() = nil, want no-op meter")
	}
	if o.Tracer("t") == nil {
		t.Error("Tracer() = nil, want no-op tracer")
	}
}

func TestNew_UnknownExporter(t *testing.T) {
	_, err := New(context.Background(), Config{
		Metrics: MetricsConfig{Enabled: true, Exporter: "bogus"},
	})
	if err == nil {
		t.Error("New() error = nil, want unknown-exporter error")
	}
}

func TestNew_NoneExporters(t *testing.T) {
	o, err := New(context.Background(), Config{
		Metrics: MetricsConfig{Enabled: true, Exporter: "none"},
		Tracing: TracingConfig{Enabled: true, Exporter: "none"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := o.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestBridge_RecordsEvents(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	bridge, err := NewBridge(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	bus := events.NewBus()
	bus.Subscribe(bridge)

	bus.Emit("ratelimit", "api", "throttled")
	bus.Emit("ratelimit", "api", "throttled")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "failsafe.pattern.events" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("data type = %T, want Sum[int64]", m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}

	if total != 2 {
		t.Errorf("recorded events = %d, want 2", total)
	}
}
