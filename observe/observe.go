// Package observe wires the core event bus into OpenTelemetry and owns the
// telemetry providers for the process.
package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Config holds all configuration for the Observer.
type Config struct {
	ServiceName string
	Version     string
	Metrics     MetricsConfig
	Tracing     TracingConfig
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|stdout|none
	SamplePct float64 // 0.0-1.0
}

// Observer owns the telemetry providers and hands out meters and tracers.
type Observer struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	sdkMeter  *sdkmetric.MeterProvider
	sdkTracer *sdktrace.TracerProvider
}

// New builds an Observer from config. Disabled subsystems get no-op
// providers, so callers never need nil checks.
func New(ctx context.Context, config Config) (*Observer, error) {
	if config.ServiceName == "" {
		config.ServiceName = "failsafe"
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: building resource: %w", err)
	}

	o := &Observer{
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}

	if config.Metrics.Enabled {
		reader, err := newMetricsReader(ctx, config.Metrics.Exporter)
		if err != nil {
			return nil, err
		}
		o.sdkMeter = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		o.meterProvider = o.sdkMeter
	}

	if config.Tracing.Enabled {
		exporter, err := newTraceExporter(ctx, config.Tracing.Exporter)
		if err != nil {
			return nil, err
		}
		sample := config.Tracing.SamplePct
		if sample <= 0 || sample > 1 {
			sample = 1
		}
		o.sdkTracer = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sample))),
		)
		o.tracerProvider = o.sdkTracer
	}

	return o, nil
}

// Meter returns a meter from the configured provider.
func (o *Observer) Meter(name string) metric.Meter {
	return o.meterProvider.Meter(name)
}

// Tracer returns a tracer from the configured provider.
func (o *Observer) Tracer(name string) trace.Tracer {
	return o.tracerProvider.Tracer(name)
}

// SetGlobal installs the providers as OTel globals.
func (o *Observer) SetGlobal() {
	otel.SetMeterProvider(o.meterProvider)
	otel.SetTracerProvider(o.tracerProvider)
}

// Shutdown flushes and stops the providers.
func (o *Observer) Shutdown(ctx context.Context) error {
	var errs []error
	if o.sdkMeter != nil {
		errs = append(errs, o.sdkMeter.Shutdown(ctx))
	}
	if o.sdkTracer != nil {
		errs = append(errs, o.sdkTracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
