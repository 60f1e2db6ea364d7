// Package telemetry wires the global otel trace/meter providers the rest
// of the service's tracers (e.g. internal/storage/sql's package-level
// tracer) attach to. It stands in for the distilled spec's "profiler
// channel" collaborator (§6A).
package telemetry

import (
	"context"
	"fmt"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Providers holds the process-wide trace and metric providers, both
// registered as otel globals on Init so that `otel.Tracer(name)` calls
// elsewhere in the module (internal/storage/sql's package-level tracer)
// pick them up without any wiring beyond Init having run first.
type Providers struct {
	Trace *sdktrace.TracerProvider
	Meter *sdkmetric.MeterProvider
}

// Init registers stdout-exporting trace and metric providers as the otel
// globals for serviceName. A stdout exporter is the development default —
// swapping in OTLP is a matter of replacing the two exporter constructors,
// not touching any call site, since every call site only ever asks
// `otel.Tracer`/`otel.Meter` for the current global.
func Init(ctx context.Context, serviceName string) (*Providers, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: build metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return &Providers{Trace: tp, Meter: mp}, nil
}

// Shutdown flushes and stops both providers, bounded by ctx.
func (p *Providers) Shutdown(ctx context.Context) error {
	if err := p.Trace.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
	}
	if err := p.Meter.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
	}
	return nil
}
