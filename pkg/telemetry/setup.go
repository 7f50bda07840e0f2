package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func newMetricExporter(ctx context.Context, opts []otlpmetrichttp.Option) (*otlpmetrichttp.Exporter, error) {
	return otlpmetrichttp.New(ctx, opts...)
}

// Setup wires up both the metrics provider (telemetry.New) and, when an
// endpoint is configured, an OTLP/HTTP trace exporter registered as the
// global TracerProvider. It returns the Telemetry handle for metrics; the
// returned shutdown func tears down tracing as well as the caller's own
// tel.Shutdown call tears down metrics.
func Setup(ctx context.Context, cfg Config) (tel *Telemetry, shutdown func(context.Context) error, err error) {
	tel, err = New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	shutdown = func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		return tel, shutdown, nil
	}

	traceOpts := newOTLPHTTPOptions(cfg.Endpoint, cfg.Insecure, cfg.Headers).traceOptions()
	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
		// Only sample when there is a parent trace/link; relayq never starts local roots.
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.NeverSample())),
	)
	otel.SetTracerProvider(tp)

	shutdown = func(shutdownCtx context.Context) error {
		return tp.Shutdown(shutdownCtx)
	}

	return tel, shutdown, nil
}

// Tracer returns a named tracer from the process-global TracerProvider.
// Before Setup is called (or when no endpoint is configured) this is a
// no-op tracer, which is safe: span creation and recording are then cheap
// no-ops rather than errors.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
