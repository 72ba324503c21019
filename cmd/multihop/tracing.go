package main

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/scrypster/multihop/internal/config"
)

const serviceName = "multihop"

// newTracerProvider builds a batching tracer provider for the configured
// exporter. It returns nil for the none exporter. Stdout spans go to w so
// they never mix with command output.
func newTracerProvider(ctx context.Context, cfg config.TraceConfig, w io.Writer) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	switch cfg.Exporter {
	case config.TraceExporterNone, "":
		return nil, nil

	case config.TraceExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))

	case config.TraceExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

// startTracing installs the configured provider as the global one.
func (o *options) startTracing(ctx context.Context, w io.Writer) error {
	tp, err := newTracerProvider(ctx, o.cfg.Trace, w)
	if err != nil || tp == nil {
		return err
	}

	o.tracing = tp
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	o.logger.Info("tracing enabled", "exporter", o.cfg.Trace.Exporter)
	return nil
}

// shutdownTracing flushes pending spans.
func (o *options) shutdownTracing(ctx context.Context) error {
	if o.tracing == nil {
		return nil
	}
	tp := o.tracing
	o.tracing = nil
	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("flush traces: %w", err)
	}
	return nil
}
