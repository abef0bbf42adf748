// Package observability provides OpenTelemetry tracing for analysis runs.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every strata span.
const TracerName = "github.com/panbanda/strata"

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g. "localhost:4317").
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0).
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "strata",
		ServiceVersion: "dev",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs an OTLP exporter as the global tracer provider.
// Without an endpoint the global provider is left alone and spans are no-ops.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Sampler maps a sample rate onto an sdk sampler.
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes and stops the exporter, if one was installed.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Attribute keys shared by strata spans.
const (
	AttrStage = attribute.Key("strata.stage")
	AttrPass  = attribute.Key("strata.pass")
	AttrRoot  = attribute.Key("strata.root")
	AttrItems = attribute.Key("strata.items")
)

// StartRun starts the span covering one engine run.
func StartRun(ctx context.Context, root string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "strata.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrRoot.String(root)),
	)
}

// StartStage starts a span for a pipeline stage such as scan or parse.
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "stage."+stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrStage.String(stage)),
	)
}

// StartPass starts a span for one analysis pass.
func StartPass(ctx context.Context, pass string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "pass."+pass,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrStage.String("analyze"),
			AttrPass.String(pass),
		),
	)
}

// RecordItems records how many items a stage produced.
func RecordItems(span trace.Span, n int, extra ...attribute.KeyValue) {
	span.SetAttributes(AttrItems.Int(n))
	if len(extra) > 0 {
		span.SetAttributes(extra...)
	}
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
