package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans routes the global tracer into an in-memory recorder.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attrs(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "strata", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, &TracingConfig{ServiceName: "test"})
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NotNil(t, tp.Tracer())
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestInitTracing_NilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, tp)
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
	}
	for _, tt := range tests {
		if got := Sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("Sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
	assert.Contains(t, Sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestSpans(t *testing.T) {
	rec := recordSpans(t)

	ctx, run := StartRun(context.Background(), "/src")
	_, stage := StartStage(ctx, "parse")
	RecordItems(stage, 12, attribute.Int("strata.cache_hits", 3))
	stage.End()
	_, pass := StartPass(ctx, "complexity")
	pass.End()
	run.End()

	spans := rec.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, "stage.parse", spans[0].Name())
	a := attrs(spans[0].Attributes())
	assert.Equal(t, "parse", a[AttrStage].AsString())
	assert.Equal(t, int64(12), a[AttrItems].AsInt64())
	assert.Equal(t, int64(3), a["strata.cache_hits"].AsInt64())
	assert.Equal(t, spans[2].SpanContext().SpanID(), spans[0].Parent().SpanID())

	assert.Equal(t, "pass.complexity", spans[1].Name())
	assert.Equal(t, "complexity", attrs(spans[1].Attributes())[AttrPass].AsString())

	assert.Equal(t, "strata.run", spans[2].Name())
	assert.Equal(t, "/src", attrs(spans[2].Attributes())[AttrRoot].AsString())
}

func TestRecordError(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartStage(context.Background(), "scan")
	RecordError(span, nil)
	RecordError(span, errors.New("root unreadable"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "root unreadable", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 1)
}
