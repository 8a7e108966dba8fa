package otel

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "sensorschema", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.ExporterType)
}

func TestParseExporterType(t *testing.T) {
	tests := []struct {
		in      string
		want    ExporterType
		wantErr bool
	}{
		{in: "", want: ExporterNone},
		{in: "none", want: ExporterNone},
		{in: "stdout", want: ExporterStdout},
		{in: "otlp-grpc", want: ExporterOTLPGRPC},
		{in: "otlp-http", want: ExporterOTLPHTTP},
		{in: "zipkin", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExporterType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewTracerDisabled(t *testing.T) {
	ctx := context.Background()
	tracer, err := NewTracer(ctx, DefaultConfig())
	require.NoError(t, err)
	defer tracer.Shutdown(ctx)

	assert.False(t, tracer.Enabled())

	_, span := tracer.StartSpan(ctx, "test-span")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestNewTracerWithNilConfig(t *testing.T) {
	ctx := context.Background()
	tracer, err := NewTracer(ctx, nil)
	require.NoError(t, err)
	defer tracer.Shutdown(ctx)

	assert.False(t, tracer.Enabled())
}

func TestNewTracerUnknownExporter(t *testing.T) {
	_, err := NewTracer(context.Background(), &Config{
		Enabled:      true,
		ServiceName:  "test",
		ExporterType: ExporterType("zipkin"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown exporter type")
}

func TestStartValidationSpanStdout(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	tracer, err := NewTracer(ctx, &Config{
		Enabled:        true,
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		ExporterType:   ExporterStdout,
		Writer:         &buf,
		Attributes:     map[string]string{"deployment": "ci"},
	})
	require.NoError(t, err)
	assert.True(t, tracer.Enabled())

	spanCtx, span := tracer.StartValidationSpan(ctx, ValidationSpanOptions{
		Phase:      "validate",
		RootSchema: "SensorInfo",
		InputPath:  "SensorInfo.json",
	})
	assert.True(t, span.SpanContext().IsValid())

	traceID, spanID := GetTraceInfo(spanCtx)
	assert.Len(t, traceID, 32)
	assert.Len(t, spanID, 16)

	RecordResult(span, false, 2)
	RecordError(span, errors.New("boom"), "load")
	span.End()

	require.NoError(t, tracer.Shutdown(ctx))

	out := buf.String()
	assert.Contains(t, out, "sensorschema.validate")
	assert.Contains(t, out, "sensorschema.root_schema")
	assert.Contains(t, out, "SensorInfo.json")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, traceID)
}

func TestGetTraceInfoNoSpan(t *testing.T) {
	traceID, spanID := GetTraceInfo(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestRecordHelpersTolerateNil(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError(nil, errors.New("x"), "load")
		RecordResult(nil, true, 0)
	})
}

func TestGlobalTracer(t *testing.T) {
	SetGlobalTracer(nil)
	noop := GetGlobalTracer()
	require.NotNil(t, noop)
	assert.False(t, noop.Enabled())

	tracer := NoopTracer()
	SetGlobalTracer(tracer)
	defer SetGlobalTracer(nil)
	assert.Same(t, tracer, GetGlobalTracer())
}

func TestExtractContextFromEnvCarrier(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	tracer, err := NewTracer(ctx, &Config{
		Enabled:      true,
		ServiceName:  "test",
		ExporterType: ExporterStdout,
		Writer:       &buf,
	})
	require.NoError(t, err)
	defer tracer.Shutdown(ctx)

	env := map[string]string{
		EnvTraceParent: "00-0102030405060708090a0b0c0d0e0f10-0102030405060708-01",
	}
	carrier := EnvCarrier(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	assert.Equal(t, []string{"traceparent", "tracestate", "baggage"}, carrier.Keys())

	parent := ExtractContext(ctx, carrier, tracer)
	_, span := tracer.StartSpan(parent, "child")
	defer span.End()

	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", span.SpanContext().TraceID().String())
}

func TestExtractContextDisabled(t *testing.T) {
	ctx := context.Background()
	carrier := EnvCarrier(func(string) (string, bool) {
		return "00-0102030405060708090a0b0c0d0e0f10-0102030405060708-01", true
	})
	assert.Equal(t, ctx, ExtractContext(ctx, carrier, NoopTracer()))
	assert.Equal(t, ctx, ExtractContext(ctx, carrier, nil))
}
