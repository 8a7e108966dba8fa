package otel

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

// Environment variables carrying W3C trace context into a CLI invocation.
const (
	EnvTraceParent = "TRACEPARENT"
	EnvTraceState  = "TRACESTATE"
	EnvBaggage     = "BAGGAGE"
)

// EnvCarrier adapts a lookup function (normally os.LookupEnv) to a TextMapCarrier.
// Keys map to upper-case variable names, so "traceparent" reads TRACEPARENT.
type EnvCarrier func(key string) (string, bool)

// Get returns the value for key.
func (c EnvCarrier) Get(key string) string {
	v, _ := c(strings.ToUpper(key))
	return v
}

// Set is a no-op; a process cannot export variables to its parent.
func (c EnvCarrier) Set(string, string) {}

// Keys lists the supported carrier keys.
func (c EnvCarrier) Keys() []string {
	return []string{
		strings.ToLower(EnvTraceParent),
		strings.ToLower(EnvTraceState),
		strings.ToLower(EnvBaggage),
	}
}

var _ propagation.TextMapCarrier = EnvCarrier(nil)

// ExtractFromEnv continues a trace started by the calling process, e.g. a CI job
// that exports TRACEPARENT before invoking sensorschema.
func ExtractFromEnv(ctx context.Context, tracer *Tracer) context.Context {
	return ExtractContext(ctx, EnvCarrier(os.LookupEnv), tracer)
}

// ExtractContext extracts trace context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier, tracer *Tracer) context.Context {
	if tracer == nil || !tracer.Enabled() {
		return ctx
	}
	return tracer.Propagator().Extract(ctx, carrier)
}

