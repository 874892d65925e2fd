package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer sets the tracer to be used for tracing.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// GetActiveSpan returns the recording span from the context, or nil.
func GetActiveSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

// StartSpan starts a new span with the given name and returns the context and span.
// Without a configured tracer the span is a no-op.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// Carrier returns the W3C trace context headers for the active span.
func Carrier(ctx context.Context) propagation.MapCarrier {
	carrier := propagation.MapCarrier{}
	if GetActiveSpan(ctx) == nil {
		return carrier
	}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier
}

// GetTraceParent returns the traceparent header value for the active span.
func GetTraceParent(ctx context.Context) string {
	return Carrier(ctx).Get("traceparent")
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the span ID from the context.
func GetSpanID(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().SpanID().String()
}

// GetTraceState returns the tracestate header value for the active span.
func GetTraceState(ctx context.Context) string {
	return Carrier(ctx).Get("tracestate")
}
