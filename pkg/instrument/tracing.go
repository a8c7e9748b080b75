package instrument

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/derive/pkg/derive"
)

// Default tracer name for derive instrumentation.
const defaultTracerName = "github.com/vango-dev/derive"

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	// TracerName is the name of the tracer.
	TracerName string

	// Provider supplies the tracer. Default: otel.GetTracerProvider().
	Provider trace.TracerProvider

	// Filter determines which events to trace.
	// Return true to trace the event, false to skip.
	// If nil, all recomputes and failures are traced.
	Filter func(derive.Event) bool
}

// TracingOption configures the OpenTelemetry exporter.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = tp
	}
}

// WithFilter sets a filter function for events.
func WithFilter(filter func(derive.Event) bool) TracingOption {
	return func(c *TracingConfig) {
		c.Filter = filter
	}
}

// Tracing is a derive.Observer that emits a span per recompute.
type Tracing struct {
	tracer trace.Tracer
	filter func(derive.Event) bool
}

// OpenTelemetry creates a tracing exporter.
//
// Each recompute becomes a span named "derive.recompute <store>", started at
// the moment the derivation began and ended when it returned. Failed
// derivations produce a span with an error status.
func OpenTelemetry(opts ...TracingOption) *Tracing {
	config := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	provider := config.Provider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracing{
		tracer: provider.Tracer(config.TracerName),
		filter: config.Filter,
	}
}

// Observe implements derive.Observer.
func (t *Tracing) Observe(e derive.Event) {
	if e.Kind != derive.EventRecomputed && e.Kind != derive.EventFailed {
		return
	}
	if t.filter != nil && !t.filter(e) {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("derive.store", e.Store),
		attribute.Int64("derive.store_id", int64(e.StoreID)),
	}
	start := e.At.Add(-e.Duration)
	name := fmt.Sprintf("derive.recompute %s", e.Store)

	_, span := t.tracer.Start(context.Background(), name,
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	if e.Kind == derive.EventFailed {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	} else {
		span.SetAttributes(attribute.Bool("derive.changed", e.Changed))
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.At))
}
