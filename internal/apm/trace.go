package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer creates spans against the globally installed trace provider.
// Components hold one Tracer each, named after the component.
type Tracer interface {
	StartSpanFromContext(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span)
	SpanFromContext(ctx context.Context) Span
	GetTracer() trace.Tracer
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer scoped to name. Spans are no-ops until a
// trace provider is installed.
func NewTracer(name string) Tracer {
	return &otelTracer{
		tracer: otel.Tracer(name),
	}
}

func (t *otelTracer) StartSpanFromContext(
	ctx context.Context, name string, opts ...trace.SpanStartOption,
) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, NewSpan(span)
}

func (t *otelTracer) SpanFromContext(ctx context.Context) Span {
	return NewSpan(trace.SpanFromContext(ctx))
}

func (t *otelTracer) GetTracer() trace.Tracer {
	return t.tracer
}
