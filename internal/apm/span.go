package apm

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span is the slice of the OTEL span surface the pipeline uses.
// NoticeError both records the error and marks the span failed, which
// takes two calls on the raw API.
type Span interface {
	SetAttributes(values ...attribute.KeyValue)
	AddEvent(name string, options ...trace.EventOption)
	NoticeError(err error)
	SpanContext() trace.SpanContext
	IsRecording() bool
	End(options ...trace.SpanEndOption)
}

type traceSpan struct {
	span trace.Span
}

func NewSpan(span trace.Span) Span {
	return &traceSpan{span: span}
}

func (t *traceSpan) SetAttributes(values ...attribute.KeyValue) {
	t.span.SetAttributes(values...)
}

func (t *traceSpan) AddEvent(name string, options ...trace.EventOption) {
	t.span.AddEvent(name, options...)
}

// NoticeError records err and marks the span as failed.
func (t *traceSpan) NoticeError(err error) {
	t.span.RecordError(err)
	t.span.SetStatus(codes.Error, err.Error())
}

func (t *traceSpan) SpanContext() trace.SpanContext {
	return t.span.SpanContext()
}

func (t *traceSpan) IsRecording() bool {
	return t.span.IsRecording()
}

func (t *traceSpan) End(options ...trace.SpanEndOption) {
	t.span.End(options...)
}
