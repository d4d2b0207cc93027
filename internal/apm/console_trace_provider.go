package apm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleTraceProvider prints spans to stdout. For local debugging only.
type ConsoleTraceProvider struct {
	tp *sdktrace.TracerProvider
}

// NewEmptyTraceProvider returns a provider that records nothing.
func NewEmptyTraceProvider() TraceProvider {
	return ConsoleTraceProvider{}
}

func NewConsoleTraceProvider() TraceProvider {
	exporter, _ := stdouttrace.New(stdouttrace.WithPrettyPrint())
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return ConsoleTraceProvider{tp: tp}
}

func (p ConsoleTraceProvider) Stop() error {
	if p.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}
