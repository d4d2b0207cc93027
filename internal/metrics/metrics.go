// Package metrics wires OpenTelemetry meter providers with Prometheus
// and OTLP collector exporters.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

func buildReaders(ctx context.Context, cfg Config) ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader

	for _, provider := range cfg.Providers {
		switch provider.Kind {
		case PrometheusProvider:
			promExporter, err := prometheus.New()
			if err != nil {
				return nil, fmt.Errorf("metrics: prometheus exporter: %w", err)
			}

			readers = append(readers, promExporter)
		case OtelCollector:
			opts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpointURL(provider.Endpoint),
				otlpmetricgrpc.WithHeaders(provider.Headers),
			}

			if provider.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			}

			exp, err := otlpmetricgrpc.New(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("metrics: otlp exporter: %w", err)
			}

			readers = append(readers, sdkmetric.NewPeriodicReader(exp))
		}
	}

	if len(readers) == 0 {
		// No explicit provider configured; fall back to the ambient OTLP
		// environment (OTEL_EXPORTER_OTLP_* variables).
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("metrics: default otlp exporter: %w", err)
		}

		readers = append(readers, sdkmetric.NewPeriodicReader(exp))
	}

	return readers, nil
}

// NewMetricProvider builds a meter provider from the given options and
// installs it as the global OTEL meter provider.
func NewMetricProvider(options ...OptionFn) (MetricProvider, error) {
	ctx := context.Background()

	var cfg Config

	for _, opt := range options {
		cfg = opt(cfg)
	}

	readers, err := buildReaders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var sdkOpts []sdkmetric.Option

	for _, reader := range readers {
		sdkOpts = append(sdkOpts, sdkmetric.WithReader(reader))
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}

	sdkOpts = append(sdkOpts, sdkmetric.WithResource(
		resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
	))

	meterProvider := sdkmetric.NewMeterProvider(sdkOpts...)

	otel.SetMeterProvider(meterProvider)

	return meterProvider, nil
}

// ServePrometheusMetrics exposes /metrics on the configured port. Blocks
// until the server fails, so run it in its own goroutine.
func ServePrometheusMetrics(opt ...PromOptionFn) error {
	cfg := PromServerConfig{port: "2223"}

	for _, o := range opt {
		cfg = o(cfg)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server.ListenAndServe()
}
