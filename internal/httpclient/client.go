// Package httpclient provides an instrumented HTTP client with OTEL tracing and metrics.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultDialKeepAlive   = 10 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 5
	defaultIdleConnTimeout = 2 * time.Minute

	metricRequestCounter = "http_client_requests_total"
)

// Client builds and executes instrumented HTTP requests against one venue.
type Client interface {
	// NewRequest creates a request builder with default options.
	NewRequest() Request
	// NewRequestWithOptions creates a request builder with custom options.
	NewRequestWithOptions(opts ...RequestOption) Request
}

// Options holds configuration for the instrumented client.
type Options struct {
	providerName   string
	baseURL        string
	requestTimeout time.Duration
	headers        map[string]string
	transport      http.RoundTripper
	tracer         trace.Tracer
}

// Option configures the client.
type Option func(*Options)

// WithProviderName sets the provider name used in metric and trace attributes.
func WithProviderName(name string) Option {
	return func(o *Options) { o.providerName = name }
}

// WithBaseURL sets the base URL prepended to relative request paths.
func WithBaseURL(url string) Option {
	return func(o *Options) { o.baseURL = url }
}

// WithRequestTimeout sets the overall request timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.requestTimeout = timeout }
}

// WithHeaders sets default headers applied to every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *Options) { o.headers = headers }
}

// WithTransport sets a custom HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *Options) { o.transport = rt }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Options) { o.tracer = tracer }
}

type instrumentedClient struct {
	client         *http.Client
	requestCounter metric.Int64Counter
	providerName   string
	tracer         trace.Tracer
	baseURL        string
	defaultHeaders map[string]string
}

// New creates a new instrumented HTTP client.
func New(opts ...Option) (Client, error) {
	options := &Options{}
	for _, o := range opts {
		o(options)
	}

	timeout := options.requestTimeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	transport := options.transport
	if transport == nil {
		transport = &http.Transport{
			DialContext: (&net.Dialer{
				KeepAlive: defaultDialKeepAlive,
			}).DialContext,
			MaxConnsPerHost: defaultMaxConnsPerHost,
			IdleConnTimeout: defaultIdleConnTimeout,
		}
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(
			transport,
			otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
				return otelhttptrace.NewClientTrace(ctx)
			}),
		),
	}

	providerName := options.providerName
	if providerName == "" {
		providerName = "default"
	}

	meter := otel.GetMeterProvider().Meter(
		"instrumented_http_client",
		metric.WithInstrumentationAttributes(attribute.String("provider", providerName)),
	)

	requestCounter, err := meter.Int64Counter(
		metricRequestCounter,
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	tracer := options.tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer("instrumented_http_client")
	}

	return &instrumentedClient{
		client:         httpClient,
		requestCounter: requestCounter,
		providerName:   providerName,
		tracer:         tracer,
		baseURL:        options.baseURL,
		defaultHeaders: options.headers,
	}, nil
}

func (c *instrumentedClient) NewRequest() Request {
	return c.NewRequestWithOptions()
}

func (c *instrumentedClient) NewRequestWithOptions(opts ...RequestOption) Request {
	reqOpts := &RequestOptions{}
	for _, o := range opts {
		o(reqOpts)
	}

	headers := make(map[string]string, len(c.defaultHeaders))
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}

	return &requestBuilder{
		client:         c.client,
		requestCounter: c.requestCounter,
		providerName:   c.providerName,
		tracer:         c.tracer,
		baseURL:        c.baseURL,
		headers:        headers,
		errorHandler:   reqOpts.responseErrorHandler,
		labels:         reqOpts.labels,
	}
}
