package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Request builds and executes a single HTTP request.
type Request interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string) (*Response, error)
	Delete(ctx context.Context, path string) (*Response, error)

	SetBody(body interface{}) Request
	SetHeader(key, value string) Request
	SetQueryParam(key, value string) Request
	SetResult(result interface{}) Request
}

// RequestOptions holds per-request configuration.
type RequestOptions struct {
	responseErrorHandler ResponseErrorHandler
	labels               []*Label
}

// RequestOption configures a single request.
type RequestOption func(*RequestOptions)

// ResponseErrorHandler decides whether a response body is an error.
type ResponseErrorHandler func(statusCode int, body []byte) error

// WithResponseErrorHandler sets a custom error handler for responses.
func WithResponseErrorHandler(handler ResponseErrorHandler) RequestOption {
	return func(o *RequestOptions) { o.responseErrorHandler = handler }
}

// Label is a key-value pair for metric attributes.
type Label struct {
	Key   string
	Value string
}

// NewLabel creates a new label.
func NewLabel(key, value string) *Label {
	return &Label{Key: key, Value: value}
}

// WithLabels sets metric labels for the request.
func WithLabels(labels ...*Label) RequestOption {
	return func(o *RequestOptions) { o.labels = labels }
}

// Response wraps http.Response with the consumed body.
type Response struct {
	*http.Response
	body []byte
}

// Body returns the response body as bytes.
func (r *Response) Body() []byte {
	return r.body
}

// IsError returns true if the status code indicates an error (>= 400).
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

type requestBuilder struct {
	client         *http.Client
	requestCounter metric.Int64Counter
	providerName   string
	tracer         trace.Tracer
	baseURL        string
	headers        map[string]string
	queryParams    url.Values
	body           interface{}
	result         interface{}
	errorHandler   ResponseErrorHandler
	labels         []*Label
}

func (r *requestBuilder) Get(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodGet, path)
}

func (r *requestBuilder) Post(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodPost, path)
}

func (r *requestBuilder) Delete(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodDelete, path)
}

func (r *requestBuilder) SetBody(body interface{}) Request {
	r.body = body
	return r
}

func (r *requestBuilder) SetHeader(key, value string) Request {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *requestBuilder) SetQueryParam(key, value string) Request {
	if r.queryParams == nil {
		r.queryParams = url.Values{}
	}
	r.queryParams.Set(key, value)
	return r
}

func (r *requestBuilder) SetResult(result interface{}) Request {
	r.result = result
	return r
}

func (r *requestBuilder) execute(ctx context.Context, method, path string) (*Response, error) {
	ctx, span := r.tracer.Start(ctx, "http.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", path),
			attribute.String("provider", r.providerName),
		),
	)
	defer span.End()

	fullURL := path
	if r.baseURL != "" && !strings.HasPrefix(path, "http") {
		fullURL = strings.TrimSuffix(r.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	if len(r.queryParams) > 0 {
		separator := "?"
		if strings.Contains(fullURL, "?") {
			separator = "&"
		}
		fullURL = fullURL + separator + r.queryParams.Encode()
	}

	var bodyReader io.Reader
	if r.body != nil {
		switch b := r.body.(type) {
		case []byte:
			bodyReader = bytes.NewReader(b)
		case string:
			bodyReader = strings.NewReader(b)
		case io.Reader:
			bodyReader = b
		default:
			jsonBody, err := json.Marshal(b)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to marshal body")
				return nil, fmt.Errorf("failed to marshal body: %w", err)
			}
			bodyReader = bytes.NewReader(jsonBody)
			if r.headers == nil {
				r.headers = make(map[string]string)
			}
			if _, ok := r.headers["Content-Type"]; !ok {
				r.headers["Content-Type"] = "application/json"
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.recordError(ctx, span, err)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read body")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	response := &Response{Response: resp, body: body}

	if r.result != nil && len(body) > 0 {
		// Unmarshal failure is recorded but does not fail the request;
		// the error handler below sees the raw body either way.
		if err := json.Unmarshal(body, r.result); err != nil {
			span.RecordError(err)
		}
	}

	if resp.StatusCode >= 400 {
		span.SetAttributes(
			attribute.Int("http.status_code", resp.StatusCode),
			attribute.String("http.error.status", resp.Status),
		)
	}

	if r.errorHandler != nil {
		if handlerErr := r.errorHandler(resp.StatusCode, body); handlerErr != nil {
			r.recordMetrics(ctx, false)
			span.SetStatus(codes.Error, handlerErr.Error())
			return response, handlerErr
		}
	}

	r.recordMetrics(ctx, !response.IsError())
	return response, nil
}

func (r *requestBuilder) recordError(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)

	var netErr net.Error
	if errors.Is(err, context.Canceled) {
		span.SetAttributes(attribute.Bool("context.cancelled", true))
	}
	if errors.As(err, &netErr) && netErr.Timeout() {
		span.SetAttributes(attribute.Bool("request.timeout", true))
	}

	span.SetStatus(codes.Error, err.Error())
	r.recordMetrics(ctx, false)
}

func (r *requestBuilder) recordMetrics(ctx context.Context, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", r.providerName),
		attribute.Bool("success", success),
	}
	for _, label := range r.labels {
		attrs = append(attrs, attribute.String(label.Key, label.Value))
	}
	r.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
