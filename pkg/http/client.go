// Package http provides an outbound HTTP client with retries, a
// circuit breaker and request metrics, used for webhook style
// integrations such as alert channels.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"algotrader/pkg/telemetry"
)

// StatusError is a non-2xx response surfaced as an error.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status=%d body=%s", e.StatusCode, string(e.Body))
}

// Client wraps http.Client with a retry policy for transient upstream
// failures and a circuit breaker so a dead endpoint stops consuming
// request budget.
type Client struct {
	client   *http.Client
	pipeline failsafe.Executor[*http.Response]

	tracer      trace.Tracer
	reqCounter  metric.Int64Counter
	errCounter  metric.Int64Counter
	latencyHist metric.Float64Histogram
}

// NewClient builds a client with the default resilience policies:
// up to three retries with backoff on network errors, 5xx and 429,
// and a breaker opening after 5 failures out of 10.
func NewClient(timeout time.Duration) *Client {
	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	meter := telemetry.GetMeter("http-client")
	reqCounter, _ := meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of outbound HTTP requests"))
	errCounter, _ := meter.Int64Counter("http_errors_total",
		metric.WithDescription("Total number of outbound HTTP errors"))
	latencyHist, _ := meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("Outbound HTTP request latency in seconds"))

	return &Client{
		client:      &http.Client{Timeout: timeout},
		pipeline:    failsafe.With[*http.Response](retryPolicy, breaker),
		tracer:      telemetry.GetTracer("http-client"),
		reqCounter:  reqCounter,
		errCounter:  errCounter,
		latencyHist: latencyHist,
	}
}

// Get sends a GET request to the full URL with optional query params.
func (c *Client) Get(ctx context.Context, url string, params map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	req.URL.RawQuery = q.Encode()
	return c.do(req)
}

// PostJSON sends the body as a JSON POST to the full URL.
func (c *Client) PostJSON(ctx context.Context, url string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	ctx := req.Context()

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, req.URL.Host),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.host", req.URL.Host),
		),
	)
	defer span.End()
	req = req.WithContext(ctx)

	resp, err := c.pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		return c.client.Do(req)
	})

	attrs := metric.WithAttributes(
		attribute.String("method", req.Method),
		attribute.String("host", req.URL.Host),
	)
	c.reqCounter.Add(ctx, 1, attrs)
	c.latencyHist.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		span.RecordError(err)
		c.errCounter.Add(ctx, 1, attrs)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.errCounter.Add(ctx, 1, attrs)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}
