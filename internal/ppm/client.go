// Package ppm is the client for the PPM backend's REST object API.
package ppm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ahmetk3436/ppmchat/internal/metrics"
)

// MaxResults is the backend's hard ceiling on returned records per call.
const MaxResults = 500

// IdentityField is the backend's internal record id attribute.
const IdentityField = "_internalId"

var tracer = otel.Tracer("ppmchat.ppm")

// API is the subset of the object API the assistant core depends on.
type API interface {
	Get(ctx context.Context, endpoint string) (*Response, error)
	Post(ctx context.Context, endpoint string, body any) (*Response, error)
	Patch(ctx context.Context, endpoint string, body any) (*Response, error)
	Delete(ctx context.Context, endpoint string) (*Response, error)
}

// Response is a decoded object API reply. Collection endpoints fill Results
// and TotalCount from "_results" and "_totalCount".
type Response struct {
	StatusCode int
	Results    []map[string]any
	TotalCount int
	Raw        map[string]any
}

// Auth carries the credentials injected into every outbound request.
type Auth struct {
	Type     string // bearer, cookie or basic
	Token    string
	Cookie   string
	Username string
	Password string
}

type Options struct {
	BaseURL      string
	Auth         Auth
	Timeout      time.Duration
	RetryCount   int
	RetryBackoff time.Duration
	RateLimit    float64 // requests per second, 0 disables
}

// Client talks to the object API over fasthttp. Safe for concurrent use.
type Client struct {
	baseURL string
	auth    Auth
	timeout time.Duration
	retries int
	backoff time.Duration
	limiter *rate.Limiter
	http    *fasthttp.Client
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1)
	}
	return &Client{
		baseURL: opts.BaseURL,
		auth:    opts.Auth,
		timeout: opts.Timeout,
		retries: opts.RetryCount,
		backoff: opts.RetryBackoff,
		limiter: limiter,
		http: &fasthttp.Client{
			Name:                "ppmchat",
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			MaxIdleConnDuration: 90 * time.Second,
		},
	}
}

func (c *Client) Get(ctx context.Context, endpoint string) (*Response, error) {
	return c.do(ctx, fasthttp.MethodGet, endpoint, nil)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any) (*Response, error) {
	return c.do(ctx, fasthttp.MethodPost, endpoint, body)
}

func (c *Client) Patch(ctx context.Context, endpoint string, body any) (*Response, error) {
	return c.do(ctx, fasthttp.MethodPatch, endpoint, body)
}

func (c *Client) Delete(ctx context.Context, endpoint string) (*Response, error) {
	return c.do(ctx, fasthttp.MethodDelete, endpoint, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*Response, error) {
	ctx, span := tracer.Start(ctx, "ppm."+method)
	defer span.End()
	span.SetAttributes(attribute.String("ppm.endpoint", endpoint))

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(span, method, endpoint, 0, err, attempt+1, start)
		}

		status, respBody, err := c.send(ctx, method, endpoint, payload)
		if err == nil && status >= 200 && status < 300 {
			metrics.RecordRemoteCall(method, status, time.Since(start))
			span.SetAttributes(attribute.Int("ppm.status", status), attribute.Int("ppm.attempts", attempt+1))
			return decodeResponse(status, respBody)
		}

		if err == nil {
			err = errors.New(errorMessage(respBody))
		}

		if !retryable(status, err) || attempt >= c.retries {
			return nil, c.fail(span, method, endpoint, status, err, attempt+1, start)
		}

		metrics.RecordRetry(method)
		wait := time.Duration(attempt+1) * c.backoff
		slog.Warn("PPM call failed, retrying",
			"method", method,
			"endpoint", endpoint,
			"status", status,
			"attempt", attempt+1,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, c.fail(span, method, endpoint, 0, ctx.Err(), attempt+1, start)
		case <-time.After(wait):
		}
	}
}

func (c *Client) fail(span trace.Span, method, endpoint string, status int, cause error, attempts int, start time.Time) error {
	metrics.RecordRemoteCall(method, status, time.Since(start))
	callErr := newRemoteCallError(method, endpoint, status, cause, attempts)
	span.RecordError(callErr)
	span.SetStatus(codes.Error, callErr.Kind)
	return callErr
}

// send performs a single HTTP exchange. The returned body is a copy owned by
// the caller.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		remaining := time.Until(dl)
		if remaining <= 0 {
			return 0, nil, context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + endpoint)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	c.applyAuth(&req.Header)
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return 0, nil, err
	}

	body := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), body, nil
}

func (c *Client) applyAuth(h *fasthttp.RequestHeader) {
	switch c.auth.Type {
	case "cookie":
		if c.auth.Cookie != "" {
			h.Set("Cookie", c.auth.Cookie)
		}
	case "basic":
		if c.auth.Username != "" {
			cred := base64.StdEncoding.EncodeToString([]byte(c.auth.Username + ":" + c.auth.Password))
			h.Set("Authorization", "Basic "+cred)
		}
	default:
		if c.auth.Token != "" {
			h.Set("Authorization", "Bearer "+c.auth.Token)
		}
	}
}

// retryable reports whether a failed exchange may be attempted again.
// Auth failures and deterministic client errors never are.
func retryable(status int, err error) bool {
	switch {
	case status == 0:
		return !errors.Is(err, context.Canceled)
	case status == 401 || status == 403:
		return false
	case status == 408 || status == 429:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

func decodeResponse(status int, body []byte) (*Response, error) {
	resp := &Response{StatusCode: status}
	if len(body) == 0 {
		return resp, nil
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Some mutation endpoints answer with plain text.
		return resp, nil
	}

	switch v := decoded.(type) {
	case map[string]any:
		resp.Raw = v
		if items, ok := v["_results"].([]any); ok {
			resp.Results = toRecords(items)
		}
		if n, ok := v["_totalCount"].(float64); ok {
			resp.TotalCount = int(n)
		} else {
			resp.TotalCount = len(resp.Results)
		}
	case []any:
		resp.Results = toRecords(v)
		resp.TotalCount = len(resp.Results)
	}
	return resp, nil
}

func toRecords(items []any) []map[string]any {
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	return records
}

func errorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"errorMessage", "message", "error", "resourceErrors"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	if len(body) == 0 {
		return "empty response"
	}
	return string(body)
}
