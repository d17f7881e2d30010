package ppm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
)

// Error kinds reported by RemoteCallError.Kind.
const (
	KindNotFound = "not_found"
	KindAuth     = "auth"
	KindTimeout  = "timeout"
	KindOther    = "other"
)

// RemoteCallError is returned when a call to the object API fails after the
// retry budget is spent, or immediately for auth failures.
type RemoteCallError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Kind       string
	Message    string
	Attempts   int
	Err        error
}

func (e *RemoteCallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Method, e.Endpoint, e.Message)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

func newRemoteCallError(method, endpoint string, status int, cause error, attempts int) *RemoteCallError {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &RemoteCallError{
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: status,
		Kind:       classify(status, cause, msg),
		Message:    msg,
		Attempts:   attempts,
		Err:        cause,
	}
}

// classify buckets a failure by status code first and falls back to
// matching the error text.
func classify(status int, cause error, msg string) string {
	switch status {
	case 404:
		return KindNotFound
	case 401, 403:
		return KindAuth
	case 408, 504:
		return KindTimeout
	}

	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, fasthttp.ErrTimeout) {
		return KindTimeout
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"), strings.Contains(lower, "does not exist"):
		return KindNotFound
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "forbidden"),
		strings.Contains(lower, "authentication"), strings.Contains(lower, "permission"):
		return KindAuth
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return KindTimeout
	default:
		return KindOther
	}
}
