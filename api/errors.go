// Package api dispatches HTTP requests against the Lookbook backend: it
// attaches bearer tokens, enforces per-attempt deadlines, classifies
// failures and retries the transient ones with exponential backoff.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when a call requires a session and none is
// available. It is never retried; the session layer has already broadcast
// login_required by the time a caller sees it.
var ErrUnauthenticated = errors.New("not authenticated")

// TimeoutError marks an attempt that exceeded its deadline. Retryable.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError marks a DNS or connection level failure. Retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is an HTTP 5xx response. Retryable, then surfaced.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// ClientError is an HTTP 4xx response other than 401 and 422. Not retried.
type ClientError struct {
	Status  int
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.Status, e.Message)
}

// FieldError is one entry of a structured validation failure.
type FieldError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

// ValidationError is an HTTP 422 with field-keyed details. Not retried.
type ValidationError struct {
	Fields []FieldError
}

// Error joins the per-field messages into one human-readable line.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if len(f.Loc) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Loc[len(f.Loc)-1], f.Msg))
		} else {
			parts = append(parts, f.Msg)
		}
	}
	return strings.Join(parts, "; ")
}

// RetryExhaustedError wraps the last retryable failure after all attempts.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// errorBody is the backend's error envelope: {"detail": string} for plain
// errors, {"detail": [{loc, msg}]} for validation failures.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// parseErrorResponse turns a non-2xx response body into a typed error.
func parseErrorResponse(status int, body []byte) error {
	message := strings.TrimSpace(string(body))

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Detail) > 0 {
		var fields []FieldError
		if err := json.Unmarshal(eb.Detail, &fields); err == nil && len(fields) > 0 {
			if status == http.StatusUnprocessableEntity {
				return &ValidationError{Fields: fields}
			}
			message = (&ValidationError{Fields: fields}).Error()
		} else {
			var detail string
			if err := json.Unmarshal(eb.Detail, &detail); err == nil {
				message = detail
			}
		}
	}

	if status >= http.StatusInternalServerError {
		return &ServerError{Status: status, Message: message}
	}
	return &ClientError{Status: status, Message: message}
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var tr *TransportError
	if errors.As(err, &tr) {
		return true
	}
	var se *ServerError
	return errors.As(err, &se)
}
