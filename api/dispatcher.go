package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/ksuid"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = 500 * time.Millisecond

	maxResponseBytes = 8 << 20
)

// TokenSource is the session layer as the dispatcher sees it.
type TokenSource interface {
	// GetValidSession returns the current access token and whether it is
	// usable. It never fails; an unusable session is reported as ok=false.
	GetValidSession(ctx context.Context) (token string, ok bool)
	// RefreshToken performs one coalesced refresh and returns the new token.
	RefreshToken(ctx context.Context) (string, error)
	// HandleLoginRequired broadcasts that the UI must re-authenticate.
	HandleLoginRequired()
}

// Options controls one dispatch. The zero value means "use the dispatcher
// defaults, no auth".
type Options struct {
	RequireAuth bool
	Timeout     time.Duration // per attempt, not per call
	Retries     int           // additional attempts after the first; negative disables retries
	RetryDelay  time.Duration
	NoBackoff   bool // flat delay instead of exponential
}

type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.httpClient = c
	}
}

func WithUserAgent(ua string) Option {
	return func(d *Dispatcher) {
		d.userAgent = ua
	}
}

// WithDefaults overrides the built-in timeout/retry defaults.
func WithDefaults(opts Options) Option {
	return func(d *Dispatcher) {
		d.defaults = opts
	}
}

// Dispatcher performs JSON calls against a single API origin.
type Dispatcher struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	userAgent  string
	defaults   Options
}

func NewDispatcher(baseURL string, tokens TokenSource, options ...Option) *Dispatcher {
	d := &Dispatcher{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		tokens:     tokens,
		userAgent:  "lookbook-client/" + Version,
	}
	for _, option := range options {
		option(d)
	}
	return d
}

func (d *Dispatcher) Get(ctx context.Context, path string, opts Options) (json.RawMessage, error) {
	return d.Do(ctx, http.MethodGet, path, nil, opts)
}

func (d *Dispatcher) Post(ctx context.Context, path string, body any, opts Options) (json.RawMessage, error) {
	return d.Do(ctx, http.MethodPost, path, body, opts)
}

func (d *Dispatcher) Put(ctx context.Context, path string, body any, opts Options) (json.RawMessage, error) {
	return d.Do(ctx, http.MethodPut, path, body, opts)
}

func (d *Dispatcher) Delete(ctx context.Context, path string, opts Options) (json.RawMessage, error) {
	return d.Do(ctx, http.MethodDelete, path, nil, opts)
}

// Do issues one logical call: token attachment, per-attempt deadline,
// failure classification, a single refresh-and-replay on 401, and retries
// with backoff for transient outcomes.
func (d *Dispatcher) Do(ctx context.Context, method, path string, body any, opts Options) (json.RawMessage, error) {
	opts = d.fill(opts)

	var token string
	if opts.RequireAuth {
		var ok bool
		token, ok = d.tokens.GetValidSession(ctx)
		if !ok {
			d.tokens.HandleLoginRequired()
			return nil, ErrUnauthenticated
		}
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	requestID := ksuid.New().String()
	log := slog.With("method", method, "path", path, "request_id", requestID)

	var lastErr error
	refreshed := false
	attempts := 0
	delay := opts.RetryDelay

	for attempts <= opts.Retries {
		attempts++

		result, err := d.attempt(ctx, method, path, bodyBytes, token, opts.Timeout)
		if err == nil {
			return result, nil
		}

		// One coalesced refresh and replay per logical call. The replay does
		// not consume a retry. A 401 on an unauthenticated call (wrong
		// login password, say) is just a client error; no session was
		// involved, so the session layer stays out of it.
		var ue *unauthorizedError
		if errors.As(err, &ue) {
			if !opts.RequireAuth {
				return nil, ue.cause
			}
			if !refreshed {
				refreshed = true
				newToken, rerr := d.tokens.RefreshToken(ctx)
				if rerr != nil {
					log.Warn("token refresh failed", "error", rerr)
					d.tokens.HandleLoginRequired()
					return nil, ue.cause
				}
				token = newToken
				attempts--
				continue
			}
			d.tokens.HandleLoginRequired()
			return nil, ue.cause
		}

		if !retryable(err) {
			return nil, err
		}
		lastErr = err

		if attempts > opts.Retries {
			break
		}

		log.Debug("retrying request", "attempt", attempts, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if !opts.NoBackoff {
			delay *= 2
		}
	}

	return nil, &RetryExhaustedError{Attempts: attempts, Err: lastErr}
}

// unauthorizedError is internal to the retry loop; callers see the parsed
// server error carried in cause.
type unauthorizedError struct {
	cause error
}

func (e *unauthorizedError) Error() string { return e.cause.Error() }

func (d *Dispatcher) attempt(ctx context.Context, method, path string, body []byte, token string, timeout time.Duration) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, d.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		// The caller's context ending is not a dispatcher failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Err: err}
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read response body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &unauthorizedError{cause: parseErrorResponse(resp.StatusCode, data)}
	default:
		return nil, parseErrorResponse(resp.StatusCode, data)
	}
}

func (d *Dispatcher) fill(opts Options) Options {
	def := d.defaults
	if opts.Timeout == 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries == 0 {
		opts.Retries = def.Retries
	}
	if opts.Retries == 0 {
		opts.Retries = defaultRetries
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	return opts
}
