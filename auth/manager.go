// Package auth owns the access/refresh token pair and its validity state.
// It persists credentials to the secure store partition, coalesces
// concurrent refreshes into one token-endpoint call and broadcasts session
// lifecycle events for the UI to react to.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/sync/singleflight"

	"github.com/lookbook-shop/client-go/events"
	"github.com/lookbook-shop/client-go/store"
)

// State of the session. There is no transition out of StateExpired except
// through an explicit login or a refresh call; a stale session never
// silently revives.
type State int

const (
	StateUnknown State = iota
	StateValid
	StateExpired
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateRefreshing:
		return "refreshing"
	default:
		return "invalid"
	}
}

// expiryGrace is how long before the nominal expiry a token is already
// treated as expiring, so a refresh runs while the old token still works.
const expiryGrace = 5 * time.Minute

// TokenResponse is the token endpoint's reply.
type TokenResponse struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type Option func(*Manager)

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager is the session state machine. One instance exists per client.
type Manager struct {
	mu           sync.Mutex
	state        State
	accessToken  string
	refreshToken string
	expiresAt    time.Time

	logoutInProgress bool

	parts      store.Partitions
	bus        *events.Bus
	refreshURL string
	httpClient *http.Client
	now        func() time.Time

	flight     singleflight.Group
	resetHooks []func()
}

// NewManager restores any persisted credentials and starts in StateUnknown;
// nothing is validated until the first GetValidSession call.
func NewManager(parts store.Partitions, bus *events.Bus, refreshURL string, options ...Option) (*Manager, error) {
	m := &Manager{
		state:      StateUnknown,
		parts:      parts,
		bus:        bus,
		refreshURL: refreshURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, option := range options {
		option(m)
	}

	if err := m.restore(); err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return m, nil
}

func (m *Manager) restore() error {
	token, _, err := m.parts.Secure.Get(store.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}
	refresh, _, err := m.parts.Secure.Get(store.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("read refresh token: %w", err)
	}
	expiry, hasExpiry, err := m.parts.General.Get(store.KeyTokenExpiry)
	if err != nil {
		return fmt.Errorf("read token expiry: %w", err)
	}

	m.accessToken = token
	m.refreshToken = refresh

	if hasExpiry {
		at, err := time.Parse(time.RFC3339, expiry)
		if err != nil {
			slog.Warn("discarding unparseable token expiry", "value", expiry)
		} else {
			m.expiresAt = at
		}
	}

	// The stored expiry can be missing (older app versions persisted only
	// the tokens). Recover it from the token's exp claim.
	if m.expiresAt.IsZero() && m.accessToken != "" {
		parsed, err := jwt.ParseInsecure([]byte(m.accessToken))
		if err != nil {
			slog.Warn("stored access token is not a parseable JWT", "error", err)
		} else if exp := parsed.Expiration(); !exp.IsZero() {
			m.expiresAt = exp
		}
	}

	return nil
}

// OnReset registers a hook run during ClearSession, before the session
// cleared event fires. The client uses it to wipe every cache.
func (m *Manager) OnReset(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetHooks = append(m.resetHooks, fn)
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// GetValidSession never fails. It returns the current token while it is
// comfortably inside its lifetime, runs one coalesced refresh when the
// expiry is within the grace window, and reports ok=false (after
// broadcasting login_required) when no usable session can be produced.
// An expired session never revives here, no matter how fresh the stored
// token looks; only a login or an explicit refresh brings it back.
func (m *Manager) GetValidSession(ctx context.Context) (string, bool) {
	m.mu.Lock()
	token := m.accessToken
	expiresAt := m.expiresAt
	canRefresh := m.refreshToken != ""

	if token == "" {
		m.state = StateExpired
		m.mu.Unlock()
		m.bus.Emit(events.Event{Type: events.LoginRequired, Reason: "no session"})
		return "", false
	}

	if m.state == StateExpired {
		m.mu.Unlock()
		m.bus.Emit(events.Event{Type: events.LoginRequired, Reason: "session invalidated"})
		return "", false
	}

	if !expiresAt.IsZero() && expiresAt.Sub(m.now()) > expiryGrace {
		if m.state == StateUnknown {
			m.state = StateValid
		}
		m.mu.Unlock()
		return token, true
	}
	m.mu.Unlock()

	// Token missing its expiry or inside the grace window: refresh it.
	m.bus.Emit(events.Event{Type: events.TokenExpired})

	if !canRefresh {
		m.mu.Lock()
		m.state = StateExpired
		m.mu.Unlock()
		m.bus.Emit(events.Event{Type: events.LoginRequired, Reason: "token expired, no refresh token"})
		return "", false
	}

	newToken, err := m.RefreshToken(ctx)
	if err != nil {
		return "", false
	}
	return newToken, true
}

// RefreshToken exchanges the refresh token for a new token pair. Concurrent
// callers share a single in-flight exchange and receive the same result. On
// failure the session transitions to StateExpired and login_required is
// broadcast once, unless a logout is already tearing the session down.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	token, err, _ := m.flight.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	refresh := m.refreshToken
	if refresh == "" {
		m.state = StateExpired
		m.mu.Unlock()
		return "", fmt.Errorf("no refresh token")
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	resp, err := m.exchange(ctx, refresh)
	if err != nil {
		m.mu.Lock()
		m.state = StateExpired
		quiet := m.logoutInProgress
		m.mu.Unlock()

		slog.Warn("session refresh failed", "error", err)
		if !quiet {
			m.bus.Emit(events.Event{Type: events.LoginRequired, Reason: "refresh failed"})
		}
		return "", err
	}

	if err := m.StoreSession(resp.Token, resp.ExpiresAt, resp.RefreshToken); err != nil {
		m.mu.Lock()
		m.state = StateExpired
		m.mu.Unlock()
		return "", fmt.Errorf("persist refreshed session: %w", err)
	}

	slog.Debug("session refreshed", "expires_at", resp.ExpiresAt)
	m.bus.Emit(events.Event{Type: events.TokenRefreshed})
	return resp.Token, nil
}

func (m *Manager) exchange(ctx context.Context, refresh string) (*TokenResponse, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refresh})
	if err != nil {
		return nil, fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.refreshURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", res.StatusCode, bytes.TrimSpace(data))
	}

	tr := new(TokenResponse)
	if err := json.Unmarshal(data, tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.Token == "" {
		return nil, fmt.Errorf("token endpoint returned no token")
	}
	return tr, nil
}

// StoreSession persists new credentials and marks the session valid. An
// empty refreshToken keeps the previous one (token endpoints may rotate the
// refresh token or not).
func (m *Manager) StoreSession(token string, expiresAt time.Time, refreshToken string) error {
	if err := m.parts.Secure.Set(store.KeyAccessToken, token); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if refreshToken != "" {
		if err := m.parts.Secure.Set(store.KeyRefreshToken, refreshToken); err != nil {
			return fmt.Errorf("persist refresh token: %w", err)
		}
	}
	if err := m.parts.General.Set(store.KeyTokenExpiry, expiresAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("persist token expiry: %w", err)
	}

	m.mu.Lock()
	m.accessToken = token
	m.expiresAt = expiresAt
	if refreshToken != "" {
		m.refreshToken = refreshToken
	}
	m.state = StateValid
	m.mu.Unlock()
	return nil
}

// ClearSession wipes every trace of the session: tokens, persisted cache
// material, in-process caches (via reset hooks). It is idempotent; the
// logoutInProgress guard collapses concurrent calls so session_cleared is
// emitted exactly once per logical logout.
func (m *Manager) ClearSession() error {
	m.mu.Lock()
	if m.logoutInProgress {
		m.mu.Unlock()
		return nil
	}
	m.logoutInProgress = true
	hooks := make([]func(), len(m.resetHooks))
	copy(hooks, m.resetHooks)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.logoutInProgress = false
		m.mu.Unlock()
	}()

	if err := m.parts.Secure.Clear(); err != nil {
		return fmt.Errorf("clear secure store: %w", err)
	}
	if err := m.parts.General.Clear(); err != nil {
		return fmt.Errorf("clear general store: %w", err)
	}

	for _, hook := range hooks {
		hook()
	}

	m.mu.Lock()
	m.accessToken = ""
	m.refreshToken = ""
	m.expiresAt = time.Time{}
	m.state = StateExpired
	m.mu.Unlock()

	slog.Info("session cleared")
	m.bus.Emit(events.Event{Type: events.SessionCleared})
	return nil
}

// HandleLoginRequired broadcasts login_required unconditionally, even when
// the session is already expired, so listeners that subscribed after the
// original failure still hear about it.
func (m *Manager) HandleLoginRequired() {
	m.mu.Lock()
	if m.state == StateValid || m.state == StateUnknown {
		m.state = StateExpired
	}
	m.mu.Unlock()
	m.bus.Emit(events.Event{Type: events.LoginRequired})
}
