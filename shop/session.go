package shop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lookbook-shop/client-go/api"
	"github.com/lookbook-shop/client-go/auth"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Login authenticates with email-or-username and password. Caches are wiped
// before the new session lands so nothing from a previous account can leak
// into this one.
func (c *Client) Login(ctx context.Context, identifier, password string) (UserProfile, error) {
	raw, err := c.dispatch.Post(ctx, "/api/v1/auth/login",
		loginRequest{Identifier: identifier, Password: password},
		api.Options{Retries: -1})
	if err != nil {
		return UserProfile{}, err
	}

	var resp authResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return UserProfile{}, fmt.Errorf("decode login response: %w", err)
	}

	c.clearCaches()

	if err := c.auth.StoreSession(resp.Token, resp.ExpiresAt, resp.RefreshToken); err != nil {
		return UserProfile{}, err
	}

	c.profile.Set(resp.User)
	slog.Info("logged in", "user", resp.User.Username)
	return resp.User, nil
}

// Logout tells the backend the session is over (best effort) and clears all
// local session state. It never fails because of the network.
func (c *Client) Logout(ctx context.Context) error {
	if c.auth.State() == auth.StateValid {
		if _, err := c.dispatch.Post(ctx, "/api/v1/auth/logout", nil,
			api.Options{RequireAuth: true, Retries: -1}); err != nil {
			slog.Warn("server-side logout failed", "error", err)
		}
	}
	return c.auth.ClearSession()
}
