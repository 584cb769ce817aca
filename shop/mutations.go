package shop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/ksuid"

	"github.com/lookbook-shop/client-go/api"
)

// runOptimistic is the three-step mutation shape: apply the local change,
// send the network mutation, reverse exactly that local change if the send
// fails. Each call captures its own prior state in the closures, so racing
// mutations roll back their own snapshot and never each other's.
func (c *Client) runOptimistic(ctx context.Context, op string, apply, rollback func(), commit func(context.Context) error) error {
	id := ksuid.New().String()
	apply()

	if err := commit(ctx); err != nil {
		rollback()
		slog.Warn("optimistic mutation rolled back", "op", op, "mutation_id", id, "error", err)
		return err
	}
	return nil
}

// ToggleFavorite flips the product's favorite state locally, then confirms
// it with the backend. On failure the flip is reversed, not refetched.
func (c *Client) ToggleFavorite(ctx context.Context, productID int64) error {
	wasFavorited := c.isFavorited(productID)

	return c.runOptimistic(ctx, "toggle_favorite",
		func() { c.setFavorited(productID, !wasFavorited) },
		func() { c.setFavorited(productID, wasFavorited) },
		func(ctx context.Context) error {
			_, err := c.dispatch.Post(ctx, "/api/v1/user/favorites/toggle",
				map[string]int64{"product_id": productID},
				api.Options{RequireAuth: true})
			return err
		},
	)
}

func (c *Client) isFavorited(productID int64) bool {
	if list, ok := c.favorites.Stale(); ok {
		for _, p := range list {
			if p.ID == productID {
				return true
			}
		}
		return false
	}
	if p, ok := c.products.Stale(productKey(productID)); ok {
		return p.IsFavorited
	}
	return false
}

// setFavorited updates every cached view of the product's favorite state:
// the product detail entry and membership in the favorites list.
func (c *Client) setFavorited(productID int64, favorited bool) {
	c.products.Update(productKey(productID), func(p Product) Product {
		p.IsFavorited = favorited
		return p
	})

	c.favorites.Update(func(list []Product) []Product {
		kept := make([]Product, 0, len(list)+1)
		for _, p := range list {
			if p.ID != productID {
				kept = append(kept, p)
			}
		}
		if !favorited {
			return kept
		}
		entry, ok := c.products.Stale(productKey(productID))
		if !ok {
			entry = Product{ID: productID}
		}
		entry.IsFavorited = true
		return append(kept, entry)
	})
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

// SwipeDirection of a browse gesture.
type SwipeDirection string

const (
	SwipeLeft  SwipeDirection = "left"
	SwipeRight SwipeDirection = "right"
)

// RecordSwipe bumps the locally-authoritative swipe counter immediately and
// reports the swipe to the backend. A failed report takes back exactly this
// swipe's increment; concurrent swipes keep theirs.
func (c *Client) RecordSwipe(ctx context.Context, productID int64, direction SwipeDirection) error {
	key := "swipeCount:" + strconv.FormatInt(productID, 10)

	return c.runOptimistic(ctx, "record_swipe",
		func() { c.addToCounter(key, 1) },
		func() { c.addToCounter(key, -1) },
		func(ctx context.Context) error {
			_, err := c.dispatch.Post(ctx, "/api/v1/user/swipes",
				map[string]any{"product_id": productID, "direction": direction},
				api.Options{RequireAuth: true})
			return err
		},
	)
}

// SwipeCount reads the local counter for a product.
func (c *Client) SwipeCount(productID int64) int64 {
	key := "swipeCount:" + strconv.FormatInt(productID, 10)
	raw, ok, err := c.parts.General.Get(key)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (c *Client) addToCounter(key string, delta int64) {
	raw, ok, err := c.parts.General.Get(key)
	if err != nil {
		slog.Warn("counter read failed", "key", key, "error", err)
		return
	}
	var n int64
	if ok {
		n, _ = strconv.ParseInt(raw, 10, 64)
	}
	if err := c.parts.General.Set(key, strconv.FormatInt(n+delta, 10)); err != nil {
		slog.Warn("counter write failed", "key", key, "error", err)
	}
}

// ProfilePatch carries the fields UpdateProfile may change. Nil fields are
// left untouched.
type ProfilePatch struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// UpdateProfile patches the cached profile immediately and persists the
// change with the backend, restoring the snapshot it took on failure.
func (c *Client) UpdateProfile(ctx context.Context, patch ProfilePatch) error {
	prior, hadPrior := c.profile.Stale()

	return c.runOptimistic(ctx, "update_profile",
		func() {
			c.profile.Update(func(p UserProfile) UserProfile {
				return applyPatch(p, patch)
			})
		},
		func() {
			if hadPrior {
				c.profile.Set(prior)
			} else {
				c.profile.Clear()
			}
		},
		func(ctx context.Context) error {
			raw, err := c.dispatch.Put(ctx, "/api/v1/user/profile", patch, api.Options{RequireAuth: true})
			if err != nil {
				return err
			}
			var updated UserProfile
			if err := json.Unmarshal(raw, &updated); err != nil {
				return nil // local state already matches; a decode hiccup is not a failed mutation
			}
			c.profile.Set(updated)
			return nil
		},
	)
}

func applyPatch(p UserProfile, patch ProfilePatch) UserProfile {
	if patch.FirstName != nil {
		p.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		p.LastName = *patch.LastName
	}
	if patch.AvatarURL != nil {
		p.AvatarURL = *patch.AvatarURL
	}
	return p
}
