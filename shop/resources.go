package shop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lookbook-shop/client-go/api"
)

// fetchCached is the shared read path: fresh cache hit, otherwise one
// deduplicated fetch through the dispatcher with write-through on success.
// When the resource tolerates degraded data (hasFallback) a failed fetch
// falls back to whatever stale value is still around.
func fetchCached[T any](ctx context.Context, c *Client, key string, slot *cacheSlot[T], hasFallback bool, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := slot.get(); ok {
		return v, nil
	}

	result, err, _ := c.flights.Do(key, func() (any, error) {
		// A waiter that queued behind the winner may find the cache already
		// populated; singleflight alone does not cover flights that start
		// right after one settles.
		if v, ok := slot.get(); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		slot.set(v)
		return v, nil
	})
	if err == nil {
		return result.(T), nil
	}

	if hasFallback {
		if stale, ok := slot.stale(); ok {
			slog.Warn("serving stale cache after failed fetch", "resource", key, "error", err)
			return stale, nil
		}
	}

	var zero T
	return zero, err
}

// cacheSlot adapts the TTL singleton and one LRU entry to the same shape so
// fetchCached can serve both.
type cacheSlot[T any] struct {
	get   func() (T, bool)
	stale func() (T, bool)
	set   func(T)
}

func ttlSlot[T any](c interface {
	Get() (T, bool)
	Stale() (T, bool)
	Set(T)
}) *cacheSlot[T] {
	return &cacheSlot[T]{get: c.Get, stale: c.Stale, set: c.Set}
}

func (c *Client) getJSON(ctx context.Context, path string, opts api.Options, out any) error {
	raw, err := c.dispatch.Get(ctx, path, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Brands returns the brand catalog. Safe to serve stale.
func (c *Client) Brands(ctx context.Context) ([]Brand, error) {
	return fetchCached(ctx, c, "brands", ttlSlot[[]Brand](c.brands), true, func(ctx context.Context) ([]Brand, error) {
		var out []Brand
		err := c.getJSON(ctx, "/api/v1/brands", api.Options{RequireAuth: true}, &out)
		return out, err
	})
}

// Styles returns the style catalog. Safe to serve stale.
func (c *Client) Styles(ctx context.Context) ([]Style, error) {
	return fetchCached(ctx, c, "styles", ttlSlot[[]Style](c.styles), true, func(ctx context.Context) ([]Style, error) {
		var out []Style
		err := c.getJSON(ctx, "/api/v1/styles", api.Options{RequireAuth: true}, &out)
		return out, err
	})
}

// Categories returns the category catalog. Safe to serve stale.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	return fetchCached(ctx, c, "categories", ttlSlot[[]Category](c.categories), true, func(ctx context.Context) ([]Category, error) {
		var out []Category
		err := c.getJSON(ctx, "/api/v1/categories", api.Options{RequireAuth: true}, &out)
		return out, err
	})
}

// PopularProducts returns the popularity-ranked feed. Safe to serve stale.
func (c *Client) PopularProducts(ctx context.Context) ([]Product, error) {
	return fetchCached(ctx, c, "popular", ttlSlot[[]Product](c.popular), true, func(ctx context.Context) ([]Product, error) {
		var out []Product
		err := c.getJSON(ctx, "/api/v1/products/popular", api.Options{RequireAuth: true}, &out)
		return out, err
	})
}

// Product returns one product's details through the bounded LRU cache. A
// stale or missing entry always costs a fetch; there is no degraded mode
// for detail views.
func (c *Client) Product(ctx context.Context, id int64) (Product, error) {
	key := productKey(id)
	slot := &cacheSlot[Product]{
		get:   func() (Product, bool) { return c.products.Get(key) },
		stale: func() (Product, bool) { return c.products.Stale(key) },
		set:   func(p Product) { c.products.Set(key, p) },
	}
	return fetchCached(ctx, c, key, slot, false, func(ctx context.Context) (Product, error) {
		var out Product
		err := c.getJSON(ctx, fmt.Sprintf("/api/v1/products/%d", id), api.Options{RequireAuth: true}, &out)
		return out, err
	})
}

// Profile returns the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (UserProfile, error) {
	return fetchCached(ctx, c, "profile", ttlSlot[UserProfile](c.profile), false, func(ctx context.Context) (UserProfile, error) {
		var out UserProfile
		err := c.getJSON(ctx, "/api/v1/user/profile", api.Options{RequireAuth: true}, &out)
		return out, err
	})
}

// Favorites returns the signed-in user's liked products.
func (c *Client) Favorites(ctx context.Context) ([]Product, error) {
	return fetchCached(ctx, c, "favorites", ttlSlot[[]Product](c.favorites), false, func(ctx context.Context) ([]Product, error) {
		var out []Product
		err := c.getJSON(ctx, "/api/v1/user/favorites", api.Options{RequireAuth: true}, &out)
		return out, err
	})
}
