// Package cache holds the client's in-memory caches: per-resource TTL
// singletons (optionally mirrored to the persistent store with a longer
// TTL) and bounded LRU maps for per-entity resources.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lookbook-shop/client-go/store"
)

// envelope is the persisted mirror format: the JSON-encoded value plus the
// moment it was stored.
type envelope struct {
	Data json.RawMessage `json:"data"`
	Time time.Time       `json:"time"`
}

type TTLOption[T any] func(*TTL[T])

// WithMirror mirrors every Set into the given store under key, with its own
// (typically much longer) freshness window used by Load at boot.
func WithMirror[T any](s store.Store, key string, ttl time.Duration) TTLOption[T] {
	return func(c *TTL[T]) {
		c.mirror = s
		c.mirrorKey = key
		c.mirrorTTL = ttl
	}
}

func WithTTLClock[T any](now func() time.Time) TTLOption[T] {
	return func(c *TTL[T]) {
		c.now = now
	}
}

// TTL is a single-slot cache. A value is fresh iff now-storedAt < ttl;
// values past that window are only reachable through Stale, which fallback
// paths use when a refreshing fetch fails.
type TTL[T any] struct {
	mu       sync.Mutex
	value    T
	storedAt time.Time
	has      bool
	ttl      time.Duration

	mirror    store.Store
	mirrorKey string
	mirrorTTL time.Duration

	now func() time.Time
}

func NewTTL[T any](ttl time.Duration, options ...TTLOption[T]) *TTL[T] {
	c := &TTL[T]{
		ttl: ttl,
		now: time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Get returns the value only while it is fresh.
func (c *TTL[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if !c.has {
		return zero, false
	}
	if c.now().Sub(c.storedAt) >= c.ttl {
		return zero, false
	}
	return c.value, true
}

// Stale returns whatever is stored, fresh or not.
func (c *TTL[T]) Stale() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if !c.has {
		return zero, false
	}
	return c.value, true
}

// Set stores v and, when a mirror is configured, writes it through.
func (c *TTL[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.storedAt = c.now()
	c.has = true
	mirror, key, at := c.mirror, c.mirrorKey, c.storedAt
	c.mu.Unlock()

	if mirror == nil {
		return
	}
	if err := writeMirror(mirror, key, v, at); err != nil {
		slog.Warn("cache mirror write failed", "key", key, "error", err)
	}
}

// Update applies fn to the stored value in place, without touching storedAt.
// Optimistic mutations use it to patch cached state synchronously.
func (c *TTL[T]) Update(fn func(T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		return
	}
	c.value = fn(c.value)
}

func (c *TTL[T]) Clear() {
	c.mu.Lock()
	var zero T
	c.value = zero
	c.has = false
	c.storedAt = time.Time{}
	mirror, key := c.mirror, c.mirrorKey
	c.mu.Unlock()

	if mirror == nil {
		return
	}
	if err := mirror.Delete(key); err != nil {
		slog.Warn("cache mirror delete failed", "key", key, "error", err)
	}
}

// Load hydrates the memory slot from a still-live mirror entry, keeping the
// original storedAt. A fresh boot can then serve slightly stale data through
// the fallback path while the first network refresh runs.
func (c *TTL[T]) Load() error {
	if c.mirror == nil {
		return nil
	}

	raw, ok, err := c.mirror.Get(c.mirrorKey)
	if err != nil {
		return fmt.Errorf("read mirror %q: %w", c.mirrorKey, err)
	}
	if !ok {
		return nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return fmt.Errorf("decode mirror %q: %w", c.mirrorKey, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Sub(env.Time) >= c.mirrorTTL {
		return nil
	}

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return fmt.Errorf("decode mirror value %q: %w", c.mirrorKey, err)
	}
	c.value = v
	c.storedAt = env.Time
	c.has = true
	return nil
}

func writeMirror[T any](s store.Store, key string, v T, at time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	env, err := json.Marshal(envelope{Data: data, Time: at})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return s.Set(key, string(env))
}
