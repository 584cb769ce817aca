package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lruEntry[T any] struct {
	value    T
	storedAt time.Time
}

// LRU is a bounded per-entity cache: fixed capacity with least-recently-used
// eviction, and the same fresh/stale split as TTL applied per entry.
type LRU[T any] struct {
	mu      sync.Mutex
	entries *lru.Cache[string, lruEntry[T]]
	ttl     time.Duration
	now     func() time.Time
}

type LRUOption[T any] func(*LRU[T])

func WithLRUClock[T any](now func() time.Time) LRUOption[T] {
	return func(c *LRU[T]) {
		c.now = now
	}
}

func NewLRU[T any](capacity int, ttl time.Duration, options ...LRUOption[T]) (*LRU[T], error) {
	entries, err := lru.New[string, lruEntry[T]](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c := &LRU[T]{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// Get returns the entry for key only while it is fresh. The lookup counts as
// a use for eviction purposes either way.
func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		return zero, false
	}
	return e.value, true
}

// Stale returns the entry regardless of freshness.
func (c *LRU[T]) Stale(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries.Get(key)
	if !ok {
		return zero, false
	}
	return e.value, true
}

func (c *LRU[T]) Set(key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, lruEntry[T]{value: v, storedAt: c.now()})
}

// Update applies fn to the stored entry in place, without touching storedAt.
func (c *LRU[T]) Update(key string, fn func(T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	if !ok {
		return
	}
	e.value = fn(e.value)
	c.entries.Add(key, e)
}

func (c *LRU[T]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

func (c *LRU[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

func (c *LRU[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
