package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookbook-shop/client-go/cache"
	"github.com/lookbook-shop/client-go/store"
)

// fakeClock is a hand-advanced time source for deterministic TTL tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestTTLFreshWindow(t *testing.T) {
	clock := newFakeClock()
	c := cache.NewTTL(time.Minute, cache.WithTTLClock[string](clock.Now))

	_, ok := c.Get()
	assert.False(t, ok)

	c.Set("hello")

	v, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	// Freshness holds right up to, but not including, the TTL boundary.
	clock.Advance(time.Minute - time.Nanosecond)
	_, ok = c.Get()
	assert.True(t, ok)

	clock.Advance(time.Nanosecond)
	_, ok = c.Get()
	assert.False(t, ok)

	stale, ok := c.Stale()
	assert.True(t, ok)
	assert.Equal(t, "hello", stale)
}

func TestTTLUpdateKeepsStoredAt(t *testing.T) {
	clock := newFakeClock()
	c := cache.NewTTL(time.Minute, cache.WithTTLClock[int](clock.Now))

	c.Set(1)
	clock.Advance(30 * time.Second)
	c.Update(func(n int) int { return n + 1 })

	v, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	// The patch did not extend the value's life.
	clock.Advance(30 * time.Second)
	_, ok = c.Get()
	assert.False(t, ok)
}

func TestTTLUpdateOnEmptyIsNoop(t *testing.T) {
	c := cache.NewTTL[int](time.Minute)
	c.Update(func(n int) int { return n + 1 })

	_, ok := c.Stale()
	assert.False(t, ok)
}

func TestTTLClear(t *testing.T) {
	c := cache.NewTTL[string](time.Minute)
	c.Set("x")
	c.Clear()

	_, ok := c.Get()
	assert.False(t, ok)
	_, ok = c.Stale()
	assert.False(t, ok)
}

func TestTTLMirrorWriteThroughAndLoad(t *testing.T) {
	clock := newFakeClock()
	mirror := store.NewMemory()

	c := cache.NewTTL(time.Minute,
		cache.WithMirror[[]string](mirror, "cache:things", time.Hour),
		cache.WithTTLClock[[]string](clock.Now))

	c.Set([]string{"a", "b"})

	_, ok, err := mirror.Get("cache:things")
	require.NoError(t, err)
	assert.True(t, ok)

	// A second cache over the same mirror hydrates from it with the
	// original timestamp, so the value is already past its in-memory TTL.
	clock.Advance(10 * time.Minute)
	restored := cache.NewTTL(time.Minute,
		cache.WithMirror[[]string](mirror, "cache:things", time.Hour),
		cache.WithTTLClock[[]string](clock.Now))
	require.NoError(t, restored.Load())

	_, ok = restored.Get()
	assert.False(t, ok)
	stale, ok := restored.Stale()
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, stale)
}

func TestTTLLoadSkipsExpiredMirror(t *testing.T) {
	clock := newFakeClock()
	mirror := store.NewMemory()

	c := cache.NewTTL(time.Minute,
		cache.WithMirror[string](mirror, "cache:thing", time.Hour),
		cache.WithTTLClock[string](clock.Now))
	c.Set("old")

	clock.Advance(2 * time.Hour)
	restored := cache.NewTTL(time.Minute,
		cache.WithMirror[string](mirror, "cache:thing", time.Hour),
		cache.WithTTLClock[string](clock.Now))
	require.NoError(t, restored.Load())

	_, ok := restored.Stale()
	assert.False(t, ok)
}

func TestTTLLoadRejectsCorruptMirror(t *testing.T) {
	mirror := store.NewMemory()
	require.NoError(t, mirror.Set("cache:thing", "not an envelope"))

	c := cache.NewTTL(time.Minute, cache.WithMirror[string](mirror, "cache:thing", time.Hour))
	assert.Error(t, c.Load())
}

func TestTTLClearDeletesMirror(t *testing.T) {
	mirror := store.NewMemory()
	c := cache.NewTTL(time.Minute, cache.WithMirror[string](mirror, "cache:thing", time.Hour))

	c.Set("x")
	c.Clear()

	_, ok, err := mirror.Get("cache:thing")
	require.NoError(t, err)
	assert.False(t, ok)
}
