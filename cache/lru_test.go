package cache_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookbook-shop/client-go/cache"
)

func TestLRUFreshWindowPerEntry(t *testing.T) {
	clock := newFakeClock()
	c, err := cache.NewLRU(10, time.Minute, cache.WithLRUClock[string](clock.Now))
	require.NoError(t, err)

	c.Set("a", "1")
	clock.Advance(30 * time.Second)
	c.Set("b", "2")

	clock.Advance(30 * time.Second)

	// "a" just crossed its TTL, "b" is halfway through its own.
	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	stale, ok := c.Stale("a")
	assert.True(t, ok)
	assert.Equal(t, "1", stale)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := cache.NewLRU[int](3, time.Hour)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	// Touch k1 so k2 becomes the eviction candidate.
	_, ok := c.Get("k1")
	require.True(t, ok)

	c.Set("k4", 4)
	assert.Equal(t, 3, c.Len())

	_, ok = c.Stale("k2")
	assert.False(t, ok)
	_, ok = c.Stale("k1")
	assert.True(t, ok)
	_, ok = c.Stale("k4")
	assert.True(t, ok)
}

func TestLRUUpdateKeepsStoredAt(t *testing.T) {
	clock := newFakeClock()
	c, err := cache.NewLRU(10, time.Minute, cache.WithLRUClock[int](clock.Now))
	require.NoError(t, err)

	c.Set("n", 1)
	clock.Advance(30 * time.Second)
	c.Update("n", func(n int) int { return n + 10 })

	v, ok := c.Get("n")
	assert.True(t, ok)
	assert.Equal(t, 11, v)

	clock.Advance(30 * time.Second)
	_, ok = c.Get("n")
	assert.False(t, ok)
}

func TestLRUUpdateMissingKeyIsNoop(t *testing.T) {
	c, err := cache.NewLRU[int](10, time.Minute)
	require.NoError(t, err)

	c.Update("nope", func(n int) int { return n + 1 })
	_, ok := c.Stale("nope")
	assert.False(t, ok)
}

func TestLRURemoveAndPurge(t *testing.T) {
	c, err := cache.NewLRU[int](10, time.Minute)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Remove("a")
	_, ok := c.Stale("a")
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestLRURejectsNonPositiveCapacity(t *testing.T) {
	_, err := cache.NewLRU[int](0, time.Minute)
	assert.Error(t, err)
}
