package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCachePutGet(t *testing.T) {
	t.Parallel()

	c := New(8, time.Minute)
	c.Put("restaurant_india_quality", []byte("menu"), 30*time.Second)

	got, ok := c.Get("restaurant_india_quality")
	require.True(t, ok)
	require.Equal(t, []byte("menu"), got)
}

func TestCacheMiss(t *testing.T) {
	t.Parallel()

	c := New(8, time.Minute)
	_, ok := c.Get("absent")
	require.False(t, ok)
}

func TestCacheEntryTTLExpiry(t *testing.T) {
	t.Parallel()

	c := New(8, time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("analytics_summary", []byte("42"), 10*time.Second)

	c.now = func() time.Time { return base.Add(11 * time.Second) }
	_, ok := c.Get("analytics_summary")
	require.False(t, ok)
}

func TestInvalidatePrefix(t *testing.T) {
	t.Parallel()

	c := New(8, time.Minute)
	c.Put("restaurant_india_quality_menu", []byte("a"), time.Minute)
	c.Put("restaurant_india_quality_reviews", []byte("b"), time.Minute)
	c.Put("restaurant_mela_menu", []byte("c"), time.Minute)
	c.Put("analytics_summary", []byte("d"), time.Minute)

	removed := c.InvalidatePrefix("restaurant_india_quality")
	require.Equal(t, 2, removed)

	_, ok := c.Get("restaurant_india_quality_menu")
	require.False(t, ok)
	_, ok = c.Get("restaurant_mela_menu")
	require.True(t, ok)
	_, ok = c.Get("analytics_summary")
	require.True(t, ok)
}
