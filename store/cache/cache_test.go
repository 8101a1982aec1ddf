package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCache_BasicSetGet tests basic Set and Get operations.
func TestCache_BasicSetGet(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	t.Run("set and get returns value", func(t *testing.T) {
		c.Set("key", "value")
		got, ok := c.Get("key")
		require.True(t, ok)
		assert.Equal(t, "value", got)
	})

	t.Run("missing key returns false", func(t *testing.T) {
		_, ok := c.Get("missing")
		assert.False(t, ok)
	})

	t.Run("overwrite keeps the latest value", func(t *testing.T) {
		c.Set("key", "v1")
		c.Set("key", "v2")
		got, _ := c.Get("key")
		assert.Equal(t, "v2", got)
	})

	t.Run("delete removes the key", func(t *testing.T) {
		c.Set("gone", 1)
		c.Delete("gone")
		_, ok := c.Get("gone")
		assert.False(t, ok)
	})
}

// TestCache_TTL tests that expired entries are treated as missing.
func TestCache_TTL(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	c.SetWithTTL("short", "value", 10*time.Millisecond)
	_, ok := c.Get("short")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("short")
	assert.False(t, ok, "expired entry must not be returned")
}

// TestCache_CapacityEviction tests eviction of the entry closest to expiry
// once MaxItems is reached.
func TestCache_CapacityEviction(t *testing.T) {
	var evictedKeys []string
	var mu sync.Mutex

	c := New(Config{
		DefaultTTL: time.Minute,
		MaxItems:   3,
		OnEviction: func(key string, _ any) {
			mu.Lock()
			evictedKeys = append(evictedKeys, key)
			mu.Unlock()
		},
	})
	defer c.Close()

	c.SetWithTTL("soonest", 1, time.Second)
	c.Set("a", 2)
	c.Set("b", 3)
	assert.Equal(t, 3, c.Size())

	c.Set("overflow", 4)
	assert.Equal(t, 3, c.Size())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, evictedKeys, 1)
	assert.Equal(t, "soonest", evictedKeys[0])
}

// TestCache_Cleanup tests that the background loop removes expired entries.
func TestCache_Cleanup(t *testing.T) {
	c := New(Config{
		DefaultTTL:      10 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
	})
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	require.Equal(t, 2, c.Size())

	assert.Eventually(t, func() bool {
		return c.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

// TestCache_Concurrency tests concurrent readers and writers.
func TestCache_Concurrency(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute, MaxItems: 100})
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(fmt.Sprintf("k%d-%d", n, j), j)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get(fmt.Sprintf("k%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	c.Set("final", "check")
	got, ok := c.Get("final")
	require.True(t, ok)
	assert.Equal(t, "check", got)
}
