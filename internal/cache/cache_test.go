package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(1024)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", []byte("hello"))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)

	// Mutating the returned slice must not poison the cache.
	got[0] = 'X'
	again, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), again)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(30)

	c.Set("a", make([]byte, 10))
	c.Set("b", make([]byte, 10))
	c.Set("c", make([]byte, 10))

	// Touch "a" so "b" is the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", make([]byte, 10))

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)
}

func TestCache_RejectsOversizedValue(t *testing.T) {
	c := NewCache(8)
	c.Set("big", make([]byte, 9))

	_, ok := c.Get("big")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_ByteBudget(t *testing.T) {
	c := NewCache(100)

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("key-%d", i), make([]byte, 10))
	}

	assert.LessOrEqual(t, c.Used(), int64(100))
	assert.Equal(t, 10, c.Len())
}
