package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, Key(2, "h 0"), Key(2, "h 0"))
	assert.NotEqual(t, Key(2, "h 0"), Key(3, "h 0"))
	assert.NotEqual(t, Key(2, "h 0"), Key(2, "h 1"))
}

func TestMapCache(t *testing.T) {
	c := NewMapCache(0)

	_, ok := c.Get(1)
	assert.False(t, ok)

	amps := []complex128{1, 0}
	c.Put(1, amps)
	amps[0] = 42

	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, []complex128{1, 0}, got, "cache must store a copy")

	got[1] = 7
	again, _ := c.Get(1)
	assert.Equal(t, []complex128{1, 0}, again, "cache must return a copy")
	assert.Equal(t, 1, c.Size())
}

func TestMapCacheEviction(t *testing.T) {
	c := NewMapCache(2)
	c.Put(1, []complex128{1})
	c.Put(2, []complex128{2})
	c.Put(2, []complex128{3}) // overwrite does not evict
	assert.Equal(t, 2, c.Size())

	c.Put(3, []complex128{4})
	assert.Equal(t, 2, c.Size())
	got, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, []complex128{4}, got)
}
