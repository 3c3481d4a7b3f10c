package tablecache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handle struct{ name string }

func countingCache(built *atomic.Int32) *Cache[*handle] {
	return New(func(name string) *handle {
		built.Add(1)
		return &handle{name: name}
	})
}

func TestCache_LookupMemoizes(t *testing.T) {
	var built atomic.Int32
	c := countingCache(&built)

	a := c.Lookup("Songs")
	b := c.Lookup("Songs")
	require.Same(t, a, b)
	assert.Equal(t, int32(1), built.Load())
	assert.Equal(t, "Songs", a.name)
}

func TestCache_ConcurrentLookupBuildsOnce(t *testing.T) {
	var built atomic.Int32
	c := countingCache(&built)

	const n = 64
	got := make([]*handle, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = c.Lookup("DataTable")
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), built.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, got[0], got[i], "lookup %d", i)
	}
}

func TestCache_Delete(t *testing.T) {
	var built atomic.Int32
	c := countingCache(&built)

	assert.False(t, c.Delete("missing"))

	first := c.Lookup("T")
	require.True(t, c.Delete("T"))
	assert.Equal(t, 0, c.Len())

	second := c.Lookup("T")
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), built.Load())
}

func TestCache_LookupWithoutConstructorPanics(t *testing.T) {
	var c Cache[*handle]
	assert.Panics(t, func() { c.Lookup("T") })
}
