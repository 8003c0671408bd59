package sharded

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadivar/stashcore/pkg/backend"
	"github.com/kadivar/stashcore/pkg/store"
)

func newTestShards(shards uint64) backend.Cache[string, int] {
	return New[string, int](shards, FNV64String[string](), func(shardIndex int) backend.Cache[string, int] {
		return store.New[string, int](0)
	})
}

func TestNew_PanicsBelowTwoShards(t *testing.T) {
	assert.Panics(t, func() { newTestShards(0) })
	assert.Panics(t, func() { newTestShards(1) })
	assert.NotPanics(t, func() { newTestShards(2) })
}

func TestShardedCache_SetGetClear(t *testing.T) {
	is := assert.New(t)

	c := newTestShards(8)

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i, 0)
	}

	for i := 0; i < 100; i++ {
		v, ok := c.Get(fmt.Sprintf("key-%d", i))
		is.True(ok)
		is.Equal(i, v)
	}

	is.True(c.Clear("key-42"))
	is.False(c.Clear("key-42"))

	_, ok := c.Get("key-42")
	is.False(ok)
}

func TestShardedCache_KeysSpreadAcrossShards(t *testing.T) {
	shards := uint64(4)
	stores := make([]*store.MemoryStore[string, int], shards)

	c := New[string, int](shards, FNV64String[string](), func(shardIndex int) backend.Cache[string, int] {
		stores[shardIndex] = store.New[string, int](0)
		return stores[shardIndex]
	})

	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i, 0)
	}

	total := 0
	populated := 0
	for _, s := range stores {
		total += s.Len()
		if s.Len() > 0 {
			populated++
		}
	}

	require.Equal(t, 1000, total)
	assert.Equal(t, int(shards), populated)
}

func TestShardedCache_SameKeyAlwaysSameShard(t *testing.T) {
	is := assert.New(t)

	c := newTestShards(16)

	c.Set("stable", 1, 0)
	for i := 0; i < 100; i++ {
		c.Set("stable", i, 0)
		v, ok := c.Get("stable")
		is.True(ok)
		is.Equal(i, v)
	}
}

func TestShardedCache_ConcurrentAccess(t *testing.T) {
	c := newTestShards(8)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				c.Set(key, i, 0)
				v, ok := c.Get(key)
				assert.True(t, ok)
				assert.Equal(t, i, v)
			}
		}(w)
	}
	wg.Wait()
}
