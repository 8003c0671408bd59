// Package sharded distributes keys across multiple independent backend.Cache
// instances to reduce lock contention under heavy concurrent access. Each
// shard is a fully independent cache; a key always maps to the same shard.
package sharded

import (
	"github.com/kadivar/stashcore/internal"
	"github.com/kadivar/stashcore/pkg/backend"
)

// New creates a sharded cache that routes each key to one of shards
// underlying caches, selected by hashing the key with fn. newShard is
// invoked once per shard index at construction time.
func New[K comparable, V any](shards uint64, fn Hasher[K], newShard func(shardIndex int) backend.Cache[K, V]) backend.Cache[K, V] {
	if shards < 2 {
		panic("sharded: shards must be >= 2")
	}

	caches := make([]backend.Cache[K, V], shards)
	for i := uint64(0); i < shards; i++ {
		caches[i] = newShard(int(i))
	}

	return &ShardedCache[K, V]{
		shards: shards,
		fn:     fn,
		caches: caches,
	}
}

// ShardedCache routes every operation to the shard owning the key, so
// concurrent operations on keys in different shards never contend on the
// same lock.
type ShardedCache[K comparable, V any] struct {
	noCopy internal.NoCopy

	shards uint64
	fn     Hasher[K]
	caches []backend.Cache[K, V]
}

var _ backend.Cache[string, int] = (*ShardedCache[string, int])(nil)

// Get retrieves the entry for key from its shard.
func (c *ShardedCache[K, V]) Get(key K) (value V, found bool) {
	return c.caches[c.fn.computeShard(key, c.shards)].Get(key)
}

// Set stores value under key in its shard with the given TTL in
// milliseconds; ttlMs <= 0 means the entry never expires.
func (c *ShardedCache[K, V]) Set(key K, value V, ttlMs int64) {
	c.caches[c.fn.computeShard(key, c.shards)].Set(key, value, ttlMs)
}

// Clear removes key from its shard, reporting whether it was present.
func (c *ShardedCache[K, V]) Clear(key K) bool {
	return c.caches[c.fn.computeShard(key, c.shards)].Clear(key)
}
