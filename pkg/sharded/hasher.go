package sharded

import "hash/fnv"

// Hasher generates an unsigned 64-bit hash of the provided key. It must be
// deterministic and should minimize collisions so keys spread evenly across
// shards; it runs on every cache operation, so it should also be fast.
type Hasher[K any] func(key K) uint64

// computeShard maps key to a shard index in [0, shards).
func (fn Hasher[K]) computeShard(key K, shards uint64) uint64 {
	return fn(key) % shards
}

// FNV64String is a ready-made Hasher for string-like keys, using the FNV-1a
// hash from the standard library.
func FNV64String[K ~string]() Hasher[K] {
	return func(key K) uint64 {
		h := fnv.New64a()
		_, _ = h.Write([]byte(key))
		return h.Sum64()
	}
}
