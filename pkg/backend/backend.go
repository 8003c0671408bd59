// Package backend defines the storage boundary consumed by the read-through
// cache: any type satisfying Cache can sit behind it, in-process or remote.
// MemoryStore (pkg/store) is the concrete in-process implementation;
// RedisCache is a remote one.
package backend

// Cache is the abstraction a read-through front-end composes over. Setters
// and getters do not return errors: in-process backends are not expected to
// fail, and remote backends fold failure into found=false.
type Cache[K comparable, V any] interface {
	// Get retrieves the entry stored for key, if any.
	Get(key K) (value V, found bool)

	// Set stores value under key with the given TTL in milliseconds.
	// ttlMs <= 0 means the entry never expires.
	Set(key K, value V, ttlMs int64)

	// Clear removes key, reporting whether it was present.
	Clear(key K) bool
}
