package stashcore

import (
	"context"
	"errors"
)

// LoadResult is what a Loader hands back on success: the value to cache and
// how long it stays fresh. TTLMs <= 0 means the entry never expires.
type LoadResult[V any] struct {
	Value V
	TTLMs int64
}

// Loader produces the value for a cache miss. It is always invoked with a
// context detached from any single caller (see pkg/dedup): cancelling one
// caller's Get never cancels a Loader shared with other waiters.
type Loader[K comparable, V any] func(ctx context.Context, key K) (LoadResult[V], error)

// ErrNotFound is returned by a Loader to report that key legitimately does
// not exist in the underlying system of record, as distinct from a failed
// load. Only meaningful when the cache was built WithAbsentCache; returning
// it otherwise surfaces as an ordinary LoadError.
var ErrNotFound = errors.New("stashcore: key not found")
