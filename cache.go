// Package stashcore implements a read-through, single-flighted, bounded
// LRU cache with probabilistic early (XFetch) refresh, composed from the
// pkg/store, pkg/dedup, pkg/backend and internal/xfetch building blocks.
package stashcore

import (
	"context"
	"errors"
	"sync"

	"github.com/kadivar/stashcore/internal/clock"
	"github.com/kadivar/stashcore/internal/xfetch"
	"github.com/kadivar/stashcore/internal/xrand"
	"github.com/kadivar/stashcore/pkg/backend"
	"github.com/kadivar/stashcore/pkg/dedup"
	"github.com/kadivar/stashcore/pkg/metrics"
	"github.com/kadivar/stashcore/pkg/store"
)

// Cache is the read-through front-end: a miss triggers the Loader exactly
// once across however many concurrent callers asked for the same key
// (pkg/dedup), and an entry close to expiry is eagerly refreshed in the
// background for one lucky caller, chosen probabilistically by XFetch, so
// the rest keep being served the still-valid cached value instead of piling
// up behind the same expiry instant.
type Cache[K comparable, V any] struct {
	backend backend.Cache[K, RichEntry[V]]
	dedup   *dedup.Loader[K, RichEntry[V]]

	clock clock.Clock
	rand  xrand.Source

	loader Loader[K, V]

	maxItems     int
	defaultTTLMs int64
	jitterFrac   float64

	absentCacheEnabled bool
	absentTTLMs        int64

	onRefreshError func(key K, err error)

	collector metrics.Collector

	// non-empty only when the cache built and owns its backing MemoryStore
	// (one entry, or one per shard when built WithSharding)
	ownStores []*store.MemoryStore[K, RichEntry[V]]

	copyOnRead  func(V) V
	copyOnWrite func(V) V

	refreshingMu sync.Mutex
	refreshing   map[K]struct{}
}

func newCache[K comparable, V any](cfg CacheConfig[K, V], b backend.Cache[K, RichEntry[V]], own []*store.MemoryStore[K, RichEntry[V]]) *Cache[K, V] {
	return &Cache[K, V]{
		backend:            b,
		dedup:              dedup.New[K, RichEntry[V]](),
		clock:              cfg.clock,
		rand:               cfg.rand,
		loader:             cfg.loader,
		maxItems:           cfg.maxItems,
		defaultTTLMs:       cfg.defaultTTLMs,
		jitterFrac:         cfg.jitterFrac,
		absentCacheEnabled: cfg.absentCacheEnabled,
		absentTTLMs:        cfg.absentTTLMs,
		onRefreshError:     cfg.onRefreshError,
		collector:          cfg.collector,
		ownStores:          own,
		copyOnRead:         cfg.copyOnRead,
		copyOnWrite:        cfg.copyOnWrite,
		refreshing:         make(map[K]struct{}),
	}
}

// Get returns the value for key, loading it through the Loader configured
// via WithLoader on a miss. Without a configured Loader a miss simply
// reports not-found.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	return c.GetWithLoader(ctx, key, c.loader)
}

// GetWithLoader is Get with a per-call Loader, overriding any Loader set at
// build time. Concurrent calls for the same missing key collapse into a
// single Loader invocation. A value close to expiry may trigger an
// asynchronous eager refresh (XFetch) before being returned; the refresh
// never delays or fails this call.
func (c *Cache[K, V]) GetWithLoader(ctx context.Context, key K, loader Loader[K, V]) (V, bool, error) {
	if entry, found := c.backend.Get(key); found {
		c.collector.IncHit()

		if entry.Absent {
			return zero[V](), false, nil
		}

		if loader != nil && xfetch.ShouldRefresh(c.clock.NowMs(), entry.ExpiresAtMs, entry.LoadDurationMs, c.rand.Float64()) {
			c.triggerEagerRefresh(key, loader)
		}

		return c.readValue(entry), true, nil
	}

	c.collector.IncMiss()

	if loader == nil {
		return zero[V](), false, nil
	}
	return c.loadAndStore(ctx, key, loader)
}

func (c *Cache[K, V]) readValue(entry RichEntry[V]) V {
	if c.copyOnRead != nil {
		return c.copyOnRead(entry.Value)
	}
	return entry.Value
}

// loadAndStore runs (or awaits, if already in flight) loader for key and
// stores its result.
func (c *Cache[K, V]) loadAndStore(ctx context.Context, key K, loader Loader[K, V]) (V, bool, error) {
	if c.dedup.InFlight(key) {
		c.collector.IncDedupCollapse()
	}

	entry, err := c.dedup.Do(ctx, key, func(loadCtx context.Context) (RichEntry[V], error) {
		return c.load(loadCtx, key, loader)
	})
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return zero[V](), false, err
		}
		return zero[V](), false, &CancellationError{Key: key, Err: err}
	}

	if entry.Absent {
		return zero[V](), false, nil
	}
	return c.readValue(entry), true, nil
}

// load invokes loader once, timing it for XFetch, and commits the outcome
// to the backend. A failed load is never cached; only an explicit
// ErrNotFound from the Loader is recorded, and only when WithAbsentCache
// was configured.
func (c *Cache[K, V]) load(ctx context.Context, key K, loader Loader[K, V]) (RichEntry[V], error) {
	t0 := c.clock.NowMs()
	r, err := loader(ctx, key)
	durationMs := c.clock.NowMs() - t0

	if err != nil {
		if c.absentCacheEnabled && errors.Is(err, ErrNotFound) {
			entry := RichEntry[V]{Absent: true}
			if c.absentTTLMs > 0 {
				entry.ExpiresAtMs = t0 + c.absentTTLMs
			}
			c.backend.Set(key, entry, c.absentTTLMs)
			c.updateGauges()
			return entry, nil
		}

		c.collector.IncLoadError()
		return RichEntry[V]{}, &LoadError{Key: key, Err: err}
	}

	c.collector.IncLoad()

	v := r.Value
	if c.copyOnWrite != nil {
		v = c.copyOnWrite(v)
	}

	ttlMs := c.jitteredTTL(r.TTLMs)
	entry := RichEntry[V]{
		Value:          v,
		LoadDurationMs: durationMs,
	}
	if ttlMs > 0 {
		entry.ExpiresAtMs = t0 + ttlMs
	}
	c.backend.Set(key, entry, ttlMs)
	c.updateGauges()
	return entry, nil
}

func (c *Cache[K, V]) expiryFor(ttlMs int64) int64 {
	if ttlMs <= 0 {
		return 0
	}
	return c.clock.NowMs() + ttlMs
}

// jitteredTTL spreads out TTL-driven expirations by up to +/- jitterFrac,
// drawing from the same injectable randomness source as XFetch.
func (c *Cache[K, V]) jitteredTTL(ttlMs int64) int64 {
	if ttlMs <= 0 || c.jitterFrac == 0 {
		return ttlMs
	}
	// u in [-jitterFrac, +jitterFrac]
	u := (c.rand.Float64()*2 - 1) * c.jitterFrac
	return ttlMs + int64(float64(ttlMs)*u)
}

// triggerEagerRefresh starts at most one background refresh per key at a
// time; a refresh already running for key is left alone rather than piled
// on top of.
func (c *Cache[K, V]) triggerEagerRefresh(key K, loader Loader[K, V]) {
	c.refreshingMu.Lock()
	if _, already := c.refreshing[key]; already {
		c.refreshingMu.Unlock()
		return
	}
	c.refreshing[key] = struct{}{}
	c.refreshingMu.Unlock()

	c.collector.IncEagerRefresh()

	go func() {
		defer func() {
			c.refreshingMu.Lock()
			delete(c.refreshing, key)
			c.refreshingMu.Unlock()
		}()

		_, err := c.dedup.Do(context.Background(), key, func(loadCtx context.Context) (RichEntry[V], error) {
			return c.load(loadCtx, key, loader)
		})
		if err != nil && c.onRefreshError != nil {
			c.onRefreshError(key, err)
		}
	}()
}

// Refresh forces a synchronous reload of key through loader, bypassing any
// still-fresh cached value. Concurrent Refresh/Get calls for the same key
// share a single Loader invocation.
func (c *Cache[K, V]) Refresh(ctx context.Context, key K, loader Loader[K, V]) (V, bool, error) {
	return c.loadAndStore(ctx, key, loader)
}

// Set stores value under key using the cache's configured default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTLMs)
}

// SetWithTTL stores value under key with an explicit TTL in milliseconds;
// ttlMs <= 0 means the entry never expires.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttlMs int64) {
	if c.copyOnWrite != nil {
		value = c.copyOnWrite(value)
	}
	ttlMs = c.jitteredTTL(ttlMs)
	c.backend.Set(key, RichEntry[V]{Value: value, ExpiresAtMs: c.expiryFor(ttlMs)}, ttlMs)
	c.updateGauges()
}

// SetMany stores every value in items under the cache's default TTL.
func (c *Cache[K, V]) SetMany(items map[K]V) {
	for k, v := range items {
		c.Set(k, v)
	}
}

// Delete removes key, reporting whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	ok := c.backend.Clear(key)
	c.updateGauges()
	return ok
}

// DeleteMany removes every key in keys, reporting which were present.
func (c *Cache[K, V]) DeleteMany(keys []K) map[K]bool {
	out := make(map[K]bool, len(keys))
	for _, k := range keys {
		out[k] = c.backend.Clear(k)
	}
	c.updateGauges()
	return out
}

// Peek returns the value stored for key without triggering a load or an
// eager refresh, and without counting towards hit/miss metrics.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	entry, found := c.backend.Get(key)
	if !found || entry.Absent {
		return zero[V](), false
	}
	return c.readValue(entry), true
}

// GetMany returns every resident, non-absent value among keys, loading any
// miss through the configured Loader. Each miss is individually
// single-flighted with any other concurrent Get/GetMany for the same key.
func (c *Cache[K, V]) GetMany(ctx context.Context, keys []K) (map[K]V, error) {
	return c.GetManyWithLoader(ctx, keys, c.loader)
}

// GetManyWithLoader is GetMany with a per-call Loader.
func (c *Cache[K, V]) GetManyWithLoader(ctx context.Context, keys []K, loader Loader[K, V]) (map[K]V, error) {
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		v, found, err := c.GetWithLoader(ctx, k, loader)
		if err != nil {
			return nil, err
		}
		if found {
			out[k] = v
		}
	}
	return out, nil
}

// Len returns the number of resident entries, including absent-markers and
// entries that expired but were not yet observed or swept. Always 0 on a
// caller-supplied backend, which this cache cannot enumerate.
func (c *Cache[K, V]) Len() int {
	n := 0
	for _, s := range c.ownStores {
		n += s.Len()
	}
	return n
}

// Capacity returns the configured per-store maxItems (0 means unbounded).
func (c *Cache[K, V]) Capacity() int {
	return c.maxItems
}

// Keys returns a snapshot of all resident keys, in no particular order.
// Empty on a caller-supplied backend.
func (c *Cache[K, V]) Keys() []K {
	var out []K
	for _, s := range c.ownStores {
		out = append(out, s.Keys()...)
	}
	return out
}

// Values returns a snapshot of all resident values, in no particular order,
// skipping absent-markers. Empty on a caller-supplied backend.
func (c *Cache[K, V]) Values() []V {
	var out []V
	for _, s := range c.ownStores {
		for _, entry := range s.Values() {
			if entry.Absent {
				continue
			}
			out = append(out, c.readValue(entry))
		}
	}
	return out
}

// Range iterates over a snapshot of resident key-value pairs, skipping
// absent-markers, stopping early if f returns false. A no-op on a
// caller-supplied backend.
func (c *Cache[K, V]) Range(f func(K, V) bool) {
	for _, s := range c.ownStores {
		stopped := false
		s.Range(func(k K, entry RichEntry[V]) bool {
			if entry.Absent {
				return true
			}
			if !f(k, c.readValue(entry)) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
	}
}

// WarmUp seeds the cache in bulk: fn returns values to store under the
// default TTL, plus keys known to be absent (recorded only when the cache
// was built WithAbsentCache).
func (c *Cache[K, V]) WarmUp(fn func() (map[K]V, []K, error)) error {
	values, missing, err := fn()
	if err != nil {
		return err
	}

	c.SetMany(values)

	if c.absentCacheEnabled {
		for _, k := range missing {
			entry := RichEntry[V]{Absent: true, ExpiresAtMs: c.expiryFor(c.absentTTLMs)}
			c.backend.Set(k, entry, c.absentTTLMs)
		}
		c.updateGauges()
	}

	return nil
}

// StopJanitor stops the periodic TTL sweep started by WithJanitor, waiting
// for it to exit. A no-op when the cache was built without a janitor or on
// a caller-supplied backend.
func (c *Cache[K, V]) StopJanitor() {
	for _, s := range c.ownStores {
		s.StopJanitor()
	}
}

func (c *Cache[K, V]) updateGauges() {
	if len(c.ownStores) == 0 {
		return
	}
	var length, bytes int64
	for _, s := range c.ownStores {
		length += int64(s.Len())
		bytes += s.SizeBytes()
	}
	c.collector.SetLength(length)
	c.collector.SetSizeBytes(bytes)
}

// Collector returns the metrics.Collector observing this cache. When the
// cache was built WithPrometheusMetrics, the returned value also implements
// prometheus.Collector and can be registered with a prometheus.Registry.
func (c *Cache[K, V]) Collector() metrics.Collector {
	return c.collector
}

func zero[V any]() V {
	var v V
	return v
}
