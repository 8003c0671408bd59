package stashcore

import (
	"time"

	"github.com/kadivar/stashcore/internal/clock"
	"github.com/kadivar/stashcore/internal/xrand"
	"github.com/kadivar/stashcore/pkg/backend"
	"github.com/kadivar/stashcore/pkg/metrics"
	"github.com/kadivar/stashcore/pkg/sharded"
	"github.com/kadivar/stashcore/pkg/store"
)

// CacheConfig is the fluent builder for Cache. Construct with NewCache,
// chain With... calls (each returns a modified copy, so a partially
// configured CacheConfig can be safely reused as a template), and finish
// with Build.
type CacheConfig[K comparable, V any] struct {
	maxItems int

	defaultTTLMs int64
	jitterFrac   float64

	backend backend.Cache[K, RichEntry[V]]

	shards      uint64
	shardHasher sharded.Hasher[K]

	clock clock.Clock
	rand  xrand.Source

	loader Loader[K, V]

	onEvict        store.EvictionCallback[K, RichEntry[V]]
	onRefreshError func(key K, err error)

	absentCacheEnabled bool
	absentTTLMs        int64

	janitorInterval time.Duration

	sizeTracking bool

	collector metrics.Collector

	copyOnRead  func(V) V
	copyOnWrite func(V) V
}

func assertValue(ok bool, msg string) {
	if !ok {
		panic(msg)
	}
}

// NewCache returns a CacheConfig for a cache bounded at maxItems entries
// (0 means unbounded), using the in-process MemoryStore backend. Entries
// written with Set never expire until WithDefaultTTL is configured; entries
// written by a Loader carry their own TTL via LoadResult.
func NewCache[K comparable, V any](maxItems int) CacheConfig[K, V] {
	assertValue(maxItems >= 0, "maxItems must be a positive value")

	return CacheConfig[K, V]{
		maxItems:  maxItems,
		clock:     clock.Real(),
		rand:      xrand.Default(),
		collector: metrics.NoOp(),
	}
}

// WithBackend overrides the default in-process MemoryStore with any other
// backend.Cache implementation, e.g. pkg/backend.RedisCache. Mutually
// exclusive with WithSharding, WithJanitor and WithSizeTracking, which only
// apply to the built-in store.
func (cfg CacheConfig[K, V]) WithBackend(b backend.Cache[K, RichEntry[V]]) CacheConfig[K, V] {
	cfg.backend = b
	return cfg
}

// WithSharding splits the built-in MemoryStore into shards independent
// stores, each holding up to maxItems entries, routed by hashing keys with
// fn. Reduces mutex contention under heavy concurrent access.
func (cfg CacheConfig[K, V]) WithSharding(shards uint64, fn sharded.Hasher[K]) CacheConfig[K, V] {
	assertValue(shards >= 2, "shards must be >= 2")
	assertValue(fn != nil, "a shard hasher must be provided")
	cfg.shards = shards
	cfg.shardHasher = fn
	return cfg
}

// WithDefaultTTL sets the TTL applied to entries written with Set/SetMany.
// Loader-produced entries are unaffected; they expire per LoadResult.TTLMs.
func (cfg CacheConfig[K, V]) WithDefaultTTL(ttl time.Duration) CacheConfig[K, V] {
	assertValue(ttl >= 0, "ttl must be a positive value")
	cfg.defaultTTLMs = ttl.Milliseconds()
	return cfg
}

// WithTTLJitter randomizes each entry's TTL by up to +/- frac (e.g. 0.1 for
// +/-10%), spreading out expirations that would otherwise cluster and
// stampede together. Uses the same injectable randomness source as XFetch.
func (cfg CacheConfig[K, V]) WithTTLJitter(frac float64) CacheConfig[K, V] {
	assertValue(frac >= 0 && frac < 1, "jitter fraction must be in [0, 1)")
	cfg.jitterFrac = frac
	return cfg
}

// WithLoader sets the function invoked on a cache miss or eager refresh.
// Optional: Get on a loaderless cache reports a plain miss, and a per-call
// Loader can always be supplied via GetWithLoader.
func (cfg CacheConfig[K, V]) WithLoader(loader Loader[K, V]) CacheConfig[K, V] {
	cfg.loader = loader
	return cfg
}

// WithClock overrides the wall-clock source; intended for tests.
func (cfg CacheConfig[K, V]) WithClock(c clock.Clock) CacheConfig[K, V] {
	cfg.clock = c
	return cfg
}

// WithRandSource overrides the uniform-random source XFetch and TTL jitter
// draw from; intended for tests.
func (cfg CacheConfig[K, V]) WithRandSource(r xrand.Source) CacheConfig[K, V] {
	cfg.rand = r
	return cfg
}

// WithOnEvict registers a callback invoked synchronously whenever an entry
// leaves the backing store, for any reason.
func (cfg CacheConfig[K, V]) WithOnEvict(cb store.EvictionCallback[K, RichEntry[V]]) CacheConfig[K, V] {
	cfg.onEvict = cb
	return cfg
}

// WithOnRefreshError registers the sink eager-refresh failures are routed
// to. Eager refresh never surfaces its error to a Get caller: the stale
// value already in the store is still returned. If unset, refresh errors
// are silently dropped.
func (cfg CacheConfig[K, V]) WithOnRefreshError(fn func(key K, err error)) CacheConfig[K, V] {
	cfg.onRefreshError = fn
	return cfg
}

// WithAbsentCache enables caching of legitimate "not found" results: when
// the Loader returns ErrNotFound, that outcome is itself cached for ttl so
// repeated lookups of a key known not to exist don't re-invoke the Loader.
// This is distinct from caching a failed load, which never happens.
func (cfg CacheConfig[K, V]) WithAbsentCache(ttl time.Duration) CacheConfig[K, V] {
	assertValue(ttl > 0, "absent cache ttl must be a positive value")
	cfg.absentCacheEnabled = true
	cfg.absentTTLMs = ttl.Milliseconds()
	return cfg
}

// WithJanitor enables the backing store's periodic TTL sweep, in addition
// to the lazy expiry Get always performs. Stop it with Cache.StopJanitor.
func (cfg CacheConfig[K, V]) WithJanitor(interval time.Duration) CacheConfig[K, V] {
	assertValue(interval > 0, "janitor interval must be a positive value")
	cfg.janitorInterval = interval
	return cfg
}

// WithSizeTracking enables per-entry byte accounting on the built-in store,
// surfaced through the metrics Collector's size gauge.
func (cfg CacheConfig[K, V]) WithSizeTracking() CacheConfig[K, V] {
	cfg.sizeTracking = true
	return cfg
}

// WithPrometheusMetrics instruments the cache with a metrics.Collector
// labelled with name, recording hits, misses, loads, dedup collapses,
// evictions and eager refreshes. The collector is exposed through
// Collector(); register it with a prometheus.Registry to scrape it.
func (cfg CacheConfig[K, V]) WithPrometheusMetrics(name string) CacheConfig[K, V] {
	cfg.collector = metrics.NewPrometheusCollector(name)
	return cfg
}

// WithMetricsCollector sets an arbitrary metrics.Collector implementation.
func (cfg CacheConfig[K, V]) WithMetricsCollector(c metrics.Collector) CacheConfig[K, V] {
	cfg.collector = c
	return cfg
}

// WithCopyOnRead sets a function applied to a value before it is returned
// from Get, useful when V is a mutable pointer type the cache must not
// hand out aliased.
func (cfg CacheConfig[K, V]) WithCopyOnRead(fn func(V) V) CacheConfig[K, V] {
	cfg.copyOnRead = fn
	return cfg
}

// WithCopyOnWrite sets a function applied to a value before it is stored.
func (cfg CacheConfig[K, V]) WithCopyOnWrite(fn func(V) V) CacheConfig[K, V] {
	cfg.copyOnWrite = fn
	return cfg
}

// Build assembles the configured Cache.
func (cfg CacheConfig[K, V]) Build() *Cache[K, V] {
	b := cfg.backend
	var own []*store.MemoryStore[K, RichEntry[V]]

	if b == nil {
		newStore := func() *store.MemoryStore[K, RichEntry[V]] {
			opts := []store.Option[K, RichEntry[V]]{store.WithClock[K, RichEntry[V]](cfg.clock)}
			if evict := cfg.evictionCallback(); evict != nil {
				opts = append(opts, store.WithEvictionCallback(evict))
			}
			if cfg.sizeTracking {
				opts = append(opts, store.WithSizeTracking[K, RichEntry[V]]())
			}
			ms := store.New[K, RichEntry[V]](cfg.maxItems, opts...)
			if cfg.janitorInterval > 0 {
				ms.StartJanitor(cfg.janitorInterval)
			}
			own = append(own, ms)
			return ms
		}

		if cfg.shards >= 2 {
			b = sharded.New[K, RichEntry[V]](cfg.shards, cfg.shardHasher, func(int) backend.Cache[K, RichEntry[V]] {
				return newStore()
			})
		} else {
			b = newStore()
		}
	}

	return newCache(cfg, b, own)
}

// evictionCallback folds the user's WithOnEvict hook and the metrics
// eviction counter into the single callback the store accepts.
func (cfg CacheConfig[K, V]) evictionCallback() store.EvictionCallback[K, RichEntry[V]] {
	collector := cfg.collector
	userCb := cfg.onEvict

	return func(reason store.EvictionReason, key K, value RichEntry[V]) {
		collector.IncEviction(metrics.EvictionReason(reason.String()))
		if userCb != nil {
			userCb(reason, key, value)
		}
	}
}
