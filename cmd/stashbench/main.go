// Command stashbench drives a stashcore cache against a synthetic workload
// and prints hit/miss statistics, serving Prometheus metrics while it runs.
//
// By default the loader is an in-process stub with a configurable simulated
// latency. With -postgres-dsn it loads rows from a PostgreSQL table instead,
// and with -redis-addr the cache entries live in Redis rather than the
// in-process store.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/samber/go-singleflightx"

	"github.com/kadivar/stashcore"
	"github.com/kadivar/stashcore/pkg/backend"
	"github.com/kadivar/stashcore/pkg/sharded"
)

func main() {
	var (
		keys        = flag.Int("keys", 1000, "size of the key space")
		workers     = flag.Int("workers", 8, "concurrent workers")
		duration    = flag.Duration("duration", 10*time.Second, "how long to run the workload")
		ttl         = flag.Duration("ttl", 2*time.Second, "TTL for loaded entries")
		loadDelay   = flag.Duration("load-delay", 10*time.Millisecond, "simulated latency of the stub loader")
		maxItems    = flag.Int("max-items", 0, "cache capacity (0 = unbounded)")
		shards      = flag.Uint64("shards", 0, "shard the in-process store (0 or 1 = unsharded)")
		metricsAddr = flag.String("metrics-addr", ":9091", "address for the Prometheus /metrics endpoint")
		redisAddr   = flag.String("redis-addr", "", "store entries in Redis at this address instead of in-process")
		postgresDSN = flag.String("postgres-dsn", "", "load values from the users table of this PostgreSQL database")
		batchDemo   = flag.Bool("batch-demo", false, "also run the singleflightx batch-loading demo")
	)
	flag.Parse()

	var loads int64
	loader := stubLoader(*loadDelay, ttl.Milliseconds(), &loads)

	if *postgresDSN != "" {
		db, err := sql.Open("postgres", *postgresDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Fatalf("ping postgres: %v", err)
		}
		loader = postgresLoader(db, ttl.Milliseconds(), &loads)
	}

	cfg := stashcore.NewCache[string, string](*maxItems).
		WithLoader(loader).
		WithTTLJitter(0.1).
		WithJanitor(time.Second).
		WithPrometheusMetrics("stashbench").
		WithOnRefreshError(func(key string, err error) {
			log.Printf("eager refresh failed for %q: %v", key, err)
		})

	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer client.Close()
		codec := backend.JSONCodec[stashcore.RichEntry[string]]{}
		cfg = cfg.WithBackend(backend.NewRedisCache(client, "stashbench:", codec))
	} else if *shards > 1 {
		cfg = cfg.WithSharding(*shards, sharded.FNV64String[string]())
	}

	cache := cfg.Build()
	defer cache.StopJanitor()

	if collector, ok := cache.Collector().(prometheus.Collector); ok {
		prometheus.MustRegister(collector)
		defer prometheus.Unregister(collector)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Printf("metrics endpoint: %v", err)
		}
	}()

	log.Printf("running %d workers over %d keys for %s", *workers, *keys, *duration)

	deadline := time.Now().Add(*duration)
	var gets, errs int64

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				key := fmt.Sprintf("key-%d", rng.Intn(*keys))
				if _, _, err := cache.Get(context.Background(), key); err != nil {
					atomic.AddInt64(&errs, 1)
				}
				atomic.AddInt64(&gets, 1)
			}
		}(int64(w))
	}
	wg.Wait()

	totalGets := atomic.LoadInt64(&gets)
	totalLoads := atomic.LoadInt64(&loads)
	log.Printf("done: %d gets, %d loads (%.2f%% served from cache), %d errors",
		totalGets, totalLoads, 100*float64(totalGets-totalLoads)/float64(totalGets), atomic.LoadInt64(&errs))

	if *batchDemo {
		runBatchDemo(*keys, *loadDelay)
	}
}

// stubLoader simulates an expensive backing source with a fixed latency.
func stubLoader(delay time.Duration, ttlMs int64, loads *int64) stashcore.Loader[string, string] {
	return func(ctx context.Context, key string) (stashcore.LoadResult[string], error) {
		atomic.AddInt64(loads, 1)
		time.Sleep(delay)
		return stashcore.LoadResult[string]{Value: "value-of-" + key, TTLMs: ttlMs}, nil
	}
}

// postgresLoader resolves each cache key against the users table's primary
// key, caching the row's name column.
func postgresLoader(db *sql.DB, ttlMs int64, loads *int64) stashcore.Loader[string, string] {
	return func(ctx context.Context, key string) (stashcore.LoadResult[string], error) {
		atomic.AddInt64(loads, 1)

		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM users WHERE id = $1", key).Scan(&name)
		if err == sql.ErrNoRows {
			return stashcore.LoadResult[string]{}, stashcore.ErrNotFound
		}
		if err != nil {
			return stashcore.LoadResult[string]{}, err
		}
		return stashcore.LoadResult[string]{Value: name, TTLMs: ttlMs}, nil
	}
}

// runBatchDemo contrasts per-key read-through with singleflightx's keyed
// batch deduplication: many goroutines request overlapping key sets, and
// the batch loader runs once per distinct missing key.
func runBatchDemo(keySpace int, delay time.Duration) {
	var group singleflightx.Group[string, string]
	var batchLoads int64

	batchLoad := func(missing []string) (map[string]string, error) {
		atomic.AddInt64(&batchLoads, int64(len(missing)))
		time.Sleep(delay)
		out := make(map[string]string, len(missing))
		for _, k := range missing {
			out[k] = "batch-value-of-" + k
		}
		return out, nil
	}

	var wg sync.WaitGroup
	var served int64
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			batch := make([]string, 0, 10)
			for i := 0; i < 10; i++ {
				batch = append(batch, fmt.Sprintf("key-%d", rng.Intn(keySpace)))
			}

			results := group.DoX(batch, batchLoad)
			for _, r := range results {
				if r.Err == nil && r.Value.Valid {
					atomic.AddInt64(&served, 1)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	log.Printf("batch demo: %d results served by %d loader executions", atomic.LoadInt64(&served), atomic.LoadInt64(&batchLoads))
}
