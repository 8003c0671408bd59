package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadivar/stashcore"
)

func main() {
	// Create a read-through cache with Prometheus metrics enabled.
	cache := stashcore.NewCache[string, string](1000).
		WithDefaultTTL(5 * time.Minute).
		WithTTLJitter(0.1).
		WithJanitor(time.Minute).
		WithPrometheusMetrics("my-cache").
		WithLoader(func(ctx context.Context, key string) (stashcore.LoadResult[string], error) {
			// Stand-in for a database or remote service call.
			return stashcore.LoadResult[string]{
				Value: "loaded-" + key,
				TTLMs: (5 * time.Minute).Milliseconds(),
			}, nil
		}).
		Build()
	defer cache.StopJanitor()

	// Register the cache metrics with Prometheus.
	collector := cache.Collector().(prometheus.Collector)
	if err := prometheus.Register(collector); err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}
	defer prometheus.Unregister(collector)

	// Direct writes use the default TTL.
	cache.Set("key1", "value1")

	value, found, err := cache.Get(context.Background(), "key1")
	if err != nil {
		log.Printf("Error getting key1: %v", err)
	} else if found {
		fmt.Printf("Found: %s\n", value)
	}

	// A miss goes through the loader exactly once, however many callers ask.
	value, _, _ = cache.Get(context.Background(), "key2")
	fmt.Printf("Loaded: %s\n", value)

	// Expose the metrics endpoint.
	http.Handle("/metrics", promhttp.Handler())
	fmt.Println("Metrics available at http://localhost:8080/metrics")
	if err := http.ListenAndServe(":8080", nil); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
