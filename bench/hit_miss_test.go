package bench

import (
	"context"
	"testing"

	"github.com/kadivar/stashcore"
)

// go test -benchmem -bench=Hit
func BenchmarkHit(b *testing.B) {
	b.Run("Peek", func(b *testing.B) {
		cache := stashcore.NewCache[int, int](b.N + 100).Build()
		for n := 0; n < b.N; n++ {
			cache.Set(n, n)
			_, _ = cache.Peek(0)
		}
	})

	b.Run("Get", func(b *testing.B) {
		cache := stashcore.NewCache[int, int](b.N + 100).Build()
		for n := 0; n < b.N; n++ {
			cache.Set(n, n)
			_, _, _ = cache.Get(context.Background(), 0)
		}
	})
}

func BenchmarkMiss(b *testing.B) {
	b.Run("Loaderless", func(b *testing.B) {
		cache := stashcore.NewCache[int, int](100).Build()
		for n := 0; n < b.N; n++ {
			_, _, _ = cache.Get(context.Background(), n)
		}
	})

	b.Run("ReadThrough", func(b *testing.B) {
		cache := stashcore.NewCache[int, int](100).
			WithLoader(func(ctx context.Context, key int) (stashcore.LoadResult[int], error) {
				return stashcore.LoadResult[int]{Value: key}, nil
			}).
			Build()
		for n := 0; n < b.N; n++ {
			_, _, _ = cache.Get(context.Background(), n)
		}
	})
}
