package bench

import (
	"testing"
	"time"

	"github.com/kadivar/stashcore/internal/clock"
)

// go test -benchmem -benchtime=100000000x -bench=Time
func BenchmarkTime(b *testing.B) {
	b.Run("TimeGo", func(b *testing.B) {
		for n := 0; n < b.N; n++ {
			_ = time.Now().UnixMilli()
		}
	})

	// the syscall-backed clock is faster than time.Now()
	b.Run("TimeClock", func(b *testing.B) {
		c := clock.Real()
		for n := 0; n < b.N; n++ {
			_ = c.NowMs()
		}
	})
}
