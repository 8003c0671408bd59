// Package dedup implements single-flight load coalescing: concurrent
// requests for the same key collapse into one execution of the supplied
// load function, whose outcome is broadcast to every waiter.
//
// Unlike github.com/samber/go-singleflightx, which covers the same concern
// for batch loads, this implementation guarantees a strict publication
// order: the in-flight registration is removed from the map before any
// waiter observes the outcome, and the caller that started the load awaits
// the same future as everyone else instead of re-invoking load on its own
// path. Results are never cached across invocations.
package dedup

import (
	"context"
	"sync"
)

// future is the one-shot, multi-waiter broadcast result cell for a single
// in-flight load. value/err are only written once, by the goroutine running
// load, strictly before done is closed, so every reader observes a
// fully published result the instant done fires.
type future[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Loader collapses concurrent calls to Do for the same key into a single
// execution of the supplied load function. The zero value is not usable;
// construct with New.
type Loader[K comparable, V any] struct {
	mu       sync.Mutex
	inFlight map[K]*future[V]
}

// New returns a ready-to-use Loader.
func New[K comparable, V any]() *Loader[K, V] {
	return &Loader[K, V]{inFlight: make(map[K]*future[V])}
}

// Do runs load for key, or, if a load for key is already in flight, awaits
// its result instead of starting a new one. At most one execution of load
// is ever active per key at a time (single-flight); once a load completes
// (success or failure) its result is not cached, and the very next call for
// the same key starts a fresh execution.
//
// load always runs to completion on its own goroutine, detached from any
// particular caller's context: if ctx is cancelled while Do is waiting, Do
// returns a context error to that caller only, and the load keeps running for
// the benefit of any other waiter (current or future) attached to it.
func (l *Loader[K, V]) Do(ctx context.Context, key K, load func(ctx context.Context) (V, error)) (V, error) {
	l.mu.Lock()
	if f, ok := l.inFlight[key]; ok {
		l.mu.Unlock()
		return await(ctx, f)
	}

	f := &future[V]{done: make(chan struct{})}
	l.inFlight[key] = f
	l.mu.Unlock()

	go l.run(key, f, load)

	return await(ctx, f)
}

// run executes load and publishes its result. The in-flight entry is
// removed from the map before done is closed, so no caller that observes
// key absent can ever attach to a future that is about to resolve without
// them: they either start a brand new load or race to attach to it before
// removal, in which case they still observe the same close(done).
func (l *Loader[K, V]) run(key K, f *future[V], load func(ctx context.Context) (V, error)) {
	f.value, f.err = load(context.Background())

	l.mu.Lock()
	delete(l.inFlight, key)
	l.mu.Unlock()

	close(f.done)
}

func await[V any](ctx context.Context, f *future[V]) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// InFlight reports whether a load for key is currently in progress. Intended
// for tests and metrics; racy by nature against concurrent Do calls.
func (l *Loader[K, V]) InFlight(key K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inFlight[key]
	return ok
}
