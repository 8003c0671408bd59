package stashcore

// RichEntry is the value actually resident in the backing store: the
// caller's value plus the bookkeeping Cache needs to run XFetch without a
// second, parallel map. Lazy TTL expiry is enforced by the backing store
// itself, from the ttlMs passed to its Set.
type RichEntry[V any] struct {
	Value V

	// ExpiresAtMs is the absolute expiry time in epoch milliseconds, or 0
	// if the entry never expires.
	ExpiresAtMs int64

	// LoadDurationMs is how long the Loader took to produce Value, fed
	// into the XFetch eager-refresh formula.
	LoadDurationMs int64

	// Absent marks a RichEntry created by WithAbsentCache recording that a
	// Loader explicitly reported key as not-found, as distinct from a
	// genuine value. Never set as a result of a failed load.
	Absent bool
}
