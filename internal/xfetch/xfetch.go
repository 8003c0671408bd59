// Package xfetch implements the probabilistic early expiration algorithm
// (Vattani, Chierichetti & Lowenstein) with the beta parameter hard-coded to
// 1, as the stampede-avoidance policy for eager cache refresh.
package xfetch

import "math"

// ShouldRefresh reports whether an entry due to expire at expiresAtMs, whose
// last load took loadDurationMs, should be eagerly refreshed now (nowMs),
// given a fresh uniform draw u in (0, 1).
//
// The probability of refreshing increases as nowMs approaches expiresAtMs
// and scales with how expensive the last load was: cheap entries defer
// their refresh closer to actual expiry, costly ones start earlier.
//
// expiresAtMs == 0 means "never expires" and always returns false.
func ShouldRefresh(nowMs, expiresAtMs, loadDurationMs int64, u float64) bool {
	if expiresAtMs == 0 {
		return false
	}

	// u must lie in (0, 1] for ln(u) to be finite and non-positive; a
	// caller-supplied 0 would make delta diverge to -Inf and always trigger.
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}

	delta := float64(loadDurationMs) * math.Log(u)
	return float64(nowMs)-delta >= float64(expiresAtMs)
}
