package uetsim

//
// Small generic helpers used throughout the package.
//

import "time"

// rateLimiterEpoch anchors virtual time zero for [rate.Limiter] callers.
// golang.org/x/time/rate.Limiter derives all its bookkeeping from the
// time.Time values it is given, never from [time.Now] itself, so feeding
// it this fixed epoch plus the scheduler's virtual-time offset keeps
// pacing decisions a pure function of virtual time instead of wall-clock
// time, preserving the "identical seeds + inputs yield identical event
// sequences" determinism invariant.
var rateLimiterEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// virtualTime maps a scheduler's virtual-time offset to a [time.Time]
// suitable for a [rate.Limiter], so that pacing depends only on virtual
// time and never on wall-clock time.
func virtualTime(at time.Duration) time.Time {
	return rateLimiterEpoch.Add(at)
}

// Must0 panics in case of error.
func Must0(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 panics in case of error, otherwise returns the value.
func Must1[T any](value T, err error) T {
	Must0(err)
	return value
}

// clampInt restricts v to the closed interval [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// maxInt returns the larger of a and b.
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
