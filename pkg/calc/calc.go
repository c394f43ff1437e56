// Package calc holds arithmetic helpers for progress reporting and engine-reported sizes.
package calc

import (
	"math"
	"time"
)

// Percent returns done/total as a rounded percentage clamped to [0, 100].
func Percent(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}

	return min(int(math.Round(float64(done)/float64(total)*100)), 100)
}

// ETA extrapolates the remaining time from the elapsed time.
// It is zero until something has been transferred and once everything has.
func ETA(done, total int, elapsed time.Duration) time.Duration {
	if total <= 0 || done <= 0 || done >= total {
		return 0
	}

	return time.Duration(float64(elapsed) * (float64(total)/float64(done) - 1))
}

// Bytes rounds an engine-reported size to whole bytes.
// ok is false for NaN, infinities and negative sizes.
func Bytes(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}

	return int64(math.Round(v)), true
}
