// Package safeconv converts between integer types without silent wraparound.
package safeconv

import "math"

// ClampToInt64 converts v to int64, saturating at math.MaxInt64.
func ClampToInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}
