// Package inversion finds the integer input of a monotonic function that
// produces a wanted output. It is used to build raw sensor fixtures from
// target physical values.
package inversion

import "math"

// Search bisects [lo, hi] for the x whose f(x) is closest to target. f may
// be increasing or decreasing; the direction is taken from the endpoints.
// The search stops once |f(x)-target| <= tolerance or after iterations
// probes, and returns the best x seen.
func Search(f func(int64) float64, target float64, lo, hi int64, iterations int, tolerance float64) int64 {
	fLo := f(lo)
	increasing := f(hi) > fLo

	best := lo
	bestErr := math.Abs(fLo - target)

	for lo <= hi && iterations > 0 {
		iterations--
		mid := lo + (hi-lo)/2
		v := f(mid)
		e := math.Abs(v - target)
		if e < bestErr {
			bestErr = e
			best = mid
		}
		if e <= tolerance {
			break
		}

		if (v < target) == increasing {
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}
