package calibrate

import "sort"

// breakpointCount is the fixed number of quantile breakpoints per scorer.
const breakpointCount = 21

// computeBreakpoints sorts scores and picks 21 evenly spaced values
// (nearest-rank) spanning the sorted list, from minimum to maximum.
func computeBreakpoints(scores []float64) []float64 {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	out := make([]float64, breakpointCount)
	last := len(sorted) - 1
	for i := 0; i < breakpointCount; i++ {
		pos := i * last / (breakpointCount - 1)
		out[i] = sorted[pos]
	}
	return out
}

// ScoreToQuantile maps a raw score to [0, 1] via breakpoints, returning
// i/20 where i is the largest index such that breakpoints[i] <= x;
// saturates at 0 below the lowest breakpoint and at 1 above the highest.
func ScoreToQuantile(x float64, breakpoints []float64) float64 {
	if len(breakpoints) == 0 {
		return 0
	}
	if x < breakpoints[0] {
		return 0
	}
	best := 0
	for i, b := range breakpoints {
		if b <= x {
			best = i
		}
	}
	return float64(best) / float64(len(breakpoints)-1)
}
