package analysis

// localMaxima returns the indices of strict local maxima. A flat-topped
// maximum reports the (rounded down) middle of its plateau. The first and
// last samples are never peaks.
func localMaxima(x []float64) []int {
	var peaks []int
	last := len(x) - 1
	for i := 1; i < last; i++ {
		if x[i-1] >= x[i] {
			continue
		}
		ahead := i + 1
		for ahead < last && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			peaks = append(peaks, (i+ahead-1)/2)
			i = ahead
		}
	}
	return peaks
}

// prominence is the height of x[peak] above the higher of the lowest points
// reached on each side before climbing above the peak.
func prominence(x []float64, peak int) float64 {
	v := x[peak]

	leftMin := v
	for i := peak; i >= 0 && x[i] <= v; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
		}
	}
	rightMin := v
	for i := peak; i < len(x) && x[i] <= v; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
		}
	}
	return v - max(leftMin, rightMin)
}

// findPeaks returns the local maxima of x whose prominence is at least minProminence.
func findPeaks(x []float64, minProminence float64) []int {
	var out []int
	for _, p := range localMaxima(x) {
		if prominence(x, p) >= minProminence {
			out = append(out, p)
		}
	}
	return out
}

// findTroughs applies findPeaks to the negated signal.
func findTroughs(x []float64, minProminence float64) []int {
	neg := make([]float64, len(x))
	for i, v := range x {
		neg[i] = -v
	}
	return findPeaks(neg, minProminence)
}
