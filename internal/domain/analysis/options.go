package analysis

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPieces sets how many buckets a step is divided into before averaging.
// Values below 4 are ignored since the spline needs at least four knots.
func WithPieces(n int) Option {
	return func(a *Analyzer) {
		if n >= 4 {
			a.pieces = n
		}
	}
}

// WithPoints sets how many points the average step curve is resampled to.
func WithPoints(n int) Option {
	return func(a *Analyzer) {
		if n >= 2 {
			a.points = n
		}
	}
}

// WithProminence sets the minimum prominence for peaks and troughs.
func WithProminence(p float64) Option {
	return func(a *Analyzer) {
		if p > 0 {
			a.prominence = p
		}
	}
}

// WithThresholds sets the minimum peak angle and maximum trough angle in
// degrees a step must reach.
func WithThresholds(peakMin, troughMax float64) Option {
	return func(a *Analyzer) {
		a.peakMin = peakMin
		a.troughMax = troughMax
	}
}

// WithStepDuration bounds the duration of a full step in seconds.
func WithStepDuration(minSeconds, maxSeconds float64) Option {
	return func(a *Analyzer) {
		if minSeconds > 0 && maxSeconds > minSeconds {
			a.minStep = minSeconds
			a.maxStep = maxSeconds
		}
	}
}
