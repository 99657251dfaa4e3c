package analysis

// naturalSpline is a cubic interpolant with zero second derivative at both ends.
type naturalSpline struct {
	x, y []float64
	m    []float64 // second derivatives at the knots
}

// newNaturalSpline fits knots with strictly increasing x. It needs at least
// two knots.
func newNaturalSpline(x, y []float64) *naturalSpline {
	n := len(x)
	m := make([]float64, n)
	if n > 2 {
		// Tridiagonal system for the interior second derivatives, solved with
		// the Thomas algorithm.
		sub := make([]float64, n)
		diag := make([]float64, n)
		sup := make([]float64, n)
		rhs := make([]float64, n)
		for i := 1; i < n-1; i++ {
			h0 := x[i] - x[i-1]
			h1 := x[i+1] - x[i]
			sub[i] = h0
			diag[i] = 2 * (h0 + h1)
			sup[i] = h1
			rhs[i] = 6 * ((y[i+1]-y[i])/h1 - (y[i]-y[i-1])/h0)
		}
		for i := 2; i < n-1; i++ {
			w := sub[i] / diag[i-1]
			diag[i] -= w * sup[i-1]
			rhs[i] -= w * rhs[i-1]
		}
		m[n-2] = rhs[n-2] / diag[n-2]
		for i := n - 3; i >= 1; i-- {
			m[i] = (rhs[i] - sup[i]*m[i+1]) / diag[i]
		}
	}
	return &naturalSpline{x: x, y: y, m: m}
}

// At evaluates the spline. Points outside the knot range extrapolate the end pieces.
func (s *naturalSpline) At(t float64) float64 {
	n := len(s.x)
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if s.x[mid] > t {
			hi = mid
		} else {
			lo = mid
		}
	}
	h := s.x[hi] - s.x[lo]
	a := (s.x[hi] - t) / h
	b := (t - s.x[lo]) / h
	return a*s.y[lo] + b*s.y[hi] +
		((a*a*a-a)*s.m[lo]+(b*b*b-b)*s.m[hi])*h*h/6
}

// linspace returns n evenly spaced values from start to stop inclusive.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
