// Package analysis derives gait features from an accumulated session.
//
// The sensor is strapped to the foot sideways, so the stored roll column
// tracks foot pitch and the stored pitch column tracks foot roll. Right foot
// roll is negated so an outward roll has the same sign on both feet.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
)

const (
	defaultPieces     = 20
	defaultPoints     = 500
	defaultProminence = 1.0
	defaultPeakMin    = 5.0
	defaultTroughMax  = -50.0
	defaultMinStep    = 0.5
	defaultMaxStep    = 2.0
)

// Analyzer detects steps and summarises them.
type Analyzer struct {
	pieces     int
	points     int
	prominence float64
	peakMin    float64
	troughMax  float64
	minStep    float64
	maxStep    float64
}

// New creates an Analyzer with the given options.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		pieces:     defaultPieces,
		points:     defaultPoints,
		prominence: defaultProminence,
		peakMin:    defaultPeakMin,
		troughMax:  defaultTroughMax,
		minStep:    defaultMinStep,
		maxStep:    defaultMaxStep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// step holds the sample range of one detected step, from the opening peak
// to the closing peak inclusive, plus the trough between them.
type step struct {
	start, trough, end int
}

type extremum struct {
	index int
	peak  bool
}

// Analyze computes the feature summary of a session.
func (a *Analyzer) Analyze(sessionID string, samples []model.Sample) (types.Features, error) {
	times := make([]float64, len(samples))
	pitch := make([]float64, len(samples))
	roll := make([]float64, len(samples))
	sign := 1.0
	if !model.IsLeftFoot(sessionID) {
		sign = -1
	}
	for i, s := range samples {
		times[i] = s.Time
		pitch[i] = s.Roll
		roll[i] = sign * s.Pitch
	}

	steps := a.detectSteps(times, pitch)
	if len(steps) == 0 {
		return types.Features{}, ErrNoSteps
	}

	var (
		stepTimes, downTimes []float64
		pitchMax, pitchMin   []float64
		rollMax, rollMin     []float64
	)
	for _, st := range steps {
		stepTimes = append(stepTimes, times[st.end]-times[st.start])
		downTimes = append(downTimes, times[st.trough]-times[st.start])
		pitchMax = append(pitchMax, pitch[st.start])
		pitchMin = append(pitchMin, pitch[st.trough])
		hi, lo := extent(roll[st.start:st.end])
		rollMax = append(rollMax, hi)
		rollMin = append(rollMin, lo)
	}

	avg, err := a.averageStep(steps, times, pitch, roll, mean(stepTimes))
	if err != nil {
		return types.Features{}, err
	}

	return types.Features{
		StepCount:           len(steps),
		StepTimeAverage:     roundTo(mean(stepTimes), 2),
		StepTimeStdDev:      roundTo(stdDev(stepTimes), 2),
		FootDownTimeAverage: roundTo(mean(downTimes), 2),
		FootDownTimeStdDev:  roundTo(stdDev(downTimes), 2),
		PercentTimeFootDown: roundTo(mean(downTimes)/mean(stepTimes)*100, 1),
		AveragePitchRange:   [2]float64{roundTo(mean(pitchMax), 1), roundTo(mean(pitchMin), 1)},
		AverageRollRange:    [2]float64{roundTo(mean(rollMax), 1), roundTo(mean(rollMin), 1)},
		AverageStep:         avg,
	}, nil
}

// detectSteps finds peak-trough-peak runs in the pitch signal whose angles
// and duration fall within the configured bounds.
func (a *Analyzer) detectSteps(times, pitch []float64) []step {
	var points []extremum
	for _, i := range findPeaks(pitch, a.prominence) {
		points = append(points, extremum{index: i, peak: true})
	}
	for _, i := range findTroughs(pitch, a.prominence) {
		points = append(points, extremum{index: i})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].index < points[j].index })

	var steps []step
	for i := 0; i+2 < len(points); i++ {
		p0, p1, p2 := points[i], points[i+1], points[i+2]
		if !p0.peak || p1.peak || !p2.peak {
			continue
		}
		if pitch[p0.index] < a.peakMin || pitch[p1.index] > a.troughMax || pitch[p2.index] < a.peakMin {
			continue
		}
		d := times[p2.index] - times[p0.index]
		if d > a.maxStep || d < a.minStep {
			continue
		}
		steps = append(steps, step{start: p0.index, trough: p1.index, end: p2.index})
	}
	return steps
}

// averageStep buckets every step into equal time slices, averages each slice
// across steps and resamples the bucket means with a cubic spline.
func (a *Analyzer) averageStep(steps []step, times, pitch, roll []float64, meanStep float64) (types.AverageStep, error) {
	pitchSum := make([]float64, a.pieces)
	rollSum := make([]float64, a.pieces)
	counts := make([]int, a.pieces)

	for _, st := range steps {
		t0 := times[st.start]
		width := (times[st.end] - t0) / float64(a.pieces-1)
		for j := st.start; j <= st.end; j++ {
			b := int((times[j] - t0) / width)
			if b < 0 {
				b = 0
			} else if b >= a.pieces {
				b = a.pieces - 1
			}
			pitchSum[b] += pitch[j]
			rollSum[b] += roll[j]
			counts[b]++
		}
	}

	knots := make([]float64, a.pieces)
	pitchAvg := make([]float64, a.pieces)
	rollAvg := make([]float64, a.pieces)
	for i := range knots {
		if counts[i] == 0 {
			return types.AverageStep{}, fmt.Errorf("%w: bucket %d is empty", ErrInsufficientData, i)
		}
		knots[i] = float64(i) * meanStep / float64(a.pieces-1)
		pitchAvg[i] = pitchSum[i] / float64(counts[i])
		rollAvg[i] = rollSum[i] / float64(counts[i])
	}

	t := linspace(knots[0], knots[len(knots)-1], a.points)
	ps := newNaturalSpline(knots, pitchAvg)
	rs := newNaturalSpline(knots, rollAvg)
	out := types.AverageStep{
		Time:  t,
		Pitch: make([]float64, len(t)),
		Roll:  make([]float64, len(t)),
	}
	for i, v := range t {
		out.Pitch[i] = ps.At(v)
		out.Roll[i] = rs.At(v)
	}
	return out, nil
}

func extent(xs []float64) (hi, lo float64) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, x := range xs {
		hi = max(hi, x)
		lo = min(lo, x)
	}
	return hi, lo
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the population standard deviation.
func stdDev(xs []float64) float64 {
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// roundTo rounds the exact binary value of x to places decimals, ties to even.
func roundTo(x float64, places int) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil || out == 0 {
		return 0
	}
	return out
}
