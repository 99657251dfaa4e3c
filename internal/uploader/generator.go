package uploader

import (
	"math"

	"github.com/okian/gaitlog/internal/domain/model"
)

// Generator synthesises a walking foot as quaternion samples. The foot pitch
// swings from PeakPitch down to TroughPitch over the first 60% of each step
// and back up over the rest; the foot roll sways sinusoidally.
type Generator struct {
	Rate          float64 // samples per second
	StepPeriod    float64 // seconds per step
	PeakPitch     float64 // degrees
	TroughPitch   float64 // degrees
	RollAmplitude float64 // degrees
	RollBias      float64 // degrees
}

// DefaultGenerator walks at one step per second, sampled at 100 Hz.
func DefaultGenerator() Generator {
	return Generator{
		Rate:          100,
		StepPeriod:    1,
		PeakPitch:     20,
		TroughPitch:   -60,
		RollAmplitude: 10,
		RollBias:      5,
	}
}

const downFraction = 0.6

// Angles returns the foot pitch and roll in degrees at time t.
func (g Generator) Angles(t float64) (pitch, roll float64) {
	phase := math.Mod(t, g.StepPeriod) / g.StepPeriod
	span := g.PeakPitch - g.TroughPitch
	if phase <= downFraction {
		pitch = g.PeakPitch - span*(1-math.Cos(math.Pi*phase/downFraction))/2
	} else {
		pitch = g.TroughPitch + span*(1-math.Cos(math.Pi*(phase-downFraction)/(1-downFraction)))/2
	}
	roll = g.RollBias + g.RollAmplitude*math.Sin(2*math.Pi*phase)
	return pitch, roll
}

// Samples returns seconds*Rate+1 samples starting at time zero.
func (g Generator) Samples(seconds float64) []model.RawSample {
	n := int(math.Round(seconds*g.Rate)) + 1
	out := make([]model.RawSample, n)
	for i := range out {
		t := float64(i) / g.Rate
		pitch, roll := g.Angles(t)
		out[i] = Quaternion(t, pitch, roll)
	}
	return out
}

// Quaternion encodes a foot pose so that the angle converter reports
// footPitch in its roll column and footRoll in its pitch column.
func Quaternion(t, footPitch, footRoll float64) model.RawSample {
	a := footPitch * math.Pi / 360 // half angle about i
	b := footRoll * math.Pi / 360  // half angle about j
	ca, sa := math.Cos(a), math.Sin(a)
	cb, sb := math.Cos(b), math.Sin(b)
	return model.RawSample{
		Time: t,
		I:    sa * cb,
		J:    ca * sb,
		K:    -sa * sb,
		Real: ca * cb,
	}
}
