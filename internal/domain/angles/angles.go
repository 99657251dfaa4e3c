// Package angles converts orientation quaternions into roll and pitch angles.
package angles

import (
	"math"
	"strconv"

	"github.com/okian/gaitlog/internal/domain/model"
)

// Precision is the number of decimal places kept for time, roll and pitch.
const Precision = 3

const radToDeg = 180 / math.Pi

// Convert maps a raw quaternion sample onto (time, roll, pitch) in degrees.
// Yaw is not computed. Every output value is rounded to Precision places.
func Convert(raw model.RawSample) model.Sample {
	qi, qj, qk, qr := raw.I, raw.J, raw.K, raw.Real

	roll := math.Atan2(2*(qr*qi+qj*qk), 1-2*(qi*qi+qj*qj))

	// asin is undefined outside [-1, 1]; non-unit quaternions can push the
	// argument slightly past the boundary.
	sinp := 2 * (qr*qj - qk*qi)
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	pitch := math.Asin(sinp)

	return model.Sample{
		Time:  Round(raw.Time, Precision),
		Roll:  Round(roll*radToDeg, Precision),
		Pitch: Round(pitch*radToDeg, Precision),
	}
}

// ConvertBatch converts rows in order.
func ConvertBatch(raw []model.RawSample) []model.Sample {
	out := make([]model.Sample, len(raw))
	for i, r := range raw {
		out[i] = Convert(r)
	}
	return out
}

// Round rounds x to the given number of decimal places using the decimal
// expansion of its exact binary value. Values that are exact binary ties
// round half away from zero. NaN and infinities are returned unchanged and
// negative zero becomes zero.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	var out float64
	if isBinaryTie(x, places) {
		p := math.Pow10(places)
		out = math.Round(x*p) / p
	} else {
		out, _ = strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	}
	if out == 0 {
		return 0
	}
	return out
}

// isBinaryTie reports whether x is exactly halfway between two multiples of
// 10^-places. Only values whose fraction is a multiple of 2^-(places+1) can
// be, since 10^-places = 2^-places * 5^-places.
func isBinaryTie(x float64, places int) bool {
	t := math.Ldexp(x, places+1)
	if t != math.Trunc(t) || math.Abs(t) > 1<<52 {
		return false
	}
	// x * 10^p * 2 must be an odd integer for x to sit on a half step.
	scaled := x * math.Pow10(places) * 2
	return scaled == math.Trunc(scaled) && math.Mod(math.Abs(scaled), 2) == 1
}
