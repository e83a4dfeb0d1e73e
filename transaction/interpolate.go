package transaction

import (
	"fmt"
	"math"
)

// Value is a number or a boolean taking part in an interpolation.
type Value struct {
	num    float64
	flag   bool
	isBool bool
}

// Num wraps a number.
func Num(f float64) Value { return Value{num: f} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{flag: b, isBool: true} }

// Float returns the numeric value and whether v holds a number.
func (v Value) Float() (float64, bool) { return v.num, !v.isBool }

// Flag returns the boolean value and whether v holds a boolean.
func (v Value) Flag() (bool, bool) { return v.flag, v.isBool }

func (v Value) String() string {
	if v.isBool {
		return fmt.Sprint(v.flag)
	}
	return fmt.Sprint(v.num)
}

// Interpolate blends from towards to by f, element-wise. Numbers are
// mixed linearly; booleans switch from `from` to `to` at f = 0.5.
func Interpolate(from, to []Value, f float64) ([]Value, error) {
	if len(from) != len(to) {
		return nil, fmt.Errorf("%w: length %d vs %d", ErrInterpolation, len(from), len(to))
	}
	out := make([]Value, len(from))
	for i := range from {
		a, b := from[i], to[i]
		switch {
		case !a.isBool && !b.isBool:
			out[i] = Num(mix(a.num, b.num, f))
		case a.isBool && b.isBool:
			if f < 0.5 {
				out[i] = a
			} else {
				out[i] = b
			}
		default:
			return nil, fmt.Errorf("%w: element %d mixes %s and %s", ErrInterpolation, i, a, b)
		}
	}
	return out, nil
}

// InterpolateFloats is Interpolate for purely numeric vectors.
func InterpolateFloats(from, to []float64, f float64) ([]float64, error) {
	if len(from) != len(to) {
		return nil, fmt.Errorf("%w: length %d vs %d", ErrInterpolation, len(from), len(to))
	}
	out := make([]float64, len(from))
	for i := range from {
		out[i] = mix(from[i], to[i], f)
	}
	return out, nil
}

// mix keeps both products rounded so the sum matches an unfused evaluation.
func mix(a, b, f float64) float64 {
	return float64(a*(1-f)) + float64(b*f)
}

// RotationMatrix converts degrees to the 2x2 matrix [cos, -sin, sin, cos].
func RotationMatrix(degrees float64) [4]float64 {
	rad := degrees * math.Pi / 180
	cos, sin := fdlibmCos(rad), fdlibmSin(rad)
	return [4]float64{cos, -sin, sin, cos}
}

// ExtendedRotationMatrix converts degrees to the affine form
// [cos, sin, -sin, cos, 0, 0].
func ExtendedRotationMatrix(degrees float64) [6]float64 {
	rad := degrees * math.Pi / 180
	cos, sin := fdlibmCos(rad), fdlibmSin(rad)
	return [6]float64{cos, sin, -sin, cos, 0, 0}
}
