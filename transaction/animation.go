package transaction

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

const (
	totalTime       = 4096
	minAnimateFrame = 7
	animationSuffix = "00"
)

// RowValue is key byte Row mod 16. The animation key does not consume it;
// it is kept on the session for parity checks against the reference flow.
func RowValue(keyBytes []byte, idx Indices) (int, bool) {
	if idx.Row < 0 || idx.Row >= len(keyBytes) {
		return 0, false
	}
	return int(keyBytes[idx.Row]) % 16, true
}

// FrameTime multiplies key byte mod 16 over every key byte index.
func FrameTime(keyBytes []byte, idx Indices) (int, error) {
	if len(idx.KeyBytes) == 0 {
		return 0, ErrIndicesNotFound
	}
	t := 1
	for _, i := range idx.KeyBytes {
		if i < 0 || i >= len(keyBytes) {
			return 0, fmt.Errorf("%w: key byte %d of %d", ErrIndex, i, len(keyBytes))
		}
		t *= int(keyBytes[i]) % 16
	}
	return t, nil
}

// AnimationKey reduces the selected frame to the fixed-format key: three
// colour bytes in hex, the four rotation matrix entries through FloatToHex,
// then "00".
func AnimationKey(keyBytes []byte, idx Indices, frame []float64) (string, error) {
	frameTime, err := FrameTime(keyBytes, idx)
	if err != nil {
		return "", err
	}
	if len(frame) < minAnimateFrame {
		return "", fmt.Errorf("%w: %d values, need at least %d", ErrInvalidFrame, len(frame), minAnimateFrame)
	}
	return animate(frame, float64(frameTime)/totalTime), nil
}

func animate(frame []float64, targetTime float64) string {
	fromColor := []float64{frame[0] / 255, frame[1] / 255, frame[2] / 255}
	toColor := []float64{frame[3] / 255, frame[4] / 255, frame[5] / 255}
	fromRotation := []float64{0}
	toRotation := []float64{math.Floor(scale(frame[6], 60, 360))}

	curves := make([]float64, 0, len(frame)-minAnimateFrame)
	for i, v := range frame[minAnimateFrame:] {
		lo := 0.0
		if i%2 == 1 {
			lo = -1
		}
		curves = append(curves, toFixed2(scale(v, lo, 1)))
	}
	val := NewCubic(curves).Value(targetTime)

	// Lengths match by construction.
	color, _ := InterpolateFloats(fromColor, toColor, val)
	rotation, _ := InterpolateFloats(fromRotation, toRotation, val)

	var b strings.Builder
	for _, c := range color {
		fmt.Fprintf(&b, "%02x", int64(roundHalfUp(math.Max(0, c))))
	}
	for _, v := range RotationMatrix(rotation[0]) {
		b.WriteString(FloatToHex(math.Abs(v)))
	}
	b.WriteString(animationSuffix)
	return b.String()
}

func scale(v, lo, hi float64) float64 {
	return v*(hi-lo)/255 + lo
}

// roundHalfUp rounds to the nearest integer, ties towards +Inf. Unlike
// math.Floor(v+0.5) it is exact for 0.49999999999999994.
func roundHalfUp(v float64) float64 {
	r := math.Floor(v)
	if v-r >= 0.5 {
		r++
	}
	return r
}

// toFixed2 rounds to two decimals and parses the result back. The exact
// binary value decides; an exact tie rounds away from zero, where
// strconv.FormatFloat would round to even.
func toFixed2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scaled := new(big.Float).SetPrec(128).SetFloat64(math.Abs(v))
	scaled.Mul(scaled, big.NewFloat(100))
	hundredths, _ := scaled.Int(nil)
	rest := new(big.Float).SetPrec(128).Sub(scaled, new(big.Float).SetInt(hundredths))
	if rest.Cmp(big.NewFloat(0.5)) >= 0 {
		hundredths.Add(hundredths, big.NewInt(1))
	}
	r, err := strconv.ParseFloat(hundredths.String()+"e-2", 64)
	if err != nil {
		return v
	}
	return math.Copysign(r, v)
}
