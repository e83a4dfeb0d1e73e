package transaction

import "math"

const (
	cubicTolerance     = 1e-5
	cubicMaxIterations = 64
)

// Cubic is a CSS-style cubic-bezier timing function with endpoints (0,0)
// and (1,1). Curves holds the control points as x1, y1, x2, y2.
type Cubic struct {
	Curves [4]float64
}

// NewCubic builds a Cubic from up to four control numbers; missing
// entries are zero.
func NewCubic(curves []float64) Cubic {
	var c Cubic
	copy(c.Curves[:], curves)
	return c
}

func (c Cubic) x1() float64 { return c.Curves[0] }
func (c Cubic) y1() float64 { return c.Curves[1] }
func (c Cubic) x2() float64 { return c.Curves[2] }
func (c Cubic) y2() float64 { return c.Curves[3] }

// gradientRule yields the extrapolation slope when applies is true.
type gradientRule struct {
	name    string
	applies func(c Cubic) bool
	slope   func(c Cubic) float64
}

// Rules are tried in order; the first that applies wins, otherwise the
// slope is zero.
var startGradientRules = []gradientRule{
	{
		name:    "first control",
		applies: func(c Cubic) bool { return c.x1() > 0 },
		slope:   func(c Cubic) float64 { return c.y1() / c.x1() },
	},
	{
		name:    "second control",
		applies: func(c Cubic) bool { return c.y1() == 0 && c.x2() > 0 },
		slope:   func(c Cubic) float64 { return c.y2() / c.x2() },
	},
}

var endGradientRules = []gradientRule{
	{
		name:    "second control",
		applies: func(c Cubic) bool { return c.x2() < 1 },
		slope:   func(c Cubic) float64 { return (c.y2() - 1) / (c.x2() - 1) },
	},
	{
		name:    "first control",
		applies: func(c Cubic) bool { return c.x2() == 1 && c.x1() < 1 },
		slope:   func(c Cubic) float64 { return (c.y1() - 1) / (c.x1() - 1) },
	},
}

func (c Cubic) gradient(rules []gradientRule) float64 {
	for _, r := range rules {
		if r.applies(c) {
			return r.slope(c)
		}
	}
	return 0
}

// StartGradient is the slope used for t <= 0.
func (c Cubic) StartGradient() float64 { return c.gradient(startGradientRules) }

// EndGradient is the slope used for t >= 1.
func (c Cubic) EndGradient() float64 { return c.gradient(endGradientRules) }

// Value evaluates the timing function at t. Inside (0,1) it bisects for the
// curve parameter whose x equals t and returns the matching y. Outside it
// extrapolates linearly along the endpoint tangent.
func (c Cubic) Value(t float64) float64 {
	if t <= 0 {
		return c.StartGradient() * t
	}
	if t >= 1 {
		return 1 + c.EndGradient()*(t-1)
	}

	start, end, mid := 0.0, 1.0, 0.0
	for i := 0; start < end && i < cubicMaxIterations; i++ {
		mid = (start + end) / 2
		xEst := bezier(c.x1(), c.x2(), mid)
		if math.Abs(t-xEst) < cubicTolerance {
			return bezier(c.y1(), c.y2(), mid)
		}
		if xEst < t {
			start = mid
		} else {
			end = mid
		}
	}
	return bezier(c.y1(), c.y2(), mid)
}

// bezier is one component of the curve at parameter m with endpoints 0
// and 1 and controls a, b.
func bezier(a, b, m float64) float64 {
	return float64(3*a*(1-m)*(1-m)*m) + float64(3*b*(1-m)*m*m) + float64(m*m*m)
}
