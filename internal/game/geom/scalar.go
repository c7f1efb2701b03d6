package geom

import (
	"math"
	"math/rand"
)

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampInt limits v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// InverseLerp returns where v sits between a and b (0 at a, 1 at b).
func InverseLerp(a, b, v float64) float64 {
	if a == b {
		return 0
	}
	return (v - a) / (b - a)
}

// MapRange remaps v from [inMin, inMax] to [outMin, outMax].
func MapRange(v, inMin, inMax, outMin, outMax float64) float64 {
	return Lerp(outMin, outMax, InverseLerp(inMin, inMax, v))
}

// Wrap wraps v into [lo, hi).
func Wrap(v, lo, hi float64) float64 {
	span := hi - lo
	if span <= 0 {
		return lo
	}
	return lo + math.Mod(math.Mod(v-lo, span)+span, span)
}

// Sign returns -1, 0 or 1.
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// RandomRange returns a value in [lo, hi) drawn from rng.
func RandomRange(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// FrictionFactor converts a per-frame friction coefficient tuned at 60 FPS
// into the factor for a step of dt seconds.
func FrictionFactor(perFrame, dt float64) float64 {
	return math.Pow(perFrame, dt*60)
}
