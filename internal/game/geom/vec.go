// Package geom provides the vector, scalar and shape helpers shared by the
// simulation. All values are plain structs passed by value so callers never
// alias each other's positions.
package geom

import "math"

// Epsilon is the length below which a vector is treated as zero.
const Epsilon = 1e-9

// Vec3 is a 3-component vector. The arena plays on the XY plane; Z is kept
// so positions match the renderer's coordinate space.
type Vec3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// V is shorthand for Vec3{x, y, z}.
func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Zero is the origin.
var Zero = Vec3{}

// Right and Up are the unit axes used for aiming and gravity.
var (
	Right = Vec3{X: 1}
	Up    = Vec3{Y: 1}
)

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Negate() Vec3 {
	return Vec3{-v.X, -v.Y, -v.Z}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) LenSq() float64 {
	return v.Dot(v)
}

func (v Vec3) Len() float64 {
	return math.Sqrt(v.LenSq())
}

func (v Vec3) Dist(o Vec3) float64 {
	return v.Sub(o).Len()
}

func (v Vec3) DistSq(o Vec3) float64 {
	return v.Sub(o).LenSq()
}

// IsZero reports whether v is shorter than Epsilon.
func (v Vec3) IsZero() bool {
	return v.LenSq() < Epsilon*Epsilon
}

// Normalize returns the unit vector in v's direction, or Zero for a zero vector.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < Epsilon {
		return Zero
	}
	return v.Scale(1 / l)
}

// WithY returns v with its Y component replaced.
func (v Vec3) WithY(y float64) Vec3 {
	v.Y = y
	return v
}

// Flat drops the vertical component (used for horizontal steering).
func (v Vec3) Flat() Vec3 {
	return Vec3{X: v.X, Z: v.Z}
}

// RotateZ rotates v around the Z axis by rad radians (counter-clockwise).
func (v Vec3) RotateZ(rad float64) Vec3 {
	s, c := math.Sincos(rad)
	return Vec3{
		X: v.X*c - v.Y*s,
		Y: v.X*s + v.Y*c,
		Z: v.Z,
	}
}

// Angle returns the unsigned angle between a and b in radians.
func Angle(a, b Vec3) float64 {
	la, lb := a.Len(), b.Len()
	if la < Epsilon || lb < Epsilon {
		return 0
	}
	return math.Acos(Clamp(a.Dot(b)/(la*lb), -1, 1))
}

// AngleDegrees is Angle in degrees.
func AngleDegrees(a, b Vec3) float64 {
	return RadToDeg(Angle(a, b))
}

// LerpVec interpolates component-wise between a and b.
func LerpVec(a, b Vec3, t float64) Vec3 {
	return Vec3{
		Lerp(a.X, b.X, t),
		Lerp(a.Y, b.Y, t),
		Lerp(a.Z, b.Z, t),
	}
}

// MoveTowards moves current toward target by at most maxDelta without overshooting.
func MoveTowards(current, target Vec3, maxDelta float64) Vec3 {
	d := target.Sub(current)
	dist := d.Len()
	if dist <= maxDelta || dist < Epsilon {
		return target
	}
	return current.Add(d.Scale(maxDelta / dist))
}

// Equal reports whether a and b differ by less than tol on every axis.
func Equal(a, b Vec3, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol &&
		math.Abs(a.Y-b.Y) <= tol &&
		math.Abs(a.Z-b.Z) <= tol
}
