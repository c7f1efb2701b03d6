package geom

import "math"

// AABB is an axis-aligned box given by its min and max corners.
type AABB struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// BoxAt builds a box centered on c with half extents h.
func BoxAt(c, h Vec3) AABB {
	return AABB{Min: c.Sub(h), Max: c.Add(h)}
}

func (b AABB) Center() Vec3 {
	return LerpVec(b.Min, b.Max, 0.5)
}

func (b AABB) HalfExtents() Vec3 {
	return b.Max.Sub(b.Min).Scale(0.5)
}

// Overlaps reports whether the two boxes intersect (touching counts).
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Contains reports whether p lies inside or on the box.
func (b AABB) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Expand grows the box by d on every side.
func (b AABB) Expand(d float64) AABB {
	e := Vec3{d, d, d}
	return AABB{Min: b.Min.Sub(e), Max: b.Max.Add(e)}
}

// ClosestPoint returns the point of b nearest to p.
func (b AABB) ClosestPoint(p Vec3) Vec3 {
	return Vec3{
		Clamp(p.X, b.Min.X, b.Max.X),
		Clamp(p.Y, b.Min.Y, b.Max.Y),
		Clamp(p.Z, b.Min.Z, b.Max.Z),
	}
}

// IntersectRayDown casts a ray straight down from origin and returns the
// height of the box's top face when it is hit within far. An origin inside
// the box reports the box's top.
func (b AABB) IntersectRayDown(origin Vec3, far float64) (float64, bool) {
	if origin.X < b.Min.X || origin.X > b.Max.X {
		return 0, false
	}
	if origin.Z < b.Min.Z || origin.Z > b.Max.Z {
		return 0, false
	}
	top := b.Max.Y
	if top > origin.Y {
		if origin.Y < b.Min.Y {
			return 0, false
		}
		return top, true
	}
	if origin.Y-top > far {
		return 0, false
	}
	return top, true
}

// Sphere is a center and radius; used for projectile and pickup overlap tests.
type Sphere struct {
	Center Vec3    `json:"center"`
	Radius float64 `json:"radius"`
}

func (s Sphere) Overlaps(o Sphere) bool {
	r := s.Radius + o.Radius
	return s.Center.DistSq(o.Center) <= r*r
}

func (s Sphere) ContainsPoint(p Vec3) bool {
	return s.Center.DistSq(p) <= s.Radius*s.Radius
}

// OverlapsAABB tests the sphere against a box via the closest point.
func (s Sphere) OverlapsAABB(b AABB) bool {
	return b.ClosestPoint(s.Center).DistSq(s.Center) <= s.Radius*s.Radius
}

// Circle is the 2D variant on the XY plane.
type Circle struct {
	X, Y, R float64
}

func (c Circle) Overlaps(o Circle) bool {
	dx, dy := c.X-o.X, c.Y-o.Y
	r := c.R + o.R
	return dx*dx+dy*dy <= r*r
}

func (c Circle) ContainsPoint(x, y float64) bool {
	dx, dy := c.X-x, c.Y-y
	return math.Hypot(dx, dy) <= c.R
}
