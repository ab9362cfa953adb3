package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// EmptyAABB returns an inverted box that any Expand or Union will overwrite.
func EmptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func NewAABB(min, max mgl32.Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// SphereAABB bounds a sphere.
func SphereAABB(center mgl32.Vec3, radius float32) AABB {
	r := mgl32.Vec3{radius, radius, radius}
	return AABB{Min: center.Sub(r), Max: center.Add(r)}
}

func (b AABB) IsEmpty() bool {
	return b.Min.X() > b.Max.X() || b.Min.Y() > b.Max.Y() || b.Min.Z() > b.Max.Z()
}

func (b AABB) Expand(p mgl32.Vec3) AABB {
	return AABB{
		Min: mgl32.Vec3{min(b.Min.X(), p.X()), min(b.Min.Y(), p.Y()), min(b.Min.Z(), p.Z())},
		Max: mgl32.Vec3{max(b.Max.X(), p.X()), max(b.Max.Y(), p.Y()), max(b.Max.Z(), p.Z())},
	}
}

func (b AABB) Union(o AABB) AABB {
	if o.IsEmpty() {
		return b
	}
	return b.Expand(o.Min).Expand(o.Max)
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) Extent() mgl32.Vec3 {
	if b.IsEmpty() {
		return mgl32.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// LongestAxis returns 0, 1 or 2 for the widest extent.
func (b AABB) LongestAxis() int {
	e := b.Extent()
	axis := 0
	if e.Y() > e.X() {
		axis = 1
	}
	if e.Z() > e[axis] {
		axis = 2
	}
	return axis
}

func (b AABB) ContainsPoint(p mgl32.Vec3) bool {
	return p.X() >= b.Min.X() && p.X() <= b.Max.X() &&
		p.Y() >= b.Min.Y() && p.Y() <= b.Max.Y() &&
		p.Z() >= b.Min.Z() && p.Z() <= b.Max.Z()
}

// Overlaps reports whether the two boxes share at least one point. Touching faces count.
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X() <= o.Max.X() && b.Max.X() >= o.Min.X() &&
		b.Min.Y() <= o.Max.Y() && b.Max.Y() >= o.Min.Y() &&
		b.Min.Z() <= o.Max.Z() && b.Max.Z() >= o.Min.Z()
}

// ClosestPoint clamps p onto the box.
func (b AABB) ClosestPoint(p mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		mgl32.Clamp(p.X(), b.Min.X(), b.Max.X()),
		mgl32.Clamp(p.Y(), b.Min.Y(), b.Max.Y()),
		mgl32.Clamp(p.Z(), b.Min.Z(), b.Max.Z()),
	}
}

// OverlapsSphere is the box-sphere test used by radius queries and light influence.
func (b AABB) OverlapsSphere(center mgl32.Vec3, radius float32) bool {
	if b.IsEmpty() || radius < 0 {
		return false
	}
	d := b.ClosestPoint(center).Sub(center)
	return d.Dot(d) <= radius*radius
}

// BoundingRadius is the radius of the sphere around Center that encloses the box.
func (b AABB) BoundingRadius() float32 {
	return b.Extent().Len() * 0.5
}

// Transformed returns a conservative world box for the 8 transformed corners.
func (b AABB) Transformed(m mgl32.Mat4) AABB {
	if b.IsEmpty() {
		return b
	}
	corners := [8]mgl32.Vec3{
		{b.Min.X(), b.Min.Y(), b.Min.Z()},
		{b.Max.X(), b.Min.Y(), b.Min.Z()},
		{b.Min.X(), b.Max.Y(), b.Min.Z()},
		{b.Max.X(), b.Max.Y(), b.Min.Z()},
		{b.Min.X(), b.Min.Y(), b.Max.Z()},
		{b.Max.X(), b.Min.Y(), b.Max.Z()},
		{b.Min.X(), b.Max.Y(), b.Max.Z()},
		{b.Max.X(), b.Max.Y(), b.Max.Z()},
	}
	out := EmptyAABB()
	for _, c := range corners {
		out = out.Expand(m.Mul4x1(c.Vec4(1.0)).Vec3())
	}
	return out
}
