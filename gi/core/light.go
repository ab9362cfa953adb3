package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type LightType uint32

const (
	LightTypePoint       LightType = 0
	LightTypeDirectional LightType = 1
	LightTypeSpot        LightType = 2
)

func (t LightType) String() string {
	switch t {
	case LightTypePoint:
		return "point"
	case LightTypeDirectional:
		return "directional"
	case LightTypeSpot:
		return "spot"
	}
	return "unknown"
}

// Light is the scene-side description used for influence registration.
type Light struct {
	Id        LightId
	Type      LightType
	Position  mgl32.Vec3
	Direction mgl32.Vec3 // normalized, spot/directional
	Color     [3]float32
	Intensity float32
	Range     float32 // point/spot
	ConeAngle float32 // full cone angle in degrees (spot)
}

// GPULight matches the 4 x vec4 light record of the capture shader.
type GPULight struct {
	Position  [4]float32 // xyz, 1
	Direction [4]float32 // xyz, 0
	Color     [4]float32 // rgb, intensity
	Params    [4]float32 // range, cos(cone/2), type, 0
}

func (l *Light) GPU() GPULight {
	var g GPULight
	g.Position = [4]float32{l.Position.X(), l.Position.Y(), l.Position.Z(), 1.0}
	g.Direction = [4]float32{l.Direction.X(), l.Direction.Y(), l.Direction.Z(), 0.0}
	g.Color = [4]float32{l.Color[0], l.Color[1], l.Color[2], l.Intensity}
	g.Params = [4]float32{l.Range, l.cosHalfCone(), float32(l.Type), 0.0}
	return g
}

func (l *Light) cosHalfCone() float32 {
	if l.Type != LightTypeSpot {
		return 0
	}
	return float32(math.Cos(float64(l.ConeAngle) * math.Pi / 180.0 / 2.0))
}

// Bounded reports whether the light has a finite influence volume.
func (l *Light) Bounded() bool {
	return l.Type != LightTypeDirectional
}

// Bounds is the AABB of the influence sphere. Directional lights return an empty box
// and must be handled through Bounded.
func (l *Light) Bounds() AABB {
	if !l.Bounded() {
		return EmptyAABB()
	}
	return SphereAABB(l.Position, l.Range)
}

// Influences reports whether the light can reach any point of box.
func (l *Light) Influences(box AABB) bool {
	switch l.Type {
	case LightTypeDirectional:
		return !box.IsEmpty()
	case LightTypePoint:
		return box.OverlapsSphere(l.Position, l.Range)
	case LightTypeSpot:
		if !box.OverlapsSphere(l.Position, l.Range) {
			return false
		}
		return l.coneOverlapsSphere(box.Center(), box.BoundingRadius())
	}
	return false
}

// coneOverlapsSphere is the conservative cone/sphere test.
func (l *Light) coneOverlapsSphere(center mgl32.Vec3, radius float32) bool {
	v := center.Sub(l.Position)
	dist := v.Len()
	if dist <= radius {
		return true
	}
	half := float64(l.ConeAngle) * math.Pi / 180.0 / 2.0
	if half >= math.Pi/2 {
		return v.Dot(l.Direction) > -radius
	}
	cosAngle := float64(v.Dot(l.Direction) / dist)
	angle := math.Acos(math.Max(-1, math.Min(1, cosAngle)))
	// Widen the cone by the angle the sphere subtends.
	spread := math.Asin(math.Min(1, float64(radius/dist)))
	return angle <= half+spread
}

// Equal reports whether two descriptions light the scene identically.
func (l Light) Equal(o Light) bool {
	return l.Id == o.Id && l.Type == o.Type &&
		l.Position.ApproxEqual(o.Position) && l.Direction.ApproxEqual(o.Direction) &&
		l.Color == o.Color && l.Intensity == o.Intensity &&
		l.Range == o.Range && l.ConeAngle == o.ConeAngle
}
