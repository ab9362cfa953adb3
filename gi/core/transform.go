package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform is an object pose: scale, then rotate, then translate.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func IdentityTransform() Transform {
	return TransformAt(mgl32.Vec3{})
}

// TransformAt is an unrotated, unit-scale transform.
func TransformAt(pos mgl32.Vec3) Transform {
	return Transform{
		Position: pos,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

func (t *Transform) ObjectToWorld() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translate.Mul4(t.Rotation.Mat4()).Mul4(scale)
}

func (t *Transform) TransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	return t.TransformVector(p).Add(t.Position)
}

// TransformVector applies rotation and scale but not translation.
func (t *Transform) TransformVector(v mgl32.Vec3) mgl32.Vec3 {
	return t.Rotation.Rotate(mgl32.Vec3{v.X() * t.Scale.X(), v.Y() * t.Scale.Y(), v.Z() * t.Scale.Z()})
}

// TransformNormal uses the inverse scale so normals stay perpendicular under
// non-uniform scaling. The result is not normalized.
func (t *Transform) TransformNormal(n mgl32.Vec3) mgl32.Vec3 {
	return t.Rotation.Rotate(mgl32.Vec3{n.X() / t.Scale.X(), n.Y() / t.Scale.Y(), n.Z() / t.Scale.Z()})
}

func (t Transform) Equal(o Transform) bool {
	return t.Position.ApproxEqual(o.Position) &&
		t.Rotation.ApproxEqual(o.Rotation) &&
		t.Scale.ApproxEqual(o.Scale)
}
