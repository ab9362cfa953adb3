package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type CameraState struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	FovY     float32 // degrees
	Aspect   float32
	Near     float32
	Far      float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position: mgl32.Vec3{0, 2, 20},
		FovY:     60,
		Aspect:   16.0 / 9.0,
		Near:     0.1,
		Far:      1000,
	}
}

func (c *CameraState) GetForward() mgl32.Vec3 {
	// Z-up: Forward in XY plane, Z for pitch
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
	}
}

func (c *CameraState) GetRight() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(-math.Sin(float64(c.Yaw))),
		float32(math.Cos(float64(c.Yaw))),
		0,
	}
}

func (c *CameraState) GetViewMatrix() mgl32.Mat4 {
	forward := c.GetForward()
	eye := c.Position
	target := eye.Add(forward)
	up := mgl32.Vec3{0, 0, 1} // Z-up
	return mgl32.LookAtV(eye, target, up)
}

func (c *CameraState) GetProjection() mgl32.Mat4 {
	aspect := c.Aspect
	if aspect == 0 {
		aspect = 1.0
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FovY), aspect, c.Near, c.Far)
}

func (c *CameraState) ViewProj() mgl32.Mat4 {
	return c.GetProjection().Mul4(c.GetViewMatrix())
}

func (c *CameraState) Distance(p mgl32.Vec3) float32 {
	return p.Sub(c.Position).Len()
}

// ScreenRay returns the world-space ray through pixel (x, y) of a w*h viewport.
func (c *CameraState) ScreenRay(x, y float32, w, h int) (origin, dir mgl32.Vec3) {
	nx := (2.0*x)/float32(w) - 1.0
	ny := 1.0 - (2.0*y)/float32(h) // Flip Y for NDC

	forward := c.GetForward()
	right := c.GetRight()
	up := right.Cross(forward)

	aspect := float32(w) / float32(h)
	tanHalfFov := float32(math.Tan(float64(mgl32.DegToRad(c.FovY) / 2.0)))

	dir = forward.Add(right.Mul(nx * aspect * tanHalfFov)).Add(up.Mul(ny * tanHalfFov))
	return c.Position, dir.Normalize()
}

// ExtractFrustum extracts the 6 planes of the frustum from the view-projection matrix.
// Returns planes in order: Left, Right, Bottom, Top, Near, Far.
// Plane is Ax + By + Cz + D = 0 with the normal pointing inside.
func (c *CameraState) ExtractFrustum(vp mgl32.Mat4) [6]mgl32.Vec4 {
	var planes [6]mgl32.Vec4
	row := func(r int) mgl32.Vec4 {
		return mgl32.Vec4{vp.At(r, 0), vp.At(r, 1), vp.At(r, 2), vp.At(r, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	planes[0] = r3.Add(r0)
	planes[1] = r3.Sub(r0)
	planes[2] = r3.Add(r1)
	planes[3] = r3.Sub(r1)
	planes[4] = r3.Add(r2) // OpenGL-style -1..1
	planes[5] = r3.Sub(r2)

	for i := 0; i < 6; i++ {
		length := planes[i].Vec3().Len()
		if length > 0 {
			planes[i] = planes[i].Mul(1.0 / length)
		}
	}
	return planes
}

// Frustum is ExtractFrustum of the camera's own view-projection.
func (c *CameraState) Frustum() [6]mgl32.Vec4 {
	return c.ExtractFrustum(c.ViewProj())
}

// AABBInFrustum checks if an AABB is visible within the frustum defined by 6 planes.
func AABBInFrustum(aabb AABB, planes [6]mgl32.Vec4) bool {
	for i := 0; i < 6; i++ {
		plane := planes[i]
		// Most-inside corner; if even that is behind the plane the box is outside.
		var p mgl32.Vec3
		for axis := 0; axis < 3; axis++ {
			if plane[axis] > 0 {
				p[axis] = aabb.Max[axis]
			} else {
				p[axis] = aabb.Min[axis]
			}
		}
		if plane.Vec3().Dot(p)+plane[3] < 0 {
			return false
		}
	}
	return true
}
