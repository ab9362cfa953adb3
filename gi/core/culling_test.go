package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestExtractFrustum_LookDownNegZ(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1.0, 1.0, 100.0)
	view := mgl32.LookAtV(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	planes := (&CameraState{}).ExtractFrustum(proj.Mul4(view))

	box := func(x0, z0, x1, z1 float32) AABB {
		return NewAABB(mgl32.Vec3{x0, -1, z0}, mgl32.Vec3{x1, 1, z1})
	}
	assert.True(t, AABBInFrustum(box(-1, -10, 1, -5), planes), "centered")
	assert.True(t, AABBInFrustum(box(-12, -10, -8, -5), planes), "straddles the left plane")
	assert.False(t, AABBInFrustum(box(-20, -10, -15, -5), planes), "left")
	assert.False(t, AABBInFrustum(box(-1, 2, 1, 5), planes), "behind")
	assert.False(t, AABBInFrustum(box(-1, -200, 1, -150), planes), "past far")
}

func TestFrustum_ZUpCamera(t *testing.T) {
	cam := NewCameraState()
	cam.Position = mgl32.Vec3{}
	cam.Yaw = 0 // forward is -Y
	planes := cam.Frustum()

	at := func(x, y, z float32) AABB {
		c := mgl32.Vec3{x, y, z}
		return NewAABB(c.Sub(mgl32.Vec3{1, 1, 1}), c.Add(mgl32.Vec3{1, 1, 1}))
	}
	assert.True(t, AABBInFrustum(at(0, -10, 0), planes), "ahead on -Y")
	assert.True(t, AABBInFrustum(at(0, -10, 4), planes), "slightly above, inside the 60 degree fov")
	assert.False(t, AABBInFrustum(at(0, 10, 0), planes), "behind on +Y")
	assert.False(t, AABBInFrustum(at(0, -10, 20), planes), "above the top plane")
	assert.False(t, AABBInFrustum(at(50, -10, 0), planes), "far to the side")
	assert.False(t, AABBInFrustum(at(0, -2000, 0), planes), "past far")

	// Turning around swaps what is visible.
	cam.Yaw = math.Pi
	planes = cam.Frustum()
	assert.True(t, AABBInFrustum(at(0, 10, 0), planes))
	assert.False(t, AABBInFrustum(at(0, -10, 0), planes))

	// Pitching steeply down sees the ground below the camera.
	cam.Yaw = 0
	cam.Pitch = -1.2
	planes = cam.Frustum()
	assert.True(t, AABBInFrustum(at(0, 0, -10), planes))
	assert.False(t, AABBInFrustum(at(0, -10, 0), planes))
}

func TestScreenRayCenterMatchesForward(t *testing.T) {
	cam := NewCameraState()
	cam.Yaw = 0.3
	cam.Pitch = -0.2

	_, dir := cam.ScreenRay(640, 360, 1280, 720)
	assert.Greater(t, dir.Dot(cam.GetForward()), float32(0.999))
}
