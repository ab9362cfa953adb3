package scheduler

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/probes"
)

// DefaultCaptureDepth is how far in front of the card plane the capture camera sits.
const DefaultCaptureDepth float32 = 2

// CaptureRequest asks the backend to rasterize one card into its atlas rect.
type CaptureRequest struct {
	Card      core.CardId
	Frame     uint64
	Atlas     core.AtlasResources
	Rect      [4]uint32 // x, y, w, h in atlas pixels
	Origin    mgl32.Vec3
	Normal    mgl32.Vec3
	AxisX     mgl32.Vec3
	AxisY     mgl32.Vec3
	Size      mgl32.Vec2
	LightMask uint64
	ViewProj  mgl32.Mat4
}

// ProbeUpdateRequest is one batched probe dispatch. Current is written, Previous
// is read for temporal blending.
type ProbeUpdateRequest struct {
	Frame    uint64
	Atlas    core.AtlasResources
	Current  core.BufferHandle
	Previous core.BufferHandle
	Probes   []probes.GPUProbe
}

// Backend is the rendering collaborator. GPU work may complete asynchronously;
// the scheduler never waits on it.
type Backend interface {
	Atlas() core.AtlasResources
	ProbeBuffers() *core.Flip[core.BufferHandle]
	CaptureCard(req CaptureRequest) error
	// UpdateProbes returns ids it could not process. A non-nil error fails the batch.
	UpdateProbes(req ProbeUpdateRequest) ([]probes.ProbeId, error)
}

// CaptureViewProj is an orthographic projection looking down -normal onto the
// card plane, covering exactly the card quad.
func CaptureViewProj(origin, normal, axisY mgl32.Vec3, size mgl32.Vec2, depth float32) mgl32.Mat4 {
	if depth <= 0 {
		depth = DefaultCaptureDepth
	}
	eye := origin.Add(normal.Mul(depth))
	view := mgl32.LookAtV(eye, origin, axisY)
	hx, hy := size.X()*0.5, size.Y()*0.5
	proj := mgl32.Ortho(-hx, hx, -hy, hy, 0, 2*depth)
	return proj.Mul4(view)
}
