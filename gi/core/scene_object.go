package core

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

type ObjectKind uint8

const (
	KindMesh ObjectKind = iota + 1
	KindLight
	KindCamera
	KindProbe
	KindVolume
)

func (k ObjectKind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindLight:
		return "light"
	case KindCamera:
		return "camera"
	case KindProbe:
		return "probe"
	case KindVolume:
		return "volume"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type MeshObject struct {
	Mesh      MeshId
	Transform Transform
}

// ProbeObject asks for an explicitly placed radiance probe.
type ProbeObject struct {
	Position mgl32.Vec3
	Radius   float32
}

// VolumeObject marks a region whose lighting changed (fog, emissive volume, teleport, ...).
type VolumeObject struct {
	Bounds AABB
}

// SceneObject is a tagged union; exactly one payload matches Kind.
type SceneObject struct {
	Id   ObjectId
	Kind ObjectKind

	Mesh   *MeshObject
	Light  *Light
	Camera *CameraState
	Probe  *ProbeObject
	Volume *VolumeObject
}

func NewMeshObject(id ObjectId, mesh MeshId, t Transform) SceneObject {
	return SceneObject{Id: id, Kind: KindMesh, Mesh: &MeshObject{Mesh: mesh, Transform: t}}
}

func NewLightObject(id ObjectId, l Light) SceneObject {
	return SceneObject{Id: id, Kind: KindLight, Light: &l}
}

func NewCameraObject(id ObjectId, c CameraState) SceneObject {
	return SceneObject{Id: id, Kind: KindCamera, Camera: &c}
}

func NewProbeObject(id ObjectId, pos mgl32.Vec3, radius float32) SceneObject {
	return SceneObject{Id: id, Kind: KindProbe, Probe: &ProbeObject{Position: pos, Radius: radius}}
}

func NewVolumeObject(id ObjectId, bounds AABB) SceneObject {
	return SceneObject{Id: id, Kind: KindVolume, Volume: &VolumeObject{Bounds: bounds}}
}

type ObjectVisitor interface {
	VisitMesh(id ObjectId, m *MeshObject) error
	VisitLight(id ObjectId, l *Light) error
	VisitCamera(id ObjectId, c *CameraState) error
	VisitProbe(id ObjectId, p *ProbeObject) error
	VisitVolume(id ObjectId, v *VolumeObject) error
}

// Visit dispatches on Kind. A kind without its payload is reported as ErrInvalidHandle.
func (o SceneObject) Visit(v ObjectVisitor) error {
	switch o.Kind {
	case KindMesh:
		if o.Mesh != nil {
			return v.VisitMesh(o.Id, o.Mesh)
		}
	case KindLight:
		if o.Light != nil {
			return v.VisitLight(o.Id, o.Light)
		}
	case KindCamera:
		if o.Camera != nil {
			return v.VisitCamera(o.Id, o.Camera)
		}
	case KindProbe:
		if o.Probe != nil {
			return v.VisitProbe(o.Id, o.Probe)
		}
	case KindVolume:
		if o.Volume != nil {
			return v.VisitVolume(o.Id, o.Volume)
		}
	}
	return fmt.Errorf("%w: object %d of kind %s has no payload", ErrInvalidHandle, o.Id, o.Kind)
}
