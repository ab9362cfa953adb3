package demo

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	gicache "github.com/gekko3d/gicache"
	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/probes"
)

// Scene is a procedural test scene: a floor, a grid of boxes, a few orbiting
// point lights and a sun. Animate moves part of it every frame so the cache
// always has dirty work.
type Scene struct {
	Ctx    *gicache.Context
	Camera core.CameraState

	rng     *rand.Rand
	nextId  core.ObjectId
	boxMesh core.MeshId
	boxes   []box
	lights  []orbit
	camId   core.ObjectId

	// MovingFraction of the boxes bob up and down each frame.
	MovingFraction float32
	// OrbitCamera circles the camera around the origin.
	OrbitCamera bool
}

type box struct {
	id     core.ObjectId
	base   mgl32.Vec3
	phase  float32
	moving bool
}

type orbit struct {
	id     core.ObjectId
	light  core.Light
	radius float32
	speed  float32
}

type Options struct {
	Boxes          int
	Lights         int
	Seed           int64
	Spacing        float32
	MovingFraction float32
	OrbitCamera    bool
}

func DefaultOptions() Options {
	return Options{
		Boxes:          64,
		Lights:         4,
		Seed:           1,
		Spacing:        4,
		MovingFraction: 0.1,
		OrbitCamera:    true,
	}
}

func (s *Scene) newId() core.ObjectId {
	s.nextId++
	return s.nextId
}

// Build populates ctx and returns the scene driving it.
func Build(ctx *gicache.Context, opts Options) (*Scene, error) {
	s := &Scene{
		Ctx:            ctx,
		Camera:         *core.NewCameraState(),
		rng:            rand.New(rand.NewSource(opts.Seed)),
		MovingFraction: opts.MovingFraction,
		OrbitCamera:    opts.OrbitCamera,
	}

	side := int(math.Ceil(math.Sqrt(float64(max(opts.Boxes, 1)))))
	half := float32(side) * opts.Spacing * 0.5

	floorMesh := ctx.RegisterMesh(core.NewAABB(mgl32.Vec3{-half - 2, -half - 2, -0.5}, mgl32.Vec3{half + 2, half + 2, 0}))
	if err := ctx.Apply(core.NewMeshObject(s.newId(), floorMesh, core.TransformAt(mgl32.Vec3{}))); err != nil {
		return nil, fmt.Errorf("failed to add floor: %w", err)
	}

	s.boxMesh = ctx.RegisterMesh(core.NewAABB(mgl32.Vec3{-0.5, -0.5, 0}, mgl32.Vec3{0.5, 0.5, 1}))
	for i := 0; i < opts.Boxes; i++ {
		x := float32(i%side)*opts.Spacing - half + opts.Spacing*0.5
		y := float32(i/side)*opts.Spacing - half + opts.Spacing*0.5
		b := box{
			id:     s.newId(),
			base:   mgl32.Vec3{x, y, 0},
			phase:  s.rng.Float32() * 2 * math.Pi,
			moving: s.rng.Float32() < opts.MovingFraction,
		}
		t := core.TransformAt(b.base)
		t.Scale = mgl32.Vec3{1, 1, 1 + s.rng.Float32()*2}
		if err := ctx.Apply(core.NewMeshObject(b.id, s.boxMesh, t)); err != nil {
			return nil, fmt.Errorf("failed to add box %d: %w", i, err)
		}
		s.boxes = append(s.boxes, b)
	}

	sun := core.Light{
		Id:        0,
		Type:      core.LightTypeDirectional,
		Direction: mgl32.Vec3{0.3, 0.2, -1}.Normalize(),
		Color:     [3]float32{1, 0.95, 0.85},
		Intensity: 2,
	}
	if err := ctx.Apply(core.NewLightObject(s.newId(), sun)); err != nil {
		return nil, err
	}
	for i := 0; i < opts.Lights; i++ {
		o := orbit{
			id:     s.newId(),
			radius: half * (0.3 + 0.6*s.rng.Float32()),
			speed:  0.005 + 0.02*s.rng.Float32(),
			light: core.Light{
				Id:        core.LightId(i + 1),
				Type:      core.LightTypePoint,
				Color:     [3]float32{s.rng.Float32(), s.rng.Float32(), s.rng.Float32()},
				Intensity: 10,
				Range:     opts.Spacing * 3,
			},
		}
		o.light.Position = o.at(0)
		if err := ctx.Apply(core.NewLightObject(o.id, o.light)); err != nil {
			return nil, err
		}
		s.lights = append(s.lights, o)
	}

	s.camId = s.newId()
	s.Camera.Position = mgl32.Vec3{0, -half * 1.5, half}
	s.Camera.Yaw = math.Pi
	s.Camera.Pitch = -0.5
	if err := ctx.Apply(core.NewCameraObject(s.camId, s.Camera)); err != nil {
		return nil, err
	}
	return s, nil
}

func (o *orbit) at(frame uint64) mgl32.Vec3 {
	a := float64(frame) * float64(o.speed)
	return mgl32.Vec3{o.radius * float32(math.Cos(a)), o.radius * float32(math.Sin(a)), 3}
}

// Animate pushes this frame's changes into the context.
func (s *Scene) Animate(frame uint64) error {
	for i := range s.boxes {
		b := &s.boxes[i]
		if !b.moving {
			continue
		}
		t := core.TransformAt(b.base.Add(mgl32.Vec3{0, 0, 1 + float32(math.Sin(float64(frame)*0.05+float64(b.phase)))}))
		if err := s.Ctx.Apply(core.NewMeshObject(b.id, s.boxMesh, t)); err != nil {
			return err
		}
	}
	for i := range s.lights {
		o := &s.lights[i]
		o.light.Position = o.at(frame)
		if err := s.Ctx.Apply(core.NewLightObject(o.id, o.light)); err != nil {
			return err
		}
	}
	if s.OrbitCamera {
		r := s.Camera.Position.Vec2().Len()
		a := float64(frame) * 0.002
		s.Camera.Position = mgl32.Vec3{r * float32(math.Sin(a)), -r * float32(math.Cos(a)), s.Camera.Position.Z()}
		// Forward is (sin yaw, -cos yaw), so yaw+pi looks back at the origin.
		s.Camera.Yaw = float32(a) + math.Pi
		if err := s.Ctx.Apply(core.NewCameraObject(s.camId, s.Camera)); err != nil {
			return err
		}
	}
	return nil
}

// Sampler treats the floor plane as the visible surface for probe placement.
func (s *Scene) Sampler(width, height int) *probes.PlaneSampler {
	return &probes.PlaneSampler{
		Camera:   &s.Camera,
		Width:    width,
		Height:   height,
		Normal:   mgl32.Vec3{0, 0, 1},
		Lift:     1,
		MaxRange: s.Ctx.Config().Probes.MaxDistance,
	}
}

func (s *Scene) Boxes() int {
	return len(s.boxes)
}
