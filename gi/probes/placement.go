package probes

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/log"
)

// SurfaceSampler resolves a screen pixel to the world position of the visible
// surface, e.g. by reading back depth. ok is false where nothing was hit.
type SurfaceSampler interface {
	SampleSurface(x, y float32) (mgl32.Vec3, bool)
}

// PlaneSampler intersects camera rays with the plane Normal·p = Offset,
// offset along the normal by Lift so probes float above the surface.
type PlaneSampler struct {
	Camera   *core.CameraState
	Width    int
	Height   int
	Normal   mgl32.Vec3
	Offset   float32
	Lift     float32
	MaxRange float32
}

func (s *PlaneSampler) SampleSurface(x, y float32) (mgl32.Vec3, bool) {
	origin, dir := s.Camera.ScreenRay(x, y, s.Width, s.Height)
	denom := s.Normal.Dot(dir)
	if denom > -1e-6 && denom < 1e-6 {
		return mgl32.Vec3{}, false
	}
	t := (s.Offset - s.Normal.Dot(origin)) / denom
	if t <= 0 || (s.MaxRange > 0 && t > s.MaxRange) {
		return mgl32.Vec3{}, false
	}
	return origin.Add(dir.Mul(t)).Add(s.Normal.Mul(s.Lift)), true
}

type PlacementOptions struct {
	ScreenStride          int
	MinSpacing            float32
	MaxDistance           float32
	InfluenceRadius       float32
	MaxPlacementsPerFrame int
}

type PlacementStats struct {
	Candidates int
	Placed     int
	Rejected   int // spacing
	Exhausted  bool
	Evicted    int
}

// Manager places probes on visible surfaces and retires distant ones.
type Manager struct {
	cache  *Cache
	opts   PlacementOptions
	logger log.Logger
}

func NewManager(cache *Cache, opts PlacementOptions, logger log.Logger) *Manager {
	if opts.ScreenStride <= 0 {
		opts.ScreenStride = 32
	}
	return &Manager{cache: cache, opts: opts, logger: log.OrNop(logger)}
}

func (m *Manager) Cache() *Cache {
	return m.cache
}

func (m *Manager) Options() PlacementOptions {
	return m.opts
}

// Place samples the viewport on the configured stride. A candidate is rejected
// if an active probe lies within MinSpacing. Placement stops when the pool runs
// out or the per-frame limit is hit.
func (m *Manager) Place(camera *core.CameraState, viewportW, viewportH int, sampler SurfaceSampler, frame uint64) PlacementStats {
	var st PlacementStats
	if sampler == nil || viewportW <= 0 || viewportH <= 0 {
		return st
	}
	stride := m.opts.ScreenStride
	half := float32(stride) * 0.5

	for y := 0; y < viewportH; y += stride {
		for x := 0; x < viewportW; x += stride {
			if m.opts.MaxPlacementsPerFrame > 0 && st.Placed >= m.opts.MaxPlacementsPerFrame {
				return st
			}
			sx, sy := float32(x)+half, float32(y)+half
			pos, ok := sampler.SampleSurface(sx, sy)
			if !ok {
				continue
			}
			st.Candidates++
			if camera != nil && m.opts.MaxDistance > 0 && camera.Distance(pos) > m.opts.MaxDistance {
				continue
			}
			if m.opts.MinSpacing > 0 && m.cache.AnyWithin(pos, m.opts.MinSpacing) {
				st.Rejected++
				continue
			}
			hint := [2]float32{sx / float32(viewportW), sy / float32(viewportH)}
			if id := m.cache.Allocate(pos, hint, frame, m.opts.InfluenceRadius); id == InvalidProbe {
				st.Exhausted = true
				m.logger.Debugf("probe pool exhausted after %d placements", st.Placed)
				return st
			}
			st.Placed++
		}
	}
	return st
}

// PlaceAt allocates one explicit probe, honoring MinSpacing.
func (m *Manager) PlaceAt(pos mgl32.Vec3, radius float32, frame uint64) ProbeId {
	if m.opts.MinSpacing > 0 && m.cache.AnyWithin(pos, m.opts.MinSpacing) {
		m.logger.Debugf("explicit probe at %v rejected by spacing", pos)
		return InvalidProbe
	}
	if radius <= 0 {
		radius = m.opts.InfluenceRadius
	}
	return m.cache.Allocate(pos, [2]float32{-1, -1}, frame, radius)
}

// EvictDistant frees every probe beyond MaxDistance from the camera.
func (m *Manager) EvictDistant(cameraPos mgl32.Vec3) int {
	if m.opts.MaxDistance <= 0 {
		return 0
	}
	max2 := m.opts.MaxDistance * m.opts.MaxDistance
	var doomed []ProbeId
	m.cache.Each(func(id ProbeId, p *RadianceProbe) bool {
		d := p.Position.Sub(cameraPos)
		if d.Dot(d) > max2 {
			doomed = append(doomed, id)
		}
		return true
	})
	for _, id := range doomed {
		m.cache.Free(id)
	}
	return len(doomed)
}
