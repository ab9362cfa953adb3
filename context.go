package gicache

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/gekko3d/gicache/gi/atlas"
	"github.com/gekko3d/gicache/gi/bvh"
	"github.com/gekko3d/gicache/gi/cards"
	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/log"
	"github.com/gekko3d/gicache/gi/probes"
	"github.com/gekko3d/gicache/gi/scheduler"
)

type Viewport struct {
	Width  int
	Height int
}

// FrameContext is what the host hands to Tick once per frame. A nil Sampler
// skips screen-space probe placement.
type FrameContext struct {
	Viewport Viewport
	Sampler  probes.SurfaceSampler
}

// FrameStats extends the scheduler's report with the work Tick does before it.
type FrameStats struct {
	scheduler.FrameStats
	Placement      probes.PlacementStats
	LightsUpdated  int
	LightCardsHit  int
	MetadataUpload bool
}

// SceneUploader is implemented by backends that mirror card metadata and lights
// on the GPU. Context calls it every Tick before submitting work.
type SceneUploader interface {
	UploadScene(meta []atlas.CardMetadata, lights []core.GPULight) error
}

type objectRecord struct {
	kind  core.ObjectKind
	mesh  core.MeshId
	light core.LightId
	probe probes.ProbeId
	birth uint64 // probe birth frame, tells a reused slot apart
}

// Context owns one GI cache: the card registry, the probe pool and the
// scheduler that feeds the backend. It is not safe for concurrent use; all
// calls belong on the frame thread.
type Context struct {
	SessionId uuid.UUID

	cfg     Config
	logger  log.Logger
	backend scheduler.Backend
	frame   uint64

	registry  *cards.Registry
	cache     *probes.Cache
	placement *probes.Manager
	scheduler *scheduler.Scheduler

	meshes      map[core.MeshId][]core.SurfaceCardTemplate
	objects     map[core.ObjectId]objectRecord
	lights      map[core.LightId]core.Light
	dirtyLights map[core.LightId]struct{}
	camera      *core.CameraState
	cameraOwner core.ObjectId
}

func NewContext(cfg Config, backend scheduler.Backend, logger log.Logger) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", core.ErrConfiguration)
	}
	logger = log.OrNop(logger)
	if cfg.Debug {
		logger.SetDebug(true)
	}

	alloc := atlas.NewTileAllocator(cfg.Atlas.Width, cfg.Atlas.Height, cfg.Atlas.TileSize, cfg.Atlas.MaxTileSpan)
	registry := cards.NewRegistry(alloc, cards.Options{
		BVH: bvh.Options{MaxLeafPrimitives: cfg.BVH.MaxLeafPrimitives, MaxDepth: cfg.BVH.MaxDepth},
	}, logger)
	cache := probes.NewCache(cfg.Probes.Capacity, cfg.Probes.CellSize)
	placement := probes.NewManager(cache, probes.PlacementOptions{
		ScreenStride:          cfg.Probes.ScreenStride,
		MinSpacing:            cfg.Probes.MinSpacing,
		MaxDistance:           cfg.Probes.MaxDistance,
		InfluenceRadius:       cfg.Probes.InfluenceRadius,
		MaxPlacementsPerFrame: cfg.Probes.MaxPlacementsPerFrame,
	}, logger)
	sched := scheduler.New(registry, cache, backend, scheduler.Options{
		CardBudget:  cfg.Budget.CardsPerFrame,
		ProbeBudget: cfg.Budget.ProbesPerFrame,
		Weights: scheduler.Weights{
			Distance:       cfg.Priority.DistanceWeight,
			Recency:        cfg.Priority.RecencyWeight,
			RecencyHorizon: cfg.Priority.RecencyHorizon,
			VisibleBonus:   cfg.Priority.VisibleBonus,
		},
		RefreshCleanProbes: cfg.Budget.RefreshCleanProbes,
		CaptureDepth:       cfg.Cards.CaptureDepth,
	}, logger)

	c := &Context{
		SessionId:   uuid.New(),
		cfg:         cfg,
		logger:      logger,
		backend:     backend,
		registry:    registry,
		cache:       cache,
		placement:   placement,
		scheduler:   sched,
		meshes:      make(map[core.MeshId][]core.SurfaceCardTemplate),
		objects:     make(map[core.ObjectId]objectRecord),
		lights:      make(map[core.LightId]core.Light),
		dirtyLights: make(map[core.LightId]struct{}),
	}
	logger.Infof("gi session %s: atlas %dx%d (%d px tiles), %d probes",
		c.SessionId, cfg.Atlas.Width, cfg.Atlas.Height, cfg.Atlas.TileSize, cfg.Probes.Capacity)
	return c, nil
}

func (c *Context) Config() Config {
	return c.cfg
}

// Frame is the number of completed Ticks.
func (c *Context) Frame() uint64 {
	return c.frame
}

// Camera is the active camera, or nil before one was applied.
func (c *Context) Camera() *core.CameraState {
	return c.camera
}

func (c *Context) Registry() *cards.Registry {
	return c.registry
}

func (c *Context) Probes() *probes.Cache {
	return c.cache
}

func (c *Context) Placement() *probes.Manager {
	return c.placement
}

func (c *Context) Scheduler() *scheduler.Scheduler {
	return c.scheduler
}

func (c *Context) Backend() scheduler.Backend {
	return c.backend
}

func (c *Context) Light(id core.LightId) (core.Light, bool) {
	l, ok := c.lights[id]
	return l, ok
}

// RegisterMesh builds card templates for a mesh from its local bounds.
func (c *Context) RegisterMesh(localBounds core.AABB) core.MeshId {
	tpls := core.BuildCardTemplates(localBounds, c.cfg.Cards.TexelDensity, c.cfg.Cards.MinResolution, c.cfg.Cards.MaxResolution)
	return c.RegisterMeshTemplates(tpls)
}

func (c *Context) RegisterMeshTemplates(templates []core.SurfaceCardTemplate) core.MeshId {
	id := core.NewMeshId()
	c.meshes[id] = append([]core.SurfaceCardTemplate(nil), templates...)
	c.logger.Debugf("mesh %s: %d card templates", id, len(templates))
	return id
}

func (c *Context) Templates(mesh core.MeshId) ([]core.SurfaceCardTemplate, bool) {
	t, ok := c.meshes[mesh]
	return t, ok
}

// Apply feeds one scene object change into the cache.
func (c *Context) Apply(obj core.SceneObject) error {
	if rec, ok := c.objects[obj.Id]; ok && rec.kind != obj.Kind {
		return fmt.Errorf("%w: object %d is a %s, not a %s", core.ErrInvalidHandle, obj.Id, rec.kind, obj.Kind)
	}
	return obj.Visit(c)
}

func (c *Context) VisitMesh(id core.ObjectId, m *core.MeshObject) error {
	rec, known := c.objects[id]
	if known && rec.mesh == m.Mesh {
		c.registry.UpdateTransform(id, m.Transform)
		return nil
	}
	tpls, ok := c.meshes[m.Mesh]
	if !ok {
		return fmt.Errorf("%w: object %d uses unknown mesh %s", core.ErrInvalidHandle, id, m.Mesh)
	}
	if known {
		c.scheduler.Forget(c.registry.CardsOf(id))
	}
	c.registry.RegisterObject(id, tpls, m.Transform)
	c.registry.CreateAll(id)
	c.objects[id] = objectRecord{kind: core.KindMesh, mesh: m.Mesh}
	return nil
}

// VisitLight records the light; its influence is rebuilt in the next Tick.
func (c *Context) VisitLight(id core.ObjectId, l *core.Light) error {
	if rec, ok := c.objects[id]; ok && rec.light != l.Id {
		c.RemoveLight(rec.light)
	}
	c.objects[id] = objectRecord{kind: core.KindLight, light: l.Id}
	if prev, ok := c.lights[l.Id]; ok && prev.Equal(*l) {
		return nil
	}
	c.lights[l.Id] = *l
	c.dirtyLights[l.Id] = struct{}{}
	return nil
}

func (c *Context) VisitCamera(id core.ObjectId, cam *core.CameraState) error {
	cp := *cam
	c.camera = &cp
	c.cameraOwner = id
	c.objects[id] = objectRecord{kind: core.KindCamera}
	return nil
}

// VisitProbe places an explicit probe, or moves the one this object placed before.
func (c *Context) VisitProbe(id core.ObjectId, p *core.ProbeObject) error {
	if rec, ok := c.objects[id]; ok {
		if live, ok := c.cache.Get(rec.probe); ok && live.BirthFrame == rec.birth {
			c.cache.Move(rec.probe, p.Position)
			return nil
		}
	}
	pid := c.placement.PlaceAt(p.Position, p.Radius, c.frame)
	if pid == probes.InvalidProbe {
		c.logger.Debugf("explicit probe for object %d not placed", id)
		delete(c.objects, id)
		return nil
	}
	c.objects[id] = objectRecord{kind: core.KindProbe, probe: pid, birth: c.frame}
	return nil
}

// VisitVolume invalidates every card and probe inside the volume.
func (c *Context) VisitVolume(id core.ObjectId, v *core.VolumeObject) error {
	c.InvalidateVolume(v.Bounds)
	return nil
}

// InvalidateVolume queues the cards overlapping box and the probes inside it.
func (c *Context) InvalidateVolume(box core.AABB) (nCards, nProbes int) {
	if box.IsEmpty() {
		return 0, 0
	}
	for _, id := range c.registry.CardsOverlapping(box) {
		c.scheduler.EnqueueCard(id)
		nCards++
	}
	for _, id := range c.cache.Within(box.Center(), box.BoundingRadius()) {
		if p, ok := c.cache.Get(id); ok && box.ContainsPoint(p.Position) {
			c.scheduler.EnqueueProbe(id)
			nProbes++
		}
	}
	return nCards, nProbes
}

// Destroy removes whatever the object contributed. Unknown ids return false.
func (c *Context) Destroy(id core.ObjectId) bool {
	rec, ok := c.objects[id]
	if !ok {
		return false
	}
	delete(c.objects, id)
	switch rec.kind {
	case core.KindMesh:
		c.scheduler.Forget(c.registry.RemoveObject(id))
	case core.KindLight:
		c.RemoveLight(rec.light)
	case core.KindProbe:
		if live, ok := c.cache.Get(rec.probe); ok && live.BirthFrame == rec.birth {
			c.cache.Free(rec.probe)
		}
	case core.KindCamera:
		if c.cameraOwner == id {
			c.camera = nil
		}
	}
	return true
}

// RemoveLight drops a light and returns the cards it reached, now dirty.
func (c *Context) RemoveLight(id core.LightId) []core.CardId {
	delete(c.lights, id)
	delete(c.dirtyLights, id)
	return c.registry.RemoveLight(id)
}

func (c *Context) MarkObjectDirty(id core.ObjectId) int {
	return c.registry.MarkObjectDirty(id)
}

// RegisterLightInfluence updates the light immediately instead of at the next Tick.
func (c *Context) RegisterLightInfluence(l core.Light) []core.CardId {
	c.lights[l.Id] = l
	delete(c.dirtyLights, l.Id)
	return c.registry.RegisterLightInfluence(l)
}

func (c *Context) FreeCardSpace(base atlas.TileCoord, span atlas.TileSpan) bool {
	return c.registry.FreeCardSpace(base, span)
}

func (c *Context) GetAtlasUsage() float32 {
	return c.registry.AtlasUsage()
}

func (c *Context) GetDirtyCardIds() []core.CardId {
	return c.registry.DirtyCardIds()
}

// ReportCaptureFailure re-enqueues a card whose GPU capture failed after submission.
func (c *Context) ReportCaptureFailure(id core.CardId) {
	c.scheduler.ReportCaptureFailure(id)
}

// Tick advances one frame: distant probes are evicted, new ones placed on
// visible surfaces, dirty lights rebuilt in one batch, then the scheduler runs.
func (c *Context) Tick(fc FrameContext) FrameStats {
	c.frame++
	c.registry.SetFrame(c.frame)
	var st FrameStats

	if c.camera != nil {
		evicted := c.placement.EvictDistant(c.camera.Position)
		st.Placement = c.placement.Place(c.camera, fc.Viewport.Width, fc.Viewport.Height, fc.Sampler, c.frame)
		st.Placement.Evicted = evicted
	}

	if len(c.dirtyLights) > 0 {
		ids := make([]core.LightId, 0, len(c.dirtyLights))
		for id := range c.dirtyLights {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		batch := make([]core.Light, 0, len(ids))
		for _, id := range ids {
			batch = append(batch, c.lights[id])
		}
		st.LightCardsHit = c.registry.UpdateLights(batch)
		st.LightsUpdated = len(batch)
		clear(c.dirtyLights)
	}

	if up, ok := c.backend.(SceneUploader); ok {
		if err := up.UploadScene(c.registry.Metadata(), c.gpuLights()); err != nil {
			c.logger.Warnf("scene upload failed: %v", err)
		} else {
			st.MetadataUpload = true
		}
	}

	st.FrameStats = c.scheduler.Tick(scheduler.FrameInput{Frame: c.frame, Camera: c.camera})
	return st
}

// gpuLights orders lights by mask slot so bit i of a card's mask selects record i.
// Lights without a slot are left out.
func (c *Context) gpuLights() []core.GPULight {
	out := make([]core.GPULight, cards.MaxLightSlots)
	n := 0
	for id, l := range c.lights {
		slot := c.registry.LightSlot(id)
		if slot < 0 {
			continue
		}
		out[slot] = l.GPU()
		n = max(n, slot+1)
	}
	return out[:n]
}

// IsConfigError reports whether err came from configuration validation.
func IsConfigError(err error) bool {
	return errors.Is(err, core.ErrConfiguration)
}
