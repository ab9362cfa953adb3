package gicache

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gicache/gi/atlas"
	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/probes"
	"github.com/gekko3d/gicache/gi/scheduler"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Atlas = AtlasConfig{Width: 512, Height: 512, TileSize: 64, MaxTileSpan: 8}
	cfg.Probes.Capacity = 64
	cfg.Budget = BudgetConfig{CardsPerFrame: 0, ProbesPerFrame: 0}
	return cfg
}

func newTestContext(t *testing.T, cfg Config) (*Context, *scheduler.NullBackend) {
	t.Helper()
	backend := scheduler.NewNullBackend()
	ctx, err := NewContext(cfg, backend, nil)
	require.NoError(t, err)
	return ctx, backend
}

func unitCube() core.AABB {
	return core.NewAABB(mgl32.Vec3{-0.5, -0.5, -0.5}, mgl32.Vec3{0.5, 0.5, 0.5})
}

func TestNewContextRejectsBadInput(t *testing.T) {
	_, err := NewContext(testConfig(), nil, nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	cfg := testConfig()
	cfg.Atlas.TileSize = 0
	_, err = NewContext(cfg, scheduler.NewNullBackend(), nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestApplyMeshCreatesDirtyCards(t *testing.T) {
	ctx, backend := newTestContext(t, testConfig())
	mesh := ctx.RegisterMesh(unitCube())
	tpls, ok := ctx.Templates(mesh)
	require.True(t, ok)
	require.Len(t, tpls, core.MaxCardsPerMesh)

	require.NoError(t, ctx.Apply(core.NewMeshObject(1, mesh, core.TransformAt(mgl32.Vec3{}))))
	assert.Len(t, ctx.GetDirtyCardIds(), 6)
	assert.InDelta(t, 6.0/64.0, ctx.GetAtlasUsage(), 1e-6)

	st := ctx.Tick(FrameContext{})
	assert.Equal(t, 6, st.CardsSubmitted)
	assert.Empty(t, ctx.GetDirtyCardIds())
	assert.Len(t, backend.Captures, 6)
	assert.Equal(t, uint64(1), ctx.Frame())

	// Moving the object dirties its cards again.
	require.NoError(t, ctx.Apply(core.NewMeshObject(1, mesh, core.TransformAt(mgl32.Vec3{3, 0, 0}))))
	assert.Len(t, ctx.GetDirtyCardIds(), 6)
}

func TestApplyRejectsUnknownMeshAndKindChange(t *testing.T) {
	ctx, _ := newTestContext(t, testConfig())
	err := ctx.Apply(core.NewMeshObject(1, core.NewMeshId(), core.TransformAt(mgl32.Vec3{})))
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	require.NoError(t, ctx.Apply(core.NewLightObject(2, core.Light{Id: 1, Range: 4})))
	mesh := ctx.RegisterMesh(unitCube())
	err = ctx.Apply(core.NewMeshObject(2, mesh, core.TransformAt(mgl32.Vec3{})))
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	assert.ErrorIs(t, ctx.Apply(core.SceneObject{Id: 3, Kind: core.KindProbe}), core.ErrInvalidHandle)
}

func TestLightsRebuildOncePerTick(t *testing.T) {
	ctx, _ := newTestContext(t, testConfig())
	mesh := ctx.RegisterMesh(unitCube())
	require.NoError(t, ctx.Apply(core.NewMeshObject(1, mesh, core.TransformAt(mgl32.Vec3{}))))
	ctx.Tick(FrameContext{})

	light := core.Light{Id: 7, Type: core.LightTypePoint, Position: mgl32.Vec3{2, 0, 0}, Range: 5, Intensity: 1}
	require.NoError(t, ctx.Apply(core.NewLightObject(10, light)))
	// Nothing happens until the frame runs.
	assert.Empty(t, ctx.GetDirtyCardIds())

	st := ctx.Tick(FrameContext{})
	assert.Equal(t, 1, st.LightsUpdated)
	assert.Equal(t, 6, st.LightCardsHit)
	assert.Equal(t, 6, st.CardsSubmitted)
	assert.Len(t, ctx.Registry().AffectedCards(7), 6)

	// Re-applying an identical light is a no-op.
	require.NoError(t, ctx.Apply(core.NewLightObject(10, light)))
	st = ctx.Tick(FrameContext{})
	assert.Zero(t, st.LightsUpdated)
	assert.Zero(t, st.CardsSubmitted)

	// Destroying the light object dirties what it reached.
	assert.True(t, ctx.Destroy(10))
	assert.Len(t, ctx.GetDirtyCardIds(), 6)
	_, ok := ctx.Light(7)
	assert.False(t, ok)
}

func TestRegisterLightInfluenceIsImmediate(t *testing.T) {
	ctx, _ := newTestContext(t, testConfig())
	mesh := ctx.RegisterMesh(unitCube())
	require.NoError(t, ctx.Apply(core.NewMeshObject(1, mesh, core.TransformAt(mgl32.Vec3{}))))
	require.NoError(t, ctx.Apply(core.NewMeshObject(2, mesh, core.TransformAt(mgl32.Vec3{40, 0, 0}))))

	near := ctx.RegisterLightInfluence(core.Light{Id: 1, Type: core.LightTypePoint, Range: 3})
	assert.Len(t, near, 6)
	assert.ElementsMatch(t, ctx.Registry().CardsOf(1), near)
	assert.Len(t, ctx.RemoveLight(1), 6)
}

func TestDestroyMeshReleasesAtlas(t *testing.T) {
	ctx, _ := newTestContext(t, testConfig())
	mesh := ctx.RegisterMesh(unitCube())
	require.NoError(t, ctx.Apply(core.NewMeshObject(1, mesh, core.TransformAt(mgl32.Vec3{}))))
	ids := ctx.GetDirtyCardIds()
	ctx.Scheduler().EnqueueCard(ids[0])

	assert.True(t, ctx.Destroy(1))
	assert.False(t, ctx.Destroy(1))
	assert.Zero(t, ctx.GetAtlasUsage())
	assert.Empty(t, ctx.GetDirtyCardIds())
	assert.Zero(t, ctx.Scheduler().PendingCards())
}

func TestFreeCardSpace(t *testing.T) {
	ctx, _ := newTestContext(t, testConfig())
	mesh := ctx.RegisterMesh(unitCube())
	require.NoError(t, ctx.Apply(core.NewMeshObject(1, mesh, core.TransformAt(mgl32.Vec3{}))))
	ctx.Tick(FrameContext{})

	id := ctx.Registry().CardsOf(1)[0]
	card, _ := ctx.Registry().Card(id)
	require.True(t, ctx.FreeCardSpace(card.Alloc.TileBase, card.Alloc.TileSpan))
	assert.Equal(t, []core.CardId{id}, ctx.GetDirtyCardIds())

	// The evicted card gets space again on the next frame.
	st := ctx.Tick(FrameContext{})
	assert.Equal(t, 1, st.CardsSubmitted)
	card, _ = ctx.Registry().Card(id)
	assert.True(t, card.Resident)

	assert.False(t, ctx.FreeCardSpace(atlas.TileCoord{}, atlas.TileSpan{}))
}

func TestExplicitProbes(t *testing.T) {
	ctx, _ := newTestContext(t, testConfig())
	require.NoError(t, ctx.Apply(core.NewProbeObject(5, mgl32.Vec3{1, 1, 1}, 2)))
	require.Equal(t, 1, ctx.Probes().ActiveCount())
	ctx.Tick(FrameContext{})
	require.Empty(t, ctx.Probes().DirtyIds())

	require.NoError(t, ctx.Apply(core.NewProbeObject(5, mgl32.Vec3{4, 1, 1}, 2)))
	assert.Equal(t, 1, ctx.Probes().ActiveCount())
	ids := ctx.Probes().Within(mgl32.Vec3{4, 1, 1}, 0.1)
	require.Len(t, ids, 1)
	assert.Equal(t, ids, ctx.Probes().DirtyIds())

	assert.True(t, ctx.Destroy(5))
	assert.Zero(t, ctx.Probes().ActiveCount())
}

func TestVolumeInvalidation(t *testing.T) {
	ctx, _ := newTestContext(t, testConfig())
	mesh := ctx.RegisterMesh(unitCube())
	require.NoError(t, ctx.Apply(core.NewMeshObject(1, mesh, core.TransformAt(mgl32.Vec3{}))))
	require.NoError(t, ctx.Apply(core.NewMeshObject(2, mesh, core.TransformAt(mgl32.Vec3{20, 0, 0}))))
	require.NoError(t, ctx.Apply(core.NewProbeObject(3, mgl32.Vec3{0, 0, 2}, 1)))
	ctx.Tick(FrameContext{})

	box := core.NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 3})
	require.NoError(t, ctx.Apply(core.NewVolumeObject(9, box)))
	assert.Equal(t, 6, ctx.Scheduler().PendingCards())
	assert.Equal(t, 1, ctx.Scheduler().PendingProbes())

	st := ctx.Tick(FrameContext{})
	assert.Equal(t, 6, st.CardsSubmitted)
	assert.Equal(t, 1, st.ProbesSubmitted)
}

func TestTickPlacesAndEvictsProbes(t *testing.T) {
	cfg := testConfig()
	cfg.Probes.MaxDistance = 30
	cfg.Probes.MaxPlacementsPerFrame = 0
	ctx, _ := newTestContext(t, cfg)

	cam := core.NewCameraState()
	cam.Position = mgl32.Vec3{0, 0, 10}
	cam.Pitch = -math.Pi / 2 * 0.999
	require.NoError(t, ctx.Apply(core.NewCameraObject(100, *cam)))
	sampler := &probes.PlaneSampler{Camera: ctx.Camera(), Width: 256, Height: 128, Normal: mgl32.Vec3{0, 0, 1}, Lift: 0.5}

	st := ctx.Tick(FrameContext{Viewport: Viewport{Width: 256, Height: 128}, Sampler: sampler})
	assert.Positive(t, st.Placement.Placed)
	assert.Equal(t, st.Placement.Placed, st.ProbesSubmitted)
	placed := ctx.Probes().ActiveCount()

	// Same view: spacing rejects every candidate.
	st = ctx.Tick(FrameContext{Viewport: Viewport{Width: 256, Height: 128}, Sampler: sampler})
	assert.Zero(t, st.Placement.Placed)

	// Far away: everything is evicted.
	cam.Position = mgl32.Vec3{500, 0, 10}
	require.NoError(t, ctx.Apply(core.NewCameraObject(100, *cam)))
	st = ctx.Tick(FrameContext{})
	assert.Equal(t, placed, st.Placement.Evicted)
	assert.Zero(t, ctx.Probes().ActiveCount())

	assert.True(t, ctx.Destroy(100))
	assert.Nil(t, ctx.Camera())
}

type uploadBackend struct {
	*scheduler.NullBackend
	uploads int
	meta    []atlas.CardMetadata
	lights  []core.GPULight
}

func (b *uploadBackend) UploadScene(meta []atlas.CardMetadata, lights []core.GPULight) error {
	b.uploads++
	b.meta, b.lights = meta, lights
	return nil
}

func TestTickUploadsScene(t *testing.T) {
	backend := &uploadBackend{NullBackend: scheduler.NewNullBackend()}
	ctx, err := NewContext(testConfig(), backend, nil)
	require.NoError(t, err)
	mesh := ctx.RegisterMesh(unitCube())
	require.NoError(t, ctx.Apply(core.NewMeshObject(1, mesh, core.TransformAt(mgl32.Vec3{}))))
	require.NoError(t, ctx.Apply(core.NewLightObject(2, core.Light{Id: 3, Range: 4, Intensity: 2})))
	require.NoError(t, ctx.Apply(core.NewLightObject(4, core.Light{Id: 9, Range: 4, Intensity: 5})))

	st := ctx.Tick(FrameContext{})
	assert.True(t, st.MetadataUpload)
	assert.Equal(t, 1, backend.uploads)
	assert.Len(t, backend.meta, 6)
	require.Len(t, backend.lights, 2)
	// Records follow mask slots, assigned in light id order.
	assert.Equal(t, float32(2), backend.lights[0].Color[3])
	assert.Equal(t, float32(5), backend.lights[1].Color[3])
}

func TestContextSessions(t *testing.T) {
	a, _ := newTestContext(t, testConfig())
	b, _ := newTestContext(t, testConfig())
	assert.NotEqual(t, a.SessionId, b.SessionId)
	assert.Equal(t, testConfig(), a.Config())
	assert.Equal(t, uint64(120), a.Scheduler().Options().Weights.RecencyHorizon)
}
