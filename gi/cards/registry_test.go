package cards

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gicache/gi/atlas"
	"github.com/gekko3d/gicache/gi/core"
)

// quadTemplate is a unit card facing +X, one tile large.
func quadTemplate(res uint32) core.SurfaceCardTemplate {
	return core.SurfaceCardTemplate{
		Direction:   core.CardPosX,
		LocalNormal: mgl32.Vec3{1, 0, 0},
		AxisX:       mgl32.Vec3{0, 1, 0},
		AxisY:       mgl32.Vec3{0, 0, 1},
		LocalSize:   mgl32.Vec2{1, 1},
		Resolution:  [2]uint32{res, res},
	}
}

func newTestRegistry(atlasSize int) *Registry {
	return NewRegistry(atlas.NewTileAllocator(atlasSize, atlasSize, 64, 8), Options{}, nil)
}

func addQuad(r *Registry, id core.ObjectId, pos mgl32.Vec3) core.CardId {
	r.RegisterObject(id, []core.SurfaceCardTemplate{quadTemplate(64)}, core.TransformAt(pos))
	cid, _ := r.GetOrCreate(id, 0)
	return cid
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	r := newTestRegistry(256)
	r.RegisterObject(1, core.BuildCardTemplates(
		core.NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}), 16, 8, 64), core.TransformAt(mgl32.Vec3{}))

	a, ok := r.GetOrCreate(1, 2)
	require.True(t, ok)
	b, ok := r.GetOrCreate(1, 2)
	require.True(t, ok)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, r.CardCount())

	card, ok := r.Card(a)
	require.True(t, ok)
	assert.True(t, card.Resident)
	assert.True(t, card.PendingUpdate)
	assert.Equal(t, []core.CardId{a}, r.DirtyCardIds())

	_, ok = r.GetOrCreate(1, 6)
	assert.False(t, ok, "template index out of range")
	_, ok = r.GetOrCreate(99, 0)
	assert.False(t, ok, "unknown object")
}

func TestGetOrCreate_AtlasFullStaysRegistered(t *testing.T) {
	r := newTestRegistry(128) // 2x2 tiles
	var ids []core.CardId
	for i := 0; i < 5; i++ {
		ids = append(ids, addQuad(r, core.ObjectId(i+1), mgl32.Vec3{float32(i), 0, 0}))
	}
	last, ok := r.Card(ids[4])
	require.True(t, ok)
	assert.False(t, last.Resident)
	assert.True(t, last.PendingRealloc)
	assert.True(t, last.PendingUpdate)
	assert.Len(t, r.DirtyCardIds(), 5)

	// Evicting one card makes room for the retry.
	require.True(t, r.Evict(ids[0]))
	assert.True(t, r.EnsureResident(ids[4]))
	last, _ = r.Card(ids[4])
	assert.False(t, last.PendingRealloc)

	evicted, _ := r.Card(ids[0])
	assert.False(t, evicted.Resident)
	assert.True(t, evicted.PendingUpdate, "evicted card keeps its record and is pending")
}

func TestResidentCardsNeverOverlap(t *testing.T) {
	r := NewRegistry(atlas.NewTileAllocator(512, 512, 64, 8), Options{}, nil)
	for i := 0; i < 12; i++ {
		tpl := quadTemplate(uint32(64 * (1 + i%3)))
		r.RegisterObject(core.ObjectId(i), []core.SurfaceCardTemplate{tpl}, core.TransformAt(mgl32.Vec3{}))
		r.GetOrCreate(core.ObjectId(i), 0)
	}
	var resident []atlas.Allocation
	r.cards.Each(func(_ core.Handle, c *SurfaceCard) bool {
		if c.Resident {
			for _, o := range resident {
				assert.False(t, c.Alloc.Overlaps(o))
			}
			resident = append(resident, c.Alloc)
		}
		return true
	})
	assert.NotEmpty(t, resident)
}

func TestRemoveObject_FreesEverything(t *testing.T) {
	r := newTestRegistry(256)
	cid := addQuad(r, 1, mgl32.Vec3{2, 0, 0})
	r.RegisterLightInfluence(core.Light{Id: 1, Type: core.LightTypePoint, Range: 5})
	require.Equal(t, []core.CardId{cid}, r.AffectedCards(1))
	require.Greater(t, r.AtlasUsage(), float32(0))

	removed := r.RemoveObject(1)
	assert.Equal(t, []core.CardId{cid}, removed)
	assert.Equal(t, float32(0), r.AtlasUsage())
	assert.Empty(t, r.DirtyCardIds())
	assert.Empty(t, r.AffectedCards(1))
	assert.False(t, r.MarkDirty(cid), "stale id is a no-op")
	_, ok := r.Card(cid)
	assert.False(t, ok)

	// The slot is reused with a new generation.
	next := addQuad(r, 2, mgl32.Vec3{})
	assert.Equal(t, cid.Index, next.Index)
	assert.NotEqual(t, cid, next)
}

func TestBuildUpdateBatch_Priority(t *testing.T) {
	r := newTestRegistry(512)
	a := addQuad(r, 1, mgl32.Vec3{1, 0, 0})
	b := addQuad(r, 2, mgl32.Vec3{10, 0, 0})
	c := addQuad(r, 3, mgl32.Vec3{5, 0, 0})
	d := addQuad(r, 4, mgl32.Vec3{5, 0, 0})

	byDistance := func(_ core.CardId, _ *SurfaceCard, inst *CardInstanceData) float32 {
		return 1 / (1 + inst.Origin.Len())
	}
	assert.Equal(t, []core.CardId{a, c, d}, r.BuildUpdateBatch(3, byDistance), "ties go to the lower handle")
	assert.Equal(t, []core.CardId{a, c, d, b}, r.BuildUpdateBatch(0, byDistance))

	require.True(t, r.CompleteUpdate(a, 7))
	card, _ := r.Card(a)
	assert.False(t, card.PendingUpdate)
	assert.Equal(t, uint64(7), card.LastUpdate)
	assert.Equal(t, []core.CardId{c, d}, r.BuildUpdateBatch(2, byDistance))
}

func TestUpdateTransform_DirtiesMovedCards(t *testing.T) {
	r := newTestRegistry(256)
	cid := addQuad(r, 1, mgl32.Vec3{})
	r.CompleteUpdate(cid, 1)
	require.Empty(t, r.DirtyCardIds())

	assert.True(t, r.UpdateTransform(1, core.TransformAt(mgl32.Vec3{})))
	assert.Empty(t, r.DirtyCardIds(), "unchanged pose")

	assert.True(t, r.UpdateTransform(1, core.TransformAt(mgl32.Vec3{0, 3, 0})))
	assert.Equal(t, []core.CardId{cid}, r.DirtyCardIds())
	inst, ok := r.Instance(cid)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{0, 3, 0}, inst.Origin)

	assert.False(t, r.UpdateTransform(42, core.TransformAt(mgl32.Vec3{})))
}

func TestMarkObjectDirty(t *testing.T) {
	r := newTestRegistry(512)
	r.RegisterObject(1, core.BuildCardTemplates(
		core.NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}), 8, 8, 64), core.TransformAt(mgl32.Vec3{}))
	ids := r.CreateAll(1)
	require.Len(t, ids, 6)
	for _, id := range ids {
		r.CompleteUpdate(id, 1)
	}
	assert.Equal(t, 6, r.MarkObjectDirty(1))
	assert.Equal(t, ids, r.DirtyCardIds())
	assert.Equal(t, 0, r.MarkObjectDirty(9))
}

func TestFreeCardSpace(t *testing.T) {
	r := newTestRegistry(512)
	big := addQuad(r, 1, mgl32.Vec3{})
	card, _ := r.Card(big)
	r.RegisterObject(2, []core.SurfaceCardTemplate{quadTemplate(128)}, core.TransformAt(mgl32.Vec3{}))
	wide, _ := r.GetOrCreate(2, 0)
	wideCard, _ := r.Card(wide)
	require.True(t, wideCard.Resident)

	// Partial overlap with a resident card is refused.
	assert.False(t, r.FreeCardSpace(wideCard.Alloc.TileBase, atlas.TileSpan{W: 1, H: 1}))
	assert.True(t, wideCard.Resident)

	// The exact span evicts its owner.
	assert.True(t, r.FreeCardSpace(card.Alloc.TileBase, card.Alloc.TileSpan))
	card, _ = r.Card(big)
	assert.False(t, card.Resident)
	assert.True(t, card.PendingUpdate)

	// Unowned space is freed as is.
	before := r.AtlasUsage()
	assert.True(t, r.FreeCardSpace(atlas.TileCoord{X: 7, Y: 7}, atlas.TileSpan{W: 1, H: 1}))
	assert.Equal(t, before, r.AtlasUsage())
	assert.False(t, r.FreeCardSpace(atlas.TileCoord{}, atlas.TileSpan{}))
}

func TestMetadata(t *testing.T) {
	r := newTestRegistry(256)
	a := addQuad(r, 1, mgl32.Vec3{4, 0, 0})
	md := r.Metadata()
	require.Len(t, md, 1)
	assert.Equal(t, mgl32.Vec3{4, 0, 0}, md[a.Index].Origin)
	assert.NotZero(t, md[a.Index].Flags&atlas.FlagResident)
	assert.Equal(t, [4]uint32{0, 0, 64, 64}, md[a.Index].Rect)
}
