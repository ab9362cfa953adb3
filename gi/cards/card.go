package cards

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gicache/gi/atlas"
	"github.com/gekko3d/gicache/gi/core"
)

// SurfaceCard is the atlas-resident record of one card instance. It may stay
// non-resident for several frames while it waits for atlas space.
type SurfaceCard struct {
	Id             core.CardId
	Owner          core.ObjectId
	TemplateIndex  int
	Resolution     [2]uint32
	Alloc          atlas.Allocation
	Resident       bool
	PendingUpdate  bool
	PendingRealloc bool
	LastTouched    uint64
	LastUpdate     uint64
	Priority       float32
}

// CardInstanceData is the world-space placement of a template on one object.
type CardInstanceData struct {
	Origin    mgl32.Vec3
	Normal    mgl32.Vec3
	AxisX     mgl32.Vec3
	AxisY     mgl32.Vec3
	Size      mgl32.Vec2
	Bounds    core.AABB
	LightMask uint64
	Dirty     bool
	// LastUpdateFrame mirrors the card's last completed capture.
	LastUpdateFrame uint64
	Card            core.CardId
}

func instanceFrom(tpl core.SurfaceCardTemplate, t *core.Transform) CardInstanceData {
	ax := t.TransformVector(tpl.AxisX)
	ay := t.TransformVector(tpl.AxisY)
	size := mgl32.Vec2{tpl.LocalSize.X() * ax.Len(), tpl.LocalSize.Y() * ay.Len()}

	inst := CardInstanceData{
		Origin: t.TransformPoint(tpl.LocalOrigin),
		Normal: safeNormalize(t.TransformNormal(tpl.LocalNormal)),
		AxisX:  safeNormalize(ax),
		AxisY:  safeNormalize(ay),
		Size:   size,
	}
	inst.Bounds = inst.quadBounds()
	return inst
}

func safeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() == 0 {
		return v
	}
	return v.Normalize()
}

func (c *CardInstanceData) quadBounds() core.AABB {
	hx := c.AxisX.Mul(c.Size.X() * 0.5)
	hy := c.AxisY.Mul(c.Size.Y() * 0.5)
	return core.EmptyAABB().
		Expand(c.Origin.Add(hx).Add(hy)).
		Expand(c.Origin.Add(hx).Sub(hy)).
		Expand(c.Origin.Sub(hx).Add(hy)).
		Expand(c.Origin.Sub(hx).Sub(hy))
}

// Corners returns the quad corners in (-x-y, +x-y, +x+y, -x+y) order.
func (c *CardInstanceData) Corners() [4]mgl32.Vec3 {
	hx := c.AxisX.Mul(c.Size.X() * 0.5)
	hy := c.AxisY.Mul(c.Size.Y() * 0.5)
	return [4]mgl32.Vec3{
		c.Origin.Sub(hx).Sub(hy),
		c.Origin.Add(hx).Sub(hy),
		c.Origin.Add(hx).Add(hy),
		c.Origin.Sub(hx).Add(hy),
	}
}

func (c *CardInstanceData) samePlacement(o *CardInstanceData) bool {
	return c.Origin.ApproxEqual(o.Origin) && c.Normal.ApproxEqual(o.Normal) &&
		c.AxisX.ApproxEqual(o.AxisX) && c.AxisY.ApproxEqual(o.AxisY) &&
		c.Size.ApproxEqual(o.Size)
}

// metadata builds the GPU record of a card placement.
func metadata(card *SurfaceCard, inst *CardInstanceData) atlas.CardMetadata {
	m := atlas.CardMetadata{
		Origin: inst.Origin,
		AxisX:  inst.AxisX,
		SizeX:  inst.Size.X(),
		AxisY:  inst.AxisY,
		SizeY:  inst.Size.Y(),
		Normal: inst.Normal,
	}
	if card.Resident {
		m.Flags |= atlas.FlagResident
		m.Rect = [4]uint32{card.Alloc.PixelBase[0], card.Alloc.PixelBase[1], card.Resolution[0], card.Resolution[1]}
	}
	if card.PendingUpdate {
		m.Flags |= atlas.FlagDirty
	}
	return m
}
