package cards

import (
	"math/bits"
	"slices"

	"github.com/gekko3d/gicache/gi/core"
)

// MaxLightSlots is the width of a card's light mask. Lights beyond it are
// still tracked but get no bit.
const MaxLightSlots = 64

type lightEntry struct {
	light    core.Light
	slot     int // -1 without a mask bit
	affected map[core.CardId]struct{}
}

func (e *lightEntry) bit() uint64 {
	if e.slot < 0 {
		return 0
	}
	return 1 << uint(e.slot)
}

func (r *Registry) lightEntryFor(l core.Light) *lightEntry {
	if e, ok := r.lights[l.Id]; ok {
		e.light = l
		return e
	}
	e := &lightEntry{light: l, slot: -1, affected: make(map[core.CardId]struct{})}
	if free := ^r.slotUsed; free != 0 {
		e.slot = bits.TrailingZeros64(free)
		r.slotUsed |= 1 << uint(e.slot)
	} else {
		r.logger.Debugf("light %d has no mask slot, %d lights tracked", l.Id, len(r.lights)+1)
	}
	r.lights[l.Id] = e
	return e
}

// LightSlot returns the mask bit index of a light, or -1.
func (r *Registry) LightSlot(id core.LightId) int {
	if e, ok := r.lights[id]; ok {
		return e.slot
	}
	return -1
}

// RegisterLightInfluence recomputes which cards the light reaches and returns
// them in handle order. Cards that gained or lost the light are marked dirty.
func (r *Registry) RegisterLightInfluence(l core.Light) []core.CardId {
	e := r.lightEntryFor(l)
	next := r.influencedCards(&e.light)
	r.applyInfluence(e, next)

	out := make([]core.CardId, 0, len(next))
	for id := range next {
		out = append(out, id)
	}
	slices.SortFunc(out, compareHandles)
	return out
}

// UpdateLights rebuilds masks once per dirty light, diffing each light's old
// and new card sets. Returns the number of cards marked dirty.
func (r *Registry) UpdateLights(dirty []core.Light) int {
	if len(dirty) == 0 {
		return 0
	}
	before := len(r.dirty)
	r.ensureTree()
	for i := range dirty {
		e := r.lightEntryFor(dirty[i])
		r.applyInfluence(e, r.influencedCards(&e.light))
	}
	return len(r.dirty) - before
}

// RemoveLight clears the light's bit and dirties every card it reached.
func (r *Registry) RemoveLight(id core.LightId) []core.CardId {
	e, ok := r.lights[id]
	if !ok {
		return nil
	}
	r.applyInfluence(e, nil)
	r.slotUsed &^= e.bit()
	delete(r.lights, id)
	if e.slot >= 0 {
		r.promoteLight(e.slot)
	}

	var out []core.CardId
	for cid := range e.affected {
		out = append(out, cid)
	}
	slices.SortFunc(out, compareHandles)
	return out
}

// promoteLight hands a freed mask slot to the lowest-id light without one.
func (r *Registry) promoteLight(slot int) {
	var next *lightEntry
	for _, e := range r.lights {
		if e.slot < 0 && (next == nil || e.light.Id < next.light.Id) {
			next = e
		}
	}
	if next == nil {
		return
	}
	next.slot = slot
	r.slotUsed |= next.bit()
	for cid := range next.affected {
		if inst, ok := r.Instance(cid); ok {
			inst.LightMask |= next.bit()
		}
		r.MarkDirty(cid)
	}
	r.logger.Debugf("light %d promoted to mask slot %d", next.light.Id, slot)
}

// AffectedCards returns the cards last registered for a light, in handle order.
func (r *Registry) AffectedCards(id core.LightId) []core.CardId {
	e, ok := r.lights[id]
	if !ok {
		return nil
	}
	out := make([]core.CardId, 0, len(e.affected))
	for cid := range e.affected {
		out = append(out, cid)
	}
	slices.SortFunc(out, compareHandles)
	return out
}

func (r *Registry) influencedCards(l *core.Light) map[core.CardId]struct{} {
	r.ensureTree()
	out := make(map[core.CardId]struct{})
	if l.Bounded() {
		for _, prim := range r.tree.BoxOverlap(l.Bounds()) {
			cid := r.treeCards[prim]
			if l.Influences(r.tree.Primitive(prim)) {
				out[cid] = struct{}{}
			}
		}
		return out
	}
	for prim, cid := range r.treeCards {
		if l.Influences(r.tree.Primitive(prim)) {
			out[cid] = struct{}{}
		}
	}
	return out
}

// applyInfluence moves the light from its old card set to next. Every card in
// either set is dirtied, since the light itself changed.
func (r *Registry) applyInfluence(e *lightEntry, next map[core.CardId]struct{}) {
	bit := e.bit()
	for cid := range e.affected {
		if _, still := next[cid]; still {
			continue
		}
		if inst, ok := r.Instance(cid); ok {
			inst.LightMask &^= bit
		}
		r.MarkDirty(cid)
	}
	for cid := range next {
		if inst, ok := r.Instance(cid); ok {
			inst.LightMask |= bit
		}
		r.MarkDirty(cid)
	}
	// Keep the removed set around for RemoveLight's result.
	if next == nil {
		return
	}
	e.affected = next
}

// refreshInstanceLights re-tests one moved or new card against every light.
func (r *Registry) refreshInstanceLights(inst *CardInstanceData) {
	cid := inst.Card
	for _, e := range r.lights {
		_, had := e.affected[cid]
		has := e.light.Influences(inst.Bounds)
		switch {
		case has:
			e.affected[cid] = struct{}{}
			inst.LightMask |= e.bit()
		case had:
			delete(e.affected, cid)
			inst.LightMask &^= e.bit()
		}
	}
}
