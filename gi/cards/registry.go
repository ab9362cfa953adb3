package cards

import (
	"slices"

	"github.com/gekko3d/gicache/gi/atlas"
	"github.com/gekko3d/gicache/gi/bvh"
	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/log"
)

// PriorityFunc scores a dirty card for BuildUpdateBatch; higher goes first.
type PriorityFunc func(id core.CardId, card *SurfaceCard, inst *CardInstanceData) float32

type Options struct {
	BVH bvh.Options
}

type objectEntry struct {
	id        core.ObjectId
	templates []core.SurfaceCardTemplate
	transform core.Transform
	instances []CardInstanceData
}

// Registry owns card records, their atlas space, the dirty set and the light
// influence bookkeeping. All mutation happens on the frame thread.
type Registry struct {
	logger log.Logger
	opts   Options

	alloc   *atlas.TileAllocator
	cards   *core.Arena[SurfaceCard]
	objects map[core.ObjectId]*objectEntry
	dirty   map[core.CardId]struct{}
	frame   uint64

	lights   map[core.LightId]*lightEntry
	slotUsed uint64

	tree      *bvh.Tree
	treeCards []core.CardId
	treeDirty bool
}

func NewRegistry(alloc *atlas.TileAllocator, opts Options, logger log.Logger) *Registry {
	return &Registry{
		logger:    log.OrNop(logger),
		opts:      opts,
		alloc:     alloc,
		cards:     core.NewArena[SurfaceCard](256),
		objects:   make(map[core.ObjectId]*objectEntry),
		dirty:     make(map[core.CardId]struct{}),
		lights:    make(map[core.LightId]*lightEntry),
		treeDirty: true,
	}
}

// SetFrame stamps newly created cards with the current frame.
func (r *Registry) SetFrame(frame uint64) {
	r.frame = frame
}

func (r *Registry) Allocator() *atlas.TileAllocator {
	return r.alloc
}

func (r *Registry) AtlasUsage() float32 {
	return r.alloc.Usage()
}

func (r *Registry) CardCount() int {
	return r.cards.Len()
}

func (r *Registry) HasObject(id core.ObjectId) bool {
	_, ok := r.objects[id]
	return ok
}

// RegisterObject records an object's templates and pose. Re-registering an
// object replaces its previous cards.
func (r *Registry) RegisterObject(id core.ObjectId, templates []core.SurfaceCardTemplate, t core.Transform) {
	if _, ok := r.objects[id]; ok {
		r.RemoveObject(id)
	}
	e := &objectEntry{
		id:        id,
		templates: append([]core.SurfaceCardTemplate(nil), templates...),
		transform: t,
		instances: make([]CardInstanceData, len(templates)),
	}
	for i, tpl := range templates {
		e.instances[i] = instanceFrom(tpl, &e.transform)
	}
	r.objects[id] = e
	r.logger.Debugf("registered object %d with %d card templates", id, len(templates))
}

// UpdateTransform recomputes the object's card placements. Moved cards are
// marked dirty and their light bits refreshed. Returns false for unknown objects.
func (r *Registry) UpdateTransform(id core.ObjectId, t core.Transform) bool {
	e, ok := r.objects[id]
	if !ok {
		return false
	}
	if e.transform.Equal(t) {
		return true
	}
	e.transform = t
	for i, tpl := range e.templates {
		next := instanceFrom(tpl, &e.transform)
		inst := &e.instances[i]
		if inst.samePlacement(&next) {
			continue
		}
		inst.Origin, inst.Normal = next.Origin, next.Normal
		inst.AxisX, inst.AxisY = next.AxisX, next.AxisY
		inst.Size, inst.Bounds = next.Size, next.Bounds
		if r.cards.Contains(inst.Card) {
			r.refreshInstanceLights(inst)
			r.MarkDirty(inst.Card)
			r.treeDirty = true
		}
	}
	return true
}

// RemoveObject drops the object and its cards from every structure and returns
// the removed card ids.
func (r *Registry) RemoveObject(id core.ObjectId) []core.CardId {
	e, ok := r.objects[id]
	if !ok {
		return nil
	}
	var removed []core.CardId
	for i := range e.instances {
		cid := e.instances[i].Card
		card, ok := r.cards.Get(cid)
		if !ok {
			continue
		}
		if card.Resident {
			r.alloc.Free(card.Alloc.TileBase, card.Alloc.TileSpan)
		}
		for _, le := range r.lights {
			delete(le.affected, cid)
		}
		delete(r.dirty, cid)
		r.cards.Remove(cid)
		removed = append(removed, cid)
	}
	delete(r.objects, id)
	if len(removed) > 0 {
		r.treeDirty = true
	}
	r.logger.Debugf("removed object %d (%d cards)", id, len(removed))
	return removed
}

// GetOrCreate returns the card of (objectId, templateIndex), creating it on
// first use. A new card is pending update whether or not atlas space was found.
func (r *Registry) GetOrCreate(objectId core.ObjectId, templateIndex int) (core.CardId, bool) {
	e, ok := r.objects[objectId]
	if !ok || templateIndex < 0 || templateIndex >= len(e.templates) {
		return core.InvalidHandle, false
	}
	inst := &e.instances[templateIndex]
	if r.cards.Contains(inst.Card) {
		return inst.Card, true
	}

	tpl := &e.templates[templateIndex]
	id := r.cards.Insert(SurfaceCard{
		Owner:         objectId,
		TemplateIndex: templateIndex,
		Resolution:    tpl.Resolution,
		LastTouched:   r.frame,
	})
	card, _ := r.cards.Get(id)
	card.Id = id
	inst.Card = id
	inst.LightMask = 0

	r.tryAllocate(card)
	r.MarkDirty(id)
	r.refreshInstanceLights(inst)
	r.treeDirty = true
	return id, true
}

// CreateAll creates every card of an object.
func (r *Registry) CreateAll(objectId core.ObjectId) []core.CardId {
	e, ok := r.objects[objectId]
	if !ok {
		return nil
	}
	ids := make([]core.CardId, 0, len(e.templates))
	for i := range e.templates {
		if id, ok := r.GetOrCreate(objectId, i); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) tryAllocate(card *SurfaceCard) bool {
	alloc := r.alloc.Allocate(card.Resolution[0], card.Resolution[1])
	if !alloc.Valid() {
		card.PendingRealloc = true
		r.logger.Debugf("atlas full, %s (%dx%d) stays non-resident", card.Id, card.Resolution[0], card.Resolution[1])
		return false
	}
	card.Alloc = alloc
	card.Resident = true
	card.PendingRealloc = false
	return true
}

// EnsureResident retries atlas allocation for a non-resident card.
func (r *Registry) EnsureResident(id core.CardId) bool {
	card, ok := r.cards.Get(id)
	if !ok {
		return false
	}
	if card.Resident {
		return true
	}
	return r.tryAllocate(card)
}

// MarkDirty is an idempotent enqueue. Stale ids are ignored.
func (r *Registry) MarkDirty(id core.CardId) bool {
	card, ok := r.cards.Get(id)
	if !ok {
		r.logger.Debugf("mark dirty on stale %s ignored", id)
		return false
	}
	card.PendingUpdate = true
	r.dirty[id] = struct{}{}
	if inst := r.instanceOf(card); inst != nil {
		inst.Dirty = true
	}
	return true
}

// MarkObjectDirty marks every card of the object dirty and returns how many.
func (r *Registry) MarkObjectDirty(objectId core.ObjectId) int {
	n := 0
	for _, id := range r.CardsOf(objectId) {
		if r.MarkDirty(id) {
			n++
		}
	}
	return n
}

// Evict releases the card's atlas space but keeps the record, pending update.
func (r *Registry) Evict(id core.CardId) bool {
	card, ok := r.cards.Get(id)
	if !ok {
		return false
	}
	if card.Resident {
		r.alloc.Free(card.Alloc.TileBase, card.Alloc.TileSpan)
	}
	card.Resident = false
	card.Alloc = atlas.InvalidAllocation
	r.MarkDirty(id)
	return true
}

// FreeCardSpace releases an atlas span on behalf of the scene. A span owned
// exactly by one resident card evicts that card. A span that partially overlaps
// a resident card is refused. Anything else is freed as raw space.
func (r *Registry) FreeCardSpace(base atlas.TileCoord, span atlas.TileSpan) bool {
	if span.W <= 0 || span.H <= 0 {
		return false
	}
	req := atlas.Allocation{TileBase: base, TileSpan: span}
	var owner core.CardId
	refused := false
	r.cards.Each(func(h core.Handle, c *SurfaceCard) bool {
		if !c.Resident || !c.Alloc.Overlaps(req) {
			return true
		}
		if c.Alloc.TileBase == base && c.Alloc.TileSpan == span {
			owner = h
			return true
		}
		refused = true
		return false
	})
	if refused {
		r.logger.Warnf("free of span %v+%v refused: overlaps a resident card", base, span)
		return false
	}
	if owner.IsValid() {
		return r.Evict(owner)
	}
	r.alloc.Free(base, span)
	return true
}

// BuildUpdateBatch scores every dirty card with priorityFn and returns up to
// maxCount ids, highest first, ties to the lowest handle. maxCount <= 0 returns all.
func (r *Registry) BuildUpdateBatch(maxCount int, priorityFn PriorityFunc) []core.CardId {
	ids := r.DirtyCardIds()
	for _, id := range ids {
		card, _ := r.cards.Get(id)
		if priorityFn != nil {
			card.Priority = priorityFn(id, card, r.instanceOf(card))
		} else {
			card.Priority = 0
		}
	}
	slices.SortStableFunc(ids, func(a, b core.CardId) int {
		ca, _ := r.cards.Get(a)
		cb, _ := r.cards.Get(b)
		switch {
		case ca.Priority > cb.Priority:
			return -1
		case ca.Priority < cb.Priority:
			return 1
		}
		return 0
	})
	if maxCount > 0 && len(ids) > maxCount {
		ids = ids[:maxCount]
	}
	return ids
}

// CompleteUpdate clears the dirty state after a successful capture.
func (r *Registry) CompleteUpdate(id core.CardId, frame uint64) bool {
	card, ok := r.cards.Get(id)
	if !ok {
		return false
	}
	card.PendingUpdate = false
	card.LastUpdate = frame
	card.LastTouched = frame
	delete(r.dirty, id)
	if inst := r.instanceOf(card); inst != nil {
		inst.Dirty = false
		inst.LastUpdateFrame = frame
	}
	return true
}

// DirtyCardIds returns the dirty set ordered by handle.
func (r *Registry) DirtyCardIds() []core.CardId {
	ids := make([]core.CardId, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareHandles)
	return ids
}

func (r *Registry) DirtyCount() int {
	return len(r.dirty)
}

func (r *Registry) Card(id core.CardId) (*SurfaceCard, bool) {
	return r.cards.Get(id)
}

func (r *Registry) Instance(id core.CardId) (*CardInstanceData, bool) {
	card, ok := r.cards.Get(id)
	if !ok {
		return nil, false
	}
	inst := r.instanceOf(card)
	return inst, inst != nil
}

func (r *Registry) instanceOf(card *SurfaceCard) *CardInstanceData {
	e, ok := r.objects[card.Owner]
	if !ok || card.TemplateIndex >= len(e.instances) {
		return nil
	}
	return &e.instances[card.TemplateIndex]
}

// CardsOf returns the live cards of an object in template order.
func (r *Registry) CardsOf(objectId core.ObjectId) []core.CardId {
	e, ok := r.objects[objectId]
	if !ok {
		return nil
	}
	var ids []core.CardId
	for i := range e.instances {
		if r.cards.Contains(e.instances[i].Card) {
			ids = append(ids, e.instances[i].Card)
		}
	}
	return ids
}

// CardsOverlapping returns cards whose world quad overlaps box.
func (r *Registry) CardsOverlapping(box core.AABB) []core.CardId {
	r.ensureTree()
	var out []core.CardId
	for _, prim := range r.tree.BoxOverlap(box) {
		out = append(out, r.treeCards[prim])
	}
	slices.SortFunc(out, compareHandles)
	return out
}

// Metadata returns one record per card slot; slots without a live card are zero.
func (r *Registry) Metadata() []atlas.CardMetadata {
	out := make([]atlas.CardMetadata, r.cards.Cap())
	r.cards.Each(func(h core.Handle, c *SurfaceCard) bool {
		if inst := r.instanceOf(c); inst != nil {
			out[h.Index] = metadata(c, inst)
		}
		return true
	})
	return out
}

// ensureTree rebuilds the card BVH after geometry changed.
func (r *Registry) ensureTree() {
	if !r.treeDirty && r.tree != nil {
		return
	}
	boxes := make([]core.AABB, 0, r.cards.Len())
	r.treeCards = r.treeCards[:0]
	r.cards.Each(func(h core.Handle, c *SurfaceCard) bool {
		if inst := r.instanceOf(c); inst != nil {
			boxes = append(boxes, inst.Bounds)
			r.treeCards = append(r.treeCards, h)
		}
		return true
	})
	r.tree = bvh.Build(boxes, r.opts.BVH)
	r.treeDirty = false
	st := r.tree.Stats()
	r.logger.Debugf("card bvh rebuilt: %d cards, %d nodes, depth %d", st.Primitives, st.Nodes, st.MaxDepth)
}

func compareHandles(a, b core.Handle) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
