package probes

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// ProbeId indexes the fixed probe pool.
type ProbeId int32

// InvalidProbe is returned when the pool is exhausted.
const InvalidProbe ProbeId = -1

// RadianceProbe is one pool slot. A slot with Active == false is logically
// uninitialized.
type RadianceProbe struct {
	Position   mgl32.Vec3
	ScreenHint [2]float32
	Active     bool
	Dirty      bool
	BirthFrame uint64
	LastUpdate uint64
	Priority   float32
	Radius     float32
	cell       CellCoord
}

// Cell is the grid cell the probe was last inserted under.
func (p *RadianceProbe) Cell() CellCoord {
	return p.cell
}

// PriorityFunc scores an active probe; higher updates first.
type PriorityFunc func(id ProbeId, p *RadianceProbe) float32

// Cache is a fixed-capacity probe pool indexed by a HashGrid. Freed indices are
// reused most recently freed first.
type Cache struct {
	probes []RadianceProbe
	free   []ProbeId
	grid   *HashGrid
	active int
}

func NewCache(capacity int, cellSize float32) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	c := &Cache{
		probes: make([]RadianceProbe, capacity),
		free:   make([]ProbeId, 0, capacity),
		grid:   NewHashGrid(cellSize),
	}
	// Push high to low so the first allocations hand out 0, 1, 2, ...
	for i := capacity - 1; i >= 0; i-- {
		c.free = append(c.free, ProbeId(i))
	}
	return c
}

func (c *Cache) Capacity() int {
	return len(c.probes)
}

func (c *Cache) ActiveCount() int {
	return c.active
}

func (c *Cache) Grid() *HashGrid {
	return c.grid
}

// Allocate takes a slot from the free stack, or returns InvalidProbe.
// The new probe is dirty and indexed in the grid.
func (c *Cache) Allocate(pos mgl32.Vec3, hint [2]float32, frame uint64, radius float32) ProbeId {
	n := len(c.free)
	if n == 0 {
		return InvalidProbe
	}
	id := c.free[n-1]
	c.free = c.free[:n-1]

	c.probes[id] = RadianceProbe{
		Position:   pos,
		ScreenHint: hint,
		Active:     true,
		Dirty:      true,
		BirthFrame: frame,
		LastUpdate: frame,
		Radius:     radius,
	}
	c.probes[id].cell = c.grid.Insert(id, pos)
	c.active++
	return id
}

func (c *Cache) valid(id ProbeId) bool {
	return id >= 0 && int(id) < len(c.probes) && c.probes[id].Active
}

// Free removes the probe from the grid through its stored cell and returns the
// slot to the stack. Freeing an inactive id is a no-op.
func (c *Cache) Free(id ProbeId) bool {
	if !c.valid(id) {
		return false
	}
	c.grid.RemoveFromCell(id, c.probes[id].cell)
	c.probes[id] = RadianceProbe{}
	c.free = append(c.free, id)
	c.active--
	return true
}

func (c *Cache) Get(id ProbeId) (*RadianceProbe, bool) {
	if !c.valid(id) {
		return nil, false
	}
	return &c.probes[id], true
}

// Move relocates an active probe, reindexing it and marking it dirty.
func (c *Cache) Move(id ProbeId, pos mgl32.Vec3) bool {
	p, ok := c.Get(id)
	if !ok {
		return false
	}
	c.grid.RemoveFromCell(id, p.cell)
	p.Position = pos
	p.cell = c.grid.Insert(id, pos)
	p.Dirty = true
	return true
}

func (c *Cache) MarkDirty(id ProbeId) bool {
	p, ok := c.Get(id)
	if !ok {
		return false
	}
	p.Dirty = true
	return true
}

// DirtyIds returns active dirty probes in id order.
func (c *Cache) DirtyIds() []ProbeId {
	var out []ProbeId
	for i := range c.probes {
		if c.probes[i].Active && c.probes[i].Dirty {
			out = append(out, ProbeId(i))
		}
	}
	return out
}

func (c *Cache) CompleteUpdate(id ProbeId, frame uint64) bool {
	p, ok := c.Get(id)
	if !ok {
		return false
	}
	p.Dirty = false
	p.LastUpdate = frame
	return true
}

// BuildUpdateQueue scores every active probe and returns up to maxCount ids,
// priority descending, ties to the lowest id. maxCount <= 0 returns all.
func (c *Cache) BuildUpdateQueue(maxCount int, priorityFn PriorityFunc) []ProbeId {
	ids := make([]ProbeId, 0, c.active)
	for i := range c.probes {
		p := &c.probes[i]
		if !p.Active {
			continue
		}
		if priorityFn != nil {
			p.Priority = priorityFn(ProbeId(i), p)
		} else {
			p.Priority = 0
		}
		ids = append(ids, ProbeId(i))
	}
	slices.SortStableFunc(ids, func(a, b ProbeId) int {
		pa, pb := c.probes[a].Priority, c.probes[b].Priority
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		}
		return 0
	})
	if maxCount > 0 && len(ids) > maxCount {
		ids = ids[:maxCount]
	}
	return ids
}

// Within returns active probes whose position is within radius of pos, in id order.
func (c *Cache) Within(pos mgl32.Vec3, radius float32) []ProbeId {
	r2 := radius * radius
	var out []ProbeId
	for _, id := range c.grid.Query(pos, radius) {
		d := c.probes[id].Position.Sub(pos)
		if d.Dot(d) <= r2 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// AnyWithin reports whether an active probe lies within radius of pos.
func (c *Cache) AnyWithin(pos mgl32.Vec3, radius float32) bool {
	r2 := radius * radius
	for _, id := range c.grid.Query(pos, radius) {
		d := c.probes[id].Position.Sub(pos)
		if d.Dot(d) <= r2 {
			return true
		}
	}
	return false
}

// Each visits active probes in id order until fn returns false.
func (c *Cache) Each(fn func(id ProbeId, p *RadianceProbe) bool) {
	for i := range c.probes {
		if !c.probes[i].Active {
			continue
		}
		if !fn(ProbeId(i), &c.probes[i]) {
			return
		}
	}
}

// Reset frees every probe.
func (c *Cache) Reset() {
	capacity := len(c.probes)
	clear(c.probes)
	c.free = c.free[:0]
	for i := capacity - 1; i >= 0; i-- {
		c.free = append(c.free, ProbeId(i))
	}
	c.grid.Clear()
	c.active = 0
}
