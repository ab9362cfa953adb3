package atlas

import "fmt"

// TileCoord addresses a cell of the tile grid.
type TileCoord struct {
	X, Y int
}

// TileSpan is a size in tiles.
type TileSpan struct {
	W, H int
}

// Allocation describes a rectangular run of tiles and the pixels it covers.
type Allocation struct {
	TileBase  TileCoord
	TileSpan  TileSpan
	PixelBase [2]uint32
	PixelSpan [2]uint32
}

// InvalidAllocation is returned when no free span fits the request.
var InvalidAllocation = Allocation{}

func (a Allocation) Valid() bool {
	return a.TileSpan.W > 0 && a.TileSpan.H > 0
}

func (a Allocation) String() string {
	if !a.Valid() {
		return "alloc(invalid)"
	}
	return fmt.Sprintf("alloc(%d,%d %dx%d)", a.TileBase.X, a.TileBase.Y, a.TileSpan.W, a.TileSpan.H)
}

// Covers reports whether the tile c lies inside the allocation.
func (a Allocation) Covers(c TileCoord) bool {
	return c.X >= a.TileBase.X && c.X < a.TileBase.X+a.TileSpan.W &&
		c.Y >= a.TileBase.Y && c.Y < a.TileBase.Y+a.TileSpan.H
}

// Overlaps reports whether two allocations share a tile.
func (a Allocation) Overlaps(o Allocation) bool {
	if !a.Valid() || !o.Valid() {
		return false
	}
	return a.TileBase.X < o.TileBase.X+o.TileSpan.W && o.TileBase.X < a.TileBase.X+a.TileSpan.W &&
		a.TileBase.Y < o.TileBase.Y+o.TileSpan.H && o.TileBase.Y < a.TileBase.Y+a.TileSpan.H
}

// TileAllocator packs rectangular tile runs into a fixed grid, first fit in
// row-major order. It is not safe for concurrent mutation.
type TileAllocator struct {
	tileSize    int
	maxTileSpan int
	gridW       int
	gridH       int
	occupied    []bool
	used        int
}

func NewTileAllocator(atlasW, atlasH, tileSize, maxTileSpan int) *TileAllocator {
	if tileSize <= 0 {
		tileSize = 1
	}
	gw, gh := atlasW/tileSize, atlasH/tileSize
	if gw < 0 {
		gw = 0
	}
	if gh < 0 {
		gh = 0
	}
	return &TileAllocator{
		tileSize:    tileSize,
		maxTileSpan: maxTileSpan,
		gridW:       gw,
		gridH:       gh,
		occupied:    make([]bool, gw*gh),
	}
}

func (t *TileAllocator) GridSize() (int, int) {
	return t.gridW, t.gridH
}

func (t *TileAllocator) TileSize() int {
	return t.tileSize
}

func (t *TileAllocator) MaxTileSpan() int {
	return t.maxTileSpan
}

// SpanFor converts a pixel size to a tile span, rounding up.
func (t *TileAllocator) SpanFor(pixelW, pixelH uint32) TileSpan {
	ts := uint32(t.tileSize)
	return TileSpan{
		W: int((pixelW + ts - 1) / ts),
		H: int((pixelH + ts - 1) / ts),
	}
}

// Fits reports whether a request of this pixel size could ever be satisfied.
func (t *TileAllocator) Fits(pixelW, pixelH uint32) bool {
	span := t.SpanFor(pixelW, pixelH)
	if span.W <= 0 || span.H <= 0 {
		return false
	}
	if t.maxTileSpan > 0 && (span.W > t.maxTileSpan || span.H > t.maxTileSpan) {
		return false
	}
	return span.W <= t.gridW && span.H <= t.gridH
}

// Allocate returns the first free span, scanning bases row by row, or
// InvalidAllocation. Oversized requests are reported the same way as a full atlas.
func (t *TileAllocator) Allocate(pixelW, pixelH uint32) Allocation {
	if !t.Fits(pixelW, pixelH) {
		return InvalidAllocation
	}
	span := t.SpanFor(pixelW, pixelH)

	for y := 0; y+span.H <= t.gridH; y++ {
		for x := 0; x+span.W <= t.gridW; {
			blocked, ok := t.firstBlocked(x, y, span)
			if ok {
				base := TileCoord{X: x, Y: y}
				t.mark(base, span, true)
				return t.allocation(base, span)
			}
			// Nothing starting at or before the blocking column can fit.
			x = blocked + 1
		}
	}
	return InvalidAllocation
}

// firstBlocked returns the rightmost occupied column inside the candidate, or ok.
func (t *TileAllocator) firstBlocked(x, y int, span TileSpan) (int, bool) {
	blocked := -1
	for dy := 0; dy < span.H; dy++ {
		row := (y + dy) * t.gridW
		for dx := span.W - 1; dx >= 0; dx-- {
			if t.occupied[row+x+dx] {
				if x+dx > blocked {
					blocked = x + dx
				}
				break
			}
		}
	}
	return blocked, blocked < 0
}

func (t *TileAllocator) allocation(base TileCoord, span TileSpan) Allocation {
	ts := uint32(t.tileSize)
	return Allocation{
		TileBase:  base,
		TileSpan:  span,
		PixelBase: [2]uint32{uint32(base.X) * ts, uint32(base.Y) * ts},
		PixelSpan: [2]uint32{uint32(span.W) * ts, uint32(span.H) * ts},
	}
}

// Free clears every covered cell. Cells outside the grid are ignored.
func (t *TileAllocator) Free(base TileCoord, span TileSpan) {
	t.mark(base, span, false)
}

func (t *TileAllocator) mark(base TileCoord, span TileSpan, value bool) {
	for y := base.Y; y < base.Y+span.H; y++ {
		if y < 0 || y >= t.gridH {
			continue
		}
		for x := base.X; x < base.X+span.W; x++ {
			if x < 0 || x >= t.gridW {
				continue
			}
			i := y*t.gridW + x
			if t.occupied[i] == value {
				continue
			}
			t.occupied[i] = value
			if value {
				t.used++
			} else {
				t.used--
			}
		}
	}
}

func (t *TileAllocator) IsOccupied(c TileCoord) bool {
	if c.X < 0 || c.Y < 0 || c.X >= t.gridW || c.Y >= t.gridH {
		return false
	}
	return t.occupied[c.Y*t.gridW+c.X]
}

// Usage is the occupied fraction of the grid in [0,1].
func (t *TileAllocator) Usage() float32 {
	total := t.gridW * t.gridH
	if total == 0 {
		return 0
	}
	return float32(t.used) / float32(total)
}

// OccupiedTiles lists occupied cells in row-major order.
func (t *TileAllocator) OccupiedTiles() []TileCoord {
	out := make([]TileCoord, 0, t.used)
	for i, occ := range t.occupied {
		if occ {
			out = append(out, TileCoord{X: i % t.gridW, Y: i / t.gridW})
		}
	}
	return out
}

func (t *TileAllocator) OccupiedCount() int {
	return t.used
}

func (t *TileAllocator) Reset() {
	clear(t.occupied)
	t.used = 0
}
