package probes

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CellCoord is a floored grid cell. Using the coordinate itself as the map key
// keeps distinct cells from ever colliding.
type CellCoord struct {
	X, Y, Z int32
}

// HashGrid is a uniform spatial hash from cell to probe ids. A probe id lives only
// in the cell of its last inserted position.
type HashGrid struct {
	cellSize float32
	cells    map[CellCoord][]ProbeId
	count    int
}

func NewHashGrid(cellSize float32) *HashGrid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &HashGrid{
		cellSize: cellSize,
		cells:    make(map[CellCoord][]ProbeId),
	}
}

func (g *HashGrid) CellSize() float32 {
	return g.cellSize
}

func (g *HashGrid) getCellIndex(v float32) int32 {
	return int32(math.Floor(float64(v / g.cellSize)))
}

func (g *HashGrid) CellOf(pos mgl32.Vec3) CellCoord {
	return CellCoord{g.getCellIndex(pos.X()), g.getCellIndex(pos.Y()), g.getCellIndex(pos.Z())}
}

// Insert adds id under the cell of pos and returns that cell.
func (g *HashGrid) Insert(id ProbeId, pos mgl32.Vec3) CellCoord {
	c := g.CellOf(pos)
	g.cells[c] = append(g.cells[c], id)
	g.count++
	return c
}

// Remove drops id from the cell of pos. pos must be the position used at insertion.
func (g *HashGrid) Remove(id ProbeId, pos mgl32.Vec3) bool {
	return g.RemoveFromCell(id, g.CellOf(pos))
}

func (g *HashGrid) RemoveFromCell(id ProbeId, c CellCoord) bool {
	list := g.cells[c]
	for i, v := range list {
		if v != id {
			continue
		}
		list[i] = list[len(list)-1]
		list = list[:len(list)-1]
		if len(list) == 0 {
			delete(g.cells, c)
		} else {
			g.cells[c] = list
		}
		g.count--
		return true
	}
	return false
}

// Query returns the ids in every cell within ceil(radius/cellSize) cells of the
// cell containing pos. Results are candidates, not distance filtered.
func (g *HashGrid) Query(pos mgl32.Vec3, radius float32) []ProbeId {
	if len(g.cells) == 0 || !(radius >= 0) {
		return nil
	}
	center := g.CellOf(pos)
	fr := math.Ceil(float64(radius) / float64(g.cellSize))

	var out []ProbeId
	// For a wide query over a sparse grid, scanning occupied cells is cheaper.
	// A reach past the int32 cell range covers every cell.
	if fr >= math.MaxInt32 || math.Pow(2*fr+1, 3) > float64(len(g.cells)) {
		reach := int64(min(fr, math.MaxInt32))
		for c, ids := range g.cells {
			if absDiff(c.X, center.X) <= reach && absDiff(c.Y, center.Y) <= reach && absDiff(c.Z, center.Z) <= reach {
				out = append(out, ids...)
			}
		}
		return out
	}
	reach := int64(fr)
	cx, cy, cz := int64(center.X), int64(center.Y), int64(center.Z)
	for x := cx - reach; x <= cx+reach; x++ {
		for y := cy - reach; y <= cy+reach; y++ {
			for z := cz - reach; z <= cz+reach; z++ {
				if c, ok := cellAt(x, y, z); ok {
					out = append(out, g.cells[c]...)
				}
			}
		}
	}
	return out
}

func cellAt(x, y, z int64) (CellCoord, bool) {
	for _, v := range [3]int64{x, y, z} {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return CellCoord{}, false
		}
	}
	return CellCoord{int32(x), int32(y), int32(z)}, true
}

func (g *HashGrid) Clear() {
	clear(g.cells)
	g.count = 0
}

// Len is the number of inserted ids.
func (g *HashGrid) Len() int {
	return g.count
}

func absDiff(a, b int32) int64 {
	d := int64(a) - int64(b)
	if d < 0 {
		return -d
	}
	return d
}
