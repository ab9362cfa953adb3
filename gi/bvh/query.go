package bvh

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gicache/gi/core"
)

// PointRadius returns the ids of primitives whose box touches the sphere (p, r),
// in ascending order. A miss is an empty result.
func (t *Tree) PointRadius(p mgl32.Vec3, r float32) []int {
	return t.collect(
		func(b core.AABB) bool { return b.OverlapsSphere(p, r) },
	)
}

// BoxOverlap returns the ids of primitives whose box overlaps box, in ascending order.
func (t *Tree) BoxOverlap(box core.AABB) []int {
	if box.IsEmpty() {
		return nil
	}
	return t.collect(
		func(b core.AABB) bool { return b.Overlaps(box) },
	)
}

func (t *Tree) collect(test func(core.AABB) bool) []int {
	if t.Empty() {
		return nil
	}
	var out []int
	t.descend(0, test, &out)
	slices.Sort(out)
	return out
}

func (t *Tree) descend(idx int32, test func(core.AABB) bool, out *[]int) {
	n := &t.nodes[idx]
	if !test(n.Bounds) {
		return
	}
	if n.IsLeaf() {
		for _, id := range t.prims[n.First : n.First+n.Count] {
			if test(t.boxes[id]) {
				*out = append(*out, id)
			}
		}
		return
	}
	t.descend(n.Left, test, out)
	t.descend(n.Right, test, out)
}

// Leaves returns each leaf's primitive set in depth-first, left-first order.
func (t *Tree) Leaves() [][]int {
	if t.Empty() {
		return nil
	}
	var out [][]int
	var walk func(idx int32)
	walk = func(idx int32) {
		n := &t.nodes[idx]
		if n.IsLeaf() {
			out = append(out, append([]int(nil), t.prims[n.First:n.First+n.Count]...))
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(0)
	return out
}
