package bvh

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gicache/gi/core"
)

// FlatNodeStride is the packed size of a FlatNode.
const FlatNodeStride = 48

// FlatNode is the linear form of a node. For interior nodes the left child is the
// next node and Offset is the right child; for leaves Offset indexes Primitives.
// A node is a leaf iff Count > 0.
type FlatNode struct {
	Min    mgl32.Vec3
	Max    mgl32.Vec3
	Offset int32
	Count  int32
}

func (n *FlatNode) IsLeaf() bool {
	return n.Count > 0
}

type FlatTree struct {
	Nodes      []FlatNode
	Primitives []int32
}

// Flatten lays the tree out depth first for upload.
func (t *Tree) Flatten() FlatTree {
	var ft FlatTree
	if t.Empty() {
		return ft
	}
	ft.Nodes = make([]FlatNode, 0, len(t.nodes))
	ft.Primitives = make([]int32, 0, len(t.prims))

	var emit func(idx int32) int32
	emit = func(idx int32) int32 {
		n := &t.nodes[idx]
		out := int32(len(ft.Nodes))
		ft.Nodes = append(ft.Nodes, FlatNode{Min: n.Bounds.Min, Max: n.Bounds.Max})
		if n.IsLeaf() {
			ft.Nodes[out].Offset = int32(len(ft.Primitives))
			ft.Nodes[out].Count = n.Count
			for _, id := range t.prims[n.First : n.First+n.Count] {
				ft.Primitives = append(ft.Primitives, int32(id))
			}
			return out
		}
		emit(n.Left)
		ft.Nodes[out].Offset = emit(n.Right)
		return out
	}
	emit(0)
	return ft
}

func (ft *FlatTree) Empty() bool {
	return len(ft.Nodes) == 0
}

// Walk visits leaves in array order; fn returning false stops the walk.
func (ft *FlatTree) Walk(fn func(prims []int32) bool) {
	for i := range ft.Nodes {
		n := &ft.Nodes[i]
		if !n.IsLeaf() {
			continue
		}
		if !fn(ft.Primitives[n.Offset : n.Offset+n.Count]) {
			return
		}
	}
}

// BoxOverlap traverses the flat layout with an explicit stack, the way a GPU
// consumer does, and returns candidate primitive ids whose leaf overlaps box.
func (ft *FlatTree) BoxOverlap(box core.AABB) []int32 {
	if ft.Empty() || box.IsEmpty() {
		return nil
	}
	var out []int32
	stack := make([]int32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		ptr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &ft.Nodes[ptr]
		if !core.NewAABB(n.Min, n.Max).Overlaps(box) {
			continue
		}
		if n.IsLeaf() {
			out = append(out, ft.Primitives[n.Offset:n.Offset+n.Count]...)
			continue
		}
		stack = append(stack, n.Offset, ptr+1)
	}
	return out
}

func (n *FlatNode) ToBytes() []byte {
	buf := make([]byte, FlatNodeStride)

	// Min (vec4)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(n.Min.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(n.Min.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(n.Min.Z()))
	binary.LittleEndian.PutUint32(buf[12:16], 0)

	// Max (vec4)
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(n.Max.X()))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(n.Max.Y()))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(n.Max.Z()))
	binary.LittleEndian.PutUint32(buf[28:32], 0)

	binary.LittleEndian.PutUint32(buf[32:36], uint32(n.Offset))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(n.Count))

	// Padding
	return buf
}

// ToBytes packs all nodes. An empty tree packs to a single zeroed node so the
// consumer always has a bindable buffer.
func (ft *FlatTree) ToBytes() []byte {
	if ft.Empty() {
		return make([]byte, FlatNodeStride)
	}
	out := make([]byte, 0, len(ft.Nodes)*FlatNodeStride)
	for i := range ft.Nodes {
		out = append(out, ft.Nodes[i].ToBytes()...)
	}
	return out
}

// PrimitivesToBytes packs the primitive index array as u32.
func (ft *FlatTree) PrimitivesToBytes() []byte {
	if len(ft.Primitives) == 0 {
		return make([]byte, 4)
	}
	out := make([]byte, 4*len(ft.Primitives))
	for i, p := range ft.Primitives {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(p))
	}
	return out
}
