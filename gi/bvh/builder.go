package bvh

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gicache/gi/core"
)

const (
	DefaultMaxLeafPrimitives = 4
	DefaultMaxDepth          = 32
)

type Options struct {
	MaxLeafPrimitives int
	MaxDepth          int
}

func DefaultOptions() Options {
	return Options{MaxLeafPrimitives: DefaultMaxLeafPrimitives, MaxDepth: DefaultMaxDepth}
}

func (o Options) withDefaults() Options {
	if o.MaxLeafPrimitives <= 0 {
		o.MaxLeafPrimitives = DefaultMaxLeafPrimitives
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

// Node is either interior (Left/Right >= 0) or a leaf over
// Tree.prims[First : First+Count].
type Node struct {
	Bounds core.AABB
	Left   int32
	Right  int32
	First  int32
	Count  int32
	Depth  int32
}

func (n *Node) IsLeaf() bool {
	return n.Count > 0
}

type Stats struct {
	Nodes      int
	Leaves     int
	MaxDepth   int
	Primitives int
}

// Tree is a binary BVH over primitive bounding boxes. Primitive ids are the
// indices of the boxes passed to Build.
type Tree struct {
	nodes []Node
	prims []int
	boxes []core.AABB
	stats Stats
}

type buildItem struct {
	bounds   core.AABB
	centroid mgl32.Vec3
	index    int
}

// Build partitions boxes top-down, splitting at the median centroid along the
// axis of widest centroid spread. An empty input yields an empty tree.
func Build(boxes []core.AABB, opts Options) *Tree {
	opts = opts.withDefaults()
	t := &Tree{
		boxes: append([]core.AABB(nil), boxes...),
	}
	if len(boxes) == 0 {
		return t
	}

	items := make([]buildItem, len(boxes))
	for i, b := range boxes {
		items[i] = buildItem{bounds: b, centroid: b.Center(), index: i}
	}

	t.nodes = make([]Node, 0, 2*len(boxes)/opts.MaxLeafPrimitives+1)
	t.prims = make([]int, 0, len(boxes))
	t.recursiveBuild(items, 0, opts)
	t.stats.Nodes = len(t.nodes)
	t.stats.Primitives = len(boxes)
	return t
}

func (t *Tree) recursiveBuild(items []buildItem, depth int, opts Options) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, Node{Left: -1, Right: -1, First: -1, Depth: int32(depth)})
	if depth > t.stats.MaxDepth {
		t.stats.MaxDepth = depth
	}

	bounds := core.EmptyAABB()
	centroids := core.EmptyAABB()
	for _, it := range items {
		bounds = bounds.Union(it.bounds)
		centroids = centroids.Expand(it.centroid)
	}
	t.nodes[idx].Bounds = bounds

	if len(items) <= opts.MaxLeafPrimitives || depth >= opts.MaxDepth {
		t.nodes[idx].First = int32(len(t.prims))
		t.nodes[idx].Count = int32(len(items))
		for _, it := range items {
			t.prims = append(t.prims, it.index)
		}
		t.stats.Leaves++
		return idx
	}

	axis := centroids.LongestAxis()
	sort.Slice(items, func(i, j int) bool {
		ci, cj := items[i].centroid[axis], items[j].centroid[axis]
		if ci != cj {
			return ci < cj
		}
		return items[i].index < items[j].index
	})

	mid := len(items) / 2
	left := t.recursiveBuild(items[:mid], depth+1, opts)
	right := t.recursiveBuild(items[mid:], depth+1, opts)
	t.nodes[idx].Left = left
	t.nodes[idx].Right = right
	return idx
}

func (t *Tree) Empty() bool {
	return len(t.nodes) == 0
}

func (t *Tree) Stats() Stats {
	return t.stats
}

// Bounds of the whole tree, empty for an empty tree.
func (t *Tree) Bounds() core.AABB {
	if t.Empty() {
		return core.EmptyAABB()
	}
	return t.nodes[0].Bounds
}

func (t *Tree) Nodes() []Node {
	return t.nodes
}

// Primitive returns the box a primitive id was built from.
func (t *Tree) Primitive(id int) core.AABB {
	return t.boxes[id]
}

// TriangleBounds is the box of a triangle primitive.
func TriangleBounds(a, b, c mgl32.Vec3) core.AABB {
	return core.EmptyAABB().Expand(a).Expand(b).Expand(c)
}
