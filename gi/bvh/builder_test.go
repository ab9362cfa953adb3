package bvh

import (
	"encoding/binary"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gicache/gi/core"
)

func randomTriangles(rng *rand.Rand, n int) []core.AABB {
	boxes := make([]core.AABB, n)
	for i := range boxes {
		base := mgl32.Vec3{rng.Float32()*100 - 50, rng.Float32()*100 - 50, rng.Float32()*100 - 50}
		jitter := func() mgl32.Vec3 {
			return base.Add(mgl32.Vec3{rng.Float32() * 3, rng.Float32() * 3, rng.Float32() * 3})
		}
		boxes[i] = TriangleBounds(jitter(), jitter(), jitter())
	}
	return boxes
}

func TestTwoObjectsSplit(t *testing.T) {
	boxes := []core.AABB{
		core.NewAABB(mgl32.Vec3{-100, -1, -1}, mgl32.Vec3{-98, 1, 1}),
		core.NewAABB(mgl32.Vec3{100, -1, -1}, mgl32.Vec3{102, 1, 1}),
	}
	tree := Build(boxes, Options{MaxLeafPrimitives: 1})
	ft := tree.Flatten()

	// Root, left, right
	require.Len(t, ft.Nodes, 3)
	data := ft.ToBytes()
	require.Len(t, data, 3*FlatNodeStride)

	rootMinX := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	rootMaxX := math.Float32frombits(binary.LittleEndian.Uint32(data[16:20]))
	assert.LessOrEqual(t, rootMinX, float32(-100))
	assert.GreaterOrEqual(t, rootMaxX, float32(102))

	right := int32(binary.LittleEndian.Uint32(data[32:36]))
	count := int32(binary.LittleEndian.Uint32(data[36:40]))
	assert.Equal(t, int32(2), right)
	assert.Equal(t, int32(0), count, "root is interior")

	assert.Equal(t, []int32{0}, ft.Primitives[ft.Nodes[1].Offset:ft.Nodes[1].Offset+ft.Nodes[1].Count])
	assert.Equal(t, []int32{1}, ft.Primitives[ft.Nodes[2].Offset:ft.Nodes[2].Offset+ft.Nodes[2].Count])
}

func TestEmptyTree(t *testing.T) {
	tree := Build(nil, DefaultOptions())
	assert.True(t, tree.Empty())
	assert.Empty(t, tree.PointRadius(mgl32.Vec3{}, 100))
	assert.Empty(t, tree.BoxOverlap(core.SphereAABB(mgl32.Vec3{}, 100)))
	assert.Nil(t, tree.Leaves())
	assert.True(t, tree.Bounds().IsEmpty())

	ft := tree.Flatten()
	assert.True(t, ft.Empty())
	assert.Len(t, ft.ToBytes(), FlatNodeStride)
	ft.Walk(func([]int32) bool {
		t.Fatal("empty tree has no leaves")
		return true
	})
}

func TestLeafLimitAndDepth(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	boxes := randomTriangles(rng, 200)

	tree := Build(boxes, Options{MaxLeafPrimitives: 4, MaxDepth: 32})
	for _, leaf := range tree.Leaves() {
		assert.LessOrEqual(t, len(leaf), 4)
	}
	st := tree.Stats()
	assert.Equal(t, 200, st.Primitives)
	assert.Equal(t, st.Nodes, 2*st.Leaves-1)

	shallow := Build(boxes, Options{MaxLeafPrimitives: 1, MaxDepth: 2})
	assert.Equal(t, 2, shallow.Stats().MaxDepth)
	assert.Len(t, shallow.Leaves(), 4)
}

func TestIdenticalCentroidsTerminate(t *testing.T) {
	boxes := make([]core.AABB, 33)
	for i := range boxes {
		boxes[i] = core.SphereAABB(mgl32.Vec3{1, 1, 1}, 1)
	}
	tree := Build(boxes, Options{MaxLeafPrimitives: 2})
	var all []int
	for _, leaf := range tree.Leaves() {
		all = append(all, leaf...)
	}
	slices.Sort(all)
	assert.Len(t, all, 33)
	assert.Equal(t, 0, all[0])
	assert.Equal(t, 32, all[32])
}

func TestFlattenWalkMatchesRecursive(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for n := 0; n <= 64; n++ {
		boxes := randomTriangles(rng, n)
		tree := Build(boxes, DefaultOptions())

		var walked [][]int
		ft := tree.Flatten()
		ft.Walk(func(prims []int32) bool {
			leaf := make([]int, len(prims))
			for i, p := range prims {
				leaf[i] = int(p)
			}
			walked = append(walked, leaf)
			return true
		})

		require.Equal(t, tree.Leaves(), walked, "n=%d", n)
		for i := range ft.Nodes {
			if !ft.Nodes[i].IsLeaf() {
				assert.Greater(t, ft.Nodes[i].Offset, int32(i+1), "right child follows the left subtree")
			}
		}
	}
}

func TestQueriesMatchBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	boxes := randomTriangles(rng, 300)
	tree := Build(boxes, DefaultOptions())
	ft := tree.Flatten()

	for q := 0; q < 50; q++ {
		p := mgl32.Vec3{rng.Float32()*100 - 50, rng.Float32()*100 - 50, rng.Float32()*100 - 50}
		r := rng.Float32() * 15

		var want []int
		for i, b := range boxes {
			if b.OverlapsSphere(p, r) {
				want = append(want, i)
			}
		}
		assert.ElementsMatch(t, want, tree.PointRadius(p, r))

		query := core.SphereAABB(p, r)
		want = want[:0]
		for i, b := range boxes {
			if b.Overlaps(query) {
				want = append(want, i)
			}
		}
		got := tree.BoxOverlap(query)
		assert.ElementsMatch(t, want, got)
		assert.True(t, slices.IsSorted(got))

		// The flat traversal returns leaf candidates, a superset of exact hits.
		candidates := map[int32]bool{}
		for _, id := range ft.BoxOverlap(query) {
			candidates[id] = true
		}
		for _, id := range got {
			assert.True(t, candidates[int32(id)])
		}
	}
}
