package probes

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_StackReuse(t *testing.T) {
	c := NewCache(4, 2)
	var ids []ProbeId
	for i := 0; i < 4; i++ {
		ids = append(ids, c.Allocate(mgl32.Vec3{float32(i) * 10, 0, 0}, [2]float32{}, 0, 1))
	}
	assert.Equal(t, []ProbeId{0, 1, 2, 3}, ids)
	assert.Equal(t, InvalidProbe, c.Allocate(mgl32.Vec3{}, [2]float32{}, 0, 1))

	require.True(t, c.Free(1))
	assert.Equal(t, ProbeId(1), c.Allocate(mgl32.Vec3{}, [2]float32{}, 0, 1))
	assert.Equal(t, 4, c.ActiveCount())
}

func TestCache_FreeClearsRecordAndGrid(t *testing.T) {
	c := NewCache(2, 1)
	id := c.Allocate(mgl32.Vec3{3, 3, 3}, [2]float32{0.5, 0.5}, 9, 2)
	require.NotEqual(t, InvalidProbe, id)
	assert.Equal(t, 1, c.Grid().Len())

	require.True(t, c.Free(id))
	assert.False(t, c.Free(id), "double free is a no-op")
	_, ok := c.Get(id)
	assert.False(t, ok)
	assert.Equal(t, RadianceProbe{}, c.probes[id])
	assert.Equal(t, 0, c.Grid().Len())
	assert.Empty(t, c.Within(mgl32.Vec3{3, 3, 3}, 5))
	assert.False(t, c.Free(InvalidProbe))
	assert.False(t, c.Free(17))
}

func TestCache_MoveKeepsGridConsistent(t *testing.T) {
	c := NewCache(4, 1)
	id := c.Allocate(mgl32.Vec3{0, 0, 0}, [2]float32{}, 0, 1)
	c.CompleteUpdate(id, 1)

	require.True(t, c.Move(id, mgl32.Vec3{10, 10, 10}))
	assert.Empty(t, c.Within(mgl32.Vec3{}, 1))
	assert.Equal(t, []ProbeId{id}, c.Within(mgl32.Vec3{10, 10, 10}, 0.5))
	assert.Equal(t, []ProbeId{id}, c.DirtyIds())

	p, _ := c.Get(id)
	assert.Equal(t, c.Grid().CellOf(mgl32.Vec3{10, 10, 10}), p.Cell())

	// Free after a move removes the probe from its current cell.
	c.Free(id)
	assert.Equal(t, 0, c.Grid().Len())
}

func TestCache_BuildUpdateQueue(t *testing.T) {
	c := NewCache(8, 2)
	for i := 0; i < 5; i++ {
		c.Allocate(mgl32.Vec3{float32(i), 0, 0}, [2]float32{}, 0, 1)
	}
	c.Free(2)

	// Even ids share the top priority.
	prio := func(id ProbeId, _ *RadianceProbe) float32 {
		if id%2 == 0 {
			return 1
		}
		return 0.5
	}
	assert.Equal(t, []ProbeId{0, 4, 1}, c.BuildUpdateQueue(3, prio))
	assert.Equal(t, []ProbeId{0, 4, 1, 3}, c.BuildUpdateQueue(0, prio))
	assert.Equal(t, []ProbeId{0, 1, 3, 4}, c.BuildUpdateQueue(0, nil))
}

func TestCache_DirtyLifecycle(t *testing.T) {
	c := NewCache(4, 2)
	a := c.Allocate(mgl32.Vec3{}, [2]float32{}, 3, 1)
	b := c.Allocate(mgl32.Vec3{5, 0, 0}, [2]float32{}, 3, 1)
	assert.Equal(t, []ProbeId{a, b}, c.DirtyIds())

	c.CompleteUpdate(a, 4)
	assert.Equal(t, []ProbeId{b}, c.DirtyIds())
	p, _ := c.Get(a)
	assert.Equal(t, uint64(4), p.LastUpdate)
	assert.Equal(t, uint64(3), p.BirthFrame)

	c.MarkDirty(a)
	assert.Equal(t, []ProbeId{a, b}, c.DirtyIds())
	assert.False(t, c.MarkDirty(3))

	c.Reset()
	assert.Equal(t, 0, c.ActiveCount())
	assert.Equal(t, ProbeId(0), c.Allocate(mgl32.Vec3{}, [2]float32{}, 0, 1))
}
