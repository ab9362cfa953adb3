package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/probes"
	"github.com/gekko3d/gicache/gi/scheduler"
)

func f32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func u32At(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off:])
}

func TestCaptureParamsLayout(t *testing.T) {
	req := &scheduler.CaptureRequest{
		Frame:     7,
		Rect:      [4]uint32{64, 128, 32, 16},
		Origin:    mgl32.Vec3{1, 2, 3},
		Normal:    mgl32.Vec3{0, 0, 1},
		AxisX:     mgl32.Vec3{1, 0, 0},
		AxisY:     mgl32.Vec3{0, 1, 0},
		Size:      mgl32.Vec2{4, 2},
		LightMask: 1<<40 | 5,
		ViewProj:  mgl32.Translate3D(9, 8, 7),
	}
	buf := captureParamsBytes(req, 3)
	require.Len(t, buf, CaptureParamsSize)

	// column-major: translation lives in elements 12..14
	assert.Equal(t, float32(9), f32At(buf, 48))
	assert.Equal(t, float32(8), f32At(buf, 52))

	assert.Equal(t, float32(1), f32At(buf, 64))
	assert.Equal(t, float32(4), f32At(buf, 76), "origin.w carries size.x")
	assert.Equal(t, float32(2), f32At(buf, 92), "axis_x.w carries size.y")
	assert.Equal(t, float32(1), f32At(buf, 104))
	assert.Equal(t, float32(1), f32At(buf, 120))

	assert.Equal(t, uint32(64), u32At(buf, 128))
	assert.Equal(t, uint32(16), u32At(buf, 140))
	assert.Equal(t, uint32(5), u32At(buf, 144))
	assert.Equal(t, uint32(1<<8), u32At(buf, 148))
	assert.Equal(t, uint32(3), u32At(buf, 152))
	assert.Equal(t, uint32(7), u32At(buf, 156))
}

func TestLightsBytes(t *testing.T) {
	assert.Empty(t, lightsBytes(nil))

	lights := []core.GPULight{
		{Position: [4]float32{1, 2, 3, 1}, Color: [4]float32{0.5, 0.5, 0.5, 2}},
		{Direction: [4]float32{0, -1, 0, 0}, Params: [4]float32{10, 0, 0, 1}},
	}
	buf := lightsBytes(lights)
	require.Len(t, buf, 2*LightStride)
	assert.Equal(t, float32(3), f32At(buf, 8))
	assert.Equal(t, float32(2), f32At(buf, 44))
	assert.Equal(t, float32(-1), f32At(buf, LightStride+20))
	assert.Equal(t, float32(10), f32At(buf, LightStride+48))
}

func TestSlotTable(t *testing.T) {
	records := []probes.GPUProbe{{Id: 2}, {Id: 0}, {Id: 9}, {Id: -1}}
	buf, rejected := slotTable(4, records)
	require.Len(t, buf, 16)

	assert.Equal(t, uint32(1), u32At(buf, 0))
	assert.Equal(t, uint32(noBatch), u32At(buf, 4))
	assert.Equal(t, uint32(0), u32At(buf, 8))
	assert.Equal(t, uint32(noBatch), u32At(buf, 12))
	assert.Equal(t, []probes.ProbeId{9, -1}, rejected)
}

func TestProbeParamsAndWorkgroups(t *testing.T) {
	buf := probeParamsBytes(4096, 12, 0.25, 1<<33|3)
	require.Len(t, buf, ProbeParamsSize)
	assert.Equal(t, uint32(4096), u32At(buf, 0))
	assert.Equal(t, uint32(12), u32At(buf, 4))
	assert.Equal(t, float32(0.25), f32At(buf, 8))
	assert.Equal(t, uint32(3), u32At(buf, 12), "frame truncates to 32 bits")

	assert.Equal(t, uint32(0), workgroups(0, 8))
	assert.Equal(t, uint32(1), workgroups(8, 8))
	assert.Equal(t, uint32(2), workgroups(9, 8))
	assert.Equal(t, uint32(64), workgroups(4096, 64))
}

func TestStateIndex(t *testing.T) {
	i, ok := stateIndex(probeStateA)
	assert.True(t, ok)
	assert.Equal(t, 0, i)
	i, ok = stateIndex(probeStateB)
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = stateIndex(metadataBuffer)
	assert.False(t, ok)
}
