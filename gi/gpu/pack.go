package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/probes"
	"github.com/gekko3d/gicache/gi/scheduler"
)

const (
	CaptureParamsSize = 160
	ProbeParamsSize   = 16
	LightStride       = 64
	ProbeStateStride  = 16 // vec4: rgb irradiance, w = written
)

// noBatch marks a probe slot with no record in the current batch.
const noBatch = math.MaxUint32

// Helpers
func putVec4(buf []byte, v [4]float32) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(v[3]))
}

func putMat4(buf []byte, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}

// captureParamsBytes matches CaptureParams in capture.wgsl.
func captureParamsBytes(req *scheduler.CaptureRequest, lightCount uint32) []byte {
	// Struct CaptureParams {
	//   view_proj: mat4x4<f32>;  -- 0
	//   origin: vec4<f32>;       -- 64  (w: size.x)
	//   axis_x: vec4<f32>;       -- 80  (w: size.y)
	//   axis_y: vec4<f32>;       -- 96
	//   normal: vec4<f32>;       -- 112
	//   rect: vec4<u32>;         -- 128
	//   light_mask: vec2<u32>;   -- 144
	//   light_count: u32;        -- 152
	//   frame: u32;              -- 156
	// } -> 160 bytes
	buf := make([]byte, CaptureParamsSize)
	putMat4(buf[0:64], req.ViewProj)
	putVec4(buf[64:80], [4]float32{req.Origin.X(), req.Origin.Y(), req.Origin.Z(), req.Size.X()})
	putVec4(buf[80:96], [4]float32{req.AxisX.X(), req.AxisX.Y(), req.AxisX.Z(), req.Size.Y()})
	putVec4(buf[96:112], [4]float32{req.AxisY.X(), req.AxisY.Y(), req.AxisY.Z(), 0})
	putVec4(buf[112:128], [4]float32{req.Normal.X(), req.Normal.Y(), req.Normal.Z(), 0})
	for i, v := range req.Rect {
		binary.LittleEndian.PutUint32(buf[128+i*4:], v)
	}
	binary.LittleEndian.PutUint32(buf[144:148], uint32(req.LightMask))
	binary.LittleEndian.PutUint32(buf[148:152], uint32(req.LightMask>>32))
	binary.LittleEndian.PutUint32(buf[152:156], lightCount)
	binary.LittleEndian.PutUint32(buf[156:160], uint32(req.Frame))
	return buf
}

func lightsBytes(lights []core.GPULight) []byte {
	buf := make([]byte, len(lights)*LightStride)
	for i := range lights {
		off := i * LightStride
		putVec4(buf[off:], lights[i].Position)
		putVec4(buf[off+16:], lights[i].Direction)
		putVec4(buf[off+32:], lights[i].Color)
		putVec4(buf[off+48:], lights[i].Params)
	}
	return buf
}

// slotTable maps every probe slot to its index in records, or noBatch. Ids
// outside the pool are returned as rejected.
func slotTable(capacity int, records []probes.GPUProbe) ([]byte, []probes.ProbeId) {
	buf := make([]byte, capacity*4)
	for i := 0; i < capacity; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], noBatch)
	}
	var rejected []probes.ProbeId
	for i, r := range records {
		if r.Id < 0 || int(r.Id) >= capacity {
			rejected = append(rejected, r.Id)
			continue
		}
		binary.LittleEndian.PutUint32(buf[int(r.Id)*4:], uint32(i))
	}
	return buf, rejected
}

func probeParamsBytes(slots, cards int, blend float32, frame uint64) []byte {
	buf := make([]byte, ProbeParamsSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(slots))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(cards))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(blend))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(frame))
	return buf
}

// workgroups is ceil(n / size).
func workgroups(n, size uint32) uint32 {
	return (n + size - 1) / size
}
