package atlas

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MetadataStride is the size of one packed CardMetadata record.
const MetadataStride = 64

const (
	FlagResident uint32 = 1 << iota
	FlagDirty
)

// CardMetadata is the GPU view of a resident card: its world frame and the
// pixel rectangle it occupies in the atlas.
type CardMetadata struct {
	Origin mgl32.Vec3
	Flags  uint32
	AxisX  mgl32.Vec3
	SizeX  float32
	AxisY  mgl32.Vec3
	SizeY  float32
	Normal mgl32.Vec3
	Rect   [4]uint32 // x, y, w, h in pixels
}

func putVec4(buf []byte, v mgl32.Vec3, w uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v.Z()))
	binary.LittleEndian.PutUint32(buf[12:16], w)
}

// ToBytes packs the record as four vec4 rows. Normal shares its row with the
// rect x/y; w/h take the remaining words of the last row.
func (m *CardMetadata) ToBytes() []byte {
	buf := make([]byte, MetadataStride)

	putVec4(buf[0:16], m.Origin, m.Flags)
	putVec4(buf[16:32], m.AxisX, math.Float32bits(m.SizeX))
	putVec4(buf[32:48], m.AxisY, math.Float32bits(m.SizeY))

	// Normal (xyz) packed into 16 bit snorm pairs to leave room for the rect.
	binary.LittleEndian.PutUint32(buf[48:52], packSnorm2(m.Normal.X(), m.Normal.Y()))
	binary.LittleEndian.PutUint32(buf[52:56], packSnorm2(m.Normal.Z(), 0))
	binary.LittleEndian.PutUint32(buf[56:60], m.Rect[0]|m.Rect[1]<<16)
	binary.LittleEndian.PutUint32(buf[60:64], m.Rect[2]|m.Rect[3]<<16)
	return buf
}

func packSnorm2(a, b float32) uint32 {
	return uint32(snorm16(a)) | uint32(snorm16(b))<<16
}

func snorm16(v float32) uint16 {
	v = mgl32.Clamp(v, -1, 1)
	return uint16(int16(math.Round(float64(v) * 32767)))
}

func unpackSnorm16(v uint16) float32 {
	return max(float32(int16(v))/32767.0, -1)
}

// NormalFromBytes decodes the normal of a packed record.
func NormalFromBytes(rec []byte) mgl32.Vec3 {
	xy := binary.LittleEndian.Uint32(rec[48:52])
	z := binary.LittleEndian.Uint32(rec[52:56])
	return mgl32.Vec3{
		unpackSnorm16(uint16(xy)),
		unpackSnorm16(uint16(xy >> 16)),
		unpackSnorm16(uint16(z)),
	}
}

// RectFromBytes decodes the pixel rectangle of a packed record.
func RectFromBytes(rec []byte) [4]uint32 {
	xy := binary.LittleEndian.Uint32(rec[56:60])
	wh := binary.LittleEndian.Uint32(rec[60:64])
	return [4]uint32{xy & 0xffff, xy >> 16, wh & 0xffff, wh >> 16}
}

func PackMetadata(records []CardMetadata) []byte {
	out := make([]byte, 0, len(records)*MetadataStride)
	for i := range records {
		out = append(out, records[i].ToBytes()...)
	}
	return out
}
