package probes

import (
	"encoding/binary"
	"math"
)

// ProbeStride is the packed size of one GPU probe record.
const ProbeStride = 32

// GPUProbe is the upload form: position + radius, then screen hint, pool index
// and last update frame.
type GPUProbe struct {
	Id       ProbeId
	Position [3]float32
	Radius   float32
	Hint     [2]float32
	Updated  uint32
}

func ToGPU(id ProbeId, p *RadianceProbe) GPUProbe {
	return GPUProbe{
		Id:       id,
		Position: [3]float32{p.Position.X(), p.Position.Y(), p.Position.Z()},
		Radius:   p.Radius,
		Hint:     p.ScreenHint,
		Updated:  uint32(p.LastUpdate),
	}
}

func (g *GPUProbe) ToBytes() []byte {
	buf := make([]byte, ProbeStride)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Position[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Position[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Position[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.Radius))

	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Hint[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Hint[1]))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(g.Id))
	binary.LittleEndian.PutUint32(buf[28:32], g.Updated)
	return buf
}

// PackProbes packs records for the probe update dispatch.
func PackProbes(records []GPUProbe) []byte {
	out := make([]byte, 0, len(records)*ProbeStride)
	for i := range records {
		out = append(out, records[i].ToBytes()...)
	}
	return out
}
