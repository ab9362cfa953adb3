package scheduler

import (
	"fmt"

	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/probes"
)

// NullBackend accepts work without touching a GPU. It can record requests and
// inject deterministic capture failures.
type NullBackend struct {
	atlas   core.AtlasResources
	buffers *core.Flip[core.BufferHandle]

	// FailCards fails every capture of the listed cards.
	FailCards map[core.CardId]bool
	// FailEvery fails every Nth capture when > 0.
	FailEvery int
	// FailProbes fails the listed probes inside otherwise successful batches.
	FailProbes map[probes.ProbeId]bool
	// FailProbeBatch fails whole probe dispatches.
	FailProbeBatch bool
	Record     bool

	Captures     []CaptureRequest
	ProbeUpdates []ProbeUpdateRequest

	CaptureCalls int
	ProbeCalls   int
}

func NewNullBackend() *NullBackend {
	return &NullBackend{
		atlas:      core.AtlasResources{Texture: 1, Metadata: 2},
		buffers:    core.NewFlip[core.BufferHandle](3, 4),
		FailCards:  make(map[core.CardId]bool),
		FailProbes: make(map[probes.ProbeId]bool),
		Record:     true,
	}
}

func (b *NullBackend) Atlas() core.AtlasResources {
	return b.atlas
}

func (b *NullBackend) ProbeBuffers() *core.Flip[core.BufferHandle] {
	return b.buffers
}

func (b *NullBackend) CaptureCard(req CaptureRequest) error {
	b.CaptureCalls++
	if b.FailCards[req.Card] || (b.FailEvery > 0 && b.CaptureCalls%b.FailEvery == 0) {
		return fmt.Errorf("%w: %s", core.ErrBackendCapture, req.Card)
	}
	if b.Record {
		b.Captures = append(b.Captures, req)
	}
	return nil
}

func (b *NullBackend) UpdateProbes(req ProbeUpdateRequest) ([]probes.ProbeId, error) {
	b.ProbeCalls++
	if b.FailProbeBatch {
		return nil, fmt.Errorf("%w: probe batch of %d", core.ErrBackendCapture, len(req.Probes))
	}
	if b.Record {
		b.ProbeUpdates = append(b.ProbeUpdates, req)
	}
	var failed []probes.ProbeId
	for _, p := range req.Probes {
		if b.FailProbes[p.Id] {
			failed = append(failed, p.Id)
		}
	}
	return failed, nil
}
