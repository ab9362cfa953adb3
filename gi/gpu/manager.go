package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gicache/gi/atlas"
	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/log"
	"github.com/gekko3d/gicache/gi/probes"
	"github.com/gekko3d/gicache/gi/scheduler"
	"github.com/gekko3d/gicache/gi/shaders"
)

const (
	HeadroomMetadata = 64 * 1024
	HeadroomProbes   = 16 * 1024

	// AtlasLayers holds radiance, albedo and normal+depth.
	AtlasLayers = 3
	AtlasFormat = wgpu.TextureFormatRGBA16Float

	// ProbeBlend is the temporal weight of a new probe sample.
	ProbeBlend float32 = 0.15
)

const (
	atlasTexture   core.TextureHandle = 1
	metadataBuffer core.BufferHandle  = 2
	probeStateA    core.BufferHandle  = 3
	probeStateB    core.BufferHandle  = 4
)

// Manager is the WebGPU rendering backend: it owns the card atlas, the card
// metadata and light buffers, and the double-buffered probe state.
type Manager struct {
	Device *wgpu.Device
	Queue  *wgpu.Queue
	logger log.Logger

	AtlasTexture     *wgpu.Texture
	AtlasStorageView *wgpu.TextureView
	AtlasSampleView  *wgpu.TextureView
	AtlasLayerViews  [AtlasLayers]*wgpu.TextureView
	atlasW, atlasH   uint32

	MetadataBuf      *wgpu.Buffer
	LightsBuf        *wgpu.Buffer
	CaptureParamsBuf *wgpu.Buffer
	ProbeParamsBuf   *wgpu.Buffer
	ProbeBatchBuf    *wgpu.Buffer
	ProbeSlotBuf     *wgpu.Buffer
	ProbeStateBufs   [2]*wgpu.Buffer

	CapturePipeline *wgpu.ComputePipeline
	ProbePipeline   *wgpu.ComputePipeline

	CaptureBindGroup0 *wgpu.BindGroup
	CaptureBindGroup1 *wgpu.BindGroup
	// ProbeBindGroups[i] writes ProbeStateBufs[i] and reads the other one.
	ProbeBindGroups [2]*wgpu.BindGroup
	ProbeBindGroup1 *wgpu.BindGroup

	probeFlip     *core.Flip[core.BufferHandle]
	probeCapacity int
	cardCount     int
	lightCount    int
}

func NewManager(device *wgpu.Device, atlasW, atlasH uint32, probeCapacity int, logger log.Logger) (*Manager, error) {
	m := &Manager{
		Device:        device,
		Queue:         device.GetQueue(),
		logger:        log.OrNop(logger),
		atlasW:        atlasW,
		atlasH:        atlasH,
		probeFlip:     core.NewFlip(probeStateA, probeStateB),
		probeCapacity: probeCapacity,
	}
	if err := m.createAtlas(); err != nil {
		return nil, err
	}
	if err := m.createBuffers(); err != nil {
		return nil, err
	}
	if err := m.createPipelines(); err != nil {
		return nil, err
	}
	if err := m.createCaptureBindGroups(); err != nil {
		return nil, err
	}
	if err := m.createProbeBindGroups(); err != nil {
		return nil, err
	}
	m.logger.Infof("gpu backend: atlas %dx%dx%d, %d probe slots", atlasW, atlasH, AtlasLayers, probeCapacity)
	return m, nil
}

func (m *Manager) createAtlas() error {
	var err error
	m.AtlasTexture, err = m.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "GI Atlas",
		Size:          wgpu.Extent3D{Width: m.atlasW, Height: m.atlasH, DepthOrArrayLayers: AtlasLayers},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        AtlasFormat,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("failed to create atlas texture: %w", err)
	}

	arrayView := func(label string) (*wgpu.TextureView, error) {
		return m.AtlasTexture.CreateView(&wgpu.TextureViewDescriptor{
			Label:           label,
			Format:          AtlasFormat,
			Dimension:       wgpu.TextureViewDimension2DArray,
			BaseMipLevel:    0,
			MipLevelCount:   1,
			BaseArrayLayer:  0,
			ArrayLayerCount: AtlasLayers,
		})
	}
	if m.AtlasStorageView, err = arrayView("GI Atlas Storage"); err != nil {
		return fmt.Errorf("failed to create atlas storage view: %w", err)
	}
	if m.AtlasSampleView, err = arrayView("GI Atlas Sample"); err != nil {
		return fmt.Errorf("failed to create atlas sample view: %w", err)
	}
	for i := range m.AtlasLayerViews {
		m.AtlasLayerViews[i], err = m.AtlasTexture.CreateView(&wgpu.TextureViewDescriptor{
			Label:           fmt.Sprintf("GI Atlas Layer %d", i),
			Format:          AtlasFormat,
			Dimension:       wgpu.TextureViewDimension2D,
			BaseMipLevel:    0,
			MipLevelCount:   1,
			BaseArrayLayer:  uint32(i),
			ArrayLayerCount: 1,
		})
		if err != nil {
			return fmt.Errorf("failed to create atlas layer view %d: %w", i, err)
		}
	}
	return nil
}

func (m *Manager) createBuffers() error {
	var err error
	m.CaptureParamsBuf, err = m.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "CaptureParamsUB",
		Size:  CaptureParamsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create capture params buffer: %w", err)
	}
	m.ProbeParamsBuf, err = m.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ProbeParamsUB",
		Size:  ProbeParamsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create probe params buffer: %w", err)
	}

	// Storage bindings must not be empty, so every buffer starts with one record.
	if _, err := m.ensureBuffer("MetadataBuf", &m.MetadataBuf, make([]byte, atlas.MetadataStride), wgpu.BufferUsageStorage, 0); err != nil {
		return err
	}
	if _, err := m.ensureBuffer("LightsBuf", &m.LightsBuf, make([]byte, LightStride), wgpu.BufferUsageStorage, 0); err != nil {
		return err
	}
	if _, err := m.ensureBuffer("ProbeBatchBuf", &m.ProbeBatchBuf, make([]byte, probes.ProbeStride), wgpu.BufferUsageStorage, 0); err != nil {
		return err
	}
	slots, _ := slotTable(m.probeCapacity, nil)
	if _, err := m.ensureBuffer("ProbeSlotBuf", &m.ProbeSlotBuf, slots, wgpu.BufferUsageStorage, 0); err != nil {
		return err
	}
	for i := range m.ProbeStateBufs {
		m.ProbeStateBufs[i], err = m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: fmt.Sprintf("ProbeState%d", i),
			Size:  uint64(m.probeCapacity * ProbeStateStride),
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("failed to create probe state buffer %d: %w", i, err)
		}
	}
	return nil
}

func (m *Manager) createPipelines() error {
	compute := func(label, code string) (*wgpu.ComputePipeline, error) {
		module, err := m.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          label + " CS",
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s shader module: %w", label, err)
		}
		defer module.Release()
		p, err := m.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label: label + " Pipeline",
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s pipeline: %w", label, err)
		}
		return p, nil
	}
	var err error
	if m.CapturePipeline, err = compute("Capture", shaders.CaptureWGSL); err != nil {
		return err
	}
	if m.ProbePipeline, err = compute("Probe Update", shaders.ProbeUpdateWGSL); err != nil {
		return err
	}
	return nil
}

// ensureBuffer grows buf to fit data plus headroom and uploads data.
// Returns true when the buffer was recreated and bind groups must follow.
func (m *Manager) ensureBuffer(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage, headroom int) (bool, error) {
	neededSize := uint64(len(data) + headroom)
	if neededSize%4 != 0 {
		neededSize += 4 - (neededSize % 4)
	}

	current := *buf
	recreated := false
	if current == nil || current.GetSize() < neededSize {
		if current != nil {
			current.Release()
		}
		newBuf, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            name,
			Size:             neededSize,
			Usage:            usage | wgpu.BufferUsageCopyDst,
			MappedAtCreation: false,
		})
		if err != nil {
			return false, fmt.Errorf("failed to create %s: %w", name, err)
		}
		*buf = newBuf
		recreated = true
	}
	if len(data) > 0 {
		m.Queue.WriteBuffer(*buf, 0, data)
	}
	return recreated, nil
}

func (m *Manager) createCaptureBindGroups() error {
	var err error
	m.CaptureBindGroup0, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: m.CapturePipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.CaptureParamsBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: m.LightsBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create capture bind group 0: %w", err)
	}
	m.CaptureBindGroup1, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: m.CapturePipeline.GetBindGroupLayout(1),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: m.AtlasStorageView},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create capture bind group 1: %w", err)
	}
	return nil
}

func (m *Manager) createProbeBindGroups() error {
	for i := range m.ProbeBindGroups {
		cur, prev := m.ProbeStateBufs[i], m.ProbeStateBufs[1-i]
		bg, err := m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("Probe Update %d", i),
			Layout: m.ProbePipeline.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: m.ProbeParamsBuf, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: m.ProbeBatchBuf, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: m.ProbeSlotBuf, Size: wgpu.WholeSize},
				{Binding: 3, Buffer: m.MetadataBuf, Size: wgpu.WholeSize},
				{Binding: 4, Buffer: prev, Size: wgpu.WholeSize},
				{Binding: 5, Buffer: cur, Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create probe bind group %d: %w", i, err)
		}
		if m.ProbeBindGroups[i] != nil {
			m.ProbeBindGroups[i].Release()
		}
		m.ProbeBindGroups[i] = bg
	}
	if m.ProbeBindGroup1 == nil {
		var err error
		m.ProbeBindGroup1, err = m.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Layout: m.ProbePipeline.GetBindGroupLayout(1),
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: m.AtlasSampleView},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create probe bind group 1: %w", err)
		}
	}
	return nil
}

func (m *Manager) Atlas() core.AtlasResources {
	return core.AtlasResources{Texture: atlasTexture, Metadata: metadataBuffer}
}

func (m *Manager) ProbeBuffers() *core.Flip[core.BufferHandle] {
	return m.probeFlip
}

// AtlasSize returns the atlas dimensions in pixels.
func (m *Manager) AtlasSize() (uint32, uint32) {
	return m.atlasW, m.atlasH
}

func stateIndex(h core.BufferHandle) (int, bool) {
	switch h {
	case probeStateA:
		return 0, true
	case probeStateB:
		return 1, true
	}
	return 0, false
}

// UploadScene mirrors card metadata and the slot-ordered light list.
func (m *Manager) UploadScene(meta []atlas.CardMetadata, lights []core.GPULight) error {
	metaBytes := atlas.PackMetadata(meta)
	if len(metaBytes) == 0 {
		metaBytes = make([]byte, atlas.MetadataStride)
	}
	metaNew, err := m.ensureBuffer("MetadataBuf", &m.MetadataBuf, metaBytes, wgpu.BufferUsageStorage, HeadroomMetadata)
	if err != nil {
		return err
	}
	lightBytes := lightsBytes(lights)
	if len(lightBytes) == 0 {
		lightBytes = make([]byte, LightStride)
	}
	lightsNew, err := m.ensureBuffer("LightsBuf", &m.LightsBuf, lightBytes, wgpu.BufferUsageStorage, 0)
	if err != nil {
		return err
	}
	m.cardCount = len(meta)
	m.lightCount = len(lights)

	if lightsNew {
		if err := m.createCaptureBindGroups(); err != nil {
			return err
		}
	}
	if metaNew {
		if err := m.createProbeBindGroups(); err != nil {
			return err
		}
	}
	return nil
}

// CaptureCard shades one card into its atlas rectangle. Every failure wraps
// core.ErrBackendCapture so the scheduler keeps the card pending.
func (m *Manager) CaptureCard(req scheduler.CaptureRequest) error {
	w, h := req.Rect[2], req.Rect[3]
	if w == 0 || h == 0 || req.Rect[0]+w > m.atlasW || req.Rect[1]+h > m.atlasH {
		return fmt.Errorf("%w: %s rect %v outside the %dx%d atlas", core.ErrBackendCapture, req.Card, req.Rect, m.atlasW, m.atlasH)
	}
	m.Queue.WriteBuffer(m.CaptureParamsBuf, 0, captureParamsBytes(&req, uint32(m.lightCount)))

	encoder, err := m.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrBackendCapture, req.Card, err)
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(m.CapturePipeline)
	pass.SetBindGroup(0, m.CaptureBindGroup0, nil)
	pass.SetBindGroup(1, m.CaptureBindGroup1, nil)
	pass.DispatchWorkgroups(workgroups(w, 8), workgroups(h, 8), 1)
	if err := pass.End(); err != nil {
		return fmt.Errorf("%w: %s: capture pass: %v", core.ErrBackendCapture, req.Card, err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrBackendCapture, req.Card, err)
	}
	m.Queue.Submit(cmd)
	return nil
}

// UpdateProbes runs one probe update dispatch over every slot: batched probes
// blend a new sample, all others carry Previous over into Current. An empty
// batch still dispatches so Current is complete before the swap.
func (m *Manager) UpdateProbes(req scheduler.ProbeUpdateRequest) ([]probes.ProbeId, error) {
	cur, ok := stateIndex(req.Current)
	if !ok {
		return nil, fmt.Errorf("%w: unknown probe buffer %d", core.ErrBackendCapture, req.Current)
	}
	if prev, ok := stateIndex(req.Previous); !ok || prev == cur {
		return nil, fmt.Errorf("%w: bad previous probe buffer %d", core.ErrBackendCapture, req.Previous)
	}

	slots, rejected := slotTable(m.probeCapacity, req.Probes)
	batchNew, err := m.ensureBuffer("ProbeBatchBuf", &m.ProbeBatchBuf, probes.PackProbes(req.Probes), wgpu.BufferUsageStorage, HeadroomProbes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBackendCapture, err)
	}
	m.Queue.WriteBuffer(m.ProbeSlotBuf, 0, slots)
	m.Queue.WriteBuffer(m.ProbeParamsBuf, 0, probeParamsBytes(m.probeCapacity, m.cardCount, ProbeBlend, req.Frame))
	if batchNew {
		if err := m.createProbeBindGroups(); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrBackendCapture, err)
		}
	}

	encoder, err := m.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBackendCapture, err)
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(m.ProbePipeline)
	pass.SetBindGroup(0, m.ProbeBindGroups[cur], nil)
	pass.SetBindGroup(1, m.ProbeBindGroup1, nil)
	pass.DispatchWorkgroups(workgroups(uint32(m.probeCapacity), 64), 1, 1)
	if err := pass.End(); err != nil {
		return nil, fmt.Errorf("%w: probe pass: %v", core.ErrBackendCapture, err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBackendCapture, err)
	}
	m.Queue.Submit(cmd)

	if len(rejected) > 0 {
		m.logger.Warnf("%d probe ids outside the %d slot pool", len(rejected), m.probeCapacity)
	}
	return rejected, nil
}

func (m *Manager) Release() {
	for _, bg := range []*wgpu.BindGroup{m.CaptureBindGroup0, m.CaptureBindGroup1, m.ProbeBindGroups[0], m.ProbeBindGroups[1], m.ProbeBindGroup1} {
		if bg != nil {
			bg.Release()
		}
	}
	for _, p := range []*wgpu.ComputePipeline{m.CapturePipeline, m.ProbePipeline} {
		if p != nil {
			p.Release()
		}
	}
	for _, b := range []*wgpu.Buffer{m.MetadataBuf, m.LightsBuf, m.CaptureParamsBuf, m.ProbeParamsBuf,
		m.ProbeBatchBuf, m.ProbeSlotBuf, m.ProbeStateBufs[0], m.ProbeStateBufs[1]} {
		if b != nil {
			b.Release()
		}
	}
	for _, v := range m.AtlasLayerViews {
		if v != nil {
			v.Release()
		}
	}
	if m.AtlasStorageView != nil {
		m.AtlasStorageView.Release()
	}
	if m.AtlasSampleView != nil {
		m.AtlasSampleView.Release()
	}
	if m.AtlasTexture != nil {
		m.AtlasTexture.Release()
	}
}
