package app

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	gicache "github.com/gekko3d/gicache"
	"github.com/gekko3d/gicache/gi/demo"
	"github.com/gekko3d/gicache/gi/gpu"
	"github.com/gekko3d/gicache/gi/log"
	"github.com/gekko3d/gicache/gi/shaders"
)

// App shows the card atlas of a live GI cache driven by the demo scene.
type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	RenderPipeline *wgpu.RenderPipeline
	Sampler        *wgpu.Sampler
	RenderBGs      [gpu.AtlasLayers]*wgpu.BindGroup // one per atlas layer

	Backend *gpu.Manager
	GI      *gicache.Context
	Scene   *demo.Scene

	GIConfig  gicache.Config
	SceneOpts demo.Options
	Logger    log.Logger

	// Layer selects which atlas layer is blitted.
	Layer  int
	Paused bool
	Stats  gicache.FrameStats

	LastRenderTime float64
	FrameCount     int
	FPS            float64
	FPSTime        float64
}

func NewApp(window *glfw.Window, cfg gicache.Config, opts demo.Options, logger log.Logger) *App {
	return &App{
		Window:    window,
		GIConfig:  cfg,
		SceneOpts: opts,
		Logger:    log.OrNop(logger),
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)

	surface := a.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(a.Window))
	a.Surface = surface

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	format := caps.Formats[0]

	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, a.Device, a.Config)

	fsModule, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Fullscreen VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.FullscreenWGSL},
	})
	if err != nil {
		return err
	}
	defer fsModule.Release()

	a.RenderPipeline, err = a.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Atlas Blit Pipeline",
		Vertex: wgpu.VertexState{
			Module:     fsModule,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     fsModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	a.Sampler, err = a.Device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeNearest,
		MagFilter:     wgpu.FilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}

	a.Backend, err = gpu.NewManager(a.Device, uint32(a.GIConfig.Atlas.Width), uint32(a.GIConfig.Atlas.Height), a.GIConfig.Probes.Capacity, a.Logger)
	if err != nil {
		return err
	}
	a.GI, err = gicache.NewContext(a.GIConfig, a.Backend, a.Logger)
	if err != nil {
		return err
	}
	a.Scene, err = demo.Build(a.GI, a.SceneOpts)
	if err != nil {
		return err
	}

	for i := range a.RenderBGs {
		a.RenderBGs[i], err = a.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Layout: a.RenderPipeline.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: a.Backend.AtlasLayerViews[i]},
				{Binding: 1, Sampler: a.Sampler},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create blit bind group %d: %w", i, err)
		}
	}

	a.LastRenderTime = glfw.GetTime()
	return nil
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
	}
}

// Update advances the scene and runs one GI frame.
func (a *App) Update() {
	if a.Paused {
		return
	}
	next := a.GI.Frame() + 1
	if err := a.Scene.Animate(next); err != nil {
		a.Logger.Errorf("scene update failed: %v", err)
		return
	}
	w, h := int(a.Config.Width), int(a.Config.Height)
	a.Stats = a.GI.Tick(gicache.FrameContext{
		Viewport: gicache.Viewport{Width: w, Height: h},
		Sampler:  a.Scene.Sampler(w, h),
	})
}

func (a *App) Render() {
	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Logger.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.Logger.Errorf("CreateView failed: %v", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.Logger.Errorf("CreateCommandEncoder failed: %v", err)
		return
	}

	rPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{0, 0, 0, 1},
		}},
	})
	rPass.SetPipeline(a.RenderPipeline)
	rPass.SetBindGroup(0, a.RenderBGs[a.Layer%gpu.AtlasLayers], nil)
	rPass.Draw(3, 1, 0, 0)
	if err := rPass.End(); err != nil {
		a.Logger.Errorf("blit pass End failed: %v", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.Logger.Errorf("Encoder Finish failed: %v", err)
		return
	}
	a.Queue.Submit(cmd)
	a.Surface.Present()

	now := glfw.GetTime()
	a.FrameCount++
	a.FPSTime += now - a.LastRenderTime
	if a.FPSTime >= 1.0 {
		a.FPS = float64(a.FrameCount) / a.FPSTime
		a.FrameCount = 0
		a.FPSTime = 0
		a.Window.SetTitle(a.Title())
	}
	a.LastRenderTime = now
}

// Title summarizes the last frame for the window caption.
func (a *App) Title() string {
	return fmt.Sprintf("gicache | layer %d | %.0f fps | atlas %.0f%% | cards %d pending | probes %d pending",
		a.Layer, a.FPS, a.Stats.AtlasUsage*100, a.Stats.PendingCardsAfter, a.Stats.PendingProbesAfter)
}

// HandleKey: 1-3 pick the atlas layer, space pauses, F dumps profiler stats.
func (a *App) HandleKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press {
		return
	}
	switch key {
	case glfw.Key1, glfw.Key2, glfw.Key3:
		a.Layer = int(key - glfw.Key1)
	case glfw.KeySpace:
		a.Paused = !a.Paused
	case glfw.KeyF:
		a.Logger.Infof("frame %d\n%s", a.GI.Frame(), a.GI.Scheduler().Profiler().GetStatsString())
	}
}

func (a *App) Release() {
	for _, bg := range a.RenderBGs {
		if bg != nil {
			bg.Release()
		}
	}
	if a.Backend != nil {
		a.Backend.Release()
	}
	if a.Sampler != nil {
		a.Sampler.Release()
	}
	if a.RenderPipeline != nil {
		a.RenderPipeline.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}
