// Package engine runs the application loop: a fixed-rate tick goroutine for application logic and a
// render goroutine that drives the renderer's frame lifecycle and presents to the window surface.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/profiler"
	"github.com/Carmen-Shannon/prism/engine/renderer"
	"github.com/Carmen-Shannon/prism/engine/renderer/pass"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/webgpu"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/Carmen-Shannon/prism/engine/window"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// ErrNoWindow is returned by Run on an engine built without a window.
var ErrNoWindow = errors.New("engine: no window")

// Surface is a device that presents to a window. *webgpu.Device implements it.
type Surface interface {
	rhi.Device
	ConfigureSurface(width, height uint32) error
	SurfaceFormat() rhi.Format
	AcquireSurface() (rhi.Image, error)
	Present()
	Release()
}

var _ Surface = &webgpu.Device{}

// Engine is the main entry point for applications.
type Engine interface {
	// Window returns the window the engine presents into, or nil for a headless engine.
	Window() window.Window

	// Renderer returns the renderer. Use it to reach the scene and the mesh and material registries.
	Renderer() renderer.Renderer

	// Scene returns the renderer's scene.
	Scene() scene.Scene

	// Camera returns the main camera.
	Camera() camera.Camera

	// EnableProfiler enables periodic frame statistics in the log.
	EnableProfiler()

	// DisableProfiler disables frame statistics.
	DisableProfiler()

	// SetTickRate sets the tick rate in ticks per second. The change applies immediately to a running
	// engine.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each tick, receiving the delta time in seconds.
	// Scene mutations belong here.
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each presented frame, receiving the delta
	// time in seconds.
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional frame rate cap. Pass 0 to uncap the render loop.
	SetRenderFrameLimit(fps float64)

	// Run starts the tick and render goroutines and runs the window message loop on the calling
	// thread. It blocks until the window closes or Quit is called, then releases the renderer, the
	// device and the window.
	//
	// Returns:
	//   - error: ErrNoWindow, or the error that stopped the render loop
	Run() error

	// Quit signals every engine goroutine to stop. Safe to call multiple times.
	Quit()
}

// engine implements the Engine interface.
type engine struct {
	log *log.Logger
	cfg config.Config

	window     window.Window
	device     Surface
	ownsDevice bool
	renderer   renderer.Renderer
	camera     camera.Camera

	windowOptions   []window.WindowBuilderOption
	deviceOptions   []webgpu.DeviceBuilderOption
	rendererOptions []renderer.RendererBuilderOption

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	tickRateChannel chan time.Duration
	engineTickRate  time.Duration
	tickCallback    func(deltaTime float32)
	renderCallback  func(deltaTime float32)

	// renderFrameLimit is the minimum frame duration; 0 is uncapped.
	renderFrameLimit time.Duration

	running     atomic.Bool
	wg          sync.WaitGroup
	quitChannel chan struct{}
	quitOnce    sync.Once
	renderErr   error

	// resizeMu guards the framebuffer size handed from the window thread to the render goroutine.
	resizeMu      sync.Mutex
	width, height uint32
	resizePending bool
}

var _ Engine = &engine{}

// NewEngine creates the window, the WebGPU device and the renderer.
//
// Unless WithDevice supplies one, a device is opened on the window's surface. The renderer's swapchain
// format follows the surface.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: a window, device or renderer creation error
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		cfg:             config.Default(),
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	e.log = logger.Sub(e.log, "engine")
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.log))
	}
	if e.camera == nil {
		e.camera = camera.NewCamera()
	}

	if err := e.build(); err != nil {
		e.shutdown()
		return nil, err
	}
	return e, nil
}

func (e *engine) build() error {
	var err error
	if e.device == nil {
		if e.window == nil {
			opts := append([]window.WindowBuilderOption{window.WithLogger(e.log)}, e.windowOptions...)
			if e.window, err = window.New(opts...); err != nil {
				return err
			}
		}
		opts := append([]webgpu.DeviceBuilderOption{
			webgpu.WithLogger(e.log),
			webgpu.WithSurface(e.window.SurfaceDescriptor()),
		}, e.deviceOptions...)
		if e.device, err = webgpu.New(opts...); err != nil {
			return err
		}
		e.ownsDevice = true
	}

	width, height := 1, 1
	if e.window != nil {
		width, height = e.window.Size()
	}
	e.width, e.height = uint32(max(width, 0)), uint32(max(height, 0))
	if err := e.device.ConfigureSurface(max(e.width, 1), max(e.height, 1)); err != nil {
		return err
	}
	e.cfg.SwapchainFormat = e.device.SurfaceFormat()

	opts := append([]renderer.RendererBuilderOption{renderer.WithLogger(e.log)}, e.rendererOptions...)
	if e.renderer, err = renderer.New(e.device, e.cfg, opts...); err != nil {
		return err
	}
	if e.width > 0 && e.height > 0 {
		if err := e.resizeRenderer(e.width, e.height); err != nil {
			return err
		}
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.onResize)
	}
	return nil
}

func (e *engine) Window() window.Window       { return e.window }
func (e *engine) Renderer() renderer.Renderer { return e.renderer }
func (e *engine) Scene() scene.Scene          { return e.renderer.Scene() }
func (e *engine) Camera() camera.Camera       { return e.camera }

func (e *engine) Run() error {
	if e.window == nil {
		return ErrNoWindow
	}
	e.running.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.handle(ctx)

	// the window is destroyed only after the render goroutine stopped using its surface
	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			cancel()
			e.wg.Wait()
			_ = e.window.Close()
		default:
		}
	})
	e.window.ProcessMessages()

	e.signalQuit()
	cancel()
	e.wg.Wait()
	e.shutdown()
	return e.renderErr
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// shutdown releases what the engine created, in reverse order.
func (e *engine) shutdown() {
	if e.renderer != nil {
		e.renderer.Destroy()
	}
	if e.device != nil && e.ownsDevice {
		e.device.Release()
	}
	if e.window != nil {
		// ErrNotInitialized when the loop already closed it
		_ = e.window.Close()
	}
}

// handle launches the tick and render goroutines, and the shader watcher when a shader directory is
// configured.
func (e *engine) handle(ctx context.Context) {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()

	if e.cfg.ShaderDir != "" {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.renderer.Shaders().Watch(ctx); err != nil {
				e.log.Error("shader hot reload disabled", "err", err)
			}
		}()
	}
}

// handleEngine runs the fixed-rate tick loop until quit.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()
	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case rate := <-e.tickRateChannel:
			ticker.Reset(rate)
			e.engineTickRate = rate
		}
	}
}

// handleRender renders frames until quit. A frame error stops the engine. Panics are recovered so the
// window thread can shut down cleanly.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.renderErr = errors.Newf("engine: render goroutine panicked: %v", r)
			e.log.Error("render goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		frameStart := time.Now()
		dt := float32(frameStart.Sub(lastRender).Seconds())
		lastRender = frameStart

		if err := e.renderFrame(); err != nil {
			e.renderErr = err
			e.log.Error("frame failed", "frame", e.renderer.Frame(), "err", err)
			e.signalQuit()
			return
		}
		if e.renderCallback != nil {
			e.renderCallback(dt)
		}
		if e.profilingEnabled.Load() {
			e.profiler.Tick()
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(frameStart); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// onResize runs on the window thread. The resize itself is applied by the render goroutine at the start
// of its next frame.
func (e *engine) onResize(width, height int) {
	e.resizeMu.Lock()
	defer e.resizeMu.Unlock()
	e.width, e.height = uint32(max(width, 0)), uint32(max(height, 0))
	e.resizePending = true
}

// applyResize reconfigures the surface and the renderer after a framebuffer change. A zero extent, such
// as a minimized window, is recorded but applied only once the window has a size again.
//
// Returns:
//   - bool: true if the window currently has a renderable size
//   - error: a surface or renderer error
func (e *engine) applyResize() (bool, error) {
	e.resizeMu.Lock()
	width, height, pending := e.width, e.height, e.resizePending
	if width > 0 && height > 0 {
		e.resizePending = false
	}
	e.resizeMu.Unlock()

	if width == 0 || height == 0 {
		return false, nil
	}
	if !pending {
		return true, nil
	}
	if err := e.device.ConfigureSurface(width, height); err != nil {
		return false, err
	}
	return true, e.resizeRenderer(width, height)
}

func (e *engine) resizeRenderer(width, height uint32) error {
	cmd, err := e.device.NewCommandList("resize")
	if err != nil {
		return err
	}
	if err := e.renderer.Resize(cmd, width, height); err != nil {
		e.device.Destroy(cmd)
		return err
	}
	e.camera.SetAspect(float32(width) / float32(height))
	return e.device.Submit(cmd)
}

// renderFrame records, submits and presents one frame.
func (e *engine) renderFrame() error {
	ok, err := e.applyResize()
	if err != nil || !ok {
		return err
	}

	cmd, err := e.device.NewCommandList("frame")
	if err != nil {
		return err
	}
	if err := e.recordFrame(cmd); err != nil {
		e.device.Destroy(cmd)
		e.device.Present()
		return err
	}

	start := time.Now()
	if err := e.device.Submit(cmd); err != nil {
		return err
	}
	e.device.Present()
	e.profiler.Record("submit", start)
	return nil
}

func (e *engine) recordFrame(cmd rhi.CommandList) error {
	start := time.Now()
	if err := e.renderer.Prepare(cmd, e.camera); err != nil {
		return err
	}
	e.profiler.Record("prepare", start)

	start = time.Now()
	if err := e.renderer.Render(cmd); err != nil {
		return err
	}
	e.profiler.Record("render", start)

	target, err := e.device.AcquireSurface()
	if err != nil {
		return err
	}
	start = time.Now()
	if err := e.renderer.PostProcess(cmd, &pass.Attachment{Image: target, State: rhi.StateUndefined}); err != nil {
		return err
	}
	e.profiler.Record("post", start)
	return nil
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	rate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = rate
		return
	}
	// replace any pending update that the tick loop has not consumed yet
	select {
	case e.tickRateChannel <- rate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- rate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
