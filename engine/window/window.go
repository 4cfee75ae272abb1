// Package window opens the platform window the engine presents into and forwards its input and
// framebuffer events.
package window

import (
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNotInitialized is returned by operations on a window whose platform window was never created or
// was already closed.
var ErrNotInitialized = errors.New("window: not initialized")

// Window provides platform windowing and input event handling.
//
// Callbacks run on the thread that calls ProcessMessages.
type Window interface {
	// SetUpdateCallback sets the function run once per message loop iteration, after events are polled.
	// The engine uses it to notice shutdown.
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function receiving framebuffer sizes in pixels. A minimized window
	// reports 0x0.
	SetResizeCallback(callback func(width, height int))

	// Input callbacks. Positions are in window pixels from the top-left corner; key repeats report
	// pressed. A nil callback disables the event.
	SetScrollCallback(callback func(delta float32))
	SetKeyCallback(callback func(keyCode uint32, pressed bool))
	SetMouseButtonCallback(callback func(button int, pressed bool, x, y int32))
	SetMouseMoveCallback(callback func(x, y int32))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface. The
	// descriptor is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true while the window is open.
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: ErrNotInitialized if the window is already closed
	Close() error

	// ProcessMessages runs the window message loop on the calling thread until the window is closed,
	// calling the update callback each iteration.
	ProcessMessages()

	// Size returns the current framebuffer size in pixels.
	Size() (width, height int)
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	log   *log.Logger
	title string

	minWidth, minHeight int
	maxWidth, maxHeight int

	// mu guards the framebuffer size, which the render goroutine reads.
	mu            sync.Mutex
	width, height int

	// platform is nil until New succeeds and after Close.
	platform *glfwWindow

	onUpdate      func()
	onResize      func(width, height int)
	onScroll      func(delta float32)
	onKey         func(keyCode uint32, pressed bool)
	onMouseButton func(button int, pressed bool, x, y int32)
	onMouseMove   func(x, y int32)
}

var _ Window = &engineWindow{}

// New creates and shows a window. The calling goroutine is locked to its OS thread: the platform
// requires every later window call, ProcessMessages included, to come from that thread.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the window
//   - error: a platform initialization error
func New(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "prism",
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	w.log = logger.Sub(w.log, "window")

	runtime.LockOSThread()
	if err := newPlatformWindow(w); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	width, height := w.Size()
	w.log.Info("window created", "title", w.title, "width", width, "height", height)
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyCallback(callback func(keyCode uint32, pressed bool)) {
	w.onKey = callback
}

func (w *engineWindow) SetMouseButtonCallback(callback func(button int, pressed bool, x, y int32)) {
	w.onMouseButton = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y int32)) {
	w.onMouseMove = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	if w.platform == nil {
		return nil
	}
	return w.platform.surfaceDescriptor()
}

func (w *engineWindow) IsRunning() bool {
	return w.platform != nil && w.platform.isRunning()
}

func (w *engineWindow) Close() error {
	if w.platform == nil {
		return ErrNotInitialized
	}
	w.platform.close()
	w.platform = nil
	w.log.Info("window closed")
	return nil
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		w.platform.pollEvents()
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// resized records a framebuffer size change and forwards it to the resize callback.
func (w *engineWindow) resized(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	w.mu.Unlock()
	if w.onResize != nil {
		w.onResize(width, height)
	}
}
