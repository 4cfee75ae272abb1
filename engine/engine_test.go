package engine

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer"
	"github.com/Carmen-Shannon/prism/engine/renderer/culling"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSurface presents recorder images in place of a swapchain.
type testSurface struct {
	*recorder.Device
	configured [][2]uint32
	width      uint32
	height     uint32
	acquired   int
	presented  int
	released   bool
}

func (s *testSurface) ConfigureSurface(width, height uint32) error {
	s.configured = append(s.configured, [2]uint32{width, height})
	s.width, s.height = width, height
	return nil
}

func (s *testSurface) SurfaceFormat() rhi.Format { return rhi.FormatRGBA8Unorm }

func (s *testSurface) AcquireSurface() (rhi.Image, error) {
	s.acquired++
	return s.CreateRenderTarget(rhi.ImageDesc{
		Label: "surface", Width: s.width, Height: s.height, Layers: 1, Format: rhi.FormatRGBA8Unorm, Samples: 1,
	})
}

func (s *testSurface) Present() { s.presented++ }

func (s *testSurface) Release() { s.released = true }

func newTestEngine(t *testing.T, options ...EngineBuilderOption) (*testSurface, *engine) {
	t.Helper()
	dev := recorder.New()
	culling.Emulate(dev)
	ts := &testSurface{Device: dev}
	e, err := NewEngine(append([]EngineBuilderOption{WithDevice(ts), WithLogger(logger.Discard())}, options...)...)
	require.NoError(t, err)
	t.Cleanup(e.(*engine).shutdown)
	return ts, e.(*engine)
}

// populate adds one opaque cube in front of the camera.
func populate(t *testing.T, e Engine) {
	t.Helper()
	opaque := e.Renderer().Materials().MustAdd(material.NewMaterial(material.WithName("opaque")))
	cube, err := e.Renderer().Meshes().Add(mesh.Cube(mesh.WithMaterial(opaque)))
	require.NoError(t, err)
	_, err = e.Scene().AddInstance(scene.Instance{Mesh: cube})
	require.NoError(t, err)
	e.Camera().LookAt(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{})
}

func TestNewEngineHeadless(t *testing.T) {
	ts, e := newTestEngine(t)

	assert.Equal(t, [][2]uint32{{1, 1}}, ts.configured)
	assert.Equal(t, rhi.FormatRGBA8Unorm, e.Renderer().Config().SwapchainFormat, "swapchain format follows the surface")
	assert.Equal(t, renderer.StateReady, e.Renderer().State())
	assert.NotNil(t, e.Scene())
	assert.ErrorIs(t, e.Run(), ErrNoWindow)
}

func TestRenderFrameSubmitsAndPresents(t *testing.T) {
	ts, e := newTestEngine(t)
	populate(t, e)
	submitted := len(ts.Submitted())

	require.NoError(t, e.renderFrame())
	require.NoError(t, e.renderFrame())

	assert.Equal(t, 2, ts.acquired)
	assert.Equal(t, 2, ts.presented)
	assert.Len(t, ts.Submitted(), submitted+2)
	assert.Equal(t, uint64(2), e.Renderer().Frame())
}

func TestResizeAppliedOnNextFrame(t *testing.T) {
	ts, e := newTestEngine(t)
	populate(t, e)

	e.onResize(0, 0)
	require.NoError(t, e.renderFrame())
	assert.Zero(t, ts.presented, "a minimized window renders nothing")

	e.onResize(64, 32)
	require.NoError(t, e.renderFrame())
	assert.Equal(t, [2]uint32{64, 32}, ts.configured[len(ts.configured)-1])
	assert.InDelta(t, 2.0, e.Camera().Aspect(), 1e-6)
	assert.Equal(t, 1, ts.presented)

	configured := len(ts.configured)
	require.NoError(t, e.renderFrame())
	assert.Len(t, ts.configured, configured, "the surface is reconfigured once per resize")
}

func TestShutdownReleasesOnlyOwnedDevice(t *testing.T) {
	ts, e := newTestEngine(t)
	e.shutdown()

	assert.False(t, ts.released)
	assert.Equal(t, renderer.StateDestroyed, e.Renderer().State())
}

func TestTickAndFrameRates(t *testing.T) {
	tests := []struct {
		name      string
		tick      float64
		wantTick  time.Duration
		limit     float64
		wantLimit time.Duration
	}{
		{"defaults", 0, time.Second / 60, 0, 0},
		{"explicit", 30, time.Second / 30, 120, time.Second / 120},
		{"negative", -5, time.Second / 60, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, e := newTestEngine(t)
			e.SetTickRate(tt.tick)
			e.SetRenderFrameLimit(tt.limit)
			assert.Equal(t, tt.wantTick, e.engineTickRate)
			assert.Equal(t, tt.wantLimit, e.renderFrameLimit)
		})
	}
}

func TestSetTickRateWhileRunningQueuesLatest(t *testing.T) {
	_, e := newTestEngine(t)
	e.running.Store(true)

	e.SetTickRate(10)
	e.SetTickRate(20)

	require.Len(t, e.tickRateChannel, 1)
	assert.Equal(t, time.Second/20, <-e.tickRateChannel)
}
