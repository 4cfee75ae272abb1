package renderer

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/culling"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/pass"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWidth  = 64
	testHeight = 32
)

func newTestRenderer(t *testing.T, mutate func(*config.Config), options ...RendererBuilderOption) (*recorder.Device, Renderer) {
	t.Helper()
	dev := recorder.New()
	culling.Emulate(dev)
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := New(dev, cfg, append([]RendererBuilderOption{WithLogger(logger.Discard())}, options...)...)
	require.NoError(t, err)
	t.Cleanup(r.Destroy)
	return dev, r
}

func list(t *testing.T, dev *recorder.Device) *recorder.CommandList {
	t.Helper()
	cmd, err := dev.NewCommandList("test")
	require.NoError(t, err)
	return cmd.(*recorder.CommandList)
}

func testCamera() camera.Camera {
	return camera.NewCamera(camera.WithPosition(0, 0, 10), camera.WithTarget(0, 0, 0))
}

// populate adds one opaque cube instance to the renderer's scene.
func populate(t *testing.T, r Renderer) {
	t.Helper()
	opaque := r.Materials().MustAdd(material.NewMaterial(material.WithName("opaque")))
	cube, err := r.Meshes().Add(mesh.Cube(mesh.WithMaterial(opaque)))
	require.NoError(t, err)
	_, err = r.Scene().AddInstance(scene.Instance{Mesh: cube})
	require.NoError(t, err)
}

// frame records one full frame into a fresh command list.
func frame(t *testing.T, dev *recorder.Device, r Renderer, target *pass.Attachment) *recorder.CommandList {
	t.Helper()
	cmd := list(t, dev)
	require.NoError(t, r.Prepare(cmd, testCamera()))
	require.NoError(t, r.Render(cmd))
	require.NoError(t, r.PostProcess(cmd, target))
	return cmd
}

// passLabels returns the labels of every non-shadow rendering scope in recording order.
func passLabels(cmd *recorder.CommandList) []string {
	var out []string
	for _, c := range cmd.Filter(recorder.OpBeginRendering) {
		if strings.HasPrefix(c.Rendering.Label, "shadow") {
			continue
		}
		out = append(out, c.Rendering.Label)
	}
	return out
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{
			name:   "unknown renderer type",
			mutate: func(c *config.Config) { c.RendererType = config.RendererDeferred + 1 },
			want:   ErrUnknownRendererType,
		},
		{
			name:   "frames in flight",
			mutate: func(c *config.Config) { c.FramesInFlight = 0 },
			want:   config.ErrInvalidConfig,
		},
		{
			name:   "msaa samples",
			mutate: func(c *config.Config) { c.MSAASamples = 2 },
			want:   config.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			_, err := New(recorder.New(), cfg, WithLogger(logger.Discard()))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFrameCallsRequireResize(t *testing.T) {
	dev, r := newTestRenderer(t, nil)
	assert.Equal(t, StateCreated, r.State())
	assert.Nil(t, r.Output(0))

	cmd := list(t, dev)
	assert.ErrorIs(t, r.Prepare(cmd, testCamera()), ErrNotReady)
	assert.ErrorIs(t, r.Render(cmd), ErrNotReady)
	assert.ErrorIs(t, r.PostProcess(cmd, nil), ErrNotReady)
	assert.ErrorIs(t, r.UpdatePipelines(), ErrNotReady)

	assert.Error(t, r.Resize(cmd, 0, testHeight))
	assert.Equal(t, StateCreated, r.State())

	require.NoError(t, r.Resize(cmd, testWidth, testHeight))
	assert.Equal(t, StateReady, r.State())
	assert.ErrorIs(t, r.Render(cmd), ErrNotReady, "render needs a prepared frame")
	assert.ErrorIs(t, r.PostProcess(cmd, nil), ErrNotReady, "post-processing needs a rendered frame")
}

func TestRenderPaths(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name: "deferred with every effect",
			want: []string{
				"depth/render", "ssao/render", "ssao-blur/render", "gbuffer/render", "lighting/render",
				"bloom/render", "fxaa/render", "gamma/render",
			},
		},
		{
			name: "forward without effects",
			mutate: func(c *config.Config) {
				c.RendererType = config.RendererForward
				c.SSAO.Enabled = false
				c.Bloom.Enabled = false
				c.AntiAliasing = config.AntiAliasingNone
			},
			want: []string{"depth/render", "forward/render", "gamma/render"},
		},
		{
			name: "forward with smaa",
			mutate: func(c *config.Config) {
				c.RendererType = config.RendererForward
				c.SSAO.Enabled = false
				c.Bloom.Enabled = false
				c.AntiAliasing = config.AntiAliasingSMAA
			},
			want: []string{
				"depth/render", "forward/render", "smaa-edge/render", "smaa-weight/render", "smaa-blend/render",
				"gamma/render",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, r := newTestRenderer(t, tt.mutate)
			populate(t, r)
			require.NoError(t, r.Resize(list(t, dev), testWidth, testHeight))

			cmd := frame(t, dev, r, nil)
			assert.Equal(t, tt.want, passLabels(cmd))
			assert.Equal(t, uint64(1), r.Frame())

			out := r.Output(0)
			require.NotNil(t, out)
			assert.Equal(t, rhi.StateShaderRead, out.State)
			assert.Equal(t, r.Config().SwapchainFormat, out.Image.(*recorder.Image).Desc().Format)
		})
	}
}

func TestPrepareFlushesRegistries(t *testing.T) {
	dev, r := newTestRenderer(t, nil)
	populate(t, r)
	require.NoError(t, r.Resize(list(t, dev), testWidth, testHeight))

	cmd := list(t, dev)
	require.NoError(t, r.Prepare(cmd, testCamera()))
	var materials bool
	for _, u := range cmd.Filter(recorder.OpUpload) {
		if u.Buffer == r.Materials().Buffer() {
			materials = true
		}
	}
	assert.True(t, materials, "material records are uploaded before the scene update")
	assert.Positive(t, cmd.Count(recorder.OpDispatch), "instance tables are culled")

	again := list(t, dev)
	require.NoError(t, r.Prepare(again, testCamera()))
	for _, u := range again.Filter(recorder.OpUpload) {
		assert.NotSame(t, r.Materials().Buffer(), u.Buffer, "clean registries upload nothing")
	}
}

func TestOpaqueMarksStencilBeforeColor(t *testing.T) {
	dev, r := newTestRenderer(t, nil)
	populate(t, r)
	require.NoError(t, r.Resize(list(t, dev), testWidth, testHeight))

	cmd := frame(t, dev, r, nil)
	refs := cmd.Filter(recorder.OpSetStencilReference)
	require.NotEmpty(t, refs)
	assert.Equal(t, pass.OpaqueStencil, refs[0].Counts[0])
}

// tint is a custom effect used to check the chain order.
type tint struct {
	*pass.PostProcess
}

func (e *tint) Apply(cmd rhi.CommandList, frame uint64, color, depth *pass.Attachment) (*pass.Attachment, error) {
	return e.Render(cmd, frame, pass.PostInputs{Color: color, Depth: depth})
}

func TestCustomPassRunsBetweenBloomAndAntiAliasing(t *testing.T) {
	var created *tint
	factory := func(ctx pass.Context) (pass.Effect, error) {
		p, err := pass.NewPostProcess(ctx, "tint", "fxaa", ctx.Config.ColorFormat, pass.GPUSmallParamsSize, rhi.BlendState{})
		if err != nil {
			return nil, err
		}
		created = &tint{PostProcess: p}
		return created, nil
	}
	dev, r := newTestRenderer(t, func(c *config.Config) { c.SSAO.Enabled = false }, WithCustomPass(factory))
	require.NotNil(t, created)
	populate(t, r)
	require.NoError(t, r.Resize(list(t, dev), testWidth, testHeight))

	cmd := frame(t, dev, r, nil)
	labels := passLabels(cmd)
	assert.Equal(t, []string{"bloom/render", "tint/render", "fxaa/render", "gamma/render"}, labels[len(labels)-4:])
	assert.NotNil(t, created.Output(0), "custom passes are resized with the renderer")
}

func TestCustomPassErrorFailsNew(t *testing.T) {
	dev := recorder.New()
	culling.Emulate(dev)
	boom := errors.New("boom")
	_, err := New(dev, config.Default(), WithLogger(logger.Discard()),
		WithCustomPass(func(pass.Context) (pass.Effect, error) { return nil, boom }))
	assert.ErrorIs(t, err, boom)
}

func TestPostProcessWritesExternalTarget(t *testing.T) {
	dev, r := newTestRenderer(t, nil)
	populate(t, r)
	require.NoError(t, r.Resize(list(t, dev), testWidth, testHeight))

	img, err := dev.CreateRenderTarget(rhi.ImageDesc{
		Label: "swapchain", Width: testWidth, Height: testHeight, Layers: 1,
		Format: r.Config().SwapchainFormat, Samples: 1,
	})
	require.NoError(t, err)
	defer dev.Destroy(img)
	target := &pass.Attachment{Image: img}

	cmd := frame(t, dev, r, target)
	begins := cmd.Filter(recorder.OpBeginRendering)
	last := begins[len(begins)-1]
	assert.Same(t, img, last.Rendering.Colors[0].Image)
	assert.Equal(t, rhi.StateRenderTarget, target.State)
}

func TestFramesCycleAttachments(t *testing.T) {
	dev, r := newTestRenderer(t, func(c *config.Config) { c.FramesInFlight = 2 })
	populate(t, r)
	require.NoError(t, r.Resize(list(t, dev), testWidth, testHeight))

	for range 3 {
		frame(t, dev, r, nil)
	}
	assert.Equal(t, uint64(3), r.Frame())
	assert.NotSame(t, r.Output(0), r.Output(1))
	assert.Same(t, r.Output(0), r.Output(2))
}

func TestResizeSameExtentKeepsAttachments(t *testing.T) {
	dev, r := newTestRenderer(t, nil)
	require.NoError(t, r.Resize(list(t, dev), testWidth, testHeight))
	out := r.Output(0)
	require.NoError(t, r.Resize(list(t, dev), testWidth, testHeight))
	assert.Same(t, out, r.Output(0))

	require.NoError(t, r.Resize(list(t, dev), testWidth*2, testHeight))
	assert.NotSame(t, out, r.Output(0))
}

func TestDestroyReleasesResources(t *testing.T) {
	dev, r := newTestRenderer(t, nil)
	populate(t, r)
	require.NoError(t, r.Resize(list(t, dev), testWidth, testHeight))
	frame(t, dev, r, nil)
	out := r.Output(0).Image
	live := dev.Live()

	r.Destroy()
	assert.Equal(t, StateDestroyed, r.State())
	assert.False(t, dev.IsLive(out))
	assert.Less(t, dev.Live(), live)
	assert.ErrorIs(t, r.Prepare(list(t, dev), testCamera()), ErrNotReady)
	assert.ErrorIs(t, r.Resize(list(t, dev), testWidth, testHeight), ErrNotReady)
	assert.NotPanics(t, r.Destroy)
}
