package pass

import (
	"testing"

	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// colorInput returns a resized render target standing in for a color pass output.
func colorInput(t *testing.T, f *fixture) *Attachment {
	t.Helper()
	img, err := f.dev.CreateRenderTarget(rhi.ImageDesc{
		Label: "input", Width: testExtent.Width, Height: testExtent.Height, Layers: 1,
		Format: f.ctx.Config.ColorFormat, Samples: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { f.dev.Destroy(img) })
	return &Attachment{Image: img, State: rhi.StateShaderRead}
}

func bound(t *testing.T, set rhi.DescriptorSet, binding uint32) recorder.Binding {
	t.Helper()
	b, ok := set.(*recorder.DescriptorSet).Bound(binding, 0)
	require.True(t, ok, "binding %d", binding)
	return b
}

func TestPostProcessFallsBackForMissingInputs(t *testing.T) {
	f := newFixture(t, nil)
	p, err := NewPostProcess(f.ctx, "test", "gamma", f.ctx.Config.ColorFormat, GPUSmallParamsSize, rhi.BlendState{})
	require.NoError(t, err)
	defer p.Destroy()

	cmd := f.list(t)
	_, err = p.Render(cmd, 0, PostInputs{})
	assert.ErrorIs(t, err, ErrNotResized)

	require.NoError(t, p.Resize(cmd, testExtent))
	out, err := p.Render(cmd, 0, PostInputs{})
	require.NoError(t, err)
	assert.Same(t, p.Output(0), out)
	assert.Equal(t, rhi.StateShaderRead, out.State)

	set := p.sets[0]
	assert.Same(t, f.ctx.Fallbacks.Color.Image, bound(t, set, PostBindingColor).Image)
	assert.Same(t, f.ctx.Fallbacks.Depth.Image, bound(t, set, PostBindingDepth).Image)
	assert.Same(t, f.ctx.Fallbacks.Color.Image, bound(t, set, PostBindingExtra).Image)
	assert.NotNil(t, bound(t, set, PostBindingSampler).Sampler)

	draws := cmd.Filter(recorder.OpDraw)
	require.Len(t, draws, 1)
	assert.Equal(t, [4]uint32{3, 1, 0, 0}, draws[0].Counts, "one fullscreen triangle")
}

func TestPostProcessUploadsParamsEveryRender(t *testing.T) {
	f := newFixture(t, nil)
	p, err := NewPostProcess(f.ctx, "test", "gamma", f.ctx.Config.ColorFormat, GPUSmallParamsSize, rhi.BlendState{})
	require.NoError(t, err)
	defer p.Destroy()
	cmd := f.list(t)
	require.NoError(t, p.Resize(cmd, testExtent))

	params := GPUGammaParams{Exposure: 2, Gamma: 2.2, ToneMapping: uint32(config.ToneMappingReinhard)}
	p.SetParams(params.Marshal())
	for frame := range uint64(3) {
		_, err := p.Render(cmd, frame, PostInputs{Color: colorInput(t, f)})
		require.NoError(t, err)
	}

	uploads := cmd.Filter(recorder.OpUpload)
	require.Len(t, uploads, 3)
	assert.Equal(t, params.Marshal(), uploads[2].Data)
	assert.Same(t, uploads[0].Buffer, uploads[2].Buffer, "frames share uniforms modulo frames in flight")
	assert.NotSame(t, uploads[0].Buffer, uploads[1].Buffer)
}

func TestPostProcessNeverRendersInPlace(t *testing.T) {
	f := newFixture(t, nil)
	p, err := NewPostProcess(f.ctx, "test", "gamma", f.ctx.Config.ColorFormat, GPUSmallParamsSize, rhi.BlendState{})
	require.NoError(t, err)
	defer p.Destroy()
	cmd := f.list(t)
	require.NoError(t, p.Resize(cmd, testExtent))

	in := colorInput(t, f)
	assert.Error(t, p.RenderTo(cmd, 0, PostInputs{Color: in}, in))

	out, err := p.Render(cmd, 0, PostInputs{Color: in})
	require.NoError(t, err)
	assert.NotSame(t, in, out)
	assert.Same(t, in.Image, bound(t, p.sets[0], PostBindingColor).Image)
}

func TestEffectsApply(t *testing.T) {
	tests := []struct {
		name   string
		create func(Context) (Effect, error)
		passes int
		format func(config.Config) rhi.Format
	}{
		{
			name:   "bloom",
			create: func(ctx Context) (Effect, error) { return NewBloom(ctx) },
			passes: 1,
			format: func(c config.Config) rhi.Format { return c.ColorFormat },
		},
		{
			name:   "fxaa",
			create: func(ctx Context) (Effect, error) { return NewFXAA(ctx) },
			passes: 1,
			format: func(c config.Config) rhi.Format { return c.ColorFormat },
		},
		{
			name:   "smaa",
			create: func(ctx Context) (Effect, error) { return NewSMAA(ctx) },
			passes: 3,
			format: func(c config.Config) rhi.Format { return c.ColorFormat },
		},
		{
			name:   "gamma",
			create: func(ctx Context) (Effect, error) { return NewGamma(ctx) },
			passes: 1,
			format: func(c config.Config) rhi.Format { return c.SwapchainFormat },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			effect, err := tt.create(f.ctx)
			require.NoError(t, err)
			defer effect.Destroy()

			cmd := f.list(t)
			require.NoError(t, effect.Resize(cmd, testExtent))
			require.NoError(t, effect.UpdatePipelines())

			in := colorInput(t, f)
			render := f.list(t)
			out, err := effect.Apply(render, 0, in, nil)
			require.NoError(t, err)
			require.NotNil(t, out)
			assert.NotSame(t, in, out)
			assert.Equal(t, rhi.StateShaderRead, out.State)
			assert.Equal(t, tt.format(f.ctx.Config), out.Image.(*recorder.Image).Desc().Format)
			assert.Equal(t, tt.passes, render.Count(recorder.OpBeginRendering))
			assert.Equal(t, tt.passes, render.Count(recorder.OpDraw))
		})
	}
}

func TestSMAABlendsWithWeights(t *testing.T) {
	f := newFixture(t, nil)
	smaa, err := NewSMAA(f.ctx)
	require.NoError(t, err)
	defer smaa.Destroy()
	cmd := f.list(t)
	require.NoError(t, smaa.Resize(cmd, testExtent))

	in := colorInput(t, f)
	_, err = smaa.Apply(cmd, 1, in, nil)
	require.NoError(t, err)

	assert.Same(t, smaa.edge.Output(1).Image, bound(t, smaa.weight.sets[1], PostBindingColor).Image)
	blend := smaa.blend.sets[1]
	assert.Same(t, in.Image, bound(t, blend, PostBindingColor).Image, "blending samples the original color")
	assert.Same(t, smaa.weight.Output(1).Image, bound(t, blend, PostBindingExtra).Image)
}

func TestGammaParamsFromConfig(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Exposure = 1.5
		c.Gamma = 2.4
		c.ToneMapping = config.ToneMappingACES
	})
	gamma, err := NewGamma(f.ctx)
	require.NoError(t, err)
	defer gamma.Destroy()

	want := GPUGammaParams{Exposure: 1.5, Gamma: 2.4, ToneMapping: 2}
	assert.Equal(t, want.Marshal(), gamma.Params())

	gamma.Configure(1, 2.2, config.ToneMappingNone)
	want = GPUGammaParams{Exposure: 1, Gamma: 2.2}
	assert.Equal(t, want.Marshal(), gamma.Params())
}

func TestGammaWritesExternalTarget(t *testing.T) {
	f := newFixture(t, nil)
	gamma, err := NewGamma(f.ctx)
	require.NoError(t, err)
	defer gamma.Destroy()
	cmd := f.list(t)
	require.NoError(t, gamma.Resize(cmd, testExtent))

	img, err := f.dev.CreateRenderTarget(rhi.ImageDesc{
		Label: "swapchain", Width: testExtent.Width, Height: testExtent.Height, Layers: 1,
		Format: f.ctx.Config.SwapchainFormat, Samples: 1,
	})
	require.NoError(t, err)
	defer f.dev.Destroy(img)
	target := &Attachment{Image: img}

	render := f.list(t)
	require.NoError(t, gamma.ApplyTo(render, 0, colorInput(t, f), target))
	begin := render.Filter(recorder.OpBeginRendering)
	require.Len(t, begin, 1)
	assert.Same(t, img, begin[0].Rendering.Colors[0].Image)
	assert.Equal(t, rhi.StateRenderTarget, target.State, "the caller presents the target")
}

func TestSampleKernel(t *testing.T) {
	a := SampleKernel(16, 7)
	b := SampleKernel(16, 7)
	assert.Equal(t, a, b, "the kernel is deterministic")
	assert.NotEqual(t, a, SampleKernel(16, 8))

	for i, s := range a {
		if i >= 16 {
			assert.Equal(t, mgl32.Vec4{}, s)
			continue
		}
		assert.GreaterOrEqual(t, s.Z(), float32(0), "sample %d lies in the +Z hemisphere", i)
		assert.LessOrEqual(t, s.Vec3().Len(), float32(1.0001))
	}
	full := SampleKernel(1000, 1)
	assert.NotEqual(t, mgl32.Vec4{}, full[MaxSsaoSamples-1], "counts are clamped to the kernel size")
}

func TestSSAORendersOcclusionThenBlur(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.SSAO.SampleCount = 8 })
	ssao, err := NewSSAO(f.ctx)
	require.NoError(t, err)
	defer ssao.Destroy()

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	cmd := f.list(t)
	require.NoError(t, depth.Resize(cmd, testExtent))
	require.NoError(t, ssao.Resize(cmd, testExtent))
	require.NoError(t, ssao.UpdatePipelines())

	proj := f.cam.ProjectionMatrix()
	render := f.list(t)
	ao, err := ssao.Render(render, 0, depth.Output(0), proj)
	require.NoError(t, err)
	assert.Same(t, ssao.Output(0), ao)
	assert.Equal(t, AOFormat, ao.Image.(*recorder.Image).Desc().Format)
	assert.Equal(t, 2, render.Count(recorder.OpDraw))

	assert.Same(t, depth.Output(0).Image, bound(t, ssao.occlusion.sets[0], PostBindingDepth).Image)
	assert.Same(t, ssao.occlusion.Output(0).Image, bound(t, ssao.blur.sets[0], PostBindingColor).Image)

	uploads := render.Filter(recorder.OpUpload)
	require.Len(t, uploads, 2)
	params := uploads[0].Data
	require.Len(t, params, GPUSsaoParamsSize)
	assert.Equal(t, marshalMat4(proj), params[:64])
	assert.Equal(t, uint32(8), recorder.ReadUint32(uploads[0].Buffer, 1164))
}
