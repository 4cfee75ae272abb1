package pipeline

import (
	"testing"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateDescribe(t *testing.T) {
	tests := []struct {
		name   string
		opts   []TemplateBuilderOption
		cull   rhi.CullMode
		verify func(t *testing.T, desc rhi.GraphicPipelineDesc)
	}{
		{
			name: "defaults",
			cull: rhi.CullBack,
			verify: func(t *testing.T, desc rhi.GraphicPipelineDesc) {
				assert.Equal(t, "vs_main", desc.VertexEntry)
				assert.Equal(t, "fs_main", desc.FragmentEntry)
				assert.Nil(t, desc.Depth)
				assert.Empty(t, desc.ColorTargets)
				assert.Equal(t, uint32(1), desc.Samples)
			},
		},
		{
			name: "depth only with stencil",
			opts: []TemplateBuilderOption{
				WithEntryPoints("vs_main", ""),
				WithDepthFormat(rhi.FormatDepth24PlusStencil8),
				WithStencil(rhi.StencilState{Enabled: true, Compare: rhi.CompareAlways, PassOp: rhi.StencilReplace, WriteMask: 1}),
			},
			cull: rhi.CullFront,
			verify: func(t *testing.T, desc rhi.GraphicPipelineDesc) {
				assert.Equal(t, "", desc.FragmentEntry)
				require.NotNil(t, desc.Depth)
				assert.True(t, desc.Depth.Test)
				assert.True(t, desc.Depth.Write)
				assert.Equal(t, rhi.CompareLess, desc.Depth.Compare)
				assert.Equal(t, rhi.StencilReplace, desc.Depth.Stencil.PassOp)
				assert.Equal(t, rhi.CullFront, desc.Cull)
			},
		},
		{
			name: "blended target with read-only depth",
			opts: []TemplateBuilderOption{
				WithColorTarget(rhi.FormatRGBA16Float, AlphaBlend),
				WithWriteMask(0x7),
				WithDepthFormat(rhi.FormatDepth32Float),
				WithDepthWriteEnabled(false),
				WithDepthCompare(rhi.CompareLessEqual),
				WithDepthBias(2, 1.5),
				WithSamples(4),
			},
			cull: rhi.CullNone,
			verify: func(t *testing.T, desc rhi.GraphicPipelineDesc) {
				require.Len(t, desc.ColorTargets, 1)
				assert.Equal(t, AlphaBlend, desc.ColorTargets[0].Blend)
				assert.Equal(t, uint32(0x7), desc.ColorTargets[0].WriteMask)
				require.NotNil(t, desc.Depth)
				assert.False(t, desc.Depth.Write)
				assert.Equal(t, rhi.CompareLessEqual, desc.Depth.Compare)
				assert.Equal(t, int32(2), desc.Depth.Bias)
				assert.Equal(t, float32(1.5), desc.Depth.SlopeBias)
				assert.Equal(t, uint32(4), desc.Samples)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := NewTemplate("test", tt.opts...)
			desc := tmpl.Describe("x", nil, nil, tt.cull)
			assert.Equal(t, "test/x", desc.Label)
			tt.verify(t, desc)
		})
	}
}

func newCache(t *testing.T) (*recorder.Device, *shader.Cache, *Cache) {
	t.Helper()
	dev := recorder.New()
	shaders, err := shader.NewCache(dev, shader.WithLogger(logger.Discard()))
	require.NoError(t, err)
	tmpl := NewTemplate("post", WithColorTarget(rhi.FormatRGBA16Float, rhi.BlendState{}), WithDepthFormat(rhi.FormatDepth32Float))
	return dev, shaders, NewCache(dev, shaders, tmpl, nil, WithLogger(logger.Discard()))
}

func TestCacheEnsureBuildsOnce(t *testing.T) {
	_, _, c := newCache(t)

	first, err := c.Ensure(1, "gamma", rhi.CullBack)
	require.NoError(t, err)
	again, err := c.Ensure(1, "gamma", rhi.CullBack)
	require.NoError(t, err)
	assert.Same(t, first, again)

	other, err := c.Ensure(2, "gamma", rhi.CullNone)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, rhi.CullNone, other.(*recorder.Pipeline).Graphic.Cull)
	assert.Equal(t, 2, c.Len())

	got, ok := c.Get(2)
	require.True(t, ok)
	assert.Same(t, other, got)
	_, ok = c.Get(3)
	assert.False(t, ok)
}

func TestCacheEnsureRebuildsOnChangedConfiguration(t *testing.T) {
	dev, _, c := newCache(t)
	first, err := c.Ensure(1, "gamma", rhi.CullBack)
	require.NoError(t, err)
	second, err := c.Ensure(1, "gamma", rhi.CullFront)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.False(t, dev.IsLive(first))
	assert.Equal(t, 1, c.Len())
}

func TestCacheFollowsShaderGeneration(t *testing.T) {
	dev, shaders, c := newCache(t)
	first, err := c.Ensure(1, "gamma", rhi.CullBack)
	require.NoError(t, err)

	require.NoError(t, c.Rebuild())
	p, _ := c.Get(1)
	assert.Same(t, first, p, "nothing changed")

	shaders.Invalidate("gamma")
	require.NoError(t, c.Rebuild())
	p, ok := c.Get(1)
	require.True(t, ok)
	assert.NotSame(t, first, p)
	assert.False(t, dev.IsLive(first))
}

func TestCacheUnknownShader(t *testing.T) {
	_, _, c := newCache(t)
	_, err := c.Ensure(1, "missing", rhi.CullBack)
	require.Error(t, err)
	assert.ErrorIs(t, err, shader.ErrShaderNotFound)
	assert.Equal(t, 0, c.Len())
}

func TestCacheDestroy(t *testing.T) {
	dev, _, c := newCache(t)
	p, err := c.Ensure(1, "gamma", rhi.CullBack)
	require.NoError(t, err)
	c.Destroy()
	assert.False(t, dev.IsLive(p))
	assert.Equal(t, 0, c.Len())
}
