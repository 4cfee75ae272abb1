package pass

import (
	"testing"

	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/culling"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testExtent = Extent{Width: 64, Height: 32}

type fixture struct {
	dev       *recorder.Device
	ctx       Context
	meshes    *mesh.Registry
	materials *material.Registry
	stage     *culling.Stage
	shadow    *Shadow
	scene     scene.Scene
	cam       camera.Camera

	opaque      material.ID
	transparent material.ID
	custom      material.ID
	cube        mesh.ID
	split       mesh.ID
	frame       uint64
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	dev := recorder.New()
	culling.Emulate(dev)

	cache, err := shader.NewCache(dev,
		shader.WithLogger(logger.Discard()),
		shader.WithInclude("scene", scene.GPUSceneUniformSource, "SceneUniform"),
	)
	require.NoError(t, err)
	stage, err := culling.New(dev, cache, culling.WithLogger(logger.Discard()))
	require.NoError(t, err)
	materials, err := material.NewRegistry(dev, material.WithLogger(logger.Discard()))
	require.NoError(t, err)
	meshes, err := mesh.NewRegistry(dev, mesh.WithLogger(logger.Discard()))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.FramesInFlight = 2
	cfg.Shadows.MaxShadowMaps = 2
	if mutate != nil {
		mutate(&cfg)
	}
	ctx, err := NewContext(dev, cache, cfg, nil, logger.Discard())
	require.NoError(t, err)
	shadow, err := NewShadow(ctx, meshes, materials, stage)
	require.NoError(t, err)
	sc, err := scene.NewScene(dev, cfg, stage, meshes, materials,
		scene.WithLogger(logger.Discard()),
		scene.WithShadowRendererFactory(shadow.Factory()),
	)
	require.NoError(t, err)
	shadow.Attach(sc.TableLayout())
	t.Cleanup(func() {
		sc.Destroy()
		shadow.Destroy()
		ctx.Destroy()
	})

	f := &fixture{
		dev:       dev,
		ctx:       ctx,
		meshes:    meshes,
		materials: materials,
		stage:     stage,
		shadow:    shadow,
		scene:     sc,
		cam:       camera.NewCamera(camera.WithPosition(0, 0, 10), camera.WithTarget(0, 0, 0)),
	}
	f.opaque = materials.MustAdd(material.NewMaterial(material.WithName("opaque")))
	f.transparent = materials.MustAdd(material.NewMaterial(material.WithName("glass"), material.WithTransparency(material.TransparencyBlend)))
	f.custom = materials.MustAdd(material.NewMaterial(material.WithName("pulse"), material.WithShader("unlit_pulse")))
	f.cube, err = meshes.Add(mesh.Cube(mesh.WithMaterial(f.opaque)))
	require.NoError(t, err)

	base := mesh.Cube()
	f.split, err = meshes.Add(mesh.NewMesh(
		mesh.WithName("split-cube"),
		mesh.WithGeometry(base.Vertices(), base.Indices()),
		mesh.WithSurfaces(
			mesh.Surface{Material: f.opaque, FirstIndex: 0, IndexCount: 12},
			mesh.Surface{Material: f.transparent, FirstIndex: 12, IndexCount: 12},
			mesh.Surface{Material: f.custom, FirstIndex: 24, IndexCount: 12},
		),
	))
	require.NoError(t, err)
	return f
}

func (f *fixture) list(t *testing.T) *recorder.CommandList {
	t.Helper()
	cmd, err := f.dev.NewCommandList("test")
	require.NoError(t, err)
	return cmd.(*recorder.CommandList)
}

func (f *fixture) add(t *testing.T, id mesh.ID) {
	t.Helper()
	_, err := f.scene.AddInstance(scene.Instance{Mesh: id})
	require.NoError(t, err)
}

// prepare runs the scene's per-frame update and culling.
func (f *fixture) prepare(t *testing.T) {
	t.Helper()
	cmd := f.list(t)
	require.NoError(t, f.scene.Update(cmd, f.cam, f.frame))
	require.NoError(t, f.scene.Compute(cmd, f.cam))
}

func graphic(t *testing.T, p rhi.Pipeline) *rhi.GraphicPipelineDesc {
	t.Helper()
	rp, ok := p.(*recorder.Pipeline)
	require.True(t, ok)
	require.NotNil(t, rp.Graphic)
	return rp.Graphic
}

func TestExtent(t *testing.T) {
	assert.True(t, testExtent.Valid())
	assert.False(t, Extent{Width: 1}.Valid())
	assert.Equal(t, float32(64), testExtent.Viewport().Width)
	assert.Equal(t, float32(1), testExtent.Viewport().MaxDepth)
	assert.Equal(t, uint32(32), testExtent.Scissor().Height)
}

func TestAttachmentTransition(t *testing.T) {
	f := newFixture(t, nil)
	cmd := f.list(t)
	a := &Attachment{Image: f.ctx.Fallbacks.Color.Image}

	a.Transition(cmd, rhi.StateShaderRead)
	a.Transition(cmd, rhi.StateShaderRead)
	var none *Attachment
	none.Transition(cmd, rhi.StateRenderTarget)

	barriers := cmd.Filter(recorder.OpBarrier)
	require.Len(t, barriers, 1, "repeated and nil transitions record nothing")
	assert.Equal(t, rhi.StateUndefined, barriers[0].Barriers[0].Before)
	assert.Equal(t, rhi.StateShaderRead, barriers[0].Barriers[0].After)
	assert.Equal(t, rhi.StateShaderRead, a.State)
}

func TestRenderBeforeResize(t *testing.T) {
	f := newFixture(t, nil)
	cmd := f.list(t)

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	assert.ErrorIs(t, depth.Render(cmd, 0), ErrNotResized)
	assert.Nil(t, depth.Output(0))

	sm := NewShaderMaterial(f.ctx, f.scene, f.materials)
	defer sm.Destroy()
	assert.ErrorIs(t, sm.Render(cmd, 0, nil, nil), ErrNotResized)
	assert.Error(t, depth.Resize(cmd, Extent{}), "an empty extent is rejected")
}

func TestResizeReallocatesOnlyOnChange(t *testing.T) {
	f := newFixture(t, nil)
	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()

	cmd := f.list(t)
	require.NoError(t, depth.Resize(cmd, testExtent))
	assert.Equal(t, 2, cmd.Count(recorder.OpBarrier), "one bootstrap barrier per frame in flight")
	first := depth.Output(0)
	require.NotNil(t, first)
	assert.Equal(t, rhi.StateDepthStencilRead, first.State)
	assert.NotSame(t, first, depth.Output(1))
	assert.Same(t, first, depth.Output(2))

	again := f.list(t)
	require.NoError(t, depth.Resize(again, testExtent))
	assert.Zero(t, again.Count(recorder.OpBarrier))
	assert.Same(t, first, depth.Output(0))

	require.NoError(t, depth.Resize(again, Extent{Width: 128, Height: 128}))
	assert.NotSame(t, first, depth.Output(0))
	assert.False(t, f.dev.IsLive(first.Image), "replaced targets are released")
	assert.Equal(t, uint32(128), depth.Output(0).Image.(*recorder.Image).Desc().Width)
}

func TestDepthPrePassMarksOpaqueStencil(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.cube)
	f.prepare(t)

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	cmd := f.list(t)
	require.NoError(t, depth.Resize(cmd, testExtent))
	require.NoError(t, depth.UpdatePipelines())
	require.NoError(t, depth.Render(cmd, 0))

	refs := cmd.Filter(recorder.OpSetStencilReference)
	require.Len(t, refs, 1)
	assert.Equal(t, OpaqueStencil, refs[0].Counts[0])
	assert.Equal(t, 1, cmd.Count(recorder.OpDrawIndirectCount))

	begin := cmd.Filter(recorder.OpBeginRendering)
	require.Len(t, begin, 1)
	require.NotNil(t, begin[0].Rendering.Depth)
	assert.Same(t, depth.Output(0).Image, begin[0].Rendering.Depth.Image)
	assert.Equal(t, rhi.LoadOpClear, begin[0].Rendering.Depth.StencilLoad)
	assert.Empty(t, begin[0].Rendering.Colors)
	assert.Equal(t, rhi.StateDepthStencilRead, depth.Output(0).State)

	table := f.scene.Tables(instance_table.CategoryOpaque)[0]
	p, ok := depth.Pipelines().Get(table.PipelineID())
	require.True(t, ok)
	desc := graphic(t, p)
	assert.Empty(t, desc.FragmentEntry, "depth only")
	require.NotNil(t, desc.Depth)
	assert.True(t, desc.Depth.Stencil.Enabled)
	assert.Equal(t, rhi.StencilReplace, desc.Depth.Stencil.PassOp)
	assert.Equal(t, OpaqueStencil, desc.Depth.Stencil.WriteMask)
}

func TestGeometrySkipsTablesWithoutPipelines(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.cube)
	f.prepare(t)

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	cmd := f.list(t)
	require.NoError(t, depth.Resize(cmd, testExtent))
	require.NoError(t, depth.Render(cmd, 0))
	assert.Zero(t, cmd.Count(recorder.OpDrawIndirectCount))
	assert.Zero(t, depth.Pipelines().Len())

	require.NoError(t, depth.UpdatePipelines())
	require.NoError(t, depth.UpdatePipelines())
	assert.Equal(t, 1, depth.Pipelines().Len(), "known pipeline ids are built once")
}

func TestDeferredChain(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.split)
	f.prepare(t)

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	gbuffer := NewGBuffer(f.ctx, f.scene, f.materials)
	defer gbuffer.Destroy()
	lighting, err := NewLighting(f.ctx, f.scene)
	require.NoError(t, err)
	defer lighting.Destroy()

	cmd := f.list(t)
	for _, p := range []Pass{depth, gbuffer, lighting} {
		require.NoError(t, p.Resize(cmd, testExtent))
		require.NoError(t, p.UpdatePipelines())
	}

	render := f.list(t)
	require.NoError(t, depth.Render(render, 0))
	require.NoError(t, gbuffer.Render(render, 0, depth.Output(0)))
	require.NoError(t, lighting.Render(render, 0, gbuffer.Targets(0), depth.Output(0), nil))

	begin := render.Filter(recorder.OpBeginRendering)
	require.Len(t, begin, 3)
	gb := begin[1].Rendering
	require.Len(t, gb.Colors, GBufferTargets)
	assert.True(t, gb.Depth.ReadOnly, "the G-buffer tests against the pre-pass depth")
	assert.Equal(t, 3, render.Count(recorder.OpDrawIndirectCount), "opaque in both passes, transparent in the G-buffer")

	for _, target := range gbuffer.Targets(0) {
		assert.Equal(t, rhi.StateShaderRead, target.State)
	}

	draws := render.Filter(recorder.OpDraw)
	require.Len(t, draws, 1)
	assert.Equal(t, [4]uint32{3, 1, 0, 0}, draws[0].Counts)
	refs := render.Filter(recorder.OpSetStencilReference)
	require.Len(t, refs, 2)
	assert.Equal(t, OpaqueStencil, refs[1].Counts[0])

	p, ok := lighting.pipelines.Get(0)
	require.True(t, ok)
	desc := graphic(t, p)
	require.NotNil(t, desc.Depth)
	assert.Equal(t, rhi.CompareEqual, desc.Depth.Stencil.Compare)
	assert.False(t, desc.Depth.Write)

	set := lighting.sets[0].(*recorder.DescriptorSet)
	for i, target := range gbuffer.Targets(0) {
		b, ok := set.Bound(uint32(i), 0)
		require.True(t, ok)
		assert.Same(t, target.Image, b.Image)
	}
	ao, ok := set.Bound(lightingBindingAO, 0)
	require.True(t, ok)
	assert.Same(t, f.ctx.Fallbacks.Color.Image, ao.Image, "missing occlusion falls back to the blank image")
	assert.Equal(t, rhi.StateShaderRead, lighting.Output(0).State)
}

func TestForwardBindsOcclusionAtGroupTwo(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.cube)
	f.prepare(t)

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	forward, err := NewForward(f.ctx, f.scene, f.materials)
	require.NoError(t, err)
	defer forward.Destroy()

	cmd := f.list(t)
	for _, p := range []Pass{depth, forward} {
		require.NoError(t, p.Resize(cmd, testExtent))
		require.NoError(t, p.UpdatePipelines())
	}
	render := f.list(t)
	require.NoError(t, forward.Render(render, 1, depth.Output(1), nil))

	begin := render.Filter(recorder.OpBeginRendering)
	require.Len(t, begin, 1)
	require.Len(t, begin[0].Rendering.Colors, 1)
	assert.Same(t, forward.Output(1).Image, begin[0].Rendering.Colors[0].Image)
	assert.Equal(t, f.ctx.Config.ClearColor, begin[0].Rendering.Colors[0].Clear)

	var groups []uint32
	for _, c := range render.Filter(recorder.OpBindDescriptors) {
		groups = append(groups, c.FirstSet)
	}
	assert.Equal(t, []uint32{0, 2, 1}, groups, "scene, occlusion, then the table set")
	assert.Equal(t, 1, render.Count(recorder.OpDrawIndirectCount))
}

func TestShaderMaterialRecordsNothingWithoutDraws(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.cube)
	f.prepare(t)

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	sm := NewShaderMaterial(f.ctx, f.scene, f.materials)
	defer sm.Destroy()
	cmd := f.list(t)
	require.NoError(t, depth.Resize(cmd, testExtent))
	require.NoError(t, sm.Resize(cmd, testExtent))

	render := f.list(t)
	require.NoError(t, sm.Render(render, 0, f.ctx.Fallbacks.Color, depth.Output(0)))
	assert.Empty(t, render.Commands())
}

func TestShaderMaterialUsesMaterialShader(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.split)
	f.prepare(t)

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	forward, err := NewForward(f.ctx, f.scene, f.materials)
	require.NoError(t, err)
	defer forward.Destroy()
	sm := NewShaderMaterial(f.ctx, f.scene, f.materials)
	defer sm.Destroy()

	cmd := f.list(t)
	for _, p := range []Pass{depth, forward, sm} {
		require.NoError(t, p.Resize(cmd, testExtent))
		require.NoError(t, p.UpdatePipelines())
	}
	render := f.list(t)
	color := forward.Output(0)
	require.NoError(t, sm.Render(render, 0, color, depth.Output(0)))

	begin := render.Filter(recorder.OpBeginRendering)
	require.Len(t, begin, 1)
	assert.Equal(t, rhi.LoadOpLoad, begin[0].Rendering.Colors[0].Load)
	assert.False(t, begin[0].Rendering.Depth.ReadOnly)
	assert.Equal(t, 1, render.Count(recorder.OpDrawIndirectCount))
	assert.Equal(t, rhi.StateShaderRead, color.State)
	assert.Equal(t, rhi.StateDepthStencilRead, depth.Output(0).State)

	table := f.scene.Tables(instance_table.CategoryShaderMaterial)[0]
	p, ok := sm.Pipelines().Get(table.PipelineID())
	require.True(t, ok)
	assert.Contains(t, p.Label(), "unlit_pulse")
}

func TestOITSkipsWithoutTransparentDraws(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.cube)
	f.prepare(t)

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	oit, err := NewOIT(f.ctx, f.scene, f.materials)
	require.NoError(t, err)
	defer oit.Destroy()

	cmd := f.list(t)
	require.NoError(t, depth.Resize(cmd, testExtent))
	require.NoError(t, oit.Resize(cmd, testExtent))
	require.NoError(t, oit.UpdatePipelines())

	render := f.list(t)
	require.NoError(t, oit.Render(render, 0, f.ctx.Fallbacks.Color, depth.Output(0)))
	assert.Empty(t, render.Commands())
}

func TestOITAccumulatesThenComposites(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.split)
	f.prepare(t)

	depth := NewDepth(f.ctx, f.scene, f.materials)
	defer depth.Destroy()
	forward, err := NewForward(f.ctx, f.scene, f.materials)
	require.NoError(t, err)
	defer forward.Destroy()
	oit, err := NewOIT(f.ctx, f.scene, f.materials)
	require.NoError(t, err)
	defer oit.Destroy()

	cmd := f.list(t)
	for _, p := range []Pass{depth, forward, oit} {
		require.NoError(t, p.Resize(cmd, testExtent))
		require.NoError(t, p.UpdatePipelines())
	}
	render := f.list(t)
	color := forward.Output(0)
	require.NoError(t, oit.Render(render, 0, color, depth.Output(0)))

	begin := render.Filter(recorder.OpBeginRendering)
	require.Len(t, begin, 2)
	accum := begin[0].Rendering
	require.Len(t, accum.Colors, 2)
	assert.Equal(t, [4]float64{}, accum.Colors[0].Clear, "accumulation clears to zero")
	assert.Equal(t, [4]float64{1, 1, 1, 1}, accum.Colors[1].Clear, "revealage clears to one")
	assert.True(t, accum.Depth.ReadOnly)

	composite := begin[1].Rendering
	require.Len(t, composite.Colors, 1)
	assert.Same(t, color.Image, composite.Colors[0].Image)
	assert.Equal(t, rhi.LoadOpLoad, composite.Colors[0].Load)
	assert.Equal(t, 1, render.Count(recorder.OpDrawIndirectCount))
	assert.Equal(t, 1, render.Count(recorder.OpDraw))

	p, ok := oit.composite.Get(0)
	require.True(t, ok)
	desc := graphic(t, p)
	require.Len(t, desc.ColorTargets, 1)
	assert.Equal(t, rhi.BlendOneMinusSrcAlpha, desc.ColorTargets[0].Blend.SrcColor)
	assert.Equal(t, rhi.BlendSrcAlpha, desc.ColorTargets[0].Blend.DstColor)
}

func TestShadowRendererFollowsLights(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.split)
	h, err := f.scene.AddLight(light.NewLight(light.LightTypeDirectional, light.WithCastsShadows(true)))
	require.NoError(t, err)
	assert.Equal(t, 1, f.shadow.Renderers())

	f.prepare(t)
	cmd := f.list(t)
	require.NoError(t, f.scene.RenderShadows(cmd))

	cascades := int(f.ctx.Config.Shadows.Cascades)
	begin := cmd.Filter(recorder.OpBeginRendering)
	require.Len(t, begin, cascades, "one face per cascade")
	for i, b := range begin {
		require.NotNil(t, b.Rendering.Depth)
		assert.Equal(t, f.ctx.Config.Shadows.Resolution, b.Rendering.Width)
		view := b.Rendering.Depth.Image.(*recorder.Image)
		assert.Equal(t, uint32(i), view.BaseLayer())
	}
	assert.Equal(t, 2*cascades, cmd.Count(recorder.OpDrawIndirectCount), "opaque and shader-material tables cast")
	assert.Equal(t, cascades, cmd.Count(recorder.OpBindVertexBuffer), "mesh buffers are bound once per face")

	for _, b := range cmd.Filter(recorder.OpBindPipeline) {
		desc := graphic(t, b.Pipeline)
		assert.Empty(t, desc.FragmentEntry)
		require.NotNil(t, desc.Depth)
		assert.Equal(t, shadowDepthBias, desc.Depth.Bias)
		assert.Equal(t, scene.ShadowFormat, desc.Depth.Format)
	}

	require.NoError(t, f.scene.RemoveLight(h))
	f.frame++
	f.prepare(t)
	assert.Zero(t, f.shadow.Renderers())
}

func TestShadowFacesBootstrappedOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.cube)
	_, err := f.scene.AddLight(light.NewLight(light.LightTypeSpot, light.WithCastsShadows(true)))
	require.NoError(t, err)
	f.prepare(t)

	first := f.list(t)
	require.NoError(t, f.scene.RenderShadows(first))
	second := f.list(t)
	require.NoError(t, f.scene.RenderShadows(second))

	assert.Greater(t, first.Count(recorder.OpBarrier), second.Count(recorder.OpBarrier))
	assert.Equal(t, 1, second.Count(recorder.OpBeginRendering), "spot lights render one face")
	barriers := second.Filter(recorder.OpBarrier)
	require.Len(t, barriers, 2)
	assert.Equal(t, rhi.StateDepthStencilWrite, barriers[0].Barriers[0].After)
	assert.Equal(t, rhi.StateShaderRead, barriers[1].Barriers[0].After)
}

func TestShadowPipelinesFollowShaderReload(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, f.cube)
	_, err := f.scene.AddLight(light.NewLight(light.LightTypePoint, light.WithCastsShadows(true)))
	require.NoError(t, err)
	f.prepare(t)
	require.NoError(t, f.scene.RenderShadows(f.list(t)))

	table := f.scene.Tables(instance_table.CategoryOpaque)[0]
	before, ok := f.shadow.pipelines.Get(table.PipelineID())
	require.True(t, ok)

	f.ctx.Shaders.Invalidate("shadow")
	require.NoError(t, f.shadow.UpdatePipelines())
	after, ok := f.shadow.pipelines.Get(table.PipelineID())
	require.True(t, ok)
	assert.NotSame(t, before, after)
	assert.False(t, f.dev.IsLive(before))
}

func TestPassesReleaseEverything(t *testing.T) {
	f := newFixture(t, nil)
	before := f.dev.Live()

	depth := NewDepth(f.ctx, f.scene, f.materials)
	gbuffer := NewGBuffer(f.ctx, f.scene, f.materials)
	lighting, err := NewLighting(f.ctx, f.scene)
	require.NoError(t, err)
	forward, err := NewForward(f.ctx, f.scene, f.materials)
	require.NoError(t, err)
	oit, err := NewOIT(f.ctx, f.scene, f.materials)
	require.NoError(t, err)
	sm := NewShaderMaterial(f.ctx, f.scene, f.materials)

	passes := []Pass{depth, gbuffer, lighting, forward, oit, sm}
	cmd := f.list(t)
	for _, p := range passes {
		require.NoError(t, p.Resize(cmd, testExtent))
	}
	assert.Greater(t, f.dev.Live(), before)
	for _, p := range passes {
		p.Destroy()
	}
	assert.Equal(t, before, f.dev.Live())
}
