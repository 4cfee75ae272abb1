package pass

import (
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/scene"
)

// G-buffer target indices.
const (
	GBufferPosition = iota
	GBufferNormal
	GBufferAlbedo
	GBufferEmissive
	GBufferTargets
)

var gbufferFormats = [GBufferTargets]rhi.Format{
	GBufferPosition: rhi.FormatRGBA16Float,
	GBufferNormal:   rhi.FormatRGBA16Float,
	GBufferAlbedo:   rhi.FormatRGBA8Unorm,
	GBufferEmissive: rhi.FormatRGBA16Float,
}

var gbufferNames = [GBufferTargets]string{"position", "normal", "albedo", "emissive"}

// GBuffer writes view-space position, normal and roughness, albedo and metallic, and emissive color
// for every opaque and transparent surface. Depth comes from the pre-pass and is only tested.
type GBuffer struct {
	geometry
	targets [GBufferTargets][]*Attachment
}

// NewGBuffer creates the G-buffer pass.
//
// Parameters:
//   - ctx: the pass context
//   - sc: the scene whose opaque and transparent tables are drawn
//   - materials: resolves the cull mode of every pipeline id
//
// Returns:
//   - *GBuffer: the pass
func NewGBuffer(ctx Context, sc scene.Scene, materials material.Pipelines) *GBuffer {
	opts := []pipeline.TemplateBuilderOption{
		pipeline.WithVertexLayouts(mesh.VertexLayout()),
		pipeline.WithDepthFormat(ctx.Config.DepthStencilFormat),
		pipeline.WithDepthWriteEnabled(false),
		pipeline.WithDepthCompare(rhi.CompareLessEqual),
	}
	for _, f := range gbufferFormats {
		opts = append(opts, pipeline.WithColorTarget(f, rhi.BlendState{}))
	}
	tmpl := pipeline.NewTemplate("gbuffer", opts...)
	return &GBuffer{geometry: newGeometry(ctx, "gbuffer", sc, materials, "gbuffer", tmpl, nil,
		instance_table.CategoryOpaque, instance_table.CategoryTransparent)}
}

// Resize recreates the four per-frame targets.
func (g *GBuffer) Resize(cmd rhi.CommandList, extent Extent) error {
	changed, err := g.resized(extent)
	if err != nil || !changed {
		return err
	}
	for i := range g.targets {
		g.retireAttachments(g.targets[i])
		g.targets[i], err = g.createTargets(cmd, gbufferNames[i], gbufferFormats[i], rhi.StateShaderRead)
		if err != nil {
			return err
		}
	}
	return nil
}

// Render draws opaque then transparent tables into the G-buffer.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//   - depth: the depth/stencil attachment written by the pre-pass
//
// Returns:
//   - error: ErrNotResized before the first Resize
func (g *GBuffer) Render(cmd rhi.CommandList, frame uint64, depth *Attachment) error {
	if g.targets[0] == nil {
		return ErrNotResized
	}
	slot := g.slot(frame)
	colors := make([]rhi.ColorAttachment, GBufferTargets)
	for i := range g.targets {
		t := g.targets[i][slot]
		t.Transition(cmd, rhi.StateRenderTarget)
		colors[i] = rhi.ColorAttachment{Image: t.Image, Load: rhi.LoadOpClear, Store: rhi.StoreOpStore}
	}
	depth.Transition(cmd, rhi.StateDepthStencilRead)
	cmd.BeginRendering(rhi.RenderingInfo{
		Label:  g.label("render"),
		Width:  g.extent.Width,
		Height: g.extent.Height,
		Colors: colors,
		Depth: &rhi.DepthAttachment{
			Image:        depth.Image,
			DepthLoad:    rhi.LoadOpLoad,
			DepthStore:   rhi.StoreOpStore,
			StencilLoad:  rhi.LoadOpLoad,
			StencilStore: rhi.StoreOpStore,
			ReadOnly:     true,
		},
	})
	g.setViewport(cmd)
	bind := g.bind(frame)
	g.scene.DrawOpaques(cmd, bind)
	g.scene.DrawTransparent(cmd, bind)
	cmd.EndRendering()
	for i := range g.targets {
		g.targets[i][slot].Transition(cmd, rhi.StateShaderRead)
	}
	return nil
}

// Targets returns the four attachments of a frame in G-buffer index order.
func (g *GBuffer) Targets(frame uint64) [GBufferTargets]*Attachment {
	var out [GBufferTargets]*Attachment
	if g.targets[0] == nil {
		return out
	}
	slot := g.slot(frame)
	for i := range g.targets {
		out[i] = g.targets[i][slot]
	}
	return out
}

// Destroy releases the targets and pipelines.
func (g *GBuffer) Destroy() {
	for i := range g.targets {
		g.retireAttachments(g.targets[i])
		g.targets[i] = nil
	}
	g.destroyPipelines()
}
