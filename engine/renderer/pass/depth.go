package pass

import (
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/scene"
)

// OpaqueStencil is the stencil value the depth pre-pass writes wherever an opaque surface was drawn.
const OpaqueStencil uint32 = 1

// Depth is the depth pre-pass. It writes depth and marks opaque pixels in the stencil aspect, which
// lets the lighting pass skip the background.
type Depth struct {
	geometry
	targets []*Attachment
}

// NewDepth creates the depth pre-pass.
//
// Parameters:
//   - ctx: the pass context
//   - sc: the scene whose opaque tables are drawn
//   - materials: resolves the cull mode of every pipeline id
//
// Returns:
//   - *Depth: the pass
func NewDepth(ctx Context, sc scene.Scene, materials material.Pipelines) *Depth {
	tmpl := pipeline.NewTemplate("depth",
		pipeline.WithEntryPoints("vs_main", ""),
		pipeline.WithVertexLayouts(mesh.VertexLayout()),
		pipeline.WithDepthFormat(ctx.Config.DepthStencilFormat),
		pipeline.WithDepthCompare(rhi.CompareLess),
		pipeline.WithStencil(rhi.StencilState{
			Enabled:     true,
			Compare:     rhi.CompareAlways,
			PassOp:      rhi.StencilReplace,
			FailOp:      rhi.StencilKeep,
			DepthFailOp: rhi.StencilKeep,
			ReadMask:    0xFF,
			WriteMask:   OpaqueStencil,
		}),
	)
	return &Depth{geometry: newGeometry(ctx, "depth", sc, materials, "depth", tmpl, nil, instance_table.CategoryOpaque)}
}

// Resize recreates the per-frame depth/stencil images.
func (d *Depth) Resize(cmd rhi.CommandList, extent Extent) error {
	changed, err := d.resized(extent)
	if err != nil || !changed {
		return err
	}
	d.retireAttachments(d.targets)
	d.targets, err = d.createTargets(cmd, "depth", d.cfg.DepthStencilFormat, rhi.StateDepthStencilRead)
	return err
}

// Render clears depth and stencil and draws every opaque table.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//
// Returns:
//   - error: ErrNotResized before the first Resize
func (d *Depth) Render(cmd rhi.CommandList, frame uint64) error {
	if d.targets == nil {
		return ErrNotResized
	}
	target := d.targets[d.slot(frame)]
	target.Transition(cmd, rhi.StateDepthStencilWrite)
	cmd.BeginRendering(rhi.RenderingInfo{
		Label:  d.label("render"),
		Width:  d.extent.Width,
		Height: d.extent.Height,
		Depth: &rhi.DepthAttachment{
			Image:        target.Image,
			DepthLoad:    rhi.LoadOpClear,
			DepthStore:   rhi.StoreOpStore,
			ClearDepth:   1,
			StencilLoad:  rhi.LoadOpClear,
			StencilStore: rhi.StoreOpStore,
		},
	})
	d.setViewport(cmd)
	cmd.SetStencilReference(OpaqueStencil)
	d.scene.DrawOpaques(cmd, d.bind(frame))
	cmd.EndRendering()
	target.Transition(cmd, rhi.StateDepthStencilRead)
	return nil
}

// Output returns the depth/stencil attachment of a frame, or nil before the first Resize.
func (d *Depth) Output(frame uint64) *Attachment {
	if d.targets == nil {
		return nil
	}
	return d.targets[d.slot(frame)]
}

// Destroy releases the depth images and pipelines.
func (d *Depth) Destroy() {
	d.retireAttachments(d.targets)
	d.targets = nil
	d.destroyPipelines()
}
