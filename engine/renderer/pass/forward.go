package pass

import (
	"strconv"

	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/cockroachdb/errors"
)

// Forward is the forward color pass: every opaque surface is shaded directly against the scene lights,
// with depth already resolved by the pre-pass.
type Forward struct {
	geometry
	aoLayout rhi.DescriptorLayout
	aoSets   []rhi.DescriptorSet
	outputs  []*Attachment
}

// NewForward creates the forward color pass.
//
// Parameters:
//   - ctx: the pass context
//   - sc: the scene whose opaque tables are drawn
//   - materials: resolves the cull mode of every pipeline id
//
// Returns:
//   - *Forward: the pass
//   - error: a descriptor creation error
func NewForward(ctx Context, sc scene.Scene, materials material.Pipelines) (*Forward, error) {
	aoLayout, err := ctx.Device.CreateDescriptorLayout(rhi.DescriptorLayoutDesc{
		Label:    "forward/ao",
		Bindings: []rhi.DescriptorBinding{{Binding: 0, Type: rhi.DescriptorSampledImage, Stages: rhi.StageFragment}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "forward: creating ao layout")
	}
	tmpl := pipeline.NewTemplate("forward",
		pipeline.WithVertexLayouts(mesh.VertexLayout()),
		pipeline.WithColorTarget(ctx.Config.ColorFormat, rhi.BlendState{}),
		pipeline.WithDepthFormat(ctx.Config.DepthStencilFormat),
		pipeline.WithDepthWriteEnabled(false),
		pipeline.WithDepthCompare(rhi.CompareLessEqual),
	)
	f := &Forward{
		geometry: newGeometry(ctx, "forward", sc, materials, "forward", tmpl, []rhi.DescriptorLayout{aoLayout}, instance_table.CategoryOpaque),
		aoLayout: aoLayout,
	}
	for i := range f.frames() {
		set, err := ctx.Device.CreateDescriptorSet(aoLayout, f.label("ao", strconv.Itoa(i)))
		if err != nil {
			f.Destroy()
			return nil, errors.Wrap(err, "forward: creating ao set")
		}
		f.aoSets = append(f.aoSets, set)
	}
	return f, nil
}

// Resize recreates the per-frame color outputs.
func (f *Forward) Resize(cmd rhi.CommandList, extent Extent) error {
	changed, err := f.resized(extent)
	if err != nil || !changed {
		return err
	}
	f.retireAttachments(f.outputs)
	f.outputs, err = f.createTargets(cmd, "color", f.cfg.ColorFormat, rhi.StateShaderRead)
	return err
}

// Render clears the color output and shades every opaque table.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//   - depth: the pre-pass depth/stencil attachment, tested read-only
//   - ao: the ambient occlusion map, or nil
//
// Returns:
//   - error: ErrNotResized before the first Resize, or a descriptor error
func (f *Forward) Render(cmd rhi.CommandList, frame uint64, depth, ao *Attachment) error {
	if f.outputs == nil {
		return ErrNotResized
	}
	f.fb.Bootstrap(cmd)
	if ao == nil {
		ao = f.fb.Color
	}
	slot := f.slot(frame)
	set := f.aoSets[slot]
	ao.Transition(cmd, rhi.StateShaderRead)
	set.BindImage(0, ao.Image)
	if err := set.Update(); err != nil {
		return errors.Wrap(err, "forward: updating ao set")
	}

	out := f.outputs[slot]
	out.Transition(cmd, rhi.StateRenderTarget)
	depth.Transition(cmd, rhi.StateDepthStencilRead)
	cmd.BeginRendering(rhi.RenderingInfo{
		Label:  f.label("render"),
		Width:  f.extent.Width,
		Height: f.extent.Height,
		Colors: []rhi.ColorAttachment{{Image: out.Image, Load: rhi.LoadOpClear, Store: rhi.StoreOpStore, Clear: f.cfg.ClearColor}},
		Depth: &rhi.DepthAttachment{
			Image:        depth.Image,
			DepthLoad:    rhi.LoadOpLoad,
			DepthStore:   rhi.StoreOpStore,
			StencilLoad:  rhi.LoadOpLoad,
			StencilStore: rhi.StoreOpStore,
			ReadOnly:     true,
		},
	})
	f.setViewport(cmd)
	f.scene.DrawOpaques(cmd, f.bind(frame, set))
	cmd.EndRendering()
	out.Transition(cmd, rhi.StateShaderRead)
	return nil
}

// Output returns the color output of a frame, or nil before the first Resize.
func (f *Forward) Output(frame uint64) *Attachment {
	if f.outputs == nil {
		return nil
	}
	return f.outputs[f.slot(frame)]
}

// Destroy releases the outputs, ao sets and pipelines.
func (f *Forward) Destroy() {
	f.retireAttachments(f.outputs)
	f.outputs = nil
	for _, s := range f.aoSets {
		f.retire(s)
	}
	f.aoSets = nil
	f.destroyPipelines()
	if f.aoLayout != nil {
		f.retire(f.aoLayout)
		f.aoLayout = nil
	}
}
