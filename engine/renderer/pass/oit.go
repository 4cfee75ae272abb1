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

// Accumulation and revealage formats.
const (
	AccumFormat  = rhi.FormatRGBA16Float
	RevealFormat = rhi.FormatR16Float
)

// revealBlend multiplies the destination by one minus the source on every channel.
var revealBlend = rhi.BlendState{
	Enabled:  true,
	SrcColor: rhi.BlendZero,
	DstColor: rhi.BlendOneMinusSrcColor,
	ColorOp:  rhi.BlendOpAdd,
	SrcAlpha: rhi.BlendZero,
	DstAlpha: rhi.BlendOneMinusSrcAlpha,
	AlphaOp:  rhi.BlendOpAdd,
}

// compositeBlend weighs the averaged transparent color against the existing color by revealage.
var compositeBlend = rhi.BlendState{
	Enabled:  true,
	SrcColor: rhi.BlendOneMinusSrcAlpha,
	DstColor: rhi.BlendSrcAlpha,
	ColorOp:  rhi.BlendOpAdd,
	SrcAlpha: rhi.BlendOneMinusSrcAlpha,
	DstAlpha: rhi.BlendSrcAlpha,
	AlphaOp:  rhi.BlendOpAdd,
}

// OIT renders transparent surfaces with weighted blended order-independent transparency: an
// accumulation subpass sums weighted color and revealage, then a fullscreen subpass composites the
// average over the color output.
type OIT struct {
	geometry
	accum  []*Attachment
	reveal []*Attachment

	compositeLayout rhi.DescriptorLayout
	compositeSets   []rhi.DescriptorSet
	composite       *pipeline.Cache
}

// NewOIT creates the transparency pass.
//
// Parameters:
//   - ctx: the pass context
//   - sc: the scene whose transparent tables are drawn
//   - materials: resolves the cull mode of every pipeline id
//
// Returns:
//   - *OIT: the pass
//   - error: a descriptor creation error
func NewOIT(ctx Context, sc scene.Scene, materials material.Pipelines) (*OIT, error) {
	accumTmpl := pipeline.NewTemplate("oit-accum",
		pipeline.WithVertexLayouts(mesh.VertexLayout()),
		pipeline.WithColorTarget(AccumFormat, pipeline.Additive),
		pipeline.WithColorTarget(RevealFormat, revealBlend),
		pipeline.WithDepthFormat(ctx.Config.DepthStencilFormat),
		pipeline.WithDepthWriteEnabled(false),
		pipeline.WithDepthCompare(rhi.CompareLessEqual),
	)
	o := &OIT{geometry: newGeometry(ctx, "oit", sc, materials, "oit_accum", accumTmpl, nil, instance_table.CategoryTransparent)}

	var err error
	o.compositeLayout, err = ctx.Device.CreateDescriptorLayout(rhi.DescriptorLayoutDesc{
		Label: o.label("composite"),
		Bindings: []rhi.DescriptorBinding{
			{Binding: 0, Type: rhi.DescriptorSampledImage, Stages: rhi.StageFragment},
			{Binding: 1, Type: rhi.DescriptorSampledImage, Stages: rhi.StageFragment},
		},
	})
	if err != nil {
		o.destroyPipelines()
		return nil, errors.Wrap(err, "oit: creating composite layout")
	}
	for i := range o.frames() {
		set, err := ctx.Device.CreateDescriptorSet(o.compositeLayout, o.label("composite", strconv.Itoa(i)))
		if err != nil {
			o.Destroy()
			return nil, errors.Wrap(err, "oit: creating composite set")
		}
		o.compositeSets = append(o.compositeSets, set)
	}
	compositeTmpl := pipeline.NewTemplate("oit-composite",
		pipeline.WithCullMode(rhi.CullNone),
		pipeline.WithColorTarget(ctx.Config.ColorFormat, compositeBlend),
	)
	o.composite = pipeline.NewCache(ctx.Device, ctx.Shaders, compositeTmpl, []rhi.DescriptorLayout{o.compositeLayout},
		pipeline.WithRecycleBin(ctx.Bin), pipeline.WithLogger(o.log))
	return o, nil
}

// UpdatePipelines builds the accumulation pipeline of every transparent table and the composite pipeline.
func (o *OIT) UpdatePipelines() error {
	if err := o.geometry.UpdatePipelines(); err != nil {
		return err
	}
	_, err := o.composite.Ensure(0, "oit_composite", rhi.CullNone)
	return err
}

// Resize recreates the accumulation and revealage targets.
func (o *OIT) Resize(cmd rhi.CommandList, extent Extent) error {
	changed, err := o.resized(extent)
	if err != nil || !changed {
		return err
	}
	o.retireAttachments(o.accum)
	o.retireAttachments(o.reveal)
	o.reveal = nil
	if o.accum, err = o.createTargets(cmd, "accum", AccumFormat, rhi.StateShaderRead); err != nil {
		return err
	}
	o.reveal, err = o.createTargets(cmd, "reveal", RevealFormat, rhi.StateShaderRead)
	return err
}

// Render accumulates every transparent table and composites the result over color. Nothing is
// recorded when no transparent table has draw commands.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//   - color: the color output the composite blends into
//   - depth: the depth/stencil attachment, tested read-only
//
// Returns:
//   - error: ErrNotResized before the first Resize, or a pipeline or descriptor error
func (o *OIT) Render(cmd rhi.CommandList, frame uint64, color, depth *Attachment) error {
	if o.accum == nil || o.reveal == nil {
		return ErrNotResized
	}
	if !o.hasDraws(instance_table.CategoryTransparent) {
		return nil
	}
	composite, err := o.composite.Ensure(0, "oit_composite", rhi.CullNone)
	if err != nil {
		return err
	}
	slot := o.slot(frame)
	accum, reveal := o.accum[slot], o.reveal[slot]

	accum.Transition(cmd, rhi.StateRenderTarget)
	reveal.Transition(cmd, rhi.StateRenderTarget)
	depth.Transition(cmd, rhi.StateDepthStencilRead)
	cmd.BeginRendering(rhi.RenderingInfo{
		Label:  o.label("accumulate"),
		Width:  o.extent.Width,
		Height: o.extent.Height,
		Colors: []rhi.ColorAttachment{
			{Image: accum.Image, Load: rhi.LoadOpClear, Store: rhi.StoreOpStore},
			{Image: reveal.Image, Load: rhi.LoadOpClear, Store: rhi.StoreOpStore, Clear: [4]float64{1, 1, 1, 1}},
		},
		Depth: &rhi.DepthAttachment{
			Image:        depth.Image,
			DepthLoad:    rhi.LoadOpLoad,
			DepthStore:   rhi.StoreOpStore,
			StencilLoad:  rhi.LoadOpLoad,
			StencilStore: rhi.StoreOpStore,
			ReadOnly:     true,
		},
	})
	o.setViewport(cmd)
	o.scene.DrawTransparent(cmd, o.bind(frame))
	cmd.EndRendering()
	accum.Transition(cmd, rhi.StateShaderRead)
	reveal.Transition(cmd, rhi.StateShaderRead)

	set := o.compositeSets[slot]
	set.BindImage(0, accum.Image)
	set.BindImage(1, reveal.Image)
	if err := set.Update(); err != nil {
		return errors.Wrap(err, "oit: updating composite set")
	}
	color.Transition(cmd, rhi.StateRenderTarget)
	cmd.BeginRendering(rhi.RenderingInfo{
		Label:  o.label("composite"),
		Width:  o.extent.Width,
		Height: o.extent.Height,
		Colors: []rhi.ColorAttachment{{Image: color.Image, Load: rhi.LoadOpLoad, Store: rhi.StoreOpStore}},
	})
	o.setViewport(cmd)
	cmd.BindPipeline(composite)
	cmd.BindDescriptors(0, set)
	cmd.Draw(3, 1, 0, 0)
	cmd.EndRendering()
	color.Transition(cmd, rhi.StateShaderRead)
	return nil
}

// Destroy releases the targets, sets, layout and pipelines.
func (o *OIT) Destroy() {
	o.retireAttachments(o.accum)
	o.retireAttachments(o.reveal)
	o.accum, o.reveal = nil, nil
	for _, s := range o.compositeSets {
		o.retire(s)
	}
	o.compositeSets = nil
	if o.composite != nil {
		o.composite.Destroy()
	}
	o.destroyPipelines()
	if o.compositeLayout != nil {
		o.retire(o.compositeLayout)
		o.compositeLayout = nil
	}
}
