package pass

import (
	"strconv"

	"github.com/Carmen-Shannon/prism/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/cockroachdb/errors"
)

// Lighting binding of the ambient occlusion input; the G-buffer targets take bindings 0 to 3.
const lightingBindingAO = GBufferTargets

// Lighting is the deferred color pass. It shades every pixel the depth pre-pass marked in the stencil
// aspect from the G-buffer, the scene lights and the shadow maps.
type Lighting struct {
	base
	scene     scene.Scene
	layout    rhi.DescriptorLayout
	sets      []rhi.DescriptorSet
	pipelines *pipeline.Cache
	outputs   []*Attachment
}

// NewLighting creates the lighting pass.
//
// Parameters:
//   - ctx: the pass context
//   - sc: the scene bound at group 0
//
// Returns:
//   - *Lighting: the pass
//   - error: a descriptor creation error
func NewLighting(ctx Context, sc scene.Scene) (*Lighting, error) {
	l := &Lighting{base: newBase(ctx, "lighting"), scene: sc}

	bindings := make([]rhi.DescriptorBinding, 0, GBufferTargets+1)
	for i := range uint32(GBufferTargets + 1) {
		bindings = append(bindings, rhi.DescriptorBinding{Binding: i, Type: rhi.DescriptorSampledImage, Stages: rhi.StageFragment})
	}
	var err error
	l.layout, err = ctx.Device.CreateDescriptorLayout(rhi.DescriptorLayoutDesc{Label: l.label("layout"), Bindings: bindings})
	if err != nil {
		return nil, errors.Wrap(err, "lighting: creating layout")
	}
	for i := range l.frames() {
		set, err := ctx.Device.CreateDescriptorSet(l.layout, l.label("set", strconv.Itoa(i)))
		if err != nil {
			l.Destroy()
			return nil, errors.Wrap(err, "lighting: creating descriptor set")
		}
		l.sets = append(l.sets, set)
	}

	tmpl := pipeline.NewTemplate("lighting",
		pipeline.WithCullMode(rhi.CullNone),
		pipeline.WithColorTarget(ctx.Config.ColorFormat, rhi.BlendState{}),
		pipeline.WithDepthFormat(ctx.Config.DepthStencilFormat),
		pipeline.WithDepthTestEnabled(false),
		pipeline.WithDepthWriteEnabled(false),
		pipeline.WithDepthCompare(rhi.CompareAlways),
		pipeline.WithStencil(rhi.StencilState{
			Enabled:     true,
			Compare:     rhi.CompareEqual,
			PassOp:      rhi.StencilKeep,
			FailOp:      rhi.StencilKeep,
			DepthFailOp: rhi.StencilKeep,
			ReadMask:    OpaqueStencil,
		}),
	)
	l.pipelines = pipeline.NewCache(ctx.Device, ctx.Shaders, tmpl, []rhi.DescriptorLayout{sc.Layout(), l.layout},
		pipeline.WithRecycleBin(ctx.Bin), pipeline.WithLogger(l.log))
	return l, nil
}

// UpdatePipelines builds the fullscreen lighting pipeline.
func (l *Lighting) UpdatePipelines() error {
	_, err := l.pipelines.Ensure(0, "lighting", rhi.CullNone)
	return err
}

// Resize recreates the per-frame color outputs.
func (l *Lighting) Resize(cmd rhi.CommandList, extent Extent) error {
	changed, err := l.resized(extent)
	if err != nil || !changed {
		return err
	}
	l.retireAttachments(l.outputs)
	l.outputs, err = l.createTargets(cmd, "color", l.cfg.ColorFormat, rhi.StateShaderRead)
	return err
}

// Render shades the frame into the color output.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//   - gbuffer: the G-buffer attachments of the frame
//   - depth: the pre-pass depth/stencil attachment, stencil-tested read-only
//   - ao: the ambient occlusion map, or nil
//
// Returns:
//   - error: ErrNotResized before the first Resize, or a pipeline or descriptor error
func (l *Lighting) Render(cmd rhi.CommandList, frame uint64, gbuffer [GBufferTargets]*Attachment, depth, ao *Attachment) error {
	if l.outputs == nil {
		return ErrNotResized
	}
	p, err := l.pipelines.Ensure(0, "lighting", rhi.CullNone)
	if err != nil {
		return err
	}
	l.fb.Bootstrap(cmd)
	if ao == nil {
		ao = l.fb.Color
	}

	slot := l.slot(frame)
	set := l.sets[slot]
	for i, t := range gbuffer {
		if t == nil {
			return errors.Wrapf(ErrNotResized, "lighting: missing %s target", gbufferNames[i])
		}
		t.Transition(cmd, rhi.StateShaderRead)
		set.BindImage(uint32(i), t.Image)
	}
	ao.Transition(cmd, rhi.StateShaderRead)
	set.BindImage(lightingBindingAO, ao.Image)
	if err := set.Update(); err != nil {
		return errors.Wrap(err, "lighting: updating descriptors")
	}

	out := l.outputs[slot]
	out.Transition(cmd, rhi.StateRenderTarget)
	depth.Transition(cmd, rhi.StateDepthStencilRead)
	cmd.BeginRendering(rhi.RenderingInfo{
		Label:  l.label("render"),
		Width:  l.extent.Width,
		Height: l.extent.Height,
		Colors: []rhi.ColorAttachment{{Image: out.Image, Load: rhi.LoadOpClear, Store: rhi.StoreOpStore, Clear: l.cfg.ClearColor}},
		Depth: &rhi.DepthAttachment{
			Image:        depth.Image,
			DepthLoad:    rhi.LoadOpLoad,
			DepthStore:   rhi.StoreOpStore,
			StencilLoad:  rhi.LoadOpLoad,
			StencilStore: rhi.StoreOpStore,
			ReadOnly:     true,
		},
	})
	l.setViewport(cmd)
	cmd.SetStencilReference(OpaqueStencil)
	cmd.BindPipeline(p)
	cmd.BindDescriptors(0, l.scene.DescriptorSet(frame), set)
	cmd.Draw(3, 1, 0, 0)
	cmd.EndRendering()
	out.Transition(cmd, rhi.StateShaderRead)
	return nil
}

// Output returns the color output of a frame, or nil before the first Resize.
func (l *Lighting) Output(frame uint64) *Attachment {
	if l.outputs == nil {
		return nil
	}
	return l.outputs[l.slot(frame)]
}

// Destroy releases the outputs, sets, layout and pipeline.
func (l *Lighting) Destroy() {
	l.retireAttachments(l.outputs)
	l.outputs = nil
	for _, s := range l.sets {
		l.retire(s)
	}
	l.sets = nil
	if l.pipelines != nil {
		l.pipelines.Destroy()
	}
	if l.layout != nil {
		l.retire(l.layout)
		l.layout = nil
	}
}
