package pass

import (
	"strconv"

	"github.com/Carmen-Shannon/prism/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cockroachdb/errors"
)

// Post-process group 0 bindings, shared by every fullscreen effect shader.
const (
	PostBindingParams uint32 = iota
	PostBindingSampler
	PostBindingColor
	PostBindingDepth
	PostBindingExtra
)

// Effect is one step of the post-processing chain. Custom effects registered with the renderer
// implement it too.
type Effect interface {
	Pass

	// Apply records the effect and returns its output. The output is never the color input.
	//
	// Parameters:
	//   - cmd: the command list
	//   - frame: the frame counter
	//   - color: the color produced by the previous step
	//   - depth: the frame's depth/stencil attachment
	//
	// Returns:
	//   - *Attachment: the effect output, in the shader-read state
	//   - error: a recording error
	Apply(cmd rhi.CommandList, frame uint64, color, depth *Attachment) (*Attachment, error)
}

// PostInputs are the textures a post-process samples. Missing inputs are replaced by fallbacks.
type PostInputs struct {
	Color *Attachment
	Depth *Attachment
	Extra *Attachment
}

// PostProcess is the shared base of fullscreen effects: one triangle draw, a uniform payload, up to
// three sampled inputs and an owned output per frame in flight.
type PostProcess struct {
	base
	shaderName string
	format     rhi.Format
	layout     rhi.DescriptorLayout
	sampler    rhi.Sampler
	uniforms   []rhi.Buffer
	sets       []rhi.DescriptorSet
	params     []byte
	pipelines  *pipeline.Cache
	outputs    []*Attachment
}

// NewPostProcess creates a fullscreen effect.
//
// Parameters:
//   - ctx: the pass context
//   - name: the pass name used in labels
//   - shaderName: the fragment shader, which must declare the shared post-process bindings
//   - format: the output format
//   - paramsSize: the size of the uniform payload in bytes
//   - blend: the blend state of the output target
//
// Returns:
//   - *PostProcess: the effect
//   - error: a buffer, sampler or descriptor creation error
func NewPostProcess(ctx Context, name, shaderName string, format rhi.Format, paramsSize uint64, blend rhi.BlendState) (*PostProcess, error) {
	p := &PostProcess{
		base:       newBase(ctx, name),
		shaderName: shaderName,
		format:     format,
		params:     make([]byte, paramsSize),
	}
	var err error
	p.layout, err = ctx.Device.CreateDescriptorLayout(rhi.DescriptorLayoutDesc{
		Label: p.label("layout"),
		Bindings: []rhi.DescriptorBinding{
			{Binding: PostBindingParams, Type: rhi.DescriptorUniformBuffer, Stages: rhi.StageFragment},
			{Binding: PostBindingSampler, Type: rhi.DescriptorSampler, Stages: rhi.StageFragment},
			{Binding: PostBindingColor, Type: rhi.DescriptorSampledImage, Stages: rhi.StageFragment},
			{Binding: PostBindingDepth, Type: rhi.DescriptorDepthImage, Stages: rhi.StageFragment},
			{Binding: PostBindingExtra, Type: rhi.DescriptorSampledImage, Stages: rhi.StageFragment},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: creating layout", name)
	}
	p.sampler, err = ctx.Device.CreateSampler(rhi.SamplerDesc{
		Label:     p.label("sampler"),
		MinFilter: rhi.FilterLinear,
		MagFilter: rhi.FilterLinear,
		Address:   rhi.AddressClampToEdge,
		Compare:   rhi.CompareNever,
	})
	if err != nil {
		p.Destroy()
		return nil, errors.Wrapf(err, "%s: creating sampler", name)
	}
	for i := range p.frames() {
		uniform, err := ctx.Device.CreateBuffer(rhi.BufferDesc{
			Label: p.label("params", strconv.Itoa(i)),
			Size:  max(paramsSize, GPUSmallParamsSize),
			Usage: rhi.BufferUsageUniform | rhi.BufferUsageCopyDst,
		})
		if err != nil {
			p.Destroy()
			return nil, errors.Wrapf(err, "%s: creating params buffer", name)
		}
		p.uniforms = append(p.uniforms, uniform)
		set, err := ctx.Device.CreateDescriptorSet(p.layout, p.label("set", strconv.Itoa(i)))
		if err != nil {
			p.Destroy()
			return nil, errors.Wrapf(err, "%s: creating descriptor set", name)
		}
		set.BindBuffer(PostBindingParams, uniform, 0, uniform.Size())
		set.BindSampler(PostBindingSampler, p.sampler)
		p.sets = append(p.sets, set)
	}
	tmpl := pipeline.NewTemplate(name,
		pipeline.WithCullMode(rhi.CullNone),
		pipeline.WithColorTarget(format, blend),
	)
	p.pipelines = pipeline.NewCache(ctx.Device, ctx.Shaders, tmpl, []rhi.DescriptorLayout{p.layout},
		pipeline.WithRecycleBin(ctx.Bin), pipeline.WithLogger(p.log))
	return p, nil
}

// SetParams replaces the uniform payload uploaded on every Render.
func (p *PostProcess) SetParams(data []byte) {
	copy(p.params, data)
}

// Params returns the current uniform payload.
func (p *PostProcess) Params() []byte { return p.params }

// UpdatePipelines builds the fullscreen pipeline.
func (p *PostProcess) UpdatePipelines() error {
	_, err := p.pipelines.Ensure(0, p.shaderName, rhi.CullNone)
	return err
}

// Resize recreates the per-frame outputs.
func (p *PostProcess) Resize(cmd rhi.CommandList, extent Extent) error {
	changed, err := p.resized(extent)
	if err != nil || !changed {
		return err
	}
	p.retireAttachments(p.outputs)
	p.outputs, err = p.createTargets(cmd, "output", p.format, rhi.StateShaderRead)
	return err
}

// Render draws the effect into its own output.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//   - in: the sampled inputs
//
// Returns:
//   - *Attachment: the output, in the shader-read state
//   - error: ErrNotResized before the first Resize, or a pipeline or descriptor error
func (p *PostProcess) Render(cmd rhi.CommandList, frame uint64, in PostInputs) (*Attachment, error) {
	if p.outputs == nil {
		return nil, ErrNotResized
	}
	out := p.outputs[p.slot(frame)]
	if err := p.RenderTo(cmd, frame, in, out); err != nil {
		return nil, err
	}
	out.Transition(cmd, rhi.StateShaderRead)
	return out, nil
}

// RenderTo draws the effect into target, which must have the effect's output format and must not be
// one of the inputs. The target is left in the render-target state.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//   - in: the sampled inputs
//   - target: the attachment written
//
// Returns:
//   - error: ErrNotResized before the first Resize, or a pipeline or descriptor error
func (p *PostProcess) RenderTo(cmd rhi.CommandList, frame uint64, in PostInputs, target *Attachment) error {
	if !p.extent.Valid() {
		return ErrNotResized
	}
	if target == in.Color || target == in.Extra {
		return errors.Newf("%s: output aliases an input", p.name)
	}
	pl, err := p.pipelines.Ensure(0, p.shaderName, rhi.CullNone)
	if err != nil {
		return err
	}
	p.fb.Bootstrap(cmd)
	color, depth, extra := in.Color, in.Depth, in.Extra
	if color == nil {
		color = p.fb.Color
	}
	if depth == nil {
		depth = p.fb.Depth
	}
	if extra == nil {
		extra = p.fb.Color
	}
	color.Transition(cmd, rhi.StateShaderRead)
	extra.Transition(cmd, rhi.StateShaderRead)
	depth.Transition(cmd, rhi.StateDepthStencilRead)

	slot := p.slot(frame)
	set := p.sets[slot]
	set.BindImage(PostBindingColor, color.Image)
	set.BindImage(PostBindingDepth, depth.Image)
	set.BindImage(PostBindingExtra, extra.Image)
	if err := set.Update(); err != nil {
		return errors.Wrapf(err, "%s: updating descriptors", p.name)
	}
	cmd.Upload(p.uniforms[slot], 0, p.params)

	target.Transition(cmd, rhi.StateRenderTarget)
	cmd.BeginRendering(rhi.RenderingInfo{
		Label:  p.label("render"),
		Width:  p.extent.Width,
		Height: p.extent.Height,
		Colors: []rhi.ColorAttachment{{Image: target.Image, Load: rhi.LoadOpClear, Store: rhi.StoreOpStore}},
	})
	p.setViewport(cmd)
	cmd.BindPipeline(pl)
	cmd.BindDescriptors(0, set)
	cmd.Draw(3, 1, 0, 0)
	cmd.EndRendering()
	return nil
}

// Output returns the output of a frame, or nil before the first Resize.
func (p *PostProcess) Output(frame uint64) *Attachment {
	if p.outputs == nil {
		return nil
	}
	return p.outputs[p.slot(frame)]
}

// Destroy releases every resource of the effect.
func (p *PostProcess) Destroy() {
	p.retireAttachments(p.outputs)
	p.outputs = nil
	for _, s := range p.sets {
		p.retire(s)
	}
	for _, u := range p.uniforms {
		p.retire(u)
	}
	p.sets, p.uniforms = nil, nil
	if p.pipelines != nil {
		p.pipelines.Destroy()
	}
	if p.sampler != nil {
		p.retire(p.sampler)
		p.sampler = nil
	}
	if p.layout != nil {
		p.retire(p.layout)
		p.layout = nil
	}
}
