package pipeline

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
)

// Template holds the fixed-function configuration shared by every pipeline a pass creates. The shader
// module, the descriptor layouts and the cull mode vary per pipeline and are supplied by Describe.
type Template struct {
	// key prefixes the label of every pipeline built from the template
	key string

	vertexEntry   string
	fragmentEntry string
	vertex        []rhi.VertexLayout
	colorTargets  []rhi.ColorTarget
	samples       uint32
	cullMode      rhi.CullMode

	// The following properties describe the depth/stencil state and are only used when depthFormat is set.

	depthFormat       rhi.Format
	depthTestEnabled  bool
	depthWriteEnabled bool
	depthCompare      rhi.CompareOp
	depthBias         int32
	depthBiasSlope    float32
	stencil           rhi.StencilState
}

// NewTemplate is the entry point to create a new Template. Without options the template describes a
// vertex and fragment pipeline with no vertex buffers, no color targets, no depth attachment and
// back-face culling.
//
// Parameters:
//   - key: the label prefix of the pipelines built from the template
//   - opts: a variadic list of TemplateBuilderOption functions to configure the template
//
// Returns:
//   - *Template: the template
func NewTemplate(key string, opts ...TemplateBuilderOption) *Template {
	t := &Template{
		key:               key,
		vertexEntry:       "vs_main",
		fragmentEntry:     "fs_main",
		samples:           1,
		cullMode:          rhi.CullBack,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		depthCompare:      rhi.CompareLess,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Key returns the label prefix of the template.
func (t *Template) Key() string { return t.key }

// CullMode returns the cull mode used when a pipeline does not carry a material's.
func (t *Template) CullMode() rhi.CullMode { return t.cullMode }

// HasDepth reports whether pipelines built from the template use a depth attachment.
func (t *Template) HasDepth() bool { return t.depthFormat != rhi.FormatUndefined }

// Describe builds the pipeline description of one shader module.
//
// Parameters:
//   - label: the label suffix of the pipeline
//   - module: the compiled shader
//   - layouts: the descriptor layouts, in set order
//   - cull: the cull mode of the pipeline
//
// Returns:
//   - rhi.GraphicPipelineDesc: the description
func (t *Template) Describe(label string, module rhi.ShaderModule, layouts []rhi.DescriptorLayout, cull rhi.CullMode) rhi.GraphicPipelineDesc {
	desc := rhi.GraphicPipelineDesc{
		Label:         t.key + "/" + label,
		Shader:        module,
		VertexEntry:   t.vertexEntry,
		FragmentEntry: t.fragmentEntry,
		Vertex:        append([]rhi.VertexLayout(nil), t.vertex...),
		Layouts:       append([]rhi.DescriptorLayout(nil), layouts...),
		ColorTargets:  append([]rhi.ColorTarget(nil), t.colorTargets...),
		Cull:          cull,
		Samples:       t.samples,
	}
	if t.HasDepth() {
		desc.Depth = &rhi.DepthState{
			Format:    t.depthFormat,
			Test:      t.depthTestEnabled,
			Write:     t.depthWriteEnabled,
			Compare:   t.depthCompare,
			Bias:      t.depthBias,
			SlopeBias: t.depthBiasSlope,
			Stencil:   t.stencil,
		}
	}
	return desc
}

// AlphaBlend is the conventional source-over blend state.
var AlphaBlend = rhi.BlendState{
	Enabled:  true,
	SrcColor: rhi.BlendSrcAlpha,
	DstColor: rhi.BlendOneMinusSrcAlpha,
	ColorOp:  rhi.BlendOpAdd,
	SrcAlpha: rhi.BlendOne,
	DstAlpha: rhi.BlendOneMinusSrcAlpha,
	AlphaOp:  rhi.BlendOpAdd,
}

// Additive sums source and destination on every channel.
var Additive = rhi.BlendState{
	Enabled:  true,
	SrcColor: rhi.BlendOne,
	DstColor: rhi.BlendOne,
	ColorOp:  rhi.BlendOpAdd,
	SrcAlpha: rhi.BlendOne,
	DstAlpha: rhi.BlendOne,
	AlphaOp:  rhi.BlendOpAdd,
}
