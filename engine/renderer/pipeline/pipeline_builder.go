package pipeline

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
)

// TemplateBuilderOption is a functional option used to configure a Template during construction.
type TemplateBuilderOption func(*Template)

// WithEntryPoints sets the shader entry points. An empty fragment entry builds a depth-only pipeline.
//
// Parameters:
//   - vertex: the vertex entry point
//   - fragment: the fragment entry point, or "" for none
//
// Returns:
//   - TemplateBuilderOption: a function that sets the entry points of the template
func WithEntryPoints(vertex, fragment string) TemplateBuilderOption {
	return func(t *Template) {
		t.vertexEntry = vertex
		t.fragmentEntry = fragment
	}
}

// WithVertexLayouts sets the vertex buffer layouts. Fullscreen pipelines use none.
//
// Parameters:
//   - layouts: the vertex buffer layouts, in slot order
//
// Returns:
//   - TemplateBuilderOption: a function that sets the vertex layouts of the template
func WithVertexLayouts(layouts ...rhi.VertexLayout) TemplateBuilderOption {
	return func(t *Template) {
		t.vertex = layouts
	}
}

// WithColorTarget appends a color target writing every channel.
//
// Parameters:
//   - format: the attachment format
//   - blend: the blend state of the target; the zero value disables blending
//
// Returns:
//   - TemplateBuilderOption: a function that appends a color target to the template
func WithColorTarget(format rhi.Format, blend rhi.BlendState) TemplateBuilderOption {
	return func(t *Template) {
		t.colorTargets = append(t.colorTargets, rhi.ColorTarget{Format: format, Blend: blend, WriteMask: rhi.ColorWriteAll})
	}
}

// WithWriteMask sets the color write mask of the most recently added color target.
//
// Parameters:
//   - writeMask: the channel mask
//
// Returns:
//   - TemplateBuilderOption: a function that sets the write mask of the last color target
func WithWriteMask(writeMask uint32) TemplateBuilderOption {
	return func(t *Template) {
		if n := len(t.colorTargets); n > 0 {
			t.colorTargets[n-1].WriteMask = writeMask
		}
	}
}

// WithDepthFormat enables the depth attachment.
//
// Parameters:
//   - format: the depth attachment format
//
// Returns:
//   - TemplateBuilderOption: a function that sets the depth format of the template
func WithDepthFormat(format rhi.Format) TemplateBuilderOption {
	return func(t *Template) {
		t.depthFormat = format
	}
}

// WithDepthTestEnabled sets whether depth testing is enabled for this template.
//
// Parameters:
//   - enabled: a boolean indicating whether depth testing should be enabled
//
// Returns:
//   - TemplateBuilderOption: a function that sets the depth test enabled state for this template
func WithDepthTestEnabled(enabled bool) TemplateBuilderOption {
	return func(t *Template) {
		t.depthTestEnabled = enabled
	}
}

// WithDepthWriteEnabled sets whether depth writing is enabled for this template.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - TemplateBuilderOption: a function that sets the depth write enabled state for this template
func WithDepthWriteEnabled(enabled bool) TemplateBuilderOption {
	return func(t *Template) {
		t.depthWriteEnabled = enabled
	}
}

// WithDepthCompare sets the depth comparison.
//
// Parameters:
//   - op: the comparison a fragment must pass against the stored depth
//
// Returns:
//   - TemplateBuilderOption: a function that sets the depth comparison for this template
func WithDepthCompare(op rhi.CompareOp) TemplateBuilderOption {
	return func(t *Template) {
		t.depthCompare = op
	}
}

// WithDepthBias sets the depth bias parameters for this template.
//
// Parameters:
//   - bias: the constant depth bias to apply
//   - slopeScale: the slope scale depth bias to apply
//
// Returns:
//   - TemplateBuilderOption: a function that sets the depth bias parameters for this template
func WithDepthBias(bias int32, slopeScale float32) TemplateBuilderOption {
	return func(t *Template) {
		t.depthBias = bias
		t.depthBiasSlope = slopeScale
	}
}

// WithStencil sets the stencil test.
//
// Parameters:
//   - stencil: the stencil state applied to both faces
//
// Returns:
//   - TemplateBuilderOption: a function that sets the stencil state for this template
func WithStencil(stencil rhi.StencilState) TemplateBuilderOption {
	return func(t *Template) {
		t.stencil = stencil
	}
}

// WithCullMode sets the default cull mode for this template.
//
// Parameters:
//   - mode: the cull mode used by pipelines that do not carry a material's
//
// Returns:
//   - TemplateBuilderOption: a function that sets the cull mode for this template
func WithCullMode(mode rhi.CullMode) TemplateBuilderOption {
	return func(t *Template) {
		t.cullMode = mode
	}
}

// WithSamples sets the multisample count.
//
// Parameters:
//   - samples: the sample count, 1 for no multisampling
//
// Returns:
//   - TemplateBuilderOption: a function that sets the sample count for this template
func WithSamples(samples uint32) TemplateBuilderOption {
	return func(t *Template) {
		if samples > 0 {
			t.samples = samples
		}
	}
}
