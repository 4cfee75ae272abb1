package material

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
)

// MaterialBuilderOption configures a material in NewMaterial.
type MaterialBuilderOption func(*material)

// WithName sets the name used in labels and logs. Names need not be unique.
func WithName(name string) MaterialBuilderOption {
	return func(m *material) {
		m.name = name
	}
}

// WithBaseColor sets the linear RGBA albedo. Alpha below 1 only blends with TransparencyBlend.
func WithBaseColor(color [4]float32) MaterialBuilderOption {
	return func(m *material) {
		m.baseColor = color
	}
}

func WithEmissive(color [3]float32) MaterialBuilderOption {
	return func(m *material) {
		m.emissive = color
	}
}

func WithMetallic(metallic float32) MaterialBuilderOption {
	return func(m *material) {
		m.metallic = metallic
	}
}

func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(m *material) {
		m.roughness = roughness
	}
}

// WithAlphaCutoff sets the coverage below which opaque fragments are discarded.
func WithAlphaCutoff(cutoff float32) MaterialBuilderOption {
	return func(m *material) {
		m.alphaCutoff = cutoff
	}
}

// WithTransparency selects how alpha is composed. Transparency is part of the pipeline id, so
// otherwise identical opaque and blended materials land in different instance tables.
//
// Parameters:
//   - t: TransparencyNone for opaque, TransparencyBlend for order-independent blending
//
// Returns:
//   - MaterialBuilderOption: option function to apply
func WithTransparency(t Transparency) MaterialBuilderOption {
	return func(m *material) {
		m.transparency = t
	}
}

// WithCullMode sets which faces are discarded. Defaults to rhi.CullBack.
func WithCullMode(mode rhi.CullMode) MaterialBuilderOption {
	return func(m *material) {
		m.cullMode = mode
	}
}

// WithShader turns the material into a KindShader material drawn with the named shader. The shader
// must provide vs_main and fs_main entry points and is resolved through the renderer's shader cache.
//
// Parameters:
//   - name: the shader cache name
//
// Returns:
//   - MaterialBuilderOption: option function to apply
func WithShader(name string) MaterialBuilderOption {
	return func(m *material) {
		m.kind = KindShader
		m.shaderName = name
	}
}
