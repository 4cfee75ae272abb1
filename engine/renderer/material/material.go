package material

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
)

// ID is the registry index of a material. It is also the index of the material's record in the GPU
// material buffer, which is what InstanceData.Material stores.
type ID uint32

// PipelineID groups every material that shares the same shader and fixed-function configuration.
// Materials with equal pipeline ids are drawn by the same pipeline. Zero means "not registered".
type PipelineID uint32

// Kind selects how a material is shaded.
type Kind uint8

const (
	// KindStandard materials are shaded by the built-in geometry and lighting passes.
	KindStandard Kind = iota

	// KindShader materials bring their own WGSL module and are drawn by the shader-material pass.
	KindShader
)

// Transparency selects how a material's alpha is composed.
type Transparency uint8

const (
	// TransparencyNone renders the material as opaque.
	TransparencyNone Transparency = iota

	// TransparencyBlend renders the material through the order-independent transparency pass.
	TransparencyBlend
)

// material is the implementation of the Material interface.
type material struct {
	name         string
	baseColor    [4]float32
	emissive     [3]float32
	metallic     float32
	roughness    float32
	alphaCutoff  float32
	kind         Kind
	shaderName   string
	transparency Transparency
	cullMode     rhi.CullMode
	pipelineID   PipelineID
}

// Material describes the surface properties of a mesh surface and the pipeline configuration it is
// drawn with.
//
// Surface properties are fixed at construction. The pipeline id is assigned when the material is
// added to a Registry: materials with the same kind, shader, cull mode and transparency share an id.
type Material interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// BaseColor retrieves the albedo RGBA color of the material. The alpha channel is the coverage
	// used by transparent materials.
	//
	// Returns:
	//   - [4]float32: the base color as RGBA values
	BaseColor() [4]float32

	// Emissive retrieves the emitted RGB radiance of the material.
	//
	// Returns:
	//   - [3]float32: the emissive color
	Emissive() [3]float32

	// Metallic retrieves the metallic factor of the material.
	// A value of 0.0 represents a dielectric surface, 1.0 represents a fully metallic surface.
	//
	// Returns:
	//   - float32: the metallic factor
	Metallic() float32

	// Roughness retrieves the roughness factor of the material.
	// A value of 0.0 represents a perfectly smooth surface, 1.0 represents a fully rough surface.
	//
	// Returns:
	//   - float32: the roughness factor
	Roughness() float32

	// Kind reports whether the material is standard or brings its own shader.
	//
	// Returns:
	//   - Kind: the material kind
	Kind() Kind

	// ShaderName retrieves the shader cache name used by KindShader materials. Empty for standard materials.
	//
	// Returns:
	//   - string: the shader name
	ShaderName() string

	// Transparency retrieves the transparency mode of the material.
	//
	// Returns:
	//   - Transparency: the transparency mode
	Transparency() Transparency

	// CullMode retrieves the faces the material's pipeline discards.
	//
	// Returns:
	//   - rhi.CullMode: the cull mode
	CullMode() rhi.CullMode

	// PipelineID retrieves the pipeline id assigned by the Registry, or zero if the material was never registered.
	//
	// Returns:
	//   - PipelineID: the pipeline id
	PipelineID() PipelineID

	// GPU packs the material into its shader-visible record.
	//
	// Returns:
	//   - GPUMaterial: the packed record
	GPU() GPUMaterial
}

var _ Material = &material{}

// NewMaterial creates a new Material instance configured with the provided options.
//
// Parameters:
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
func NewMaterial(options ...MaterialBuilderOption) Material {
	m := &material{
		baseColor:   [4]float32{1, 1, 1, 1},
		metallic:    0.0,
		roughness:   1.0,
		alphaCutoff: 0.0,
		cullMode:    rhi.CullBack,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *material) Name() string {
	return m.name
}

func (m *material) BaseColor() [4]float32 {
	return m.baseColor
}

func (m *material) Emissive() [3]float32 {
	return m.emissive
}

func (m *material) Metallic() float32 {
	return m.metallic
}

func (m *material) Roughness() float32 {
	return m.roughness
}

func (m *material) Kind() Kind {
	return m.kind
}

func (m *material) ShaderName() string {
	return m.shaderName
}

func (m *material) Transparency() Transparency {
	return m.transparency
}

func (m *material) CullMode() rhi.CullMode {
	return m.cullMode
}

func (m *material) PipelineID() PipelineID {
	return m.pipelineID
}

func (m *material) GPU() GPUMaterial {
	var flags uint32
	if m.transparency == TransparencyBlend {
		flags |= GPUMaterialFlagTransparent
	}
	if m.kind == KindShader {
		flags |= GPUMaterialFlagShader
	}
	return GPUMaterial{
		BaseColor:   m.baseColor,
		Emissive:    m.emissive,
		Metallic:    m.metallic,
		Roughness:   m.roughness,
		AlphaCutoff: m.alphaCutoff,
		Flags:       flags,
	}
}

// pipelineKey is the part of a material that decides which pipeline draws it.
type pipelineKey struct {
	kind         Kind
	shaderName   string
	transparency Transparency
	cullMode     rhi.CullMode
}

func (m *material) key() pipelineKey {
	k := pipelineKey{kind: m.kind, transparency: m.transparency, cullMode: m.cullMode}
	if m.kind == KindShader {
		k.shaderName = m.shaderName
	}
	return k
}
