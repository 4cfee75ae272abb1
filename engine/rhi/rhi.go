// Package rhi defines the rendering hardware interface consumed by the render core. The render core only
// talks to these interfaces: engine/rhi/webgpu implements them on top of WebGPU and engine/rhi/recorder
// implements them in memory for headless runs and tests.
package rhi

import "github.com/cockroachdb/errors"

var (
	// ErrResourceCreation is marked on every failure to create a GPU object.
	ErrResourceCreation = errors.New("rhi: resource creation failed")

	// ErrInvalidResource is returned when a resource from another device, or an already destroyed one, is used.
	ErrInvalidResource = errors.New("rhi: invalid resource")
)

// Resource is any object created by a Device.
type Resource interface {
	// Label returns the debug label given at creation.
	Label() string
}

// BufferDesc describes a Buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// Buffer is a linear block of device memory.
type Buffer interface {
	Resource
	Size() uint64
	Usage() BufferUsage
}

// ImageDesc describes an Image. Layers greater than one creates an image array.
type ImageDesc struct {
	Label   string
	Width   uint32
	Height  uint32
	Layers  uint32
	Format  Format
	Usage   ImageUsage
	Samples uint32
}

// Image is a 2D image or image array, or a layer range view into one.
type Image interface {
	Resource
	Desc() ImageDesc

	// BaseLayer returns the first array layer this image addresses. Zero for whole images.
	BaseLayer() uint32

	// Parent returns the image a view was created from, or nil for whole images.
	Parent() Image
}

// SamplerDesc describes a Sampler. Compare other than CompareNever creates a comparison sampler.
type SamplerDesc struct {
	Label     string
	MinFilter FilterMode
	MagFilter FilterMode
	Address   AddressMode
	Compare   CompareOp
}

// Sampler is an image sampling state object.
type Sampler interface {
	Resource
}

// DescriptorType is the kind of resource bound at a descriptor binding.
type DescriptorType uint32

const (
	DescriptorUniformBuffer DescriptorType = iota
	DescriptorStorageBuffer
	DescriptorStorageBufferReadWrite
	DescriptorSampledImage
	DescriptorDepthImage
	DescriptorSampler
	DescriptorComparisonSampler
)

// DescriptorBinding describes one binding of a DescriptorLayout. Count greater than one declares an array
// of images; array elements are addressed with DescriptorSet.BindImageElement.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Stages  ShaderStage
	Count   uint32
}

// DescriptorLayoutDesc describes a DescriptorLayout.
type DescriptorLayoutDesc struct {
	Label    string
	Bindings []DescriptorBinding
}

// DescriptorLayout is the shape of a DescriptorSet.
type DescriptorLayout interface {
	Resource
	Desc() DescriptorLayoutDesc
}

// DescriptorSet binds resources to the slots of a DescriptorLayout. Bind calls are staged and become
// visible to shaders after Update, so several changes within one frame cost a single descriptor write.
type DescriptorSet interface {
	Resource
	Layout() DescriptorLayout
	BindBuffer(binding uint32, buf Buffer, offset, size uint64)
	BindImage(binding uint32, img Image)
	BindImageElement(binding, element uint32, img Image)
	BindSampler(binding uint32, s Sampler)

	// Update commits every staged bind. It is a no-op when nothing changed.
	Update() error
}

// ShaderModuleDesc describes a ShaderModule from WGSL source.
type ShaderModuleDesc struct {
	Label  string
	Source string
}

// ShaderModule is a compiled shader holding one or more entry points.
type ShaderModule interface {
	Resource
}

// VertexAttribute is one attribute of a VertexLayout.
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint64
}

// VertexLayout describes one vertex buffer slot.
type VertexLayout struct {
	Stride     uint64
	Attributes []VertexAttribute
}

// BlendState is the blending configuration of one color target. Disabled blending overwrites the target.
type BlendState struct {
	Enabled  bool
	SrcColor BlendFactor
	DstColor BlendFactor
	ColorOp  BlendOp
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
	AlphaOp  BlendOp
}

// ColorTarget describes one color attachment of a graphic pipeline.
type ColorTarget struct {
	Format    Format
	Blend     BlendState
	WriteMask uint32
}

// StencilState describes the stencil test applied to both faces.
type StencilState struct {
	Enabled     bool
	Compare     CompareOp
	PassOp      StencilOp
	FailOp      StencilOp
	DepthFailOp StencilOp
	ReadMask    uint32
	WriteMask   uint32
}

// DepthState describes the depth/stencil configuration of a graphic pipeline.
type DepthState struct {
	Format    Format
	Test      bool
	Write     bool
	Compare   CompareOp
	Bias      int32
	SlopeBias float32
	Stencil   StencilState
}

// GraphicPipelineDesc describes a graphic pipeline.
type GraphicPipelineDesc struct {
	Label         string
	Shader        ShaderModule
	VertexEntry   string
	FragmentEntry string
	Vertex        []VertexLayout
	Layouts       []DescriptorLayout
	ColorTargets  []ColorTarget
	Depth         *DepthState
	Cull          CullMode
	Samples       uint32
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label   string
	Shader  ShaderModule
	Entry   string
	Layouts []DescriptorLayout
}

// Pipeline is a compiled graphic or compute pipeline.
type Pipeline interface {
	Resource
	IsCompute() bool
}

// Device creates GPU resources and command lists.
type Device interface {
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateImage(desc ImageDesc) (Image, error)

	// CreateRenderTarget creates an image usable as a color or depth attachment and as a sampled input.
	CreateRenderTarget(desc ImageDesc) (Image, error)

	// CreateImageView creates a view over layers [baseLayer, baseLayer+layers) of img.
	CreateImageView(img Image, baseLayer, layers uint32) (Image, error)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	CreateDescriptorLayout(desc DescriptorLayoutDesc) (DescriptorLayout, error)
	CreateDescriptorSet(layout DescriptorLayout, label string) (DescriptorSet, error)
	CreateShaderModule(desc ShaderModuleDesc) (ShaderModule, error)
	CreateGraphicPipeline(desc GraphicPipelineDesc) (Pipeline, error)
	CreateComputePipeline(desc ComputePipelineDesc) (Pipeline, error)

	// Destroy releases resources immediately. Resources that may still be referenced by in-flight
	// command lists go through a RecycleBin instead.
	Destroy(resources ...Resource)

	// NewCommandList begins recording a command list.
	NewCommandList(label string) (CommandList, error)

	// Submit ends recording of every list and queues them for execution in order.
	Submit(lists ...CommandList) error
}
