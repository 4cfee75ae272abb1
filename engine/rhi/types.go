package rhi

// BufferUsage is a bit set describing how a Buffer will be used.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
	BufferUsageCopySrc
	BufferUsageCopyDst
)

// ImageUsage is a bit set describing how an Image will be used.
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageRenderTarget
	ImageUsageStorage
	ImageUsageCopySrc
	ImageUsageCopyDst
)

// ResourceState is the access state a resource is in between GPU operations. Transitions are recorded
// with CommandList.Barrier.
type ResourceState uint32

const (
	StateUndefined ResourceState = iota
	StateShaderRead
	StateRenderTarget
	StateDepthStencilWrite
	StateDepthStencilRead
	StateUnorderedAccess
	StateIndirectArgument
	StateCopySrc
	StateCopyDst
	StatePresent
)

var stateNames = [...]string{
	"undefined", "shader-read", "render-target", "depth-stencil-write", "depth-stencil-read",
	"unordered-access", "indirect-argument", "copy-src", "copy-dst", "present",
}

func (s ResourceState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ShaderStage is a bit set of programmable stages.
type ShaderStage uint32

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute
)

// IndexFormat is the element type of an index buffer.
type IndexFormat uint32

const (
	IndexUint32 IndexFormat = iota
	IndexUint16
)

// LoadOp selects what happens to an attachment at the start of a rendering scope.
type LoadOp uint32

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
)

// StoreOp selects what happens to an attachment at the end of a rendering scope.
type StoreOp uint32

const (
	StoreOpStore StoreOp = iota
	StoreOpDiscard
)

// CompareOp is a depth, stencil or sampler comparison function.
type CompareOp uint32

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareEqual
	CompareLessEqual
	CompareGreater
	CompareNotEqual
	CompareGreaterEqual
	CompareAlways
)

// StencilOp is the action applied to the stencil value by a stencil test outcome.
type StencilOp uint32

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncrementClamp
	StencilDecrementClamp
	StencilInvert
)

// CullMode selects which triangle faces are discarded.
type CullMode uint32

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// BlendFactor is a source or destination blend weight.
type BlendFactor uint32

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcColor
	BlendOneMinusSrcColor
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
	BlendDstColor
	BlendOneMinusDstColor
	BlendDstAlpha
	BlendOneMinusDstAlpha
)

// BlendOp combines the weighted source and destination.
type BlendOp uint32

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
	BlendOpReverseSubtract
	BlendOpMin
	BlendOpMax
)

// FilterMode selects texel filtering.
type FilterMode uint32

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

// AddressMode selects how out-of-range texture coordinates are resolved.
type AddressMode uint32

const (
	AddressClampToEdge AddressMode = iota
	AddressRepeat
	AddressMirrorRepeat
)

// VertexFormat is the type of a single vertex attribute.
type VertexFormat uint32

const (
	VertexFloat32 VertexFormat = iota
	VertexFloat32x2
	VertexFloat32x3
	VertexFloat32x4
	VertexUint32
	VertexUint32x4
)

// ColorWriteAll enables writes to every channel of a color target.
const ColorWriteAll uint32 = 0xF
