package webgpu

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cogentcore/webgpu/wgpu"
)

var textureFormats = map[rhi.Format]wgpu.TextureFormat{
	rhi.FormatR8Unorm:              wgpu.TextureFormatR8Unorm,
	rhi.FormatR16Float:             wgpu.TextureFormatR16Float,
	rhi.FormatR32Float:             wgpu.TextureFormatR32Float,
	rhi.FormatRG16Float:            wgpu.TextureFormatRG16Float,
	rhi.FormatRGBA8Unorm:           wgpu.TextureFormatRGBA8Unorm,
	rhi.FormatRGBA8UnormSrgb:       wgpu.TextureFormatRGBA8UnormSrgb,
	rhi.FormatBGRA8Unorm:           wgpu.TextureFormatBGRA8Unorm,
	rhi.FormatBGRA8UnormSrgb:       wgpu.TextureFormatBGRA8UnormSrgb,
	rhi.FormatRGBA16Float:          wgpu.TextureFormatRGBA16Float,
	rhi.FormatRGBA32Float:          wgpu.TextureFormatRGBA32Float,
	rhi.FormatDepth32Float:         wgpu.TextureFormatDepth32Float,
	rhi.FormatDepth24PlusStencil8:  wgpu.TextureFormatDepth24PlusStencil8,
	rhi.FormatDepth32FloatStencil8: wgpu.TextureFormatDepth32FloatStencil8,
}

// textureFormat maps an RHI format. The second result is false for formats WebGPU has no equivalent for.
func textureFormat(f rhi.Format) (wgpu.TextureFormat, bool) {
	tf, ok := textureFormats[f]
	return tf, ok
}

// formatFromTexture maps a surface format back to the RHI.
func formatFromTexture(tf wgpu.TextureFormat) rhi.Format {
	for k, v := range textureFormats {
		if v == tf {
			return k
		}
	}
	return rhi.FormatUndefined
}

func bufferUsage(u rhi.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	pairs := []struct {
		from rhi.BufferUsage
		to   wgpu.BufferUsage
	}{
		{rhi.BufferUsageVertex, wgpu.BufferUsageVertex},
		{rhi.BufferUsageIndex, wgpu.BufferUsageIndex},
		{rhi.BufferUsageUniform, wgpu.BufferUsageUniform},
		{rhi.BufferUsageStorage, wgpu.BufferUsageStorage},
		{rhi.BufferUsageIndirect, wgpu.BufferUsageIndirect},
		{rhi.BufferUsageCopySrc, wgpu.BufferUsageCopySrc},
		{rhi.BufferUsageCopyDst, wgpu.BufferUsageCopyDst},
	}
	for _, p := range pairs {
		if u&p.from != 0 {
			out |= p.to
		}
	}
	// uploads and clears are recorded as copies, so every buffer is a copy destination
	return out | wgpu.BufferUsageCopyDst
}

func textureUsage(u rhi.ImageUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&rhi.ImageUsageSampled != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&rhi.ImageUsageRenderTarget != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	if u&rhi.ImageUsageStorage != 0 {
		out |= wgpu.TextureUsageStorageBinding
	}
	if u&rhi.ImageUsageCopySrc != 0 {
		out |= wgpu.TextureUsageCopySrc
	}
	if u&rhi.ImageUsageCopyDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	return out
}

func shaderStages(s rhi.ShaderStage) wgpu.ShaderStage {
	out := wgpu.ShaderStageNone
	if s&rhi.StageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&rhi.StageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if s&rhi.StageCompute != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

func compareFunction(c rhi.CompareOp) wgpu.CompareFunction {
	switch c {
	case rhi.CompareLess:
		return wgpu.CompareFunctionLess
	case rhi.CompareEqual:
		return wgpu.CompareFunctionEqual
	case rhi.CompareLessEqual:
		return wgpu.CompareFunctionLessEqual
	case rhi.CompareGreater:
		return wgpu.CompareFunctionGreater
	case rhi.CompareNotEqual:
		return wgpu.CompareFunctionNotEqual
	case rhi.CompareGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	case rhi.CompareAlways:
		return wgpu.CompareFunctionAlways
	}
	return wgpu.CompareFunctionNever
}

func stencilOperation(op rhi.StencilOp) wgpu.StencilOperation {
	switch op {
	case rhi.StencilZero:
		return wgpu.StencilOperationZero
	case rhi.StencilReplace:
		return wgpu.StencilOperationReplace
	case rhi.StencilIncrementClamp:
		return wgpu.StencilOperationIncrementClamp
	case rhi.StencilDecrementClamp:
		return wgpu.StencilOperationDecrementClamp
	case rhi.StencilInvert:
		return wgpu.StencilOperationInvert
	}
	return wgpu.StencilOperationKeep
}

func cullMode(c rhi.CullMode) wgpu.CullMode {
	switch c {
	case rhi.CullFront:
		return wgpu.CullModeFront
	case rhi.CullBack:
		return wgpu.CullModeBack
	}
	return wgpu.CullModeNone
}

var blendFactors = [...]wgpu.BlendFactor{
	rhi.BlendZero:             wgpu.BlendFactorZero,
	rhi.BlendOne:              wgpu.BlendFactorOne,
	rhi.BlendSrcColor:         wgpu.BlendFactorSrc,
	rhi.BlendOneMinusSrcColor: wgpu.BlendFactorOneMinusSrc,
	rhi.BlendSrcAlpha:         wgpu.BlendFactorSrcAlpha,
	rhi.BlendOneMinusSrcAlpha: wgpu.BlendFactorOneMinusSrcAlpha,
	rhi.BlendDstColor:         wgpu.BlendFactorDst,
	rhi.BlendOneMinusDstColor: wgpu.BlendFactorOneMinusDst,
	rhi.BlendDstAlpha:         wgpu.BlendFactorDstAlpha,
	rhi.BlendOneMinusDstAlpha: wgpu.BlendFactorOneMinusDstAlpha,
}

func blendFactor(f rhi.BlendFactor) wgpu.BlendFactor {
	if int(f) < len(blendFactors) {
		return blendFactors[f]
	}
	return wgpu.BlendFactorOne
}

func blendOperation(op rhi.BlendOp) wgpu.BlendOperation {
	switch op {
	case rhi.BlendOpSubtract:
		return wgpu.BlendOperationSubtract
	case rhi.BlendOpReverseSubtract:
		return wgpu.BlendOperationReverseSubtract
	case rhi.BlendOpMin:
		return wgpu.BlendOperationMin
	case rhi.BlendOpMax:
		return wgpu.BlendOperationMax
	}
	return wgpu.BlendOperationAdd
}

// blendState returns nil for disabled blending, which WebGPU treats as replace.
func blendState(b rhi.BlendState) *wgpu.BlendState {
	if !b.Enabled {
		return nil
	}
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: blendFactor(b.SrcColor),
			DstFactor: blendFactor(b.DstColor),
			Operation: blendOperation(b.ColorOp),
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: blendFactor(b.SrcAlpha),
			DstFactor: blendFactor(b.DstAlpha),
			Operation: blendOperation(b.AlphaOp),
		},
	}
}

func vertexFormat(f rhi.VertexFormat) wgpu.VertexFormat {
	switch f {
	case rhi.VertexFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case rhi.VertexFloat32x3:
		return wgpu.VertexFormatFloat32x3
	case rhi.VertexFloat32x4:
		return wgpu.VertexFormatFloat32x4
	case rhi.VertexUint32:
		return wgpu.VertexFormatUint32
	case rhi.VertexUint32x4:
		return wgpu.VertexFormatUint32x4
	}
	return wgpu.VertexFormatFloat32
}

func filterMode(f rhi.FilterMode) wgpu.FilterMode {
	if f == rhi.FilterLinear {
		return wgpu.FilterModeLinear
	}
	return wgpu.FilterModeNearest
}

func addressMode(a rhi.AddressMode) wgpu.AddressMode {
	switch a {
	case rhi.AddressRepeat:
		return wgpu.AddressModeRepeat
	case rhi.AddressMirrorRepeat:
		return wgpu.AddressModeMirrorRepeat
	}
	return wgpu.AddressModeClampToEdge
}

func loadOp(op rhi.LoadOp) wgpu.LoadOp {
	if op == rhi.LoadOpLoad {
		return wgpu.LoadOpLoad
	}
	return wgpu.LoadOpClear
}

func storeOp(op rhi.StoreOp) wgpu.StoreOp {
	if op == rhi.StoreOpDiscard {
		return wgpu.StoreOpDiscard
	}
	return wgpu.StoreOpStore
}

func indexFormat(f rhi.IndexFormat) wgpu.IndexFormat {
	if f == rhi.IndexUint16 {
		return wgpu.IndexFormatUint16
	}
	return wgpu.IndexFormatUint32
}

// layoutEntry maps one descriptor binding. Image arrays are bound as a single 2D array texture.
func layoutEntry(b rhi.DescriptorBinding) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: b.Binding, Visibility: shaderStages(b.Stages)}
	dim := wgpu.TextureViewDimension2D
	if b.Count > 1 {
		dim = wgpu.TextureViewDimension2DArray
	}
	switch b.Type {
	case rhi.DescriptorUniformBuffer:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
	case rhi.DescriptorStorageBuffer:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}
	case rhi.DescriptorStorageBufferReadWrite:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
	case rhi.DescriptorSampledImage:
		e.Texture = wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeFloat, ViewDimension: dim}
	case rhi.DescriptorDepthImage:
		e.Texture = wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeDepth, ViewDimension: dim}
	case rhi.DescriptorSampler:
		e.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
	case rhi.DescriptorComparisonSampler:
		e.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeComparison}
	}
	return e
}
