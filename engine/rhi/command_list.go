package rhi

// Barrier is a resource state transition. Exactly one of Buffer and Image is set.
type Barrier struct {
	Buffer Buffer
	Image  Image
	Before ResourceState
	After  ResourceState
}

// BufferBarrier is shorthand for a buffer transition.
func BufferBarrier(buf Buffer, before, after ResourceState) Barrier {
	return Barrier{Buffer: buf, Before: before, After: after}
}

// ImageBarrier is shorthand for an image transition.
func ImageBarrier(img Image, before, after ResourceState) Barrier {
	return Barrier{Image: img, Before: before, After: after}
}

// ColorAttachment is a color target of a rendering scope.
type ColorAttachment struct {
	Image   Image
	Resolve Image
	Load    LoadOp
	Store   StoreOp
	Clear   [4]float64
}

// DepthAttachment is the depth/stencil target of a rendering scope.
type DepthAttachment struct {
	Image        Image
	DepthLoad    LoadOp
	DepthStore   StoreOp
	ClearDepth   float32
	StencilLoad  LoadOp
	StencilStore StoreOp
	ClearStencil uint32
	ReadOnly     bool
}

// RenderingInfo describes a rendering scope opened by BeginRendering.
type RenderingInfo struct {
	Label  string
	Width  uint32
	Height uint32
	Colors []ColorAttachment
	Depth  *DepthAttachment
}

// Viewport is the transform from normalized device coordinates to framebuffer coordinates.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle.
type Rect struct {
	X, Y          uint32
	Width, Height uint32
}

// CommandList records GPU work. Recording is single threaded; lists are executed in Submit order.
type CommandList interface {
	Resource

	// Barrier records resource state transitions.
	Barrier(barriers ...Barrier)

	// Copy copies size bytes between buffers.
	Copy(dst Buffer, dstOffset uint64, src Buffer, srcOffset, size uint64)

	// Upload records a host-to-device write of data into dst at offset, ordered with the rest of the list.
	Upload(dst Buffer, offset uint64, data []byte)

	// ClearBuffer zeroes size bytes of dst starting at offset.
	ClearBuffer(dst Buffer, offset, size uint64)

	BindPipeline(p Pipeline)
	BindDescriptors(firstSet uint32, sets ...DescriptorSet)
	BindVertexBuffer(slot uint32, buf Buffer, offset uint64)
	BindIndexBuffer(buf Buffer, offset uint64, format IndexFormat)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)

	// DrawIndexedIndirectCount issues up to maxCount indexed draws whose arguments are read from args
	// at argsOffset + i*stride. The actual number of draws is the uint32 stored in count at countOffset.
	DrawIndexedIndirectCount(args Buffer, argsOffset uint64, stride uint32, count Buffer, countOffset uint64, maxCount uint32)
	Dispatch(x, y, z uint32)
	BeginRendering(info RenderingInfo)
	EndRendering()
	SetViewport(v Viewport)
	SetScissors(rects ...Rect)
	SetStencilReference(ref uint32)
}
