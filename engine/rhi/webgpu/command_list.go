package webgpu

import (
	"sort"

	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// commandList wraps a command encoder. Rendering scopes map to render passes and every Dispatch opens its
// own compute pass. The first recording error is kept and returned by Submit.
type commandList struct {
	label   string
	device  *Device
	encoder *wgpu.CommandEncoder
	render  *wgpu.RenderPassEncoder

	pipeline *pipeline
	sets     map[uint32]*descriptorSet
	staging  []*wgpu.Buffer
	err      error
}

var _ rhi.CommandList = &commandList{}

func (c *commandList) Label() string { return c.label }

func (c *commandList) fail(err error) {
	if c.err == nil {
		c.err = errors.Wrapf(err, "webgpu: command list %s", c.label)
	}
}

// Barrier is a no-op. WebGPU derives transitions from the bindings and attachments of each pass.
func (c *commandList) Barrier(...rhi.Barrier) {}

func (c *commandList) Copy(dst rhi.Buffer, dstOffset uint64, src rhi.Buffer, srcOffset, size uint64) {
	d, ok1 := dst.(*buffer)
	s, ok2 := src.(*buffer)
	if !ok1 || !ok2 {
		c.fail(rhi.ErrInvalidResource)
		return
	}
	if c.render != nil {
		c.fail(errors.New("copy inside a rendering scope"))
		return
	}
	c.encoder.CopyBufferToBuffer(s.handle, srcOffset, d.handle, dstOffset, size)
}

// Upload copies data through a staging buffer that lives until the list is submitted. Copies must be a
// multiple of four bytes, so data is zero padded and the destination must leave room for the padding.
func (c *commandList) Upload(dst rhi.Buffer, offset uint64, data []byte) {
	d, ok := dst.(*buffer)
	if !ok {
		c.fail(rhi.ErrInvalidResource)
		return
	}
	if len(data) == 0 {
		return
	}
	if c.render != nil {
		c.fail(errors.New("upload inside a rendering scope"))
		return
	}
	size := alignUp(uint64(len(data)), 4)
	contents := data
	if size != uint64(len(data)) {
		contents = make([]byte, size)
		copy(contents, data)
	}
	staging, err := c.device.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    c.label + "/staging",
		Contents: contents,
		Usage:    wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		c.fail(err)
		return
	}
	c.staging = append(c.staging, staging)
	c.encoder.CopyBufferToBuffer(staging, 0, d.handle, offset, size)
}

func (c *commandList) ClearBuffer(dst rhi.Buffer, offset, size uint64) {
	d, ok := dst.(*buffer)
	if !ok {
		c.fail(rhi.ErrInvalidResource)
		return
	}
	if c.render != nil {
		c.fail(errors.New("clear inside a rendering scope"))
		return
	}
	c.encoder.ClearBuffer(d.handle, offset, size)
}

func (c *commandList) BindPipeline(p rhi.Pipeline) {
	pl, ok := p.(*pipeline)
	if !ok {
		c.fail(rhi.ErrInvalidResource)
		return
	}
	c.pipeline = pl
	if c.render != nil {
		if pl.IsCompute() {
			c.fail(errors.Newf("compute pipeline %s bound inside a rendering scope", pl.label))
			return
		}
		c.render.SetPipeline(pl.render)
	}
}

func (c *commandList) BindDescriptors(firstSet uint32, sets ...rhi.DescriptorSet) {
	for i, s := range sets {
		ds, ok := s.(*descriptorSet)
		if !ok {
			c.fail(rhi.ErrInvalidResource)
			return
		}
		if ds.group == nil {
			c.fail(errors.Newf("descriptor set %s bound before Update", ds.label))
			return
		}
		index := firstSet + uint32(i)
		c.sets[index] = ds
		if c.render != nil {
			c.render.SetBindGroup(index, ds.group, nil)
		}
	}
}

func (c *commandList) BindVertexBuffer(slot uint32, buf rhi.Buffer, offset uint64) {
	b, ok := buf.(*buffer)
	if !ok {
		c.fail(rhi.ErrInvalidResource)
		return
	}
	if c.render == nil {
		c.fail(errors.New("vertex buffer bound outside a rendering scope"))
		return
	}
	c.render.SetVertexBuffer(slot, b.handle, offset, wgpu.WholeSize)
}

func (c *commandList) BindIndexBuffer(buf rhi.Buffer, offset uint64, format rhi.IndexFormat) {
	b, ok := buf.(*buffer)
	if !ok {
		c.fail(rhi.ErrInvalidResource)
		return
	}
	if c.render == nil {
		c.fail(errors.New("index buffer bound outside a rendering scope"))
		return
	}
	c.render.SetIndexBuffer(b.handle, indexFormat(format), offset, wgpu.WholeSize)
}

func (c *commandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if c.render == nil {
		c.fail(errors.New("draw outside a rendering scope"))
		return
	}
	c.render.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// DrawIndexedIndirectCount issues maxCount indirect draws and ignores count. WebGPU has no count buffer
// draw, so entries past the live count must be zero-instance draws; culling clears them every frame.
func (c *commandList) DrawIndexedIndirectCount(args rhi.Buffer, argsOffset uint64, stride uint32, _ rhi.Buffer, _ uint64, maxCount uint32) {
	b, ok := args.(*buffer)
	if !ok {
		c.fail(rhi.ErrInvalidResource)
		return
	}
	if c.render == nil {
		c.fail(errors.New("draw outside a rendering scope"))
		return
	}
	for i := uint32(0); i < maxCount; i++ {
		c.render.DrawIndexedIndirect(b.handle, argsOffset+uint64(i)*uint64(stride))
	}
}

func (c *commandList) Dispatch(x, y, z uint32) {
	if c.render != nil {
		c.fail(errors.New("dispatch inside a rendering scope"))
		return
	}
	if c.pipeline == nil || !c.pipeline.IsCompute() {
		c.fail(errors.New("dispatch without a compute pipeline"))
		return
	}
	pass := c.encoder.BeginComputePass(nil)
	pass.SetPipeline(c.pipeline.compute)
	indices := make([]uint32, 0, len(c.sets))
	for i := range c.sets {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })
	for _, i := range indices {
		pass.SetBindGroup(i, c.sets[i].group, nil)
	}
	pass.DispatchWorkgroups(x, y, z)
	pass.End()
	pass.Release()
}

func (c *commandList) BeginRendering(info rhi.RenderingInfo) {
	if c.render != nil {
		c.fail(errors.Newf("rendering scope %s opened inside another", info.Label))
		return
	}
	desc := &wgpu.RenderPassDescriptor{Label: info.Label}
	for _, a := range info.Colors {
		img, ok := a.Image.(*image)
		if !ok {
			c.fail(rhi.ErrInvalidResource)
			return
		}
		ca := wgpu.RenderPassColorAttachment{
			View:       img.view,
			LoadOp:     loadOp(a.Load),
			StoreOp:    storeOp(a.Store),
			ClearValue: wgpu.Color{R: a.Clear[0], G: a.Clear[1], B: a.Clear[2], A: a.Clear[3]},
		}
		if r, ok := a.Resolve.(*image); ok {
			ca.ResolveTarget = r.view
		}
		desc.ColorAttachments = append(desc.ColorAttachments, ca)
	}
	if info.Depth != nil {
		img, ok := info.Depth.Image.(*image)
		if !ok {
			c.fail(rhi.ErrInvalidResource)
			return
		}
		desc.DepthStencilAttachment = depthAttachment(img, info.Depth)
	}
	c.render = c.encoder.BeginRenderPass(desc)
	// bindings do not survive a pass boundary in WebGPU
	c.sets = make(map[uint32]*descriptorSet)
}

func depthAttachment(img *image, a *rhi.DepthAttachment) *wgpu.RenderPassDepthStencilAttachment {
	d := &wgpu.RenderPassDepthStencilAttachment{
		View:            img.view,
		DepthLoadOp:     wgpu.LoadOpUndefined,
		DepthStoreOp:    wgpu.StoreOpUndefined,
		DepthClearValue: a.ClearDepth,
		DepthReadOnly:   a.ReadOnly,
		StencilLoadOp:   wgpu.LoadOpUndefined,
		StencilStoreOp:  wgpu.StoreOpUndefined,
		StencilReadOnly: a.ReadOnly,
	}
	if a.ReadOnly {
		return d
	}
	d.DepthLoadOp, d.DepthStoreOp = loadOp(a.DepthLoad), storeOp(a.DepthStore)
	if img.desc.Format.HasStencil() {
		d.StencilLoadOp, d.StencilStoreOp = loadOp(a.StencilLoad), storeOp(a.StencilStore)
		d.StencilClearValue = a.ClearStencil
	}
	return d
}

func (c *commandList) EndRendering() {
	if c.render == nil {
		c.fail(errors.New("EndRendering without a rendering scope"))
		return
	}
	c.render.End()
	c.render.Release()
	c.render = nil
	c.pipeline = nil
	c.sets = make(map[uint32]*descriptorSet)
}

func (c *commandList) SetViewport(v rhi.Viewport) {
	if c.render != nil {
		c.render.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	}
}

// SetScissors applies the first rectangle. WebGPU has a single scissor per pass.
func (c *commandList) SetScissors(rects ...rhi.Rect) {
	if c.render != nil && len(rects) > 0 {
		r := rects[0]
		c.render.SetScissorRect(r.X, r.Y, r.Width, r.Height)
	}
}

func (c *commandList) SetStencilReference(ref uint32) {
	if c.render != nil {
		c.render.SetStencilReference(ref)
	}
}

// finish ends recording. The list may not be recorded into afterwards.
func (c *commandList) finish() (*wgpu.CommandBuffer, error) {
	if c.encoder == nil {
		return nil, errors.Wrapf(rhi.ErrInvalidResource, "webgpu: command list %s already submitted", c.label)
	}
	if c.render != nil {
		c.fail(errors.New("submitted with an open rendering scope"))
		c.render.End()
		c.render.Release()
		c.render = nil
	}
	if c.err != nil {
		return nil, c.err
	}
	cb, err := c.encoder.Finish(nil)
	if err != nil {
		return nil, errors.Wrapf(err, "webgpu: finishing command list %s", c.label)
	}
	return cb, nil
}

func (c *commandList) release() {
	for _, s := range c.staging {
		s.Release()
	}
	c.staging = nil
	if c.encoder != nil {
		c.encoder.Release()
		c.encoder = nil
	}
}
