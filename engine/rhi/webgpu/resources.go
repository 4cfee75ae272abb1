package webgpu

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

type buffer struct {
	label  string
	size   uint64
	usage  rhi.BufferUsage
	handle *wgpu.Buffer
}

func (b *buffer) Label() string          { return b.label }
func (b *buffer) Size() uint64           { return b.size }
func (b *buffer) Usage() rhi.BufferUsage { return b.usage }

// image is a texture together with the views the RHI needs: an attachment view covering every aspect,
// and a sampling view restricted to the depth aspect for depth/stencil formats. Layer views share their
// parent's texture.
type image struct {
	label     string
	desc      rhi.ImageDesc
	baseLayer uint32
	parent    *image
	texture   *wgpu.Texture
	view      *wgpu.TextureView
	sampled   *wgpu.TextureView
	array     *wgpu.TextureView
}

func (i *image) Label() string       { return i.label }
func (i *image) Desc() rhi.ImageDesc { return i.desc }
func (i *image) BaseLayer() uint32   { return i.baseLayer }

func (i *image) Parent() rhi.Image {
	if i.parent == nil {
		return nil
	}
	return i.parent
}

// sampleView returns the view bound for sampling, as a 2D array view when array is set.
func (i *image) sampleView(array bool) *wgpu.TextureView {
	if array {
		return i.array
	}
	return i.sampled
}

func (i *image) release() {
	for _, v := range []*wgpu.TextureView{i.array, i.sampled, i.view} {
		if v != nil {
			v.Release()
		}
	}
	i.array, i.sampled, i.view = nil, nil, nil
	if i.parent == nil && i.texture != nil {
		i.texture.Release()
	}
	i.texture = nil
}

type sampler struct {
	label  string
	handle *wgpu.Sampler
}

func (s *sampler) Label() string { return s.label }

type descriptorLayout struct {
	label  string
	desc   rhi.DescriptorLayoutDesc
	handle *wgpu.BindGroupLayout
}

func (l *descriptorLayout) Label() string                  { return l.label }
func (l *descriptorLayout) Desc() rhi.DescriptorLayoutDesc { return l.desc }

func (l *descriptorLayout) binding(n uint32) (rhi.DescriptorBinding, bool) {
	for _, b := range l.desc.Bindings {
		if b.Binding == n {
			return b, true
		}
	}
	return rhi.DescriptorBinding{}, false
}

type bufferRange struct {
	buf          *buffer
	offset, size uint64
}

// descriptorSet stages binds and rebuilds its bind group on Update. WebGPU bind groups are immutable, so
// every committed change creates a new group and releases the previous one.
type descriptorSet struct {
	label    string
	device   *Device
	layout   *descriptorLayout
	buffers  map[uint32]bufferRange
	images   map[uint32]*image
	arrays   map[uint32]*image
	samplers map[uint32]*sampler
	dirty    bool
	group    *wgpu.BindGroup
}

func (s *descriptorSet) Label() string                { return s.label }
func (s *descriptorSet) Layout() rhi.DescriptorLayout { return s.layout }

func (s *descriptorSet) BindBuffer(binding uint32, buf rhi.Buffer, offset, size uint64) {
	b, ok := buf.(*buffer)
	if !ok {
		return
	}
	s.buffers[binding] = bufferRange{buf: b, offset: offset, size: size}
	s.dirty = true
}

func (s *descriptorSet) BindImage(binding uint32, img rhi.Image) {
	if i, ok := img.(*image); ok {
		s.images[binding] = i
		s.dirty = true
	}
}

// BindImageElement binds one layer of an image array. WebGPU has no per-element texture arrays here:
// the binding is a 2D array view, so a layer view binds its parent's whole array and a standalone
// image is only bound while no layered parent has been bound.
func (s *descriptorSet) BindImageElement(binding, _ uint32, img rhi.Image) {
	i, ok := img.(*image)
	if !ok {
		return
	}
	if i.parent != nil {
		i = i.parent
	} else if cur, ok := s.arrays[binding]; ok && cur.desc.Layers > 1 {
		return
	}
	if s.arrays[binding] != i {
		s.arrays[binding] = i
		s.dirty = true
	}
}

func (s *descriptorSet) BindSampler(binding uint32, smp rhi.Sampler) {
	if v, ok := smp.(*sampler); ok {
		s.samplers[binding] = v
		s.dirty = true
	}
}

func (s *descriptorSet) Update() error {
	if !s.dirty && s.group != nil {
		return nil
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(s.layout.desc.Bindings))
	for _, b := range s.layout.desc.Bindings {
		e := wgpu.BindGroupEntry{Binding: b.Binding}
		switch b.Type {
		case rhi.DescriptorUniformBuffer, rhi.DescriptorStorageBuffer, rhi.DescriptorStorageBufferReadWrite:
			r, ok := s.buffers[b.Binding]
			if !ok {
				return errors.Newf("webgpu: descriptor set %s: binding %d has no buffer", s.label, b.Binding)
			}
			e.Buffer, e.Offset, e.Size = r.buf.handle, r.offset, r.size
		case rhi.DescriptorSampledImage, rhi.DescriptorDepthImage:
			img := s.images[b.Binding]
			if b.Count > 1 {
				img = s.arrays[b.Binding]
			}
			if img == nil {
				return errors.Newf("webgpu: descriptor set %s: binding %d has no image", s.label, b.Binding)
			}
			e.TextureView = img.sampleView(b.Count > 1)
		case rhi.DescriptorSampler, rhi.DescriptorComparisonSampler:
			smp, ok := s.samplers[b.Binding]
			if !ok {
				return errors.Newf("webgpu: descriptor set %s: binding %d has no sampler", s.label, b.Binding)
			}
			e.Sampler = smp.handle
		}
		entries = append(entries, e)
	}
	group, err := s.device.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   s.label,
		Layout:  s.layout.handle,
		Entries: entries,
	})
	if err != nil {
		return errors.Wrapf(err, "webgpu: descriptor set %s", s.label)
	}
	if s.group != nil {
		s.group.Release()
	}
	s.group = group
	s.dirty = false
	return nil
}

type shaderModule struct {
	label  string
	handle *wgpu.ShaderModule
}

func (m *shaderModule) Label() string { return m.label }

type pipeline struct {
	label   string
	layout  *wgpu.PipelineLayout
	render  *wgpu.RenderPipeline
	compute *wgpu.ComputePipeline
}

func (p *pipeline) Label() string   { return p.label }
func (p *pipeline) IsCompute() bool { return p.compute != nil }

func (p *pipeline) release() {
	if p.render != nil {
		p.render.Release()
	}
	if p.compute != nil {
		p.compute.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
}
