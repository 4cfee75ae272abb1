package recorder

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
)

type resource struct {
	id    uint64
	label string
	dev   *Device
}

func (r *resource) Label() string { return r.label }

// ID returns the creation sequence number of the resource.
func (r *resource) ID() uint64 { return r.id }

// Buffer is an in-memory buffer whose Data mirrors what the GPU would hold.
type Buffer struct {
	resource
	size      uint64
	usage     rhi.BufferUsage
	data      []byte
	destroyed bool
}

func (b *Buffer) Size() uint64          { return b.size }
func (b *Buffer) Usage() rhi.BufferUsage { return b.usage }

// Data returns the current contents of the buffer.
func (b *Buffer) Data() []byte { return b.data }

// Destroyed reports whether the device destroyed the buffer.
func (b *Buffer) Destroyed() bool { return b.destroyed }

// Image is an in-memory image or layer view.
type Image struct {
	resource
	desc      rhi.ImageDesc
	baseLayer uint32
	parent    rhi.Image
	destroyed bool
}

func (i *Image) Desc() rhi.ImageDesc { return i.desc }
func (i *Image) BaseLayer() uint32   { return i.baseLayer }
func (i *Image) Parent() rhi.Image   { return i.parent }

// Destroyed reports whether the device destroyed the image.
func (i *Image) Destroyed() bool { return i.destroyed }

// Sampler records its description.
type Sampler struct {
	resource
	Desc rhi.SamplerDesc
}

// DescriptorLayout records its description.
type DescriptorLayout struct {
	resource
	desc rhi.DescriptorLayoutDesc
}

func (l *DescriptorLayout) Desc() rhi.DescriptorLayoutDesc { return l.desc }

// Binding is the committed content of one descriptor slot or array element.
type Binding struct {
	Buffer  rhi.Buffer
	Offset  uint64
	Size    uint64
	Image   rhi.Image
	Sampler rhi.Sampler
}

type bindingKey struct {
	binding uint32
	element uint32
}

// DescriptorSet stages binds and commits them on Update, counting the commits.
type DescriptorSet struct {
	resource
	layout    rhi.DescriptorLayout
	staged    map[bindingKey]Binding
	committed map[bindingKey]Binding
	updates   int
}

func (s *DescriptorSet) Layout() rhi.DescriptorLayout { return s.layout }

func (s *DescriptorSet) BindBuffer(binding uint32, buf rhi.Buffer, offset, size uint64) {
	s.staged[bindingKey{binding, 0}] = Binding{Buffer: buf, Offset: offset, Size: size}
}

func (s *DescriptorSet) BindImage(binding uint32, img rhi.Image) {
	s.staged[bindingKey{binding, 0}] = Binding{Image: img}
}

func (s *DescriptorSet) BindImageElement(binding, element uint32, img rhi.Image) {
	s.staged[bindingKey{binding, element}] = Binding{Image: img}
}

func (s *DescriptorSet) BindSampler(binding uint32, smp rhi.Sampler) {
	s.staged[bindingKey{binding, 0}] = Binding{Sampler: smp}
}

func (s *DescriptorSet) Update() error {
	if len(s.staged) == 0 {
		return nil
	}
	for k, v := range s.staged {
		s.committed[k] = v
	}
	clear(s.staged)
	s.updates++
	return nil
}

// Bound returns the committed binding at binding/element.
func (s *DescriptorSet) Bound(binding, element uint32) (Binding, bool) {
	b, ok := s.committed[bindingKey{binding, element}]
	return b, ok
}

// Updates returns how many times staged binds were committed.
func (s *DescriptorSet) Updates() int { return s.updates }

// ShaderModule records its source.
type ShaderModule struct {
	resource
	Source string
}

// Pipeline records the description it was created from.
type Pipeline struct {
	resource
	Graphic *rhi.GraphicPipelineDesc
	Compute *rhi.ComputePipelineDesc
}

func (p *Pipeline) IsCompute() bool { return p.Compute != nil }
