// Package recorder implements the rhi interfaces in memory. Transfer commands (Upload, Copy, ClearBuffer)
// are applied to buffer mirrors as they are recorded, every other command is kept in order so tests and
// headless tools can inspect exactly what a frame would submit.
package recorder

import (
	"sync"

	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cockroachdb/errors"
)

// DispatchFunc emulates a compute dispatch on the CPU. It receives the bound pipeline and descriptor sets.
type DispatchFunc func(p *Pipeline, sets []rhi.DescriptorSet, x, y, z uint32)

// Device is an in-memory rhi.Device.
type Device struct {
	mu        sync.Mutex
	nextID    uint64
	live      map[rhi.Resource]struct{}
	destroyed []rhi.Resource
	submitted []*CommandList

	// OnDispatch, when set, runs for every recorded Dispatch.
	OnDispatch DispatchFunc

	// FailLabels makes creation of any resource with a listed label fail.
	FailLabels map[string]bool
}

var _ rhi.Device = &Device{}

// New creates an empty recorder device.
func New() *Device {
	return &Device{
		live:       make(map[rhi.Resource]struct{}),
		FailLabels: make(map[string]bool),
	}
}

func (d *Device) base(label string) (resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailLabels[label] {
		return resource{}, errors.Mark(errors.Newf("recorder: forced failure creating %q", label), rhi.ErrResourceCreation)
	}
	d.nextID++
	return resource{id: d.nextID, label: label, dev: d}, nil
}

func (d *Device) track(r rhi.Resource) {
	d.mu.Lock()
	d.live[r] = struct{}{}
	d.mu.Unlock()
}

func (d *Device) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	if desc.Size == 0 {
		return nil, errors.Mark(errors.Newf("recorder: buffer %q has zero size", desc.Label), rhi.ErrResourceCreation)
	}
	r, err := d.base(desc.Label)
	if err != nil {
		return nil, err
	}
	b := &Buffer{resource: r, size: desc.Size, usage: desc.Usage, data: make([]byte, desc.Size)}
	d.track(b)
	return b, nil
}

func (d *Device) CreateImage(desc rhi.ImageDesc) (rhi.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, errors.Mark(errors.Newf("recorder: image %q has zero extent", desc.Label), rhi.ErrResourceCreation)
	}
	r, err := d.base(desc.Label)
	if err != nil {
		return nil, err
	}
	desc.Layers = max(desc.Layers, 1)
	desc.Samples = max(desc.Samples, 1)
	img := &Image{resource: r, desc: desc}
	d.track(img)
	return img, nil
}

func (d *Device) CreateRenderTarget(desc rhi.ImageDesc) (rhi.Image, error) {
	desc.Usage |= rhi.ImageUsageRenderTarget | rhi.ImageUsageSampled
	return d.CreateImage(desc)
}

func (d *Device) CreateImageView(img rhi.Image, baseLayer, layers uint32) (rhi.Image, error) {
	parent, ok := img.(*Image)
	if !ok {
		return nil, errors.Mark(errors.New("recorder: foreign image"), rhi.ErrInvalidResource)
	}
	if baseLayer+layers > parent.desc.Layers {
		return nil, errors.Mark(errors.Newf("recorder: view [%d,%d) exceeds %d layers of %q",
			baseLayer, baseLayer+layers, parent.desc.Layers, parent.label), rhi.ErrResourceCreation)
	}
	r, err := d.base(parent.label + "/view")
	if err != nil {
		return nil, err
	}
	desc := parent.desc
	desc.Layers = layers
	v := &Image{resource: r, desc: desc, baseLayer: baseLayer, parent: parent}
	d.track(v)
	return v, nil
}

func (d *Device) CreateSampler(desc rhi.SamplerDesc) (rhi.Sampler, error) {
	r, err := d.base(desc.Label)
	if err != nil {
		return nil, err
	}
	s := &Sampler{resource: r, Desc: desc}
	d.track(s)
	return s, nil
}

func (d *Device) CreateDescriptorLayout(desc rhi.DescriptorLayoutDesc) (rhi.DescriptorLayout, error) {
	r, err := d.base(desc.Label)
	if err != nil {
		return nil, err
	}
	l := &DescriptorLayout{resource: r, desc: desc}
	d.track(l)
	return l, nil
}

func (d *Device) CreateDescriptorSet(layout rhi.DescriptorLayout, label string) (rhi.DescriptorSet, error) {
	if layout == nil {
		return nil, errors.Mark(errors.Newf("recorder: descriptor set %q without layout", label), rhi.ErrInvalidResource)
	}
	r, err := d.base(label)
	if err != nil {
		return nil, err
	}
	s := &DescriptorSet{
		resource:  r,
		layout:    layout,
		staged:    make(map[bindingKey]Binding),
		committed: make(map[bindingKey]Binding),
	}
	d.track(s)
	return s, nil
}

func (d *Device) CreateShaderModule(desc rhi.ShaderModuleDesc) (rhi.ShaderModule, error) {
	if desc.Source == "" {
		return nil, errors.Mark(errors.Newf("recorder: shader %q has no source", desc.Label), rhi.ErrResourceCreation)
	}
	r, err := d.base(desc.Label)
	if err != nil {
		return nil, err
	}
	m := &ShaderModule{resource: r, Source: desc.Source}
	d.track(m)
	return m, nil
}

func (d *Device) CreateGraphicPipeline(desc rhi.GraphicPipelineDesc) (rhi.Pipeline, error) {
	if desc.Shader == nil {
		return nil, errors.Mark(errors.Newf("recorder: pipeline %q has no shader", desc.Label), rhi.ErrResourceCreation)
	}
	r, err := d.base(desc.Label)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{resource: r, Graphic: &desc}
	d.track(p)
	return p, nil
}

func (d *Device) CreateComputePipeline(desc rhi.ComputePipelineDesc) (rhi.Pipeline, error) {
	if desc.Shader == nil {
		return nil, errors.Mark(errors.Newf("recorder: pipeline %q has no shader", desc.Label), rhi.ErrResourceCreation)
	}
	r, err := d.base(desc.Label)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{resource: r, Compute: &desc}
	d.track(p)
	return p, nil
}

func (d *Device) Destroy(resources ...rhi.Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range resources {
		if r == nil {
			continue
		}
		switch v := r.(type) {
		case *Buffer:
			v.destroyed = true
		case *Image:
			v.destroyed = true
		}
		delete(d.live, r)
		d.destroyed = append(d.destroyed, r)
	}
}

func (d *Device) NewCommandList(label string) (rhi.CommandList, error) {
	r, err := d.base(label)
	if err != nil {
		return nil, err
	}
	return &CommandList{resource: r}, nil
}

func (d *Device) Submit(lists ...rhi.CommandList) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return errors.Mark(errors.New("recorder: foreign command list"), rhi.ErrInvalidResource)
		}
		d.submitted = append(d.submitted, cl)
	}
	return nil
}

// Live returns the number of created resources that have not been destroyed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// IsLive reports whether r was created by d and not destroyed yet.
func (d *Device) IsLive(r rhi.Resource) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.live[r]
	return ok
}

// Destroyed returns every resource destroyed so far in destruction order.
func (d *Device) Destroyed() []rhi.Resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]rhi.Resource(nil), d.destroyed...)
}

// Submitted returns every submitted command list in order.
func (d *Device) Submitted() []*CommandList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandList(nil), d.submitted...)
}
