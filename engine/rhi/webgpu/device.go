// Package webgpu implements the rendering hardware interface on top of WebGPU through cogentcore/webgpu.
// Resource states are accepted but not acted on: WebGPU tracks usage and inserts its own barriers.
package webgpu

import (
	"sync"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// maxBindGroups is the bind group limit requested from the adapter. The forward pass uses three groups
// and the WebGPU default is four, so the limit is raised as the lit passes grow.
const maxBindGroups = 8

// ErrNoSurface is returned by surface operations on a device created without WithSurface.
var ErrNoSurface = errors.New("webgpu: device has no surface")

// ErrMissingFeature is returned by New when the adapter lacks a feature the renderer depends on.
var ErrMissingFeature = errors.New("webgpu: adapter is missing a required feature")

// requiredFeatures lists the device features prism cannot run without. Culled draw commands carry the
// instance arena offset in firstInstance, which indirect draws only honour with IndirectFirstInstance.
var requiredFeatures = []wgpu.FeatureName{
	wgpu.FeatureNameIndirectFirstInstance,
}

// checkFeatures returns the features to request, or ErrMissingFeature naming the first one the adapter
// does not support.
func checkFeatures(has func(wgpu.FeatureName) bool) ([]wgpu.FeatureName, error) {
	for _, f := range requiredFeatures {
		if !has(f) {
			return nil, errors.Wrapf(ErrMissingFeature, "%s", f)
		}
	}
	return requiredFeatures, nil
}

// Device is a WebGPU device, its queue and, optionally, a window surface.
type Device struct {
	mu  sync.Mutex
	log *log.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	surfaceDesc          *wgpu.SurfaceDescriptor
	surface              *wgpu.Surface
	surfaceFormat        rhi.Format
	surfaceWidth         uint32
	surfaceHeight        uint32
	presentMode          PresentMode
	forceFallbackAdapter bool
	frame                *image
}

var _ rhi.Device = &Device{}

// New creates a WebGPU instance, requests an adapter compatible with the optional surface and opens a
// device on it.
//
// Parameters:
//   - options: variadic list of DeviceBuilderOption functions
//
// Returns:
//   - *Device: the device
//   - error: an adapter or device request error
func New(options ...DeviceBuilderOption) (*Device, error) {
	d := &Device{presentMode: PresentModeUncapped}
	for _, opt := range options {
		opt(d)
	}
	d.log = logger.Sub(d.log, "webgpu")

	d.instance = wgpu.CreateInstance(nil)
	if d.surfaceDesc != nil {
		d.surface = d.instance.CreateSurface(d.surfaceDesc)
	}
	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
		PowerPreference:      wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		d.Release()
		return nil, errors.Wrap(err, "webgpu: requesting adapter")
	}
	d.adapter = adapter

	features, err := checkFeatures(adapter.HasFeature)
	if err != nil {
		d.Release()
		return nil, err
	}
	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = maxBindGroups
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "prism",
		RequiredFeatures: features,
		RequiredLimits:   &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		d.Release()
		return nil, errors.Wrap(err, "webgpu: requesting device")
	}
	d.device = device
	d.queue = device.GetQueue()
	d.log.Info("device created", "surface", d.surface != nil, "fallback", d.forceFallbackAdapter)
	return d, nil
}

// ConfigureSurface sizes the swapchain. It must be called before the first AcquireSurface and whenever
// the window framebuffer changes size.
//
// Parameters:
//   - width: the new width of the surface in pixels
//   - height: the new height of the surface in pixels
//
// Returns:
//   - error: ErrNoSurface, or an unsupported surface format
func (d *Device) ConfigureSurface(width, height uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.surface == nil {
		return ErrNoSurface
	}
	caps := d.surface.GetCapabilities(d.adapter)
	if len(caps.Formats) == 0 || len(caps.AlphaModes) == 0 {
		return errors.New("webgpu: surface reports no formats")
	}
	format := caps.Formats[0]
	d.surfaceFormat = formatFromTexture(format)
	if d.surfaceFormat == rhi.FormatUndefined {
		return errors.Newf("webgpu: unsupported surface format %v", format)
	}
	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       width,
		Height:      height,
		PresentMode: d.presentMode.native(),
		AlphaMode:   caps.AlphaModes[0],
	})
	d.surfaceWidth, d.surfaceHeight = width, height
	d.log.Debug("surface configured", "width", width, "height", height, "format", d.surfaceFormat)
	return nil
}

// SurfaceFormat returns the swapchain format chosen by the last ConfigureSurface.
func (d *Device) SurfaceFormat() rhi.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceFormat
}

// AcquireSurface returns the swapchain image of the next frame as a render target. The image is valid
// until Present.
//
// Returns:
//   - rhi.Image: the swapchain image
//   - error: ErrNoSurface, a frame that was not presented yet, or an acquisition error
func (d *Device) AcquireSurface() (rhi.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.surface == nil {
		return nil, ErrNoSurface
	}
	if d.frame != nil {
		return nil, errors.New("webgpu: previous frame surface not yet presented")
	}
	texture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return nil, errors.Wrap(err, "webgpu: acquiring surface texture")
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		texture.Release()
		return nil, errors.Wrap(err, "webgpu: creating surface view")
	}
	d.frame = &image{
		label: "surface",
		desc: rhi.ImageDesc{
			Label: "surface", Width: d.surfaceWidth, Height: d.surfaceHeight, Layers: 1,
			Format: d.surfaceFormat, Usage: rhi.ImageUsageRenderTarget, Samples: 1,
		},
		texture: texture,
		view:    view,
	}
	return d.frame, nil
}

// Present presents the acquired swapchain image and releases it. It is a no-op when no image is held.
func (d *Device) Present() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame == nil {
		return
	}
	d.surface.Present()
	d.frame.release()
	d.frame = nil
}

func (d *Device) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	size := alignUp(max(desc.Size, 4), 4)
	handle, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: bufferUsage(desc.Usage),
	})
	if err != nil {
		return nil, creationError(err, "buffer", desc.Label)
	}
	return &buffer{label: desc.Label, size: desc.Size, usage: desc.Usage, handle: handle}, nil
}

func (d *Device) CreateImage(desc rhi.ImageDesc) (rhi.Image, error) {
	format, ok := textureFormat(desc.Format)
	if !ok {
		return nil, errors.Mark(errors.Newf("webgpu: image %s: unsupported format %s", desc.Label, desc.Format), rhi.ErrResourceCreation)
	}
	desc.Layers = max(desc.Layers, 1)
	desc.Samples = max(desc.Samples, 1)
	texture, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Usage:         textureUsage(desc.Usage),
		Dimension:     wgpu.TextureDimension2D,
		Size:          wgpu.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.Layers},
		Format:        format,
		MipLevelCount: 1,
		SampleCount:   desc.Samples,
	})
	if err != nil {
		return nil, creationError(err, "image", desc.Label)
	}
	img := &image{label: desc.Label, desc: desc, texture: texture}
	if err := d.createViews(img, 0, desc.Layers); err != nil {
		img.release()
		return nil, err
	}
	return img, nil
}

func (d *Device) CreateRenderTarget(desc rhi.ImageDesc) (rhi.Image, error) {
	desc.Usage |= rhi.ImageUsageRenderTarget | rhi.ImageUsageSampled
	return d.CreateImage(desc)
}

func (d *Device) CreateImageView(img rhi.Image, baseLayer, layers uint32) (rhi.Image, error) {
	parent, ok := img.(*image)
	if !ok || parent.texture == nil {
		return nil, rhi.ErrInvalidResource
	}
	if parent.parent != nil {
		baseLayer += parent.baseLayer
		parent = parent.parent
	}
	layers = max(layers, 1)
	if baseLayer+layers > parent.desc.Layers {
		return nil, errors.Newf("webgpu: view of %s: layers [%d, %d) out of range", parent.label, baseLayer, baseLayer+layers)
	}
	desc := parent.desc
	desc.Layers = layers
	view := &image{label: parent.label, desc: desc, baseLayer: baseLayer, parent: parent, texture: parent.texture}
	if err := d.createViews(view, baseLayer, layers); err != nil {
		view.release()
		return nil, err
	}
	return view, nil
}

// createViews creates the attachment, sampling and array views of layers [base, base+layers).
func (d *Device) createViews(img *image, base, layers uint32) error {
	format, _ := textureFormat(img.desc.Format)
	dim := wgpu.TextureViewDimension2D
	if layers > 1 {
		dim = wgpu.TextureViewDimension2DArray
	}
	create := func(label string, dim wgpu.TextureViewDimension, aspect wgpu.TextureAspect) (*wgpu.TextureView, error) {
		v, err := img.texture.CreateView(&wgpu.TextureViewDescriptor{
			Label:           img.label + "/" + label,
			Format:          format,
			Dimension:       dim,
			BaseMipLevel:    0,
			MipLevelCount:   1,
			BaseArrayLayer:  base,
			ArrayLayerCount: layers,
			Aspect:          aspect,
		})
		if err != nil {
			return nil, creationError(err, "image view", img.label)
		}
		return v, nil
	}

	var err error
	if img.view, err = create("view", dim, wgpu.TextureAspectAll); err != nil {
		return err
	}
	if img.desc.Usage&rhi.ImageUsageSampled == 0 {
		return nil
	}
	aspect := wgpu.TextureAspectAll
	if img.desc.Format.IsDepth() {
		aspect = wgpu.TextureAspectDepthOnly
	}
	if img.sampled, err = create("sampled", dim, aspect); err != nil {
		return err
	}
	img.array, err = create("array", wgpu.TextureViewDimension2DArray, aspect)
	return err
}

func (d *Device) CreateSampler(desc rhi.SamplerDesc) (rhi.Sampler, error) {
	compare := wgpu.CompareFunctionUndefined
	if desc.Compare != rhi.CompareNever {
		compare = compareFunction(desc.Compare)
	}
	address := addressMode(desc.Address)
	handle, err := d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filterMode(desc.MagFilter),
		MinFilter:     filterMode(desc.MinFilter),
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		Compare:       compare,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, creationError(err, "sampler", desc.Label)
	}
	return &sampler{label: desc.Label, handle: handle}, nil
}

func (d *Device) CreateDescriptorLayout(desc rhi.DescriptorLayoutDesc) (rhi.DescriptorLayout, error) {
	entries := make([]wgpu.BindGroupLayoutEntry, len(desc.Bindings))
	for i, b := range desc.Bindings {
		entries[i] = layoutEntry(b)
	}
	handle, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return nil, creationError(err, "descriptor layout", desc.Label)
	}
	return &descriptorLayout{label: desc.Label, desc: desc, handle: handle}, nil
}

func (d *Device) CreateDescriptorSet(layout rhi.DescriptorLayout, label string) (rhi.DescriptorSet, error) {
	l, ok := layout.(*descriptorLayout)
	if !ok {
		return nil, rhi.ErrInvalidResource
	}
	return &descriptorSet{
		label:    label,
		device:   d,
		layout:   l,
		buffers:  make(map[uint32]bufferRange),
		images:   make(map[uint32]*image),
		arrays:   make(map[uint32]*image),
		samplers: make(map[uint32]*sampler),
	}, nil
}

func (d *Device) CreateShaderModule(desc rhi.ShaderModuleDesc) (rhi.ShaderModule, error) {
	handle, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, creationError(err, "shader module", desc.Label)
	}
	return &shaderModule{label: desc.Label, handle: handle}, nil
}

func (d *Device) pipelineLayout(label string, layouts []rhi.DescriptorLayout) (*wgpu.PipelineLayout, error) {
	groups := make([]*wgpu.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		dl, ok := l.(*descriptorLayout)
		if !ok {
			return nil, errors.Wrapf(rhi.ErrInvalidResource, "webgpu: pipeline %s: layout %d", label, i)
		}
		groups[i] = dl.handle
	}
	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: groups,
	})
	if err != nil {
		return nil, creationError(err, "pipeline layout", label)
	}
	return layout, nil
}

func (d *Device) CreateGraphicPipeline(desc rhi.GraphicPipelineDesc) (rhi.Pipeline, error) {
	module, ok := desc.Shader.(*shaderModule)
	if !ok {
		return nil, errors.Wrapf(rhi.ErrInvalidResource, "webgpu: pipeline %s: shader", desc.Label)
	}
	layout, err := d.pipelineLayout(desc.Label, desc.Layouts)
	if err != nil {
		return nil, err
	}

	buffers := make([]wgpu.VertexBufferLayout, len(desc.Vertex))
	for i, v := range desc.Vertex {
		attrs := make([]wgpu.VertexAttribute, len(v.Attributes))
		for j, a := range v.Attributes {
			attrs[j] = wgpu.VertexAttribute{Format: vertexFormat(a.Format), Offset: a.Offset, ShaderLocation: a.Location}
		}
		buffers[i] = wgpu.VertexBufferLayout{ArrayStride: v.Stride, StepMode: wgpu.VertexStepModeVertex, Attributes: attrs}
	}

	rp := &wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module.handle,
			EntryPoint: desc.VertexEntry,
			Buffers:    buffers,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cullMode(desc.Cull),
		},
		Multisample: wgpu.MultisampleState{
			Count: max(desc.Samples, 1),
			Mask:  0xFFFFFFFF,
		},
	}
	if desc.FragmentEntry != "" {
		targets := make([]wgpu.ColorTargetState, len(desc.ColorTargets))
		for i, t := range desc.ColorTargets {
			format, ok := textureFormat(t.Format)
			if !ok {
				layout.Release()
				return nil, errors.Newf("webgpu: pipeline %s: unsupported color format %s", desc.Label, t.Format)
			}
			targets[i] = wgpu.ColorTargetState{Format: format, Blend: blendState(t.Blend), WriteMask: wgpu.ColorWriteMask(t.WriteMask)}
		}
		rp.Fragment = &wgpu.FragmentState{Module: module.handle, EntryPoint: desc.FragmentEntry, Targets: targets}
	}
	if desc.Depth != nil {
		rp.DepthStencil = depthStencilState(*desc.Depth)
	}

	handle, err := d.device.CreateRenderPipeline(rp)
	if err != nil {
		layout.Release()
		return nil, creationError(err, "graphic pipeline", desc.Label)
	}
	return &pipeline{label: desc.Label, layout: layout, render: handle}, nil
}

func depthStencilState(ds rhi.DepthState) *wgpu.DepthStencilState {
	format, _ := textureFormat(ds.Format)
	compare := wgpu.CompareFunctionAlways
	if ds.Test {
		compare = compareFunction(ds.Compare)
	}
	face := wgpu.StencilFaceState{
		Compare:     wgpu.CompareFunctionAlways,
		FailOp:      wgpu.StencilOperationKeep,
		DepthFailOp: wgpu.StencilOperationKeep,
		PassOp:      wgpu.StencilOperationKeep,
	}
	var readMask, writeMask uint32
	if ds.Stencil.Enabled && ds.Format.HasStencil() {
		face = wgpu.StencilFaceState{
			Compare:     compareFunction(ds.Stencil.Compare),
			FailOp:      stencilOperation(ds.Stencil.FailOp),
			DepthFailOp: stencilOperation(ds.Stencil.DepthFailOp),
			PassOp:      stencilOperation(ds.Stencil.PassOp),
		}
		readMask, writeMask = ds.Stencil.ReadMask, ds.Stencil.WriteMask
	}
	return &wgpu.DepthStencilState{
		Format:              format,
		DepthWriteEnabled:   ds.Write,
		DepthCompare:        compare,
		StencilFront:        face,
		StencilBack:         face,
		StencilReadMask:     readMask,
		StencilWriteMask:    writeMask,
		DepthBias:           ds.Bias,
		DepthBiasSlopeScale: ds.SlopeBias,
	}
}

func (d *Device) CreateComputePipeline(desc rhi.ComputePipelineDesc) (rhi.Pipeline, error) {
	module, ok := desc.Shader.(*shaderModule)
	if !ok {
		return nil, errors.Wrapf(rhi.ErrInvalidResource, "webgpu: pipeline %s: shader", desc.Label)
	}
	layout, err := d.pipelineLayout(desc.Label, desc.Layouts)
	if err != nil {
		return nil, err
	}
	handle, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module.handle,
			EntryPoint: desc.Entry,
		},
	})
	if err != nil {
		layout.Release()
		return nil, creationError(err, "compute pipeline", desc.Label)
	}
	return &pipeline{label: desc.Label, layout: layout, compute: handle}, nil
}

func (d *Device) Destroy(resources ...rhi.Resource) {
	for _, r := range resources {
		switch v := r.(type) {
		case *buffer:
			if v.handle != nil {
				v.handle.Release()
				v.handle = nil
			}
		case *image:
			v.release()
		case *sampler:
			if v.handle != nil {
				v.handle.Release()
				v.handle = nil
			}
		case *descriptorLayout:
			if v.handle != nil {
				v.handle.Release()
				v.handle = nil
			}
		case *descriptorSet:
			if v.group != nil {
				v.group.Release()
				v.group = nil
			}
		case *shaderModule:
			if v.handle != nil {
				v.handle.Release()
				v.handle = nil
			}
		case *pipeline:
			v.release()
			v.render, v.compute, v.layout = nil, nil, nil
		case *commandList:
			v.release()
		case nil:
		default:
			d.log.Warn("destroying a resource from another device", "label", r.Label())
		}
	}
}

func (d *Device) NewCommandList(label string) (rhi.CommandList, error) {
	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, creationError(err, "command list", label)
	}
	return &commandList{label: label, device: d, encoder: encoder, sets: make(map[uint32]*descriptorSet)}, nil
}

func (d *Device) Submit(lists ...rhi.CommandList) error {
	buffers := make([]*wgpu.CommandBuffer, 0, len(lists))
	var errs error
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			errs = errors.CombineErrors(errs, rhi.ErrInvalidResource)
			continue
		}
		cb, err := cl.finish()
		if err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		buffers = append(buffers, cb)
	}
	if len(buffers) > 0 {
		d.queue.Submit(buffers...)
	}
	for _, cb := range buffers {
		cb.Release()
	}
	for _, l := range lists {
		if cl, ok := l.(*commandList); ok {
			cl.release()
		}
	}
	return errs
}

// Release closes the device and its surface. Resources must be destroyed first.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame != nil {
		d.frame.release()
		d.frame = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.surface != nil {
		d.surface.Release()
		d.surface = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

func creationError(err error, kind, label string) error {
	return errors.Wrapf(errors.Mark(err, rhi.ErrResourceCreation), "webgpu: creating %s %s", kind, label)
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) / a * a
}
