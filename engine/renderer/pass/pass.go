// Package pass holds the render passes the renderer chains every frame. Each pass owns its descriptor
// layouts, a pipeline template and per-frame attachments, and records exactly one logical GPU pass per
// Render call.
package pass

import (
	"strconv"

	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotResized is returned by Render when the pass has no attachments yet.
	ErrNotResized = errors.New("pass: render before resize")

	// ErrUnknownPipeline is returned when a table's pipeline id is unknown to the material registry.
	ErrUnknownPipeline = errors.New("pass: unknown pipeline id")
)

// Extent is the size of the render output in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Valid reports whether both dimensions are positive.
func (e Extent) Valid() bool { return e.Width > 0 && e.Height > 0 }

// Viewport returns the full-extent viewport.
func (e Extent) Viewport() rhi.Viewport {
	return rhi.Viewport{Width: float32(e.Width), Height: float32(e.Height), MaxDepth: 1}
}

// Scissor returns the full-extent scissor rectangle.
func (e Extent) Scissor() rhi.Rect {
	return rhi.Rect{Width: e.Width, Height: e.Height}
}

// Attachment is an image together with the state the last recorded command left it in.
type Attachment struct {
	Image rhi.Image
	State rhi.ResourceState
}

// Transition records a barrier moving the attachment into state to. It records nothing when the
// attachment is already there.
//
// Parameters:
//   - cmd: the command list
//   - to: the target state
func (a *Attachment) Transition(cmd rhi.CommandList, to rhi.ResourceState) {
	if a == nil || a.State == to {
		return
	}
	cmd.Barrier(rhi.ImageBarrier(a.Image, a.State, to))
	a.State = to
}

// Pass is the contract every render pass shares.
type Pass interface {
	// Name returns the pass name used in labels and logs.
	Name() string

	// Resize reallocates the per-frame attachments and records their bootstrap barriers.
	//
	// Parameters:
	//   - cmd: the command list the bootstrap barriers are recorded into
	//   - extent: the new output size
	//
	// Returns:
	//   - error: an image or descriptor creation error
	Resize(cmd rhi.CommandList, extent Extent) error

	// UpdatePipelines builds the pipelines of every pipeline id the pass draws. Known ids are skipped.
	//
	// Returns:
	//   - error: a shader or pipeline creation error
	UpdatePipelines() error

	// Destroy releases every resource of the pass.
	Destroy()
}

// Context carries what every pass is constructed from.
type Context struct {
	Device  rhi.Device
	Shaders *shader.Cache
	Config  config.Config
	Bin     *rhi.RecycleBin
	Log     *log.Logger

	// Fallbacks are bound wherever an optional input is missing.
	Fallbacks *Fallbacks
}

// NewContext creates a pass context and its fallback images.
//
// Parameters:
//   - device: the device passes create resources on
//   - shaders: the shader cache
//   - cfg: the renderer configuration
//   - bin: the recycle bin, or nil to destroy resources immediately
//   - l: the parent logger, or nil
//
// Returns:
//   - Context: the context
//   - error: an image creation error
func NewContext(device rhi.Device, shaders *shader.Cache, cfg config.Config, bin *rhi.RecycleBin, l *log.Logger) (Context, error) {
	fb, err := NewFallbacks(device)
	if err != nil {
		return Context{}, err
	}
	cfg.FramesInFlight = max(cfg.FramesInFlight, 1)
	return Context{
		Device:    device,
		Shaders:   shaders,
		Config:    cfg,
		Bin:       bin,
		Log:       logger.Sub(l, "pass"),
		Fallbacks: fb,
	}, nil
}

// Destroy releases the fallback images.
func (c Context) Destroy() {
	if c.Fallbacks != nil {
		c.Fallbacks.Destroy(c.Device)
	}
}

// Fallbacks are 1x1 images bound in place of missing optional inputs.
type Fallbacks struct {
	Color *Attachment
	Depth *Attachment

	bootstrapped bool
}

// NewFallbacks creates the fallback color and depth images.
func NewFallbacks(device rhi.Device) (*Fallbacks, error) {
	color, err := device.CreateImage(rhi.ImageDesc{
		Label: "fallback/color", Width: 1, Height: 1, Layers: 1, Format: rhi.FormatRGBA8Unorm,
		Usage: rhi.ImageUsageSampled | rhi.ImageUsageCopyDst, Samples: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "pass: creating fallback color image")
	}
	depth, err := device.CreateImage(rhi.ImageDesc{
		Label: "fallback/depth", Width: 1, Height: 1, Layers: 1, Format: rhi.FormatDepth32Float,
		Usage: rhi.ImageUsageSampled, Samples: 1,
	})
	if err != nil {
		device.Destroy(color)
		return nil, errors.Wrap(err, "pass: creating fallback depth image")
	}
	return &Fallbacks{Color: &Attachment{Image: color}, Depth: &Attachment{Image: depth}}, nil
}

// Bootstrap moves both images into the sampled state the first time it is called.
func (f *Fallbacks) Bootstrap(cmd rhi.CommandList) {
	if f.bootstrapped {
		return
	}
	f.Color.Transition(cmd, rhi.StateShaderRead)
	f.Depth.Transition(cmd, rhi.StateDepthStencilRead)
	f.bootstrapped = true
}

// Destroy releases both images.
func (f *Fallbacks) Destroy(device rhi.Device) {
	device.Destroy(f.Color.Image, f.Depth.Image)
}

// base holds the state every pass shares.
type base struct {
	name    string
	device  rhi.Device
	shaders *shader.Cache
	cfg     config.Config
	bin     *rhi.RecycleBin
	log     *log.Logger
	fb      *Fallbacks
	extent  Extent
}

func newBase(ctx Context, name string) base {
	l := ctx.Log
	if l == nil {
		l = logger.Sub(nil, "pass")
	}
	return base{
		name:    name,
		device:  ctx.Device,
		shaders: ctx.Shaders,
		cfg:     ctx.Config,
		bin:     ctx.Bin,
		log:     logger.Sub(l, name),
		fb:      ctx.Fallbacks,
	}
}

func (b *base) Name() string { return b.name }

// frames returns the number of frames in flight.
func (b *base) frames() int { return int(max(b.cfg.FramesInFlight, 1)) }

// slot maps a frame counter to its per-frame resource index.
func (b *base) slot(frame uint64) int { return int(frame % uint64(b.frames())) }

func (b *base) label(parts ...string) string {
	out := b.name
	for _, p := range parts {
		out += "/" + p
	}
	return out
}

func (b *base) retire(resources ...rhi.Resource) {
	live := make([]rhi.Resource, 0, len(resources))
	for _, r := range resources {
		if r != nil {
			live = append(live, r)
		}
	}
	if len(live) == 0 {
		return
	}
	if b.bin != nil {
		b.bin.Retire(live...)
		return
	}
	b.device.Destroy(live...)
}

// retireAttachments retires every image of atts.
func (b *base) retireAttachments(atts []*Attachment) {
	for _, a := range atts {
		if a != nil {
			b.retire(a.Image)
		}
	}
}

// createTargets creates one render target per frame in flight and records the bootstrap barrier into
// state to.
func (b *base) createTargets(cmd rhi.CommandList, name string, format rhi.Format, to rhi.ResourceState) ([]*Attachment, error) {
	out := make([]*Attachment, b.frames())
	for i := range out {
		img, err := b.device.CreateRenderTarget(rhi.ImageDesc{
			Label:   b.label(name, strconv.Itoa(i)),
			Width:   b.extent.Width,
			Height:  b.extent.Height,
			Layers:  1,
			Format:  format,
			Usage:   rhi.ImageUsageSampled | rhi.ImageUsageRenderTarget,
			Samples: 1,
		})
		if err != nil {
			b.retireAttachments(out[:i])
			return nil, errors.Wrapf(err, "%s: creating %s target %d", b.name, name, i)
		}
		out[i] = &Attachment{Image: img}
		out[i].Transition(cmd, to)
	}
	return out, nil
}

// setViewport sets the full-extent viewport and scissor.
func (b *base) setViewport(cmd rhi.CommandList) {
	cmd.SetViewport(b.extent.Viewport())
	cmd.SetScissors(b.extent.Scissor())
}

// resized validates a new extent and stores it. It returns false when nothing changed.
func (b *base) resized(extent Extent) (bool, error) {
	if !extent.Valid() {
		return false, errors.Newf("%s: invalid extent %dx%d", b.name, extent.Width, extent.Height)
	}
	if extent == b.extent {
		return false, nil
	}
	b.extent = extent
	b.log.Debug("resized", "width", extent.Width, "height", extent.Height)
	return true, nil
}

// pipelineInfo resolves a pipeline id through the material registry.
func pipelineInfo(materials material.Pipelines, id material.PipelineID) (material.PipelineInfo, error) {
	info, ok := materials.Pipeline(id)
	if !ok {
		return material.PipelineInfo{}, errors.Wrapf(ErrUnknownPipeline, "pipeline %d", id)
	}
	return info, nil
}
