// Package renderer sequences the render passes of one frame. A Renderer owns the mesh and material
// registries, the scene, the culling stage and every pass, and exposes the frame lifecycle to the
// application loop: Resize, then Prepare, Render and PostProcess once per frame.
package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/culling"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/pass"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	// ErrUnknownRendererType is returned by New when the configuration names no known rendering path.
	ErrUnknownRendererType = errors.New("renderer: unknown renderer type")

	// ErrNotReady is returned by frame calls before the first successful Resize or after Destroy.
	ErrNotReady = errors.New("renderer: not ready")
)

// State is the lifecycle state of a Renderer.
type State int

const (
	// StateCreated is the state after New: passes exist but own no attachments.
	StateCreated State = iota

	// StateReady is the state after a successful Resize.
	StateReady

	// StateDestroyed is the state after Destroy.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Renderer drives the frame graph of one scene.
//
// Every method except the registry and scene accessors belongs to the render thread. Scene and registry
// mutations may come from any goroutine between frames.
type Renderer interface {
	// ID returns the renderer's unique id.
	ID() uuid.UUID

	// State returns the lifecycle state.
	State() State

	// Config returns the configuration the renderer was built with.
	Config() config.Config

	// Scene returns the scene the renderer draws.
	Scene() scene.Scene

	// Meshes returns the mesh registry.
	Meshes() *mesh.Registry

	// Materials returns the material registry.
	Materials() *material.Registry

	// Shaders returns the shader cache.
	Shaders() *shader.Cache

	// Frame returns the counter of the frame being recorded.
	Frame() uint64

	// Resize reallocates every per-frame attachment for a new output size and makes the renderer ready.
	//
	// Parameters:
	//   - cmd: the command list the bootstrap barriers are recorded into
	//   - width: the output width in pixels
	//   - height: the output height in pixels
	//
	// Returns:
	//   - error: an invalid extent, or an image creation error
	Resize(cmd rhi.CommandList, width, height uint32) error

	// UpdatePipelines builds the pipelines of every pipeline id the scene uses and rebuilds pipelines whose
	// shader was reloaded. It is idempotent for known ids.
	//
	// Returns:
	//   - error: ErrNotReady, or a shader or pipeline error
	UpdatePipelines() error

	// Prepare records the frame's uploads and culling: registry flushes, the scene update, new pipelines
	// and the compute culling of every view.
	//
	// Parameters:
	//   - cmd: the frame's command list
	//   - cam: the main camera
	//
	// Returns:
	//   - error: ErrNotReady, or a scene, pipeline or culling error
	Prepare(cmd rhi.CommandList, cam camera.Camera) error

	// Render records the shadow maps, the depth pre-pass, the color path, the shader-material pass and
	// the transparency pass.
	//
	// Parameters:
	//   - cmd: the frame's command list
	//
	// Returns:
	//   - error: ErrNotReady, or a pass error
	Render(cmd rhi.CommandList) error

	// PostProcess records the post-processing chain: bloom, custom passes, FXAA or SMAA, then gamma
	// correction. The frame counter advances afterwards.
	//
	// Parameters:
	//   - cmd: the frame's command list
	//   - target: an external attachment such as a swapchain image that receives the gamma-corrected
	//     color, or nil to render into the renderer's own output
	//
	// Returns:
	//   - error: ErrNotReady, or a pass error
	PostProcess(cmd rhi.CommandList, target *pass.Attachment) error

	// Output returns the final color attachment of a frame, or nil before the first Resize.
	//
	// Parameters:
	//   - frame: the frame counter
	//
	// Returns:
	//   - *pass.Attachment: the gamma-corrected color
	Output(frame uint64) *pass.Attachment

	// Destroy releases every resource of the renderer, its scene and its registries.
	Destroy()
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu     sync.Mutex
	id     uuid.UUID
	device rhi.Device
	cfg    config.Config
	log    *log.Logger
	state  State

	bin         *rhi.RecycleBin
	shaders     *shader.Cache
	ownsShaders bool
	stage       *culling.Stage
	meshes      *mesh.Registry
	materials   *material.Registry
	scene       scene.Scene
	ctx         pass.Context

	path           colorPath
	depth          *pass.Depth
	shaderMaterial *pass.ShaderMaterial
	oit            *pass.OIT
	shadow         *pass.Shadow
	ssao           *pass.SSAO
	bloom          *pass.Bloom
	custom         []pass.Effect
	antiAliasing   pass.Effect
	gamma          *pass.Gamma

	customFactories []CustomPassFactory
	sceneOptions    []scene.SceneBuilderOption

	extent pass.Extent
	frame  uint64
	cam    camera.Camera
	color  *pass.Attachment
}

var _ Renderer = &renderer{}

// New creates a renderer, its registries, its scene and every pass the configuration enables.
//
// Parameters:
//   - device: the device every resource is created on
//   - cfg: the renderer configuration
//   - options: variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer, in the created state
//   - error: ErrUnknownRendererType, a configuration error or a resource creation error
func New(device rhi.Device, cfg config.Config, options ...RendererBuilderOption) (Renderer, error) {
	if err := cfg.Validate(); err != nil {
		if cfg.RendererType > config.RendererDeferred {
			return nil, errors.Wrapf(ErrUnknownRendererType, "%d", cfg.RendererType)
		}
		return nil, err
	}
	r := &renderer{
		id:     uuid.New(),
		device: device,
		cfg:    cfg,
		state:  StateCreated,
	}
	for _, opt := range options {
		opt(r)
	}
	r.log = logger.Sub(r.log, "renderer")
	r.bin = rhi.NewRecycleBin(device, int(cfg.FramesInFlight))
	if cfg.MSAASamples > 1 {
		r.log.Warn("multisampling is not implemented, rendering single sampled", "samples", cfg.MSAASamples)
	}

	if err := r.build(); err != nil {
		r.Destroy()
		return nil, err
	}
	r.log.Info("renderer created", "id", r.id, "path", cfg.RendererType, "frames", cfg.FramesInFlight)
	return r, nil
}

// build creates the shared state and every pass. A partially built renderer is released by Destroy.
func (r *renderer) build() error {
	var err error
	if r.shaders == nil {
		opts := []shader.CacheBuilderOption{
			shader.WithLogger(r.log),
			shader.WithRecycleBin(r.bin),
			shader.WithValidation(r.cfg.ValidateShaders),
			shader.WithInclude("scene", scene.GPUSceneUniformSource, "SceneUniform"),
		}
		if r.cfg.ShaderDir != "" {
			opts = append(opts, shader.WithDir(r.cfg.ShaderDir))
		}
		if r.shaders, err = shader.NewCache(r.device, opts...); err != nil {
			return err
		}
		r.ownsShaders = true
	} else {
		r.shaders.Include("scene", scene.GPUSceneUniformSource, "SceneUniform")
	}

	if r.stage, err = culling.New(r.device, r.shaders, culling.WithRecycleBin(r.bin), culling.WithLogger(r.log)); err != nil {
		return err
	}
	if r.materials, err = material.NewRegistry(r.device, material.WithRecycleBin(r.bin), material.WithLogger(r.log)); err != nil {
		return err
	}
	if r.meshes, err = mesh.NewRegistry(r.device, mesh.WithRecycleBin(r.bin), mesh.WithLogger(r.log)); err != nil {
		return err
	}
	if r.ctx, err = pass.NewContext(r.device, r.shaders, r.cfg, r.bin, r.log); err != nil {
		return err
	}
	if r.shadow, err = pass.NewShadow(r.ctx, r.meshes, r.materials, r.stage); err != nil {
		return err
	}

	sceneOpts := append([]scene.SceneBuilderOption{
		scene.WithLogger(r.log),
		scene.WithRecycleBin(r.bin),
		scene.WithComputeWorkers(r.cfg.ComputeWorkers),
		scene.WithShadowRendererFactory(r.shadow.Factory()),
	}, r.sceneOptions...)
	if r.scene, err = scene.NewScene(r.device, r.cfg, r.stage, r.meshes, r.materials, sceneOpts...); err != nil {
		return err
	}
	r.shadow.Attach(r.scene.TableLayout())

	if r.path, err = newColorPath(r.ctx, r.scene, r.materials); err != nil {
		return err
	}
	r.depth = pass.NewDepth(r.ctx, r.scene, r.materials)
	r.shaderMaterial = pass.NewShaderMaterial(r.ctx, r.scene, r.materials)
	if r.oit, err = pass.NewOIT(r.ctx, r.scene, r.materials); err != nil {
		return err
	}
	return r.buildPostChain()
}

// buildPostChain creates the optional effects in their fixed order.
func (r *renderer) buildPostChain() error {
	var err error
	if r.cfg.SSAO.Enabled {
		if r.ssao, err = pass.NewSSAO(r.ctx); err != nil {
			return err
		}
	}
	if r.cfg.Bloom.Enabled {
		if r.bloom, err = pass.NewBloom(r.ctx); err != nil {
			return err
		}
	}
	for _, factory := range r.customFactories {
		effect, err := factory(r.ctx)
		if err != nil {
			return errors.Wrap(err, "renderer: creating custom pass")
		}
		r.custom = append(r.custom, effect)
	}
	switch r.cfg.AntiAliasing {
	case config.AntiAliasingFXAA:
		fxaa, err := pass.NewFXAA(r.ctx)
		if err != nil {
			return err
		}
		r.antiAliasing = fxaa
	case config.AntiAliasingSMAA:
		smaa, err := pass.NewSMAA(r.ctx)
		if err != nil {
			return err
		}
		r.antiAliasing = smaa
	}
	r.gamma, err = pass.NewGamma(r.ctx)
	return err
}

// passes returns every pass in recording order. Disabled effects are skipped.
func (r *renderer) passes() []pass.Pass {
	out := make([]pass.Pass, 0, 12)
	add := func(p pass.Pass, ok bool) {
		if ok {
			out = append(out, p)
		}
	}
	add(r.shadow, r.shadow != nil)
	add(r.depth, r.depth != nil)
	add(r.ssao, r.ssao != nil)
	add(r.path, r.path != nil)
	add(r.shaderMaterial, r.shaderMaterial != nil)
	add(r.oit, r.oit != nil)
	add(r.bloom, r.bloom != nil)
	for _, c := range r.custom {
		out = append(out, c)
	}
	add(r.antiAliasing, r.antiAliasing != nil)
	add(r.gamma, r.gamma != nil)
	return out
}

func (r *renderer) ID() uuid.UUID { return r.id }
func (r *renderer) Config() config.Config { return r.cfg }
func (r *renderer) Scene() scene.Scene { return r.scene }
func (r *renderer) Meshes() *mesh.Registry { return r.meshes }
func (r *renderer) Shaders() *shader.Cache { return r.shaders }
func (r *renderer) Materials() *material.Registry { return r.materials }

func (r *renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *renderer) Frame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

func (r *renderer) Resize(cmd rhi.CommandList, width, height uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return ErrNotReady
	}
	extent := pass.Extent{Width: width, Height: height}
	if !extent.Valid() {
		return errors.Newf("renderer: invalid output size %dx%d", width, height)
	}
	for _, p := range r.passes() {
		if err := p.Resize(cmd, extent); err != nil {
			return errors.Wrapf(err, "renderer: resizing %s", p.Name())
		}
	}
	r.extent = extent
	r.state = StateReady
	r.log.Debug("resized", "width", width, "height", height)
	return nil
}

func (r *renderer) UpdatePipelines() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady {
		return ErrNotReady
	}
	return r.updatePipelinesLocked()
}

func (r *renderer) updatePipelinesLocked() error {
	if err := r.stage.UpdatePipeline(); err != nil {
		return err
	}
	for _, p := range r.passes() {
		if err := p.UpdatePipelines(); err != nil {
			return errors.Wrapf(err, "renderer: updating %s pipelines", p.Name())
		}
	}
	return nil
}

func (r *renderer) Prepare(cmd rhi.CommandList, cam camera.Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady {
		return ErrNotReady
	}
	if n := r.bin.Collect(r.frame); n > 0 {
		r.log.Debug("collected retired resources", "count", n, "frame", r.frame)
	}
	r.cam = cam
	r.color = nil

	r.materials.Flush(cmd)
	r.meshes.Flush(cmd)
	if err := r.scene.Update(cmd, cam, r.frame); err != nil {
		return errors.Wrap(err, "renderer: updating scene")
	}
	if err := r.updatePipelinesLocked(); err != nil {
		return err
	}
	if err := r.scene.Compute(cmd, cam); err != nil {
		return errors.Wrap(err, "renderer: culling")
	}
	return nil
}

func (r *renderer) Render(cmd rhi.CommandList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady || r.cam == nil {
		return ErrNotReady
	}
	frame := r.frame

	if err := r.scene.RenderShadows(cmd); err != nil {
		return errors.Wrap(err, "renderer: shadows")
	}
	if err := r.depth.Render(cmd, frame); err != nil {
		return errors.Wrap(err, "renderer: depth pre-pass")
	}
	depth := r.depth.Output(frame)

	var ao *pass.Attachment
	if r.ssao != nil {
		var err error
		if ao, err = r.ssao.Render(cmd, frame, depth, r.cam.ProjectionMatrix()); err != nil {
			return errors.Wrap(err, "renderer: ssao")
		}
	}
	if err := r.path.Render(cmd, frame, depth, ao); err != nil {
		return errors.Wrapf(err, "renderer: %s", r.path.Name())
	}
	color := r.path.Output(frame)
	if err := r.shaderMaterial.Render(cmd, frame, color, depth); err != nil {
		return errors.Wrap(err, "renderer: shader materials")
	}
	if err := r.oit.Render(cmd, frame, color, depth); err != nil {
		return errors.Wrap(err, "renderer: transparency")
	}
	r.color = color
	return nil
}

func (r *renderer) PostProcess(cmd rhi.CommandList, target *pass.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady || r.color == nil {
		return ErrNotReady
	}
	frame := r.frame
	depth := r.depth.Output(frame)

	color := r.color
	chain := make([]pass.Effect, 0, len(r.custom)+2)
	if r.bloom != nil {
		chain = append(chain, r.bloom)
	}
	chain = append(chain, r.custom...)
	if r.antiAliasing != nil {
		chain = append(chain, r.antiAliasing)
	}
	for _, effect := range chain {
		out, err := effect.Apply(cmd, frame, color, depth)
		if err != nil {
			return errors.Wrapf(err, "renderer: %s", effect.Name())
		}
		color = out
	}

	if target != nil {
		if err := r.gamma.ApplyTo(cmd, frame, color, target); err != nil {
			return errors.Wrap(err, "renderer: gamma")
		}
	} else if _, err := r.gamma.Apply(cmd, frame, color, depth); err != nil {
		return errors.Wrap(err, "renderer: gamma")
	}
	r.color = nil
	r.frame++
	return nil
}

func (r *renderer) Output(frame uint64) *pass.Attachment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gamma == nil {
		return nil
	}
	return r.gamma.Output(frame)
}

func (r *renderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return
	}
	for _, p := range r.passes() {
		if p != pass.Pass(r.shadow) {
			p.Destroy()
		}
	}
	if r.scene != nil {
		r.scene.Destroy()
	}
	if r.shadow != nil {
		r.shadow.Destroy()
	}
	r.ctx.Destroy()
	if r.meshes != nil {
		r.meshes.Destroy()
	}
	if r.materials != nil {
		r.materials.Destroy()
	}
	if r.stage != nil {
		r.stage.Destroy()
	}
	if r.shaders != nil && r.ownsShaders {
		r.shaders.Destroy()
	}
	if r.bin != nil {
		r.bin.Drain()
	}
	r.state = StateDestroyed
	r.log.Info("renderer destroyed", "id", r.id, "frames", r.frame)
}
