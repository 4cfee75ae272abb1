package material

import (
	"sync"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/renderer/arena"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// ErrUnknownMaterial is returned when an ID does not name a registered material.
var ErrUnknownMaterial = errors.New("material: unknown material")

// Lookup resolves material ids. Registry implements it; the render core only depends on this interface.
type Lookup interface {
	// Get returns the material registered under id.
	Get(id ID) (Material, bool)
}

// PipelineInfo is the configuration shared by every material of one pipeline id.
type PipelineInfo struct {
	Kind         Kind
	ShaderName   string
	Transparency Transparency
	CullMode     rhi.CullMode
}

// Pipelines resolves pipeline ids to the configuration passes build their pipelines from.
type Pipelines interface {
	// Pipeline returns the configuration of a pipeline id.
	Pipeline(id PipelineID) (PipelineInfo, bool)
}

// Registry owns every material of a renderer, assigns pipeline ids and keeps the GPU material buffer.
// Add may be called from loader goroutines; Flush and Buffer belong to the render thread.
type Registry struct {
	mu        sync.RWMutex
	log       *log.Logger
	bin       *rhi.RecycleBin
	capacity  uint32
	maxCount  uint32
	arena     *arena.Arena
	materials map[ID]Material
	pipelines map[pipelineKey]PipelineID
}

var (
	_ Lookup    = &Registry{}
	_ Pipelines = &Registry{}
)

// NewRegistry creates an empty material registry and its GPU buffer.
//
// Parameters:
//   - device: the device that owns the material buffer
//   - options: functional options (capacity, recycle bin, logger)
//
// Returns:
//   - *Registry: the registry
//   - error: a buffer creation error
func NewRegistry(device rhi.Device, options ...RegistryBuilderOption) (*Registry, error) {
	r := &Registry{
		capacity:  64,
		maxCount:  1 << 16,
		materials: make(map[ID]Material),
		pipelines: make(map[pipelineKey]PipelineID),
	}
	for _, opt := range options {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Sub(nil, "material")
	}
	a, err := arena.New(device, "materials", GPUMaterialSize,
		arena.WithCapacity(r.capacity),
		arena.WithMaxCapacity(r.maxCount),
		arena.WithRecycleBin(r.bin),
		arena.WithLogger(r.log),
	)
	if err != nil {
		return nil, errors.Wrap(err, "material registry")
	}
	r.arena = a
	return r, nil
}

// Add registers m, assigns its pipeline id and stages its GPU record.
//
// Parameters:
//   - m: a material created with NewMaterial
//
// Returns:
//   - ID: the material id, also its index in the material buffer
//   - error: an error when m was not created by NewMaterial, has an invalid shader setup, or the buffer is full
func (r *Registry) Add(m Material) (ID, error) {
	impl, ok := m.(*material)
	if !ok {
		return 0, errors.Newf("material %q: not created by NewMaterial", m.Name())
	}
	if impl.kind == KindShader && impl.shaderName == "" {
		return 0, errors.Newf("material %q: shader material without shader name", impl.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	block, err := r.arena.Alloc(1)
	if err != nil {
		return 0, errors.Wrapf(err, "material %q", impl.name)
	}
	key := impl.key()
	pid, ok := r.pipelines[key]
	if !ok {
		pid = PipelineID(len(r.pipelines) + 1)
		r.pipelines[key] = pid
		r.log.Debug("new material pipeline", "pipeline", pid, "kind", key.kind, "shader", key.shaderName,
			"transparency", key.transparency, "cull", key.cullMode)
	}
	impl.pipelineID = pid

	gpu := impl.GPU()
	if err := r.arena.Write(block, gpu.Marshal()); err != nil {
		return 0, err
	}
	id := ID(block.Offset)
	r.materials[id] = impl
	return id, nil
}

// MustAdd is Add for static setup code; it panics on error.
func (r *Registry) MustAdd(m Material) ID {
	id, err := r.Add(m)
	if err != nil {
		panic(err)
	}
	return id
}

func (r *Registry) Get(id ID) (Material, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.materials[id]
	return m, ok
}

// Len returns the number of registered materials.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.materials)
}

// PipelineCount returns the number of distinct pipeline ids handed out so far.
func (r *Registry) PipelineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pipelines)
}

func (r *Registry) Pipeline(id PipelineID) (PipelineInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key, pid := range r.pipelines {
		if pid == id {
			return PipelineInfo{Kind: key.kind, ShaderName: key.shaderName, Transparency: key.transparency, CullMode: key.cullMode}, true
		}
	}
	return PipelineInfo{}, false
}

// Flush uploads newly staged material records and transitions the buffer for shader reads.
//
// Parameters:
//   - cmd: the command list that records the upload
//
// Returns:
//   - bool: true when anything was uploaded
func (r *Registry) Flush(cmd rhi.CommandList) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	uploaded := r.arena.Flush(cmd)
	r.arena.PostBarrier(cmd)
	return uploaded
}

// Buffer returns the material storage buffer. It changes when the registry grows.
func (r *Registry) Buffer() rhi.Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.arena.Buffer()
}

// Destroy releases the material buffer.
func (r *Registry) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arena.Destroy()
}
