package mesh

import (
	"sync"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/renderer/arena"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnknownMesh is returned for ids that do not name a registered mesh.
	ErrUnknownMesh = errors.New("mesh: unknown mesh")

	// ErrInvalidMesh is returned when a mesh has no surfaces or a surface range is out of bounds.
	ErrInvalidMesh = errors.New("mesh: invalid mesh")
)

// Resident is a registered mesh with surfaces resolved to absolute ranges of the shared buffers.
type Resident struct {
	Name     string
	Surfaces []Surface
	Bounds   Sphere

	vertices arena.Block
	indices  arena.Block
}

// Lookup resolves mesh ids. Registry implements it; the render core only depends on this interface.
type Lookup interface {
	// Get returns the resident mesh registered under id.
	Get(id ID) (Resident, bool)
}

// Registry places mesh geometry into one shared vertex buffer and one shared index buffer so every
// indirect draw can bind the same buffers.
type Registry struct {
	mu       sync.RWMutex
	log      *log.Logger
	vertices *arena.Arena
	indices  *arena.Arena
	meshes   map[ID]Resident
	nextID   ID
}

var _ Lookup = &Registry{}

// NewRegistry creates an empty mesh registry.
//
// Parameters:
//   - device: the device that owns the geometry buffers
//   - options: functional options (capacities, recycle bin, logger)
//
// Returns:
//   - *Registry: the registry
//   - error: a buffer creation error
func NewRegistry(device rhi.Device, options ...RegistryBuilderOption) (*Registry, error) {
	cfg := registryConfig{
		vertexCapacity: 1 << 12,
		maxVertices:    1 << 22,
		indexCapacity:  1 << 14,
		maxIndices:     1 << 24,
	}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Sub(nil, "mesh")
	}

	vertices, err := arena.New(device, "mesh-vertices", GPUVertexSize,
		arena.WithCapacity(cfg.vertexCapacity),
		arena.WithMaxCapacity(cfg.maxVertices),
		arena.WithUsage(rhi.BufferUsageVertex|rhi.BufferUsageStorage),
		arena.WithRecycleBin(cfg.bin),
		arena.WithLogger(cfg.log),
	)
	if err != nil {
		return nil, errors.Wrap(err, "mesh registry")
	}
	indices, err := arena.New(device, "mesh-indices", 4,
		arena.WithCapacity(cfg.indexCapacity),
		arena.WithMaxCapacity(cfg.maxIndices),
		arena.WithUsage(rhi.BufferUsageIndex),
		arena.WithRecycleBin(cfg.bin),
		arena.WithLogger(cfg.log),
	)
	if err != nil {
		vertices.Destroy()
		return nil, errors.Wrap(err, "mesh registry")
	}
	return &Registry{
		log:      cfg.log,
		vertices: vertices,
		indices:  indices,
		meshes:   make(map[ID]Resident),
	}, nil
}

// Add copies the geometry of m into the shared buffers.
//
// Parameters:
//   - m: the mesh to register
//
// Returns:
//   - ID: the id to reference the mesh with
//   - error: ErrInvalidMesh for meshes without surfaces or with out of range surfaces, or an arena error
func (r *Registry) Add(m Mesh) (ID, error) {
	surfaces := m.Surfaces()
	if len(surfaces) == 0 || len(m.Vertices()) == 0 {
		return 0, errors.Wrapf(ErrInvalidMesh, "mesh %q: no surfaces or vertices", m.Name())
	}
	for i, s := range surfaces {
		if s.IndexCount == 0 || uint64(s.FirstIndex)+uint64(s.IndexCount) > uint64(len(m.Indices())) {
			return 0, errors.Wrapf(ErrInvalidMesh, "mesh %q: surface %d range [%d,+%d) exceeds %d indices",
				m.Name(), i, s.FirstIndex, s.IndexCount, len(m.Indices()))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	vb, err := r.vertices.Alloc(uint32(len(m.Vertices())))
	if err != nil {
		return 0, errors.Wrapf(err, "mesh %q vertices", m.Name())
	}
	ib, err := r.indices.Alloc(uint32(len(m.Indices())))
	if err != nil {
		_ = r.vertices.Free(vb)
		return 0, errors.Wrapf(err, "mesh %q indices", m.Name())
	}
	if err := r.vertices.Write(vb, MarshalVertices(m.Vertices())); err != nil {
		return 0, err
	}
	if err := r.indices.Write(ib, MarshalIndices(m.Indices())); err != nil {
		return 0, err
	}

	resolved := make([]Surface, len(surfaces))
	for i, s := range surfaces {
		s.FirstIndex += ib.Offset
		s.VertexOffset += int32(vb.Offset)
		resolved[i] = s
	}
	id := r.nextID
	r.nextID++
	r.meshes[id] = Resident{
		Name:     m.Name(),
		Surfaces: resolved,
		Bounds:   m.Bounds(),
		vertices: vb,
		indices:  ib,
	}
	r.log.Debug("mesh added", "id", id, "name", m.Name(), "vertices", vb.Count, "indices", ib.Count, "surfaces", len(resolved))
	return id, nil
}

// Remove releases the geometry of a mesh. Instances still drawing it must be removed first.
//
// Parameters:
//   - id: the mesh id
//
// Returns:
//   - error: ErrUnknownMesh when id is not registered
func (r *Registry) Remove(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.meshes[id]
	if !ok {
		return errors.Wrapf(ErrUnknownMesh, "remove %d", id)
	}
	delete(r.meshes, id)
	return errors.CombineErrors(r.vertices.Free(res.vertices), r.indices.Free(res.indices))
}

func (r *Registry) Get(id ID) (Resident, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.meshes[id]
	return res, ok
}

// Len returns the number of registered meshes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.meshes)
}

// Flush uploads pending geometry and transitions both buffers for drawing.
//
// Parameters:
//   - cmd: the command list that records the upload
//
// Returns:
//   - bool: true when anything was uploaded
func (r *Registry) Flush(cmd rhi.CommandList) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.vertices.Flush(cmd)
	i := r.indices.Flush(cmd)
	r.vertices.PostBarrier(cmd)
	r.indices.PostBarrier(cmd)
	return v || i
}

// Bind binds the shared vertex buffer to slot 0 and the shared index buffer.
func (r *Registry) Bind(cmd rhi.CommandList) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd.BindVertexBuffer(0, r.vertices.Buffer(), 0)
	cmd.BindIndexBuffer(r.indices.Buffer(), 0, rhi.IndexUint32)
}

// VertexBuffer returns the shared vertex buffer. It changes when the registry grows.
func (r *Registry) VertexBuffer() rhi.Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vertices.Buffer()
}

// IndexBuffer returns the shared index buffer. It changes when the registry grows.
func (r *Registry) IndexBuffer() rhi.Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indices.Buffer()
}

// Destroy releases both geometry buffers.
func (r *Registry) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vertices.Destroy()
	r.indices.Destroy()
}
