// Package scene holds the per-frame state the render passes query: the lights and their shadow maps, the
// mesh instances grouped into one Pipeline Instance Table per pipeline id and draw category, and the scene
// uniform and descriptor set bound at group 0 of every geometry and lighting shader.
package scene

import (
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/arena"
	"github.com/Carmen-Shannon/prism/engine/renderer/culling"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var (
	// ErrInvalidHandle is returned for handles that were never issued or whose object was removed.
	ErrInvalidHandle = errors.New("scene: invalid handle")

	// ErrOutOfShadowMaps is returned when a shadow-casting light finds no free shadow map slot.
	ErrOutOfShadowMaps = errors.New("scene: out of memory for shadow map")

	// ErrTooManyLights is returned when adding a light past Limits.MaxLights.
	ErrTooManyLights = errors.New("scene: too many lights")

	// ErrTooManyInstances is returned when adding a mesh instance past Limits.MaxInstances.
	ErrTooManyInstances = errors.New("scene: too many instances")
)

// Scene group 0 bindings.
const (
	BindingUniform uint32 = iota
	BindingLights
	BindingShadows
	BindingShadowMaps
	BindingShadowSampler
	BindingMaterials
	BindingMeshInstances
)

// ShadowFormat is the format of the shadow map array.
const ShadowFormat = rhi.FormatDepth32Float

// InstanceHandle identifies a mesh instance. The zero value is never valid.
type InstanceHandle struct {
	index      uint32
	generation uint32
}

// Valid reports whether the handle was issued by a scene. It may still be stale.
func (h InstanceHandle) Valid() bool { return h.generation != 0 }

// LightHandle identifies a light. The zero value is never valid.
type LightHandle struct {
	index      uint32
	generation uint32
}

// Valid reports whether the handle was issued by a scene. It may still be stale.
func (h LightHandle) Valid() bool { return h.generation != 0 }

// Instance describes a mesh instance.
type Instance struct {
	// Mesh is the drawn mesh.
	Mesh mesh.ID

	// Materials overrides the surface materials when it holds one entry per surface.
	Materials []material.ID

	// Transform is the model-to-world matrix. The zero matrix is treated as identity.
	Transform mgl32.Mat4
}

// Meshes is what the scene needs from the mesh registry.
type Meshes interface {
	mesh.Lookup

	// Bind binds the shared vertex and index buffers.
	Bind(cmd rhi.CommandList)
}

// Materials is what the scene needs from the material registry.
type Materials interface {
	material.Lookup

	// Buffer returns the GPU material buffer.
	Buffer() rhi.Buffer
}

// DrawFunc binds the pipeline a table is drawn with. Returning false skips the table.
type DrawFunc func(cmd rhi.CommandList, table *instance_table.Table) bool

// Scene is the per-frame database of lights and mesh instances. Mutations may come from any goroutine;
// Update, Compute and the draw calls belong to the render thread and run in that order every frame.
type Scene interface {
	// ID returns the scene's unique id, used in GPU resource labels.
	ID() uuid.UUID

	// Layout returns the descriptor layout of the scene set (group 0).
	Layout() rhi.DescriptorLayout

	// TableLayout returns the descriptor layout every table set is created with (group 1).
	TableLayout() rhi.DescriptorLayout

	// DescriptorSet returns the scene set of a frame.
	//
	// Parameters:
	//   - frame: the frame counter; the set of frame % FramesInFlight is returned
	//
	// Returns:
	//   - rhi.DescriptorSet: the scene set
	DescriptorSet(frame uint64) rhi.DescriptorSet

	// MeshInstanceBuffer returns the buffer of 80-byte mesh-instance records. It changes when the arena grows.
	MeshInstanceBuffer() rhi.Buffer

	// ShadowMaps returns the shadow map array image.
	ShadowMaps() rhi.Image

	// Ambient returns the ambient light color.
	Ambient() [3]float32

	// SetAmbient sets the ambient light color.
	SetAmbient(r, g, b float32)

	// AddInstance registers a mesh instance in the table of every pipeline its surfaces use.
	//
	// Parameters:
	//   - inst: the instance
	//
	// Returns:
	//   - InstanceHandle: the handle of the new instance
	//   - error: ErrTooManyInstances, or a mesh, material or table error
	AddInstance(inst Instance) (InstanceHandle, error)

	// UpdateInstance replaces an instance's description. A changed mesh or material set moves the instance
	// between tables; a changed transform only rewrites its GPU record.
	//
	// Parameters:
	//   - h: the instance handle
	//   - inst: the new description
	//
	// Returns:
	//   - error: ErrInvalidHandle, or a mesh, material or table error
	UpdateInstance(h InstanceHandle, inst Instance) error

	// SetTransform rewrites an instance's world matrix and bounding sphere.
	//
	// Parameters:
	//   - h: the instance handle
	//   - world: the model-to-world matrix
	//
	// Returns:
	//   - error: ErrInvalidHandle
	SetTransform(h InstanceHandle, world mgl32.Mat4) error

	// RemoveInstance removes an instance. Tables drop it at the next Update.
	//
	// Parameters:
	//   - h: the instance handle
	//
	// Returns:
	//   - error: ErrInvalidHandle
	RemoveInstance(h InstanceHandle) error

	// InstanceCount returns the number of live instances.
	InstanceCount() int

	// AddLight adds a light. A shadow-casting light gets its shadow renderer and slot immediately.
	//
	// Parameters:
	//   - l: the light
	//
	// Returns:
	//   - LightHandle: the handle of the new light
	//   - error: ErrTooManyLights, ErrOutOfShadowMaps, or a shadow renderer error
	AddLight(l light.Light) (LightHandle, error)

	// Light returns the light behind a handle. Lights are mutated directly; Update repacks them every frame.
	//
	// Parameters:
	//   - h: the light handle
	//
	// Returns:
	//   - light.Light: the light
	//   - error: ErrInvalidHandle
	Light(h LightHandle) (light.Light, error)

	// SetLightCastShadows toggles shadow casting. The shadow renderer is created or released by the next Update.
	//
	// Parameters:
	//   - h: the light handle
	//   - cast: whether the light casts shadows
	//
	// Returns:
	//   - error: ErrInvalidHandle
	SetLightCastShadows(h LightHandle, cast bool) error

	// RemoveLight queues a light for removal by the next Update. The handle is invalid immediately.
	//
	// Parameters:
	//   - h: the light handle
	//
	// Returns:
	//   - error: ErrInvalidHandle
	RemoveLight(h LightHandle) error

	// LightCount returns the number of lights, including lights queued for removal.
	LightCount() int

	// ShadowCount returns the number of lights with an active shadow renderer.
	ShadowCount() int

	// Tables returns the tables of a category ordered by pipeline id.
	Tables(c instance_table.Category) []*instance_table.Table

	// Update records the per-frame uploads: deferred light removals, shadow renderer reconciliation,
	// shadow map bindings, the scene uniform, dirty instance records, every table's draw commands and
	// finally the packed lights and shadow data.
	//
	// Parameters:
	//   - cmd: the command list, outside any rendering scope
	//   - cam: the main camera
	//   - frame: the frame counter
	//
	// Returns:
	//   - error: ErrOutOfShadowMaps, or a buffer, table or descriptor error
	Update(cmd rhi.CommandList, cam camera.Camera, frame uint64) error

	// Compute records the frustum culling of every table against the main camera, then the light-space
	// culling of every shadow renderer. The frustum is the camera snapshot taken by the last Update, so
	// culling agrees with the scene uniform even when the camera moved in between.
	//
	// Parameters:
	//   - cmd: the command list, after Update and outside any rendering scope
	//   - cam: the main camera, only read when Update has not run yet
	//
	// Returns:
	//   - error: a culling error
	Compute(cmd rhi.CommandList, cam camera.Camera) error

	// DrawOpaques issues one indirect-count draw per opaque table with draw commands.
	//
	// Parameters:
	//   - cmd: the command list, inside a rendering scope with the scene set bound at group 0
	//   - bind: binds the table's pipeline
	//
	// Returns:
	//   - int: the number of tables drawn
	DrawOpaques(cmd rhi.CommandList, bind DrawFunc) int

	// DrawTransparent issues one indirect-count draw per transparent table with draw commands.
	DrawTransparent(cmd rhi.CommandList, bind DrawFunc) int

	// DrawShaderMaterial issues one indirect-count draw per shader-material table with draw commands.
	DrawShaderMaterial(cmd rhi.CommandList, bind DrawFunc) int

	// RenderShadows lets every shadow renderer record its shadow map faces.
	//
	// Parameters:
	//   - cmd: the command list, outside any rendering scope
	//
	// Returns:
	//   - error: the first renderer error
	RenderShadows(cmd rhi.CommandList) error

	// Validate checks the mesh-instance arena, every table and the shadow slot array.
	//
	// Returns:
	//   - error: the first violation found, or nil
	Validate() error

	// Destroy releases every GPU resource of the scene and stops its workers.
	Destroy()
}

type instanceSlot struct {
	generation uint32
	live       bool
	inst       Instance
	block      arena.Block
	tables     []*instance_table.Table
}

type lightSlot struct {
	generation uint32
	live       bool
	removing   bool
	light      light.Light
	shadow     *shadowState
}

type tableKey struct {
	category instance_table.Category
	pipeline material.PipelineID
}

type tableEntry struct {
	table  *instance_table.Table
	target *culling.Target
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu     sync.Mutex
	id     uuid.UUID
	device rhi.Device
	cfg    config.Config
	log    *log.Logger
	bin    *rhi.RecycleBin
	start  time.Time

	meshes    Meshes
	materials Materials
	stage     *culling.Stage

	ambient [3]float32

	instances     []instanceSlot
	freeInstances []uint32
	liveInstances int
	meshInstances *arena.Arena

	lights     []lightSlot
	freeLights []uint32
	liveLights int

	tables      map[tableKey]*tableEntry
	layout      rhi.DescriptorLayout
	tableLayout rhi.DescriptorLayout

	shadowFactory  ShadowRendererFactory
	shadowSettings light.ShadowSettings
	shadowMaps     rhi.Image
	blank          rhi.Image
	slots          []rhi.Image
	shadowVersion  uint64
	shadowSampler  rhi.Sampler
	shadowData     trackedBuffer

	lightBuffer   trackedBuffer
	lightCapacity uint32

	frames []frameState

	// culling frustum of the last Update, so Compute culls against the camera the uniform was built from
	cullViewProj mgl32.Mat4
	cullViewSet  bool

	computePool    worker.DynamicWorkerPool
	computeWorkers int
}

// Ensure scene implements Scene interface.
var _ Scene = &scene{}

// NewScene creates an empty scene and its GPU resources.
//
// Parameters:
//   - device: the device that owns the scene's resources
//   - cfg: the renderer configuration; limits, shadow settings and frames in flight are read once
//   - stage: the culling stage used for the main camera
//   - meshes: the mesh registry
//   - materials: the material registry
//   - options: functional options (shadow renderer factory, recycle bin, workers, logger)
//
// Returns:
//   - Scene: the scene
//   - error: a buffer, image or descriptor creation error
func NewScene(device rhi.Device, cfg config.Config, stage *culling.Stage, meshes Meshes, materials Materials, options ...SceneBuilderOption) (Scene, error) {
	s := &scene{
		id:             uuid.New(),
		device:         device,
		cfg:            cfg,
		start:          time.Now(),
		meshes:         meshes,
		materials:      materials,
		stage:          stage,
		ambient:        [3]float32{0.03, 0.03, 0.03},
		tables:         make(map[tableKey]*tableEntry),
		computeWorkers: cfg.ComputeWorkers,
		shadowSettings: ShadowSettings(cfg),
	}
	for _, option := range options {
		option(s)
	}
	if s.log == nil {
		s.log = logger.Sub(nil, "scene")
	}
	if s.computeWorkers < 1 {
		s.computeWorkers = max(runtime.NumCPU()-1, 1)
	}
	if s.shadowFactory == nil {
		s.shadowFactory = ProjectionOnly(s.shadowSettings)
	}
	s.cfg.FramesInFlight = max(s.cfg.FramesInFlight, 1)

	if err := s.createResources(); err != nil {
		s.destroyResources()
		return nil, err
	}

	// Workers are reused across frames; the queue holds one task per table.
	s.computePool = worker.NewDynamicWorkerPool(s.computeWorkers, 256, 1*time.Second)
	s.log.Debug("scene created", "scene", s.id, "workers", s.computeWorkers, "shadow_maps", s.cfg.Shadows.MaxShadowMaps)
	return s, nil
}

// ShadowSettings converts the shadow section of a configuration into the settings light projections use.
func ShadowSettings(cfg config.Config) light.ShadowSettings {
	return light.ShadowSettings{
		Resolution:  cfg.Shadows.Resolution,
		Cascades:    int(cfg.Shadows.Cascades),
		SplitLambda: cfg.Shadows.SplitLambda,
		Bias:        cfg.Shadows.Bias,
		NormalBias:  cfg.Shadows.NormalBias,
	}
}

func (s *scene) ID() uuid.UUID { return s.id }

func (s *scene) Layout() rhi.DescriptorLayout { return s.layout }

func (s *scene) TableLayout() rhi.DescriptorLayout { return s.tableLayout }

func (s *scene) DescriptorSet(frame uint64) rhi.DescriptorSet {
	return s.frames[frame%uint64(len(s.frames))].set
}

func (s *scene) MeshInstanceBuffer() rhi.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meshInstances.Buffer()
}

func (s *scene) ShadowMaps() rhi.Image { return s.shadowMaps }

func (s *scene) Ambient() [3]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ambient
}

func (s *scene) SetAmbient(r, g, b float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ambient = [3]float32{r, g, b}
}

func (s *scene) AddInstance(inst Instance) (InstanceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit := s.cfg.Limits.MaxInstances; limit > 0 && uint32(s.liveInstances) >= limit {
		return InstanceHandle{}, errors.Wrapf(ErrTooManyInstances, "scene %s: limit %d", s.label(), limit)
	}
	inst = normalizeInstance(inst)
	res, err := s.resolve(inst)
	if err != nil {
		return InstanceHandle{}, err
	}

	block, err := s.meshInstances.Alloc(1)
	if err != nil {
		if errors.Is(err, arena.ErrArenaExhausted) {
			err = errors.Mark(err, ErrTooManyInstances)
		}
		return InstanceHandle{}, errors.Wrapf(err, "scene %s: allocating mesh instance", s.label())
	}
	if err := s.writeRecord(block, inst.Transform, res.Bounds); err != nil {
		_ = s.meshInstances.Free(block)
		return InstanceHandle{}, err
	}
	tables, err := s.register(block.Offset, inst, res)
	if err != nil {
		_ = s.meshInstances.Free(block)
		return InstanceHandle{}, err
	}

	var index uint32
	if n := len(s.freeInstances); n > 0 {
		index = s.freeInstances[n-1]
		s.freeInstances = s.freeInstances[:n-1]
	} else {
		index = uint32(len(s.instances))
		s.instances = append(s.instances, instanceSlot{})
	}
	slot := &s.instances[index]
	slot.generation++
	slot.live = true
	slot.inst = inst
	slot.block = block
	slot.tables = tables
	s.liveInstances++
	return InstanceHandle{index: index, generation: slot.generation}, nil
}

func (s *scene) UpdateInstance(h InstanceHandle, inst Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, err := s.instance(h)
	if err != nil {
		return err
	}
	inst = normalizeInstance(inst)
	res, err := s.resolve(inst)
	if err != nil {
		return err
	}
	if len(slot.tables) == 0 || inst.Mesh != slot.inst.Mesh || !slices.Equal(inst.Materials, slot.inst.Materials) {
		s.unregister(slot)
		tables, err := s.register(slot.block.Offset, inst, res)
		if err != nil {
			// drawn by no table until a later update registers it again
			return err
		}
		slot.tables = tables
	}
	slot.inst = inst
	return s.writeRecord(slot.block, inst.Transform, res.Bounds)
}

func (s *scene) SetTransform(h InstanceHandle, world mgl32.Mat4) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, err := s.instance(h)
	if err != nil {
		return err
	}
	res, ok := s.meshes.Get(slot.inst.Mesh)
	if !ok {
		return errors.Wrapf(mesh.ErrUnknownMesh, "scene %s: mesh %d", s.label(), slot.inst.Mesh)
	}
	slot.inst.Transform = world
	return s.writeRecord(slot.block, world, res.Bounds)
}

func (s *scene) RemoveInstance(h InstanceHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, err := s.instance(h)
	if err != nil {
		return err
	}
	s.unregister(slot)
	if err := s.meshInstances.Free(slot.block); err != nil {
		return errors.Wrapf(err, "scene %s: freeing mesh instance", s.label())
	}
	slot.live = false
	slot.inst = Instance{}
	slot.tables = nil
	s.freeInstances = append(s.freeInstances, h.index)
	s.liveInstances--
	return nil
}

func (s *scene) InstanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveInstances
}

func (s *scene) AddLight(l light.Light) (LightHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit := s.cfg.Limits.MaxLights; limit > 0 && uint32(s.liveLights) >= limit {
		return LightHandle{}, errors.Wrapf(ErrTooManyLights, "scene %s: limit %d", s.label(), limit)
	}

	var index uint32
	if n := len(s.freeLights); n > 0 {
		index = s.freeLights[n-1]
	} else {
		index = uint32(len(s.lights))
	}
	var shadow *shadowState
	if l.CastsShadows() {
		var err error
		if shadow, err = s.allocateShadow(l); err != nil {
			return LightHandle{}, err
		}
	}

	if n := len(s.freeLights); n > 0 {
		s.freeLights = s.freeLights[:n-1]
	} else {
		s.lights = append(s.lights, lightSlot{})
	}
	slot := &s.lights[index]
	slot.generation++
	slot.live = true
	slot.removing = false
	slot.light = l
	slot.shadow = shadow
	s.liveLights++
	return LightHandle{index: index, generation: slot.generation}, nil
}

func (s *scene) Light(h LightHandle) (light.Light, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, err := s.lightSlot(h)
	if err != nil {
		return nil, err
	}
	return slot.light, nil
}

func (s *scene) SetLightCastShadows(h LightHandle, cast bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, err := s.lightSlot(h)
	if err != nil {
		return err
	}
	slot.light.SetCastsShadows(cast)
	return nil
}

func (s *scene) RemoveLight(h LightHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, err := s.lightSlot(h)
	if err != nil {
		return err
	}
	slot.removing = true
	return nil
}

func (s *scene) LightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLights
}

func (s *scene) ShadowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeShadows()
}

func (s *scene) Tables(c instance_table.Category) []*instance_table.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tablesOf(c)
}

func (s *scene) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.computePool != nil {
		s.computePool.Stop()
		s.computePool = nil
	}
	for i := range s.lights {
		if s.lights[i].shadow != nil {
			s.freeShadow(s.lights[i].shadow)
			s.lights[i].shadow = nil
		}
	}
	for key, e := range s.tables {
		e.target.Destroy()
		e.table.Destroy()
		delete(s.tables, key)
	}
	s.destroyResources()
}

func normalizeInstance(inst Instance) Instance {
	if inst.Transform == (mgl32.Mat4{}) {
		inst.Transform = mgl32.Ident4()
	}
	inst.Materials = slices.Clone(inst.Materials)
	return inst
}

// resolve checks that the mesh and every surface material exist.
func (s *scene) resolve(inst Instance) (mesh.Resident, error) {
	res, ok := s.meshes.Get(inst.Mesh)
	if !ok {
		return mesh.Resident{}, errors.Wrapf(mesh.ErrUnknownMesh, "scene %s: mesh %d", s.label(), inst.Mesh)
	}
	mi := instance_table.MeshInstance{Mesh: inst.Mesh, Materials: inst.Materials}
	for i, surface := range res.Surfaces {
		id := mi.MaterialFor(i, surface)
		if _, ok := s.materials.Get(id); !ok {
			return mesh.Resident{}, errors.Wrapf(material.ErrUnknownMaterial, "scene %s: mesh %d surface %d material %d", s.label(), inst.Mesh, i, id)
		}
	}
	return res, nil
}

// register adds the instance to the table of every (category, pipeline) its surfaces use, creating
// tables on first use. On failure the instance is removed from the tables it was already added to.
func (s *scene) register(index uint32, inst Instance, res mesh.Resident) ([]*instance_table.Table, error) {
	mi := instance_table.MeshInstance{Index: index, Mesh: inst.Mesh, Materials: inst.Materials}
	var keys []tableKey
	for i, surface := range res.Surfaces {
		m, _ := s.materials.Get(mi.MaterialFor(i, surface))
		key := tableKey{category: instance_table.Classify(m), pipeline: m.PipelineID()}
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}

	var added []*instance_table.Table
	for _, key := range keys {
		e, err := s.table(key)
		if err == nil {
			var n int
			n, err = e.table.AddInstance(mi)
			if n > 0 {
				added = append(added, e.table)
			}
		}
		if err != nil {
			for _, t := range added {
				_ = t.RemoveInstance(index)
			}
			return nil, errors.Wrapf(err, "scene %s: registering instance %d", s.label(), index)
		}
	}
	return added, nil
}

func (s *scene) unregister(slot *instanceSlot) {
	for _, t := range slot.tables {
		if err := t.RemoveInstance(slot.block.Offset); err != nil {
			s.log.Warn("instance missing from table", "scene", s.id, "instance", slot.block.Offset, "err", err)
		}
	}
	slot.tables = nil
}

func (s *scene) table(key tableKey) (*tableEntry, error) {
	if e, ok := s.tables[key]; ok {
		return e, nil
	}
	opts := []instance_table.TableBuilderOption{
		instance_table.WithDescriptorLayout(s.tableLayout),
		instance_table.WithRecycleBin(s.bin),
		instance_table.WithLogger(s.log),
	}
	if n := s.cfg.Limits.MaxSurfacesPerPipeline; n > 0 {
		opts = append(opts, instance_table.WithMaxSurfaces(n))
	}
	t, err := instance_table.New(s.device, key.pipeline, key.category, s.meshes, s.materials, opts...)
	if err != nil {
		return nil, err
	}
	target, err := s.stage.NewTarget(s.label()+"/"+key.category.String()+"-"+pipelineLabel(key.pipeline), false)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	e := &tableEntry{table: t, target: target}
	s.tables[key] = e
	s.log.Debug("table created", "scene", s.id, "category", key.category, "pipeline", key.pipeline)
	return e, nil
}

func (s *scene) tablesOf(c instance_table.Category) []*instance_table.Table {
	var out []*instance_table.Table
	for _, e := range s.entriesOf(c) {
		out = append(out, e.table)
	}
	return out
}

func (s *scene) entriesOf(c instance_table.Category) []*tableEntry {
	var out []*tableEntry
	for key, e := range s.tables {
		if key.category == c {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *tableEntry) int {
		return int(a.table.PipelineID()) - int(b.table.PipelineID())
	})
	return out
}

func (s *scene) writeRecord(block arena.Block, world mgl32.Mat4, bounds mesh.Sphere) error {
	center, radius := common.TransformSphere(world, bounds.Center, bounds.Radius)
	rec := instance_table.GPUMeshInstance{World: world, Center: center, Radius: radius}
	return s.meshInstances.Write(block, rec.Marshal())
}

func (s *scene) instance(h InstanceHandle) (*instanceSlot, error) {
	if int(h.index) >= len(s.instances) {
		return nil, errors.Wrapf(ErrInvalidHandle, "scene %s: instance %d", s.label(), h.index)
	}
	slot := &s.instances[h.index]
	if !slot.live || slot.generation != h.generation {
		return nil, errors.Wrapf(ErrInvalidHandle, "scene %s: stale instance %d", s.label(), h.index)
	}
	return slot, nil
}

func (s *scene) lightSlot(h LightHandle) (*lightSlot, error) {
	if int(h.index) >= len(s.lights) {
		return nil, errors.Wrapf(ErrInvalidHandle, "scene %s: light %d", s.label(), h.index)
	}
	slot := &s.lights[h.index]
	if !slot.live || slot.removing || slot.generation != h.generation {
		return nil, errors.Wrapf(ErrInvalidHandle, "scene %s: stale light %d", s.label(), h.index)
	}
	return slot, nil
}

func (s *scene) label() string {
	return "scene-" + s.id.String()[:8]
}
