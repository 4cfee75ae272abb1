// Package instance_table implements the per-pipeline bucket of draw work. A Table owns the InstanceData
// records of every mesh-instance surface drawn by one pipeline id, the CPU list of DrawCommands built from
// them and the GPU buffers the culling stage and the indirect draws consume.
package instance_table

import (
	"slices"
	"strconv"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/arena"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

var (
	// ErrTooManySurfaces is returned when an instance would push the table past its surface limit.
	ErrTooManySurfaces = errors.New("instance table: too many surfaces")

	// ErrDuplicateInstance is returned when a mesh instance is added twice.
	ErrDuplicateInstance = errors.New("instance table: instance already present")

	// ErrUnknownInstance is returned when removing an instance the table does not hold.
	ErrUnknownInstance = errors.New("instance table: unknown instance")
)

// Category is the draw category of a table. A surface belongs to exactly one category.
type Category uint8

const (
	CategoryOpaque Category = iota
	CategoryTransparent
	CategoryShaderMaterial
)

var categoryNames = [...]string{"opaque", "transparent", "shader-material"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// Classify returns the category a material is drawn in. Shader materials take priority over
// transparency, which takes priority over opaque.
//
// Parameters:
//   - m: the material
//
// Returns:
//   - Category: the draw category
func Classify(m material.Material) Category {
	switch {
	case m.Kind() == material.KindShader:
		return CategoryShaderMaterial
	case m.Transparency() == material.TransparencyBlend:
		return CategoryTransparent
	default:
		return CategoryOpaque
	}
}

// MeshInstance is the part of a scene mesh instance a table needs to build draw commands.
type MeshInstance struct {
	// Index is the element index of the instance's record in the scene's mesh-instance arena. It
	// identifies the instance inside the table.
	Index uint32

	// Mesh is the drawn mesh.
	Mesh mesh.ID

	// Materials overrides the surface materials when it holds one entry per surface.
	Materials []material.ID
}

// MaterialFor returns the material the instance draws surface i with.
func (mi MeshInstance) MaterialFor(i int, s mesh.Surface) material.ID {
	if len(mi.Materials) > i {
		return mi.Materials[i]
	}
	return s.Material
}

type entry struct {
	instance MeshInstance
	block    arena.Block
	surfaces []uint32
}

// Table is a Pipeline Instance Table. Mutations and UpdateData run on the render thread; Prepare may run
// concurrently with the Prepare of other tables.
type Table struct {
	device    rhi.Device
	bin       *rhi.RecycleBin
	log       *log.Logger
	meshes    mesh.Lookup
	materials material.Lookup

	pipeline    material.PipelineID
	category    Category
	maxSurfaces uint32

	instances *arena.Arena
	live      map[uint32]*entry
	order     []uint32
	pending   map[uint32]struct{}
	surfaces  uint32

	commands      []DrawCommand
	commandsDirty bool
	rebuild       bool
	prepared      bool

	capacity    uint32
	commandsBuf rhi.Buffer
	culledBuf   rhi.Buffer
	countBuf    rhi.Buffer
	commandsSt  rhi.ResourceState

	staging     rhi.Buffer
	stagingSize uint64

	layout   rhi.DescriptorLayout
	set      rhi.DescriptorSet
	setBound rhi.Buffer
}

// New creates an empty table for one pipeline id and category.
//
// Parameters:
//   - device: the device that owns the table's buffers
//   - pipeline: the pipeline id whose surfaces the table holds
//   - category: the draw category whose surfaces the table holds
//   - meshes: resolves mesh ids to resident surfaces
//   - materials: resolves material ids to pipeline ids and categories
//   - options: functional options (limits, recycle bin, descriptor layout, logger)
//
// Returns:
//   - *Table: the table
//   - error: a buffer or descriptor creation error
func New(device rhi.Device, pipeline material.PipelineID, category Category, meshes mesh.Lookup, materials material.Lookup, options ...TableBuilderOption) (*Table, error) {
	t := &Table{
		device:      device,
		meshes:      meshes,
		materials:   materials,
		pipeline:    pipeline,
		category:    category,
		maxSurfaces: 1 << 16,
		capacity:    64,
		live:        make(map[uint32]*entry),
		pending:     make(map[uint32]struct{}),
	}
	for _, opt := range options {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Sub(nil, "instance-table")
	}
	t.capacity = min(t.capacity, t.maxSurfaces)

	var err error
	t.instances, err = arena.New(device, t.label("instances"), InstanceDataSize,
		arena.WithCapacity(t.capacity),
		arena.WithMaxCapacity(t.maxSurfaces),
		arena.WithUsage(rhi.BufferUsageStorage),
		arena.WithRecycleBin(t.bin),
		arena.WithLogger(t.log),
	)
	if err != nil {
		return nil, err
	}
	if err := t.createCommandBuffers(t.capacity); err != nil {
		t.instances.Destroy()
		return nil, err
	}
	if t.layout != nil {
		if t.set, err = device.CreateDescriptorSet(t.layout, t.label("set")); err != nil {
			t.Destroy()
			return nil, errors.Wrapf(err, "instance table %s: creating descriptor set", t.label(""))
		}
	}
	return t, nil
}

// AddInstance adds every surface of the instance whose material resolves to this table's pipeline id
// and category. Other surfaces are skipped: a mesh may span several tables.
//
// Parameters:
//   - mi: the mesh instance
//
// Returns:
//   - int: the number of surfaces added, zero when none belongs to this table
//   - error: ErrDuplicateInstance, ErrTooManySurfaces, or a lookup or arena error
func (t *Table) AddInstance(mi MeshInstance) (int, error) {
	if _, ok := t.pending[mi.Index]; ok {
		// re-added before the removal was processed: finish the removal now
		if err := t.removeNow(mi.Index); err != nil {
			return 0, err
		}
	}
	if _, ok := t.live[mi.Index]; ok {
		return 0, errors.Wrapf(ErrDuplicateInstance, "instance %d", mi.Index)
	}
	res, ok := t.meshes.Get(mi.Mesh)
	if !ok {
		return 0, errors.Wrapf(mesh.ErrUnknownMesh, "instance %d mesh %d", mi.Index, mi.Mesh)
	}

	var included []uint32
	for i, s := range res.Surfaces {
		mat, ok := t.materials.Get(mi.MaterialFor(i, s))
		if !ok {
			return 0, errors.Wrapf(material.ErrUnknownMaterial, "instance %d surface %d", mi.Index, i)
		}
		if mat.PipelineID() != t.pipeline || Classify(mat) != t.category {
			continue
		}
		included = append(included, uint32(i))
	}
	if len(included) == 0 {
		return 0, nil
	}
	n := uint32(len(included))
	if t.surfaces+n > t.maxSurfaces {
		return 0, errors.Wrapf(ErrTooManySurfaces, "table %s: %d live + %d > %d", t.label(""), t.surfaces, n, t.maxSurfaces)
	}

	block, err := t.instances.Alloc(n)
	if err != nil {
		return 0, errors.Wrapf(err, "table %s: instance %d", t.label(""), mi.Index)
	}
	records := make([]byte, 0, n*InstanceDataSize)
	for _, si := range included {
		s := res.Surfaces[si]
		d := InstanceData{
			MeshInstance: mi.Index,
			Material:     uint32(mi.MaterialFor(int(si), s)),
			Surface:      si,
			Mesh:         uint32(mi.Mesh),
		}
		records = append(records, d.Marshal()...)
	}
	if err := t.instances.Write(block, records); err != nil {
		return 0, err
	}

	e := &entry{instance: mi, block: block, surfaces: included}
	t.live[mi.Index] = e
	t.order = append(t.order, mi.Index)
	t.surfaces += n
	if !t.rebuild {
		t.commands = t.appendCommands(t.commands, e, res)
	}
	t.commandsDirty = true
	t.prepared = false
	return len(included), nil
}

// RemoveInstance queues the instance for removal. The next Prepare or UpdateData frees its block and
// rebuilds the draw commands of every remaining instance.
//
// Parameters:
//   - index: the mesh-instance index given to AddInstance
//
// Returns:
//   - error: ErrUnknownInstance when the table does not hold the instance
func (t *Table) RemoveInstance(index uint32) error {
	if _, ok := t.live[index]; !ok {
		return errors.Wrapf(ErrUnknownInstance, "table %s: instance %d", t.label(""), index)
	}
	t.pending[index] = struct{}{}
	t.prepared = false
	return nil
}

// Prepare does the CPU half of UpdateData: it processes queued removals and rebuilds the draw commands
// when needed. It touches nothing but the table, so different tables may prepare concurrently.
//
// Returns:
//   - error: an arena error from freeing a block
func (t *Table) Prepare() error {
	if t.prepared {
		return nil
	}
	var errs error
	for index := range t.pending {
		errs = errors.CombineErrors(errs, t.removeNow(index))
	}
	if t.rebuild {
		t.commands = t.commands[:0]
		var orphans []uint32
		for _, index := range t.order {
			e := t.live[index]
			res, ok := t.meshes.Get(e.instance.Mesh)
			if !ok {
				errs = errors.CombineErrors(errs, errors.Wrapf(mesh.ErrUnknownMesh, "rebuilding instance %d", index))
				orphans = append(orphans, index)
				continue
			}
			t.commands = t.appendCommands(t.commands, e, res)
		}
		// An instance whose mesh is gone has no commands, so it leaves the table too.
		for _, index := range orphans {
			t.log.Warn("dropping instance with unknown mesh", "table", t.label(""), "instance", index)
			errs = errors.CombineErrors(errs, t.removeNow(index))
		}
		t.rebuild = false
		t.commandsDirty = true
	}
	t.prepared = errs == nil
	return errs
}

// UpdateData prepares the table if needed, flushes dirty instance records and uploads the draw commands
// through the staging buffer. The staging buffer grows to the next power of two and never shrinks; the
// replaced one is retired into bin.
//
// Parameters:
//   - cmd: the command list recording the uploads
//   - bin: receives buffers that in-flight frames may still read
//
// Returns:
//   - error: a preparation or buffer creation error
func (t *Table) UpdateData(cmd rhi.CommandList, bin *rhi.RecycleBin) error {
	if err := t.Prepare(); err != nil {
		return err
	}
	t.prepared = false

	t.instances.Flush(cmd)
	t.instances.PostBarrier(cmd)
	if err := t.bindInstances(); err != nil {
		return err
	}
	if !t.commandsDirty {
		return nil
	}
	t.commandsDirty = false
	n := uint32(len(t.commands))
	if n == 0 {
		return nil
	}
	if err := t.ensureCapacity(n, bin); err != nil {
		return err
	}

	data := MarshalDrawCommands(t.commands)
	size := common.AlignUp(uint64(len(data)), 4)
	if size > t.stagingSize {
		grown := common.NextPowerOfTwo(size)
		buf, err := t.device.CreateBuffer(rhi.BufferDesc{
			Label: t.label("staging"),
			Size:  grown,
			Usage: rhi.BufferUsageCopySrc | rhi.BufferUsageCopyDst,
		})
		if err != nil {
			return errors.Wrapf(err, "table %s: growing staging buffer", t.label(""))
		}
		t.log.Debug("growing staging buffer", "table", t.label(""), "from", t.stagingSize, "to", grown)
		retireInto(bin, t.device, t.staging)
		t.staging = buf
		t.stagingSize = grown
	}

	cmd.Upload(t.staging, 0, data)
	cmd.Barrier(rhi.BufferBarrier(t.commandsBuf, t.commandsSt, rhi.StateCopyDst))
	cmd.Copy(t.commandsBuf, 0, t.staging, 0, uint64(len(data)))
	cmd.Barrier(rhi.BufferBarrier(t.commandsBuf, rhi.StateCopyDst, rhi.StateShaderRead))
	t.commandsSt = rhi.StateShaderRead
	return nil
}

// Contains reports whether the instance is live in the table, including instances queued for removal.
func (t *Table) Contains(index uint32) bool {
	_, ok := t.live[index]
	return ok
}

// Instances returns the number of live instances, including instances queued for removal.
func (t *Table) Instances() int { return len(t.live) }

// DrawCommandsCount returns the number of CPU draw commands.
func (t *Table) DrawCommandsCount() uint32 { return uint32(len(t.commands)) }

// DrawCommands returns a copy of the CPU draw commands.
func (t *Table) DrawCommands() []DrawCommand { return slices.Clone(t.commands) }

// Capacity returns how many draw commands the GPU buffers hold.
func (t *Table) Capacity() uint32 { return t.capacity }

// PipelineID returns the pipeline id the table draws.
func (t *Table) PipelineID() material.PipelineID { return t.pipeline }

// Category returns the draw category of the table.
func (t *Table) Category() Category { return t.category }

// InstanceBuffer returns the buffer of InstanceData records. It changes when the table grows.
func (t *Table) InstanceBuffer() rhi.Buffer { return t.instances.Buffer() }

// DrawCommandsBuffer returns the uploaded draw commands.
func (t *Table) DrawCommandsBuffer() rhi.Buffer { return t.commandsBuf }

// CulledBuffer returns the culled draw commands produced for the main camera.
func (t *Table) CulledBuffer() rhi.Buffer { return t.culledBuf }

// CountBuffer returns the culled draw count produced for the main camera.
func (t *Table) CountBuffer() rhi.Buffer { return t.countBuf }

// DescriptorSet returns the set binding the table's instance records, or nil when the table was built
// without a descriptor layout.
func (t *Table) DescriptorSet() rhi.DescriptorSet { return t.set }

// Validate checks the instance arena invariants and that the draw commands match the live surfaces.
//
// Returns:
//   - error: the first violation found, or nil
func (t *Table) Validate() error {
	if err := t.instances.Validate(); err != nil {
		return err
	}
	if len(t.pending) == 0 && !t.rebuild && uint32(len(t.commands)) != t.surfaces {
		return errors.Newf("table %s: %d draw commands for %d live surfaces", t.label(""), len(t.commands), t.surfaces)
	}
	if uint32(len(t.commands)) > t.capacity && !t.commandsDirty {
		return errors.Newf("table %s: %d draw commands exceed capacity %d", t.label(""), len(t.commands), t.capacity)
	}
	return nil
}

// Destroy releases every buffer through the recycle bin, or immediately when there is none.
func (t *Table) Destroy() {
	t.instances.Destroy()
	retireInto(t.bin, t.device, t.commandsBuf, t.culledBuf, t.countBuf, t.staging)
	if t.set != nil {
		retireInto(t.bin, t.device, t.set)
	}
	t.commandsBuf, t.culledBuf, t.countBuf, t.staging, t.set = nil, nil, nil, nil, nil
}

func (t *Table) removeNow(index uint32) error {
	delete(t.pending, index)
	e, ok := t.live[index]
	if !ok {
		return errors.Wrapf(ErrUnknownInstance, "table %s: instance %d", t.label(""), index)
	}
	delete(t.live, index)
	t.order = slices.DeleteFunc(t.order, func(i uint32) bool { return i == index })
	t.surfaces -= uint32(len(e.surfaces))
	t.rebuild = true
	return t.instances.Free(e.block)
}

func (t *Table) appendCommands(commands []DrawCommand, e *entry, res mesh.Resident) []DrawCommand {
	for k, si := range e.surfaces {
		s := res.Surfaces[si]
		idx := e.block.Offset + uint32(k)
		commands = append(commands, DrawCommand{
			InstanceIndex: idx,
			IndexCount:    s.IndexCount,
			InstanceCount: 1,
			FirstIndex:    s.FirstIndex,
			VertexOffset:  s.VertexOffset,
			FirstInstance: idx,
		})
	}
	return commands
}

func (t *Table) ensureCapacity(n uint32, bin *rhi.RecycleBin) error {
	if n <= t.capacity {
		return nil
	}
	grown := min(uint32(common.NextPowerOfTwo(uint64(n))), t.maxSurfaces)
	old := []rhi.Resource{t.commandsBuf, t.culledBuf, t.countBuf}
	if err := t.createCommandBuffers(grown); err != nil {
		return err
	}
	t.log.Debug("growing draw command buffers", "table", t.label(""), "from", t.capacity, "to", grown)
	t.capacity = grown
	retireInto(bin, t.device, old...)
	return nil
}

func (t *Table) createCommandBuffers(capacity uint32) error {
	size := uint64(capacity) * DrawCommandSize
	commands, err := t.device.CreateBuffer(rhi.BufferDesc{
		Label: t.label("draw-commands"),
		Size:  size,
		Usage: rhi.BufferUsageStorage | rhi.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "table %s: creating draw command buffer", t.label(""))
	}
	culled, err := t.device.CreateBuffer(rhi.BufferDesc{
		Label: t.label("culled-draw-commands"),
		Size:  size,
		Usage: rhi.BufferUsageStorage | rhi.BufferUsageIndirect | rhi.BufferUsageCopyDst,
	})
	if err != nil {
		t.device.Destroy(commands)
		return errors.Wrapf(err, "table %s: creating culled draw command buffer", t.label(""))
	}
	count, err := t.device.CreateBuffer(rhi.BufferDesc{
		Label: t.label("culled-count"),
		Size:  4,
		Usage: rhi.BufferUsageStorage | rhi.BufferUsageIndirect | rhi.BufferUsageCopyDst,
	})
	if err != nil {
		t.device.Destroy(commands, culled)
		return errors.Wrapf(err, "table %s: creating culled count buffer", t.label(""))
	}
	t.commandsBuf, t.culledBuf, t.countBuf = commands, culled, count
	t.commandsSt = rhi.StateUndefined
	return nil
}

func (t *Table) bindInstances() error {
	if t.set == nil || t.setBound == t.instances.Buffer() {
		return nil
	}
	buf := t.instances.Buffer()
	t.set.BindBuffer(0, buf, 0, buf.Size())
	if err := t.set.Update(); err != nil {
		return errors.Wrapf(err, "table %s: updating descriptor set", t.label(""))
	}
	t.setBound = buf
	return nil
}

func (t *Table) label(suffix string) string {
	l := t.category.String() + "-" + strconv.FormatUint(uint64(t.pipeline), 10)
	if suffix == "" {
		return l
	}
	return l + "/" + suffix
}

func retireInto(bin *rhi.RecycleBin, device rhi.Device, resources ...rhi.Resource) {
	for _, r := range resources {
		if r == nil {
			continue
		}
		if bin != nil {
			bin.Retire(r)
			continue
		}
		device.Destroy(r)
	}
}
