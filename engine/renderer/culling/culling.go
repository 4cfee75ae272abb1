// Package culling implements the GPU frustum culling stage. For one view and one instance table, a compute
// dispatch tests the bounding sphere of every draw command's mesh instance against the view frustum and
// compacts the visible commands into an indirect buffer whose length is written to a count buffer.
package culling

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// ShaderName is the shader cache name of the culling compute shader.
	ShaderName = "cull"

	// PipelineLabel labels the culling compute pipeline.
	PipelineLabel = "cull"

	// WorkgroupSize is the number of draw commands one workgroup tests.
	WorkgroupSize = 64

	// UniformSize is the byte size of the CullUniform block: six planes, the draw count and padding.
	UniformSize = 112
)

// Bindings of the culling descriptor set.
const (
	BindingUniform uint32 = iota
	BindingCommands
	BindingInstances
	BindingMeshInstances
	BindingCulled
	BindingCount
)

// Planes are frustum planes packed as (normal, distance) with the positive half-space inside.
type Planes [6]mgl32.Vec4

// PlanesFromViewProj extracts the frustum planes of a view-projection matrix.
//
// Parameters:
//   - viewProj: the projection * view matrix with [0, 1] clip depth
//
// Returns:
//   - Planes: the normalized planes
func PlanesFromViewProj(viewProj mgl32.Mat4) Planes {
	f := common.ExtractFrustum(viewProj)
	var p Planes
	for i, pl := range f.Planes {
		p[i] = pl.Vec4()
	}
	return p
}

// SphereVisible is the CPU twin of the shader's visibility test.
//
// Parameters:
//   - planes: the frustum planes
//   - center: world-space sphere center
//   - radius: sphere radius
//
// Returns:
//   - bool: false only when the sphere is fully outside one plane
func SphereVisible(planes Planes, center mgl32.Vec3, radius float32) bool {
	for _, p := range planes {
		if p.Vec3().Dot(center)+p[3] < -radius {
			return false
		}
	}
	return true
}

// MarshalUniform packs the CullUniform block.
func MarshalUniform(planes Planes, drawCount uint32) []byte {
	buf := make([]byte, UniformSize)
	for i, p := range planes {
		for j := range 4 {
			binary.LittleEndian.PutUint32(buf[i*16+j*4:], math.Float32bits(p[j]))
		}
	}
	binary.LittleEndian.PutUint32(buf[96:], drawCount)
	return buf
}

// Stage owns the culling compute pipeline and its descriptor layout.
type Stage struct {
	device     rhi.Device
	shaders    *shader.Cache
	bin        *rhi.RecycleBin
	log        *log.Logger
	layout     rhi.DescriptorLayout
	pipeline   rhi.Pipeline
	generation uint64
}

// New creates the culling stage and builds its pipeline.
//
// Parameters:
//   - device: the device
//   - shaders: the shader cache providing the culling shader
//   - options: functional options
//
// Returns:
//   - *Stage: the stage
//   - error: a layout, shader or pipeline creation error
func New(device rhi.Device, shaders *shader.Cache, options ...StageBuilderOption) (*Stage, error) {
	s := &Stage{device: device, shaders: shaders}
	for _, opt := range options {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Sub(nil, "culling")
	}

	var err error
	s.layout, err = device.CreateDescriptorLayout(rhi.DescriptorLayoutDesc{
		Label: "cull",
		Bindings: []rhi.DescriptorBinding{
			{Binding: BindingUniform, Type: rhi.DescriptorUniformBuffer, Stages: rhi.StageCompute},
			{Binding: BindingCommands, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageCompute},
			{Binding: BindingInstances, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageCompute},
			{Binding: BindingMeshInstances, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageCompute},
			{Binding: BindingCulled, Type: rhi.DescriptorStorageBufferReadWrite, Stages: rhi.StageCompute},
			{Binding: BindingCount, Type: rhi.DescriptorStorageBufferReadWrite, Stages: rhi.StageCompute},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "culling: creating descriptor layout")
	}
	if err := s.UpdatePipeline(); err != nil {
		device.Destroy(s.layout)
		return nil, err
	}
	return s, nil
}

// UpdatePipeline rebuilds the compute pipeline when the shader cache changed since the last build.
//
// Returns:
//   - error: a shader or pipeline creation error; the previous pipeline stays in use
func (s *Stage) UpdatePipeline() error {
	gen := s.shaders.Generation()
	if s.pipeline != nil && gen == s.generation {
		return nil
	}
	module, err := s.shaders.Load(ShaderName)
	if err != nil {
		return errors.Wrap(err, "culling: loading shader")
	}
	p, err := s.device.CreateComputePipeline(rhi.ComputePipelineDesc{
		Label:   PipelineLabel,
		Shader:  module,
		Entry:   "cs_main",
		Layouts: []rhi.DescriptorLayout{s.layout},
	})
	if err != nil {
		return errors.Wrap(err, "culling: creating pipeline")
	}
	if s.pipeline != nil {
		s.retire(s.pipeline)
	}
	s.pipeline = p
	s.generation = gen
	return nil
}

// Layout returns the descriptor layout of the culling set.
func (s *Stage) Layout() rhi.DescriptorLayout { return s.layout }

// Pipeline returns the current compute pipeline.
func (s *Stage) Pipeline() rhi.Pipeline { return s.pipeline }

// Target holds the per-view culling state for one table: the uniform buffer, the descriptor set and,
// for targets that do not write into the table's own buffers, the culled command and count buffers.
type Target struct {
	label   string
	owned   bool
	stage   *Stage
	uniform rhi.Buffer
	set     rhi.DescriptorSet

	culled   rhi.Buffer
	count    rhi.Buffer
	capacity uint32
	culledSt rhi.ResourceState
	countSt  rhi.ResourceState

	bound [6]rhi.Buffer
}

// NewTarget creates the culling state of one view.
//
// Parameters:
//   - label: debug label
//   - ownBuffers: false to write into the table's culled buffers (the main camera), true to allocate
//     buffers private to this target (shadow views)
//
// Returns:
//   - *Target: the target
//   - error: a buffer or descriptor creation error
func (s *Stage) NewTarget(label string, ownBuffers bool) (*Target, error) {
	uniform, err := s.device.CreateBuffer(rhi.BufferDesc{
		Label: label + "/cull-uniform",
		Size:  UniformSize,
		Usage: rhi.BufferUsageUniform | rhi.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "culling target %s", label)
	}
	set, err := s.device.CreateDescriptorSet(s.layout, label+"/cull")
	if err != nil {
		s.device.Destroy(uniform)
		return nil, errors.Wrapf(err, "culling target %s", label)
	}
	return &Target{label: label, owned: ownBuffers, stage: s, uniform: uniform, set: set}, nil
}

// Culled returns the culled command buffer written by the last dispatch.
func (t *Target) Culled() rhi.Buffer { return t.culled }

// Count returns the count buffer written by the last dispatch.
func (t *Target) Count() rhi.Buffer { return t.count }

// Destroy releases the target's buffers. Buffers borrowed from a table are left alone.
func (t *Target) Destroy() {
	res := []rhi.Resource{t.uniform, t.set}
	if t.owned {
		res = append(res, t.culled, t.count)
	}
	for _, r := range res {
		if r == nil {
			continue
		}
		t.stage.retire(r)
	}
	t.culled, t.count = nil, nil
}

// Dispatch records the culling of table for one view. The culled buffer is cleared first so entries past
// the visible count hold zero-instance commands, then the compute pass writes the visible commands and
// the buffers are transitioned for indirect drawing.
//
// Parameters:
//   - cmd: the command list, outside any rendering scope
//   - table: the table whose draw commands are culled; its UpdateData must have run this frame
//   - target: the view's culling state
//   - meshInstances: the scene's mesh-instance buffer
//   - viewProj: the view-projection matrix of the view
//
// Returns:
//   - bool: false when the table has no draw commands and nothing was recorded
//   - error: a buffer or descriptor error
func (s *Stage) Dispatch(cmd rhi.CommandList, table *instance_table.Table, target *Target, meshInstances rhi.Buffer, viewProj mgl32.Mat4) (bool, error) {
	n := table.DrawCommandsCount()
	if n == 0 {
		return false, nil
	}
	if err := target.prepare(table); err != nil {
		return false, err
	}
	if err := target.bind(table, meshInstances); err != nil {
		return false, err
	}

	cmd.Barrier(
		rhi.BufferBarrier(target.culled, target.culledSt, rhi.StateCopyDst),
		rhi.BufferBarrier(target.count, target.countSt, rhi.StateCopyDst),
	)
	cmd.ClearBuffer(target.count, 0, 4)
	cmd.ClearBuffer(target.culled, 0, uint64(n)*instance_table.DrawCommandSize)
	cmd.Upload(target.uniform, 0, MarshalUniform(PlanesFromViewProj(viewProj), n))
	cmd.Barrier(
		rhi.BufferBarrier(target.culled, rhi.StateCopyDst, rhi.StateUnorderedAccess),
		rhi.BufferBarrier(target.count, rhi.StateCopyDst, rhi.StateUnorderedAccess),
	)

	cmd.BindPipeline(s.pipeline)
	cmd.BindDescriptors(0, target.set)
	cmd.Dispatch((n+WorkgroupSize-1)/WorkgroupSize, 1, 1)

	cmd.Barrier(
		rhi.BufferBarrier(target.culled, rhi.StateUnorderedAccess, rhi.StateIndirectArgument),
		rhi.BufferBarrier(target.count, rhi.StateUnorderedAccess, rhi.StateIndirectArgument),
	)
	target.culledSt = rhi.StateIndirectArgument
	target.countSt = rhi.StateIndirectArgument
	return true, nil
}

// Draw issues the indirect draws of the last dispatch of target. The caller binds the pipeline, the
// descriptor sets and the mesh buffers.
//
// Parameters:
//   - cmd: the command list, inside a rendering scope
//   - table: the table that was culled
//   - target: the view's culling state
func Draw(cmd rhi.CommandList, table *instance_table.Table, target *Target) {
	n := table.DrawCommandsCount()
	if n == 0 || target.culled == nil {
		return
	}
	cmd.DrawIndexedIndirectCount(target.culled, instance_table.DrawArgsOffset, instance_table.DrawCommandSize, target.count, 0, n)
}

func (t *Target) prepare(table *instance_table.Table) error {
	if !t.owned {
		if t.culled != table.CulledBuffer() {
			t.culled, t.count = table.CulledBuffer(), table.CountBuffer()
			t.culledSt, t.countSt = rhi.StateUndefined, rhi.StateUndefined
		}
		return nil
	}
	if t.culled != nil && t.capacity >= table.Capacity() {
		return nil
	}

	capacity := table.Capacity()
	culled, err := t.stage.device.CreateBuffer(rhi.BufferDesc{
		Label: t.label + "/culled-draw-commands",
		Size:  uint64(capacity) * instance_table.DrawCommandSize,
		Usage: rhi.BufferUsageStorage | rhi.BufferUsageIndirect | rhi.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "culling target %s: creating culled buffer", t.label)
	}
	if t.count == nil {
		t.count, err = t.stage.device.CreateBuffer(rhi.BufferDesc{
			Label: t.label + "/culled-count",
			Size:  4,
			Usage: rhi.BufferUsageStorage | rhi.BufferUsageIndirect | rhi.BufferUsageCopyDst,
		})
		if err != nil {
			t.stage.device.Destroy(culled)
			return errors.Wrapf(err, "culling target %s: creating count buffer", t.label)
		}
		t.countSt = rhi.StateUndefined
	}
	if t.culled != nil {
		t.stage.log.Debug("growing culled buffer", "target", t.label, "from", t.capacity, "to", capacity)
		t.stage.retire(t.culled)
	}
	t.culled = culled
	t.culledSt = rhi.StateUndefined
	t.capacity = capacity
	return nil
}

func (t *Target) bind(table *instance_table.Table, meshInstances rhi.Buffer) error {
	want := [6]rhi.Buffer{t.uniform, table.DrawCommandsBuffer(), table.InstanceBuffer(), meshInstances, t.culled, t.count}
	if want == t.bound {
		return nil
	}
	for i, buf := range want {
		if buf == t.bound[i] {
			continue
		}
		t.set.BindBuffer(uint32(i), buf, 0, buf.Size())
	}
	if err := t.set.Update(); err != nil {
		return errors.Wrapf(err, "culling target %s: updating descriptor set", t.label)
	}
	t.bound = want
	return nil
}

func (s *Stage) retire(r rhi.Resource) {
	if s.bin != nil {
		s.bin.Retire(r)
		return
	}
	s.device.Destroy(r)
}

// Destroy releases the pipeline and layout.
func (s *Stage) Destroy() {
	if s.pipeline != nil {
		s.retire(s.pipeline)
		s.pipeline = nil
	}
	if s.layout != nil {
		s.retire(s.layout)
		s.layout = nil
	}
}
