package culling

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewProj() mgl32.Mat4 {
	proj := common.PerspectiveZO(mgl32.DegToRad(60), 1, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	return proj.Mul4(view)
}

func TestSphereVisible(t *testing.T) {
	planes := PlanesFromViewProj(viewProj())
	tests := []struct {
		name    string
		center  mgl32.Vec3
		radius  float32
		visible bool
	}{
		{name: "at target", center: mgl32.Vec3{0, 0, 0}, radius: 1, visible: true},
		{name: "behind camera", center: mgl32.Vec3{0, 0, 20}, radius: 1, visible: false},
		{name: "straddles near plane", center: mgl32.Vec3{0, 0, 10}, radius: 1, visible: true},
		{name: "beyond far plane", center: mgl32.Vec3{0, 0, -200}, radius: 1, visible: false},
		{name: "far to the side", center: mgl32.Vec3{50, 0, 0}, radius: 1, visible: false},
		{name: "large sphere to the side", center: mgl32.Vec3{50, 0, 0}, radius: 60, visible: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.visible, SphereVisible(planes, tt.center, tt.radius))
			f := common.ExtractFrustum(viewProj())
			assert.Equal(t, tt.visible, f.SphereInside(tt.center, tt.radius), "matches the frustum helper")
		})
	}
}

func TestMarshalUniform(t *testing.T) {
	planes := PlanesFromViewProj(viewProj())
	buf := MarshalUniform(planes, 7)
	require.Len(t, buf, UniformSize)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[96:]))
	assert.Equal(t, planes[0][3], math.Float32frombits(binary.LittleEndian.Uint32(buf[12:])))
}

type fixture struct {
	dev       *recorder.Device
	stage     *Stage
	table     *instance_table.Table
	meshes    *mesh.Registry
	instances rhi.Buffer
}

// newFixture builds a table of three single-surface cubes: instance 0 at the origin, instance 1 behind
// the camera and instance 2 slightly to the right.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := recorder.New()
	Emulate(dev)

	cache, err := shader.NewCache(dev, shader.WithLogger(logger.Discard()))
	require.NoError(t, err)
	stage, err := New(dev, cache, WithLogger(logger.Discard()))
	require.NoError(t, err)

	materials, err := material.NewRegistry(dev, material.WithLogger(logger.Discard()))
	require.NoError(t, err)
	meshes, err := mesh.NewRegistry(dev, mesh.WithLogger(logger.Discard()))
	require.NoError(t, err)
	mat := materials.MustAdd(material.NewMaterial())
	cube, err := meshes.Add(mesh.Cube(mesh.WithMaterial(mat)))
	require.NoError(t, err)

	m, _ := materials.Get(mat)
	table, err := instance_table.New(dev, m.PipelineID(), instance_table.CategoryOpaque, meshes, materials,
		instance_table.WithInitialCapacity(2), instance_table.WithLogger(logger.Discard()))
	require.NoError(t, err)

	centers := []mgl32.Vec3{{0, 0, 0}, {0, 0, 30}, {2, 0, 0}}
	var data []byte
	for i, c := range centers {
		_, err := table.AddInstance(instance_table.MeshInstance{Index: uint32(i), Mesh: cube})
		require.NoError(t, err)
		world := mgl32.Translate3D(c[0], c[1], c[2])
		rec := instance_table.GPUMeshInstance{World: world, Center: c, Radius: 0.9}
		data = append(data, rec.Marshal()...)
	}
	instances, err := dev.CreateBuffer(rhi.BufferDesc{Label: "mesh-instances", Size: uint64(len(data)), Usage: rhi.BufferUsageStorage | rhi.BufferUsageCopyDst})
	require.NoError(t, err)

	f := &fixture{dev: dev, stage: stage, table: table, meshes: meshes, instances: instances}
	cmd := f.list(t)
	cmd.Upload(instances, 0, data)
	require.NoError(t, table.UpdateData(cmd, nil))
	return f
}

func (f *fixture) list(t *testing.T) *recorder.CommandList {
	t.Helper()
	cmd, err := f.dev.NewCommandList("test")
	require.NoError(t, err)
	return cmd.(*recorder.CommandList)
}

func TestDispatchCompactsVisibleCommands(t *testing.T) {
	f := newFixture(t)
	target, err := f.stage.NewTarget("main", false)
	require.NoError(t, err)

	cmd := f.list(t)
	ok, err := f.stage.Dispatch(cmd, f.table, target, f.instances, viewProj())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Same(t, f.table.CulledBuffer(), target.Culled())
	assert.Same(t, f.table.CountBuffer(), target.Count())
	require.Equal(t, uint32(2), recorder.ReadUint32(target.Count(), 0))

	dispatches := cmd.Filter(recorder.OpDispatch)
	require.Len(t, dispatches, 1)
	assert.Equal(t, [4]uint32{1, 1, 1, 0}, dispatches[0].Counts)

	culled := instance_table.UnmarshalDrawCommands(target.Culled().(*recorder.Buffer).Data())
	all := f.table.DrawCommands()
	var visible []uint32
	for _, c := range culled[:2] {
		visible = append(visible, c.InstanceIndex)
		assert.Equal(t, c.InstanceIndex, c.FirstInstance)
		assert.Equal(t, uint32(1), c.InstanceCount)
	}
	assert.ElementsMatch(t, []uint32{all[0].InstanceIndex, all[2].InstanceIndex}, visible)
	assert.Equal(t, instance_table.DrawCommand{}, culled[2], "the tail is cleared")

	Draw(cmd, f.table, target)
	draws := cmd.Filter(recorder.OpDrawIndirectCount)
	require.Len(t, draws, 1)
	assert.Equal(t, uint64(instance_table.DrawArgsOffset), draws[0].Offset)
	assert.Equal(t, [4]uint32{instance_table.DrawCommandSize, 3, 0, 0}, draws[0].Counts)
}

func TestDispatchClearsStaleResults(t *testing.T) {
	f := newFixture(t)
	target, err := f.stage.NewTarget("main", false)
	require.NoError(t, err)

	for range 2 {
		_, err := f.stage.Dispatch(f.list(t), f.table, target, f.instances, viewProj())
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(2), recorder.ReadUint32(target.Count(), 0))
}

func TestDispatchSkipsEmptyTable(t *testing.T) {
	f := newFixture(t)
	for i := range uint32(3) {
		require.NoError(t, f.table.RemoveInstance(i))
	}
	require.NoError(t, f.table.Prepare())

	target, err := f.stage.NewTarget("main", false)
	require.NoError(t, err)
	cmd := f.list(t)
	ok, err := f.stage.Dispatch(cmd, f.table, target, f.instances, viewProj())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, cmd.Commands())

	Draw(cmd, f.table, target)
	assert.Empty(t, cmd.Commands())
}

func TestOwnedTargetBuffers(t *testing.T) {
	f := newFixture(t)
	bin := rhi.NewRecycleBin(f.dev, 2)
	f.stage.bin = bin

	target, err := f.stage.NewTarget("shadow-0", true)
	require.NoError(t, err)
	_, err = f.stage.Dispatch(f.list(t), f.table, target, f.instances, viewProj())
	require.NoError(t, err)

	assert.NotSame(t, f.table.CulledBuffer(), target.Culled())
	assert.Equal(t, uint64(f.table.Capacity())*instance_table.DrawCommandSize, target.Culled().Size())
	assert.Equal(t, uint32(2), recorder.ReadUint32(target.Count(), 0))
	assert.Equal(t, uint32(0), recorder.ReadUint32(f.table.CountBuffer(), 0), "the table's buffers are untouched")

	// A looking-away view culls everything.
	away := common.PerspectiveZO(mgl32.DegToRad(60), 1, 0.1, 100).Mul4(mgl32.LookAtV(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{100, 0, 10}, mgl32.Vec3{0, 1, 0}))
	_, err = f.stage.Dispatch(f.list(t), f.table, target, f.instances, away)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), recorder.ReadUint32(target.Count(), 0))

	old := target.Culled()
	target.Destroy()
	assert.Nil(t, target.Culled())
	assert.Equal(t, 4, bin.Len(), "uniform, set, culled and count")
	bin.Drain()
	assert.True(t, old.(*recorder.Buffer).Destroyed())
	assert.False(t, f.table.CulledBuffer().(*recorder.Buffer).Destroyed())
}

func TestUpdatePipelineFollowsShaderGeneration(t *testing.T) {
	dev := recorder.New()
	cache, err := shader.NewCache(dev, shader.WithLogger(logger.Discard()))
	require.NoError(t, err)
	stage, err := New(dev, cache, WithLogger(logger.Discard()))
	require.NoError(t, err)

	first := stage.Pipeline()
	require.NoError(t, stage.UpdatePipeline())
	assert.Same(t, first, stage.Pipeline())

	cache.Invalidate(ShaderName)
	require.NoError(t, stage.UpdatePipeline())
	assert.NotSame(t, first, stage.Pipeline())
	assert.False(t, dev.IsLive(first))
	assert.True(t, stage.Pipeline().IsCompute())
}
