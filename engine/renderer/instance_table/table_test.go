package instance_table

import (
	"testing"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/arena"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dev         *recorder.Device
	meshes      *mesh.Registry
	materials   *material.Registry
	opaque      material.ID
	transparent material.ID
	single      mesh.ID
	double      mesh.ID
	mixed       mesh.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dev: recorder.New()}
	var err error
	f.materials, err = material.NewRegistry(f.dev, material.WithLogger(logger.Discard()))
	require.NoError(t, err)
	f.meshes, err = mesh.NewRegistry(f.dev, mesh.WithVertexCapacity(64, 1024), mesh.WithIndexCapacity(128, 4096), mesh.WithLogger(logger.Discard()))
	require.NoError(t, err)

	f.opaque = f.materials.MustAdd(material.NewMaterial(material.WithName("stone")))
	f.transparent = f.materials.MustAdd(material.NewMaterial(material.WithName("glass"), material.WithTransparency(material.TransparencyBlend)))

	f.single, err = f.meshes.Add(mesh.Cube(mesh.WithMaterial(f.opaque)))
	require.NoError(t, err)
	f.double, err = f.meshes.Add(mesh.Cube(mesh.WithSurfaces(
		mesh.Surface{Material: f.opaque, FirstIndex: 0, IndexCount: 18},
		mesh.Surface{Material: f.opaque, FirstIndex: 18, IndexCount: 18},
	)))
	require.NoError(t, err)
	f.mixed, err = f.meshes.Add(mesh.Cube(mesh.WithSurfaces(
		mesh.Surface{Material: f.opaque, FirstIndex: 0, IndexCount: 18},
		mesh.Surface{Material: f.transparent, FirstIndex: 18, IndexCount: 18},
	)))
	require.NoError(t, err)
	return f
}

func (f *fixture) pipelineOf(t *testing.T, id material.ID) material.PipelineID {
	t.Helper()
	m, ok := f.materials.Get(id)
	require.True(t, ok)
	return m.PipelineID()
}

func (f *fixture) table(t *testing.T, id material.ID, category Category, options ...TableBuilderOption) *Table {
	t.Helper()
	options = append([]TableBuilderOption{WithInitialCapacity(4), WithMaxSurfaces(64), WithLogger(logger.Discard())}, options...)
	tbl, err := New(f.dev, f.pipelineOf(t, id), category, f.meshes, f.materials, options...)
	require.NoError(t, err)
	return tbl
}

func update(t *testing.T, dev *recorder.Device, tbl *Table, bin *rhi.RecycleBin) *recorder.CommandList {
	t.Helper()
	cmd, err := dev.NewCommandList("update")
	require.NoError(t, err)
	require.NoError(t, tbl.UpdateData(cmd, bin))
	return cmd.(*recorder.CommandList)
}

func gpuCommands(tbl *Table) []DrawCommand {
	data := tbl.DrawCommandsBuffer().(*recorder.Buffer).Data()
	return UnmarshalDrawCommands(data[:tbl.DrawCommandsCount()*DrawCommandSize])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		options  []material.MaterialBuilderOption
		category Category
	}{
		{name: "standard", options: nil, category: CategoryOpaque},
		{name: "blend", options: []material.MaterialBuilderOption{material.WithTransparency(material.TransparencyBlend)}, category: CategoryTransparent},
		{name: "shader", options: []material.MaterialBuilderOption{material.WithShader("water")}, category: CategoryShaderMaterial},
		{
			name:     "shader wins over blend",
			options:  []material.MaterialBuilderOption{material.WithShader("water"), material.WithTransparency(material.TransparencyBlend)},
			category: CategoryShaderMaterial,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, Classify(material.NewMaterial(tt.options...)))
		})
	}
}

func TestRemoveRebuildsRemainingCommands(t *testing.T) {
	f := newFixture(t)
	tbl := f.table(t, f.opaque, CategoryOpaque)
	bin := rhi.NewRecycleBin(f.dev, 2)

	added := []struct {
		index uint32
		mesh  mesh.ID
		want  int
	}{
		{index: 0, mesh: f.single, want: 1},
		{index: 1, mesh: f.double, want: 2},
		{index: 2, mesh: f.double, want: 2},
	}
	for _, a := range added {
		n, err := tbl.AddInstance(MeshInstance{Index: a.index, Mesh: a.mesh})
		require.NoError(t, err)
		require.Equal(t, a.want, n)
	}
	update(t, f.dev, tbl, bin)
	require.Equal(t, uint32(5), tbl.DrawCommandsCount())
	assert.Equal(t, tbl.DrawCommands(), gpuCommands(tbl))

	require.NoError(t, tbl.RemoveInstance(1))
	assert.True(t, tbl.Contains(1), "removal is deferred")
	assert.Equal(t, uint32(5), tbl.DrawCommandsCount())

	update(t, f.dev, tbl, bin)
	require.False(t, tbl.Contains(1))
	require.Equal(t, uint32(3), tbl.DrawCommandsCount())

	got := gpuCommands(tbl)
	assert.Equal(t, tbl.DrawCommands(), got)
	double, _ := f.meshes.Get(f.double)
	single, _ := f.meshes.Get(f.single)
	assert.Equal(t, single.Surfaces[0].FirstIndex, got[0].FirstIndex)
	assert.Equal(t, double.Surfaces[0].FirstIndex, got[1].FirstIndex)
	assert.Equal(t, double.Surfaces[1].FirstIndex, got[2].FirstIndex)
	for _, c := range got {
		assert.Equal(t, c.InstanceIndex, c.FirstInstance)
		assert.Equal(t, uint32(1), c.InstanceCount)
	}
	require.NoError(t, tbl.Validate())
}

func TestRebuildDropsInstancesOfRemovedMeshes(t *testing.T) {
	f := newFixture(t)
	tbl := f.table(t, f.opaque, CategoryOpaque)
	bin := rhi.NewRecycleBin(f.dev, 2)

	for _, mi := range []MeshInstance{{Index: 0, Mesh: f.single}, {Index: 1, Mesh: f.double}, {Index: 2, Mesh: f.single}} {
		_, err := tbl.AddInstance(mi)
		require.NoError(t, err)
	}
	update(t, f.dev, tbl, bin)
	require.Equal(t, uint32(4), tbl.DrawCommandsCount())

	require.NoError(t, f.meshes.Remove(f.double))
	require.NoError(t, tbl.RemoveInstance(0))

	err := tbl.Prepare()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mesh.ErrUnknownMesh))

	assert.False(t, tbl.Contains(1))
	assert.True(t, tbl.Contains(2))
	assert.Equal(t, 1, tbl.Instances())
	require.Equal(t, uint32(1), tbl.DrawCommandsCount())
	require.NoError(t, tbl.Validate())

	single, _ := f.meshes.Get(f.single)
	cmds := tbl.DrawCommands()
	assert.Equal(t, single.Surfaces[0].FirstIndex, cmds[0].FirstIndex)

	update(t, f.dev, tbl, bin)
	assert.Equal(t, tbl.DrawCommands(), gpuCommands(tbl))
}

func TestAddRemoveRoundTrip(t *testing.T) {
	f := newFixture(t)
	tbl := f.table(t, f.opaque, CategoryOpaque)

	_, err := tbl.AddInstance(MeshInstance{Index: 7, Mesh: f.single})
	require.NoError(t, err)
	update(t, f.dev, tbl, nil)
	before := tbl.DrawCommandsCount()
	freeBefore := tbl.instances.FreeRanges()

	_, err = tbl.AddInstance(MeshInstance{Index: 9, Mesh: f.double})
	require.NoError(t, err)
	require.NoError(t, tbl.RemoveInstance(9))
	update(t, f.dev, tbl, nil)

	assert.Equal(t, before, tbl.DrawCommandsCount())
	assert.Equal(t, freeBefore, tbl.instances.FreeRanges())
	assert.Equal(t, []arena.Block{{Offset: 1, Count: 3}}, tbl.instances.FreeRanges())
	require.NoError(t, tbl.Validate())
}

func TestAddSkipsOtherPipelinesAndCategories(t *testing.T) {
	f := newFixture(t)
	opaque := f.table(t, f.opaque, CategoryOpaque)
	transparent := f.table(t, f.transparent, CategoryTransparent)
	wrongCategory := f.table(t, f.opaque, CategoryTransparent)

	mi := MeshInstance{Index: 3, Mesh: f.mixed}
	tests := []struct {
		name  string
		table *Table
		want  int
	}{
		{name: "opaque surface only", table: opaque, want: 1},
		{name: "transparent surface only", table: transparent, want: 1},
		{name: "category mismatch", table: wrongCategory, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.table.AddInstance(mi)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Equal(t, tt.want > 0, tt.table.Contains(mi.Index))
		})
	}
}

func TestMaterialOverrides(t *testing.T) {
	f := newFixture(t)
	transparent := f.table(t, f.transparent, CategoryTransparent)

	n, err := transparent.AddInstance(MeshInstance{Index: 0, Mesh: f.double, Materials: []material.ID{f.transparent, f.transparent}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec := transparent.instances.Mirror()
	assert.Equal(t, (&InstanceData{MeshInstance: 0, Material: uint32(f.transparent), Surface: 1, Mesh: uint32(f.double)}).Marshal(), rec[InstanceDataSize:2*InstanceDataSize])
}

func TestAddErrors(t *testing.T) {
	f := newFixture(t)
	tbl := f.table(t, f.opaque, CategoryOpaque, WithMaxSurfaces(2))

	_, err := tbl.AddInstance(MeshInstance{Index: 0, Mesh: f.single})
	require.NoError(t, err)

	_, err = tbl.AddInstance(MeshInstance{Index: 0, Mesh: f.single})
	assert.ErrorIs(t, err, ErrDuplicateInstance)

	_, err = tbl.AddInstance(MeshInstance{Index: 1, Mesh: f.double})
	assert.ErrorIs(t, err, ErrTooManySurfaces)

	_, err = tbl.AddInstance(MeshInstance{Index: 2, Mesh: mesh.ID(99)})
	assert.ErrorIs(t, err, mesh.ErrUnknownMesh)

	assert.ErrorIs(t, tbl.RemoveInstance(5), ErrUnknownInstance)
}

func TestReAddBeforeUpdate(t *testing.T) {
	f := newFixture(t)
	tbl := f.table(t, f.opaque, CategoryOpaque)

	_, err := tbl.AddInstance(MeshInstance{Index: 0, Mesh: f.double})
	require.NoError(t, err)
	require.NoError(t, tbl.RemoveInstance(0))
	_, err = tbl.AddInstance(MeshInstance{Index: 0, Mesh: f.single})
	require.NoError(t, err)

	update(t, f.dev, tbl, nil)
	assert.Equal(t, uint32(1), tbl.DrawCommandsCount())
	assert.Equal(t, tbl.DrawCommands(), gpuCommands(tbl))
}

func TestGrowthRetiresBuffers(t *testing.T) {
	f := newFixture(t)
	tbl := f.table(t, f.opaque, CategoryOpaque)
	bin := rhi.NewRecycleBin(f.dev, 2)

	_, err := tbl.AddInstance(MeshInstance{Index: 0, Mesh: f.single})
	require.NoError(t, err)
	update(t, f.dev, tbl, bin)
	firstStaging := tbl.staging
	firstCommands := tbl.DrawCommandsBuffer()

	for i := uint32(1); i < 6; i++ {
		_, err := tbl.AddInstance(MeshInstance{Index: i, Mesh: f.single})
		require.NoError(t, err)
	}
	cmd := update(t, f.dev, tbl, bin)

	assert.Equal(t, uint32(8), tbl.Capacity())
	assert.NotSame(t, firstCommands, tbl.DrawCommandsBuffer())
	assert.NotSame(t, firstStaging, tbl.staging)
	assert.Equal(t, uint64(256), tbl.stagingSize)
	assert.Equal(t, tbl.DrawCommands(), gpuCommands(tbl))
	assert.Equal(t, 1, cmd.Count(recorder.OpCopy))
	assert.True(t, f.dev.IsLive(firstCommands), "retired buffers wait in the bin")

	bin.Collect(2)
	assert.False(t, f.dev.IsLive(firstCommands))
}

func TestDescriptorSetFollowsInstanceBuffer(t *testing.T) {
	f := newFixture(t)
	layout, err := f.dev.CreateDescriptorLayout(rhi.DescriptorLayoutDesc{Label: "table", Bindings: []rhi.DescriptorBinding{
		{Binding: 0, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageVertex | rhi.StageCompute},
	}})
	require.NoError(t, err)
	tbl := f.table(t, f.opaque, CategoryOpaque, WithDescriptorLayout(layout))

	for i := uint32(0); i < 5; i++ {
		_, err := tbl.AddInstance(MeshInstance{Index: i, Mesh: f.single})
		require.NoError(t, err)
	}
	update(t, f.dev, tbl, nil)
	update(t, f.dev, tbl, nil)

	set := tbl.DescriptorSet().(*recorder.DescriptorSet)
	b, ok := set.Bound(0, 0)
	require.True(t, ok)
	assert.Same(t, tbl.InstanceBuffer(), b.Buffer)
	assert.Equal(t, 1, set.Updates())
}
