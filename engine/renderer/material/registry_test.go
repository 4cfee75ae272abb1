package material

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPipelineIDs(t *testing.T) {
	reg, err := NewRegistry(recorder.New(), WithLogger(logger.Discard()))
	require.NoError(t, err)

	tests := []struct {
		name     string
		options  []MaterialBuilderOption
		pipeline PipelineID
	}{
		{name: "first standard", options: nil, pipeline: 1},
		{name: "same config different color", options: []MaterialBuilderOption{WithBaseColor([4]float32{1, 0, 0, 1})}, pipeline: 1},
		{name: "transparent", options: []MaterialBuilderOption{WithTransparency(TransparencyBlend)}, pipeline: 2},
		{name: "double sided", options: []MaterialBuilderOption{WithCullMode(rhi.CullNone)}, pipeline: 3},
		{name: "shader water", options: []MaterialBuilderOption{WithShader("water")}, pipeline: 4},
		{name: "shader water again", options: []MaterialBuilderOption{WithShader("water"), WithRoughness(0.1)}, pipeline: 4},
		{name: "shader lava", options: []MaterialBuilderOption{WithShader("lava")}, pipeline: 5},
		{name: "opaque again", options: []MaterialBuilderOption{WithMetallic(1)}, pipeline: 1},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMaterial(append([]MaterialBuilderOption{WithName(tt.name)}, tt.options...)...)
			id, err := reg.Add(m)
			require.NoError(t, err)
			assert.Equal(t, ID(i), id)
			assert.Equal(t, tt.pipeline, m.PipelineID())

			got, ok := reg.Get(id)
			require.True(t, ok)
			assert.Equal(t, tt.name, got.Name())
		})
	}
	assert.Equal(t, 5, reg.PipelineCount())
	assert.Equal(t, len(tests), reg.Len())
}

func TestRegistryPipelineInfo(t *testing.T) {
	reg, err := NewRegistry(recorder.New(), WithLogger(logger.Discard()))
	require.NoError(t, err)

	glass := NewMaterial(WithTransparency(TransparencyBlend), WithCullMode(rhi.CullNone))
	reg.MustAdd(glass)
	water := NewMaterial(WithShader("water"))
	reg.MustAdd(water)

	info, ok := reg.Pipeline(glass.PipelineID())
	require.True(t, ok)
	assert.Equal(t, PipelineInfo{Kind: KindStandard, Transparency: TransparencyBlend, CullMode: rhi.CullNone}, info)

	info, ok = reg.Pipeline(water.PipelineID())
	require.True(t, ok)
	assert.Equal(t, KindShader, info.Kind)
	assert.Equal(t, "water", info.ShaderName)

	_, ok = reg.Pipeline(99)
	assert.False(t, ok)
}

func TestRegistryFlushUploadsRecords(t *testing.T) {
	dev := recorder.New()
	reg, err := NewRegistry(dev, WithCapacity(2), WithMaxMaterials(8), WithLogger(logger.Discard()))
	require.NoError(t, err)

	ids := make([]ID, 0, 3)
	for i := range 3 {
		id, err := reg.Add(NewMaterial(WithRoughness(float32(i)/4), WithTransparency(Transparency(i%2))))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	cmd, err := dev.NewCommandList("test")
	require.NoError(t, err)
	assert.True(t, reg.Flush(cmd))
	assert.False(t, reg.Flush(cmd))

	data := reg.Buffer().(*recorder.Buffer).Data()
	for i, id := range ids {
		rec := data[int(id)*GPUMaterialSize:]
		assert.Equal(t, float32(i)/4, math.Float32frombits(binary.LittleEndian.Uint32(rec[32:])))
		assert.Equal(t, uint32(i%2)*GPUMaterialFlagTransparent, binary.LittleEndian.Uint32(rec[40:]))
	}
}

func TestRegistryRejects(t *testing.T) {
	reg, err := NewRegistry(recorder.New(), WithCapacity(1), WithMaxMaterials(1), WithLogger(logger.Discard()))
	require.NoError(t, err)

	_, err = reg.Add(NewMaterial(WithShader("")))
	assert.Error(t, err)

	_, err = reg.Add(NewMaterial())
	require.NoError(t, err)
	_, err = reg.Add(NewMaterial())
	assert.Error(t, err)

	_, ok := reg.Get(7)
	assert.False(t, ok)
}

func TestGPUMaterialSize(t *testing.T) {
	var g GPUMaterial
	assert.Equal(t, GPUMaterialSize, g.Size())
	assert.Len(t, g.Marshal(), GPUMaterialSize)
}
