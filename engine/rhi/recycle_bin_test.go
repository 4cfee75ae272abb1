package rhi_test

import (
	"testing"

	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecycleBinWaitsForFramesInFlight(t *testing.T) {
	dev := recorder.New()
	bin := rhi.NewRecycleBin(dev, 2)

	buf, err := dev.CreateBuffer(rhi.BufferDesc{Label: "staging", Size: 64, Usage: rhi.BufferUsageCopySrc})
	require.NoError(t, err)

	bin.Collect(10)
	bin.Retire(buf, nil)
	assert.Equal(t, 1, bin.Len())

	assert.Equal(t, 0, bin.Collect(11), "frame 10 may still be executing")
	assert.True(t, dev.IsLive(buf))

	assert.Equal(t, 1, bin.Collect(12))
	assert.False(t, dev.IsLive(buf))
	assert.Equal(t, 0, bin.Len())
}

func TestRecycleBinDrain(t *testing.T) {
	dev := recorder.New()
	bin := rhi.NewRecycleBin(dev, 3)
	for range 4 {
		b, err := dev.CreateBuffer(rhi.BufferDesc{Label: "b", Size: 4})
		require.NoError(t, err)
		bin.Retire(b)
	}
	bin.Drain()
	assert.Equal(t, 0, bin.Len())
	assert.Equal(t, 0, dev.Live())
}

func TestFormatText(t *testing.T) {
	var f rhi.Format
	require.NoError(t, f.UnmarshalText([]byte("Depth24Plus-Stencil8")))
	assert.Equal(t, rhi.FormatDepth24PlusStencil8, f)
	assert.True(t, f.HasStencil())
	assert.True(t, f.IsDepth())

	assert.Error(t, f.UnmarshalText([]byte("rgb565")))

	out, err := rhi.FormatRGBA16Float.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "rgba16float", string(out))
}
