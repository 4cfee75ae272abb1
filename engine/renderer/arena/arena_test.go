package arena

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArena(t *testing.T, dev *recorder.Device, capacity, maxCapacity uint32, opts ...ArenaBuilderOption) *Arena {
	t.Helper()
	opts = append([]ArenaBuilderOption{
		WithCapacity(capacity),
		WithMaxCapacity(maxCapacity),
		WithLogger(logger.Discard()),
	}, opts...)
	a, err := New(dev, "test-arena", 16, opts...)
	require.NoError(t, err)
	return a
}

func TestFreedRangeIsReused(t *testing.T) {
	tests := []struct {
		name     string
		request  uint32
		want     Block
		wantFree []Block
	}{
		{
			name:     "larger than the hole goes past the tail",
			request:  15,
			want:     Block{Offset: 30, Count: 15},
			wantFree: []Block{{Offset: 0, Count: 10}, {Offset: 45, Count: 55}},
		},
		{
			name:     "fits inside the hole",
			request:  8,
			want:     Block{Offset: 0, Count: 8},
			wantFree: []Block{{Offset: 8, Count: 2}, {Offset: 30, Count: 70}},
		},
		{
			name:     "fills the hole exactly",
			request:  10,
			want:     Block{Offset: 0, Count: 10},
			wantFree: []Block{{Offset: 30, Count: 70}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestArena(t, recorder.New(), 100, 100)

			first, err := a.Alloc(10)
			require.NoError(t, err)
			second, err := a.Alloc(20)
			require.NoError(t, err)
			assert.Equal(t, Block{Offset: 0, Count: 10}, first)
			assert.Equal(t, Block{Offset: 10, Count: 20}, second)

			require.NoError(t, a.Free(first))

			third, err := a.Alloc(tt.request)
			require.NoError(t, err)
			assert.Equal(t, tt.want, third)
			assert.Equal(t, tt.wantFree, a.FreeRanges())
			require.NoError(t, a.Validate())
		})
	}
}

func TestFirstFitPrefersLowestOffset(t *testing.T) {
	a := newTestArena(t, recorder.New(), 100, 100)
	blocks := make([]Block, 5)
	for i := range blocks {
		var err error
		blocks[i], err = a.Alloc(10)
		require.NoError(t, err)
	}
	require.NoError(t, a.Free(blocks[1]))
	require.NoError(t, a.Free(blocks[3]))

	b, err := a.Alloc(8)
	require.NoError(t, err)
	assert.Equal(t, blocks[1].Offset, b.Offset)
}

func TestFreeCoalescesNeighbours(t *testing.T) {
	a := newTestArena(t, recorder.New(), 30, 30)
	x, _ := a.Alloc(10)
	y, _ := a.Alloc(10)
	z, _ := a.Alloc(10)

	require.NoError(t, a.Free(x))
	require.NoError(t, a.Free(z))
	require.NoError(t, a.Free(y))
	assert.Equal(t, []Block{{Offset: 0, Count: 30}}, a.FreeRanges())

	b, err := a.Alloc(30)
	require.NoError(t, err)
	assert.Equal(t, Block{Offset: 0, Count: 30}, b)
}

func TestExhaustionIsAnError(t *testing.T) {
	a := newTestArena(t, recorder.New(), 16, 32)
	_, err := a.Alloc(32)
	require.NoError(t, err)

	_, err = a.Alloc(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArenaExhausted))
	require.NoError(t, a.Validate())
}

func TestGrowthReplacesBufferAndKeepsContents(t *testing.T) {
	dev := recorder.New()
	bin := rhi.NewRecycleBin(dev, 2)
	a := newTestArena(t, dev, 4, 64, WithRecycleBin(bin))

	b, err := a.Alloc(4)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte{0xAB}, 64)
	require.NoError(t, a.Write(b, payload))
	old := a.Buffer()

	_, err = a.Alloc(10)
	require.NoError(t, err)
	assert.NotSame(t, old, a.Buffer())
	assert.Equal(t, uint32(16), a.Capacity())
	assert.Equal(t, 1, bin.Len(), "old buffer waits in the recycle bin")
	require.NoError(t, a.Validate())

	cmd, err := dev.NewCommandList("flush")
	require.NoError(t, err)
	assert.True(t, a.Flush(cmd))
	a.PostBarrier(cmd)

	data := a.Buffer().(*recorder.Buffer).Data()
	assert.Equal(t, payload, data[:64])
	assert.False(t, a.Dirty())
}

func TestFlushMergesDirtyRanges(t *testing.T) {
	dev := recorder.New()
	a := newTestArena(t, dev, 8, 8)
	b, err := a.Alloc(8)
	require.NoError(t, err)

	require.NoError(t, a.WriteAt(b, 0, bytes.Repeat([]byte{1}, 16)))
	require.NoError(t, a.WriteAt(b, 1, bytes.Repeat([]byte{2}, 16)))
	require.NoError(t, a.WriteAt(b, 5, bytes.Repeat([]byte{3}, 16)))

	cmd, _ := dev.NewCommandList("flush")
	require.True(t, a.Flush(cmd))
	rec := cmd.(*recorder.CommandList)
	uploads := rec.Filter(recorder.OpUpload)
	require.Len(t, uploads, 2)
	assert.Equal(t, uint64(0), uploads[0].Offset)
	assert.Equal(t, uint64(32), uploads[0].Size)
	assert.Equal(t, uint64(80), uploads[1].Offset)

	assert.False(t, a.Flush(cmd), "nothing left to flush")
}

func TestWriteRejectsOverflowAndUnknownBlocks(t *testing.T) {
	a := newTestArena(t, recorder.New(), 8, 8)
	b, err := a.Alloc(2)
	require.NoError(t, err)

	assert.Error(t, a.Write(b, make([]byte, 33)))
	assert.True(t, errors.Is(a.Write(Block{Offset: 5, Count: 1}, []byte{1}), ErrUnknownBlock))
	assert.True(t, errors.Is(a.Free(Block{Offset: 0, Count: 1}), ErrUnknownBlock))
}

func TestInvariantHoldsUnderRandomWorkload(t *testing.T) {
	a := newTestArena(t, recorder.New(), 32, 1024)
	rng := rand.New(rand.NewPCG(1, 2))
	var live []Block

	for range 2000 {
		if len(live) > 0 && rng.IntN(3) == 0 {
			i := rng.IntN(len(live))
			require.NoError(t, a.Free(live[i]))
			live = append(live[:i], live[i+1:]...)
		} else {
			b, err := a.Alloc(uint32(rng.IntN(12) + 1))
			if errors.Is(err, ErrArenaExhausted) {
				continue
			}
			require.NoError(t, err)
			live = append(live, b)
		}
		require.NoError(t, a.Validate())
	}
}
