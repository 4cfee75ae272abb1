// Package arena implements a free-list allocator over a single GPU buffer of fixed element stride.
// Allocations are element ranges (Blocks). The arena keeps a CPU mirror of the buffer, tracks which byte
// ranges were written since the last Flush and uploads only those.
package arena

import (
	"slices"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

var (
	// ErrArenaExhausted is returned when an allocation does not fit even at the maximum capacity.
	ErrArenaExhausted = errors.New("arena: exhausted")

	// ErrUnknownBlock is returned when freeing or writing a block the arena did not hand out.
	ErrUnknownBlock = errors.New("arena: unknown block")
)

// Block is a contiguous range of elements inside an Arena.
type Block struct {
	Offset uint32
	Count  uint32
}

// End returns the element index one past the block.
func (b Block) End() uint32 { return b.Offset + b.Count }

// span is a dirty byte range [start, end).
type span struct {
	start, end uint64
}

// Arena is a Device Memory Arena. It is not safe for concurrent use.
type Arena struct {
	device rhi.Device
	bin    *rhi.RecycleBin
	log    *log.Logger

	label       string
	stride      uint32
	capacity    uint32
	maxCapacity uint32
	usage       rhi.BufferUsage
	readState   rhi.ResourceState

	buffer rhi.Buffer
	state  rhi.ResourceState
	mirror []byte

	free  []Block
	live  map[uint32]uint32
	dirty []span
}

// New creates an arena and its backing buffer.
//
// Parameters:
//   - device: the device that owns the buffer
//   - label: debug label of the buffer
//   - stride: size in bytes of one element
//   - options: functional options (capacity, growth limit, usage, recycle bin, logger)
//
// Returns:
//   - *Arena: the arena with every element free
//   - error: a configuration or buffer creation error
func New(device rhi.Device, label string, stride uint32, options ...ArenaBuilderOption) (*Arena, error) {
	a := &Arena{
		device:    device,
		label:     label,
		stride:    stride,
		capacity:  64,
		usage:     rhi.BufferUsageStorage,
		readState: rhi.StateShaderRead,
		live:      make(map[uint32]uint32),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Sub(nil, "arena")
	}
	if stride == 0 || a.capacity == 0 {
		return nil, errors.Newf("arena %q: stride and capacity must be positive", label)
	}
	a.maxCapacity = max(a.maxCapacity, a.capacity)
	a.usage |= rhi.BufferUsageCopyDst | rhi.BufferUsageCopySrc

	buf, err := a.createBuffer(a.capacity)
	if err != nil {
		return nil, err
	}
	a.buffer = buf
	a.mirror = make([]byte, uint64(a.capacity)*uint64(stride))
	a.free = []Block{{Offset: 0, Count: a.capacity}}
	return a, nil
}

// Alloc reserves count contiguous elements using first fit. When no free range is large enough the
// arena grows by doubling up to its maximum capacity. Growth recreates the backing buffer, so callers
// must fetch Buffer() again after any Alloc instead of caching it.
//
// Parameters:
//   - count: number of elements, greater than zero
//
// Returns:
//   - Block: the reserved range
//   - error: ErrArenaExhausted when the request cannot fit at maximum capacity
func (a *Arena) Alloc(count uint32) (Block, error) {
	if count == 0 {
		return Block{}, errors.Newf("arena %q: zero-sized allocation", a.label)
	}
	if b, ok := a.takeFirstFit(count); ok {
		return b, nil
	}
	if err := a.grow(count); err != nil {
		return Block{}, err
	}
	b, ok := a.takeFirstFit(count)
	if !ok {
		return Block{}, errors.AssertionFailedf("arena %q: no fit for %d after growth", a.label, count)
	}
	return b, nil
}

// Write copies data into the CPU mirror of block and marks the range dirty. data may be shorter than
// the block; it must not be longer.
//
// Parameters:
//   - block: a live block returned by Alloc
//   - data: the bytes to write starting at the block's first element
//
// Returns:
//   - error: ErrUnknownBlock for a block that is not live, or an error when data overflows the block
func (a *Arena) Write(block Block, data []byte) error {
	return a.WriteAt(block, 0, data)
}

// WriteAt is Write starting at element index within the block.
func (a *Arena) WriteAt(block Block, index uint32, data []byte) error {
	if count, ok := a.live[block.Offset]; !ok || count != block.Count {
		return errors.Wrapf(ErrUnknownBlock, "arena %q: write to %+v", a.label, block)
	}
	limit := uint64(block.Count-min(index, block.Count)) * uint64(a.stride)
	if uint64(len(data)) > limit {
		return errors.Newf("arena %q: %d bytes overflow block %+v at element %d", a.label, len(data), block, index)
	}
	if len(data) == 0 {
		return nil
	}
	start := uint64(block.Offset+index) * uint64(a.stride)
	copy(a.mirror[start:], data)
	a.dirty = append(a.dirty, span{start: start, end: start + uint64(len(data))})
	return nil
}

// Free returns block to the free list. The memory is not cleared.
//
// Parameters:
//   - block: a live block returned by Alloc
//
// Returns:
//   - error: ErrUnknownBlock when block is not live
func (a *Arena) Free(block Block) error {
	if count, ok := a.live[block.Offset]; !ok || count != block.Count {
		return errors.Wrapf(ErrUnknownBlock, "arena %q: free of %+v", a.label, block)
	}
	delete(a.live, block.Offset)

	i, _ := slices.BinarySearchFunc(a.free, block.Offset, func(b Block, off uint32) int {
		return int(int64(b.Offset) - int64(off))
	})
	a.free = slices.Insert(a.free, i, block)

	// coalesce with the right neighbour, then the left one
	if i+1 < len(a.free) && a.free[i].End() == a.free[i+1].Offset {
		a.free[i].Count += a.free[i+1].Count
		a.free = slices.Delete(a.free, i+1, i+2)
	}
	if i > 0 && a.free[i-1].End() == a.free[i].Offset {
		a.free[i-1].Count += a.free[i].Count
		a.free = slices.Delete(a.free, i, i+1)
	}
	return nil
}

// Flush uploads every dirty range to the device buffer and clears the dirty state.
//
// Parameters:
//   - cmd: the command list that records the uploads
//
// Returns:
//   - bool: true when anything was uploaded
func (a *Arena) Flush(cmd rhi.CommandList) bool {
	if len(a.dirty) == 0 {
		return false
	}
	slices.SortFunc(a.dirty, func(x, y span) int {
		return int(int64(x.start) - int64(y.start))
	})
	merged := a.dirty[:1]
	for _, s := range a.dirty[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			last.end = max(last.end, s.end)
			continue
		}
		merged = append(merged, s)
	}

	if a.state != rhi.StateCopyDst {
		cmd.Barrier(rhi.BufferBarrier(a.buffer, a.state, rhi.StateCopyDst))
		a.state = rhi.StateCopyDst
	}
	for _, s := range merged {
		cmd.Upload(a.buffer, s.start, a.mirror[s.start:s.end])
	}
	a.dirty = a.dirty[:0]
	return true
}

// PostBarrier transitions the buffer into the state later GPU work reads it in (ShaderRead unless
// overridden with WithReadState). It records nothing when the buffer is already in that state.
//
// Parameters:
//   - cmd: the command list that records the barrier
func (a *Arena) PostBarrier(cmd rhi.CommandList) {
	if a.state == a.readState {
		return
	}
	cmd.Barrier(rhi.BufferBarrier(a.buffer, a.state, a.readState))
	a.state = a.readState
}

// Validate checks the allocator invariants: live and free ranges tile the arena exactly, without overlap.
//
// Returns:
//   - error: a description of the first violation, or nil
func (a *Arena) Validate() error {
	ranges := make([]Block, 0, len(a.live)+len(a.free))
	var sumLive, sumFree uint64
	for off, n := range a.live {
		ranges = append(ranges, Block{Offset: off, Count: n})
		sumLive += uint64(n)
	}
	for i, f := range a.free {
		if f.Count == 0 {
			return errors.Newf("free range %d is empty", i)
		}
		if i > 0 && a.free[i-1].End() >= f.Offset {
			return errors.Newf("free ranges %d and %d overlap or are not coalesced", i-1, i)
		}
		ranges = append(ranges, f)
		sumFree += uint64(f.Count)
	}
	if sumLive+sumFree != uint64(a.capacity) {
		return errors.Newf("live %d + free %d != capacity %d", sumLive, sumFree, a.capacity)
	}
	slices.SortFunc(ranges, func(x, y Block) int { return int(int64(x.Offset) - int64(y.Offset)) })
	next := uint32(0)
	for _, r := range ranges {
		if r.Offset != next {
			return errors.Newf("range at %d, expected %d (gap or overlap)", r.Offset, next)
		}
		next = r.End()
	}
	return nil
}

// Buffer returns the current backing buffer. It changes when the arena grows.
func (a *Arena) Buffer() rhi.Buffer { return a.buffer }

// Stride returns the element size in bytes.
func (a *Arena) Stride() uint32 { return a.stride }

// Capacity returns the current capacity in elements.
func (a *Arena) Capacity() uint32 { return a.capacity }

// MaxCapacity returns the growth limit in elements.
func (a *Arena) MaxCapacity() uint32 { return a.maxCapacity }

// Live returns the number of live elements.
func (a *Arena) Live() uint32 {
	var n uint32
	for _, c := range a.live {
		n += c
	}
	return n
}

// FreeRanges returns a copy of the free list ordered by offset.
func (a *Arena) FreeRanges() []Block { return slices.Clone(a.free) }

// Dirty reports whether writes are pending upload.
func (a *Arena) Dirty() bool { return len(a.dirty) > 0 }

// Mirror returns the CPU copy of the buffer contents.
func (a *Arena) Mirror() []byte { return a.mirror }

// Destroy releases the backing buffer through the recycle bin, or immediately when there is none.
func (a *Arena) Destroy() {
	a.retire(a.buffer)
	a.buffer = nil
}

func (a *Arena) takeFirstFit(count uint32) (Block, bool) {
	for i, f := range a.free {
		if f.Count < count {
			continue
		}
		b := Block{Offset: f.Offset, Count: count}
		if f.Count == count {
			a.free = slices.Delete(a.free, i, i+1)
		} else {
			a.free[i] = Block{Offset: f.Offset + count, Count: f.Count - count}
		}
		a.live[b.Offset] = b.Count
		return b, true
	}
	return Block{}, false
}

func (a *Arena) grow(count uint32) error {
	tail := uint32(0)
	if n := len(a.free); n > 0 && a.free[n-1].End() == a.capacity {
		tail = a.free[n-1].Count
	}
	newCap := uint64(a.capacity)
	for newCap-uint64(a.capacity)+uint64(tail) < uint64(count) {
		newCap *= 2
	}
	if newCap > uint64(a.maxCapacity) {
		newCap = uint64(a.maxCapacity)
	}
	if newCap-uint64(a.capacity)+uint64(tail) < uint64(count) {
		return errors.Wrapf(ErrArenaExhausted, "arena %q: %d elements requested, capacity %d/%d, %d live",
			a.label, count, a.capacity, a.maxCapacity, a.Live())
	}

	buf, err := a.createBuffer(uint32(newCap))
	if err != nil {
		return err
	}
	a.log.Debug("growing arena", "label", a.label, "from", a.capacity, "to", newCap)

	old := a.capacity
	a.retire(a.buffer)
	a.buffer = buf
	a.state = rhi.StateUndefined
	a.mirror = append(a.mirror, make([]byte, (newCap-uint64(old))*uint64(a.stride))...)
	a.capacity = uint32(newCap)

	if tail > 0 {
		a.free[len(a.free)-1].Count += a.capacity - old
	} else {
		a.free = append(a.free, Block{Offset: old, Count: a.capacity - old})
	}

	// the new buffer starts empty: everything live must be uploaded again
	a.dirty = append(a.dirty[:0], span{start: 0, end: uint64(old) * uint64(a.stride)})
	return nil
}

func (a *Arena) createBuffer(capacity uint32) (rhi.Buffer, error) {
	size := common.AlignUp(uint64(capacity)*uint64(a.stride), 4)
	buf, err := a.device.CreateBuffer(rhi.BufferDesc{Label: a.label, Size: size, Usage: a.usage})
	if err != nil {
		return nil, errors.Wrapf(err, "arena %q: creating %d byte buffer", a.label, size)
	}
	return buf, nil
}

func (a *Arena) retire(buf rhi.Buffer) {
	if buf == nil {
		return
	}
	if a.bin != nil {
		a.bin.Retire(buf)
		return
	}
	a.device.Destroy(buf)
}
