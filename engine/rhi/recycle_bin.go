package rhi

// RecycleBin defers destruction of resources that in-flight frames may still reference. A resource
// retired while frame N is recorded is destroyed by the first Collect call for frame N+framesInFlight
// or later, when the frame that used it is guaranteed to have completed.
type RecycleBin struct {
	device         Device
	framesInFlight uint64
	frame          uint64
	entries        []recycled
}

type recycled struct {
	res   Resource
	frame uint64
}

// NewRecycleBin creates an empty bin for device.
//
// Parameters:
//   - device: the device that destroys collected resources
//   - framesInFlight: how many frames the GPU may be behind the CPU (minimum 1)
//
// Returns:
//   - *RecycleBin: the bin
func NewRecycleBin(device Device, framesInFlight int) *RecycleBin {
	return &RecycleBin{
		device:         device,
		framesInFlight: uint64(max(framesInFlight, 1)),
	}
}

// Retire queues resources for destruction. Nil entries are ignored.
func (b *RecycleBin) Retire(resources ...Resource) {
	for _, r := range resources {
		if r == nil {
			continue
		}
		b.entries = append(b.entries, recycled{res: r, frame: b.frame})
	}
}

// Collect advances the bin to frame and destroys every resource that no pending frame references.
//
// Parameters:
//   - frame: the monotonically increasing number of the frame about to be recorded
//
// Returns:
//   - int: the number of resources destroyed
func (b *RecycleBin) Collect(frame uint64) int {
	b.frame = frame
	kept := b.entries[:0]
	var doomed []Resource
	for _, e := range b.entries {
		if e.frame+b.framesInFlight <= frame {
			doomed = append(doomed, e.res)
			continue
		}
		kept = append(kept, e)
	}
	clear(b.entries[len(kept):])
	b.entries = kept
	if len(doomed) > 0 {
		b.device.Destroy(doomed...)
	}
	return len(doomed)
}

// Drain destroys everything regardless of age. Call it only after the device is idle.
func (b *RecycleBin) Drain() {
	if len(b.entries) == 0 {
		return
	}
	all := make([]Resource, 0, len(b.entries))
	for _, e := range b.entries {
		all = append(all, e.res)
	}
	b.entries = b.entries[:0]
	b.device.Destroy(all...)
}

// Len returns the number of resources waiting for destruction.
func (b *RecycleBin) Len() int {
	return len(b.entries)
}
