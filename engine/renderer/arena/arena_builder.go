package arena

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
)

// ArenaBuilderOption configures an Arena during New.
type ArenaBuilderOption func(*Arena)

// WithCapacity sets the initial capacity in elements (default 64).
func WithCapacity(elements uint32) ArenaBuilderOption {
	return func(a *Arena) {
		a.capacity = elements
	}
}

// WithMaxCapacity sets the hard growth limit in elements. Defaults to the initial capacity, i.e. no growth.
func WithMaxCapacity(elements uint32) ArenaBuilderOption {
	return func(a *Arena) {
		a.maxCapacity = elements
	}
}

// WithUsage adds buffer usages on top of the copy usages every arena needs (default Storage).
func WithUsage(usage rhi.BufferUsage) ArenaBuilderOption {
	return func(a *Arena) {
		a.usage = usage
	}
}

// WithReadState sets the state PostBarrier transitions the buffer into (default ShaderRead).
func WithReadState(state rhi.ResourceState) ArenaBuilderOption {
	return func(a *Arena) {
		a.readState = state
	}
}

// WithRecycleBin routes replaced buffers through bin instead of destroying them immediately.
func WithRecycleBin(bin *rhi.RecycleBin) ArenaBuilderOption {
	return func(a *Arena) {
		a.bin = bin
	}
}

// WithLogger sets the logger used for growth events.
func WithLogger(l *log.Logger) ArenaBuilderOption {
	return func(a *Arena) {
		a.log = l
	}
}
