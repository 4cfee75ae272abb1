package material

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
)

// RegistryBuilderOption configures a Registry during NewRegistry.
type RegistryBuilderOption func(*Registry)

// WithCapacity sets how many materials fit before the buffer first grows.
func WithCapacity(n uint32) RegistryBuilderOption {
	return func(r *Registry) {
		r.capacity = n
	}
}

// WithMaxMaterials bounds the number of materials.
func WithMaxMaterials(n uint32) RegistryBuilderOption {
	return func(r *Registry) {
		r.maxCount = n
	}
}

// WithRecycleBin routes replaced material buffers through bin.
func WithRecycleBin(bin *rhi.RecycleBin) RegistryBuilderOption {
	return func(r *Registry) {
		r.bin = bin
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *log.Logger) RegistryBuilderOption {
	return func(r *Registry) {
		r.log = l
	}
}
