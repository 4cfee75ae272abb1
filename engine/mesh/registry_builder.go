package mesh

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
)

type registryConfig struct {
	vertexCapacity uint32
	maxVertices    uint32
	indexCapacity  uint32
	maxIndices     uint32
	bin            *rhi.RecycleBin
	log            *log.Logger
}

// RegistryBuilderOption configures a Registry during NewRegistry.
type RegistryBuilderOption func(*registryConfig)

// WithVertexCapacity sets the initial and maximum number of vertices.
func WithVertexCapacity(initial, maximum uint32) RegistryBuilderOption {
	return func(c *registryConfig) {
		c.vertexCapacity = initial
		c.maxVertices = maximum
	}
}

// WithIndexCapacity sets the initial and maximum number of indices.
func WithIndexCapacity(initial, maximum uint32) RegistryBuilderOption {
	return func(c *registryConfig) {
		c.indexCapacity = initial
		c.maxIndices = maximum
	}
}

// WithRecycleBin routes replaced geometry buffers through bin.
func WithRecycleBin(bin *rhi.RecycleBin) RegistryBuilderOption {
	return func(c *registryConfig) {
		c.bin = bin
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *log.Logger) RegistryBuilderOption {
	return func(c *registryConfig) {
		c.log = l
	}
}
