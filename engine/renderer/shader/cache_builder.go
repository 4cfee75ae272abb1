package shader

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
)

// CacheBuilderOption is a function that configures a Cache during construction.
type CacheBuilderOption func(*Cache)

// WithDir is an option builder that makes files in dir override the embedded shaders.
//
// Parameters:
//   - dir: a directory holding <name>.wgsl files and optionally include/<name>.wgsl snippets
//
// Returns:
//   - CacheBuilderOption: a function that applies the directory option to a cache
func WithDir(dir string) CacheBuilderOption {
	return func(c *Cache) {
		c.dir = dir
	}
}

// WithValidation is an option builder that runs every expanded shader through naga before compiling it.
//
// Parameters:
//   - enabled: whether to validate
//
// Returns:
//   - CacheBuilderOption: a function that applies the validation option to a cache
func WithValidation(enabled bool) CacheBuilderOption {
	return func(c *Cache) {
		c.validate = enabled
	}
}

// WithRecycleBin defers destruction of invalidated modules until in-flight frames complete.
func WithRecycleBin(bin *rhi.RecycleBin) CacheBuilderOption {
	return func(c *Cache) {
		c.bin = bin
	}
}

// WithLogger sets the logger used for compile and reload messages.
func WithLogger(l *log.Logger) CacheBuilderOption {
	return func(c *Cache) {
		c.log = l
	}
}

// WithInclude is an option builder that registers an additional include with the pre-processor.
//
// Parameters:
//   - name: the include name
//   - source: the WGSL source
//   - typeName: the WGSL type group annotations emit for name, or ""
//
// Returns:
//   - CacheBuilderOption: a function that applies the include option to a cache
func WithInclude(name, source, typeName string) CacheBuilderOption {
	return func(c *Cache) {
		c.pp.Register(name, source, typeName)
	}
}
