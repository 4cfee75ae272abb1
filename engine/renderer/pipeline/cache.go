package pipeline

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// CacheBuilderOption is a functional option used to configure a Cache during construction.
type CacheBuilderOption func(*Cache)

// WithRecycleBin defers destruction of replaced pipelines until in-flight frames complete.
func WithRecycleBin(bin *rhi.RecycleBin) CacheBuilderOption {
	return func(c *Cache) {
		c.bin = bin
	}
}

// WithLogger sets the cache logger.
func WithLogger(l *log.Logger) CacheBuilderOption {
	return func(c *Cache) {
		c.log = l
	}
}

type entry struct {
	pipeline rhi.Pipeline
	shader   string
	cull     rhi.CullMode
}

// Cache lazily builds one graphic pipeline per material pipeline id from a Template. Pipelines live
// until the shader cache generation changes, at which point every entry is rebuilt on its next use.
type Cache struct {
	mu         sync.Mutex
	device     rhi.Device
	shaders    *shader.Cache
	template   *Template
	layouts    []rhi.DescriptorLayout
	bin        *rhi.RecycleBin
	log        *log.Logger
	generation uint64
	entries    map[material.PipelineID]*entry
}

// NewCache creates an empty pipeline cache.
//
// Parameters:
//   - device: the device pipelines are created on
//   - shaders: the shader cache modules are loaded from
//   - template: the fixed-function configuration
//   - layouts: the descriptor layouts, in set order
//   - opts: a variadic list of CacheBuilderOption functions
//
// Returns:
//   - *Cache: the cache
func NewCache(device rhi.Device, shaders *shader.Cache, template *Template, layouts []rhi.DescriptorLayout, opts ...CacheBuilderOption) *Cache {
	c := &Cache{
		device:     device,
		shaders:    shaders,
		template:   template,
		layouts:    layouts,
		generation: shaders.Generation(),
		entries:    make(map[material.PipelineID]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Sub(nil, "pipeline")
	}
	return c
}

// Ensure returns the pipeline of id, building it on first use or after a shader reload. A pipeline
// whose shader name or cull mode differ from the cached one is rebuilt.
//
// Parameters:
//   - id: the pipeline id
//   - shaderName: the shader the pipeline runs
//   - cull: the cull mode of the pipeline
//
// Returns:
//   - rhi.Pipeline: the pipeline
//   - error: a shader or pipeline creation error
func (c *Cache) Ensure(id material.PipelineID, shaderName string, cull rhi.CullMode) (rhi.Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.syncGenerationLocked()
	if e, ok := c.entries[id]; ok && e.shader == shaderName && e.cull == cull {
		return e.pipeline, nil
	}

	module, err := c.shaders.Load(shaderName)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s: loading shader %q", c.template.Key(), shaderName)
	}
	desc := c.template.Describe(fmt.Sprintf("%s-%d", shaderName, id), module, c.layouts, cull)
	p, err := c.device.CreateGraphicPipeline(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s: creating pipeline %d", c.template.Key(), id)
	}
	if old, ok := c.entries[id]; ok {
		c.retire(old.pipeline)
	}
	c.entries[id] = &entry{pipeline: p, shader: shaderName, cull: cull}
	c.log.Debug("pipeline created", "template", c.template.Key(), "id", id, "shader", shaderName)
	return p, nil
}

// Get returns the cached pipeline of id without building it.
func (c *Cache) Get(id material.PipelineID) (rhi.Pipeline, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.pipeline, true
}

// Len returns the number of cached pipelines.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Template returns the template pipelines are built from.
func (c *Cache) Template() *Template { return c.template }

// Rebuild rebuilds every cached pipeline if the shader cache changed since they were built. A failed
// rebuild leaves the entry out of the cache so the next Ensure retries it.
//
// Returns:
//   - error: the first shader or pipeline creation error
func (c *Cache) Rebuild() error {
	c.mu.Lock()
	stale := make(map[material.PipelineID]entry, len(c.entries))
	for id, e := range c.entries {
		stale[id] = *e
	}
	changed := c.syncGenerationLocked()
	c.mu.Unlock()
	if !changed {
		return nil
	}

	var errs error
	for id, e := range stale {
		if _, err := c.Ensure(id, e.shader, e.cull); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// syncGenerationLocked drops every entry when the shader cache generation moved.
func (c *Cache) syncGenerationLocked() bool {
	gen := c.shaders.Generation()
	if gen == c.generation {
		return false
	}
	for id, e := range c.entries {
		c.retire(e.pipeline)
		delete(c.entries, id)
	}
	c.generation = gen
	c.log.Debug("shader generation changed, pipelines dropped", "template", c.template.Key(), "generation", gen)
	return true
}

func (c *Cache) retire(r rhi.Resource) {
	if c.bin != nil {
		c.bin.Retire(r)
		return
	}
	c.device.Destroy(r)
}

// Destroy releases every cached pipeline.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		c.retire(e.pipeline)
		delete(c.entries, id)
	}
}
