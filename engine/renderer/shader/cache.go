// Package shader owns the WGSL sources of the render core. Shaders are embedded in the binary, expanded by
// the @prism: pre-processor, optionally validated with naga, and compiled into rhi.ShaderModules that the
// passes look up by name. A shader directory on disk may override the embedded files and is watched for
// changes so edited shaders are picked up on the next pipeline update.
package shader

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/gogpu/naga"
)

// ErrShaderNotFound is returned when no source exists for a shader name.
var ErrShaderNotFound = errors.New("shader: not found")

// ErrInvalidShader is marked on sources rejected by the naga front end.
var ErrInvalidShader = errors.New("shader: invalid WGSL")

//go:embed assets/*.wgsl assets/include/*.wgsl
var assets embed.FS

// Snippets shared by several shaders, registered with every pre-processor.
var (
	fullscreenSource    = mustAsset("include/fullscreen")
	sceneBindingsSource = mustAsset("include/scene_bindings")
	geometrySource      = mustAsset("include/geometry")
	lightingSource      = mustAsset("include/lighting")
	smaaSource          = mustAsset("include/smaa")
)

const shaderExt = ".wgsl"

type compiled struct {
	module rhi.ShaderModule
	source string
	decls  []Annotation
}

// Cache compiles shaders once and hands out the same module until the shader is invalidated. It is safe
// for concurrent use; Invalidate is typically called from the watcher goroutine while the render loop
// calls Load.
type Cache struct {
	mu         sync.Mutex
	device     rhi.Device
	pp         PreProcessor
	log        *log.Logger
	dir        string
	validate   bool
	bin        *rhi.RecycleBin
	sources    map[string]string
	modules    map[string]*compiled
	stale      []rhi.ShaderModule
	generation uint64
}

// NewCache creates a shader cache for device.
//
// Parameters:
//   - device: the device shader modules are created on
//   - opts: optional configuration
//
// Returns:
//   - *Cache: the cache
//   - error: an error if the shader directory cannot be read
func NewCache(device rhi.Device, opts ...CacheBuilderOption) (*Cache, error) {
	c := &Cache{
		device:  device,
		pp:      NewPreProcessor(),
		sources: make(map[string]string),
		modules: make(map[string]*compiled),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Sub(nil, "shader")
	}
	if c.dir != "" {
		info, err := os.Stat(c.dir)
		if err != nil {
			return nil, errors.Wrapf(err, "shader: directory %q", c.dir)
		}
		if !info.IsDir() {
			return nil, errors.Newf("shader: %q is not a directory", c.dir)
		}
	}
	return c, nil
}

// Register adds or replaces the source of a shader. Registered sources take precedence over files on disk
// and embedded assets.
//
// Parameters:
//   - name: the shader name used by Load
//   - source: the raw WGSL source, annotations allowed
func (c *Cache) Register(name, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = source
	c.invalidateLocked(name)
}

// Include registers a struct source or snippet with the pre-processor. Every compiled shader is
// invalidated, since any of them may include name.
//
// Parameters:
//   - name: the include name
//   - source: the WGSL source
//   - typeName: the WGSL type group annotations emit for name, or ""
func (c *Cache) Include(name, source, typeName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pp.Register(name, source, typeName)
	c.invalidateAllLocked()
}

// Source returns the raw source of a shader. Lookup order is registered sources, the shader directory and
// the embedded assets.
//
// Parameters:
//   - name: the shader name, without extension
//
// Returns:
//   - string: the WGSL source before pre-processing
//   - error: ErrShaderNotFound if nothing provides name
func (c *Cache) Source(name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceLocked(name)
}

func (c *Cache) sourceLocked(name string) (string, error) {
	if src, ok := c.sources[name]; ok {
		return src, nil
	}
	if c.dir != "" {
		data, err := os.ReadFile(filepath.Join(c.dir, name+shaderExt))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", errors.Wrapf(err, "shader: reading %q", name)
		}
	}
	data, err := assets.ReadFile("assets/" + name + shaderExt)
	if err != nil {
		return "", errors.Wrapf(ErrShaderNotFound, "%q", name)
	}
	return string(data), nil
}

// Load returns the compiled module of a shader, compiling it on first use or after invalidation.
//
// Parameters:
//   - name: the shader name
//
// Returns:
//   - rhi.ShaderModule: the module
//   - error: an error if the source is missing, malformed or rejected by the device
func (c *Cache) Load(name string) (rhi.ShaderModule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseStaleLocked()
	if m, ok := c.modules[name]; ok {
		return m.module, nil
	}

	raw, err := c.sourceLocked(name)
	if err != nil {
		return nil, err
	}
	src, decls, err := c.pp.Process(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %q", name)
	}
	if c.validate {
		if err := Validate(src); err != nil {
			if !IsValidatorLimitation(err) {
				return nil, errors.Wrapf(err, "shader %q", name)
			}
			c.log.Warn("validator cannot check shader", "name", name, "err", err)
		}
	}

	module, err := c.device.CreateShaderModule(rhi.ShaderModuleDesc{Label: name, Source: src})
	if err != nil {
		return nil, errors.Wrapf(err, "shader %q", name)
	}
	c.modules[name] = &compiled{module: module, source: src, decls: decls}
	c.log.Debug("compiled shader", "name", name, "bindings", len(decls))
	return module, nil
}

// Processed returns the expanded source of a compiled shader.
func (c *Cache) Processed(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modules[name]
	if !ok {
		return "", false
	}
	return m.source, true
}

// Declarations returns the group annotations collected while compiling a shader.
//
// Parameters:
//   - name: the shader name
//
// Returns:
//   - []Annotation: the binding declarations in source order
//   - bool: false if the shader has not been compiled
func (c *Cache) Declarations(name string) ([]Annotation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modules[name]
	if !ok {
		return nil, false
	}
	return m.decls, true
}

// Generation returns a counter that increases whenever a compiled shader is invalidated. Pipelines built
// at an older generation may hold outdated modules.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Invalidate drops the compiled module of name. The module is released on the next Load.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(name)
}

// InvalidateAll drops every compiled module.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateAllLocked()
}

func (c *Cache) invalidateLocked(name string) {
	m, ok := c.modules[name]
	if !ok {
		return
	}
	delete(c.modules, name)
	c.stale = append(c.stale, m.module)
	c.generation++
}

func (c *Cache) invalidateAllLocked() {
	if len(c.modules) == 0 {
		return
	}
	for name, m := range c.modules {
		c.stale = append(c.stale, m.module)
		delete(c.modules, name)
	}
	c.generation++
}

func (c *Cache) releaseStaleLocked() {
	if len(c.stale) == 0 {
		return
	}
	res := make([]rhi.Resource, len(c.stale))
	for i, m := range c.stale {
		res[i] = m
	}
	c.stale = c.stale[:0]
	if c.bin != nil {
		c.bin.Retire(res...)
		return
	}
	c.device.Destroy(res...)
}

// Watch reloads shaders from the shader directory when their files change. Files directly in the
// directory invalidate the shader of the same name; files under include/ replace the snippet of the same
// name and invalidate everything. Watch blocks until ctx is done.
//
// Parameters:
//   - ctx: cancels the watch
//
// Returns:
//   - error: an error if no directory is configured or the watcher fails to start
func (c *Cache) Watch(ctx context.Context) error {
	if c.dir == "" {
		return errors.New("shader: no shader directory to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "shader: starting watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return errors.Wrapf(err, "shader: watching %q", c.dir)
	}
	includeDir := filepath.Join(c.dir, "include")
	if info, err := os.Stat(includeDir); err == nil && info.IsDir() {
		if err := watcher.Add(includeDir); err != nil {
			return errors.Wrapf(err, "shader: watching %q", includeDir)
		}
	}

	c.log.Info("watching shaders", "dir", c.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				c.reload(e.Name, includeDir)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Error("shader watcher", "err", err)
		}
	}
}

func (c *Cache) reload(path, includeDir string) {
	if filepath.Ext(path) != shaderExt {
		return
	}
	name := strings.TrimSuffix(filepath.Base(path), shaderExt)
	if filepath.Dir(path) != filepath.Clean(includeDir) {
		c.log.Info("shader changed", "name", name)
		c.Invalidate(name)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Error("reading include", "name", name, "err", err)
		return
	}
	c.log.Info("include changed", "name", name)
	c.Include(name, string(data), "")
}

// Destroy releases every module the cache created.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateAllLocked()
	res := make([]rhi.Resource, len(c.stale))
	for i, m := range c.stale {
		res[i] = m
	}
	c.stale = nil
	c.device.Destroy(res...)
}

// Validate runs expanded WGSL through the naga front end and SPIR-V back end.
//
// Parameters:
//   - source: pre-processed WGSL
//
// Returns:
//   - error: an error marked ErrInvalidShader, or nil
func Validate(source string) error {
	if _, err := naga.Compile(source); err != nil {
		return errors.Mark(errors.Wrap(err, "naga"), ErrInvalidShader)
	}
	return nil
}

// IsValidatorLimitation reports whether a validation error comes from a WGSL feature naga does not
// implement yet rather than from the shader itself.
func IsValidatorLimitation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported")
}

func mustAsset(name string) string {
	data, err := assets.ReadFile("assets/" + name + shaderExt)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// Names lists the embedded shaders.
func Names() []string {
	entries, err := assets.ReadDir("assets")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != shaderExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), shaderExt))
	}
	return names
}
