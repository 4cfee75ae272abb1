package scene

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithShadowRendererFactory sets the factory creating the shadow renderer of every shadow-casting light.
// Without one the scene computes shadow projections but records no shadow rendering.
//
// Parameters:
//   - factory: the shadow renderer factory
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithShadowRendererFactory(factory ShadowRendererFactory) SceneBuilderOption {
	return func(s *scene) {
		s.shadowFactory = factory
	}
}

// WithRecycleBin routes replaced and destroyed resources through bin so in-flight frames can finish with them.
//
// Parameters:
//   - bin: the renderer's recycle bin
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRecycleBin(bin *rhi.RecycleBin) SceneBuilderOption {
	return func(s *scene) {
		s.bin = bin
	}
}

// WithComputeWorkers sets the number of worker goroutines used for the parallel CPU preparation of the
// instance tables in Update. Defaults to Config.ComputeWorkers, or runtime.NumCPU()-1 when that is zero.
//
// Parameters:
//   - n: the number of compute workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.computeWorkers = n
	}
}

// WithAmbient sets the initial ambient light color.
func WithAmbient(r, g, b float32) SceneBuilderOption {
	return func(s *scene) {
		s.ambient = [3]float32{r, g, b}
	}
}

// WithLogger sets the scene's logger.
func WithLogger(l *log.Logger) SceneBuilderOption {
	return func(s *scene) {
		s.log = l
	}
}
