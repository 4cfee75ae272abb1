package renderer

import (
	"github.com/Carmen-Shannon/prism/engine/renderer/pass"
	"github.com/Carmen-Shannon/prism/engine/renderer/shader"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/charmbracelet/log"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via New.
type RendererBuilderOption func(*renderer)

// CustomPassFactory creates an application-defined post-processing effect from the renderer's pass
// context. Custom effects run after bloom and before anti-aliasing, in registration order.
type CustomPassFactory func(ctx pass.Context) (pass.Effect, error)

// WithCustomPass appends a custom post-processing effect to the chain.
//
// Parameters:
//   - factory: the function creating the effect
//
// Returns:
//   - RendererBuilderOption: a function that applies the custom pass option to a renderer
func WithCustomPass(factory CustomPassFactory) RendererBuilderOption {
	return func(r *renderer) {
		if factory != nil {
			r.customFactories = append(r.customFactories, factory)
		}
	}
}

// WithShaderCache shares an existing shader cache instead of creating one. The renderer registers its
// scene include on the cache and does not destroy it.
//
// Parameters:
//   - cache: the shader cache
//
// Returns:
//   - RendererBuilderOption: a function that applies the shader cache option to a renderer
func WithShaderCache(cache *shader.Cache) RendererBuilderOption {
	return func(r *renderer) {
		r.shaders = cache
	}
}

// WithSceneOptions forwards options to the scene the renderer creates.
func WithSceneOptions(options ...scene.SceneBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.sceneOptions = append(r.sceneOptions, options...)
	}
}

// WithLogger sets the parent logger. The renderer logs under the "renderer" prefix.
func WithLogger(l *log.Logger) RendererBuilderOption {
	return func(r *renderer) {
		r.log = l
	}
}
