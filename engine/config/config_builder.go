package config

import "github.com/Carmen-Shannon/prism/engine/rhi"

// ConfigBuilderOption mutates a Config during New.
type ConfigBuilderOption func(*Config)

// New returns Default() with options applied, validated.
//
// Parameters:
//   - options: functional options applied in order
//
// Returns:
//   - Config: the configuration
//   - error: a validation error marked ErrInvalidConfig
func New(options ...ConfigBuilderOption) (Config, error) {
	c := Default()
	for _, opt := range options {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// WithRendererType selects the forward or deferred path.
func WithRendererType(t RendererType) ConfigBuilderOption {
	return func(c *Config) {
		c.RendererType = t
	}
}

// WithFormats sets the swapchain, HDR color and depth-stencil formats.
func WithFormats(swapchain, color, depthStencil rhi.Format) ConfigBuilderOption {
	return func(c *Config) {
		c.SwapchainFormat = swapchain
		c.ColorFormat = color
		c.DepthStencilFormat = depthStencil
	}
}

// WithMSAA sets the sample count of the geometry targets.
func WithMSAA(samples uint32) ConfigBuilderOption {
	return func(c *Config) {
		c.MSAASamples = samples
	}
}

// WithClearColor sets the color the color targets are cleared to.
func WithClearColor(r, g, b, a float64) ConfigBuilderOption {
	return func(c *Config) {
		c.ClearColor = [4]float64{r, g, b, a}
	}
}

// WithGamma sets gamma, exposure and the tone mapping operator.
func WithGamma(gamma, exposure float32, tm ToneMapping) ConfigBuilderOption {
	return func(c *Config) {
		c.Gamma = gamma
		c.Exposure = exposure
		c.ToneMapping = tm
	}
}

// WithAntiAliasing selects the anti-aliasing pass.
func WithAntiAliasing(aa AntiAliasing) ConfigBuilderOption {
	return func(c *Config) {
		c.AntiAliasing = aa
	}
}

// WithFXAA sets the FXAA tunables.
func WithFXAA(f FXAA) ConfigBuilderOption {
	return func(c *Config) {
		c.FXAA = f
	}
}

// WithSMAA sets the SMAA tunables.
func WithSMAA(s SMAA) ConfigBuilderOption {
	return func(c *Config) {
		c.SMAA = s
	}
}

// WithBloom sets the bloom settings.
func WithBloom(b Bloom) ConfigBuilderOption {
	return func(c *Config) {
		c.Bloom = b
	}
}

// WithSSAO sets the ambient occlusion settings.
func WithSSAO(s SSAO) ConfigBuilderOption {
	return func(c *Config) {
		c.SSAO = s
	}
}

// WithShadows sets the shadow mapping settings.
func WithShadows(s Shadows) ConfigBuilderOption {
	return func(c *Config) {
		c.Shadows = s
	}
}

// WithMaxShadowMaps sets how many lights may cast shadows at once.
func WithMaxShadowMaps(n uint32) ConfigBuilderOption {
	return func(c *Config) {
		c.Shadows.MaxShadowMaps = n
	}
}

// WithLimits sets the per-scene capacity limits.
func WithLimits(l Limits) ConfigBuilderOption {
	return func(c *Config) {
		c.Limits = l
	}
}

// WithFramesInFlight sets the buffering depth.
func WithFramesInFlight(n uint32) ConfigBuilderOption {
	return func(c *Config) {
		c.FramesInFlight = n
	}
}

// WithComputeWorkers bounds the CPU preparation worker pool.
func WithComputeWorkers(n int) ConfigBuilderOption {
	return func(c *Config) {
		c.ComputeWorkers = n
	}
}

// WithShaderValidation enables naga validation of WGSL sources.
func WithShaderValidation(enabled bool) ConfigBuilderOption {
	return func(c *Config) {
		c.ValidateShaders = enabled
	}
}

// WithShaderDir loads and watches shaders from dir instead of the embedded copies.
func WithShaderDir(dir string) ConfigBuilderOption {
	return func(c *Config) {
		c.ShaderDir = dir
	}
}
