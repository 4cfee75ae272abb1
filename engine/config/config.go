// Package config holds the renderer configuration. A Config is built from Default() and functional
// options, or decoded from a TOML document with Load/Parse, and is read once at construction time by the
// scene, the passes and the renderer.
package config

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cockroachdb/errors"
)

// ErrInvalidConfig is marked on every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// FXAA holds the FXAA tunables.
type FXAA struct {
	SpanMax   float32 `toml:"span_max"`
	ReduceMul float32 `toml:"reduce_mul"`
	ReduceMin float32 `toml:"reduce_min"`
}

// SMAA holds the SMAA tunables.
type SMAA struct {
	EdgeThreshold      float32 `toml:"edge_threshold"`
	MaxSearchSteps     uint32  `toml:"max_search_steps"`
	MaxSearchStepsDiag uint32  `toml:"max_search_steps_diag"`
	CornerRounding     uint32  `toml:"corner_rounding"`
}

// Bloom holds the bloom pass settings.
type Bloom struct {
	Enabled    bool    `toml:"enabled"`
	KernelSize uint32  `toml:"kernel_size"`
	Strength   float32 `toml:"strength"`
	Threshold  float32 `toml:"threshold"`
}

// SSAO holds the ambient occlusion pass settings.
type SSAO struct {
	Enabled     bool    `toml:"enabled"`
	KernelSize  uint32  `toml:"kernel_size"`
	SampleCount uint32  `toml:"sample_count"`
	Radius      float32 `toml:"radius"`
	Bias        float32 `toml:"bias"`
	Strength    float32 `toml:"strength"`
}

// Shadows holds shadow mapping settings.
type Shadows struct {
	// MaxShadowMaps is the number of lights that may cast shadows at the same time. Each one owns
	// SlotsPerShadowMap consecutive layers of the scene's shadow map array.
	MaxShadowMaps uint32  `toml:"max_shadow_maps"`
	Resolution    uint32  `toml:"resolution"`
	Cascades      uint32  `toml:"cascades"`
	SplitLambda   float32 `toml:"split_lambda"`
	Bias          float32 `toml:"bias"`
	NormalBias    float32 `toml:"normal_bias"`
}

// Limits holds capacity limits of the per-scene GPU storage.
type Limits struct {
	MaxLights              uint32 `toml:"max_lights"`
	MaxInstances           uint32 `toml:"max_instances"`
	MaxSurfacesPerPipeline uint32 `toml:"max_surfaces_per_pipeline"`
}

// Config is the full renderer configuration.
type Config struct {
	RendererType       RendererType `toml:"renderer"`
	SwapchainFormat    rhi.Format   `toml:"swapchain_format"`
	ColorFormat        rhi.Format   `toml:"color_format"`
	DepthStencilFormat rhi.Format   `toml:"depth_stencil_format"`
	MSAASamples        uint32       `toml:"msaa_samples"`
	ClearColor         [4]float64   `toml:"clear_color"`
	Gamma              float32      `toml:"gamma"`
	Exposure           float32      `toml:"exposure"`
	ToneMapping        ToneMapping  `toml:"tone_mapping"`
	AntiAliasing       AntiAliasing `toml:"anti_aliasing"`
	FXAA               FXAA         `toml:"fxaa"`
	SMAA               SMAA         `toml:"smaa"`
	Bloom              Bloom        `toml:"bloom"`
	SSAO               SSAO         `toml:"ssao"`
	Shadows            Shadows      `toml:"shadows"`
	Limits             Limits       `toml:"limits"`
	FramesInFlight     uint32       `toml:"frames_in_flight"`

	// ComputeWorkers bounds the goroutines used for CPU preparation of instance tables. Zero picks NumCPU-1.
	ComputeWorkers int `toml:"compute_workers"`

	// ValidateShaders compiles WGSL with naga before handing it to the device.
	ValidateShaders bool `toml:"validate_shaders"`

	// ShaderDir, when set, overrides the embedded shaders with files from disk and watches them for changes.
	ShaderDir string `toml:"shader_dir"`
}

// SlotsPerShadowMap is the number of shadow map array layers reserved per shadow-casting light: enough for
// the six faces of a point light or up to six directional cascades.
const SlotsPerShadowMap = 6

// Default returns the configuration used when nothing is overridden.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		RendererType:       RendererDeferred,
		SwapchainFormat:    rhi.FormatBGRA8Unorm,
		ColorFormat:        rhi.FormatRGBA16Float,
		DepthStencilFormat: rhi.FormatDepth24PlusStencil8,
		MSAASamples:        1,
		ClearColor:         [4]float64{0.1, 0.1, 0.1, 1},
		Gamma:              2.2,
		Exposure:           1,
		ToneMapping:        ToneMappingACES,
		AntiAliasing:       AntiAliasingFXAA,
		FXAA:               FXAA{SpanMax: 8, ReduceMul: 1.0 / 8.0, ReduceMin: 1.0 / 128.0},
		SMAA:               SMAA{EdgeThreshold: 0.1, MaxSearchSteps: 16, MaxSearchStepsDiag: 8, CornerRounding: 25},
		Bloom:              Bloom{Enabled: true, KernelSize: 5, Strength: 0.04, Threshold: 1},
		SSAO:               SSAO{Enabled: true, KernelSize: 4, SampleCount: 16, Radius: 0.5, Bias: 0.025, Strength: 1},
		Shadows:            Shadows{MaxShadowMaps: 4, Resolution: 1024, Cascades: 4, SplitLambda: 0.75, Bias: 0.001, NormalBias: 3},
		Limits:             Limits{MaxLights: 1024, MaxInstances: 1 << 16, MaxSurfacesPerPipeline: 1 << 16},
		FramesInFlight:     2,
	}
}

// Validate checks every option for values the renderer cannot honor.
//
// Returns:
//   - error: an error marked ErrInvalidConfig describing the first problem found, or nil
func (c *Config) Validate() error {
	switch {
	case c.RendererType > RendererDeferred:
		return errors.Wrapf(ErrInvalidConfig, "unknown renderer type %d", c.RendererType)
	case c.FramesInFlight < 1 || c.FramesInFlight > 3:
		return errors.Wrapf(ErrInvalidConfig, "frames in flight must be 1..3, got %d", c.FramesInFlight)
	case c.MSAASamples != 1 && c.MSAASamples != 4:
		return errors.Wrapf(ErrInvalidConfig, "msaa samples must be 1 or 4, got %d", c.MSAASamples)
	case !c.DepthStencilFormat.HasStencil():
		return errors.Wrapf(ErrInvalidConfig, "depth format %s has no stencil aspect", c.DepthStencilFormat)
	case c.ColorFormat.IsDepth() || c.SwapchainFormat.IsDepth():
		return errors.Wrapf(ErrInvalidConfig, "color formats must not be depth formats")
	case c.Shadows.Cascades < 1 || c.Shadows.Cascades > SlotsPerShadowMap:
		return errors.Wrapf(ErrInvalidConfig, "shadow cascades must be 1..%d, got %d", SlotsPerShadowMap, c.Shadows.Cascades)
	case c.Shadows.SplitLambda < 0 || c.Shadows.SplitLambda > 1:
		return errors.Wrapf(ErrInvalidConfig, "shadow split lambda must be in [0, 1], got %g", c.Shadows.SplitLambda)
	case c.Shadows.Resolution == 0:
		return errors.Wrapf(ErrInvalidConfig, "shadow resolution must be positive")
	case c.Limits.MaxLights == 0 || c.Limits.MaxInstances == 0 || c.Limits.MaxSurfacesPerPipeline == 0:
		return errors.Wrapf(ErrInvalidConfig, "limits must be positive")
	case c.Gamma <= 0:
		return errors.Wrapf(ErrInvalidConfig, "gamma must be positive, got %g", c.Gamma)
	case c.Bloom.Enabled && c.Bloom.KernelSize == 0:
		return errors.Wrapf(ErrInvalidConfig, "bloom kernel size must be positive")
	case c.SSAO.Enabled && (c.SSAO.SampleCount == 0 || c.SSAO.SampleCount > 64):
		return errors.Wrapf(ErrInvalidConfig, "ssao sample count must be 1..64, got %d", c.SSAO.SampleCount)
	}
	return nil
}
