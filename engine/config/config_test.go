package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, RendererDeferred, c.RendererType)
	assert.Equal(t, uint32(2), c.FramesInFlight)
}

func TestNewAppliesOptions(t *testing.T) {
	c, err := New(
		WithRendererType(RendererForward),
		WithAntiAliasing(AntiAliasingSMAA),
		WithMaxShadowMaps(2),
		WithFramesInFlight(3),
	)
	require.NoError(t, err)
	assert.Equal(t, RendererForward, c.RendererType)
	assert.Equal(t, AntiAliasingSMAA, c.AntiAliasing)
	assert.Equal(t, uint32(2), c.Shadows.MaxShadowMaps)
	assert.Equal(t, uint32(3), c.FramesInFlight)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		opt  ConfigBuilderOption
	}{
		{"frames in flight", WithFramesInFlight(0)},
		{"msaa", WithMSAA(3)},
		{"depth without stencil", WithFormats(rhi.FormatBGRA8Unorm, rhi.FormatRGBA16Float, rhi.FormatDepth32Float)},
		{"depth color", WithFormats(rhi.FormatDepth32Float, rhi.FormatRGBA16Float, rhi.FormatDepth24PlusStencil8)},
		{"cascades", WithShadows(Shadows{Cascades: 7, Resolution: 1024, SplitLambda: 0.5})},
		{"lambda", WithShadows(Shadows{Cascades: 4, Resolution: 1024, SplitLambda: 2})},
		{"limits", WithLimits(Limits{})},
		{"renderer", WithRendererType(RendererType(9))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestParseTOML(t *testing.T) {
	doc := `
renderer = "forward"
color_format = "rgba16float"
tone_mapping = "reinhard"
anti_aliasing = "smaa"
frames_in_flight = 3
clear_color = [0.0, 0.5, 1.0, 1.0]

[bloom]
enabled = false

[shadows]
max_shadow_maps = 2
resolution = 1024
cascades = 3
split_lambda = 0.5

[limits]
max_lights = 64
max_instances = 128
max_surfaces_per_pipeline = 256
`
	c, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, RendererForward, c.RendererType)
	assert.Equal(t, ToneMappingReinhard, c.ToneMapping)
	assert.Equal(t, AntiAliasingSMAA, c.AntiAliasing)
	assert.Equal(t, uint32(3), c.FramesInFlight)
	assert.Equal(t, [4]float64{0, 0.5, 1, 1}, c.ClearColor)
	assert.False(t, c.Bloom.Enabled)
	assert.Equal(t, uint32(2), c.Shadows.MaxShadowMaps)
	assert.Equal(t, uint32(64), c.Limits.MaxLights)

	// untouched keys keep their defaults
	assert.Equal(t, Default().SSAO, c.SSAO)
	assert.Equal(t, Default().DepthStencilFormat, c.DepthStencilFormat)
}

func TestParseRejectsUnknownValues(t *testing.T) {
	_, err := Parse([]byte(`renderer = "raytraced"`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = Parse([]byte(`no_such_key = 1`))
	require.Error(t, err)
}

func TestLoadRoundTrip(t *testing.T) {
	want, err := New(WithRendererType(RendererForward), WithAntiAliasing(AntiAliasingNone))
	require.NoError(t, err)
	data, err := Marshal(want)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "prism.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
