package light

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// LightBuilderOption configures a light's initial Params in NewLight.
type LightBuilderOption func(*Params)

// WithPosition sets the world-space position. Directional lights ignore it.
func WithPosition(x, y, z float32) LightBuilderOption {
	return func(p *Params) {
		p.Position = mgl32.Vec3{x, y, z}
	}
}

// WithDirection sets the direction the light travels in, normalized. Point lights ignore it.
//
// Parameters:
//   - x, y, z: the direction components; a zero vector leaves the light without a direction
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithDirection(x, y, z float32) LightBuilderOption {
	return func(p *Params) {
		p.Direction = normalize(mgl32.Vec3{x, y, z})
	}
}

// WithColor sets the linear RGB color.
func WithColor(r, g, b float32) LightBuilderOption {
	return func(p *Params) {
		p.Color = [3]float32{r, g, b}
	}
}

// WithIntensity scales the color.
func WithIntensity(intensity float32) LightBuilderOption {
	return func(p *Params) {
		p.Intensity = intensity
	}
}

// WithRange sets the attenuation distance of point and spot lights.
func WithRange(lightRange float32) LightBuilderOption {
	return func(p *Params) {
		p.Range = lightRange
	}
}

// WithSpotCone sets the spot cone. Lighting falls off smoothly between the inner and outer
// half-angles and is zero outside the outer one.
//
// Parameters:
//   - innerDeg: inner cone half-angle in degrees
//   - outerDeg: outer cone half-angle in degrees
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithSpotCone(innerDeg, outerDeg float32) LightBuilderOption {
	return func(p *Params) {
		p.InnerCone, p.OuterCone = cosDeg(innerDeg), cosDeg(outerDeg)
	}
}

func WithEnabled(enabled bool) LightBuilderOption {
	return func(p *Params) {
		p.Enabled = enabled
	}
}

// WithCastsShadows requests a shadow map. The scene allocates the shadow slot when the light is added.
func WithCastsShadows(castsShadows bool) LightBuilderOption {
	return func(p *Params) {
		p.CastsShadows = castsShadows
	}
}

func normalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() == 0 {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}

func cosDeg(deg float32) float32 {
	return float32(math.Cos(float64(deg) * math.Pi / 180.0))
}
