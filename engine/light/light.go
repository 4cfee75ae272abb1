// Package light describes scene lights, packs them for the GPU and computes the light-space
// projections used by shadow maps (directional cascades, point cube faces, spot frusta).
package light

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeDirectional represents a light with no position, only direction.
	// Its shadow map is split into cascades along the camera frustum.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a position.
	// Its shadow map is a cube of six 90° perspective faces.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone from a position along a direction.
	// Its shadow map is a single perspective frustum covering the outer cone.
	LightTypeSpot
)

func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	}
	return "unknown"
}

// Params is a consistent copy of every light property. Cone angles are stored as cosines of the
// half-angles, the form the lighting shaders compare against.
type Params struct {
	Type         LightType
	Position     mgl32.Vec3
	Direction    mgl32.Vec3
	Color        [3]float32
	Intensity    float32
	Range        float32
	InnerCone    float32
	OuterCone    float32
	Enabled      bool
	CastsShadows bool
}

// OuterConeAngle returns the outer cone half-angle in radians.
func (p Params) OuterConeAngle() float32 {
	return float32(math.Acos(float64(p.OuterCone)))
}

// Light is a light source registered with a scene.
//
// Lights may be mutated from any goroutine while the render thread packs them: every accessor is
// synchronized, and Params returns all properties from one lock so a frame never packs a half-applied
// change. Properties that do not apply to the light's type are kept but ignored.
type Light interface {
	// Params returns a snapshot of every property.
	Params() Params

	// Update applies fn to the properties under a single lock. Use it for changes that must land in the
	// same frame, such as moving a spot light and re-aiming it.
	//
	// Parameters:
	//   - fn: mutates the properties; the type is restored afterwards and the direction renormalized
	Update(fn func(p *Params))

	Type() LightType
	Position() mgl32.Vec3

	// Direction returns the normalized direction the light travels in.
	Direction() mgl32.Vec3
	Color() [3]float32
	Intensity() float32

	// Range returns the attenuation distance of point and spot lights, which is also the far plane of
	// their shadow projections.
	Range() float32

	// InnerCone returns cos(inner half-angle) of a spot light.
	InnerCone() float32

	// OuterCone returns cos(outer half-angle) of a spot light.
	OuterCone() float32

	// OuterConeAngle returns the outer half-angle of a spot light in radians.
	OuterConeAngle() float32

	// Enabled reports whether the light contributes to lighting. A disabled light keeps its shadow slot
	// and is packed with zero intensity.
	Enabled() bool

	// CastsShadows reports whether the light wants a shadow map.
	CastsShadows() bool

	SetPosition(p mgl32.Vec3)

	// SetDirection sets the direction and normalizes it.
	SetDirection(d mgl32.Vec3)
	SetColor(r, g, b float32)
	SetIntensity(intensity float32)
	SetRange(lightRange float32)

	// SetSpotCone sets the cone half-angles in degrees.
	//
	// Parameters:
	//   - innerDeg: inner cone half-angle in degrees
	//   - outerDeg: outer cone half-angle in degrees
	SetSpotCone(innerDeg, outerDeg float32)
	SetEnabled(enabled bool)

	// SetCastsShadows toggles the shadow map request. The scene allocates or frees the shadow slot
	// during its next update.
	SetCastsShadows(castsShadows bool)
}

type lightImpl struct {
	mu sync.RWMutex
	p  Params
}

var _ Light = &lightImpl{}

// NewLight creates a light of the given type: white, unit intensity, range 10, pointing down, with a
// 25°/35° spot cone.
//
// Parameters:
//   - lightType: the kind of light to create (directional, point, or spot)
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{p: Params{
		Type:      lightType,
		Direction: mgl32.Vec3{0, -1, 0},
		Color:     [3]float32{1, 1, 1},
		Intensity: 1,
		Range:     10,
		InnerCone: cosDeg(25),
		OuterCone: cosDeg(35),
		Enabled:   true,
	}}
	for _, opt := range opts {
		opt(&l.p)
	}
	return l
}

func (l *lightImpl) Params() Params {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.p
}

func (l *lightImpl) Update(fn func(p *Params)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.p.Type
	fn(&l.p)
	l.p.Type = t
	l.p.Direction = normalize(l.p.Direction)
}

func (l *lightImpl) Type() LightType         { return l.Params().Type }
func (l *lightImpl) Position() mgl32.Vec3    { return l.Params().Position }
func (l *lightImpl) Direction() mgl32.Vec3   { return l.Params().Direction }
func (l *lightImpl) Color() [3]float32       { return l.Params().Color }
func (l *lightImpl) Intensity() float32      { return l.Params().Intensity }
func (l *lightImpl) Range() float32          { return l.Params().Range }
func (l *lightImpl) InnerCone() float32      { return l.Params().InnerCone }
func (l *lightImpl) OuterCone() float32      { return l.Params().OuterCone }
func (l *lightImpl) OuterConeAngle() float32 { return l.Params().OuterConeAngle() }
func (l *lightImpl) Enabled() bool           { return l.Params().Enabled }
func (l *lightImpl) CastsShadows() bool      { return l.Params().CastsShadows }

func (l *lightImpl) SetPosition(p mgl32.Vec3) {
	l.Update(func(lp *Params) { lp.Position = p })
}

func (l *lightImpl) SetDirection(d mgl32.Vec3) {
	l.Update(func(lp *Params) { lp.Direction = d })
}

func (l *lightImpl) SetColor(r, g, b float32) {
	l.Update(func(lp *Params) { lp.Color = [3]float32{r, g, b} })
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.Update(func(lp *Params) { lp.Intensity = intensity })
}

func (l *lightImpl) SetRange(lightRange float32) {
	l.Update(func(lp *Params) { lp.Range = lightRange })
}

func (l *lightImpl) SetSpotCone(innerDeg, outerDeg float32) {
	l.Update(func(lp *Params) { lp.InnerCone, lp.OuterCone = cosDeg(innerDeg), cosDeg(outerDeg) })
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.Update(func(lp *Params) { lp.Enabled = enabled })
}

func (l *lightImpl) SetCastsShadows(castsShadows bool) {
	l.Update(func(lp *Params) { lp.CastsShadows = castsShadows })
}
