package light

import (
	"math"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxFaces is the number of shadow slots reserved per shadow-casting light: six cube faces for
// point lights, up to six cascades for directional lights, one frustum for spot lights.
const MaxFaces = 6

// ShadowNear is the near plane of point and spot shadow projections.
const ShadowNear float32 = 0.05

// ViewParams describes the camera frustum directional cascades are fitted to.
type ViewParams struct {
	View   mgl32.Mat4
	FovY   float32
	Aspect float32
	Near   float32
	Far    float32
}

// ShadowSettings are the scene-wide shadow parameters.
type ShadowSettings struct {
	Resolution  uint32
	Cascades    int
	SplitLambda float32
	Bias        float32
	NormalBias  float32
}

// Projection is the set of light-space view-projections of one shadow-casting light.
type Projection struct {
	// ViewProj holds one matrix per face; only the first Faces entries are meaningful.
	ViewProj [MaxFaces]mgl32.Mat4

	// Faces is the number of rendered faces: cascades, 6 or 1.
	Faces int

	// Splits holds the far distance of each directional cascade.
	Splits [MaxFaces]float32
}

// FaceCount returns how many shadow faces a light of type t renders.
//
// Parameters:
//   - t: the light type
//   - cascades: the configured directional cascade count
//
// Returns:
//   - int: the face count, at most MaxFaces
func FaceCount(t LightType, cascades int) int {
	switch t {
	case LightTypeDirectional:
		return common.Clamp(cascades, 1, MaxFaces)
	case LightTypePoint:
		return 6
	default:
		return 1
	}
}

// minLogNear is the smallest near distance fed to the logarithmic cascade split.
const minLogNear = 1e-3

// CascadeSplits computes the far distance of each cascade with the practical split scheme: a blend
// of the logarithmic split near*(far/near)^(i/n) and the uniform split near+(far-near)*(i/n).
//
// The result is strictly increasing when 0 < near < far, and the last split is exactly far. The
// logarithmic term clamps near to minLogNear, so a zero or negative near plane still yields finite splits.
//
// Parameters:
//   - near, far: the camera clip distances
//   - n: the number of cascades
//   - lambda: 1 for purely logarithmic splits, 0 for purely uniform ones
//
// Returns:
//   - []float32: n split distances
func CascadeSplits(near, far float32, n int, lambda float32) []float32 {
	if n <= 0 {
		return nil
	}
	lambda = common.Clamp(lambda, 0, 1)
	splits := make([]float32, n)
	logNear := math.Max(float64(near), minLogNear)
	ratio := math.Max(float64(far)/logNear, 1)
	for i := 1; i <= n; i++ {
		p := float64(i) / float64(n)
		split := float64(near) + float64(far-near)*p
		if lambda > 0 {
			logSplit := logNear * math.Pow(ratio, p)
			split = float64(lambda)*logSplit + (1-float64(lambda))*split
		}
		splits[i-1] = float32(split)
	}
	splits[n-1] = far
	return splits
}

// DirectionalCascade fits an orthographic light projection around the slice [sliceNear, sliceFar]
// of the camera frustum. The box is sized from the bounding sphere of the slice so its extent does
// not change as the camera rotates, and its origin is snapped to whole shadow-map texels so shadow
// edges do not shimmer when the camera moves.
//
// Parameters:
//   - dir: the light direction
//   - view: the camera frustum
//   - sliceNear, sliceFar: the depth range of the cascade
//   - resolution: shadow map size in texels
//
// Returns:
//   - mgl32.Mat4: the cascade view-projection
func DirectionalCascade(dir mgl32.Vec3, view ViewParams, sliceNear, sliceFar float32, resolution uint32) mgl32.Mat4 {
	corners := sliceCorners(view, sliceNear, sliceFar)
	var center mgl32.Vec3
	for _, c := range corners {
		center = center.Add(c)
	}
	center = center.Mul(1.0 / float32(len(corners)))

	var radius float32
	for _, c := range corners {
		radius = max(radius, c.Sub(center).Len())
	}
	radius = float32(math.Ceil(float64(radius)*16)) / 16

	dir = safeDirection(dir)
	eye := center.Sub(dir.Mul(2 * radius))
	lightView := mgl32.LookAtV(eye, center, upFor(dir))
	lightProj := common.OrthoZO(-radius, radius, -radius, radius, 0, 4*radius)

	// snap the world origin onto the texel grid
	half := float32(max(resolution, 1)) / 2
	origin := lightProj.Mul4(lightView).Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	ox, oy := origin.X()*half, origin.Y()*half
	lightProj[12] += (float32(math.Round(float64(ox))) - ox) / half
	lightProj[13] += (float32(math.Round(float64(oy))) - oy) / half

	return lightProj.Mul4(lightView)
}

// cubeFaces lists the look direction and up vector of each cube face in +X, -X, +Y, -Y, +Z, -Z order.
var cubeFaces = [6]struct{ dir, up mgl32.Vec3 }{
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}},
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, -1}},
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, -1, 0}},
}

// PointFaces builds the six 90° perspective view-projections of a point light's cube shadow map.
//
// Parameters:
//   - position: the light position
//   - far: the light range
//
// Returns:
//   - [6]mgl32.Mat4: one view-projection per cube face
func PointFaces(position mgl32.Vec3, far float32) [6]mgl32.Mat4 {
	proj := common.PerspectiveZO(math.Pi/2, 1, ShadowNear, max(far, ShadowNear*2))
	var out [6]mgl32.Mat4
	for i, f := range cubeFaces {
		out[i] = proj.Mul4(mgl32.LookAtV(position, position.Add(f.dir), f.up))
	}
	return out
}

// SpotProjection builds the perspective view-projection covering a spot light's outer cone.
//
// Parameters:
//   - position: the light position
//   - dir: the cone axis
//   - outerAngle: the outer cone half-angle in radians
//   - far: the light range
//
// Returns:
//   - mgl32.Mat4: the view-projection
func SpotProjection(position, dir mgl32.Vec3, outerAngle, far float32) mgl32.Mat4 {
	fov := common.Clamp(2*outerAngle, mgl32.DegToRad(1), mgl32.DegToRad(170))
	dir = safeDirection(dir)
	proj := common.PerspectiveZO(fov, 1, ShadowNear, max(far, ShadowNear*2))
	return proj.Mul4(mgl32.LookAtV(position, position.Add(dir), upFor(dir)))
}

// Project computes every shadow face of l.
//
// Parameters:
//   - l: the shadow-casting light
//   - view: the camera frustum, used by directional lights
//   - settings: the scene shadow settings
//
// Returns:
//   - Projection: the light-space matrices and cascade splits
func Project(l Light, view ViewParams, settings ShadowSettings) Projection {
	lp := l.Params()
	var p Projection
	p.Faces = FaceCount(lp.Type, settings.Cascades)
	switch lp.Type {
	case LightTypeDirectional:
		splits := CascadeSplits(view.Near, view.Far, p.Faces, settings.SplitLambda)
		prev := view.Near
		for i, s := range splits {
			p.ViewProj[i] = DirectionalCascade(lp.Direction, view, prev, s, settings.Resolution)
			p.Splits[i] = s
			prev = s
		}
	case LightTypePoint:
		p.ViewProj = PointFaces(lp.Position, lp.Range)
	case LightTypeSpot:
		p.ViewProj[0] = SpotProjection(lp.Position, lp.Direction, lp.OuterConeAngle(), lp.Range)
	}
	return p
}

// GPU packs the projection into a GPUShadowData record.
//
// Parameters:
//   - settings: the scene shadow settings providing biases and resolution
//
// Returns:
//   - GPUShadowData: the packed record
func (p Projection) GPU(settings ShadowSettings) GPUShadowData {
	d := GPUShadowData{
		Bias:       settings.Bias,
		NormalBias: settings.NormalBias,
		TexelSize:  1 / float32(max(settings.Resolution, 1)),
		FaceCount:  uint32(p.Faces),
	}
	for i := range p.Faces {
		d.ViewProj[i] = p.ViewProj[i]
		d.Splits[i] = p.Splits[i]
	}
	return d
}

func sliceCorners(view ViewParams, near, far float32) [8]mgl32.Vec3 {
	proj := common.PerspectiveZO(view.FovY, view.Aspect, near, far)
	inv := proj.Mul4(view.View).Inv()
	var out [8]mgl32.Vec3
	i := 0
	for _, x := range [2]float32{-1, 1} {
		for _, y := range [2]float32{-1, 1} {
			for _, z := range [2]float32{0, 1} {
				p := inv.Mul4x1(mgl32.Vec4{x, y, z, 1})
				out[i] = p.Vec3().Mul(1 / p.W())
				i++
			}
		}
	}
	return out
}

func safeDirection(dir mgl32.Vec3) mgl32.Vec3 {
	if dir.Len() == 0 {
		return mgl32.Vec3{0, -1, 0}
	}
	return dir.Normalize()
}

// upFor picks an up vector that is not parallel to dir.
func upFor(dir mgl32.Vec3) mgl32.Vec3 {
	if float32(math.Abs(float64(dir.Y()))) > 0.99 {
		return mgl32.Vec3{1, 0, 0}
	}
	return mgl32.Vec3{0, 1, 0}
}
