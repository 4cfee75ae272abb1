package light

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascadeSplitsMonotonic(t *testing.T) {
	tests := []struct {
		name      string
		near, far float32
		n         int
		lambda    float32
	}{
		{name: "four cascades blended", near: 0.1, far: 100, n: 4, lambda: 0.75},
		{name: "uniform", near: 1, far: 50, n: 3, lambda: 0},
		{name: "logarithmic", near: 0.5, far: 1000, n: 6, lambda: 1},
		{name: "single cascade", near: 0.1, far: 20, n: 1, lambda: 0.5},
		{name: "lambda clamped", near: 0.1, far: 10, n: 4, lambda: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splits := CascadeSplits(tt.near, tt.far, tt.n, tt.lambda)
			require.Len(t, splits, tt.n)
			prev := tt.near
			for i, s := range splits {
				assert.Greater(t, s, prev, "split %d", i)
				prev = s
			}
			assert.Equal(t, tt.far, splits[len(splits)-1])
		})
	}
	assert.Nil(t, CascadeSplits(0.1, 10, 0, 0.5))
}

func TestCascadeSplitsDegenerateNear(t *testing.T) {
	for _, near := range []float32{0, -1} {
		splits := CascadeSplits(near, 100, 4, 0.75)
		require.Len(t, splits, 4)
		prev := near
		for i, s := range splits {
			assert.False(t, math.IsNaN(float64(s)) || math.IsInf(float64(s), 0), "near %g split %d", near, i)
			assert.Greater(t, s, prev, "near %g split %d", near, i)
			prev = s
		}
		assert.Equal(t, float32(100), splits[3])
	}
}

func TestCascadeSplitsUniform(t *testing.T) {
	splits := CascadeSplits(0, 40, 4, 0)
	assert.InDeltaSlice(t, []float32{10, 20, 30, 40}, splits, 1e-4)
}

func testView() ViewParams {
	return ViewParams{
		View:   mgl32.LookAtV(mgl32.Vec3{0, 2, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}),
		FovY:   mgl32.DegToRad(60),
		Aspect: 16.0 / 9.0,
		Near:   0.1,
		Far:    60,
	}
}

func TestDirectionalCascadeContainsSlice(t *testing.T) {
	view := testView()
	dir := mgl32.Vec3{-0.3, -1, -0.2}.Normalize()
	const res = 1024
	splits := CascadeSplits(view.Near, view.Far, 4, 0.75)
	prev := view.Near
	for i, s := range splits {
		vp := DirectionalCascade(dir, view, prev, s, res)
		for _, c := range sliceCorners(view, prev, s) {
			p := vp.Mul4x1(c.Vec4(1))
			limit := float32(1 + 2.0/res)
			assert.LessOrEqual(t, float32(math.Abs(float64(p.X()))), limit, "cascade %d", i)
			assert.LessOrEqual(t, float32(math.Abs(float64(p.Y()))), limit, "cascade %d", i)
			assert.True(t, p.Z() >= 0 && p.Z() <= 1, "cascade %d depth %f", i, p.Z())
		}
		prev = s
	}
}

func TestDirectionalCascadeTexelSnapped(t *testing.T) {
	view := testView()
	const res = 2048
	for _, dx := range []float32{0, 0.013, 0.37, 1.9} {
		view.View = mgl32.LookAtV(mgl32.Vec3{dx, 2, 5}, mgl32.Vec3{dx, 0, 0}, mgl32.Vec3{0, 1, 0})
		vp := DirectionalCascade(mgl32.Vec3{0.2, -1, 0.1}, view, 0.1, 10, res)
		origin := vp.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
		x := float64(origin.X()) * res / 2
		y := float64(origin.Y()) * res / 2
		assert.InDelta(t, math.Round(x), x, 0.01)
		assert.InDelta(t, math.Round(y), y, 0.01)
	}
}

func TestPointFacesCoverCube(t *testing.T) {
	pos := mgl32.Vec3{3, 1, -2}
	faces := PointFaces(pos, 25)
	for i, f := range cubeFaces {
		p := faces[i].Mul4x1(pos.Add(f.dir.Mul(5)).Vec4(1))
		ndc := p.Vec3().Mul(1 / p.W())
		assert.InDelta(t, 0, ndc.X(), 1e-4, "face %d", i)
		assert.InDelta(t, 0, ndc.Y(), 1e-4, "face %d", i)
		assert.True(t, ndc.Z() > 0 && ndc.Z() < 1, "face %d", i)

		// a point 45° off axis lands on the face border
		side := f.up.Mul(5)
		edge := faces[i].Mul4x1(pos.Add(f.dir.Mul(5)).Add(side).Vec4(1))
		assert.InDelta(t, 1, math.Abs(float64(edge.Y()/edge.W())), 1e-4, "face %d", i)
	}
}

func TestSpotProjectionUsesOuterCone(t *testing.T) {
	l := NewLight(LightTypeSpot, WithPosition(0, 5, 0), WithDirection(0, -1, 0), WithSpotCone(20, 30), WithRange(15))
	vp := SpotProjection(l.Position(), l.Direction(), l.OuterConeAngle(), l.Range())

	// a point on the outer cone sits on the frustum edge
	tan := float32(math.Tan(float64(mgl32.DegToRad(30))))
	p := vp.Mul4x1(mgl32.Vec4{tan * 4, 1, 0, 1})
	ndc := p.Vec3().Mul(1 / p.W())
	edge := max(math.Abs(float64(ndc.X())), math.Abs(float64(ndc.Y())))
	assert.InDelta(t, 1, edge, 1e-3)

	below := vp.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, below.X()/below.W(), 1e-4)
}

func TestProjectFaceCounts(t *testing.T) {
	settings := ShadowSettings{Resolution: 1024, Cascades: 4, SplitLambda: 0.75, Bias: 0.002, NormalBias: 0.02}
	tests := []struct {
		light Light
		faces int
	}{
		{light: NewLight(LightTypeDirectional), faces: 4},
		{light: NewLight(LightTypePoint, WithRange(20)), faces: 6},
		{light: NewLight(LightTypeSpot, WithRange(20)), faces: 1},
	}
	for _, tt := range tests {
		t.Run(tt.light.Type().String(), func(t *testing.T) {
			p := Project(tt.light, testView(), settings)
			assert.Equal(t, tt.faces, p.Faces)
			gpu := p.GPU(settings)
			assert.Equal(t, uint32(tt.faces), gpu.FaceCount)
			assert.Equal(t, float32(1.0/1024), gpu.TexelSize)
			assert.Len(t, gpu.Marshal(), GPUShadowDataSize)
			assert.Equal(t, GPUShadowDataSize, gpu.Size())
		})
	}
}

func TestMarshalLightBuffer(t *testing.T) {
	lights := []GPULight{
		ToGPULight(NewLight(LightTypePoint, WithIntensity(3)), 0),
		ToGPULight(NewLight(LightTypeSpot, WithEnabled(false)), NoShadow),
	}
	buf := MarshalLightBuffer([3]float32{0.1, 0.1, 0.1}, lights)
	require.Len(t, buf, GPULightHeaderSize+2*GPULightSize)
	assert.Equal(t, byte(2), buf[12])
	assert.Equal(t, float32(0), lights[1].Intensity)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, buf[GPULightHeaderSize+GPULightSize+56:GPULightHeaderSize+GPULightSize+60])
}
