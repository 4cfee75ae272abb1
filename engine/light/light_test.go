package light

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestNewLightDefaults(t *testing.T) {
	p := NewLight(LightTypeSpot).Params()

	assert.Equal(t, LightTypeSpot, p.Type)
	assert.Equal(t, mgl32.Vec3{0, -1, 0}, p.Direction)
	assert.Equal(t, [3]float32{1, 1, 1}, p.Color)
	assert.Equal(t, float32(1), p.Intensity)
	assert.Equal(t, float32(10), p.Range)
	assert.True(t, p.Enabled)
	assert.False(t, p.CastsShadows)
	assert.Greater(t, p.InnerCone, p.OuterCone, "the inner cone is narrower")
}

func TestOptionsAndSetters(t *testing.T) {
	tests := []struct {
		name  string
		light func() Light
		want  func(t *testing.T, p Params)
	}{
		{
			name: "direction is normalized",
			light: func() Light {
				return NewLight(LightTypeDirectional, WithDirection(0, 0, -4))
			},
			want: func(t *testing.T, p Params) {
				assert.Equal(t, mgl32.Vec3{0, 0, -1}, p.Direction)
			},
		},
		{
			name: "zero direction stays zero",
			light: func() Light {
				l := NewLight(LightTypeSpot)
				l.SetDirection(mgl32.Vec3{})
				return l
			},
			want: func(t *testing.T, p Params) {
				assert.Equal(t, mgl32.Vec3{}, p.Direction)
			},
		},
		{
			name: "spot cone stored as cosines",
			light: func() Light {
				l := NewLight(LightTypeSpot)
				l.SetSpotCone(0, 60)
				return l
			},
			want: func(t *testing.T, p Params) {
				assert.InDelta(t, 1.0, p.InnerCone, 1e-6)
				assert.InDelta(t, 0.5, p.OuterCone, 1e-6)
				assert.InDelta(t, mgl32.DegToRad(60), p.OuterConeAngle(), 1e-5)
			},
		},
		{
			name: "setters",
			light: func() Light {
				l := NewLight(LightTypePoint, WithCastsShadows(true))
				l.SetPosition(mgl32.Vec3{1, 2, 3})
				l.SetColor(0.5, 0.25, 0)
				l.SetIntensity(4)
				l.SetRange(30)
				l.SetEnabled(false)
				l.SetCastsShadows(false)
				return l
			},
			want: func(t *testing.T, p Params) {
				assert.Equal(t, mgl32.Vec3{1, 2, 3}, p.Position)
				assert.Equal(t, [3]float32{0.5, 0.25, 0}, p.Color)
				assert.Equal(t, float32(4), p.Intensity)
				assert.Equal(t, float32(30), p.Range)
				assert.False(t, p.Enabled)
				assert.False(t, p.CastsShadows)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, tt.light().Params())
		})
	}
}

func TestUpdateKeepsType(t *testing.T) {
	l := NewLight(LightTypeSpot)
	l.Update(func(p *Params) {
		p.Type = LightTypePoint
		p.Position = mgl32.Vec3{0, 5, 0}
		p.Direction = mgl32.Vec3{2, 0, 0}
	})

	assert.Equal(t, LightTypeSpot, l.Type())
	assert.Equal(t, mgl32.Vec3{0, 5, 0}, l.Position())
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, l.Direction())
}

func TestParamsConsistentUnderConcurrentUpdates(t *testing.T) {
	l := NewLight(LightTypePoint, WithRange(0))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			v := float32(i)
			l.Update(func(p *Params) {
				p.Position = mgl32.Vec3{v, v, v}
				p.Range = v
			})
		}
	}()
	for i := 0; i < 1000; i++ {
		p := l.Params()
		assert.Equal(t, p.Position.X(), p.Range)
	}
	wg.Wait()
}
