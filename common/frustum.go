package common

import "github.com/go-gl/mathgl/mgl32"

// Plane is the set of points p with Normal·p + Distance = 0. Points on the Normal side are inside.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// SignedDistance returns the distance of p to the plane, positive on the inside. Only meaningful for
// normalized planes.
func (p Plane) SignedDistance(point mgl32.Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

// Vec4 returns the plane as (normal, distance), the layout the culling shader reads.
func (p Plane) Vec4() mgl32.Vec4 {
	return p.Normal.Vec4(p.Distance)
}

func planeFrom(v mgl32.Vec4) Plane {
	p := Plane{Normal: v.Vec3(), Distance: v.W()}
	if l := p.Normal.Len(); l > 0 {
		p.Normal = p.Normal.Mul(1 / l)
		p.Distance /= l
	}
	return p
}

// Frustum holds the six inward-facing planes of a view volume.
type Frustum struct {
	Planes [6]Plane
}

// Plane indices in Frustum.Planes.
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// ExtractFrustum returns the normalized planes of a view-projection matrix with [0, 1] clip depth, as
// built by PerspectiveZO and OrthoZO. This is the Gribb/Hartmann extraction, except that zero-to-one
// depth makes the near plane row 2 on its own.
//
// Parameters:
//   - viewProj: projection * view
//
// Returns:
//   - Frustum: the world-space planes
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	return Frustum{Planes: [6]Plane{
		FrustumLeft:   planeFrom(r3.Add(r0)),
		FrustumRight:  planeFrom(r3.Sub(r0)),
		FrustumBottom: planeFrom(r3.Add(r1)),
		FrustumTop:    planeFrom(r3.Sub(r1)),
		FrustumNear:   planeFrom(r2),
		FrustumFar:    planeFrom(r3.Sub(r2)),
	}}
}

// SphereInside reports whether a sphere touches the frustum. It is conservative: spheres near a corner
// but outside may pass.
func (f *Frustum) SphereInside(center mgl32.Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(center) < -radius {
			return false
		}
	}
	return true
}
