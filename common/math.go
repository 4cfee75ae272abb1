package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// PerspectiveZO builds a right-handed perspective projection that maps view-space depth into the
// [0, 1] clip range used by WebGPU, instead of the [-1, 1] range produced by mgl32.Perspective.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport width divided by height
//   - near: distance to the near clipping plane
//   - far: distance to the far clipping plane
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func PerspectiveZO(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (near - far)
	m[11] = -1.0
	m[14] = (near * far) / (near - far)
	return m
}

// OrthoZO builds a right-handed orthographic projection with [0, 1] clip depth.
//
// Parameters:
//   - left, right, bottom, top: the view-space extents of the box
//   - near, far: distances to the near and far planes
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func OrthoZO(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	m := mgl32.Ident4()
	m[0] = 2 / (right - left)
	m[5] = 2 / (top - bottom)
	m[10] = 1 / (near - far)
	m[12] = -(right + left) / (right - left)
	m[13] = -(top + bottom) / (top - bottom)
	m[14] = near / (near - far)
	return m
}

// ModelMatrix composes translation, XYZ euler rotation (radians) and scale into a world matrix.
//
// Parameters:
//   - position: world-space translation
//   - rotation: euler angles in radians applied in X, Y, Z order
//   - scale: per-axis scale
//
// Returns:
//   - mgl32.Mat4: T * R * S
func ModelMatrix(position, rotation, scale mgl32.Vec3) mgl32.Mat4 {
	r := mgl32.AnglesToQuat(rotation.X(), rotation.Y(), rotation.Z(), mgl32.XYZ).Mat4()
	t := mgl32.Translate3D(position.X(), position.Y(), position.Z())
	s := mgl32.Scale3D(scale.X(), scale.Y(), scale.Z())
	return t.Mul4(r).Mul4(s)
}

// TransformSphere moves a local bounding sphere into world space. The radius is scaled by the
// largest axis scale of the matrix so the result still encloses the transformed geometry.
//
// Parameters:
//   - world: the world matrix
//   - center: local-space sphere center
//   - radius: local-space sphere radius
//
// Returns:
//   - mgl32.Vec3: world-space center
//   - float32: world-space radius
func TransformSphere(world mgl32.Mat4, center mgl32.Vec3, radius float32) (mgl32.Vec3, float32) {
	c := world.Mul4x1(center.Vec4(1)).Vec3()
	sx := world.Col(0).Vec3().Len()
	sy := world.Col(1).Vec3().Len()
	sz := world.Col(2).Vec3().Len()
	return c, radius * max(sx, sy, sz)
}
