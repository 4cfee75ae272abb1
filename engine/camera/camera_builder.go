package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraBuilderOption configures the initial view in NewCamera.
type CameraBuilderOption func(*View)

// WithPosition sets the eye position.
func WithPosition(x, y, z float32) CameraBuilderOption {
	return func(v *View) {
		v.Position = mgl32.Vec3{x, y, z}
	}
}

// WithTarget sets the point the camera looks at.
func WithTarget(x, y, z float32) CameraBuilderOption {
	return func(v *View) {
		v.Target = mgl32.Vec3{x, y, z}
	}
}

func WithUp(x, y, z float32) CameraBuilderOption {
	return func(v *View) {
		v.Up = mgl32.Vec3{x, y, z}
	}
}

// WithFov sets the vertical field of view.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithFov(fov float32) CameraBuilderOption {
	return func(v *View) {
		v.Lens.FovY = fov
	}
}

// WithAspect sets width / height. The engine overrides it with the window's aspect.
func WithAspect(aspect float32) CameraBuilderOption {
	return func(v *View) {
		v.Lens.Aspect = aspect
	}
}

// WithClip sets the near and far plane distances. The far distance is also where the last directional
// shadow cascade ends.
//
// Parameters:
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithClip(near, far float32) CameraBuilderOption {
	return func(v *View) {
		v.Lens.Near, v.Lens.Far = near, far
	}
}
