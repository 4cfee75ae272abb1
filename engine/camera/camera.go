// Package camera provides the perspective camera the scene renders from.
package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// Lens holds the perspective settings of a camera. FovY is in radians.
type Lens struct {
	FovY   float32
	Aspect float32
	Near   float32
	Far    float32
}

// Projection returns the lens projection with WebGPU's [0, 1] clip depth.
func (l Lens) Projection() mgl32.Mat4 {
	return common.PerspectiveZO(l.FovY, l.Aspect, l.Near, l.Far)
}

// View is a consistent snapshot of a camera: its pose, its lens and the matrices derived from both.
type View struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3
	Lens     Lens

	View     mgl32.Mat4
	Proj     mgl32.Mat4
	ViewProj mgl32.Mat4
	InvProj  mgl32.Mat4
}

// derive recomputes the matrices from the pose and lens.
func (v *View) derive() {
	v.View = mgl32.LookAtV(v.Position, v.Target, v.Up)
	v.Proj = v.Lens.Projection()
	v.ViewProj = v.Proj.Mul4(v.View)
	v.InvProj = v.Proj.Inv()
}

// Frustum returns the six world-space culling planes of the view.
func (v View) Frustum() common.Frustum {
	return common.ExtractFrustum(v.ViewProj)
}

// Params returns the description directional shadow cascades are fitted to.
func (v View) Params() light.ViewParams {
	return light.ViewParams{
		View:   v.View,
		FovY:   v.Lens.FovY,
		Aspect: v.Lens.Aspect,
		Near:   v.Lens.Near,
		Far:    v.Lens.Far,
	}
}

// GPU packs the view into the camera block of the scene uniform.
func (v View) GPU() GPUCameraUniform {
	return GPUCameraUniform{
		View:     v.View,
		Proj:     v.Proj,
		ViewProj: v.ViewProj,
		InvProj:  v.InvProj,
		Position: v.Position,
		Near:     v.Lens.Near,
		Far:      v.Lens.Far,
		FovY:     v.Lens.FovY,
		Aspect:   v.Lens.Aspect,
	}
}

// Camera is a perspective camera safe for concurrent use. The tick goroutine moves it while the render
// goroutine reads it; every setter re-derives the matrices under the same lock, so readers never see a
// pose paired with another pose's matrices.
type Camera interface {
	// Snapshot returns the pose, lens and matrices as one consistent value.
	Snapshot() View

	Position() mgl32.Vec3

	// Aspect returns width / height.
	Aspect() float32

	ViewMatrix() mgl32.Mat4
	ProjectionMatrix() mgl32.Mat4
	ViewProjectionMatrix() mgl32.Mat4

	// InverseProjectionMatrix is used by the lighting and SSAO passes to rebuild view-space positions
	// from depth.
	InverseProjectionMatrix() mgl32.Mat4

	// Frustum returns the world-space culling planes.
	Frustum() common.Frustum

	// ViewParams returns the description directional shadow cascades are fitted to.
	ViewParams() light.ViewParams

	// GPU packs the camera into its uniform block.
	GPU() GPUCameraUniform

	// LookAt places the camera at position looking at target.
	//
	// Parameters:
	//   - position: the eye position
	//   - target: the point to look at
	LookAt(position, target mgl32.Vec3)

	SetUp(up mgl32.Vec3)

	// SetFov sets the vertical field of view in radians.
	SetFov(fov float32)

	// SetAspect sets width / height. The engine calls it when the window is resized.
	SetAspect(aspect float32)

	// SetClip sets the near and far plane distances.
	SetClip(near, far float32)

	// SetLens replaces every perspective setting at once.
	SetLens(lens Lens)
}

type cameraImpl struct {
	mu sync.RWMutex
	v  View
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera at (0, 0, 5) looking at the origin with a 45° field of view, aspect 1 and
// clip planes at 0.1 and 100.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{v: View{
		Position: mgl32.Vec3{0, 0, 5},
		Up:       mgl32.Vec3{0, 1, 0},
		Lens:     Lens{FovY: 45 * math.Pi / 180, Aspect: 1, Near: 0.1, Far: 100},
	}}
	for _, option := range options {
		option(&c.v)
	}
	c.v.derive()
	return c
}

func (c *cameraImpl) Snapshot() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

func (c *cameraImpl) Position() mgl32.Vec3                { return c.Snapshot().Position }
func (c *cameraImpl) Aspect() float32                     { return c.Snapshot().Lens.Aspect }
func (c *cameraImpl) ViewMatrix() mgl32.Mat4              { return c.Snapshot().View }
func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4        { return c.Snapshot().Proj }
func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4    { return c.Snapshot().ViewProj }
func (c *cameraImpl) InverseProjectionMatrix() mgl32.Mat4 { return c.Snapshot().InvProj }
func (c *cameraImpl) Frustum() common.Frustum             { return c.Snapshot().Frustum() }
func (c *cameraImpl) ViewParams() light.ViewParams        { return c.Snapshot().Params() }
func (c *cameraImpl) GPU() GPUCameraUniform               { return c.Snapshot().GPU() }

// mutate applies fn to the view and re-derives its matrices.
func (c *cameraImpl) mutate(fn func(v *View)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.v)
	c.v.derive()
}

func (c *cameraImpl) LookAt(position, target mgl32.Vec3) {
	c.mutate(func(v *View) { v.Position, v.Target = position, target })
}

func (c *cameraImpl) SetUp(up mgl32.Vec3) {
	c.mutate(func(v *View) { v.Up = up })
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mutate(func(v *View) { v.Lens.FovY = fov })
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mutate(func(v *View) { v.Lens.Aspect = aspect })
}

func (c *cameraImpl) SetClip(near, far float32) {
	c.mutate(func(v *View) { v.Lens.Near, v.Lens.Far = near, far })
}

func (c *cameraImpl) SetLens(lens Lens) {
	c.mutate(func(v *View) { v.Lens = lens })
}
