package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUCameraUniformSource is the canonical WGSL definition of the CameraUniform struct.
// Matches GPUCameraUniform layout exactly (288 bytes).
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniformSize is the byte size of GPUCameraUniform.
const GPUCameraUniformSize = 288

// GPUCameraUniform is the GPU-aligned representation of the camera block of the scene uniform.
// Matches the WGSL CameraUniform struct layout exactly (see GPUCameraUniformSource).
// Size: 288 bytes.
type GPUCameraUniform struct {
	View     [16]float32 // offset   0: view matrix (mat4x4<f32>)
	Proj     [16]float32 // offset  64: projection matrix with [0, 1] depth
	ViewProj [16]float32 // offset 128: combined view-projection matrix
	InvProj  [16]float32 // offset 192: inverse projection, used to rebuild view positions from depth
	Position [3]float32  // offset 256: world-space camera position (vec3<f32>)
	Near     float32     // offset 268: near clip distance
	Far      float32     // offset 272: far clip distance
	FovY     float32     // offset 276: vertical field of view in radians
	Aspect   float32     // offset 280: width / height
	_pad     float32     // offset 284: padding to 288 bytes
}

// Size returns the size of the GPUCameraUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (288)
func (g *GPUCameraUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCameraUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, GPUCameraUniformSize)
	for m, mat := range [4]*[16]float32{&g.View, &g.Proj, &g.ViewProj, &g.InvProj} {
		for i := range 16 {
			binary.LittleEndian.PutUint32(buf[m*64+i*4:], math.Float32bits(mat[i]))
		}
	}
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[256+i*4:], math.Float32bits(g.Position[i]))
	}
	binary.LittleEndian.PutUint32(buf[268:], math.Float32bits(g.Near))
	binary.LittleEndian.PutUint32(buf[272:], math.Float32bits(g.Far))
	binary.LittleEndian.PutUint32(buf[276:], math.Float32bits(g.FovY))
	binary.LittleEndian.PutUint32(buf[280:], math.Float32bits(g.Aspect))
	binary.LittleEndian.PutUint32(buf[284:], 0) // _pad
	return buf
}
