package scene

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/prism/engine/camera"
)

// GPUSceneUniformSource is the canonical WGSL definition of the SceneUniform struct. The renderer
// registers it with the shader cache as the "scene" include.
//
//go:embed assets/scene_uniform.wgsl
var GPUSceneUniformSource string

// GPUSceneUniformSize is the byte size of GPUSceneUniform.
const GPUSceneUniformSize = 384

// Scene uniform flags.
const (
	FlagShadows uint32 = 1 << iota
	FlagSSAO
)

// GPUSceneUniform is the per-frame uniform bound at set 0 binding 0 of every geometry and lighting shader.
// Matches the WGSL SceneUniform struct layout exactly (see GPUSceneUniformSource).
//
// Layout:
//
//	CameraUniform camera       (288 bytes, offset 0)
//	mat4x4<f32>   inv_view     ( 64 bytes, offset 288)
//	vec3<f32>     ambient      ( 12 bytes, offset 352)
//	u32           light_count  (  4 bytes, offset 364)
//	u32           shadow_count (  4 bytes, offset 368)
//	u32           flags        (  4 bytes, offset 372)
//	f32           exposure     (  4 bytes, offset 376)
//	f32           time         (  4 bytes, offset 380)
type GPUSceneUniform struct {
	Camera      camera.GPUCameraUniform
	InvView     [16]float32
	Ambient     [3]float32
	LightCount  uint32
	ShadowCount uint32
	Flags       uint32
	Exposure    float32
	Time        float32
}

// Marshal serializes the GPUSceneUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 384-byte buffer ready for GPU upload
func (u *GPUSceneUniform) Marshal() []byte {
	buf := make([]byte, GPUSceneUniformSize)
	copy(buf, u.Camera.Marshal())
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[288+i*4:], math.Float32bits(u.InvView[i]))
	}
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[352+i*4:], math.Float32bits(u.Ambient[i]))
	}
	binary.LittleEndian.PutUint32(buf[364:], u.LightCount)
	binary.LittleEndian.PutUint32(buf[368:], u.ShadowCount)
	binary.LittleEndian.PutUint32(buf[372:], u.Flags)
	binary.LittleEndian.PutUint32(buf[376:], math.Float32bits(u.Exposure))
	binary.LittleEndian.PutUint32(buf[380:], math.Float32bits(u.Time))
	return buf
}
