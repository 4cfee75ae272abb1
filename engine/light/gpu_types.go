package light

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPULightSource is the canonical WGSL definition of the LightHeader and Light structs.
// Matches GPULightHeader (16 bytes) and GPULight (64 bytes) exactly.
//
//go:embed assets/light.wgsl
var GPULightSource string

// GPUShadowDataSource is the canonical WGSL definition of the ShadowData struct.
// Matches GPUShadowData layout exactly (432 bytes).
//
//go:embed assets/shadow_data.wgsl
var GPUShadowDataSource string

const (
	// GPULightHeaderSize is the byte size of the header at the start of the light buffer.
	GPULightHeaderSize = 16

	// GPULightSize is the byte size of one packed light.
	GPULightSize = 64

	// GPUShadowDataSize is the byte size of one packed shadow map description.
	GPUShadowDataSize = 432

	// NoShadow is the GPULight.ShadowIndex of lights without a shadow map.
	NoShadow int32 = -1
)

// GPULight is the GPU-aligned representation of a single light source.
// Matches the WGSL Light struct layout exactly (see GPULightSource).
// Size: 64 bytes (std430 / WGSL aligned).
type GPULight struct {
	Position    [3]float32 // offset  0: world-space position (point/spot) or unused (directional)
	LightType   uint32     // offset 12: 0 = directional, 1 = point, 2 = spot
	Color       [3]float32 // offset 16: RGB color
	Intensity   float32    // offset 28: scalar multiplier, zero for disabled lights
	Direction   [3]float32 // offset 32: normalized direction (directional/spot) or unused (point)
	LightRange  float32    // offset 44: attenuation cutoff distance
	InnerCone   float32    // offset 48: cos(inner half-angle) for spot
	OuterCone   float32    // offset 52: cos(outer half-angle) for spot
	ShadowIndex int32      // offset 56: shadow map index (slot / 6) or NoShadow
	_pad        uint32     // offset 60: padding to 64-byte alignment
}

// Size returns the size of the GPULight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPULight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, GPULightSize)
	g.put(buf)
	return buf
}

func (g *GPULight) put(buf []byte) {
	p := packer{buf: buf}
	p.f32(g.Position[:]...)
	p.u32(g.LightType)
	p.f32(g.Color[:]...)
	p.f32(g.Intensity)
	p.f32(g.Direction[:]...)
	p.f32(g.LightRange, g.InnerCone, g.OuterCone)
	p.u32(uint32(g.ShadowIndex), 0)
}

// GPULightHeader is the header at the start of the light storage buffer.
// Size: 16 bytes (vec3 + u32).
type GPULightHeader struct {
	AmbientColor [3]float32 // offset 0: scene ambient RGB
	LightCount   uint32     // offset 12: number of lights following the header
}

// Marshal serializes the GPULightHeader struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (h *GPULightHeader) Marshal() []byte {
	buf := make([]byte, GPULightHeaderSize)
	p := packer{buf: buf}
	p.f32(h.AmbientColor[:]...)
	p.u32(h.LightCount)
	return buf
}

// GPUShadowData is the GPU-aligned description of one shadow map: one light-space matrix per
// face (cascade or cube face), the cascade split distances and the sampling biases.
// Matches the WGSL ShadowData struct layout exactly (see GPUShadowDataSource).
//
// Layout:
//
//	array<mat4x4<f32>, 6> view_proj   (384 bytes, offset 0)
//	array<vec4<f32>, 2>   splits      ( 32 bytes, offset 384)
//	f32                   bias        (  4 bytes, offset 416)
//	f32                   normal_bias (  4 bytes, offset 420)
//	f32                   texel_size  (  4 bytes, offset 424)
//	u32                   face_count  (  4 bytes, offset 428)
type GPUShadowData struct {
	ViewProj   [MaxFaces][16]float32
	Splits     [8]float32
	Bias       float32
	NormalBias float32
	TexelSize  float32
	FaceCount  uint32
}

// Size returns the size of the GPUShadowData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (432)
func (s *GPUShadowData) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the GPUShadowData struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 432-byte buffer ready for GPU upload
func (s *GPUShadowData) Marshal() []byte {
	buf := make([]byte, GPUShadowDataSize)
	p := packer{buf: buf}
	for f := range s.ViewProj {
		p.f32(s.ViewProj[f][:]...)
	}
	p.f32(s.Splits[:]...)
	p.f32(s.Bias, s.NormalBias, s.TexelSize)
	p.u32(s.FaceCount)
	return buf
}

// ToGPULight converts a Light into its packed representation.
//
// Parameters:
//   - l: the Light to convert
//   - shadowIndex: the light's shadow map index, or NoShadow
//
// Returns:
//   - GPULight: the GPU-aligned representation
func ToGPULight(l Light, shadowIndex int32) GPULight {
	p := l.Params()
	if !p.Enabled {
		p.Intensity = 0
	}
	return GPULight{
		Position:    p.Position,
		LightType:   uint32(p.Type),
		Color:       p.Color,
		Intensity:   p.Intensity,
		Direction:   p.Direction,
		LightRange:  p.Range,
		InnerCone:   p.InnerCone,
		OuterCone:   p.OuterCone,
		ShadowIndex: shadowIndex,
	}
}

// MarshalLightBuffer packs a light buffer: the header followed by every light in order.
//
// Parameters:
//   - ambient: the scene ambient color as RGB
//   - lights: the packed lights
//
// Returns:
//   - []byte: the marshaled buffer ready for GPU upload
func MarshalLightBuffer(ambient [3]float32, lights []GPULight) []byte {
	buf := make([]byte, GPULightHeaderSize+len(lights)*GPULightSize)
	header := GPULightHeader{AmbientColor: ambient, LightCount: uint32(len(lights))}
	copy(buf, header.Marshal())
	for i := range lights {
		lights[i].put(buf[GPULightHeaderSize+i*GPULightSize:])
	}
	return buf
}

// packer writes consecutive little-endian words.
type packer struct {
	buf []byte
	off int
}

func (p *packer) f32(values ...float32) {
	for _, v := range values {
		binary.LittleEndian.PutUint32(p.buf[p.off:], math.Float32bits(v))
		p.off += 4
	}
}

func (p *packer) u32(values ...uint32) {
	for _, v := range values {
		binary.LittleEndian.PutUint32(p.buf[p.off:], v)
		p.off += 4
	}
}
