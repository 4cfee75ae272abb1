package material

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUMaterialSource is the canonical WGSL definition of the Material struct.
// Matches GPUMaterial layout exactly (48 bytes, std430 aligned).
//
//go:embed assets/material.wgsl
var GPUMaterialSource string

// GPUMaterialSize is the byte size of one GPUMaterial record.
const GPUMaterialSize = 48

const (
	// GPUMaterialFlagTransparent marks materials composed by the transparency pass.
	GPUMaterialFlagTransparent uint32 = 1 << iota

	// GPUMaterialFlagShader marks materials that bring their own shader.
	GPUMaterialFlagShader
)

// GPUMaterial is the GPU-aligned representation of a material, stored in the material storage buffer
// at the material's ID.
// Matches the WGSL Material struct layout exactly (see GPUMaterialSource).
// Size: 48 bytes (std430 aligned).
type GPUMaterial struct {
	BaseColor   [4]float32 // offset  0: albedo RGBA (16 bytes)
	Emissive    [3]float32 // offset 16: emitted radiance (12 bytes)
	Metallic    float32    // offset 28: metallic factor (4 bytes)
	Roughness   float32    // offset 32: roughness factor (4 bytes)
	AlphaCutoff float32    // offset 36: alpha test threshold (4 bytes)
	Flags       uint32     // offset 40: GPUMaterialFlag bits (4 bytes)
	_           uint32     // offset 44: padding (4 bytes)
}

// Size returns the size of the GPUMaterial struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUMaterial) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMaterial struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (g *GPUMaterial) Marshal() []byte {
	buf := make([]byte, GPUMaterialSize)
	for i, v := range g.BaseColor {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	for i, v := range g.Emissive {
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Metallic))
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(g.Roughness))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(g.AlphaCutoff))
	binary.LittleEndian.PutUint32(buf[40:44], g.Flags)
	return buf
}
