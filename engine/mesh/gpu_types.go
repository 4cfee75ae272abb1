package mesh

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUVertexSource is the canonical WGSL definition of the VertexInput struct for mesh pipelines.
// Matches GPUVertex layout exactly (64 bytes).
//
//go:embed assets/vertex.wgsl
var GPUVertexSource string

// GPUVertexSize is the byte size of one GPUVertex.
const GPUVertexSize = 64

// GPUVertex is the GPU-aligned representation of a single mesh vertex.
// Matches the WGSL VertexInput struct layout exactly (see GPUVertexSource).
// Size: 64 bytes (no padding required).
type GPUVertex struct {
	Position [3]float32 // offset  0: vertex position in model space (12 bytes)
	Normal   [3]float32 // offset 12: vertex normal for lighting (12 bytes)
	TexCoord [2]float32 // offset 24: UV texture coordinate (8 bytes)
	Color    [4]float32 // offset 32: per-vertex RGBA color (16 bytes)
	Tangent  [4]float32 // offset 48: tangent vector (xyz) + handedness (w) for normal mapping (16 bytes)
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, GPUVertexSize)
	g.put(buf)
	return buf
}

func (g *GPUVertex) put(buf []byte) {
	floats := [16]float32{
		g.Position[0], g.Position[1], g.Position[2],
		g.Normal[0], g.Normal[1], g.Normal[2],
		g.TexCoord[0], g.TexCoord[1],
		g.Color[0], g.Color[1], g.Color[2], g.Color[3],
		g.Tangent[0], g.Tangent[1], g.Tangent[2], g.Tangent[3],
	}
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
}

// MarshalVertices packs a vertex slice into one contiguous byte slice.
func MarshalVertices(vertices []GPUVertex) []byte {
	buf := make([]byte, len(vertices)*GPUVertexSize)
	for i := range vertices {
		vertices[i].put(buf[i*GPUVertexSize:])
	}
	return buf
}

// MarshalIndices packs 32-bit indices little endian.
func MarshalIndices(indices []uint32) []byte {
	buf := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

// VertexLayout is the vertex buffer layout every mesh pipeline uses.
//
// Returns:
//   - rhi.VertexLayout: slot 0 layout matching GPUVertex
func VertexLayout() rhi.VertexLayout {
	return rhi.VertexLayout{
		Stride: GPUVertexSize,
		Attributes: []rhi.VertexAttribute{
			{Location: 0, Format: rhi.VertexFloat32x3, Offset: 0},
			{Location: 1, Format: rhi.VertexFloat32x3, Offset: 12},
			{Location: 2, Format: rhi.VertexFloat32x2, Offset: 24},
			{Location: 3, Format: rhi.VertexFloat32x4, Offset: 32},
			{Location: 4, Format: rhi.VertexFloat32x4, Offset: 48},
		},
	}
}

// ComputeBounds calculates a bounding sphere centered on the vertices' axis aligned bounding box.
//
// Parameters:
//   - vertices: the vertex data to bound
//
// Returns:
//   - Sphere: the bounding sphere in model space
func ComputeBounds(vertices []GPUVertex) Sphere {
	if len(vertices) == 0 {
		return Sphere{}
	}
	lo := mgl32.Vec3(vertices[0].Position)
	hi := lo
	for _, v := range vertices[1:] {
		for k := range 3 {
			lo[k] = min(lo[k], v.Position[k])
			hi[k] = max(hi[k], v.Position[k])
		}
	}
	center := lo.Add(hi).Mul(0.5)
	var maxDistSq float32
	for _, v := range vertices {
		d := mgl32.Vec3(v.Position).Sub(center)
		maxDistSq = max(maxDistSq, d.Dot(d))
	}
	return Sphere{Center: center, Radius: float32(math.Sqrt(float64(maxDistSq)))}
}
