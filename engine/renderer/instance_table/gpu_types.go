package instance_table

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUInstanceSource is the canonical WGSL definition of the InstanceData, DrawCommand and MeshInstance
// structs. Matches InstanceData (16 bytes), DrawCommand (24 bytes) and GPUMeshInstance (80 bytes) exactly.
//
//go:embed assets/instance.wgsl
var GPUInstanceSource string

const (
	// InstanceDataSize is the byte size of one InstanceData record.
	InstanceDataSize = 16

	// DrawCommandSize is the byte size of one DrawCommand record, which is also the indirect stride.
	DrawCommandSize = 24

	// DrawArgsOffset is the offset of the indexed-indirect arguments inside a DrawCommand. The leading
	// InstanceIndex is only read by the culling shader.
	DrawArgsOffset = 4

	// GPUMeshInstanceSize is the byte size of one mesh-instance record.
	GPUMeshInstanceSize = 80
)

// InstanceData links one drawn surface to the global arrays the shaders index into.
// Matches the WGSL InstanceData struct layout exactly (see GPUInstanceSource).
type InstanceData struct {
	MeshInstance uint32 // offset  0: element index in the scene's mesh-instance arena
	Material     uint32 // offset  4: material id, the index into the material buffer
	Surface      uint32 // offset  8: surface index within the mesh
	Mesh         uint32 // offset 12: mesh id
}

// Size returns the size of the InstanceData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (d *InstanceData) Size() int {
	return int(unsafe.Sizeof(*d))
}

// Marshal serializes the record into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (d *InstanceData) Marshal() []byte {
	buf := make([]byte, InstanceDataSize)
	binary.LittleEndian.PutUint32(buf[0:4], d.MeshInstance)
	binary.LittleEndian.PutUint32(buf[4:8], d.Material)
	binary.LittleEndian.PutUint32(buf[8:12], d.Surface)
	binary.LittleEndian.PutUint32(buf[12:16], d.Mesh)
	return buf
}

// DrawCommand is one indexed-indirect draw plus the index of the InstanceData it draws.
// Matches the WGSL DrawCommand struct layout exactly (see GPUInstanceSource).
type DrawCommand struct {
	InstanceIndex uint32 // offset  0: index of the InstanceData record in the table
	IndexCount    uint32 // offset  4: start of the indexed-indirect arguments
	InstanceCount uint32 // offset  8
	FirstIndex    uint32 // offset 12
	VertexOffset  int32  // offset 16
	FirstInstance uint32 // offset 20: equal to InstanceIndex so the vertex stage can find its record
}

// Size returns the size of the DrawCommand struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (24)
func (c *DrawCommand) Size() int {
	return int(unsafe.Sizeof(*c))
}

// Marshal serializes the command into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 24-byte buffer ready for GPU upload
func (c *DrawCommand) Marshal() []byte {
	buf := make([]byte, DrawCommandSize)
	c.put(buf)
	return buf
}

func (c *DrawCommand) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], c.InstanceIndex)
	binary.LittleEndian.PutUint32(buf[4:8], c.IndexCount)
	binary.LittleEndian.PutUint32(buf[8:12], c.InstanceCount)
	binary.LittleEndian.PutUint32(buf[12:16], c.FirstIndex)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(c.VertexOffset))
	binary.LittleEndian.PutUint32(buf[20:24], c.FirstInstance)
}

// MarshalDrawCommands packs commands back to back.
//
// Parameters:
//   - commands: the commands to pack
//
// Returns:
//   - []byte: len(commands)*24 bytes
func MarshalDrawCommands(commands []DrawCommand) []byte {
	buf := make([]byte, len(commands)*DrawCommandSize)
	for i := range commands {
		commands[i].put(buf[i*DrawCommandSize:])
	}
	return buf
}

// UnmarshalDrawCommands decodes every whole DrawCommand in data.
func UnmarshalDrawCommands(data []byte) []DrawCommand {
	out := make([]DrawCommand, len(data)/DrawCommandSize)
	for i := range out {
		b := data[i*DrawCommandSize:]
		out[i] = DrawCommand{
			InstanceIndex: binary.LittleEndian.Uint32(b[0:4]),
			IndexCount:    binary.LittleEndian.Uint32(b[4:8]),
			InstanceCount: binary.LittleEndian.Uint32(b[8:12]),
			FirstIndex:    binary.LittleEndian.Uint32(b[12:16]),
			VertexOffset:  int32(binary.LittleEndian.Uint32(b[16:20])),
			FirstInstance: binary.LittleEndian.Uint32(b[20:24]),
		}
	}
	return out
}

// GPUMeshInstance is the per-instance record shared by every table: the world matrix and the world-space
// bounding sphere the culling shader tests.
// Matches the WGSL MeshInstance struct layout exactly (see GPUInstanceSource).
type GPUMeshInstance struct {
	World  [16]float32 // offset  0: column-major model-to-world matrix
	Center [3]float32  // offset 64: world-space bounding sphere center
	Radius float32     // offset 76: world-space bounding sphere radius
}

// Size returns the size of the GPUMeshInstance struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (80)
func (g *GPUMeshInstance) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the record into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload
func (g *GPUMeshInstance) Marshal() []byte {
	buf := make([]byte, GPUMeshInstanceSize)
	for i, v := range g.World {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	for i, v := range g.Center {
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[76:80], math.Float32bits(g.Radius))
	return buf
}
