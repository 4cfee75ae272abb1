// Package mesh holds mesh descriptions and the registry that places their vertex and index data in
// shared GPU storage. Draw commands address a mesh surface through absolute first-index and
// vertex-offset values resolved by the registry.
package mesh

import (
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/go-gl/mathgl/mgl32"
)

// ID is the registry id of a mesh.
type ID uint32

// Sphere is a bounding sphere.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// Surface is a range of a mesh's index data drawn with one material.
//
// On a Mesh, FirstIndex and VertexOffset are relative to the mesh's own index and vertex data. On a
// Resident they are absolute positions inside the registry's shared buffers.
type Surface struct {
	Material     material.ID
	FirstIndex   uint32
	IndexCount   uint32
	VertexOffset int32
}

// mesh is the implementation of the Mesh interface.
type mesh struct {
	name     string
	vertices []GPUVertex
	indices  []uint32
	surfaces []Surface
	material material.ID
	bounds   *Sphere
}

// Mesh is CPU-side geometry split in surfaces, ready to be added to a Registry.
type Mesh interface {
	// Name retrieves the mesh identifier.
	//
	// Returns:
	//   - string: the name of the mesh
	Name() string

	// Vertices retrieves the vertex data.
	//
	// Returns:
	//   - []GPUVertex: the vertices
	Vertices() []GPUVertex

	// Indices retrieves the 32-bit index data.
	//
	// Returns:
	//   - []uint32: the indices, relative to the mesh's first vertex
	Indices() []uint32

	// Surfaces retrieves the surfaces with mesh-relative ranges.
	//
	// Returns:
	//   - []Surface: the surfaces
	Surfaces() []Surface

	// Bounds retrieves the model space bounding sphere, computed from the vertices unless overridden.
	//
	// Returns:
	//   - Sphere: the bounding sphere
	Bounds() Sphere
}

var _ Mesh = &mesh{}

// NewMesh creates a new Mesh configured with the provided options. A mesh without WithSurfaces gets
// a single surface covering all indices, drawn with the WithMaterial material.
//
// Parameters:
//   - options: variadic list of MeshBuilderOption functions to configure the mesh
//
// Returns:
//   - Mesh: the mesh
func NewMesh(options ...MeshBuilderOption) Mesh {
	m := &mesh{}
	for _, opt := range options {
		opt(m)
	}
	if m.surfaces == nil && len(m.indices) > 0 {
		m.surfaces = []Surface{{Material: m.material, IndexCount: uint32(len(m.indices))}}
	}
	return m
}

func (m *mesh) Name() string {
	return m.name
}

func (m *mesh) Vertices() []GPUVertex {
	return m.vertices
}

func (m *mesh) Indices() []uint32 {
	return m.indices
}

func (m *mesh) Surfaces() []Surface {
	return m.surfaces
}

func (m *mesh) Bounds() Sphere {
	if m.bounds != nil {
		return *m.bounds
	}
	return ComputeBounds(m.vertices)
}
