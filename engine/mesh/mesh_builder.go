package mesh

import "github.com/Carmen-Shannon/prism/engine/renderer/material"

// MeshBuilderOption is a functional option for configuring a Mesh via NewMesh.
type MeshBuilderOption func(*mesh)

// WithName is an option builder that sets the name of the Mesh.
//
// Parameters:
//   - name: the mesh identifier
//
// Returns:
//   - MeshBuilderOption: a function that applies the name option to a mesh
func WithName(name string) MeshBuilderOption {
	return func(m *mesh) {
		m.name = name
	}
}

// WithGeometry is an option builder that sets the vertex and index data of the Mesh.
//
// Parameters:
//   - vertices: the vertex data
//   - indices: triangle list indices into vertices
//
// Returns:
//   - MeshBuilderOption: a function that applies the geometry option to a mesh
func WithGeometry(vertices []GPUVertex, indices []uint32) MeshBuilderOption {
	return func(m *mesh) {
		m.vertices = vertices
		m.indices = indices
	}
}

// WithSurfaces is an option builder that splits the index data into surfaces.
//
// Parameters:
//   - surfaces: surfaces with mesh-relative index ranges
//
// Returns:
//   - MeshBuilderOption: a function that applies the surfaces option to a mesh
func WithSurfaces(surfaces ...Surface) MeshBuilderOption {
	return func(m *mesh) {
		m.surfaces = surfaces
	}
}

// WithMaterial sets the material of the default surface covering all indices.
func WithMaterial(id material.ID) MeshBuilderOption {
	return func(m *mesh) {
		m.material = id
	}
}

// WithBounds is an option builder that manually sets the bounding sphere.
// Use this to override the value computed by ComputeBounds.
//
// Parameters:
//   - bounds: the model space bounding sphere
//
// Returns:
//   - MeshBuilderOption: a function that applies the bounds option to a mesh
func WithBounds(bounds Sphere) MeshBuilderOption {
	return func(m *mesh) {
		m.bounds = &bounds
	}
}
