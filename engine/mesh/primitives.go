package mesh

import "github.com/go-gl/mathgl/mgl32"

// faceColors tints the cube faces in the order +X, -X, +Y, -Y, +Z, -Z.
var faceColors = [6][4]float32{
	{1, 0, 0, 1},
	{0, 1, 0, 1},
	{0, 0, 1, 1},
	{1, 1, 0, 1},
	{1, 0, 1, 1},
	{0, 1, 1, 1},
}

// Cube returns a unit cube centered on the origin with one vertex color per face and counter-clockwise
// front faces. Callers may pass WithName, WithMaterial or WithSurfaces; WithGeometry replaces the cube.
//
// Parameters:
//   - options: options applied after the cube geometry
//
// Returns:
//   - Mesh: 24 vertices, 36 indices
func Cube(options ...MeshBuilderOption) Mesh {
	axes := [3]mgl32.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	vertices := make([]GPUVertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for face := range 6 {
		axis := face / 2
		normal := axes[axis]
		u, v := axes[(axis+1)%3], axes[(axis+2)%3]
		if face%2 == 1 {
			// mirrored faces swap the tangents to keep u × v pointing outwards
			normal, u, v = normal.Mul(-1), v, u
		}

		base := uint32(len(vertices))
		for _, c := range corners {
			p := normal.Add(u.Mul(c[0])).Add(v.Mul(c[1])).Mul(0.5)
			vertices = append(vertices, GPUVertex{
				Position: p,
				Normal:   normal,
				TexCoord: [2]float32{(c[0] + 1) / 2, (1 - c[1]) / 2},
				Color:    faceColors[face],
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return NewMesh(append([]MeshBuilderOption{WithName("cube"), WithGeometry(vertices, indices)}, options...)...)
}

// Quad returns a unit quad on the XZ plane facing +Y.
func Quad(options ...MeshBuilderOption) Mesh {
	up := [3]float32{0, 1, 0}
	white := [4]float32{1, 1, 1, 1}
	vertices := []GPUVertex{
		{Position: [3]float32{-0.5, 0, -0.5}, Normal: up, TexCoord: [2]float32{0, 0}, Color: white},
		{Position: [3]float32{-0.5, 0, 0.5}, Normal: up, TexCoord: [2]float32{0, 1}, Color: white},
		{Position: [3]float32{0.5, 0, 0.5}, Normal: up, TexCoord: [2]float32{1, 1}, Color: white},
		{Position: [3]float32{0.5, 0, -0.5}, Normal: up, TexCoord: [2]float32{1, 0}, Color: white},
	}
	return NewMesh(append([]MeshBuilderOption{WithName("quad"), WithGeometry(vertices, []uint32{0, 1, 2, 0, 2, 3})}, options...)...)
}
