// Package geometry turns parsed toolpath moves into renderable
// triangle meshes.
package geometry

import (
	"github.com/pellcorp/helixscreen/pkg/math"
)

// TubeVertex is one vertex of an extrusion tube.
type TubeVertex struct {
	Position math.Vec3
	Normal   math.Vec3
	Color    uint32 // ARGB
	Layer    int32
}

// TriangleMesh is an indexed triangle list. Indices come in groups of
// three and reference Vertices.
type TriangleMesh struct {
	Vertices []TubeVertex
	Indices  []uint32
	Bounds   math.Box3
}

// TriangleCount returns the number of triangles in the mesh.
func (m *TriangleMesh) TriangleCount() int { return len(m.Indices) / 3 }

// VertexCount returns the number of vertices in the mesh.
func (m *TriangleMesh) VertexCount() int { return len(m.Vertices) }

// Append merges other into m, offsetting indices.
func (m *TriangleMesh) Append(other *TriangleMesh) {
	base := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, other.Vertices...)
	for _, idx := range other.Indices {
		m.Indices = append(m.Indices, base+idx)
	}
	for _, v := range other.Vertices {
		m.Bounds.Expand(v.Position)
	}
}
