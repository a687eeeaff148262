package mesh

import "github.com/gogpu/sparsevolume/internal/linear"

// UnitCube returns the cube spanning [-1, 1] on every axis: 8 shared
// corners and 12 triangles wound clockwise seen from outside. Normals point
// along the corner diagonals.
func UnitCube() *Mesh {
	positions := make([]linear.Vec3, 8)
	for i := range positions {
		positions[i] = linear.Vec3{
			float32(i&1)*2 - 1,
			float32(i>>1&1)*2 - 1,
			float32(i>>2&1)*2 - 1,
		}
	}
	indices := []uint32{
		0, 2, 3, 0, 3, 1, // -z
		4, 5, 7, 4, 7, 6, // +z
		0, 4, 6, 0, 6, 2, // -x
		1, 3, 7, 1, 7, 5, // +x
		0, 1, 5, 0, 5, 4, // -y
		2, 6, 7, 2, 7, 3, // +y
	}
	return build(positions, computeNormals(positions, indices), indices)
}
