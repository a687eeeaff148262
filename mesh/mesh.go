package mesh

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"

	"github.com/gogpu/sparsevolume/internal/linear"
)

// VertexStride is the byte size of one interleaved vertex: float3 position
// then float3 normal.
const VertexStride = 24

// Sphere bounds a mesh.
type Sphere struct {
	Center linear.Vec3
	Radius float32
}

// Mesh is triangle geometry ready for upload.
type Mesh struct {
	// Vertices holds NumVertices interleaved position+normal vertices,
	// little-endian float32.
	Vertices []byte

	// Indices holds three entries per triangle.
	Indices []uint32

	// Bound is centered on the axis-aligned box of the positions.
	Bound Sphere
}

// NumVertices returns the vertex count.
func (m *Mesh) NumVertices() int { return len(m.Vertices) / VertexStride }

// NumIndices returns the index count.
func (m *Mesh) NumIndices() int { return len(m.Indices) }

// VertexStride returns the byte size of one vertex.
func (m *Mesh) VertexStride() uint32 { return VertexStride }

// IndexBytes returns the indices as little-endian uint32.
func (m *Mesh) IndexBytes() []byte {
	b := make([]byte, 0, 4*len(m.Indices))
	for _, i := range m.Indices {
		b = binary.LittleEndian.AppendUint32(b, i)
	}
	return b
}

// Position returns the position of vertex i.
func (m *Mesh) Position(i int) linear.Vec3 { return m.vec3(i*VertexStride) }

// Normal returns the normal of vertex i.
func (m *Mesh) Normal(i int) linear.Vec3 { return m.vec3(i*VertexStride + 12) }

func (m *Mesh) vec3(off int) linear.Vec3 {
	var v linear.Vec3
	for c := range 3 {
		v[c] = math.Float32frombits(binary.LittleEndian.Uint32(m.Vertices[off+4*c:]))
	}
	return v
}

// build packs positions and normals and computes the bound.
func build(positions, normals []linear.Vec3, indices []uint32) *Mesh {
	m := &Mesh{
		Vertices: make([]byte, 0, VertexStride*len(positions)),
		Indices:  indices,
	}
	for i, p := range positions {
		for _, f := range p {
			m.Vertices = binary.LittleEndian.AppendUint32(m.Vertices, math.Float32bits(f))
		}
		for _, f := range normals[i] {
			m.Vertices = binary.LittleEndian.AppendUint32(m.Vertices, math.Float32bits(f))
		}
	}
	m.Bound = boundingSphere(positions)
	return m
}

// boundingSphere centers on the box of points and reaches the farthest one.
func boundingSphere(points []linear.Vec3) Sphere {
	if len(points) == 0 {
		return Sphere{}
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		for c := range 3 {
			lo[c] = math32.Min(lo[c], p[c])
			hi[c] = math32.Max(hi[c], p[c])
		}
	}
	center := lo.Add(hi).Mul(0.5)
	var r2 float32
	for _, p := range points {
		d := p.Sub(center)
		r2 = math32.Max(r2, d.Dot(d))
	}
	return Sphere{Center: center, Radius: math32.Sqrt(r2)}
}

// computeNormals sets every normal to the area-weighted sum of the
// adjacent face normals.
func computeNormals(positions []linear.Vec3, indices []uint32) []linear.Vec3 {
	normals := make([]linear.Vec3, len(positions))
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := positions[indices[t]], positions[indices[t+1]], positions[indices[t+2]]
		// Unnormalized cross product: length is twice the area.
		n := b.Sub(a).Cross(c.Sub(a))
		for _, i := range indices[t : t+3] {
			normals[i] = normals[i].Add(n)
		}
	}
	for i, n := range normals {
		if l := n.Len(); l > 0 {
			normals[i] = n.Mul(1 / l)
		}
	}
	return normals
}
