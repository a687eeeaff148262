package mesh

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/sparsevolume/internal/linear"
)

const eps = 1e-5

func TestUnitCube(t *testing.T) {
	m := UnitCube()
	require.Equal(t, 8, m.NumVertices())
	require.Equal(t, 36, m.NumIndices())
	assert.Len(t, m.Vertices, 8*24)
	assert.Len(t, m.IndexBytes(), 12*3*4)

	assert.Equal(t, linear.Vec3{}, m.Bound.Center)
	assert.InDelta(t, math32.Sqrt(3), m.Bound.Radius, eps)

	for i := range m.NumVertices() {
		p, n := m.Position(i), m.Normal(i)
		assert.InDelta(t, 1, n.Len(), eps, "vertex %d normal length", i)
		assert.Greater(t, p.Dot(n), float32(0), "vertex %d normal points inward", i)
	}
}

func TestUnitCubeWindingFacesOutward(t *testing.T) {
	m := UnitCube()
	for tri := 0; tri < m.NumIndices(); tri += 3 {
		a, b, c := m.Position(int(m.Indices[tri])), m.Position(int(m.Indices[tri+1])), m.Position(int(m.Indices[tri+2]))
		n := b.Sub(a).Cross(c.Sub(a))
		center := a.Add(b).Add(c).Mul(1.0 / 3)
		assert.Greater(t, n.Dot(center), float32(0), "triangle %d", tri/3)
	}
}

func TestIndexBytesLittleEndian(t *testing.T) {
	m := &Mesh{Indices: []uint32{1, 0x01020304}}
	b := m.IndexBytes()
	require.Len(t, b, 8)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b))
	assert.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(b[4:]))
}

func TestDecodeQuadWithNormals(t *testing.T) {
	src := `# quad
v 0 0 0
v 2 0 0
v 2 2 0
v 0 2 0
vn 0 0 -1
vt 0 0
f 1//1 2//1 3//1 4//1
`
	m, err := Decode(strings.NewReader(src), Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, m.NumVertices())
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)
	for i := range 4 {
		assert.Equal(t, linear.Vec3{0, 0, -1}, m.Normal(i))
	}
	assert.InDelta(t, 1, m.Bound.Center[0], eps)
	assert.InDelta(t, math32.Sqrt(2), m.Bound.Radius, eps)
}

func TestDecodeNegativeIndicesAndTexcoords(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
f -3/1 -2/1 -1/1
`
	m, err := Decode(strings.NewReader(src), Options{})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
	assert.Equal(t, linear.Vec3{1, 0, 0}, m.Position(1))
}

func TestDecodeRecomputesMissingNormals(t *testing.T) {
	src := `v 0 0 0
v 0 1 0
v 1 0 0
f 1 2 3
`
	m, err := Decode(strings.NewReader(src), Options{})
	require.NoError(t, err)
	for i := range 3 {
		n := m.Normal(i)
		assert.InDelta(t, 0, n[0], eps)
		assert.InDelta(t, 0, n[1], eps)
		assert.InDelta(t, -1, n[2], eps)
	}
}

func TestDecodeSharesVerticesByPositionAndNormal(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
v 1 1 0
vn 0 0 -1
vn 0 0 1
f 1//1 3//1 2//1
f 2//1 3//1 4//1
f 1//2 2//2 3//2
`
	m, err := Decode(strings.NewReader(src), Options{})
	require.NoError(t, err)
	// 4 corners with the first normal, then 3 repeated with the second.
	assert.Equal(t, 7, m.NumVertices())
	assert.Equal(t, 9, m.NumIndices())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no faces", "v 0 0 0\n"},
		{"index zero", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n"},
		{"index past end", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n"},
		{"short vertex", "v 0 0\n"},
		{"bad float", "v 0 x 0\n"},
		{"two-corner face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src), Options{})
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.obj")
	require.NoError(t, os.WriteFile(path, []byte("v 0 0 0\nv 0 1 0\nv 1 0 0\nf 1 2 3\n"), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumVertices())

	_, err = Load(filepath.Join(t.TempDir(), "missing.obj"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRecomputeNormalsOption(t *testing.T) {
	src := "v 0 0 0\nv 0 1 0\nv 1 0 0\nvn 1 0 0\nf 1//1 2//1 3//1\n"
	m, err := Decode(strings.NewReader(src), Options{RecomputeNormals: true})
	require.NoError(t, err)
	assert.InDelta(t, -1, m.Normal(0)[2], eps)
}
