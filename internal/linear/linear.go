// Package linear provides the left-handed float32 matrix math used by the
// renderer. Storage and arithmetic are delegated to mgl32; this package
// fixes the convention.
//
// Matrices follow the row-vector convention: a point transforms as v*M, and
// A.Mul(B) applies A first. Elements are stored row-major, (r, c) at index
// r*4+c, which is also the byte order they are uploaded in.
package linear

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 is a 3-component float32 vector.
type Vec3 = mgl32.Vec3

// Vec4 is a 4-component float32 vector.
type Vec4 = mgl32.Vec4

// Matrix is a 4x4 float32 matrix, row-major, row-vector convention.
//
// Reinterpreting its memory as a column-major mgl32.Mat4 yields the
// transpose, which is how the arithmetic below maps onto mgl32.
type Matrix [16]float32

// MatrixSize is the byte size of an uploaded Matrix.
const MatrixSize = 64

// Identity returns the identity matrix.
func Identity() Matrix { return Matrix(mgl32.Ident4()) }

// FromRows builds a matrix from four rows.
func FromRows(r0, r1, r2, r3 Vec4) Matrix {
	var m Matrix
	for i, r := range [4]Vec4{r0, r1, r2, r3} {
		copy(m[i*4:i*4+4], r[:])
	}
	return m
}

// At returns element (row, col).
func (m Matrix) At(row, col int) float32 { return m[row*4+col] }

// Row returns one row.
func (m Matrix) Row(row int) Vec4 {
	return Vec4{m[row*4], m[row*4+1], m[row*4+2], m[row*4+3]}
}

// Mul returns m*n: the transform that applies m, then n.
func (m Matrix) Mul(n Matrix) Matrix {
	// (m*n)^T = n^T * m^T, and mgl32 sees each operand transposed.
	return Matrix(mgl32.Mat4(n).Mul4(mgl32.Mat4(m)))
}

// Transpose returns the transpose of m.
func (m Matrix) Transpose() Matrix { return Matrix(mgl32.Mat4(m).Transpose()) }

// Inverse returns the inverse of m, or the zero matrix if m is singular.
func (m Matrix) Inverse() Matrix { return Matrix(mgl32.Mat4(m).Inv()) }

// Det returns the determinant of m.
func (m Matrix) Det() float32 { return mgl32.Mat4(m).Det() }

// TransformPoint returns (p, 1)*m without perspective division.
func (m Matrix) TransformPoint(p Vec3) Vec4 {
	return mgl32.Mat4(m).Mul4x1(p.Vec4(1))
}

// TransformVector returns (v, 0)*m.
func (m Matrix) TransformVector(v Vec3) Vec4 {
	return mgl32.Mat4(m).Mul4x1(v.Vec4(0))
}

// ApproxEqual reports whether every element of m and n differs by at most
// threshold.
func (m Matrix) ApproxEqual(n Matrix, threshold float32) bool {
	return mgl32.Mat4(m).ApproxEqualThreshold(mgl32.Mat4(n), threshold)
}

// AppendBytes appends the little-endian float32 elements of m in memory
// order.
func (m Matrix) AppendBytes(dst []byte) []byte {
	for _, f := range m {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

// Translation returns a translation by (x, y, z).
func Translation(x, y, z float32) Matrix {
	m := Identity()
	m[12], m[13], m[14] = x, y, z
	return m
}

// Scaling returns a scale by (x, y, z).
func Scaling(x, y, z float32) Matrix {
	m := Identity()
	m[0], m[5], m[10] = x, y, z
	return m
}

// LookAtLH returns a left-handed view matrix looking from eye toward at.
func LookAtLH(eye, at, up Vec3) Matrix {
	z := at.Sub(eye).Normalize()
	x := up.Cross(z).Normalize()
	y := z.Cross(x)
	return FromRows(
		Vec4{x[0], y[0], z[0], 0},
		Vec4{x[1], y[1], z[1], 0},
		Vec4{x[2], y[2], z[2], 0},
		Vec4{-x.Dot(eye), -y.Dot(eye), -z.Dot(eye), 1},
	)
}

// OrthographicLH returns a left-handed orthographic projection of a
// width x height volume mapping depth [zn, zf] to [0, 1].
func OrthographicLH(width, height, zn, zf float32) Matrix {
	r := 1 / (zf - zn)
	return FromRows(
		Vec4{2 / width, 0, 0, 0},
		Vec4{0, 2 / height, 0, 0},
		Vec4{0, 0, r, 0},
		Vec4{0, 0, -zn * r, 1},
	)
}

// PerspectiveFovLH returns a left-handed perspective projection with a
// vertical field of view fovY in radians, mapping depth [zn, zf] to [0, 1].
func PerspectiveFovLH(fovY, aspect, zn, zf float32) Matrix {
	ys := 1 / math32.Tan(fovY/2)
	xs := ys / aspect
	r := zf / (zf - zn)
	return FromRows(
		Vec4{xs, 0, 0, 0},
		Vec4{0, ys, 0, 0},
		Vec4{0, 0, r, 1},
		Vec4{0, 0, -r * zn, 0},
	)
}
