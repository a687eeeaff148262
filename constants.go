package sparsevolume

import "github.com/gogpu/sparsevolume/internal/linear"

// CBMatrices is the per-pass transform block bound at vertex constant
// slot 0. The camera and light passes share the layout.
type CBMatrices struct {
	WorldViewProj linear.Matrix
	World         linear.Matrix
	WorldIT       linear.Matrix
}

// CBMatricesSize is the serialized size of CBMatrices.
const CBMatricesSize = 3 * 64

// Bytes serializes the block little-endian, matrices in memory order.
func (c CBMatrices) Bytes() []byte {
	b := make([]byte, 0, CBMatricesSize)
	b = c.WorldViewProj.AppendBytes(b)
	b = c.World.AppendBytes(b)
	return c.WorldIT.AppendBytes(b)
}

// CBPerObject is the composite block bound at compute constant slot 0.
type CBPerObject struct {
	ViewProjLS    linear.Matrix
	ScreenToWorld linear.Matrix
}

// CBPerObjectSize is the serialized size of CBPerObject.
const CBPerObjectSize = 2 * 64

// Bytes serializes the block little-endian, matrices in memory order.
func (c CBPerObject) Bytes() []byte {
	b := make([]byte, 0, CBPerObjectSize)
	b = c.ViewProjLS.AppendBytes(b)
	return c.ScreenToWorld.AppendBytes(b)
}

// toScreen maps clip space to pixel coordinates before the divide:
// x right from 0 to w, y down from 0 to h, z unchanged.
func toScreen(w, h float32) linear.Matrix {
	return linear.FromRows(
		linear.Vec4{w / 2, 0, 0, 0},
		linear.Vec4{0, -h / 2, 0, 0},
		linear.Vec4{0, 0, 1, 0},
		linear.Vec4{w / 2, h / 2, 0, 1},
	)
}
