package soft

import (
	"math"

	"github.com/gogpu/sparsevolume/gpucore"
)

// transform returns v multiplied by the matrix whose transpose is stored
// row-major in m. Constant buffers hold transposed matrices, so this is the
// row-vector product v*M a shader computes.
func transform(m [16]float32, v [4]float32) [4]float32 {
	var out [4]float32
	for r := range 4 {
		out[r] = m[r*4]*v[0] + m[r*4+1]*v[1] + m[r*4+2]*v[2] + m[r*4+3]*v[3]
	}
	return out
}

type screenVertex struct {
	x, y, z float32
}

// rasterize calls frag for every pixel center covered by the triangle of
// clip-space vertices, with its interpolated depth. Coverage follows the
// top-left rule so edges shared by two triangles are drawn once.
// Triangles with a vertex behind the eye are dropped.
func rasterize(clip [3][4]float32, vp gpucore.Viewport, rs gpucore.RasterizerDesc, frag func(x, y int, z float32)) {
	var v [3]screenVertex
	for i, c := range clip {
		if c[3] <= 0 {
			return
		}
		inv := 1 / c[3]
		v[i] = screenVertex{
			x: vp.X + (c[0]*inv+1)*vp.Width/2,
			y: vp.Y + (1-c[1]*inv)*vp.Height/2,
			z: vp.MinDepth + c[2]*inv*(vp.MaxDepth-vp.MinDepth),
		}
	}

	area := edge(v[0], v[1], v[2].x, v[2].y)
	if area == 0 {
		return
	}
	// Clockwise on screen is front-facing unless FrontCounterClockwise.
	front := (area > 0) != rs.FrontCounterClockwise
	switch rs.Cull {
	case gpucore.CullBack:
		if !front {
			return
		}
	case gpucore.CullFront:
		if front {
			return
		}
	}
	if area < 0 {
		v[1], v[2] = v[2], v[1]
		area = -area
	}

	minX := max(int(math.Floor(float64(min(v[0].x, v[1].x, v[2].x)))), int(vp.X))
	maxX := min(int(math.Ceil(float64(max(v[0].x, v[1].x, v[2].x)))), int(vp.X+vp.Width)-1)
	minY := max(int(math.Floor(float64(min(v[0].y, v[1].y, v[2].y)))), int(vp.Y))
	maxY := min(int(math.Ceil(float64(max(v[0].y, v[1].y, v[2].y)))), int(vp.Y+vp.Height)-1)

	tl0 := topLeft(v[1], v[2])
	tl1 := topLeft(v[2], v[0])
	tl2 := topLeft(v[0], v[1])

	for py := minY; py <= maxY; py++ {
		cy := float32(py) + 0.5
		for px := minX; px <= maxX; px++ {
			cx := float32(px) + 0.5
			w0 := edge(v[1], v[2], cx, cy)
			w1 := edge(v[2], v[0], cx, cy)
			w2 := edge(v[0], v[1], cx, cy)
			if !inside(w0, tl0) || !inside(w1, tl1) || !inside(w2, tl2) {
				continue
			}
			z := (w0*v[0].z + w1*v[1].z + w2*v[2].z) / area
			if rs.DepthClip && (z < 0 || z > 1) {
				continue
			}
			frag(px, py, z)
		}
	}
}

func edge(a, b screenVertex, px, py float32) float32 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// topLeft reports whether edge a->b of a positively oriented triangle is a
// top or left edge in y-down screen space.
func topLeft(a, b screenVertex) bool {
	dx, dy := b.x-a.x, b.y-a.y
	return (dy == 0 && dx > 0) || dy < 0
}

func inside(w float32, tl bool) bool {
	return w > 0 || (w == 0 && tl)
}
