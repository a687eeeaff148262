package soft

import (
	"image"
	"math"
	"slices"

	"golang.org/x/image/draw"

	"github.com/gogpu/sparsevolume/gpucore"
)

// Entry points of the built-in programs. Shaders created with these entry
// points run the matching program.
const (
	EntryDepthPeel = "fs_depth_peel"
	EntryTest      = "fs_test"
	EntryResample  = "fs_resample"
	EntryComposite = "cs_render"
)

// Composite shading constants, shared with the WGSL composite shader.
const (
	// KBufferSentinel is the bit pattern of an empty k-buffer layer,
	// math.Float32bits(1.0).
	KBufferSentinel = 0x3f800000

	// CompositeGroupSize is the thread-group edge of the composite pass.
	CompositeGroupSize = 32

	extinction  = 24.0
	ambient     = 0.25
	shadowBias  = 1e-3
	albedoRed   = 0.9
	albedoGreen = 0.85
	albedoBlue  = 0.8
)

var builtinPrograms = map[string]Program{
	EntryDepthPeel: DepthPeel,
	EntryTest:      Test,
	EntryResample:  Resample,
	EntryComposite: Composite,
}

// DepthPeel rasterizes the draw with the WorldViewProj matrix at vertex
// constant slot 0 and inserts each fragment depth into the k-buffer bound
// at pixel write slot 0. Each pixel keeps its nearest depths, one per layer,
// in ascending order.
func DepthPeel(inv *Invocation) error {
	kbuf, err := inv.WriteSurface(0)
	if err != nil {
		return err
	}
	return rasterizeDraw(inv, kbuf, func(x, y int, z float32) {
		insertDepth(kbuf, uint32(x), uint32(y), math.Float32bits(z))
	})
}

// insertDepth keeps the layers of (x, y) sorted: d displaces the first
// larger layer, which moves on to the next. Non-negative floats order the
// same as their bit patterns.
func insertDepth(kbuf *Surface, x, y uint32, d uint32) {
	for l := range kbuf.Layers() {
		cur := kbuf.Uint32(x, y, l)
		if d < cur {
			kbuf.SetUint32(x, y, l, d)
			d = cur
		}
		if d == KBufferSentinel {
			return
		}
	}
}

// Test rasterizes the draw with the WorldViewProj matrix at vertex constant
// slot 0 into render target 0, shading the nearest fragment by depth.
func Test(inv *Invocation) error {
	rt, err := inv.TargetSurface(0)
	if err != nil {
		return err
	}
	nearest := make(map[[2]int]float32)
	err = rasterizeDraw(inv, rt, func(x, y int, z float32) {
		k := [2]int{x, y}
		if d, ok := nearest[k]; ok && d <= z {
			return
		}
		nearest[k] = z
	})
	if err != nil {
		return err
	}
	for k, z := range nearest {
		g := 1 - z
		if err := rt.SetColor(uint32(k[0]), uint32(k[1]), 0, [4]float32{g, g, g, 1}); err != nil {
			return err
		}
	}
	return nil
}

func rasterizeDraw(inv *Invocation, out *Surface, frag func(x, y int, z float32)) error {
	wvp, err := inv.Matrix(gpucore.StageVertex, 0, 0)
	if err != nil {
		return err
	}
	pos, err := inv.Positions()
	if err != nil {
		return err
	}
	tris, err := inv.Triangles()
	if err != nil {
		return err
	}
	vp, ok := inv.Viewport()
	if !ok {
		vp = gpucore.NewViewport(out.Width, out.Height)
	}
	rs := inv.Rasterizer()
	bounded := func(x, y int, z float32) {
		if out.Contains(x, y) {
			frag(x, y, z)
		}
	}
	for _, t := range tris {
		var clip [3][4]float32
		for i, vi := range t {
			if int(vi) >= len(pos) {
				return gpucore.ErrSubresourceRange
			}
			p := pos[vi]
			clip[i] = transform(wvp, [4]float32{p[0], p[1], p[2], 1})
		}
		rasterize(clip, vp, rs, bounded)
	}
	return nil
}

// Resample draws the lowest bound pixel read view over render target 0
// with bilinear filtering, limited to the bound viewport. Channels are
// clamped to [0, 1].
func Resample(inv *Invocation) error {
	rt, err := inv.TargetSurface(0)
	if err != nil {
		return err
	}
	slots := make([]uint32, 0, len(inv.ctx.reads[gpucore.StagePixel]))
	for s := range inv.ctx.reads[gpucore.StagePixel] {
		slots = append(slots, s)
	}
	if len(slots) == 0 {
		return ErrUnboundState
	}
	src, err := inv.ReadSurface(gpucore.StagePixel, slices.Min(slots))
	if err != nil {
		return err
	}

	srcImg, err := toImage(src)
	if err != nil {
		return err
	}
	dr := image.Rect(0, 0, int(rt.Width), int(rt.Height))
	if vp, ok := inv.Viewport(); ok {
		dr = dr.Intersect(image.Rect(int(vp.X), int(vp.Y), int(vp.X+vp.Width), int(vp.Y+vp.Height)))
	}
	dst := image.NewRGBA64(image.Rect(0, 0, int(rt.Width), int(rt.Height)))
	draw.BiLinear.Scale(dst, dr, srcImg, srcImg.Bounds(), draw.Src, nil)

	for y := dr.Min.Y; y < dr.Max.Y; y++ {
		for x := dr.Min.X; x < dr.Max.X; x++ {
			c := dst.RGBA64At(x, y)
			err := rt.SetColor(uint32(x), uint32(y), 0, [4]float32{
				float32(c.R) / 0xffff, float32(c.G) / 0xffff, float32(c.B) / 0xffff, float32(c.A) / 0xffff,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func toImage(s *Surface) (*image.RGBA64, error) {
	img := image.NewRGBA64(image.Rect(0, 0, int(s.Width), int(s.Height)))
	for y := range s.Height {
		for x := range s.Width {
			c, err := s.Color(x, y, 0)
			if err != nil {
				return nil, err
			}
			i := img.PixOffset(int(x), int(y))
			for ch := range 4 {
				v := uint16(math.Round(float64(min(max(c[ch], 0), 1)) * 0xffff))
				img.Pix[i+ch*2] = uint8(v >> 8)
				img.Pix[i+ch*2+1] = uint8(v)
			}
		}
	}
	return img, nil
}

// Composite shades the volume. For every pixel covered by the dispatch it
// reads the view-space k-buffer (compute read slot 0), sums the thickness
// between entry and exit layers, and attenuates the light reaching the
// front surface by the light-space k-buffer (compute read slot 1). The
// constant buffer at compute slot 0 holds ViewProjLS then ScreenToWorld.
// The result is written to compute write slot 0.
func Composite(inv *Invocation) error {
	out, err := inv.WriteSurface(0)
	if err != nil {
		return err
	}
	kbuf, err := inv.ReadSurface(gpucore.StageCompute, 0)
	if err != nil {
		return err
	}
	lbuf, err := inv.ReadSurface(gpucore.StageCompute, 1)
	if err != nil {
		return err
	}
	viewProjLS, err := inv.Matrix(gpucore.StageCompute, 0, 0)
	if err != nil {
		return err
	}
	screenToWorld, err := inv.Matrix(gpucore.StageCompute, 0, 64)
	if err != nil {
		return err
	}

	w := min(inv.Groups[0]*CompositeGroupSize, out.Width, kbuf.Width)
	h := min(inv.Groups[1]*CompositeGroupSize, out.Height, kbuf.Height)
	bands := int((h + CompositeGroupSize - 1) / CompositeGroupSize)
	return inv.Parallel(bands, func(band int) error {
		y0 := uint32(band) * CompositeGroupSize
		for y := y0; y < min(y0+CompositeGroupSize, h); y++ {
			for x := range w {
				depths := layerDepths(kbuf, x, y)
				if len(depths) == 0 {
					if err := out.SetColor(x, y, 0, [4]float32{}); err != nil {
						return err
					}
					continue
				}
				thickness := spanThickness(depths, 1)

				world := transform(screenToWorld, [4]float32{float32(x) + 0.5, float32(y) + 0.5, depths[0], 1})
				for i := range 3 {
					world[i] /= world[3]
				}
				world[3] = 1
				light := lightTransmittance(lbuf, transform(viewProjLS, world))

				alpha := 1 - float32(math.Exp(-extinction*float64(thickness)))
				lit := ambient + (1-ambient)*light
				c := [4]float32{albedoRed * lit, albedoGreen * lit, albedoBlue * lit, alpha}
				if err := out.SetColor(x, y, 0, c); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// layerDepths returns the filled layers of (x, y) as depths.
func layerDepths(kbuf *Surface, x, y uint32) []float32 {
	var d []float32
	for l := range kbuf.Layers() {
		u := kbuf.Uint32(x, y, l)
		if u >= KBufferSentinel {
			break
		}
		d = append(d, math.Float32frombits(u))
	}
	return d
}

// spanThickness sums the length of the inside spans [d0,d1], [d2,d3], ...
// clipped to [0, limit]. An unmatched entry runs to limit.
func spanThickness(depths []float32, limit float32) float32 {
	var t float32
	for i := 0; i < len(depths); i += 2 {
		in := depths[i]
		if in >= limit {
			break
		}
		exit := limit
		if i+1 < len(depths) {
			exit = min(depths[i+1], limit)
		}
		t += exit - in
	}
	return t
}

// lightTransmittance returns the fraction of light reaching the light-space
// clip position p through the volume recorded in lbuf.
func lightTransmittance(lbuf *Surface, p [4]float32) float32 {
	if p[3] <= 0 {
		return 1
	}
	nx, ny, nz := p[0]/p[3], p[1]/p[3], p[2]/p[3]
	u := int((nx + 1) / 2 * float32(lbuf.Width))
	v := int((1 - ny) / 2 * float32(lbuf.Height))
	if !lbuf.Contains(u, v) {
		return 1
	}
	depths := layerDepths(lbuf, uint32(u), uint32(v))
	occluding := spanThickness(depths, nz-shadowBias)
	return float32(math.Exp(-extinction * float64(max(occluding, 0))))
}
