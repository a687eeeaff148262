package soft

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/sparsevolume/gpucore"
)

// Surface is the texel memory a view addresses at one mip: Layers() planes
// of Width x Height texels. For a 2D array view each layer is a slice; for
// a 3D view each layer is a depth slice; a buffer view is one row of
// elements.
type Surface struct {
	Format gpucore.Format
	Width  uint32
	Height uint32

	layers [][]byte
	stride uint32
}

// Layers returns the number of planes.
func (s *Surface) Layers() int { return len(s.layers) }

// Texel returns the bytes of texel (x, y) in layer. The slice aliases the
// resource memory.
func (s *Surface) Texel(x, y uint32, layer int) []byte {
	off := (y*s.Width + x) * s.stride
	return s.layers[layer][off : off+s.stride]
}

// Contains reports whether (x, y) lies inside the surface.
func (s *Surface) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < int(s.Width) && y < int(s.Height)
}

// Uint32 returns the first 32 bits of texel (x, y) in layer.
func (s *Surface) Uint32(x, y uint32, layer int) uint32 {
	return binary.LittleEndian.Uint32(s.Texel(x, y, layer))
}

// SetUint32 stores v in the first 32 bits of texel (x, y) in layer.
func (s *Surface) SetUint32(x, y uint32, layer int, v uint32) {
	binary.LittleEndian.PutUint32(s.Texel(x, y, layer), v)
}

// Color decodes texel (x, y) in layer.
func (s *Surface) Color(x, y uint32, layer int) ([4]float32, error) {
	return decodeColor(s.Format, s.Texel(x, y, layer))
}

// SetColor encodes c into texel (x, y) in layer.
func (s *Surface) SetColor(x, y uint32, layer int, c [4]float32) error {
	b, err := encodeColor(s.Format, c)
	if err != nil {
		return err
	}
	copy(s.Texel(x, y, layer), b)
	return nil
}

// Fill writes texel into every texel of every layer.
func (s *Surface) Fill(texel []byte) {
	for _, l := range s.layers {
		fill(l[:s.Width*s.Height*s.stride], texel)
	}
}

// viewSurface resolves the surface of v at its first mip.
func (d *Device) viewSurface(v *view) (*Surface, error) {
	if t, ok := d.textureRec(v.res); ok {
		mip := v.desc.MipSlice
		if v.kind == kindRead {
			mip = v.desc.MostDetailedMip
		}
		return t.surface(v.desc, mip), nil
	}
	if b, ok := d.bufferRec(v.res); ok {
		stride := v.desc.Format.BytesPerElement()
		if stride == 0 {
			stride = b.desc.StructureByteStride
		}
		off := v.desc.FirstElement * stride
		return &Surface{
			Format: v.desc.Format,
			Width:  v.desc.NumElements,
			Height: 1,
			layers: [][]byte{b.data[off : off+v.desc.NumElements*stride]},
			stride: stride,
		}, nil
	}
	return nil, fmt.Errorf("%w: resource %d", gpucore.ErrInvalidHandle, v.res)
}

func (t *texture) surface(desc gpucore.ViewDesc, mip uint32) *Surface {
	w, h, dep := t.mipSize(mip)
	bpe := t.desc.Format.BytesPerElement()
	s := &Surface{Format: desc.Format, Width: w, Height: h, stride: bpe * t.desc.SampleCount}
	if t.desc.Dimension == gpucore.DimensionTexture3D {
		sub := t.subs[mip]
		plane := w * h * s.stride
		for z := desc.FirstWSlice; z < min(desc.FirstWSlice+desc.WSize, dep); z++ {
			s.layers = append(s.layers, sub[z*plane:(z+1)*plane])
		}
		if len(s.layers) == 0 {
			s.layers = append(s.layers, sub[:plane])
		}
		return s
	}
	for sl := desc.FirstArraySlice; sl < desc.FirstArraySlice+desc.ArraySize; sl++ {
		s.layers = append(s.layers, t.subs[gpucore.Subresource(mip, sl, t.desc.MipLevels)])
	}
	return s
}
