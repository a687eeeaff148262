package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mrjoshuak/go-openexr/half"

	"github.com/gogpu/sparsevolume/gpucore"
)

// encodeColor converts an RGBA color to the texel bytes of format f.
func encodeColor(f gpucore.Format, rgba [4]float32) ([]byte, error) {
	out := make([]byte, f.BytesPerElement())
	switch f {
	case gpucore.FormatR32G32B32A32Float:
		for i, c := range rgba {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(c))
		}
	case gpucore.FormatR32G32B32Float:
		for i, c := range rgba[:3] {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(c))
		}
	case gpucore.FormatR16G16B16A16Float:
		half.ConvertFloat32ToBytes(out, rgba[:])
	case gpucore.FormatR8G8B8A8Unorm:
		for i, c := range rgba {
			out[i] = unorm8(c)
		}
	case gpucore.FormatB8G8R8A8Unorm:
		out[0], out[1], out[2], out[3] = unorm8(rgba[2]), unorm8(rgba[1]), unorm8(rgba[0]), unorm8(rgba[3])
	case gpucore.FormatR32Float, gpucore.FormatR32Typeless, gpucore.FormatD32Float:
		binary.LittleEndian.PutUint32(out, math.Float32bits(rgba[0]))
	case gpucore.FormatR32Uint:
		binary.LittleEndian.PutUint32(out, uint32(rgba[0]))
	case gpucore.FormatR32Sint:
		binary.LittleEndian.PutUint32(out, uint32(int32(rgba[0])))
	case gpucore.FormatR16Unorm, gpucore.FormatR16Typeless, gpucore.FormatD16Unorm:
		binary.LittleEndian.PutUint16(out, unorm16(rgba[0]))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return out, nil
}

// decodeColor converts texel bytes of format f to RGBA. Channels the format
// lacks read as 0, alpha as 1.
func decodeColor(f gpucore.Format, b []byte) ([4]float32, error) {
	c := [4]float32{0, 0, 0, 1}
	switch f {
	case gpucore.FormatR32G32B32A32Float:
		for i := range c {
			c[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
	case gpucore.FormatR32G32B32Float:
		for i := range 3 {
			c[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
	case gpucore.FormatR16G16B16A16Float:
		half.ConvertBytesToFloat32(c[:], b[:8])
	case gpucore.FormatR8G8B8A8Unorm:
		for i := range c {
			c[i] = float32(b[i]) / 255
		}
	case gpucore.FormatB8G8R8A8Unorm:
		c = [4]float32{float32(b[2]) / 255, float32(b[1]) / 255, float32(b[0]) / 255, float32(b[3]) / 255}
	case gpucore.FormatR32Float, gpucore.FormatR32Typeless, gpucore.FormatD32Float:
		c[0] = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case gpucore.FormatR32Uint:
		c[0] = float32(binary.LittleEndian.Uint32(b))
	case gpucore.FormatR32Sint:
		c[0] = float32(int32(binary.LittleEndian.Uint32(b)))
	case gpucore.FormatR16Unorm, gpucore.FormatR16Typeless, gpucore.FormatD16Unorm:
		c[0] = float32(binary.LittleEndian.Uint16(b)) / 65535
	default:
		return c, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return c, nil
}

// encodeUint converts per-channel integer values to the texel bytes of
// format f, keeping the low bits of each value the way an unordered-access
// integer clear does.
func encodeUint(f gpucore.Format, v [4]uint32) []byte {
	out := make([]byte, f.BytesPerElement())
	switch f {
	case gpucore.FormatR32G32B32A32Float:
		for i := range 4 {
			binary.LittleEndian.PutUint32(out[i*4:], v[i])
		}
	case gpucore.FormatR32G32B32Float:
		for i := range 3 {
			binary.LittleEndian.PutUint32(out[i*4:], v[i])
		}
	case gpucore.FormatR16G16B16A16Float:
		for i := range 4 {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v[i]))
		}
	case gpucore.FormatR8G8B8A8Unorm, gpucore.FormatB8G8R8A8Unorm:
		for i := range 4 {
			out[i] = uint8(v[i])
		}
	case gpucore.FormatR16Unorm, gpucore.FormatR16Typeless, gpucore.FormatD16Unorm:
		binary.LittleEndian.PutUint16(out, uint16(v[0]))
	default:
		binary.LittleEndian.PutUint32(out, v[0])
	}
	return out
}

// encodeDepth converts a depth/stencil pair to texel bytes of the storage
// format f.
func encodeDepth(f gpucore.Format, depth float32, stencil uint8) []byte {
	depth = min(max(depth, 0), 1)
	switch f {
	case gpucore.FormatD24UnormS8Uint, gpucore.FormatR24G8Typeless, gpucore.FormatR24UnormX8Typeless:
		d := uint32(math.Round(float64(depth) * 0xFFFFFF))
		return binary.LittleEndian.AppendUint32(nil, d|uint32(stencil)<<24)
	case gpucore.FormatD16Unorm, gpucore.FormatR16Typeless, gpucore.FormatR16Unorm:
		return binary.LittleEndian.AppendUint16(nil, unorm16(depth))
	default:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(depth))
	}
}

func unorm8(c float32) uint8 {
	return uint8(math.Round(float64(min(max(c, 0), 1)) * 255))
}

func unorm16(c float32) uint16 {
	return uint16(math.Round(float64(min(max(c, 0), 1)) * 65535))
}

// fill repeats texel over dst.
func fill(dst, texel []byte) {
	if len(texel) == 0 {
		return
	}
	for i := 0; i+len(texel) <= len(dst); i += len(texel) {
		copy(dst[i:], texel)
	}
}
