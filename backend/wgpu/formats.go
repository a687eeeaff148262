package wgpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/sparsevolume/gpucore"
)

// textureFormat maps a storage format. Typeless formats of depth
// resources become the matching depth format; WebGPU has no typeless
// textures, so the view formats the resource package derives for them
// are reached through the depth format instead.
func textureFormat(f gpucore.Format, bind gpucore.BindFlags) (gputypes.TextureFormat, error) {
	depth := bind.Has(gpucore.BindDepthStencil)
	switch f {
	case gpucore.FormatR32G32B32A32Float:
		return gputypes.TextureFormatRGBA32Float, nil
	case gpucore.FormatR16G16B16A16Float:
		return gputypes.TextureFormatRGBA16Float, nil
	case gpucore.FormatR8G8B8A8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case gpucore.FormatB8G8R8A8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, nil
	case gpucore.FormatR32Uint:
		return gputypes.TextureFormatR32Uint, nil
	case gpucore.FormatR32Sint:
		return gputypes.TextureFormatR32Sint, nil
	case gpucore.FormatR32Float:
		return gputypes.TextureFormatR32Float, nil
	case gpucore.FormatR32Typeless:
		if depth {
			return gputypes.TextureFormatDepth32Float, nil
		}
		return gputypes.TextureFormatR32Float, nil
	case gpucore.FormatD32Float:
		return gputypes.TextureFormatDepth32Float, nil
	case gpucore.FormatR24G8Typeless, gpucore.FormatD24UnormS8Uint, gpucore.FormatR24UnormX8Typeless:
		return gputypes.TextureFormatDepth24PlusStencil8, nil
	case gpucore.FormatR16Typeless:
		if depth {
			return gputypes.TextureFormatDepth16Unorm, nil
		}
		return gputypes.TextureFormatR16Unorm, nil
	case gpucore.FormatR16Unorm:
		return gputypes.TextureFormatR16Unorm, nil
	case gpucore.FormatD16Unorm:
		return gputypes.TextureFormatDepth16Unorm, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: texture format %s", ErrUnsupported, f)
	}
}

// viewFormat maps the format of a view on a texture stored as storage.
// A view of a depth texture keeps the depth format and selects the depth
// aspect.
func viewFormat(f gpucore.Format, storage gputypes.TextureFormat) (gputypes.TextureFormat, gputypes.TextureAspect, error) {
	if isDepthFormat(storage) {
		return storage, gputypes.TextureAspectDepthOnly, nil
	}
	vf, err := textureFormat(f, 0)
	return vf, gputypes.TextureAspectAll, err
}

func isDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return true
	default:
		return false
	}
}

func hasStencil(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8 || f == gputypes.TextureFormatDepth32FloatStencil8
}

// sampleType is the binding sample type of a read view. Nothing is
// filtered, so float formats bind as unfilterable.
func sampleType(f gputypes.TextureFormat) gputypes.TextureSampleType {
	switch f {
	case gputypes.TextureFormatR32Uint:
		return gputypes.TextureSampleTypeUint
	case gputypes.TextureFormatR32Sint:
		return gputypes.TextureSampleTypeSint
	default:
		return gputypes.TextureSampleTypeUnfilterableFloat
	}
}

// storageAccess returns read-write for the formats WebGPU allows it on.
func storageAccess(f gputypes.TextureFormat) gputypes.StorageTextureAccess {
	switch f {
	case gputypes.TextureFormatR32Uint, gputypes.TextureFormatR32Sint, gputypes.TextureFormatR32Float:
		return gputypes.StorageTextureAccessReadWrite
	default:
		return gputypes.StorageTextureAccessWriteOnly
	}
}

func textureUsage(bind gpucore.BindFlags) gputypes.TextureUsage {
	u := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if bind.Has(gpucore.BindShaderResource) {
		u |= gputypes.TextureUsageTextureBinding
	}
	if bind.Has(gpucore.BindUnorderedAccess) {
		u |= gputypes.TextureUsageStorageBinding
	}
	if bind.Has(gpucore.BindRenderTarget) || bind.Has(gpucore.BindDepthStencil) {
		u |= gputypes.TextureUsageRenderAttachment
	}
	return u
}

// bufferUsage maps bind flags. Staging buffers are readback targets and
// may only combine MapRead with CopyDst.
func bufferUsage(desc *gpucore.BufferDesc) gputypes.BufferUsage {
	if desc.Usage == gpucore.UsageStaging {
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	u := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if desc.Bind.Has(gpucore.BindVertexBuffer) {
		u |= gputypes.BufferUsageVertex
	}
	if desc.Bind.Has(gpucore.BindIndexBuffer) {
		u |= gputypes.BufferUsageIndex
	}
	if desc.Bind.Has(gpucore.BindConstantBuffer) {
		u |= gputypes.BufferUsageUniform
	}
	if desc.Bind.Has(gpucore.BindShaderResource) || desc.Bind.Has(gpucore.BindUnorderedAccess) {
		u |= gputypes.BufferUsageStorage
	}
	return u
}

func viewDimension(d gpucore.ViewDimension) (gputypes.TextureViewDimension, error) {
	switch d {
	case gpucore.ViewDimensionTexture2D:
		return gputypes.TextureViewDimension2D, nil
	case gpucore.ViewDimensionTexture2DArray:
		return gputypes.TextureViewDimension2DArray, nil
	case gpucore.ViewDimensionTexture3D:
		return gputypes.TextureViewDimension3D, nil
	default:
		return gputypes.TextureViewDimensionUndefined, fmt.Errorf("%w: view dimension %s", ErrUnsupported, d)
	}
}

func vertexFormat(f gpucore.Format) (gputypes.VertexFormat, error) {
	switch f {
	case gpucore.FormatR32G32B32Float:
		return gputypes.VertexFormatFloat32x3, nil
	case gpucore.FormatR32G32B32A32Float:
		return gputypes.VertexFormatFloat32x4, nil
	case gpucore.FormatR32Float:
		return gputypes.VertexFormatFloat32, nil
	case gpucore.FormatR32Uint:
		return gputypes.VertexFormatUint32, nil
	default:
		return 0, fmt.Errorf("%w: vertex format %s", ErrUnsupported, f)
	}
}

func indexFormat(f gpucore.Format) gputypes.IndexFormat {
	if f.BytesPerElement() == 2 {
		return gputypes.IndexFormatUint16
	}
	return gputypes.IndexFormatUint32
}

func topology(t gpucore.Topology) gputypes.PrimitiveTopology {
	if t == gpucore.TopologyTriangleStrip {
		return gputypes.PrimitiveTopologyTriangleStrip
	}
	return gputypes.PrimitiveTopologyTriangleList
}

// primitiveState applies a rasterizer state. Front faces are clockwise
// unless the state says otherwise.
func primitiveState(t gpucore.Topology, r gpucore.RasterizerDesc) gputypes.PrimitiveState {
	ps := gputypes.PrimitiveState{
		Topology:       topology(t),
		FrontFace:      gputypes.FrontFaceCW,
		UnclippedDepth: !r.DepthClip,
	}
	if r.FrontCounterClockwise {
		ps.FrontFace = gputypes.FrontFaceCCW
	}
	switch r.Cull {
	case gpucore.CullNone:
		ps.CullMode = gputypes.CullModeNone
	case gpucore.CullFront:
		ps.CullMode = gputypes.CullModeFront
	default:
		ps.CullMode = gputypes.CullModeBack
	}
	return ps
}

// defaultRasterizer is the state bound by InvalidID.
var defaultRasterizer = gpucore.RasterizerDesc{Cull: gpucore.CullBack, DepthClip: true}

// fillTexel encodes a uint clear value for a texel of f, one value per
// channel in channel order.
func fillTexel(f gpucore.Format, values [4]uint32) ([]byte, error) {
	switch f {
	case gpucore.FormatR32Uint, gpucore.FormatR32Sint, gpucore.FormatR32Float, gpucore.FormatR32Typeless:
		return binary.LittleEndian.AppendUint32(nil, values[0]), nil
	case gpucore.FormatR8G8B8A8Unorm, gpucore.FormatB8G8R8A8Unorm:
		return []byte{byte(values[0]), byte(values[1]), byte(values[2]), byte(values[3])}, nil
	case gpucore.FormatR16G16B16A16Float:
		b := make([]byte, 0, 8)
		for _, v := range values {
			b = binary.LittleEndian.AppendUint16(b, uint16(v))
		}
		return b, nil
	case gpucore.FormatR32G32B32A32Float:
		b := make([]byte, 0, 16)
		for _, v := range values {
			b = binary.LittleEndian.AppendUint32(b, v)
		}
		return b, nil
	case gpucore.FormatR16Unorm, gpucore.FormatR16Typeless:
		return binary.LittleEndian.AppendUint16(nil, uint16(values[0])), nil
	default:
		return nil, fmt.Errorf("%w: uint clear of %s", ErrUnsupported, f)
	}
}

// repeat tiles texel over n bytes.
func repeat(texel []byte, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i += len(texel) {
		copy(out[i:], texel)
	}
	return out
}

// align rounds n up to a multiple of a.
func align[T ~uint32 | ~uint64](n, a T) T {
	return (n + a - 1) / a * a
}
