package wgpu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/sparsevolume/gpucore"
)

func TestTextureFormat(t *testing.T) {
	tests := []struct {
		format gpucore.Format
		bind   gpucore.BindFlags
		want   gputypes.TextureFormat
	}{
		{gpucore.FormatR32Uint, gpucore.BindUnorderedAccess, gputypes.TextureFormatR32Uint},
		{gpucore.FormatR8G8B8A8Unorm, gpucore.BindRenderTarget, gputypes.TextureFormatRGBA8Unorm},
		{gpucore.FormatR32Typeless, gpucore.BindShaderResource, gputypes.TextureFormatR32Float},
		{gpucore.FormatR32Typeless, gpucore.BindDepthStencil, gputypes.TextureFormatDepth32Float},
		{gpucore.FormatR24G8Typeless, gpucore.BindDepthStencil, gputypes.TextureFormatDepth24PlusStencil8},
		{gpucore.FormatR16Typeless, gpucore.BindDepthStencil, gputypes.TextureFormatDepth16Unorm},
		{gpucore.FormatR16Typeless, gpucore.BindShaderResource, gputypes.TextureFormatR16Unorm},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			got, err := textureFormat(tt.format, tt.bind)
			if err != nil || got != tt.want {
				t.Errorf("textureFormat(%s, %#x) = %v, %v; want %v", tt.format, tt.bind, got, err, tt.want)
			}
		})
	}
	if _, err := textureFormat(gpucore.FormatR32G32B32Float, 0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("textureFormat(R32G32B32Float) error = %v, want ErrUnsupported", err)
	}
}

func TestBindingTypes(t *testing.T) {
	if got := sampleType(gputypes.TextureFormatR32Uint); got != gputypes.TextureSampleTypeUint {
		t.Errorf("sampleType(R32Uint) = %v", got)
	}
	if got := sampleType(gputypes.TextureFormatRGBA16Float); got != gputypes.TextureSampleTypeUnfilterableFloat {
		t.Errorf("sampleType(RGBA16Float) = %v", got)
	}
	if got := storageAccess(gputypes.TextureFormatR32Uint); got != gputypes.StorageTextureAccessReadWrite {
		t.Errorf("storageAccess(R32Uint) = %v", got)
	}
	if got := storageAccess(gputypes.TextureFormatRGBA8Unorm); got != gputypes.StorageTextureAccessWriteOnly {
		t.Errorf("storageAccess(RGBA8Unorm) = %v", got)
	}
}

func TestBufferUsage(t *testing.T) {
	staging := bufferUsage(&gpucore.BufferDesc{Usage: gpucore.UsageStaging, Bind: gpucore.BindVertexBuffer})
	if staging != gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst {
		t.Errorf("staging usage = %#x", staging)
	}
	u := bufferUsage(&gpucore.BufferDesc{Bind: gpucore.BindConstantBuffer | gpucore.BindShaderResource})
	if u&gputypes.BufferUsageUniform == 0 || u&gputypes.BufferUsageStorage == 0 || u&gputypes.BufferUsageVertex != 0 {
		t.Errorf("constant+read usage = %#x", u)
	}
}

func TestPrimitiveState(t *testing.T) {
	ps := primitiveState(gpucore.TopologyTriangleList, defaultRasterizer)
	if ps.CullMode != gputypes.CullModeBack || ps.FrontFace != gputypes.FrontFaceCW || ps.UnclippedDepth {
		t.Errorf("default state = %+v", ps)
	}
	ps = primitiveState(gpucore.TopologyTriangleStrip, gpucore.RasterizerDesc{Cull: gpucore.CullNone, FrontCounterClockwise: true})
	if ps.Topology != gputypes.PrimitiveTopologyTriangleStrip || ps.CullMode != gputypes.CullModeNone ||
		ps.FrontFace != gputypes.FrontFaceCCW || !ps.UnclippedDepth {
		t.Errorf("strip cull-none state = %+v", ps)
	}
}

func TestFillTexel(t *testing.T) {
	got, err := fillTexel(gpucore.FormatR32Uint, [4]uint32{0xFFFFFFFF, 1, 2, 3})
	if err != nil || !bytes.Equal(got, []byte{0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Errorf("fillTexel(R32Uint) = %v, %v", got, err)
	}
	got, err = fillTexel(gpucore.FormatR8G8B8A8Unorm, [4]uint32{1, 2, 3, 0x104})
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("fillTexel(RGBA8) = %v, %v", got, err)
	}
	if _, err := fillTexel(gpucore.FormatD24UnormS8Uint, [4]uint32{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("fillTexel(D24S8) error = %v, want ErrUnsupported", err)
	}
	if got := repeat([]byte{1, 2}, 5); !bytes.Equal(got, []byte{1, 2, 1, 2, 1}) {
		t.Errorf("repeat() = %v", got)
	}
	if got := align(uint32(20), 256); got != 256 {
		t.Errorf("align(20, 256) = %d", got)
	}
}
