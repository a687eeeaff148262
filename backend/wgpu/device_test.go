package wgpu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/wgpu/hal/noop"
)

// newNoopDevice wraps a noop HAL device. The HAL device is destroyed on
// test cleanup after the Device is closed.
func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d := NewFromHAL(open.Device, open.Queue)
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
		open.Device.Destroy()
		instance.Destroy()
	})
	return d
}

func newKBuffer(t *testing.T, d *Device, w, h, layers uint32) (gpucore.ResourceID, gpucore.WriteView, gpucore.ReadView) {
	t.Helper()
	id, err := d.CreateTexture(&gpucore.TextureDesc{
		Label:            "kbuffer",
		Dimension:        gpucore.DimensionTexture2D,
		Width:            w,
		Height:           h,
		DepthOrArraySize: layers,
		MipLevels:        1,
		Format:           gpucore.FormatR32Uint,
		Bind:             gpucore.BindShaderResource | gpucore.BindUnorderedAccess,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	wv, err := d.CreateWriteView(id, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture2DArray})
	if err != nil {
		t.Fatalf("CreateWriteView() error = %v", err)
	}
	rv, err := d.CreateReadView(id, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture2DArray})
	if err != nil {
		t.Fatalf("CreateReadView() error = %v", err)
	}
	return id, wv, rv
}

func TestCreateTextureViewsResolve(t *testing.T) {
	d := newNoopDevice(t)
	id, wv, rv := newKBuffer(t, d, 64, 32, 4)

	desc, err := d.DescribeTexture(id)
	if err != nil {
		t.Fatalf("DescribeTexture() error = %v", err)
	}
	if desc.MipLevels != 1 || desc.ArraySize() != 4 {
		t.Errorf("desc mips = %d, slices = %d; want 1, 4", desc.MipLevels, desc.ArraySize())
	}

	w, ok := d.viewRec(wv.ID())
	if !ok {
		t.Fatal("write view not recorded")
	}
	if w.format != gputypes.TextureFormatR32Uint || w.dim != gputypes.TextureViewDimension2DArray {
		t.Errorf("write view = %v/%v, want R32Uint/2DArray", w.format, w.dim)
	}
	if w.desc.ArraySize != 4 || w.width != 64 || w.height != 32 {
		t.Errorf("write view slices = %d, size = %dx%d; want 4, 64x32", w.desc.ArraySize, w.width, w.height)
	}
	r, _ := d.viewRec(rv.ID())
	if r.kind != kindRead || r.desc.MipLevels != 1 {
		t.Errorf("read view kind = %s, mips = %d", r.kind, r.desc.MipLevels)
	}
	if res, err := d.ViewResource(rv); err != nil || res != id {
		t.Errorf("ViewResource() = %d, %v; want %d", res, err, id)
	}
}

func TestCreateTextureErrors(t *testing.T) {
	d := newNoopDevice(t)

	tests := []struct {
		name string
		desc gpucore.TextureDesc
		want error
	}{
		{"zero size", gpucore.TextureDesc{Dimension: gpucore.DimensionTexture2D, Format: gpucore.FormatR32Uint}, ErrInvalidDescriptor},
		{"buffer dimension", gpucore.TextureDesc{Dimension: gpucore.DimensionBuffer, Width: 4, Height: 4, Format: gpucore.FormatR32Uint}, gpucore.ErrWrongDimension},
		{"vertex format", gpucore.TextureDesc{Dimension: gpucore.DimensionTexture2D, Width: 4, Height: 4, Format: gpucore.FormatR32G32B32Float}, ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.CreateTexture(&tt.desc, nil); !errors.Is(err, tt.want) {
				t.Errorf("CreateTexture() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateViewErrors(t *testing.T) {
	d := newNoopDevice(t)
	id, err := d.CreateTexture(&gpucore.TextureDesc{
		Dimension: gpucore.DimensionTexture2D,
		Width:     16,
		Height:    16,
		MipLevels: 2,
		Format:    gpucore.FormatR8G8B8A8Unorm,
		Bind:      gpucore.BindShaderResource,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	if _, err := d.CreateWriteView(id, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture2D}); !errors.Is(err, gpucore.ErrMissingBindFlag) {
		t.Errorf("write view without bind flag: error = %v", err)
	}
	if _, err := d.CreateReadView(id, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture2D, MostDetailedMip: 2}); !errors.Is(err, gpucore.ErrSubresourceRange) {
		t.Errorf("read view past last mip: error = %v", err)
	}
	if _, err := d.CreateReadView(gpucore.ResourceID(999), &gpucore.ViewDesc{}); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("read view of unknown resource: error = %v", err)
	}
}

func TestDepthViewUsesDepthAspect(t *testing.T) {
	d := newNoopDevice(t)
	id, err := d.CreateTexture(&gpucore.TextureDesc{
		Dimension: gpucore.DimensionTexture2D,
		Width:     8,
		Height:    8,
		MipLevels: 1,
		Format:    gpucore.FormatR32Typeless,
		Bind:      gpucore.BindDepthStencil | gpucore.BindShaderResource,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	dv, err := d.CreateDepthView(id, &gpucore.ViewDesc{Format: gpucore.FormatD32Float, Dimension: gpucore.ViewDimensionTexture2D})
	if err != nil {
		t.Fatalf("CreateDepthView() error = %v", err)
	}
	rec, _ := d.viewRec(dv.ID())
	if rec.format != gputypes.TextureFormatDepth32Float {
		t.Errorf("depth view format = %v, want Depth32Float", rec.format)
	}
}

func TestStagingBufferReadback(t *testing.T) {
	d := newNoopDevice(t)
	want := []byte{1, 2, 3, 4, 5, 6}
	id, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "staging", ByteWidth: uint32(len(want)), Usage: gpucore.UsageStaging}, want)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	got, err := d.ReadSubresource(id, 0)
	if err != nil {
		t.Fatalf("ReadSubresource() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadSubresource() = %v, want %v", got, want)
	}
	if _, err := d.ReadSubresource(id, 1); !errors.Is(err, gpucore.ErrSubresourceRange) {
		t.Errorf("ReadSubresource(1) error = %v, want ErrSubresourceRange", err)
	}
}

func TestTextureReadbackIsTightlyPacked(t *testing.T) {
	d := newNoopDevice(t)
	id, _, _ := newKBuffer(t, d, 5, 3, 2)

	data, err := d.ReadSubresource(id, gpucore.Subresource(0, 1, 1))
	if err != nil {
		t.Fatalf("ReadSubresource() error = %v", err)
	}
	if len(data) != 5*3*4 {
		t.Errorf("ReadSubresource() = %d bytes, want %d", len(data), 5*3*4)
	}
	if _, err := d.ReadSubresource(id, 2); !errors.Is(err, gpucore.ErrSubresourceRange) {
		t.Errorf("ReadSubresource(2) error = %v, want ErrSubresourceRange", err)
	}
}

func TestCreateShader(t *testing.T) {
	d := newNoopDevice(t)

	if _, err := d.CreateShader(&gpucore.ShaderDesc{Label: "empty", EntryPoint: "main"}); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("shader without code: error = %v", err)
	}
	if _, err := d.CreateShader(&gpucore.ShaderDesc{Source: "fn main() {}"}); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("shader without entry point: error = %v", err)
	}
	id, err := d.CreateShader(&gpucore.ShaderDesc{Label: "wgsl", EntryPoint: "main", Source: "@compute @workgroup_size(1) fn main() {}"})
	if err != nil {
		t.Fatalf("CreateShader() error = %v", err)
	}
	if _, ok := d.shaderRec(id); !ok {
		t.Error("shader not recorded")
	}
}

func TestSPIRVWords(t *testing.T) {
	spirv := binary.LittleEndian.AppendUint32(nil, spirvMagic)
	spirv = binary.LittleEndian.AppendUint32(spirv, 0x00010300)

	if got := spirvWords(spirv); len(got) != 2 || got[0] != spirvMagic || got[1] != 0x00010300 {
		t.Errorf("spirvWords(module) = %#x", got)
	}
	if got := spirvWords([]byte("fn main() {}")); got != nil {
		t.Errorf("spirvWords(wgsl) = %#x, want nil", got)
	}
	if got := spirvWords(spirv[:6]); got != nil {
		t.Errorf("spirvWords(truncated) = %#x, want nil", got)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	d := newNoopDevice(t)
	newKBuffer(t, d, 4, 4, 2)
	if _, err := d.CreateBuffer(&gpucore.BufferDesc{ByteWidth: 16, Bind: gpucore.BindConstantBuffer}, nil); err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if res, views := d.LiveObjects(); res != 2 || views != 2 {
		t.Fatalf("LiveObjects() = %d, %d; want 2, 2", res, views)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if res, views := d.LiveObjects(); res != 0 || views != 0 {
		t.Errorf("LiveObjects() after Close = %d, %d; want 0, 0", res, views)
	}
}

func TestReleaseViewThenResource(t *testing.T) {
	d := newNoopDevice(t)
	id, wv, rv := newKBuffer(t, d, 4, 4, 1)

	d.ReleaseView(wv)
	d.ReleaseView(rv)
	d.ReleaseView(rv)
	d.ReleaseResource(id)
	if res, views := d.LiveObjects(); res != 0 || views != 0 {
		t.Errorf("LiveObjects() = %d, %d; want 0, 0", res, views)
	}
	if _, err := d.DescribeTexture(id); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("DescribeTexture() after release error = %v", err)
	}
}
