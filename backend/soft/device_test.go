package soft

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/sparsevolume/gpucore"
)

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

func TestClearWriteViewUintFillsEverySlice(t *testing.T) {
	d := New()
	id, wv, _ := newKBuffer(t, d, 5, 3, 4)

	ctx := d.Context()
	ctx.ClearWriteViewUint(wv, [4]uint32{math.Float32bits(1), 0, 0, 0})
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	for slice := range uint32(4) {
		data, err := d.ReadSubresource(id, gpucore.Subresource(0, slice, 1))
		if err != nil {
			t.Fatalf("ReadSubresource(%d) error = %v", slice, err)
		}
		if len(data) != 5*3*4 {
			t.Fatalf("slice %d: %d bytes, want %d", slice, len(data), 5*3*4)
		}
		for i := 0; i < len(data); i += 4 {
			if got := binary.LittleEndian.Uint32(data[i:]); got != KBufferSentinel {
				t.Fatalf("slice %d texel %d = %#x, want %#x", slice, i/4, got, KBufferSentinel)
			}
		}
	}
}

func TestCreateViewValidation(t *testing.T) {
	d := New()
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

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"write view without bind flag", func() error {
			_, err := d.CreateWriteView(id, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture2D})
			return err
		}, gpucore.ErrMissingBindFlag},
		{"mip past chain", func() error {
			_, err := d.CreateReadView(id, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture2D, MostDetailedMip: 2})
			return err
		}, gpucore.ErrSubresourceRange},
		{"buffer view on texture", func() error {
			_, err := d.CreateReadView(id, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionBuffer})
			return err
		}, gpucore.ErrWrongDimension},
		{"unknown resource", func() error {
			_, err := d.CreateReadView(9999, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture2D})
			return err
		}, gpucore.ErrInvalidHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTextureInitialDataHonorsPitch(t *testing.T) {
	d := New()
	// 2x2 R32Uint, rows padded to 12 bytes.
	src := make([]byte, 24)
	binary.LittleEndian.PutUint32(src[0:], 1)
	binary.LittleEndian.PutUint32(src[4:], 2)
	binary.LittleEndian.PutUint32(src[12:], 3)
	binary.LittleEndian.PutUint32(src[16:], 4)
	id, err := d.CreateTexture(&gpucore.TextureDesc{
		Dimension: gpucore.DimensionTexture2D,
		Width:     2,
		Height:    2,
		MipLevels: 1,
		Format:    gpucore.FormatR32Uint,
	}, []gpucore.SubresourceData{{Data: src, RowPitch: 12}})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	data, err := d.ReadSubresource(id, 0)
	if err != nil {
		t.Fatalf("ReadSubresource() error = %v", err)
	}
	for i, want := range []uint32{1, 2, 3, 4} {
		if got := binary.LittleEndian.Uint32(data[i*4:]); got != want {
			t.Errorf("texel %d = %d, want %d", i, got, want)
		}
	}
}

func TestFlushReportsFirstErrorOnce(t *testing.T) {
	d := New()
	ctx := d.Context()
	ctx.ClearTarget(12345, [4]float32{})
	ctx.ClearDepth(67890, 1, 0)

	err := ctx.Flush()
	if !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Fatalf("Flush() error = %v, want ErrInvalidHandle", err)
	}
	if err := ctx.Flush(); err != nil {
		t.Errorf("second Flush() error = %v, want nil", err)
	}
}

func TestCopyResourceAndReadback(t *testing.T) {
	d := New()
	src, err := d.CreateBuffer(&gpucore.BufferDesc{ByteWidth: 8, Bind: gpucore.BindShaderResource}, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatalf("CreateBuffer(src) error = %v", err)
	}
	dst, err := d.CreateBuffer(&gpucore.BufferDesc{ByteWidth: 8, Usage: gpucore.UsageStaging}, nil)
	if err != nil {
		t.Fatalf("CreateBuffer(dst) error = %v", err)
	}
	ctx := d.Context()
	ctx.CopyResource(dst, src)
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	got, _ := d.ReadSubresource(dst, 0)
	if string(got) != string([]byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("readback = %v", got)
	}
}

func TestReleaseCounts(t *testing.T) {
	d := New()
	id, wv, rv := newKBuffer(t, d, 2, 2, 2)
	if res, views := d.LiveObjects(); res != 1 || views != 2 {
		t.Fatalf("LiveObjects() = (%d, %d), want (1, 2)", res, views)
	}
	d.ReleaseView(wv)
	d.ReleaseView(rv)
	d.ReleaseResource(id)
	if res, views := d.LiveObjects(); res != 0 || views != 0 {
		t.Errorf("LiveObjects() after release = (%d, %d), want (0, 0)", res, views)
	}
}

func TestCallLogOrder(t *testing.T) {
	d := New()
	_, wv, _ := newKBuffer(t, d, 2, 2, 1)
	ctx := d.Context()
	ctx.ClearWriteViewUint(wv, [4]uint32{7})
	ctx.Dispatch(1, 2, 3)

	clearAt := ctx.Index(OpClearWriteViewUint, uint64(wv), 7)
	dispatchAt := ctx.Index(OpDispatch, 1, 2, 3)
	if clearAt < 0 || dispatchAt < 0 || clearAt > dispatchAt {
		t.Errorf("clear at %d, dispatch at %d; want clear first", clearAt, dispatchAt)
	}
	ctx.Reset()
	if n := len(ctx.Calls()); n != 0 {
		t.Errorf("Calls() after Reset = %d, want 0", n)
	}
}

func TestColorRoundTripHalf(t *testing.T) {
	b, err := encodeColor(gpucore.FormatR16G16B16A16Float, [4]float32{0.5, 1, 2, 0.25})
	if err != nil {
		t.Fatalf("encodeColor() error = %v", err)
	}
	c, err := decodeColor(gpucore.FormatR16G16B16A16Float, b)
	if err != nil {
		t.Fatalf("decodeColor() error = %v", err)
	}
	if c != [4]float32{0.5, 1, 2, 0.25} {
		t.Errorf("round trip = %v", c)
	}
}

func TestEncodeDepth(t *testing.T) {
	tests := []struct {
		format gpucore.Format
		want   []byte
	}{
		{gpucore.FormatD24UnormS8Uint, []byte{0xff, 0xff, 0xff, 0x05}},
		{gpucore.FormatD16Unorm, []byte{0xff, 0xff}},
		{gpucore.FormatD32Float, binary.LittleEndian.AppendUint32(nil, math.Float32bits(1))},
	}
	for _, tt := range tests {
		if got := encodeDepth(tt.format, 1, 5); string(got) != string(tt.want) {
			t.Errorf("encodeDepth(%s) = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestCloseStopsWorkerPool(t *testing.T) {
	d := New()
	pool := d.workers()
	if pool != d.workers() {
		t.Fatal("workers() started a second pool")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	rows := make([]int, 4)
	if err := pool.Run(len(rows), func(i int) error {
		rows[i] = i + 1
		return nil
	}); err != nil {
		t.Fatalf("Run() after Close error = %v", err)
	}
	if rows[3] != 4 {
		t.Errorf("rows = %v, want every item run", rows)
	}
}
