package resource_test

import (
	"errors"
	"testing"

	"github.com/gogpu/sparsevolume/backend/soft"
	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/sparsevolume/resource"
)

func TestTexture2DViewCounts(t *testing.T) {
	tests := []struct {
		name       string
		bind       gpucore.BindFlags
		mips       uint32
		wantRead   int
		wantWrite  int
		wantLevels int
	}{
		{"read and write, one mip", gpucore.BindShaderResource | gpucore.BindUnorderedAccess, 1, 1, 1, 0},
		{"read and write, four mips", gpucore.BindShaderResource | gpucore.BindUnorderedAccess, 4, 5, 4, 4},
		{"read only, three mips", gpucore.BindShaderResource, 3, 4, 0, 3},
		{"write only, two mips", gpucore.BindUnorderedAccess, 2, 0, 2, 0},
		{"default bind", 0, 1, 1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := soft.New()
			tex, err := resource.NewTexture2D(dev, resource.TextureConfig{
				Label: tt.name, Width: 64, Height: 32, Format: gpucore.FormatR8G8B8A8Unorm,
				Bind: tt.bind, Mips: tt.mips,
			})
			if err != nil {
				t.Fatalf("NewTexture2D() error = %v", err)
			}
			defer tex.Close()

			if got := tex.ReadViewCount(); got != tt.wantRead {
				t.Errorf("ReadViewCount() = %d, want %d", got, tt.wantRead)
			}
			if got := tex.WriteViewCount(); got != tt.wantWrite {
				t.Errorf("WriteViewCount() = %d, want %d", got, tt.wantWrite)
			}
			for m := range tt.wantLevels {
				if _, err := tex.ReadViewLevel(m); err != nil {
					t.Errorf("ReadViewLevel(%d) error = %v", m, err)
				}
			}
		})
	}
}

func TestTexture2DArrayViewDimension(t *testing.T) {
	dev := soft.New()
	kbuf, err := resource.NewTexture2D(dev, resource.TextureConfig{
		Label: "kbuffer", Width: 16, Height: 16, ArraySize: 8, Format: gpucore.FormatR32Uint,
	})
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer kbuf.Close()

	wv, _ := kbuf.WriteView(0)
	ctx := dev.Context()
	ctx.ClearWriteViewUint(wv, [4]uint32{0x3f800000})
	if err := ctx.Flush(); err != nil {
		t.Fatalf("clearing every slice through view 0: %v", err)
	}
	if got := kbuf.ArraySize(); got != 8 {
		t.Errorf("ArraySize() = %d, want 8", got)
	}
}

func TestViewGettersBoundsChecked(t *testing.T) {
	dev := soft.New()
	tex, err := resource.NewTexture2D(dev, resource.TextureConfig{
		Label: "t", Width: 8, Height: 8, Format: gpucore.FormatR32Float, Mips: 2,
	})
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer tex.Close()

	checks := []struct {
		name string
		err  error
	}{
		{"ReadView(-1)", second(tex.ReadView(-1))},
		{"ReadView(3)", second(tex.ReadView(3))},
		{"WriteView(2)", second(tex.WriteView(2))},
		{"ReadViewLevel(2)", second(tex.ReadViewLevel(2))},
		{"SubReadView(1) before CreateSubReadViews", second(tex.SubReadView(1))},
	}
	for _, c := range checks {
		if !errors.Is(c.err, resource.ErrViewIndexOutOfRange) {
			t.Errorf("%s error = %v, want ErrViewIndexOutOfRange", c.name, c.err)
		}
	}
}

func second[T any](_ T, err error) error { return err }

func TestSubReadViews(t *testing.T) {
	dev := soft.New()
	tex, err := resource.NewTexture2D(dev, resource.TextureConfig{
		Label: "chain", Width: 32, Height: 32, Format: gpucore.FormatR8G8B8A8Unorm,
		Bind: gpucore.BindShaderResource, Mips: 4,
	})
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer tex.Close()

	full, _ := tex.ReadView(0)
	if got, err := tex.SubReadView(0); err != nil || got != full {
		t.Errorf("SubReadView(0) = (%v, %v), want full view %v", got, err, full)
	}
	if err := tex.CreateSubReadViews(); err != nil {
		t.Fatalf("CreateSubReadViews() error = %v", err)
	}
	for i := 1; i < 4; i++ {
		if _, err := tex.SubReadView(i); err != nil {
			t.Errorf("SubReadView(%d) error = %v", i, err)
		}
	}
	if _, err := tex.SubReadView(4); !errors.Is(err, resource.ErrViewIndexOutOfRange) {
		t.Errorf("SubReadView(4) error = %v, want ErrViewIndexOutOfRange", err)
	}
}

func TestTexture3DWriteViewDepth(t *testing.T) {
	dev := soft.New()
	tex, err := resource.NewTexture3D(dev, resource.TextureConfig{
		Label: "volume", Width: 8, Height: 8, Depth: 8, Format: gpucore.FormatR32Float, Mips: 3,
	})
	if err != nil {
		t.Fatalf("NewTexture3D() error = %v", err)
	}
	defer tex.Close()

	if got := tex.WriteViewCount(); got != 3 {
		t.Fatalf("WriteViewCount() = %d, want 3", got)
	}
	if got := tex.ReadViewCount(); got != 4 {
		t.Errorf("ReadViewCount() = %d, want 4", got)
	}
	wv, _ := tex.WriteView(2)
	ctx := dev.Context()
	ctx.ClearWriteViewUint(wv, [4]uint32{1})
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	data, err := dev.ReadSubresource(tex.ID(), 2)
	if err != nil {
		t.Fatalf("ReadSubresource() error = %v", err)
	}
	// Mip 2 is 2x2x2 texels; the view covers depth 8>>2 = 2 of them.
	if len(data) != 2*2*2*4 {
		t.Fatalf("mip 2 holds %d bytes, want %d", len(data), 2*2*2*4)
	}
	for i, b := range data {
		want := byte(0)
		if i%4 == 0 {
			want = 1
		}
		if b != want {
			t.Fatalf("byte %d = %d, want %d", i, b, want)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	dev := soft.New()
	if _, err := resource.NewTexture2D(dev, resource.TextureConfig{Format: gpucore.FormatR32Uint}); !errors.Is(err, resource.ErrInvalidConfig) {
		t.Errorf("zero-size texture error = %v, want ErrInvalidConfig", err)
	}
	if _, err := resource.NewTexture2D(nil, resource.TextureConfig{Width: 1, Height: 1, Format: gpucore.FormatR32Uint}); !errors.Is(err, resource.ErrNilDevice) {
		t.Errorf("nil device error = %v, want ErrNilDevice", err)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	dev := soft.New()
	tex, err := resource.NewTexture2D(dev, resource.TextureConfig{
		Label: "t", Width: 16, Height: 16, Format: gpucore.FormatR8G8B8A8Unorm, Mips: 3,
	})
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	if err := tex.CreateSubReadViews(); err != nil {
		t.Fatalf("CreateSubReadViews() error = %v", err)
	}
	tex.Close()
	tex.Close()
	if res, views := dev.LiveObjects(); res != 0 || views != 0 {
		t.Errorf("LiveObjects() = (%d, %d), want (0, 0)", res, views)
	}
}

func TestDepthFormatNeedsTypelessForReads(t *testing.T) {
	tests := []struct {
		name    string
		format  gpucore.Format
		bind    gpucore.BindFlags
		wantErr bool
	}{
		{"typed D24S8 read", gpucore.FormatD24UnormS8Uint, gpucore.BindShaderResource | gpucore.BindDepthStencil, true},
		{"typed D32 read", gpucore.FormatD32Float, gpucore.BindShaderResource, true},
		{"typed D16 default bind", gpucore.FormatD16Unorm, 0, true},
		{"typed D32 depth only", gpucore.FormatD32Float, gpucore.BindDepthStencil, false},
		{"typeless R24G8 read", gpucore.FormatR24G8Typeless, gpucore.BindShaderResource | gpucore.BindDepthStencil, false},
		{"typeless R32 read", gpucore.FormatR32Typeless, gpucore.BindShaderResource | gpucore.BindDepthStencil, false},
		{"typed R32 depth-bound read", gpucore.FormatR32Float, gpucore.BindShaderResource | gpucore.BindDepthStencil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := soft.New()
			tex, err := resource.NewTexture2D(dev, resource.TextureConfig{
				Label: "depth", Width: 8, Height: 8, Format: tt.format, Bind: tt.bind,
			})
			if tt.wantErr {
				if !errors.Is(err, resource.ErrInvalidConfig) {
					t.Errorf("NewTexture2D() error = %v, want ErrInvalidConfig", err)
				}
				if res, views := dev.LiveObjects(); res != 0 || views != 0 {
					t.Errorf("LiveObjects() = (%d, %d) after rejection, want (0, 0)", res, views)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTexture2D() error = %v", err)
			}
			tex.Close()
		})
	}
}

// failingReads fails every CreateReadView once armed.
type failingReads struct {
	*soft.Device
	after int
	armed bool
}

func (d *failingReads) CreateReadView(res gpucore.ResourceID, desc *gpucore.ViewDesc) (gpucore.ReadView, error) {
	if d.armed {
		if d.after == 0 {
			return gpucore.InvalidID, errors.New("out of views")
		}
		d.after--
	}
	return d.Device.CreateReadView(res, desc)
}

func TestCreateSubReadViewsRetriesAfterFailure(t *testing.T) {
	dev := &failingReads{Device: soft.New()}
	tex, err := resource.NewTexture2D(dev, resource.TextureConfig{
		Label: "t", Width: 16, Height: 16, Format: gpucore.FormatR8G8B8A8Unorm, Mips: 4,
	})
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer tex.Close()
	_, viewsBefore := dev.LiveObjects()

	dev.armed, dev.after = true, 1
	if err := tex.CreateSubReadViews(); err == nil {
		t.Fatal("CreateSubReadViews() error = nil, want the device failure")
	}
	if _, views := dev.LiveObjects(); views != viewsBefore {
		t.Errorf("live views = %d after failure, want %d", views, viewsBefore)
	}
	if _, err := tex.SubReadView(1); !errors.Is(err, resource.ErrViewIndexOutOfRange) {
		t.Errorf("SubReadView(1) after failure error = %v, want ErrViewIndexOutOfRange", err)
	}

	dev.armed = false
	if err := tex.CreateSubReadViews(); err != nil {
		t.Fatalf("second CreateSubReadViews() error = %v", err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := tex.SubReadView(i); err != nil {
			t.Errorf("SubReadView(%d) error = %v", i, err)
		}
	}
}

func TestDepthStencilReadableStorage(t *testing.T) {
	for _, f := range []gpucore.Format{gpucore.FormatD24UnormS8Uint, gpucore.FormatD16Unorm, gpucore.FormatD32Float} {
		t.Run(f.String(), func(t *testing.T) {
			dev := soft.New()
			ds, err := resource.NewDepthStencil(dev, resource.DepthStencilConfig{
				Label: "ds", Width: 8, Height: 8, Format: f, Bind: gpucore.BindShaderResource,
			})
			if err != nil {
				t.Fatalf("NewDepthStencil() error = %v", err)
			}
			defer ds.Close()
			desc, err := dev.DescribeTexture(ds.ID())
			if err != nil {
				t.Fatalf("DescribeTexture() error = %v", err)
			}
			if !desc.Format.IsTypeless() {
				t.Errorf("storage format = %s, want typeless", desc.Format)
			}
			if ds.ReadViewCount() != 1 {
				t.Errorf("ReadViewCount() = %d, want 1", ds.ReadViewCount())
			}
		})
	}
}
