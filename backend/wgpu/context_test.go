package wgpu

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/sparsevolume/gpucore"
)

func newShader(t *testing.T, d *Device, stage gpucore.ShaderStage, entry string) gpucore.ShaderID {
	t.Helper()
	id, err := d.CreateShader(&gpucore.ShaderDesc{Label: entry, Stage: stage, EntryPoint: entry, Source: "// " + entry})
	if err != nil {
		t.Fatalf("CreateShader(%s) error = %v", entry, err)
	}
	return id
}

func newBuffer(t *testing.T, d *Device, desc gpucore.BufferDesc, initial []byte) gpucore.ResourceID {
	t.Helper()
	id, err := d.CreateBuffer(&desc, initial)
	if err != nil {
		t.Fatalf("CreateBuffer(%q) error = %v", desc.Label, err)
	}
	return id
}

// bindMesh binds a one-triangle mesh with a float3 position layout.
func bindMesh(t *testing.T, d *Device) {
	t.Helper()
	layout, err := d.CreateInputLayout([]gpucore.InputElement{
		{SemanticName: "POSITION", Format: gpucore.FormatR32G32B32Float, AlignedByteOffset: gpucore.AppendAligned},
	}, nil)
	if err != nil {
		t.Fatalf("CreateInputLayout() error = %v", err)
	}
	vb := newBuffer(t, d, gpucore.BufferDesc{Label: "vb", ByteWidth: 36, Bind: gpucore.BindVertexBuffer}, make([]byte, 36))
	ib := newBuffer(t, d, gpucore.BufferDesc{Label: "ib", ByteWidth: 12, Bind: gpucore.BindIndexBuffer}, make([]byte, 12))

	ctx := d.Context()
	ctx.SetInputLayout(layout)
	ctx.SetVertexBuffers(0, []gpucore.ResourceID{vb}, []uint32{12}, []uint32{0})
	ctx.SetIndexBuffer(ib, gpucore.FormatR32Uint, 0)
	ctx.SetTopology(gpucore.TopologyTriangleList)
}

func TestFlushReportsFirstErrorOnce(t *testing.T) {
	d := newNoopDevice(t)
	ctx := d.Context()

	ctx.Draw(3, 0)
	ctx.ClearTarget(gpucore.TargetView(42), [4]float32{})
	if err := ctx.Flush(); !errors.Is(err, ErrUnboundState) {
		t.Fatalf("Flush() error = %v, want ErrUnboundState", err)
	}
	if err := ctx.Flush(); err != nil {
		t.Errorf("second Flush() error = %v, want nil", err)
	}
}

func TestClearTargetRejectsOtherViewKinds(t *testing.T) {
	d := newNoopDevice(t)
	_, wv, _ := newKBuffer(t, d, 4, 4, 1)

	ctx := d.Context()
	ctx.ClearTarget(gpucore.TargetView(wv), [4]float32{1, 0, 0, 1})
	if err := ctx.Flush(); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("Flush() error = %v, want ErrInvalidHandle", err)
	}
}

func TestClearWriteViewUintBuffer(t *testing.T) {
	d := newNoopDevice(t)
	id := newBuffer(t, d, gpucore.BufferDesc{
		Label:               "counts",
		ByteWidth:           64,
		Bind:                gpucore.BindUnorderedAccess,
		Misc:                gpucore.MiscBufferStructured,
		StructureByteStride: 8,
	}, nil)
	wv, err := d.CreateWriteView(id, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionBuffer, FirstElement: 2})
	if err != nil {
		t.Fatalf("CreateWriteView() error = %v", err)
	}

	ctx := d.Context()
	ctx.ClearWriteViewUint(wv, [4]uint32{7, 9, 9, 9})
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	b, _ := d.bufferRec(id)
	data, err := d.mapCopy(b.raw, b.size, int(b.size))
	if err != nil {
		t.Fatalf("mapCopy() error = %v", err)
	}
	for i := 0; i < len(data); i += 4 {
		want := uint32(7)
		if i < 16 {
			want = 0
		}
		if got := binary.LittleEndian.Uint32(data[i:]); got != want {
			t.Fatalf("dword %d = %d, want %d", i/4, got, want)
		}
	}
	if ctx.Passes() != 0 {
		t.Errorf("Passes() = %d, want 0 for a queue clear", ctx.Passes())
	}
}

func TestDispatchBindsGroupsAndCachesPipeline(t *testing.T) {
	d := newNoopDevice(t)
	_, _, krv := newKBuffer(t, d, 32, 32, 4)
	_, _, lrv := newKBuffer(t, d, 16, 16, 4)
	cb := newBuffer(t, d, gpucore.BufferDesc{Label: "cb", ByteWidth: 80, Bind: gpucore.BindConstantBuffer}, nil)
	out, err := d.CreateTexture(&gpucore.TextureDesc{
		Label: "output", Dimension: gpucore.DimensionTexture2D, Width: 32, Height: 32, MipLevels: 1,
		Format: gpucore.FormatR8G8B8A8Unorm, Bind: gpucore.BindUnorderedAccess,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	owv, err := d.CreateWriteView(out, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture2D})
	if err != nil {
		t.Fatalf("CreateWriteView() error = %v", err)
	}

	ctx := d.Context()
	ctx.SetShader(gpucore.StageCompute, newShader(t, d, gpucore.StageCompute, "cs_render"))
	ctx.SetConstantBuffers(gpucore.StageCompute, 0, cb)
	ctx.SetReadViews(gpucore.StageCompute, 0, krv, lrv)
	ctx.SetComputeWriteViews(0, owv)

	var groups layoutSpec
	if _, err := ctx.collect(&groups, gputypes.ShaderStageCompute, gputypes.ShaderStageCompute,
		ctx.cbs[gpucore.StageCompute], ctx.reads[gpucore.StageCompute], ctx.csWrites); err != nil {
		t.Fatalf("collect() error = %v", err)
	}
	if n := groups.used(); n != numGroups {
		t.Fatalf("used groups = %d, want %d", n, numGroups)
	}
	if e := groups[groupConstants][0]; e.Buffer == nil || e.Buffer.Type != gputypes.BufferBindingTypeUniform {
		t.Errorf("group 0 entry = %+v, want uniform buffer", e)
	}
	for i, e := range groups[groupReads] {
		if e.Binding != uint32(i) || e.Texture == nil || e.Texture.SampleType != gputypes.TextureSampleTypeUint ||
			e.Texture.ViewDimension != gputypes.TextureViewDimension2DArray {
			t.Errorf("group 1 entry %d = %+v, want uint 2D array texture at binding %d", i, e, i)
		}
	}
	if e := groups[groupWrites][0]; e.StorageTexture == nil || e.StorageTexture.Access != gputypes.StorageTextureAccessWriteOnly ||
		e.StorageTexture.Format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("group 2 entry = %+v, want write-only rgba8unorm storage texture", e)
	}

	ctx.Dispatch(1, 1, 1)
	ctx.Dispatch(1, 1, 1)
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if ctx.Passes() != 2 {
		t.Errorf("Passes() = %d, want 2", ctx.Passes())
	}
	if hits, misses := d.Pipelines().Stats(); hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses; want 1, 1", hits, misses)
	}
}

func TestDrawIntoWriteViewNeedsViewport(t *testing.T) {
	d := newNoopDevice(t)
	_, wv, _ := newKBuffer(t, d, 48, 24, 2)
	bindMesh(t, d)
	cb := newBuffer(t, d, gpucore.BufferDesc{Label: "cb", ByteWidth: 64, Bind: gpucore.BindConstantBuffer}, nil)

	ctx := d.Context()
	ctx.SetTargetsAndWriteViews(nil, gpucore.InvalidID, 0, []gpucore.WriteView{wv})
	ctx.SetConstantBuffers(gpucore.StageVertex, 0, cb)
	ctx.SetShader(gpucore.StageVertex, newShader(t, d, gpucore.StageVertex, "vs_basepass"))
	ctx.SetShader(gpucore.StagePixel, newShader(t, d, gpucore.StagePixel, "fs_depth_peel"))

	ctx.DrawIndexed(3, 0, 0)
	if err := ctx.Flush(); !errors.Is(err, ErrUnboundState) {
		t.Fatalf("Flush() without viewport error = %v, want ErrUnboundState", err)
	}

	ctx.SetViewports(gpucore.NewViewport(48, 24))
	ctx.DrawIndexed(3, 0, 0)
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if ctx.dummy == nil || ctx.dummy.width != 48 || ctx.dummy.height != 24 {
		t.Errorf("dummy target = %+v, want 48x24", ctx.dummy)
	}

	// A smaller pass reuses the dummy target.
	ctx.SetViewports(gpucore.NewViewport(16, 16))
	ctx.DrawIndexed(3, 0, 0)
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if ctx.dummy.width != 48 {
		t.Errorf("dummy target width = %d, want 48", ctx.dummy.width)
	}
}

func TestDrawWithoutAttachmentsIsSkipped(t *testing.T) {
	d := newNoopDevice(t)
	bindMesh(t, d)

	ctx := d.Context()
	ctx.SetShader(gpucore.StageVertex, newShader(t, d, gpucore.StageVertex, "vs_basepass"))
	ctx.DrawIndexed(3, 0, 0)
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if ctx.Passes() != 0 || d.Pipelines().Len() != 0 {
		t.Errorf("Passes() = %d, pipelines = %d; want 0, 0", ctx.Passes(), d.Pipelines().Len())
	}
}

func TestDrawToTargetAndDepth(t *testing.T) {
	d := newNoopDevice(t)
	bindMesh(t, d)
	color, err := d.CreateTexture(&gpucore.TextureDesc{
		Dimension: gpucore.DimensionTexture2D, Width: 8, Height: 8, MipLevels: 1,
		Format: gpucore.FormatR8G8B8A8Unorm, Bind: gpucore.BindRenderTarget,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTexture(color) error = %v", err)
	}
	depth, err := d.CreateTexture(&gpucore.TextureDesc{
		Dimension: gpucore.DimensionTexture2D, Width: 8, Height: 8, MipLevels: 1,
		Format: gpucore.FormatR24G8Typeless, Bind: gpucore.BindDepthStencil,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTexture(depth) error = %v", err)
	}
	tv, err := d.CreateTargetView(color, &gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture2D})
	if err != nil {
		t.Fatalf("CreateTargetView() error = %v", err)
	}
	dv, err := d.CreateDepthView(depth, &gpucore.ViewDesc{Format: gpucore.FormatD24UnormS8Uint, Dimension: gpucore.ViewDimensionTexture2D})
	if err != nil {
		t.Fatalf("CreateDepthView() error = %v", err)
	}

	ctx := d.Context()
	ctx.SetTargets([]gpucore.TargetView{tv}, dv)
	ctx.ClearTarget(tv, [4]float32{0, 0, 0, 1})
	ctx.ClearDepth(dv, 1, 0)
	ctx.SetShader(gpucore.StageVertex, newShader(t, d, gpucore.StageVertex, "vs_basepass"))
	ctx.SetShader(gpucore.StagePixel, newShader(t, d, gpucore.StagePixel, "fs_test"))
	ctx.DrawIndexed(3, 0, 0)
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if ctx.Passes() != 3 {
		t.Errorf("Passes() = %d, want 3", ctx.Passes())
	}
	if ctx.dummy != nil {
		t.Error("dummy target created for a pass with attachments")
	}
}
