package sparsevolume

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/sparsevolume/backend/soft"
	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/sparsevolume/internal/linear"
	"github.com/gogpu/sparsevolume/mesh"
	"github.com/gogpu/sparsevolume/pipeline"
	"github.com/gogpu/sparsevolume/resource"
)

// passthrough stands in for the WGSL compiler; the soft device runs its
// reference programs by entry point.
func passthrough(src string) ([]byte, error) { return []byte(src), nil }

func newTestVolume(t *testing.T, opts ...Option) (*soft.Device, *Volume) {
	t.Helper()
	dev := soft.New()
	reg := pipeline.NewRegistry(pipeline.WithCompiler(passthrough))
	if err := reg.Load(dev); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return dev, New(dev, reg, opts...)
}

func cameraViewProj(w, h uint32) linear.Matrix {
	view := linear.LookAtLH(linear.Vec3{0, 0, -5}, linear.Vec3{}, linear.Vec3{0, 1, 0})
	proj := linear.PerspectiveFovLH(math.Pi/4, float32(w)/float32(h), 0.1, 100)
	return view.Mul(proj)
}

func newOutput(t *testing.T, dev gpucore.Device, w, h uint32) (*resource.Texture, gpucore.WriteView) {
	t.Helper()
	out, err := resource.NewTexture2D(dev, resource.TextureConfig{
		Label: "output", Width: w, Height: h,
		Format: gpucore.FormatR8G8B8A8Unorm, Bind: gpucore.BindUnorderedAccess,
	})
	if err != nil {
		t.Fatalf("NewTexture2D(output) error = %v", err)
	}
	t.Cleanup(out.Close)
	wv, err := out.WriteView(0)
	if err != nil {
		t.Fatalf("WriteView(0) error = %v", err)
	}
	return out, wv
}

func TestRenderUnitCube(t *testing.T) {
	const w, h = 256, 256
	dev, v := newTestVolume(t, WithShadowMapSize(64))
	defer v.Close()

	if err := v.InitMesh(w, h, mesh.UnitCube()); err != nil {
		t.Fatalf("InitMesh() error = %v", err)
	}
	if got := v.VertexBuffer().ByteWidth(); got != 8*24 {
		t.Errorf("vertex buffer = %d bytes, want %d", got, 8*24)
	}
	if got := v.IndexBuffer().ByteWidth(); got != 12*3*4 {
		t.Errorf("index buffer = %d bytes, want %d", got, 12*3*4)
	}
	if v.VertexStride() != 24 || v.NumIndices() != 36 {
		t.Errorf("VertexStride() = %d, NumIndices() = %d; want 24, 36", v.VertexStride(), v.NumIndices())
	}

	out, wv := newOutput(t, dev, w, h)
	ctx := dev.Context()
	ctx.SetViewports(gpucore.NewViewport(w, h))
	v.UpdateFrame(linear.Vec3{0, 0, -5}, cameraViewProj(w, h))
	ctx.Reset()
	if err := v.Render(wv); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	lightWV, _ := v.LightKBuffer().WriteView(0)
	viewWV, _ := v.KBuffer().WriteView(0)
	lightClear := ctx.Index(soft.OpClearWriteViewUint, uint64(lightWV), soft.KBufferSentinel)
	viewClear := ctx.Index(soft.OpClearWriteViewUint, uint64(viewWV), soft.KBufferSentinel)
	dispatch := ctx.Index(soft.OpDispatch, w/32, h/32, 1)
	if lightClear < 0 || viewClear < lightClear || dispatch < viewClear {
		t.Errorf("light clear at %d, view clear at %d, dispatch at %d; want that order", lightClear, viewClear, dispatch)
	}
	if n := ctx.Count(soft.OpDrawIndexed); n != 2 {
		t.Errorf("DrawIndexed calls = %d, want 2", n)
	}

	if vps := ctx.Viewports(); len(vps) != 1 || vps[0] != gpucore.NewViewport(w, h) {
		t.Errorf("Viewports() after Render = %v, want the caller's", vps)
	}

	img, err := dev.ReadSubresource(out.ID(), 0)
	if err != nil {
		t.Fatalf("ReadSubresource() error = %v", err)
	}
	center := (h/2*w + w/2) * 4
	if img[center+3] == 0 {
		t.Error("center pixel is transparent, want the cube")
	}
	if !bytes.Equal(img[0:4], []byte{0, 0, 0, 0}) {
		t.Errorf("corner pixel = %v, want transparent", img[0:4])
	}
}

func TestKBufferClearThenRead(t *testing.T) {
	dev, v := newTestVolume(t, WithShadowMapSize(16), WithKLayers(3))
	defer v.Close()
	if err := v.InitMesh(16, 8, mesh.UnitCube()); err != nil {
		t.Fatalf("InitMesh() error = %v", err)
	}

	// Zeroed transforms put every vertex at w = 0, so only the clears land.
	ctx := dev.Context()
	if err := v.depthPeel(); err != nil {
		t.Fatalf("depthPeel() error = %v", err)
	}
	if err := ctx.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	kb := v.KBuffer()
	for slice := range kb.ArraySize() {
		data, err := dev.ReadSubresource(kb.ID(), gpucore.Subresource(0, slice, 1))
		if err != nil {
			t.Fatalf("ReadSubresource(slice %d) error = %v", slice, err)
		}
		for i := 0; i < len(data); i += 4 {
			got := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
			if got != math.Float32bits(1) {
				t.Fatalf("slice %d texel %d = %#x, want %#x", slice, i/4, got, math.Float32bits(1))
			}
		}
	}
}

func TestUpdateFrameIdempotent(t *testing.T) {
	dev, v := newTestVolume(t)
	defer v.Close()
	if err := v.InitMesh(64, 48, mesh.UnitCube()); err != nil {
		t.Fatalf("InitMesh() error = %v", err)
	}
	cbs := []*resource.Buffer{v.cbMatrices, v.cbMatricesLS, v.cbPerObject}
	vp := cameraViewProj(64, 48)

	snapshot := func(eye linear.Vec3) [][]byte {
		v.UpdateFrame(eye, vp)
		out := make([][]byte, len(cbs))
		for i, cb := range cbs {
			data, err := dev.ReadSubresource(cb.ID(), 0)
			if err != nil {
				t.Fatalf("ReadSubresource() error = %v", err)
			}
			out[i] = data
		}
		return out
	}
	first, second := snapshot(linear.Vec3{1, 2, 3}), snapshot(linear.Vec3{1, 2, 3})
	otherEye := snapshot(linear.Vec3{-7, 0, 9})
	for i := range first {
		if !bytes.Equal(first[i], second[i]) {
			t.Errorf("constant buffer %d differs between identical frames", i)
		}
		// The eye position does not feed any constant.
		if !bytes.Equal(first[i], otherEye[i]) {
			t.Errorf("constant buffer %d depends on the eye position", i)
		}
	}
	if len(first[0]) != CBMatricesSize || len(first[2]) != CBPerObjectSize {
		t.Errorf("constant buffer sizes = %d, %d", len(first[0]), len(first[2]))
	}
}

func TestFrameConstants(t *testing.T) {
	_, v := newTestVolume(t)
	defer v.Close()
	if err := v.InitMesh(200, 100, mesh.UnitCube()); err != nil {
		t.Fatalf("InitMesh() error = %v", err)
	}
	vp := cameraViewProj(200, 100)
	cam, light, per := v.frameConstants(vp)

	if cam.WorldViewProj.Transpose() != vp {
		t.Error("camera WorldViewProj is not the transposed view-projection")
	}
	if cam.WorldIT != linear.Identity() {
		t.Error("WorldIT of the identity world is not the identity")
	}
	if light.World != cam.World || light.WorldIT != cam.WorldIT {
		t.Error("light block does not share World and WorldIT with the camera block")
	}
	if light.WorldViewProj != per.ViewProjLS {
		t.Error("light WorldViewProj and ViewProjLS disagree for the identity world")
	}

	// ScreenToWorld undoes projection plus viewport mapping.
	p := linear.Vec3{0.5, 0.25, -1}
	clip := vp.TransformPoint(p)
	sx := (clip[0]/clip[3] + 1) * 100
	sy := (1 - clip[1]/clip[3]) * 50
	sz := clip[2] / clip[3]
	back := per.ScreenToWorld.Transpose().TransformPoint(linear.Vec3{sx, sy, sz})
	for i := range 3 {
		if d := back[i]/back[3] - p[i]; d > 5e-3 || d < -5e-3 {
			t.Fatalf("unprojected %v, want %v", back, p)
		}
	}

	// The light looks at the bound center from the default offset.
	center := per.ViewProjLS.Transpose().TransformPoint(v.Bound().Center)
	if math.Abs(float64(center[0])) > 1e-4 || math.Abs(float64(center[1])) > 1e-4 {
		t.Errorf("bound center in light clip space = %v, want on the axis", center)
	}
}

func TestDispatchGroups(t *testing.T) {
	tests := []struct {
		w, h, wantX, wantY uint32
	}{
		{256, 256, 8, 8},
		{100, 70, 3, 2},
		{31, 64, 0, 2},
	}
	for _, tt := range tests {
		x, y := DispatchGroups(tt.w, tt.h)
		if x != tt.wantX || y != tt.wantY {
			t.Errorf("DispatchGroups(%d, %d) = (%d, %d), want (%d, %d)", tt.w, tt.h, x, y, tt.wantX, tt.wantY)
		}
	}
}

func TestRenderDispatchTruncates(t *testing.T) {
	dev, v := newTestVolume(t, WithShadowMapSize(16))
	defer v.Close()
	if err := v.InitMesh(100, 70, mesh.UnitCube()); err != nil {
		t.Fatalf("InitMesh() error = %v", err)
	}
	_, wv := newOutput(t, dev, 100, 70)
	v.UpdateFrame(linear.Vec3{}, cameraViewProj(100, 70))
	if err := v.Render(wv); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if dev.Context().Index(soft.OpDispatch, 3, 2, 1) < 0 {
		t.Error("no Dispatch(3, 2, 1) recorded for a 100x70 output")
	}
}

func TestImportFailure(t *testing.T) {
	dev, v := newTestVolume(t)
	err := v.Init(64, 64, filepath.Join(t.TempDir(), "missing.obj"))
	if !errors.Is(err, ErrImport) {
		t.Fatalf("Init() error = %v, want ErrImport", err)
	}
	if res, _ := dev.LiveObjects(); res != 0 {
		t.Errorf("%d resources live after failed Init, want 0", res)
	}
	if err := v.Render(gpucore.InvalidID); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Render() error = %v, want ErrNotInitialized", err)
	}
	if err := v.RenderTest(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("RenderTest() error = %v, want ErrNotInitialized", err)
	}
	// UpdateFrame without buffers is a no-op.
	v.UpdateFrame(linear.Vec3{}, linear.Identity())
}

func TestRenderTest(t *testing.T) {
	const w, h = 64, 64
	dev, v := newTestVolume(t)
	defer v.Close()
	if err := v.InitMesh(w, h, mesh.UnitCube()); err != nil {
		t.Fatalf("InitMesh() error = %v", err)
	}
	rt, err := resource.NewRenderTarget(dev, resource.RenderTargetConfig{
		Label: "debug", Width: w, Height: h, Format: gpucore.FormatR8G8B8A8Unorm,
	})
	if err != nil {
		t.Fatalf("NewRenderTarget() error = %v", err)
	}
	defer rt.Close()
	tv, _ := rt.TargetView(0, 0)

	ctx := dev.Context()
	ctx.SetTargets([]gpucore.TargetView{tv}, gpucore.InvalidID)
	ctx.SetViewports(gpucore.NewViewport(w, h))
	v.UpdateFrame(linear.Vec3{}, cameraViewProj(w, h))
	if err := v.RenderTest(); err != nil {
		t.Fatalf("RenderTest() error = %v", err)
	}

	img, _ := dev.ReadSubresource(rt.ID(), 0)
	center := (h/2*w + w/2) * 4
	if img[center+3] != 255 {
		t.Errorf("center pixel = %v, want an opaque shade", img[center:center+4])
	}
	if ctx.Count(soft.OpDispatch) != 0 {
		t.Error("RenderTest dispatched the composite")
	}
}

func TestCloseReleasesResources(t *testing.T) {
	dev, v := newTestVolume(t)
	if err := v.InitMesh(32, 32, mesh.UnitCube()); err != nil {
		t.Fatalf("InitMesh() error = %v", err)
	}
	v.Close()
	if res, views := dev.LiveObjects(); res != 0 || views != 0 {
		t.Errorf("LiveObjects() after Close = (%d, %d), want (0, 0)", res, views)
	}
	if v.KBuffer() != nil || v.NumIndices() != 0 {
		t.Error("accessors still report resources after Close")
	}
}

func TestInitRecomputesNormals(t *testing.T) {
	// The file normal points along +x; the triangle lies in z = 0.
	path := filepath.Join(t.TempDir(), "tri.obj")
	obj := "v 0 0 0\nv 1 0 0\nv 0 1 0\nvn 1 0 0\nf 1//1 2//1 3//1\n"
	if err := os.WriteFile(path, []byte(obj), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	dev, v := newTestVolume(t)
	defer v.Close()
	if err := v.Init(32, 32, path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	data, err := dev.ReadSubresource(v.VertexBuffer().ID(), 0)
	if err != nil {
		t.Fatalf("ReadSubresource() error = %v", err)
	}
	for i := range 3 {
		nx := math.Float32frombits(binary.LittleEndian.Uint32(data[i*24+12:]))
		nz := math.Float32frombits(binary.LittleEndian.Uint32(data[i*24+20:]))
		if nx != 0 || math.Abs(float64(nz)) != 1 {
			t.Errorf("vertex %d normal = (%g, _, %g), want the face normal (0, 0, +-1)", i, nx, nz)
		}
	}
}

func TestInitMeshRejectsDegenerateBound(t *testing.T) {
	m, err := mesh.Decode(strings.NewReader("v 1 1 1\nv 1 1 1\nv 1 1 1\nf 1 2 3\n"), mesh.Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	dev, v := newTestVolume(t)
	if err := v.InitMesh(32, 32, m); !errors.Is(err, ErrImport) {
		t.Fatalf("InitMesh() error = %v, want ErrImport", err)
	}
	if res, _ := dev.LiveObjects(); res != 0 {
		t.Errorf("%d resources live after rejected mesh, want 0", res)
	}
	if err := v.RenderTest(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("RenderTest() error = %v, want ErrNotInitialized", err)
	}
}
