package sparsevolume

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/sparsevolume/internal/linear"
	"github.com/gogpu/sparsevolume/mesh"
	"github.com/gogpu/sparsevolume/pipeline"
	"github.com/gogpu/sparsevolume/resource"
)

// Errors returned by Volume.
var (
	// ErrImport is returned by Init when the mesh cannot be imported.
	ErrImport = errors.New("sparsevolume: mesh import failed")

	// ErrNotInitialized is returned by Render and RenderTest before a
	// successful Init.
	ErrNotInitialized = errors.New("sparsevolume: not initialized")
)

// kbufferClear is the sentinel every k-buffer layer starts a frame with,
// math.Float32bits(1.0): the far plane.
var kbufferClear = [4]uint32{0x3f800000, 0x3f800000, 0x3f800000, 0x3f800000}

// GroupSize is the pixel edge covered by one composite thread group.
const GroupSize = 32

// Volume renders one mesh as a translucent volume.
//
// Each frame peels the mesh into a light-space k-buffer, then a view-space
// k-buffer, and composites both in a compute pass. The four phases always
// run in that order.
//
// A Volume is not safe for concurrent use; it drives the device's single
// immediate context.
type Volume struct {
	dev  gpucore.Device
	ctx  gpucore.Context
	reg  *pipeline.Registry
	opts options

	width, height uint32

	vertexBuffer *resource.Buffer
	indexBuffer  *resource.Buffer
	stride       uint32
	numIndices   uint32
	bound        mesh.Sphere

	cbMatrices   *resource.Buffer
	cbMatricesLS *resource.Buffer
	cbPerObject  *resource.Buffer

	kbuffer   *resource.Texture
	kbufferLS *resource.Texture

	layout gpucore.InputLayoutID
}

// New returns a Volume drawing on dev with the shaders of reg. reg must be
// loaded before Init.
func New(dev gpucore.Device, reg *pipeline.Registry, opts ...Option) *Volume {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	trackDevice(dev)
	return &Volume{
		dev:  dev,
		ctx:  dev.ImmediateContext(),
		reg:  reg,
		opts: o,
	}
}

func (v *Volume) logger() *slog.Logger {
	if v.opts.logger != nil {
		return v.opts.logger
	}
	return Logger()
}

// Init imports the mesh at assetPath and allocates every per-object
// resource for a width x height output.
//
// Normals are always rebuilt from the faces; file normals are ignored. An
// import failure is logged and returned wrapping ErrImport; the volume then
// stays uninitialized.
func (v *Volume) Init(width, height uint32, assetPath string) error {
	m, err := mesh.LoadWithOptions(assetPath, mesh.Options{RecomputeNormals: true})
	if err != nil {
		v.logger().Warn("sparsevolume: mesh import failed", "path", assetPath, "err", err)
		return fmt.Errorf("%w: %w", ErrImport, err)
	}
	return v.InitMesh(width, height, m)
}

// InitMesh is Init with an already imported mesh.
func (v *Volume) InitMesh(width, height uint32, m *mesh.Mesh) error {
	if m == nil || m.NumIndices() == 0 {
		return fmt.Errorf("%w: empty mesh", ErrImport)
	}
	if !(m.Bound.Radius > 0) {
		return fmt.Errorf("%w: degenerate mesh bound (radius %g)", ErrImport, m.Bound.Radius)
	}
	v.Close()
	v.width, v.height = width, height

	if err := v.createGeometry(m); err != nil {
		v.Close()
		return err
	}
	if err := v.createConstantBuffers(); err != nil {
		v.Close()
		return err
	}
	if err := v.createKBuffers(); err != nil {
		v.Close()
		return err
	}
	layout, err := v.reg.InputLayout(v.dev, pipeline.VSBasePass, pipeline.VertexFormatPositionNormal)
	if err != nil {
		v.Close()
		return fmt.Errorf("sparsevolume: %w", err)
	}
	v.layout = layout

	v.logger().Info("sparsevolume: initialized",
		"width", width, "height", height,
		"vertices", m.NumVertices(), "indices", v.numIndices,
		"k_layers", v.opts.kLayers, "shadow_map", v.opts.shadowMapSize)
	return nil
}

func (v *Volume) createGeometry(m *mesh.Mesh) error {
	vb, err := resource.NewRawBuffer(v.dev, resource.RawBufferConfig{
		Label:       "volume.vertices",
		ByteWidth:   uint32(len(m.Vertices)),
		Bind:        gpucore.BindVertexBuffer,
		InitialData: m.Vertices,
		Usage:       gpucore.UsageImmutable,
	})
	if err != nil {
		return fmt.Errorf("sparsevolume: vertex buffer: %w", err)
	}
	v.vertexBuffer = vb

	ib, err := resource.NewRawBuffer(v.dev, resource.RawBufferConfig{
		Label:       "volume.indices",
		ByteWidth:   uint32(4 * m.NumIndices()),
		Bind:        gpucore.BindIndexBuffer,
		InitialData: m.IndexBytes(),
		Usage:       gpucore.UsageImmutable,
	})
	if err != nil {
		return fmt.Errorf("sparsevolume: index buffer: %w", err)
	}
	v.indexBuffer = ib

	v.stride = m.VertexStride()
	v.numIndices = uint32(m.NumIndices())
	v.bound = m.Bound
	return nil
}

func (v *Volume) createConstantBuffers() error {
	cbs := []struct {
		dst   **resource.Buffer
		label string
		size  uint32
	}{
		{&v.cbMatrices, "volume.cb_matrices", CBMatricesSize},
		{&v.cbMatricesLS, "volume.cb_matrices_ls", CBMatricesSize},
		{&v.cbPerObject, "volume.cb_per_object", CBPerObjectSize},
	}
	for _, cb := range cbs {
		b, err := resource.NewRawBuffer(v.dev, resource.RawBufferConfig{
			Label:     cb.label,
			ByteWidth: cb.size,
			Bind:      gpucore.BindConstantBuffer,
		})
		if err != nil {
			return fmt.Errorf("sparsevolume: constant buffer: %w", err)
		}
		*cb.dst = b
	}
	return nil
}

func (v *Volume) createKBuffers() error {
	kb, err := resource.NewTexture2D(v.dev, resource.TextureConfig{
		Label:     "volume.kbuffer",
		Width:     v.width,
		Height:    v.height,
		ArraySize: v.opts.kLayers,
		Format:    gpucore.FormatR32Uint,
	})
	if err != nil {
		return fmt.Errorf("sparsevolume: k-buffer: %w", err)
	}
	v.kbuffer = kb

	ls, err := resource.NewTexture2D(v.dev, resource.TextureConfig{
		Label:     "volume.kbuffer_ls",
		Width:     v.opts.shadowMapSize,
		Height:    v.opts.shadowMapSize,
		ArraySize: v.opts.kLayers,
		Format:    gpucore.FormatR32Uint,
	})
	if err != nil {
		return fmt.Errorf("sparsevolume: light k-buffer: %w", err)
	}
	v.kbufferLS = ls
	return nil
}

// UpdateFrame uploads the transforms for the next frame. viewProj is the
// camera view-projection matrix in row-vector convention. The eye position
// is accepted for interface stability and not used.
func (v *Volume) UpdateFrame(_ linear.Vec3, viewProj linear.Matrix) {
	cam, light, perObject := v.frameConstants(viewProj)
	if v.cbMatrices != nil {
		v.cbMatrices.Update(v.ctx, cam.Bytes())
	}
	if v.cbMatricesLS != nil {
		v.cbMatricesLS.Update(v.ctx, light.Bytes())
	}
	if v.cbPerObject != nil {
		v.cbPerObject.Update(v.ctx, perObject.Bytes())
	}
}

// frameConstants derives the three constant blocks of a frame. Matrices
// are transposed for upload except WorldIT, which goes up as the plain
// inverse of World.
func (v *Volume) frameConstants(viewProj linear.Matrix) (cam, light CBMatrices, perObject CBPerObject) {
	world := linear.Identity()
	cam = CBMatrices{
		WorldViewProj: world.Mul(viewProj).Transpose(),
		World:         world.Transpose(),
		WorldIT:       world.Inverse(),
	}

	center := v.bound.Center
	lightPos := center.Add(v.opts.lightOffset)
	viewLS := linear.LookAtLH(lightPos, center, linear.Vec3{0, 1, 0})
	extent := 3 * v.bound.Radius
	projLS := linear.OrthographicLH(extent, extent, v.opts.zNear, v.opts.zFar)
	viewProjLS := viewLS.Mul(projLS)

	light = cam
	light.WorldViewProj = world.Mul(viewProjLS).Transpose()

	screen := viewProj.Mul(toScreen(float32(v.width), float32(v.height)))
	perObject = CBPerObject{
		ViewProjLS:    viewProjLS.Transpose(),
		ScreenToWorld: screen.Inverse().Transpose(),
	}
	return cam, light, perObject
}

// Render draws one frame into output, a 2D write view of the output size.
// It runs the light-space peel, the view-space peel and the composite, then
// flushes the context.
func (v *Volume) Render(output gpucore.WriteView) error {
	if !v.initialized() {
		return ErrNotInitialized
	}
	if err := v.depthPeelLightSpace(); err != nil {
		return err
	}
	if err := v.depthPeel(); err != nil {
		return err
	}
	if err := v.composite(output); err != nil {
		return err
	}
	if err := v.ctx.Flush(); err != nil {
		return fmt.Errorf("sparsevolume: render: %w", err)
	}
	return nil
}

// RenderTest draws the mesh shaded by depth into the bound render target,
// skipping the k-buffers.
func (v *Volume) RenderTest() error {
	if !v.initialized() {
		return ErrNotInitialized
	}
	vs, err := v.reg.VertexShader(pipeline.VSBasePass)
	if err != nil {
		return fmt.Errorf("sparsevolume: %w", err)
	}
	ps, err := v.reg.PixelShader(pipeline.PSTest)
	if err != nil {
		return fmt.Errorf("sparsevolume: %w", err)
	}

	v.ctx.SetRasterizerState(v.reg.CullNone())
	v.ctx.SetConstantBuffers(gpucore.StageVertex, 0, v.cbMatrices.ID())
	v.setInputAssembly()
	v.ctx.SetShader(gpucore.StageVertex, vs)
	v.ctx.SetShader(gpucore.StagePixel, ps)
	v.ctx.DrawIndexed(v.numIndices, 0, 0)
	v.ctx.SetInputLayout(gpucore.InvalidID)
	v.ctx.SetRasterizerState(gpucore.InvalidID)

	if err := v.ctx.Flush(); err != nil {
		return fmt.Errorf("sparsevolume: render test: %w", err)
	}
	return nil
}

func (v *Volume) initialized() bool {
	return v.vertexBuffer != nil && v.kbuffer != nil && v.kbufferLS != nil && v.cbPerObject != nil
}

func (v *Volume) setInputAssembly() {
	v.ctx.SetInputLayout(v.layout)
	v.ctx.SetVertexBuffers(0, []gpucore.ResourceID{v.vertexBuffer.ID()}, []uint32{v.stride}, []uint32{0})
	v.ctx.SetIndexBuffer(v.indexBuffer.ID(), gpucore.FormatR32Uint, 0)
	v.ctx.SetTopology(gpucore.TopologyTriangleList)
}

// depthPeelLightSpace peels the mesh as seen from the light into the
// shadow-map sized k-buffer.
func (v *Volume) depthPeelLightSpace() error {
	vp := gpucore.NewViewport(v.opts.shadowMapSize, v.opts.shadowMapSize)
	return v.peel("light", v.kbufferLS, v.cbMatricesLS, &vp)
}

// depthPeel peels the mesh as seen from the camera. The caller's viewport
// stays in effect.
func (v *Volume) depthPeel() error {
	return v.peel("view", v.kbuffer, v.cbMatrices, nil)
}

func (v *Volume) peel(pass string, kbuf *resource.Texture, cb *resource.Buffer, vp *gpucore.Viewport) error {
	wv, err := kbuf.WriteView(0)
	if err != nil {
		return fmt.Errorf("sparsevolume: %s peel: %w", pass, err)
	}
	vs, err := v.reg.VertexShader(pipeline.VSBasePass)
	if err != nil {
		return fmt.Errorf("sparsevolume: %s peel: %w", pass, err)
	}
	ps, err := v.reg.PixelShader(pipeline.PSDepthPeel)
	if err != nil {
		return fmt.Errorf("sparsevolume: %s peel: %w", pass, err)
	}
	v.logger().Debug("sparsevolume: depth peel", "pass", pass, "layers", kbuf.ArraySize())

	restore := gpucore.SaveState(v.ctx, gpucore.SaveTargets|gpucore.SaveViewports)
	defer restore()

	v.ctx.SetTargetsAndWriteViews(nil, gpucore.InvalidID, 0, []gpucore.WriteView{wv})
	if vp != nil {
		v.ctx.SetViewports(*vp)
	}
	v.ctx.SetRasterizerState(v.reg.CullNone())
	v.ctx.ClearWriteViewUint(wv, kbufferClear)
	v.ctx.SetConstantBuffers(gpucore.StageVertex, 0, cb.ID())
	v.setInputAssembly()
	v.ctx.SetShader(gpucore.StageVertex, vs)
	v.ctx.SetShader(gpucore.StagePixel, ps)
	v.ctx.DrawIndexed(v.numIndices, 0, 0)

	v.ctx.SetInputLayout(gpucore.InvalidID)
	v.ctx.SetRasterizerState(gpucore.InvalidID)
	return nil
}

// composite shades the output from both k-buffers.
func (v *Volume) composite(output gpucore.WriteView) error {
	res, err := v.dev.ViewResource(output)
	if err != nil {
		return fmt.Errorf("sparsevolume: composite output: %w", err)
	}
	desc, err := v.dev.DescribeTexture(res)
	if err != nil {
		return fmt.Errorf("sparsevolume: composite output: %w", err)
	}
	cs, err := v.reg.ComputeShader(pipeline.CSRender)
	if err != nil {
		return fmt.Errorf("sparsevolume: composite: %w", err)
	}

	gx, gy := DispatchGroups(desc.Width, desc.Height)
	v.logger().Debug("sparsevolume: composite", "groups_x", gx, "groups_y", gy)

	v.ctx.SetComputeWriteViews(0, output)
	v.ctx.SetReadViews(gpucore.StageCompute, 0, v.kbuffer.FullReadView(), v.kbufferLS.FullReadView())
	v.ctx.SetConstantBuffers(gpucore.StageCompute, 0, v.cbPerObject.ID())
	v.ctx.SetShader(gpucore.StageCompute, cs)
	v.ctx.Dispatch(gx, gy, 1)

	v.ctx.SetReadViews(gpucore.StageCompute, 0, gpucore.InvalidID, gpucore.InvalidID)
	v.ctx.SetComputeWriteViews(0, gpucore.InvalidID)
	return nil
}

// DispatchGroups returns the composite thread-group counts for a
// width x height output: (width>>5, height>>5). The counts truncate, so
// the last partial group row and column of a size that is not a multiple
// of 32 are not shaded.
func DispatchGroups(width, height uint32) (x, y uint32) {
	return width / GroupSize, height / GroupSize
}

// VertexStride returns the byte size of one vertex, or 0 before Init.
func (v *Volume) VertexStride() uint32 { return v.stride }

// NumIndices returns the index count of the mesh, or 0 before Init.
func (v *Volume) NumIndices() uint32 { return v.numIndices }

// Bound returns the bounding sphere of the mesh.
func (v *Volume) Bound() mesh.Sphere { return v.bound }

// KBuffer returns the view-space k-buffer, or nil before Init.
func (v *Volume) KBuffer() *resource.Texture { return v.kbuffer }

// LightKBuffer returns the light-space k-buffer, or nil before Init.
func (v *Volume) LightKBuffer() *resource.Texture { return v.kbufferLS }

// VertexBuffer returns the vertex buffer, or nil before Init.
func (v *Volume) VertexBuffer() *resource.Buffer { return v.vertexBuffer }

// IndexBuffer returns the index buffer, or nil before Init.
func (v *Volume) IndexBuffer() *resource.Buffer { return v.indexBuffer }

// Close releases every resource the volume owns. The volume can be
// initialized again afterwards.
func (v *Volume) Close() {
	for _, b := range []**resource.Buffer{&v.vertexBuffer, &v.indexBuffer, &v.cbMatrices, &v.cbMatricesLS, &v.cbPerObject} {
		if *b != nil {
			(*b).Close()
			*b = nil
		}
	}
	for _, t := range []**resource.Texture{&v.kbuffer, &v.kbufferLS} {
		if *t != nil {
			(*t).Close()
			*t = nil
		}
	}
	v.layout = gpucore.InvalidID
	v.stride, v.numIndices = 0, 0
}
