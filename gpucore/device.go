package gpucore

import "errors"

// Device errors.
var (
	// ErrInvalidHandle is returned when an ID does not name a live object.
	ErrInvalidHandle = errors.New("gpucore: invalid handle")

	// ErrWrongDimension is returned when a descriptor does not match the
	// dimension of the resource it is applied to.
	ErrWrongDimension = errors.New("gpucore: resource dimension mismatch")

	// ErrMissingBindFlag is returned when a view is created on a resource
	// that was not created with the matching bind flag.
	ErrMissingBindFlag = errors.New("gpucore: resource lacks bind flag for view")

	// ErrSubresourceRange is returned for an out-of-range subresource.
	ErrSubresourceRange = errors.New("gpucore: subresource out of range")
)

// Device creates and releases device objects.
//
// A Device mirrors a D3D11-style device: resources are created with bind
// flags, and views of them are created separately. All IDs returned are
// nonzero on success. Release of an ID that is already released is a no-op.
//
// Implementations in this module:
//   - backend/soft: CPU reference device with call recording
//   - backend/wgpu: gogpu/wgpu HAL device
type Device interface {
	// CreateTexture allocates a 2D or 3D texture. initial holds one entry
	// per subresource, or is nil.
	CreateTexture(desc *TextureDesc, initial []SubresourceData) (ResourceID, error)

	// CreateBuffer allocates a buffer. initial may be nil; otherwise it is
	// copied into the new buffer.
	CreateBuffer(desc *BufferDesc, initial []byte) (ResourceID, error)

	// CreateReadView creates a shader-resource view.
	// Requires BindShaderResource on the resource.
	CreateReadView(res ResourceID, desc *ViewDesc) (ReadView, error)

	// CreateWriteView creates an unordered-access view.
	// Requires BindUnorderedAccess on the resource.
	CreateWriteView(res ResourceID, desc *ViewDesc) (WriteView, error)

	// CreateTargetView creates a render-target view.
	// Requires BindRenderTarget on the resource.
	CreateTargetView(res ResourceID, desc *ViewDesc) (TargetView, error)

	// CreateDepthView creates a depth-stencil view.
	// Requires BindDepthStencil on the resource.
	CreateDepthView(res ResourceID, desc *ViewDesc) (DepthView, error)

	// CreateShader creates a shader for one stage.
	CreateShader(desc *ShaderDesc) (ShaderID, error)

	// CreateInputLayout creates a vertex input layout validated against the
	// input signature of vsBytecode.
	CreateInputLayout(elements []InputElement, vsBytecode []byte) (InputLayoutID, error)

	// CreateRasterizerState creates a rasterizer state object.
	CreateRasterizerState(desc *RasterizerDesc) (RasterizerStateID, error)

	// ReleaseView destroys a view of any kind.
	ReleaseView(v View)

	// ReleaseResource destroys a texture or buffer. Views of it must have
	// been released first.
	ReleaseResource(res ResourceID)

	// DescribeTexture returns the creation descriptor of a texture.
	DescribeTexture(res ResourceID) (TextureDesc, error)

	// DescribeBuffer returns the creation descriptor of a buffer.
	DescribeBuffer(res ResourceID) (BufferDesc, error)

	// ViewResource returns the resource a view was created on.
	ViewResource(v View) (ResourceID, error)

	// ReadSubresource copies one subresource back to the CPU, waiting for
	// outstanding work that writes it. Texture rows are tightly packed.
	// For buffers, subresource must be 0.
	ReadSubresource(res ResourceID, subresource uint32) ([]byte, error)

	// ImmediateContext returns the device's single command context.
	ImmediateContext() Context
}

// Context is an immediate command context.
//
// Commands execute in issue order. State setters take effect for every
// following draw or dispatch until changed. Context methods do not return
// errors: a backend records its first failure and reports it from Flush.
type Context interface {
	// Targets returns the bound render-target views and depth view.
	Targets() ([]TargetView, DepthView)

	// SetTargets binds render targets and a depth view. Write views bound
	// for the pixel stage are unbound.
	SetTargets(targets []TargetView, depth DepthView)

	// SetTargetsAndWriteViews binds render targets, a depth view and pixel
	// stage write views starting at slot.
	SetTargetsAndWriteViews(targets []TargetView, depth DepthView, slot uint32, views []WriteView)

	// ClearTarget fills a render-target view with a color.
	ClearTarget(v TargetView, rgba [4]float32)

	// ClearDepth fills a depth view.
	ClearDepth(v DepthView, depth float32, stencil uint8)

	// ClearWriteViewUint fills every element of a write view with values,
	// one value per channel.
	ClearWriteViewUint(v WriteView, values [4]uint32)

	// Viewports returns the bound viewports.
	Viewports() []Viewport

	// SetViewports binds viewports. No arguments unbinds them.
	SetViewports(vps ...Viewport)

	// SetRasterizerState binds a rasterizer state. InvalidID restores the
	// default state (cull back, depth clip).
	SetRasterizerState(id RasterizerStateID)

	// SetInputLayout binds a vertex input layout.
	SetInputLayout(id InputLayoutID)

	// SetVertexBuffers binds vertex buffers starting at slot.
	SetVertexBuffers(slot uint32, buffers []ResourceID, strides, offsets []uint32)

	// SetIndexBuffer binds an index buffer. Format is FormatR32Uint or
	// FormatR16Unorm-sized indices.
	SetIndexBuffer(buf ResourceID, format Format, offset uint32)

	// SetTopology sets the primitive topology.
	SetTopology(t Topology)

	// SetShader binds a shader to a stage. InvalidID unbinds it.
	SetShader(stage ShaderStage, id ShaderID)

	// SetConstantBuffers binds constant buffers to a stage starting at slot.
	SetConstantBuffers(stage ShaderStage, slot uint32, buffers ...ResourceID)

	// SetReadViews binds read views to a stage starting at slot.
	SetReadViews(stage ShaderStage, slot uint32, views ...ReadView)

	// SetComputeWriteViews binds write views to the compute stage starting
	// at slot.
	SetComputeWriteViews(slot uint32, views ...WriteView)

	// UpdateSubresource replaces the contents of one subresource.
	UpdateSubresource(res ResourceID, subresource uint32, data []byte)

	// CopyResource copies the whole of src into dst. Both must have the
	// same size and dimension.
	CopyResource(dst, src ResourceID)

	// Draw issues a non-indexed draw.
	Draw(vertexCount, startVertex uint32)

	// DrawIndexed issues an indexed draw.
	DrawIndexed(indexCount, startIndex uint32, baseVertex int32)

	// Dispatch issues a compute dispatch of x*y*z thread groups.
	Dispatch(x, y, z uint32)

	// Flush submits recorded work and returns the first error recorded
	// since the previous Flush.
	Flush() error
}
