package gpucore

import "fmt"

// Resource and view IDs
//
// These opaque IDs represent device objects. Each backend maintains a
// mapping between IDs and actual backend objects. IDs are uint64 to
// accommodate various backend handle sizes.

// ResourceID is an opaque handle to a texture or buffer allocation.
type ResourceID uint64

// ReadView is an opaque handle to a shader-resource view.
type ReadView uint64

// WriteView is an opaque handle to an unordered-access view.
type WriteView uint64

// TargetView is an opaque handle to a render-target view.
type TargetView uint64

// DepthView is an opaque handle to a depth-stencil view.
type DepthView uint64

// ShaderID is an opaque handle to a compiled shader.
type ShaderID uint64

// InputLayoutID is an opaque handle to a vertex input layout.
type InputLayoutID uint64

// RasterizerStateID is an opaque handle to a rasterizer state object.
type RasterizerStateID uint64

// InvalidID is the zero value, representing an invalid/null object.
// Binding a null view or resource unbinds the slot.
const InvalidID = 0

// View is implemented by every view handle type so that views of
// different kinds can be released through one device call.
type View interface {
	// ID returns the raw handle value.
	ID() uint64
}

// ID implements View.
func (v ReadView) ID() uint64 { return uint64(v) }

// ID implements View.
func (v WriteView) ID() uint64 { return uint64(v) }

// ID implements View.
func (v TargetView) ID() uint64 { return uint64(v) }

// ID implements View.
func (v DepthView) ID() uint64 { return uint64(v) }

// Format specifies the element layout of texture and buffer data.
// Typeless formats describe storage only; views reinterpret them.
type Format uint32

// Formats.
const (
	FormatUnknown Format = iota
	FormatR32G32B32A32Float
	FormatR32G32B32Float
	FormatR16G16B16A16Float
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR32Typeless
	FormatR32Float
	FormatR32Uint
	FormatR32Sint
	FormatR24G8Typeless
	FormatD24UnormS8Uint
	FormatR24UnormX8Typeless
	FormatR16Typeless
	FormatR16Unorm
	FormatD16Unorm
	FormatD32Float
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "Unknown"
	case FormatR32G32B32A32Float:
		return "R32G32B32A32_FLOAT"
	case FormatR32G32B32Float:
		return "R32G32B32_FLOAT"
	case FormatR16G16B16A16Float:
		return "R16G16B16A16_FLOAT"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatR32Typeless:
		return "R32_TYPELESS"
	case FormatR32Float:
		return "R32_FLOAT"
	case FormatR32Uint:
		return "R32_UINT"
	case FormatR32Sint:
		return "R32_SINT"
	case FormatR24G8Typeless:
		return "R24G8_TYPELESS"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case FormatR24UnormX8Typeless:
		return "R24_UNORM_X8_TYPELESS"
	case FormatR16Typeless:
		return "R16_TYPELESS"
	case FormatR16Unorm:
		return "R16_UNORM"
	case FormatD16Unorm:
		return "D16_UNORM"
	case FormatD32Float:
		return "D32_FLOAT"
	default:
		return fmt.Sprintf("Format(%d)", uint32(f))
	}
}

// BytesPerElement returns the size of one texel or buffer element.
// Returns 0 for FormatUnknown.
func (f Format) BytesPerElement() uint32 {
	switch f {
	case FormatR32G32B32A32Float:
		return 16
	case FormatR32G32B32Float:
		return 12
	case FormatR16G16B16A16Float:
		return 8
	case FormatR16Typeless, FormatR16Unorm, FormatD16Unorm:
		return 2
	case FormatUnknown:
		return 0
	default:
		return 4
	}
}

// IsDepth reports whether f is a depth or depth-stencil format.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD24UnormS8Uint, FormatD16Unorm, FormatD32Float:
		return true
	default:
		return false
	}
}

// IsTypeless reports whether f describes storage without an interpretation.
func (f Format) IsTypeless() bool {
	switch f {
	case FormatR32Typeless, FormatR24G8Typeless, FormatR16Typeless:
		return true
	default:
		return false
	}
}

// BindFlags is a bitmask specifying how a resource will be bound.
type BindFlags uint32

// Bind flags.
const (
	// BindVertexBuffer allows binding as a vertex buffer.
	BindVertexBuffer BindFlags = 1 << 0

	// BindIndexBuffer allows binding as an index buffer.
	BindIndexBuffer BindFlags = 1 << 1

	// BindConstantBuffer allows binding as a constant (uniform) buffer.
	BindConstantBuffer BindFlags = 1 << 2

	// BindShaderResource allows read views.
	BindShaderResource BindFlags = 1 << 3

	// BindRenderTarget allows target views.
	BindRenderTarget BindFlags = 1 << 5

	// BindDepthStencil allows depth views.
	BindDepthStencil BindFlags = 1 << 6

	// BindUnorderedAccess allows write views.
	BindUnorderedAccess BindFlags = 1 << 7
)

// Has reports whether all bits of flag are set.
func (b BindFlags) Has(flag BindFlags) bool { return b&flag == flag }

// Usage describes the expected CPU/GPU access pattern of a resource.
type Usage uint8

// Usages.
const (
	// UsageDefault is GPU read/write.
	UsageDefault Usage = iota

	// UsageImmutable is GPU read-only, initialized at creation.
	UsageImmutable

	// UsageDynamic is GPU read, CPU write.
	UsageDynamic

	// UsageStaging supports transfer to and from the CPU.
	UsageStaging
)

// MiscFlags carries uncommon resource options.
type MiscFlags uint32

// Misc flags.
const (
	// MiscGenerateMips requests automatic mip generation support.
	MiscGenerateMips MiscFlags = 1 << 0

	// MiscBufferAllowRawViews allows byte-address views on a buffer.
	MiscBufferAllowRawViews MiscFlags = 1 << 5

	// MiscBufferStructured marks a buffer of fixed-stride structures.
	MiscBufferStructured MiscFlags = 1 << 6
)

// WriteViewFlags modifies buffer write views.
type WriteViewFlags uint32

// Write view flags.
const (
	// WriteViewRaw makes a byte-address view. Requires FormatR32Typeless.
	WriteViewRaw WriteViewFlags = 1 << 0

	// WriteViewAppend adds an append/consume counter.
	WriteViewAppend WriteViewFlags = 1 << 1

	// WriteViewCounter adds a hidden structure counter.
	WriteViewCounter WriteViewFlags = 1 << 2
)

// DepthViewFlags marks aspects of a depth view as read-only.
type DepthViewFlags uint32

// Depth view flags.
const (
	// DepthReadOnly disables depth writes through the view.
	DepthReadOnly DepthViewFlags = 1 << 0

	// StencilReadOnly disables stencil writes through the view.
	StencilReadOnly DepthViewFlags = 1 << 1
)

// ResourceDimension is the kind of allocation behind a ResourceID.
type ResourceDimension uint8

// Resource dimensions.
const (
	DimensionUnknown ResourceDimension = iota
	DimensionBuffer
	DimensionTexture2D
	DimensionTexture3D
)

// ViewDimension selects how a view addresses its resource.
type ViewDimension uint8

// View dimensions.
const (
	ViewDimensionUnknown ViewDimension = iota
	ViewDimensionBuffer
	ViewDimensionTexture2D
	ViewDimensionTexture2DArray
	ViewDimensionTexture2DMS
	ViewDimensionTexture2DMSArray
	ViewDimensionTexture3D
)

// String returns the dimension name.
func (d ViewDimension) String() string {
	switch d {
	case ViewDimensionBuffer:
		return "Buffer"
	case ViewDimensionTexture2D:
		return "Texture2D"
	case ViewDimensionTexture2DArray:
		return "Texture2DArray"
	case ViewDimensionTexture2DMS:
		return "Texture2DMS"
	case ViewDimensionTexture2DMSArray:
		return "Texture2DMSArray"
	case ViewDimensionTexture3D:
		return "Texture3D"
	default:
		return "Unknown"
	}
}

// Texture2DViewDimension picks the 2D view dimension for an array size
// and sample count.
func Texture2DViewDimension(arraySize, samples uint32) ViewDimension {
	switch {
	case arraySize > 1 && samples > 1:
		return ViewDimensionTexture2DMSArray
	case arraySize > 1:
		return ViewDimensionTexture2DArray
	case samples > 1:
		return ViewDimensionTexture2DMS
	default:
		return ViewDimensionTexture2D
	}
}

// ShaderStage identifies a programmable pipeline stage.
type ShaderStage uint8

// Shader stages.
const (
	StageVertex ShaderStage = iota
	StagePixel
	StageCompute
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StagePixel:
		return "pixel"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("ShaderStage(%d)", uint8(s))
	}
}

// Topology is the primitive topology used by the input assembler.
type Topology uint8

// Topologies.
const (
	TopologyUndefined Topology = iota
	TopologyTriangleList
	TopologyTriangleStrip
)

// CullMode selects which triangle faces are discarded.
type CullMode uint8

// Cull modes.
const (
	CullBack CullMode = iota
	CullNone
	CullFront
)

// Subresource returns the flat subresource index of (mip, slice) for a
// resource with mipLevels mips.
func Subresource(mip, slice, mipLevels uint32) uint32 {
	return mip + slice*mipLevels
}

// MipExtent returns size >> mip clamped to 1.
func MipExtent(size, mip uint32) uint32 {
	if s := size >> mip; s > 0 {
		return s
	}
	return 1
}
