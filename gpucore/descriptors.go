package gpucore

// TextureDesc describes a texture allocation.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Dimension is DimensionTexture2D or DimensionTexture3D.
	Dimension ResourceDimension

	// Width and Height are the size of mip 0 in texels.
	Width  uint32
	Height uint32

	// DepthOrArraySize is the depth of a 3D texture or the slice count of
	// a 2D texture. Zero is treated as 1.
	DepthOrArraySize uint32

	// MipLevels is the number of mips. Zero requests a full chain.
	MipLevels uint32

	// SampleCount is the multisample count. Zero is treated as 1.
	SampleCount uint32

	Format Format
	Bind   BindFlags
	Usage  Usage
	Misc   MiscFlags
}

// ArraySize returns the slice count of a 2D texture, or 1 for 3D.
func (d *TextureDesc) ArraySize() uint32 {
	if d.Dimension == DimensionTexture3D || d.DepthOrArraySize == 0 {
		return 1
	}
	return d.DepthOrArraySize
}

// Depth returns the depth of a 3D texture, or 1 for 2D.
func (d *TextureDesc) Depth() uint32 {
	if d.Dimension != DimensionTexture3D || d.DepthOrArraySize == 0 {
		return 1
	}
	return d.DepthOrArraySize
}

// Mips returns the resolved mip count.
func (d *TextureDesc) Mips() uint32 {
	if d.MipLevels > 0 {
		return d.MipLevels
	}
	n := uint32(1)
	for size := max(d.Width, d.Height, d.Depth()); size > 1; size >>= 1 {
		n++
	}
	return n
}

// Samples returns the resolved sample count.
func (d *TextureDesc) Samples() uint32 {
	if d.SampleCount == 0 {
		return 1
	}
	return d.SampleCount
}

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// ByteWidth is the buffer size in bytes.
	ByteWidth uint32

	Bind  BindFlags
	Usage Usage
	Misc  MiscFlags

	// StructureByteStride is the element size of a structured buffer.
	StructureByteStride uint32
}

// SubresourceData is initial data for one subresource.
type SubresourceData struct {
	Data []byte

	// RowPitch is the distance in bytes between rows.
	RowPitch uint32

	// SlicePitch is the distance in bytes between depth slices.
	SlicePitch uint32
}

// ViewDesc describes a view of a texture or buffer.
// Fields not meaningful for the view kind and dimension are ignored.
type ViewDesc struct {
	// Format reinterprets the resource. FormatUnknown inherits it.
	Format Format

	Dimension ViewDimension

	// MostDetailedMip and MipLevels select the mip range of a read view.
	// MipLevels 0 means every mip from MostDetailedMip on.
	MostDetailedMip uint32
	MipLevels       uint32

	// MipSlice selects the single mip of a write, target or depth view.
	MipSlice uint32

	// FirstArraySlice and ArraySize select the slice range.
	// ArraySize 0 means every slice from FirstArraySlice on.
	FirstArraySlice uint32
	ArraySize       uint32

	// FirstWSlice and WSize select the depth range of a 3D write view.
	FirstWSlice uint32
	WSize       uint32

	// FirstElement and NumElements select the element range of a buffer view.
	FirstElement uint32
	NumElements  uint32

	// Raw marks a byte-address buffer read view.
	Raw bool

	// WriteFlags modifies buffer write views.
	WriteFlags WriteViewFlags

	// DepthFlags marks depth view aspects as read-only.
	DepthFlags DepthViewFlags
}

// Viewport is a rasterizer viewport in pixels.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// NewViewport returns a viewport at the origin covering width x height with
// a [0,1] depth range.
func NewViewport(width, height uint32) Viewport {
	return Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
}

// RasterizerDesc describes a rasterizer state object.
type RasterizerDesc struct {
	Cull                  CullMode
	FrontCounterClockwise bool
	DepthClip             bool
}

// AppendAligned places an input element directly after the previous one.
const AppendAligned = ^uint32(0)

// InputElement describes one vertex attribute.
type InputElement struct {
	SemanticName      string
	SemanticIndex     uint32
	Format            Format
	InputSlot         uint32
	AlignedByteOffset uint32
}

// ShaderDesc describes a shader to create.
type ShaderDesc struct {
	// Label is an optional debug label.
	Label string

	Stage ShaderStage

	// EntryPoint is the entry function name inside the module.
	EntryPoint string

	// Source is WGSL text.
	Source string

	// Bytecode is the compiled SPIR-V module. Backends that consume SPIR-V
	// use it in preference to Source.
	Bytecode []byte
}

// ResolveOffsets returns elements with AppendAligned offsets replaced by
// packed offsets, and the stride of each input slot.
func ResolveOffsets(elements []InputElement) ([]InputElement, map[uint32]uint32) {
	out := make([]InputElement, len(elements))
	next := make(map[uint32]uint32)
	for i, e := range elements {
		if e.AlignedByteOffset == AppendAligned {
			e.AlignedByteOffset = next[e.InputSlot]
		}
		next[e.InputSlot] = e.AlignedByteOffset + e.Format.BytesPerElement()
		out[i] = e
	}
	return out, next
}
