package resource

import (
	"fmt"

	"github.com/gogpu/sparsevolume/gpucore"
)

// Buffer is a raw, typed or structured buffer with its views.
// A buffer has at most one read view and one write view.
type Buffer struct {
	views
	desc     gpucore.BufferDesc
	elements uint32
}

// RawBufferConfig describes a byte-address buffer.
type RawBufferConfig struct {
	Label     string
	ByteWidth uint32

	// Bind selects the views. Constant buffers pass BindConstantBuffer
	// alone and get no views.
	Bind gpucore.BindFlags

	InitialData []byte

	// WriteFlags are added to the write view flags. The raw flag is always
	// set.
	WriteFlags gpucore.WriteViewFlags

	Usage gpucore.Usage
}

// NewRawBuffer creates a byte-address buffer. Views reinterpret it as
// ByteWidth/4 R32 elements.
func NewRawBuffer(dev gpucore.Device, cfg RawBufferConfig) (*Buffer, error) {
	if cfg.ByteWidth == 0 {
		return nil, fmt.Errorf("%w: raw buffer %q has zero size", ErrInvalidConfig, cfg.Label)
	}
	desc := gpucore.BufferDesc{
		Label:     cfg.Label,
		ByteWidth: cfg.ByteWidth,
		Bind:      cfg.Bind,
		Usage:     cfg.Usage,
	}
	if cfg.Bind&(gpucore.BindShaderResource|gpucore.BindUnorderedAccess) != 0 {
		desc.Misc |= gpucore.MiscBufferAllowRawViews
	}
	n := cfg.ByteWidth / 4
	return newBuffer(dev, desc, cfg.InitialData, n,
		gpucore.ViewDesc{
			Format:      gpucore.FormatR32Typeless,
			Dimension:   gpucore.ViewDimensionBuffer,
			NumElements: n,
			Raw:         true,
		},
		gpucore.ViewDesc{
			Format:      gpucore.FormatR32Typeless,
			Dimension:   gpucore.ViewDimensionBuffer,
			NumElements: n,
			WriteFlags:  cfg.WriteFlags | gpucore.WriteViewRaw,
		})
}

// TypedBufferConfig describes a buffer of formatted elements.
type TypedBufferConfig struct {
	Label       string
	NumElements uint32

	// Stride is the element size. Zero means the format's element size.
	Stride uint32

	Format      gpucore.Format
	Bind        gpucore.BindFlags
	InitialData []byte
	WriteFlags  gpucore.WriteViewFlags
	Usage       gpucore.Usage
}

// NewTypedBuffer creates a buffer of NumElements elements of Format.
func NewTypedBuffer(dev gpucore.Device, cfg TypedBufferConfig) (*Buffer, error) {
	if cfg.Stride == 0 {
		cfg.Stride = cfg.Format.BytesPerElement()
	}
	if cfg.NumElements == 0 || cfg.Format == gpucore.FormatUnknown {
		return nil, fmt.Errorf("%w: typed buffer %q needs elements and a format", ErrInvalidConfig, cfg.Label)
	}
	desc := gpucore.BufferDesc{
		Label:     cfg.Label,
		ByteWidth: cfg.NumElements * cfg.Stride,
		Bind:      cfg.Bind,
		Usage:     cfg.Usage,
	}
	view := gpucore.ViewDesc{
		Format:      cfg.Format,
		Dimension:   gpucore.ViewDimensionBuffer,
		NumElements: cfg.NumElements,
	}
	wv := view
	wv.WriteFlags = cfg.WriteFlags
	return newBuffer(dev, desc, cfg.InitialData, cfg.NumElements, view, wv)
}

// StructuredBufferConfig describes a buffer of fixed-size structs.
type StructuredBufferConfig struct {
	Label       string
	NumElements uint32
	Stride      uint32
	Bind        gpucore.BindFlags
	InitialData []byte
	WriteFlags  gpucore.WriteViewFlags
	Usage       gpucore.Usage
}

// NewStructuredBuffer creates a structured buffer of NumElements structs
// of Stride bytes.
func NewStructuredBuffer(dev gpucore.Device, cfg StructuredBufferConfig) (*Buffer, error) {
	if cfg.NumElements == 0 || cfg.Stride == 0 {
		return nil, fmt.Errorf("%w: structured buffer %q needs elements and a stride", ErrInvalidConfig, cfg.Label)
	}
	desc := gpucore.BufferDesc{
		Label:               cfg.Label,
		ByteWidth:           cfg.NumElements * cfg.Stride,
		Bind:                cfg.Bind,
		Usage:               cfg.Usage,
		Misc:                gpucore.MiscBufferStructured,
		StructureByteStride: cfg.Stride,
	}
	view := gpucore.ViewDesc{
		Format:      gpucore.FormatUnknown,
		Dimension:   gpucore.ViewDimensionBuffer,
		NumElements: cfg.NumElements,
	}
	wv := view
	wv.WriteFlags = cfg.WriteFlags
	return newBuffer(dev, desc, cfg.InitialData, cfg.NumElements, view, wv)
}

func newBuffer(dev gpucore.Device, desc gpucore.BufferDesc, initial []byte, elements uint32, rv, wv gpucore.ViewDesc) (*Buffer, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	b := &Buffer{desc: desc, elements: elements}
	b.views = views{dev: dev, label: desc.Label}

	id, err := dev.CreateBuffer(&desc, initial)
	if err != nil {
		return nil, fmt.Errorf("resource: create buffer %q: %w", desc.Label, err)
	}
	b.id = id

	if desc.Bind.Has(gpucore.BindShaderResource) {
		if err := b.addRead(&rv); err != nil {
			b.Close()
			return nil, err
		}
	}
	if desc.Bind.Has(gpucore.BindUnorderedAccess) {
		if err := b.addWrite(&wv); err != nil {
			b.Close()
			return nil, err
		}
	}
	slogger().Debug("buffer created",
		"label", desc.Label, "bytes", desc.ByteWidth, "elements", elements, "bind", desc.Bind)
	return b, nil
}

// Desc returns the creation descriptor.
func (b *Buffer) Desc() gpucore.BufferDesc { return b.desc }

// ByteWidth returns the buffer size in bytes.
func (b *Buffer) ByteWidth() uint32 { return b.desc.ByteWidth }

// NumElements returns the element count the views were created with.
func (b *Buffer) NumElements() uint32 { return b.elements }

// Update replaces the whole buffer contents through ctx.
func (b *Buffer) Update(ctx gpucore.Context, data []byte) {
	ctx.UpdateSubresource(b.id, 0, data)
}

// NewReadbackBuffer creates a staging buffer with the byte width of src,
// suitable as a CopyResource destination for CPU readback.
func NewReadbackBuffer(dev gpucore.Device, src *Buffer) (*Buffer, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: readback of nil buffer", ErrInvalidConfig)
	}
	desc := gpucore.BufferDesc{
		Label:     src.label + ".readback",
		ByteWidth: src.desc.ByteWidth,
		Usage:     gpucore.UsageStaging,
	}
	return newBuffer(dev, desc, nil, src.elements, gpucore.ViewDesc{}, gpucore.ViewDesc{})
}

// ReadBack copies src into the staging buffer dst and returns its bytes.
func ReadBack(ctx gpucore.Context, dev gpucore.Device, dst, src *Buffer) ([]byte, error) {
	ctx.CopyResource(dst.id, src.id)
	if err := ctx.Flush(); err != nil {
		return nil, fmt.Errorf("resource: read back %q: %w", src.label, err)
	}
	data, err := dev.ReadSubresource(dst.id, 0)
	if err != nil {
		return nil, fmt.Errorf("resource: read back %q: %w", src.label, err)
	}
	return data, nil
}
