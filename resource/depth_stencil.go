package resource

import (
	"fmt"

	"github.com/gogpu/sparsevolume/gpucore"
)

// MapDepthFormat returns the typeless storage format and the shader-readable
// format for a depth format. D24S8 and D16 map to their own families; any
// other format is treated as 32-bit float depth.
func MapDepthFormat(f gpucore.Format) (tex, read gpucore.Format) {
	switch f {
	case gpucore.FormatD24UnormS8Uint:
		return gpucore.FormatR24G8Typeless, gpucore.FormatR24UnormX8Typeless
	case gpucore.FormatD16Unorm:
		return gpucore.FormatR16Typeless, gpucore.FormatR16Unorm
	default:
		return gpucore.FormatR32Typeless, gpucore.FormatR32Float
	}
}

// DepthStencilConfig describes a depth-stencil texture.
type DepthStencilConfig struct {
	Label  string
	Width  uint32
	Height uint32

	// ArraySize is the slice count. Zero means 1.
	ArraySize uint32

	// Format is the depth format; see MapDepthFormat.
	Format gpucore.Format

	// Bind holds flags added to BindDepthStencil. BindShaderResource adds
	// a read view in the mapped read format.
	Bind gpucore.BindFlags

	// Samples is the multisample count. Zero means 1.
	Samples uint32

	// Mips is the mip count. Zero means 1.
	Mips uint32
}

// DepthStencil is a depth texture with a depth view and a read-only depth
// view per mip.
type DepthStencil struct {
	views
	desc     gpucore.TextureDesc
	depth    []gpucore.DepthView
	readOnly []gpucore.DepthView
}

// NewDepthStencil creates a depth-stencil texture in typeless storage.
//
// The read-only depth view of each mip is flagged read-only depth, plus
// read-only stencil for D24S8. Without BindShaderResource there is nothing
// to read the depth through, so the read-only view is the depth view itself.
func NewDepthStencil(dev gpucore.Device, cfg DepthStencilConfig) (*DepthStencil, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: depth stencil %q has zero size %dx%d", ErrInvalidConfig, cfg.Label, cfg.Width, cfg.Height)
	}
	if cfg.ArraySize == 0 {
		cfg.ArraySize = 1
	}
	if cfg.Samples == 0 {
		cfg.Samples = 1
	}
	if cfg.Mips == 0 {
		cfg.Mips = 1
	}
	texFmt, readFmt := MapDepthFormat(cfg.Format)
	if err := checkReadable(cfg.Label, texFmt, gpucore.BindDepthStencil|cfg.Bind); err != nil {
		return nil, err
	}

	ds := &DepthStencil{desc: gpucore.TextureDesc{
		Label:            cfg.Label,
		Dimension:        gpucore.DimensionTexture2D,
		Width:            cfg.Width,
		Height:           cfg.Height,
		DepthOrArraySize: cfg.ArraySize,
		MipLevels:        cfg.Mips,
		SampleCount:      cfg.Samples,
		Format:           texFmt,
		Bind:             gpucore.BindDepthStencil | cfg.Bind,
	}}
	ds.views = views{dev: dev, label: cfg.Label}

	id, err := dev.CreateTexture(&ds.desc, nil)
	if err != nil {
		return nil, fmt.Errorf("resource: create depth stencil %q: %w", cfg.Label, err)
	}
	ds.id = id

	dim := gpucore.Texture2DViewDimension(cfg.ArraySize, cfg.Samples)
	readable := cfg.Bind.Has(gpucore.BindShaderResource)
	if readable {
		if err := ds.addRead(&gpucore.ViewDesc{Format: readFmt, Dimension: dim}); err != nil {
			ds.Close()
			return nil, err
		}
	}

	roFlags := gpucore.DepthReadOnly
	if cfg.Format == gpucore.FormatD24UnormS8Uint {
		roFlags |= gpucore.StencilReadOnly
	}
	for m := uint32(0); m < cfg.Mips; m++ {
		desc := gpucore.ViewDesc{Format: cfg.Format, Dimension: dim, MipSlice: m}
		dv, err := dev.CreateDepthView(id, &desc)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("resource: create depth view %d on %q: %w", m, cfg.Label, err)
		}
		ds.depth = append(ds.depth, dv)

		if !readable {
			ds.readOnly = append(ds.readOnly, dv)
			continue
		}
		desc.DepthFlags = roFlags
		ro, err := dev.CreateDepthView(id, &desc)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("resource: create read-only depth view %d on %q: %w", m, cfg.Label, err)
		}
		ds.readOnly = append(ds.readOnly, ro)
	}
	slogger().Debug("depth stencil created",
		"label", cfg.Label, "format", cfg.Format, "storage", texFmt, "mips", cfg.Mips, "readable", readable)
	return ds, nil
}

// DepthView returns the depth view of mip.
func (ds *DepthStencil) DepthView(mip int) (gpucore.DepthView, error) {
	if mip < 0 || mip >= len(ds.depth) {
		return gpucore.InvalidID, ds.outOfRange("depth view", mip, len(ds.depth))
	}
	return ds.depth[mip], nil
}

// ReadOnlyDepthView returns the read-only depth view of mip.
func (ds *DepthStencil) ReadOnlyDepthView(mip int) (gpucore.DepthView, error) {
	if mip < 0 || mip >= len(ds.readOnly) {
		return gpucore.InvalidID, ds.outOfRange("read-only depth view", mip, len(ds.readOnly))
	}
	return ds.readOnly[mip], nil
}

// MipLevels returns the number of depth views.
func (ds *DepthStencil) MipLevels() int { return len(ds.depth) }

// Desc returns the creation descriptor of the typeless storage.
func (ds *DepthStencil) Desc() gpucore.TextureDesc { return ds.desc }

// Close releases the depth views, then the read view and the texture.
func (ds *DepthStencil) Close() {
	if ds.closed {
		return
	}
	for i, dv := range ds.depth {
		if i < len(ds.readOnly) && ds.readOnly[i] != dv {
			ds.dev.ReleaseView(ds.readOnly[i])
		}
		ds.dev.ReleaseView(dv)
	}
	ds.depth, ds.readOnly = nil, nil
	ds.views.Close()
}
