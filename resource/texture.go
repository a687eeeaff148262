package resource

import (
	"fmt"

	"github.com/gogpu/sparsevolume/gpucore"
)

// DefaultTextureBind is the bind set used when a texture config leaves
// Bind zero: sampled and writable from shaders.
const DefaultTextureBind = gpucore.BindShaderResource | gpucore.BindUnorderedAccess

// TextureConfig describes a 2D or 3D texture.
type TextureConfig struct {
	// Label is an optional debug label.
	Label string

	Width  uint32
	Height uint32

	// ArraySize is the slice count of a 2D texture. Zero means 1.
	ArraySize uint32

	// Depth is the depth of a 3D texture.
	Depth uint32

	Format gpucore.Format

	// Bind selects the views to create. Zero means DefaultTextureBind.
	Bind gpucore.BindFlags

	// Mips is the mip count. Zero means 1.
	Mips uint32

	// InitialData fills subresource 0 when non-nil.
	InitialData []byte

	// Stride is the byte size of one texel of InitialData.
	// Zero means the format's element size.
	Stride uint32

	Usage gpucore.Usage
}

func (c *TextureConfig) normalize() error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: texture %q has zero size %dx%d", ErrInvalidConfig, c.Label, c.Width, c.Height)
	}
	if c.Format == gpucore.FormatUnknown {
		return fmt.Errorf("%w: texture %q has no format", ErrInvalidConfig, c.Label)
	}
	if c.ArraySize == 0 {
		c.ArraySize = 1
	}
	if c.Depth == 0 {
		c.Depth = 1
	}
	if c.Bind == 0 {
		c.Bind = DefaultTextureBind
	}
	if err := checkReadable(c.Label, c.Format, c.Bind); err != nil {
		return err
	}
	if c.Mips == 0 {
		c.Mips = 1
	}
	if c.Stride == 0 {
		c.Stride = c.Format.BytesPerElement()
	}
	return nil
}

func (c *TextureConfig) initial(slicePitch bool) []gpucore.SubresourceData {
	if c.InitialData == nil {
		return nil
	}
	sd := gpucore.SubresourceData{Data: c.InitialData, RowPitch: c.Stride * c.Width}
	if slicePitch {
		sd.SlicePitch = sd.RowPitch * c.Height
	}
	return []gpucore.SubresourceData{sd}
}

// Texture is a 2D (optionally arrayed) or 3D texture with its views.
type Texture struct {
	views
	desc gpucore.TextureDesc
}

// NewTexture2D creates a 2D texture and, per Bind:
//   - BindShaderResource: one read view of the full chain, plus one read
//     view per mip when Mips > 1
//   - BindUnorderedAccess: one write view per mip
func NewTexture2D(dev gpucore.Device, cfg TextureConfig) (*Texture, error) {
	return newTexture2D(dev, cfg, 1, 0, true)
}

// newTexture2D creates a 2D texture. perMipReads adds the per-mip read
// views; without it only the full read view is created.
func newTexture2D(dev gpucore.Device, cfg TextureConfig, samples uint32, misc gpucore.MiscFlags, perMipReads bool) (*Texture, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	t := &Texture{desc: gpucore.TextureDesc{
		Label:            cfg.Label,
		Dimension:        gpucore.DimensionTexture2D,
		Width:            cfg.Width,
		Height:           cfg.Height,
		DepthOrArraySize: cfg.ArraySize,
		MipLevels:        cfg.Mips,
		SampleCount:      samples,
		Format:           cfg.Format,
		Bind:             cfg.Bind,
		Usage:            cfg.Usage,
		Misc:             misc,
	}}
	t.views = views{dev: dev, label: cfg.Label}

	id, err := dev.CreateTexture(&t.desc, cfg.initial(false))
	if err != nil {
		return nil, fmt.Errorf("resource: create texture %q: %w", cfg.Label, err)
	}
	t.id = id

	if err := t.createViews2D(cfg.Bind, cfg.Mips, perMipReads); err != nil {
		t.Close()
		return nil, err
	}
	slogger().Debug("texture2d created",
		"label", cfg.Label, "size", fmt.Sprintf("%dx%dx%d", cfg.Width, cfg.Height, cfg.ArraySize),
		"format", cfg.Format, "mips", cfg.Mips,
		"readViews", len(t.read), "writeViews", len(t.write))
	return t, nil
}

func (t *Texture) createViews2D(bind gpucore.BindFlags, mips uint32, perMipReads bool) error {
	arraySize := t.desc.ArraySize()
	if bind.Has(gpucore.BindShaderResource) {
		readMips := uint32(1)
		if perMipReads {
			readMips = mips
		}
		if err := t.createReadViews(gpucore.Texture2DViewDimension(arraySize, t.desc.Samples()), readMips); err != nil {
			return err
		}
	}
	if bind.Has(gpucore.BindUnorderedAccess) {
		dim := gpucore.Texture2DViewDimension(arraySize, 1)
		for m := uint32(0); m < max(mips, 1); m++ {
			if err := t.addWrite(&gpucore.ViewDesc{Dimension: dim, MipSlice: m}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Texture) createReadViews(dim gpucore.ViewDimension, mips uint32) error {
	if err := t.addRead(&gpucore.ViewDesc{Dimension: dim}); err != nil {
		return err
	}
	if mips <= 1 {
		return nil
	}
	for m := uint32(0); m < mips; m++ {
		if err := t.addRead(&gpucore.ViewDesc{Dimension: dim, MostDetailedMip: m, MipLevels: 1}); err != nil {
			return err
		}
	}
	return nil
}

// NewTexture3D creates a 3D texture. Views follow NewTexture2D, except that
// write view m covers depth slices [0, Depth>>m).
func NewTexture3D(dev gpucore.Device, cfg TextureConfig) (*Texture, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	t := &Texture{desc: gpucore.TextureDesc{
		Label:            cfg.Label,
		Dimension:        gpucore.DimensionTexture3D,
		Width:            cfg.Width,
		Height:           cfg.Height,
		DepthOrArraySize: cfg.Depth,
		MipLevels:        cfg.Mips,
		Format:           cfg.Format,
		Bind:             cfg.Bind,
		Usage:            cfg.Usage,
	}}
	t.views = views{dev: dev, label: cfg.Label}

	id, err := dev.CreateTexture(&t.desc, cfg.initial(true))
	if err != nil {
		return nil, fmt.Errorf("resource: create texture %q: %w", cfg.Label, err)
	}
	t.id = id

	if cfg.Bind.Has(gpucore.BindShaderResource) {
		if err := t.createReadViews(gpucore.ViewDimensionTexture3D, cfg.Mips); err != nil {
			t.Close()
			return nil, err
		}
	}
	if cfg.Bind.Has(gpucore.BindUnorderedAccess) {
		for m := uint32(0); m < max(cfg.Mips, 1); m++ {
			desc := gpucore.ViewDesc{Dimension: gpucore.ViewDimensionTexture3D, MipSlice: m, WSize: cfg.Depth >> m}
			if err := t.addWrite(&desc); err != nil {
				t.Close()
				return nil, err
			}
		}
	}
	slogger().Debug("texture3d created",
		"label", cfg.Label, "size", fmt.Sprintf("%dx%dx%d", cfg.Width, cfg.Height, cfg.Depth),
		"format", cfg.Format, "mips", cfg.Mips)
	return t, nil
}

// CreateSubReadViews creates, for every mip i >= 1, a read view covering
// mips i and up. Calling it again replaces nothing and returns nil. On
// failure no sub view is kept, so a later call starts over.
func (t *Texture) CreateSubReadViews() error {
	if len(t.sub) > 0 {
		return nil
	}
	dim := gpucore.ViewDimensionTexture3D
	if t.desc.Dimension == gpucore.DimensionTexture2D {
		dim = gpucore.Texture2DViewDimension(t.desc.ArraySize(), t.desc.Samples())
	}
	for m := uint32(1); m < max(t.desc.MipLevels, 1); m++ {
		rv, err := t.dev.CreateReadView(t.id, &gpucore.ViewDesc{Dimension: dim, MostDetailedMip: m})
		if err != nil {
			for _, done := range t.sub {
				t.dev.ReleaseView(done)
			}
			t.sub = nil
			return fmt.Errorf("resource: create sub read view %d on %q: %w", m, t.label, err)
		}
		t.sub = append(t.sub, rv)
	}
	return nil
}

// Desc returns the creation descriptor.
func (t *Texture) Desc() gpucore.TextureDesc { return t.desc }

// Width returns the width of mip 0.
func (t *Texture) Width() uint32 { return t.desc.Width }

// Height returns the height of mip 0.
func (t *Texture) Height() uint32 { return t.desc.Height }

// ArraySize returns the slice count (1 for 3D textures).
func (t *Texture) ArraySize() uint32 { return t.desc.ArraySize() }

// MipCount returns the number of mips.
func (t *Texture) MipCount() uint32 { return t.desc.MipLevels }
