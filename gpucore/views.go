package gpucore

import (
	"errors"
	"fmt"
)

// ErrViewFormat is returned when a view format does not fit the storage
// format of its resource, or a buffer view has no element size.
var ErrViewFormat = errors.New("gpucore: view format incompatible with resource")

// ResolveTextureView fills the zero fields of v from the texture it views
// and checks every range against desc. desc must carry resolved mip and
// array counts. mipRange selects the read-view form (MostDetailedMip and
// MipLevels); every other view kind addresses a single MipSlice.
func ResolveTextureView(desc *TextureDesc, v *ViewDesc, mipRange bool) error {
	if v.Dimension == ViewDimensionBuffer {
		return fmt.Errorf("%w: buffer view on texture %q", ErrWrongDimension, desc.Label)
	}
	if (v.Dimension == ViewDimensionTexture3D) != (desc.Dimension == DimensionTexture3D) {
		return fmt.Errorf("%w: %s view on %q", ErrWrongDimension, v.Dimension, desc.Label)
	}
	if v.Format == FormatUnknown {
		v.Format = desc.Format
	}
	if v.Format.BytesPerElement() != desc.Format.BytesPerElement() {
		return fmt.Errorf("%w: view format %s on %s storage", ErrViewFormat, v.Format, desc.Format)
	}

	mips, slices := desc.Mips(), desc.ArraySize()
	if mipRange {
		if v.MostDetailedMip >= mips {
			return fmt.Errorf("%w: mip %d of %d", ErrSubresourceRange, v.MostDetailedMip, mips)
		}
		if v.MipLevels == 0 {
			v.MipLevels = mips - v.MostDetailedMip
		}
		if v.MostDetailedMip+v.MipLevels > mips {
			return fmt.Errorf("%w: mips %d+%d of %d", ErrSubresourceRange, v.MostDetailedMip, v.MipLevels, mips)
		}
	} else if v.MipSlice >= mips {
		return fmt.Errorf("%w: mip %d of %d", ErrSubresourceRange, v.MipSlice, mips)
	}

	if desc.Dimension == DimensionTexture3D {
		dep := MipExtent(desc.Depth(), v.MipSlice)
		if v.WSize == 0 {
			v.WSize = dep - min(v.FirstWSlice, dep)
		}
		if v.FirstWSlice+v.WSize > dep {
			return fmt.Errorf("%w: depth slices %d+%d of %d", ErrSubresourceRange, v.FirstWSlice, v.WSize, dep)
		}
		v.FirstArraySlice, v.ArraySize = 0, 1
		return nil
	}
	if v.FirstArraySlice >= slices {
		return fmt.Errorf("%w: slice %d of %d", ErrSubresourceRange, v.FirstArraySlice, slices)
	}
	if v.ArraySize == 0 {
		v.ArraySize = slices - v.FirstArraySlice
	}
	if v.FirstArraySlice+v.ArraySize > slices {
		return fmt.Errorf("%w: slices %d+%d of %d", ErrSubresourceRange, v.FirstArraySlice, v.ArraySize, slices)
	}
	return nil
}

// ResolveBufferView fills the element range of a buffer view and checks it
// against desc. It returns the element size in bytes.
func ResolveBufferView(desc *BufferDesc, v *ViewDesc) (uint32, error) {
	if v.Dimension != ViewDimensionBuffer {
		return 0, fmt.Errorf("%w: %s view on buffer %q", ErrWrongDimension, v.Dimension, desc.Label)
	}
	stride := desc.StructureByteStride
	if v.Format != FormatUnknown {
		stride = v.Format.BytesPerElement()
	}
	if stride == 0 {
		return 0, fmt.Errorf("%w: buffer view on %q has no element size", ErrViewFormat, desc.Label)
	}
	if v.NumElements == 0 {
		v.NumElements = desc.ByteWidth/stride - min(v.FirstElement, desc.ByteWidth/stride)
	}
	if (v.FirstElement+v.NumElements)*stride > desc.ByteWidth {
		return 0, fmt.Errorf("%w: elements %d+%d of %d bytes", ErrSubresourceRange, v.FirstElement, v.NumElements, desc.ByteWidth)
	}
	return stride, nil
}
