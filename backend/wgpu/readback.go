package wgpu

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// copyRowAlignment is the WebGPU alignment of BytesPerRow in texture to
// buffer copies.
const copyRowAlignment = 256

// ReadSubresource implements gpucore.Device. It submits pending work and
// waits for the GPU before copying through a mappable staging buffer.
func (d *Device) ReadSubresource(res gpucore.ResourceID, subresource uint32) ([]byte, error) {
	if b, ok := d.bufferRec(res); ok {
		if subresource != 0 {
			return nil, fmt.Errorf("%w: buffer subresource %d", gpucore.ErrSubresourceRange, subresource)
		}
		return d.readBuffer(b)
	}
	t, ok := d.textureRec(res)
	if !ok {
		return nil, fmt.Errorf("%w: resource %d", gpucore.ErrInvalidHandle, res)
	}
	if subresource >= t.desc.MipLevels*t.desc.ArraySize() {
		return nil, fmt.Errorf("%w: subresource %d of %q", gpucore.ErrSubresourceRange, subresource, t.desc.Label)
	}
	return d.readTexture(t, subresource)
}

func (d *Device) readBuffer(b *buffer) ([]byte, error) {
	if b.desc.Usage == gpucore.UsageStaging {
		if err := d.ctx.wait(); err != nil {
			return nil, err
		}
		return d.mapCopy(b.raw, b.size, int(b.desc.ByteWidth))
	}

	staging, err := d.stagingBuffer(b.desc.Label, b.size)
	if err != nil {
		return nil, err
	}
	defer d.device.DestroyBuffer(staging)
	enc, err := d.ctx.encoderFor()
	if err != nil {
		return nil, err
	}
	enc.CopyBufferToBuffer(b.raw, staging, []hal.BufferCopy{{Size: b.size}})
	if err := d.ctx.wait(); err != nil {
		return nil, err
	}
	return d.mapCopy(staging, b.size, int(b.desc.ByteWidth))
}

func (d *Device) readTexture(t *texture, sub uint32) ([]byte, error) {
	if t.format == gputypes.TextureFormatDepth24PlusStencil8 {
		return nil, fmt.Errorf("%w: readback of %s", ErrUnsupported, t.format)
	}
	mip, slice := sub%t.desc.MipLevels, sub/t.desc.MipLevels
	w := gpucore.MipExtent(t.desc.Width, mip)
	h := gpucore.MipExtent(t.desc.Height, mip)
	depth := gpucore.MipExtent(t.desc.Depth(), mip)
	row := w * t.desc.Format.BytesPerElement()
	if row == 0 {
		return nil, fmt.Errorf("%w: readback of %s", ErrUnsupported, t.desc.Format)
	}
	pitch := align(row, copyRowAlignment)
	size := uint64(pitch) * uint64(h) * uint64(depth)

	staging, err := d.stagingBuffer(t.desc.Label, size)
	if err != nil {
		return nil, err
	}
	defer d.device.DestroyBuffer(staging)

	aspect := gputypes.TextureAspectAll
	if isDepthFormat(t.format) {
		aspect = gputypes.TextureAspectDepthOnly
	}
	enc, err := d.ctx.encoderFor()
	if err != nil {
		return nil, err
	}
	enc.CopyTextureToBuffer(t.raw, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: t.raw, MipLevel: mip, Origin: hal.Origin3D{Z: slice}, Aspect: aspect},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: depth},
	}})
	if err := d.ctx.wait(); err != nil {
		return nil, err
	}
	padded, err := d.mapCopy(staging, size, int(size))
	if err != nil {
		return nil, err
	}
	if pitch == row {
		return padded, nil
	}
	out := make([]byte, 0, int(row*h*depth))
	for r := range h * depth {
		off := r * pitch
		out = append(out, padded[off:off+row]...)
	}
	return out, nil
}

func (d *Device) stagingBuffer(label string, size uint64) (hal.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create readback buffer for %q: %w", label, err)
	}
	return buf, nil
}

// mapCopy maps size bytes of buf and returns a copy of the first n.
func (d *Device) mapCopy(buf hal.Buffer, size uint64, n int) ([]byte, error) {
	m, err := d.device.MapBuffer(buf, 0, size)
	if err != nil {
		return nil, fmt.Errorf("wgpu: map readback buffer: %w", err)
	}
	defer func() {
		if err := d.device.UnmapBuffer(buf); err != nil {
			slogger().Warn("wgpu: unmap readback buffer", "err", err)
		}
	}()
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(m.Ptr), size))
	return out, nil
}
