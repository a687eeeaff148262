package main

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"

	"github.com/mrjoshuak/go-openexr/exr"
	"golang.org/x/image/draw"

	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/sparsevolume/resource"
)

// readRGBA reads mip 0 of an RGBA8 texture.
func readRGBA(dev gpucore.Device, tex *resource.Texture) (*image.RGBA, error) {
	data, err := dev.ReadSubresource(tex.ID(), 0)
	if err != nil {
		return nil, err
	}
	w, h := int(tex.Width()), int(tex.Height())
	if len(data) != w*h*4 {
		return nil, fmt.Errorf("output readback: %d bytes for %dx%d", len(data), w, h)
	}
	return &image.RGBA{Pix: data, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}, nil
}

// scaleImage resizes img by scale with Catmull-Rom filtering.
func scaleImage(img *image.RGBA, scale float64) *image.RGBA {
	if scale == 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func writePNG(dev gpucore.Device, tex *resource.Texture, path string, scale float64) error {
	img, err := readRGBA(dev, tex)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, scaleImage(img, scale)); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// kbufferLayerImage decodes one k-buffer layer. Each texel holds the bits
// of a float depth; empty texels hold the 1.0 clear value and get zero
// alpha.
func kbufferLayerImage(data []byte, w, h int) *exr.RGBAImage {
	img := exr.NewRGBAImage(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			d := math.Float32frombits(binary.LittleEndian.Uint32(data[(y*w+x)*4:]))
			var a float32
			if d < 1 {
				a = 1
			}
			img.SetRGBA(x, y, d, d, d, a)
		}
	}
	return img
}

// writeKBufferEXR writes every layer of kbuf to prefix_<layer>.exr.
func writeKBufferEXR(dev gpucore.Device, kbuf *resource.Texture, prefix string) error {
	desc := kbuf.Desc()
	w, h := int(desc.Width), int(desc.Height)
	for layer := range desc.ArraySize() {
		data, err := dev.ReadSubresource(kbuf.ID(), gpucore.Subresource(0, layer, desc.Mips()))
		if err != nil {
			return fmt.Errorf("k-buffer layer %d: %w", layer, err)
		}
		if len(data) != w*h*4 {
			return fmt.Errorf("k-buffer layer %d: %d bytes for %dx%d", layer, len(data), w, h)
		}
		path := fmt.Sprintf("%s_%d.exr", prefix, layer)
		if err := exr.EncodeFile(path, kbufferLayerImage(data, w, h)); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	return nil
}
