package resource

import (
	"fmt"

	"github.com/gogpu/sparsevolume/gpucore"
)

// RenderTargetConfig describes a render target.
type RenderTargetConfig struct {
	Label  string
	Width  uint32
	Height uint32

	// ArraySize is the slice count. Zero means 1.
	ArraySize uint32

	Format gpucore.Format

	// Mips is the mip count. Zero means 1. Any count other than 1 requests
	// mip generation.
	Mips uint32

	// Samples is the multisample count. Zero means 1.
	Samples uint32

	// Bind holds flags added to BindRenderTarget|BindShaderResource.
	// BindUnorderedAccess adds one write view per mip.
	Bind gpucore.BindFlags
}

// RenderTarget is a texture that can be drawn into. Target views are
// addressed by (slice, mip).
type RenderTarget struct {
	*Texture
	targets [][]gpucore.TargetView
}

// ResampleProgram is the shader pair Populate draws with: a vertex shader
// emitting a full-screen triangle and a pixel shader sampling the source.
type ResampleProgram struct {
	VertexShader gpucore.ShaderID
	PixelShader  gpucore.ShaderID
}

// NewRenderTarget creates a render target with one target view per slice
// and mip.
func NewRenderTarget(dev gpucore.Device, cfg RenderTargetConfig) (*RenderTarget, error) {
	return newRenderTarget(dev, cfg, false)
}

// NewRenderTargetArray creates a render target with one target view per
// mip, each covering every slice.
func NewRenderTargetArray(dev gpucore.Device, cfg RenderTargetConfig) (*RenderTarget, error) {
	return newRenderTarget(dev, cfg, true)
}

func newRenderTarget(dev gpucore.Device, cfg RenderTargetConfig, array bool) (*RenderTarget, error) {
	if cfg.Mips == 0 {
		cfg.Mips = 1
	}
	if cfg.Samples == 0 {
		cfg.Samples = 1
	}
	var misc gpucore.MiscFlags
	if cfg.Mips != 1 {
		misc |= gpucore.MiscGenerateMips
	}
	// Read views cover the full chain only.
	tex, err := newTexture2D(dev, TextureConfig{
		Label:     cfg.Label,
		Width:     cfg.Width,
		Height:    cfg.Height,
		ArraySize: cfg.ArraySize,
		Format:    cfg.Format,
		Bind:      gpucore.BindRenderTarget | gpucore.BindShaderResource | cfg.Bind,
		Mips:      cfg.Mips,
	}, cfg.Samples, misc, false)
	if err != nil {
		return nil, err
	}
	rt := &RenderTarget{Texture: tex}

	arraySize := tex.ArraySize()
	dim := gpucore.Texture2DViewDimension(arraySize, cfg.Samples)
	rows := arraySize
	if array {
		rows = 1
	}
	for slice := uint32(0); slice < rows; slice++ {
		row := make([]gpucore.TargetView, 0, cfg.Mips)
		for mip := uint32(0); mip < cfg.Mips; mip++ {
			desc := gpucore.ViewDesc{Dimension: dim, MipSlice: mip}
			if !array {
				desc.FirstArraySlice = slice
				desc.ArraySize = 1
			}
			tv, err := dev.CreateTargetView(tex.id, &desc)
			if err != nil {
				rt.targets = append(rt.targets, row)
				rt.Close()
				return nil, fmt.Errorf("resource: create target view %d/%d on %q: %w", slice, mip, cfg.Label, err)
			}
			row = append(row, tv)
		}
		rt.targets = append(rt.targets, row)
	}
	slogger().Debug("render target created",
		"label", cfg.Label, "slices", arraySize, "mips", cfg.Mips, "array", array)
	return rt, nil
}

// TargetView returns the target view of (slice, mip). Arrays created with
// NewRenderTargetArray have slice 0 only.
func (rt *RenderTarget) TargetView(slice, mip int) (gpucore.TargetView, error) {
	if slice < 0 || slice >= len(rt.targets) {
		return gpucore.InvalidID, rt.outOfRange("target slice", slice, len(rt.targets))
	}
	row := rt.targets[slice]
	if mip < 0 || mip >= len(row) {
		return gpucore.InvalidID, rt.outOfRange("target mip", mip, len(row))
	}
	return row[mip], nil
}

// ArraySize returns the number of target view rows.
func (rt *RenderTarget) ArraySize() int { return len(rt.targets) }

// MipLevels returns the number of target views in row slice, or 0 if slice
// is out of range.
func (rt *RenderTarget) MipLevels(slice int) int {
	if slice < 0 || slice >= len(rt.targets) {
		return 0
	}
	return len(rt.targets[slice])
}

// Populate resamples src into target view (slice, mip) with a full-screen
// draw. The bound targets and viewports are restored before returning.
func (rt *RenderTarget) Populate(ctx gpucore.Context, src gpucore.ReadView, prog ResampleProgram, slot uint32, slice, mip int) error {
	tv, err := rt.TargetView(slice, mip)
	if err != nil {
		return err
	}

	restore := gpucore.SaveState(ctx, gpucore.SaveTargets|gpucore.SaveViewports)
	defer restore()

	ctx.SetTargets([]gpucore.TargetView{tv}, gpucore.InvalidID)
	ctx.ClearTarget(tv, [4]float32{})
	ctx.SetViewports(gpucore.NewViewport(
		gpucore.MipExtent(rt.desc.Width, uint32(mip)),
		gpucore.MipExtent(rt.desc.Height, uint32(mip))))

	ctx.SetReadViews(gpucore.StagePixel, slot, src)
	ctx.SetTopology(gpucore.TopologyTriangleStrip)
	ctx.SetShader(gpucore.StageVertex, prog.VertexShader)
	ctx.SetShader(gpucore.StagePixel, prog.PixelShader)
	ctx.Draw(3, 0)

	ctx.SetReadViews(gpucore.StagePixel, slot, gpucore.InvalidID)
	ctx.SetShader(gpucore.StageVertex, gpucore.InvalidID)
	ctx.SetShader(gpucore.StagePixel, gpucore.InvalidID)
	slogger().Debug("render target populated", "label", rt.label, "slice", slice, "mip", mip)
	return nil
}

// Close releases the target views, then the texture.
func (rt *RenderTarget) Close() {
	if rt.Texture == nil || rt.closed {
		return
	}
	for _, row := range rt.targets {
		for _, tv := range row {
			rt.dev.ReleaseView(tv)
		}
	}
	rt.targets = nil
	rt.Texture.Close()
}
