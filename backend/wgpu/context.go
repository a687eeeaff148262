package wgpu

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// ErrUnboundState is returned when a draw or dispatch needs state that is
// not bound.
var ErrUnboundState = errors.New("wgpu: required state not bound")

// Context is the immediate context of a wgpu Device.
//
// State setters only record state. Each draw, dispatch and target clear is
// encoded as its own pass on a pending command encoder, which is submitted
// before any queue write and on Flush. Flush waits for the GPU.
type Context struct {
	dev *Device
	err error

	encoder  hal.CommandEncoder
	retired  []hal.CommandEncoder
	inflight []hal.CommandBuffer
	groups   []hal.BindGroup
	dummy    *dummyTarget
	passes   int

	targets   []gpucore.TargetView
	depth     gpucore.DepthView
	psWrites  map[uint32]gpucore.WriteView
	viewports []gpucore.Viewport

	raster   gpucore.RasterizerStateID
	layout   gpucore.InputLayoutID
	vbs      map[uint32]vertexBinding
	ib       indexBinding
	topology gpucore.Topology

	shaders  [3]gpucore.ShaderID
	cbs      [3]map[uint32]gpucore.ResourceID
	reads    [3]map[uint32]gpucore.ReadView
	csWrites map[uint32]gpucore.WriteView
}

type vertexBinding struct {
	buf    gpucore.ResourceID
	stride uint32
	offset uint32
}

type indexBinding struct {
	buf    gpucore.ResourceID
	format gpucore.Format
	offset uint32
}

// dummyTarget is the write-masked color attachment of passes that bind
// only write views; WebGPU needs at least one attachment per render pass.
type dummyTarget struct {
	width, height uint32
	tex           hal.Texture
	view          hal.TextureView
}

func newContext(d *Device) *Context {
	c := &Context{
		dev:      d,
		psWrites: make(map[uint32]gpucore.WriteView),
		vbs:      make(map[uint32]vertexBinding),
		csWrites: make(map[uint32]gpucore.WriteView),
	}
	for i := range c.cbs {
		c.cbs[i] = make(map[uint32]gpucore.ResourceID)
		c.reads[i] = make(map[uint32]gpucore.ReadView)
	}
	return c
}

// Passes returns the number of passes encoded since the device was created.
func (c *Context) Passes() int { return c.passes }

// fail records the first error since the last Flush.
func (c *Context) fail(err error) {
	if c.err == nil {
		c.err = err
		slogger().Debug("wgpu: context error recorded", "err", err)
	}
}

// encoderFor returns the pending encoder, beginning one if needed.
func (c *Context) encoderFor() (hal.CommandEncoder, error) {
	if c.encoder != nil {
		return c.encoder, nil
	}
	enc, err := c.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "sparsevolume_encoder"})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("sparsevolume"); err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	c.encoder = enc
	return enc, nil
}

// submit ends and submits the pending encoder, if any.
func (c *Context) submit() error {
	if c.encoder == nil {
		return nil
	}
	enc := c.encoder
	c.encoder = nil
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.DiscardEncoding()
		enc.Destroy()
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	// The encoder owns the command buffer's memory until the GPU is done.
	c.retired = append(c.retired, enc)
	c.inflight = append(c.inflight, cmd)
	if _, err := c.dev.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	return nil
}

// wait submits pending work, waits for the GPU and releases per-frame
// objects.
func (c *Context) wait() error {
	err := c.submit()
	if werr := c.dev.device.WaitIdle(); werr != nil && err == nil {
		err = fmt.Errorf("wgpu: wait idle: %w", werr)
	}
	for _, cmd := range c.inflight {
		c.dev.device.FreeCommandBuffer(cmd)
	}
	c.inflight = c.inflight[:0]
	for _, enc := range c.retired {
		enc.Destroy()
	}
	c.retired = c.retired[:0]
	for _, g := range c.groups {
		c.dev.device.DestroyBindGroup(g)
	}
	c.groups = c.groups[:0]
	return err
}

// release destroys the context's own objects.
func (c *Context) release() {
	if c.dummy != nil {
		c.dev.device.DestroyTextureView(c.dummy.view)
		c.dev.device.DestroyTexture(c.dummy.tex)
		c.dummy = nil
	}
}

// Targets implements gpucore.Context.
func (c *Context) Targets() ([]gpucore.TargetView, gpucore.DepthView) {
	return slices.Clone(c.targets), c.depth
}

// SetTargets implements gpucore.Context.
func (c *Context) SetTargets(targets []gpucore.TargetView, depth gpucore.DepthView) {
	c.targets = slices.Clone(targets)
	c.depth = depth
	clear(c.psWrites)
}

// SetTargetsAndWriteViews implements gpucore.Context.
func (c *Context) SetTargetsAndWriteViews(targets []gpucore.TargetView, depth gpucore.DepthView, slot uint32, views []gpucore.WriteView) {
	c.SetTargets(targets, depth)
	for i, v := range views {
		if v != gpucore.InvalidID {
			c.psWrites[slot+uint32(i)] = v
		}
	}
}

// ClearTarget implements gpucore.Context.
func (c *Context) ClearTarget(v gpucore.TargetView, rgba [4]float32) {
	rec, err := c.viewOf(uint64(v), kindTarget)
	if err != nil {
		c.fail(fmt.Errorf("wgpu: clear target: %w", err))
		return
	}
	enc, err := c.encoderFor()
	if err != nil {
		c.fail(err)
		return
	}
	pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "clear_target",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       rec.raw,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: float64(rgba[0]), G: float64(rgba[1]), B: float64(rgba[2]), A: float64(rgba[3])},
		}},
	})
	pass.End()
	c.passes++
}

// ClearDepth implements gpucore.Context.
func (c *Context) ClearDepth(v gpucore.DepthView, depth float32, stencil uint8) {
	rec, err := c.viewOf(uint64(v), kindDepth)
	if err != nil {
		c.fail(fmt.Errorf("wgpu: clear depth: %w", err))
		return
	}
	enc, err := c.encoderFor()
	if err != nil {
		c.fail(err)
		return
	}
	att := &hal.RenderPassDepthStencilAttachment{
		View:            rec.raw,
		DepthLoadOp:     gputypes.LoadOpClear,
		DepthStoreOp:    gputypes.StoreOpStore,
		DepthClearValue: depth,
	}
	if hasStencil(rec.format) {
		att.StencilLoadOp = gputypes.LoadOpClear
		att.StencilStoreOp = gputypes.StoreOpStore
		att.StencilClearValue = uint32(stencil)
	}
	pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{Label: "clear_depth", DepthStencilAttachment: att})
	pass.End()
	c.passes++
}

// ClearWriteViewUint implements gpucore.Context. Storage textures cannot be
// cleared by a pass, so the clear is a queue write of the fill pattern over
// every subresource the view covers.
func (c *Context) ClearWriteViewUint(v gpucore.WriteView, values [4]uint32) {
	rec, err := c.viewOf(uint64(v), kindWrite)
	if err != nil {
		c.fail(fmt.Errorf("wgpu: clear write view: %w", err))
		return
	}
	if err := c.submit(); err != nil {
		c.fail(err)
		return
	}
	if rec.buffer != nil {
		// Structured and raw buffers clear every dword to values[0].
		format := rec.desc.Format
		if format == gpucore.FormatUnknown || format == gpucore.FormatR32Typeless {
			format = gpucore.FormatR32Uint
		}
		texel, err := fillTexel(format, values)
		if err != nil {
			c.fail(fmt.Errorf("wgpu: clear write view: %w", err))
			return
		}
		if err := c.dev.queue.WriteBuffer(rec.buffer, rec.offset, padTo4(repeat(texel, int(rec.size)))); err != nil {
			c.fail(fmt.Errorf("wgpu: clear write view: %w", err))
		}
		return
	}

	t, ok := c.dev.textureRec(rec.res)
	if !ok {
		c.fail(fmt.Errorf("wgpu: clear write view: %w: resource %d", gpucore.ErrInvalidHandle, rec.res))
		return
	}
	texel, err := fillTexel(rec.desc.Format, values)
	if err != nil {
		c.fail(fmt.Errorf("wgpu: clear write view: %w", err))
		return
	}
	mip := rec.desc.MipSlice
	w := gpucore.MipExtent(t.desc.Width, mip)
	h := gpucore.MipExtent(t.desc.Height, mip)
	layers, first := rec.desc.ArraySize, rec.desc.FirstArraySlice
	depth := uint32(1)
	if t.desc.Dimension == gpucore.DimensionTexture3D {
		layers, first = 1, 0
		depth = rec.desc.WSize
	}
	row := w * uint32(len(texel))
	data := repeat(texel, int(row*h*depth))
	for layer := first; layer < first+layers; layer++ {
		z := layer
		if t.desc.Dimension == gpucore.DimensionTexture3D {
			z = rec.desc.FirstWSlice
		}
		err := c.dev.queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: t.raw, MipLevel: mip, Origin: hal.Origin3D{Z: z}, Aspect: gputypes.TextureAspectAll},
			data,
			&hal.ImageDataLayout{BytesPerRow: row, RowsPerImage: h},
			&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: depth},
		)
		if err != nil {
			c.fail(fmt.Errorf("wgpu: clear write view layer %d: %w", layer, err))
			return
		}
	}
}

// Viewports implements gpucore.Context.
func (c *Context) Viewports() []gpucore.Viewport { return slices.Clone(c.viewports) }

// SetViewports implements gpucore.Context. WebGPU takes one viewport;
// extra viewports are kept for Viewports but not applied.
func (c *Context) SetViewports(vps ...gpucore.Viewport) { c.viewports = slices.Clone(vps) }

// SetRasterizerState implements gpucore.Context.
func (c *Context) SetRasterizerState(id gpucore.RasterizerStateID) { c.raster = id }

// SetInputLayout implements gpucore.Context.
func (c *Context) SetInputLayout(id gpucore.InputLayoutID) { c.layout = id }

// SetVertexBuffers implements gpucore.Context.
func (c *Context) SetVertexBuffers(slot uint32, buffers []gpucore.ResourceID, strides, offsets []uint32) {
	for i, b := range buffers {
		vb := vertexBinding{buf: b}
		if i < len(strides) {
			vb.stride = strides[i]
		}
		if i < len(offsets) {
			vb.offset = offsets[i]
		}
		if b == gpucore.InvalidID {
			delete(c.vbs, slot+uint32(i))
			continue
		}
		c.vbs[slot+uint32(i)] = vb
	}
}

// SetIndexBuffer implements gpucore.Context.
func (c *Context) SetIndexBuffer(buf gpucore.ResourceID, format gpucore.Format, offset uint32) {
	c.ib = indexBinding{buf: buf, format: format, offset: offset}
}

// SetTopology implements gpucore.Context.
func (c *Context) SetTopology(t gpucore.Topology) { c.topology = t }

// SetShader implements gpucore.Context.
func (c *Context) SetShader(stage gpucore.ShaderStage, id gpucore.ShaderID) {
	if int(stage) >= len(c.shaders) {
		c.fail(fmt.Errorf("%w: shader stage %d", ErrInvalidDescriptor, stage))
		return
	}
	c.shaders[stage] = id
}

// SetConstantBuffers implements gpucore.Context.
func (c *Context) SetConstantBuffers(stage gpucore.ShaderStage, slot uint32, buffers ...gpucore.ResourceID) {
	if int(stage) >= len(c.cbs) {
		c.fail(fmt.Errorf("%w: shader stage %d", ErrInvalidDescriptor, stage))
		return
	}
	bindSlots(c.cbs[stage], slot, buffers)
}

// SetReadViews implements gpucore.Context.
func (c *Context) SetReadViews(stage gpucore.ShaderStage, slot uint32, views ...gpucore.ReadView) {
	if int(stage) >= len(c.reads) {
		c.fail(fmt.Errorf("%w: shader stage %d", ErrInvalidDescriptor, stage))
		return
	}
	bindSlots(c.reads[stage], slot, views)
}

// SetComputeWriteViews implements gpucore.Context.
func (c *Context) SetComputeWriteViews(slot uint32, views ...gpucore.WriteView) {
	bindSlots(c.csWrites, slot, views)
}

// bindSlots binds ids from slot on; the null ID unbinds.
func bindSlots[T ~uint64](m map[uint32]T, slot uint32, ids []T) {
	for i, id := range ids {
		if id == 0 {
			delete(m, slot+uint32(i))
			continue
		}
		m[slot+uint32(i)] = id
	}
}

// UpdateSubresource implements gpucore.Context.
func (c *Context) UpdateSubresource(res gpucore.ResourceID, subresource uint32, data []byte) {
	if err := c.submit(); err != nil {
		c.fail(err)
		return
	}
	if b, ok := c.dev.bufferRec(res); ok {
		if subresource != 0 {
			c.fail(fmt.Errorf("wgpu: update buffer: %w: subresource %d", gpucore.ErrSubresourceRange, subresource))
			return
		}
		if len(data) > int(b.size) {
			data = data[:b.size]
		}
		if err := c.dev.queue.WriteBuffer(b.raw, 0, padTo4(data)); err != nil {
			c.fail(fmt.Errorf("wgpu: update buffer: %w", err))
		}
		return
	}
	if t, ok := c.dev.textureRec(res); ok {
		if subresource >= t.desc.MipLevels*t.desc.ArraySize() {
			c.fail(fmt.Errorf("wgpu: update texture: %w: subresource %d", gpucore.ErrSubresourceRange, subresource))
			return
		}
		if err := c.dev.writeTexture(t, subresource, gpucore.SubresourceData{Data: data}); err != nil {
			c.fail(err)
		}
		return
	}
	c.fail(fmt.Errorf("wgpu: update: %w: resource %d", gpucore.ErrInvalidHandle, res))
}

// CopyResource implements gpucore.Context.
func (c *Context) CopyResource(dst, src gpucore.ResourceID) {
	if db, ok := c.dev.bufferRec(dst); ok {
		sb, ok := c.dev.bufferRec(src)
		if !ok || sb.size != db.size {
			c.fail(fmt.Errorf("wgpu: copy: %w: buffer %d to %d", gpucore.ErrWrongDimension, src, dst))
			return
		}
		enc, err := c.encoderFor()
		if err != nil {
			c.fail(err)
			return
		}
		enc.CopyBufferToBuffer(sb.raw, db.raw, []hal.BufferCopy{{Size: db.size}})
		return
	}
	dt, ok := c.dev.textureRec(dst)
	if !ok {
		c.fail(fmt.Errorf("wgpu: copy: %w: resource %d", gpucore.ErrInvalidHandle, dst))
		return
	}
	st, ok := c.dev.textureRec(src)
	if !ok || st.desc.Width != dt.desc.Width || st.desc.Height != dt.desc.Height ||
		st.desc.DepthOrArraySize != dt.desc.DepthOrArraySize || st.desc.MipLevels != dt.desc.MipLevels {
		c.fail(fmt.Errorf("wgpu: copy: %w: texture %d to %d", gpucore.ErrWrongDimension, src, dst))
		return
	}
	enc, err := c.encoderFor()
	if err != nil {
		c.fail(err)
		return
	}
	regions := make([]hal.TextureCopy, 0, dt.desc.MipLevels)
	for m := range dt.desc.MipLevels {
		regions = append(regions, hal.TextureCopy{
			SrcBase: hal.ImageCopyTexture{Texture: st.raw, MipLevel: m, Aspect: gputypes.TextureAspectAll},
			DstBase: hal.ImageCopyTexture{Texture: dt.raw, MipLevel: m, Aspect: gputypes.TextureAspectAll},
			Size: hal.Extent3D{
				Width:              gpucore.MipExtent(dt.desc.Width, m),
				Height:             gpucore.MipExtent(dt.desc.Height, m),
				DepthOrArrayLayers: max(dt.desc.ArraySize(), gpucore.MipExtent(dt.desc.Depth(), m)),
			},
		})
	}
	enc.CopyTextureToTexture(st.raw, dt.raw, regions)
}

// Draw implements gpucore.Context.
func (c *Context) Draw(vertexCount, startVertex uint32) {
	if err := c.draw(vertexCount, startVertex, 0, false); err != nil {
		c.fail(err)
	}
}

// DrawIndexed implements gpucore.Context.
func (c *Context) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) {
	if err := c.draw(indexCount, startIndex, baseVertex, true); err != nil {
		c.fail(err)
	}
}

// Dispatch implements gpucore.Context.
func (c *Context) Dispatch(x, y, z uint32) {
	if err := c.dispatch(x, y, z); err != nil {
		c.fail(err)
	}
}

// Flush implements gpucore.Context. It submits pending work, waits for the
// GPU, and returns and clears the first error recorded since the previous
// Flush.
func (c *Context) Flush() error {
	if err := c.wait(); err != nil {
		c.fail(err)
	}
	err := c.err
	c.err = nil
	return err
}

func (c *Context) viewOf(id uint64, want viewKind) (*view, error) {
	v, ok := c.dev.viewRec(id)
	if !ok || v.kind != want {
		return nil, fmt.Errorf("%w: %s view %d", gpucore.ErrInvalidHandle, want, id)
	}
	return v, nil
}

func (c *Context) draw(count, start uint32, baseVertex int32, indexed bool) error {
	vs, ok := c.dev.shaderRec(c.shaders[gpucore.StageVertex])
	if !ok {
		return fmt.Errorf("%w: vertex shader", ErrUnboundState)
	}
	spec := &renderSpec{
		vsID:     c.shaders[gpucore.StageVertex],
		vs:       vs,
		psID:     c.shaders[gpucore.StagePixel],
		layoutID: c.layout,
		prim:     primitiveState(c.topology, c.dev.rasterRec(c.raster)),
	}
	if spec.psID != gpucore.InvalidID {
		if spec.ps, ok = c.dev.shaderRec(spec.psID); !ok {
			return fmt.Errorf("%w: pixel shader %d", gpucore.ErrInvalidHandle, spec.psID)
		}
	}
	slots, err := c.vertexLayouts(spec)
	if err != nil {
		return err
	}

	attachments, depth, size, err := c.attachments(spec)
	if err != nil {
		return err
	}
	if len(attachments) == 0 && depth == nil {
		slogger().Debug("wgpu: draw without attachments or write views skipped")
		return nil
	}
	vis := gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	bindings, err := c.collect(&spec.groups, vis, gputypes.ShaderStageFragment,
		mergeSlots(c.cbs[gpucore.StagePixel], c.cbs[gpucore.StageVertex]),
		mergeSlots(c.reads[gpucore.StagePixel], c.reads[gpucore.StageVertex]),
		c.psWrites)
	if err != nil {
		return err
	}

	pipeline, layout, err := c.dev.pipelines.renderPipeline(spec)
	if err != nil {
		return err
	}
	groups, err := c.bindGroups(layout, &spec.groups, bindings)
	if err != nil {
		return err
	}
	enc, err := c.encoderFor()
	if err != nil {
		return err
	}

	pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  "sparsevolume_" + vs.desc.EntryPoint,
		ColorAttachments:       attachments,
		DepthStencilAttachment: depth,
	})
	pass.SetPipeline(pipeline)
	for i, g := range groups {
		pass.SetBindGroup(uint32(i), g, nil)
	}
	for i, slot := range slots {
		vb := c.vbs[slot]
		b, ok := c.dev.bufferRec(vb.buf)
		if !ok {
			pass.End()
			return fmt.Errorf("%w: vertex buffer slot %d", ErrUnboundState, slot)
		}
		pass.SetVertexBuffer(uint32(i), b.raw, uint64(vb.offset))
	}
	vp := gpucore.NewViewport(size[0], size[1])
	if len(c.viewports) > 0 {
		vp = c.viewports[0]
	}
	pass.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	if indexed {
		ib, ok := c.dev.bufferRec(c.ib.buf)
		if !ok {
			pass.End()
			return fmt.Errorf("%w: index buffer", ErrUnboundState)
		}
		pass.SetIndexBuffer(ib.raw, indexFormat(c.ib.format), uint64(c.ib.offset))
		pass.DrawIndexed(count, 1, start, baseVertex, 0)
	} else {
		pass.Draw(count, 1, start, 0)
	}
	pass.End()
	c.passes++
	return nil
}

// vertexLayouts fills spec.buffers from the input layout and bound vertex
// buffers, and returns the input slots in buffer order.
func (c *Context) vertexLayouts(spec *renderSpec) ([]uint32, error) {
	if c.layout == gpucore.InvalidID {
		return nil, nil
	}
	elements, ok := c.dev.layoutRec(c.layout)
	if !ok {
		return nil, fmt.Errorf("%w: input layout %d", gpucore.ErrInvalidHandle, c.layout)
	}
	bySlot := make(map[uint32][]gputypes.VertexAttribute)
	for loc, e := range elements {
		f, err := vertexFormat(e.Format)
		if err != nil {
			return nil, err
		}
		bySlot[e.InputSlot] = append(bySlot[e.InputSlot], gputypes.VertexAttribute{
			Format: f, Offset: uint64(e.AlignedByteOffset), ShaderLocation: uint32(loc),
		})
	}
	slots := slices.Sorted(maps.Keys(bySlot))
	for _, slot := range slots {
		vb, ok := c.vbs[slot]
		if !ok {
			return nil, fmt.Errorf("%w: vertex buffer slot %d", ErrUnboundState, slot)
		}
		spec.buffers = append(spec.buffers, gputypes.VertexBufferLayout{
			ArrayStride: uint64(vb.stride),
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  bySlot[slot],
		})
	}
	return slots, nil
}

// attachments resolves the bound targets. A pass with write views and no
// targets draws into the write-masked dummy target, sized by the viewport.
func (c *Context) attachments(spec *renderSpec) ([]hal.RenderPassColorAttachment, *hal.RenderPassDepthStencilAttachment, [2]uint32, error) {
	var (
		colors []hal.RenderPassColorAttachment
		depth  *hal.RenderPassDepthStencilAttachment
		size   [2]uint32
	)
	for _, t := range c.targets {
		if t == gpucore.InvalidID {
			continue
		}
		rec, err := c.viewOf(uint64(t), kindTarget)
		if err != nil {
			return nil, nil, size, err
		}
		colors = append(colors, hal.RenderPassColorAttachment{
			View: rec.raw, LoadOp: gputypes.LoadOpLoad, StoreOp: gputypes.StoreOpStore,
		})
		spec.colors = append(spec.colors, gputypes.ColorTargetState{Format: rec.format, WriteMask: gputypes.ColorWriteMaskAll})
		size = [2]uint32{rec.width, rec.height}
	}
	if c.depth != gpucore.InvalidID {
		rec, err := c.viewOf(uint64(c.depth), kindDepth)
		if err != nil {
			return nil, nil, size, err
		}
		readOnly := rec.desc.DepthFlags&gpucore.DepthReadOnly != 0
		depth = &hal.RenderPassDepthStencilAttachment{
			View:          rec.raw,
			DepthLoadOp:   gputypes.LoadOpLoad,
			DepthStoreOp:  gputypes.StoreOpStore,
			DepthReadOnly: readOnly,
		}
		if readOnly {
			depth.DepthLoadOp, depth.DepthStoreOp = gputypes.LoadOpUndefined, gputypes.StoreOpUndefined
		}
		if hasStencil(rec.format) {
			depth.StencilLoadOp = gputypes.LoadOpLoad
			depth.StencilStoreOp = gputypes.StoreOpStore
		}
		spec.depth = &hal.DepthStencilState{
			Format:            rec.format,
			DepthWriteEnabled: !readOnly,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		}
		if size == ([2]uint32{}) {
			size = [2]uint32{rec.width, rec.height}
		}
	}
	if len(colors) > 0 || depth != nil || len(c.psWrites) == 0 || spec.ps == nil {
		return colors, depth, size, nil
	}

	if len(c.viewports) == 0 {
		return nil, nil, size, fmt.Errorf("%w: viewport for a pass without targets", ErrUnboundState)
	}
	vp := c.viewports[0]
	size = [2]uint32{uint32(vp.X + vp.Width), uint32(vp.Y + vp.Height)}
	dummy, err := c.dummyTarget(size[0], size[1])
	if err != nil {
		return nil, nil, size, err
	}
	colors = append(colors, hal.RenderPassColorAttachment{
		View: dummy.view, LoadOp: gputypes.LoadOpLoad, StoreOp: gputypes.StoreOpDiscard,
	})
	spec.colors = append(spec.colors, gputypes.ColorTargetState{
		Format: gputypes.TextureFormatR8Unorm, WriteMask: gputypes.ColorWriteMaskNone,
	})
	return colors, nil, size, nil
}

// dummyTarget returns a dummy attachment of at least w x h texels.
func (c *Context) dummyTarget(w, h uint32) (*dummyTarget, error) {
	if c.dummy != nil && c.dummy.width >= w && c.dummy.height >= h {
		return c.dummy, nil
	}
	w, h = max(w, 1), max(h, 1)
	if c.dummy != nil {
		w, h = max(w, c.dummy.width), max(h, c.dummy.height)
	}
	tex, err := c.dev.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "sparsevolume_dummy_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatR8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create dummy target: %w", err)
	}
	view, err := c.dev.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "sparsevolume_dummy_target",
		Format:          gputypes.TextureFormatR8Unorm,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		c.dev.device.DestroyTexture(tex)
		return nil, fmt.Errorf("wgpu: create dummy target view: %w", err)
	}
	if c.dummy != nil {
		// The old target may still be referenced by pending passes.
		if err := c.wait(); err != nil {
			c.dev.device.DestroyTextureView(view)
			c.dev.device.DestroyTexture(tex)
			return nil, err
		}
		c.release()
	}
	c.dummy = &dummyTarget{width: w, height: h, tex: tex, view: view}
	slogger().Debug("wgpu: dummy target resized", "width", w, "height", h)
	return c.dummy, nil
}

func (c *Context) dispatch(x, y, z uint32) error {
	id := c.shaders[gpucore.StageCompute]
	cs, ok := c.dev.shaderRec(id)
	if !ok {
		return fmt.Errorf("%w: compute shader", ErrUnboundState)
	}
	spec := &computeSpec{csID: id, cs: cs}
	bindings, err := c.collect(&spec.groups, gputypes.ShaderStageCompute, gputypes.ShaderStageCompute,
		c.cbs[gpucore.StageCompute], c.reads[gpucore.StageCompute], c.csWrites)
	if err != nil {
		return err
	}
	pipeline, layout, err := c.dev.pipelines.computePipeline(spec)
	if err != nil {
		return err
	}
	groups, err := c.bindGroups(layout, &spec.groups, bindings)
	if err != nil {
		return err
	}
	enc, err := c.encoderFor()
	if err != nil {
		return err
	}
	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "sparsevolume_" + cs.desc.EntryPoint})
	pass.SetPipeline(pipeline)
	for i, g := range groups {
		pass.SetBindGroup(uint32(i), g, nil)
	}
	pass.Dispatch(x, y, z)
	pass.End()
	c.passes++
	return nil
}

// mergeSlots returns the union of two stage bindings; primary wins on a
// shared slot.
func mergeSlots[T ~uint64](primary, secondary map[uint32]T) map[uint32]T {
	if len(secondary) == 0 {
		return primary
	}
	out := maps.Clone(secondary)
	maps.Copy(out, primary)
	return out
}

// collect builds the layout of each bind group from bound state and
// returns the matching resources, in the same order.
func (c *Context) collect(groups *layoutSpec, vis, writeVis gputypes.ShaderStage,
	cbs map[uint32]gpucore.ResourceID, reads map[uint32]gpucore.ReadView, writes map[uint32]gpucore.WriteView,
) ([numGroups][]gputypes.BindingResource, error) {
	var res [numGroups][]gputypes.BindingResource

	for _, slot := range slices.Sorted(maps.Keys(cbs)) {
		b, ok := c.dev.bufferRec(cbs[slot])
		if !ok {
			return res, fmt.Errorf("%w: constant buffer slot %d", gpucore.ErrInvalidHandle, slot)
		}
		groups[groupConstants] = append(groups[groupConstants], gputypes.BindGroupLayoutEntry{
			Binding: slot, Visibility: vis,
			Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
		res[groupConstants] = append(res[groupConstants], gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Size: b.size})
	}

	for _, slot := range slices.Sorted(maps.Keys(reads)) {
		v, err := c.viewOf(uint64(reads[slot]), kindRead)
		if err != nil {
			return res, err
		}
		entry := gputypes.BindGroupLayoutEntry{Binding: slot, Visibility: vis}
		if v.buffer != nil {
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
			res[groupReads] = append(res[groupReads], gputypes.BufferBinding{Buffer: v.buffer.NativeHandle(), Offset: v.offset, Size: v.size})
		} else {
			entry.Texture = &gputypes.TextureBindingLayout{SampleType: sampleType(v.format), ViewDimension: v.dim}
			res[groupReads] = append(res[groupReads], gputypes.TextureViewBinding{TextureView: v.raw.NativeHandle()})
		}
		groups[groupReads] = append(groups[groupReads], entry)
	}

	for _, slot := range slices.Sorted(maps.Keys(writes)) {
		v, err := c.viewOf(uint64(writes[slot]), kindWrite)
		if err != nil {
			return res, err
		}
		entry := gputypes.BindGroupLayoutEntry{Binding: slot, Visibility: writeVis}
		if v.buffer != nil {
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
			res[groupWrites] = append(res[groupWrites], gputypes.BufferBinding{Buffer: v.buffer.NativeHandle(), Offset: v.offset, Size: v.size})
		} else {
			entry.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access: storageAccess(v.format), Format: v.format, ViewDimension: v.dim,
			}
			res[groupWrites] = append(res[groupWrites], gputypes.TextureViewBinding{TextureView: v.raw.NativeHandle()})
		}
		groups[groupWrites] = append(groups[groupWrites], entry)
	}
	return res, nil
}

// bindGroups creates this draw's bind groups. They live until the next
// Flush.
func (c *Context) bindGroups(layout *pipelineLayout, groups *layoutSpec, res [numGroups][]gputypes.BindingResource) ([]hal.BindGroup, error) {
	out := make([]hal.BindGroup, 0, len(layout.groups))
	for i, gl := range layout.groups {
		if len(groups[i]) == 0 {
			g, err := c.dev.pipelines.empty()
			if err != nil {
				return nil, err
			}
			out = append(out, g)
			continue
		}
		entries := make([]gputypes.BindGroupEntry, len(groups[i]))
		for j, e := range groups[i] {
			entries[j] = gputypes.BindGroupEntry{Binding: e.Binding, Resource: res[i][j]}
		}
		g, err := c.dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label: fmt.Sprintf("sparsevolume_group%d", i), Layout: gl, Entries: entries,
		})
		if err != nil {
			return nil, fmt.Errorf("wgpu: create bind group %d: %w", i, err)
		}
		c.groups = append(c.groups, g)
		out = append(out, g)
	}
	return out, nil
}

var _ gpucore.Context = (*Context)(nil)
