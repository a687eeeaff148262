package soft

import (
	"fmt"
	"slices"

	"github.com/gogpu/sparsevolume/gpucore"
)

// Op names a recorded context call.
type Op string

// Recorded operations. Each matches the gpucore.Context method of the same
// name.
const (
	OpSetTargets              Op = "SetTargets"
	OpSetTargetsAndWriteViews Op = "SetTargetsAndWriteViews"
	OpClearTarget             Op = "ClearTarget"
	OpClearDepth              Op = "ClearDepth"
	OpClearWriteViewUint      Op = "ClearWriteViewUint"
	OpSetViewports            Op = "SetViewports"
	OpSetRasterizerState      Op = "SetRasterizerState"
	OpSetInputLayout          Op = "SetInputLayout"
	OpSetVertexBuffers        Op = "SetVertexBuffers"
	OpSetIndexBuffer          Op = "SetIndexBuffer"
	OpSetTopology             Op = "SetTopology"
	OpSetShader               Op = "SetShader"
	OpSetConstantBuffers      Op = "SetConstantBuffers"
	OpSetReadViews            Op = "SetReadViews"
	OpSetComputeWriteViews    Op = "SetComputeWriteViews"
	OpUpdateSubresource       Op = "UpdateSubresource"
	OpCopyResource            Op = "CopyResource"
	OpDraw                    Op = "Draw"
	OpDrawIndexed             Op = "DrawIndexed"
	OpDispatch                Op = "Dispatch"
	OpFlush                   Op = "Flush"
)

// Call is one recorded context call. Args holds the integer arguments in
// parameter order, with slices expanded in place.
type Call struct {
	Op   Op
	Args []uint64
}

func (c Call) String() string { return fmt.Sprintf("%s%v", c.Op, c.Args) }

// Context is the immediate context of a soft Device. It records every call
// and executes the ones that change memory.
type Context struct {
	dev   *Device
	calls []Call
	err   error

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

// Calls returns a copy of the recorded calls.
func (c *Context) Calls() []Call { return slices.Clone(c.calls) }

// Reset clears the call log.
func (c *Context) Reset() { c.calls = c.calls[:0] }

// Index returns the position of the first recorded call matching op and,
// if args is non-empty, starting with args. Returns -1 if none matches.
func (c *Context) Index(op Op, args ...uint64) int {
	for i, call := range c.calls {
		if call.Op == op && len(call.Args) >= len(args) && slices.Equal(call.Args[:len(args)], args) {
			return i
		}
	}
	return -1
}

// Count returns the number of recorded calls with op.
func (c *Context) Count(op Op) int {
	n := 0
	for _, call := range c.calls {
		if call.Op == op {
			n++
		}
	}
	return n
}

func (c *Context) record(op Op, args ...uint64) {
	c.calls = append(c.calls, Call{Op: op, Args: args})
}

// fail records the first error since the last Flush.
func (c *Context) fail(err error) {
	if c.err == nil {
		c.err = err
		slogger().Debug("soft: context error recorded", "err", err)
	}
}

// Targets implements gpucore.Context.
func (c *Context) Targets() ([]gpucore.TargetView, gpucore.DepthView) {
	return slices.Clone(c.targets), c.depth
}

// SetTargets implements gpucore.Context.
func (c *Context) SetTargets(targets []gpucore.TargetView, depth gpucore.DepthView) {
	args := []uint64{uint64(depth)}
	for _, t := range targets {
		args = append(args, uint64(t))
	}
	c.record(OpSetTargets, args...)
	c.targets = slices.Clone(targets)
	c.depth = depth
	clear(c.psWrites)
}

// SetTargetsAndWriteViews implements gpucore.Context.
func (c *Context) SetTargetsAndWriteViews(targets []gpucore.TargetView, depth gpucore.DepthView, slot uint32, views []gpucore.WriteView) {
	args := []uint64{uint64(depth), uint64(slot), uint64(len(targets))}
	for _, t := range targets {
		args = append(args, uint64(t))
	}
	for _, v := range views {
		args = append(args, uint64(v))
	}
	c.record(OpSetTargetsAndWriteViews, args...)
	c.targets = slices.Clone(targets)
	c.depth = depth
	clear(c.psWrites)
	for i, v := range views {
		if v != gpucore.InvalidID {
			c.psWrites[slot+uint32(i)] = v
		}
	}
}

// ClearTarget implements gpucore.Context.
func (c *Context) ClearTarget(v gpucore.TargetView, rgba [4]float32) {
	c.record(OpClearTarget, uint64(v))
	s, err := c.surfaceOf(uint64(v), kindTarget)
	if err != nil {
		c.fail(fmt.Errorf("soft: clear target: %w", err))
		return
	}
	texel, err := encodeColor(s.Format, rgba)
	if err != nil {
		c.fail(fmt.Errorf("soft: clear target: %w", err))
		return
	}
	s.Fill(texel)
}

// ClearDepth implements gpucore.Context.
func (c *Context) ClearDepth(v gpucore.DepthView, depth float32, stencil uint8) {
	c.record(OpClearDepth, uint64(v))
	s, err := c.surfaceOf(uint64(v), kindDepth)
	if err != nil {
		c.fail(fmt.Errorf("soft: clear depth: %w", err))
		return
	}
	s.Fill(encodeDepth(s.Format, depth, stencil))
}

// ClearWriteViewUint implements gpucore.Context.
func (c *Context) ClearWriteViewUint(v gpucore.WriteView, values [4]uint32) {
	c.record(OpClearWriteViewUint, uint64(v), uint64(values[0]), uint64(values[1]), uint64(values[2]), uint64(values[3]))
	s, err := c.surfaceOf(uint64(v), kindWrite)
	if err != nil {
		c.fail(fmt.Errorf("soft: clear write view: %w", err))
		return
	}
	s.Fill(encodeUint(s.Format, values))
}

// Viewports implements gpucore.Context.
func (c *Context) Viewports() []gpucore.Viewport { return slices.Clone(c.viewports) }

// SetViewports implements gpucore.Context.
func (c *Context) SetViewports(vps ...gpucore.Viewport) {
	args := make([]uint64, 0, 2*len(vps))
	for _, vp := range vps {
		args = append(args, uint64(vp.Width), uint64(vp.Height))
	}
	c.record(OpSetViewports, args...)
	c.viewports = slices.Clone(vps)
}

// SetRasterizerState implements gpucore.Context.
func (c *Context) SetRasterizerState(id gpucore.RasterizerStateID) {
	c.record(OpSetRasterizerState, uint64(id))
	c.raster = id
}

// SetInputLayout implements gpucore.Context.
func (c *Context) SetInputLayout(id gpucore.InputLayoutID) {
	c.record(OpSetInputLayout, uint64(id))
	c.layout = id
}

// SetVertexBuffers implements gpucore.Context.
func (c *Context) SetVertexBuffers(slot uint32, buffers []gpucore.ResourceID, strides, offsets []uint32) {
	args := []uint64{uint64(slot)}
	for i, b := range buffers {
		vb := vertexBinding{buf: b}
		if i < len(strides) {
			vb.stride = strides[i]
		}
		if i < len(offsets) {
			vb.offset = offsets[i]
		}
		c.vbs[slot+uint32(i)] = vb
		args = append(args, uint64(b), uint64(vb.stride), uint64(vb.offset))
	}
	c.record(OpSetVertexBuffers, args...)
}

// SetIndexBuffer implements gpucore.Context.
func (c *Context) SetIndexBuffer(buf gpucore.ResourceID, format gpucore.Format, offset uint32) {
	c.record(OpSetIndexBuffer, uint64(buf), uint64(format), uint64(offset))
	c.ib = indexBinding{buf: buf, format: format, offset: offset}
}

// SetTopology implements gpucore.Context.
func (c *Context) SetTopology(t gpucore.Topology) {
	c.record(OpSetTopology, uint64(t))
	c.topology = t
}

// SetShader implements gpucore.Context.
func (c *Context) SetShader(stage gpucore.ShaderStage, id gpucore.ShaderID) {
	c.record(OpSetShader, uint64(stage), uint64(id))
	if int(stage) >= len(c.shaders) {
		c.fail(fmt.Errorf("%w: shader stage %d", ErrInvalidDescriptor, stage))
		return
	}
	c.shaders[stage] = id
}

// SetConstantBuffers implements gpucore.Context.
func (c *Context) SetConstantBuffers(stage gpucore.ShaderStage, slot uint32, buffers ...gpucore.ResourceID) {
	args := []uint64{uint64(stage), uint64(slot)}
	for _, b := range buffers {
		args = append(args, uint64(b))
	}
	c.record(OpSetConstantBuffers, args...)
	if int(stage) >= len(c.cbs) {
		c.fail(fmt.Errorf("%w: shader stage %d", ErrInvalidDescriptor, stage))
		return
	}
	bindSlots(c.cbs[stage], slot, buffers)
}

// SetReadViews implements gpucore.Context.
func (c *Context) SetReadViews(stage gpucore.ShaderStage, slot uint32, views ...gpucore.ReadView) {
	args := []uint64{uint64(stage), uint64(slot)}
	for _, v := range views {
		args = append(args, uint64(v))
	}
	c.record(OpSetReadViews, args...)
	if int(stage) >= len(c.reads) {
		c.fail(fmt.Errorf("%w: shader stage %d", ErrInvalidDescriptor, stage))
		return
	}
	bindSlots(c.reads[stage], slot, views)
}

// SetComputeWriteViews implements gpucore.Context.
func (c *Context) SetComputeWriteViews(slot uint32, views ...gpucore.WriteView) {
	args := []uint64{uint64(slot)}
	for _, v := range views {
		args = append(args, uint64(v))
	}
	c.record(OpSetComputeWriteViews, args...)
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
	c.record(OpUpdateSubresource, uint64(res), uint64(subresource), uint64(len(data)))
	if b, ok := c.dev.bufferRec(res); ok {
		if subresource != 0 {
			c.fail(fmt.Errorf("soft: update buffer: %w: subresource %d", gpucore.ErrSubresourceRange, subresource))
			return
		}
		copy(b.data, data)
		return
	}
	if t, ok := c.dev.textureRec(res); ok {
		if int(subresource) >= len(t.subs) {
			c.fail(fmt.Errorf("soft: update texture: %w: subresource %d", gpucore.ErrSubresourceRange, subresource))
			return
		}
		t.upload(subresource, gpucore.SubresourceData{Data: data})
		return
	}
	c.fail(fmt.Errorf("soft: update: %w: resource %d", gpucore.ErrInvalidHandle, res))
}

// CopyResource implements gpucore.Context.
func (c *Context) CopyResource(dst, src gpucore.ResourceID) {
	c.record(OpCopyResource, uint64(dst), uint64(src))
	if db, ok := c.dev.bufferRec(dst); ok {
		sb, ok := c.dev.bufferRec(src)
		if !ok || len(sb.data) != len(db.data) {
			c.fail(fmt.Errorf("soft: copy: %w: buffer %d to %d", gpucore.ErrWrongDimension, src, dst))
			return
		}
		copy(db.data, sb.data)
		return
	}
	if dt, ok := c.dev.textureRec(dst); ok {
		st, ok := c.dev.textureRec(src)
		if !ok || len(st.subs) != len(dt.subs) {
			c.fail(fmt.Errorf("soft: copy: %w: texture %d to %d", gpucore.ErrWrongDimension, src, dst))
			return
		}
		for i := range dt.subs {
			if len(dt.subs[i]) != len(st.subs[i]) {
				c.fail(fmt.Errorf("soft: copy: %w: subresource %d size", gpucore.ErrWrongDimension, i))
				return
			}
			copy(dt.subs[i], st.subs[i])
		}
		return
	}
	c.fail(fmt.Errorf("soft: copy: %w: resource %d", gpucore.ErrInvalidHandle, dst))
}

// Draw implements gpucore.Context.
func (c *Context) Draw(vertexCount, startVertex uint32) {
	c.record(OpDraw, uint64(vertexCount), uint64(startVertex))
	c.run(gpucore.StagePixel, &Invocation{Count: vertexCount, Start: startVertex})
}

// DrawIndexed implements gpucore.Context.
func (c *Context) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) {
	c.record(OpDrawIndexed, uint64(indexCount), uint64(startIndex), uint64(int64(baseVertex)))
	c.run(gpucore.StagePixel, &Invocation{Count: indexCount, Start: startIndex, BaseVertex: baseVertex, Indexed: true})
}

// Dispatch implements gpucore.Context.
func (c *Context) Dispatch(x, y, z uint32) {
	c.record(OpDispatch, uint64(x), uint64(y), uint64(z))
	c.run(gpucore.StageCompute, &Invocation{Groups: [3]uint32{x, y, z}})
}

// Flush implements gpucore.Context. It returns and clears the first error
// recorded since the previous Flush.
func (c *Context) Flush() error {
	c.record(OpFlush)
	err := c.err
	c.err = nil
	return err
}

func (c *Context) surfaceOf(id uint64, want viewKind) (*Surface, error) {
	v, ok := c.dev.viewRec(id)
	if !ok || v.kind != want {
		return nil, fmt.Errorf("%w: %s view %d", gpucore.ErrInvalidHandle, want, id)
	}
	return c.dev.viewSurface(v)
}

var _ gpucore.Context = (*Context)(nil)
