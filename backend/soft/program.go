package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/sparsevolume/gpucore"
)

// Program is the CPU implementation of a shader. Draws run the program
// registered for the bound pixel shader's entry point; dispatches run the
// one registered for the bound compute shader's.
type Program func(inv *Invocation) error

// Invocation is one draw or dispatch as seen by a Program.
type Invocation struct {
	// Count is the vertex or index count of a draw.
	Count uint32

	// Start is the first vertex or index of a draw.
	Start uint32

	// BaseVertex is added to each index of an indexed draw.
	BaseVertex int32

	// Indexed reports an indexed draw.
	Indexed bool

	// Groups is the thread-group count of a dispatch.
	Groups [3]uint32

	ctx   *Context
	stage gpucore.ShaderStage
}

func (c *Context) run(stage gpucore.ShaderStage, inv *Invocation) {
	id := c.shaders[stage]
	if id == gpucore.InvalidID {
		return
	}
	sh, ok := c.dev.shaderRec(id)
	if !ok {
		c.fail(fmt.Errorf("soft: %s: %w: shader %d", stage, gpucore.ErrInvalidHandle, id))
		return
	}
	p, ok := c.dev.program(sh.desc.EntryPoint)
	if !ok {
		return
	}
	inv.ctx, inv.stage = c, stage
	if err := p(inv); err != nil {
		c.fail(fmt.Errorf("soft: %s %q: %w", stage, sh.desc.EntryPoint, err))
	}
}

// Parallel calls fn for every index in [0, n) on the device worker pool and
// returns the error of the lowest failing index. Calls must write disjoint
// texels.
func (inv *Invocation) Parallel(n int, fn func(i int) error) error {
	return inv.ctx.dev.workers().Run(n, fn)
}

// Viewport returns the first bound viewport.
func (inv *Invocation) Viewport() (gpucore.Viewport, bool) {
	if len(inv.ctx.viewports) == 0 {
		return gpucore.Viewport{}, false
	}
	return inv.ctx.viewports[0], true
}

// Rasterizer returns the bound rasterizer state, or the default state.
func (inv *Invocation) Rasterizer() gpucore.RasterizerDesc {
	if rs, ok := inv.ctx.dev.rasterRec(inv.ctx.raster); ok {
		return rs
	}
	return gpucore.RasterizerDesc{Cull: gpucore.CullBack, DepthClip: true}
}

// ConstantBuffer returns the bytes of the constant buffer at slot of stage.
func (inv *Invocation) ConstantBuffer(stage gpucore.ShaderStage, slot uint32) ([]byte, error) {
	id, ok := inv.ctx.cbs[stage][slot]
	if !ok {
		return nil, fmt.Errorf("%w: %s constant buffer %d", ErrUnboundState, stage, slot)
	}
	b, ok := inv.ctx.dev.bufferRec(id)
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpucore.ErrInvalidHandle, id)
	}
	return b.data, nil
}

// Matrix reads the row-major 4x4 float32 matrix at byte offset off of the
// constant buffer at slot of stage.
func (inv *Invocation) Matrix(stage gpucore.ShaderStage, slot uint32, off int) ([16]float32, error) {
	var m [16]float32
	data, err := inv.ConstantBuffer(stage, slot)
	if err != nil {
		return m, err
	}
	if off+64 > len(data) {
		return m, fmt.Errorf("%w: constant buffer %d holds %d bytes, need %d", ErrUnboundState, slot, len(data), off+64)
	}
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+i*4:]))
	}
	return m, nil
}

// ReadSurface returns the surface of the read view at slot of stage.
func (inv *Invocation) ReadSurface(stage gpucore.ShaderStage, slot uint32) (*Surface, error) {
	id, ok := inv.ctx.reads[stage][slot]
	if !ok {
		return nil, fmt.Errorf("%w: %s read view %d", ErrUnboundState, stage, slot)
	}
	return inv.ctx.surfaceOf(uint64(id), kindRead)
}

// WriteSurface returns the surface of the write view at slot: the pixel
// stage write views for a draw, the compute write views for a dispatch.
func (inv *Invocation) WriteSurface(slot uint32) (*Surface, error) {
	m := inv.ctx.psWrites
	if inv.stage == gpucore.StageCompute {
		m = inv.ctx.csWrites
	}
	id, ok := m[slot]
	if !ok {
		return nil, fmt.Errorf("%w: %s write view %d", ErrUnboundState, inv.stage, slot)
	}
	return inv.ctx.surfaceOf(uint64(id), kindWrite)
}

// TargetSurface returns the surface of render target i.
func (inv *Invocation) TargetSurface(i int) (*Surface, error) {
	if i >= len(inv.ctx.targets) || inv.ctx.targets[i] == gpucore.InvalidID {
		return nil, fmt.Errorf("%w: render target %d", ErrUnboundState, i)
	}
	return inv.ctx.surfaceOf(uint64(inv.ctx.targets[i]), kindTarget)
}

// Positions returns the float3 POSITION attribute of every vertex in the
// vertex buffer it is bound from.
func (inv *Invocation) Positions() ([][3]float32, error) {
	elems, ok := inv.ctx.dev.layoutRec(inv.ctx.layout)
	if !ok {
		return nil, fmt.Errorf("%w: input layout", ErrUnboundState)
	}
	var pos *gpucore.InputElement
	for i := range elems {
		if elems[i].SemanticName == "POSITION" {
			pos = &elems[i]
			break
		}
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: input layout has no POSITION", ErrInvalidDescriptor)
	}
	vb, ok := inv.ctx.vbs[pos.InputSlot]
	if !ok || vb.buf == gpucore.InvalidID {
		return nil, fmt.Errorf("%w: vertex buffer %d", ErrUnboundState, pos.InputSlot)
	}
	b, ok := inv.ctx.dev.bufferRec(vb.buf)
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpucore.ErrInvalidHandle, vb.buf)
	}
	if vb.stride == 0 {
		return nil, fmt.Errorf("%w: vertex stride 0", ErrInvalidDescriptor)
	}
	data := b.data[vb.offset:]
	n := (len(data) - int(pos.AlignedByteOffset) - 12) / int(vb.stride)
	out := make([][3]float32, 0, max(n+1, 0))
	for off := int(pos.AlignedByteOffset); off+12 <= len(data); off += int(vb.stride) {
		out = append(out, [3]float32{
			math.Float32frombits(binary.LittleEndian.Uint32(data[off:])),
			math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(data[off+8:])),
		})
	}
	return out, nil
}

// Triangles assembles the draw's primitives into vertex index triples.
func (inv *Invocation) Triangles() ([][3]uint32, error) {
	idx := make([]uint32, 0, inv.Count)
	if inv.Indexed {
		b, ok := inv.ctx.dev.bufferRec(inv.ctx.ib.buf)
		if !ok {
			return nil, fmt.Errorf("%w: index buffer", ErrUnboundState)
		}
		size := 4
		if inv.ctx.ib.format.BytesPerElement() == 2 {
			size = 2
		}
		data := b.data[inv.ctx.ib.offset:]
		for i := inv.Start; i < inv.Start+inv.Count; i++ {
			off := int(i) * size
			if off+size > len(data) {
				return nil, fmt.Errorf("%w: index %d past index buffer", gpucore.ErrSubresourceRange, i)
			}
			var v uint32
			if size == 2 {
				v = uint32(binary.LittleEndian.Uint16(data[off:]))
			} else {
				v = binary.LittleEndian.Uint32(data[off:])
			}
			idx = append(idx, uint32(int64(v)+int64(inv.BaseVertex)))
		}
	} else {
		for i := inv.Start; i < inv.Start+inv.Count; i++ {
			idx = append(idx, i)
		}
	}

	var tris [][3]uint32
	switch inv.ctx.topology {
	case gpucore.TopologyTriangleList:
		for i := 0; i+2 < len(idx); i += 3 {
			tris = append(tris, [3]uint32{idx[i], idx[i+1], idx[i+2]})
		}
	case gpucore.TopologyTriangleStrip:
		for i := 0; i+2 < len(idx); i++ {
			if i%2 == 0 {
				tris = append(tris, [3]uint32{idx[i], idx[i+1], idx[i+2]})
			} else {
				tris = append(tris, [3]uint32{idx[i+1], idx[i], idx[i+2]})
			}
		}
	default:
		return nil, fmt.Errorf("%w: topology %d", ErrUnboundState, inv.ctx.topology)
	}
	return tris, nil
}

func (d *Device) rasterRec(id gpucore.RasterizerStateID) (gpucore.RasterizerDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs, ok := d.rasters[id]
	return rs, ok
}

func (d *Device) layoutRec(id gpucore.InputLayoutID) ([]gpucore.InputElement, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.layouts[id]
	return l, ok
}
