package soft

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/sparsevolume/internal/parallel"
)

// Errors returned by the soft device.
var (
	// ErrUnsupportedFormat is returned for a format the device cannot
	// encode or decode.
	ErrUnsupportedFormat = errors.New("soft: unsupported format")

	// ErrInvalidDescriptor is returned for a descriptor the device rejects.
	ErrInvalidDescriptor = errors.New("soft: invalid descriptor")

	// ErrUnboundState is returned when a draw or dispatch needs state that
	// is not bound.
	ErrUnboundState = errors.New("soft: required state not bound")
)

type viewKind uint8

const (
	kindRead viewKind = iota + 1
	kindWrite
	kindTarget
	kindDepth
)

func (k viewKind) String() string {
	switch k {
	case kindRead:
		return "read"
	case kindWrite:
		return "write"
	case kindTarget:
		return "target"
	case kindDepth:
		return "depth"
	default:
		return "unknown"
	}
}

// texture is the storage of one texture: one byte slice per subresource,
// indexed by gpucore.Subresource. A 3D subresource holds every depth slice
// of its mip.
type texture struct {
	desc gpucore.TextureDesc
	subs [][]byte
}

type buffer struct {
	desc gpucore.BufferDesc
	data []byte
}

// view is a resolved view: Format and every range field are filled in.
type view struct {
	kind viewKind
	res  gpucore.ResourceID
	desc gpucore.ViewDesc
}

type shader struct {
	desc gpucore.ShaderDesc
}

// Device is a CPU reference implementation of gpucore.Device.
//
// Resources live in host memory. Clears, uploads, copies and readback are
// executed; draws and dispatches run the Program registered for the bound
// shader's entry point, and are otherwise only recorded.
type Device struct {
	mu     sync.Mutex
	nextID uint64

	textures map[gpucore.ResourceID]*texture
	buffers  map[gpucore.ResourceID]*buffer
	views    map[uint64]*view
	shaders  map[gpucore.ShaderID]*shader
	layouts  map[gpucore.InputLayoutID][]gpucore.InputElement
	rasters  map[gpucore.RasterizerStateID]gpucore.RasterizerDesc

	programs map[string]Program

	ctx *Context

	poolOnce sync.Once
	pool     *parallel.Pool
}

// New creates a soft device with the built-in programs registered.
func New() *Device {
	d := &Device{
		textures: make(map[gpucore.ResourceID]*texture),
		buffers:  make(map[gpucore.ResourceID]*buffer),
		views:    make(map[uint64]*view),
		shaders:  make(map[gpucore.ShaderID]*shader),
		layouts:  make(map[gpucore.InputLayoutID][]gpucore.InputElement),
		rasters:  make(map[gpucore.RasterizerStateID]gpucore.RasterizerDesc),
		programs: make(map[string]Program),
	}
	d.ctx = newContext(d)
	for entry, p := range builtinPrograms {
		d.programs[entry] = p
	}
	slogger().Debug("soft: device created", "programs", len(d.programs))
	return d
}

// Close stops the worker goroutines of compute programs. Resources stay
// readable.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}

// workers returns the pool compute programs split their dispatch across.
func (d *Device) workers() *parallel.Pool {
	d.poolOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.pool = parallel.NewPool(0)
		slogger().Debug("soft: worker pool started", "workers", d.pool.Workers())
	})
	return d.pool
}

// SetLogger sets the logger of the soft backend.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// RegisterProgram binds p to shaders created with the given entry point.
// A nil p removes the binding.
func (d *Device) RegisterProgram(entry string, p Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p == nil {
		delete(d.programs, entry)
		return
	}
	d.programs[entry] = p
}

// HasProgram reports whether a program is registered for entry.
func (d *Device) HasProgram(entry string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.programs[entry]
	return ok
}

// Context returns the immediate context with its soft-only methods.
func (d *Device) Context() *Context { return d.ctx }

// ImmediateContext implements gpucore.Device.
func (d *Device) ImmediateContext() gpucore.Context { return d.ctx }

func (d *Device) allocID() uint64 {
	d.nextID++
	return d.nextID
}

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc, initial []gpucore.SubresourceData) (gpucore.ResourceID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %q has zero size", ErrInvalidDescriptor, desc.Label)
	}
	if desc.Dimension != gpucore.DimensionTexture2D && desc.Dimension != gpucore.DimensionTexture3D {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %q dimension %d", gpucore.ErrWrongDimension, desc.Label, desc.Dimension)
	}
	bpe := desc.Format.BytesPerElement()
	if bpe == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %q format %s", ErrUnsupportedFormat, desc.Label, desc.Format)
	}

	t := &texture{desc: *desc}
	t.desc.MipLevels = desc.Mips()
	t.desc.SampleCount = desc.Samples()
	if t.desc.DepthOrArraySize == 0 {
		t.desc.DepthOrArraySize = 1
	}
	mips, slices := t.desc.MipLevels, t.desc.ArraySize()
	t.subs = make([][]byte, mips*slices)
	for s := range slices {
		for m := range mips {
			t.subs[gpucore.Subresource(m, s, mips)] = make([]byte, t.subSize(m))
		}
	}

	for i, sd := range initial {
		if i >= len(t.subs) {
			return gpucore.InvalidID, fmt.Errorf("%w: %d initial entries for %d subresources", gpucore.ErrSubresourceRange, len(initial), len(t.subs))
		}
		t.upload(uint32(i), sd)
	}

	d.mu.Lock()
	id := gpucore.ResourceID(d.allocID())
	d.textures[id] = t
	d.mu.Unlock()
	slogger().Debug("soft: texture created", "id", id, "label", desc.Label,
		"width", desc.Width, "height", desc.Height, "slices", slices, "mips", mips, "format", desc.Format)
	return id, nil
}

// subSize returns the byte size of one subresource at mip m.
func (t *texture) subSize(m uint32) int {
	w, h, dep := t.mipSize(m)
	return int(w * h * dep * t.desc.SampleCount * t.desc.Format.BytesPerElement())
}

func (t *texture) mipSize(m uint32) (w, h, dep uint32) {
	return gpucore.MipExtent(t.desc.Width, m),
		gpucore.MipExtent(t.desc.Height, m),
		gpucore.MipExtent(t.desc.Depth(), m)
}

// upload copies pitched source data into a tightly packed subresource.
func (t *texture) upload(sub uint32, sd gpucore.SubresourceData) {
	m := sub % t.desc.MipLevels
	w, h, dep := t.mipSize(m)
	row := int(w * t.desc.Format.BytesPerElement())
	rowPitch := int(sd.RowPitch)
	if rowPitch == 0 {
		rowPitch = row
	}
	slicePitch := int(sd.SlicePitch)
	if slicePitch == 0 {
		slicePitch = rowPitch * int(h)
	}
	dst := t.subs[sub]
	for z := range int(dep) {
		for y := range int(h) {
			src := z*slicePitch + y*rowPitch
			if src >= len(sd.Data) {
				return
			}
			end := min(src+row, len(sd.Data))
			copy(dst[(z*int(h)+y)*row:], sd.Data[src:end])
		}
	}
}

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc, initial []byte) (gpucore.ResourceID, error) {
	if desc.ByteWidth == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer %q has zero size", ErrInvalidDescriptor, desc.Label)
	}
	if desc.Misc&gpucore.MiscBufferStructured != 0 && desc.StructureByteStride == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: structured buffer %q has no stride", ErrInvalidDescriptor, desc.Label)
	}
	b := &buffer{desc: *desc, data: make([]byte, desc.ByteWidth)}
	copy(b.data, initial)

	d.mu.Lock()
	id := gpucore.ResourceID(d.allocID())
	d.buffers[id] = b
	d.mu.Unlock()
	slogger().Debug("soft: buffer created", "id", id, "label", desc.Label, "bytes", desc.ByteWidth)
	return id, nil
}

// CreateReadView implements gpucore.Device.
func (d *Device) CreateReadView(res gpucore.ResourceID, desc *gpucore.ViewDesc) (gpucore.ReadView, error) {
	id, err := d.createView(kindRead, gpucore.BindShaderResource, res, desc)
	return gpucore.ReadView(id), err
}

// CreateWriteView implements gpucore.Device.
func (d *Device) CreateWriteView(res gpucore.ResourceID, desc *gpucore.ViewDesc) (gpucore.WriteView, error) {
	id, err := d.createView(kindWrite, gpucore.BindUnorderedAccess, res, desc)
	return gpucore.WriteView(id), err
}

// CreateTargetView implements gpucore.Device.
func (d *Device) CreateTargetView(res gpucore.ResourceID, desc *gpucore.ViewDesc) (gpucore.TargetView, error) {
	id, err := d.createView(kindTarget, gpucore.BindRenderTarget, res, desc)
	return gpucore.TargetView(id), err
}

// CreateDepthView implements gpucore.Device.
func (d *Device) CreateDepthView(res gpucore.ResourceID, desc *gpucore.ViewDesc) (gpucore.DepthView, error) {
	id, err := d.createView(kindDepth, gpucore.BindDepthStencil, res, desc)
	return gpucore.DepthView(id), err
}

func (d *Device) createView(kind viewKind, need gpucore.BindFlags, res gpucore.ResourceID, desc *gpucore.ViewDesc) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	resolved := *desc
	if t, ok := d.textures[res]; ok {
		if !t.desc.Bind.Has(need) {
			return 0, fmt.Errorf("%w: %s view on %q", gpucore.ErrMissingBindFlag, kind, t.desc.Label)
		}
		if err := gpucore.ResolveTextureView(&t.desc, &resolved, kind == kindRead); err != nil {
			return 0, err
		}
	} else if b, ok := d.buffers[res]; ok {
		if !b.desc.Bind.Has(need) {
			return 0, fmt.Errorf("%w: %s view on %q", gpucore.ErrMissingBindFlag, kind, b.desc.Label)
		}
		if _, err := gpucore.ResolveBufferView(&b.desc, &resolved); err != nil {
			return 0, err
		}
	} else {
		return 0, fmt.Errorf("%w: resource %d", gpucore.ErrInvalidHandle, res)
	}

	id := d.allocID()
	d.views[id] = &view{kind: kind, res: res, desc: resolved}
	return id, nil
}

// CreateShader implements gpucore.Device.
func (d *Device) CreateShader(desc *gpucore.ShaderDesc) (gpucore.ShaderID, error) {
	if desc.EntryPoint == "" {
		return gpucore.InvalidID, fmt.Errorf("%w: shader %q has no entry point", ErrInvalidDescriptor, desc.Label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.ShaderID(d.allocID())
	d.shaders[id] = &shader{desc: *desc}
	return id, nil
}

// CreateInputLayout implements gpucore.Device.
func (d *Device) CreateInputLayout(elements []gpucore.InputElement, _ []byte) (gpucore.InputLayoutID, error) {
	if len(elements) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: empty input layout", ErrInvalidDescriptor)
	}
	resolved, _ := gpucore.ResolveOffsets(elements)
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.InputLayoutID(d.allocID())
	d.layouts[id] = resolved
	return id, nil
}

// CreateRasterizerState implements gpucore.Device.
func (d *Device) CreateRasterizerState(desc *gpucore.RasterizerDesc) (gpucore.RasterizerStateID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.RasterizerStateID(d.allocID())
	d.rasters[id] = *desc
	return id, nil
}

// ReleaseView implements gpucore.Device.
func (d *Device) ReleaseView(v gpucore.View) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.views, v.ID())
}

// ReleaseResource implements gpucore.Device.
func (d *Device) ReleaseResource(res gpucore.ResourceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, v := range d.views {
		if v.res == res {
			slogger().Warn("soft: resource released with live view", "resource", res, "view", id, "kind", v.kind)
		}
	}
	delete(d.textures, res)
	delete(d.buffers, res)
}

// DescribeTexture implements gpucore.Device.
func (d *Device) DescribeTexture(res gpucore.ResourceID) (gpucore.TextureDesc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[res]
	if !ok {
		return gpucore.TextureDesc{}, fmt.Errorf("%w: texture %d", gpucore.ErrInvalidHandle, res)
	}
	return t.desc, nil
}

// DescribeBuffer implements gpucore.Device.
func (d *Device) DescribeBuffer(res gpucore.ResourceID) (gpucore.BufferDesc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[res]
	if !ok {
		return gpucore.BufferDesc{}, fmt.Errorf("%w: buffer %d", gpucore.ErrInvalidHandle, res)
	}
	return b.desc, nil
}

// ViewResource implements gpucore.Device.
func (d *Device) ViewResource(v gpucore.View) (gpucore.ResourceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.views[v.ID()]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: view %d", gpucore.ErrInvalidHandle, v.ID())
	}
	return rec.res, nil
}

// ReadSubresource implements gpucore.Device.
func (d *Device) ReadSubresource(res gpucore.ResourceID, subresource uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures[res]; ok {
		if int(subresource) >= len(t.subs) {
			return nil, fmt.Errorf("%w: subresource %d of %d", gpucore.ErrSubresourceRange, subresource, len(t.subs))
		}
		return append([]byte(nil), t.subs[subresource]...), nil
	}
	if b, ok := d.buffers[res]; ok {
		if subresource != 0 {
			return nil, fmt.Errorf("%w: buffer subresource %d", gpucore.ErrSubresourceRange, subresource)
		}
		return append([]byte(nil), b.data...), nil
	}
	return nil, fmt.Errorf("%w: resource %d", gpucore.ErrInvalidHandle, res)
}

// LiveObjects returns the number of live resources and views.
func (d *Device) LiveObjects() (resources, views int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures) + len(d.buffers), len(d.views)
}

// lookup helpers; callers hold no lock. The context runs on one goroutine
// and never overlaps device calls that mutate the maps it reads.

func (d *Device) viewRec(id uint64) (*view, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.views[id]
	return v, ok
}

func (d *Device) textureRec(id gpucore.ResourceID) (*texture, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	return t, ok
}

func (d *Device) bufferRec(id gpucore.ResourceID) (*buffer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	return b, ok
}

func (d *Device) shaderRec(id gpucore.ShaderID) (*shader, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.shaders[id]
	return s, ok
}

func (d *Device) program(entry string) (Program, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.programs[entry]
	return p, ok
}

var _ gpucore.Device = (*Device)(nil)
