package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// Errors returned by the wgpu device.
var (
	// ErrNoAdapter is returned by Open when no linked HAL backend exposes
	// an adapter.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter available")

	// ErrUnsupported is returned for a format, dimension or feature the
	// device cannot express in WebGPU.
	ErrUnsupported = errors.New("wgpu: unsupported")

	// ErrInvalidDescriptor is returned for a descriptor the device rejects.
	ErrInvalidDescriptor = errors.New("wgpu: invalid descriptor")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("wgpu: device closed")
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// preferredBackends is the order Open tries HAL backends in.
var preferredBackends = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
}

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

type texture struct {
	desc   gpucore.TextureDesc
	format gputypes.TextureFormat
	raw    hal.Texture
}

type buffer struct {
	desc gpucore.BufferDesc
	size uint64
	raw  hal.Buffer
}

// view is a resolved view. Texture views carry a HAL view; buffer views
// carry the byte range they bind.
type view struct {
	kind viewKind
	res  gpucore.ResourceID
	desc gpucore.ViewDesc

	raw    hal.TextureView
	format gputypes.TextureFormat
	dim    gputypes.TextureViewDimension
	width  uint32
	height uint32

	buffer hal.Buffer
	offset uint64
	size   uint64
}

type shader struct {
	desc   gpucore.ShaderDesc
	module hal.ShaderModule
}

// Device implements gpucore.Device on a gogpu/wgpu HAL device.
//
// Resource creation maps directly onto HAL objects. Draws, dispatches and
// clears are encoded on the immediate Context; pipelines and bind group
// layouts are derived from the bound state and cached.
type Device struct {
	mu     sync.Mutex
	nextID uint64
	closed bool

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	info     gputypes.AdapterInfo

	textures map[gpucore.ResourceID]*texture
	buffers  map[gpucore.ResourceID]*buffer
	views    map[uint64]*view
	shaders  map[gpucore.ShaderID]*shader
	layouts  map[gpucore.InputLayoutID][]gpucore.InputElement
	rasters  map[gpucore.RasterizerStateID]gpucore.RasterizerDesc

	pipelines *PipelineCache
	ctx       *Context
}

// Open creates a device on the first linked HAL backend that exposes an
// adapter, preferring discrete and integrated GPUs. Import
// github.com/gogpu/wgpu/hal/allbackends to link the platform backends.
func Open() (*Device, error) {
	var errs []error
	for _, variant := range preferredBackends {
		d, err := OpenBackend(variant)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoAdapter, errors.Join(errs...))
}

// OpenBackend creates a device on one HAL backend.
func OpenBackend(variant gputypes.Backend) (*Device, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("wgpu: %s backend not linked", variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %s instance: %w", variant, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, variant)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open %s device: %w", variant, err)
	}
	d := newDevice(open.Device, open.Queue)
	d.instance = instance
	d.info = selected.Info
	slogger().Info("wgpu: device opened", "backend", variant, "adapter", selected.Info.Name)
	return d, nil
}

// NewFromHAL wraps a HAL device and queue owned by the caller. Close
// releases the objects the Device created but not the device itself.
func NewFromHAL(device hal.Device, queue hal.Queue) *Device {
	d := newDevice(device, queue)
	d.external = true
	return d
}

// NewFromProvider shares the HAL device of a gpucontext.DeviceProvider.
// The provider must also expose HalDevice() and HalQueue().
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrUnsupported)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrUnsupported)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrUnsupported)
	}
	d := NewFromHAL(device, queue)
	d.info = gputypes.AdapterInfo{Name: provider.AdapterInfo().Name}
	slogger().Info("wgpu: sharing provider device", "adapter", d.info.Name)
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue) *Device {
	d := &Device{
		device:   device,
		queue:    queue,
		textures: make(map[gpucore.ResourceID]*texture),
		buffers:  make(map[gpucore.ResourceID]*buffer),
		views:    make(map[uint64]*view),
		shaders:  make(map[gpucore.ShaderID]*shader),
		layouts:  make(map[gpucore.InputLayoutID][]gpucore.InputElement),
		rasters:  make(map[gpucore.RasterizerStateID]gpucore.RasterizerDesc),
	}
	d.pipelines = NewPipelineCache(device)
	d.ctx = newContext(d)
	return d
}

// SetLogger sets the logger of the wgpu backend.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// Info returns the adapter the device runs on.
func (d *Device) Info() gputypes.AdapterInfo { return d.info }

// Context returns the immediate context with its wgpu-only methods.
func (d *Device) Context() *Context { return d.ctx }

// ImmediateContext implements gpucore.Device.
func (d *Device) ImmediateContext() gpucore.Context { return d.ctx }

// Pipelines returns the device's pipeline cache.
func (d *Device) Pipelines() *PipelineCache { return d.pipelines }

func (d *Device) allocID() uint64 {
	d.nextID++
	return d.nextID
}

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc, initial []gpucore.SubresourceData) (gpucore.ResourceID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %q has zero size", ErrInvalidDescriptor, desc.Label)
	}
	dim := gputypes.TextureDimension2D
	switch desc.Dimension {
	case gpucore.DimensionTexture2D:
	case gpucore.DimensionTexture3D:
		dim = gputypes.TextureDimension3D
	default:
		return gpucore.InvalidID, fmt.Errorf("%w: texture %q dimension %d", gpucore.ErrWrongDimension, desc.Label, desc.Dimension)
	}
	format, err := textureFormat(desc.Format, desc.Bind)
	if err != nil {
		return gpucore.InvalidID, err
	}

	t := &texture{desc: *desc, format: format}
	t.desc.MipLevels = desc.Mips()
	t.desc.SampleCount = desc.Samples()
	if t.desc.DepthOrArraySize == 0 {
		t.desc.DepthOrArraySize = 1
	}
	if len(initial) > int(t.desc.MipLevels*t.desc.ArraySize()) {
		return gpucore.InvalidID, fmt.Errorf("%w: %d initial entries for %d subresources",
			gpucore.ErrSubresourceRange, len(initial), t.desc.MipLevels*t.desc.ArraySize())
	}
	t.raw, err = d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: t.desc.DepthOrArraySize,
		},
		MipLevelCount: t.desc.MipLevels,
		SampleCount:   t.desc.SampleCount,
		Dimension:     dim,
		Format:        format,
		Usage:         textureUsage(desc.Bind),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	for i, sd := range initial {
		if err := d.writeTexture(t, uint32(i), sd); err != nil {
			d.device.DestroyTexture(t.raw)
			return gpucore.InvalidID, err
		}
	}

	d.mu.Lock()
	id := gpucore.ResourceID(d.allocID())
	d.textures[id] = t
	d.mu.Unlock()
	slogger().Debug("wgpu: texture created", "id", id, "label", desc.Label,
		"width", desc.Width, "height", desc.Height, "layers", t.desc.DepthOrArraySize, "mips", t.desc.MipLevels, "format", format)
	return id, nil
}

// writeTexture uploads one subresource through the queue.
func (d *Device) writeTexture(t *texture, sub uint32, sd gpucore.SubresourceData) error {
	mip, slice := sub%t.desc.MipLevels, sub/t.desc.MipLevels
	w := gpucore.MipExtent(t.desc.Width, mip)
	h := gpucore.MipExtent(t.desc.Height, mip)
	depth := gpucore.MipExtent(t.desc.Depth(), mip)
	row := w * t.desc.Format.BytesPerElement()
	pitch := sd.RowPitch
	if pitch == 0 {
		pitch = row
	}
	rows := h
	if sd.SlicePitch != 0 && pitch != 0 {
		rows = sd.SlicePitch / pitch
	}
	aspect := gputypes.TextureAspectAll
	if isDepthFormat(t.format) {
		aspect = gputypes.TextureAspectDepthOnly
	}
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.raw, MipLevel: mip, Origin: hal.Origin3D{Z: slice}, Aspect: aspect},
		sd.Data,
		&hal.ImageDataLayout{BytesPerRow: pitch, RowsPerImage: rows},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: depth},
	)
	if err != nil {
		return fmt.Errorf("wgpu: write texture %q subresource %d: %w", t.desc.Label, sub, err)
	}
	return nil
}

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc, initial []byte) (gpucore.ResourceID, error) {
	if desc.ByteWidth == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer %q has zero size", ErrInvalidDescriptor, desc.Label)
	}
	if desc.Misc&gpucore.MiscBufferStructured != 0 && desc.StructureByteStride == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: structured buffer %q has no stride", ErrInvalidDescriptor, desc.Label)
	}
	b := &buffer{desc: *desc, size: align(uint64(desc.ByteWidth), 4)}
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  b.size,
		Usage: bufferUsage(desc),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	b.raw = raw
	if len(initial) > 0 {
		if err := d.queue.WriteBuffer(raw, 0, padTo4(initial)); err != nil {
			d.device.DestroyBuffer(raw)
			return gpucore.InvalidID, fmt.Errorf("wgpu: initialize buffer %q: %w", desc.Label, err)
		}
	}

	d.mu.Lock()
	id := gpucore.ResourceID(d.allocID())
	d.buffers[id] = b
	d.mu.Unlock()
	slogger().Debug("wgpu: buffer created", "id", id, "label", desc.Label, "bytes", desc.ByteWidth)
	return id, nil
}

// padTo4 returns data extended with zeros to a multiple of four bytes, the
// granularity of queue buffer writes.
func padTo4(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	out := make([]byte, align(uint32(len(data)), 4))
	copy(out, data)
	return out
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

	v := &view{kind: kind, res: res, desc: *desc}
	if t, ok := d.textures[res]; ok {
		if !t.desc.Bind.Has(need) {
			return 0, fmt.Errorf("%w: %s view on %q", gpucore.ErrMissingBindFlag, kind, t.desc.Label)
		}
		if err := gpucore.ResolveTextureView(&t.desc, &v.desc, kind == kindRead); err != nil {
			return 0, err
		}
		if err := d.createTextureView(t, v); err != nil {
			return 0, err
		}
	} else if b, ok := d.buffers[res]; ok {
		if !b.desc.Bind.Has(need) {
			return 0, fmt.Errorf("%w: %s view on %q", gpucore.ErrMissingBindFlag, kind, b.desc.Label)
		}
		stride, err := gpucore.ResolveBufferView(&b.desc, &v.desc)
		if err != nil {
			return 0, err
		}
		v.buffer = b.raw
		v.offset = uint64(v.desc.FirstElement) * uint64(stride)
		v.size = uint64(v.desc.NumElements) * uint64(stride)
	} else {
		return 0, fmt.Errorf("%w: resource %d", gpucore.ErrInvalidHandle, res)
	}

	id := d.allocID()
	d.views[id] = v
	return id, nil
}

func (d *Device) createTextureView(t *texture, v *view) error {
	format, aspect, err := viewFormat(v.desc.Format, t.format)
	if err != nil {
		return err
	}
	dim, err := viewDimension(v.desc.Dimension)
	if err != nil {
		return err
	}
	baseMip, mips := v.desc.MipSlice, uint32(1)
	if v.kind == kindRead {
		baseMip, mips = v.desc.MostDetailedMip, v.desc.MipLevels
	}
	layers := v.desc.ArraySize
	if dim == gputypes.TextureViewDimension3D {
		layers = 1
	}
	raw, err := d.device.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:           t.desc.Label,
		Format:          format,
		Dimension:       dim,
		Aspect:          aspect,
		BaseMipLevel:    baseMip,
		MipLevelCount:   mips,
		BaseArrayLayer:  v.desc.FirstArraySlice,
		ArrayLayerCount: layers,
	})
	if err != nil {
		return fmt.Errorf("wgpu: %s view on %q: %w", v.kind, t.desc.Label, err)
	}
	v.raw = raw
	v.format = format
	v.dim = dim
	v.width = gpucore.MipExtent(t.desc.Width, baseMip)
	v.height = gpucore.MipExtent(t.desc.Height, baseMip)
	return nil
}

// CreateShader implements gpucore.Device. SPIR-V bytecode is preferred;
// otherwise the WGSL source is handed to the HAL.
func (d *Device) CreateShader(desc *gpucore.ShaderDesc) (gpucore.ShaderID, error) {
	if desc.EntryPoint == "" {
		return gpucore.InvalidID, fmt.Errorf("%w: shader %q has no entry point", ErrInvalidDescriptor, desc.Label)
	}
	src := hal.ShaderSource{WGSL: desc.Source}
	if words := spirvWords(desc.Bytecode); words != nil {
		src = hal.ShaderSource{SPIRV: words}
	} else if desc.Source == "" {
		return gpucore.InvalidID, fmt.Errorf("%w: shader %q has neither SPIR-V nor WGSL", ErrInvalidDescriptor, desc.Label)
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: desc.Label, Source: src})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create shader %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.ShaderID(d.allocID())
	d.shaders[id] = &shader{desc: *desc, module: module}
	return id, nil
}

// spirvWords converts little-endian SPIR-V bytes to words. It returns nil
// when b is not a SPIR-V module.
func spirvWords(b []byte) []uint32 {
	if len(b) < 4 || len(b)%4 != 0 || binary.LittleEndian.Uint32(b) != spirvMagic {
		return nil
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

// CreateInputLayout implements gpucore.Device. Element i feeds shader
// location i.
func (d *Device) CreateInputLayout(elements []gpucore.InputElement, _ []byte) (gpucore.InputLayoutID, error) {
	if len(elements) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: empty input layout", ErrInvalidDescriptor)
	}
	for _, e := range elements {
		if _, err := vertexFormat(e.Format); err != nil {
			return gpucore.InvalidID, err
		}
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
	rec, ok := d.views[v.ID()]
	if !ok {
		return
	}
	if rec.raw != nil {
		d.device.DestroyTextureView(rec.raw)
	}
	delete(d.views, v.ID())
}

// ReleaseResource implements gpucore.Device.
func (d *Device) ReleaseResource(res gpucore.ResourceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, v := range d.views {
		if v.res == res {
			slogger().Warn("wgpu: resource released with live view", "resource", res, "view", id, "kind", v.kind)
		}
	}
	if t, ok := d.textures[res]; ok {
		d.device.DestroyTexture(t.raw)
		delete(d.textures, res)
	}
	if b, ok := d.buffers[res]; ok {
		d.device.DestroyBuffer(b.raw)
		delete(d.buffers, res)
	}
}

// DescribeTexture implements gpucore.Device.
func (d *Device) DescribeTexture(res gpucore.ResourceID) (gpucore.TextureDesc, error) {
	t, ok := d.textureRec(res)
	if !ok {
		return gpucore.TextureDesc{}, fmt.Errorf("%w: texture %d", gpucore.ErrInvalidHandle, res)
	}
	return t.desc, nil
}

// DescribeBuffer implements gpucore.Device.
func (d *Device) DescribeBuffer(res gpucore.ResourceID) (gpucore.BufferDesc, error) {
	b, ok := d.bufferRec(res)
	if !ok {
		return gpucore.BufferDesc{}, fmt.Errorf("%w: buffer %d", gpucore.ErrInvalidHandle, res)
	}
	return b.desc, nil
}

// ViewResource implements gpucore.Device.
func (d *Device) ViewResource(v gpucore.View) (gpucore.ResourceID, error) {
	rec, ok := d.viewRec(v.ID())
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: view %d", gpucore.ErrInvalidHandle, v.ID())
	}
	return rec.res, nil
}

// LiveObjects returns the number of live resources and views.
func (d *Device) LiveObjects() (resources, views int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures) + len(d.buffers), len(d.views)
}

// Close waits for the GPU and releases every object the device created.
// A device from Open or OpenBackend also destroys its HAL device.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.ctx.Flush()
	d.ctx.release()
	d.pipelines.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range d.views {
		if v.raw != nil {
			d.device.DestroyTextureView(v.raw)
		}
	}
	for _, t := range d.textures {
		d.device.DestroyTexture(t.raw)
	}
	for _, b := range d.buffers {
		d.device.DestroyBuffer(b.raw)
	}
	for _, s := range d.shaders {
		d.device.DestroyShaderModule(s.module)
	}
	clear(d.views)
	clear(d.textures)
	clear(d.buffers)
	clear(d.shaders)
	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	slogger().Debug("wgpu: device closed")
	return err
}

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

func (d *Device) layoutRec(id gpucore.InputLayoutID) ([]gpucore.InputElement, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.layouts[id]
	return l, ok
}

func (d *Device) rasterRec(id gpucore.RasterizerStateID) gpucore.RasterizerDesc {
	if id == gpucore.InvalidID {
		return defaultRasterizer
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.rasters[id]; ok {
		return r
	}
	return defaultRasterizer
}

var _ gpucore.Device = (*Device)(nil)
