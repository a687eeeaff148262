package wgpu

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// Bind groups follow one convention for every shader:
//
//	group 0: constant buffers, binding = slot
//	group 1: read views, binding = slot
//	group 2: write views, binding = slot
const (
	groupConstants = iota
	groupReads
	groupWrites
	numGroups
)

// groupSpec is the layout of one bind group, sorted by binding.
type groupSpec []gputypes.BindGroupLayoutEntry

func (g groupSpec) key() string {
	var b strings.Builder
	for _, e := range g {
		fmt.Fprintf(&b, "%d/%d", e.Binding, e.Visibility)
		switch {
		case e.Buffer != nil:
			fmt.Fprintf(&b, "b%d", e.Buffer.Type)
		case e.Texture != nil:
			fmt.Fprintf(&b, "t%d,%d", e.Texture.SampleType, e.Texture.ViewDimension)
		case e.StorageTexture != nil:
			fmt.Fprintf(&b, "s%d,%d,%d", e.StorageTexture.Access, e.StorageTexture.Format, e.StorageTexture.ViewDimension)
		}
		b.WriteByte(';')
	}
	return b.String()
}

// layoutSpec is the bind group layout set of one pipeline.
type layoutSpec [numGroups]groupSpec

// used returns the number of groups up to the last non-empty one.
func (l *layoutSpec) used() int {
	n := 0
	for i, g := range l {
		if len(g) > 0 {
			n = i + 1
		}
	}
	return n
}

func (l *layoutSpec) key() string {
	var b strings.Builder
	for i := range l.used() {
		fmt.Fprintf(&b, "[%s]", l[i].key())
	}
	return b.String()
}

// pipelineLayout is a cached pipeline layout with its group layouts.
type pipelineLayout struct {
	raw    hal.PipelineLayout
	groups []hal.BindGroupLayout
}

// renderSpec describes a render pipeline. Shaders and input layouts are
// keyed by ID; everything else by value.
type renderSpec struct {
	vsID     gpucore.ShaderID
	psID     gpucore.ShaderID
	vs       *shader
	ps       *shader
	layoutID gpucore.InputLayoutID
	buffers  []gputypes.VertexBufferLayout
	prim     gputypes.PrimitiveState
	colors   []gputypes.ColorTargetState
	depth    *hal.DepthStencilState
	groups   layoutSpec
}

func (s *renderSpec) key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "vs%d ps%d il%d prim%v", s.vsID, s.psID, s.layoutID, s.prim)
	for _, vb := range s.buffers {
		fmt.Fprintf(&b, " vb%d", vb.ArrayStride)
	}
	for _, c := range s.colors {
		fmt.Fprintf(&b, " c%d/%d", c.Format, c.WriteMask)
	}
	if s.depth != nil {
		fmt.Fprintf(&b, " d%d/%t", s.depth.Format, s.depth.DepthWriteEnabled)
	}
	b.WriteString(s.groups.key())
	return b.String()
}

type computeSpec struct {
	csID   gpucore.ShaderID
	cs     *shader
	groups layoutSpec
}

func (s *computeSpec) key() string {
	return fmt.Sprintf("cs%d%s", s.csID, s.groups.key())
}

// PipelineCache creates and caches the pipelines the immediate context
// needs. Pipelines are derived from bound state, so a steady frame hits the
// cache on every draw after the first.
//
// PipelineCache is safe for concurrent read access. Pipeline creation
// is synchronized internally.
type PipelineCache struct {
	mu sync.RWMutex

	device hal.Device

	groupLayouts map[string]hal.BindGroupLayout
	layouts      map[string]*pipelineLayout
	render       map[string]hal.RenderPipeline
	compute      map[string]hal.ComputePipeline
	emptyGroup   hal.BindGroup

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPipelineCache creates an empty cache for device.
func NewPipelineCache(device hal.Device) *PipelineCache {
	return &PipelineCache{
		device:       device,
		groupLayouts: make(map[string]hal.BindGroupLayout),
		layouts:      make(map[string]*pipelineLayout),
		render:       make(map[string]hal.RenderPipeline),
		compute:      make(map[string]hal.ComputePipeline),
	}
}

// renderPipeline returns the pipeline for spec, creating it on a miss.
func (pc *PipelineCache) renderPipeline(spec *renderSpec) (hal.RenderPipeline, *pipelineLayout, error) {
	key := spec.key()
	layoutKey := spec.groups.key()

	pc.mu.RLock()
	p, ok := pc.render[key]
	layout := pc.layouts[layoutKey]
	pc.mu.RUnlock()
	if ok {
		pc.hits.Add(1)
		return p, layout, nil
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	// Double-check after acquiring write lock
	if p, ok = pc.render[key]; ok {
		pc.hits.Add(1)
		return p, pc.layouts[layoutKey], nil
	}
	pc.misses.Add(1)

	layout, err := pc.layoutLocked(&spec.groups)
	if err != nil {
		return nil, nil, err
	}
	desc := &hal.RenderPipelineDescriptor{
		Label:  "sparsevolume_" + spec.vs.desc.EntryPoint,
		Layout: layout.raw,
		Vertex: hal.VertexState{
			Module:     spec.vs.module,
			EntryPoint: spec.vs.desc.EntryPoint,
			Buffers:    spec.buffers,
		},
		Primitive:    spec.prim,
		DepthStencil: spec.depth,
		Multisample:  gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	}
	if spec.ps != nil {
		desc.Fragment = &hal.FragmentState{
			Module:     spec.ps.module,
			EntryPoint: spec.ps.desc.EntryPoint,
			Targets:    spec.colors,
		}
	}
	p, err = pc.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create render pipeline %s: %w", key, err)
	}
	pc.render[key] = p
	slogger().Debug("wgpu: render pipeline created", "key", key)
	return p, layout, nil
}

// computePipeline returns the pipeline for spec, creating it on a miss.
func (pc *PipelineCache) computePipeline(spec *computeSpec) (hal.ComputePipeline, *pipelineLayout, error) {
	key := spec.key()
	layoutKey := spec.groups.key()

	pc.mu.RLock()
	p, ok := pc.compute[key]
	layout := pc.layouts[layoutKey]
	pc.mu.RUnlock()
	if ok {
		pc.hits.Add(1)
		return p, layout, nil
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if p, ok = pc.compute[key]; ok {
		pc.hits.Add(1)
		return p, pc.layouts[layoutKey], nil
	}
	pc.misses.Add(1)

	layout, err := pc.layoutLocked(&spec.groups)
	if err != nil {
		return nil, nil, err
	}
	p, err = pc.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "sparsevolume_" + spec.cs.desc.EntryPoint,
		Layout:  layout.raw,
		Compute: hal.ComputeState{Module: spec.cs.module, EntryPoint: spec.cs.desc.EntryPoint},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create compute pipeline %s: %w", key, err)
	}
	pc.compute[key] = p
	slogger().Debug("wgpu: compute pipeline created", "key", key)
	return p, layout, nil
}

// layoutLocked returns the pipeline layout for groups. Callers hold mu.
func (pc *PipelineCache) layoutLocked(groups *layoutSpec) (*pipelineLayout, error) {
	key := groups.key()
	if l, ok := pc.layouts[key]; ok {
		return l, nil
	}
	l := &pipelineLayout{}
	for i := range groups.used() {
		g, err := pc.groupLayoutLocked(groups[i])
		if err != nil {
			return nil, err
		}
		l.groups = append(l.groups, g)
	}
	raw, err := pc.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "sparsevolume_layout",
		BindGroupLayouts: l.groups,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}
	l.raw = raw
	pc.layouts[key] = l
	return l, nil
}

func (pc *PipelineCache) groupLayoutLocked(g groupSpec) (hal.BindGroupLayout, error) {
	key := g.key()
	if l, ok := pc.groupLayouts[key]; ok {
		return l, nil
	}
	l, err := pc.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "sparsevolume_group",
		Entries: g,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create bind group layout %q: %w", key, err)
	}
	pc.groupLayouts[key] = l
	return l, nil
}

// empty returns the shared bind group for groups with no bindings.
func (pc *PipelineCache) empty() (hal.BindGroup, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.emptyGroup != nil {
		return pc.emptyGroup, nil
	}
	layout, err := pc.groupLayoutLocked(nil)
	if err != nil {
		return nil, err
	}
	g, err := pc.device.CreateBindGroup(&hal.BindGroupDescriptor{Label: "sparsevolume_empty", Layout: layout})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create empty bind group: %w", err)
	}
	pc.emptyGroup = g
	return g, nil
}

// Stats returns the cache hit and miss counts.
func (pc *PipelineCache) Stats() (hits, misses uint64) {
	return pc.hits.Load(), pc.misses.Load()
}

// Len returns the number of cached render and compute pipelines.
func (pc *PipelineCache) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.render) + len(pc.compute)
}

// Close releases all pipeline resources.
func (pc *PipelineCache) Close() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	for _, p := range pc.render {
		pc.device.DestroyRenderPipeline(p)
	}
	for _, p := range pc.compute {
		pc.device.DestroyComputePipeline(p)
	}
	if pc.emptyGroup != nil {
		pc.device.DestroyBindGroup(pc.emptyGroup)
		pc.emptyGroup = nil
	}
	for _, l := range pc.layouts {
		pc.device.DestroyPipelineLayout(l.raw)
	}
	for _, l := range pc.groupLayouts {
		pc.device.DestroyBindGroupLayout(l)
	}
	clear(pc.render)
	clear(pc.compute)
	clear(pc.layouts)
	clear(pc.groupLayouts)
}
