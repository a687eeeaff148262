package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/sparsevolume/gpucore"
)

// VertexFormat names a vertex buffer layout.
type VertexFormat uint8

// Vertex formats.
const (
	// VertexFormatPositionNormal is float3 POSITION then float3 NORMAL,
	// 24 bytes per vertex.
	VertexFormatPositionNormal VertexFormat = iota + 1
)

// Elements returns the input elements of the format.
func (f VertexFormat) Elements() []gpucore.InputElement {
	switch f {
	case VertexFormatPositionNormal:
		return []gpucore.InputElement{
			{SemanticName: "POSITION", Format: gpucore.FormatR32G32B32Float, AlignedByteOffset: 0},
			{SemanticName: "NORMAL", Format: gpucore.FormatR32G32B32Float, AlignedByteOffset: gpucore.AppendAligned},
		}
	default:
		return nil
	}
}

// Stride returns the byte size of one vertex.
func (f VertexFormat) Stride() uint32 {
	_, strides := gpucore.ResolveOffsets(f.Elements())
	return strides[0]
}

type layoutKey struct {
	vs     ID
	format VertexFormat
}

// InputLayout returns the input layout binding format to the vertex shader
// vs, creating it on dev on first use.
//
// The cache is keyed by (vs, format) and uses double-check locking:
//  1. Fast path: RLock, check cache, return if found
//  2. Slow path: Lock, double-check, create if needed
//
// Concurrent first use creates exactly one layout per key.
func (r *Registry) InputLayout(dev gpucore.Device, vs ID, format VertexFormat) (gpucore.InputLayoutID, error) {
	key := layoutKey{vs, format}

	// Fast path: read lock
	r.mu.RLock()
	if id, ok := r.layouts[key]; ok {
		r.mu.RUnlock()
		atomic.AddUint64(&r.hits, 1)
		return id, nil
	}
	r.mu.RUnlock()

	// Slow path: write lock with double-check
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.layouts[key]; ok {
		atomic.AddUint64(&r.hits, 1)
		return id, nil
	}

	if dev == nil {
		return gpucore.InvalidID, ErrNilDevice
	}
	elements := format.Elements()
	if elements == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: vertex format %d", ErrUnknownShader, format)
	}
	if vs.Stage() != gpucore.StageVertex {
		return gpucore.InvalidID, fmt.Errorf("%w: %s is not a vertex shader", ErrUnknownShader, vs)
	}
	sh, ok := r.shaders[vs]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: %s", ErrNotLoaded, vs)
	}

	id, err := dev.CreateInputLayout(elements, sh.bytecode)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("pipeline: input layout for %s: %w", vs, err)
	}
	r.layouts[key] = id
	atomic.AddUint64(&r.misses, 1)
	slogger().Debug("pipeline: input layout created", "shader", vs.String(), "format", int(format))
	return id, nil
}

// Stats returns input-layout cache statistics.
//
// These values are read atomically and may not be perfectly synchronized.
func (r *Registry) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&r.hits), atomic.LoadUint64(&r.misses)
}
