package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/naga"

	"github.com/gogpu/sparsevolume/gpucore"
)

// Registry errors.
var (
	// ErrNilDevice is returned when loading onto a nil device.
	ErrNilDevice = errors.New("pipeline: device is nil")

	// ErrNotLoaded is returned by lookups before a successful Load.
	ErrNotLoaded = errors.New("pipeline: shaders not loaded")

	// ErrUnknownShader is returned for an ID outside the table or one looked
	// up as the wrong stage.
	ErrUnknownShader = errors.New("pipeline: unknown shader")
)

// Compiler turns WGSL source into SPIR-V bytecode.
type Compiler func(source string) ([]byte, error)

type loaded struct {
	id       gpucore.ShaderID
	bytecode []byte
}

// Registry owns the device shaders, the cull-none rasterizer state and the
// input-layout cache.
//
// Thread Safety:
// Lookups and InputLayout are safe for concurrent use. Load must not run
// concurrently with other calls.
//
// Usage:
//
//	reg := pipeline.NewRegistry()
//	if err := reg.Load(dev); err != nil {
//	    // handle error
//	}
//	vs, _ := reg.VertexShader(pipeline.VSBasePass)
type Registry struct {
	compile Compiler

	// mu protects shaders and layouts.
	mu       sync.RWMutex
	shaders  map[ID]loaded
	layouts  map[layoutKey]gpucore.InputLayoutID
	cullNone gpucore.RasterizerStateID

	// hits counts cache hits (atomic for lock-free reads).
	hits uint64

	// misses counts cache misses (atomic for lock-free reads).
	misses uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithCompiler replaces the naga WGSL compiler.
func WithCompiler(c Compiler) Option {
	return func(r *Registry) {
		if c != nil {
			r.compile = c
		}
	}
}

// NewRegistry returns an empty registry. Call Load before any lookup.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		compile: naga.Compile,
		shaders: make(map[ID]loaded),
		layouts: make(map[layoutKey]gpucore.InputLayoutID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load compiles every embedded module once and creates one device shader
// per ID, then the cull-none rasterizer state.
func (r *Registry) Load(dev gpucore.Device) error {
	if dev == nil {
		return ErrNilDevice
	}

	modules := make(map[*string][]byte)
	shaders := make(map[ID]loaded, numIDs)
	for _, id := range IDs() {
		info := shaderTable[id]
		code, ok := modules[info.source]
		if !ok {
			var err error
			code, err = r.compile(*info.source)
			if err != nil {
				return fmt.Errorf("pipeline: compile %s: %w", id, err)
			}
			modules[info.source] = code
		}
		sid, err := dev.CreateShader(&gpucore.ShaderDesc{
			Label:      id.String(),
			Stage:      info.stage,
			EntryPoint: info.entry,
			Source:     *info.source,
			Bytecode:   code,
		})
		if err != nil {
			return fmt.Errorf("pipeline: create %s: %w", id, err)
		}
		shaders[id] = loaded{id: sid, bytecode: code}
	}

	cull, err := dev.CreateRasterizerState(&gpucore.RasterizerDesc{Cull: gpucore.CullNone, DepthClip: true})
	if err != nil {
		return fmt.Errorf("pipeline: cull-none state: %w", err)
	}

	r.mu.Lock()
	r.shaders = shaders
	r.layouts = make(map[layoutKey]gpucore.InputLayoutID)
	r.cullNone = cull
	r.mu.Unlock()

	slogger().Debug("pipeline: shaders loaded", "count", len(shaders), "modules", len(modules))
	return nil
}

func (r *Registry) lookup(id ID, stage gpucore.ShaderStage) (loaded, error) {
	if id >= numIDs || id.Stage() != stage {
		return loaded{}, fmt.Errorf("%w: %s as %s shader", ErrUnknownShader, id, stage)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sh, ok := r.shaders[id]
	if !ok {
		return loaded{}, fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}
	return sh, nil
}

// VertexShader returns the device handle of a vertex shader.
func (r *Registry) VertexShader(id ID) (gpucore.ShaderID, error) {
	sh, err := r.lookup(id, gpucore.StageVertex)
	return sh.id, err
}

// PixelShader returns the device handle of a pixel shader.
func (r *Registry) PixelShader(id ID) (gpucore.ShaderID, error) {
	sh, err := r.lookup(id, gpucore.StagePixel)
	return sh.id, err
}

// ComputeShader returns the device handle of a compute shader.
func (r *Registry) ComputeShader(id ID) (gpucore.ShaderID, error) {
	sh, err := r.lookup(id, gpucore.StageCompute)
	return sh.id, err
}

// VertexShaderBytecode returns the SPIR-V module a vertex shader was
// created from.
func (r *Registry) VertexShaderBytecode(id ID) ([]byte, error) {
	sh, err := r.lookup(id, gpucore.StageVertex)
	return sh.bytecode, err
}

// CullNone returns the rasterizer state that draws both faces, or
// InvalidID before Load.
func (r *Registry) CullNone() gpucore.RasterizerStateID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cullNone
}
