package pipeline

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/sparsevolume/gpucore"
)

// Embedded WGSL shader sources.

//go:embed shaders/basepass.wgsl
var basePassSource string

//go:embed shaders/resample.wgsl
var resampleSource string

//go:embed shaders/composite.wgsl
var compositeSource string

// ID names a shader known to the registry. IDs are stable across builds.
type ID uint8

// Shader IDs.
const (
	// VSBasePass transforms position+normal vertices by the matrices at
	// vertex constant slot 0.
	VSBasePass ID = iota

	// VSScreenQuad emits one viewport-covering triangle from the vertex
	// index. It needs no vertex buffer.
	VSScreenQuad

	// PSDepthPeel inserts fragment depths into the k-buffer at pixel write
	// slot 0.
	PSDepthPeel

	// PSTest shades the nearest surface by depth into render target 0.
	PSTest

	// PSResample filters pixel read slot 0 into render target 0.
	PSResample

	// CSRender composites both k-buffers into compute write slot 0.
	CSRender

	numIDs
)

// Entry point names inside the embedded modules.
const (
	EntryBasePass   = "vs_basepass"
	EntryScreenQuad = "vs_screen_quad"
	EntryDepthPeel  = "fs_depth_peel"
	EntryTest       = "fs_test"
	EntryResample   = "fs_resample"
	EntryComposite  = "cs_render"
)

type shaderInfo struct {
	name   string
	stage  gpucore.ShaderStage
	entry  string
	source *string
}

var shaderTable = [numIDs]shaderInfo{
	VSBasePass:   {"basepass.vs", gpucore.StageVertex, EntryBasePass, &basePassSource},
	VSScreenQuad: {"screen_quad.vs", gpucore.StageVertex, EntryScreenQuad, &resampleSource},
	PSDepthPeel:  {"depth_peel.ps", gpucore.StagePixel, EntryDepthPeel, &basePassSource},
	PSTest:       {"test.ps", gpucore.StagePixel, EntryTest, &basePassSource},
	PSResample:   {"resample.ps", gpucore.StagePixel, EntryResample, &resampleSource},
	CSRender:     {"render.cs", gpucore.StageCompute, EntryComposite, &compositeSource},
}

// String returns the shader's debug name.
func (id ID) String() string {
	if id < numIDs {
		return shaderTable[id].name
	}
	return fmt.Sprintf("ID(%d)", uint8(id))
}

// Stage returns the pipeline stage the shader runs in.
func (id ID) Stage() gpucore.ShaderStage {
	if id < numIDs {
		return shaderTable[id].stage
	}
	return gpucore.StageVertex
}

// EntryPoint returns the entry function name of the shader.
func (id ID) EntryPoint() string {
	if id < numIDs {
		return shaderTable[id].entry
	}
	return ""
}

// Source returns the WGSL module containing the shader.
func (id ID) Source() string {
	if id < numIDs {
		return *shaderTable[id].source
	}
	return ""
}

// IDs returns every shader ID in order.
func IDs() []ID {
	ids := make([]ID, numIDs)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}
