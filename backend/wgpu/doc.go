// Package wgpu implements gpucore.Device on the gogpu/wgpu HAL.
//
// The device maps the D3D11-style resource model onto WebGPU. Resources
// and views are HAL textures, buffers and texture views. Everything the
// D3D11 model keeps as loose context state (shaders, vertex layout,
// rasterizer state, targets) is folded into pipelines at draw time.
//
// # Registration
//
// Importing package backend registers this device as "wgpu". A HAL backend
// must be linked in for Open to find an adapter:
//
//	import _ "github.com/gogpu/wgpu/hal/allbackends"
//
//	dev, err := wgpu.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
// A host application that already owns a device shares it through
// NewFromHAL or NewFromProvider. Close then leaves the HAL device alive.
//
// # Binding Model
//
// Every shader uses the same bind group convention, with the binding
// number equal to the D3D11 slot:
//
//	@group(0) constant buffers      (uniform)
//	@group(1) read views            (texture or read-only storage buffer)
//	@group(2) write views           (storage texture or storage buffer)
//
// Bind group layouts are derived from the views bound at each draw or
// dispatch. Groups below the highest used group are bound empty.
//
// # Command Submission
//
// Each draw, dispatch and target clear is encoded as its own pass. Passes
// collect on one command encoder that is submitted before any queue write,
// so uploads and clears of write views stay ordered with the passes
// around them. Flush and ReadSubresource wait for the GPU.
//
// # Pipeline Cache
//
// Pipelines are keyed by shader IDs, input layout, rasterizer state,
// attachment formats and bind group layouts. A frame with unchanged state
// creates no pipelines; PipelineCache.Stats reports hits and misses.
//
// # Limitations
//
//   - One viewport is applied per pass.
//   - A pass with write views but no targets draws into a write-masked
//     R8 attachment sized by the first viewport.
//   - Texture readback of Depth24PlusStencil8 is unsupported.
//   - Read-write storage textures require an R32 format.
package wgpu
