// Package soft is a CPU reference implementation of gpucore.Device.
//
// Resources are plain host memory, tightly packed per subresource. The
// immediate context records every call in order (see Context.Calls) and
// executes the ones that touch memory: clears, uploads, copies and
// readback. Draws and dispatches run the Program registered for the bound
// shader's entry point:
//
//   - fs_depth_peel: rasterizes into a k-buffer write view
//   - fs_test: rasterizes a depth-shaded image into render target 0
//   - fs_resample: bilinear full-screen resample into render target 0
//   - cs_render: composites the view and light k-buffers
//
// Shaders with any other entry point are bound and recorded but draw
// nothing. cs_render splits its rows across a worker pool that Close
// stops. Context methods return no errors; the first failure is
// reported by Flush.
//
//	dev := soft.New()
//	ctx := dev.Context()
//	// ... issue commands ...
//	if err := ctx.Flush(); err != nil {
//		return err
//	}
//	for _, c := range ctx.Calls() {
//		fmt.Println(c)
//	}
package soft
