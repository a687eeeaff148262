// Package resource wraps device allocations together with the views they
// are accessed through.
//
// Every flavour (Texture, Buffer, RenderTarget, DepthStencil) owns one
// allocation and creates all of its views in the constructor. Views never
// change afterwards. Close releases the views, then the allocation.
//
// # View indexing
//
// Read view 0 is the whole resource. For textures created with more than
// one mip, read view 1+m covers mip m alone, and write view m covers mip m.
// Every getter is bounds-checked and fails with ErrViewIndexOutOfRange.
//
//	kbuf, err := resource.NewTexture2D(dev, resource.TextureConfig{
//		Width: 640, Height: 480, ArraySize: 8,
//		Format: gpucore.FormatR32Uint,
//	})
//	uav, err := kbuf.WriteView(0)
//
// # Logging
//
// Creation and release are logged at Debug through the logger installed
// with SetLogger. The root sparsevolume package forwards its logger here.
package resource
