// Package gpucore defines the device boundary of sparsevolume.
//
// The [Device] interface creates textures, buffers and the views through
// which shaders see them. The [Context] interface is a D3D11-style
// immediate context: bind state, clear, draw, dispatch. Renderers are
// written once against these interfaces while backends translate to a
// concrete API:
//
//	               +------------------+
//	               |  sparsevolume    |
//	               |  resource        |
//	               +--------+---------+
//	                        |
//	                 gpucore.Device
//	                 gpucore.Context
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/wgpu   |          |  backend/soft   |
//	|  (hal.Device)   |          |  (CPU memory)   |
//	+-----------------+          +-----------------+
//
// # Resource Management
//
// Device objects are referenced by opaque IDs ([ResourceID], [ReadView],
// [WriteView], [TargetView], [DepthView], ...). The zero ID is the null
// object; binding it unbinds the slot. Views never outlive the resource
// they were created on: release views first, then the resource.
//
// # Scoped State
//
// [SaveState] captures bound targets and viewports and returns a restore
// function meant to be deferred, so overrides are undone on every exit path.
package gpucore
