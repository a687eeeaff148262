// Package pipeline owns the shaders of the volume renderer.
//
// The WGSL sources are embedded in the binary. [Registry.Load] compiles
// them to SPIR-V with naga and creates one device shader per [ID]. The
// registry also caches input layouts by (vertex shader, vertex format), the
// one piece of state renderers share.
//
// Bind groups follow a fixed convention: group 0 holds constant buffers,
// group 1 read views and group 2 write views, each binding number equal to
// the context slot.
package pipeline
