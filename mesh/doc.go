// Package mesh imports triangle meshes for the volume renderer.
//
// Geometry comes out interleaved as float3 position then float3 normal
// (24 bytes per vertex) with 32-bit indices, together with a bounding
// sphere used to frame the light.
package mesh
