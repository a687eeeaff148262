// Package sparsevolume renders a single mesh as a translucent volume with
// order-independent transparency.
//
// # Overview
//
// A [Volume] depth-peels the mesh into per-pixel k-buffers: R32_UINT
// texture arrays holding, per pixel, the nearest depths of every surface
// crossing, sorted. One k-buffer is rendered from the light, one from the
// camera. A compute pass then turns the spans between entry and exit
// depths into thickness, attenuates the light by the thickness between the
// light and each point, and writes the shaded color.
//
// # Quick Start
//
//	dev := soft.New() // or a backend.Default() device
//	reg := pipeline.NewRegistry()
//	if err := reg.Load(dev); err != nil {
//	    log.Fatal(err)
//	}
//	v := sparsevolume.New(dev, reg)
//	if err := v.Init(800, 600, "bunny.obj"); err != nil {
//	    log.Fatal(err)
//	}
//	v.UpdateFrame(eye, viewProj)
//	err := v.Render(outputWriteView)
//
// # Frame phases
//
// Every Render runs the same four phases in order: UpdateFrame's uploads,
// the light-space peel, the view-space peel and the composite. Each peel
// saves and restores the caller's targets and viewports.
//
// # Logging
//
// Logging is silent by default. [SetLogger] enables it for this package,
// its sub-packages and the device of the most recent [New].
package sparsevolume
