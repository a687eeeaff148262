package gpucore

// SaveFlags selects which context state SaveState captures.
type SaveFlags uint8

// Save flags.
const (
	// SaveTargets captures the bound render targets and depth view.
	SaveTargets SaveFlags = 1 << iota

	// SaveViewports captures the bound viewports.
	SaveViewports
)

// SaveState captures the selected output-merger and rasterizer state of ctx
// and returns a function restoring it. Callers defer the returned function
// so the state comes back on every return path:
//
//	restore := gpucore.SaveState(ctx, gpucore.SaveTargets|gpucore.SaveViewports)
//	defer restore()
//
// Restoring targets rebinds them with SetTargets, which also unbinds any
// pixel-stage write views bound in between.
func SaveState(ctx Context, what SaveFlags) (restore func()) {
	var (
		targets []TargetView
		depth   DepthView
		vps     []Viewport
	)
	if what&SaveTargets != 0 {
		t, d := ctx.Targets()
		targets = append([]TargetView(nil), t...)
		depth = d
	}
	if what&SaveViewports != 0 {
		vps = append([]Viewport(nil), ctx.Viewports()...)
	}

	done := false
	return func() {
		if done {
			return
		}
		done = true
		if what&SaveViewports != 0 {
			ctx.SetViewports(vps...)
		}
		if what&SaveTargets != 0 {
			ctx.SetTargets(targets, depth)
		}
	}
}
