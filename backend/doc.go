// Package backend is a name-keyed registry of device factories.
//
// Importing the package registers both built-in backends:
//
//   - "wgpu": a device over gogpu/wgpu/hal (see backend/wgpu)
//   - "soft": the CPU reference device (see backend/soft)
//
// # Backend Selection
//
// Use Default() to get the best available device, or Get() to request a
// specific backend by name:
//
//	// Best available: wgpu if an adapter is found, else soft
//	name, dev, err := backend.Default()
//
//	// Or request a specific backend
//	dev, err := backend.Get(backend.BackendSoft)
//
// The wgpu backend finds adapters only for HAL backends linked into the
// binary. Commands import github.com/gogpu/wgpu/hal/allbackends for that.
package backend
