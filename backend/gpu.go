package backend

import (
	"github.com/gogpu/sparsevolume/backend/wgpu"
	"github.com/gogpu/sparsevolume/gpucore"
)

// init registers the wgpu backend on package import. The factory fails when
// no HAL backend is linked in or no adapter is found; importing
// github.com/gogpu/wgpu/hal/allbackends links the platform backends.
func init() {
	Register(BackendWGPU, func() (gpucore.Device, error) {
		d, err := wgpu.Open()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}
