package backend

import (
	"github.com/gogpu/sparsevolume/backend/soft"
	"github.com/gogpu/sparsevolume/gpucore"
)

// init registers the soft backend on package import.
func init() {
	Register(BackendSoft, func() (gpucore.Device, error) {
		return soft.New(), nil
	})
}
