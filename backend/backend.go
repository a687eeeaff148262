package backend

import (
	"errors"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when a factory could not bring up its device.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Backend name constants.
const (
	// BackendSoft is the name of the CPU reference device.
	BackendSoft = "soft"
	// BackendWGPU is the name of the gogpu/wgpu HAL device.
	BackendWGPU = "wgpu"
)
