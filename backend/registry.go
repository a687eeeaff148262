package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/sparsevolume/gpucore"
)

// Factory creates a device. A factory that cannot bring up its device
// returns an error; Default then moves on to the next backend.
type Factory func() (gpucore.Device, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	// A GPU device is preferred; the soft device is the fallback.
	backendPriority = []string{BackendWGPU, BackendSoft}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get creates a device from the named backend.
func Get(name string) (gpucore.Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	dev, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotInitialized, name, err)
	}
	return dev, nil
}

// Default creates a device from the best available backend based on
// priority (wgpu, then soft), falling back to any other registered backend.
// It returns the backend name with the device.
func Default() (string, gpucore.Device, error) {
	registryMu.RLock()
	order := slices.Clone(backendPriority)
	for name := range backends {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	registryMu.RUnlock()

	var errs []error
	for _, name := range order {
		if !IsRegistered(name) {
			continue
		}
		dev, err := Get(name)
		if err == nil {
			slogger().Info("backend selected", "name", name)
			return name, dev, nil
		}
		slogger().Warn("backend unavailable", "name", name, "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", nil, ErrBackendNotAvailable
	}
	return "", nil, fmt.Errorf("%w: %v", ErrBackendNotAvailable, errs)
}

// MustDefault returns the default device or panics.
func MustDefault() gpucore.Device {
	_, dev, err := Default()
	if err != nil {
		panic(err)
	}
	return dev
}
