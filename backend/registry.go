package backend

import (
	"sync"
)

// BackendFactory creates a new backend instance.
type BackendFactory func() PipelineBackend

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
	// Priority order for backend selection (first available wins).
	// The GPU backend outranks the CPU fallback.
	backendPriority = []string{BackendWGPU, BackendNative}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory BackendFactory) {
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

// Available returns a list of registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get returns an uninitialized backend instance by name.
// Returns nil if the backend is not registered.
func Get(name string) PipelineBackend {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := backends[name]
	if !ok {
		return nil
	}
	return factory()
}

// Default returns an uninitialized instance of the highest-priority
// registered backend. Returns nil if no backends are registered.
// Registration alone does not prove the device can be opened; use
// InitDefault to probe.
func Default() PipelineBackend {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range backendPriority {
		if factory, ok := backends[name]; ok {
			if b := factory(); b != nil {
				return b
			}
		}
	}

	// Fallback: return first available
	for _, factory := range backends {
		if b := factory(); b != nil {
			return b
		}
	}

	return nil
}

// InitDefault probes the registered backends in priority order and
// returns the first one whose Init succeeds. A registered GPU backend
// whose device cannot be opened falls through to the CPU backend.
func InitDefault() (PipelineBackend, error) {
	registryMu.RLock()
	ordered := make([]BackendFactory, 0, len(backends))
	for _, name := range backendPriority {
		if factory, ok := backends[name]; ok {
			ordered = append(ordered, factory)
		}
	}
	for name, factory := range backends {
		if !inPriority(name) {
			ordered = append(ordered, factory)
		}
	}
	registryMu.RUnlock()

	var firstErr error
	for _, factory := range ordered {
		b := factory()
		if b == nil {
			continue
		}
		if err := b.Init(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			b.Close()
			continue
		}
		return b, nil
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrBackendNotAvailable
}

func inPriority(name string) bool {
	for _, p := range backendPriority {
		if p == name {
			return true
		}
	}
	return false
}
