package capture

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dj-oyu/screen-recorder/internal/telemetry"
)

// Options are passed to backend factories
type Options struct {
	Observer telemetry.Observer
	// Params carries backend specific settings (device names, encoder overrides)
	Params map[string]string
}

// Param returns Params[key] or def
func (o Options) Param(key, def string) string {
	if v, ok := o.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// Factory creates a backend
type Factory func(opts Options) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under name. Registering a name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("capture: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("capture: Register called twice for backend " + name)
	}
	registry[name] = f
}

// Open creates the backend registered under name
func Open(name string, opts Options) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("capture: unknown backend %q (available: %v)", name, Backends())
	}
	if opts.Observer == nil {
		opts.Observer = telemetry.Nop()
	}
	return f(opts)
}

// Backends returns the registered backend names, sorted
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
