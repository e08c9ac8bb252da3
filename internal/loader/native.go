package loader

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a module loader for Go values registered by path.
// A registered value is loaded as is: funcs are factories, everything else records.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]any
	logf    Logf
}

// NewRegistry creates an empty registry.
func NewRegistry(logf Logf) *Registry {
	return &Registry{modules: map[string]any{}, logf: logf}
}

// Register adds a module. Registering an existing path panics.
func (r *Registry) Register(path string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[path]; exists {
		panic(fmt.Sprintf("loader: module %q registered twice", path))
	}
	r.modules[path] = value
}

// Get returns the module registered under path.
func (r *Registry) Get(path string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.modules[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return v, nil
}

// Paths lists the registered module paths.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.modules))
	for p := range r.modules {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Load implements ModuleLoader. The callback runs on a new goroutine so that
// completion is always asynchronous.
func (r *Registry) Load(path string, done func(any)) {
	v, err := r.Get(path)
	if err != nil {
		if r.logf != nil {
			r.logf(0, "load module: %v", err)
		}
		return
	}
	go done(v)
}
