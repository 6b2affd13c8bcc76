package tools

import (
	"fmt"
	"sort"
	"sync"

	"datawarden/internal/governance"
)

// Registration couples a tool with the governance options it runs under.
type Registration struct {
	Tool governance.Tool
	Opts governance.Options
}

// Registry holds the governed tools the server can dispatch to.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Registration{}}
}

func (r *Registry) Register(tool governance.Tool, opts governance.Options) error {
	if tool == nil || tool.Name() == "" {
		return fmt.Errorf("tool with a name required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name())
	}
	r.tools[tool.Name()] = Registration{Tool: tool, Opts: opts}
	return nil
}

func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
