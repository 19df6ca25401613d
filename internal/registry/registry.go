package registry

import (
	"fmt"
	"sort"

	"github.com/briantomko/OpenMDAO/internal/config"
	"github.com/briantomko/OpenMDAO/internal/system"
)

// Factory builds one leaf component from its declaration.
type Factory func(c *config.Component) (system.Component, error)

// Registry holds the component factories for a single application instance.
type Registry struct {
	factories map[string]Factory
}

// New returns a registry pre-populated with the built-in kinds.
func New() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	registerBuiltins(r)
	return r
}

// Register adds a factory for a kind. A duplicate kind is a programmer error.
func (r *Registry) Register(kind string, f Factory) {
	if _, ok := r.factories[kind]; ok {
		panic(fmt.Sprintf("component kind '%s' is already registered", kind))
	}
	r.factories[kind] = f
}

// Lookup returns the factory for a kind.
func (r *Registry) Lookup(kind string) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
