// Package varreg holds per-subsystem variable metadata in declaration order.
//
// Every subsystem owns two registries, one for parameters and one for
// unknowns. Registries are keyed by the name a variable carries in that
// subsystem's scope; aggregation into a parent re-keys entries under the
// promoted name while sharing the underlying metadata record, so a conversion
// attached at the root is visible to the owning leaf.
package varreg

import (
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/units"
)

// Meta is the metadata record for a single variable. One record exists per
// variable regardless of how many scopes can address it.
type Meta struct {
	// Name is the local name within the declaring subsystem.
	Name string
	// Promoted is the name the variable carries at the root scope after all
	// promotion aliasing has been applied. Assigned during setup.
	Promoted string
	// Pathname is the absolute dotted path of the variable.
	Pathname string

	Shape []int
	Size  int
	Units string

	// State marks an unknown that is solved implicitly through its residual
	// rather than assigned by evaluation.
	State bool
	// Remote marks a variable whose storage was allocated to another
	// process's partition. Remote variables have zero-length local slices.
	Remote bool

	// Val holds the initial value, copied into the backing vector at setup.
	Val []float64

	// Conv is the cached unit conversion attached by the connection resolver
	// when this variable is the target of a connection with differing units.
	// Nil means no conversion applies; that absence is observable.
	Conv *units.Conversion

	// Per-variable finite-difference overrides. Nil or empty fields fall
	// back to the subsystem-level defaults.
	StepSize *float64
	StepType string
	Form     string
}

// Spec is the declaration-time description of a variable. Unset shape means
// scalar; unset Val means zero-initialized.
type Spec struct {
	Shape    []int
	Units    string
	Val      []float64
	StepSize *float64
	StepType string
	Form     string
}

// NewMeta builds a Meta from a declaration. The promoted name starts out
// equal to the local name and is rewritten during aggregation.
func NewMeta(name, pathname string, spec Spec) (*Meta, error) {
	shape := spec.Shape
	if len(shape) == 0 {
		shape = []int{1}
	}
	size := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("variable '%s' has non-positive dimension in shape %v", pathname, shape)
		}
		size *= d
	}

	if spec.Units != "" && !units.Known(spec.Units) {
		return nil, fmt.Errorf("variable '%s' declares unknown unit '%s'", pathname, spec.Units)
	}

	val := spec.Val
	if val == nil {
		val = make([]float64, size)
	}
	if len(val) != size {
		return nil, fmt.Errorf("variable '%s' initial value has %d elements, shape %v needs %d",
			pathname, len(val), shape, size)
	}

	return &Meta{
		Name:     name,
		Promoted: name,
		Pathname: pathname,
		Shape:    shape,
		Size:     size,
		Units:    spec.Units,
		Val:      val,
		StepSize: spec.StepSize,
		StepType: spec.StepType,
		Form:     spec.Form,
	}, nil
}

// Registry is an insertion-ordered mapping from scope name to variable
// metadata. Several parameters may legitimately share one promoted name, so
// a key maps to a list; unknowns are added through AddUnique, which rejects
// collisions.
type Registry struct {
	order []string
	meta  map[string][]*Meta
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{meta: make(map[string][]*Meta)}
}

// Add records a metadata entry under the given scope key. Multiple entries
// per key are allowed; declaration order is preserved.
func (r *Registry) Add(key string, m *Meta) {
	if _, ok := r.meta[key]; !ok {
		r.order = append(r.order, key)
	}
	r.meta[key] = append(r.meta[key], m)
}

// AddUnique records a metadata entry and fails if the key is already present.
func (r *Registry) AddUnique(key string, m *Meta) error {
	if _, ok := r.meta[key]; ok {
		return fmt.Errorf("variable '%s' is already declared", key)
	}
	r.Add(key, m)
	return nil
}

// Get returns the first entry for the key.
func (r *Registry) Get(key string) (*Meta, bool) {
	ms, ok := r.meta[key]
	if !ok || len(ms) == 0 {
		return nil, false
	}
	return ms[0], true
}

// All returns every entry recorded under the key.
func (r *Registry) All(key string) []*Meta {
	return r.meta[key]
}

// Has reports whether the key is present.
func (r *Registry) Has(key string) bool {
	_, ok := r.meta[key]
	return ok
}

// Names returns the scope keys in declaration order.
func (r *Registry) Names() []string {
	return r.order
}

// Len returns the number of distinct keys.
func (r *Registry) Len() int {
	return len(r.order)
}

// Each calls fn for every (key, meta) pair in declaration order.
func (r *Registry) Each(fn func(key string, m *Meta)) {
	for _, key := range r.order {
		for _, m := range r.meta[key] {
			fn(key, m)
		}
	}
}
