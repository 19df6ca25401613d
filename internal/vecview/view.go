package vecview

import (
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/units"
	"github.com/briantomko/OpenMDAO/internal/varreg"
)

// Binding describes how a target parameter is fed: the absolute path of its
// source, an optional index subset into the flattened source, and the cached
// unit conversion (nil when units match).
type Binding struct {
	SrcPath string
	Indices []int
	Conv    *units.Conversion
}

// Slot is one variable's entry in a View.
type Slot struct {
	Meta *varreg.Meta
	// Val is the live storage: a window into the backing vector for source
	// views, a staging slice or source alias for target views, and nil for
	// remote variables.
	Val []float64
	// Binding is set on target slots that are fed by a connection.
	Binding *Binding
	// aliased marks a target slot that shares the source's storage and
	// therefore needs no transfer.
	aliased bool
	// off is the slot's offset relative to the view window (source views).
	off int
}

// View exposes a subsystem's subset of a backing vector, keyed by the
// promoted names in that subsystem's scope. The zero state is a placeholder:
// introspection answers uniformly while value access reports that setup has
// not run.
type View struct {
	tag    string
	bound  bool
	window []float64 // contiguous backing window; nil for target views
	order  []string
	slots  map[string]*Slot
	byPath map[string]*Slot
}

// Placeholder returns an unbound view. The tag names the vector kind
// ("params", "unknowns", ...) so access errors identify what is missing.
func Placeholder(tag string) *View {
	return &View{tag: tag}
}

// errNotSetUp is the uniform pre-setup access failure.
func (v *View) errNotSetUp(name string) error {
	return fmt.Errorf("'%s' has not been initialized; Setup must be called before '%s' can be accessed",
		v.tag, name)
}

// NewSource builds a live-alias view over a backing vector for the variables
// of reg. The variables must occupy a contiguous run of the backing array,
// which the depth-first layout guarantees for any subtree.
func NewSource(tag string, vec *Vector, reg *varreg.Registry) (*View, error) {
	v := &View{
		tag:    tag,
		bound:  true,
		slots:  make(map[string]*Slot),
		byPath: make(map[string]*Slot),
	}

	first := -1
	end := -1
	for _, key := range reg.Names() {
		m, _ := reg.Get(key)
		off, n, ok := vec.rangeOf(m.Pathname)
		if !ok {
			return nil, fmt.Errorf("variable '%s' is missing from the backing vector", m.Pathname)
		}
		if first == -1 {
			first = off
		}
		if off != end && end != -1 {
			return nil, fmt.Errorf("variables of view '%s' are not contiguous at '%s'", tag, m.Pathname)
		}
		end = off + n

		val, _ := vec.slice(m.Pathname)
		slot := &Slot{Meta: m, Val: val, off: off - first}
		v.order = append(v.order, key)
		v.slots[key] = slot
		v.byPath[m.Pathname] = slot
	}

	if first == -1 {
		first, end = 0, 0
	}
	v.window = vec.Data[first:end:end]
	return v, nil
}

// NewTarget builds a parameter view. Each connected slot either aliases the
// source's storage (pure passthrough) or owns a staging slice filled by the
// transfer step. src is the root-level source view used for alias lookups;
// it may be nil when no aliasing is possible.
func NewTarget(tag string, reg *varreg.Registry, bindings map[string]*Binding, src *View) (*View, error) {
	v := &View{
		tag:    tag,
		bound:  true,
		slots:  make(map[string]*Slot),
		byPath: make(map[string]*Slot),
	}

	for _, key := range reg.Names() {
		m, _ := reg.Get(key)
		slot := &Slot{Meta: m, Binding: bindings[m.Pathname]}

		switch {
		case m.Remote:
			// No local storage for this partition.
		case slot.Binding != nil && len(slot.Binding.Indices) == 0 && slot.Binding.Conv == nil && src != nil:
			if srcSlot, ok := src.byPath[slot.Binding.SrcPath]; ok && len(srcSlot.Val) == m.Size {
				slot.Val = srcSlot.Val
				slot.aliased = true
			}
		}
		if slot.Val == nil && !m.Remote {
			slot.Val = make([]float64, m.Size)
			copy(slot.Val, m.Val)
		}

		v.order = append(v.order, key)
		v.slots[key] = slot
		v.byPath[m.Pathname] = slot
	}

	return v, nil
}

// Subview re-keys a subset of a bound view's variables under the scope names
// of reg, sharing the parent's slots. Writes through either view land in the
// same storage.
func Subview(parent *View, tag string, reg *varreg.Registry) (*View, error) {
	if !parent.bound {
		return nil, parent.errNotSetUp(tag)
	}
	v := &View{
		tag:    tag,
		bound:  true,
		slots:  make(map[string]*Slot),
		byPath: make(map[string]*Slot),
	}
	for _, key := range reg.Names() {
		m, _ := reg.Get(key)
		s, ok := parent.byPath[m.Pathname]
		if !ok {
			return nil, fmt.Errorf("variable '%s' is missing from '%s'", m.Pathname, parent.tag)
		}
		v.order = append(v.order, key)
		v.slots[key] = s
		v.byPath[m.Pathname] = s
	}
	return v, nil
}

// Bound reports whether the view has backing storage assigned.
func (v *View) Bound() bool { return v.bound }

// Names returns the view's variable names in declaration order.
func (v *View) Names() []string { return v.order }

// Has reports whether the view holds the named variable.
func (v *View) Has(name string) bool {
	_, ok := v.slots[name]
	return ok
}

// Len returns the number of variables the view holds.
func (v *View) Len() int { return len(v.order) }

func (v *View) slot(name string) (*Slot, error) {
	if !v.bound {
		return nil, v.errNotSetUp(name)
	}
	s, ok := v.slots[name]
	if !ok {
		return nil, fmt.Errorf("'%s' not found in '%s'", name, v.tag)
	}
	return s, nil
}

// Flat returns the live flattened storage of a variable. Writes through the
// returned slice are visible to every holder of the same backing vector.
// Remote variables return a zero-length slice.
func (v *View) Flat(name string) ([]float64, error) {
	s, err := v.slot(name)
	if err != nil {
		return nil, err
	}
	return s.Val, nil
}

// MetaOf returns the metadata record for a variable.
func (v *View) MetaOf(name string) (*varreg.Meta, error) {
	s, err := v.slot(name)
	if err != nil {
		return nil, err
	}
	return s.Meta, nil
}

// Shape returns the declared shape of a variable.
func (v *View) Shape(name string) ([]int, error) {
	m, err := v.MetaOf(name)
	if err != nil {
		return nil, err
	}
	return m.Shape, nil
}

// Set copies vals into the variable's storage.
func (v *View) Set(name string, vals []float64) error {
	s, err := v.slot(name)
	if err != nil {
		return err
	}
	if len(vals) != len(s.Val) {
		return fmt.Errorf("'%s' in '%s' has %d elements, got %d", name, v.tag, len(s.Val), len(vals))
	}
	copy(s.Val, vals)
	return nil
}

// Fill assigns x to every element the view can write.
func (v *View) Fill(x float64) {
	for _, key := range v.order {
		for i := range v.slots[key].Val {
			v.slots[key].Val[i] = x
		}
	}
}

// Window returns the live contiguous flat projection across all variables of
// a source view. Target views stage per-variable storage and have no
// contiguous window.
func (v *View) Window() ([]float64, error) {
	if !v.bound {
		return nil, v.errNotSetUp(v.tag)
	}
	if v.window == nil {
		return nil, fmt.Errorf("'%s' is a transfer-target view and has no contiguous backing", v.tag)
	}
	return v.window, nil
}

// Range returns a variable's offset and length within the view window.
func (v *View) Range(name string) (int, int, error) {
	s, err := v.slot(name)
	if err != nil {
		return 0, 0, err
	}
	return s.off, len(s.Val), nil
}

// FlatAll returns a copy of every variable's flattened value, concatenated in
// declaration order. Works for both source and target views.
func (v *View) FlatAll() ([]float64, error) {
	if !v.bound {
		return nil, v.errNotSetUp(v.tag)
	}
	var out []float64
	for _, key := range v.order {
		out = append(out, v.slots[key].Val...)
	}
	return out, nil
}
