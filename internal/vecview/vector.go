package vecview

import (
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/varreg"
)

type extent struct {
	off int
	n   int
}

// Vector is the root-owned backing allocation for one vector kind. It is the
// only owner of its storage; everything else holds windows into it.
type Vector struct {
	Data    []float64
	extents map[string]extent // keyed by variable pathname
	order   []string
}

// NewVector lays out backing storage for every variable in the root registry,
// in declaration order, and copies in initial values. Remote variables take
// part in the layout with zero length: they have a position but no local
// storage.
func NewVector(reg *varreg.Registry) (*Vector, error) {
	v := &Vector{extents: make(map[string]extent)}

	total := 0
	var err error
	reg.Each(func(key string, m *varreg.Meta) {
		if _, dup := v.extents[m.Pathname]; dup {
			err = fmt.Errorf("variable '%s' appears twice in the vector layout", m.Pathname)
			return
		}
		n := m.Size
		if m.Remote {
			n = 0
		}
		v.extents[m.Pathname] = extent{off: total, n: n}
		v.order = append(v.order, m.Pathname)
		total += n
	})
	if err != nil {
		return nil, err
	}

	v.Data = make([]float64, total)
	return v, nil
}

// LoadInitial copies each variable's declared initial value into the backing
// storage. Remote variables are skipped.
func (v *Vector) LoadInitial(reg *varreg.Registry) {
	reg.Each(func(key string, m *varreg.Meta) {
		ext, ok := v.extents[m.Pathname]
		if !ok || ext.n == 0 {
			return
		}
		copy(v.Data[ext.off:ext.off+ext.n], m.Val)
	})
}

// Zero clears the whole backing array. Used when reusing a directional
// vector for the next quantity of interest.
func (v *Vector) Zero() {
	for i := range v.Data {
		v.Data[i] = 0
	}
}

// slice returns the live storage for a variable pathname. Remote variables
// yield a zero-length slice.
func (v *Vector) slice(pathname string) ([]float64, bool) {
	ext, ok := v.extents[pathname]
	if !ok {
		return nil, false
	}
	return v.Data[ext.off : ext.off+ext.n : ext.off+ext.n], true
}

// rangeOf returns the offset and length of a variable within the backing
// array.
func (v *Vector) rangeOf(pathname string) (int, int, bool) {
	ext, ok := v.extents[pathname]
	if !ok {
		return 0, 0, false
	}
	return ext.off, ext.n, true
}
