// Package recorder takes filtered snapshots of a problem's variable values
// for an external recording collaborator. Snapshots copy values out of the
// live views, so they stay internally consistent even if the model keeps
// evaluating afterwards; callers take them only between completed
// evaluations, never mid-perturbation.
package recorder

import (
	"fmt"
	"path"

	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// Filter selects promoted names by glob inclusion and exclusion lists. An
// empty include list includes everything; excludes apply afterwards.
type Filter struct {
	Includes []string
	Excludes []string
}

// Match reports whether the filter selects the given promoted name.
func (f *Filter) Match(name string) (bool, error) {
	if f == nil {
		return true, nil
	}
	in := len(f.Includes) == 0
	for _, pat := range f.Includes {
		ok, err := path.Match(pat, name)
		if err != nil {
			return false, fmt.Errorf("invalid include pattern '%s'", pat)
		}
		if ok {
			in = true
			break
		}
	}
	if !in {
		return false, nil
	}
	for _, pat := range f.Excludes {
		ok, err := path.Match(pat, name)
		if err != nil {
			return false, fmt.Errorf("invalid exclude pattern '%s'", pat)
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

// Entry is one recorded variable.
type Entry struct {
	Name string
	Val  []float64
}

// Snapshot is one iteration's worth of recorded values, in declaration order
// within each section.
type Snapshot struct {
	Params   []Entry
	Unknowns []Entry
	Resids   []Entry
}

// Take records the filtered contents of the three views.
func (f *Filter) Take(params, unknowns, resids *vecview.View) (*Snapshot, error) {
	snap := &Snapshot{}
	for _, sec := range []struct {
		view *vecview.View
		dst  *[]Entry
	}{
		{params, &snap.Params},
		{unknowns, &snap.Unknowns},
		{resids, &snap.Resids},
	} {
		if sec.view == nil {
			continue
		}
		for _, name := range sec.view.Names() {
			ok, err := f.Match(name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			live, err := sec.view.Flat(name)
			if err != nil {
				return nil, err
			}
			val := make([]float64, len(live))
			copy(val, live)
			*sec.dst = append(*sec.dst, Entry{Name: name, Val: val})
		}
	}
	return snap, nil
}
