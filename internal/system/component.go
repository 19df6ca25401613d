package system

import (
	"context"
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/deriv"
	"github.com/briantomko/OpenMDAO/internal/varreg"
	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// Component is the behavior of a leaf subsystem. Setup declares the leaf's
// variables through the Decl; Apply evaluates outputs (and residuals for
// implicit states) from the current parameter values.
type Component interface {
	Setup(d *Decl) error
	Apply(ctx context.Context, params, unknowns, resids *vecview.View) error
}

// Linearizer is implemented by components that provide analytic partial
// derivatives. Components without it fall back to finite differencing.
type Linearizer interface {
	Linearize(ctx context.Context, params, unknowns, resids *vecview.View) (deriv.Jacobian, error)
}

// Decl is the declaration surface handed to a Component's Setup. Names are
// local to the leaf; pathnames are derived from the owning node.
type Decl struct {
	node *Node
}

func (d *Decl) add(reg *varreg.Registry, name string, spec varreg.Spec, state bool) error {
	m, err := varreg.NewMeta(name, d.node.Pathname+"."+name, spec)
	if err != nil {
		return err
	}
	m.State = state
	if err := reg.AddUnique(name, m); err != nil {
		return fmt.Errorf("component '%s': %w", d.node.Pathname, err)
	}
	return nil
}

// AddParam declares an input of the component.
func (d *Decl) AddParam(name string, spec varreg.Spec) error {
	return d.add(d.node.Params, name, spec, false)
}

// AddOutput declares an explicit output, assigned by Apply.
func (d *Decl) AddOutput(name string, spec varreg.Spec) error {
	return d.add(d.node.Unknowns, name, spec, false)
}

// AddState declares an implicit state, solved through its residual.
func (d *Decl) AddState(name string, spec varreg.Spec) error {
	return d.add(d.node.Unknowns, name, spec, true)
}
