package system

import (
	"context"

	"github.com/briantomko/OpenMDAO/internal/varreg"
	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// IndepVar is one independent variable declaration.
type IndepVar struct {
	Name string
	Spec varreg.Spec
}

// Indep is a source component: it declares outputs with initial values and
// never overwrites them, so a driver (or a differencing pass) can assign them
// and run the model without the assignment being clobbered.
type Indep struct {
	Vars []IndepVar
}

func (c *Indep) Setup(d *Decl) error {
	for _, v := range c.Vars {
		if err := d.AddOutput(v.Name, v.Spec); err != nil {
			return err
		}
	}
	return nil
}

// Apply mirrors the current output values into the residual slots.
func (c *Indep) Apply(ctx context.Context, params, unknowns, resids *vecview.View) error {
	for _, v := range c.Vars {
		u, err := unknowns.Flat(v.Name)
		if err != nil {
			return err
		}
		if err := resids.Set(v.Name, u); err != nil {
			return err
		}
	}
	return nil
}
