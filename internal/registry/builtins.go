package registry

import (
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/config"
	"github.com/briantomko/OpenMDAO/internal/exec"
	"github.com/briantomko/OpenMDAO/internal/system"
	"github.com/briantomko/OpenMDAO/internal/varreg"
)

func specFromVar(v *config.Var) varreg.Spec {
	return varreg.Spec{
		Shape:    v.Shape,
		Units:    v.Units,
		Val:      v.Value,
		StepSize: v.StepSize,
		StepType: v.StepType,
		Form:     v.Form,
	}
}

func registerBuiltins(r *Registry) {
	// indep: a source component whose outputs are the declared vars.
	r.Register("indep", func(c *config.Component) (system.Component, error) {
		if len(c.Vars) == 0 {
			return nil, fmt.Errorf("component '%s' of kind 'indep' declares no vars", c.Name)
		}
		ind := &system.Indep{}
		for _, v := range c.Vars {
			ind.Vars = append(ind.Vars, system.IndepVar{Name: v.Name, Spec: specFromVar(v)})
		}
		return ind, nil
	})

	// expr: equation-driven component; vars refine shapes, units, and values.
	r.Register("expr", func(c *config.Component) (system.Component, error) {
		if len(c.Equations) == 0 {
			return nil, fmt.Errorf("component '%s' of kind 'expr' declares no equations", c.Name)
		}
		comp, err := exec.New(c.Equations...)
		if err != nil {
			return nil, fmt.Errorf("component '%s': %w", c.Name, err)
		}
		for _, v := range c.Vars {
			comp.WithSpec(v.Name, specFromVar(v))
		}
		return comp, nil
	})
}
