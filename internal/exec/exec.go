// Package exec provides components defined by textual equations. Each
// equation assigns one output from an expression over the component's
// parameters; expressions use HCL syntax and are evaluated element-wise, with
// scalar parameters broadcast across array outputs.
package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/briantomko/OpenMDAO/internal/system"
	"github.com/briantomko/OpenMDAO/internal/varreg"
	"github.com/briantomko/OpenMDAO/internal/vecview"
)

var funcs = map[string]function.Function{
	"abs":   stdlib.AbsoluteFunc,
	"min":   stdlib.MinFunc,
	"max":   stdlib.MaxFunc,
	"ceil":  stdlib.CeilFunc,
	"floor": stdlib.FloorFunc,
	"log":   stdlib.LogFunc,
	"pow":   stdlib.PowFunc,
}

type equation struct {
	output string
	src    string
	expr   hclsyntax.Expression
}

// Comp is an equation-driven component. Outputs and parameters default to
// scalars; WithSpec overrides shape, units, initial value, or step policy for
// any of them.
type Comp struct {
	eqs     []equation
	outputs []string
	params  []string
	specs   map[string]varreg.Spec
}

// New parses equations of the form "output = expression". Every variable
// referenced on a right-hand side that is not itself an output becomes a
// parameter, in order of first appearance.
func New(equations ...string) (*Comp, error) {
	c := &Comp{specs: make(map[string]varreg.Spec)}
	isOutput := make(map[string]bool)

	for _, line := range equations {
		lhs, rhs, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("equation '%s' is not of the form 'output = expression'", line)
		}
		name := strings.TrimSpace(lhs)
		if !hclsyntax.ValidIdentifier(name) {
			return nil, fmt.Errorf("equation '%s' assigns to invalid name '%s'", line, name)
		}
		if isOutput[name] {
			return nil, fmt.Errorf("output '%s' is assigned by more than one equation", name)
		}

		expr, diags := hclsyntax.ParseExpression([]byte(rhs), name, hcl.InitialPos)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing equation '%s': %s", line, diags.Error())
		}

		isOutput[name] = true
		c.outputs = append(c.outputs, name)
		c.eqs = append(c.eqs, equation{output: name, src: line, expr: expr})
	}

	seen := make(map[string]bool)
	for _, eq := range c.eqs {
		for _, tr := range eq.expr.Variables() {
			name := tr.RootName()
			if isOutput[name] || seen[name] {
				continue
			}
			seen[name] = true
			c.params = append(c.params, name)
		}
	}
	return c, nil
}

// WithSpec overrides the declaration spec for one variable.
func (c *Comp) WithSpec(name string, spec varreg.Spec) *Comp {
	c.specs[name] = spec
	return c
}

func (c *Comp) Setup(d *system.Decl) error {
	for _, p := range c.params {
		if err := d.AddParam(p, c.specs[p]); err != nil {
			return err
		}
	}
	for _, o := range c.outputs {
		if err := d.AddOutput(o, c.specs[o]); err != nil {
			return err
		}
	}
	return nil
}

// Apply evaluates every equation element-wise. The computed value is written
// to the output and mirrored into its residual slot, so differencing over
// residuals observes the evaluation.
func (c *Comp) Apply(ctx context.Context, params, unknowns, resids *vecview.View) error {
	for _, eq := range c.eqs {
		out, err := unknowns.Flat(eq.output)
		if err != nil {
			return err
		}
		res, err := resids.Flat(eq.output)
		if err != nil {
			return err
		}

		for i := range out {
			vars := make(map[string]cty.Value, len(c.params))
			for _, p := range c.params {
				pv, err := params.Flat(p)
				if err != nil {
					return err
				}
				switch {
				case len(pv) == len(out):
					vars[p] = cty.NumberFloatVal(pv[i])
				case len(pv) == 1:
					vars[p] = cty.NumberFloatVal(pv[0])
				default:
					return fmt.Errorf("equation '%s': parameter '%s' has size %d, output '%s' has size %d",
						eq.src, p, len(pv), eq.output, len(out))
				}
			}

			v, diags := eq.expr.Value(&hcl.EvalContext{Variables: vars, Functions: funcs})
			if diags.HasErrors() {
				return fmt.Errorf("evaluating equation '%s': %s", eq.src, diags.Error())
			}
			if v.Type() != cty.Number {
				return fmt.Errorf("equation '%s' produced a %s, want a number", eq.src, v.Type().FriendlyName())
			}
			f, _ := v.AsBigFloat().Float64()
			out[i] = f
			res[i] = f
		}
	}
	return nil
}
