package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/briantomko/OpenMDAO/internal/ctxlog"
)

// File is the top-level shape of one model definition file.
type File struct {
	Group *Group `hcl:"group,block"`
}

// Group is a subsystem group: nested groups, components, connections, and
// finite-difference defaults for the subtree.
type Group struct {
	Name     string   `hcl:"name,label"`
	Promotes []string `hcl:"promotes,optional"`

	Components []*Component `hcl:"component,block"`
	Groups     []*Group     `hcl:"group,block"`
	Connects   []*Connect   `hcl:"connect,block"`
	FD         *FDBlock     `hcl:"fd,block"`
}

// Component is one leaf declaration. Kind selects the registered factory;
// the remaining fields are interpreted by it.
type Component struct {
	Name     string   `hcl:"name,label"`
	Kind     string   `hcl:"kind"`
	Promotes []string `hcl:"promotes,optional"`

	Equations []string `hcl:"equations,optional"`
	Vars      []*Var   `hcl:"var,block"`
	FD        *FDBlock `hcl:"fd,block"`
}

// Var declares or overrides one variable: shape, units, initial value, and
// per-variable finite-difference policy.
type Var struct {
	Name     string    `hcl:"name,label"`
	Shape    []int     `hcl:"shape,optional"`
	Units    string    `hcl:"units,optional"`
	Value    []float64 `hcl:"value,optional"`
	StepSize *float64  `hcl:"step_size,optional"`
	StepType string    `hcl:"step_type,optional"`
	Form     string    `hcl:"form,optional"`
}

// Connect wires a source unknown to a target parameter, optionally through an
// index subset.
type Connect struct {
	Source  string `hcl:"source"`
	Target  string `hcl:"target"`
	Indices []int  `hcl:"indices,optional"`
}

// FDBlock overrides finite-difference defaults for a subtree or component.
type FDBlock struct {
	ForceFD  bool     `hcl:"force_fd,optional"`
	Form     string   `hcl:"form,optional"`
	StepSize *float64 `hcl:"step_size,optional"`
	StepType string   `hcl:"step_type,optional"`
}

// Load parses the given HCL files and returns the single root group they
// define. Declaring no root group, or more than one, is an error.
func Load(ctx context.Context, paths ...string) (*Group, error) {
	logger := ctxlog.FromContext(ctx)
	parser := hclparse.NewParser()

	var root *Group
	for _, path := range paths {
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing '%s': %s", path, diags.Error())
		}

		var f File
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &f); diags.HasErrors() {
			return nil, fmt.Errorf("decoding '%s': %s", path, diags.Error())
		}
		if f.Group == nil {
			continue
		}
		if root != nil {
			return nil, fmt.Errorf("'%s': a second root group '%s' is already defined as '%s'",
				path, f.Group.Name, root.Name)
		}
		root = f.Group
		logger.Debug("loaded model file", "path", path, "root", root.Name)
	}

	if root == nil {
		return nil, fmt.Errorf("no root group defined in %v", paths)
	}
	return root, nil
}
