// Package builder turns a loaded model definition into a subsystem tree,
// resolving component kinds through the registry.
package builder

import (
	"context"
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/config"
	"github.com/briantomko/OpenMDAO/internal/ctxlog"
	"github.com/briantomko/OpenMDAO/internal/deriv"
	"github.com/briantomko/OpenMDAO/internal/registry"
	"github.com/briantomko/OpenMDAO/internal/system"
)

// Build constructs the system tree for a root group definition.
func Build(ctx context.Context, g *config.Group, reg *registry.Registry) (*system.Node, error) {
	logger := ctxlog.FromContext(ctx)
	root, err := buildGroup(g, reg, deriv.DefaultOptions())
	if err != nil {
		return nil, err
	}
	logger.Debug("model tree built", "root", g.Name, "leaves", len(root.Leaves()))
	return root, nil
}

// buildGroup assembles one group. Finite-difference defaults flow down the
// tree; any level may override them for its subtree.
func buildGroup(g *config.Group, reg *registry.Registry, inherited deriv.Options) (*system.Node, error) {
	node := system.NewGroup(g.Name)
	node.Promote(g.Promotes...)
	node.FD = inherited
	applyFD(&node.FD, g.FD)

	for _, c := range g.Components {
		factory, ok := reg.Lookup(c.Kind)
		if !ok {
			return nil, fmt.Errorf("component '%s' has unknown kind '%s'", c.Name, c.Kind)
		}
		comp, err := factory(c)
		if err != nil {
			return nil, err
		}
		leaf := system.NewComponent(c.Name, comp)
		leaf.Promote(c.Promotes...)
		leaf.FD = node.FD
		applyFD(&leaf.FD, c.FD)
		if err := node.AddChild(leaf); err != nil {
			return nil, err
		}
	}

	for _, sub := range g.Groups {
		child, err := buildGroup(sub, reg, node.FD)
		if err != nil {
			return nil, err
		}
		if err := node.AddChild(child); err != nil {
			return nil, err
		}
	}

	for _, conn := range g.Connects {
		node.Connect(conn.Source, conn.Target, conn.Indices...)
	}
	return node, nil
}

func applyFD(opts *deriv.Options, block *config.FDBlock) {
	if block == nil {
		return
	}
	opts.ForceFD = block.ForceFD
	if block.Form != "" {
		opts.Form = deriv.Form(block.Form)
	}
	if block.StepSize != nil {
		opts.StepSize = *block.StepSize
	}
	if block.StepType != "" {
		opts.StepType = deriv.StepType(block.StepType)
	}
}
