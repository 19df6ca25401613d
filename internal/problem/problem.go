package problem

import (
	"context"
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/connect"
	"github.com/briantomko/OpenMDAO/internal/ctxlog"
	"github.com/briantomko/OpenMDAO/internal/deriv"
	"github.com/briantomko/OpenMDAO/internal/recorder"
	"github.com/briantomko/OpenMDAO/internal/system"
	"github.com/briantomko/OpenMDAO/internal/varreg"
	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// Problem owns one model tree and the state a finalized setup pass produces.
type Problem struct {
	Root  *system.Node
	Table *connect.Table

	uVec, rVec *vecview.Vector
	paramsView *vecview.View
	transfers  map[string]*vecview.Transfer
	dsets      map[string]*derivSet
	ready      bool
}

// New wraps a model tree. Setup must run before anything else.
func New(root *system.Node) *Problem {
	return &Problem{Root: root}
}

func (p *Problem) check() error {
	if !p.ready {
		return fmt.Errorf("problem has not been set up; Setup must be called first")
	}
	return nil
}

// Setup finalizes the model: pathnames, variable collection, promotion
// validation, connection resolution, backing vectors, views, and transfers.
// Any failure is a configuration error and leaves the problem unusable; no
// evaluation happens before setup succeeds.
//
// Setup is re-runnable; each call rebuilds everything from the tree.
func (p *Problem) Setup(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	p.ready = false

	p.Root.SetupPaths("")
	if err := p.Root.CollectVariables(ctx); err != nil {
		return err
	}
	if err := p.Root.CheckPromotes(); err != nil {
		return err
	}

	table, err := connect.Resolve(ctx, p.Root)
	if err != nil {
		return err
	}
	p.Table = table

	p.uVec, err = vecview.NewVector(p.Root.Unknowns)
	if err != nil {
		return err
	}
	p.uVec.LoadInitial(p.Root.Unknowns)
	p.rVec, err = vecview.NewVector(p.Root.Unknowns)
	if err != nil {
		return err
	}

	p.Root.UnknownsView, err = vecview.NewSource("unknowns", p.uVec, p.Root.Unknowns)
	if err != nil {
		return err
	}
	p.Root.ResidsView, err = vecview.NewSource("resids", p.rVec, p.Root.Unknowns)
	if err != nil {
		return err
	}

	// The aggregate params view is keyed by pathname: promoted names may
	// legitimately address several parameters, pathnames never do.
	byPath := varreg.New()
	p.Root.Params.Each(func(_ string, m *varreg.Meta) {
		byPath.Add(m.Pathname, m)
	})
	p.paramsView, err = vecview.NewTarget("params", byPath, table.Bindings, p.Root.UnknownsView)
	if err != nil {
		return err
	}
	p.Root.ParamsView = p.paramsView

	p.transfers = make(map[string]*vecview.Transfer)
	for _, leaf := range table.Order {
		leaf.UnknownsView, err = vecview.NewSource("unknowns", p.uVec, leaf.Unknowns)
		if err != nil {
			return err
		}
		leaf.ResidsView, err = vecview.NewSource("resids", p.rVec, leaf.Unknowns)
		if err != nil {
			return err
		}
		leaf.ParamsView, err = vecview.Subview(p.paramsView, "params", leaf.Params)
		if err != nil {
			return err
		}
		p.transfers[leaf.Pathname] = vecview.NewTransfer(leaf.ParamsView, p.Root.UnknownsView)
	}

	p.dsets = make(map[string]*derivSet)
	p.ready = true
	logger.Info("problem setup complete",
		"leaves", len(table.Order),
		"connections", len(table.Bindings),
		"unknowns_size", len(p.uVec.Data))
	return nil
}

// Run performs one sweep over the leaves in execution order: transfer each
// leaf's connected inputs, then evaluate it.
func (p *Problem) Run(ctx context.Context) error {
	if err := p.check(); err != nil {
		return err
	}
	for _, leaf := range p.Table.Order {
		p.transfers[leaf.Pathname].Do()
		if err := leaf.Component.Apply(ctx, leaf.ParamsView, leaf.UnknownsView, leaf.ResidsView); err != nil {
			return fmt.Errorf("evaluating '%s': %w", leaf.Pathname, err)
		}
	}
	return nil
}

// Linearize refreshes every leaf's cached partial Jacobian: analytic where
// the component provides it (unless finite differencing is forced), finite
// difference over the leaf's own evaluation otherwise. Leaves without
// parameters have nothing to linearize.
func (p *Problem) Linearize(ctx context.Context) error {
	if err := p.check(); err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx)

	for _, leaf := range p.Table.Order {
		if leaf.Params.Len() == 0 {
			leaf.JacCache = nil
			continue
		}

		p.transfers[leaf.Pathname].Do()

		if lin, ok := leaf.Component.(system.Linearizer); ok && !leaf.FD.ForceFD {
			jac, err := lin.Linearize(ctx, leaf.ParamsView, leaf.UnknownsView, leaf.ResidsView)
			if err != nil {
				return fmt.Errorf("linearizing '%s': %w", leaf.Pathname, err)
			}
			leaf.JacCache = jac
			logger.Debug("linearized analytically", "path", leaf.Pathname, "blocks", len(jac))
			continue
		}

		runModel := func() error {
			return leaf.Component.Apply(ctx, leaf.ParamsView, leaf.UnknownsView, leaf.ResidsView)
		}
		jac, err := deriv.FD(ctx, leaf.ParamsView, leaf.UnknownsView, leaf.ResidsView,
			runModel, leaf.FD, deriv.FDRequest{
				Params:   leaf.Params.Names(),
				Unknowns: leaf.Unknowns.Names(),
				FullSize: fullSizes(leaf.Params),
				Comm:     leaf.Comm,
			})
		if err != nil {
			return fmt.Errorf("differencing '%s': %w", leaf.Pathname, err)
		}
		leaf.JacCache = jac
		logger.Debug("linearized by finite difference", "path", leaf.Pathname, "blocks", len(jac))
	}
	return nil
}

func fullSizes(reg *varreg.Registry) map[string]int {
	out := make(map[string]int, reg.Len())
	for _, name := range reg.Names() {
		m, _ := reg.Get(name)
		out[name] = m.Size
	}
	return out
}

// Unknowns returns the root-scope unknowns view.
func (p *Problem) Unknowns() *vecview.View { return p.Root.UnknownsView }

// Resids returns the root-scope residuals view.
func (p *Problem) Resids() *vecview.View { return p.Root.ResidsView }

// Params returns the aggregate parameter view, keyed by pathname.
func (p *Problem) Params() *vecview.View { return p.Root.ParamsView }

// Snapshot records the current parameter, unknown, and residual values
// through the given filter. Callers take snapshots between completed
// evaluations; the values are copies and stay consistent afterwards.
func (p *Problem) Snapshot(f *recorder.Filter) (*recorder.Snapshot, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return f.Take(p.paramsView, p.Root.UnknownsView, p.Root.ResidsView)
}
