package problem

import (
	"context"
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/deriv"
	"github.com/briantomko/OpenMDAO/internal/system"
	"github.com/briantomko/OpenMDAO/internal/varreg"
	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// derivSet is one quantity-of-interest's directional vectors: a du/dr pair at
// the root plus per-leaf views and derivative transfers. Sets are cached per
// QOI identifier and zeroed on reuse.
type derivSet struct {
	du, dr *vecview.Vector
	duView *vecview.View

	leafDU map[string]*vecview.View
	leafDP map[string]*vecview.View
	xfers  map[string]*vecview.Transfer
}

func (p *Problem) derivSet(qoi string) (*derivSet, error) {
	if ds, ok := p.dsets[qoi]; ok {
		ds.zero()
		return ds, nil
	}

	ds := &derivSet{
		leafDU: make(map[string]*vecview.View),
		leafDP: make(map[string]*vecview.View),
		xfers:  make(map[string]*vecview.Transfer),
	}

	var err error
	ds.du, err = vecview.NewVector(p.Root.Unknowns)
	if err != nil {
		return nil, err
	}
	ds.dr, err = vecview.NewVector(p.Root.Unknowns)
	if err != nil {
		return nil, err
	}
	ds.duView, err = vecview.NewSource("dunknowns", ds.du, p.Root.Unknowns)
	if err != nil {
		return nil, err
	}

	for _, leaf := range p.Table.Order {
		du, err := vecview.NewSource("dunknowns", ds.du, leaf.Unknowns)
		if err != nil {
			return nil, err
		}
		dr, err := vecview.NewSource("dresids", ds.dr, leaf.Unknowns)
		if err != nil {
			return nil, err
		}
		// Directional parameter views never alias the source storage: the
		// reverse sweep scatter-adds through them, so they need their own
		// staging even for pure passthrough connections.
		dp, err := vecview.NewTarget("dparams", leaf.Params, p.Table.Bindings, nil)
		if err != nil {
			return nil, err
		}

		ds.leafDU[leaf.Pathname] = du
		ds.leafDP[leaf.Pathname] = dp
		ds.xfers[leaf.Pathname] = vecview.NewTransfer(dp, ds.duView)
		leaf.DViews[qoi] = &system.DerivViews{Params: dp, Unknowns: du, Resids: dr}
	}

	// NewTarget seeds staging slices with the variables' initial values; a
	// directional vector must start at zero.
	ds.zero()
	p.dsets[qoi] = ds
	return ds, nil
}

func (ds *derivSet) zero() {
	ds.du.Zero()
	ds.dr.Zero()
	for _, dp := range ds.leafDP {
		dp.Fill(0)
	}
}

func stateSet(leaf *system.Node) map[string]bool {
	var states map[string]bool
	leaf.Unknowns.Each(func(key string, m *varreg.Meta) {
		if m.State {
			if states == nil {
				states = make(map[string]bool)
			}
			states[key] = true
		}
	})
	return states
}

func (p *Problem) rootUnknown(name string) (*varreg.Meta, error) {
	m, ok := p.Root.Unknowns.Get(name)
	if !ok {
		return nil, fmt.Errorf("'%s' must be an unknown at the root to take part in a derivative query", name)
	}
	return m, nil
}

// CalcGradient computes total derivatives of the named unknowns with respect
// to the named parameters by propagating directional seeds through every
// leaf's cached partial Jacobian, one quantity of interest at a time. Forward
// mode seeds one parameter index per QOI; reverse mode seeds one unknown
// index per QOI and sweeps adjoints backwards. Linearize must have run since
// the last Run.
func (p *Problem) CalcGradient(ctx context.Context, params, unknowns []string,
	mode deriv.Mode) (map[string]map[string]*deriv.Block, error) {

	if err := p.check(); err != nil {
		return nil, err
	}

	jac := make(deriv.Jacobian)
	for _, pn := range params {
		pm, err := p.rootUnknown(pn)
		if err != nil {
			return nil, err
		}
		for _, un := range unknowns {
			um, err := p.rootUnknown(un)
			if err != nil {
				return nil, err
			}
			jac[deriv.Key{Unknown: un, Param: pn}] = deriv.NewBlock(um.Size, pm.Size)
		}
	}

	switch mode {
	case deriv.Fwd:
		err := p.gradientFwd(ctx, params, unknowns, jac)
		if err != nil {
			return nil, err
		}
	case deriv.Rev:
		err := p.gradientRev(ctx, params, unknowns, jac)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unrecognized derivative mode '%s'", mode)
	}

	return jac.Nested(), nil
}

func (p *Problem) gradientFwd(ctx context.Context, params, unknowns []string, jac deriv.Jacobian) error {
	for _, pn := range params {
		pm, _ := p.rootUnknown(pn)
		for k := 0; k < pm.Size; k++ {
			ds, err := p.derivSet(fmt.Sprintf("fwd:%s[%d]", pn, k))
			if err != nil {
				return err
			}
			seed, err := ds.duView.Flat(pn)
			if err != nil {
				return err
			}
			seed[k] = 1

			for _, leaf := range p.Table.Order {
				ds.xfers[leaf.Pathname].DoDeriv()
				if leaf.Params.Len() == 0 {
					continue
				}
				// The leaf's du view doubles as the accumulator: explicit
				// outputs gain J·dparams directly.
				du := ds.leafDU[leaf.Pathname]
				if err := deriv.ApplyLinear(leaf.Pathname, leaf.JacCache, stateSet(leaf),
					ds.leafDP[leaf.Pathname], du, du, deriv.Fwd); err != nil {
					return err
				}
			}

			for _, un := range unknowns {
				col, err := ds.duView.Flat(un)
				if err != nil {
					return err
				}
				jac[deriv.Key{Unknown: un, Param: pn}].SetCol(k, col)
			}
		}
	}
	return nil
}

func (p *Problem) gradientRev(ctx context.Context, params, unknowns []string, jac deriv.Jacobian) error {
	for _, un := range unknowns {
		um, _ := p.rootUnknown(un)
		for k := 0; k < um.Size; k++ {
			ds, err := p.derivSet(fmt.Sprintf("rev:%s[%d]", un, k))
			if err != nil {
				return err
			}
			seed, err := ds.duView.Flat(un)
			if err != nil {
				return err
			}
			seed[k] = 1

			for i := len(p.Table.Order) - 1; i >= 0; i-- {
				leaf := p.Table.Order[i]
				if leaf.Params.Len() > 0 {
					du := ds.leafDU[leaf.Pathname]
					if err := deriv.ApplyLinear(leaf.Pathname, leaf.JacCache, stateSet(leaf),
						ds.leafDP[leaf.Pathname], du, du, deriv.Rev); err != nil {
						return err
					}
				}
				ds.xfers[leaf.Pathname].Reverse()
			}

			for _, pn := range params {
				row, err := ds.duView.Flat(pn)
				if err != nil {
					return err
				}
				b := jac[deriv.Key{Unknown: un, Param: pn}]
				for j := range row {
					b.Set(k, j, row[j])
				}
			}
		}
	}
	return nil
}

// CalcGradientFD computes the same total derivatives by finite differencing
// through the full run-once sweep. The perturbed storage is the seeding
// unknown's own slot in the backing vector, so the perturbation reaches every
// consumer through the regular transfer path, unit conversions included.
func (p *Problem) CalcGradientFD(ctx context.Context, params, unknowns []string) (map[string]map[string]*deriv.Block, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	for _, name := range append(append([]string{}, params...), unknowns...) {
		if _, err := p.rootUnknown(name); err != nil {
			return nil, err
		}
	}

	runModel := func() error { return p.Run(ctx) }
	jac, err := deriv.FD(ctx, nil, p.Root.UnknownsView, p.Root.ResidsView,
		runModel, p.Root.FD, deriv.FDRequest{
			Params:   params,
			Unknowns: unknowns,
			Total:    true,
			FullSize: fullSizes(p.Root.Unknowns),
			Comm:     p.Root.Comm,
		})
	if err != nil {
		return nil, err
	}
	return jac.Nested(), nil
}
