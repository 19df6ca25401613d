package deriv

import (
	"context"
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/comm"
	"github.com/briantomko/OpenMDAO/internal/ctxlog"
	"github.com/briantomko/OpenMDAO/internal/varreg"
	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// FDRequest scopes one finite-difference pass.
type FDRequest struct {
	// Params are the parameter names to difference with respect to, in the
	// scope of the params view (or the unknowns view for total derivatives
	// seeded at the root).
	Params []string
	// Unknowns are the output names whose derivatives are wanted, in the
	// scope of the result view.
	Unknowns []string
	// States are the implicit states to perturb in addition to Params.
	// Empty for total derivatives, where states are solved through.
	States []string
	// Total selects perturbation through the full owning solve: the result
	// vector is the unknowns vector rather than the residuals.
	Total bool
	// FullSize gives the global flattened size of parameters with zero
	// locally-resident elements, for the lockstep degenerate pass.
	FullSize map[string]int
	// Comm, when non-nil, is used to reconcile a locally-incomplete result.
	Comm comm.Communicator
}

// FD computes a finite-difference Jacobian of the requested unknowns with
// respect to the requested parameters by repeatedly invoking the
// model-evaluation callback.
//
// The result vector is snapshotted once at entry and restored by copy after
// every index; each perturbed input is restored to its exact prior value. On
// partial passes the unknowns window gets the same snapshot-and-restore
// treatment, since the evaluation callback writes explicit outputs there.
// Parameters with zero locally-resident elements still trigger one callback
// invocation per globally-held index, so every process in a communicator
// issues the same number of collective evaluation calls; the resulting
// locally-incomplete Jacobian is merged across the group before returning.
func FD(ctx context.Context, params, unknowns, resids *vecview.View,
	runModel func() error, opts Options, req FDRequest) (Jacobian, error) {

	logger := ctxlog.FromContext(ctx)

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	resultView := resids
	if req.Total {
		resultView = unknowns
	}
	window, err := resultView.Window()
	if err != nil {
		return nil, err
	}

	// Partial passes difference the residuals, but the evaluation callback
	// writes the unknowns vector too, and those are live aliases shared with
	// downstream views. Snapshot and restore that window alongside the
	// result window.
	var uWindow []float64
	if !req.Total && unknowns != nil && unknowns.Bound() {
		uWindow, err = unknowns.Window()
		if err != nil {
			return nil, err
		}
	}

	// Baseline evaluation, then one snapshot for the whole pass. Restores
	// are copies of this snapshot, never recomputation. Every process runs
	// the baseline, so collective call counts stay aligned.
	if err := runModel(); err != nil {
		return nil, err
	}
	cache1 := make([]float64, len(window))
	copy(cache1, window)
	var uCache []float64
	if uWindow != nil {
		uCache = make([]float64, len(uWindow))
		copy(uCache, uWindow)
	}
	restore := func() {
		copy(window, cache1)
		if uWindow != nil {
			copy(uWindow, uCache)
		}
	}

	stateSet := make(map[string]bool, len(req.States))
	for _, s := range req.States {
		stateSet[s] = true
	}
	perturb := make([]string, 0, len(req.Params)+len(req.States))
	perturb = append(perturb, req.Params...)
	perturb = append(perturb, req.States...)

	jac := make(Jacobian)
	gather := false

	for _, p := range perturb {
		target, meta, err := resolveTarget(p, stateSet[p], params, unknowns)
		if err != nil {
			return nil, err
		}

		// Per-variable step policy overrides the subsystem defaults.
		fdStep := opts.StepSize
		fdType := opts.StepType
		fdForm := opts.Form
		if meta != nil {
			if meta.StepSize != nil {
				fdStep = *meta.StepSize
			}
			if meta.StepType != "" {
				fdType = StepType(meta.StepType)
			}
			if meta.Form != "" {
				fdForm = Form(meta.Form)
			}
		}
		if fdForm == ComplexStep {
			return nil, fmt.Errorf(
				"form 'complex_step' requires a complex-valued evaluation path, which this model does not provide")
		}

		pSize := len(target)
		for _, u := range req.Unknowns {
			_, n, err := resultView.Range(u)
			if err != nil {
				return nil, err
			}
			jac[Key{Unknown: u, Param: p}] = NewBlock(n, pSize)
		}

		// Lockstep rule: a parameter owned by a remote partition still costs
		// one evaluation per global index so collective calls stay in sync.
		if pSize == 0 {
			gather = true
			full := req.FullSize[p]
			if full == 0 && meta != nil {
				full = meta.Size
			}
			logger.Debug("finite difference: degenerate lockstep pass",
				"param", p, "global_size", full)
			for i := 0; i < full; i++ {
				if err := runModel(); err != nil {
					return nil, err
				}
			}
			restore()
			continue
		}

		for j := 0; j < pSize; j++ {
			step := fdStep
			if fdType == Relative {
				step = target[j] * fdStep
				if step < fdStep {
					// Floor keeps the step from vanishing near zero.
					step = fdStep
				}
			}

			orig := target[j]
			if err := fdColumn(fdForm, target, j, orig, step, runModel,
				window, cache1, resultView, req.Unknowns, jac, p); err != nil {
				target[j] = orig
				restore()
				return nil, err
			}

			// Exact restore before moving to the next index.
			target[j] = orig
			restore()
		}
	}

	if gather && req.Comm != nil {
		logger.Debug("finite difference: merging locally-incomplete Jacobian",
			"rank", req.Comm.Rank(), "size", req.Comm.Size())
		return Combined(jac, req.Comm)
	}

	return jac, nil
}

// resolveTarget picks the storage to perturb for one parameter. A parameter
// that aliases an upstream output holds the source's live storage in its own
// slot, so perturbing it propagates through the same path a real solve would
// use.
func resolveTarget(p string, isState bool, params, unknowns *vecview.View) ([]float64, *varreg.Meta, error) {
	var meta *varreg.Meta
	if isState {
		if m, err := unknowns.MetaOf(p); err == nil {
			meta = m
		}
	} else if params != nil && params.Has(p) {
		if m, err := params.MetaOf(p); err == nil {
			meta = m
		}
	} else if m, err := unknowns.MetaOf(p); err == nil {
		meta = m
	}

	if isState {
		t, err := unknowns.Flat(p)
		return t, meta, err
	}
	if params != nil && params.Has(p) {
		t, err := params.Flat(p)
		return t, meta, err
	}
	t, err := unknowns.Flat(p)
	if err != nil {
		return nil, nil, fmt.Errorf("parameter '%s' has no storage to perturb: %w", p, err)
	}
	return t, meta, nil
}

// fdColumn evaluates one finite-difference column and writes it into the
// Jacobian blocks for every requested unknown.
func fdColumn(form Form, target []float64, j int, orig, step float64,
	runModel func() error, window, cache1 []float64,
	resultView *vecview.View, fdUnknowns []string, jac Jacobian, p string) error {

	writeCols := func(scale float64, base []float64) error {
		for _, u := range fdUnknowns {
			off, n, err := resultView.Range(u)
			if err != nil {
				return err
			}
			b := jac[Key{Unknown: u, Param: p}]
			for k := 0; k < n; k++ {
				b.Set(k, j, (window[off+k]-base[off+k])*scale)
			}
		}
		return nil
	}

	switch form {
	case Forward:
		target[j] = orig + step
		if err := runModel(); err != nil {
			return err
		}
		return writeCols(1.0/step, cache1)

	case Backward:
		target[j] = orig - step
		if err := runModel(); err != nil {
			return err
		}
		return writeCols(-1.0/step, cache1)

	case Central:
		target[j] = orig + step
		if err := runModel(); err != nil {
			return err
		}
		cache2 := make([]float64, len(window))
		copy(cache2, window)

		copy(window, cache1)
		target[j] = orig - step
		if err := runModel(); err != nil {
			return err
		}
		// (f(+step) - f(-step)) / (2*step); window currently holds f(-step).
		for _, u := range fdUnknowns {
			off, n, err := resultView.Range(u)
			if err != nil {
				return err
			}
			b := jac[Key{Unknown: u, Param: p}]
			for k := 0; k < n; k++ {
				b.Set(k, j, (cache2[off+k]-window[off+k])*(0.5/step))
			}
		}
		return nil

	default:
		return fmt.Errorf("unrecognized finite-difference form '%s'", form)
	}
}
