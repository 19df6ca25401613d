package deriv

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// ApplyLinear applies a subsystem's cached partial Jacobian as a linear
// operator over the directional vectors of one quantity of interest.
//
// Forward mode accumulates J·d(param) into the directional residuals; reverse
// mode accumulates Jᵗ·d(resid) into the directional parameter (or state)
// vector. A pair whose parameter or unknown is absent from the directional
// vectors was pruned by relevance filtering upstream and is silently skipped.
//
// An empty cache is a configuration error naming the subsystem: nothing was
// ever linearized for it.
func ApplyLinear(pathname string, cache Jacobian, states map[string]bool,
	dparams, dunknowns, dresids *vecview.View, mode Mode) error {

	if len(cache) == 0 {
		return fmt.Errorf("no derivatives defined for component '%s'", pathname)
	}

	for key, b := range cache {
		if b.Empty() {
			continue
		}

		argVec := dparams
		if states[key.Param] {
			argVec = dunknowns
		}

		x, err := argVec.Flat(key.Param)
		if err != nil || len(x) == 0 {
			continue
		}
		r, err := dresids.Flat(key.Unknown)
		if err != nil || len(r) == 0 {
			continue
		}
		if b.Rows != len(r) || b.Cols != len(x) {
			return fmt.Errorf("component '%s': block (%s, %s) is %dx%d but vectors are %dx%d",
				pathname, key.Unknown, key.Param, b.Rows, b.Cols, len(r), len(x))
		}

		J := b.Dense()
		switch mode {
		case Fwd:
			y := mat.NewVecDense(b.Rows, nil)
			y.MulVec(J, mat.NewVecDense(b.Cols, x))
			for i := range r {
				r[i] += y.AtVec(i)
			}
		case Rev:
			y := mat.NewVecDense(b.Cols, nil)
			y.MulVec(J.T(), mat.NewVecDense(b.Rows, r))
			for i := range x {
				x[i] += y.AtVec(i)
			}
		default:
			return fmt.Errorf("unrecognized linear mode '%s'", mode)
		}
	}

	return nil
}
