package deriv

import "fmt"

// Form selects the finite-difference formula.
type Form string

const (
	Forward     Form = "forward"
	Backward    Form = "backward"
	Central     Form = "central"
	ComplexStep Form = "complex_step"
)

// StepType selects how the step size is interpreted.
type StepType string

const (
	Absolute StepType = "absolute"
	Relative StepType = "relative"
)

// Mode selects the direction of a linear-operator application.
type Mode string

const (
	Fwd Mode = "fwd"
	Rev Mode = "rev"
)

// Options are the subsystem-level finite-difference settings. Per-variable
// metadata overrides take precedence over all of them.
type Options struct {
	// ForceFD requests finite differencing even when analytic partials are
	// available.
	ForceFD bool
	Form    Form
	// StepSize is the default differencing step.
	StepSize float64
	StepType StepType
}

// DefaultOptions returns the documented defaults: forward differencing with
// an absolute step of 1e-6.
func DefaultOptions() Options {
	return Options{
		Form:     Forward,
		StepSize: 1.0e-6,
		StepType: Absolute,
	}
}

// Validate rejects unrecognized settings.
func (o Options) Validate() error {
	switch o.Form {
	case Forward, Backward, Central, ComplexStep:
	default:
		return fmt.Errorf("unrecognized finite-difference form '%s'", o.Form)
	}
	switch o.StepType {
	case Absolute, Relative:
	default:
		return fmt.Errorf("unrecognized finite-difference step_type '%s'", o.StepType)
	}
	if o.StepSize <= 0 {
		return fmt.Errorf("finite-difference step_size must be positive, got %g", o.StepSize)
	}
	return nil
}
