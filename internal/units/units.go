// Package units maintains the table of physical units recognized in variable
// metadata and computes conversions between compatible units.
//
// A conversion is resolved once, at connection-resolution time, into a
// (factor, offset) pair cached on the target variable. Converting a value is
// then a single multiply-add; converting a derivative uses the factor alone.
package units

import "fmt"

// dimension identifies the measurable quantity a unit belongs to. Two units
// are convertible only when they share a dimension.
type dimension int

const (
	dimensionless dimension = iota
	length
	mass
	duration
	temperature
	speed
	force
	angle
)

// def describes a unit in terms of its dimension's base unit:
// valueInBase = (value + offset) * scale.
type def struct {
	dim    dimension
	scale  float64
	offset float64
}

// table holds every recognized unit keyed by its metadata spelling.
// Base units per dimension: m, kg, s, K, m/s, N, rad.
var table = map[string]def{
	"m":    {length, 1.0, 0.0},
	"km":   {length, 1000.0, 0.0},
	"cm":   {length, 0.01, 0.0},
	"mm":   {length, 0.001, 0.0},
	"ft":   {length, 0.3048, 0.0},
	"inch": {length, 0.0254, 0.0},
	"mi":   {length, 1609.344, 0.0},

	"kg":  {mass, 1.0, 0.0},
	"g":   {mass, 0.001, 0.0},
	"lbm": {mass, 0.45359237, 0.0},

	"s":   {duration, 1.0, 0.0},
	"ms":  {duration, 0.001, 0.0},
	"min": {duration, 60.0, 0.0},
	"h":   {duration, 3600.0, 0.0},

	"K":    {temperature, 1.0, 0.0},
	"degK": {temperature, 1.0, 0.0},
	"degC": {temperature, 1.0, 273.15},
	"degF": {temperature, 5.0 / 9.0, 459.67},
	"degR": {temperature, 5.0 / 9.0, 0.0},

	"m/s":  {speed, 1.0, 0.0},
	"km/h": {speed, 1.0 / 3.6, 0.0},
	"ft/s": {speed, 0.3048, 0.0},

	"N":   {force, 1.0, 0.0},
	"kN":  {force, 1000.0, 0.0},
	"lbf": {force, 4.4482216152605, 0.0},

	"rad": {angle, 1.0, 0.0},
	"deg": {angle, 0.017453292519943295, 0.0},

	"unitless": {dimensionless, 1.0, 0.0},
}

// Known reports whether the unit spelling is in the table. The empty string
// means "no unit declared" and is not itself a unit.
func Known(u string) bool {
	_, ok := table[u]
	return ok
}

// Conversion converts a value declared in a source unit into the target unit:
// converted = Factor * (value + Offset).
type Conversion struct {
	Factor float64
	Offset float64
}

// Apply converts a value from the source unit to the target unit.
func (c *Conversion) Apply(v float64) float64 {
	return c.Factor * (v + c.Offset)
}

// ApplyDeriv converts a directional derivative. Offsets drop out when
// differentiating, so only the factor survives.
func (c *Conversion) ApplyDeriv(v float64) float64 {
	return c.Factor * v
}

// Convert resolves the conversion from one unit to another.
//
// It returns (nil, nil) when no conversion is required: either side declares
// no unit, or both sides reduce to the same scale and offset. The nil
// conversion is observable by callers and distinguishes "no conversion
// needed" from "multiply by one".
func Convert(from, to string) (*Conversion, error) {
	if from == "" || to == "" {
		return nil, nil
	}

	f, ok := table[from]
	if !ok {
		return nil, fmt.Errorf("unknown unit '%s'", from)
	}
	t, ok := table[to]
	if !ok {
		return nil, fmt.Errorf("unknown unit '%s'", to)
	}

	if f.dim != t.dim {
		return nil, fmt.Errorf("unit '%s' is not compatible with unit '%s'", from, to)
	}

	factor := f.scale / t.scale
	offset := f.offset - t.offset/factor
	if factor == 1.0 && offset == 0.0 {
		return nil, nil
	}

	return &Conversion{Factor: factor, Offset: offset}, nil
}
