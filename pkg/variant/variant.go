package variant

import "math"

// Variant is a scalar value that may change with the simulation step.
// Implementations must be pure: the same step always yields the same value.
type Variant interface {
	// Value returns the variant's value at the given step.
	Value(step uint64) float64
}

// Constant is a Variant fixed at a single value for all steps.
type Constant struct {
	Val float64
}

// NewConstant creates a variant that always evaluates to value.
func NewConstant(value float64) *Constant {
	return &Constant{Val: value}
}

// Value returns the constant value regardless of step.
func (c *Constant) Value(step uint64) float64 {
	return c.Val
}

// Ramp interpolates linearly from A to B over Width steps starting at Start.
// Before Start the value is A; after Start+Width it stays at B.
type Ramp struct {
	A     float64
	B     float64
	Start uint64
	Width uint64
}

// NewRamp creates a linear ramp from a to b over width steps beginning at start.
func NewRamp(a, b float64, start, width uint64) *Ramp {
	return &Ramp{A: a, B: b, Start: start, Width: width}
}

// Value returns the interpolated value at the given step.
func (r *Ramp) Value(step uint64) float64 {
	if step <= r.Start || r.Width == 0 {
		if step > r.Start {
			return r.B
		}
		return r.A
	}
	if step >= r.Start+r.Width {
		return r.B
	}
	frac := float64(step-r.Start) / float64(r.Width)
	return r.A + frac*(r.B-r.A)
}

// Power interpolates from A to B over Width steps along a power-law curve:
// the value's p-th root moves linearly between the p-th roots of A and B.
// With Exponent=1 this reduces to Ramp. A and B must be non-negative.
type Power struct {
	A        float64
	B        float64
	Exponent float64
	Start    uint64
	Width    uint64
}

// NewPower creates a power-law ramp from a to b with the given exponent.
func NewPower(a, b, exponent float64, start, width uint64) *Power {
	return &Power{A: a, B: b, Exponent: exponent, Start: start, Width: width}
}

// Value returns the power-law interpolated value at the given step.
func (p *Power) Value(step uint64) float64 {
	if step <= p.Start || p.Width == 0 {
		if step > p.Start {
			return p.B
		}
		return p.A
	}
	if step >= p.Start+p.Width {
		return p.B
	}
	frac := float64(step-p.Start) / float64(p.Width)
	inv := 1.0 / p.Exponent
	root := math.Pow(p.A, inv) + frac*(math.Pow(p.B, inv)-math.Pow(p.A, inv))
	return math.Pow(root, p.Exponent)
}

// Cycle oscillates between A and B: hold A for HoldA steps, ramp to B over
// RampAB steps, hold B for HoldB steps, ramp back over RampBA steps, repeat.
// Before Start the value is A.
type Cycle struct {
	A      float64
	B      float64
	Start  uint64
	HoldA  uint64
	RampAB uint64
	HoldB  uint64
	RampBA uint64
}

// NewCycle creates a periodic variant cycling between a and b.
func NewCycle(a, b float64, start, holdA, rampAB, holdB, rampBA uint64) *Cycle {
	return &Cycle{A: a, B: b, Start: start, HoldA: holdA, RampAB: rampAB, HoldB: holdB, RampBA: rampBA}
}

// Period returns the length of one full cycle in steps.
func (c *Cycle) Period() uint64 {
	return c.HoldA + c.RampAB + c.HoldB + c.RampBA
}

// Value returns the cycle value at the given step.
func (c *Cycle) Value(step uint64) float64 {
	if step < c.Start {
		return c.A
	}
	period := c.Period()
	if period == 0 {
		return c.A
	}
	pos := (step - c.Start) % period
	switch {
	case pos < c.HoldA:
		return c.A
	case pos < c.HoldA+c.RampAB:
		frac := float64(pos-c.HoldA) / float64(c.RampAB)
		return c.A + frac*(c.B-c.A)
	case pos < c.HoldA+c.RampAB+c.HoldB:
		return c.B
	default:
		frac := float64(pos-c.HoldA-c.RampAB-c.HoldB) / float64(c.RampBA)
		return c.B + frac*(c.A-c.B)
	}
}
