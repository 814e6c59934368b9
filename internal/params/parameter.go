package params

import (
	"math"
	"math/rand/v2"
)

// ConstraintFunc computes a constrained parameter's value from the
// current values of its dependencies, keyed by name.
type ConstraintFunc func(deps map[string]float64) float64

// Parameter is a single named model parameter: a value, optional
// bounds, an optional prior, and its role in the fit (free, fixed, or
// constrained through a dependency relation).
type Parameter struct {
	Name        string
	Description string

	Value float64

	// Fiducial is the reference value used for fiducial initialization
	// and as the scaling location when no prior is attached.
	Fiducial    float64
	HasFiducial bool

	// Bounds. Use -Inf/+Inf (the zero values via NewParameter) for an
	// unbounded side.
	Min, Max float64

	Prior *Prior

	// Vary marks the parameter as free for the optimizer.
	Vary bool

	// Constrained parameters derive their value from Deps via Compute.
	Constrained bool
	Deps        []string
	Compute     ConstraintFunc

	// ModelParam marks parameters that are pushed into the model object
	// on every successful update.
	ModelParam bool

	// Deprecated parameters remain readable but emit a warning on first
	// access through the set.
	Deprecated bool
}

// NewParameter returns an unbounded fixed parameter with the given
// name and value.
func NewParameter(name string, value float64) *Parameter {
	return &Parameter{
		Name:  name,
		Value: value,
		Min:   math.Inf(-1),
		Max:   math.Inf(1),
	}
}

// Bounded reports whether the parameter declares a finite bound on
// either side.
func (p *Parameter) Bounded() bool {
	return !math.IsInf(p.Min, -1) || !math.IsInf(p.Max, 1)
}

// WithinBounds reports whether v lies within the declared bounds and,
// if a prior is attached, inside the region of nonzero prior density.
// Unbounded parameters without a prior always pass.
func (p *Parameter) WithinBounds(v float64) bool {
	if v < p.Min || v > p.Max {
		return false
	}
	if p.Prior != nil && !p.Prior.finiteLogProb(v) {
		return false
	}
	return true
}

// LogPrior returns the log prior density at the current value, or 0
// when no prior is attached.
func (p *Parameter) LogPrior() float64 {
	if p.Prior == nil {
		return 0
	}
	return p.Prior.LogProb(p.Value)
}

// DLogPrior returns the derivative of the log prior density at the
// current value, or 0 when no prior is attached.
func (p *Parameter) DLogPrior() float64 {
	if p.Prior == nil {
		return 0
	}
	return p.Prior.DLogProb(p.Value)
}

// SampleFromPrior draws a value from the parameter's prior.
func (p *Parameter) SampleFromPrior(src rand.Source) (float64, error) {
	if p.Prior == nil {
		return 0, &NoPriorError{Name: p.Name}
	}
	return p.Prior.Sample(src), nil
}

// scalingLoc returns the location for the affine rescaling transform:
// the prior mean when a prior exists, otherwise the fiducial value,
// otherwise zero.
func (p *Parameter) scalingLoc() float64 {
	if p.Prior != nil {
		return p.Prior.Loc()
	}
	if p.HasFiducial {
		return p.Fiducial
	}
	return 0
}

// scalingScale returns the scale for the affine rescaling transform:
// the prior standard deviation when a prior exists, otherwise one.
func (p *Parameter) scalingScale() float64 {
	if p.Prior != nil {
		if s := p.Prior.Scale(); s > 0 {
			return s
		}
	}
	return 1
}
