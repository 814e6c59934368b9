package params

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// PriorKind identifies the distribution family of a parameter prior.
type PriorKind int

const (
	NormalPrior PriorKind = iota
	UniformPrior
)

func (k PriorKind) String() string {
	switch k {
	case NormalPrior:
		return "normal"
	case UniformPrior:
		return "uniform"
	default:
		return fmt.Sprintf("PriorKind(%d)", int(k))
	}
}

// Prior is a one-dimensional prior distribution attached to a parameter.
// It provides the log density used in the posterior, sampling for
// prior-draw initialization, and the location/scale used by the
// rescaling transform.
type Prior struct {
	Kind PriorKind

	normal  distuv.Normal
	uniform distuv.Uniform
}

// NewNormalPrior returns a normal prior with mean mu and standard
// deviation sigma.
func NewNormalPrior(mu, sigma float64) *Prior {
	return &Prior{
		Kind:   NormalPrior,
		normal: distuv.Normal{Mu: mu, Sigma: sigma},
	}
}

// NewUniformPrior returns a uniform prior on [lower, upper].
func NewUniformPrior(lower, upper float64) *Prior {
	return &Prior{
		Kind:    UniformPrior,
		uniform: distuv.Uniform{Min: lower, Max: upper},
	}
}

// LogProb returns the log density at x. Outside the support of a
// uniform prior this is -Inf.
func (p *Prior) LogProb(x float64) float64 {
	switch p.Kind {
	case NormalPrior:
		return p.normal.LogProb(x)
	default:
		return p.uniform.LogProb(x)
	}
}

// DLogProb returns d(log density)/dx at x. For a uniform prior the
// derivative is zero everywhere inside the support.
func (p *Prior) DLogProb(x float64) float64 {
	switch p.Kind {
	case NormalPrior:
		return -(x - p.normal.Mu) / (p.normal.Sigma * p.normal.Sigma)
	default:
		return 0
	}
}

// Sample draws one value from the prior using the given source.
func (p *Prior) Sample(src rand.Source) float64 {
	switch p.Kind {
	case NormalPrior:
		d := p.normal
		d.Src = src
		return d.Rand()
	default:
		d := p.uniform
		d.Src = src
		return d.Rand()
	}
}

// Loc returns the location used by the scaling transform (the mean of
// the distribution).
func (p *Prior) Loc() float64 {
	switch p.Kind {
	case NormalPrior:
		return p.normal.Mean()
	default:
		return p.uniform.Mean()
	}
}

// Scale returns the scale used by the scaling transform (the standard
// deviation of the distribution).
func (p *Prior) Scale() float64 {
	switch p.Kind {
	case NormalPrior:
		return p.normal.StdDev()
	default:
		return p.uniform.StdDev()
	}
}

func (p *Prior) String() string {
	switch p.Kind {
	case NormalPrior:
		return fmt.Sprintf("normal(mu=%g, sigma=%g)", p.normal.Mu, p.normal.Sigma)
	default:
		return fmt.Sprintf("uniform(%g, %g)", p.uniform.Min, p.uniform.Max)
	}
}

// finiteLogProb reports whether the prior density at x is nonzero.
func (p *Prior) finiteLogProb(x float64) bool {
	return !math.IsInf(p.LogProb(x), -1)
}
