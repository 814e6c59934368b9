package params

import (
	"fmt"
	"math/rand/v2"
)

// InitOptions controls the rejection-sampling initialization loops.
//
// The reference behavior loops without an iteration cap until a fully
// in-bounds draw is found; MaxDraws = 0 preserves that. A positive
// MaxDraws is an explicit opt-in safety cap, not a default.
type InitOptions struct {
	MaxDraws int
}

// InitializeFromPrior draws every free parameter independently from
// its prior until the joint draw satisfies all bounds. Each accepted
// sample is written into the live parameters as it is drawn, so the
// set passes through transient invalid states during the loop.
func (s *Set) InitializeFromPrior(rng *rand.Rand, opts InitOptions) ([]float64, error) {
	free := s.Free()
	if len(free) == 0 {
		return nil, fmt.Errorf("no free parameters to initialize")
	}

	x := make([]float64, len(free))
	for draws := 0; ; draws++ {
		if opts.MaxDraws > 0 && draws >= opts.MaxDraws {
			return nil, fmt.Errorf("prior initialization exceeded %d draws without an in-bounds sample", opts.MaxDraws)
		}
		for i, p := range free {
			v, err := p.SampleFromPrior(rng)
			if err != nil {
				return nil, err
			}
			x[i] = v
			p.Value = v
		}
		if s.WithinBounds(x) {
			break
		}
	}
	return append([]float64{}, x...), nil
}

// InitializeWithScatter perturbs the reference vector x elementwise by
// Normal(0, scatter*x) until the perturbed vector satisfies all
// bounds. Samples are written into the live parameters as they are
// drawn, matching InitializeFromPrior.
func (s *Set) InitializeWithScatter(rng *rand.Rand, x []float64, scatter float64, opts InitOptions) ([]float64, error) {
	free := s.Free()
	if len(x) != len(free) {
		return nil, fmt.Errorf("reference vector has length %d, want %d", len(x), len(free))
	}

	out := make([]float64, len(free))
	for draws := 0; ; draws++ {
		if opts.MaxDraws > 0 && draws >= opts.MaxDraws {
			return nil, fmt.Errorf("scatter initialization exceeded %d draws without an in-bounds sample", opts.MaxDraws)
		}
		for i, p := range free {
			v := x[i] + rng.NormFloat64()*scatter*x[i]
			out[i] = v
			p.Value = v
		}
		if s.WithinBounds(out) {
			break
		}
	}
	return append([]float64{}, out...), nil
}
