package params

// The affine rescaling transform maps the free-parameter vector into a
// numerically conditioned solver space: x' = (x - loc) / scale, with
// loc and scale taken from each free parameter's prior (fiducial value
// and unit scale when no prior is attached). Scale and InverseScale
// are exact inverses to floating-point precision.

// LocsScales returns the per-free-parameter location and scale of the
// transform.
func (s *Set) LocsScales() (locs, scales []float64) {
	return s.locsScales()
}

func (s *Set) locsScales() (locs, scales []float64) {
	free := s.Free()
	locs = make([]float64, len(free))
	scales = make([]float64, len(free))
	for i, p := range free {
		locs[i] = p.scalingLoc()
		scales[i] = p.scalingScale()
	}
	return locs, scales
}

// Scale maps a physical free-parameter vector into solver space.
func (s *Set) Scale(x []float64) []float64 {
	locs, scales := s.locsScales()
	out := make([]float64, len(x))
	for i := range x {
		out[i] = (x[i] - locs[i]) / scales[i]
	}
	return out
}

// InverseScale maps a solver-space vector back to physical units.
func (s *Set) InverseScale(x []float64) []float64 {
	locs, scales := s.locsScales()
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i]*scales[i] + locs[i]
	}
	return out
}

// ScaleGradient converts a gradient with respect to the physical
// parameters into a gradient with respect to the scaled parameters:
// dF/dx' = dF/dx * scale.
func (s *Set) ScaleGradient(grad []float64) []float64 {
	_, scales := s.locsScales()
	out := make([]float64, len(grad))
	for i := range grad {
		out[i] = grad[i] * scales[i]
	}
	return out
}
