package params

import "fmt"

// Preserve temporarily assigns theta to the free parameters and
// returns a restore function that puts the prior values back. The
// restore function is safe to defer and runs unconditionally,
// including on error paths.
func (s *Set) Preserve(theta []float64) (restore func(), err error) {
	free := s.Free()
	if len(theta) != len(free) {
		return nil, fmt.Errorf("free vector has length %d, want %d", len(theta), len(free))
	}

	saved := s.FreeValues()
	for i, p := range free {
		p.Value = theta[i]
	}
	s.UpdateConstraints()

	return func() {
		s.restoreFree(saved)
	}, nil
}
