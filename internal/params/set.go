package params

import (
	"fmt"
	"log/slog"
)

// Model is the minimal contract the parameter set needs from the
// physics model: accept an update-by-name call for the model-relevant
// parameter values.
type Model interface {
	Update(values map[string]float64) error
}

// Set is an ordered registry of parameters partitioned into free,
// fixed, and constrained views. The table is built explicitly through
// Add/MustAdd calls at construction time; there is no reflective scan.
//
// A Set is not safe for concurrent writers. The optimization driver
// mutates it in place on every trial evaluation; concurrent read-only
// inspection between iterations is fine.
type Set struct {
	order  []string
	table  map[string]*Parameter
	model  Model
	warned map[string]bool

	onModelChange func()
}

// NewSet returns an empty parameter set.
func NewSet() *Set {
	return &Set{
		table:  make(map[string]*Parameter),
		warned: make(map[string]bool),
	}
}

// Add registers a parameter. Registration order defines the order of
// all vector views. A constrained parameter must carry dependencies
// and a compute function.
func (s *Set) Add(p *Parameter) error {
	if p.Name == "" {
		return &ConstraintError{Name: p.Name, Reason: "parameter name cannot be empty"}
	}
	if _, ok := s.table[p.Name]; ok {
		return fmt.Errorf("parameter %q already registered", p.Name)
	}
	if p.Constrained {
		if len(p.Deps) == 0 {
			return &ConstraintError{Name: p.Name, Reason: "constrained parameter has no dependencies"}
		}
		if p.Compute == nil {
			return &ConstraintError{Name: p.Name, Reason: "constrained parameter has no compute function"}
		}
	}
	s.order = append(s.order, p.Name)
	s.table[p.Name] = p
	return nil
}

// MustAdd registers a parameter and panics on error. Intended for
// static table construction at type-definition time.
func (s *Set) MustAdd(p *Parameter) {
	if err := s.Add(p); err != nil {
		panic(err)
	}
}

// Get returns the named parameter. A deprecated parameter emits a
// single warning on first access.
func (s *Set) Get(name string) (*Parameter, bool) {
	p, ok := s.table[name]
	if !ok {
		return nil, false
	}
	if p.Deprecated && !s.warned[name] {
		s.warned[name] = true
		slog.Warn("Accessing deprecated parameter", "name", name)
	}
	return p, true
}

// Len returns the number of registered parameters.
func (s *Set) Len() int { return len(s.order) }

// Names returns all parameter names in registration order.
func (s *Set) Names() []string {
	return append([]string{}, s.order...)
}

// SetModel binds the model object that receives parameter pushes and
// invokes the model-change hook (used to invalidate memoized
// gradient state in the owner).
func (s *Set) SetModel(m Model) {
	s.model = m
	if s.onModelChange != nil {
		s.onModelChange()
	}
}

// Model returns the bound model object, or nil.
func (s *Set) Model() Model { return s.model }

// OnModelChange registers a hook invoked whenever the model binding
// changes.
func (s *Set) OnModelChange(fn func()) { s.onModelChange = fn }

// SetValue assigns a value by name, rejecting unknown names.
func (s *Set) SetValue(name string, value float64) error {
	p, ok := s.table[name]
	if !ok {
		return &UnknownParameterError{Name: name}
	}
	p.Value = value
	return nil
}

// UpdateValues assigns several values at once. Unknown names fail
// fast before any assignment is made.
func (s *Set) UpdateValues(values map[string]float64) error {
	for name := range values {
		if _, ok := s.table[name]; !ok {
			return &UnknownParameterError{Name: name}
		}
	}
	for name, v := range values {
		s.table[name].Value = v
	}
	return s.UpdateConstraints()
}

// UpdateConstraints re-evaluates every constrained parameter from the
// current values of its dependencies, and demotes any constrained
// parameter whose dependencies are all fixed: such a parameter cannot
// legally be free for optimization.
func (s *Set) UpdateConstraints() error {
	// Iterate to a fixed point so chained constraints settle; the
	// registration order bounds the chain depth.
	for pass := 0; pass < len(s.order)+1; pass++ {
		changed := false
		for _, name := range s.order {
			p := s.table[name]
			if !p.Constrained {
				continue
			}
			deps := make(map[string]float64, len(p.Deps))
			for _, dep := range p.Deps {
				d, ok := s.table[dep]
				if !ok {
					return &ConstraintError{Name: name, Reason: fmt.Sprintf("dependency %q is not registered", dep)}
				}
				deps[dep] = d.Value
			}
			v := p.Compute(deps)
			if v != p.Value {
				p.Value = v
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for _, name := range s.order {
		p := s.table[name]
		if !p.Constrained {
			continue
		}
		anyFree := false
		for _, dep := range p.Deps {
			if d, ok := s.table[dep]; ok && d.Vary && !d.Constrained {
				anyFree = true
				break
			}
		}
		if !anyFree {
			p.Vary = false
			p.Constrained = false
		}
	}
	return nil
}

// Free returns the free (varied, unconstrained) parameters in
// registration order.
func (s *Set) Free() []*Parameter {
	var free []*Parameter
	for _, name := range s.order {
		p := s.table[name]
		if p.Vary && !p.Constrained {
			free = append(free, p)
		}
	}
	return free
}

// FreeNames returns the names of the free parameters.
func (s *Set) FreeNames() []string {
	free := s.Free()
	names := make([]string, len(free))
	for i, p := range free {
		names[i] = p.Name
	}
	return names
}

// FreeValues returns the current free-parameter vector.
func (s *Set) FreeValues() []float64 {
	free := s.Free()
	values := make([]float64, len(free))
	for i, p := range free {
		values[i] = p.Value
	}
	return values
}

// NumFree returns the dimension of the free-parameter space.
func (s *Set) NumFree() int { return len(s.Free()) }

// Constrained returns the constrained parameters in registration order.
func (s *Set) Constrained() []*Parameter {
	var out []*Parameter
	for _, name := range s.order {
		if p := s.table[name]; p.Constrained {
			out = append(out, p)
		}
	}
	return out
}

// ConstrainedNames returns the names of the constrained parameters.
func (s *Set) ConstrainedNames() []string {
	cs := s.Constrained()
	names := make([]string, len(cs))
	for i, p := range cs {
		names[i] = p.Name
	}
	return names
}

// FiducialValues returns the fiducial free-parameter vector, failing
// if any free parameter never declared a fiducial value.
func (s *Set) FiducialValues() ([]float64, error) {
	free := s.Free()
	values := make([]float64, len(free))
	var missing []string
	for i, p := range free {
		if !p.HasFiducial {
			missing = append(missing, p.Name)
			continue
		}
		values[i] = p.Fiducial
	}
	if len(missing) > 0 {
		return nil, &NoFiducialError{Names: missing}
	}
	return values, nil
}

// WithinBounds reports whether every free parameter's trial value in x
// lies within its declared bounds and nonzero-prior region.
func (s *Set) WithinBounds(x []float64) bool {
	free := s.Free()
	if len(x) != len(free) {
		return false
	}
	for i, p := range free {
		if !p.WithinBounds(x[i]) {
			return false
		}
	}
	return true
}

// Bounds returns the lower and upper bound vectors over the free
// parameters.
func (s *Set) Bounds() (lower, upper []float64) {
	free := s.Free()
	lower = make([]float64, len(free))
	upper = make([]float64, len(free))
	for i, p := range free {
		lower[i] = p.Min
		upper[i] = p.Max
	}
	return lower, upper
}

// ModelValues returns the (name, value) mapping of every model-relevant
// parameter, the payload pushed into the model object.
func (s *Set) ModelValues() map[string]float64 {
	values := make(map[string]float64)
	for _, name := range s.order {
		if p := s.table[name]; p.ModelParam {
			values[name] = p.Value
		}
	}
	return values
}

// SetFree applies x to the free parameters and pushes the resulting
// model-relevant values into the bound model.
//
// A bounds violation returns (false, nil) without mutating anything:
// this is the expected, recoverable rejection that drives resampling.
// A structural model rejection restores the previous state and returns
// a ModelUpdateError so callers can tell the two apart.
func (s *Set) SetFree(x []float64) (bool, error) {
	free := s.Free()
	if len(x) != len(free) {
		return false, fmt.Errorf("free vector has length %d, want %d", len(x), len(free))
	}
	if !s.WithinBounds(x) {
		return false, nil
	}

	saved := s.FreeValues()
	for i, p := range free {
		p.Value = x[i]
	}
	if err := s.UpdateConstraints(); err != nil {
		s.restoreFree(saved)
		return false, err
	}

	if s.model != nil {
		values := s.ModelValues()
		if err := s.model.Update(values); err != nil {
			s.restoreFree(saved)
			return false, &ModelUpdateError{Values: values, Cause: err}
		}
	}
	return true, nil
}

func (s *Set) restoreFree(values []float64) {
	for i, p := range s.Free() {
		p.Value = values[i]
	}
	s.UpdateConstraints()
}

// Check verifies every free parameter against its bounds and prior,
// returning diagnostics for each violation.
func (s *Set) Check() (bool, []string) {
	ok := true
	var msgs []string
	for _, p := range s.Free() {
		if p.Bounded() && (p.Value < p.Min || p.Value > p.Max) {
			ok = false
			msgs = append(msgs, fmt.Sprintf("%s=%g is outside of reasonable limits [%g, %g]", p.Name, p.Value, p.Min, p.Max))
			continue
		}
		if p.Prior != nil && !p.Prior.finiteLogProb(p.Value) {
			ok = false
			msgs = append(msgs, fmt.Sprintf("%s=%g is outside of prior %s", p.Name, p.Value, p.Prior))
		}
	}
	return ok, msgs
}

// LogPrior returns the summed log prior density over the free
// parameters at their current values.
func (s *Set) LogPrior() float64 {
	total := 0.0
	for _, p := range s.Free() {
		total += p.LogPrior()
	}
	return total
}

// DLogPrior returns the per-parameter derivative of the log prior
// density over the free parameters.
func (s *Set) DLogPrior() []float64 {
	free := s.Free()
	grad := make([]float64, len(free))
	for i, p := range free {
		grad[i] = p.DLogPrior()
	}
	return grad
}

// Clone returns a deep copy of the set sharing the same model binding.
// Used to give finite-difference workers their own mutable state.
func (s *Set) Clone() *Set {
	clone := NewSet()
	for _, name := range s.order {
		p := *s.table[name]
		if p.Deps != nil {
			p.Deps = append([]string{}, p.Deps...)
		}
		clone.order = append(clone.order, name)
		clone.table[name] = &p
	}
	clone.model = s.model
	return clone
}
