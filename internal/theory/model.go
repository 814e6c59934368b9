package theory

import (
	"github.com/cwbudde/powerfit/internal/params"
)

// Model is the opaque physics model contract: accept update-by-name
// parameter pushes and evaluate predictions over flattened coordinate
// pairs. The returned slice is keyed by the same ordering as the input
// coordinates.
type Model interface {
	Update(values map[string]float64) error
	Power(k, mu []float64) ([]float64, error)
}

// GradientModel is an optional model capability: analytic per-parameter
// derivatives of the prediction on the grid, ordered like names.
type GradientModel interface {
	Model
	PowerGradient(k, mu []float64, names []string) ([][]float64, error)
}

// CloneableModel is an optional model capability used by the parallel
// finite-difference gradient: each worker evaluates its own copy so
// the shared model is never written concurrently.
type CloneableModel interface {
	Model
	Clone() Model
}

// Theory couples a parameter set with a model instance and owns the
// memoized gradient evaluator.
type Theory struct {
	Params *params.Set
	model  Model

	grad *GradientEvaluator
}

// NewTheory binds the parameter set to the model and registers the
// gradient invalidation hook on the set's model binding.
func NewTheory(set *params.Set, model Model) *Theory {
	t := &Theory{Params: set}
	set.OnModelChange(t.InvalidateGradient)
	t.SetModel(model)
	return t
}

// Model returns the bound model.
func (t *Theory) Model() Model { return t.model }

// SetModel rebinds the model, invalidating the memoized gradient
// evaluator.
func (t *Theory) SetModel(m Model) {
	t.model = m
	t.Params.SetModel(m)
}

// InvalidateGradient drops the memoized gradient evaluator. Invoked
// automatically whenever the parameter set's model binding changes.
func (t *Theory) InvalidateGradient() { t.grad = nil }

// Gradient returns the memoized gradient evaluator for the current
// model binding, constructing it on first use.
func (t *Theory) Gradient() *GradientEvaluator {
	if t.grad == nil {
		t.grad = newGradientEvaluator(t)
	}
	return t.grad
}

// SetFree forwards to the parameter set: apply a free vector and push
// the result into the model.
func (t *Theory) SetFree(x []float64) (bool, error) {
	return t.Params.SetFree(x)
}

// NumFree returns the dimension of the free-parameter space.
func (t *Theory) NumFree() int { return t.Params.NumFree() }
