package theory

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cwbudde/powerfit/internal/params"
)

// GradientEvaluator computes per-parameter derivatives of the model
// prediction over a grid. It prefers the model's analytic gradient and
// falls back to central finite differences, optionally fanned out over
// a fixed-size worker pool. Memoized on the Theory and invalidated
// when the model binding changes.
type GradientEvaluator struct {
	theory *Theory
}

func newGradientEvaluator(t *Theory) *GradientEvaluator {
	return &GradientEvaluator{theory: t}
}

// GradientOptions controls a gradient evaluation.
type GradientOptions struct {
	// Epsilon holds the per-parameter finite-difference steps, ordered
	// like the free parameters.
	Epsilon []float64
	// Workers bounds the finite-difference pool size; 0 means
	// runtime.NumCPU. The pool is only used when the model can be
	// cloned, since a shared model is not safe for concurrent writers.
	Workers int
	// Numerical forces finite differences even when the model exposes
	// an analytic gradient.
	Numerical bool
}

// Evaluate returns dP/dtheta_i on the (k, mu) grid for every free
// parameter, evaluated at the free-parameter vector theta. The result
// preserves free-parameter order.
func (g *GradientEvaluator) Evaluate(k, mu, theta []float64, opts GradientOptions) ([][]float64, error) {
	set := g.theory.Params
	names := set.FreeNames()
	if len(theta) != len(names) {
		return nil, fmt.Errorf("theta has length %d, want %d", len(theta), len(names))
	}

	if !opts.Numerical {
		if gm, ok := g.theory.Model().(GradientModel); ok {
			restore, err := set.Preserve(theta)
			if err != nil {
				return nil, err
			}
			defer restore()
			if err := gm.Update(set.ModelValues()); err != nil {
				return nil, &EvalError{Op: "model update for analytic gradient", Cause: err}
			}
			return gm.PowerGradient(k, mu, names)
		}
	}
	return g.numerical(k, mu, theta, opts)
}

// numerical computes central differences of the raw prediction, one
// perturbed parameter per task. Each worker evaluates against its own
// model clone; a non-cloneable model forces a single worker.
func (g *GradientEvaluator) numerical(k, mu, theta []float64, opts GradientOptions) ([][]float64, error) {
	set := g.theory.Params
	ndim := len(theta)
	eps := opts.Epsilon
	if len(eps) != ndim {
		return nil, fmt.Errorf("epsilon has length %d, want %d", len(eps), ndim)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > ndim {
		workers = ndim
	}
	cloneable, canClone := g.theory.Model().(CloneableModel)
	if !canClone {
		workers = 1
	}

	grad := make([][]float64, ndim)
	errs := make([]error, ndim)
	tasks := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		model := g.theory.Model()
		scratch := set
		if canClone && workers > 1 {
			model = cloneable.Clone()
			scratch = set.Clone()
			scratch.SetModel(model)
		}
		wg.Add(1)
		go func(model Model, scratch *params.Set) {
			defer wg.Done()
			for i := range tasks {
				grad[i], errs[i] = centralDifference(scratch, model, k, mu, theta, i, eps[i])
			}
		}(model, scratch)
	}

	for i := 0; i < ndim; i++ {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, &EvalError{Op: fmt.Sprintf("numerical gradient of parameter %q", set.FreeNames()[i]), Cause: err}
		}
	}
	return grad, nil
}

func centralDifference(scratch *params.Set, model Model, k, mu, theta []float64, i int, eps float64) ([]float64, error) {
	up := append([]float64{}, theta...)
	up[i] += eps
	down := append([]float64{}, theta...)
	down[i] -= eps

	pUp, err := evalAt(scratch, model, k, mu, up)
	if err != nil {
		return nil, err
	}
	pDown, err := evalAt(scratch, model, k, mu, down)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(pUp))
	for j := range out {
		out[j] = (pUp[j] - pDown[j]) / (2 * eps)
	}
	return out, nil
}

func evalAt(scratch *params.Set, model Model, k, mu, theta []float64) ([]float64, error) {
	restore, err := scratch.Preserve(theta)
	if err != nil {
		return nil, err
	}
	defer restore()
	if err := model.Update(scratch.ModelValues()); err != nil {
		return nil, err
	}
	return model.Power(k, mu)
}
