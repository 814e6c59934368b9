package theory

import (
	"math"
	"runtime"
	"sync"
)

// ObjectiveConfig fixes the evaluation behavior of an Objective at
// construction time.
type ObjectiveConfig struct {
	// UsePriors adds the negative log prior to the objective and its
	// gradient.
	UsePriors bool
	// Rescale means theta arrives in scaled solver space and gradients
	// are returned in scaled space.
	Rescale bool
	// Numerical differentiates the raw model prediction before the
	// pipeline instead of using an analytic model gradient.
	Numerical bool
	// NumericalFromLnlike differentiates the final scalar likelihood
	// directly; overrides Numerical when set.
	NumericalFromLnlike bool
	// Epsilon holds per-parameter finite-difference steps in
	// free-parameter order.
	Epsilon []float64
	// Workers bounds the finite-difference worker pool.
	Workers int
	// ModelParams are auxiliary (non-optimized) model parameters pushed
	// before every evaluation.
	ModelParams map[string]float64
}

// Objective composes a Theory and a Pipeline into the scalar function
// and gradient the optimization driver minimizes: the negative
// log-likelihood, optionally plus the negative log prior.
//
// A trial vector outside bounds yields +Inf (the recoverable "no
// update" outcome). A pipeline or model evaluation failure yields NaN
// and is retained for Err(); the driver treats it as fatal to the fit.
type Objective struct {
	theory *Theory
	pipe   *Pipeline
	cfg    ObjectiveConfig

	mu      sync.Mutex
	lastErr error
}

// NewObjective builds the objective over a fixed pipeline
// configuration.
func NewObjective(t *Theory, pipe *Pipeline, cfg ObjectiveConfig) *Objective {
	return &Objective{theory: t, pipe: pipe, cfg: cfg}
}

// Err returns the most recent fatal evaluation error, or nil.
func (o *Objective) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *Objective) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastErr = err
}

// physical maps a trial vector into physical units if rescaling is
// active.
func (o *Objective) physical(theta []float64) []float64 {
	if o.cfg.Rescale {
		return o.theory.Params.InverseScale(theta)
	}
	return theta
}

// Value returns the scalar objective at theta. The driver always
// minimizes.
func (o *Objective) Value(theta []float64) float64 {
	v, err := o.valueAt(o.theory, o.pipe, theta)
	if err != nil {
		o.setErr(err)
		return math.NaN()
	}
	return v
}

func (o *Objective) valueAt(t *Theory, pipe *Pipeline, theta []float64) (float64, error) {
	phys := theta
	if o.cfg.Rescale {
		phys = t.Params.InverseScale(theta)
	}

	ok, err := t.SetFree(phys)
	if err != nil {
		return 0, err
	}
	if !ok {
		// Bounds violation: recoverable rejection, not an error.
		return math.Inf(1), nil
	}

	if o.cfg.ModelParams != nil {
		if err := t.Model().Update(o.cfg.ModelParams); err != nil {
			return 0, &EvalError{Op: "auxiliary model update", Cause: err}
		}
	}

	grid := pipe.Grid()
	power, err := t.Model().Power(grid.K, grid.Mu)
	if err != nil {
		return 0, &EvalError{Op: "model evaluation", Cause: err}
	}
	vec, err := pipe.Flatten(power)
	if err != nil {
		return 0, err
	}

	nll := 0.5 * chiSquared(vec, pipe.Data.Vector(), pipe.Data.Variances())
	if o.cfg.UsePriors {
		nll -= t.Params.LogPrior()
	}
	return nll, nil
}

// Gradient returns the objective gradient at theta, in the same space
// theta is expressed in.
func (o *Objective) Gradient(theta []float64) []float64 {
	g, err := o.gradientAt(theta)
	if err != nil {
		o.setErr(err)
		out := make([]float64, len(theta))
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	return g
}

func (o *Objective) gradientAt(theta []float64) ([]float64, error) {
	if o.cfg.NumericalFromLnlike {
		return o.scalarFiniteDifference(theta)
	}

	phys := o.physical(theta)
	set := o.theory.Params

	ok, err := o.theory.SetFree(phys)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &EvalError{Op: "gradient evaluation", Cause: errOutOfBounds}
	}
	if o.cfg.ModelParams != nil {
		if err := o.theory.Model().Update(o.cfg.ModelParams); err != nil {
			return nil, &EvalError{Op: "auxiliary model update", Cause: err}
		}
	}

	// The model is evaluated over the union grid exactly once here;
	// the per-parameter derivatives reuse the same grid.
	grid := o.pipe.Grid()
	power, err := o.theory.Model().Power(grid.K, grid.Mu)
	if err != nil {
		return nil, &EvalError{Op: "model evaluation", Cause: err}
	}
	vec, err := o.pipe.Flatten(power)
	if err != nil {
		return nil, err
	}

	dP, err := o.theory.Gradient().Evaluate(grid.K, grid.Mu, phys, GradientOptions{
		Epsilon:   o.cfg.Epsilon,
		Workers:   o.cfg.Workers,
		Numerical: o.cfg.Numerical,
	})
	if err != nil {
		return nil, err
	}
	data := o.pipe.Data.Vector()
	vars := o.pipe.Data.Variances()

	grad := make([]float64, len(phys))
	for i := range phys {
		// The transfers act linearly, so the flattened derivative of
		// the prediction is the derivative of the flattened prediction.
		dvec, err := o.pipe.Flatten(dP[i])
		if err != nil {
			return nil, err
		}
		sum := 0.0
		for j := range vec {
			sum += (vec[j] - data[j]) / vars[j] * dvec[j]
		}
		grad[i] = sum
	}

	if o.cfg.UsePriors {
		dlnprior := set.DLogPrior()
		for i := range grad {
			grad[i] -= dlnprior[i]
		}
	}

	if o.cfg.Rescale {
		return set.ScaleGradient(grad), nil
	}
	return grad, nil
}

// scalarFiniteDifference differentiates the scalar objective directly
// with central differences, one perturbed parameter per worker task.
// Workers evaluate against cloned theory state when the model supports
// it; otherwise evaluation is sequential.
func (o *Objective) scalarFiniteDifference(theta []float64) ([]float64, error) {
	ndim := len(theta)
	eps := o.cfg.Epsilon

	workers := o.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > ndim {
		workers = ndim
	}
	cloneable, canClone := o.theory.Model().(CloneableModel)
	if !canClone {
		workers = 1
	}

	// Epsilon is expressed per physical parameter; when rescaling is
	// active the perturbation happens in scaled space with the scaled
	// step.
	steps := append([]float64{}, eps...)
	if o.cfg.Rescale {
		_, scales := o.theory.Params.LocsScales()
		for i := range steps {
			steps[i] = eps[i] / scales[i]
		}
	}

	grad := make([]float64, ndim)
	errs := make([]error, ndim)
	tasks := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		t, pipe := o.theory, o.pipe
		if canClone && workers > 1 {
			set := o.theory.Params.Clone()
			t = NewTheory(set, cloneable.Clone())
			pipe = o.pipe
		}
		wg.Add(1)
		go func(t *Theory, pipe *Pipeline) {
			defer wg.Done()
			for i := range tasks {
				up := append([]float64{}, theta...)
				up[i] += steps[i]
				down := append([]float64{}, theta...)
				down[i] -= steps[i]

				fUp, err := o.valueAt(t, pipe, up)
				if err != nil {
					errs[i] = err
					continue
				}
				fDown, err := o.valueAt(t, pipe, down)
				if err != nil {
					errs[i] = err
					continue
				}
				grad[i] = (fUp - fDown) / (2 * steps[i])
			}
		}(t, pipe)
	}

	for i := 0; i < ndim; i++ {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return grad, nil
}

func chiSquared(theoryVec, dataVec, variance []float64) float64 {
	sum := 0.0
	for i := range theoryVec {
		r := theoryVec[i] - dataVec[i]
		sum += r * r / variance[i]
	}
	return sum
}
