package solver

import (
	"context"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Options are the termination options of the bounded search.
type Options struct {
	// MaxIter caps the number of iterations performed by this Run call.
	// Ignored when TestConvergence is set.
	MaxIter int
	// Memory is the number of curvature pairs kept for the two-loop
	// recursion.
	Memory int
	// FTol is the relative objective-decrease convergence tolerance.
	FTol float64
	// GTol is the projected-gradient infinity-norm tolerance.
	GTol float64
	// TestConvergence probes for convergence without applying the
	// max-iteration cap; the stale-progress tracker decides instead.
	TestConvergence bool
	// Patience and Threshold configure the stale-progress tracker used
	// in probe mode.
	Patience  int
	Threshold float64
	// Progress, when non-nil, is invoked after every accepted
	// iteration with the cumulative iteration count, objective value,
	// and current point.
	Progress func(iteration int, f float64, x []float64)
}

func (o Options) withDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 500
	}
	if o.Memory <= 0 {
		o.Memory = 10
	}
	if o.FTol <= 0 {
		o.FTol = 1e-8
	}
	if o.GTol <= 0 {
		o.GTol = 1e-5
	}
	if o.Patience <= 0 {
		o.Patience = 5
	}
	if o.Threshold <= 0 {
		o.Threshold = 1e-6
	}
	return o
}

// State is the solver's current point: location, objective value, and
// gradient.
type State struct {
	X []float64
	F float64
	G []float64
}

// Data is the mutable record of one search, carried across restarts as
// the explicit continuation record: iteration and funcall counters are
// cumulative, Status is terminal for the last Run.
type Data struct {
	Iteration int
	Funcalls  int
	Status    Status
	State     State
}

// Minimizer runs a bound-constrained quasi-Newton search: limited-
// memory BFGS directions with projection of every trial point onto the
// box, and a backtracking line search enforcing sufficient decrease.
type Minimizer struct {
	value func([]float64) float64
	grad  func([]float64) []float64

	lower, upper []float64

	// Data survives across Run calls so a restarted minimizer
	// continues its counters.
	Data *Data

	sHist, yHist [][]float64
	rho          []float64
}

// NewMinimizer prepares a search from x0 within the given bounds.
// Unbounded sides use -Inf/+Inf. x0 is projected onto the box.
func NewMinimizer(value func([]float64) float64, grad func([]float64) []float64, x0, lower, upper []float64) *Minimizer {
	x := make([]float64, len(x0))
	for i := range x0 {
		x[i] = clip(x0[i], lower[i], upper[i])
	}
	return &Minimizer{
		value: value,
		grad:  grad,
		lower: lower,
		upper: upper,
		Data:  &Data{State: State{X: x}},
	}
}

// ConvergenceStatus returns the human-readable reason derived from the
// solver's status code.
func (m *Minimizer) ConvergenceStatus() string {
	return m.Data.Status.Reason()
}

func (m *Minimizer) eval(x []float64) float64 {
	m.Data.Funcalls++
	return m.value(x)
}

// Run performs the bounded search until convergence, iteration cap,
// failure, or context cancellation. It returns ErrInterrupted when the
// context is cancelled; the Data still reflects the last completed
// iteration.
func (m *Minimizer) Run(ctx context.Context, opts Options) (*Data, error) {
	opts = opts.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	tracker := newProgressTracker(opts.Patience, opts.Threshold)
	startIter := m.Data.Iteration

	x := m.Data.State.X
	f := m.eval(x)
	if math.IsNaN(f) {
		m.Data.Status = StatusEvalFailed
		m.Data.State.F = f
		return m.Data, nil
	}
	g := m.grad(x)
	if hasNaN(g) {
		m.Data.Status = StatusEvalFailed
		m.storeState(x, f, g)
		return m.Data, nil
	}
	m.storeState(x, f, g)

	for {
		select {
		case <-ctx.Done():
			return m.Data, ErrInterrupted
		default:
		}

		d := m.direction(g)
		if floats.Dot(d, g) >= 0 {
			// Not a descent direction; fall back to steepest descent.
			d = make([]float64, len(g))
			floats.AddScaled(d, -1, g)
			m.resetHistory()
		}

		alpha := 1.0
		if m.Data.Iteration == startIter {
			if n := floats.Norm(g, 2); n > 1 {
				alpha = 1 / n
			}
		}

		xNew, fNew, ok := m.lineSearch(x, f, g, d, alpha)
		if !ok {
			m.Data.Status = StatusLineSearchFailed
			return m.Data, nil
		}
		if math.IsNaN(fNew) {
			m.Data.Status = StatusEvalFailed
			return m.Data, nil
		}

		gNew := m.grad(xNew)
		if hasNaN(gNew) {
			m.Data.Status = StatusEvalFailed
			m.storeState(xNew, fNew, gNew)
			return m.Data, nil
		}

		m.updateHistory(x, xNew, g, gNew, opts.Memory)

		fOld := f
		x, f, g = xNew, fNew, gNew
		m.Data.Iteration++
		m.storeState(x, f, g)

		slog.Debug("Iteration complete",
			"iteration", m.Data.Iteration,
			"f", f,
			"funcalls", m.Data.Funcalls,
		)
		if opts.Progress != nil {
			opts.Progress(m.Data.Iteration, f, x)
		}

		if pg := m.projGradNorm(x, g); pg <= opts.GTol {
			m.Data.Status = StatusGradConverged
			return m.Data, nil
		}
		if relativeDecrease(fOld, f) <= opts.FTol {
			m.Data.Status = StatusFConverged
			return m.Data, nil
		}

		if opts.TestConvergence {
			if tracker.Update(f) {
				m.Data.Status = StatusFConverged
				return m.Data, nil
			}
		} else if m.Data.Iteration-startIter >= opts.MaxIter {
			m.Data.Status = StatusMaxIter
			return m.Data, nil
		}
	}
}

// lineSearch backtracks along d, projecting every trial point onto the
// box, until the Armijo sufficient-decrease condition holds.
func (m *Minimizer) lineSearch(x []float64, f float64, g, d []float64, alpha float64) ([]float64, float64, bool) {
	const (
		c1            = 1e-4
		maxBacktracks = 40
	)
	xNew := make([]float64, len(x))
	for bt := 0; bt < maxBacktracks; bt++ {
		for i := range x {
			xNew[i] = clip(x[i]+alpha*d[i], m.lower[i], m.upper[i])
		}
		// Directional derivative along the projected step.
		slope := 0.0
		for i := range x {
			slope += g[i] * (xNew[i] - x[i])
		}
		fNew := m.eval(xNew)
		if math.IsNaN(fNew) {
			return xNew, fNew, true
		}
		if fNew <= f+c1*slope && !math.IsInf(fNew, 1) {
			return xNew, fNew, true
		}
		alpha /= 2
	}
	return nil, 0, false
}

// direction computes -H*g through the standard two-loop recursion over
// the stored curvature pairs; with no history it is steepest descent.
func (m *Minimizer) direction(g []float64) []float64 {
	n := len(m.sHist)
	q := append([]float64{}, g...)
	if n == 0 {
		floats.Scale(-1, q)
		return q
	}

	alphas := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		alphas[i] = m.rho[i] * floats.Dot(m.sHist[i], q)
		floats.AddScaled(q, -alphas[i], m.yHist[i])
	}

	last := n - 1
	gamma := floats.Dot(m.sHist[last], m.yHist[last]) / floats.Dot(m.yHist[last], m.yHist[last])
	floats.Scale(gamma, q)

	for i := 0; i < n; i++ {
		beta := m.rho[i] * floats.Dot(m.yHist[i], q)
		floats.AddScaled(q, alphas[i]-beta, m.sHist[i])
	}
	floats.Scale(-1, q)
	return q
}

func (m *Minimizer) updateHistory(x, xNew, g, gNew []float64, memory int) {
	s := make([]float64, len(x))
	y := make([]float64, len(x))
	for i := range x {
		s[i] = xNew[i] - x[i]
		y[i] = gNew[i] - g[i]
	}
	sy := floats.Dot(s, y)
	// Skip pairs that would break positive definiteness.
	if sy <= 1e-10*floats.Norm(s, 2)*floats.Norm(y, 2) {
		return
	}
	m.sHist = append(m.sHist, s)
	m.yHist = append(m.yHist, y)
	m.rho = append(m.rho, 1/sy)
	if len(m.sHist) > memory {
		m.sHist = m.sHist[1:]
		m.yHist = m.yHist[1:]
		m.rho = m.rho[1:]
	}
}

func (m *Minimizer) resetHistory() {
	m.sHist, m.yHist, m.rho = nil, nil, nil
}

// projGradNorm is the infinity norm of the projected gradient: the
// per-component distance a unit gradient step can actually move inside
// the box.
func (m *Minimizer) projGradNorm(x, g []float64) float64 {
	norm := 0.0
	for i := range x {
		step := clip(x[i]-g[i], m.lower[i], m.upper[i]) - x[i]
		if a := math.Abs(step); a > norm {
			norm = a
		}
	}
	return norm
}

func (m *Minimizer) storeState(x []float64, f float64, g []float64) {
	m.Data.State.X = append([]float64{}, x...)
	m.Data.State.F = f
	if g != nil {
		m.Data.State.G = append([]float64{}, g...)
	}
}

func relativeDecrease(fOld, fNew float64) float64 {
	denom := math.Max(math.Max(math.Abs(fOld), math.Abs(fNew)), 1)
	return (fOld - fNew) / denom
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
