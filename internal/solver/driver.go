package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cwbudde/powerfit/internal/config"
	"github.com/cwbudde/powerfit/internal/params"
	"github.com/cwbudde/powerfit/internal/store"
	"github.com/cwbudde/powerfit/internal/theory"
)

// Phase is the driver's lifecycle state.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseRunning
	PhaseConverged
	PhaseFailed
	PhaseMaxIterStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseRunning:
		return "running"
	case PhaseConverged:
		return "converged"
	case PhaseFailed:
		return "failed"
	case PhaseMaxIterStopped:
		return "max-iter-stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// RunInput bundles everything one optimization run needs.
type RunInput struct {
	// Params is the parameter set the objective operates on.
	Params *params.Set
	// Objective is the scalar function and gradient to minimize.
	Objective *theory.Objective
	// Config controls initialization, gradient mode, rescaling, and
	// termination.
	Config *config.Config

	// InitValues, when non-nil, overrides the initialization strategy
	// with an explicit physical starting vector (the "result" strategy
	// without a stored run).
	InitValues []float64
	// Restart, when non-nil, continues a previous run: its final vector
	// seeds the start, its counters carry over, and its iterations are
	// deducted from the iteration budget.
	Restart *store.FitResult

	// Global is the warm-start searcher used by the "global" strategy.
	Global GlobalSearcher
	// RNG drives the prior and scatter initialization loops.
	RNG *rand.Rand

	// RunID names the stored result; a fresh ID is generated when empty.
	RunID string
	// RunConfig is the configuration snapshot embedded in the result.
	RunConfig store.RunConfig

	// Trace, when non-nil, receives one entry per accepted iteration.
	Trace *store.TraceWriter
}

// Driver runs one bounded fit from initialization to a stored result.
type Driver struct {
	phase Phase
}

// NewDriver returns a driver in the init phase.
func NewDriver() *Driver {
	return &Driver{phase: PhaseInit}
}

// Phase returns the driver's current lifecycle state.
func (d *Driver) Phase() Phase {
	return d.phase
}

// Run executes the fit. A result is returned only when the run
// completed (err == nil) or was interrupted (errors.Is(err,
// ErrInterrupted), with the best state reached so far); every other
// fault yields (nil, err). Panics inside the solver are captured as a
// SolverError, never propagated.
func (d *Driver) Run(ctx context.Context, in RunInput) (result *store.FitResult, err error) {
	if in.Params == nil || in.Objective == nil || in.Config == nil {
		return nil, fmt.Errorf("driver input requires params, objective, and config")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if r := recover(); r != nil {
			d.phase = PhaseFailed
			result = nil
			err = &SolverError{Reason: "panic during optimization", Cause: fmt.Errorf("%v", r)}
			slog.Error("Optimization panicked", "error", err)
		}
	}()

	cfg := in.Config
	set := in.Params

	x0, err := d.initialize(in)
	if err != nil {
		d.phase = PhaseFailed
		return nil, fmt.Errorf("initialization failed: %w", err)
	}
	slog.Info("Starting optimization",
		"initFrom", cfg.InitFrom,
		"free", set.NumFree(),
		"rescale", cfg.Rescale,
		"usePriors", cfg.UsePriors,
	)

	lower, upper := set.Bounds()
	start := x0
	if cfg.Rescale {
		start = set.Scale(x0)
		lower = set.Scale(lower)
		upper = set.Scale(upper)
	}

	minimizer := NewMinimizer(in.Objective.Value, in.Objective.Gradient, start, lower, upper)

	maxIter := cfg.Options.MaxIter
	if in.Restart != nil {
		minimizer.Data.Iteration = in.Restart.Iterations
		minimizer.Data.Funcalls = in.Restart.Funcalls
		maxIter -= in.Restart.Iterations
		if maxIter < 1 {
			maxIter = 1
		}
		slog.Info("Continuing previous run",
			"runID", in.Restart.RunID,
			"iterations", in.Restart.Iterations,
			"remainingBudget", maxIter,
		)
	}

	opts := Options{
		MaxIter:         maxIter,
		Memory:          cfg.Options.Memory,
		FTol:            cfg.Options.FTol,
		GTol:            cfg.Options.GTol,
		TestConvergence: cfg.Options.TestConvergence,
		Patience:        cfg.Options.Patience,
		Threshold:       cfg.Options.Threshold,
	}
	if in.Trace != nil {
		opts.Progress = func(iteration int, f float64, x []float64) {
			entry := store.TraceEntry{Iteration: iteration, F: f, Timestamp: time.Now()}
			if werr := in.Trace.Write(entry); werr != nil {
				slog.Warn("Failed to write trace entry", "error", werr)
			}
		}
	}

	d.phase = PhaseRunning
	began := time.Now()
	data, runErr := minimizer.Run(ctx, opts)
	elapsed := time.Since(began)

	interrupted := errors.Is(runErr, ErrInterrupted)
	if runErr != nil && !interrupted {
		d.phase = PhaseFailed
		return nil, runErr
	}

	if data.Status == StatusEvalFailed {
		d.phase = PhaseFailed
		cause := in.Objective.Err()
		if cause == nil {
			cause = errors.New(data.Status.Reason())
		}
		return nil, &SolverError{Reason: "objective evaluation failed", Cause: cause}
	}

	switch {
	case interrupted:
		d.phase = PhaseFailed
	case data.Status.Converged():
		d.phase = PhaseConverged
	case data.Status == StatusMaxIter:
		d.phase = PhaseMaxIterStopped
	default:
		d.phase = PhaseFailed
	}

	x := data.State.X
	if cfg.Rescale {
		x = set.InverseScale(x)
	}

	runID := in.RunID
	if runID == "" {
		runID = store.NewRunID()
	}
	message := data.Status.Reason()
	if interrupted {
		message = ErrInterrupted.Error()
	}
	result = &store.FitResult{
		RunID:      runID,
		Names:      set.FreeNames(),
		X:          x,
		Fun:        data.State.F,
		Iterations: data.Iteration,
		Funcalls:   data.Funcalls,
		Status:     int(data.Status),
		Message:    message,
		Converged:  !interrupted && data.Status.Converged(),
		Elapsed:    elapsed,
		Timestamp:  time.Now(),
		Config:     in.RunConfig,
	}

	slog.Info("Optimization finished",
		"phase", d.phase.String(),
		"message", message,
		"f", result.Fun,
		"iterations", result.Iterations,
		"funcalls", result.Funcalls,
		"elapsed", elapsed,
	)

	if interrupted {
		return result, ErrInterrupted
	}
	return result, nil
}

// initialize produces the physical-unit starting vector per the
// configured strategy.
func (d *Driver) initialize(in RunInput) ([]float64, error) {
	cfg := in.Config
	set := in.Params
	initOpts := params.InitOptions{MaxDraws: cfg.MaxInitDraws}

	if in.Restart != nil {
		return d.maybeScatter(in, in.Restart.X, initOpts)
	}

	switch cfg.InitFrom {
	case config.InitFromPrior:
		if in.RNG == nil {
			return nil, fmt.Errorf("prior initialization requires a random source")
		}
		return set.InitializeFromPrior(in.RNG, initOpts)

	case config.InitFromFiducial:
		x, err := set.FiducialValues()
		if err != nil {
			return nil, err
		}
		return d.maybeScatter(in, x, initOpts)

	case config.InitFromResult:
		if in.InitValues == nil {
			return nil, fmt.Errorf("result initialization requires a stored result or explicit values")
		}
		if len(in.InitValues) != set.NumFree() {
			return nil, fmt.Errorf("initial vector has length %d, want %d", len(in.InitValues), set.NumFree())
		}
		return d.maybeScatter(in, in.InitValues, initOpts)

	case config.InitFromGlobal:
		if in.Global == nil {
			return nil, fmt.Errorf("global initialization requires a global searcher")
		}
		lower, upper := set.Bounds()
		eval := func(x []float64) float64 {
			if cfg.Rescale {
				return in.Objective.Value(set.Scale(x))
			}
			return in.Objective.Value(x)
		}
		best, cost := in.Global.Search(eval, lower, upper, set.NumFree())
		slog.Info("Global warm start complete", "f", cost)
		return best, nil

	default:
		return nil, fmt.Errorf("unknown init strategy %q", cfg.InitFrom)
	}
}

func (d *Driver) maybeScatter(in RunInput, x []float64, opts params.InitOptions) ([]float64, error) {
	if in.Config.InitScatter <= 0 {
		return append([]float64{}, x...), nil
	}
	if in.RNG == nil {
		return nil, fmt.Errorf("scatter initialization requires a random source")
	}
	return in.Params.InitializeWithScatter(in.RNG, x, in.Config.InitScatter, opts)
}
