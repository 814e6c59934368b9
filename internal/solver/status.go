package solver

import (
	"errors"
	"fmt"
)

// Status is the terminal status code of the bounded search. Positive
// codes mean convergence; zero means the iteration cap stopped the
// search; negative codes are failures.
type Status int

const (
	// StatusMaxIter means the iteration cap stopped the search before
	// any convergence test fired.
	StatusMaxIter Status = 0
	// StatusFConverged means the relative decrease of the objective
	// fell below the tolerance.
	StatusFConverged Status = 1
	// StatusGradConverged means the projected gradient norm fell below
	// the tolerance.
	StatusGradConverged Status = 2
	// StatusLineSearchFailed means no step along the search direction
	// achieved sufficient decrease.
	StatusLineSearchFailed Status = -1
	// StatusEvalFailed means the objective or gradient produced a
	// non-finite value that was not a bounds rejection.
	StatusEvalFailed Status = -2
)

// Converged reports whether the status code indicates success.
func (s Status) Converged() bool { return s > 0 }

// Reason returns the human-readable convergence or failure reason.
func (s Status) Reason() string {
	switch s {
	case StatusMaxIter:
		return "maximum number of iterations reached"
	case StatusFConverged:
		return "relative decrease of objective below tolerance"
	case StatusGradConverged:
		return "projected gradient norm below tolerance"
	case StatusLineSearchFailed:
		return "line search failed to find sufficient decrease"
	case StatusEvalFailed:
		return "objective evaluation produced a non-finite value"
	default:
		return fmt.Sprintf("unknown status code %d", int(s))
	}
}

// ErrInterrupted is the external interrupt signal observed
// synchronously inside the search loop. A run that ends with this
// error still carries the best state reached so far.
var ErrInterrupted = errors.New("optimization interrupted")

// SolverError wraps a fault captured during the bounded search,
// including recovered panics. It is recorded, never propagated as a
// panic past the driver boundary.
type SolverError struct {
	Reason string
	Cause  error
}

func (e *SolverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("solver failure: %s: %v", e.Reason, e.Cause)
	}
	return "solver failure: " + e.Reason
}

func (e *SolverError) Unwrap() error { return e.Cause }
