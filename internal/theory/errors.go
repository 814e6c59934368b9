package theory

import (
	"errors"
	"fmt"
)

// errOutOfBounds marks a gradient request at a trial point the bounds
// check rejected.
var errOutOfBounds = errors.New("trial vector is outside parameter bounds")

// PipelineConfigError reports a misconfiguration of the transfer
// pipeline: a missing decorator for a multi-bin statistic, a bin value
// no transfer produced, or a non-numeric final theory value. It is
// fatal to the fit but carries the statistic name so the configuration
// can be diagnosed.
type PipelineConfigError struct {
	Stat   string
	Reason string
}

func (e *PipelineConfigError) Error() string {
	return fmt.Sprintf("pipeline configuration error for statistic %q: %s", e.Stat, e.Reason)
}

// EvalError wraps a failure raised while evaluating the model or the
// objective at a trial point.
type EvalError struct {
	Op    string
	Cause error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation failed during %s: %v", e.Op, e.Cause)
}

func (e *EvalError) Unwrap() error { return e.Cause }
