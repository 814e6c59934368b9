package params

import "fmt"

// UnknownParameterError is returned when a value is set for a name
// that is not in the registered parameter table.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter: %q is not a valid parameter name", e.Name)
}

// NoPriorError is returned when prior-draw initialization or a prior
// density is requested for a parameter without a prior.
type NoPriorError struct {
	Name string
}

func (e *NoPriorError) Error() string {
	return fmt.Sprintf("parameter %q has no prior distribution", e.Name)
}

// NoFiducialError is returned when fiducial values are requested and
// one or more free parameters never declared one.
type NoFiducialError struct {
	Names []string
}

func (e *NoFiducialError) Error() string {
	return fmt.Sprintf("fiducial values missing for parameters: %v", e.Names)
}

// ModelUpdateError distinguishes a structural model rejection from a
// plain bounds violation: the trial values were inside bounds, but the
// model object refused them.
type ModelUpdateError struct {
	Values map[string]float64
	Cause  error
}

func (e *ModelUpdateError) Error() string {
	return fmt.Sprintf("model rejected parameter update %v: %v", e.Values, e.Cause)
}

func (e *ModelUpdateError) Unwrap() error { return e.Cause }

// ConstraintError reports a problem in the constrained-parameter
// dependency graph.
type ConstraintError struct {
	Name   string
	Reason string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint error for parameter %q: %s", e.Name, e.Reason)
}
