package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunConfig is the configuration snapshot stored alongside a fit
// result, used to validate compatibility when a run is resumed.
type RunConfig struct {
	Model     string  `json:"model"`
	DataPath  string  `json:"dataPath"`
	InitFrom  string  `json:"initFrom"`
	UsePriors bool    `json:"usePriors"`
	Rescale   bool    `json:"rescale"`
	Epsilon   float64 `json:"epsilon"`
	MaxIter   int     `json:"maxIter"`
}

// FitResult is the terminal record of one optimization run. Feeding a
// stored result back into the driver as initial values resumes the
// search: the final parameter vector becomes the starting point and
// the iteration/funcalls counters carry over as the restart
// continuation record.
type FitResult struct {
	// RunID is the unique identifier for this fit run.
	RunID string `json:"runId"`

	// Names are the free-parameter names, ordering X.
	Names []string `json:"names"`

	// X is the final parameter vector in physical units (solver-space
	// solutions are inverse-scaled before being stored).
	X []float64 `json:"x"`

	// Fun is the objective value at X.
	Fun float64 `json:"fun"`

	// Iterations and Funcalls are cumulative across restarts.
	Iterations int `json:"iterations"`
	Funcalls   int `json:"funcalls"`

	// Status is the solver status code; Message is the human-readable
	// convergence or failure reason derived from it.
	Status  int    `json:"status"`
	Message string `json:"message"`

	// Converged is true iff the run ended without an exception and the
	// status code is positive.
	Converged bool `json:"converged"`

	// Elapsed is the wall time of the run.
	Elapsed time.Duration `json:"elapsed"`

	// Timestamp records when the result was created.
	Timestamp time.Time `json:"timestamp"`

	// Config holds the run configuration snapshot for resume
	// compatibility checks.
	Config RunConfig `json:"config"`
}

// NewRunID returns a fresh unique run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Value returns the final value of the named parameter.
func (r *FitResult) Value(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.X[i], true
		}
	}
	return 0, false
}

// ResultInfo is result metadata without the parameter payload, used
// for listing runs.
type ResultInfo struct {
	RunID      string    `json:"runId"`
	Fun        float64   `json:"fun"`
	Iterations int       `json:"iterations"`
	Converged  bool      `json:"converged"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Model      string    `json:"model"`
	DataPath   string    `json:"dataPath"`
}

// ToInfo converts a full FitResult to its metadata view.
func (r *FitResult) ToInfo() ResultInfo {
	return ResultInfo{
		RunID:      r.RunID,
		Fun:        r.Fun,
		Iterations: r.Iterations,
		Converged:  r.Converged,
		Message:    r.Message,
		Timestamp:  r.Timestamp,
		Model:      r.Config.Model,
		DataPath:   r.Config.DataPath,
	}
}

// Validate checks that the result record is internally consistent.
func (r *FitResult) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.Names) == 0 {
		return &ValidationError{Field: "Names", Reason: "cannot be empty"}
	}
	if len(r.X) != len(r.Names) {
		return &ValidationError{Field: "X", Reason: fmt.Sprintf("length mismatch: %d values for %d names", len(r.X), len(r.Names))}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Funcalls < 0 {
		return &ValidationError{Field: "Funcalls", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// IsCompatible checks whether this result can seed a resumed run with
// the given configuration.
func (r *FitResult) IsCompatible(cfg RunConfig) error {
	if r.Config.Model != cfg.Model {
		return &CompatibilityError{Field: "Model", Expected: r.Config.Model, Actual: cfg.Model}
	}
	if r.Config.DataPath != cfg.DataPath {
		return &CompatibilityError{Field: "DataPath", Expected: r.Config.DataPath, Actual: cfg.DataPath}
	}
	return nil
}

// ValidationError represents a fit-result validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// CompatibilityError represents a resume compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
