package store

// Store defines the interface for fit-result persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if a result doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveResult atomically saves a fit result. An existing result for
	// the same run ID is overwritten. Implementations should use atomic
	// write strategies (temp file + rename) to prevent corruption.
	SaveResult(runID string, result *FitResult) error

	// LoadResult retrieves the result for the given run.
	// Returns ErrNotFound if no result exists for this runID.
	LoadResult(runID string) (*FitResult, error)

	// ListResults returns metadata for all stored results. The returned
	// slice may be empty.
	ListResults() ([]ResultInfo, error)

	// DeleteResult removes the result and all associated artifacts
	// (result.json and trace.jsonl).
	// Returns ErrNotFound if no result exists for this runID.
	DeleteResult(runID string) error
}

// ErrNotFound is returned when a requested result does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing fit result.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "fit result not found: " + e.RunID
	}
	return "fit result not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
