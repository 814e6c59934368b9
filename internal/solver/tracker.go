package solver

import "math"

// progressTracker watches the objective history in probe mode and
// declares convergence once the relative improvement stays below the
// threshold for patience consecutive iterations.
type progressTracker struct {
	patience  int
	threshold float64

	best       float64
	hasBest    bool
	staleCount int
}

func newProgressTracker(patience int, threshold float64) *progressTracker {
	return &progressTracker{
		patience:  patience,
		threshold: threshold,
	}
}

// Update records the latest objective value and reports whether
// progress has been stale for long enough to stop.
func (t *progressTracker) Update(f float64) bool {
	if !t.hasBest {
		t.best = f
		t.hasBest = true
		return false
	}

	improvement := (t.best - f) / math.Max(math.Abs(t.best), 1e-300)
	if improvement > t.threshold {
		t.best = f
		t.staleCount = 0
		return false
	}

	if f < t.best {
		t.best = f
	}
	t.staleCount++
	return t.staleCount >= t.patience
}

// Reset clears the tracker for a fresh probe.
func (t *progressTracker) Reset() {
	t.hasBest = false
	t.staleCount = 0
}
