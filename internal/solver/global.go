package solver

import (
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// GlobalSearcher finds a coarse global starting point for the local
// bounded search.
type GlobalSearcher interface {
	// Search minimizes eval over the box and returns the best point and
	// its cost.
	Search(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// MayflyAdapter wraps the external Mayfly library as a GlobalSearcher
// used for warm-starting the local search.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a Mayfly global searcher.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Search runs the Mayfly population search over the box.
func (m *MayflyAdapter) Search(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	config := mayfly.NewDefaultConfig()

	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// The external library uses scalar bounds; use the tightest box
	// that contains every dimension's finite bounds.
	config.LowerBound = scalarBound(lower, -10)
	config.UpperBound = scalarBound(upper, 10)

	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the box midpoint if the population search fails.
		mid := make([]float64, dim)
		for i := range mid {
			mid[i] = (config.LowerBound + config.UpperBound) / 2
		}
		return mid, eval(mid)
	}

	return result.GlobalBest.Position, result.GlobalBest.Cost
}

func scalarBound(bounds []float64, fallback float64) float64 {
	v := fallback
	seen := false
	for _, b := range bounds {
		if math.IsInf(b, 0) {
			continue
		}
		if !seen {
			v = b
			seen = true
			continue
		}
		if fallback > 0 && b > v {
			v = b
		}
		if fallback < 0 && b < v {
			v = b
		}
	}
	return v
}
