package solver

import (
	"context"
	"math"
	"testing"
)

func quadratic(center []float64) (func([]float64) float64, func([]float64) []float64) {
	value := func(x []float64) float64 {
		sum := 0.0
		for i := range x {
			d := x[i] - center[i]
			sum += d * d
		}
		return sum
	}
	grad := func(x []float64) []float64 {
		g := make([]float64, len(x))
		for i := range x {
			g[i] = 2 * (x[i] - center[i])
		}
		return g
	}
	return value, grad
}

func rosenbrock() (func([]float64) float64, func([]float64) []float64) {
	value := func(x []float64) float64 {
		a := 1 - x[0]
		b := x[1] - x[0]*x[0]
		return a*a + 100*b*b
	}
	grad := func(x []float64) []float64 {
		b := x[1] - x[0]*x[0]
		return []float64{
			-2*(1-x[0]) - 400*x[0]*b,
			200 * b,
		}
	}
	return value, grad
}

func unbounded(n int) (lower, upper []float64) {
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := range lower {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	return lower, upper
}

func TestQuadraticConvergesToCenter(t *testing.T) {
	center := []float64{3.0, -1.5}
	value, grad := quadratic(center)
	lower, upper := unbounded(2)

	m := NewMinimizer(value, grad, []float64{10, 10}, lower, upper)
	data, err := m.Run(context.Background(), Options{MaxIter: 200})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !data.Status.Converged() {
		t.Fatalf("status = %v (%s), want converged", data.Status, data.Status.Reason())
	}
	for i := range center {
		if math.Abs(data.State.X[i]-center[i]) > 1e-4 {
			t.Errorf("x[%d] = %v, want %v", i, data.State.X[i], center[i])
		}
	}
}

func TestRosenbrockConverges(t *testing.T) {
	value, grad := rosenbrock()
	lower, upper := unbounded(2)

	m := NewMinimizer(value, grad, []float64{-1.2, 1.0}, lower, upper)
	data, err := m.Run(context.Background(), Options{MaxIter: 2000, GTol: 1e-6})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if data.State.F > 1e-5 {
		t.Errorf("final f = %v, want near 0 (status %s)", data.State.F, data.Status.Reason())
	}
}

func TestBoundActiveSolution(t *testing.T) {
	value, grad := quadratic([]float64{5.0})
	m := NewMinimizer(value, grad, []float64{0.5}, []float64{0}, []float64{1})

	data, err := m.Run(context.Background(), Options{MaxIter: 100})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if data.Status != StatusGradConverged {
		t.Errorf("status = %s, want projected-gradient convergence at the bound", data.Status.Reason())
	}
	if math.Abs(data.State.X[0]-1.0) > 1e-10 {
		t.Errorf("x = %v, want the active bound 1", data.State.X[0])
	}
}

func TestStartingPointProjectedOntoBox(t *testing.T) {
	value, grad := quadratic([]float64{0.5})
	m := NewMinimizer(value, grad, []float64{7}, []float64{0}, []float64{1})
	if m.Data.State.X[0] != 1.0 {
		t.Errorf("start = %v, want clipped to 1", m.Data.State.X[0])
	}
}

func TestMaxIterStops(t *testing.T) {
	value, grad := rosenbrock()
	lower, upper := unbounded(2)

	m := NewMinimizer(value, grad, []float64{-1.2, 1.0}, lower, upper)
	data, err := m.Run(context.Background(), Options{MaxIter: 3})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if data.Status != StatusMaxIter {
		t.Fatalf("status = %s, want max-iteration stop", data.Status.Reason())
	}
	if data.Iteration != 3 {
		t.Errorf("iterations = %d, want 3", data.Iteration)
	}
}

func TestRestartContinuesCounters(t *testing.T) {
	value, grad := rosenbrock()
	lower, upper := unbounded(2)

	m := NewMinimizer(value, grad, []float64{-1.2, 1.0}, lower, upper)
	first, err := m.Run(context.Background(), Options{MaxIter: 2})
	if err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	if first.Iteration != 2 {
		t.Fatalf("first run iterations = %d, want 2", first.Iteration)
	}
	firstCalls := first.Funcalls

	second, err := m.Run(context.Background(), Options{MaxIter: 2})
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if second.Iteration != 4 {
		t.Errorf("cumulative iterations = %d, want 4", second.Iteration)
	}
	if second.Funcalls <= firstCalls {
		t.Errorf("cumulative funcalls = %d, want more than %d", second.Funcalls, firstCalls)
	}
}

func TestNaNEvaluationFailsWithoutError(t *testing.T) {
	value := func(x []float64) float64 { return math.NaN() }
	grad := func(x []float64) []float64 { return []float64{0} }
	lower, upper := unbounded(1)

	m := NewMinimizer(value, grad, []float64{0}, lower, upper)
	data, err := m.Run(context.Background(), Options{MaxIter: 10})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if data.Status != StatusEvalFailed {
		t.Errorf("status = %s, want evaluation failure", data.Status.Reason())
	}
}

func TestInterruptReturnsSentinel(t *testing.T) {
	value, grad := rosenbrock()
	lower, upper := unbounded(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMinimizer(value, grad, []float64{-1.2, 1.0}, lower, upper)
	data, err := m.Run(ctx, Options{MaxIter: 100})
	if err != ErrInterrupted {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if data == nil {
		t.Fatal("interrupted run returned nil data")
	}
}

func TestProgressCallbackSeesEveryIteration(t *testing.T) {
	value, grad := quadratic([]float64{1, 1})
	lower, upper := unbounded(2)

	var iters []int
	opts := Options{
		MaxIter: 50,
		Progress: func(iteration int, f float64, x []float64) {
			iters = append(iters, iteration)
		},
	}
	m := NewMinimizer(value, grad, []float64{4, -4}, lower, upper)
	data, err := m.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(iters) != data.Iteration {
		t.Fatalf("progress saw %d iterations, data records %d", len(iters), data.Iteration)
	}
	for i, it := range iters {
		if it != i+1 {
			t.Errorf("progress iteration %d = %d, want %d", i, it, i+1)
		}
	}
}

func TestProbeModeStopsOnStaleProgress(t *testing.T) {
	// A linear slope on a huge offset decreases by one unit per
	// iteration: the relative improvement (~1e-7) sits between the
	// f-tolerance and the stale threshold, so only the tracker stops a
	// probe-mode run.
	value := func(x []float64) float64 { return 1e7 - x[0] }
	grad := func(x []float64) []float64 { return []float64{-1} }
	lower, upper := unbounded(1)

	m := NewMinimizer(value, grad, []float64{0}, lower, upper)
	data, err := m.Run(context.Background(), Options{
		TestConvergence: true,
		Patience:        3,
		Threshold:       1e-6,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if data.Status != StatusFConverged {
		t.Errorf("status = %s, want convergence from the stale tracker", data.Status.Reason())
	}
	if data.Iteration > 10 {
		t.Errorf("probe run took %d iterations, want a handful", data.Iteration)
	}
}

func TestProgressTracker(t *testing.T) {
	tr := newProgressTracker(2, 1e-3)

	if tr.Update(100) {
		t.Error("first update must not signal staleness")
	}
	if tr.Update(50) {
		t.Error("large improvement must reset staleness")
	}
	if tr.Update(49.999) {
		t.Error("one stale update is below patience")
	}
	if !tr.Update(49.9989) {
		t.Error("second consecutive stale update should stop")
	}
}
