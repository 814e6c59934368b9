package params

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

type recordingModel struct {
	updates []map[string]float64
	fail    bool
}

func (m *recordingModel) Update(values map[string]float64) error {
	if m.fail {
		return errors.New("structurally invalid values")
	}
	m.updates = append(m.updates, values)
	return nil
}

func newTestSet() *Set {
	set := NewSet()

	a := NewParameter("a", 0.5)
	a.Min, a.Max = 0.0, 1.0
	a.Prior = NewUniformPrior(0.0, 1.0)
	a.Fiducial, a.HasFiducial = 0.5, true
	a.Vary = true
	a.ModelParam = true
	set.MustAdd(a)

	b := NewParameter("b", 0.0)
	b.Min, b.Max = -5.0, 5.0
	b.Prior = NewNormalPrior(0.0, 1.0)
	b.Fiducial, b.HasFiducial = 0.0, true
	b.Vary = true
	b.ModelParam = true
	set.MustAdd(b)

	c := NewParameter("c", 10.0)
	c.ModelParam = true
	set.MustAdd(c)

	d := NewParameter("d", 0.0)
	d.Constrained = true
	d.Deps = []string{"a", "b"}
	d.Compute = func(deps map[string]float64) float64 {
		return deps["a"] + deps["b"]
	}
	set.MustAdd(d)

	set.UpdateConstraints()
	return set
}

func TestFreeOrderFollowsRegistration(t *testing.T) {
	set := newTestSet()

	names := set.FreeNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("FreeNames() = %v, want [a b]", names)
	}
	if set.NumFree() != 2 {
		t.Errorf("NumFree() = %d, want 2", set.NumFree())
	}
}

func TestSetFreeUpdatesConstraints(t *testing.T) {
	set := newTestSet()

	ok, err := set.SetFree([]float64{0.3, 1.5})
	if err != nil {
		t.Fatalf("SetFree returned error: %v", err)
	}
	if !ok {
		t.Fatal("SetFree rejected an in-bounds vector")
	}

	d, _ := set.Get("d")
	if math.Abs(d.Value-1.8) > 1e-12 {
		t.Errorf("constrained d = %v, want 1.8", d.Value)
	}
}

func TestSetFreeOutOfBoundsLeavesValuesUntouched(t *testing.T) {
	set := newTestSet()
	before := set.FreeValues()

	ok, err := set.SetFree([]float64{1.5, 0.0})
	if err != nil {
		t.Fatalf("bounds rejection must not return an error, got %v", err)
	}
	if ok {
		t.Fatal("SetFree accepted an out-of-bounds vector")
	}

	after := set.FreeValues()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("value %d changed from %v to %v on rejected update", i, before[i], after[i])
		}
	}
}

func TestSetFreeLengthMismatch(t *testing.T) {
	set := newTestSet()
	if _, err := set.SetFree([]float64{0.5}); err == nil {
		t.Error("expected error for wrong-length vector")
	}
}

func TestSetFreePushesModelValues(t *testing.T) {
	set := newTestSet()
	model := &recordingModel{}
	set.SetModel(model)

	if ok, err := set.SetFree([]float64{0.2, -1.0}); !ok || err != nil {
		t.Fatalf("SetFree = (%v, %v)", ok, err)
	}
	if len(model.updates) != 1 {
		t.Fatalf("model received %d updates, want 1", len(model.updates))
	}
	got := model.updates[0]
	if got["a"] != 0.2 || got["b"] != -1.0 || got["c"] != 10.0 {
		t.Errorf("model values = %v", got)
	}
	if _, ok := got["d"]; ok {
		t.Error("non-model parameter d pushed into model")
	}
}

func TestSetFreeModelRejectionRestoresState(t *testing.T) {
	set := newTestSet()
	set.SetModel(&recordingModel{fail: true})
	before := set.FreeValues()

	ok, err := set.SetFree([]float64{0.9, 2.0})
	if ok {
		t.Fatal("SetFree reported success despite model rejection")
	}
	var upd *ModelUpdateError
	if !errors.As(err, &upd) {
		t.Fatalf("error = %v, want ModelUpdateError", err)
	}

	after := set.FreeValues()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("value %d changed from %v to %v after model rejection", i, before[i], after[i])
		}
	}
	d, _ := set.Get("d")
	if math.Abs(d.Value-0.5) > 1e-12 {
		t.Errorf("constrained d = %v after rollback, want 0.5", d.Value)
	}
}

func TestConstraintDemotionWhenDepsFixed(t *testing.T) {
	set := NewSet()

	a := NewParameter("a", 1.0)
	set.MustAdd(a)

	d := NewParameter("d", 0.0)
	d.Constrained = true
	d.Deps = []string{"a"}
	d.Compute = func(deps map[string]float64) float64 { return 2 * deps["a"] }
	set.MustAdd(d)

	set.UpdateConstraints()

	p, _ := set.Get("d")
	if p.Constrained || p.Vary {
		t.Errorf("d should be demoted to fixed, got constrained=%v vary=%v", p.Constrained, p.Vary)
	}
	if p.Value != 2.0 {
		t.Errorf("d = %v, want 2 (computed before demotion)", p.Value)
	}
}

func TestAddRejectsConstrainedWithoutDeps(t *testing.T) {
	set := NewSet()
	p := NewParameter("x", 0)
	p.Constrained = true
	if err := set.Add(p); err == nil {
		t.Error("expected error for constrained parameter without dependencies")
	}
}

func TestFiducialValuesMissing(t *testing.T) {
	set := NewSet()
	p := NewParameter("x", 1.0)
	p.Vary = true
	set.MustAdd(p)

	_, err := set.FiducialValues()
	var nf *NoFiducialError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NoFiducialError", err)
	}
	if len(nf.Names) != 1 || nf.Names[0] != "x" {
		t.Errorf("missing names = %v, want [x]", nf.Names)
	}
}

func TestScaleInverseRoundTrip(t *testing.T) {
	set := newTestSet()
	x := []float64{0.37, -2.1}

	back := set.InverseScale(set.Scale(x))
	for i := range x {
		if math.Abs(back[i]-x[i]) > 1e-12 {
			t.Errorf("round trip [%d] = %v, want %v", i, back[i], x[i])
		}
	}
}

func TestScaleUsesPriorLocation(t *testing.T) {
	set := newTestSet()

	// b has a standard normal prior: loc 0, scale 1, so scaling is the
	// identity for that coordinate.
	scaled := set.Scale([]float64{0.5, 1.25})
	if math.Abs(scaled[1]-1.25) > 1e-12 {
		t.Errorf("scaled b = %v, want 1.25", scaled[1])
	}
	// a has a uniform prior on [0, 1]: loc 0.5, so the prior mean maps
	// to zero.
	if math.Abs(scaled[0]) > 1e-12 {
		t.Errorf("scaled a at prior mean = %v, want 0", scaled[0])
	}
}

func TestScaleGradientChainRule(t *testing.T) {
	set := newTestSet()
	_, scales := set.LocsScales()

	grad := []float64{2.0, -3.0}
	scaled := set.ScaleGradient(grad)
	for i := range grad {
		want := grad[i] * scales[i]
		if math.Abs(scaled[i]-want) > 1e-12 {
			t.Errorf("scaled gradient [%d] = %v, want %v", i, scaled[i], want)
		}
	}
}

func TestPreserveRestores(t *testing.T) {
	set := newTestSet()
	before := set.FreeValues()

	restore, err := set.Preserve([]float64{0.9, 3.0})
	if err != nil {
		t.Fatalf("Preserve returned error: %v", err)
	}
	during := set.FreeValues()
	if during[0] != 0.9 || during[1] != 3.0 {
		t.Errorf("values during preserve = %v", during)
	}
	d, _ := set.Get("d")
	if math.Abs(d.Value-3.9) > 1e-12 {
		t.Errorf("constrained d during preserve = %v, want 3.9", d.Value)
	}

	restore()
	after := set.FreeValues()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("value %d not restored: %v != %v", i, after[i], before[i])
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	set := newTestSet()
	clone := set.Clone()

	if ok, err := clone.SetFree([]float64{0.1, 4.0}); !ok || err != nil {
		t.Fatalf("clone SetFree = (%v, %v)", ok, err)
	}

	orig := set.FreeValues()
	if orig[0] != 0.5 || orig[1] != 0.0 {
		t.Errorf("original mutated through clone: %v", orig)
	}
}

func TestInitializeFromPriorWithinBounds(t *testing.T) {
	set := newTestSet()
	rng := rand.New(rand.NewPCG(1, 2))

	x, err := set.InitializeFromPrior(rng, InitOptions{})
	if err != nil {
		t.Fatalf("InitializeFromPrior returned error: %v", err)
	}
	if !set.WithinBounds(x) {
		t.Errorf("prior draw %v violates bounds", x)
	}
	values := set.FreeValues()
	for i := range x {
		if values[i] != x[i] {
			t.Errorf("live value %d = %v, want draw %v", i, values[i], x[i])
		}
	}
}

func TestInitializeWithScatterRespectsBounds(t *testing.T) {
	set := newTestSet()
	rng := rand.New(rand.NewPCG(3, 4))

	for trial := 0; trial < 50; trial++ {
		x, err := set.InitializeWithScatter(rng, []float64{0.5, 0.0}, 0.25, InitOptions{})
		if err != nil {
			t.Fatalf("InitializeWithScatter returned error: %v", err)
		}
		if !set.WithinBounds(x) {
			t.Fatalf("scatter draw %v violates bounds", x)
		}
	}
}

func TestInitializeMaxDrawsCap(t *testing.T) {
	set := NewSet()
	p := NewParameter("x", 0.5)
	p.Min, p.Max = 0.0, 1.0
	// The prior mass lies entirely outside the bounds, so every draw is
	// rejected and only the cap stops the loop.
	p.Prior = NewUniformPrior(5.0, 6.0)
	p.Vary = true
	set.MustAdd(p)

	rng := rand.New(rand.NewPCG(5, 6))
	if _, err := set.InitializeFromPrior(rng, InitOptions{MaxDraws: 10}); err == nil {
		t.Error("expected error when the draw cap is exhausted")
	}
}

func TestUnknownParameterError(t *testing.T) {
	set := newTestSet()
	err := set.SetValue("nope", 1.0)
	var unknown *UnknownParameterError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want UnknownParameterError", err)
	}
}

func TestCheckReportsViolations(t *testing.T) {
	set := newTestSet()
	set.SetValue("a", 2.0)

	ok, msgs := set.Check()
	if ok {
		t.Fatal("Check passed with out-of-bounds value")
	}
	if len(msgs) == 0 {
		t.Fatal("Check returned no diagnostics")
	}
}
