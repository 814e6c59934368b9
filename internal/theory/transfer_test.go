package theory

import (
	"math"
	"testing"
)

func TestLegendrePolynomials(t *testing.T) {
	tests := []struct {
		ell  int
		x    float64
		want float64
	}{
		{0, 0.3, 1.0},
		{1, 0.3, 0.3},
		{2, 0.5, -0.125},
		{2, 1.0, 1.0},
		{4, 1.0, 1.0},
		{4, 0.0, 0.375},
	}
	for _, tt := range tests {
		got := legendre(tt.ell, tt.x)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("legendre(%d, %g) = %v, want %v", tt.ell, tt.x, got, tt.want)
		}
	}
}

func TestMultipoleTransferConstantPower(t *testing.T) {
	k := []float64{0.1, 0.2, 0.3}
	tr := NewMultipoleTransfer(k, []int{0, 2}, 101, PlainTransfer)

	power := make([]float64, len(tr.FlatK()))
	for i := range power {
		power[i] = 7.0
	}

	res, err := tr.Apply(power)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	// Constant power projects entirely onto the monopole; the
	// quadrupole integrates to zero up to quadrature error.
	for i := range k {
		if math.Abs(res.Values[i][0]-7.0) > 1e-10 {
			t.Errorf("monopole at k=%g is %v, want 7", k[i], res.Values[i][0])
		}
		if math.Abs(res.Values[i][1]) > 1e-2 {
			t.Errorf("quadrupole at k=%g is %v, want ~0", k[i], res.Values[i][1])
		}
	}
}

func TestMultipoleTransferMuSquared(t *testing.T) {
	k := []float64{0.1}
	tr := NewMultipoleTransfer(k, []int{0, 2}, 2001, PlainTransfer)

	// P(k, mu) = mu^2 has monopole 1/3 and quadrupole 2/3.
	flatMu := tr.FlatMu()
	power := make([]float64, len(flatMu))
	for i, mu := range flatMu {
		power[i] = mu * mu
	}

	res, err := tr.Apply(power)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if math.Abs(res.Values[0][0]-1.0/3.0) > 1e-5 {
		t.Errorf("monopole of mu^2 = %v, want 1/3", res.Values[0][0])
	}
	if math.Abs(res.Values[0][1]-2.0/3.0) > 1e-5 {
		t.Errorf("quadrupole of mu^2 = %v, want 2/3", res.Values[0][1])
	}
}

func TestWedgeTransferReshapes(t *testing.T) {
	k := []float64{1, 2}
	mus := []float64{0.1, 0.5}
	tr := NewWedgeTransfer(k, mus, PlainTransfer)

	flatK, flatMu := tr.FlatK(), tr.FlatMu()
	power := make([]float64, len(flatK))
	for i := range power {
		power[i] = 10*flatK[i] + flatMu[i]
	}

	res, err := tr.Apply(power)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	_, values, _, err := res.SelectBin(0.5)
	if err != nil {
		t.Fatalf("SelectBin returned error: %v", err)
	}
	want := []float64{10.5, 20.5}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("mu=0.5 column[%d] = %v, want %v", i, values[i], want[i])
		}
	}
}

func TestSelectBinUnknown(t *testing.T) {
	tr := NewWedgeTransfer([]float64{1}, []float64{0.1}, PlainTransfer)
	res, _ := tr.Apply([]float64{1.0})
	if _, _, _, err := res.SelectBin(0.9); err == nil {
		t.Error("expected error for bin value not present in output")
	}
}

func TestGriddedTransferMask(t *testing.T) {
	k := []float64{0.1, 0.2, 0.3}
	tr := NewMultipoleTransfer(k, []int{0}, 51, GriddedTransfer)
	tr.MarkUndefined(0, 0)

	power := make([]float64, len(tr.FlatK()))
	for i := range power {
		power[i] = 1.0
	}
	res, err := tr.Apply(power)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	_, _, defined, err := res.SelectBin(0)
	if err != nil {
		t.Fatalf("SelectBin returned error: %v", err)
	}
	if defined == nil {
		t.Fatal("gridded transfer returned no defined mask")
	}
	if defined[0] || !defined[1] || !defined[2] {
		t.Errorf("defined mask = %v, want [false true true]", defined)
	}
}

func TestGridAssemblesSlices(t *testing.T) {
	a := NewWedgeTransfer([]float64{1, 2}, []float64{0.1}, PlainTransfer)
	b := NewWedgeTransfer([]float64{3}, []float64{0.2, 0.4}, PlainTransfer)
	g := NewGrid([]Transfer{a, b})

	if len(g.K) != 4 {
		t.Fatalf("union grid has %d points, want 4", len(g.K))
	}
	if g.Slices[0].Start != 0 || g.Slices[0].Stop != 2 {
		t.Errorf("slice 0 = %+v, want [0, 2)", g.Slices[0])
	}
	if g.Slices[1].Start != 2 || g.Slices[1].Stop != 4 {
		t.Errorf("slice 1 = %+v, want [2, 4)", g.Slices[1])
	}
}
