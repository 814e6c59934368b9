package theory

import (
	"fmt"
	"math"
)

// TransferKind selects the policy used to reduce a transfer's binned
// output to the data's native coordinate sampling.
type TransferKind int

const (
	// PlainTransfer output is already aligned with the data coordinates.
	PlainTransfer TransferKind = iota
	// WindowTransfer output lives on the transfer's own coordinate grid
	// and is spline-resampled onto the data coordinates.
	WindowTransfer
	// GriddedTransfer output may contain undefined positions (outside
	// the valid grid footprint) which are dropped.
	GriddedTransfer
)

func (k TransferKind) String() string {
	switch k {
	case PlainTransfer:
		return "plain"
	case WindowTransfer:
		return "window"
	case GriddedTransfer:
		return "gridded"
	default:
		return fmt.Sprintf("TransferKind(%d)", int(k))
	}
}

// Transfer maps raw model predictions on its own flattened coordinate
// pairs to a binned result. Transfer objects are constructed once per
// data configuration and are immutable during the fit.
type Transfer interface {
	// FlatK and FlatMu are the flattened coordinate-pair arrays the
	// transfer needs evaluated. Both have the same length.
	FlatK() []float64
	FlatMu() []float64

	// Apply reduces a same-shaped prediction slice to a binned result.
	Apply(power []float64) (*Result, error)

	Kind() TransferKind
}

// Result is a transfer's output: values indexed by native coordinate
// (rows) and bin identifier (columns, e.g. multipole order or angular
// bin center). Defined, when non-nil, flags valid positions for
// gridded transfers.
type Result struct {
	Coord   []float64
	Bins    []float64
	Values  [][]float64
	Defined [][]bool
}

// SelectBin returns the column of values registered under the given
// bin identifier, along with the coordinate array and the defined
// mask for that column (nil when every position is defined).
func (r *Result) SelectBin(bin float64) (coord, values []float64, defined []bool, err error) {
	col := -1
	for j, b := range r.Bins {
		if math.Abs(b-bin) <= 1e-9 {
			col = j
			break
		}
	}
	if col < 0 {
		return nil, nil, nil, fmt.Errorf("bin value %g not present in transfer output (have %v)", bin, r.Bins)
	}
	values = make([]float64, len(r.Coord))
	for i := range r.Coord {
		values[i] = r.Values[i][col]
	}
	if r.Defined != nil {
		defined = make([]bool, len(r.Coord))
		for i := range r.Coord {
			defined[i] = r.Defined[i][col]
		}
	}
	return r.Coord, values, defined, nil
}

// concatBins concatenates results from multiple transfers along the
// bin dimension. All results must share the same coordinate length.
func concatBins(results []*Result) (*Result, error) {
	if len(results) == 1 {
		return results[0], nil
	}
	first := results[0]
	out := &Result{
		Coord: first.Coord,
		Bins:  append([]float64{}, first.Bins...),
	}
	out.Values = make([][]float64, len(first.Coord))
	for i := range out.Values {
		out.Values[i] = append([]float64{}, first.Values[i]...)
	}
	anyMask := false
	for _, r := range results {
		if r.Defined != nil {
			anyMask = true
		}
	}
	if anyMask {
		out.Defined = make([][]bool, len(first.Coord))
		for i := range out.Defined {
			out.Defined[i] = definedRow(first, i)
		}
	}
	for _, r := range results[1:] {
		if len(r.Coord) != len(first.Coord) {
			return nil, fmt.Errorf("cannot concatenate transfer results: coordinate lengths %d and %d differ", len(first.Coord), len(r.Coord))
		}
		out.Bins = append(out.Bins, r.Bins...)
		for i := range out.Values {
			out.Values[i] = append(out.Values[i], r.Values[i]...)
			if anyMask {
				out.Defined[i] = append(out.Defined[i], definedRow(r, i)...)
			}
		}
	}
	return out, nil
}

func definedRow(r *Result, i int) []bool {
	if r.Defined != nil {
		return append([]bool{}, r.Defined[i]...)
	}
	row := make([]bool, len(r.Bins))
	for j := range row {
		row[j] = true
	}
	return row
}

// Grid is the union of all transfers' coordinate pairs, assembled once
// so the model is evaluated exactly once per objective call. Slices
// record the contiguous index range each transfer occupies.
type Grid struct {
	K, Mu  []float64
	Slices []GridSlice
}

// GridSlice is a half-open index range [Start, Stop) into the grid.
type GridSlice struct {
	Start, Stop int
}

// NewGrid concatenates the flattened coordinate pairs of every
// transfer and records the per-transfer slices.
func NewGrid(transfers []Transfer) *Grid {
	g := &Grid{}
	start := 0
	for _, t := range transfers {
		k := t.FlatK()
		g.K = append(g.K, k...)
		g.Mu = append(g.Mu, t.FlatMu()...)
		g.Slices = append(g.Slices, GridSlice{Start: start, Stop: start + len(k)})
		start += len(k)
	}
	return g
}

// MultipoleTransfer projects P(k, mu) onto Legendre multipoles over a
// mu quadrature grid: P_ell(k) = (2ell+1)/2 * Integral P(k,mu) L_ell(mu) dmu,
// evaluated with trapezoid weights over mu in [-1, 1].
type MultipoleTransfer struct {
	k    []float64
	mu   []float64
	ells []int
	kind TransferKind

	// undefined, when non-nil, flags (k index, ell index) positions to
	// mark invalid in gridded mode.
	undefined map[[2]int]bool

	flatK, flatMu []float64
}

// NewMultipoleTransfer builds a multipole transfer on the given k grid
// using nMu trapezoid nodes over mu in [-1, 1].
func NewMultipoleTransfer(k []float64, ells []int, nMu int, kind TransferKind) *MultipoleTransfer {
	if nMu < 2 {
		nMu = 2
	}
	mu := make([]float64, nMu)
	for i := range mu {
		mu[i] = -1 + 2*float64(i)/float64(nMu-1)
	}

	t := &MultipoleTransfer{k: k, mu: mu, ells: ells, kind: kind}
	for _, kv := range k {
		for _, mv := range mu {
			t.flatK = append(t.flatK, kv)
			t.flatMu = append(t.flatMu, mv)
		}
	}
	return t
}

// MarkUndefined flags the (k index, ell index) position as outside the
// valid footprint; only meaningful for gridded transfers.
func (t *MultipoleTransfer) MarkUndefined(ki, elli int) {
	if t.undefined == nil {
		t.undefined = make(map[[2]int]bool)
	}
	t.undefined[[2]int{ki, elli}] = true
}

func (t *MultipoleTransfer) FlatK() []float64  { return t.flatK }
func (t *MultipoleTransfer) FlatMu() []float64 { return t.flatMu }

func (t *MultipoleTransfer) Kind() TransferKind { return t.kind }

// Apply projects the flattened predictions onto multipoles.
func (t *MultipoleTransfer) Apply(power []float64) (*Result, error) {
	if len(power) != len(t.flatK) {
		return nil, fmt.Errorf("prediction slice has length %d, want %d", len(power), len(t.flatK))
	}

	nk, nmu := len(t.k), len(t.mu)
	res := &Result{
		Coord: append([]float64{}, t.k...),
		Bins:  make([]float64, len(t.ells)),
	}
	for j, ell := range t.ells {
		res.Bins[j] = float64(ell)
	}
	res.Values = make([][]float64, nk)

	dmu := t.mu[1] - t.mu[0]
	for i := 0; i < nk; i++ {
		res.Values[i] = make([]float64, len(t.ells))
		row := power[i*nmu : (i+1)*nmu]
		for j, ell := range t.ells {
			sum := 0.0
			for m, mv := range t.mu {
				w := dmu
				if m == 0 || m == nmu-1 {
					w = dmu / 2
				}
				sum += row[m] * legendre(ell, mv) * w
			}
			res.Values[i][j] = (2*float64(ell) + 1) / 2 * sum
		}
	}

	if t.kind == GriddedTransfer && t.undefined != nil {
		res.Defined = make([][]bool, nk)
		for i := 0; i < nk; i++ {
			res.Defined[i] = make([]bool, len(t.ells))
			for j := range t.ells {
				res.Defined[i][j] = !t.undefined[[2]int{i, j}]
			}
		}
	}
	return res, nil
}

// WedgeTransfer evaluates P(k, mu) directly at a k grid crossed with
// fixed mu bin centers, one bin per mu value. It is the pkmu-mode
// counterpart of MultipoleTransfer.
type WedgeTransfer struct {
	k    []float64
	mus  []float64
	kind TransferKind

	flatK, flatMu []float64
}

// NewWedgeTransfer builds a wedge transfer on the given k grid and mu
// bin centers.
func NewWedgeTransfer(k, mus []float64, kind TransferKind) *WedgeTransfer {
	t := &WedgeTransfer{k: k, mus: mus, kind: kind}
	for _, kv := range k {
		for _, mv := range mus {
			t.flatK = append(t.flatK, kv)
			t.flatMu = append(t.flatMu, mv)
		}
	}
	return t
}

func (t *WedgeTransfer) FlatK() []float64  { return t.flatK }
func (t *WedgeTransfer) FlatMu() []float64 { return t.flatMu }

func (t *WedgeTransfer) Kind() TransferKind { return t.kind }

// Apply reshapes the flattened predictions into per-mu-bin columns.
func (t *WedgeTransfer) Apply(power []float64) (*Result, error) {
	if len(power) != len(t.flatK) {
		return nil, fmt.Errorf("prediction slice has length %d, want %d", len(power), len(t.flatK))
	}
	nmu := len(t.mus)
	res := &Result{
		Coord: append([]float64{}, t.k...),
		Bins:  append([]float64{}, t.mus...),
	}
	res.Values = make([][]float64, len(t.k))
	for i := range t.k {
		res.Values[i] = append([]float64{}, power[i*nmu:(i+1)*nmu]...)
	}
	return res, nil
}

// legendre evaluates the Legendre polynomial of the given order via
// the Bonnet recurrence.
func legendre(ell int, x float64) float64 {
	switch ell {
	case 0:
		return 1
	case 1:
		return x
	}
	pm2, pm1 := 1.0, x
	for n := 2; n <= ell; n++ {
		p := ((2*float64(n)-1)*x*pm1 - (float64(n)-1)*pm2) / float64(n)
		pm2, pm1 = pm1, p
	}
	return pm1
}
