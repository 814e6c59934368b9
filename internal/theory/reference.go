package theory

import (
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/powerfit/internal/params"
)

// ReferenceModel is a small anisotropic power-spectrum model used by
// the CLI and the test suite so the fitting core has a live model to
// drive. It is a Kaiser-like form with linear bias, growth rate, and
// Gaussian velocity damping:
//
//	P(k, mu) = (b1 + f*mu^2)^2 * A * k / (1 + (k/k0)^2)^2 * exp(-(k*mu*sigma_v)^2)
//
// It makes no physics claim beyond having the right shape of contract:
// update-by-name, grid evaluation, analytic gradients, cloning.
type ReferenceModel struct {
	B1     float64
	F      float64
	SigmaV float64
	A      float64
	K0     float64
}

// NewReferenceModel returns a reference model with neutral defaults.
func NewReferenceModel() *ReferenceModel {
	return &ReferenceModel{B1: 2.0, F: 0.5, SigmaV: 3.0, A: 1e4, K0: 0.1}
}

// Update applies update-by-name values, rejecting unknown names and
// structurally invalid values (the ModelUpdateFailure path).
func (m *ReferenceModel) Update(values map[string]float64) error {
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("parameter %q has non-finite value %v", name, v)
		}
		switch name {
		case "b1":
			m.B1 = v
		case "f":
			m.F = v
		case "sigma_v":
			if v < 0 {
				return fmt.Errorf("sigma_v must be non-negative, got %g", v)
			}
			m.SigmaV = v
		case "A":
			if v <= 0 {
				return fmt.Errorf("amplitude A must be positive, got %g", v)
			}
			m.A = v
		case "k0":
			if v <= 0 {
				return fmt.Errorf("turnover scale k0 must be positive, got %g", v)
			}
			m.K0 = v
		default:
			return fmt.Errorf("unknown model parameter %q", name)
		}
	}
	return nil
}

func (m *ReferenceModel) shape(k float64) float64 {
	r := k / m.K0
	d := 1 + r*r
	return m.A * k / (d * d)
}

// Power evaluates the model over flattened coordinate pairs.
func (m *ReferenceModel) Power(k, mu []float64) ([]float64, error) {
	if len(k) != len(mu) {
		return nil, fmt.Errorf("coordinate arrays have lengths %d and %d", len(k), len(mu))
	}
	out := make([]float64, len(k))
	for i := range k {
		kaiser := m.B1 + m.F*mu[i]*mu[i]
		damp := math.Exp(-sq(k[i] * mu[i] * m.SigmaV))
		out[i] = kaiser * kaiser * m.shape(k[i]) * damp
	}
	return out, nil
}

// PowerGradient returns analytic dP/dtheta for the named parameters.
func (m *ReferenceModel) PowerGradient(k, mu []float64, names []string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for ni, name := range names {
		g := make([]float64, len(k))
		for i := range k {
			kaiser := m.B1 + m.F*mu[i]*mu[i]
			shape := m.shape(k[i])
			damp := math.Exp(-sq(k[i] * mu[i] * m.SigmaV))
			p := kaiser * kaiser * shape * damp
			switch name {
			case "b1":
				g[i] = 2 * kaiser * shape * damp
			case "f":
				g[i] = 2 * kaiser * mu[i] * mu[i] * shape * damp
			case "sigma_v":
				g[i] = p * (-2 * sq(k[i]*mu[i]) * m.SigmaV)
			case "A":
				g[i] = p / m.A
			case "k0":
				// d/dk0 of k/(1+(k/k0)^2)^2 via the chain rule.
				r := k[i] / m.K0
				g[i] = p * 4 * r * r / ((1 + r*r) * m.K0)
			default:
				return nil, fmt.Errorf("unknown model parameter %q", name)
			}
		}
		out[ni] = g
	}
	return out, nil
}

// Clone returns an independent copy for finite-difference workers.
func (m *ReferenceModel) Clone() Model {
	c := *m
	return &c
}

func sq(x float64) float64 { return x * x }

// ReferenceParameterSet builds the static parameter table for the
// reference model: free b1, f, sigma_v with priors and bounds, fixed
// A and k0, and a constrained velocity-amplitude diagnostic.
func ReferenceParameterSet() *params.Set {
	set := params.NewSet()

	b1 := params.NewParameter("b1", 2.0)
	b1.Min, b1.Max = 0.5, 6.0
	b1.Prior = params.NewNormalPrior(2.0, 0.5)
	b1.Fiducial, b1.HasFiducial = 2.0, true
	b1.Vary = true
	b1.ModelParam = true
	b1.Description = "linear bias"
	set.MustAdd(b1)

	f := params.NewParameter("f", 0.5)
	f.Min, f.Max = 0.0, 2.0
	f.Prior = params.NewUniformPrior(0.0, 2.0)
	f.Fiducial, f.HasFiducial = 0.5, true
	f.Vary = true
	f.ModelParam = true
	f.Description = "growth rate"
	set.MustAdd(f)

	sv := params.NewParameter("sigma_v", 3.0)
	sv.Min, sv.Max = 0.0, 20.0
	sv.Prior = params.NewNormalPrior(3.0, 1.0)
	sv.Fiducial, sv.HasFiducial = 3.0, true
	sv.Vary = true
	sv.ModelParam = true
	sv.Description = "velocity damping scale"
	set.MustAdd(sv)

	amp := params.NewParameter("A", 1e4)
	amp.Fiducial, amp.HasFiducial = 1e4, true
	amp.ModelParam = true
	amp.Description = "power amplitude"
	set.MustAdd(amp)

	k0 := params.NewParameter("k0", 0.1)
	k0.Fiducial, k0.HasFiducial = 0.1, true
	k0.ModelParam = true
	k0.Description = "turnover scale"
	set.MustAdd(k0)

	fsv := params.NewParameter("f_sigma_v", 1.5)
	fsv.Constrained = true
	fsv.Deps = []string{"f", "sigma_v"}
	fsv.Compute = func(deps map[string]float64) float64 {
		return deps["f"] * deps["sigma_v"]
	}
	fsv.Description = "growth-weighted damping"
	set.MustAdd(fsv)

	set.UpdateConstraints()
	return set
}

var modelRegistry = struct {
	sync.RWMutex
	ctors map[string]func() (Model, *params.Set)
}{ctors: make(map[string]func() (Model, *params.Set))}

// RegisterModel adds a named model constructor for CLI lookup.
func RegisterModel(name string, ctor func() (Model, *params.Set)) {
	modelRegistry.Lock()
	defer modelRegistry.Unlock()
	modelRegistry.ctors[name] = ctor
}

// NewModelByName constructs a registered model and its parameter set.
func NewModelByName(name string) (Model, *params.Set, error) {
	modelRegistry.RLock()
	ctor, ok := modelRegistry.ctors[name]
	modelRegistry.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown model %q", name)
	}
	m, set := ctor()
	return m, set, nil
}

func init() {
	RegisterModel("reference", func() (Model, *params.Set) {
		return NewReferenceModel(), ReferenceParameterSet()
	})
}
