package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/powerfit/internal/config"
	"github.com/cwbudde/powerfit/internal/params"
	"github.com/cwbudde/powerfit/internal/store"
	"github.com/cwbudde/powerfit/internal/theory"
)

// muQuadratureNodes is the trapezoid resolution used for the multipole
// projection in poles mode.
const muQuadratureNodes = 41

// fitSession bundles the objects shared by the run and resume commands.
type fitSession struct {
	cfg       *config.Config
	data      *theory.DataSet
	set       *params.Set
	theory    *theory.Theory
	pipeline  *theory.Pipeline
	objective *theory.Objective
}

// newFitSession loads configuration and data and assembles the model,
// pipeline, and objective.
func newFitSession(configPath, dataPath, modelName string) (*fitSession, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := theory.LoadDataSet(dataPath)
	if err != nil {
		return nil, err
	}

	model, set, err := theory.NewModelByName(modelName)
	if err != nil {
		return nil, err
	}
	th := theory.NewTheory(set, model)

	pipe, err := buildPipeline(data)
	if err != nil {
		return nil, err
	}

	obj := theory.NewObjective(th, pipe, theory.ObjectiveConfig{
		UsePriors:           cfg.UsePriors,
		Rescale:             cfg.Rescale,
		Numerical:           cfg.Numerical,
		NumericalFromLnlike: cfg.NumericalFromLnlike,
		Epsilon:             cfg.EpsilonFor(set.FreeNames()),
		Workers:             cfg.Workers,
	})

	return &fitSession{
		cfg:       cfg,
		data:      data,
		set:       set,
		theory:    th,
		pipeline:  pipe,
		objective: obj,
	}, nil
}

// runConfig builds the configuration snapshot stored with a result.
func (s *fitSession) runConfig(modelName, dataPath string) store.RunConfig {
	return store.RunConfig{
		Model:     modelName,
		DataPath:  dataPath,
		InitFrom:  s.cfg.InitFrom,
		UsePriors: s.cfg.UsePriors,
		Rescale:   s.cfg.Rescale,
		Epsilon:   s.cfg.Epsilon,
		MaxIter:   s.cfg.Options.MaxIter,
	}
}

// buildPipeline assembles transfers and statistic bindings from the
// data set's mode and measurement names. All measurements must share
// the same coordinate grid so one model evaluation covers them.
func buildPipeline(data *theory.DataSet) (*theory.Pipeline, error) {
	if len(data.Measurements) == 0 {
		return nil, fmt.Errorf("data set has no measurements")
	}
	k := data.Measurements[0].Coords
	for _, m := range data.Measurements[1:] {
		if len(m.Coords) != len(k) {
			return nil, fmt.Errorf("measurement %q has %d coordinates, want %d", m.Name, len(m.Coords), len(k))
		}
		for i := range k {
			if m.Coords[i] != k[i] {
				return nil, fmt.Errorf("measurement %q coordinate grid differs from %q", m.Name, data.Measurements[0].Name)
			}
		}
	}

	var transfer theory.Transfer
	stats := make([]theory.StatBinding, 0, len(data.Measurements))

	switch data.Mode {
	case theory.ModePoles:
		var ells []int
		for _, m := range data.Measurements {
			ell, err := poleOrder(m.Name)
			if err != nil {
				return nil, err
			}
			ells = append(ells, ell)
			stats = append(stats, theory.StatBinding{Name: m.Name, Bins: []float64{float64(ell)}})
		}
		transfer = theory.NewMultipoleTransfer(k, ells, muQuadratureNodes, theory.PlainTransfer)

	case theory.ModePkmu:
		var mus []float64
		for _, m := range data.Measurements {
			mu, err := muCenter(m.Name)
			if err != nil {
				return nil, err
			}
			mus = append(mus, mu)
			stats = append(stats, theory.StatBinding{Name: m.Name, Bins: []float64{mu}})
		}
		transfer = theory.NewWedgeTransfer(k, mus, theory.PlainTransfer)

	default:
		return nil, fmt.Errorf("unknown data mode %q", data.Mode)
	}

	return theory.NewPipeline(data, []theory.Transfer{transfer}, stats)
}

// poleOrder maps a poles-mode statistic name to its multipole order.
func poleOrder(name string) (int, error) {
	switch name {
	case "mono", "monopole":
		return 0, nil
	case "quad", "quadrupole":
		return 2, nil
	case "hexadec", "hexadecapole":
		return 4, nil
	}
	if rest, ok := strings.CutPrefix(name, "pole_"); ok {
		ell, err := strconv.Atoi(rest)
		if err == nil && ell >= 0 {
			return ell, nil
		}
	}
	return 0, fmt.Errorf("cannot infer multipole order from statistic name %q", name)
}

// muCenter maps a pkmu-mode statistic name ("pkmu_<mu>") to its mu bin
// center.
func muCenter(name string) (float64, error) {
	if rest, ok := strings.CutPrefix(name, "pkmu_"); ok {
		mu, err := strconv.ParseFloat(rest, 64)
		if err == nil {
			return mu, nil
		}
	}
	return 0, fmt.Errorf("cannot infer mu bin from statistic name %q", name)
}
