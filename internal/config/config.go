// Package config defines the TOML fit-configuration schema and its
// defaults. A config file controls initialization strategy, gradient
// mode, rescaling, and the bounded-search termination options.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Init strategies recognized by the driver.
const (
	InitFromPrior    = "prior"
	InitFromFiducial = "fiducial"
	InitFromResult   = "result"
	InitFromGlobal   = "global"
)

// Options are the termination options passed through to the bounded
// search.
type Options struct {
	// MaxIter caps the iteration count; adjusted downward by any
	// carried-over iteration count on restart.
	MaxIter int `toml:"max_iter"`
	// TestConvergence probes for convergence without applying the
	// max-iteration cap.
	TestConvergence bool `toml:"test_convergence"`
	// FTol is the relative objective-decrease tolerance.
	FTol float64 `toml:"f_tol"`
	// GTol is the projected-gradient infinity-norm tolerance.
	GTol float64 `toml:"g_tol"`
	// Memory is the number of curvature pairs kept by the search.
	Memory int `toml:"memory"`
	// Patience and Threshold drive the stale-progress probe used in
	// test-convergence mode.
	Patience  int     `toml:"patience"`
	Threshold float64 `toml:"threshold"`
}

// Global configures the derivative-free warm start used by
// init_from = "global".
type Global struct {
	Iters   int   `toml:"iters"`
	PopSize int   `toml:"pop_size"`
	Seed    int64 `toml:"seed"`
}

// Config is the full fit configuration.
type Config struct {
	// InitFrom selects the initialization strategy: prior, fiducial,
	// result, or global.
	InitFrom string `toml:"init_from"`
	// InitScatter enables scatter-perturbation around the initial
	// vector when nonzero and InitFrom is fiducial or result.
	InitScatter float64 `toml:"init_scatter"`
	// MaxInitDraws optionally caps the rejection-sampling loops.
	// 0 keeps the uncapped reference behavior.
	MaxInitDraws int `toml:"max_init_draws"`

	// Epsilon is the default finite-difference step; Epsilons overrides
	// it per parameter name.
	Epsilon  float64            `toml:"epsilon"`
	Epsilons map[string]float64 `toml:"epsilons"`

	// Numerical differentiates the raw model prediction numerically;
	// NumericalFromLnlike differentiates the scalar likelihood directly
	// and overrides Numerical when set.
	Numerical           bool `toml:"numerical"`
	NumericalFromLnlike bool `toml:"numerical_from_lnlike"`

	// UsePriors includes the prior term in objective and gradient.
	UsePriors bool `toml:"use_priors"`
	// Rescale enables parameter-space rescaling.
	Rescale bool `toml:"rescale"`

	// Workers bounds the finite-difference worker pool (0 = NumCPU).
	Workers int `toml:"workers"`

	// Seed seeds the initialization RNG.
	Seed uint64 `toml:"seed"`

	Options Options `toml:"options"`
	Global  Global  `toml:"global"`
}

// Default returns the configuration defaults matching the reference
// behavior.
func Default() *Config {
	return &Config{
		InitFrom:  InitFromFiducial,
		Epsilon:   1e-4,
		UsePriors: true,
		Rescale:   true,
		Seed:      42,
		Options: Options{
			MaxIter:   500,
			FTol:      1e-8,
			GTol:      1e-5,
			Memory:    10,
			Patience:  5,
			Threshold: 1e-6,
		},
		Global: Global{
			Iters:   50,
			PopSize: 30,
			Seed:    42,
		},
	}
}

// Load decodes a TOML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum fields and value ranges.
func (c *Config) Validate() error {
	switch c.InitFrom {
	case InitFromPrior, InitFromFiducial, InitFromResult, InitFromGlobal:
	default:
		return fmt.Errorf("invalid init_from %q (want prior, fiducial, result, or global)", c.InitFrom)
	}
	if c.InitScatter < 0 {
		return fmt.Errorf("init_scatter must be >= 0, got %g", c.InitScatter)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be > 0, got %g", c.Epsilon)
	}
	for name, e := range c.Epsilons {
		if e <= 0 {
			return fmt.Errorf("epsilons.%s must be > 0, got %g", name, e)
		}
	}
	if c.Options.MaxIter <= 0 {
		return fmt.Errorf("options.max_iter must be > 0, got %d", c.Options.MaxIter)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// EpsilonFor resolves the per-parameter finite-difference steps in
// free-parameter order: the per-name table when present, the scalar
// default otherwise.
func (c *Config) EpsilonFor(names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		if e, ok := c.Epsilons[name]; ok {
			out[i] = e
		} else {
			out[i] = c.Epsilon
		}
	}
	return out
}
