package theory

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// StatBinding associates one named statistic with the bin values used
// to select it from the concatenated transfer output, plus an optional
// decorator combining multiple bin selections into the final array.
type StatBinding struct {
	Name      string
	Bins      []float64
	Decorator string
}

// Pipeline maps a single model evaluation over the union grid into the
// flattened comparison vector, preserving the data's statistic
// manifest order. Configuration (grid, slices, bindings) is computed
// once at construction; Flatten is called per objective evaluation.
type Pipeline struct {
	Data      *DataSet
	Transfers []Transfer
	Stats     []StatBinding

	grid *Grid
}

// NewPipeline validates the statistic bindings against the data
// manifest and assembles the evaluation grid.
func NewPipeline(data *DataSet, transfers []Transfer, stats []StatBinding) (*Pipeline, error) {
	if len(transfers) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one transfer")
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one statistic binding")
	}
	for _, s := range stats {
		if _, ok := data.Measurement(s.Name); !ok {
			return nil, &PipelineConfigError{Stat: s.Name, Reason: "statistic is not present in the data set"}
		}
		if len(s.Bins) == 0 {
			return nil, &PipelineConfigError{Stat: s.Name, Reason: "no bin values bound"}
		}
		if s.Decorator != "" {
			if _, ok := LookupDecorator(s.Decorator); !ok {
				return nil, &PipelineConfigError{Stat: s.Name, Reason: fmt.Sprintf("decorator %q is not registered", s.Decorator)}
			}
		}
	}
	return &Pipeline{
		Data:      data,
		Transfers: transfers,
		Stats:     stats,
		grid:      NewGrid(transfers),
	}, nil
}

// Grid returns the assembled union grid. The model is evaluated over
// it exactly once per objective or gradient call.
func (p *Pipeline) Grid() *Grid { return p.grid }

// Flatten reduces raw predictions over the union grid to the
// comparison vector: apply each transfer to its slice, concatenate
// along the bin dimension, select and reduce per statistic, decorate,
// and concatenate in manifest order.
func (p *Pipeline) Flatten(power []float64) ([]float64, error) {
	if len(power) != len(p.grid.K) {
		return nil, fmt.Errorf("prediction has length %d, want %d", len(power), len(p.grid.K))
	}

	results := make([]*Result, len(p.Transfers))
	for i, t := range p.Transfers {
		sl := p.grid.Slices[i]
		r, err := t.Apply(power[sl.Start:sl.Stop])
		if err != nil {
			return nil, &EvalError{Op: "transfer application", Cause: err}
		}
		results[i] = r
	}

	combined, err := concatBins(results)
	if err != nil {
		return nil, &EvalError{Op: "transfer concatenation", Cause: err}
	}

	kind := p.Transfers[0].Kind()
	var out []float64
	for _, stat := range p.Stats {
		m, _ := p.Data.Measurement(stat.Name)

		arrays := make([][]float64, 0, len(stat.Bins))
		for _, bin := range stat.Bins {
			coord, values, defined, err := combined.SelectBin(bin)
			if err != nil {
				return nil, &PipelineConfigError{Stat: stat.Name, Reason: err.Error()}
			}
			reduced, err := reduce(kind, coord, values, defined, m.Coords)
			if err != nil {
				return nil, &EvalError{Op: fmt.Sprintf("reducing statistic %q", stat.Name), Cause: err}
			}
			arrays = append(arrays, reduced)
		}

		final, err := p.decorate(stat, arrays)
		if err != nil {
			return nil, err
		}
		if len(final) == 0 {
			return nil, &PipelineConfigError{Stat: stat.Name, Reason: "final theory value is empty, not a numeric array"}
		}
		out = append(out, final...)
	}
	return out, nil
}

func (p *Pipeline) decorate(stat StatBinding, arrays [][]float64) ([]float64, error) {
	if stat.Decorator != "" {
		dec, _ := LookupDecorator(stat.Decorator)
		final, err := dec(arrays...)
		if err != nil {
			return nil, &PipelineConfigError{Stat: stat.Name, Reason: fmt.Sprintf("decorator %q failed: %v", stat.Decorator, err)}
		}
		return final, nil
	}
	if len(arrays) != 1 {
		return nil, &PipelineConfigError{Stat: stat.Name, Reason: fmt.Sprintf("%d bin values bound but no decorator to combine them", len(arrays))}
	}
	return arrays[0], nil
}

// reduce maps one bin's values onto the data's coordinate sampling
// using the policy selected by the transfer kind.
func reduce(kind TransferKind, coord, values []float64, defined []bool, dataCoords []float64) ([]float64, error) {
	switch kind {
	case WindowTransfer:
		var spline interp.NaturalCubic
		if err := spline.Fit(coord, values); err != nil {
			return nil, fmt.Errorf("window interpolant fit failed: %w", err)
		}
		out := make([]float64, len(dataCoords))
		for i, x := range dataCoords {
			out[i] = spline.Predict(x)
		}
		return out, nil

	case GriddedTransfer:
		if defined == nil {
			return append([]float64{}, values...), nil
		}
		var out []float64
		for i, v := range values {
			if defined[i] {
				out = append(out, v)
			}
		}
		return out, nil

	default:
		return append([]float64{}, values...), nil
	}
}
