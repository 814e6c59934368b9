package theory

import (
	"fmt"
	"sync"
)

// Decorator post-processes the per-bin arrays of one statistic after
// binning, e.g. combining two bin selections into a derived quantity.
// Decorators used with the analytic gradient path must be linear in
// their inputs.
type Decorator func(arrays ...[]float64) ([]float64, error)

var (
	decoratorMu  sync.RWMutex
	decoratorReg = map[string]Decorator{}
)

// RegisterDecorator adds a named decorator to the fixed registry.
// Registering a duplicate name panics; the registry is meant to be
// populated at init time.
func RegisterDecorator(name string, dec Decorator) {
	decoratorMu.Lock()
	defer decoratorMu.Unlock()
	if _, ok := decoratorReg[name]; ok {
		panic(fmt.Sprintf("decorator %q already registered", name))
	}
	decoratorReg[name] = dec
}

// LookupDecorator returns the named decorator.
func LookupDecorator(name string) (Decorator, bool) {
	decoratorMu.RLock()
	defer decoratorMu.RUnlock()
	dec, ok := decoratorReg[name]
	return dec, ok
}

func init() {
	RegisterDecorator("sum", func(arrays ...[]float64) ([]float64, error) {
		return combine(arrays, func(acc, v float64) float64 { return acc + v })
	})
	RegisterDecorator("difference", func(arrays ...[]float64) ([]float64, error) {
		if len(arrays) != 2 {
			return nil, fmt.Errorf("difference decorator needs exactly 2 arrays, got %d", len(arrays))
		}
		out := make([]float64, len(arrays[0]))
		if len(arrays[1]) != len(arrays[0]) {
			return nil, fmt.Errorf("difference decorator: array lengths %d and %d differ", len(arrays[0]), len(arrays[1]))
		}
		for i := range out {
			out[i] = arrays[0][i] - arrays[1][i]
		}
		return out, nil
	})
	RegisterDecorator("mean", func(arrays ...[]float64) ([]float64, error) {
		out, err := combine(arrays, func(acc, v float64) float64 { return acc + v })
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] /= float64(len(arrays))
		}
		return out, nil
	})
}

func combine(arrays [][]float64, op func(acc, v float64) float64) ([]float64, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("decorator called with no arrays")
	}
	out := append([]float64{}, arrays[0]...)
	for _, a := range arrays[1:] {
		if len(a) != len(out) {
			return nil, fmt.Errorf("decorator array lengths %d and %d differ", len(out), len(a))
		}
		for i, v := range a {
			out[i] = op(out[i], v)
		}
	}
	return out, nil
}
