package theory

import (
	"encoding/json"
	"fmt"
	"os"
)

// Mode declares the secondary basis dimension of the data: multipole
// order for "poles", angular bin center for "pkmu".
type Mode string

const (
	ModePoles Mode = "poles"
	ModePkmu  Mode = "pkmu"
)

// Measurement is one observed statistic: its coordinate sampling, the
// measured values, and the per-point variance entering the likelihood.
type Measurement struct {
	Name     string    `json:"name"`
	Coords   []float64 `json:"coords"`
	Values   []float64 `json:"values"`
	Variance []float64 `json:"variance"`
}

// DataSet is the observed side of the fit: ordered measurements whose
// concatenation defines the comparison vector the theory must match.
type DataSet struct {
	Mode         Mode          `json:"mode"`
	Measurements []Measurement `json:"measurements"`
}

// LoadDataSet reads a data set from a JSON file.
func LoadDataSet(path string) (*DataSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	var d DataSet
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode data file: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks internal consistency of the data set.
func (d *DataSet) Validate() error {
	if d.Mode != ModePoles && d.Mode != ModePkmu {
		return fmt.Errorf("invalid data mode %q (want %q or %q)", d.Mode, ModePoles, ModePkmu)
	}
	if len(d.Measurements) == 0 {
		return fmt.Errorf("data set has no measurements")
	}
	for _, m := range d.Measurements {
		if m.Name == "" {
			return fmt.Errorf("measurement with empty name")
		}
		if len(m.Values) != len(m.Coords) {
			return fmt.Errorf("measurement %q: %d values for %d coords", m.Name, len(m.Values), len(m.Coords))
		}
		if len(m.Variance) != len(m.Values) {
			return fmt.Errorf("measurement %q: %d variances for %d values", m.Name, len(m.Variance), len(m.Values))
		}
		for i, v := range m.Variance {
			if v <= 0 {
				return fmt.Errorf("measurement %q: non-positive variance at index %d", m.Name, i)
			}
		}
	}
	return nil
}

// Measurement returns the named measurement.
func (d *DataSet) Measurement(name string) (*Measurement, bool) {
	for i := range d.Measurements {
		if d.Measurements[i].Name == name {
			return &d.Measurements[i], true
		}
	}
	return nil, false
}

// Statistics returns the measurement names in manifest order.
func (d *DataSet) Statistics() []string {
	names := make([]string, len(d.Measurements))
	for i, m := range d.Measurements {
		names[i] = m.Name
	}
	return names
}

// Vector returns the concatenated measured values in manifest order.
func (d *DataSet) Vector() []float64 {
	var out []float64
	for _, m := range d.Measurements {
		out = append(out, m.Values...)
	}
	return out
}

// Variances returns the concatenated variances in manifest order.
func (d *DataSet) Variances() []float64 {
	var out []float64
	for _, m := range d.Measurements {
		out = append(out, m.Variance...)
	}
	return out
}

// Size returns the length of the comparison vector.
func (d *DataSet) Size() int {
	n := 0
	for _, m := range d.Measurements {
		n += len(m.Values)
	}
	return n
}
