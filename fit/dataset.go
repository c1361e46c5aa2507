// Package fit implements nonlinear least-squares calibration of compartment
// model parameters against observed case-count time series. A boolean fit
// mask selects which parameters are estimated; the rest are held at their
// current values.
package fit

import (
	"errors"
	"fmt"

	"github.com/epifit-xyz/go-epifit/solver"
)

// ErrInsufficientData is returned when fewer observations than free
// parameters are supplied.
var ErrInsufficientData = errors.New("insufficient data")

// Dataset holds an observation series: paired (time, value) samples. Times
// need not be uniformly spaced and may have gaps, but must be strictly
// increasing.
type Dataset struct {
	Times  []float64
	Values []float64
}

// NewDataset validates and wraps an observation series.
func NewDataset(times, values []float64) (*Dataset, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("empty observation series: %w", ErrInsufficientData)
	}
	if len(times) != len(values) {
		return nil, fmt.Errorf("times has length %d but values has length %d: %w",
			len(times), len(values), ErrInsufficientData)
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, fmt.Errorf("times not strictly increasing at index %d (%g <= %g): %w",
				i, times[i], times[i-1], ErrInsufficientData)
		}
	}
	return &Dataset{
		Times:  append([]float64(nil), times...),
		Values: append([]float64(nil), values...),
	}, nil
}

// Len returns the number of observations.
func (d *Dataset) Len() int { return len(d.Times) }

// Prefix returns a dataset over the first k observations, sharing the
// underlying arrays. Used by rolling-origin cross-validation.
func (d *Dataset) Prefix(k int) *Dataset {
	return &Dataset{Times: d.Times[:k], Values: d.Values[:k]}
}

// Observable identifies the simulated quantity compared against the
// observation series: a single compartment or a fixed linear combination of
// compartments (e.g. I+X for total active plus confirmed cases).
type Observable struct {
	Indices []int
	Weights []float64
}

// Compartment observes a single compartment by index.
func Compartment(i int) Observable {
	return Observable{Indices: []int{i}, Weights: []float64{1}}
}

// Combination observes a weighted sum of compartments. A nil weights slice
// means unit weights.
func Combination(indices []int, weights []float64) Observable {
	if weights == nil {
		weights = make([]float64, len(indices))
		for i := range weights {
			weights[i] = 1
		}
	}
	return Observable{Indices: indices, Weights: weights}
}

// Series evaluates the observable on a solution at the given times,
// interpolating each component from the solver's adaptive step grid.
func (o Observable) Series(sol *solver.Solution, times []float64) []float64 {
	out := make([]float64, len(times))
	for j, idx := range o.Indices {
		comp := sol.At(times, idx)
		w := o.Weights[j]
		for i := range out {
			out[i] += w * comp[i]
		}
	}
	return out
}

// validFor checks the observable's indices against a compartment count.
func (o Observable) validFor(compartments int) error {
	if len(o.Indices) == 0 {
		return fmt.Errorf("observable selects no compartments: %w", ErrInsufficientData)
	}
	if len(o.Weights) != len(o.Indices) {
		return fmt.Errorf("observable has %d indices but %d weights: %w",
			len(o.Indices), len(o.Weights), ErrInsufficientData)
	}
	for _, idx := range o.Indices {
		if idx < 0 || idx >= compartments {
			return fmt.Errorf("observable index %d out of range [0,%d): %w",
				idx, compartments, ErrInsufficientData)
		}
	}
	return nil
}
