package fit

import (
	"errors"
	"math"
	"testing"

	"github.com/epifit-xyz/go-epifit/model"
	"github.com/epifit-xyz/go-epifit/solver"
)

// synthetic integrates a SIR model with known parameters and samples the
// infected compartment at the given times, noise-free.
func synthetic(t *testing.T, params []float64, initial, times []float64) []float64 {
	t.Helper()
	m := model.New(model.SIR)
	if err := m.Configure(params, initial); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	sol, err := m.Simulate(params, [2]float64{times[0], times[len(times)-1]})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	return Compartment(1).Series(sol, times)
}

func TestNewDatasetValidation(t *testing.T) {
	if _, err := NewDataset(nil, nil); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData for empty series, got %v", err)
	}
	if _, err := NewDataset([]float64{0, 1}, []float64{1}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData for length mismatch, got %v", err)
	}
	if _, err := NewDataset([]float64{0, 2, 1}, []float64{1, 2, 3}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData for non-increasing times, got %v", err)
	}
	// Irregular spacing with gaps is fine.
	if _, err := NewDataset([]float64{0, 1, 5, 9}, []float64{1, 2, 3, 4}); err != nil {
		t.Errorf("Irregular times should be accepted: %v", err)
	}
}

func TestFitRecoversKnownParameters(t *testing.T) {
	truth := []float64{0.5, 0.12}
	initial := []float64{990, 10, 0}
	times := solver.UniformTimes(0, 30, 16)
	values := synthetic(t, truth, initial, times)

	data, err := NewDataset(times, values)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}

	m := model.New(model.SIR)
	// Start away from the truth.
	if err := m.Configure([]float64{0.3, 0.2}, initial); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	res, err := Fit(m, data, Compartment(1), []bool{true, true}, nil)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !res.Converged {
		t.Fatal("Expected convergence")
	}
	for i, want := range truth {
		if math.Abs(res.Params[i]-want)/want > 0.02 {
			t.Errorf("Param %d: expected %g, got %g", i, want, res.Params[i])
		}
	}
	// Noise-free data: residual norm near zero relative to the signal.
	if res.FinalLoss > 1.0 {
		t.Errorf("Expected near-zero residual, got %g", res.FinalLoss)
	}
	// The fitted vector becomes the model's current parameters.
	got := m.Params()
	for i := range res.Params {
		if got[i] != res.Params[i] {
			t.Errorf("Model params not updated at %d: %g vs %g", i, got[i], res.Params[i])
		}
	}
}

func TestFitFixedParametersUntouched(t *testing.T) {
	truth := []float64{0.5, 0.12}
	initial := []float64{990, 10, 0}
	times := solver.UniformTimes(0, 30, 16)
	values := synthetic(t, truth, initial, times)

	data, err := NewDataset(times, values)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}

	m := model.New(model.SIR)
	// beta held fixed at its true value; only alpha is free.
	fixedBeta := 0.12
	if err := m.Configure([]float64{0.3, fixedBeta}, initial); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	res, err := Fit(m, data, Compartment(1), []bool{true, false}, nil)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if res.Params[1] != fixedBeta {
		t.Errorf("Fixed parameter changed: %g vs %g", res.Params[1], fixedBeta)
	}
	if math.Abs(res.Params[0]-truth[0])/truth[0] > 0.02 {
		t.Errorf("Free parameter not recovered: expected %g, got %g", truth[0], res.Params[0])
	}
}

func TestFitInsufficientData(t *testing.T) {
	m := model.New(model.SIR)
	if err := m.Configure([]float64{0.5, 0.1}, []float64{990, 10, 0}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	data, err := NewDataset([]float64{0}, []float64{10})
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	_, err = Fit(m, data, Compartment(1), []bool{true, true}, nil)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}
}

func TestFitRejectsEmptyMask(t *testing.T) {
	m := model.New(model.SIR)
	if err := m.Configure([]float64{0.5, 0.1}, []float64{990, 10, 0}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	data, _ := NewDataset([]float64{0, 1, 2}, []float64{10, 12, 14})

	if _, err := Fit(m, data, Compartment(1), []bool{false, false}, nil); err == nil {
		t.Error("Expected error for all-fixed mask")
	}
	if _, err := Fit(m, data, Compartment(1), []bool{true}, nil); !errors.Is(err, model.ErrInvalidParameterShape) {
		t.Errorf("Expected ErrInvalidParameterShape for short mask, got %v", err)
	}
}

func TestFitFailureLeavesModelUntouched(t *testing.T) {
	m := model.New(model.SIR)
	start := []float64{0.5, 0.1}
	if err := m.Configure(start, []float64{990, 10, 0}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	times := solver.UniformTimes(0, 10, 6)
	values := synthetic(t, []float64{0.9, 0.05}, []float64{990, 10, 0}, times)
	data, _ := NewDataset(times, values)

	opts := DefaultOptions()
	opts.MaxIters = 1 // guaranteed budget exhaustion
	_, err := Fit(m, data, Compartment(1), []bool{true, true}, opts)
	if !errors.Is(err, ErrFitDidNotConverge) {
		t.Fatalf("Expected ErrFitDidNotConverge, got %v", err)
	}
	got := m.Params()
	for i := range start {
		if got[i] != start[i] {
			t.Errorf("Params mutated on failed fit at %d: %g vs %g", i, got[i], start[i])
		}
	}
}

func TestObservableCombination(t *testing.T) {
	sol := &solver.Solution{
		T: []float64{0, 1},
		U: [][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}},
	}
	obs := Combination([]int{1, 3}, nil)
	got := obs.Series(sol, []float64{0, 1})
	if got[0] != 6 || got[1] != 14 {
		t.Errorf("Expected [6 14], got %v", got)
	}

	weighted := Combination([]int{0, 1}, []float64{2, 0.5})
	got = weighted.Series(sol, []float64{0})
	if got[0] != 3 {
		t.Errorf("Expected 3, got %v", got)
	}
}
