package model

import (
	"errors"
	"math"
	"testing"
)

func TestConfigureShapeValidation(t *testing.T) {
	m := New(SIR)

	if err := m.Configure([]float64{0.5}, []float64{990, 10, 0}); !errors.Is(err, ErrInvalidParameterShape) {
		t.Errorf("Expected ErrInvalidParameterShape for short params, got %v", err)
	}
	if err := m.Configure([]float64{0.5, -0.1}, []float64{990, 10, 0}); !errors.Is(err, ErrInvalidParameterShape) {
		t.Errorf("Expected ErrInvalidParameterShape for negative rate, got %v", err)
	}
	if err := m.Configure([]float64{0.5, 0.1}, []float64{990, 10}); !errors.Is(err, ErrInvalidStateShape) {
		t.Errorf("Expected ErrInvalidStateShape for short state, got %v", err)
	}
	if err := m.Configure([]float64{0.5, 0.1}, []float64{990, -10, 0}); !errors.Is(err, ErrInvalidStateShape) {
		t.Errorf("Expected ErrInvalidStateShape for negative compartment, got %v", err)
	}
	if err := m.Configure([]float64{0.5, 0.1}, []float64{990, 10, 0}); err != nil {
		t.Errorf("Valid configure failed: %v", err)
	}
	if m.Population() != 1000 {
		t.Errorf("Expected population 1000, got %f", m.Population())
	}
}

func TestIntegrateBeforeConfigure(t *testing.T) {
	m := New(SIRX)
	if _, err := m.Integrate(0, 10, 11); !errors.Is(err, ErrParametersNotSet) {
		t.Errorf("Expected ErrParametersNotSet, got %v", err)
	}
	if _, err := m.DerivedProperties(); !errors.Is(err, ErrParametersNotSet) {
		t.Errorf("Expected ErrParametersNotSet, got %v", err)
	}
}

func TestSIREpidemicGrowth(t *testing.T) {
	// With alpha*S/N > beta the infected compartment grows. Standard
	// smoke test for the integrator adapter.
	n := 1000.0
	m := New(SIR)
	if err := m.Configure([]float64{0.95, 0.38}, []float64{n - 10, 10, 0}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	traj, err := m.Integrate(0, 4, 5)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	if len(traj.T) != 5 {
		t.Fatalf("Expected 5 samples, got %d", len(traj.T))
	}

	infected := traj.Compartment(1)
	for i := 1; i < len(infected); i++ {
		if infected[i] <= infected[i-1] {
			t.Errorf("Infected not strictly increasing at t=%f: %f <= %f",
				traj.T[i], infected[i], infected[i-1])
		}
	}

	// Conservation at every sample.
	for i, row := range traj.C {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		if math.Abs(sum-n)/n > 1e-6 {
			t.Errorf("Conservation violated at t=%f: sum=%f", traj.T[i], sum)
		}
	}
}

func TestSIRXConservation(t *testing.T) {
	n := 80000.0
	m := New(SIRX)
	err := m.Configure([]float64{0.775, 0.125, 0.05, 0.05, 0}, []float64{n - 100, 80, 0, 20})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	traj, err := m.Integrate(0, 40, 41)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	for i, row := range traj.C {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		if math.Abs(sum-n)/n > 1e-6 {
			t.Errorf("Conservation violated at t=%f: sum=%f", traj.T[i], sum)
		}
	}
}

func TestDerivedProperties(t *testing.T) {
	m := New(SIRX)
	err := m.Configure([]float64{0.775, 0.125, 0.05, 0.05, 0}, []float64{990, 10, 0, 0})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	d, err := m.DerivedProperties()
	if err != nil {
		t.Fatalf("DerivedProperties failed: %v", err)
	}

	// Reference values to 4 significant digits.
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"TEff", d.TEff, 4.444},
		{"R0Eff", d.R0Eff, 3.444},
		{"P", d.P, 0.5},
		{"Q", d.Q, 0.4444},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want)/c.want > 5e-4 {
			t.Errorf("%s: expected %g, got %g", c.name, c.want, c.got)
		}
	}
}

func TestDerivedPropertiesSIRUndefined(t *testing.T) {
	m := New(SIR)
	if err := m.Configure([]float64{0.5, 0.1}, []float64{990, 10, 0}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := m.DerivedProperties(); err == nil {
		t.Error("Expected error for SIR derived properties")
	}
}

func TestContinuationSemantics(t *testing.T) {
	m := New(SIR)
	if err := m.Configure([]float64{0.95, 0.38}, []float64{990, 10, 0}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	first, err := m.Integrate(0, 5, 6)
	if err != nil {
		t.Fatalf("First integrate failed: %v", err)
	}
	endOfFirst := first.Final()

	// Second call continues from the end of the first range.
	second, err := m.Integrate(5, 10, 6)
	if err != nil {
		t.Fatalf("Second integrate failed: %v", err)
	}
	for i := range endOfFirst {
		if math.Abs(second.C[0][i]-endOfFirst[i]) > 1e-6 {
			t.Errorf("Continuation start mismatch at compartment %d: %f vs %f",
				i, second.C[0][i], endOfFirst[i])
		}
	}

	// Fetch returns the latest trajectory only (replaced, not appended).
	if got := m.Fetch(); got != second {
		t.Error("Fetch should return the most recent trajectory")
	}

	// Reset restarts from the initial condition.
	m.Reset()
	fresh, err := m.Integrate(0, 5, 6)
	if err != nil {
		t.Fatalf("Integrate after Reset failed: %v", err)
	}
	if fresh.C[0][1] != 10 {
		t.Errorf("Expected fresh run to start at I=10, got %f", fresh.C[0][1])
	}
}

func TestFetchMatrixLayout(t *testing.T) {
	m := New(SIR)
	if err := m.Configure([]float64{0.95, 0.38}, []float64{990, 10, 0}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if m.Fetch() != nil {
		t.Error("Expected nil trajectory before first solve")
	}

	traj, err := m.Solve(0, 2, 3)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	mat := traj.Matrix()
	if len(mat) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(mat))
	}
	if len(mat[0]) != 4 {
		t.Fatalf("Expected time column + 3 compartments, got %d columns", len(mat[0]))
	}
	if mat[0][0] != 0 || mat[2][0] != 2 {
		t.Errorf("Time column wrong: %v", []float64{mat[0][0], mat[2][0]})
	}
	if mat[0][1] != 990 || mat[0][2] != 10 {
		t.Errorf("First row should be the initial condition, got %v", mat[0])
	}
}

func TestCloneIndependence(t *testing.T) {
	m := New(SIRX)
	err := m.Configure([]float64{0.775, 0.125, 0.05, 0.05, 0}, []float64{990, 10, 0, 0})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	c := m.Clone()
	if err := c.SetParams([]float64{0.9, 0.2, 0.1, 0.1, 0}); err != nil {
		t.Fatalf("SetParams on clone failed: %v", err)
	}
	if m.Params()[0] != 0.775 {
		t.Error("Mutating clone params leaked into original")
	}
	if _, err := c.Integrate(0, 5, 6); err != nil {
		t.Fatalf("Clone integrate failed: %v", err)
	}
	if m.Fetch() != nil {
		t.Error("Clone integration must not create a trajectory on the original")
	}
}

func TestSIRXAdjustSeedsInfected(t *testing.T) {
	m := New(SIRX)
	// ratio=10: a fresh run seeds I0 = 10*X0, drawn from S.
	err := m.Configure([]float64{0.775, 0.125, 0.05, 0.05, 10}, []float64{9900, 0, 0, 10})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	traj, err := m.Integrate(0, 1, 2)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	if got := traj.C[0][1]; got != 100 {
		t.Errorf("Expected seeded I0=100, got %f", got)
	}
	if got := traj.C[0][0]; got != 9800 {
		t.Errorf("Expected S0 reduced to 9800, got %f", got)
	}
}

func TestVariantByName(t *testing.T) {
	if v, ok := VariantByName("sir"); !ok || v != SIR {
		t.Error("Expected SIR for \"sir\"")
	}
	if v, ok := VariantByName("sir-x"); !ok || v != SIRX {
		t.Error("Expected SIRX for \"sir-x\"")
	}
	if _, ok := VariantByName("seir"); ok {
		t.Error("Expected unknown variant to fail")
	}
}
