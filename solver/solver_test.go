package solver

import (
	"errors"
	"math"
	"testing"
)

// decay is du/dt = -u, with exact solution u0*exp(-t).
func decay(_ float64, u, du []float64) {
	for i := range u {
		du[i] = -u[i]
	}
}

func TestSolveExponentialDecay(t *testing.T) {
	prob := &Problem{
		F:     decay,
		U0:    []float64{1.0},
		Tspan: [2]float64{0, 5},
	}

	sol, err := Solve(prob, Tsit5(), DefaultOptions())
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	exact := math.Exp(-5.0)
	got := sol.Final()[0]
	if math.Abs(got-exact) > 1e-4 {
		t.Errorf("Expected u(5)=%g, got %g", exact, got)
	}
	if sol.T[0] != 0 {
		t.Errorf("Expected first time point 0, got %f", sol.T[0])
	}
	if sol.T[len(sol.T)-1] != 5 {
		t.Errorf("Expected last time point 5, got %f", sol.T[len(sol.T)-1])
	}
	for i := 1; i < len(sol.T); i++ {
		if sol.T[i] <= sol.T[i-1] {
			t.Fatalf("Time points not strictly increasing at index %d", i)
		}
	}
}

func TestSolveConservation(t *testing.T) {
	// SIR dynamics conserve total population by construction; every
	// accepted step must preserve the sum within tolerance.
	n := 1000.0
	alpha, beta := 0.95, 0.38
	sir := func(_ float64, u, du []float64) {
		inf := alpha * u[0] * u[1] / n
		du[0] = -inf
		du[1] = inf - beta*u[1]
		du[2] = beta * u[1]
	}

	prob := &Problem{
		F:      sir,
		U0:     []float64{n - 10, 10, 0},
		Tspan:  [2]float64{0, 30},
		Labels: []string{"S", "I", "R"},
	}

	sol, err := Solve(prob, Tsit5(), EpidemicOptions())
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	for i, u := range sol.U {
		sum := u[0] + u[1] + u[2]
		if math.Abs(sum-n)/n > 1e-6 {
			t.Fatalf("Conservation violated at t=%f: sum=%f", sol.T[i], sum)
		}
	}
}

func TestSolveNegativeStateFails(t *testing.T) {
	// Constant negative derivative drives the state below zero.
	prob := &Problem{
		F: func(_ float64, u, du []float64) {
			du[0] = -1.0
		},
		U0:    []float64{0.5},
		Tspan: [2]float64{0, 10},
	}

	_, err := Solve(prob, Tsit5(), DefaultOptions())
	if err == nil {
		t.Fatal("Expected integration failure, got nil")
	}
	if !errors.Is(err, ErrIntegrationFailure) {
		t.Errorf("Expected ErrIntegrationFailure, got %v", err)
	}
}

func TestSolveStepBudget(t *testing.T) {
	prob := &Problem{
		F:     decay,
		U0:    []float64{1.0},
		Tspan: [2]float64{0, 1000},
	}
	opts := DefaultOptions()
	opts.Maxiters = 3

	_, err := Solve(prob, Tsit5(), opts)
	if !errors.Is(err, ErrIntegrationFailure) {
		t.Errorf("Expected ErrIntegrationFailure on exhausted budget, got %v", err)
	}
}

func TestSolveFixedStepRK4(t *testing.T) {
	prob := &Problem{
		F:     decay,
		U0:    []float64{2.0},
		Tspan: [2]float64{0, 1},
	}
	opts := &Options{Dt: 0.01, Dtmin: 0.01, Dtmax: 0.01, Abstol: 1e-6, Reltol: 1e-3, Maxiters: 1000, Adaptive: false}

	sol, err := Solve(prob, RK4(), opts)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	exact := 2.0 * math.Exp(-1.0)
	if math.Abs(sol.Final()[0]-exact) > 1e-6 {
		t.Errorf("Expected %g, got %g", exact, sol.Final()[0])
	}
}

func TestSolutionAtInterpolates(t *testing.T) {
	sol := &Solution{
		T:      []float64{0, 1, 2},
		U:      [][]float64{{0}, {10}, {20}},
		Labels: []string{"x"},
	}

	got := sol.At([]float64{0.5, 1.5, -1, 3}, 0)
	want := []float64{5, 15, 0, 20}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("At[%d]: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestSolutionVariableByName(t *testing.T) {
	sol := &Solution{
		T:      []float64{0, 1},
		U:      [][]float64{{1, 2}, {3, 4}},
		Labels: []string{"S", "I"},
	}

	i := sol.VariableByName("I")
	if len(i) != 2 || i[0] != 2 || i[1] != 4 {
		t.Errorf("Expected [2 4], got %v", i)
	}
	if sol.VariableByName("nope") != nil {
		t.Error("Expected nil for unknown label")
	}
}

func TestUniformTimes(t *testing.T) {
	times := UniformTimes(0, 4, 5)
	want := []float64{0, 1, 2, 3, 4}
	if len(times) != 5 {
		t.Fatalf("Expected 5 points, got %d", len(times))
	}
	for i := range want {
		if times[i] != want[i] {
			t.Errorf("times[%d]: expected %f, got %f", i, want[i], times[i])
		}
	}
}

func TestMethodByName(t *testing.T) {
	for _, name := range []string{"", "tsit5", "rk45", "rk4", "euler", "heun", "bs32"} {
		if MethodByName(name) == nil {
			t.Errorf("Expected method for %q", name)
		}
	}
	if MethodByName("dopri853") != nil {
		t.Error("Expected nil for unknown method")
	}
}
