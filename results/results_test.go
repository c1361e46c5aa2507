package results

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/epifit-xyz/go-epifit/model"
	"github.com/epifit-xyz/go-epifit/solver"
)

func buildSample(t *testing.T) *Results {
	t.Helper()
	m := model.New(model.SIRX)
	err := m.Configure([]float64{0.775, 0.125, 0.05, 0.05, 0}, []float64{9980, 10, 0, 10})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	traj, err := m.Integrate(0, 30, 61)
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}

	return NewBuilder().
		WithModel(m).
		WithSimulation(m, [2]float64{0, 30}, solver.EpidemicOptions()).
		WithTrajectory(traj, "Tsit5", 0.01, 50).
		Build()
}

func TestBuilderPopulatesResult(t *testing.T) {
	r := buildSample(t)

	if r.Version != SchemaVersion {
		t.Errorf("Expected version %s, got %s", SchemaVersion, r.Version)
	}
	if r.Metadata.RunID == "" {
		t.Error("Expected run id")
	}
	if r.Metadata.Status != "success" {
		t.Errorf("Expected success status, got %s", r.Metadata.Status)
	}
	if r.Model.Variant != "SIR-X" {
		t.Errorf("Expected SIR-X, got %s", r.Model.Variant)
	}
	if r.Model.Derived == nil {
		t.Fatal("Expected derived properties for SIR-X")
	}
	if r.Model.Params["alpha"] != 0.775 {
		t.Errorf("Expected alpha=0.775, got %f", r.Model.Params["alpha"])
	}
	if len(r.Results.Timeseries.Time) > 50 {
		t.Errorf("Expected downsampled series <= 50 points, got %d", len(r.Results.Timeseries.Time))
	}
	for name, values := range r.Results.Timeseries.Compartments {
		if len(values) != len(r.Results.Timeseries.Time) {
			t.Errorf("Compartment %s misaligned: %d vs %d points",
				name, len(values), len(r.Results.Timeseries.Time))
		}
	}
}

func TestAnalyzeConservation(t *testing.T) {
	r := buildSample(t)
	a := Analyze(r)

	if a.Conservation == nil {
		t.Fatal("Expected conservation analysis")
	}
	if !a.Conservation.Conserved {
		t.Errorf("Expected conserved population, max deviation %g", a.Conservation.MaxDeviation)
	}
	if len(a.Peaks) != 4 {
		t.Errorf("Expected a peak per compartment, got %d", len(a.Peaks))
	}
	if _, ok := a.Statistics["I"]; !ok {
		t.Error("Expected statistics for I")
	}
	if r.Analysis != a {
		t.Error("Analysis should be attached to the result")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	r := buildSample(t)
	Analyze(r)

	path := filepath.Join(t.TempDir(), "run.json")
	if err := WriteJSON(r, path); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	got, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Metadata.RunID != r.Metadata.RunID {
		t.Errorf("RunID mismatch: %s vs %s", got.Metadata.RunID, r.Metadata.RunID)
	}
	if got.Results.Summary.Points != r.Results.Summary.Points {
		t.Errorf("Points mismatch: %d vs %d", got.Results.Summary.Points, r.Results.Summary.Points)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected output file: %v", err)
	}
}
