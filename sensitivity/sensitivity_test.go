package sensitivity

import (
	"math"
	"testing"

	"github.com/epifit-xyz/go-epifit/model"
)

func sirModel(t *testing.T) *model.Model {
	t.Helper()
	m := model.New(model.SIR)
	if err := m.Configure([]float64{0.95, 0.38}, []float64{990, 10, 0}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	return m
}

func TestAnalyzePerturbationSigns(t *testing.T) {
	m := sirModel(t)
	a := NewAnalyzer(m, PeakScorer(1)).WithTimeSpan(0, 60)

	res, err := a.AnalyzePerturbation(0.2)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.Baseline <= 10 {
		t.Fatalf("expected an epidemic peak above the seed, got %f", res.Baseline)
	}
	// Faster infection raises the peak, faster recovery lowers it.
	if res.Impact["alpha"] <= 0 {
		t.Errorf("alpha impact should be positive, got %f", res.Impact["alpha"])
	}
	if res.Impact["beta"] >= 0 {
		t.Errorf("beta impact should be negative, got %f", res.Impact["beta"])
	}
	if len(res.Ranking) != 2 {
		t.Fatalf("expected 2 ranked parameters, got %d", len(res.Ranking))
	}
	if math.Abs(res.Ranking[0].Impact) < math.Abs(res.Ranking[1].Impact) {
		t.Error("ranking not sorted by absolute impact")
	}
}

func TestAnalyzePerturbationParallelMatchesSerial(t *testing.T) {
	m := sirModel(t)
	a := NewAnalyzer(m, FinalScorer(2)).WithTimeSpan(0, 30)

	serial, err := a.AnalyzePerturbation(0.1)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	parallel, err := a.AnalyzePerturbationParallel(0.1)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	for name, want := range serial.Scores {
		if got := parallel.Scores[name]; got != want {
			t.Errorf("%s: parallel score %f != serial %f", name, got, want)
		}
	}
}

func TestAnalyzeUnknownParameter(t *testing.T) {
	m := sirModel(t)
	a := NewAnalyzer(m, FinalScorer(2))
	if _, err := a.Sweep("kappa", []float64{0.1}); err == nil {
		t.Fatal("expected error for unknown parameter")
	}
	if _, err := a.Gradient("kappa", 0); err == nil {
		t.Fatal("expected error for unknown parameter")
	}
}

func TestSweepFindsMonotoneBest(t *testing.T) {
	m := sirModel(t)
	a := NewAnalyzer(m, PeakScorer(1)).WithTimeSpan(0, 60)

	res, err := a.SweepRange("alpha", 0.5, 1.5, 5)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Scores) != 5 {
		t.Fatalf("expected 5 scores, got %d", len(res.Scores))
	}
	// Peak infections grow with the infection rate.
	if res.Best.Value != 1.5 || res.Worst.Value != 0.5 {
		t.Errorf("best=%f worst=%f, expected 1.5 and 0.5", res.Best.Value, res.Worst.Value)
	}
}

func TestGradientSigns(t *testing.T) {
	m := sirModel(t)
	a := NewAnalyzer(m, PeakScorer(1)).WithTimeSpan(0, 60)

	grads, err := a.AllGradients(0)
	if err != nil {
		t.Fatalf("gradients: %v", err)
	}
	if grads["alpha"] <= 0 {
		t.Errorf("d(peak)/d(alpha) should be positive, got %f", grads["alpha"])
	}
	if grads["beta"] >= 0 {
		t.Errorf("d(peak)/d(beta) should be negative, got %f", grads["beta"])
	}

	pgrads, err := a.AllGradientsParallel(0)
	if err != nil {
		t.Fatalf("parallel gradients: %v", err)
	}
	for name, want := range grads {
		if got := pgrads[name]; got != want {
			t.Errorf("%s: parallel gradient %f != serial %f", name, got, want)
		}
	}
}

func TestGridSearch(t *testing.T) {
	m := sirModel(t)
	a := NewAnalyzer(m, PeakScorer(1)).WithTimeSpan(0, 60)

	res, err := NewGridSearch(a).
		AddParameter("alpha", []float64{0.5, 1.0, 1.5}).
		AddParameterRange("beta", 0.2, 0.6, 2).
		Run()
	if err != nil {
		t.Fatalf("grid search: %v", err)
	}
	if len(res.Combinations) != 6 {
		t.Fatalf("expected 6 combinations, got %d", len(res.Combinations))
	}
	// Highest peak at max infection rate, min recovery rate.
	if res.Best.Parameters["alpha"] != 1.5 || res.Best.Parameters["beta"] != 0.2 {
		t.Errorf("unexpected best point: %v", res.Best.Parameters)
	}
}

func TestGridSearchUnknownParameter(t *testing.T) {
	m := sirModel(t)
	a := NewAnalyzer(m, FinalScorer(2))
	if _, err := NewGridSearch(a).AddParameter("gamma", []float64{1}).Run(); err == nil {
		t.Fatal("expected error for unknown parameter")
	}
}
