// Package sensitivity analyzes how epidemic outcomes respond to
// parameter changes: perturbation impact, parameter sweeps, and
// finite-difference gradients.
package sensitivity

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/epifit-xyz/go-epifit/model"
	"github.com/epifit-xyz/go-epifit/solver"
)

// Scorer reduces a simulated trajectory to a single outcome number.
type Scorer func(sol *solver.Solution) float64

// FinalScorer scores the final value of a compartment.
func FinalScorer(compartment int) Scorer {
	return func(sol *solver.Solution) float64 {
		return sol.Final()[compartment]
	}
}

// PeakScorer scores the maximum value a compartment reaches, e.g. the
// epidemic peak of I.
func PeakScorer(compartment int) Scorer {
	return func(sol *solver.Solution) float64 {
		peak := math.Inf(-1)
		for _, v := range sol.Variable(compartment) {
			if v > peak {
				peak = v
			}
		}
		return peak
	}
}

// DiffScorer scores the difference between the final values of two
// compartments.
func DiffScorer(a, b int) Scorer {
	return func(sol *solver.Solution) float64 {
		final := sol.Final()
		return final[a] - final[b]
	}
}

// Result holds a perturbation analysis: one score per parameter with
// that parameter perturbed and the rest at their configured values.
type Result struct {
	Baseline float64            // Score with the configured parameters
	Scores   map[string]float64 // Score with each parameter perturbed
	Impact   map[string]float64 // Score - Baseline per parameter
	Ranking  []RankedParam      // Parameters by descending absolute impact
}

// RankedParam pairs a parameter name with its impact.
type RankedParam struct {
	Name   string
	Impact float64
}

// Analyzer runs sensitivity experiments against a configured model.
type Analyzer struct {
	m      *model.Model
	tspan  [2]float64
	scorer Scorer
}

// NewAnalyzer creates an analyzer for a configured model. The default
// time span is [0, 10].
func NewAnalyzer(m *model.Model, scorer Scorer) *Analyzer {
	return &Analyzer{
		m:      m,
		tspan:  [2]float64{0, 10},
		scorer: scorer,
	}
}

// WithTimeSpan sets the simulation window for every experiment.
func (a *Analyzer) WithTimeSpan(t0, tf float64) *Analyzer {
	a.tspan = [2]float64{t0, tf}
	return a
}

func (a *Analyzer) score(params []float64) (float64, error) {
	sol, err := a.m.Simulate(params, a.tspan)
	if err != nil {
		return 0, err
	}
	return a.scorer(sol), nil
}

// perturbed returns a copy of the configured parameter vector with the
// named entry scaled by (1+frac). A zero entry moves by frac instead.
func (a *Analyzer) perturbed(name string, frac float64) ([]float64, error) {
	idx := a.m.Schema().ParamIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%s has no parameter %q: %w",
			a.m.Schema().Name, name, model.ErrInvalidParameterShape)
	}
	params := a.m.Params()
	if params == nil {
		return nil, model.ErrParametersNotSet
	}
	if params[idx] != 0 {
		params[idx] *= 1 + frac
	} else {
		params[idx] = frac
	}
	if params[idx] < 0 {
		params[idx] = 0
	}
	return params, nil
}

// AnalyzePerturbation perturbs each parameter by the relative fraction
// frac in turn and scores the outcome.
func (a *Analyzer) AnalyzePerturbation(frac float64) (*Result, error) {
	baseline, err := a.score(a.m.Params())
	if err != nil {
		return nil, err
	}
	result := &Result{
		Baseline: baseline,
		Scores:   make(map[string]float64),
		Impact:   make(map[string]float64),
	}
	for _, name := range a.m.Schema().Params {
		params, err := a.perturbed(name, frac)
		if err != nil {
			return nil, err
		}
		score, err := a.score(params)
		if err != nil {
			return nil, fmt.Errorf("perturbing %s: %w", name, err)
		}
		result.Scores[name] = score
		result.Impact[name] = score - baseline
	}
	result.Ranking = rankByImpact(result.Impact)
	return result, nil
}

// AnalyzePerturbationParallel is AnalyzePerturbation with one goroutine
// per parameter. Simulate does not mutate the model, so the runs share
// it safely.
func (a *Analyzer) AnalyzePerturbationParallel(frac float64) (*Result, error) {
	baseline, err := a.score(a.m.Params())
	if err != nil {
		return nil, err
	}
	result := &Result{
		Baseline: baseline,
		Scores:   make(map[string]float64),
		Impact:   make(map[string]float64),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for _, name := range a.m.Schema().Params {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			params, err := a.perturbed(name, frac)
			var score float64
			if err == nil {
				score, err = a.score(params)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("perturbing %s: %w", name, err)
				}
				return
			}
			result.Scores[name] = score
			result.Impact[name] = score - baseline
		}(name)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	result.Ranking = rankByImpact(result.Impact)
	return result, nil
}

func rankByImpact(impact map[string]float64) []RankedParam {
	ranking := make([]RankedParam, 0, len(impact))
	for name, imp := range impact {
		ranking = append(ranking, RankedParam{Name: name, Impact: imp})
	}
	sort.Slice(ranking, func(i, j int) bool {
		return math.Abs(ranking[i].Impact) > math.Abs(ranking[j].Impact)
	})
	return ranking
}

// SweepResult holds scores across a range of values for one parameter.
type SweepResult struct {
	Parameter string
	Values    []float64
	Scores    []float64
	Best      struct {
		Value float64
		Score float64
	}
	Worst struct {
		Value float64
		Score float64
	}
}

// Sweep scores the model at each of the given values for a single
// parameter, holding the others fixed.
func (a *Analyzer) Sweep(name string, values []float64) (*SweepResult, error) {
	idx := a.m.Schema().ParamIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%s has no parameter %q: %w",
			a.m.Schema().Name, name, model.ErrInvalidParameterShape)
	}

	result := &SweepResult{
		Parameter: name,
		Values:    values,
		Scores:    make([]float64, len(values)),
	}
	bestScore := math.Inf(-1)
	worstScore := math.Inf(1)

	for i, val := range values {
		params := a.m.Params()
		params[idx] = val
		score, err := a.score(params)
		if err != nil {
			return nil, fmt.Errorf("sweeping %s=%g: %w", name, val, err)
		}
		result.Scores[i] = score
		if score > bestScore {
			bestScore = score
			result.Best.Value = val
			result.Best.Score = score
		}
		if score < worstScore {
			worstScore = score
			result.Worst.Value = val
			result.Worst.Score = score
		}
	}
	return result, nil
}

// SweepRange sweeps evenly spaced values in [min, max].
func (a *Analyzer) SweepRange(name string, min, max float64, steps int) (*SweepResult, error) {
	return a.Sweep(name, linspace(min, max, steps))
}

// Gradient estimates d(score)/d(param) by central difference. A zero h
// defaults to 1% of the current value.
func (a *Analyzer) Gradient(name string, h float64) (float64, error) {
	idx := a.m.Schema().ParamIndex(name)
	if idx < 0 {
		return 0, fmt.Errorf("%s has no parameter %q: %w",
			a.m.Schema().Name, name, model.ErrInvalidParameterShape)
	}
	orig := a.m.Params()[idx]
	if h == 0 {
		h = 0.01 * orig
		if h == 0 {
			h = 0.01
		}
	}

	plus := a.m.Params()
	plus[idx] = orig + h
	scorePlus, err := a.score(plus)
	if err != nil {
		return 0, err
	}

	minus := a.m.Params()
	minus[idx] = math.Max(orig-h, 0)
	scoreMinus, err := a.score(minus)
	if err != nil {
		return 0, err
	}

	return (scorePlus - scoreMinus) / (2 * h), nil
}

// AllGradients computes gradients for every parameter.
func (a *Analyzer) AllGradients(h float64) (map[string]float64, error) {
	gradients := make(map[string]float64)
	for _, name := range a.m.Schema().Params {
		g, err := a.Gradient(name, h)
		if err != nil {
			return nil, err
		}
		gradients[name] = g
	}
	return gradients, nil
}

// AllGradientsParallel computes gradients with one goroutine per
// parameter.
func (a *Analyzer) AllGradientsParallel(h float64) (map[string]float64, error) {
	gradients := make(map[string]float64)
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for _, name := range a.m.Schema().Params {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			g, err := a.Gradient(name, h)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			gradients[name] = g
		}(name)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return gradients, nil
}

// GridSearch scores every combination of values across several
// parameters.
type GridSearch struct {
	analyzer   *Analyzer
	parameters map[string][]float64
}

// NewGridSearch creates a grid search over the analyzer's model.
func NewGridSearch(analyzer *Analyzer) *GridSearch {
	return &GridSearch{
		analyzer:   analyzer,
		parameters: make(map[string][]float64),
	}
}

// AddParameter adds explicit values for one parameter axis.
func (g *GridSearch) AddParameter(name string, values []float64) *GridSearch {
	g.parameters[name] = values
	return g
}

// AddParameterRange adds evenly spaced values for one parameter axis.
func (g *GridSearch) AddParameterRange(name string, min, max float64, steps int) *GridSearch {
	g.parameters[name] = linspace(min, max, steps)
	return g
}

// GridResult holds grid search outcomes, with Best tracking the
// highest-scoring combination.
type GridResult struct {
	Combinations []map[string]float64
	Scores       []float64
	Best         struct {
		Parameters map[string]float64
		Score      float64
		Index      int
	}
}

// Run evaluates every combination.
func (g *GridSearch) Run() (*GridResult, error) {
	schema := g.analyzer.m.Schema()
	for name := range g.parameters {
		if schema.ParamIndex(name) < 0 {
			return nil, fmt.Errorf("%s has no parameter %q: %w",
				schema.Name, name, model.ErrInvalidParameterShape)
		}
	}

	combinations := g.generateCombinations()
	result := &GridResult{
		Combinations: combinations,
		Scores:       make([]float64, len(combinations)),
	}
	bestScore := math.Inf(-1)

	for i, combo := range combinations {
		params := g.analyzer.m.Params()
		for name, val := range combo {
			params[schema.ParamIndex(name)] = val
		}
		score, err := g.analyzer.score(params)
		if err != nil {
			return nil, fmt.Errorf("grid point %v: %w", combo, err)
		}
		result.Scores[i] = score
		if score > bestScore {
			bestScore = score
			result.Best.Parameters = combo
			result.Best.Score = score
			result.Best.Index = i
		}
	}
	return result, nil
}

// generateCombinations enumerates the cartesian product of all axes in
// a stable parameter order.
func (g *GridSearch) generateCombinations() []map[string]float64 {
	params := make([]string, 0, len(g.parameters))
	for p := range g.parameters {
		params = append(params, p)
	}
	sort.Strings(params)

	total := 1
	for _, p := range params {
		total *= len(g.parameters[p])
	}

	combinations := make([]map[string]float64, total)
	for i := 0; i < total; i++ {
		combo := make(map[string]float64)
		idx := i
		for _, p := range params {
			values := g.parameters[p]
			combo[p] = values[idx%len(values)]
			idx /= len(values)
		}
		combinations[i] = combo
	}
	return combinations
}

func linspace(min, max float64, steps int) []float64 {
	values := make([]float64, steps)
	for i := 0; i < steps; i++ {
		values[i] = min + (max-min)*float64(i)/float64(steps-1)
	}
	return values
}
