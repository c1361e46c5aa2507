// Package scenario loads YAML run configurations and binds them to
// models, fitters, and cross-validators.
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/epifit-xyz/go-epifit/fit"
	"github.com/epifit-xyz/go-epifit/model"
	"github.com/epifit-xyz/go-epifit/solver"
)

// Scenario is the top-level run configuration, loaded from YAML via Load.
type Scenario struct {
	Name         string           `yaml:"name"`
	Model        ModelSpec        `yaml:"model"`
	Solver       *SolverSpec      `yaml:"solver,omitempty"`
	Simulate     *SimulateSpec    `yaml:"simulate,omitempty"`
	Fit          *FitSpec         `yaml:"fit,omitempty"`
	Crossval     *CrossvalSpec    `yaml:"crossval,omitempty"`
	Observations *ObservationSpec `yaml:"observations,omitempty"`
}

// ModelSpec selects a model variant and its starting parameters and
// initial compartment counts, both keyed by schema names.
type ModelSpec struct {
	Variant string             `yaml:"variant"`
	Params  map[string]float64 `yaml:"params"`
	Initial map[string]float64 `yaml:"initial"`
}

// SolverSpec tunes the ODE integrator. Profile picks a preset
// ("default", "accurate", "fast", "epidemic"); the remaining fields
// override individual preset values when non-zero.
type SolverSpec struct {
	Method   string  `yaml:"method,omitempty"`
	Profile  string  `yaml:"profile,omitempty"`
	Dt       float64 `yaml:"dt,omitempty"`
	Abstol   float64 `yaml:"abstol,omitempty"`
	Reltol   float64 `yaml:"reltol,omitempty"`
	MaxSteps int     `yaml:"max_steps,omitempty"`
}

// SimulateSpec defines the forward integration window.
type SimulateSpec struct {
	Start  float64 `yaml:"start"`
	End    float64 `yaml:"end"`
	Points int     `yaml:"points"`
}

// FitSpec configures parameter estimation. Free lists the schema
// parameter names that the optimizer may vary; all others stay fixed.
type FitSpec struct {
	Free      []string `yaml:"free"`
	Method    string   `yaml:"method,omitempty"`
	MaxIters  int      `yaml:"max_iters,omitempty"`
	Tolerance float64  `yaml:"tolerance,omitempty"`
}

// CrossvalSpec configures rolling-origin cross-validation.
type CrossvalSpec struct {
	Lags      int `yaml:"lags"`
	MinSample int `yaml:"min_sample"`
	Workers   int `yaml:"workers,omitempty"`
}

// ObservationSpec supplies the observed series, either inline or from a
// two-column (time,value) CSV file. Compartment names which schema
// compartment was observed.
type ObservationSpec struct {
	Compartment string    `yaml:"compartment"`
	Times       []float64 `yaml:"times,omitempty"`
	Values      []float64 `yaml:"values,omitempty"`
	CSV         string    `yaml:"csv,omitempty"`
}

var validProfiles = map[string]bool{
	"": true, "default": true, "accurate": true, "fast": true, "epidemic": true,
}

// Load reads and parses a YAML scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario. Parsing is strict: unrecognized keys
// (typos) are rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the scenario against the selected variant's schema.
func (s *Scenario) Validate() error {
	v, ok := model.VariantByName(s.Model.Variant)
	if !ok {
		return fmt.Errorf("model: unknown variant %q; valid: sir, sir-x", s.Model.Variant)
	}
	schema := v.Schema()

	for name, val := range s.Model.Params {
		if schema.ParamIndex(name) < 0 {
			return fmt.Errorf("model.params: %q is not a %s parameter", name, schema.Name)
		}
		if err := finiteNonNegative("model.params."+name, val); err != nil {
			return err
		}
	}
	for _, name := range schema.Params {
		if _, ok := s.Model.Params[name]; !ok {
			return fmt.Errorf("model.params: missing %q", name)
		}
	}
	total := 0.0
	for name, val := range s.Model.Initial {
		if schema.CompartmentIndex(name) < 0 {
			return fmt.Errorf("model.initial: %q is not a %s compartment", name, schema.Name)
		}
		if err := finiteNonNegative("model.initial."+name, val); err != nil {
			return err
		}
		total += val
	}
	if total <= 0 {
		return fmt.Errorf("model.initial: total population must be positive")
	}

	if s.Solver != nil {
		if !validProfiles[s.Solver.Profile] {
			return fmt.Errorf("solver: unknown profile %q; valid: default, accurate, fast, epidemic", s.Solver.Profile)
		}
		if s.Solver.Method != "" && solver.MethodByName(s.Solver.Method) == nil {
			return fmt.Errorf("solver: unknown method %q", s.Solver.Method)
		}
	}
	if s.Simulate != nil {
		if s.Simulate.End <= s.Simulate.Start {
			return fmt.Errorf("simulate: end must exceed start")
		}
		if s.Simulate.Points < 2 {
			return fmt.Errorf("simulate: points must be at least 2, got %d", s.Simulate.Points)
		}
	}
	if s.Fit != nil {
		if len(s.Fit.Free) == 0 {
			return fmt.Errorf("fit: at least one free parameter required")
		}
		for _, name := range s.Fit.Free {
			if schema.ParamIndex(name) < 0 {
				return fmt.Errorf("fit.free: %q is not a %s parameter", name, schema.Name)
			}
		}
	}
	if s.Crossval != nil {
		if s.Crossval.Lags < 1 {
			return fmt.Errorf("crossval: lags must be at least 1, got %d", s.Crossval.Lags)
		}
		if s.Crossval.MinSample < 1 {
			return fmt.Errorf("crossval: min_sample must be at least 1, got %d", s.Crossval.MinSample)
		}
	}
	if s.Observations != nil {
		if schema.CompartmentIndex(s.Observations.Compartment) < 0 {
			return fmt.Errorf("observations: %q is not a %s compartment", s.Observations.Compartment, schema.Name)
		}
		inline := len(s.Observations.Times) > 0
		if inline == (s.Observations.CSV != "") {
			return fmt.Errorf("observations: provide either inline times/values or a csv path")
		}
		if inline && len(s.Observations.Times) != len(s.Observations.Values) {
			return fmt.Errorf("observations: times and values length mismatch (%d vs %d)",
				len(s.Observations.Times), len(s.Observations.Values))
		}
	}
	if (s.Fit != nil || s.Crossval != nil) && s.Observations == nil {
		return fmt.Errorf("observations required for fit or crossval")
	}
	return nil
}

// Variant returns the resolved model variant. Valid after Validate.
func (s *Scenario) Variant() model.Variant {
	v, _ := model.VariantByName(s.Model.Variant)
	return v
}

// BuildModel constructs and configures the model described by the
// scenario, including solver method and tolerances.
func (s *Scenario) BuildModel() (*model.Model, error) {
	v := s.Variant()
	schema := v.Schema()

	params := make([]float64, schema.ParamCount())
	for i, name := range schema.Params {
		params[i] = s.Model.Params[name]
	}
	initial := make([]float64, schema.CompartmentCount())
	for i, name := range schema.Compartments {
		initial[i] = s.Model.Initial[name]
	}

	m := model.New(v).WithSolver(s.SolverMethod(), s.SolverOptions())
	if err := m.Configure(params, initial); err != nil {
		return nil, err
	}
	return m, nil
}

// SolverMethod resolves the configured integration method, defaulting
// to Tsit5.
func (s *Scenario) SolverMethod() *solver.Method {
	if s.Solver == nil {
		return solver.Tsit5()
	}
	return solver.MethodByName(s.Solver.Method)
}

// SolverOptions resolves the solver profile plus any per-field
// overrides.
func (s *Scenario) SolverOptions() *solver.Options {
	opts := solver.EpidemicOptions()
	if s.Solver == nil {
		return opts
	}
	switch s.Solver.Profile {
	case "default":
		opts = solver.DefaultOptions()
	case "accurate":
		opts = solver.AccurateOptions()
	case "fast":
		opts = solver.FastOptions()
	}
	if s.Solver.Dt > 0 {
		opts.Dt = s.Solver.Dt
	}
	if s.Solver.Abstol > 0 {
		opts.Abstol = s.Solver.Abstol
	}
	if s.Solver.Reltol > 0 {
		opts.Reltol = s.Solver.Reltol
	}
	if s.Solver.MaxSteps > 0 {
		opts.Maxiters = s.Solver.MaxSteps
	}
	return opts
}

// FitOptions builds fit options from the scenario, falling back to
// defaults for unset fields.
func (s *Scenario) FitOptions() *fit.Options {
	opts := fit.DefaultOptions()
	opts.SolverMethod = s.SolverMethod()
	opts.SolverOptions = s.SolverOptions()
	if s.Fit == nil {
		return opts
	}
	if s.Fit.Method != "" {
		opts.Method = s.Fit.Method
	}
	if s.Fit.MaxIters > 0 {
		opts.MaxIters = s.Fit.MaxIters
	}
	if s.Fit.Tolerance > 0 {
		opts.Tolerance = s.Fit.Tolerance
	}
	return opts
}

// Mask returns the free-parameter mask implied by fit.free, aligned to
// the schema's parameter order.
func (s *Scenario) Mask() []bool {
	schema := s.Variant().Schema()
	mask := make([]bool, schema.ParamCount())
	if s.Fit == nil {
		return mask
	}
	for _, name := range s.Fit.Free {
		if i := schema.ParamIndex(name); i >= 0 {
			mask[i] = true
		}
	}
	return mask
}

// Observable returns the observed compartment as a fit observable.
func (s *Scenario) Observable() fit.Observable {
	idx := s.Variant().Schema().CompartmentIndex(s.Observations.Compartment)
	return fit.Compartment(idx)
}

// Dataset materializes the observation series. CSV paths resolve
// relative to baseDir, typically the scenario file's directory.
func (s *Scenario) Dataset(baseDir string) (*fit.Dataset, error) {
	if s.Observations == nil {
		return nil, fmt.Errorf("scenario has no observations")
	}
	if s.Observations.CSV != "" {
		path := s.Observations.CSV
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		times, values, err := readCSV(path)
		if err != nil {
			return nil, err
		}
		return fit.NewDataset(times, values)
	}
	return fit.NewDataset(s.Observations.Times, s.Observations.Values)
}

func finiteNonNegative(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val < 0 {
		return fmt.Errorf("%s must be non-negative, got %f", name, val)
	}
	return nil
}
