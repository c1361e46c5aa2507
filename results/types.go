// Package results defines the structured output format for simulation and
// calibration runs.
package results

import "time"

const SchemaVersion = "1.0.0"

// Results contains complete run output.
type Results struct {
	Version    string     `json:"version"`
	Metadata   Metadata   `json:"metadata"`
	Model      Model      `json:"model"`
	Simulation Simulation `json:"simulation"`
	Results    Data       `json:"results"`
	Fit        *FitInfo   `json:"fit,omitempty"`
	Analysis   *Analysis  `json:"analysis,omitempty"`
}

// Metadata contains run execution information.
type Metadata struct {
	RunID       string    `json:"runId"`
	Timestamp   time.Time `json:"timestamp"`
	Solver      string    `json:"solver"`
	Status      string    `json:"status"` // success, error
	Error       string    `json:"error,omitempty"`
	ComputeTime float64   `json:"computeTime"` // seconds
}

// Model summarizes the compartment model.
type Model struct {
	Variant      string             `json:"variant"`
	Compartments []string           `json:"compartments"`
	Params       map[string]float64 `json:"params"`
	Population   float64            `json:"population"`
	Derived      *DerivedInfo       `json:"derived,omitempty"`
}

// DerivedInfo holds the SIR-X derived epidemiological scalars.
type DerivedInfo struct {
	TEff  float64 `json:"tEff"`
	R0Eff float64 `json:"r0Eff"`
	P     float64 `json:"p"`
	Q     float64 `json:"q"`
}

// Simulation contains the inputs used.
type Simulation struct {
	Timespan     [2]float64         `json:"timespan"`
	InitialState map[string]float64 `json:"initialState"`
	Options      *SolverOptions     `json:"options,omitempty"`
}

// SolverOptions contains solver configuration.
type SolverOptions struct {
	Dt       float64 `json:"dt,omitempty"`
	Abstol   float64 `json:"abstol,omitempty"`
	Reltol   float64 `json:"reltol,omitempty"`
	Adaptive bool    `json:"adaptive"`
}

// FitInfo summarizes a calibration run.
type FitInfo struct {
	Free        []string  `json:"free"` // names of fitted parameters
	InitialLoss float64   `json:"initialLoss"`
	FinalLoss   float64   `json:"finalLoss"`
	Iterations  int       `json:"iterations"`
	Params      []float64 `json:"params"`
}

// Data contains the trajectory output.
type Data struct {
	Summary    Summary    `json:"summary"`
	Timeseries Timeseries `json:"timeseries"`
}

// Summary provides a quick overview.
type Summary struct {
	Points     int                `json:"points"`
	FinalTime  float64            `json:"finalTime"`
	FinalState map[string]float64 `json:"finalState"`
}

// Timeseries contains the sampled trajectory, downsampled for plotting.
type Timeseries struct {
	Time         []float64            `json:"time"`
	Compartments map[string][]float64 `json:"compartments"`
}

// Analysis contains automatically computed insights.
type Analysis struct {
	Conservation *Conservation   `json:"conservation,omitempty"`
	Peaks        []Peak          `json:"peaks,omitempty"`
	Statistics   map[string]Stat `json:"statistics,omitempty"`
}

// Conservation tracks population balance across the trajectory.
type Conservation struct {
	Initial      float64 `json:"initial"`
	MaxDeviation float64 `json:"maxDeviation"` // relative to Initial
	Conserved    bool    `json:"conserved"`
}

// Peak represents the maximum of a compartment time series.
type Peak struct {
	Compartment string  `json:"compartment"`
	Time        float64 `json:"time"`
	Value       float64 `json:"value"`
}

// Stat holds summary statistics for one compartment.
type Stat struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}
