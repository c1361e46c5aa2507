package results

import (
	"time"

	"github.com/google/uuid"

	"github.com/epifit-xyz/go-epifit/fit"
	"github.com/epifit-xyz/go-epifit/model"
	"github.com/epifit-xyz/go-epifit/solver"
)

// Builder constructs Results from simulation output.
type Builder struct {
	results Results
}

// NewBuilder creates a new results builder with a fresh run id.
func NewBuilder() *Builder {
	return &Builder{
		results: Results{
			Version: SchemaVersion,
			Metadata: Metadata{
				RunID:     uuid.New().String(),
				Timestamp: time.Now(),
			},
		},
	}
}

// WithModel records the model variant, parameters and, for SIR-X, the
// derived epidemiological properties.
func (b *Builder) WithModel(m *model.Model) *Builder {
	schema := m.Schema()
	params := make(map[string]float64, schema.ParamCount())
	for i, name := range schema.Params {
		params[name] = m.Params()[i]
	}
	b.results.Model = Model{
		Variant:      schema.Name,
		Compartments: schema.Compartments,
		Params:       params,
		Population:   m.Population(),
	}
	if d, err := m.DerivedProperties(); err == nil {
		b.results.Model.Derived = &DerivedInfo{TEff: d.TEff, R0Eff: d.R0Eff, P: d.P, Q: d.Q}
	}
	return b
}

// WithSimulation records the inputs.
func (b *Builder) WithSimulation(m *model.Model, timespan [2]float64, opts *solver.Options) *Builder {
	schema := m.Schema()
	initial := make(map[string]float64, schema.CompartmentCount())
	for i, name := range schema.Compartments {
		initial[name] = m.Initial()[i]
	}
	b.results.Simulation = Simulation{
		Timespan:     timespan,
		InitialState: initial,
	}
	if opts != nil {
		b.results.Simulation.Options = &SolverOptions{
			Dt:       opts.Dt,
			Abstol:   opts.Abstol,
			Reltol:   opts.Reltol,
			Adaptive: opts.Adaptive,
		}
	}
	return b
}

// WithTrajectory processes a sampled trajectory, downsampling to roughly
// target points for plotting-sized output.
func (b *Builder) WithTrajectory(traj *model.Trajectory, solverName string, computeTime float64, target int) *Builder {
	b.results.Metadata.Solver = solverName
	b.results.Metadata.Status = "success"
	b.results.Metadata.ComputeTime = computeTime

	final := traj.Final()
	finalState := make(map[string]float64, len(traj.Labels))
	compartments := make(map[string][]float64, len(traj.Labels))
	for i, name := range traj.Labels {
		finalState[name] = final[i]
		compartments[name] = downsampleAligned(traj.T, traj.Compartment(i), target)
	}

	b.results.Results = Data{
		Summary: Summary{
			Points:     len(traj.T),
			FinalTime:  traj.T[len(traj.T)-1],
			FinalState: finalState,
		},
		Timeseries: Timeseries{
			Time:         downsample(traj.T, target),
			Compartments: compartments,
		},
	}
	return b
}

// WithFit records the outcome of a calibration.
func (b *Builder) WithFit(res *fit.Result, schema *model.Schema, mask []bool) *Builder {
	free := make([]string, 0, len(mask))
	for i, f := range mask {
		if f {
			free = append(free, schema.Params[i])
		}
	}
	b.results.Fit = &FitInfo{
		Free:        free,
		InitialLoss: res.InitialLoss,
		FinalLoss:   res.FinalLoss,
		Iterations:  res.Iterations,
		Params:      res.Params,
	}
	return b
}

// WithError marks the run as failed.
func (b *Builder) WithError(err error) *Builder {
	b.results.Metadata.Status = "error"
	b.results.Metadata.Error = err.Error()
	return b
}

// Build returns the constructed Results.
func (b *Builder) Build() *Results {
	return &b.results
}

// downsample reduces data to approximately target points by striding.
func downsample(data []float64, target int) []float64 {
	if target <= 0 || len(data) <= target {
		return data
	}
	out := make([]float64, 0, target)
	stride := float64(len(data)-1) / float64(target-1)
	for i := 0; i < target; i++ {
		out = append(out, data[int(float64(i)*stride+0.5)])
	}
	return out
}

// downsampleAligned strides values the same way downsample strides the
// time vector, so rows keep lining up.
func downsampleAligned(times, values []float64, target int) []float64 {
	if target <= 0 || len(times) <= target {
		return values
	}
	return downsample(values, target)
}
