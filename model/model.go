// Package model defines the compartmental epidemic model variants (SIR,
// SIR-X) and the mutable model instance that owns a parameter vector, an
// initial condition, and the trajectory of its most recent integration.
package model

import (
	"fmt"
	"math"

	"github.com/epifit-xyz/go-epifit/solver"
)

// Trajectory is a sequence of (time, compartment vector) samples produced
// by integration, ordered by strictly increasing time. The first row is the
// state at the starting time.
type Trajectory struct {
	T      []float64
	C      [][]float64 // one row per sample, one column per compartment
	Labels []string
}

// Compartment extracts the time series of compartment i.
func (tr *Trajectory) Compartment(i int) []float64 {
	if i < 0 || len(tr.C) == 0 || i >= len(tr.C[0]) {
		return nil
	}
	out := make([]float64, len(tr.C))
	for j, row := range tr.C {
		out[j] = row[i]
	}
	return out
}

// Matrix returns the trajectory as rows of [t, c0, c1, ...]: a leading time
// column followed by one column per compartment.
func (tr *Trajectory) Matrix() [][]float64 {
	out := make([][]float64, len(tr.T))
	for i := range tr.T {
		row := make([]float64, 1+len(tr.C[i]))
		row[0] = tr.T[i]
		copy(row[1:], tr.C[i])
		out[i] = row
	}
	return out
}

// Final returns the last compartment vector, or nil for an empty trajectory.
func (tr *Trajectory) Final() []float64 {
	if len(tr.C) == 0 {
		return nil
	}
	return tr.C[len(tr.C)-1]
}

// Derived holds the epidemiological scalars computed from a fitted SIR-X
// parameter vector.
type Derived struct {
	TEff  float64 // effective infectious period 1/(beta+kappa+kappa0)
	R0Eff float64 // effective reproduction number alpha*TEff
	P     float64 // public containment leverage kappa0/(kappa0+kappa)
	Q     float64 // quarantine probability (kappa0+kappa)/(beta+kappa0+kappa)
}

// Model is a configured instance of a compartment model variant. It holds
// the current parameter vector, the initial condition, and the trajectory
// of the most recent integration. A Model is not safe for concurrent use;
// independent goroutines (e.g. cross-validation folds) must each own a
// Clone.
type Model struct {
	variant Variant
	schema  *Schema

	params     []float64
	initial    []float64
	population float64

	// Continuation state: the end of the last computed trajectory.
	current []float64
	lastT   float64

	traj       *Trajectory
	configured bool

	method *solver.Method
	opts   *solver.Options
}

// New creates an unconfigured model of the given variant using Tsit5 and
// epidemic-tuned solver options.
func New(v Variant) *Model {
	s := v.Schema()
	if s == nil {
		panic(fmt.Sprintf("model: unknown variant %d", int(v)))
	}
	return &Model{
		variant: v,
		schema:  s,
		method:  solver.Tsit5(),
		opts:    solver.EpidemicOptions(),
	}
}

// WithSolver overrides the integration method and options.
func (m *Model) WithSolver(method *solver.Method, opts *solver.Options) *Model {
	if method != nil {
		m.method = method
	}
	if opts != nil {
		m.opts = opts
	}
	return m
}

// Variant returns the model's variant.
func (m *Model) Variant() Variant { return m.variant }

// Schema returns the variant's schema.
func (m *Model) Schema() *Schema { return m.schema }

// Configure validates and stores the parameter vector and initial
// condition. The total population is fixed as the sum of the initial
// compartments. Any previous trajectory and continuation state is
// discarded.
func (m *Model) Configure(params, initial []float64) error {
	if err := m.checkParams(params); err != nil {
		return err
	}
	if len(initial) != m.schema.CompartmentCount() {
		return fmt.Errorf("%s expects %d compartments, got %d: %w",
			m.schema.Name, m.schema.CompartmentCount(), len(initial), ErrInvalidStateShape)
	}
	total := 0.0
	for i, v := range initial {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("compartment %s = %g: %w", m.schema.Compartments[i], v, ErrInvalidStateShape)
		}
		total += v
	}
	if total <= 0 {
		return fmt.Errorf("total population must be positive: %w", ErrInvalidStateShape)
	}

	m.params = append([]float64(nil), params...)
	m.initial = append([]float64(nil), initial...)
	m.population = total
	m.traj = nil
	m.current = nil
	m.lastT = 0
	m.configured = true
	return nil
}

func (m *Model) checkParams(params []float64) error {
	if len(params) != m.schema.ParamCount() {
		return fmt.Errorf("%s expects %d parameters, got %d: %w",
			m.schema.Name, m.schema.ParamCount(), len(params), ErrInvalidParameterShape)
	}
	for i, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("parameter %s = %g: %w", m.schema.Params[i], v, ErrInvalidParameterShape)
		}
	}
	return nil
}

// SetParams replaces the current parameter vector, keeping the initial
// condition and continuation state.
func (m *Model) SetParams(params []float64) error {
	if !m.configured {
		return fmt.Errorf("SetParams before Configure: %w", ErrParametersNotSet)
	}
	if err := m.checkParams(params); err != nil {
		return err
	}
	m.params = append([]float64(nil), params...)
	return nil
}

// Params returns a copy of the current parameter vector.
func (m *Model) Params() []float64 {
	return append([]float64(nil), m.params...)
}

// Initial returns a copy of the configured initial condition.
func (m *Model) Initial() []float64 {
	return append([]float64(nil), m.initial...)
}

// Population returns the fixed total population N.
func (m *Model) Population() float64 { return m.population }

// startState returns the state a new integration starts from: the end of
// the previous trajectory when one exists (continuation), otherwise the
// configured initial condition with any variant-specific adjustment
// applied.
func (m *Model) startState() []float64 {
	if m.current != nil {
		return append([]float64(nil), m.current...)
	}
	u0 := m.Initial()
	if m.schema.adjust != nil {
		u0 = m.schema.adjust(m.params, u0)
	}
	return u0
}

// Integrate advances the model over [t0, tf] and samples the result at n
// uniformly spaced points.
//
// Continuation is the default: when the model already holds a trajectory
// (from a previous Integrate or a committed fit), the run starts from that
// trajectory's final state. The first Integrate after Configure or Reset
// starts fresh from the initial condition. The stored trajectory is
// replaced, not appended; callers extending a range keep their own copy of
// earlier segments.
func (m *Model) Integrate(t0, tf float64, n int) (*Trajectory, error) {
	if !m.configured {
		return nil, fmt.Errorf("Integrate before Configure: %w", ErrParametersNotSet)
	}
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 sample points, got %d: %w", n, ErrInvalidStateShape)
	}

	u0 := m.startState()
	sol, err := m.solve(m.params, u0, [2]float64{t0, tf})
	if err != nil {
		return nil, err
	}

	traj := m.sample(sol, solver.UniformTimes(t0, tf, n))
	m.traj = traj
	m.current = append([]float64(nil), sol.Final()...)
	m.lastT = tf
	return traj, nil
}

// Solve is an alias for Integrate.
func (m *Model) Solve(t0, tf float64, n int) (*Trajectory, error) {
	return m.Integrate(t0, tf, n)
}

// Reset discards the continuation state and stored trajectory, so the next
// Integrate starts fresh from the configured initial condition.
func (m *Model) Reset() {
	m.traj = nil
	m.current = nil
	m.lastT = 0
}

// Fetch returns the trajectory computed by the most recent Integrate or
// committed fit, or nil if none exists yet.
func (m *Model) Fetch() *Trajectory { return m.traj }

// Simulate runs a fresh integration from the configured initial condition
// using a candidate parameter vector, without mutating the model. This is
// the building block for fitting, cross-validation and sensitivity
// analysis, all of which evaluate many candidate vectors.
func (m *Model) Simulate(params []float64, tspan [2]float64) (*solver.Solution, error) {
	if !m.configured {
		return nil, fmt.Errorf("Simulate before Configure: %w", ErrParametersNotSet)
	}
	if len(params) != m.schema.ParamCount() {
		return nil, fmt.Errorf("%s expects %d parameters, got %d: %w",
			m.schema.Name, m.schema.ParamCount(), len(params), ErrInvalidParameterShape)
	}
	u0 := m.Initial()
	if m.schema.adjust != nil {
		u0 = m.schema.adjust(params, u0)
	}
	return m.solve(params, u0, tspan)
}

func (m *Model) solve(params, u0 []float64, tspan [2]float64) (*solver.Solution, error) {
	prob := &solver.Problem{
		F:      m.schema.deriv(params, m.population),
		U0:     u0,
		Tspan:  tspan,
		Labels: m.schema.Compartments,
	}
	return solver.Solve(prob, m.method, m.opts)
}

// sample converts an adaptive-step solution into a trajectory on the
// requested time grid.
func (m *Model) sample(sol *solver.Solution, times []float64) *Trajectory {
	nc := m.schema.CompartmentCount()
	cols := make([][]float64, nc)
	for i := 0; i < nc; i++ {
		cols[i] = sol.At(times, i)
	}
	rows := make([][]float64, len(times))
	for j := range times {
		row := make([]float64, nc)
		for i := 0; i < nc; i++ {
			row[i] = cols[i][j]
		}
		rows[j] = row
	}
	return &Trajectory{
		T:      append([]float64(nil), times...),
		C:      rows,
		Labels: m.schema.Compartments,
	}
}

// Commit records a fitted parameter vector together with the solution of
// the final fitted run, so subsequent Integrate calls continue from the end
// of the fitted range. Used by the fit package.
func (m *Model) Commit(params []float64, sol *solver.Solution, times []float64) error {
	if err := m.SetParams(params); err != nil {
		return err
	}
	if sol != nil {
		m.traj = m.sample(sol, times)
		m.current = append([]float64(nil), sol.Final()...)
		m.lastT = sol.T[len(sol.T)-1]
	}
	return nil
}

// Clone returns an independent copy of the model. The clone shares no
// mutable state with the original, so cross-validation folds can fit and
// integrate concurrently.
func (m *Model) Clone() *Model {
	c := &Model{
		variant:    m.variant,
		schema:     m.schema,
		population: m.population,
		lastT:      m.lastT,
		configured: m.configured,
		method:     m.method,
		opts:       m.opts,
	}
	if m.params != nil {
		c.params = append([]float64(nil), m.params...)
	}
	if m.initial != nil {
		c.initial = append([]float64(nil), m.initial...)
	}
	if m.current != nil {
		c.current = append([]float64(nil), m.current...)
	}
	if m.traj != nil {
		c.traj = &Trajectory{
			T:      append([]float64(nil), m.traj.T...),
			Labels: m.traj.Labels,
		}
		c.traj.C = make([][]float64, len(m.traj.C))
		for i, row := range m.traj.C {
			c.traj.C[i] = append([]float64(nil), row...)
		}
	}
	return c
}

// DerivedProperties computes the epidemiologically meaningful scalars from
// the current SIR-X parameter vector. It fails with ErrParametersNotSet
// before Configure, and is undefined for variants without containment
// parameters.
func (m *Model) DerivedProperties() (Derived, error) {
	if !m.configured {
		return Derived{}, fmt.Errorf("DerivedProperties before Configure: %w", ErrParametersNotSet)
	}
	if m.variant != SIRX {
		return Derived{}, fmt.Errorf("derived properties are only defined for %s", sirxSchema.Name)
	}
	alpha := m.params[0]
	beta := m.params[1]
	kappa := m.params[2]
	kappa0 := m.params[3]

	teff := 1.0 / (beta + kappa + kappa0)
	return Derived{
		TEff:  teff,
		R0Eff: alpha * teff,
		P:     kappa0 / (kappa0 + kappa),
		Q:     (kappa0 + kappa) / (beta + kappa0 + kappa),
	}, nil
}
