// Package solver implements explicit Runge-Kutta ODE solvers for
// compartmental epidemic models.
package solver

import (
	"errors"
	"fmt"
	"math"
)

// ErrIntegrationFailure is returned when the integrator cannot advance the
// solution: the step budget is exhausted before reaching the final time, or
// the state leaves the non-negative region beyond tolerance (an unstable
// parameter set).
var ErrIntegrationFailure = errors.New("integration failure")

// Func computes the derivative du/dt at time t. The result is written into
// du, which has the same length as u.
type Func func(t float64, u, du []float64)

// Problem represents an ODE initial value problem.
type Problem struct {
	F      Func
	U0     []float64  // Initial state
	Tspan  [2]float64 // Time span [t0, tf]
	Labels []string   // Ordered state variable names (optional)
}

// Solution holds the trajectory produced by Solve.
type Solution struct {
	T      []float64   // Time points, strictly increasing
	U      [][]float64 // State at each time point
	Labels []string    // Ordered state variable names
}

// Variable extracts the time series of the state component at index i.
func (s *Solution) Variable(i int) []float64 {
	if i < 0 || len(s.U) == 0 || i >= len(s.U[0]) {
		return nil
	}
	out := make([]float64, len(s.U))
	for j, u := range s.U {
		out[j] = u[i]
	}
	return out
}

// VariableByName extracts the time series for a labeled state component.
func (s *Solution) VariableByName(name string) []float64 {
	for i, label := range s.Labels {
		if label == name {
			return s.Variable(i)
		}
	}
	return nil
}

// Final returns the state at the last time point, or nil for an empty solution.
func (s *Solution) Final() []float64 {
	if len(s.U) == 0 {
		return nil
	}
	return s.U[len(s.U)-1]
}

// At interpolates the state component at index i at the requested times.
// The solver takes adaptive internal steps, so sample times rarely land on
// solution knots; linear interpolation bridges the gap. Times outside the
// solved range clamp to the boundary values.
func (s *Solution) At(times []float64, i int) []float64 {
	values := s.Variable(i)
	if values == nil {
		return nil
	}
	out := make([]float64, len(times))
	for j, t := range times {
		out[j] = interpolateAt(s.T, values, t)
	}
	return out
}

// interpolateAt performs linear interpolation at a single time point.
func interpolateAt(times, values []float64, t float64) float64 {
	if t <= times[0] {
		return values[0]
	}
	n := len(times)
	if t >= times[n-1] {
		return values[n-1]
	}
	// Binary search for the bracketing interval.
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if times[mid] <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	dt := times[hi] - times[lo]
	if dt == 0 {
		return values[lo]
	}
	alpha := (t - times[lo]) / dt
	return values[lo]*(1-alpha) + values[hi]*alpha
}

// Options contains solver configuration parameters.
type Options struct {
	Dt       float64 // Initial time step
	Dtmin    float64 // Minimum time step
	Dtmax    float64 // Maximum time step
	Abstol   float64 // Absolute error tolerance
	Reltol   float64 // Relative error tolerance
	Maxiters int     // Maximum number of accepted steps
	Adaptive bool    // Use adaptive step size control
}

// DefaultOptions returns balanced settings suitable for most problems.
func DefaultOptions() *Options {
	return &Options{
		Dt:       0.01,
		Dtmin:    1e-6,
		Dtmax:    0.1,
		Abstol:   1e-6,
		Reltol:   1e-3,
		Maxiters: 100000,
		Adaptive: true,
	}
}

// AccurateOptions returns options for high-precision runs, e.g. when
// generating synthetic ground truth for fit validation.
func AccurateOptions() *Options {
	return &Options{
		Dt:       0.001,
		Dtmin:    1e-8,
		Dtmax:    0.1,
		Abstol:   1e-9,
		Reltol:   1e-6,
		Maxiters: 1000000,
		Adaptive: true,
	}
}

// FastOptions returns options optimized for speed over accuracy, useful for
// the inner loop of parameter searches where many candidate simulations run.
func FastOptions() *Options {
	return &Options{
		Dt:       0.1,
		Dtmin:    1e-4,
		Dtmax:    1.0,
		Abstol:   1e-2,
		Reltol:   1e-2,
		Maxiters: 1000,
		Adaptive: true,
	}
}

// EpidemicOptions returns options tuned for compartmental models (SIR,
// SIR-X): mass-action dynamics over tens to hundreds of days.
func EpidemicOptions() *Options {
	return &Options{
		Dt:       0.01,
		Dtmin:    1e-6,
		Dtmax:    0.5,
		Abstol:   1e-6,
		Reltol:   1e-4,
		Maxiters: 200000,
		Adaptive: true,
	}
}

// Method represents an explicit Runge-Kutta method as a Butcher tableau.
type Method struct {
	Name  string
	Order int
	C     []float64   // Runge-Kutta nodes
	A     [][]float64 // Runge-Kutta matrix
	B     []float64   // Solution weights
	Bhat  []float64   // Error estimate weights
}

// Solve integrates the problem from Tspan[0] to Tspan[1].
//
// Compartment values are population-like quantities: if any state component
// drops below a small negative tolerance (scaled to the initial mass) the
// run is aborted with ErrIntegrationFailure rather than continuing into a
// meaningless region.
func Solve(prob *Problem, method *Method, opts *Options) (*Solution, error) {
	if method == nil {
		method = Tsit5()
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	t0 := prob.Tspan[0]
	tf := prob.Tspan[1]
	if tf < t0 {
		return nil, fmt.Errorf("tspan [%g, %g] not increasing: %w", t0, tf, ErrIntegrationFailure)
	}

	f := prob.F
	n := len(prob.U0)
	numStages := len(method.C)

	mass := 0.0
	for _, v := range prob.U0 {
		mass += math.Abs(v)
	}
	negtol := 10*opts.Abstol + 1e-9*mass

	tOut := []float64{t0}
	uOut := [][]float64{append([]float64(nil), prob.U0...)}
	tcur := t0
	ucur := append([]float64(nil), prob.U0...)
	dtcur := opts.Dt
	nsteps := 0

	k := make([][]float64, numStages)
	for i := range k {
		k[i] = make([]float64, n)
	}
	ustage := make([]float64, n)

	for tcur < tf {
		if nsteps >= opts.Maxiters {
			return nil, fmt.Errorf("step budget %d exhausted at t=%g: %w", opts.Maxiters, tcur, ErrIntegrationFailure)
		}
		// Don't overshoot the final time.
		if tcur+dtcur > tf {
			dtcur = tf - tcur
		}

		// Runge-Kutta stages.
		f(tcur, ucur, k[0])
		for stage := 1; stage < numStages; stage++ {
			tstage := tcur + method.C[stage]*dtcur
			copy(ustage, ucur)
			for j := 0; j < stage; j++ {
				aj := 0.0
				if len(method.A) > stage && len(method.A[stage]) > j {
					aj = method.A[stage][j]
				}
				if aj != 0 {
					scale := dtcur * aj
					for i := 0; i < n; i++ {
						ustage[i] += scale * k[j][i]
					}
				}
			}
			f(tstage, ustage, k[stage])
		}

		// Candidate solution at the next step.
		unext := append([]float64(nil), ucur...)
		for j := 0; j < len(method.B); j++ {
			if method.B[j] != 0 {
				scale := dtcur * method.B[j]
				for i := 0; i < n; i++ {
					unext[i] += scale * k[j][i]
				}
			}
		}

		// Embedded error estimate for adaptive stepping.
		err := 0.0
		if opts.Adaptive {
			for i := 0; i < n; i++ {
				errest := 0.0
				for j := 0; j < len(method.Bhat); j++ {
					errest += dtcur * method.Bhat[j] * k[j][i]
				}
				scale := opts.Abstol + opts.Reltol*math.Max(math.Abs(ucur[i]), math.Abs(unext[i]))
				if scale == 0 {
					scale = opts.Abstol
				}
				if val := math.Abs(errest) / scale; val > err {
					err = val
				}
			}
		}

		if !opts.Adaptive || err <= 1.0 || dtcur <= opts.Dtmin {
			// Accept step.
			for i := 0; i < n; i++ {
				if unext[i] < -negtol {
					return nil, fmt.Errorf("state %s went negative (%g) at t=%g: %w",
						labelOr(prob.Labels, i), unext[i], tcur+dtcur, ErrIntegrationFailure)
				}
				if math.IsNaN(unext[i]) || math.IsInf(unext[i], 0) {
					return nil, fmt.Errorf("state %s diverged at t=%g: %w",
						labelOr(prob.Labels, i), tcur+dtcur, ErrIntegrationFailure)
				}
			}
			tcur += dtcur
			ucur = unext
			tOut = append(tOut, tcur)
			uOut = append(uOut, append([]float64(nil), ucur...))
			nsteps++

			if opts.Adaptive && err > 0 {
				factor := 0.9 * math.Pow(1.0/err, 1.0/float64(method.Order+1))
				factor = math.Min(factor, 5.0)
				dtcur = math.Min(opts.Dtmax, math.Max(opts.Dtmin, dtcur*factor))
			}
		} else {
			// Reject step and shrink.
			factor := 0.9 * math.Pow(1.0/err, 1.0/float64(method.Order+1))
			factor = math.Max(factor, 0.1)
			dtcur = math.Max(opts.Dtmin, dtcur*factor)
		}
	}

	return &Solution{T: tOut, U: uOut, Labels: prob.Labels}, nil
}

func labelOr(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return fmt.Sprintf("u[%d]", i)
}

// UniformTimes generates n uniformly spaced time points over [t0, tf].
func UniformTimes(t0, tf float64, n int) []float64 {
	times := make([]float64, n)
	if n == 1 {
		times[0] = t0
		return times
	}
	dt := (tf - t0) / float64(n-1)
	for i := 0; i < n; i++ {
		times[i] = t0 + float64(i)*dt
	}
	return times
}
