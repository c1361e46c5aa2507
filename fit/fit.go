package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/epifit-xyz/go-epifit/model"
	"github.com/epifit-xyz/go-epifit/solver"
)

// ErrFitDidNotConverge is returned when the optimizer exhausts its
// iteration budget without the simplex (or step size) collapsing below
// tolerance. The model's parameters are left unchanged.
var ErrFitDidNotConverge = errors.New("fit did not converge")

// Loss returned for candidate vectors that violate the non-negativity
// constraint on rate parameters or fail to integrate; large enough to steer
// the simplex back but finite so ordering stays meaningful.
const infeasibleLoss = 1e18

// Options configures the fitting process.
type Options struct {
	MaxIters      int     // Optimizer iteration budget
	Tolerance     float64 // Convergence tolerance on the objective spread
	Method        string  // "nelder-mead" (default) or "coordinate-descent"
	StepSize      float64 // Initial step size for coordinate descent
	SolverMethod  *solver.Method
	SolverOptions *solver.Options
}

// DefaultOptions returns the default fitting options.
func DefaultOptions() *Options {
	return &Options{
		MaxIters:      2000,
		Tolerance:     1e-8,
		Method:        "nelder-mead",
		StepSize:      0.01,
		SolverMethod:  solver.Tsit5(),
		SolverOptions: solver.EpidemicOptions(),
	}
}

// Result contains the outcome of a fit.
type Result struct {
	Params      []float64 // Full fitted parameter vector
	InitialLoss float64   // Sum of squared residuals before optimization
	FinalLoss   float64   // Sum of squared residuals after optimization
	Iterations  int       // Optimizer iterations performed
	Converged   bool
}

// Fit estimates the free entries of the model's parameter vector (those
// marked true in mask) by minimizing the unweighted sum of squared
// residuals between the observable and the observation series, in raw
// observation units. Fixed entries are held bit-identical to their current
// values.
//
// On success the fitted vector becomes the model's current parameters and
// the model's trajectory is replaced with the fitted run over the
// observation range. On failure the model is untouched and no partial
// result is returned.
func Fit(m *model.Model, data *Dataset, obs Observable, mask []bool, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	schema := m.Schema()
	if len(m.Params()) != schema.ParamCount() {
		return nil, fmt.Errorf("fit before Configure: %w", model.ErrParametersNotSet)
	}
	if len(mask) != schema.ParamCount() {
		return nil, fmt.Errorf("mask has %d entries for %d parameters: %w",
			len(mask), schema.ParamCount(), model.ErrInvalidParameterShape)
	}
	if err := obs.validFor(schema.CompartmentCount()); err != nil {
		return nil, err
	}

	free := make([]int, 0, len(mask))
	for i, f := range mask {
		if f {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return nil, fmt.Errorf("no free parameters in mask: %w", model.ErrInvalidParameterShape)
	}
	if len(free) > data.Len() {
		return nil, fmt.Errorf("%d free parameters but only %d observations: %w",
			len(free), data.Len(), ErrInsufficientData)
	}

	full := m.Params()
	tspan := [2]float64{data.Times[0], data.Times[data.Len()-1]}

	// The optimizer searches the reduced space of free parameters; embed
	// projects a reduced vector back into the full parameter vector.
	embed := func(x []float64) []float64 {
		out := append([]float64(nil), full...)
		for j, idx := range free {
			out[idx] = x[j]
		}
		return out
	}

	sim := m.Clone().WithSolver(opts.SolverMethod, opts.SolverOptions)
	objective := func(x []float64) float64 {
		for _, v := range x {
			if v < 0 {
				// Quadratic pull back toward the feasible region.
				worst := 0.0
				for _, w := range x {
					if w < 0 && -w > worst {
						worst = -w
					}
				}
				return infeasibleLoss * (1 + worst)
			}
		}
		sol, err := sim.Simulate(embed(x), tspan)
		if err != nil {
			return infeasibleLoss
		}
		predicted := obs.Series(sol, data.Times)
		sse := 0.0
		for i, p := range predicted {
			diff := p - data.Values[i]
			sse += diff * diff
		}
		return sse
	}

	x0 := make([]float64, len(free))
	for j, idx := range free {
		x0[j] = full[idx]
	}
	initialLoss := objective(x0)

	var xbest []float64
	var finalLoss float64
	var iters int
	var converged bool

	switch opts.Method {
	case "", "nelder-mead":
		xbest, finalLoss, iters, converged = nelderMead(objective, x0, opts)
	case "coordinate-descent":
		xbest, finalLoss, iters, converged = coordinateDescent(objective, x0, opts)
	default:
		return nil, fmt.Errorf("unknown optimization method: %s", opts.Method)
	}

	if !converged || finalLoss >= infeasibleLoss {
		return nil, fmt.Errorf("%s stopped after %d iterations (loss %g): %w",
			opts.Method, iters, finalLoss, ErrFitDidNotConverge)
	}

	fitted := embed(xbest)
	finalSol, err := sim.Simulate(fitted, tspan)
	if err != nil {
		return nil, fmt.Errorf("fitted parameters do not integrate: %w", err)
	}
	if err := m.Commit(fitted, finalSol, data.Times); err != nil {
		return nil, err
	}

	return &Result{
		Params:      fitted,
		InitialLoss: initialLoss,
		FinalLoss:   finalLoss,
		Iterations:  iters,
		Converged:   converged,
	}, nil
}

// nelderMead implements the Nelder-Mead simplex algorithm on the reduced
// parameter space.
func nelderMead(f func([]float64) float64, x0 []float64, opts *Options) ([]float64, float64, int, bool) {
	n := len(x0)

	// Standard reflection/expansion/contraction/shrink coefficients.
	alpha := 1.0
	gamma := 2.0
	rho := 0.5
	sigma := 0.5

	simplex := make([][]float64, n+1)
	values := make([]float64, n+1)

	simplex[0] = append([]float64(nil), x0...)
	values[0] = f(simplex[0])

	// Initial simplex: perturb each coordinate.
	for i := 0; i < n; i++ {
		simplex[i+1] = append([]float64(nil), x0...)
		simplex[i+1][i] += 0.05 * (1.0 + math.Abs(x0[i]))
		values[i+1] = f(simplex[i+1])
	}

	for iter := 0; iter < opts.MaxIters; iter++ {
		sortSimplex(simplex, values)

		if values[n]-values[0] < opts.Tolerance {
			return simplex[0], values[0], iter, true
		}

		// Centroid of the best n points.
		centroid := make([]float64, n)
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += simplex[j][i]
			}
			centroid[i] = sum / float64(n)
		}

		// Reflection.
		reflected := make([]float64, n)
		for i := 0; i < n; i++ {
			reflected[i] = centroid[i] + alpha*(centroid[i]-simplex[n][i])
		}
		reflectedVal := f(reflected)

		if values[0] <= reflectedVal && reflectedVal < values[n-1] {
			simplex[n] = reflected
			values[n] = reflectedVal
			continue
		}

		// Expansion.
		if reflectedVal < values[0] {
			expanded := make([]float64, n)
			for i := 0; i < n; i++ {
				expanded[i] = centroid[i] + gamma*(reflected[i]-centroid[i])
			}
			expandedVal := f(expanded)

			if expandedVal < reflectedVal {
				simplex[n] = expanded
				values[n] = expandedVal
			} else {
				simplex[n] = reflected
				values[n] = reflectedVal
			}
			continue
		}

		// Contraction.
		contracted := make([]float64, n)
		if reflectedVal < values[n] {
			for i := 0; i < n; i++ {
				contracted[i] = centroid[i] + rho*(reflected[i]-centroid[i])
			}
		} else {
			for i := 0; i < n; i++ {
				contracted[i] = centroid[i] + rho*(simplex[n][i]-centroid[i])
			}
		}
		contractedVal := f(contracted)

		if contractedVal < math.Min(reflectedVal, values[n]) {
			simplex[n] = contracted
			values[n] = contractedVal
			continue
		}

		// Shrink toward the best point.
		for i := 1; i <= n; i++ {
			for j := 0; j < n; j++ {
				simplex[i][j] = simplex[0][j] + sigma*(simplex[i][j]-simplex[0][j])
			}
			values[i] = f(simplex[i])
		}
	}

	sortSimplex(simplex, values)
	return simplex[0], values[0], opts.MaxIters, false
}

// coordinateDescent implements simple coordinate descent with step halving.
func coordinateDescent(f func([]float64) float64, x0 []float64, opts *Options) ([]float64, float64, int, bool) {
	x := append([]float64(nil), x0...)
	bestLoss := f(x)
	stepSize := opts.StepSize

	for iter := 0; iter < opts.MaxIters; iter++ {
		improved := false

		for i := 0; i < len(x); i++ {
			oldVal := x[i]

			x[i] = oldVal + stepSize
			posLoss := f(x)

			x[i] = oldVal - stepSize
			negLoss := f(x)

			if posLoss < bestLoss {
				x[i] = oldVal + stepSize
				bestLoss = posLoss
				improved = true
			} else if negLoss < bestLoss {
				x[i] = oldVal - stepSize
				bestLoss = negLoss
				improved = true
			} else {
				x[i] = oldVal
			}
		}

		if !improved {
			stepSize *= 0.5
			if stepSize < 1e-10 {
				return x, bestLoss, iter, true
			}
		}

		if bestLoss < opts.Tolerance {
			return x, bestLoss, iter, true
		}
	}

	return x, bestLoss, opts.MaxIters, false
}

// sortSimplex sorts the simplex points by their function values.
// Insertion sort; the simplex never has more than a handful of points.
func sortSimplex(simplex [][]float64, values []float64) {
	n := len(values)
	for i := 1; i < n; i++ {
		val := values[i]
		point := simplex[i]
		j := i - 1
		for j >= 0 && values[j] > val {
			values[j+1] = values[j]
			simplex[j+1] = simplex[j]
			j--
		}
		values[j+1] = val
		simplex[j+1] = point
	}
}
