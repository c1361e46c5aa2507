// Package crossval implements rolling-origin block cross-validation for
// compartment model fits: repeatedly refit on expanding prefixes of the
// observation series and score short-horizon forecasts against held-out
// points.
package crossval

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/epifit-xyz/go-epifit/fit"
	"github.com/epifit-xyz/go-epifit/model"
)

// ErrInvalidWindow is returned when minSample >= len(observations) - lags,
// i.e. no folds are possible.
var ErrInvalidWindow = errors.New("invalid cross-validation window")

// Fold holds one fold's outcome: the parameters fitted on the training
// prefix and the forecast scored against held-out observations. A fold that
// failed numerically carries its error in Err and is skipped by the
// aggregations; one fold's failure never invalidates the others.
type Fold struct {
	Index    int
	TrainEnd int       // number of observations in the training prefix
	Params   []float64 // fitted parameter vector
	Times    []float64 // forecast times, one per lag
	Forecast []float64 // predicted observable, one per lag
	Actual   []float64 // held-out observed values, one per lag
	SqErr    []float64 // squared forecast error, one per lag
	Err      error
}

// Validator runs block cross-validation for one model/dataset pairing.
type Validator struct {
	base    *model.Model
	data    *fit.Dataset
	obs     fit.Observable
	mask    []bool
	opts    *fit.Options
	workers int
	log     *logrus.Entry
}

// New creates a validator. The caller's model supplies the variant, the
// initial condition and the starting parameter guess for every fold; it is
// only mutated by the final full-data fit reported at the end of Run.
func New(m *model.Model, data *fit.Dataset, obs fit.Observable, mask []bool) *Validator {
	return &Validator{
		base:    m,
		data:    data,
		obs:     obs,
		mask:    mask,
		opts:    fit.DefaultOptions(),
		workers: runtime.NumCPU(),
		log:     logrus.WithField("component", "crossval"),
	}
}

// WithFitOptions overrides the per-fold fitting options.
func (v *Validator) WithFitOptions(opts *fit.Options) *Validator {
	if opts != nil {
		v.opts = opts
	}
	return v
}

// WithWorkers bounds the number of folds fitted concurrently. Values below
// 1 restore the default (one worker per CPU).
func (v *Validator) WithWorkers(n int) *Validator {
	if n < 1 {
		n = runtime.NumCPU()
	}
	v.workers = n
	return v
}

// Run executes the cross-validation: for every training size k from
// minSample through len(observations)-lags, fit a fresh model instance on
// the first k observations, integrate forward, and score the forecast at
// each lag 1..lags against the held-out series. Folds are independent and
// run concurrently, each on its own model clone.
func (v *Validator) Run(lags, minSample int) (*Result, error) {
	n := v.data.Len()
	if lags < 1 {
		return nil, fmt.Errorf("lags must be >= 1, got %d: %w", lags, ErrInvalidWindow)
	}
	if minSample < 1 {
		return nil, fmt.Errorf("minSample must be >= 1, got %d: %w", minSample, ErrInvalidWindow)
	}
	if minSample >= n-lags {
		return nil, fmt.Errorf("minSample %d >= len(observations) %d - lags %d, no folds possible: %w",
			minSample, n, lags, ErrInvalidWindow)
	}

	numFolds := n - lags - minSample + 1
	folds := make([]*Fold, numFolds)

	v.log.WithFields(logrus.Fields{
		"folds":      numFolds,
		"lags":       lags,
		"min_sample": minSample,
		"workers":    v.workers,
	}).Debug("starting block cross-validation")

	var wg sync.WaitGroup
	sem := make(chan struct{}, v.workers)
	for i := 0; i < numFolds; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			folds[idx] = v.runFold(idx, minSample+idx, lags)
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, f := range folds {
		if f.Err != nil {
			failed++
			v.log.WithField("fold", f.Index).WithError(f.Err).Debug("fold failed")
		}
	}
	if failed > 0 {
		v.log.WithFields(logrus.Fields{"failed": failed, "total": numFolds}).
			Warn("some cross-validation folds failed")
	}

	res := &Result{
		Lags:      lags,
		MinSample: minSample,
		Folds:     folds,
	}

	// Final full-data fit, reported on the caller's model.
	final, err := fit.Fit(v.base, v.data, v.obs, v.mask, v.opts)
	if err != nil {
		v.log.WithError(err).Warn("final full-data fit failed")
	} else {
		res.FinalParams = final.Params
		res.attachForecast(v.base, v.data, v.obs)
	}

	return res, nil
}

// runFold fits on the prefix [0:k) and scores forecasts at lags 1..lags.
func (v *Validator) runFold(idx, k, lags int) *Fold {
	f := &Fold{Index: idx, TrainEnd: k}

	train := v.data.Prefix(k)
	m := v.base.Clone()
	res, err := fit.Fit(m, train, v.obs, v.mask, v.opts)
	if err != nil {
		f.Err = err
		return f
	}
	f.Params = res.Params

	// Integrate through the forecast horizon, observation times
	// k-1+1 .. k-1+lags. Folds only exist where the full horizon is in
	// range.
	grid := v.data.Times[:k+lags:k+lags]
	sol, err := m.Simulate(res.Params, [2]float64{v.data.Times[0], grid[len(grid)-1]})
	if err != nil {
		f.Err = fmt.Errorf("fold %d forecast: %w", idx, err)
		return f
	}
	predicted := v.obs.Series(sol, grid)

	f.Times = make([]float64, lags)
	f.Forecast = make([]float64, lags)
	f.Actual = make([]float64, lags)
	f.SqErr = make([]float64, lags)
	for lag := 1; lag <= lags; lag++ {
		i := k - 1 + lag
		f.Times[lag-1] = v.data.Times[i]
		f.Forecast[lag-1] = predicted[i]
		f.Actual[lag-1] = v.data.Values[i]
		diff := predicted[i] - v.data.Values[i]
		f.SqErr[lag-1] = diff * diff
	}
	return f
}
