package crossval

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/epifit-xyz/go-epifit/fit"
	"github.com/epifit-xyz/go-epifit/model"
)

// ErrNoForecast is returned by ForecastBand when the final full-data fit
// failed and no point forecast is available.
var ErrNoForecast = errors.New("no forecast available")

// Result aggregates the per-fold outcomes of a cross-validation run. It is
// a read-only reporting view: every method is an arithmetic reduction over
// stored fold data.
type Result struct {
	Lags      int
	MinSample int
	Folds     []*Fold

	// FinalParams is the full-data fit reported on the caller's model,
	// nil when that fit failed.
	FinalParams []float64

	// Point forecast of the final fitted model, lags steps beyond the
	// last observation (times extrapolated with the mean observed step).
	ForecastTimes  []float64
	ForecastValues []float64
}

// OKFolds returns the folds that completed without numerical failure.
func (r *Result) OKFolds() []*Fold {
	out := make([]*Fold, 0, len(r.Folds))
	for _, f := range r.Folds {
		if f.Err == nil {
			out = append(out, f)
		}
	}
	return out
}

// MSEAvg returns the mean squared forecast error per lag, averaged across
// successful folds.
func (r *Result) MSEAvg() []float64 {
	out := make([]float64, r.Lags)
	for lag := 0; lag < r.Lags; lag++ {
		errs := r.lagErrors(lag)
		if len(errs) > 0 {
			out[lag] = stat.Mean(errs, nil)
		} else {
			out[lag] = math.NaN()
		}
	}
	return out
}

// MSEList returns the raw per-fold squared error sequences (successful
// folds only), one row per fold, one column per lag.
func (r *Result) MSEList() [][]float64 {
	folds := r.OKFolds()
	out := make([][]float64, len(folds))
	for i, f := range folds {
		out[i] = append([]float64(nil), f.SqErr...)
	}
	return out
}

// ParamList returns the sequence of fitted parameter vectors across
// successful folds, in fold order. Scanning it shows parameter stability as
// the training window grows.
func (r *Result) ParamList() [][]float64 {
	folds := r.OKFolds()
	out := make([][]float64, len(folds))
	for i, f := range folds {
		out[i] = append([]float64(nil), f.Params...)
	}
	return out
}

// LagSummary is one row of the per-lag error table.
type LagSummary struct {
	Lag   int     // forecast horizon in observation steps, 1-based
	MSE   float64 // mean squared error across folds
	Std   float64 // standard deviation of the squared errors
	Folds int     // number of folds contributing
}

// Summary produces the per-lag error table over successful folds.
func (r *Result) Summary() []LagSummary {
	out := make([]LagSummary, r.Lags)
	for lag := 0; lag < r.Lags; lag++ {
		errs := r.lagErrors(lag)
		row := LagSummary{Lag: lag + 1, Folds: len(errs)}
		if len(errs) > 0 {
			row.MSE = stat.Mean(errs, nil)
		}
		if len(errs) > 1 {
			row.Std = stat.StdDev(errs, nil)
		}
		out[lag] = row
	}
	return out
}

func (r *Result) lagErrors(lag int) []float64 {
	errs := make([]float64, 0, len(r.Folds))
	for _, f := range r.Folds {
		if f.Err == nil && lag < len(f.SqErr) {
			errs = append(errs, f.SqErr[lag])
		}
	}
	return errs
}

// BandPoint is one step of a forecast interval band.
type BandPoint struct {
	Time     float64
	Estimate float64
	Lower    float64
	Upper    float64
}

// ForecastBand reconstructs a ±2σ interval band around the final model's
// point forecast for horizons 1..horizon, where σ at each lag is the root
// mean squared cross-validation error at that lag (Gaussian residual
// assumption). The lower bound is clamped at zero since the observable is
// a count.
func (r *Result) ForecastBand(horizon int) ([]BandPoint, error) {
	if len(r.ForecastValues) == 0 {
		return nil, ErrNoForecast
	}
	if horizon < 1 || horizon > r.Lags {
		return nil, fmt.Errorf("horizon %d out of range [1,%d]: %w", horizon, r.Lags, ErrInvalidWindow)
	}

	mse := r.MSEAvg()
	out := make([]BandPoint, horizon)
	for lag := 0; lag < horizon; lag++ {
		sigma := math.Sqrt(mse[lag])
		est := r.ForecastValues[lag]
		out[lag] = BandPoint{
			Time:     r.ForecastTimes[lag],
			Estimate: est,
			Lower:    math.Max(0, est-2*sigma),
			Upper:    est + 2*sigma,
		}
	}
	return out, nil
}

// attachForecast computes the final model's point forecast lags steps past
// the end of the observation series.
func (r *Result) attachForecast(m *model.Model, data *fit.Dataset, obs fit.Observable) {
	n := data.Len()
	step := (data.Times[n-1] - data.Times[0]) / float64(n-1)

	times := make([]float64, r.Lags)
	for i := range times {
		times[i] = data.Times[n-1] + float64(i+1)*step
	}

	sol, err := m.Simulate(r.FinalParams, [2]float64{data.Times[0], times[len(times)-1]})
	if err != nil {
		return
	}
	r.ForecastTimes = times
	r.ForecastValues = obs.Series(sol, times)
}
