package crossval

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epifit-xyz/go-epifit/fit"
	"github.com/epifit-xyz/go-epifit/model"
	"github.com/epifit-xyz/go-epifit/solver"
)

// syntheticSIR builds a dataset by integrating a SIR model with the given
// parameters and sampling the infected compartment, noise-free.
func syntheticSIR(t *testing.T, params, initial []float64, nobs int, tf float64) (*model.Model, *fit.Dataset) {
	t.Helper()
	m := model.New(model.SIR)
	require.NoError(t, m.Configure(params, initial))

	times := solver.UniformTimes(0, tf, nobs)
	sol, err := m.Simulate(params, [2]float64{0, tf})
	require.NoError(t, err)
	values := fit.Compartment(1).Series(sol, times)

	data, err := fit.NewDataset(times, values)
	require.NoError(t, err)
	return m, data
}

func TestRunInvalidWindow(t *testing.T) {
	m, data := syntheticSIR(t, []float64{0.5, 0.12}, []float64{990, 10, 0}, 10, 18)
	v := New(m, data, fit.Compartment(1), []bool{true, true})

	// minSample >= len - lags: no folds possible.
	_, err := v.Run(3, 7)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = v.Run(3, 9)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = v.Run(0, 3)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestRunFoldCount(t *testing.T) {
	// Observations generated from the model itself and the search started
	// at the true parameters: every fold converges immediately.
	m, data := syntheticSIR(t, []float64{0.5, 0.12}, []float64{990, 10, 0}, 12, 22)
	lags, minSample := 2, 6

	v := New(m, data, fit.Compartment(1), []bool{true, true}).WithWorkers(2)
	res, err := v.Run(lags, minSample)
	require.NoError(t, err)

	wantFolds := data.Len() - minSample - lags + 1
	assert.Len(t, res.Folds, wantFolds)
	for _, f := range res.Folds {
		require.NoError(t, f.Err, "fold %d", f.Index)
		assert.Len(t, f.SqErr, lags)
		assert.Equal(t, minSample+f.Index, f.TrainEnd)
	}

	// Noise-free data fit from the truth: forecast errors are tiny.
	for _, mse := range res.MSEAvg() {
		assert.Less(t, mse, 1.0)
	}
	assert.Len(t, res.MSEList(), wantFolds)
	assert.Len(t, res.ParamList(), wantFolds)
	require.NotNil(t, res.FinalParams)
	assert.InDelta(t, 0.5, res.FinalParams[0], 0.05)

	// The final full-data fit is reported on the caller's model.
	assert.InDelta(t, res.FinalParams[0], m.Params()[0], 1e-12)
}

func TestSummaryAndBandArithmetic(t *testing.T) {
	// Hand-built result: aggregation is pure arithmetic over fold data.
	res := &Result{
		Lags: 2,
		Folds: []*Fold{
			{Index: 0, SqErr: []float64{4, 16}},
			{Index: 1, SqErr: []float64{4, 16}},
			{Index: 2, Err: errors.New("numerical failure")},
		},
		FinalParams:    []float64{0.5, 0.1},
		ForecastTimes:  []float64{10, 11},
		ForecastValues: []float64{100, 120},
	}

	summary := res.Summary()
	require.Len(t, summary, 2)
	assert.Equal(t, 1, summary[0].Lag)
	assert.Equal(t, 2, summary[0].Folds) // failed fold excluded
	assert.InDelta(t, 4.0, summary[0].MSE, 1e-12)
	assert.InDelta(t, 16.0, summary[1].MSE, 1e-12)
	assert.InDelta(t, 0.0, summary[0].Std, 1e-12)

	band, err := res.ForecastBand(2)
	require.NoError(t, err)
	require.Len(t, band, 2)
	// sigma = sqrt(4)=2 at lag 1, sqrt(16)=4 at lag 2.
	assert.InDelta(t, 100-4, band[0].Lower, 1e-12)
	assert.InDelta(t, 100+4, band[0].Upper, 1e-12)
	assert.InDelta(t, 120-8, band[1].Lower, 1e-12)
	assert.InDelta(t, 120+8, band[1].Upper, 1e-12)

	_, err = res.ForecastBand(3)
	assert.Error(t, err)

	empty := &Result{Lags: 2}
	_, err = empty.ForecastBand(1)
	assert.ErrorIs(t, err, ErrNoForecast)
}

func TestBandLowerClampedAtZero(t *testing.T) {
	res := &Result{
		Lags:           1,
		Folds:          []*Fold{{Index: 0, SqErr: []float64{10000}}},
		FinalParams:    []float64{0.5, 0.1},
		ForecastTimes:  []float64{5},
		ForecastValues: []float64{10},
	}
	band, err := res.ForecastBand(1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, band[0].Lower)
	assert.True(t, math.Abs(band[0].Upper-210) < 1e-9)
}

func TestFoldFailureDoesNotAbort(t *testing.T) {
	res := &Result{
		Lags: 1,
		Folds: []*Fold{
			{Index: 0, SqErr: []float64{1}},
			{Index: 1, Err: errors.New("fit did not converge")},
			{Index: 2, SqErr: []float64{3}},
		},
	}
	assert.Len(t, res.OKFolds(), 2)
	assert.InDelta(t, 2.0, res.MSEAvg()[0], 1e-12)
}
