package results

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// conservationTolerance is the relative deviation beyond which the run is
// flagged as non-conserving.
const conservationTolerance = 1e-6

// Analyze computes insights from a built result: population conservation,
// per-compartment peaks and summary statistics. The analysis is attached to
// the result and also returned.
func Analyze(r *Results) *Analysis {
	ts := r.Results.Timeseries
	analysis := &Analysis{
		Statistics: make(map[string]Stat, len(ts.Compartments)),
	}

	for name, values := range ts.Compartments {
		if len(values) == 0 {
			continue
		}
		peakIdx := 0
		min, max := values[0], values[0]
		for i, v := range values {
			if v > max {
				max = v
				peakIdx = i
			}
			if v < min {
				min = v
			}
		}
		analysis.Peaks = append(analysis.Peaks, Peak{
			Compartment: name,
			Time:        ts.Time[peakIdx],
			Value:       max,
		})
		analysis.Statistics[name] = Stat{
			Min:  min,
			Max:  max,
			Mean: stat.Mean(values, nil),
			Std:  stat.StdDev(values, nil),
		}
	}

	analysis.Conservation = checkConservation(ts)
	r.Analysis = analysis
	return analysis
}

// checkConservation verifies that the compartment sum stays at its initial
// value across the trajectory.
func checkConservation(ts Timeseries) *Conservation {
	n := len(ts.Time)
	if n == 0 {
		return nil
	}
	initial := 0.0
	for _, values := range ts.Compartments {
		initial += values[0]
	}
	if initial == 0 {
		return nil
	}

	maxDev := 0.0
	for i := 0; i < n; i++ {
		sum := 0.0
		for _, values := range ts.Compartments {
			sum += values[i]
		}
		if dev := math.Abs(sum-initial) / initial; dev > maxDev {
			maxDev = dev
		}
	}
	return &Conservation{
		Initial:      initial,
		MaxDeviation: maxDev,
		Conserved:    maxDev <= conservationTolerance,
	}
}
