package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/epifit-xyz/go-epifit/crossval"
	"github.com/epifit-xyz/go-epifit/plotter"
	"github.com/epifit-xyz/go-epifit/store"
)

var (
	cvScenario string
	cvDB       string
	cvSVG      string
)

var crossvalCmd = &cobra.Command{
	Use:   "crossval",
	Short: "Score forecast skill with rolling-origin cross-validation",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, baseDir, err := loadScenario(cvScenario)
		if err != nil {
			return err
		}
		if s.Crossval == nil {
			return fmt.Errorf("scenario %s has no crossval section", cvScenario)
		}

		m, err := s.BuildModel()
		if err != nil {
			return err
		}
		data, err := s.Dataset(baseDir)
		if err != nil {
			return err
		}

		v := crossval.New(m, data, s.Observable(), s.Mask()).
			WithFitOptions(s.FitOptions())
		if s.Crossval.Workers > 0 {
			v = v.WithWorkers(s.Crossval.Workers)
		}

		res, err := v.Run(s.Crossval.Lags, s.Crossval.MinSample)
		if err != nil {
			return err
		}

		ok := len(res.OKFolds())
		fmt.Printf("%d folds (%d ok)\n\n", len(res.Folds), ok)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "lag\tmse\tstd\tfolds")
		for _, row := range res.Summary() {
			fmt.Fprintf(w, "%d\t%.4g\t%.4g\t%d\n", row.Lag, row.MSE, row.Std, row.Folds)
		}
		w.Flush()

		if res.FinalParams != nil {
			fmt.Printf("\nfinal params: %v\n", res.FinalParams)
		}

		if cvDB != "" {
			st, err := store.Open(cvDB)
			if err != nil {
				return err
			}
			defer st.Close()
			id, err := st.SaveCrossval(m.Schema().Name, data.Len(), res)
			if err != nil {
				return err
			}
			fmt.Printf("saved run %s\n", id)
		}

		if cvSVG != "" {
			if err := writeBandPlot(res, data.Times, data.Values, s.Observations.Compartment, cvSVG); err != nil {
				return err
			}
			logrus.Infof("forecast plot written to %s", cvSVG)
		}
		return nil
	},
}

// writeBandPlot draws the observed series, the point forecast, and the
// ±2σ interval band.
func writeBandPlot(res *crossval.Result, times, values []float64, compartment, path string) error {
	band, err := res.ForecastBand(res.Lags)
	if err != nil {
		return err
	}

	bx := make([]float64, len(band))
	upper := make([]float64, len(band))
	lower := make([]float64, len(band))
	est := make([]float64, len(band))
	for i, b := range band {
		bx[i] = b.Time
		upper[i] = b.Upper
		lower[i] = b.Lower
		est[i] = b.Estimate
	}

	p := plotter.NewSVGPlotter(800, 600).
		SetTitle("Forecast of " + compartment).
		SetYLabel(compartment)
	p.AddBand(bx, upper, lower, "95% interval", "#377eb8")
	p.AddSeries(times, values, "observed", "#333333")
	p.AddSeries(bx, est, "forecast", "#377eb8")
	return p.WriteFile(path)
}

func init() {
	crossvalCmd.Flags().StringVar(&cvScenario, "scenario", "", "Scenario YAML file (required)")
	crossvalCmd.Flags().StringVar(&cvDB, "db", "", "Persist the run to this SQLite database")
	crossvalCmd.Flags().StringVar(&cvSVG, "svg", "", "Write a forecast band plot to this path")
	crossvalCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(crossvalCmd)
}
