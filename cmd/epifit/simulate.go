package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/epifit-xyz/go-epifit/plotter"
	"github.com/epifit-xyz/go-epifit/results"
)

var (
	simScenario string
	simOutput   string
	simSVG      string
	simASCII    bool
	simSample   int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Integrate a model forward and report the trajectory",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadScenario(simScenario)
		if err != nil {
			return err
		}
		if s.Simulate == nil {
			return fmt.Errorf("scenario %s has no simulate section", simScenario)
		}

		m, err := s.BuildModel()
		if err != nil {
			return err
		}

		logrus.Infof("integrating %s over [%g, %g] with %s",
			m.Schema().Name, s.Simulate.Start, s.Simulate.End, s.SolverMethod().Name)

		start := time.Now()
		traj, err := m.Integrate(s.Simulate.Start, s.Simulate.End, s.Simulate.Points)
		if err != nil {
			return err
		}
		elapsed := time.Since(start).Seconds()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "compartment\tfinal")
		final := traj.Final()
		for i, name := range traj.Labels {
			fmt.Fprintf(w, "%s\t%.2f\n", name, final[i])
		}
		w.Flush()

		if d, err := m.DerivedProperties(); err == nil {
			fmt.Printf("\nT_eff=%.4f  R0_eff=%.4f  P=%.4f  Q=%.4f\n", d.TEff, d.R0Eff, d.P, d.Q)
		}

		if simASCII {
			for i, name := range traj.Labels {
				fmt.Println()
				fmt.Println(asciigraph.Plot(traj.Compartment(i),
					asciigraph.Height(10),
					asciigraph.Width(72),
					asciigraph.Caption(name),
				))
			}
		}

		if simOutput != "" {
			r := results.NewBuilder().
				WithModel(m).
				WithSimulation(m, [2]float64{s.Simulate.Start, s.Simulate.End}, s.SolverOptions()).
				WithTrajectory(traj, s.SolverMethod().Name, elapsed, simSample).
				Build()
			if err := results.WriteJSON(r, simOutput); err != nil {
				return err
			}
			logrus.Infof("results written to %s", simOutput)
		}

		if simSVG != "" {
			p := plotter.NewSVGPlotter(800, 600).SetTitle(m.Schema().Name + " trajectory")
			for i, name := range traj.Labels {
				p.AddSeries(traj.T, traj.Compartment(i), name, "")
			}
			if err := p.WriteFile(simSVG); err != nil {
				return err
			}
			logrus.Infof("plot written to %s", simSVG)
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "", "Scenario YAML file (required)")
	simulateCmd.Flags().StringVar(&simOutput, "output", "", "Write results JSON to this path")
	simulateCmd.Flags().StringVar(&simSVG, "svg", "", "Write an SVG trajectory plot to this path")
	simulateCmd.Flags().BoolVar(&simASCII, "ascii", false, "Print ASCII charts of each compartment")
	simulateCmd.Flags().IntVar(&simSample, "sample", 500, "Downsample stored timeseries to about this many points")
	simulateCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(simulateCmd)
}
