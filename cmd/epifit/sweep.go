package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/epifit-xyz/go-epifit/sensitivity"
)

var (
	sweepScenario    string
	sweepParam       string
	sweepMin         float64
	sweepMax         float64
	sweepSteps       int
	sweepScore       string
	sweepCompartment string
	sweepASCII       bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep one parameter and score the outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadScenario(sweepScenario)
		if err != nil {
			return err
		}
		if s.Simulate == nil {
			return fmt.Errorf("scenario %s has no simulate section", sweepScenario)
		}

		m, err := s.BuildModel()
		if err != nil {
			return err
		}
		idx := m.Schema().CompartmentIndex(sweepCompartment)
		if idx < 0 {
			return fmt.Errorf("%s has no compartment %q", m.Schema().Name, sweepCompartment)
		}

		var scorer sensitivity.Scorer
		switch sweepScore {
		case "peak":
			scorer = sensitivity.PeakScorer(idx)
		case "final":
			scorer = sensitivity.FinalScorer(idx)
		default:
			return fmt.Errorf("unknown score %q; valid: peak, final", sweepScore)
		}

		a := sensitivity.NewAnalyzer(m, scorer).
			WithTimeSpan(s.Simulate.Start, s.Simulate.End)
		res, err := a.SweepRange(sweepParam, sweepMin, sweepMax, sweepSteps)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "%s\t%s(%s)\n", sweepParam, sweepScore, sweepCompartment)
		for i, v := range res.Values {
			fmt.Fprintf(w, "%.4g\t%.4g\n", v, res.Scores[i])
		}
		w.Flush()
		fmt.Printf("\nbest %s=%.4g (score %.4g), worst %s=%.4g (score %.4g)\n",
			sweepParam, res.Best.Value, res.Best.Score,
			sweepParam, res.Worst.Value, res.Worst.Score)

		if sweepASCII {
			fmt.Println()
			fmt.Println(asciigraph.Plot(res.Scores,
				asciigraph.Height(10),
				asciigraph.Width(72),
				asciigraph.Caption(fmt.Sprintf("%s(%s) vs %s", sweepScore, sweepCompartment, sweepParam)),
			))
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepScenario, "scenario", "", "Scenario YAML file (required)")
	sweepCmd.Flags().StringVar(&sweepParam, "param", "", "Parameter to sweep (required)")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0, "Lowest value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 1, "Highest value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 11, "Number of values")
	sweepCmd.Flags().StringVar(&sweepScore, "score", "peak", "Outcome to score (peak or final)")
	sweepCmd.Flags().StringVar(&sweepCompartment, "compartment", "I", "Compartment the score applies to")
	sweepCmd.Flags().BoolVar(&sweepASCII, "ascii", false, "Print an ASCII chart of the sweep")
	sweepCmd.MarkFlagRequired("scenario")
	sweepCmd.MarkFlagRequired("param")
	rootCmd.AddCommand(sweepCmd)
}
