package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epifit-xyz/go-epifit/plotter"
	"github.com/epifit-xyz/go-epifit/results"
)

var plotOutput string

var plotCmd = &cobra.Command{
	Use:   "plot <results.json>",
	Short: "Render an SVG plot from a results file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := results.ReadJSON(args[0])
		if err != nil {
			return err
		}
		ts := r.Results.Timeseries
		if len(ts.Time) == 0 {
			return fmt.Errorf("%s contains no timeseries", args[0])
		}

		p := plotter.NewSVGPlotter(800, 600).SetTitle(r.Model.Variant + " trajectory")
		for _, name := range r.Model.Compartments {
			if series, ok := ts.Compartments[name]; ok {
				p.AddSeries(ts.Time, series, name, "")
			}
		}
		return p.WriteFile(plotOutput)
	},
}

func init() {
	plotCmd.Flags().StringVar(&plotOutput, "output", "plot.svg", "Output SVG path")
	rootCmd.AddCommand(plotCmd)
}
