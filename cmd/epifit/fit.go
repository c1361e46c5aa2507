package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/epifit-xyz/go-epifit/fit"
	"github.com/epifit-xyz/go-epifit/results"
	"github.com/epifit-xyz/go-epifit/store"
)

var (
	fitScenario string
	fitOutput   string
	fitDB       string
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Calibrate model parameters against observed data",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, baseDir, err := loadScenario(fitScenario)
		if err != nil {
			return err
		}
		if s.Fit == nil {
			return fmt.Errorf("scenario %s has no fit section", fitScenario)
		}

		m, err := s.BuildModel()
		if err != nil {
			return err
		}
		data, err := s.Dataset(baseDir)
		if err != nil {
			return err
		}

		logrus.Infof("fitting %v against %d observations of %s",
			s.Fit.Free, data.Len(), s.Observations.Compartment)

		res, err := fit.Fit(m, data, s.Observable(), s.Mask(), s.FitOptions())
		if err != nil {
			return err
		}

		schema := m.Schema()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "parameter\tvalue\tfitted")
		for i, name := range schema.Params {
			mark := ""
			if s.Mask()[i] {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%.6g\t%s\n", name, res.Params[i], mark)
		}
		w.Flush()
		fmt.Printf("\nloss %.6g -> %.6g in %d iterations (converged=%v)\n",
			res.InitialLoss, res.FinalLoss, res.Iterations, res.Converged)

		if fitDB != "" {
			st, err := store.Open(fitDB)
			if err != nil {
				return err
			}
			defer st.Close()
			id, err := st.SaveFit(schema.Name, data.Len(), res)
			if err != nil {
				return err
			}
			fmt.Printf("saved run %s\n", id)
		}

		if fitOutput != "" {
			r := results.NewBuilder().
				WithModel(m).
				WithFit(res, schema, s.Mask()).
				Build()
			if err := results.WriteJSON(r, fitOutput); err != nil {
				return err
			}
			logrus.Infof("results written to %s", fitOutput)
		}
		return nil
	},
}

func init() {
	fitCmd.Flags().StringVar(&fitScenario, "scenario", "", "Scenario YAML file (required)")
	fitCmd.Flags().StringVar(&fitOutput, "output", "", "Write results JSON to this path")
	fitCmd.Flags().StringVar(&fitDB, "db", "", "Persist the run to this SQLite database")
	fitCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(fitCmd)
}
