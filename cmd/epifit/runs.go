package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/epifit-xyz/go-epifit/store"
)

var (
	runsDB    string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted calibration runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(runsDB)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "id\tkind\tvariant\tcreated\tobs\tloss")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.4g\n",
				r.ID, r.Kind, r.Variant, r.CreatedAt.Format("2006-01-02 15:04"),
				r.Observations, r.FinalLoss)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run and its cross-validation folds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(runsDB)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s run on %s, %d observations\n",
			run.CreatedAt.Format("2006-01-02 15:04"), run.Kind, run.Variant, run.Observations)
		fmt.Printf("params: %v\nloss: %.6g in %d iterations\n",
			run.Params, run.FinalLoss, run.Iterations)

		folds, err := st.GetFolds(run.ID)
		if err != nil {
			return err
		}
		if len(folds) == 0 {
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\nfold\ttrain_end\tsq_err\tstatus")
		for _, f := range folds {
			status := "ok"
			if f.Failed {
				status = f.Error
			}
			fmt.Fprintf(w, "%d\t%d\t%.4g\t%s\n", f.Index, f.TrainEnd, f.SqErr, status)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.PersistentFlags().StringVar(&runsDB, "db", "epifit.db", "SQLite database path")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
