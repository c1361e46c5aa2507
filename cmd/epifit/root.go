package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/epifit-xyz/go-epifit/scenario"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "epifit",
	Short: "Compartmental epidemic model simulation and calibration",
	Long: `epifit integrates SIR and SIR-X compartmental models, calibrates their
parameters against observed case counts, and scores forecast skill with
rolling-origin cross-validation. Runs are described by YAML scenarios.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
}

// Execute runs the CLI root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn",
		"Log level (trace, debug, info, warn, error, fatal, panic)")
}

// loadScenario loads and validates a scenario file, returning it along
// with the directory for resolving relative data paths.
func loadScenario(path string) (*scenario.Scenario, string, error) {
	s, err := scenario.Load(path)
	if err != nil {
		return nil, "", err
	}
	return s, filepath.Dir(path), nil
}
