// Package cli is the gazetest command line: layout previews, heatmap replays
// of stored sample files, and headless session simulations.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/vytor/gazetest/internal/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gazetest",
	Short: "GazeTest - visual-search test engine tools",
	Long: `gazetest exercises the visual-search test engine without the HTTP server.

Example:
  gazetest layout --count 12 --seed 7
  gazetest replay data/blobs/eye-tracking-csvs/<session>/round_1.csv
  gazetest simulate --catalog data/catalog.yaml --folders AF01,AM02 --rounds 3`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logger.WARN
		if verbose {
			level = logger.DEBUG
		}
		logger.SetDefault(logger.New(
			logger.WithOutput(cmd.ErrOrStderr()),
			logger.WithLevel(level),
			logger.WithColors(false),
		))
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging on stderr")
}
