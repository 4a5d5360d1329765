// Package cli is the osintctl command line: it runs one analysis against the
// backend and prints the result cards to the terminal.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/anushkaa29gupta/ByteCoders2.0/internal/logger"
)

// version is set at build time with -ldflags "-X .../internal/cli.version=..."
var version = "dev"

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "osintctl",
	Short: "Image intelligence from the command line",
	Long: `osintctl uploads an image to the analysis backend, runs text extraction,
metadata extraction and forensic analysis, and prints the result cards.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetLevel(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level (debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
