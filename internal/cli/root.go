// Package cli provides the command-line interface for hearthfind.
package cli

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dakshaarvind-fetch/RealEstate/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global config and logger, initialized in PersistentPreRunE.
	cfg       config.Config
	logger    *slog.Logger
	logFinish func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hearthfind",
	Short: "Conversational real estate search agent",
	Long: `Hearthfind is a conversational real estate search agent. It parses
free-text requests into structured search criteria, runs a tool-using
planner loop over a listings source, exports results to Google Sheets,
and serves peers over a mailbox or AMQP transport.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// Optional .env for local runs; a missing file is fine.
		_ = godotenv.Load()

		cfg = config.Load()
		logger, logFinish = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFinish != nil {
			_ = logFinish()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(authCmd)
}
