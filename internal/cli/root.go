// Package cli provides the command-line interface for the scanner.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"forex-scanner/internal/config"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the dependencies shared by the commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "forex-scanner",
		Short: "Risk-gated concurrent forex scanner",
		Long: `forex-scanner scans a configurable universe of instruments each cycle,
scores them through an external model service, and executes the best
candidates through a layered risk gate.

It runs in paper mode against a simulated order book or in live mode
against a terminal bridge.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/forex-scanner)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("forex-scanner %s\n", Version)
		},
	}
}
