package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"forex-scanner/internal/config"
	"forex-scanner/internal/state"
	"forex-scanner/internal/store"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show risk state and recent trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config")
			if configDir == "" {
				configDir = config.DefaultConfigDir()
			}
			return printStatus(cmd, app, configDir)
		},
	}
}

func printStatus(cmd *cobra.Command, app *App, configDir string) error {
	sharedStore, err := state.Open(filepath.Join(configDir, "state.json"))
	if err != nil {
		return fmt.Errorf("opening shared state: %w", err)
	}
	riskState, err := state.NewRiskState(sharedStore)
	if err != nil {
		return fmt.Errorf("restoring risk state: %w", err)
	}

	snap := riskState.Snapshot(time.Now())
	cmd.Println("Risk state")
	cmd.Printf("  circuit breaker: %v\n", snap.CircuitOpen)
	cmd.Printf("  trades today:    %d / %d\n", snap.DailyTrades, app.Config.Risk.MaxDailyTrades)
	if len(snap.CooldownUntil) == 0 {
		cmd.Println("  cooldowns:       none")
	} else {
		cmd.Println("  cooldowns:")
		for symbol, until := range snap.CooldownUntil {
			cmd.Printf("    %-10s until %s\n", symbol, until.Format(time.RFC3339))
		}
	}

	if !app.Config.Journal.Enabled {
		return nil
	}
	journal, err := store.NewSQLiteJournal(app.Config.Journal.Path)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer journal.Close()

	trades, err := journal.RecentTrades(cmd.Context(), 10)
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}
	cmd.Println("Recent trades")
	if len(trades) == 0 {
		cmd.Println("  none")
		return nil
	}
	for _, t := range trades {
		cmd.Printf("  %s  %-10s %-5s %.2f @ %.5f  score %d\n",
			t.Timestamp.Format("2006-01-02 15:04"), t.Symbol, t.Direction, t.Volume, t.Price, t.ConfluenceScore)
	}
	return nil
}
