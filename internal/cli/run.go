package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/config"
	"forex-scanner/internal/events"
	"forex-scanner/internal/metrics"
	"forex-scanner/internal/models"
	"forex-scanner/internal/risk"
	"forex-scanner/internal/scorer"
	"forex-scanner/internal/sizing"
	"forex-scanner/internal/state"
	"forex-scanner/internal/store"
	"forex-scanner/internal/trading"
	"forex-scanner/pkg/utils"
)

const paperStartBalance = 10000.0

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scan-and-execute loop",
		Long: `Run starts the orchestrator: every cycle it manages open positions,
scans the instrument universe concurrently, and executes the highest
ranked candidates that survive the risk gate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config")
			if configDir == "" {
				configDir = config.DefaultConfigDir()
			}
			return runScanner(cmd.Context(), app, configDir)
		},
	}
}

func runScanner(parent context.Context, app *App, configDir string) error {
	cfg := app.Config
	logger := app.Logger

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instruments, err := config.LoadInstruments(cfg.Scanner.InstrumentsFile)
	if err != nil {
		return fmt.Errorf("loading instruments: %w", err)
	}
	symbols := config.Symbols(instruments)
	classes := make(map[string]models.AssetClass, len(instruments))
	for _, inst := range instruments {
		classes[inst.Symbol] = models.AssetClass(inst.AssetClass)
	}
	logger.Info().Int("instruments", len(symbols)).Str("mode", cfg.Scanner.Mode).Msg("Universe loaded")

	gateway, err := buildGateway(cfg)
	if err != nil {
		return err
	}

	// Warm up the connection before committing to the loop.
	if _, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() (*models.AccountInfo, error) {
		return gateway.GetAccountInfo(ctx)
	}); err != nil {
		return fmt.Errorf("gateway warm-up: %w", err)
	}

	sharedStore, err := state.Open(filepath.Join(configDir, "state.json"))
	if err != nil {
		return fmt.Errorf("opening shared state: %w", err)
	}
	riskState, err := state.NewRiskState(sharedStore)
	if err != nil {
		return fmt.Errorf("restoring risk state: %w", err)
	}

	news, err := risk.NewNewsCalendar(cfg.News)
	if err != nil {
		return fmt.Errorf("loading news calendar: %w", err)
	}
	stats := risk.NewStatsTracker(gateway,
		time.Duration(cfg.Risk.StatsRefreshMinutes)*time.Minute,
		time.Duration(cfg.Risk.StatsLookbackDays)*24*time.Hour,
		cfg.Risk.KillSwitchLastN)
	corr := risk.NewCorrelationFilter(gateway, cfg.Correlation, config.BuildCorrelationGroups(instruments))
	gate := risk.NewGate(cfg.Risk, cfg.Scanner, cfg.Sessions, riskState, gateway, stats, news, corr, logger)

	sizer := sizing.NewSizer(cfg.Sizing, config.TailRiskSymbols(instruments))
	monitor := trading.NewMonitor(gateway, cfg.Monitor, logger)
	atrCache := trading.NewATRCache(gateway, cfg.Scanner.ATRTimeframe, cfg.Scanner.ATRPeriod,
		time.Duration(cfg.Scanner.ATRCacheSeconds)*time.Second)
	sc := scorer.NewHTTPScorer(cfg.Scanner.ScorerURL,
		time.Duration(cfg.Scanner.ScorerTimeoutSecs)*time.Second)

	pipelines := make([]*trading.SymbolPipeline, 0, len(symbols))
	for _, symbol := range symbols {
		pipelines = append(pipelines,
			trading.NewSymbolPipeline(symbol, gateway, sc, gate, atrCache, monitor, cfg.Scanner, logger))
	}

	hub := events.NewHub(logger)
	defer hub.Close()
	m := metrics.New()
	if cfg.Events.Enabled {
		startEventServer(cfg.Events.Addr, hub, m, app)
	}

	var journal trading.Journal
	if cfg.Journal.Enabled {
		j, err := store.NewSQLiteJournal(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
		journal = j
	}

	orch := trading.NewOrchestrator(cfg.Scanner, cfg.Sessions, cfg.Risk,
		gateway, gate, sizer, monitor, pipelines, classes, hub, journal, m, logger)

	err = orch.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// buildGateway assembles the gateway for the configured mode. Paper mode
// with a bridge URL trades a simulated book against live market data; paper
// mode without one runs fully in memory.
func buildGateway(cfg *config.Config) (broker.Gateway, error) {
	bridgeCfg := broker.BridgeConfig{
		BaseURL:  cfg.Credentials.Gateway.URL,
		Login:    cfg.Credentials.Gateway.Login,
		Password: cfg.Credentials.Gateway.Password,
		Server:   cfg.Credentials.Gateway.Server,
	}

	if !cfg.IsPaperMode() {
		return broker.NewBridgeGateway(bridgeCfg), nil
	}

	paper := broker.NewPaperGateway(paperStartBalance)
	if cfg.Credentials.Gateway.URL != "" {
		return broker.NewSimGateway(broker.NewBridgeGateway(bridgeCfg), paper), nil
	}
	return paper, nil
}

// startEventServer serves the WebSocket event stream, the Prometheus scrape
// endpoint and a health probe.
func startEventServer(addr string, hub *events.Hub, m *metrics.Metrics, app *App) {
	mux := http.NewServeMux()
	mux.Handle("/ws", events.NewWSHandler(hub, app.Logger))
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Event endpoint listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			app.Logger.Error().Err(err).Msg("Event endpoint stopped")
		}
	}()
}
