package trading

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/config"
	"forex-scanner/internal/events"
	"forex-scanner/internal/metrics"
	"forex-scanner/internal/models"
	"forex-scanner/internal/risk"
	"forex-scanner/internal/scorer"
	"forex-scanner/internal/sizing"
	"forex-scanner/internal/state"
)

var cycleNoon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type orchFixture struct {
	orch    *Orchestrator
	gateway *broker.PaperGateway
	state   *state.RiskState
	scores  map[string]*scorer.Score
}

func orchScannerConfig() config.ScannerConfig {
	return config.ScannerConfig{
		Mode:                "paper",
		CycleSeconds:        60,
		CycleTimeoutSeconds: 45,
		MaxTradesPerCycle:   2,
		MaxOpenPositions:    5,
		ATRPeriod:           14,
		ATRTimeframe:        "M15",
		ATRCacheSeconds:     180,
		StopATRMultiple:     1.5,
		TargetATRMultiple:   3.0,
		MinRewardRisk:       1.5,
		CostFloorMultiple:   3.0,
	}
}

func orchRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxDailyTrades:        10,
		MaxTradesPerHour:      10,
		MaxDailyLossUSD:       500,
		CooldownMinutes:       30,
		KillSwitchMinTrades:   5,
		KillSwitchLastN:       5,
		KillSwitchLossUSD:     150,
		PayoffMinTrades:       10,
		AvgLossRatioThreshold: 2.0,
		CommissionPips:        0.7,
		SpreadCapPips:         map[string]float64{"FOREX": 3},
		FallbackTickSize:      0.0001,
		StatsRefreshMinutes:   15,
		StatsLookbackDays:     30,
	}
}

// seedSymbol gives a symbol everything a clean scan needs: info, a tight
// tick, and candle history on all scoring timeframes.
func seedSymbol(g *broker.PaperGateway, symbol string, price float64) {
	g.SetSymbolInfo(models.SymbolInfo{
		Symbol: symbol, AssetClass: models.AssetForex,
		TickSize: 0.0001, TickValue: 1,
		VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01, VolumeDigits: 2,
	})
	g.SetTick(models.Tick{Symbol: symbol, Bid: price, Ask: price + 0.0001})

	base := cycleNoon.Add(-48 * time.Hour)
	for tf, step := range map[string]time.Duration{
		"M15": 15 * time.Minute, "H1": time.Hour, "H4": 4 * time.Hour,
	} {
		candles := make([]models.Candle, 100)
		for i := range candles {
			candles[i] = models.Candle{
				Timestamp: base.Add(time.Duration(i) * step),
				Open:      price, High: price + 0.0020, Low: price, Close: price,
			}
		}
		g.SetCandles(symbol, tf, candles)
	}
}

func newOrchFixture(t *testing.T, symbols ...string) *orchFixture {
	t.Helper()

	gateway := broker.NewPaperGateway(10000)
	for i, symbol := range symbols {
		seedSymbol(gateway, symbol, 1.1000+float64(i)*0.1)
	}

	store, err := state.Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	riskState, err := state.NewRiskState(store)
	require.NoError(t, err)

	scanCfg := orchScannerConfig()
	riskCfg := orchRiskConfig()
	sessionCfg := config.SessionConfig{StartHourUTC: 7, EndHourUTC: 21}

	stats := risk.NewStatsTracker(gateway, 15*time.Minute, 30*24*time.Hour, riskCfg.KillSwitchLastN)
	news, err := risk.NewNewsCalendar(config.NewsConfig{})
	require.NoError(t, err)
	corr := risk.NewCorrelationFilter(gateway, config.CorrelationConfig{
		Threshold: 0.85, Lookback: 60, MinOverlap: 10, Timeframe: "M15",
	}, nil)
	gate := risk.NewGate(riskCfg, scanCfg, sessionCfg, riskState, gateway, stats, news, corr, zerolog.Nop())
	gate.SetClock(func() time.Time { return cycleNoon })

	f := &orchFixture{gateway: gateway, state: riskState, scores: make(map[string]*scorer.Score)}
	sc := scorer.ScorerFunc(func(ctx context.Context, symbol string, data scorer.MultiTimeframeData) (*scorer.Score, error) {
		score, ok := f.scores[symbol]
		if !ok {
			return nil, fmt.Errorf("no score for %s", symbol)
		}
		return score, nil
	})

	sizer := sizing.NewSizer(config.SizingConfig{
		RiskPercent: 0.5, MaxRiskPercent: 1.5,
		HighTierScore: 7, MidTierScore: 5,
		KellyEnabled: false, KellyFraction: 0.25, KellyMinTrades: 20,
	}, nil)
	monitor := NewMonitor(gateway, config.MonitorConfig{
		BreakEvenRewardRisk: 1.0, BreakEvenBufferPips: 2,
		PartialTargetFraction: 0.5, PartialVolumeFraction: 0.5,
		TrailActivateATR: 1.5, TrailStepATR: 1.0,
		TrailFallbackPercent: 0.5, MinModifyDistancePips: 2,
	}, zerolog.Nop())
	atrCache := NewATRCache(gateway, scanCfg.ATRTimeframe, scanCfg.ATRPeriod,
		time.Duration(scanCfg.ATRCacheSeconds)*time.Second)

	classes := make(map[string]models.AssetClass, len(symbols))
	pipelines := make([]*SymbolPipeline, 0, len(symbols))
	for _, symbol := range symbols {
		classes[symbol] = models.AssetForex
		pipelines = append(pipelines,
			NewSymbolPipeline(symbol, gateway, sc, gate, atrCache, monitor, scanCfg, zerolog.Nop()))
	}

	orch := NewOrchestrator(scanCfg, sessionCfg, riskCfg,
		gateway, gate, sizer, monitor, pipelines, classes,
		events.NewHub(zerolog.Nop()), nil, metrics.New(), zerolog.Nop())
	orch.SetClock(func() time.Time { return cycleNoon })

	f.orch = orch
	return f
}

func longScore(confluence int, prob float64) *scorer.Score {
	return &scorer.Score{
		Direction:       models.DirectionLong,
		ConfluenceScore: confluence,
		MLProbability:   prob,
		Regime:          models.RegimeTrending,
	}
}

// One symbol's gateway failure must not keep another symbol from trading.
func TestRunCycleIsolatesSymbolFailures(t *testing.T) {
	f := newOrchFixture(t, "EURUSD", "GBPUSD")
	f.scores["EURUSD"] = longScore(8, 0.8)
	f.scores["GBPUSD"] = longScore(8, 0.8)
	f.gateway.FailSymbol("EURUSD", true)

	report := f.orch.RunCycle(context.Background())

	assert.Equal(t, 1, report.Executed)
	positions := mustPositions(t, f.gateway)
	require.Len(t, positions, 1)
	assert.Equal(t, "GBPUSD", positions[0].Symbol)

	var sawFailure bool
	for _, status := range report.Statuses {
		if status.Symbol == "EURUSD" && status.Code == models.RejectNoData {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "the failing symbol surfaces as a data rejection")
}

func TestRunCycleRanksByConfluenceThenProbability(t *testing.T) {
	f := newOrchFixture(t, "EURUSD", "GBPUSD", "USDJPY")
	f.scores["EURUSD"] = longScore(5, 0.9)
	f.scores["GBPUSD"] = longScore(8, 0.6)
	f.scores["USDJPY"] = longScore(8, 0.7)

	// Budget of one: only the top-ranked candidate trades.
	f.orch.cfg.MaxTradesPerCycle = 1
	report := f.orch.RunCycle(context.Background())

	assert.Equal(t, 1, report.Executed)
	positions := mustPositions(t, f.gateway)
	require.Len(t, positions, 1)
	assert.Equal(t, "USDJPY", positions[0].Symbol, "equal confluence, higher probability wins")
}

func TestRunCycleHonorsDailyCap(t *testing.T) {
	f := newOrchFixture(t, "EURUSD")
	f.scores["EURUSD"] = longScore(8, 0.8)
	for i := 0; i < orchRiskConfig().MaxDailyTrades; i++ {
		require.NoError(t, f.state.RecordTrade(cycleNoon))
	}

	report := f.orch.RunCycle(context.Background())

	assert.Zero(t, report.Executed)
	assert.Empty(t, mustPositions(t, f.gateway))
	require.NotEmpty(t, report.Statuses)
	assert.Equal(t, models.RejectDailyCap, report.Statuses[0].Code)
}

func TestRunCycleRecordsTradeStateAndCooldown(t *testing.T) {
	f := newOrchFixture(t, "EURUSD")
	f.scores["EURUSD"] = longScore(8, 0.8)

	report := f.orch.RunCycle(context.Background())
	require.Equal(t, 1, report.Executed)

	assert.Equal(t, 1, f.state.DailyTrades(cycleNoon))
	active, _ := f.state.CooldownActive("EURUSD", cycleNoon)
	assert.True(t, active, "fresh trades start the symbol cooldown")

	// The next cycle cannot re-enter the same symbol while cooling down.
	report = f.orch.RunCycle(context.Background())
	assert.Zero(t, report.Executed)
}

func TestRunCycleSkipsScanAtPositionCap(t *testing.T) {
	f := newOrchFixture(t, "EURUSD")
	f.scores["EURUSD"] = longScore(8, 0.8)
	f.orch.cfg.MaxOpenPositions = 1

	report := f.orch.RunCycle(context.Background())
	require.Equal(t, 1, report.Executed)

	report = f.orch.RunCycle(context.Background())
	assert.True(t, report.Skipped)
	assert.Zero(t, report.Scanned)
}

func TestRunCycleRespectsDeadline(t *testing.T) {
	f := newOrchFixture(t, "EURUSD", "GBPUSD")
	f.scores["EURUSD"] = longScore(8, 0.8)
	f.scores["GBPUSD"] = longScore(8, 0.8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := f.orch.RunCycle(ctx)

	// Once the deadline has passed no new orders are dispatched, however
	// good the candidates.
	assert.Zero(t, report.Executed)
	assert.Empty(t, mustPositions(t, f.gateway))
}

func TestRunCycleSessionWindowFiltersSymbols(t *testing.T) {
	f := newOrchFixture(t, "EURUSD")
	f.scores["EURUSD"] = longScore(8, 0.8)

	night := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	f.orch.SetClock(func() time.Time { return night })

	report := f.orch.RunCycle(context.Background())
	assert.Zero(t, report.Scanned, "forex outside the window is not scanned")
	assert.Zero(t, report.Executed)
}
