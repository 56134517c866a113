package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/config"
	"forex-scanner/internal/models"
	"forex-scanner/internal/state"
)

// Gate is the sequential risk gate. CheckPreScan runs the cheap account-level
// checks before a symbol is scanned; CheckExecution is the final admission
// pass before sizing. Each check short-circuits on first failure and returns
// a typed rejection, never an error: rejections are observability data.
type Gate struct {
	riskCfg    config.RiskConfig
	scanCfg    config.ScannerConfig
	sessionCfg config.SessionConfig

	riskState *state.RiskState
	gateway   broker.Gateway
	stats     *StatsTracker
	news      *NewsCalendar
	corr      *CorrelationFilter
	logger    zerolog.Logger

	overrides map[string]bool

	// now is swappable for tests.
	now func() time.Time
}

// NewGate wires the gate against its collaborators.
func NewGate(
	riskCfg config.RiskConfig,
	scanCfg config.ScannerConfig,
	sessionCfg config.SessionConfig,
	riskState *state.RiskState,
	gateway broker.Gateway,
	stats *StatsTracker,
	news *NewsCalendar,
	corr *CorrelationFilter,
	logger zerolog.Logger,
) *Gate {
	overrides := make(map[string]bool, len(riskCfg.SymbolOverrides))
	for _, s := range riskCfg.SymbolOverrides {
		overrides[StripSuffix(s)] = true
	}
	return &Gate{
		riskCfg:    riskCfg,
		scanCfg:    scanCfg,
		sessionCfg: sessionCfg,
		riskState:  riskState,
		gateway:    gateway,
		stats:      stats,
		news:       news,
		corr:       corr,
		logger:     logger,
		overrides:  overrides,
		now:        time.Now,
	}
}

// SetClock overrides the gate's clock. Test hook.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// RiskState exposes the shared risk state for the orchestrator.
func (g *Gate) RiskState() *state.RiskState {
	return g.riskState
}

// Stats exposes the symbol stats for sizing.
func (g *Gate) Stats(ctx context.Context, symbol string, now time.Time) (models.SymbolStats, []float64, error) {
	return g.stats.Stats(ctx, symbol, now)
}

// CheckPreScan runs the ordered pre-scan checks for a symbol. The order is
// deliberate: account-level blocks come before anything touching market data.
func (g *Gate) CheckPreScan(ctx context.Context, symbol string, info *models.SymbolInfo) models.ScanStatus {
	now := g.now()

	// 1. Circuit breaker halts everything; nothing else is worth checking.
	if g.riskState.CircuitOpen() {
		return models.Rejected(symbol, models.RejectCircuitBreaker, "circuit breaker open")
	}

	// 2. Daily trade cap, after the UTC date rollover.
	if daily := g.riskState.DailyTrades(now); daily >= g.riskCfg.MaxDailyTrades {
		return models.Rejected(symbol, models.RejectDailyCap,
			fmt.Sprintf("%d trades today, cap %d", daily, g.riskCfg.MaxDailyTrades))
	}

	// 3. Hourly trade cap from recent deal history. A history failure is
	// inconclusive and allows: transient connectivity must not halt scans.
	if hourly, err := g.hourlyTradeCount(ctx, now); err != nil {
		g.logger.Warn().Err(err).Str("symbol", symbol).Msg("Hourly trade count unavailable, allowing")
	} else if hourly >= g.riskCfg.MaxTradesPerHour {
		return models.Rejected(symbol, models.RejectHourlyCap,
			fmt.Sprintf("%d trades in the last hour, cap %d", hourly, g.riskCfg.MaxTradesPerHour))
	}

	// 4. Per-symbol cooldown.
	if active, until := g.riskState.CooldownActive(symbol, now); active {
		return models.Rejected(symbol, models.RejectCooldown,
			fmt.Sprintf("until %s", until.Format(time.RFC3339)))
	}

	// 5 & 6. Kill switch and payoff mandate from symbol stats. Stats
	// failures are inconclusive and allow.
	stats, recent, err := g.stats.Stats(ctx, symbol, now)
	if err != nil {
		g.logger.Warn().Err(err).Str("symbol", symbol).Msg("Symbol stats unavailable, allowing")
	} else if !g.overrides[StripSuffix(symbol)] {
		if status, blocked := g.killSwitch(symbol, stats, recent); blocked {
			return status
		}
		if status, blocked := g.payoffMandate(symbol, stats); blocked {
			return status
		}
	}

	// 7. Daily realized loss cap. Fails OPEN on data-source failure: a
	// transient history outage must not halt trading. This is a reviewed
	// tradeoff, deliberately inconsistent with the fail-closed spread check
	// below.
	if pnl, err := g.dailyRealizedPnL(ctx, now); err != nil {
		g.logger.Warn().Err(err).Str("symbol", symbol).Msg("Daily P&L unavailable, allowing")
	} else if pnl < -g.riskCfg.MaxDailyLossUSD {
		return models.Rejected(symbol, models.RejectDailyLoss,
			fmt.Sprintf("realized %.2f today, cap -%.2f", pnl, g.riskCfg.MaxDailyLossUSD))
	}

	// 8. Spread cap. Fails CLOSED: without a tick there is no spread and no
	// trade.
	if status, blocked := g.spreadCheck(ctx, symbol, info); blocked {
		return status
	}

	// 9. News blackout.
	if active, currency := g.news.Blackout(symbol, now); active {
		return models.Rejected(symbol, models.RejectNewsBlackout, currency)
	}

	// 10. Session window.
	if !InSession(g.sessionCfg, info.AssetClass, now) {
		return models.Rejected(symbol, models.RejectSession,
			fmt.Sprintf("outside %02d:00-%02d:00 UTC", g.sessionCfg.StartHourUTC, g.sessionCfg.EndHourUTC))
	}

	return models.Accepted(symbol)
}

// killSwitch blocks a symbol whose recent trades lost more than the
// configured threshold.
func (g *Gate) killSwitch(symbol string, stats models.SymbolStats, recent []float64) (models.ScanStatus, bool) {
	if stats.TradeCount < g.riskCfg.KillSwitchMinTrades {
		return models.ScanStatus{}, false
	}
	n := g.riskCfg.KillSwitchLastN
	if n > 0 && len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	var sum float64
	for _, pnl := range recent {
		sum += pnl
	}
	if sum < -g.riskCfg.KillSwitchLossUSD {
		return models.Rejected(symbol, models.RejectKillSwitch,
			fmt.Sprintf("last %d trades lost %.2f", len(recent), -sum)), true
	}
	return models.ScanStatus{}, false
}

// payoffMandate blocks a symbol whose average loss is disproportionate to
// its average win.
func (g *Gate) payoffMandate(symbol string, stats models.SymbolStats) (models.ScanStatus, bool) {
	if stats.TradeCount < g.riskCfg.PayoffMinTrades {
		return models.ScanStatus{}, false
	}
	if stats.AvgWin <= 0 {
		// No winning trades at all within the lookback: the kill switch is
		// the gate for that situation, not the ratio test.
		return models.ScanStatus{}, false
	}
	ratio := stats.AvgLoss / stats.AvgWin
	if ratio > g.riskCfg.AvgLossRatioThreshold {
		return models.Rejected(symbol, models.RejectPayoffMandate,
			fmt.Sprintf("avg loss/win %.2f exceeds %.2f", ratio, g.riskCfg.AvgLossRatioThreshold)), true
	}
	return models.ScanStatus{}, false
}

// spreadCheck converts the live spread to pip units via the instrument tick
// size (with the configured fallback when the broker reports zero) and
// compares it against the asset-class cap.
func (g *Gate) spreadCheck(ctx context.Context, symbol string, info *models.SymbolInfo) (models.ScanStatus, bool) {
	tick, err := g.gateway.GetTick(ctx, symbol)
	if err != nil {
		return models.Rejected(symbol, models.RejectSpread, "no tick data"), true
	}

	spreadPips := g.SpreadPips(tick, info)
	limit, ok := g.riskCfg.SpreadCapPips[string(info.AssetClass)]
	if !ok {
		limit = g.riskCfg.SpreadCapPips[string(models.AssetForex)]
	}
	if limit > 0 && spreadPips > limit {
		return models.Rejected(symbol, models.RejectSpread,
			fmt.Sprintf("%.1f pips, cap %.1f", spreadPips, limit)), true
	}
	return models.ScanStatus{}, false
}

// SpreadPips converts a tick's spread into pip units.
func (g *Gate) SpreadPips(tick *models.Tick, info *models.SymbolInfo) float64 {
	tickSize := info.TickSize
	if tickSize <= 0 {
		tickSize = g.riskCfg.FallbackTickSize
	}
	if tickSize <= 0 {
		return 0
	}
	return tick.Spread() / tickSize
}

// CheckExecution is the final admission pass before sizing: open-position
// cap, reward:risk floor, correlation conflict, and the estimated-net-profit
// check.
func (g *Gate) CheckExecution(ctx context.Context, cand *models.Candidate, info *models.SymbolInfo, open []models.Position) models.ScanStatus {
	if len(open) >= g.scanCfg.MaxOpenPositions {
		return models.Rejected(cand.Symbol, models.RejectPositionCap,
			fmt.Sprintf("%d open, cap %d", len(open), g.scanCfg.MaxOpenPositions))
	}

	if cand.StopDistance <= 0 {
		return models.Rejected(cand.Symbol, models.RejectRewardRisk, "zero stop distance")
	}
	rr := cand.TakeProfitDistance / cand.StopDistance
	if rr < g.scanCfg.MinRewardRisk {
		return models.Rejected(cand.Symbol, models.RejectRewardRisk,
			fmt.Sprintf("%.2f below %.2f", rr, g.scanCfg.MinRewardRisk))
	}

	if conflict, detail := g.corr.Conflict(ctx, cand.Symbol, cand.Direction, open); conflict {
		return models.Rejected(cand.Symbol, models.RejectCorrelation, detail)
	}

	// Estimated net profit: the target, net of spread and commission, must
	// exceed a multiple of that cost. Missing tick data blocks: costs cannot
	// be estimated without a spread.
	tick, err := g.gateway.GetTick(ctx, cand.Symbol)
	if err != nil {
		return models.Rejected(cand.Symbol, models.RejectNetProfit, "no tick data")
	}
	tickSize := info.TickSize
	if tickSize <= 0 {
		tickSize = g.riskCfg.FallbackTickSize
	}
	cost := tick.Spread() + g.riskCfg.CommissionPips*tickSize
	net := cand.TakeProfitDistance - cost
	if cost > 0 && net < g.scanCfg.CostFloorMultiple*cost {
		return models.Rejected(cand.Symbol, models.RejectNetProfit,
			fmt.Sprintf("net %.5f below %.1fx cost %.5f", net, g.scanCfg.CostFloorMultiple, cost))
	}

	return models.Accepted(cand.Symbol)
}

// hourlyTradeCount counts deals in the trailing hour.
func (g *Gate) hourlyTradeCount(ctx context.Context, now time.Time) (int, error) {
	deals, err := g.gateway.GetHistoryDeals(ctx, now.Add(-time.Hour), now)
	if err != nil {
		return 0, err
	}
	return len(deals), nil
}

// dailyRealizedPnL sums deal profits since UTC midnight.
func (g *Gate) dailyRealizedPnL(ctx context.Context, now time.Time) (float64, error) {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	deals, err := g.gateway.GetHistoryDeals(ctx, midnight, now)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, d := range deals {
		sum += d.Profit
	}
	return sum, nil
}
