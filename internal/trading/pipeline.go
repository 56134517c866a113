package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/config"
	"forex-scanner/internal/models"
	"forex-scanner/internal/risk"
	"forex-scanner/internal/scorer"
)

// scoreTimeframes is the candle data handed to the scorer, keyed by
// timeframe. The scorer decides what to weigh; the pipeline just fetches.
var scoreTimeframes = map[string]int{
	"M15": 100,
	"H1":  100,
	"H4":  50,
}

// SymbolPipeline scans one symbol per cycle and manages its open positions.
// Pipelines share the gate, gateway and scorer but hold no state about other
// symbols, so the orchestrator can run them concurrently.
type SymbolPipeline struct {
	symbol  string
	gateway broker.Gateway
	scorer  scorer.Scorer
	gate    *risk.Gate
	atr     *ATRCache
	monitor *Monitor
	cfg     config.ScannerConfig
	logger  zerolog.Logger

	mu         sync.Mutex
	lastRegime models.RegimeTag
}

// NewSymbolPipeline creates a pipeline for one symbol.
func NewSymbolPipeline(symbol string, gateway broker.Gateway, sc scorer.Scorer, gate *risk.Gate, atr *ATRCache, monitor *Monitor, cfg config.ScannerConfig, logger zerolog.Logger) *SymbolPipeline {
	return &SymbolPipeline{
		symbol:     symbol,
		gateway:    gateway,
		scorer:     sc,
		gate:       gate,
		atr:        atr,
		monitor:    monitor,
		cfg:        cfg,
		logger:     logger,
		lastRegime: models.RegimeUnknown,
	}
}

// Symbol returns the pipeline's symbol.
func (p *SymbolPipeline) Symbol() string {
	return p.symbol
}

// LastRegime returns the regime from the most recent successful score.
func (p *SymbolPipeline) LastRegime() models.RegimeTag {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRegime
}

func (p *SymbolPipeline) setRegime(r models.RegimeTag) {
	p.mu.Lock()
	p.lastRegime = r
	p.mu.Unlock()
}

// Scan runs the scan leg: risk gate, data fetch, scoring, and candidate
// construction. A nil candidate with a rejection status is the normal
// outcome; most cycles most symbols produce nothing.
func (p *SymbolPipeline) Scan(ctx context.Context) (*models.Candidate, models.ScanStatus) {
	info, err := p.gateway.GetSymbolInfo(ctx, p.symbol)
	if err != nil {
		return nil, models.Rejected(p.symbol, models.RejectNoData, "no symbol info")
	}

	if status := p.gate.CheckPreScan(ctx, p.symbol, info); !status.OK() {
		return nil, status
	}

	data := make(scorer.MultiTimeframeData, len(scoreTimeframes))
	for tf, count := range scoreTimeframes {
		candles, err := p.gateway.GetCandles(ctx, p.symbol, tf, count)
		if err != nil {
			return nil, models.Rejected(p.symbol, models.RejectNoData,
				fmt.Sprintf("no %s candles", tf))
		}
		data[tf] = candles
	}

	score, err := p.scorer.Score(ctx, p.symbol, data)
	if err != nil {
		return nil, models.Rejected(p.symbol, models.RejectScorer, err.Error())
	}
	p.setRegime(score.Regime)
	if score.Direction != models.DirectionLong && score.Direction != models.DirectionShort {
		return nil, models.Rejected(p.symbol, models.RejectNoSignal, "no directional signal")
	}
	if score.ConfluenceScore <= 0 {
		return nil, models.Rejected(p.symbol, models.RejectNoSignal, "zero confluence")
	}

	atr, err := p.atr.ATR(ctx, p.symbol)
	if err != nil {
		return nil, models.Rejected(p.symbol, models.RejectNoData, "no ATR")
	}

	// Volatility floor: ranges too tight to pay for themselves never become
	// candidates regardless of score.
	if floor, ok := p.cfg.VolatilityFloorPips[string(info.AssetClass)]; ok && info.TickSize > 0 {
		if atr/info.TickSize < floor {
			return nil, models.Rejected(p.symbol, models.RejectVolatility,
				fmt.Sprintf("ATR %.1f pips below floor %.1f", atr/info.TickSize, floor))
		}
	}

	stop := p.cfg.StopATRMultiple * atr
	target := p.cfg.TargetATRMultiple * atr
	if stop <= 0 {
		return nil, models.Rejected(p.symbol, models.RejectNoData, "zero ATR stop")
	}
	if target/stop < p.cfg.MinRewardRisk {
		return nil, models.Rejected(p.symbol, models.RejectRewardRisk,
			fmt.Sprintf("%.2f below %.2f", target/stop, p.cfg.MinRewardRisk))
	}

	tick, err := p.gateway.GetTick(ctx, p.symbol)
	if err != nil {
		return nil, models.Rejected(p.symbol, models.RejectNoData, "no tick")
	}
	entry := tick.Ask
	if score.Direction == models.DirectionShort {
		entry = tick.Bid
	}

	cand := &models.Candidate{
		ID:                 uuid.NewString(),
		Symbol:             p.symbol,
		Direction:          score.Direction,
		ConfluenceScore:    score.ConfluenceScore,
		MLProbability:      score.MLProbability,
		EntryPrice:         entry,
		StopDistance:       stop,
		TakeProfitDistance: target,
		Regime:             score.Regime,
		CreatedAt:          time.Now().UTC(),
	}
	return cand, models.Accepted(p.symbol)
}

// ManageActive runs the monitor over this symbol's open positions. ATR
// failures degrade to the monitor's percent-fallback trailing rather than
// skipping management.
func (p *SymbolPipeline) ManageActive(ctx context.Context, positions []models.Position) error {
	if len(positions) == 0 {
		return nil
	}

	info, err := p.gateway.GetSymbolInfo(ctx, p.symbol)
	if err != nil {
		return fmt.Errorf("symbol info for %s: %w", p.symbol, err)
	}

	atr, err := p.atr.ATR(ctx, p.symbol)
	if err != nil {
		p.logger.Warn().Err(err).Str("symbol", p.symbol).Msg("ATR unavailable, trailing falls back to percent")
		atr = 0
	}

	regime := p.LastRegime()
	for _, pos := range positions {
		if err := p.monitor.Manage(ctx, pos, info, atr, regime); err != nil {
			return err
		}
	}
	return nil
}
