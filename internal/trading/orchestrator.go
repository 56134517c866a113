package trading

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/config"
	"forex-scanner/internal/events"
	"forex-scanner/internal/logging"
	"forex-scanner/internal/metrics"
	"forex-scanner/internal/models"
	"forex-scanner/internal/risk"
	"forex-scanner/internal/sizing"
)

// Journal records executed trades and cycle summaries. The SQLite store
// implements it; a nil journal disables recording.
type Journal interface {
	RecordTrade(ctx context.Context, cand *models.Candidate, ticket int64, volume, price float64) error
	RecordCycle(ctx context.Context, cycle uint64, scanned, candidates, executed int, elapsed time.Duration) error
}

// ExecutedTrade is the payload of a trade_executed event.
type ExecutedTrade struct {
	Ticket          int64            `json:"ticket"`
	Symbol          string           `json:"symbol"`
	Direction       models.Direction `json:"direction"`
	Volume          float64          `json:"volume"`
	Price           float64          `json:"price"`
	StopLoss        float64          `json:"stop_loss"`
	TakeProfit      float64          `json:"take_profit"`
	ConfluenceScore int              `json:"confluence_score"`
	RiskPercent     float64          `json:"risk_percent"`
	UsedKelly       bool             `json:"used_kelly"`
}

// CycleReport summarizes one orchestrator cycle.
type CycleReport struct {
	Cycle      uint64              `json:"cycle"`
	Scanned    int                 `json:"scanned"`
	Candidates int                 `json:"candidates"`
	Executed   int                 `json:"executed"`
	Skipped    bool                `json:"skipped"`
	Statuses   []models.ScanStatus `json:"statuses"`
	ElapsedMS  int64               `json:"elapsed_ms"`
}

// Orchestrator drives the scan cycle: manage open positions, fan scans out
// across symbols, rank the survivors, and execute the best few through the
// execution gate. One cycle at a time; per-symbol work inside a cycle runs
// concurrently.
type Orchestrator struct {
	cfg        config.ScannerConfig
	sessionCfg config.SessionConfig
	riskCfg    config.RiskConfig

	gateway   broker.Gateway
	gate      *risk.Gate
	sizer     *sizing.Sizer
	monitor   *Monitor
	pipelines []*SymbolPipeline
	classes   map[string]models.AssetClass
	hub       *events.Hub
	journal   Journal
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	cycle uint64

	// now is swappable for tests.
	now func() time.Time
}

// NewOrchestrator wires the orchestrator. classes maps each symbol to its
// asset class for the session gate; journal may be nil.
func NewOrchestrator(
	cfg config.ScannerConfig,
	sessionCfg config.SessionConfig,
	riskCfg config.RiskConfig,
	gateway broker.Gateway,
	gate *risk.Gate,
	sizer *sizing.Sizer,
	monitor *Monitor,
	pipelines []*SymbolPipeline,
	classes map[string]models.AssetClass,
	hub *events.Hub,
	journal Journal,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		sessionCfg: sessionCfg,
		riskCfg:    riskCfg,
		gateway:    gateway,
		gate:       gate,
		sizer:      sizer,
		monitor:    monitor,
		pipelines:  pipelines,
		classes:    classes,
		hub:        hub,
		journal:    journal,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the orchestrator's clock. Test hook.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Run loops cycles until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := time.Duration(o.cfg.CycleSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info().Int("symbols", len(o.pipelines)).Dur("interval", interval).Msg("Orchestrator started")
	o.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Orchestrator stopping")
			return ctx.Err()
		case <-ticker.C:
			o.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full cycle under the cycle deadline. The deadline is
// checked before each new order dispatch, so an order already sent to the
// broker always completes.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	o.cycle++
	start := o.now()
	logger := logging.WithCycle(o.logger, o.cycle)

	cycleCtx := ctx
	if o.cfg.CycleTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.CycleTimeoutSeconds)*time.Second)
		defer cancel()
	}

	report := CycleReport{Cycle: o.cycle}
	active := o.activePipelines(start)
	o.hub.Publish(events.TypeScanStart, map[string]interface{}{
		"cycle":   o.cycle,
		"symbols": len(active),
	})

	open, err := o.gateway.GetOpenPositions(cycleCtx)
	if err != nil {
		logger.Error().Err(err).Msg("Open positions unavailable, cycle skipped")
		report.Skipped = true
		return report
	}

	o.manageActive(cycleCtx, logger, active, open)

	// The position cap stops new risk but never stops managing what is
	// already open, which is why the cap check sits after manageActive.
	if len(open) >= o.cfg.MaxOpenPositions {
		logger.Info().Int("open", len(open)).Msg("Open-position cap reached, scan skipped")
		report.Skipped = true
		o.finishCycle(cycleCtx, logger, &report, start)
		return report
	}

	candidates, statuses := o.scanAll(cycleCtx, logger, active)
	report.Scanned = len(active)
	report.Candidates = len(candidates)
	report.Statuses = statuses

	rankCandidates(candidates)
	report.Executed = o.executeBest(cycleCtx, logger, candidates, open)

	o.finishCycle(cycleCtx, logger, &report, start)
	return report
}

// activePipelines filters the universe to symbols currently inside their
// session window. Always-open classes survive the filter around the clock.
func (o *Orchestrator) activePipelines(now time.Time) []*SymbolPipeline {
	active := make([]*SymbolPipeline, 0, len(o.pipelines))
	for _, p := range o.pipelines {
		class := o.classes[p.Symbol()]
		if risk.InSession(o.sessionCfg, class, now) {
			active = append(active, p)
		}
	}
	return active
}

// manageActive fans position management out per pipeline. A panicking or
// failing pipeline affects only its own positions.
func (o *Orchestrator) manageActive(ctx context.Context, logger zerolog.Logger, pipelines []*SymbolPipeline, open []models.Position) {
	bySymbol := make(map[string][]models.Position, len(open))
	for _, pos := range open {
		bySymbol[pos.Symbol] = append(bySymbol[pos.Symbol], pos)
	}

	var wg sync.WaitGroup
	for _, p := range pipelines {
		positions := bySymbol[p.Symbol()]
		if len(positions) == 0 {
			continue
		}
		wg.Add(1)
		go func(p *SymbolPipeline, positions []models.Position) {
			defer wg.Done()
			defer recoverPipeline(logger, p.Symbol(), "manage")
			if err := p.ManageActive(ctx, positions); err != nil {
				logger.Warn().Err(err).Str("symbol", p.Symbol()).Msg("Manage-active failed")
			}
		}(p, positions)
	}
	wg.Wait()
}

// scanAll fans scans out across pipelines and joins the results. Statuses
// come back in a deterministic order for the summary.
func (o *Orchestrator) scanAll(ctx context.Context, logger zerolog.Logger, pipelines []*SymbolPipeline) ([]*models.Candidate, []models.ScanStatus) {
	type scanResult struct {
		cand   *models.Candidate
		status models.ScanStatus
	}
	results := make([]scanResult, len(pipelines))

	var wg sync.WaitGroup
	for i, p := range pipelines {
		wg.Add(1)
		go func(i int, p *SymbolPipeline) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Str("symbol", p.Symbol()).Interface("panic", r).Msg("Scan panicked")
					results[i] = scanResult{status: models.Rejected(p.Symbol(), models.RejectNoData,
						fmt.Sprintf("scan panic: %v", r))}
				}
			}()
			cand, status := p.Scan(ctx)
			results[i] = scanResult{cand: cand, status: status}
		}(i, p)
	}
	wg.Wait()

	var candidates []*models.Candidate
	statuses := make([]models.ScanStatus, 0, len(results))
	for _, res := range results {
		statuses = append(statuses, res.status)
		o.metrics.SymbolsScanned.Inc()
		if res.cand != nil {
			candidates = append(candidates, res.cand)
			o.metrics.CandidatesTotal.Inc()
		} else {
			o.metrics.RecordRejection(string(res.status.Code))
			logging.LogRejection(logger, res.status.Symbol, string(res.status.Code), res.status.Detail)
		}
	}
	return candidates, statuses
}

// rankCandidates orders by confluence score, then ML probability, both
// descending. Symbol breaks the remaining ties so ranking is deterministic.
func rankCandidates(candidates []*models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ConfluenceScore != b.ConfluenceScore {
			return a.ConfluenceScore > b.ConfluenceScore
		}
		if a.MLProbability != b.MLProbability {
			return a.MLProbability > b.MLProbability
		}
		return a.Symbol < b.Symbol
	})
}

// executeBest walks the ranked candidates through the execution gate until
// the per-cycle budget is spent or the deadline passes. open grows as orders
// fill so later candidates see the new exposure.
func (o *Orchestrator) executeBest(ctx context.Context, logger zerolog.Logger, candidates []*models.Candidate, open []models.Position) int {
	executed := 0
	for _, cand := range candidates {
		if executed >= o.cfg.MaxTradesPerCycle {
			break
		}
		if ctx.Err() != nil {
			logger.Warn().Str("symbol", cand.Symbol).Msg("Cycle deadline reached, remaining candidates dropped")
			break
		}

		pos, err := o.executeOne(ctx, logger, cand, open)
		if err != nil {
			logger.Warn().Err(err).Str("symbol", cand.Symbol).Msg("Execution failed")
			continue
		}
		if pos != nil {
			open = append(open, *pos)
			executed++
		}
	}
	return executed
}

// executeOne runs the execution gate and sizing for one candidate and places
// the order. A nil position with nil error means the gate rejected it.
func (o *Orchestrator) executeOne(ctx context.Context, logger zerolog.Logger, cand *models.Candidate, open []models.Position) (*models.Position, error) {
	info, err := o.gateway.GetSymbolInfo(ctx, cand.Symbol)
	if err != nil {
		return nil, fmt.Errorf("symbol info: %w", err)
	}

	if status := o.gate.CheckExecution(ctx, cand, info, open); !status.OK() {
		o.metrics.RecordRejection(string(status.Code))
		logging.LogRejection(logger, status.Symbol, string(status.Code), status.Detail)
		return nil, nil
	}

	account, err := o.gateway.GetAccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("account info: %w", err)
	}

	stats, _, err := o.gate.Stats(ctx, cand.Symbol, o.now())
	if err != nil {
		// Sizing still works without history; the tiered default applies.
		stats = models.SymbolStats{Symbol: cand.Symbol}
	}

	sized, err := o.sizer.Size(account.Balance, info, stats, cand.StopDistance, cand.ConfluenceScore, 1.0)
	if err != nil {
		return nil, fmt.Errorf("sizing: %w", err)
	}
	if sized.Volume <= 0 {
		return nil, fmt.Errorf("sized to zero volume")
	}

	stopLoss := cand.EntryPrice - cand.StopDistance
	takeProfit := cand.EntryPrice + cand.TakeProfitDistance
	if cand.Direction == models.DirectionShort {
		stopLoss = cand.EntryPrice + cand.StopDistance
		takeProfit = cand.EntryPrice - cand.TakeProfitDistance
	}

	// An order being placed must complete even if the cycle deadline fires
	// mid-flight; only new dispatches respect the deadline.
	orderCtx := context.WithoutCancel(ctx)
	result, err := o.gateway.PlaceOrder(orderCtx, &broker.OrderRequest{
		Symbol:     cand.Symbol,
		Direction:  cand.Direction,
		Volume:     sized.Volume,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Comment:    cand.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	now := o.now()
	if err := o.gate.RiskState().RecordTrade(now); err != nil {
		logger.Error().Err(err).Msg("Persisting daily trade count failed")
	}
	cooldown := time.Duration(o.riskCfg.CooldownMinutes) * time.Minute
	if cooldown > 0 {
		if err := o.gate.RiskState().StampCooldown(cand.Symbol, now.Add(cooldown)); err != nil {
			logger.Error().Err(err).Msg("Persisting cooldown failed")
		}
	}
	o.monitor.RecordOpen(result.Ticket, cand.Regime)

	logging.LogTrade(logger, cand.Symbol, string(cand.Direction), sized.Volume, result.Price)
	o.metrics.TradesTotal.Inc()
	o.hub.Publish(events.TypeTradeExecuted, ExecutedTrade{
		Ticket:          result.Ticket,
		Symbol:          cand.Symbol,
		Direction:       cand.Direction,
		Volume:          sized.Volume,
		Price:           result.Price,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		ConfluenceScore: cand.ConfluenceScore,
		RiskPercent:     sized.RiskPercent,
		UsedKelly:       sized.UsedKelly,
	})
	if o.journal != nil {
		if err := o.journal.RecordTrade(orderCtx, cand, result.Ticket, sized.Volume, result.Price); err != nil {
			logger.Warn().Err(err).Msg("Journal write failed")
		}
	}

	return &models.Position{
		Ticket:       result.Ticket,
		Symbol:       cand.Symbol,
		Direction:    cand.Direction,
		Volume:       sized.Volume,
		EntryPrice:   result.Price,
		CurrentPrice: result.Price,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		OpenedAt:     now,
	}, nil
}

// finishCycle emits the summary event, metrics and journal row.
func (o *Orchestrator) finishCycle(ctx context.Context, logger zerolog.Logger, report *CycleReport, start time.Time) {
	elapsed := o.now().Sub(start)
	report.ElapsedMS = elapsed.Milliseconds()

	if positions, err := o.gateway.GetOpenPositions(ctx); err == nil {
		o.metrics.OpenPositions.Set(float64(len(positions)))
		o.hub.Publish(events.TypePositionUpdate, positions)
	}
	if account, err := o.gateway.GetAccountInfo(ctx); err == nil {
		o.metrics.AccountBalance.Set(account.Balance)
		o.hub.Publish(events.TypeAccountUpdate, account)
	}

	o.metrics.ObserveCycle(elapsed)
	o.hub.Publish(events.TypeScanSummary, report)
	logging.LogScanSummary(logger, report.Cycle, report.Scanned, report.Candidates, report.Executed, elapsed)

	if o.journal != nil {
		if err := o.journal.RecordCycle(ctx, report.Cycle, report.Scanned, report.Candidates, report.Executed, elapsed); err != nil {
			logger.Warn().Err(err).Msg("Journal cycle write failed")
		}
	}
}

// recoverPipeline converts a pipeline panic into a log line.
func recoverPipeline(logger zerolog.Logger, symbol, stage string) {
	if r := recover(); r != nil {
		logger.Error().Str("symbol", symbol).Str("stage", stage).Interface("panic", r).Msg("Pipeline panicked")
	}
}
