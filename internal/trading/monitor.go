package trading

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/config"
	"forex-scanner/internal/logging"
	"forex-scanner/internal/models"
)

// Monitor applies the in-trade management ladder to open positions: regime
// exit, break-even move, one-shot partial close, and ATR trailing. Stop
// modifications only ever tighten, and moves smaller than the minimum modify
// distance are suppressed to avoid churning the broker with noise.
type Monitor struct {
	gateway broker.Gateway
	cfg     config.MonitorConfig
	logger  zerolog.Logger

	mu          sync.Mutex
	partialDone map[int64]bool
	openRegime  map[int64]models.RegimeTag
}

// NewMonitor creates a monitor.
func NewMonitor(gateway broker.Gateway, cfg config.MonitorConfig, logger zerolog.Logger) *Monitor {
	return &Monitor{
		gateway:     gateway,
		cfg:         cfg,
		logger:      logger,
		partialDone: make(map[int64]bool),
		openRegime:  make(map[int64]models.RegimeTag),
	}
}

// RecordOpen remembers the regime a position was opened under so a later
// regime flip can trigger an exit.
func (m *Monitor) RecordOpen(ticket int64, regime models.RegimeTag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openRegime[ticket] = regime
}

// Forget drops per-ticket bookkeeping once a position is fully closed.
func (m *Monitor) Forget(ticket int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partialDone, ticket)
	delete(m.openRegime, ticket)
}

// Manage runs the management ladder for one position. atr may be zero when
// unavailable; the trailing step then uses the percent fallback. regime is
// the symbol's current classification, RegimeUnknown when no fresh score
// exists.
func (m *Monitor) Manage(ctx context.Context, pos models.Position, info *models.SymbolInfo, atr float64, regime models.RegimeTag) error {
	if closed, err := m.regimeExit(ctx, pos, regime); closed || err != nil {
		return err
	}

	// Favorable excursion from entry, in price units.
	reward := pos.CurrentPrice - pos.EntryPrice
	if pos.Direction == models.DirectionShort {
		reward = -reward
	}

	// pos is a local copy; modifyStop keeps its StopLoss current so the
	// trailing step sees the break-even move from this same pass.
	if err := m.breakEven(ctx, &pos, info, reward); err != nil {
		return err
	}
	if err := m.partialClose(ctx, pos, reward); err != nil {
		return err
	}
	return m.trail(ctx, &pos, info, atr, reward)
}

// regimeExit closes the position outright when the market regime has flipped
// away from the one it was opened under. Positions opened before a restart
// have no recorded regime and are never regime-exited.
func (m *Monitor) regimeExit(ctx context.Context, pos models.Position, regime models.RegimeTag) (bool, error) {
	m.mu.Lock()
	opened, known := m.openRegime[pos.Ticket]
	m.mu.Unlock()

	if !known || regime == models.RegimeUnknown || regime == opened {
		return false, nil
	}

	if err := m.gateway.ClosePosition(ctx, pos.Ticket); err != nil {
		return false, fmt.Errorf("regime exit close %d: %w", pos.Ticket, err)
	}
	m.Forget(pos.Ticket)
	m.logger.Info().Str("symbol", pos.Symbol).Int64("ticket", pos.Ticket).
		Str("from", string(opened)).Str("to", string(regime)).Msg("Regime flipped, closing position")
	return true, nil
}

// breakEven moves the stop to entry plus a small buffer once the unrealized
// reward reaches the configured multiple of the initial risk.
func (m *Monitor) breakEven(ctx context.Context, pos *models.Position, info *models.SymbolInfo, reward float64) error {
	risk := math.Abs(pos.EntryPrice - pos.StopLoss)
	if pos.StopLoss == 0 || risk == 0 {
		return nil
	}
	if reward < m.cfg.BreakEvenRewardRisk*risk {
		return nil
	}

	buffer := m.cfg.BreakEvenBufferPips * info.TickSize
	newSL := pos.EntryPrice + buffer
	if pos.Direction == models.DirectionShort {
		newSL = pos.EntryPrice - buffer
	}
	return m.modifyStop(ctx, pos, info, newSL, "break_even")
}

// partialClose takes partial profit once, the first time the reward crosses
// the configured fraction of the target distance. The ticket is remembered so
// the close never fires twice even though the trigger stays true afterwards.
func (m *Monitor) partialClose(ctx context.Context, pos models.Position, reward float64) error {
	if m.cfg.PartialVolumeFraction <= 0 || pos.TakeProfit == 0 {
		return nil
	}
	targetDist := math.Abs(pos.TakeProfit - pos.EntryPrice)
	if targetDist == 0 || reward < m.cfg.PartialTargetFraction*targetDist {
		return nil
	}

	m.mu.Lock()
	done := m.partialDone[pos.Ticket]
	m.mu.Unlock()
	if done {
		return nil
	}

	if err := m.gateway.PartialClose(ctx, pos.Ticket, m.cfg.PartialVolumeFraction); err != nil {
		return fmt.Errorf("partial close %d: %w", pos.Ticket, err)
	}

	m.mu.Lock()
	m.partialDone[pos.Ticket] = true
	m.mu.Unlock()

	logging.LogPositionChange(m.logger, pos.Ticket, pos.Symbol, "partial_close", m.cfg.PartialVolumeFraction)
	return nil
}

// trail ratchets the stop behind price once the reward exceeds the activation
// multiple of ATR. With no usable ATR the percent fallback applies.
func (m *Monitor) trail(ctx context.Context, pos *models.Position, info *models.SymbolInfo, atr float64, reward float64) error {
	var distance float64
	if atr > 0 {
		if reward < m.cfg.TrailActivateATR*atr {
			return nil
		}
		distance = m.cfg.TrailStepATR * atr
	} else {
		distance = pos.CurrentPrice * m.cfg.TrailFallbackPercent / 100
		if distance <= 0 || reward < distance {
			return nil
		}
	}

	newSL := pos.CurrentPrice - distance
	if pos.Direction == models.DirectionShort {
		newSL = pos.CurrentPrice + distance
	}
	return m.modifyStop(ctx, pos, info, newSL, "trail")
}

// modifyStop pushes a stop change to the gateway if it tightens the stop and
// moves it far enough to be worth a broker round trip.
func (m *Monitor) modifyStop(ctx context.Context, pos *models.Position, info *models.SymbolInfo, newSL float64, action string) error {
	if !tightens(*pos, newSL) {
		return nil
	}
	minDistance := m.cfg.MinModifyDistancePips * info.TickSize
	if pos.StopLoss != 0 && math.Abs(newSL-pos.StopLoss) < minDistance {
		return nil
	}

	if err := m.gateway.ModifyPosition(ctx, pos.Ticket, newSL, pos.TakeProfit); err != nil {
		return fmt.Errorf("modify %d: %w", pos.Ticket, err)
	}
	pos.StopLoss = newSL
	logging.LogPositionChange(m.logger, pos.Ticket, pos.Symbol, action, newSL)
	return nil
}

// tightens reports whether newSL is strictly closer to (or past) price than
// the current stop, in the protective direction.
func tightens(pos models.Position, newSL float64) bool {
	if pos.StopLoss == 0 {
		return true
	}
	if pos.Direction == models.DirectionLong {
		return newSL > pos.StopLoss
	}
	return newSL < pos.StopLoss
}
