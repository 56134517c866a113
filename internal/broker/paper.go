package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"forex-scanner/internal/models"

	apperrors "forex-scanner/internal/errors"
)

// PaperGateway is an in-memory Gateway used for paper trading and tests.
// Market data is seeded through the Set* helpers; orders fill instantly at
// the current tick.
type PaperGateway struct {
	mu         sync.RWMutex
	ticks      map[string]models.Tick
	infos      map[string]models.SymbolInfo
	candles    map[string][]models.Candle // keyed symbol|timeframe
	positions  map[int64]*models.Position
	deals      []models.Deal
	account    models.AccountInfo
	nextTicket int64

	// Fault injection for tests: calls for these symbols fail.
	failSymbols map[string]bool
}

// NewPaperGateway creates an empty paper gateway with the given balance.
func NewPaperGateway(balance float64) *PaperGateway {
	return &PaperGateway{
		ticks:       make(map[string]models.Tick),
		infos:       make(map[string]models.SymbolInfo),
		candles:     make(map[string][]models.Candle),
		positions:   make(map[int64]*models.Position),
		account:     models.AccountInfo{Balance: balance, Equity: balance, Currency: "USD"},
		nextTicket:  1000,
		failSymbols: make(map[string]bool),
	}
}

// SetTick seeds the current tick for a symbol and refreshes open-position
// prices and unrealized P&L.
func (g *PaperGateway) SetTick(tick models.Tick) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ticks[tick.Symbol] = tick

	for _, pos := range g.positions {
		if pos.Symbol != tick.Symbol {
			continue
		}
		info := g.infos[pos.Symbol]
		if pos.Direction == models.DirectionLong {
			pos.CurrentPrice = tick.Bid
		} else {
			pos.CurrentPrice = tick.Ask
		}
		if info.TickSize > 0 {
			move := pos.CurrentPrice - pos.EntryPrice
			if pos.Direction == models.DirectionShort {
				move = -move
			}
			pos.UnrealizedPnL = move / info.TickSize * info.TickValue * pos.Volume
		}
	}
}

// SetSymbolInfo seeds trading parameters for a symbol.
func (g *PaperGateway) SetSymbolInfo(info models.SymbolInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.infos[info.Symbol] = info
}

// SetCandles seeds candle history for a symbol and timeframe.
func (g *PaperGateway) SetCandles(symbol, timeframe string, candles []models.Candle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.candles[symbol+"|"+timeframe] = candles
}

// AddDeal appends a closed deal to the history.
func (g *PaperGateway) AddDeal(deal models.Deal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deals = append(g.deals, deal)
}

// SetBalance overrides the account balance.
func (g *PaperGateway) SetBalance(balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.account.Balance = balance
	g.account.Equity = balance
}

// FailSymbol makes all calls for the symbol return an error until cleared.
func (g *PaperGateway) FailSymbol(symbol string, fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failSymbols[symbol] = fail
}

func (g *PaperGateway) failing(symbol string) bool {
	return g.failSymbols[symbol]
}

// GetTick implements Gateway.
func (g *PaperGateway) GetTick(ctx context.Context, symbol string) (*models.Tick, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.failing(symbol) {
		return nil, apperrors.NewGatewayError("tick", symbol, apperrors.ErrNoTick)
	}
	tick, ok := g.ticks[symbol]
	if !ok {
		return nil, apperrors.NewGatewayError("tick", symbol, apperrors.ErrNoTick)
	}
	return &tick, nil
}

// GetSymbolInfo implements Gateway.
func (g *PaperGateway) GetSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.failing(symbol) {
		return nil, apperrors.NewGatewayError("symbol_info", symbol, apperrors.ErrSymbolNotFound)
	}
	info, ok := g.infos[symbol]
	if !ok {
		return nil, apperrors.NewGatewayError("symbol_info", symbol, apperrors.ErrSymbolNotFound)
	}
	return &info, nil
}

// GetCandles implements Gateway.
func (g *PaperGateway) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.failing(symbol) {
		return nil, apperrors.NewGatewayError("candles", symbol, apperrors.ErrNoHistory)
	}
	all := g.candles[symbol+"|"+timeframe]
	if len(all) == 0 {
		return nil, apperrors.NewGatewayError("candles", symbol, apperrors.ErrNoHistory)
	}
	if count > 0 && len(all) > count {
		all = all[len(all)-count:]
	}
	out := make([]models.Candle, len(all))
	copy(out, all)
	return out, nil
}

// GetAccountInfo implements Gateway.
func (g *PaperGateway) GetAccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	account := g.account
	return &account, nil
}

// GetOpenPositions implements Gateway.
func (g *PaperGateway) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Position, 0, len(g.positions))
	for _, pos := range g.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// GetHistoryDeals implements Gateway.
func (g *PaperGateway) GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []models.Deal
	for _, d := range g.deals {
		if !d.Timestamp.Before(from) && !d.Timestamp.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

// PlaceOrder implements Gateway. Orders fill at the current tick: ask for
// longs, bid for shorts.
func (g *PaperGateway) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failing(req.Symbol) {
		return nil, apperrors.NewGatewayError("place_order", req.Symbol, apperrors.ErrOrderRejected)
	}
	tick, ok := g.ticks[req.Symbol]
	if !ok {
		return nil, apperrors.NewGatewayError("place_order", req.Symbol, apperrors.ErrNoTick)
	}
	if req.Volume <= 0 {
		return nil, apperrors.NewGatewayError("place_order", req.Symbol, apperrors.ErrOrderRejected)
	}

	price := tick.Ask
	if req.Direction == models.DirectionShort {
		price = tick.Bid
	}

	g.nextTicket++
	ticket := g.nextTicket
	g.positions[ticket] = &models.Position{
		Ticket:       ticket,
		Symbol:       req.Symbol,
		Direction:    req.Direction,
		Volume:       req.Volume,
		EntryPrice:   price,
		CurrentPrice: price,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		OpenedAt:     time.Now().UTC(),
	}

	return &OrderResult{Ticket: ticket, Price: price, Status: "FILLED"}, nil
}

// ModifyPosition implements Gateway.
func (g *PaperGateway) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[ticket]
	if !ok {
		return apperrors.NewGatewayError("modify", fmt.Sprintf("#%d", ticket), apperrors.ErrPositionNotFound)
	}
	if stopLoss > 0 {
		pos.StopLoss = stopLoss
	}
	if takeProfit > 0 {
		pos.TakeProfit = takeProfit
	}
	return nil
}

// PartialClose implements Gateway. The closed fraction's P&L is realized as a
// deal.
func (g *PaperGateway) PartialClose(ctx context.Context, ticket int64, fraction float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[ticket]
	if !ok {
		return apperrors.NewGatewayError("partial_close", fmt.Sprintf("#%d", ticket), apperrors.ErrPositionNotFound)
	}
	if fraction <= 0 || fraction >= 1 {
		return apperrors.NewGatewayError("partial_close", pos.Symbol, apperrors.ErrOrderRejected)
	}

	closedVolume := pos.Volume * fraction
	g.realizeLocked(pos, closedVolume)
	pos.Volume -= closedVolume
	return nil
}

// ClosePosition implements Gateway.
func (g *PaperGateway) ClosePosition(ctx context.Context, ticket int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[ticket]
	if !ok {
		return apperrors.NewGatewayError("close", fmt.Sprintf("#%d", ticket), apperrors.ErrPositionNotFound)
	}
	g.realizeLocked(pos, pos.Volume)
	delete(g.positions, ticket)
	return nil
}

// realizeLocked books the P&L for closedVolume lots of pos as a deal and
// settles it into the balance. Must hold g.mu.
func (g *PaperGateway) realizeLocked(pos *models.Position, closedVolume float64) {
	info := g.infos[pos.Symbol]
	var profit float64
	if info.TickSize > 0 {
		move := pos.CurrentPrice - pos.EntryPrice
		if pos.Direction == models.DirectionShort {
			move = -move
		}
		profit = move / info.TickSize * info.TickValue * closedVolume
	}
	g.deals = append(g.deals, models.Deal{
		Ticket:    pos.Ticket,
		Symbol:    pos.Symbol,
		Volume:    closedVolume,
		Profit:    profit,
		Timestamp: time.Now().UTC(),
	})
	g.account.Balance += profit
	g.account.Equity = g.account.Balance
}
