package broker

import (
	"context"
	"time"

	"forex-scanner/internal/models"
)

// SimGateway is the paper-trading gateway: market data comes from a real
// data source while orders, positions and balance live in the in-memory
// paper book. Ticks read through it feed the paper book so unrealized P&L
// tracks the market.
type SimGateway struct {
	data  Gateway
	paper *PaperGateway
}

// NewSimGateway creates a paper gateway over the given data source.
func NewSimGateway(data Gateway, paper *PaperGateway) *SimGateway {
	return &SimGateway{data: data, paper: paper}
}

// GetTick implements Gateway, mirroring the tick into the paper book.
func (s *SimGateway) GetTick(ctx context.Context, symbol string) (*models.Tick, error) {
	tick, err := s.data.GetTick(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.paper.SetTick(*tick)
	return tick, nil
}

// GetSymbolInfo implements Gateway.
func (s *SimGateway) GetSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	info, err := s.data.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.paper.SetSymbolInfo(*info)
	return info, nil
}

// GetCandles implements Gateway.
func (s *SimGateway) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	return s.data.GetCandles(ctx, symbol, timeframe, count)
}

// GetAccountInfo implements Gateway, answering from the paper book.
func (s *SimGateway) GetAccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	return s.paper.GetAccountInfo(ctx)
}

// GetOpenPositions implements Gateway, answering from the paper book.
func (s *SimGateway) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	return s.paper.GetOpenPositions(ctx)
}

// GetHistoryDeals implements Gateway, answering from the paper book.
func (s *SimGateway) GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error) {
	return s.paper.GetHistoryDeals(ctx, from, to)
}

// PlaceOrder implements Gateway, refreshing the tick first so fills use
// current prices.
func (s *SimGateway) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	if _, err := s.GetTick(ctx, req.Symbol); err != nil {
		return nil, err
	}
	return s.paper.PlaceOrder(ctx, req)
}

// ModifyPosition implements Gateway.
func (s *SimGateway) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	return s.paper.ModifyPosition(ctx, ticket, stopLoss, takeProfit)
}

// PartialClose implements Gateway.
func (s *SimGateway) PartialClose(ctx context.Context, ticket int64, fraction float64) error {
	return s.paper.PartialClose(ctx, ticket, fraction)
}

// ClosePosition implements Gateway.
func (s *SimGateway) ClosePosition(ctx context.Context, ticket int64) error {
	return s.paper.ClosePosition(ctx, ticket)
}
