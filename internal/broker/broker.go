// Package broker provides the brokerage gateway boundary.
package broker

import (
	"context"
	"time"

	"forex-scanner/internal/models"
)

// Gateway defines the interface for brokerage operations. Every call may fail
// transiently; callers treat failure as "skip this symbol this cycle", never
// as fatal.
type Gateway interface {
	// Market data
	GetTick(ctx context.Context, symbol string) (*models.Tick, error)
	GetSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error)
	GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error)

	// Account
	GetAccountInfo(ctx context.Context) (*models.AccountInfo, error)
	GetOpenPositions(ctx context.Context) ([]models.Position, error)
	GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error)

	// Orders
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	PartialClose(ctx context.Context, ticket int64, fraction float64) error
	ClosePosition(ctx context.Context, ticket int64) error
}

// OrderRequest describes a market order with attached stops.
type OrderRequest struct {
	Symbol     string
	Direction  models.Direction
	Volume     float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// OrderResult is the outcome of an order placement.
type OrderResult struct {
	Ticket int64
	Price  float64
	Status string
}
