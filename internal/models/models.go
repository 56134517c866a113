// Package models provides domain models for the scanner.
package models

import (
	"time"
)

// Direction represents the side of a candidate or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the opposing direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// AssetClass classifies an instrument for spread caps, volatility floors
// and session handling.
type AssetClass string

const (
	AssetForex  AssetClass = "FOREX"
	AssetMetal  AssetClass = "METAL"
	AssetIndex  AssetClass = "INDEX"
	AssetCrypto AssetClass = "CRYPTO"
)

// AlwaysOpen reports whether the asset class trades around the clock and is
// exempt from session-window checks.
func (a AssetClass) AlwaysOpen() bool {
	return a == AssetCrypto
}

// RegimeTag is a classified market condition attached to a candidate.
type RegimeTag string

const (
	RegimeTrending RegimeTag = "TRENDING"
	RegimeRanging  RegimeTag = "RANGING"
	RegimeVolatile RegimeTag = "VOLATILE"
	RegimeUnknown  RegimeTag = "UNKNOWN"
)

// Candidate is a proposed trade awaiting risk admission. Candidates are
// created per scan cycle, never mutated, and discarded if not executed.
type Candidate struct {
	ID                 string
	Symbol             string
	Direction          Direction
	ConfluenceScore    int
	MLProbability      float64
	EntryPrice         float64
	StopDistance       float64
	TakeProfitDistance float64
	Regime             RegimeTag
	CreatedAt          time.Time
}

// Position mirrors a broker-owned open position. The scanner reads it each
// cycle and mutates it only through gateway calls.
type Position struct {
	Ticket        int64
	Symbol        string
	Direction     Direction
	Volume        float64
	EntryPrice    float64
	CurrentPrice  float64
	StopLoss      float64
	TakeProfit    float64
	UnrealizedPnL float64
	OpenedAt      time.Time
}

// SymbolStats is a rolling aggregate over a lookback window of closed trades.
type SymbolStats struct {
	Symbol          string
	WinRate         float64
	AvgWin          float64
	AvgLoss         float64
	TradeCount      int
	LastRefreshedAt time.Time
}

// Tick is a best bid/ask snapshot.
type Tick struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Mid returns the mid price.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread returns the raw bid/ask spread in price units.
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// SymbolInfo carries the broker's trading parameters for an instrument.
type SymbolInfo struct {
	Symbol       string
	AssetClass   AssetClass
	TickSize     float64
	TickValue    float64 // monetary value of one tick for one lot
	VolumeMin    float64
	VolumeMax    float64
	VolumeStep   float64
	VolumeDigits int
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Deal is a closed broker deal used for stats and daily P&L.
type Deal struct {
	Ticket    int64
	Symbol    string
	Volume    float64
	Profit    float64
	Timestamp time.Time
}

// AccountInfo is a snapshot of the trading account.
type AccountInfo struct {
	Balance  float64
	Equity   float64
	Currency string
}
