// Package trading provides the per-symbol pipelines, the active-position
// monitor and the orchestrator that runs them concurrently each cycle.
package trading

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/models"
)

// ComputeATR returns Wilder's average true range over the given period.
func ComputeATR(candles []models.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive")
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("need %d candles, have %d", period+1, len(candles))
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowClose := math.Abs(candles[i].Low - candles[i-1].Close)
		trs = append(trs, math.Max(highLow, math.Max(highClose, lowClose)))
	}

	// Seed with a simple average, then smooth.
	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, nil
}

type atrEntry struct {
	value      float64
	computedAt time.Time
}

// ATRCache computes ATR values with a short staleness window so manage-active
// passes do not refetch candles every cycle. Correctness never depends on a
// cache hit: a stale or missing entry is recomputed from the gateway.
type ATRCache struct {
	gateway   broker.Gateway
	timeframe string
	period    int
	ttl       time.Duration

	mu      sync.Mutex
	entries map[string]atrEntry

	// now is swappable for tests.
	now func() time.Time
}

// NewATRCache creates a cache reading candles from the gateway.
func NewATRCache(gateway broker.Gateway, timeframe string, period int, ttl time.Duration) *ATRCache {
	return &ATRCache{
		gateway:   gateway,
		timeframe: timeframe,
		period:    period,
		ttl:       ttl,
		entries:   make(map[string]atrEntry),
		now:       time.Now,
	}
}

// ATR returns the symbol's ATR, reusing a cached value within the staleness
// window.
func (c *ATRCache) ATR(ctx context.Context, symbol string) (float64, error) {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[symbol]; ok && now.Sub(e.computedAt) < c.ttl {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	candles, err := c.gateway.GetCandles(ctx, symbol, c.timeframe, c.period*3)
	if err != nil {
		return 0, err
	}
	atr, err := ComputeATR(candles, c.period)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[symbol] = atrEntry{value: atr, computedAt: now}
	c.mu.Unlock()
	return atr, nil
}
