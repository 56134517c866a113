// Package risk provides the risk gate, symbol statistics, the correlation
// filter and the supporting calendars that decide whether a candidate may
// trade.
package risk

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/models"
)

// StatsTracker maintains rolling SymbolStats from broker deal history.
// Refreshes are throttled per symbol to bound history-query volume; between
// refreshes callers get the cached aggregate.
type StatsTracker struct {
	gateway         broker.Gateway
	refreshInterval time.Duration
	lookback        time.Duration
	lastN           int

	mu      sync.Mutex
	stats   map[string]models.SymbolStats
	recents map[string][]float64 // most recent trade PnLs, newest last
}

// NewStatsTracker creates a tracker reading from the gateway.
func NewStatsTracker(gateway broker.Gateway, refreshInterval, lookback time.Duration, lastN int) *StatsTracker {
	return &StatsTracker{
		gateway:         gateway,
		refreshInterval: refreshInterval,
		lookback:        lookback,
		lastN:           lastN,
		stats:           make(map[string]models.SymbolStats),
		recents:         make(map[string][]float64),
	}
}

// Stats returns the aggregate and the recent PnL series for a symbol,
// refreshing from the gateway when the cache is past its refresh interval.
// On gateway failure a stale cache entry is still served; with no cache at
// all the error propagates.
func (t *StatsTracker) Stats(ctx context.Context, symbol string, now time.Time) (models.SymbolStats, []float64, error) {
	t.mu.Lock()
	cached, ok := t.stats[symbol]
	if ok && now.Sub(cached.LastRefreshedAt) < t.refreshInterval {
		recent := append([]float64(nil), t.recents[symbol]...)
		t.mu.Unlock()
		return cached, recent, nil
	}
	t.mu.Unlock()

	deals, err := t.gateway.GetHistoryDeals(ctx, now.Add(-t.lookback), now)
	if err != nil {
		if ok {
			t.mu.Lock()
			recent := append([]float64(nil), t.recents[symbol]...)
			t.mu.Unlock()
			return cached, recent, nil
		}
		return models.SymbolStats{}, nil, err
	}

	stats, recent := aggregate(symbol, deals, t.lastN, now)

	t.mu.Lock()
	t.stats[symbol] = stats
	t.recents[symbol] = recent
	t.mu.Unlock()

	return stats, append([]float64(nil), recent...), nil
}

// aggregate folds the symbol's deals into a SymbolStats plus the last-N PnL
// series (oldest first).
func aggregate(symbol string, deals []models.Deal, lastN int, now time.Time) (models.SymbolStats, []float64) {
	var symbolDeals []models.Deal
	for _, d := range deals {
		if d.Symbol == symbol {
			symbolDeals = append(symbolDeals, d)
		}
	}
	sort.Slice(symbolDeals, func(i, j int) bool {
		return symbolDeals[i].Timestamp.Before(symbolDeals[j].Timestamp)
	})

	stats := models.SymbolStats{
		Symbol:          symbol,
		TradeCount:      len(symbolDeals),
		LastRefreshedAt: now,
	}

	var wins, losses int
	var winSum, lossSum float64
	pnls := make([]float64, 0, len(symbolDeals))
	for _, d := range symbolDeals {
		pnls = append(pnls, d.Profit)
		if d.Profit > 0 {
			wins++
			winSum += d.Profit
		} else if d.Profit < 0 {
			losses++
			lossSum += math.Abs(d.Profit)
		}
	}

	if len(symbolDeals) > 0 {
		stats.WinRate = float64(wins) / float64(len(symbolDeals))
	}
	if wins > 0 {
		stats.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		stats.AvgLoss = lossSum / float64(losses)
	}

	if lastN > 0 && len(pnls) > lastN {
		pnls = pnls[len(pnls)-lastN:]
	}
	return stats, pnls
}
