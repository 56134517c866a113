package risk

import (
	"context"
	"fmt"
	"math"
	"strings"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/config"
	"forex-scanner/internal/models"
)

// CorrelationFilter detects conflicting directional exposure between a
// candidate and the open positions. The preferred path correlates live
// returns; whenever that cannot produce a confidence-worthy sample it falls
// back, silently and deterministically, to static group membership. The
// filter never blocks a scan cycle: every data fetch is bounded by the
// caller's context and any failure lands in the static path.
type CorrelationFilter struct {
	gateway     broker.Gateway
	cfg         config.CorrelationConfig
	groups      map[string]models.CorrelationGroup
	symbolGroup map[string]string
}

// NewCorrelationFilter creates a filter over the static groups.
func NewCorrelationFilter(gateway broker.Gateway, cfg config.CorrelationConfig, groups map[string]models.CorrelationGroup) *CorrelationFilter {
	symbolGroup := make(map[string]string)
	for name, g := range groups {
		for _, s := range g.Symbols {
			symbolGroup[s] = name
		}
	}
	return &CorrelationFilter{
		gateway:     gateway,
		cfg:         cfg,
		groups:      groups,
		symbolGroup: symbolGroup,
	}
}

// Conflict reports whether opening symbol/direction would conflict with any
// open position, with a detail string naming the offending pair.
func (f *CorrelationFilter) Conflict(ctx context.Context, symbol string, direction models.Direction, open []models.Position) (bool, string) {
	for _, pos := range open {
		if conflict, detail := f.pairConflict(ctx, symbol, direction, pos); conflict {
			return true, detail
		}
	}
	return false, ""
}

func (f *CorrelationFilter) pairConflict(ctx context.Context, symbol string, direction models.Direction, pos models.Position) (bool, string) {
	if conflict, ok := f.tryLive(ctx, symbol, direction, pos); ok {
		if conflict {
			return true, fmt.Sprintf("correlated with open %s %s", pos.Direction, pos.Symbol)
		}
		return false, ""
	}
	if f.staticConflict(symbol, direction, pos) {
		return true, fmt.Sprintf("same risk group as open %s %s", pos.Direction, pos.Symbol)
	}
	return false, ""
}

// tryLive attempts the live-correlation path. The second return value is
// false when the sample is not confidence-worthy and the static fallback
// must decide.
func (f *CorrelationFilter) tryLive(ctx context.Context, symbol string, direction models.Direction, pos models.Position) (conflict, ok bool) {
	a, err := f.returns(ctx, symbol)
	if err != nil {
		return false, false
	}
	b, err := f.returns(ctx, pos.Symbol)
	if err != nil {
		return false, false
	}

	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < f.cfg.MinOverlap {
		return false, false
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	r, valid := pearson(a, b)
	if !valid {
		return false, false
	}

	sameDirection := direction == pos.Direction
	if r > f.cfg.Threshold && sameDirection {
		return true, true
	}
	if r < -f.cfg.Threshold && !sameDirection {
		return true, true
	}
	return false, true
}

// returns pulls the lookback window of close-to-close returns.
func (f *CorrelationFilter) returns(ctx context.Context, symbol string) ([]float64, error) {
	candles, err := f.gateway.GetCandles(ctx, symbol, f.cfg.Timeframe, f.cfg.Lookback+1)
	if err != nil {
		return nil, err
	}
	if len(candles) < 2 {
		return nil, fmt.Errorf("insufficient candles for %s", symbol)
	}
	rets := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		rets = append(rets, (candles[i].Close-prev)/prev)
	}
	return rets, nil
}

// staticConflict applies the group-membership fallback. Broker account
// suffixes are stripped before lookup so "EURUSD.a" matches "EURUSD".
func (f *CorrelationFilter) staticConflict(symbol string, direction models.Direction, pos models.Position) bool {
	candSym := StripSuffix(symbol)
	posSym := StripSuffix(pos.Symbol)

	groupName, ok := f.symbolGroup[candSym]
	if !ok {
		return false
	}
	if f.symbolGroup[posSym] != groupName {
		return false
	}
	group := f.groups[groupName]

	// Within a group, symbols normally move together; an inverse-flagged
	// symbol moves opposite the rest. Exposure conflicts when the expected
	// co-movement and the directions line up.
	inverted := group.IsInverse(candSym) != group.IsInverse(posSym)
	sameDirection := direction == pos.Direction
	if inverted {
		return !sameDirection
	}
	return sameDirection
}

// StripSuffix removes a broker account suffix from a symbol name: anything
// from the first separator on ("EURUSD.a", "XAUUSD-ECN" → "EURUSD",
// "XAUUSD").
func StripSuffix(symbol string) string {
	upper := strings.ToUpper(symbol)
	if i := strings.IndexAny(upper, ".-_"); i > 0 {
		return upper[:i]
	}
	return upper
}

// pearson computes the Pearson correlation coefficient. The boolean is false
// when either series has zero variance.
func pearson(a, b []float64) (float64, bool) {
	n := float64(len(a))
	if n == 0 {
		return 0, false
	}

	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varA*varB), true
}
