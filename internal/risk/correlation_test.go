package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/config"
	"forex-scanner/internal/models"
)

func corrConfig() config.CorrelationConfig {
	return config.CorrelationConfig{
		Threshold:  0.85,
		Lookback:   60,
		MinOverlap: 10,
		Timeframe:  "M15",
	}
}

// seedSeries writes candles whose closes follow the given series.
func seedSeries(g *broker.PaperGateway, symbol string, closes []float64) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c, High: c, Low: c, Close: c,
		}
	}
	g.SetCandles(symbol, "M15", candles)
}

// rampUp is a strictly increasing series with varying step sizes so returns
// have nonzero variance.
func rampUp(n int) []float64 {
	series := make([]float64, n)
	price := 1.0
	for i := range series {
		price *= 1 + 0.001*float64(i%7+1)
		series[i] = price
	}
	return series
}

// mirrored turns each return negative, producing correlation -1.
func mirrored(closes []float64) []float64 {
	out := make([]float64, len(closes))
	price := 1.0
	out[0] = price
	for i := 1; i < len(closes); i++ {
		ret := (closes[i] - closes[i-1]) / closes[i-1]
		price *= 1 - ret
		out[i] = price
	}
	return out
}

func TestConflictLivePositiveCorrelationSameDirection(t *testing.T) {
	gateway := broker.NewPaperGateway(10000)
	series := rampUp(61)
	seedSeries(gateway, "EURUSD", series)
	seedSeries(gateway, "GBPUSD", series)

	f := NewCorrelationFilter(gateway, corrConfig(), nil)
	open := []models.Position{{Symbol: "GBPUSD", Direction: models.DirectionLong}}

	conflict, detail := f.Conflict(context.Background(), "EURUSD", models.DirectionLong, open)
	assert.True(t, conflict)
	assert.Contains(t, detail, "GBPUSD")

	// Opposite directions on positively correlated symbols hedge rather than
	// stack, so they pass.
	conflict, _ = f.Conflict(context.Background(), "EURUSD", models.DirectionShort, open)
	assert.False(t, conflict)
}

func TestConflictLiveNegativeCorrelationOppositeDirection(t *testing.T) {
	gateway := broker.NewPaperGateway(10000)
	series := rampUp(61)
	seedSeries(gateway, "EURUSD", series)
	seedSeries(gateway, "USDCHF", mirrored(series))

	f := NewCorrelationFilter(gateway, corrConfig(), nil)
	open := []models.Position{{Symbol: "USDCHF", Direction: models.DirectionShort}}

	conflict, _ := f.Conflict(context.Background(), "EURUSD", models.DirectionLong, open)
	assert.True(t, conflict, "short the inverse is the same exposure as long the candidate")

	conflict, _ = f.Conflict(context.Background(), "EURUSD", models.DirectionShort, open)
	assert.False(t, conflict)
}

// With no candle data the live path cannot decide and the static groups
// take over.
func TestConflictFallsBackToStaticGroups(t *testing.T) {
	gateway := broker.NewPaperGateway(10000)
	groups := map[string]models.CorrelationGroup{
		"usd_majors": {
			Name:    "usd_majors",
			Symbols: []string{"EURUSD", "GBPUSD", "USDCHF"},
			Inverse: map[string]bool{"USDCHF": true},
		},
	}
	f := NewCorrelationFilter(gateway, corrConfig(), groups)

	open := []models.Position{{Symbol: "GBPUSD", Direction: models.DirectionLong}}
	conflict, detail := f.Conflict(context.Background(), "EURUSD", models.DirectionLong, open)
	assert.True(t, conflict)
	assert.Contains(t, detail, "risk group")

	// Inverse member conflicts on the opposite direction instead.
	open = []models.Position{{Symbol: "USDCHF", Direction: models.DirectionShort}}
	conflict, _ = f.Conflict(context.Background(), "EURUSD", models.DirectionLong, open)
	assert.True(t, conflict)

	open = []models.Position{{Symbol: "USDCHF", Direction: models.DirectionLong}}
	conflict, _ = f.Conflict(context.Background(), "EURUSD", models.DirectionLong, open)
	assert.False(t, conflict)
}

func TestConflictStaticMatchesBrokerSuffixes(t *testing.T) {
	gateway := broker.NewPaperGateway(10000)
	groups := map[string]models.CorrelationGroup{
		"usd_majors": {Name: "usd_majors", Symbols: []string{"EURUSD", "GBPUSD"}},
	}
	f := NewCorrelationFilter(gateway, corrConfig(), groups)

	open := []models.Position{{Symbol: "GBPUSD-ECN", Direction: models.DirectionLong}}
	conflict, _ := f.Conflict(context.Background(), "EURUSD.a", models.DirectionLong, open)
	assert.True(t, conflict)
}

func TestConflictUngroupedSymbolPasses(t *testing.T) {
	gateway := broker.NewPaperGateway(10000)
	f := NewCorrelationFilter(gateway, corrConfig(), nil)

	open := []models.Position{{Symbol: "GBPUSD", Direction: models.DirectionLong}}
	conflict, _ := f.Conflict(context.Background(), "XAUUSD", models.DirectionLong, open)
	assert.False(t, conflict)
}

// Too few overlapping candles is not a confident sample; the decision falls
// through to the static path.
func TestConflictShortSeriesFallsBack(t *testing.T) {
	gateway := broker.NewPaperGateway(10000)
	series := rampUp(5)
	seedSeries(gateway, "EURUSD", series)
	seedSeries(gateway, "GBPUSD", series)

	f := NewCorrelationFilter(gateway, corrConfig(), nil)
	open := []models.Position{{Symbol: "GBPUSD", Direction: models.DirectionLong}}

	conflict, _ := f.Conflict(context.Background(), "EURUSD", models.DirectionLong, open)
	assert.False(t, conflict, "no static group, so a short series passes")
}

func TestStripSuffix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"EURUSD.a", "EURUSD"},
		{"XAUUSD-ECN", "XAUUSD"},
		{"GBPUSD_raw", "GBPUSD"},
		{"eurusd", "EURUSD"},
		{"BTCUSD", "BTCUSD"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripSuffix(tt.in))
	}
}

func TestPearson(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 4, 6, 8, 10}
	r, valid := pearson(a, b)
	assert.True(t, valid)
	assert.InDelta(t, 1.0, r, 1e-9)

	down := []float64{10, 8, 6, 4, 2}
	r, valid = pearson(a, down)
	assert.True(t, valid)
	assert.InDelta(t, -1.0, r, 1e-9)

	flat := []float64{3, 3, 3, 3, 3}
	_, valid = pearson(a, flat)
	assert.False(t, valid, "zero variance is not a valid correlation")
}
