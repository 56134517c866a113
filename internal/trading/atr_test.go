package trading

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-scanner/internal/broker"
	"forex-scanner/internal/models"
)

func flatCandles(n int, tr float64) []models.Candle {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      1.1000,
			High:      1.1000 + tr,
			Low:       1.1000,
			Close:     1.1000,
		}
	}
	return candles
}

func TestComputeATRConstantRange(t *testing.T) {
	// Every candle has the same 20 pip true range, so the smoothed average
	// is exactly that.
	atr, err := ComputeATR(flatCandles(30, 0.0020), 14)
	require.NoError(t, err)
	assert.InDelta(t, 0.0020, atr, 1e-9)
}

func TestComputeATRRejectsShortSeries(t *testing.T) {
	_, err := ComputeATR(flatCandles(10, 0.0020), 14)
	assert.Error(t, err)
	_, err = ComputeATR(flatCandles(30, 0.0020), 0)
	assert.Error(t, err)
}

func TestComputeATRUsesGaps(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 16)
	for i := range candles {
		// Close gaps 10 pips above the next candle's range, so true range
		// comes from the close-to-high distance, not high-low.
		price := 1.1000 + float64(i)*0.0010
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      price, High: price, Low: price, Close: price,
		}
	}
	atr, err := ComputeATR(candles, 14)
	require.NoError(t, err)
	assert.InDelta(t, 0.0010, atr, 1e-9)
}

func TestATRCacheServesWithinWindow(t *testing.T) {
	gateway := broker.NewPaperGateway(10000)
	gateway.SetCandles("EURUSD", "M15", flatCandles(50, 0.0020))

	cache := NewATRCache(gateway, "M15", 14, 3*time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	atr, err := cache.ATR(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 0.0020, atr, 1e-9)

	// A fresh entry masks new data until the window passes.
	gateway.SetCandles("EURUSD", "M15", flatCandles(50, 0.0040))
	atr, err = cache.ATR(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 0.0020, atr, 1e-9)

	now = now.Add(4 * time.Minute)
	atr, err = cache.ATR(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 0.0040, atr, 1e-9)
}

func TestATRCachePropagatesDataErrors(t *testing.T) {
	gateway := broker.NewPaperGateway(10000)
	cache := NewATRCache(gateway, "M15", 14, 3*time.Minute)

	_, err := cache.ATR(context.Background(), "EURUSD")
	assert.Error(t, err)
}
