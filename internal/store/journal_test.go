package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-scanner/internal/models"
)

func newJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordAndReadBack(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	cand := &models.Candidate{
		ID:                 uuid.NewString(),
		Symbol:             "EURUSD",
		Direction:          models.DirectionLong,
		ConfluenceScore:    8,
		MLProbability:      0.75,
		StopDistance:       0.0030,
		TakeProfitDistance: 0.0060,
		Regime:             models.RegimeTrending,
		CreatedAt:          time.Now().UTC(),
	}
	require.NoError(t, j.RecordTrade(ctx, cand, 1001, 1.5, 1.1001))

	trades, err := j.RecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, cand.ID, trades[0].ID)
	assert.Equal(t, int64(1001), trades[0].Ticket)
	assert.Equal(t, "EURUSD", trades[0].Symbol)
	assert.Equal(t, "LONG", trades[0].Direction)
	assert.InDelta(t, 1.5, trades[0].Volume, 1e-9)
	assert.Equal(t, 8, trades[0].ConfluenceScore)
}

func TestJournalRecentTradesLimit(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cand := &models.Candidate{
			ID:        uuid.NewString(),
			Symbol:    "GBPUSD",
			Direction: models.DirectionShort,
			Regime:    models.RegimeRanging,
		}
		require.NoError(t, j.RecordTrade(ctx, cand, int64(2000+i), 1.0, 1.27))
	}

	trades, err := j.RecentTrades(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

func TestJournalRecordCycleUpsert(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordCycle(ctx, 1, 10, 2, 1, 1500*time.Millisecond))
	// Re-recording the same cycle replaces rather than errors.
	require.NoError(t, j.RecordCycle(ctx, 1, 10, 2, 2, 1600*time.Millisecond))
}

func TestJournalDuplicateTradeIDRejected(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	cand := &models.Candidate{ID: "fixed-id", Symbol: "EURUSD", Direction: models.DirectionLong}
	require.NoError(t, j.RecordTrade(ctx, cand, 1, 1, 1.1))
	assert.Error(t, j.RecordTrade(ctx, cand, 2, 1, 1.1))
}
