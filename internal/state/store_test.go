package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.Set("circuit_breaker", true))
	require.NoError(t, store.Set("daily_trades", 7))

	var open bool
	found, err := store.Get("circuit_breaker", &open)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, open)

	// Reopen from disk: values survive the process boundary.
	reopened, err := Open(path)
	require.NoError(t, err)

	var trades int
	found, err = reopened.Get("daily_trades", &trades)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, trades)
}

func TestStoreMissingKey(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	var out string
	found, err := store.Get("nope", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreSetAllSingleWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.SetAll(map[string]interface{}{
		"daily_trades":      3,
		"daily_trades_date": "2026-03-10",
	}))

	reopened, err := Open(path)
	require.NoError(t, err)
	var date string
	found, err := reopened.Get("daily_trades_date", &date)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2026-03-10", date)
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestStoreNeverLeavesTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Set("k", i))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the state file itself should remain")
}
