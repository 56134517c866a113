package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleCSV = `symbol,asset_class,group,inverse,tail_risk
EURUSD,FOREX,usd_majors,false,false
GBPUSD,FOREX,usd_majors,false,false
USDCHF,FOREX,usd_majors,true,false
XAUUSD,METAL,,false,true
BTCUSD,CRYPTO,,false,true
`

func TestLoadInstruments(t *testing.T) {
	instruments, err := LoadInstruments(writeCSV(t, sampleCSV))
	require.NoError(t, err)
	require.Len(t, instruments, 5)

	assert.Equal(t, []string{"EURUSD", "GBPUSD", "USDCHF", "XAUUSD", "BTCUSD"}, Symbols(instruments))
	assert.Equal(t, map[string]bool{"XAUUSD": true, "BTCUSD": true}, TailRiskSymbols(instruments))

	groups := BuildCorrelationGroups(instruments)
	require.Contains(t, groups, "usd_majors")
	g := groups["usd_majors"]
	assert.ElementsMatch(t, []string{"EURUSD", "GBPUSD", "USDCHF"}, g.Symbols)
	assert.True(t, g.IsInverse("USDCHF"))
	assert.False(t, g.IsInverse("EURUSD"))
}

func TestLoadInstrumentsFatalOnMissingFile(t *testing.T) {
	_, err := LoadInstruments(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestLoadInstrumentsFatalOnEmptyUniverse(t *testing.T) {
	_, err := LoadInstruments(writeCSV(t, "symbol,asset_class,group,inverse,tail_risk\n"))
	assert.Error(t, err)
}

func TestLoadInstrumentsFatalOnDuplicateSymbol(t *testing.T) {
	csv := `symbol,asset_class,group,inverse,tail_risk
EURUSD,FOREX,,false,false
EURUSD,FOREX,,false,false
`
	_, err := LoadInstruments(writeCSV(t, csv))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
