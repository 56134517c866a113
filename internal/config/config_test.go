package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Scanner.Mode)
	assert.Equal(t, 60, cfg.Scanner.CycleSeconds)
	assert.Equal(t, 2, cfg.Scanner.MaxTradesPerCycle)
	assert.Equal(t, 10, cfg.Risk.MaxDailyTrades)
	assert.InDelta(t, 0.85, cfg.Correlation.Threshold, 1e-9)
	assert.InDelta(t, 0.25, cfg.Sizing.KellyFraction, 1e-9)
	assert.True(t, cfg.IsPaperMode())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	toml := `
[scanner]
cycle_seconds = 30
max_trades_per_cycle = 1

[risk]
max_daily_trades = 4

[sessions]
start_hour_utc = 8
end_hour_utc = 20
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Scanner.CycleSeconds)
	assert.Equal(t, 1, cfg.Scanner.MaxTradesPerCycle)
	assert.Equal(t, 4, cfg.Risk.MaxDailyTrades)
	assert.Equal(t, 8, cfg.Sessions.StartHourUTC)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5, cfg.Scanner.MaxOpenPositions)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCORER_URL", "http://scorer.internal:9000/score")
	t.Setenv("GATEWAY_LOGIN", "12345")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://scorer.internal:9000/score", cfg.Scanner.ScorerURL)
	assert.Equal(t, "12345", cfg.Credentials.Gateway.Login)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Scanner.Mode = "backtest" }},
		{"zero cycle", func(c *Config) { c.Scanner.CycleSeconds = 0 }},
		{"zero budget", func(c *Config) { c.Scanner.MaxTradesPerCycle = 0 }},
		{"risk above max", func(c *Config) { c.Sizing.RiskPercent = 2.0; c.Sizing.MaxRiskPercent = 1.0 }},
		{"kelly fraction", func(c *Config) { c.Sizing.KellyFraction = 1.5 }},
		{"correlation threshold", func(c *Config) { c.Correlation.Threshold = 1.2 }},
		{"partial fraction", func(c *Config) { c.Monitor.PartialVolumeFraction = 1.0 }},
		{"session hours", func(c *Config) { c.Sessions.StartHourUTC = 24 }},
		{"live without credentials", func(c *Config) { c.Scanner.Mode = "live" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadCredentialsFile(t *testing.T) {
	dir := t.TempDir()
	creds := `
[gateway]
login = "7001"
password = "secret"
server = "Broker-Demo"
url = "http://localhost:8077"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(creds), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Credentials.Gateway.Login)
	assert.Equal(t, "Broker-Demo", cfg.Credentials.Gateway.Server)
	assert.Equal(t, "http://localhost:8077", cfg.Credentials.Gateway.URL)
}
