// Package config provides configuration management for the scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Scanner     ScannerConfig     `mapstructure:"scanner"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Sizing      SizingConfig      `mapstructure:"sizing"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Sessions    SessionConfig     `mapstructure:"sessions"`
	News        NewsConfig        `mapstructure:"news"`
	Events      EventsConfig      `mapstructure:"events"`
	Journal     JournalConfig     `mapstructure:"journal"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// ScannerConfig holds orchestrator and pipeline configuration.
type ScannerConfig struct {
	Mode                string             `mapstructure:"mode"` // "live", "paper"
	InstrumentsFile     string             `mapstructure:"instruments_file"`
	CycleSeconds        int                `mapstructure:"cycle_seconds"`
	CycleTimeoutSeconds int                `mapstructure:"cycle_timeout_seconds"`
	MaxTradesPerCycle   int                `mapstructure:"max_trades_per_cycle"`
	MaxOpenPositions    int                `mapstructure:"max_open_positions"`
	ATRPeriod           int                `mapstructure:"atr_period"`
	ATRTimeframe        string             `mapstructure:"atr_timeframe"`
	ATRCacheSeconds     int                `mapstructure:"atr_cache_seconds"`
	StopATRMultiple     float64            `mapstructure:"stop_atr_multiple"`
	TargetATRMultiple   float64            `mapstructure:"target_atr_multiple"`
	MinRewardRisk       float64            `mapstructure:"min_reward_risk"`
	CostFloorMultiple   float64            `mapstructure:"cost_floor_multiple"`
	VolatilityFloorPips map[string]float64 `mapstructure:"volatility_floor_pips"` // keyed by asset class
	ScorerURL           string             `mapstructure:"scorer_url"`
	ScorerTimeoutSecs   int                `mapstructure:"scorer_timeout_seconds"`
}

// RiskConfig holds risk-gate configuration.
type RiskConfig struct {
	MaxDailyTrades        int                `mapstructure:"max_daily_trades"`
	MaxTradesPerHour      int                `mapstructure:"max_trades_per_hour"`
	MaxDailyLossUSD       float64            `mapstructure:"max_daily_loss_usd"`
	CooldownMinutes       int                `mapstructure:"cooldown_minutes"`
	KillSwitchMinTrades   int                `mapstructure:"kill_switch_min_trades"`
	KillSwitchLastN       int                `mapstructure:"kill_switch_last_n"`
	KillSwitchLossUSD     float64            `mapstructure:"kill_switch_loss_usd"`
	PayoffMinTrades       int                `mapstructure:"payoff_min_trades"`
	AvgLossRatioThreshold float64            `mapstructure:"avg_loss_ratio_threshold"`
	SymbolOverrides       []string           `mapstructure:"symbol_overrides"` // exempt from kill switch and payoff mandate
	CommissionPips        float64            `mapstructure:"commission_pips"`
	SpreadCapPips         map[string]float64 `mapstructure:"spread_cap_pips"` // keyed by asset class
	FallbackTickSize      float64            `mapstructure:"fallback_tick_size"`
	StatsRefreshMinutes   int                `mapstructure:"stats_refresh_minutes"`
	StatsLookbackDays     int                `mapstructure:"stats_lookback_days"`
}

// SizingConfig holds position sizing configuration.
type SizingConfig struct {
	RiskPercent    float64 `mapstructure:"risk_percent"`
	MaxRiskPercent float64 `mapstructure:"max_risk_percent"`
	HighTierScore  int     `mapstructure:"high_tier_score"`
	MidTierScore   int     `mapstructure:"mid_tier_score"`
	KellyEnabled   bool    `mapstructure:"kelly_enabled"`
	KellyFraction  float64 `mapstructure:"kelly_fraction"`
	KellyMinTrades int     `mapstructure:"kelly_min_trades"`
	TailRiskCapUSD float64 `mapstructure:"tail_risk_cap_usd"`
}

// CorrelationConfig holds correlation-filter configuration.
type CorrelationConfig struct {
	Threshold  float64 `mapstructure:"threshold"`
	Lookback   int     `mapstructure:"lookback"`
	MinOverlap int     `mapstructure:"min_overlap"`
	Timeframe  string  `mapstructure:"timeframe"`
}

// MonitorConfig holds active-position monitor configuration.
type MonitorConfig struct {
	BreakEvenRewardRisk    float64 `mapstructure:"break_even_reward_risk"`
	BreakEvenBufferPips    float64 `mapstructure:"break_even_buffer_pips"`
	PartialTargetFraction  float64 `mapstructure:"partial_target_fraction"`
	PartialVolumeFraction  float64 `mapstructure:"partial_volume_fraction"`
	TrailActivateATR       float64 `mapstructure:"trail_activate_atr"`
	TrailStepATR           float64 `mapstructure:"trail_step_atr"`
	TrailFallbackPercent   float64 `mapstructure:"trail_fallback_percent"`
	MinModifyDistancePips  float64 `mapstructure:"min_modify_distance_pips"`
}

// SessionConfig holds the global trading-session window (UTC hours).
// Always-on asset classes are exempt.
type SessionConfig struct {
	StartHourUTC int `mapstructure:"start_hour_utc"`
	EndHourUTC   int `mapstructure:"end_hour_utc"`
}

// NewsConfig holds scheduled news blackout windows.
type NewsConfig struct {
	Windows []NewsWindow `mapstructure:"windows"`
}

// NewsWindow is a single blackout window affecting symbols that contain any
// of the listed currencies.
type NewsWindow struct {
	Start      string   `mapstructure:"start"` // RFC3339
	End        string   `mapstructure:"end"`   // RFC3339
	Currencies []string `mapstructure:"currencies"`
}

// EventsConfig holds the event/metrics endpoint configuration.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// JournalConfig holds the trade journal configuration.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Credentials holds gateway credentials.
type Credentials struct {
	Gateway GatewayCredentials `mapstructure:"gateway"`
}

// GatewayCredentials holds brokerage gateway credentials and the terminal
// bridge endpoint.
type GatewayCredentials struct {
	Login    string `mapstructure:"login"`
	Password string `mapstructure:"password"`
	Server   string `mapstructure:"server"`
	URL      string `mapstructure:"url"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/forex-scanner"
	}
	return filepath.Join(home, ".config", "forex-scanner")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Missing file is fine: defaults apply.
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scanner.mode", "paper")
	v.SetDefault("scanner.instruments_file", filepath.Join(DefaultConfigDir(), "instruments.csv"))
	v.SetDefault("scanner.cycle_seconds", 60)
	v.SetDefault("scanner.cycle_timeout_seconds", 45)
	v.SetDefault("scanner.max_trades_per_cycle", 2)
	v.SetDefault("scanner.max_open_positions", 5)
	v.SetDefault("scanner.atr_period", 14)
	v.SetDefault("scanner.atr_timeframe", "M15")
	v.SetDefault("scanner.atr_cache_seconds", 180)
	v.SetDefault("scanner.stop_atr_multiple", 1.5)
	v.SetDefault("scanner.target_atr_multiple", 3.0)
	v.SetDefault("scanner.min_reward_risk", 1.5)
	v.SetDefault("scanner.cost_floor_multiple", 3.0)
	v.SetDefault("scanner.volatility_floor_pips", map[string]float64{
		"FOREX": 5, "METAL": 20, "INDEX": 30, "CRYPTO": 50,
	})
	v.SetDefault("scanner.scorer_url", "http://localhost:8089/score")
	v.SetDefault("scanner.scorer_timeout_seconds", 10)

	v.SetDefault("risk.max_daily_trades", 10)
	v.SetDefault("risk.max_trades_per_hour", 3)
	v.SetDefault("risk.max_daily_loss_usd", 500.0)
	v.SetDefault("risk.cooldown_minutes", 30)
	v.SetDefault("risk.kill_switch_min_trades", 5)
	v.SetDefault("risk.kill_switch_last_n", 5)
	v.SetDefault("risk.kill_switch_loss_usd", 150.0)
	v.SetDefault("risk.payoff_min_trades", 10)
	v.SetDefault("risk.avg_loss_ratio_threshold", 2.0)
	v.SetDefault("risk.commission_pips", 0.7)
	v.SetDefault("risk.spread_cap_pips", map[string]float64{
		"FOREX": 3, "METAL": 35, "INDEX": 60, "CRYPTO": 80,
	})
	v.SetDefault("risk.fallback_tick_size", 0.0001)
	v.SetDefault("risk.stats_refresh_minutes", 15)
	v.SetDefault("risk.stats_lookback_days", 30)

	v.SetDefault("sizing.risk_percent", 0.5)
	v.SetDefault("sizing.max_risk_percent", 1.5)
	v.SetDefault("sizing.high_tier_score", 7)
	v.SetDefault("sizing.mid_tier_score", 5)
	v.SetDefault("sizing.kelly_enabled", true)
	v.SetDefault("sizing.kelly_fraction", 0.25)
	v.SetDefault("sizing.kelly_min_trades", 20)
	v.SetDefault("sizing.tail_risk_cap_usd", 200.0)

	v.SetDefault("correlation.threshold", 0.85)
	v.SetDefault("correlation.lookback", 60)
	v.SetDefault("correlation.min_overlap", 10)
	v.SetDefault("correlation.timeframe", "M15")

	v.SetDefault("monitor.break_even_reward_risk", 1.0)
	v.SetDefault("monitor.break_even_buffer_pips", 2.0)
	v.SetDefault("monitor.partial_target_fraction", 0.5)
	v.SetDefault("monitor.partial_volume_fraction", 0.5)
	v.SetDefault("monitor.trail_activate_atr", 1.5)
	v.SetDefault("monitor.trail_step_atr", 1.0)
	v.SetDefault("monitor.trail_fallback_percent", 0.5)
	v.SetDefault("monitor.min_modify_distance_pips", 2.0)

	v.SetDefault("sessions.start_hour_utc", 7)
	v.SetDefault("sessions.end_hour_utc", 21)

	v.SetDefault("events.enabled", true)
	v.SetDefault("events.addr", "localhost:9107")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", filepath.Join(DefaultConfigDir(), "journal.db"))
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Credentials are only required in live mode; validated there.
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATEWAY_LOGIN"); v != "" {
		cfg.Credentials.Gateway.Login = v
	}
	if v := os.Getenv("GATEWAY_PASSWORD"); v != "" {
		cfg.Credentials.Gateway.Password = v
	}
	if v := os.Getenv("GATEWAY_SERVER"); v != "" {
		cfg.Credentials.Gateway.Server = v
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		cfg.Credentials.Gateway.URL = v
	}
	if v := os.Getenv("SCANNER_MODE"); v != "" {
		cfg.Scanner.Mode = v
	}
	if v := os.Getenv("SCORER_URL"); v != "" {
		cfg.Scanner.ScorerURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scanner.Mode != "live" && c.Scanner.Mode != "paper" {
		return fmt.Errorf("invalid scanner mode: %s (must be 'live' or 'paper')", c.Scanner.Mode)
	}
	if c.Scanner.CycleSeconds <= 0 {
		return fmt.Errorf("cycle_seconds must be positive")
	}
	if c.Scanner.MaxTradesPerCycle <= 0 {
		return fmt.Errorf("max_trades_per_cycle must be positive")
	}
	if c.Scanner.MinRewardRisk < 0 {
		return fmt.Errorf("min_reward_risk must be non-negative")
	}
	if c.Sizing.RiskPercent <= 0 || c.Sizing.RiskPercent > 100 {
		return fmt.Errorf("risk_percent must be between 0 and 100")
	}
	if c.Sizing.MaxRiskPercent < c.Sizing.RiskPercent {
		return fmt.Errorf("max_risk_percent must be >= risk_percent")
	}
	if c.Sizing.KellyFraction <= 0 || c.Sizing.KellyFraction > 1 {
		return fmt.Errorf("kelly_fraction must be in (0, 1]")
	}
	if c.Correlation.Threshold <= 0 || c.Correlation.Threshold > 1 {
		return fmt.Errorf("correlation threshold must be in (0, 1]")
	}
	if c.Monitor.PartialTargetFraction <= 0 || c.Monitor.PartialTargetFraction >= 1 {
		return fmt.Errorf("partial_target_fraction must be in (0, 1)")
	}
	if c.Monitor.PartialVolumeFraction <= 0 || c.Monitor.PartialVolumeFraction >= 1 {
		return fmt.Errorf("partial_volume_fraction must be in (0, 1)")
	}
	if c.Sessions.StartHourUTC < 0 || c.Sessions.StartHourUTC > 23 ||
		c.Sessions.EndHourUTC < 0 || c.Sessions.EndHourUTC > 23 {
		return fmt.Errorf("session hours must be within 0-23")
	}
	if c.Scanner.Mode == "live" && c.Credentials.Gateway.Login == "" {
		return fmt.Errorf("live mode requires gateway credentials")
	}
	if c.Scanner.Mode == "live" && c.Credentials.Gateway.URL == "" {
		return fmt.Errorf("live mode requires a gateway bridge url")
	}
	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Scanner.Mode == "paper"
}
