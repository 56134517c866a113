// Package sizing converts risk percentages and stop distances into
// broker-valid position volumes.
package sizing

import (
	"fmt"
	"math"

	"forex-scanner/internal/config"
	"forex-scanner/internal/models"
)

// Result is the sizing outcome with its inputs preserved for logging.
type Result struct {
	Volume      float64
	RiskPercent float64
	DollarRisk  float64
	UsedKelly   bool
	TailClamped bool
}

// Sizer computes position volumes. Kelly-derived risk is used when enough
// history exists; otherwise a confluence-tiered default applies. Flagged
// tail-risk instruments get a hard USD cap on planned loss.
type Sizer struct {
	cfg      config.SizingConfig
	tailRisk map[string]bool
}

// NewSizer creates a sizer. tailRisk flags instruments subject to the clamp.
func NewSizer(cfg config.SizingConfig, tailRisk map[string]bool) *Sizer {
	if tailRisk == nil {
		tailRisk = make(map[string]bool)
	}
	return &Sizer{cfg: cfg, tailRisk: tailRisk}
}

// Size computes the volume for a trade risking riskPercent of balance over
// stopDistance (price units). scalingFactor is a caller-supplied conviction
// multiplier applied to the risk percentage.
func (s *Sizer) Size(balance float64, info *models.SymbolInfo, stats models.SymbolStats, stopDistance float64, confluenceScore int, scalingFactor float64) (Result, error) {
	if balance <= 0 {
		return Result{}, fmt.Errorf("non-positive balance %.2f", balance)
	}
	if stopDistance <= 0 {
		return Result{}, fmt.Errorf("non-positive stop distance %.5f", stopDistance)
	}
	if info.TickSize <= 0 || info.TickValue <= 0 {
		return Result{}, fmt.Errorf("symbol %s has no tick parameters", info.Symbol)
	}
	if scalingFactor <= 0 {
		scalingFactor = 1
	}

	result := Result{}
	result.RiskPercent, result.UsedKelly = s.riskPercent(stats, confluenceScore)
	result.RiskPercent *= scalingFactor
	if result.RiskPercent > s.cfg.MaxRiskPercent {
		result.RiskPercent = s.cfg.MaxRiskPercent
	}

	result.DollarRisk = balance * result.RiskPercent / 100

	stopTicks := stopDistance / info.TickSize
	volume := result.DollarRisk / (stopTicks * info.TickValue)

	// Tail-risk clamp: scale the volume down so the planned loss cannot
	// exceed the hard cap.
	if s.tailRisk[info.Symbol] && s.cfg.TailRiskCapUSD > 0 && result.DollarRisk > s.cfg.TailRiskCapUSD {
		volume *= s.cfg.TailRiskCapUSD / result.DollarRisk
		result.DollarRisk = s.cfg.TailRiskCapUSD
		result.TailClamped = true
	}

	result.Volume = normalizeVolume(volume, info)
	return result, nil
}

// riskPercent picks the Kelly-derived risk when usable, else the
// confluence-tiered default. The Kelly branch is skipped entirely when
// avgLoss is zero: an undefined reward:risk ratio is not infinite reward.
func (s *Sizer) riskPercent(stats models.SymbolStats, confluenceScore int) (pct float64, usedKelly bool) {
	if s.cfg.KellyEnabled &&
		stats.TradeCount >= s.cfg.KellyMinTrades &&
		stats.AvgWin > 0 && stats.AvgLoss > 0 {
		rewardRisk := stats.AvgWin / stats.AvgLoss
		fullKelly := stats.WinRate - (1-stats.WinRate)/rewardRisk
		if fullKelly < 0 {
			fullKelly = 0
		}
		pct = fullKelly * s.cfg.KellyFraction * 100
		if pct > s.cfg.MaxRiskPercent {
			pct = s.cfg.MaxRiskPercent
		}
		return pct, true
	}

	switch {
	case confluenceScore >= s.cfg.HighTierScore:
		return s.cfg.MaxRiskPercent, false
	case confluenceScore >= s.cfg.MidTierScore:
		return (s.cfg.RiskPercent + s.cfg.MaxRiskPercent) / 2, false
	default:
		return s.cfg.RiskPercent, false
	}
}

// normalizeVolume clamps to the broker's limits, rounds down to the volume
// step, and rounds to the displayed precision.
func normalizeVolume(volume float64, info *models.SymbolInfo) float64 {
	if info.VolumeStep > 0 {
		volume = math.Floor(volume/info.VolumeStep) * info.VolumeStep
	}
	if info.VolumeMin > 0 && volume < info.VolumeMin {
		volume = info.VolumeMin
	}
	if info.VolumeMax > 0 && volume > info.VolumeMax {
		volume = info.VolumeMax
	}
	if info.VolumeDigits > 0 {
		scale := math.Pow(10, float64(info.VolumeDigits))
		volume = math.Round(volume*scale) / scale
	}
	return volume
}
