package risk

import (
	"time"

	"forex-scanner/internal/config"
	"forex-scanner/internal/models"
)

// InSession reports whether the UTC hour is inside the configured trading
// window. Always-on asset classes are exempt. A window with start > end wraps
// past midnight.
func InSession(cfg config.SessionConfig, class models.AssetClass, now time.Time) bool {
	if class.AlwaysOpen() {
		return true
	}
	hour := now.UTC().Hour()
	if cfg.StartHourUTC == cfg.EndHourUTC {
		return true // degenerate window means no restriction
	}
	if cfg.StartHourUTC < cfg.EndHourUTC {
		return hour >= cfg.StartHourUTC && hour < cfg.EndHourUTC
	}
	return hour >= cfg.StartHourUTC || hour < cfg.EndHourUTC
}
