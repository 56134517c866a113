package models

import "fmt"

// RejectionCode identifies which gate or pipeline step rejected a symbol.
// Rejections are observability data, not errors.
type RejectionCode string

const (
	RejectNone           RejectionCode = ""
	RejectCircuitBreaker RejectionCode = "CIRCUIT_BREAKER"
	RejectDailyCap       RejectionCode = "DAILY_TRADE_CAP"
	RejectHourlyCap      RejectionCode = "HOURLY_TRADE_CAP"
	RejectCooldown       RejectionCode = "COOLDOWN"
	RejectKillSwitch     RejectionCode = "KILL_SWITCH"
	RejectPayoffMandate  RejectionCode = "PAYOFF_MANDATE"
	RejectDailyLoss      RejectionCode = "DAILY_LOSS"
	RejectSpread         RejectionCode = "SPREAD"
	RejectNewsBlackout   RejectionCode = "NEWS_BLACKOUT"
	RejectSession        RejectionCode = "SESSION"
	RejectPositionCap    RejectionCode = "POSITION_CAP"
	RejectRewardRisk     RejectionCode = "REWARD_RISK"
	RejectCorrelation    RejectionCode = "CORRELATION"
	RejectNetProfit      RejectionCode = "NET_PROFIT"
	RejectVolatility     RejectionCode = "VOLATILITY_FLOOR"
	RejectCostFloor      RejectionCode = "COST_FLOOR"
	RejectNoData         RejectionCode = "NO_DATA"
	RejectScorer         RejectionCode = "SCORER"
	RejectNoSignal       RejectionCode = "NO_SIGNAL"
)

// ScanStatus is the per-symbol outcome of a scan: either a candidate was
// produced (Code == RejectNone) or the first failed step's reason.
type ScanStatus struct {
	Symbol string
	Code   RejectionCode
	Detail string
}

// OK reports whether the scan produced a candidate.
func (s ScanStatus) OK() bool {
	return s.Code == RejectNone
}

// String returns a human-readable status line.
func (s ScanStatus) String() string {
	if s.OK() {
		return fmt.Sprintf("%s: candidate", s.Symbol)
	}
	if s.Detail == "" {
		return fmt.Sprintf("%s: %s", s.Symbol, s.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", s.Symbol, s.Code, s.Detail)
}

// Rejected builds a ScanStatus for a failed step.
func Rejected(symbol string, code RejectionCode, detail string) ScanStatus {
	return ScanStatus{Symbol: symbol, Code: code, Detail: detail}
}

// Accepted builds a ScanStatus for a produced candidate.
func Accepted(symbol string) ScanStatus {
	return ScanStatus{Symbol: symbol}
}
