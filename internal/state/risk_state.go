package state

import (
	"sync"
	"time"
)

// Persisted state keys.
const (
	KeyCircuitBreaker = "circuit_breaker"
	KeyDailyTrades    = "daily_trades"
	KeyDailyDate      = "daily_trades_date"
	KeyCooldowns      = "cooldown_until"
)

const dateLayout = "2006-01-02"

// RiskState is the single piece of cross-pipeline mutable state: the circuit
// breaker, the daily trade counter with its UTC-date anchor, and per-symbol
// cooldowns. It restores from the Store on construction and writes through on
// every mutation.
type RiskState struct {
	store *Store

	mu             sync.Mutex
	circuitOpen    bool
	dailyTrades    int
	dailyDate      string
	cooldownUntil  map[string]time.Time
}

// NewRiskState restores risk state from the store. Missing keys start zeroed:
// a fresh install has a closed breaker and an empty day.
func NewRiskState(store *Store) (*RiskState, error) {
	r := &RiskState{
		store:         store,
		cooldownUntil: make(map[string]time.Time),
	}

	if _, err := store.Get(KeyCircuitBreaker, &r.circuitOpen); err != nil {
		return nil, err
	}
	if _, err := store.Get(KeyDailyTrades, &r.dailyTrades); err != nil {
		return nil, err
	}
	if _, err := store.Get(KeyDailyDate, &r.dailyDate); err != nil {
		return nil, err
	}
	if _, err := store.Get(KeyCooldowns, &r.cooldownUntil); err != nil {
		return nil, err
	}
	if r.cooldownUntil == nil {
		r.cooldownUntil = make(map[string]time.Time)
	}
	return r, nil
}

// CircuitOpen reports whether the global circuit breaker is open. An open
// breaker halts all new trade admission.
func (r *RiskState) CircuitOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.circuitOpen
}

// TripCircuit opens the circuit breaker.
func (r *RiskState) TripCircuit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circuitOpen = true
	return r.store.Set(KeyCircuitBreaker, true)
}

// ResetCircuit closes the circuit breaker.
func (r *RiskState) ResetCircuit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circuitOpen = false
	return r.store.Set(KeyCircuitBreaker, false)
}

// DailyTrades returns today's trade count, applying the UTC date rollover
// first. The rollover resets the counter to zero exactly once per date
// transition no matter how often it runs.
func (r *RiskState) DailyTrades(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolloverLocked(now)
	return r.dailyTrades
}

// RecordTrade increments today's trade count.
func (r *RiskState) RecordTrade(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolloverLocked(now)
	r.dailyTrades++
	return r.store.SetAll(map[string]interface{}{
		KeyDailyTrades: r.dailyTrades,
		KeyDailyDate:   r.dailyDate,
	})
}

// rolloverLocked resets the daily counter when the UTC date has moved past
// the stored anchor. Must hold r.mu.
func (r *RiskState) rolloverLocked(now time.Time) {
	today := now.UTC().Format(dateLayout)
	if r.dailyDate == today {
		return
	}
	r.dailyDate = today
	r.dailyTrades = 0
	// Persist the reset so a restart mid-day does not resurrect yesterday's
	// counter under today's date.
	_ = r.store.SetAll(map[string]interface{}{
		KeyDailyTrades: 0,
		KeyDailyDate:   today,
	})
}

// CooldownActive reports whether the symbol is still cooling down, and until
// when.
func (r *RiskState) CooldownActive(symbol string, now time.Time) (bool, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.cooldownUntil[symbol]
	if !ok || !now.Before(until) {
		return false, time.Time{}
	}
	return true, until
}

// StampCooldown records a cooldown for the symbol, persisted so a restart
// does not clear it.
func (r *RiskState) StampCooldown(symbol string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cooldownUntil[symbol] = until.UTC()
	return r.store.Set(KeyCooldowns, r.cooldownUntil)
}

// Snapshot returns a copy of the current risk state for display.
func (r *RiskState) Snapshot(now time.Time) RiskSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolloverLocked(now)

	cooldowns := make(map[string]time.Time, len(r.cooldownUntil))
	for sym, until := range r.cooldownUntil {
		if now.Before(until) {
			cooldowns[sym] = until
		}
	}
	return RiskSnapshot{
		CircuitOpen:   r.circuitOpen,
		DailyTrades:   r.dailyTrades,
		DailyDate:     r.dailyDate,
		CooldownUntil: cooldowns,
	}
}

// RiskSnapshot is a read-only copy of RiskState.
type RiskSnapshot struct {
	CircuitOpen   bool
	DailyTrades   int
	DailyDate     string
	CooldownUntil map[string]time.Time
}
