package alerting

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Alert describes one qualifying price move.
type Alert struct {
	Symbol       string
	AssetType    string
	Price        decimal.Decimal
	ChangePct    decimal.Decimal
	ThresholdPct decimal.Decimal
	Direction    string
	At           time.Time
}

// Stats summarises the engine's runtime state.
type Stats struct {
	TotalAlertsSent int64
	ActiveCooldowns int
	ThresholdPct    decimal.Decimal
	CooldownSeconds int64
}

// symbolState tracks one symbol. A symbol is armed until a qualifying alert
// fires, then cooling down until the cooldown window elapses.
type symbolState struct {
	lastPrice   decimal.Decimal
	hasPrice    bool
	lastAlertAt time.Time
	alerted     bool
}

// Engine decides when a price move becomes an alert. Threshold and cooldown
// are runtime mutable; each evaluation reads a copy under the lock so updates
// take effect on the next evaluation, never retroactively.
type Engine struct {
	mu        sync.Mutex
	threshold decimal.Decimal
	cooldown  time.Duration
	states    map[string]*symbolState
	total     int64
}

// NewEngine constructs an alert engine.
func NewEngine(thresholdPct decimal.Decimal, cooldown time.Duration) *Engine {
	return &Engine{
		threshold: thresholdPct,
		cooldown:  cooldown,
		states:    map[string]*symbolState{},
	}
}

// Seed sets a symbol's baseline price without alerting, leaving it armed.
// Used at startup to rebuild state from the newest stored sample.
func (e *Engine) Seed(symbol string, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[symbol] = &symbolState{lastPrice: price, hasPrice: true}
}

// Evaluate feeds one observation through the state machine. It returns the
// alert to dispatch, or nil when the symbol has no baseline yet, the move is
// below threshold, or the symbol is cooling down. The baseline advances on
// every observation regardless of outcome.
func (e *Engine) Evaluate(symbol, assetType string, price decimal.Decimal, now time.Time) *Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[symbol]
	if !ok {
		e.states[symbol] = &symbolState{lastPrice: price, hasPrice: true}
		return nil
	}
	if !st.hasPrice || st.lastPrice.IsZero() {
		st.lastPrice = price
		st.hasPrice = true
		return nil
	}

	change := price.Sub(st.lastPrice).Div(st.lastPrice).Mul(decimal.NewFromInt(100))
	st.lastPrice = price

	if change.Abs().LessThan(e.threshold) {
		return nil
	}
	if st.alerted && now.Sub(st.lastAlertAt) < e.cooldown {
		return nil
	}

	st.alerted = true
	st.lastAlertAt = now
	e.total++

	return &Alert{
		Symbol:       symbol,
		AssetType:    assetType,
		Price:        price,
		ChangePct:    change,
		ThresholdPct: e.threshold,
		Direction:    classifyChange(change),
		At:           now,
	}
}

// SetThreshold updates the alert threshold.
func (e *Engine) SetThreshold(thresholdPct decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threshold = thresholdPct
}

// SetCooldown updates the per-symbol cooldown window.
func (e *Engine) SetCooldown(cooldown time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldown = cooldown
}

// Threshold returns the current alert threshold.
func (e *Engine) Threshold() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

// Cooldown returns the current cooldown window.
func (e *Engine) Cooldown() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooldown
}

// CollectStats reports alert counters as of now.
func (e *Engine) CollectStats(now time.Time) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := 0
	for _, st := range e.states {
		if st.alerted && now.Sub(st.lastAlertAt) < e.cooldown {
			active++
		}
	}

	return Stats{
		TotalAlertsSent: e.total,
		ActiveCooldowns: active,
		ThresholdPct:    e.threshold,
		CooldownSeconds: int64(e.cooldown / time.Second),
	}
}

func classifyChange(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}
