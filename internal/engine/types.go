package engine

import (
	"time"

	"bybit-autotrader/internal/indicators"
	"bybit-autotrader/internal/market"
	"bybit-autotrader/internal/monitor"
	"bybit-autotrader/internal/store"
)

// Action is what a policy wants done with a symbol.
type Action string

const (
	ActionHold Action = "hold"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Decision is a policy's verdict for one symbol.
type Decision struct {
	Action Action
	Reason string
}

// Input is everything a policy sees for one user and symbol.
type Input struct {
	Profile    store.Profile
	Symbol     string
	Balance    float64
	Params     indicators.Params
	Indicators indicators.Snapshot
	Market     market.Snapshot
}

// SymbolReport is the outcome for one symbol of one user.
type SymbolReport struct {
	Symbol     string
	Indicators indicators.Snapshot
	Decision   Decision
	Trade      store.Trade
	Err        error
}

// UserReport is the outcome for one user.
type UserReport struct {
	UserID  string
	Outcome monitor.Outcome
	Reason  string
	Panic   any
	Symbols []SymbolReport
}

// CycleReport summarizes one pass over all users.
type CycleReport struct {
	Started  time.Time
	Duration time.Duration
	Users    []UserReport
}

// Count returns how many users ended with outcome.
func (r CycleReport) Count(outcome monitor.Outcome) int {
	n := 0
	for _, u := range r.Users {
		if u.Outcome == outcome {
			n++
		}
	}
	return n
}
