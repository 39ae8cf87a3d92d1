package engine

import (
	"context"

	"github.com/rs/zerolog"
)

// Policy turns indicator readings into a trading decision.
type Policy interface {
	Decide(ctx context.Context, in Input) Decision
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, in Input) Decision

// Decide calls f.
func (f PolicyFunc) Decide(ctx context.Context, in Input) Decision {
	return f(ctx, in)
}

// LogPolicy logs the readings and always holds.
type LogPolicy struct {
	Log zerolog.Logger
}

// Decide implements Policy.
func (p LogPolicy) Decide(_ context.Context, in Input) Decision {
	ind := in.Indicators
	p.Log.Info().
		Str("user", in.Profile.ID).
		Str("symbol", in.Symbol).
		Float64("close", ind.Close).
		Float64("rsi", ind.RSI).
		Float64("ema_fast", ind.FastEMA).
		Float64("ema_slow", ind.SlowEMA).
		Float64("macd_hist", ind.MACDHist).
		Float64("oi_change_pct", ind.OIChange).
		Msg("signals")
	return Decision{Action: ActionHold, Reason: "no policy"}
}
