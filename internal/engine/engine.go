// Package engine runs the per-user trading cycle: auth health check, market
// data, indicators, policy decision and optional order execution.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bybit-autotrader/internal/indicators"
	"bybit-autotrader/internal/market"
	"bybit-autotrader/internal/monitor"
	"bybit-autotrader/internal/store"
	"bybit-autotrader/pkg/exchanges/common"
	"bybit-autotrader/pkg/i18n"
	"bybit-autotrader/pkg/logging"
)

// ProfileSource lists the profiles to process.
type ProfileSource interface {
	Profiles() []store.Profile
}

// HealthChecker runs the auth state machine for one profile.
type HealthChecker interface {
	Check(ctx context.Context, p store.Profile) monitor.Result
}

// Config wires an Engine.
type Config struct {
	Profiles ProfileSource
	Monitor  HealthChecker
	Feed     *market.Feed
	// Policy defaults to LogPolicy.
	Policy Policy
	// Executor may be nil; Buy and Sell decisions are then only logged.
	Executor *Executor
	Metrics  *monitor.Metrics
	// Workers bounds concurrently processed users; values below 2 run
	// sequentially.
	Workers int
	Logger  zerolog.Logger
}

// Engine drives trading cycles.
type Engine struct {
	profiles ProfileSource
	monitor  HealthChecker
	feed     *market.Feed
	policy   Policy
	executor *Executor
	metrics  *monitor.Metrics
	workers  int
	log      zerolog.Logger
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	log := logging.Component(cfg.Logger, "engine")
	policy := cfg.Policy
	if policy == nil {
		policy = LogPolicy{Log: log}
	}
	return &Engine{
		profiles: cfg.Profiles,
		monitor:  cfg.Monitor,
		feed:     cfg.Feed,
		policy:   policy,
		executor: cfg.Executor,
		metrics:  cfg.Metrics,
		workers:  cfg.Workers,
		log:      log,
	}
}

// RunOnce processes every profile once. A panic while processing one user is
// logged and does not stop the others.
func (e *Engine) RunOnce(ctx context.Context) CycleReport {
	rep := CycleReport{Started: time.Now()}
	profiles := e.profiles.Profiles()
	rep.Users = make([]UserReport, len(profiles))

	if e.workers < 2 {
		for i, p := range profiles {
			rep.Users[i] = e.runUser(ctx, p)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.workers)
		for i, p := range profiles {
			i, p := i, p
			g.Go(func() error {
				rep.Users[i] = e.runUser(ctx, p)
				return nil
			})
		}
		_ = g.Wait()
	}

	rep.Duration = time.Since(rep.Started)
	e.metrics.CycleDone(rep.Duration)
	skipped := rep.Count(monitor.OutcomeSkipped)
	e.log.Info().
		Int("healthy", rep.Count(monitor.OutcomeHealthy)).
		Msgf(i18n.M().CycleComplete, len(rep.Users), len(rep.Users)-skipped, skipped, rep.Duration.Round(time.Millisecond))
	return rep
}

// Loop runs a cycle immediately and then every interval until ctx is done.
func (e *Engine) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info().Msgf(i18n.M().LoopStarted, interval)
	for {
		e.guardedCycle(ctx)
		select {
		case <-ctx.Done():
			e.log.Info().Msg("loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) guardedCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Bytes("stack", debug.Stack()).Msgf(i18n.M().CycleCrashed, r)
		}
	}()
	e.RunOnce(ctx)
}

func (e *Engine) runUser(ctx context.Context, p store.Profile) (rep UserReport) {
	rep.UserID = p.ID
	defer func() {
		if r := recover(); r != nil {
			rep.Outcome = monitor.OutcomeError
			rep.Panic = r
			rep.Reason = fmt.Sprint(r)
			e.metrics.UserResult("panic")
			e.log.Error().Str("user", p.ID).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("user processing crashed")
		}
	}()

	res := e.monitor.Check(ctx, p)
	rep.Outcome = res.Outcome
	rep.Reason = res.SkipReason
	e.metrics.UserResult(string(res.Outcome))
	if res.Outcome != monitor.OutcomeHealthy {
		return rep
	}

	e.log.Debug().Str("user", p.ID).Float64("balance", res.Balance).Bool("testnet", res.Testnet).Msg("auth ok")
	params := indicators.ParamsFromSettings(p.Settings)
	for _, symbol := range p.Settings.Strings(store.SettingSymbols) {
		rep.Symbols = append(rep.Symbols, e.runSymbol(ctx, p, res, params, symbol))
	}
	return rep
}

func (e *Engine) runSymbol(ctx context.Context, p store.Profile, res monitor.Result, params indicators.Params, symbol string) SymbolReport {
	sr := SymbolReport{Symbol: symbol}
	snap, err := e.feed.Load(ctx, res.Gateway, symbol, params.UseOI)
	if err != nil {
		sr.Err = err
		return sr
	}
	sr.Indicators = indicators.Compute(params, snap.Candles.Closes(), snap.OpenInterest.Values())
	sr.Decision = e.policy.Decide(ctx, Input{
		Profile:    p,
		Symbol:     symbol,
		Balance:    res.Balance,
		Params:     params,
		Indicators: sr.Indicators,
		Market:     snap,
	})

	var side common.Side
	switch sr.Decision.Action {
	case ActionBuy:
		side = common.SideBuy
	case ActionSell:
		side = common.SideSell
	default:
		return sr
	}
	if e.executor == nil {
		e.log.Info().Str("user", p.ID).Str("symbol", symbol).Str("action", string(sr.Decision.Action)).Msg("no executor, decision not acted on")
		return sr
	}
	sr.Trade, sr.Err = e.executor.Execute(ctx, res.Gateway, p, symbol, side, sr.Indicators.Close, res.Balance)
	return sr
}
