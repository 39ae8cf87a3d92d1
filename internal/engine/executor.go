package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bybit-autotrader/internal/monitor"
	"bybit-autotrader/internal/store"
	"bybit-autotrader/pkg/exchanges/common"
	"bybit-autotrader/pkg/logging"
)

const (
	ModeDryRun = "dry_run"
	ModeLive   = "live"
)

var (
	ErrNoPrice          = errors.New("no usable price")
	ErrNoSize           = errors.New("order size is zero")
	ErrBelowMinNotional = errors.New("order below minimum notional")
	ErrOrderRejected    = errors.New("order rejected")
)

// FloorQty truncates qty to precision decimal places. Non-positive or
// non-finite quantities become zero.
func FloorQty(qty float64, precision int) decimal.Decimal {
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return decimal.Zero
	}
	if precision < 0 {
		precision = 0
	}
	return decimal.NewFromFloat(qty).RoundFloor(int32(precision))
}

// TradeAppender persists trade records; the profile store owns the ledger.
type TradeAppender interface {
	AppendTrade(ctx context.Context, t store.Trade) error
}

// Executor sizes and records orders requested by a policy.
type Executor struct {
	trades  TradeAppender
	dryRun  bool
	metrics *monitor.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewExecutor builds an executor. dryRun forces simulation for every user.
func NewExecutor(trades TradeAppender, dryRun bool, metrics *monitor.Metrics, logger zerolog.Logger) *Executor {
	return &Executor{
		trades:  trades,
		dryRun:  dryRun,
		metrics: metrics,
		log:     logging.Component(logger, "executor"),
		now:     time.Now,
	}
}

// Size computes the order quantity for balance at price using the profile's
// ORDER_SIZE_USD (preferred when positive) or ORDER_PERCENT.
func Size(s store.Settings, balance, price float64) (qty decimal.Decimal, notional float64, err error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return decimal.Zero, 0, ErrNoPrice
	}
	usd := s.Float(store.SettingOrderSizeUSD, 0)
	if usd <= 0 {
		usd = balance * s.Float(store.SettingOrderPercent, 10) / 100
	}
	qty = FloorQty(usd/price, s.Int(store.SettingQtyPrecision, 6))
	if qty.IsZero() {
		return qty, 0, ErrNoSize
	}
	notional, _ = qty.Mul(decimal.NewFromFloat(price)).Float64()
	if minNotional := s.Float(store.SettingMinNotional, 5); notional < minNotional {
		return qty, notional, fmt.Errorf("%w: %.4f < %.4f", ErrBelowMinNotional, notional, minNotional)
	}
	return qty, notional, nil
}

// Execute places (or simulates) a market order and appends it to the ledger.
// The returned trade is nil when sizing rejected the order.
func (e *Executor) Execute(ctx context.Context, gw common.Gateway, p store.Profile, symbol string, side common.Side, price, balance float64) (store.Trade, error) {
	log := e.log.With().Str("user", p.ID).Str("symbol", symbol).Str("side", string(side)).Logger()

	qty, notional, err := Size(p.Settings, balance, price)
	if err != nil {
		log.Info().Err(err).Float64("balance", balance).Float64("price", price).Msg("order skipped")
		return nil, err
	}

	mode := ModeLive
	if e.dryRun || p.Settings.Bool(store.SettingDryRun, true) {
		mode = ModeDryRun
	}
	trade := store.Trade{
		"user_id":  p.ID,
		"ts":       e.now().UTC().Format(time.RFC3339),
		"symbol":   symbol,
		"side":     string(side),
		"qty":      qty.String(),
		"price":    price,
		"notional": notional,
		"mode":     mode,
		"testnet":  gw.Testnet(),
	}

	var execErr error
	if mode == ModeLive {
		env := gw.PlaceOrder(ctx, side, qty, symbol, common.OrderTypeMarket)
		trade["response"] = env.Body
		if env.IsError() {
			code, _ := env.Code()
			trade["status"] = "rejected"
			execErr = fmt.Errorf("%w: retCode=%d %s", ErrOrderRejected, code, env.Message())
			log.Warn().Int("ret_code", code).Str("ret_msg", env.Message()).Msg("order rejected")
		} else {
			trade["status"] = "placed"
			log.Info().Str("qty", qty.String()).Msg("order placed")
		}
	} else {
		trade["status"] = "simulated"
		log.Info().Str("qty", qty.String()).Float64("price", price).Msg("dry-run order")
	}
	e.metrics.Order(mode, string(side))

	if e.trades != nil {
		if err := e.trades.AppendTrade(ctx, trade); err != nil {
			log.Error().Err(err).Msg("append trade failed")
			if execErr == nil {
				execErr = err
			}
		}
	}
	return trade, execErr
}
