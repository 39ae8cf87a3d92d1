package market

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"bybit-autotrader/pkg/logging"
)

// Source fetches raw market-data payloads.
type Source interface {
	FetchOHLCV(ctx context.Context, symbol, interval string, limit int) (any, error)
	FetchOpenInterest(ctx context.Context, symbol, interval string, limit int) (any, error)
}

// Snapshot is the normalized market view of one symbol.
type Snapshot struct {
	Symbol       string
	Interval     string
	Candles      Series
	OpenInterest OISeries
}

// Feed fetches and normalizes market data for the trading cycle.
type Feed struct {
	Interval string
	Limit    int
	log      zerolog.Logger
}

// NewFeed builds a feed with the default candle interval and fetch limit.
func NewFeed(interval string, limit int, logger zerolog.Logger) *Feed {
	return &Feed{
		Interval: interval,
		Limit:    limit,
		log:      logging.Component(logger, "market"),
	}
}

// Load fetches candles, and open interest when withOI is set. Missing candles
// yield ErrNoData so the caller skips the symbol; missing open interest only
// leaves OpenInterest empty.
func (f *Feed) Load(ctx context.Context, src Source, symbol string, withOI bool) (Snapshot, error) {
	snap := Snapshot{Symbol: symbol, Interval: f.Interval}

	raw, err := src.FetchOHLCV(ctx, symbol, f.Interval, f.Limit)
	if err != nil {
		f.log.Warn().Err(err).Str("symbol", symbol).Msg("fetch candles failed")
		return snap, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	candles, err := NormalizeOHLCV(raw)
	if err != nil {
		f.log.Warn().Err(err).Str("symbol", symbol).Msg("normalize candles failed")
		return snap, err
	}
	snap.Candles = candles

	if withOI {
		rawOI, err := src.FetchOpenInterest(ctx, symbol, f.Interval, f.Limit)
		if err != nil {
			f.log.Warn().Err(err).Str("symbol", symbol).Msg("fetch open interest failed")
			return snap, nil
		}
		oi, err := NormalizeOpenInterest(rawOI)
		if err != nil {
			f.log.Debug().Err(err).Str("symbol", symbol).Msg("no open interest")
		}
		snap.OpenInterest = oi
	}
	return snap, nil
}
