package bybit

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"bybit-autotrader/pkg/cache"
	"bybit-autotrader/pkg/exchanges/common"
)

// FetchOHLCV returns the raw decoded /v5/market/kline response.
func (c *Client) FetchOHLCV(ctx context.Context, symbol, interval string, limit int) (any, error) {
	q := url.Values{}
	q.Set("category", string(common.CategoryLinear))
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	key := cache.KlineKey(common.EnvName(c.cfg.Testnet), symbol, interval, limit)
	return c.doPublic(ctx, "/v5/market/kline", q, key)
}

// FetchOpenInterest returns the raw decoded /v5/market/open-interest response.
// interval uses kline notation ("5", "60", "D") and is mapped to the
// endpoint's intervalTime values.
func (c *Client) FetchOpenInterest(ctx context.Context, symbol, interval string, limit int) (any, error) {
	q := url.Values{}
	q.Set("category", string(common.CategoryLinear))
	q.Set("symbol", symbol)
	q.Set("intervalTime", IntervalTime(interval))
	q.Set("limit", strconv.Itoa(limit))
	key := cache.OpenInterestKey(common.EnvName(c.cfg.Testnet), symbol, interval, limit)
	return c.doPublic(ctx, "/v5/market/open-interest", q, key)
}

// IntervalTime maps a kline interval onto the open-interest intervalTime
// vocabulary (5min, 15min, 30min, 1h, 4h, 1d). Unknown values pass through.
func IntervalTime(interval string) string {
	switch strings.TrimSpace(interval) {
	case "1", "3", "5":
		return "5min"
	case "15":
		return "15min"
	case "30":
		return "30min"
	case "60", "120":
		return "1h"
	case "240", "360", "720":
		return "4h"
	case "D", "d", "1440":
		return "1d"
	default:
		return interval
	}
}

// ServerTime returns the exchange clock in epoch milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	v, err := c.doPublic(ctx, "/v5/market/time", nil, "")
	if err != nil {
		return 0, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return 0, ErrDecode
	}
	if ms, ok := obj["time"].(float64); ok && ms > 0 {
		return int64(ms), nil
	}
	if res, ok := obj["result"].(map[string]any); ok {
		if s, ok := res["timeNano"].(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n / 1_000_000, nil
			}
		}
		if s, ok := res["timeSecond"].(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n * 1000, nil
			}
		}
	}
	return 0, errors.New("bybit: server time missing from response")
}

// SyncTime measures the local clock offset against the exchange.
func (c *Client) SyncTime(ctx context.Context) error {
	return c.timeSync.Sync(ctx)
}

// ClockOffset returns the last measured offset in ms (server - local).
func (c *Client) ClockOffset() int64 {
	return c.timeSync.Offset()
}
