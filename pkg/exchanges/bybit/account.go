package bybit

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bybit-autotrader/pkg/exchanges/common"
)

// GetBalance returns the USDT equity, or the error envelope unchanged.
func (c *Client) GetBalance(ctx context.Context) common.BalanceResult {
	q := url.Values{}
	q.Set("accountType", AccountTypeUnified)
	q.Set("coin", common.QuoteAsset)
	env := c.doPrivate(ctx, http.MethodGet, "/v5/account/wallet-balance", q, nil)
	if env.IsError() {
		return common.BalanceError(env)
	}

	equity, ok := extractEquity(env.Result(), common.QuoteAsset)
	if !ok {
		c.log.Warn().Msg("wallet balance equity is not numeric")
		return common.BalanceError(common.Envelope{
			HTTPStatus: env.HTTPStatus,
			Body:       map[string]any{"retCode": -1.0, "retMsg": "unparseable equity"},
		})
	}
	return common.Balance(equity)
}

// extractEquity finds coin's equity in a wallet-balance result. Accepted
// forms: list[] of coin rows, list[] of accounts each with a coin[] array, or
// a flat {"USDT": value}. A result without the coin yields 0.
func extractEquity(result any, coin string) (float64, bool) {
	res, ok := result.(map[string]any)
	if !ok {
		return 0, true
	}
	if list, ok := res["list"].([]any); ok {
		for _, item := range list {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := row["coin"].(string); ok && s == coin {
				return numeric(row["equity"])
			}
			if coins, ok := row["coin"].([]any); ok {
				for _, ci := range coins {
					cr, ok := ci.(map[string]any)
					if !ok {
						continue
					}
					if s, _ := cr["coin"].(string); s == coin {
						return numeric(cr["equity"])
					}
				}
			}
		}
	}
	if v, ok := res[coin]; ok {
		return numeric(v)
	}
	return 0, true
}

// numeric parses a JSON number or numeric string; empty and null are 0.
func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
