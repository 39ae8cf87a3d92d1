package bybit

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bybit-autotrader/pkg/exchanges/common"
)

// NewOrderLinkID returns a fresh client order id: "bot-" and 12 hex chars.
func NewOrderLinkID() string {
	return "bot-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// PlaceOrder submits a linear GTC order and returns the raw envelope.
func (c *Client) PlaceOrder(ctx context.Context, side common.Side, qty decimal.Decimal, symbol string, orderType common.OrderType) common.Envelope {
	if s, ok := common.ParseSide(string(side)); ok {
		side = s
	}
	if orderType == "" {
		orderType = common.OrderTypeMarket
	}
	linkID := NewOrderLinkID()
	body := map[string]any{
		"category":    string(common.CategoryLinear),
		"symbol":      symbol,
		"side":        string(side),
		"orderType":   string(orderType),
		"orderLinkId": linkID,
		"qty":         qty.String(),
		"timeInForce": string(common.TIFGTC),
	}
	env := c.doPrivate(ctx, http.MethodPost, "/v5/order/create", nil, body)
	c.log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("qty", qty.String()).
		Str("order_link_id", linkID).
		Bool("error", env.IsError()).
		Msg("order submitted")
	return env
}

var _ common.Gateway = (*Client)(nil)
