package common

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway abstracts a trading venue for one set of credentials.
type Gateway interface {
	Testnet() bool
	GetBalance(ctx context.Context) BalanceResult
	PlaceOrder(ctx context.Context, side Side, qty decimal.Decimal, symbol string, orderType OrderType) Envelope
	FetchOHLCV(ctx context.Context, symbol, interval string, limit int) (any, error)
	FetchOpenInterest(ctx context.Context, symbol, interval string, limit int) (any, error)
}
