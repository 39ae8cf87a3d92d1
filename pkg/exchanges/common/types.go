package common

import "strings"

// Side denotes order side in the exchange's capitalized form.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// ParseSide accepts any casing of buy/sell.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, true
	case "sell":
		return SideSell, true
	default:
		return "", false
	}
}

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
)

// Category is the v5 product category.
type Category string

const (
	CategoryLinear  Category = "linear"
	CategoryInverse Category = "inverse"
	CategorySpot    Category = "spot"
)

// QuoteAsset is the settlement coin balances are reported in.
const QuoteAsset = "USDT"

// Environment names used in logs and cache keys.
const (
	EnvTestnet = "testnet"
	EnvMainnet = "mainnet"
)

// EnvName maps the testnet flag to its environment name.
func EnvName(testnet bool) string {
	if testnet {
		return EnvTestnet
	}
	return EnvMainnet
}
