package model

import "github.com/shopspring/decimal"

// LiquidityPosition is a provider's claim on a pool, expressed as a quantity
// of the pool's liquidity units. Redeemable for a proportional share of the
// current reserves.
type LiquidityPosition struct {
	PairKey  PairKey         `json:"pair_key"`
	Provider string          `json:"provider"`
	Units    decimal.Decimal `json:"units"`
}
