// Package settlement defines the collaborator that actually moves token
// custody. The engine decides what amounts should move; a Settler records
// finality and returns an opaque reference for the trade ledger.
package settlement

import (
	"context"

	"github.com/shopspring/decimal"
)

// Transfer kinds.
const (
	KindSwap            = "swap"
	KindLiquidityAdd    = "liquidity_add"
	KindLiquidityRemove = "liquidity_remove"
)

// Transfer describes one settled value movement between a party and a pool.
type Transfer struct {
	Kind      string          `json:"kind"`
	PairKey   string          `json:"pair_key"`
	Party     string          `json:"party"`
	TokenIn   string          `json:"token_in"`
	TokenOut  string          `json:"token_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
}

// Settler finalizes a transfer and returns an opaque settlement reference.
// A returned error means custody did not move and the engine must not
// commit the reserve update.
type Settler interface {
	Settle(ctx context.Context, transfer Transfer) (string, error)
}
