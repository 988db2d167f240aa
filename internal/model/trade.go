package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable record of one executed swap. Created exactly once
// per successful execution; never mutated or deleted.
type Trade struct {
	ID            string          `json:"id"`
	PairKey       PairKey         `json:"pair_key"`
	TokenIn       string          `json:"token_in"`
	TokenOut      string          `json:"token_out"`
	AmountIn      decimal.Decimal `json:"amount_in"`
	AmountOut     decimal.Decimal `json:"amount_out"`
	Fee           decimal.Decimal `json:"fee"`
	Price         decimal.Decimal `json:"price"`
	Trader        string          `json:"trader"`
	SettlementRef string          `json:"settlement_ref"`
	ExecutedAt    time.Time       `json:"executed_at"`
}
