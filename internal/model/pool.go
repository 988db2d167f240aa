package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Pool holds the live reserve state backing swaps for one token pair.
// Reserves are indexed consistently with the canonical pair order.
type Pool struct {
	PairKey             PairKey         `json:"pair_key"`
	TokenA              string          `json:"token_a"`
	TokenB              string          `json:"token_b"`
	ReserveA            decimal.Decimal `json:"reserve_a"`
	ReserveB            decimal.Decimal `json:"reserve_b"`
	TotalLiquidityUnits decimal.Decimal `json:"total_liquidity_units"`
	FeesA               decimal.Decimal `json:"fees_a"`
	FeesB               decimal.Decimal `json:"fees_b"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewPool returns a zero-reserve pool for the pair.
func NewPool(tokenA, tokenB string, now time.Time) (Pool, error) {
	key, err := NewPairKey(tokenA, tokenB)
	if err != nil {
		return Pool{}, err
	}
	first, second := key.Tokens()
	return Pool{
		PairKey:             key,
		TokenA:              first,
		TokenB:              second,
		ReserveA:            decimal.Zero,
		ReserveB:            decimal.Zero,
		TotalLiquidityUnits: decimal.Zero,
		FeesA:               decimal.Zero,
		FeesB:               decimal.Zero,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// Product returns the constant-product value reserveA * reserveB.
func (p Pool) Product() decimal.Decimal {
	return p.ReserveA.Mul(p.ReserveB)
}

// IsEmpty reports whether the pool holds no liquidity.
func (p Pool) IsEmpty() bool {
	return p.TotalLiquidityUnits.IsZero()
}

// ReservesFor returns the (reserveIn, reserveOut) pair oriented for a swap
// of tokenIn into tokenOut, plus whether tokenIn is the pool's token A.
func (p Pool) ReservesFor(tokenIn, tokenOut string) (decimal.Decimal, decimal.Decimal, bool, error) {
	switch {
	case tokenIn == p.TokenA && tokenOut == p.TokenB:
		return p.ReserveA, p.ReserveB, true, nil
	case tokenIn == p.TokenB && tokenOut == p.TokenA:
		return p.ReserveB, p.ReserveA, false, nil
	default:
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("%w: pool %s does not trade %s->%s",
			ErrInvalidTokenPair, p.PairKey, tokenIn, tokenOut)
	}
}

// Validate checks the structural invariants of a pool record.
func (p Pool) Validate() error {
	if p.ReserveA.IsNegative() || p.ReserveB.IsNegative() || p.TotalLiquidityUnits.IsNegative() {
		return fmt.Errorf("%w: negative state in pool %s (reserveA=%s reserveB=%s units=%s)",
			ErrInvariantViolation, p.PairKey, p.ReserveA, p.ReserveB, p.TotalLiquidityUnits)
	}
	if p.TotalLiquidityUnits.IsZero() != (p.ReserveA.IsZero() && p.ReserveB.IsZero()) {
		return fmt.Errorf("%w: pool %s has units=%s with reserves (%s, %s)",
			ErrInvariantViolation, p.PairKey, p.TotalLiquidityUnits, p.ReserveA, p.ReserveB)
	}
	return nil
}
