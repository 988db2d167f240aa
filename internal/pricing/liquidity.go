package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fileswap/internal/model"
)

// AddQuote describes a proportional liquidity deposit. Consumed amounts are
// what the pool actually absorbs; anything beyond the ratio-matching
// quantity is returned to the caller as unused.
type AddQuote struct {
	MintedUnits decimal.Decimal
	ConsumedA   decimal.Decimal
	ConsumedB   decimal.Decimal
	UnusedA     decimal.Decimal
	UnusedB     decimal.Decimal
}

// RemoveQuote describes a proportional liquidity withdrawal.
type RemoveQuote struct {
	AmountA decimal.Decimal
	AmountB decimal.Decimal
}

// QuoteLiquidityAdd computes the liquidity units minted for a deposit.
// A first deposit sets the exchange rate and mints sqrt(amountA*amountB);
// later deposits are clipped to the pool's current ratio.
func QuoteLiquidityAdd(reserveA, reserveB, totalUnits, amountA, amountB decimal.Decimal) (AddQuote, error) {
	if !amountA.IsPositive() || !amountB.IsPositive() {
		return AddQuote{}, fmt.Errorf("%w: deposit amounts must be positive, got (%s, %s)",
			model.ErrInsufficientAmount, amountA, amountB)
	}

	if totalUnits.IsZero() {
		return AddQuote{
			MintedUnits: sqrtFloor(amountA.Mul(amountB)),
			ConsumedA:   amountA,
			ConsumedB:   amountB,
			UnusedA:     decimal.Zero,
			UnusedB:     decimal.Zero,
		}, nil
	}
	if !reserveA.IsPositive() || !reserveB.IsPositive() {
		return AddQuote{}, fmt.Errorf("%w: pool has units %s but reserves (%s, %s)",
			model.ErrInvariantViolation, totalUnits, reserveA, reserveB)
	}

	// Clip the deposit to the current reserve ratio.
	consumedA, consumedB := amountA, amountB
	requiredB := divFloor(amountA.Mul(reserveB), reserveA)
	if requiredB.LessThanOrEqual(amountB) {
		consumedB = requiredB
	} else {
		consumedA = divFloor(amountB.Mul(reserveA), reserveB)
	}
	if !consumedA.IsPositive() || !consumedB.IsPositive() {
		return AddQuote{}, fmt.Errorf("%w: deposit (%s, %s) is too small for reserves (%s, %s)",
			model.ErrInsufficientAmount, amountA, amountB, reserveA, reserveB)
	}

	sharesA := divFloor(consumedA.Mul(totalUnits), reserveA)
	sharesB := divFloor(consumedB.Mul(totalUnits), reserveB)
	minted := decimal.Min(sharesA, sharesB)
	if !minted.IsPositive() {
		return AddQuote{}, fmt.Errorf("%w: deposit (%s, %s) mints no units", model.ErrInsufficientAmount, amountA, amountB)
	}

	return AddQuote{
		MintedUnits: minted,
		ConsumedA:   consumedA,
		ConsumedB:   consumedB,
		UnusedA:     amountA.Sub(consumedA),
		UnusedB:     amountB.Sub(consumedB),
	}, nil
}

// QuoteLiquidityRemove computes the proportional payout for burning units.
// Burning the entire supply pays out the reserves exactly, leaving no dust.
func QuoteLiquidityRemove(reserveA, reserveB, totalUnits, unitsToBurn decimal.Decimal) (RemoveQuote, error) {
	if !unitsToBurn.IsPositive() {
		return RemoveQuote{}, fmt.Errorf("%w: units to burn must be positive, got %s",
			model.ErrInvalidLiquidityAmount, unitsToBurn)
	}
	if unitsToBurn.GreaterThan(totalUnits) {
		return RemoveQuote{}, fmt.Errorf("%w: units to burn %s exceed outstanding %s",
			model.ErrInvalidLiquidityAmount, unitsToBurn, totalUnits)
	}

	if unitsToBurn.Equal(totalUnits) {
		return RemoveQuote{AmountA: reserveA, AmountB: reserveB}, nil
	}

	return RemoveQuote{
		AmountA: divFloor(reserveA.Mul(unitsToBurn), totalUnits),
		AmountB: divFloor(reserveB.Mul(unitsToBurn), totalUnits),
	}, nil
}
