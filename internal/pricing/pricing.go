// Package pricing implements the constant-product curve as pure functions
// over reserve snapshots. Nothing here reads or writes shared state; the
// engine calls these under its own pool lock.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fileswap/internal/model"
)

// MaxFeeRateBps bounds the allowed fee rate (one basis point below 100%).
const MaxFeeRateBps = 9999

var (
	bpsDenominator = decimal.NewFromInt(10000)
	hundred        = decimal.NewFromInt(100)
)

// SwapQuote is the result of pricing one swap against a reserve snapshot.
type SwapQuote struct {
	AmountOut      decimal.Decimal
	Fee            decimal.Decimal
	EffectiveIn    decimal.Decimal
	SpotPrice      decimal.Decimal
	ExecutionPrice decimal.Decimal
	PriceImpactPct decimal.Decimal
}

// QuoteSwap prices amountIn against the reserves using the constant-product
// formula with the fee taken from the input side:
//
//	effectiveIn = amountIn * (1 - feeRateBps/10000)
//	amountOut   = reserveOut * effectiveIn / (reserveIn + effectiveIn)
//
// amountOut is floored, so (reserveIn+effectiveIn)*(reserveOut-amountOut)
// never drops below reserveIn*reserveOut.
func QuoteSwap(reserveIn, reserveOut, amountIn decimal.Decimal, feeRateBps int64) (SwapQuote, error) {
	if feeRateBps < 0 || feeRateBps > MaxFeeRateBps {
		return SwapQuote{}, fmt.Errorf("fee rate out of range: %d bps", feeRateBps)
	}
	if !amountIn.IsPositive() {
		return SwapQuote{}, fmt.Errorf("%w: amount in must be positive, got %s", model.ErrInvalidSwapAmount, amountIn)
	}
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return SwapQuote{}, fmt.Errorf("%w: reserves (%s, %s) cannot price a swap",
			model.ErrInsufficientLiquidity, reserveIn, reserveOut)
	}

	// Exact: multiplication by a 4-decimal-place factor never truncates.
	feeFactor := decimal.New(10000-feeRateBps, -4)
	effectiveIn := amountIn.Mul(feeFactor)
	fee := amountIn.Sub(effectiveIn)

	amountOut := divFloor(reserveOut.Mul(effectiveIn), reserveIn.Add(effectiveIn))
	if !amountOut.IsPositive() {
		return SwapQuote{}, fmt.Errorf("%w: amount in %s is too small against reserves (%s, %s)",
			model.ErrInsufficientLiquidity, amountIn, reserveIn, reserveOut)
	}
	if amountOut.GreaterThanOrEqual(reserveOut) {
		return SwapQuote{}, fmt.Errorf("%w: amount out %s would drain reserve %s",
			model.ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	spot := reserveOut.Div(reserveIn)
	execution := amountOut.Div(amountIn)
	impact := execution.Sub(spot).Abs().Div(spot).Mul(hundred)

	return SwapQuote{
		AmountOut:      amountOut,
		Fee:            fee,
		EffectiveIn:    effectiveIn,
		SpotPrice:      spot,
		ExecutionPrice: execution,
		PriceImpactPct: impact,
	}, nil
}
