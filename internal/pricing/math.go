package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// quoteScale is the number of fractional digits kept by quote arithmetic.
const quoteScale = 18

// divFloor returns floor(num/den) at quoteScale fractional digits, computed
// exactly over big integers. Truncation always favors the pool, which keeps
// the product invariant check reliable.
func divFloor(num, den decimal.Decimal) decimal.Decimal {
	rat := new(big.Rat).Quo(num.Rat(), den.Rat())
	scaled := new(big.Int).Mul(rat.Num(), pow10(quoteScale))
	scaled.Quo(scaled, rat.Denom())
	return decimal.NewFromBigInt(scaled, -quoteScale)
}

// sqrtFloor returns floor(sqrt(d)) at quoteScale fractional digits using
// exact integer square root on the scaled value.
func sqrtFloor(d decimal.Decimal) decimal.Decimal {
	rat := d.Rat()
	scaled := new(big.Int).Mul(rat.Num(), pow10(2*quoteScale))
	scaled.Quo(scaled, rat.Denom())
	root := new(big.Int).Sqrt(scaled)
	return decimal.NewFromBigInt(root, -quoteScale)
}

func pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}
