package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fileswap/internal/model"
	"fileswap/internal/pricing"
	"fileswap/internal/settlement"
	"fileswap/internal/storage"
)

// AddLiquidityResult reports the outcome of a deposit. Amounts are keyed by
// the caller's argument order, not the canonical pool order.
type AddLiquidityResult struct {
	PairKey       model.PairKey   `json:"pair_key"`
	Provider      string          `json:"provider"`
	MintedUnits   decimal.Decimal `json:"minted_units"`
	ConsumedA     decimal.Decimal `json:"consumed_a"`
	ConsumedB     decimal.Decimal `json:"consumed_b"`
	UnusedA       decimal.Decimal `json:"unused_a"`
	UnusedB       decimal.Decimal `json:"unused_b"`
	SettlementRef string          `json:"settlement_ref"`
}

// RemoveLiquidityResult reports the payout of a withdrawal, keyed by the
// caller's argument order.
type RemoveLiquidityResult struct {
	PairKey       model.PairKey   `json:"pair_key"`
	Provider      string          `json:"provider"`
	BurnedUnits   decimal.Decimal `json:"burned_units"`
	AmountA       decimal.Decimal `json:"amount_a"`
	AmountB       decimal.Decimal `json:"amount_b"`
	SettlementRef string          `json:"settlement_ref"`
}

// AddLiquidity deposits funds into the pair's pool, creating the pool on
// first use. Only ratio-matching amounts are consumed; the rest is reported
// back as unused. The provider's position ledger is credited under the same
// pool lock that persists the reserves.
func (e *Engine) AddLiquidity(ctx context.Context, tokenA, tokenB string, amountA, amountB decimal.Decimal, provider string) (AddLiquidityResult, error) {
	tokenA, tokenB = normalizeToken(tokenA), normalizeToken(tokenB)
	if provider == "" {
		return AddLiquidityResult{}, fmt.Errorf("provider is required")
	}
	if !amountA.IsPositive() || !amountB.IsPositive() {
		return AddLiquidityResult{}, fmt.Errorf("%w: deposit amounts must be positive, got (%s, %s)",
			model.ErrInsufficientAmount, amountA, amountB)
	}

	key, err := model.NewPairKey(tokenA, tokenB)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	canonicalA, _ := key.Tokens()
	callerAFirst := tokenA == canonicalA

	// The pool is created inside the mutation unit: a failed first deposit
	// leaves no record behind.
	var result AddLiquidityResult
	err = e.store.WithPoolCreateLock(ctx, tokenA, tokenB, func(pool model.Pool, tx storage.PoolTx) (model.Pool, error) {
		depositA, depositB := amountA, amountB
		if !callerAFirst {
			depositA, depositB = amountB, amountA
		}

		quote, err := pricing.QuoteLiquidityAdd(pool.ReserveA, pool.ReserveB, pool.TotalLiquidityUnits, depositA, depositB)
		if err != nil {
			return model.Pool{}, err
		}

		ref, err := e.settler.Settle(ctx, settlement.Transfer{
			Kind:      settlement.KindLiquidityAdd,
			PairKey:   key.String(),
			Party:     provider,
			TokenIn:   pool.TokenA,
			TokenOut:  pool.TokenB,
			AmountIn:  quote.ConsumedA,
			AmountOut: quote.ConsumedB,
		})
		if err != nil {
			return model.Pool{}, fmt.Errorf("settle liquidity add: %w", err)
		}

		pool.ReserveA = pool.ReserveA.Add(quote.ConsumedA)
		pool.ReserveB = pool.ReserveB.Add(quote.ConsumedB)
		pool.TotalLiquidityUnits = pool.TotalLiquidityUnits.Add(quote.MintedUnits)
		pool.UpdatedAt = e.now()
		if err := pool.Validate(); err != nil {
			return model.Pool{}, err
		}

		tx.Credit(provider, quote.MintedUnits)

		result = AddLiquidityResult{
			PairKey:       key,
			Provider:      provider,
			MintedUnits:   quote.MintedUnits,
			ConsumedA:     quote.ConsumedA,
			ConsumedB:     quote.ConsumedB,
			UnusedA:       quote.UnusedA,
			UnusedB:       quote.UnusedB,
			SettlementRef: ref,
		}
		if !callerAFirst {
			result.ConsumedA, result.ConsumedB = result.ConsumedB, result.ConsumedA
			result.UnusedA, result.UnusedB = result.UnusedB, result.UnusedA
		}
		return pool, nil
	})
	if err != nil {
		return AddLiquidityResult{}, err
	}

	e.logger.Info("liquidity added",
		zap.String("pair", key.String()),
		zap.String("provider", provider),
		zap.String("minted_units", result.MintedUnits.String()),
		zap.String("settlement_ref", result.SettlementRef),
	)

	return result, nil
}

// RemoveLiquidity burns the provider's units for a proportional share of
// the current reserves. The provider's holdings are verified against the
// position ledger under the pool lock before anything moves.
func (e *Engine) RemoveLiquidity(ctx context.Context, tokenA, tokenB string, unitsToBurn decimal.Decimal, provider string) (RemoveLiquidityResult, error) {
	tokenA, tokenB = normalizeToken(tokenA), normalizeToken(tokenB)
	if provider == "" {
		return RemoveLiquidityResult{}, fmt.Errorf("provider is required")
	}
	key, err := model.NewPairKey(tokenA, tokenB)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}
	callerAFirst := func() bool { first, _ := key.Tokens(); return tokenA == first }()

	var result RemoveLiquidityResult
	err = e.store.WithPoolLock(ctx, key, func(pool model.Pool, tx storage.PoolTx) (model.Pool, error) {
		held, err := e.store.Balance(ctx, key, provider)
		if err != nil {
			return model.Pool{}, err
		}
		if held.LessThan(unitsToBurn) {
			return model.Pool{}, fmt.Errorf("%w: provider %s holds %s of %s, requested %s",
				model.ErrInsufficientPosition, provider, held, key, unitsToBurn)
		}

		quote, err := pricing.QuoteLiquidityRemove(pool.ReserveA, pool.ReserveB, pool.TotalLiquidityUnits, unitsToBurn)
		if err != nil {
			return model.Pool{}, err
		}

		ref, err := e.settler.Settle(ctx, settlement.Transfer{
			Kind:      settlement.KindLiquidityRemove,
			PairKey:   key.String(),
			Party:     provider,
			TokenIn:   pool.TokenA,
			TokenOut:  pool.TokenB,
			AmountIn:  quote.AmountA,
			AmountOut: quote.AmountB,
		})
		if err != nil {
			return model.Pool{}, fmt.Errorf("settle liquidity remove: %w", err)
		}

		pool.ReserveA = pool.ReserveA.Sub(quote.AmountA)
		pool.ReserveB = pool.ReserveB.Sub(quote.AmountB)
		pool.TotalLiquidityUnits = pool.TotalLiquidityUnits.Sub(unitsToBurn)
		pool.UpdatedAt = e.now()
		if err := pool.Validate(); err != nil {
			return model.Pool{}, err
		}

		tx.Debit(provider, unitsToBurn)

		result = RemoveLiquidityResult{
			PairKey:       key,
			Provider:      provider,
			BurnedUnits:   unitsToBurn,
			AmountA:       quote.AmountA,
			AmountB:       quote.AmountB,
			SettlementRef: ref,
		}
		if !callerAFirst {
			result.AmountA, result.AmountB = result.AmountB, result.AmountA
		}
		return pool, nil
	})
	if err != nil {
		return RemoveLiquidityResult{}, err
	}

	e.logger.Info("liquidity removed",
		zap.String("pair", key.String()),
		zap.String("provider", provider),
		zap.String("burned_units", unitsToBurn.String()),
		zap.String("settlement_ref", result.SettlementRef),
	)

	return result, nil
}
