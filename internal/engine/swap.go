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

// QuoteResult is an advisory quote computed from an unlocked pool snapshot.
// The snapshot reserves are included so the caller can reason about
// staleness; execution never trusts a previously fetched quote.
type QuoteResult struct {
	PairKey        model.PairKey   `json:"pair_key"`
	TokenIn        string          `json:"token_in"`
	TokenOut       string          `json:"token_out"`
	AmountIn       decimal.Decimal `json:"amount_in"`
	AmountOut      decimal.Decimal `json:"amount_out"`
	Fee            decimal.Decimal `json:"fee"`
	PriceImpactPct decimal.Decimal `json:"price_impact_pct"`
	ReserveIn      decimal.Decimal `json:"reserve_in"`
	ReserveOut     decimal.Decimal `json:"reserve_out"`
}

// Quote prices a swap against the current pool snapshot. Side-effect free
// and safe to call arbitrarily often; the result is advisory only.
func (e *Engine) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (QuoteResult, error) {
	tokenIn, tokenOut = normalizeToken(tokenIn), normalizeToken(tokenOut)
	key, err := model.NewPairKey(tokenIn, tokenOut)
	if err != nil {
		return QuoteResult{}, err
	}

	pool, err := e.store.GetPool(ctx, key)
	if err != nil {
		return QuoteResult{}, err
	}
	if pool.IsEmpty() {
		return QuoteResult{}, fmt.Errorf("%w: pool %s holds no liquidity", model.ErrInsufficientLiquidity, key)
	}

	reserveIn, reserveOut, _, err := pool.ReservesFor(tokenIn, tokenOut)
	if err != nil {
		return QuoteResult{}, err
	}

	quote, err := pricing.QuoteSwap(reserveIn, reserveOut, amountIn, e.cfg.FeeRateBps)
	if err != nil {
		return QuoteResult{}, err
	}

	return QuoteResult{
		PairKey:        key,
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       amountIn,
		AmountOut:      quote.AmountOut,
		Fee:            quote.Fee,
		PriceImpactPct: quote.PriceImpactPct,
		ReserveIn:      reserveIn,
		ReserveOut:     reserveOut,
	}, nil
}

// ExecuteSwap performs one swap as a single serialized unit: it locks the
// pool, reprices against the live reserves, enforces the caller's minimum
// output, settles custody, applies the reserve update, and appends the
// trade — releasing the lock only after the new reserves are persisted.
func (e *Engine) ExecuteSwap(ctx context.Context, tokenIn, tokenOut string, amountIn, minAmountOut decimal.Decimal, trader string) (model.Trade, error) {
	tokenIn, tokenOut = normalizeToken(tokenIn), normalizeToken(tokenOut)
	if trader == "" {
		return model.Trade{}, fmt.Errorf("trader is required")
	}
	if minAmountOut.IsNegative() {
		return model.Trade{}, fmt.Errorf("%w: minimum amount out %s is negative", model.ErrInvalidSwapAmount, minAmountOut)
	}
	key, err := model.NewPairKey(tokenIn, tokenOut)
	if err != nil {
		return model.Trade{}, err
	}

	var trade model.Trade
	err = e.store.WithPoolLock(ctx, key, func(pool model.Pool, tx storage.PoolTx) (model.Pool, error) {
		reserveIn, reserveOut, tokenAIn, err := pool.ReservesFor(tokenIn, tokenOut)
		if err != nil {
			return model.Pool{}, err
		}

		// Reprice on the live reserves; any earlier quote is advisory only.
		quote, err := pricing.QuoteSwap(reserveIn, reserveOut, amountIn, e.cfg.FeeRateBps)
		if err != nil {
			return model.Pool{}, err
		}

		if quote.AmountOut.LessThan(minAmountOut) {
			return model.Pool{}, fmt.Errorf("%w: live output %s below minimum %s", model.ErrSlippageExceeded, quote.AmountOut, minAmountOut)
		}

		ref, err := e.settler.Settle(ctx, settlement.Transfer{
			Kind:      settlement.KindSwap,
			PairKey:   key.String(),
			Party:     trader,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			AmountIn:  amountIn,
			AmountOut: quote.AmountOut,
		})
		if err != nil {
			return model.Pool{}, fmt.Errorf("settle swap: %w", err)
		}

		productBefore := pool.Product()
		if tokenAIn {
			pool.ReserveA = pool.ReserveA.Add(amountIn)
			pool.ReserveB = pool.ReserveB.Sub(quote.AmountOut)
			pool.FeesA = pool.FeesA.Add(quote.Fee)
		} else {
			pool.ReserveB = pool.ReserveB.Add(amountIn)
			pool.ReserveA = pool.ReserveA.Sub(quote.AmountOut)
			pool.FeesB = pool.FeesB.Add(quote.Fee)
		}

		// A shrinking product means an arithmetic bug, never a user error.
		if pool.Product().LessThan(productBefore) {
			e.logger.Error("constant product decreased",
				zap.String("pair", key.String()),
				zap.String("reserve_a", pool.ReserveA.String()),
				zap.String("reserve_b", pool.ReserveB.String()),
				zap.String("product_before", productBefore.String()),
				zap.String("product_after", pool.Product().String()),
			)
			return model.Pool{}, fmt.Errorf("%w: product decreased from %s to %s on pool %s",
				model.ErrInvariantViolation, productBefore, pool.Product(), key)
		}
		pool.UpdatedAt = e.now()

		trade = model.Trade{
			ID:            e.newID(),
			PairKey:       key,
			TokenIn:       tokenIn,
			TokenOut:      tokenOut,
			AmountIn:      amountIn,
			AmountOut:     quote.AmountOut,
			Fee:           quote.Fee,
			Price:         quote.ExecutionPrice,
			Trader:        trader,
			SettlementRef: ref,
			ExecutedAt:    pool.UpdatedAt,
		}
		tx.Record(trade)
		return pool, nil
	})
	if err != nil {
		return model.Trade{}, err
	}

	if e.audit != nil {
		if err := e.audit.Append(trade); err != nil {
			e.logger.Warn("append trade audit", zap.String("trade", trade.ID), zap.Error(err))
		}
	}

	e.logger.Info("swap executed",
		zap.String("pair", key.String()),
		zap.String("trader", trader),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", trade.AmountOut.String()),
		zap.String("fee", trade.Fee.String()),
		zap.String("settlement_ref", trade.SettlementRef),
	)

	return trade, nil
}
