package engine

import (
	"context"

	"fileswap/internal/model"
	"fileswap/internal/storage"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultTradeLimit
	}
	if limit > maxTradeLimit {
		return maxTradeLimit
	}
	return limit
}

// PoolInfo returns a read-only snapshot of the pair's pool.
func (e *Engine) PoolInfo(ctx context.Context, tokenA, tokenB string) (model.Pool, error) {
	key, err := model.NewPairKey(tokenA, tokenB)
	if err != nil {
		return model.Pool{}, err
	}
	return e.store.GetPool(ctx, key)
}

// ListPools returns snapshots of every pool.
func (e *Engine) ListPools(ctx context.Context) ([]model.Pool, error) {
	return e.store.ListPools(ctx)
}

// RecentTrades returns the latest executed trades, most recent first.
func (e *Engine) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	return e.store.RecentTrades(ctx, clampLimit(limit))
}

// TradesForPool returns the pair's trades, most recent first.
func (e *Engine) TradesForPool(ctx context.Context, tokenA, tokenB string, limit int) ([]model.Trade, error) {
	key, err := model.NewPairKey(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	return e.store.TradesForPool(ctx, key, clampLimit(limit))
}

// TradesForTrader returns the trader's trades, most recent first.
func (e *Engine) TradesForTrader(ctx context.Context, trader string, limit int) ([]model.Trade, error) {
	return e.store.TradesForTrader(ctx, trader, clampLimit(limit))
}

// PoolVolume returns aggregate executed flow for the pair.
func (e *Engine) PoolVolume(ctx context.Context, tokenA, tokenB string) (storage.PoolVolume, error) {
	key, err := model.NewPairKey(tokenA, tokenB)
	if err != nil {
		return storage.PoolVolume{}, err
	}
	return e.store.PoolVolume(ctx, key)
}

// PositionsForProvider lists the provider's liquidity positions.
func (e *Engine) PositionsForProvider(ctx context.Context, provider string) ([]model.LiquidityPosition, error) {
	return e.store.PositionsForProvider(ctx, provider)
}
