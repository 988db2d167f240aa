// Package storage defines the persistence ports of the engine. Postgres is
// the durable implementation; the memory implementation backs tests and
// local runs.
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"fileswap/internal/model"
)

// PoolTx stages ledger writes that belong to the pool mutation in flight.
// Staged writes commit in the same unit as the pool persist and are
// discarded entirely when the mutation fails.
type PoolTx interface {
	// Record stages an executed trade for the ledger.
	Record(trade model.Trade)

	// Credit stages adding liquidity units to the provider's position.
	Credit(provider string, units decimal.Decimal)

	// Debit stages subtracting liquidity units from the provider's
	// position. A balance shortfall at commit time fails the whole unit
	// with model.ErrInsufficientPosition.
	Debit(provider string, units decimal.Decimal)
}

// PoolStore owns durable pool records keyed by canonical pair. The two
// WithPool methods are the only sanctioned mutation path: at most one
// mutation is in flight per pool at any time, and the pool update plus
// everything staged on the PoolTx commit as one unit or not at all.
type PoolStore interface {
	// GetPool returns a read-only snapshot, or model.ErrPoolNotFound.
	GetPool(ctx context.Context, key model.PairKey) (model.Pool, error)

	// ListPools returns snapshots of every pool.
	ListPools(ctx context.Context) ([]model.Pool, error)

	// WithPoolLock acquires exclusive access to the pool, passes the current
	// record to fn, and persists the pool fn returns together with fn's
	// staged ledger writes before releasing. If fn errors nothing is
	// written. Waiting honors ctx cancellation.
	WithPoolLock(ctx context.Context, key model.PairKey, fn func(model.Pool, PoolTx) (model.Pool, error)) error

	// WithPoolCreateLock behaves like WithPoolLock but hands fn a fresh
	// zero-reserve pool when none exists for the pair. The new pool is
	// only persisted when fn succeeds; a failing fn leaves no record.
	WithPoolCreateLock(ctx context.Context, tokenA, tokenB string, fn func(model.Pool, PoolTx) (model.Pool, error)) error
}

// PoolVolume aggregates executed trade flow for one pool, denominated in
// the pool's own tokens.
type PoolVolume struct {
	PairKey    model.PairKey   `json:"pair_key"`
	TradeCount int64           `json:"trade_count"`
	VolumeA    decimal.Decimal `json:"volume_a"`
	VolumeB    decimal.Decimal `json:"volume_b"`
}

// TradeLedger is the append-only record of executed swaps. Trades enter
// through PoolTx.Record; this interface is the query surface.
type TradeLedger interface {
	RecentTrades(ctx context.Context, limit int) ([]model.Trade, error)
	TradesForPool(ctx context.Context, key model.PairKey, limit int) ([]model.Trade, error)
	TradesForTrader(ctx context.Context, trader string, limit int) ([]model.Trade, error)
	PoolVolume(ctx context.Context, key model.PairKey) (PoolVolume, error)
}

// PositionLedger reports how many liquidity units each provider holds.
// Mutations go through PoolTx.Credit and PoolTx.Debit.
type PositionLedger interface {
	Balance(ctx context.Context, key model.PairKey, provider string) (decimal.Decimal, error)
	PositionsForProvider(ctx context.Context, provider string) ([]model.LiquidityPosition, error)
}

// Store bundles all engine persistence behind one backend.
type Store interface {
	PoolStore
	TradeLedger
	PositionLedger
	Close()
}
