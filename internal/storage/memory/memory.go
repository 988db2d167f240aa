// Package memory provides an in-memory Store used by tests and local runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fileswap/internal/model"
	"fileswap/internal/storage"
)

// Store keeps all engine state in process memory.
type Store struct {
	locks *storage.KeyedLock

	mu        sync.RWMutex
	pools     map[model.PairKey]model.Pool
	trades    []model.Trade
	positions map[model.PairKey]map[string]decimal.Decimal
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		locks:     storage.NewKeyedLock(),
		pools:     make(map[model.PairKey]model.Pool),
		positions: make(map[model.PairKey]map[string]decimal.Decimal),
	}
}

func (s *Store) Close() {}

// GetPool returns a snapshot of the pool.
func (s *Store) GetPool(_ context.Context, key model.PairKey) (model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[key]
	if !ok {
		return model.Pool{}, fmt.Errorf("%w: %s", model.ErrPoolNotFound, key)
	}
	return pool, nil
}

// ListPools returns snapshots of every pool.
func (s *Store) ListPools(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		pools = append(pools, pool)
	}
	return pools, nil
}

// WithPoolLock serializes mutations per pool key. The pool fn returns and
// fn's staged ledger writes are applied in one step before the lock is
// released; a failing fn writes nothing.
func (s *Store) WithPoolLock(ctx context.Context, key model.PairKey, fn func(model.Pool, storage.PoolTx) (model.Pool, error)) error {
	if err := s.locks.Acquire(ctx, key); err != nil {
		return fmt.Errorf("acquire pool lock %s: %w", key, err)
	}
	defer s.locks.Release(key)

	pool, err := s.GetPool(ctx, key)
	if err != nil {
		return err
	}
	return s.mutate(key, pool, fn)
}

// WithPoolCreateLock is WithPoolLock for a pool that may not exist yet.
// A fresh zero-reserve pool is handed to fn and only kept when fn succeeds.
func (s *Store) WithPoolCreateLock(ctx context.Context, tokenA, tokenB string, fn func(model.Pool, storage.PoolTx) (model.Pool, error)) error {
	pool, err := model.NewPool(tokenA, tokenB, time.Now().UTC())
	if err != nil {
		return err
	}
	key := pool.PairKey

	if err := s.locks.Acquire(ctx, key); err != nil {
		return fmt.Errorf("acquire pool lock %s: %w", key, err)
	}
	defer s.locks.Release(key)

	existing, err := s.GetPool(ctx, key)
	switch {
	case err == nil:
		pool = existing
	case !errors.Is(err, model.ErrPoolNotFound):
		return err
	}
	return s.mutate(key, pool, fn)
}

func (s *Store) mutate(key model.PairKey, pool model.Pool, fn func(model.Pool, storage.PoolTx) (model.Pool, error)) error {
	buf := &storage.TxBuffer{}
	updated, err := fn(pool, buf)
	if err != nil {
		return err
	}
	return s.apply(key, updated, buf)
}

// apply commits the pool update and the staged ledger writes in one
// critical section, validating every debit before touching anything.
func (s *Store) apply(key model.PairKey, pool model.Pool, buf *storage.TxBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byProvider := s.positions[key]
	balances := make(map[string]decimal.Decimal)
	for _, credit := range buf.Credits {
		if _, ok := balances[credit.Provider]; !ok {
			balances[credit.Provider] = byProvider[credit.Provider]
		}
		balances[credit.Provider] = balances[credit.Provider].Add(credit.Units)
	}
	for _, debit := range buf.Debits {
		if _, ok := balances[debit.Provider]; !ok {
			balances[debit.Provider] = byProvider[debit.Provider]
		}
		next := balances[debit.Provider].Sub(debit.Units)
		if next.IsNegative() {
			return fmt.Errorf("%w: provider %s holds %s of %s, requested %s",
				model.ErrInsufficientPosition, debit.Provider, balances[debit.Provider], key, debit.Units)
		}
		balances[debit.Provider] = next
	}

	s.pools[key] = pool
	s.trades = append(s.trades, buf.Trades...)
	if len(balances) > 0 {
		if byProvider == nil {
			byProvider = make(map[string]decimal.Decimal)
			s.positions[key] = byProvider
		}
		for provider, units := range balances {
			byProvider[provider] = units
		}
	}
	return nil
}

// RecentTrades returns up to limit trades, most recent first.
func (s *Store) RecentTrades(_ context.Context, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTrades(limit, func(model.Trade) bool { return true }), nil
}

// TradesForPool returns the pool's trades, most recent first.
func (s *Store) TradesForPool(_ context.Context, key model.PairKey, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTrades(limit, func(t model.Trade) bool { return t.PairKey == key }), nil
}

// TradesForTrader returns the trader's trades, most recent first.
func (s *Store) TradesForTrader(_ context.Context, trader string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTrades(limit, func(t model.Trade) bool { return t.Trader == trader }), nil
}

// PoolVolume sums executed flow for the pool in its own tokens.
func (s *Store) PoolVolume(_ context.Context, key model.PairKey) (storage.PoolVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokenA, _ := key.Tokens()
	volume := storage.PoolVolume{PairKey: key, VolumeA: decimal.Zero, VolumeB: decimal.Zero}
	for _, trade := range s.trades {
		if trade.PairKey != key {
			continue
		}
		volume.TradeCount++
		if trade.TokenIn == tokenA {
			volume.VolumeA = volume.VolumeA.Add(trade.AmountIn)
			volume.VolumeB = volume.VolumeB.Add(trade.AmountOut)
		} else {
			volume.VolumeB = volume.VolumeB.Add(trade.AmountIn)
			volume.VolumeA = volume.VolumeA.Add(trade.AmountOut)
		}
	}
	return volume, nil
}

func (s *Store) filterTrades(limit int, keep func(model.Trade) bool) []model.Trade {
	if limit <= 0 {
		return nil
	}
	out := make([]model.Trade, 0, limit)
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(s.trades[i]) {
			out = append(out, s.trades[i])
		}
	}
	return out
}

// Balance returns the provider's liquidity units for the pool.
func (s *Store) Balance(_ context.Context, key model.PairKey, provider string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[key][provider], nil
}

// PositionsForProvider lists the provider's non-zero positions.
func (s *Store) PositionsForProvider(_ context.Context, provider string) ([]model.LiquidityPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LiquidityPosition
	for key, byProvider := range s.positions {
		units, ok := byProvider[provider]
		if !ok || units.IsZero() {
			continue
		}
		out = append(out, model.LiquidityPosition{PairKey: key, Provider: provider, Units: units})
	}
	return out, nil
}
